package site_test

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/noah-isme/popup-offer/internal/popup"
	"github.com/noah-isme/popup-offer/internal/site"
)

func TestAutoShowFiresAfterDelay(t *testing.T) {
	c := popup.NewController(popup.Options{Store: popup.NewMemoryStore(nil)})
	shown := make(chan popup.State, 1)
	c.Subscribe(func(s popup.State) { shown <- s })

	stop := site.AutoShow(context.Background(), c, 10*time.Millisecond)
	defer stop()

	select {
	case s := <-shown:
		require.Equal(t, popup.Visible, s)
	case <-time.After(time.Second):
		t.Fatal("popup was not shown")
	}
}

func TestAutoShowSkippedWhenSuppressed(t *testing.T) {
	store := popup.NewMemoryStore(nil)
	require.NoError(t, store.Set(popup.DefaultCookieName, popup.SuppressedValue, 7))
	c := popup.NewController(popup.Options{Store: store})

	stop := site.AutoShow(context.Background(), c, time.Millisecond)
	stop()
	time.Sleep(5 * time.Millisecond)
	require.False(t, c.Visible())
}

func TestAutoShowStopCancelsPendingShow(t *testing.T) {
	c := popup.NewController(popup.Options{Store: popup.NewMemoryStore(nil)})
	stop := site.AutoShow(context.Background(), c, time.Hour)
	stop()
	stop()
	require.False(t, c.Visible())
}

func TestAutoShowContextCancel(t *testing.T) {
	c := popup.NewController(popup.Options{Store: popup.NewMemoryStore(nil)})
	ctx, cancel := context.WithCancel(context.Background())
	stop := site.AutoShow(ctx, c, time.Hour)
	cancel()
	stop()
	require.False(t, c.Visible())
}

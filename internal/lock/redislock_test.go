package lock_test

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	miniredis "github.com/alicebob/miniredis/v2"
	redis "github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/require"

	"github.com/noah-isme/popup-offer/internal/lock"
)

func newLocker(t *testing.T) (*miniredis.Miniredis, lock.Locker) {
	t.Helper()
	mr, err := miniredis.Run()
	require.NoError(t, err)
	t.Cleanup(mr.Close)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })
	return mr, lock.Locker{R: client, RetryBackoff: 5 * time.Millisecond}
}

func TestWithLockSerialises(t *testing.T) {
	_, locker := newLocker(t)
	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()

	var order []string
	var mu sync.Mutex
	firstDone := make(chan struct{})
	releaseFirst := make(chan struct{})
	var wg sync.WaitGroup
	wg.Add(2)

	go func() {
		defer wg.Done()
		_ = locker.WithLock(ctx, "intent", 500*time.Millisecond, func(context.Context) error {
			mu.Lock()
			order = append(order, "first")
			mu.Unlock()
			close(firstDone)
			<-releaseFirst
			return nil
		})
	}()

	<-firstDone

	go func() {
		defer wg.Done()
		_ = locker.WithLock(ctx, "intent", 500*time.Millisecond, func(context.Context) error {
			mu.Lock()
			order = append(order, "second")
			mu.Unlock()
			return nil
		})
	}()

	close(releaseFirst)
	wg.Wait()
	require.Equal(t, []string{"first", "second"}, order)
}

func TestTryWithLockReportsContention(t *testing.T) {
	mr, locker := newLocker(t)
	ctx := context.Background()

	err := locker.TryWithLock(ctx, "intent", time.Minute, func(ctx context.Context) error {
		inner := locker.TryWithLock(ctx, "intent", time.Minute, func(context.Context) error {
			t.Error("nested acquisition should fail")
			return nil
		})
		require.ErrorIs(t, inner, lock.ErrLocked)
		return nil
	})
	require.NoError(t, err)
	require.False(t, mr.Exists("intent"), "released after fn returns")
}

func TestTryWithLockDoesNotReleaseForeignToken(t *testing.T) {
	mr, locker := newLocker(t)
	err := locker.TryWithLock(context.Background(), "intent", time.Minute, func(context.Context) error {
		// simulate expiry and takeover by another owner
		require.NoError(t, mr.Set("intent", "someone-else"))
		return errors.New("boom")
	})
	require.EqualError(t, err, "boom")
	got, getErr := mr.Get("intent")
	require.NoError(t, getErr)
	require.Equal(t, "someone-else", got)
}

func TestLockerWithoutClient(t *testing.T) {
	err := lock.Locker{}.TryWithLock(context.Background(), "k", time.Second, func(context.Context) error { return nil })
	require.Error(t, err)
}

package site

import (
	"context"
	"time"

	"github.com/noah-isme/popup-offer/internal/popup"
)

// AutoShow shows c after delay unless the suppression cookie was present
// when it was called. A non-positive delay uses the controller's configured
// delay. The returned stop cancels a pending show and waits for the timer
// goroutine; it is safe to call more than once.
func AutoShow(ctx context.Context, c *popup.Controller, delay time.Duration) (stop func()) {
	if c == nil || !c.ShouldAutoShow() {
		return func() {}
	}
	if delay <= 0 {
		delay = c.Config().Delay
	}
	ctx, cancel := context.WithCancel(ctx)
	done := make(chan struct{})
	go func() {
		defer close(done)
		timer := time.NewTimer(delay)
		defer timer.Stop()
		select {
		case <-ctx.Done():
		case <-timer.C:
			if ctx.Err() == nil {
				c.Show()
			}
		}
	}()
	return func() {
		cancel()
		<-done
	}
}

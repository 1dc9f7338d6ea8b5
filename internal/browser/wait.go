package browser

import (
	"context"
	"errors"
	"time"
)

// ErrWaitTimeout means the condition did not hold within its bound.
var ErrWaitTimeout = errors.New("condition wait timed out")

// WaitFor polls cond at interval until it holds, the timeout elapses, or
// ctx is cancelled. Condition errors are tolerated between polls; pages
// mid-navigation routinely fail transiently.
func WaitFor(ctx context.Context, timeout, interval time.Duration, cond func(context.Context) (bool, error)) error {
	deadline := time.NewTimer(timeout)
	defer deadline.Stop()
	tick := time.NewTicker(interval)
	defer tick.Stop()

	for {
		ok, err := cond(ctx)
		if err == nil && ok {
			return nil
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-deadline.C:
			return ErrWaitTimeout
		case <-tick.C:
		}
	}
}

// WaitReady waits for the document to finish loading.
func WaitReady(ctx context.Context, d PageDriver, timeout, interval time.Duration) error {
	return WaitFor(ctx, timeout, interval, d.Ready)
}

// WaitCookiesApplied waits until the session carries at least min
// cookies, the observable effect of an installed jar surviving a reload.
func WaitCookiesApplied(ctx context.Context, d PageDriver, min int, timeout, interval time.Duration) error {
	return WaitFor(ctx, timeout, interval, func(ctx context.Context) (bool, error) {
		cookies, err := d.Cookies(ctx)
		if err != nil {
			return false, err
		}
		return len(cookies) >= min, nil
	})
}

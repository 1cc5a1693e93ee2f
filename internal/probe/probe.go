// Package probe provides small readiness checks for network endpoints.
package probe

import (
	"context"
	"fmt"
	"time"
)

// Prober defines the behaviour required by the Wait loop.
type Prober interface {
	Probe(ctx context.Context) error
}

// Wait polls the prober at the given interval until it succeeds, the
// timeout elapses, or the context is cancelled. The last probe error is
// wrapped into the timeout failure.
func Wait(ctx context.Context, p Prober, interval, timeout time.Duration) error {
	if interval <= 0 {
		interval = 50 * time.Millisecond
	}
	deadline := time.Now().Add(timeout)

	var lastErr error
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		attemptCtx, cancel := context.WithTimeout(ctx, interval)
		err := p.Probe(attemptCtx)
		cancel()
		if err == nil {
			return nil
		}
		lastErr = err

		if timeout > 0 && time.Now().After(deadline) {
			return fmt.Errorf("probe timed out after %s: %w", timeout, lastErr)
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
		}
	}
}

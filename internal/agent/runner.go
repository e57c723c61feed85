package agent

import (
	"context"
	"time"
)

// Run calls Tick every interval until ctx is cancelled. A Tick that blocks
// longer than interval delays the next one; ticks are never run
// concurrently.
func (a *Agent) Run(ctx context.Context, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	// Run immediately on start
	a.Tick(ctx)

	for {
		select {
		case <-ctx.Done():
			a.logf("[Agent] Control loop stopped")
			return
		case <-ticker.C:
			a.Tick(ctx)
		}
	}
}

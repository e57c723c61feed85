package agent

import (
	"context"
	"time"

	"siapsuhu/internal/events"
)

// syncIfNeeded refreshes the wall clock when it was never synced or the
// last sync is older than SyncMaxAge. A failure keeps the previous state,
// so an unsynced agent retries on every tick.
func (a *Agent) syncIfNeeded(ctx context.Context, now time.Duration) {
	if a.network != Connected {
		return
	}
	if !a.timeSync.stale(now, a.policy.SyncMaxAge) {
		return
	}

	syncCtx, cancel := context.WithTimeout(ctx, a.policy.SyncTimeout)
	err := a.timeSource.Sync(syncCtx)
	cancel()

	if err != nil {
		a.logf("[NTP] Time sync failed: %v", err)
		// Journal the first failure of a streak only
		if !a.timeSync.failing {
			a.record(events.EventNTPFailed, false, err.Error())
		}
		a.timeSync.failing = true
		return
	}

	a.timeSync.lastSync = now
	a.timeSync.synced = true
	a.timeSync.failing = false
	a.logf("[NTP] Time synchronized")
	a.record(events.EventNTPSynced, true, "")
}

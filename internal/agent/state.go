package agent

import "time"

// ConnectionState is the state of one link.
type ConnectionState int

const (
	Disconnected ConnectionState = iota
	Connecting
	Connected
)

func (s ConnectionState) String() string {
	switch s {
	case Disconnected:
		return "disconnected"
	case Connecting:
		return "connecting"
	case Connected:
		return "connected"
	}
	return "unknown"
}

// MarshalText implements encoding.TextMarshaler.
func (s ConnectionState) MarshalText() ([]byte, error) {
	return []byte(s.String()), nil
}

// retryTimer rate-limits attempts. The first attempt is always allowed.
type retryTimer struct {
	lastAttempt time.Duration
	attempted   bool
	minInterval time.Duration
}

func (r *retryTimer) ready(now time.Duration) bool {
	return !r.attempted || now-r.lastAttempt >= r.minInterval
}

func (r *retryTimer) mark(now time.Duration) {
	r.lastAttempt = now
	r.attempted = true
}

// timeSyncState tracks the last successful sync. synced=false means never.
type timeSyncState struct {
	lastSync time.Duration
	synced   bool
	failing  bool
}

func (t *timeSyncState) stale(now, maxAge time.Duration) bool {
	return !t.synced || now-t.lastSync >= maxAge
}

func (t *timeSyncState) reset() {
	t.lastSync = 0
	t.synced = false
}

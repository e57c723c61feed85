// Package clock provides the agent's monotonic time base and its NTP-backed
// wall clock.
package clock

import "time"

// Monotonic measures time since it was created. It stands in for the
// device's uptime counter.
type Monotonic struct {
	start time.Time
}

// NewMonotonic starts a new uptime counter.
func NewMonotonic() *Monotonic {
	return &Monotonic{start: time.Now()}
}

// Now returns the elapsed time since start.
func (m *Monotonic) Now() time.Duration {
	return time.Since(m.start)
}

// Sleep blocks the caller for d.
func (m *Monotonic) Sleep(d time.Duration) {
	time.Sleep(d)
}

package clock

import (
	"context"
	"errors"
	"fmt"
	"log"
	"sync"
	"time"

	"github.com/beevik/ntp"
)

// defaultQueryTimeout bounds one server query when ctx has no deadline.
const defaultQueryTimeout = 5 * time.Second

// ErrNoServers is returned by Sync when no NTP server is configured.
var ErrNoServers = errors.New("no NTP servers configured")

// NTPSource keeps a clock offset measured against a list of NTP servers.
// Servers are tried in order; the first valid response wins.
type NTPSource struct {
	mu      sync.RWMutex
	servers []string
	logger  *log.Logger

	offset time.Duration
	synced bool
	server string

	query func(host string, opt ntp.QueryOptions) (*ntp.Response, error)
	now   func() time.Time
}

// NewNTPSource creates an unsynchronized source.
func NewNTPSource(servers []string, logger *log.Logger) *NTPSource {
	return &NTPSource{
		servers: append([]string(nil), servers...),
		logger:  logger,
		query:   ntp.QueryWithOptions,
		now:     time.Now,
	}
}

// Sync queries the servers until one returns a valid response or ctx
// expires. On failure the previous offset is kept.
func (s *NTPSource) Sync(ctx context.Context) error {
	if len(s.servers) == 0 {
		return ErrNoServers
	}

	var errs []error
	for _, server := range s.servers {
		if err := ctx.Err(); err != nil {
			errs = append(errs, err)
			break
		}

		timeout := defaultQueryTimeout
		if deadline, ok := ctx.Deadline(); ok {
			timeout = time.Until(deadline)
		}

		resp, err := s.query(server, ntp.QueryOptions{Timeout: timeout})
		if err == nil {
			err = resp.Validate()
		}
		if err != nil {
			if s.logger != nil {
				s.logger.Printf("[NTP] %s: %v", server, err)
			}
			errs = append(errs, fmt.Errorf("%s: %w", server, err))
			continue
		}

		s.mu.Lock()
		s.offset = resp.ClockOffset
		s.synced = true
		s.server = server
		s.mu.Unlock()

		if s.logger != nil {
			s.logger.Printf("[NTP] Synchronized with %s, offset %v, rtt %v", server, resp.ClockOffset, resp.RTT)
		}
		return nil
	}

	return fmt.Errorf("time sync failed: %w", errors.Join(errs...))
}

// Now returns the corrected wall-clock time, or false before the first
// successful Sync.
func (s *NTPSource) Now() (time.Time, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if !s.synced {
		return time.Time{}, false
	}
	return s.now().Add(s.offset).UTC(), true
}

// Server returns the server of the last successful sync.
func (s *NTPSource) Server() string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.server
}

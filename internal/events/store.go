// Package events keeps a bounded in-memory log of connectivity events.
package events

import (
	"sync"
	"time"
)

// EventType represents the type of connectivity event
type EventType string

const (
	// Network association events
	EventWiFiConnected EventType = "wifi_connected"
	EventWiFiFailed    EventType = "wifi_failed"
	EventWiFiLost      EventType = "wifi_lost"

	// Broker session events
	EventMQTTConnected EventType = "mqtt_connected"
	EventMQTTFailed    EventType = "mqtt_failed"
	EventMQTTOffline   EventType = "mqtt_offline"

	// Time sync events
	EventNTPSynced EventType = "ntp_synced"
	EventNTPFailed EventType = "ntp_failed"

	// Telemetry events
	EventSensorInvalid   EventType = "sensor_invalid"
	EventTelemetryFailed EventType = "telemetry_failed"
)

// Event represents a single connectivity event
type Event struct {
	ID        int64     `json:"id"`
	Type      EventType `json:"type"`
	Timestamp time.Time `json:"timestamp"`
	Success   bool      `json:"success"`
	Details   string    `json:"details,omitempty"`
}

// Sink receives every event added to a Store. Implementations must not
// block for long; Add runs on the agent's control loop.
type Sink interface {
	Append(Event) error
}

// Store holds events in memory with a fixed capacity (ring buffer)
type Store struct {
	mu      sync.RWMutex
	events  []Event
	maxSize int
	nextID  int64
	sink    Sink
	now     func() time.Time
}

// NewStore creates a new event store with specified max capacity
func NewStore(maxSize int) *Store {
	if maxSize <= 0 {
		maxSize = 1
	}
	return &Store{
		events:  make([]Event, 0, maxSize),
		maxSize: maxSize,
		now:     time.Now,
	}
}

// SetSink attaches a persistent journal. Events added before the call are
// not replayed.
func (s *Store) SetSink(sink Sink) {
	s.mu.Lock()
	s.sink = sink
	s.mu.Unlock()
}

// Seed continues numbering after lastID, so IDs stay unique across restarts
// when a journal already holds events.
func (s *Store) Seed(lastID int64) {
	s.mu.Lock()
	if lastID > s.nextID {
		s.nextID = lastID
	}
	s.mu.Unlock()
}

// Add adds a new event to the store and forwards it to the sink, if any.
// The sink error is returned; the in-memory copy is kept regardless.
func (s *Store) Add(eventType EventType, success bool, details string) error {
	s.mu.Lock()
	s.nextID++
	event := Event{
		ID:        s.nextID,
		Type:      eventType,
		Timestamp: s.now(),
		Success:   success,
		Details:   details,
	}

	// Ring buffer: remove oldest if at max capacity
	if len(s.events) >= s.maxSize {
		s.events = s.events[1:]
	}
	s.events = append(s.events, event)
	sink := s.sink
	s.mu.Unlock()

	if sink == nil {
		return nil
	}
	return sink.Append(event)
}

// GetAll returns all events (newest first)
func (s *Store) GetAll() []Event {
	s.mu.RLock()
	defer s.mu.RUnlock()

	result := make([]Event, len(s.events))
	for i, e := range s.events {
		result[len(s.events)-1-i] = e
	}
	return result
}

// GetLast returns the last N events (newest first)
func (s *Store) GetLast(n int) []Event {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if n > len(s.events) {
		n = len(s.events)
	}
	if n < 0 {
		n = 0
	}

	result := make([]Event, n)
	for i := 0; i < n; i++ {
		result[i] = s.events[len(s.events)-1-i]
	}
	return result
}

// GetSince returns events newer than the given ID (newest first)
func (s *Store) GetSince(lastID int64) []Event {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var result []Event
	for i := len(s.events) - 1; i >= 0; i-- {
		if s.events[i].ID > lastID {
			result = append(result, s.events[i])
		} else {
			break
		}
	}
	return result
}

// Count returns the number of events held in memory
func (s *Store) Count() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.events)
}

// LastID returns the ID of the most recent event
func (s *Store) LastID() int64 {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.nextID
}

package events

import (
	"errors"
	"testing"
	"time"
)

type recordingSink struct {
	events []Event
	err    error
}

func (r *recordingSink) Append(e Event) error {
	r.events = append(r.events, e)
	return r.err
}

func TestStoreRingBuffer(t *testing.T) {
	s := NewStore(3)
	for i := 0; i < 5; i++ {
		s.Add(EventWiFiFailed, false, "attempt")
	}

	if s.Count() != 3 {
		t.Fatalf("Count() = %d; want 3", s.Count())
	}
	if s.LastID() != 5 {
		t.Errorf("LastID() = %d; want 5", s.LastID())
	}

	all := s.GetAll()
	want := []int64{5, 4, 3}
	for i, e := range all {
		if e.ID != want[i] {
			t.Errorf("GetAll()[%d].ID = %d; want %d", i, e.ID, want[i])
		}
	}
}

func TestStoreGetLastAndSince(t *testing.T) {
	s := NewStore(10)
	s.Add(EventWiFiConnected, true, "")
	s.Add(EventMQTTConnected, true, "")
	s.Add(EventTelemetryFailed, true, "")

	tests := []struct {
		name string
		got  []Event
		want []EventType
	}{
		{"last 2", s.GetLast(2), []EventType{EventTelemetryFailed, EventMQTTConnected}},
		{"last more than held", s.GetLast(10), []EventType{EventTelemetryFailed, EventMQTTConnected, EventWiFiConnected}},
		{"since 1", s.GetSince(1), []EventType{EventTelemetryFailed, EventMQTTConnected}},
		{"since last", s.GetSince(3), nil},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if len(tt.got) != len(tt.want) {
				t.Fatalf("got %d events; want %d", len(tt.got), len(tt.want))
			}
			for i := range tt.want {
				if tt.got[i].Type != tt.want[i] {
					t.Errorf("[%d].Type = %s; want %s", i, tt.got[i].Type, tt.want[i])
				}
			}
		})
	}
}

func TestStoreSink(t *testing.T) {
	s := NewStore(2)
	fixed := time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)
	s.now = func() time.Time { return fixed }

	sink := &recordingSink{}
	s.SetSink(sink)
	s.Seed(41)

	if err := s.Add(EventNTPSynced, true, "pool.ntp.org"); err != nil {
		t.Fatalf("Add returned %v", err)
	}
	if len(sink.events) != 1 {
		t.Fatalf("sink got %d events; want 1", len(sink.events))
	}
	got := sink.events[0]
	if got.ID != 42 || got.Type != EventNTPSynced || !got.Timestamp.Equal(fixed) || got.Details != "pool.ntp.org" {
		t.Errorf("sink event = %+v", got)
	}

	sink.err = errors.New("disk full")
	if err := s.Add(EventNTPFailed, false, ""); err == nil {
		t.Error("expected sink error to be returned")
	}
	if s.Count() != 2 {
		t.Errorf("event should be kept in memory when the sink fails")
	}
}

package api

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"

	"siapsuhu/internal/agent"
	"siapsuhu/internal/events"
	"siapsuhu/internal/storage"
)

type staticStatus struct {
	st agent.Status
}

func (s staticStatus) Status() agent.Status { return s.st }

func newTestServer(t *testing.T, journal storage.Journal) (*Server, *events.Store) {
	t.Helper()
	store := events.NewStore(10)
	status := staticStatus{st: agent.Status{
		DeviceID: "24A160C3F1E8",
		Network:  agent.Connected,
		Session:  agent.Connecting,
		Counters: agent.Counters{Published: 7},
	}}
	return NewServer(status, store, journal, "siap-suhu-1.0.0", nil), store
}

func get(t *testing.T, s *Server, path string) (*httptest.ResponseRecorder, map[string]interface{}) {
	t.Helper()
	req := httptest.NewRequest(http.MethodGet, path, nil)
	rec := httptest.NewRecorder()
	s.Router().ServeHTTP(rec, req)

	var body map[string]interface{}
	if err := json.Unmarshal(rec.Body.Bytes(), &body); err != nil {
		t.Fatalf("%s: invalid JSON %q: %v", path, rec.Body.String(), err)
	}
	return rec, body
}

func TestHealth(t *testing.T) {
	s, _ := newTestServer(t, nil)
	rec, body := get(t, s, "/health")

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d", rec.Code)
	}
	if body["version"] != "siap-suhu-1.0.0" {
		t.Errorf("version = %v", body["version"])
	}
	if body["online"] != false {
		t.Errorf("online = %v; want false while the session is connecting", body["online"])
	}
}

func TestStatus(t *testing.T) {
	s, _ := newTestServer(t, nil)
	_, body := get(t, s, "/api/status")

	if body["deviceId"] != "24A160C3F1E8" || body["network"] != "connected" || body["session"] != "connecting" {
		t.Errorf("status body = %v", body)
	}
	counters, _ := body["counters"].(map[string]interface{})
	if counters["published"] != float64(7) {
		t.Errorf("counters = %v", counters)
	}
}

func TestEventsList(t *testing.T) {
	s, store := newTestServer(t, nil)
	store.Add(events.EventWiFiConnected, true, "192.168.1.20")
	store.Add(events.EventMQTTFailed, false, "code 5")
	store.Add(events.EventMQTTConnected, true, "")

	tests := []struct {
		path string
		want int
	}{
		{"/api/events", 3},
		{"/api/events?limit=1", 1},
		{"/api/events?limit=0", 3}, // invalid limit falls back to default
		{"/api/events?since=1", 2},
		{"/api/events?since=3", 0},
		{"/api/events?since=x", 3}, // unparsable since falls back to the latest events
		{"/api/events?all=true", 3},
	}

	for _, tt := range tests {
		t.Run(tt.path, func(t *testing.T) {
			_, body := get(t, s, tt.path)
			list, ok := body["events"].([]interface{})
			if !ok {
				t.Fatalf("events = %v", body["events"])
			}
			if len(list) != tt.want {
				t.Errorf("got %d events; want %d", len(list), tt.want)
			}
			if body["lastId"] != float64(3) {
				t.Errorf("lastId = %v", body["lastId"])
			}
			if body["count"] != float64(3) {
				t.Errorf("count = %v; want 3", body["count"])
			}
		})
	}
}

func TestJournalEndpoint(t *testing.T) {
	s, _ := newTestServer(t, nil)
	rec, _ := get(t, s, "/api/journal")
	if rec.Code != http.StatusNotFound {
		t.Errorf("disabled journal status = %d; want 404", rec.Code)
	}

	journal, err := storage.NewBoltJournal(filepath.Join(t.TempDir(), "diag.db"), 10)
	if err != nil {
		t.Fatal(err)
	}
	defer journal.Close()

	s, store := newTestServer(t, journal)
	store.SetSink(journal)
	store.Add(events.EventNTPSynced, true, "")

	rec, body := get(t, s, "/api/journal?limit=5")
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d", rec.Code)
	}
	list, _ := body["events"].([]interface{})
	if len(list) != 1 {
		t.Errorf("journal events = %v", body["events"])
	}
}

func TestEventsStream(t *testing.T) {
	s, store := newTestServer(t, nil)
	store.Add(events.EventWiFiConnected, true, "")

	srv := httptest.NewServer(s.Router())
	defer srv.Close()

	url := "ws" + strings.TrimPrefix(srv.URL, "http") + "/api/events/ws?since=0"
	ws, _, err := websocket.DefaultDialer.Dial(url, nil)
	if err != nil {
		t.Fatalf("dial failed: %v", err)
	}
	defer ws.Close()

	read := func() events.Event {
		t.Helper()
		ws.SetReadDeadline(time.Now().Add(3 * time.Second))
		var e events.Event
		if err := ws.ReadJSON(&e); err != nil {
			t.Fatalf("read failed: %v", err)
		}
		return e
	}

	if e := read(); e.Type != events.EventWiFiConnected {
		t.Errorf("backlog event = %+v", e)
	}

	store.Add(events.EventMQTTConnected, true, "")
	if e := read(); e.Type != events.EventMQTTConnected || e.ID != 2 {
		t.Errorf("live event = %+v", e)
	}
}

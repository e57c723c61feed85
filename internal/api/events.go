package api

import (
	"context"
	"log"
	"net/http"
	"strconv"
	"time"

	"github.com/gorilla/websocket"

	"siapsuhu/internal/events"
	"siapsuhu/internal/storage"
)

// EventsHandler handles event log endpoints
type EventsHandler struct {
	store    *events.Store
	journal  storage.Journal
	logger   *log.Logger
	pollRate time.Duration
	upgrader websocket.Upgrader
}

// NewEventsHandler creates new events handler
func NewEventsHandler(store *events.Store, journal storage.Journal, logger *log.Logger, pollRate time.Duration) *EventsHandler {
	return &EventsHandler{
		store:    store,
		journal:  journal,
		logger:   logger,
		pollRate: pollRate,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
		},
	}
}

// List returns events from the in-memory store, newest first
// GET /api/events?limit=50&since=123&all=true
func (h *EventsHandler) List(w http.ResponseWriter, r *http.Request) {
	query := r.URL.Query()
	sinceID, sinceErr := strconv.ParseInt(query.Get("since"), 10, 64)

	var eventList []events.Event
	switch {
	case sinceErr == nil:
		eventList = h.store.GetSince(sinceID)
	case query.Get("all") == "true":
		eventList = h.store.GetAll()
	default:
		eventList = h.store.GetLast(parseLimit(r))
	}

	writeJSON(w, http.StatusOK, map[string]interface{}{
		"events": nonNil(eventList),
		"count":  h.store.Count(),
		"lastId": h.store.LastID(),
	})
}

// Journal returns events persisted across restarts
// GET /api/journal?limit=50
func (h *EventsHandler) Journal(w http.ResponseWriter, r *http.Request) {
	if h.journal == nil {
		writeJSON(w, http.StatusNotFound, map[string]string{"error": "Diagnostic journal is disabled"})
		return
	}

	eventList, err := h.journal.Recent(parseLimit(r))
	if err != nil {
		h.logf("[API] Failed to read journal: %v", err)
		writeJSON(w, http.StatusInternalServerError, map[string]string{"error": "Failed to read journal"})
		return
	}

	writeJSON(w, http.StatusOK, map[string]interface{}{
		"events": nonNil(eventList),
	})
}

// Stream pushes new events over a WebSocket as they are recorded. The
// client may pass since=<id> to resume.
// GET /api/events/ws?since=123
func (h *EventsHandler) Stream(w http.ResponseWriter, r *http.Request) {
	lastID := h.store.LastID()
	if sinceStr := r.URL.Query().Get("since"); sinceStr != "" {
		if id, err := strconv.ParseInt(sinceStr, 10, 64); err == nil {
			lastID = id
		}
	}

	ws, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.logf("[API] WebSocket upgrade failed: %v", err)
		return
	}
	defer ws.Close()

	ctx, cancel := context.WithCancel(r.Context())
	defer cancel()

	// Drain client frames so close messages are noticed
	go func() {
		defer cancel()
		for {
			if _, _, err := ws.ReadMessage(); err != nil {
				if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
					h.logf("[API] WebSocket read error: %v", err)
				}
				return
			}
		}
	}()

	ticker := time.NewTicker(h.pollRate)
	defer ticker.Stop()

	for {
		// GetSince is newest first; send oldest first
		pending := h.store.GetSince(lastID)
		for i := len(pending) - 1; i >= 0; i-- {
			ws.SetWriteDeadline(time.Now().Add(5 * time.Second))
			if err := ws.WriteJSON(pending[i]); err != nil {
				h.logf("[API] WebSocket write error: %v", err)
				return
			}
			lastID = pending[i].ID
		}

		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}
	}
}

func (h *EventsHandler) logf(format string, args ...interface{}) {
	if h.logger != nil {
		h.logger.Printf(format, args...)
	}
}

// nonNil makes empty results encode as [] instead of null
func nonNil(list []events.Event) []events.Event {
	if list == nil {
		return []events.Event{}
	}
	return list
}

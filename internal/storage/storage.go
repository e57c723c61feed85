// Package storage persists the diagnostic event journal.
package storage

import (
	"encoding/binary"
	"errors"

	"siapsuhu/internal/events"
)

// ErrClosed is returned when the journal is used after Close
var ErrClosed = errors.New("journal is closed")

// Journal is an append-only, size-bounded event log that survives restarts.
// It holds diagnostics only; the agent never reads its own state back.
type Journal interface {
	// Append stores an event, dropping the oldest beyond the size bound
	Append(e events.Event) error

	// Recent returns up to limit events, newest first
	Recent(limit int) ([]events.Event, error)

	// LastID returns the highest stored event ID, 0 when empty
	LastID() (int64, error)

	// Trim keeps only the newest maxEvents events
	Trim(maxEvents int) error

	// Close closes the journal
	Close() error
}

// idKey encodes an event ID so keys sort in ID order.
func idKey(id int64) []byte {
	key := make([]byte, 8)
	binary.BigEndian.PutUint64(key, uint64(id))
	return key
}

func keyID(key []byte) int64 {
	return int64(binary.BigEndian.Uint64(key))
}

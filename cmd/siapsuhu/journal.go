package main

import (
	"log"

	"siapsuhu/internal/events"
	"siapsuhu/internal/storage"
)

// attachJournal opens the bbolt journal at path and makes it the sink of
// store, continuing event IDs from what is already on disk.
func attachJournal(store *events.Store, path string, maxEvents int, logger *log.Logger) (*storage.BoltJournal, error) {
	j, err := storage.NewBoltJournal(path, maxEvents)
	if err != nil {
		return nil, err
	}

	lastID, err := j.LastID()
	if err != nil {
		logger.Printf("[Journal] Failed to read last event ID: %v", err)
	}
	store.Seed(lastID)
	store.SetSink(j)

	logger.Printf("[Journal] Recording to %s (max %d events)", path, maxEvents)
	return j, nil
}

// closeJournal flushes and closes the journal, logging a failure.
func closeJournal(j *storage.BoltJournal, logger *log.Logger) {
	if err := j.Close(); err != nil {
		logger.Printf("[Journal] Failed to close: %v", err)
	}
}

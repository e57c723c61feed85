package storage

import (
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"go.etcd.io/bbolt"

	"siapsuhu/internal/events"
)

// eventsBucket stores events keyed by big-endian ID
const eventsBucket = "_events"

// BoltJournal is a bbolt implementation of the Journal interface
type BoltJournal struct {
	mu        sync.Mutex
	db        *bbolt.DB
	maxEvents int
	count     int
}

// NewBoltJournal opens the journal at path, keeping at most maxEvents.
// The database file will be created if it doesn't exist.
func NewBoltJournal(path string, maxEvents int) (*BoltJournal, error) {
	if maxEvents <= 0 {
		return nil, fmt.Errorf("maxEvents must be positive, got %d", maxEvents)
	}

	db, err := bbolt.Open(path, 0600, &bbolt.Options{
		Timeout: 1 * time.Second,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to open bolt database: %w", err)
	}

	var count int
	err = db.Update(func(tx *bbolt.Tx) error {
		bucket, err := tx.CreateBucketIfNotExists([]byte(eventsBucket))
		if err != nil {
			return fmt.Errorf("failed to create events bucket: %w", err)
		}
		count = bucket.Stats().KeyN
		return nil
	})
	if err != nil {
		db.Close()
		return nil, err
	}

	j := &BoltJournal{db: db, maxEvents: maxEvents, count: count}

	// The bound may have shrunk since the file was written
	if err := j.Trim(maxEvents); err != nil {
		db.Close()
		return nil, err
	}
	return j, nil
}

// Append stores e under its ID and trims the oldest events.
func (j *BoltJournal) Append(e events.Event) error {
	j.mu.Lock()
	defer j.mu.Unlock()

	if j.db == nil {
		return ErrClosed
	}

	data, err := json.Marshal(e)
	if err != nil {
		return fmt.Errorf("failed to marshal event: %w", err)
	}

	count := j.count
	err = j.db.Update(func(tx *bbolt.Tx) error {
		bucket := tx.Bucket([]byte(eventsBucket))
		if bucket == nil {
			return fmt.Errorf("events bucket not found")
		}

		key := idKey(e.ID)
		if bucket.Get(key) == nil {
			count++
		}
		if err := bucket.Put(key, data); err != nil {
			return err
		}

		var trimErr error
		count, trimErr = trimTx(bucket, count, j.maxEvents)
		return trimErr
	})
	if err != nil {
		return err
	}

	j.count = count
	return nil
}

// Recent returns up to limit events, newest first.
func (j *BoltJournal) Recent(limit int) ([]events.Event, error) {
	j.mu.Lock()
	defer j.mu.Unlock()

	if j.db == nil {
		return nil, ErrClosed
	}

	var result []events.Event
	err := j.db.View(func(tx *bbolt.Tx) error {
		bucket := tx.Bucket([]byte(eventsBucket))
		if bucket == nil {
			return fmt.Errorf("events bucket not found")
		}

		cursor := bucket.Cursor()
		for k, v := cursor.Last(); k != nil && len(result) < limit; k, v = cursor.Prev() {
			var e events.Event
			if err := json.Unmarshal(v, &e); err != nil {
				continue // Skip corrupted entries
			}
			result = append(result, e)
		}
		return nil
	})

	return result, err
}

// LastID returns the highest stored event ID, 0 when empty.
func (j *BoltJournal) LastID() (int64, error) {
	j.mu.Lock()
	defer j.mu.Unlock()

	if j.db == nil {
		return 0, ErrClosed
	}

	var id int64
	err := j.db.View(func(tx *bbolt.Tx) error {
		bucket := tx.Bucket([]byte(eventsBucket))
		if bucket == nil {
			return fmt.Errorf("events bucket not found")
		}

		if k, _ := bucket.Cursor().Last(); k != nil {
			id = keyID(k)
		}
		return nil
	})

	return id, err
}

// Trim keeps only the newest maxEvents events.
func (j *BoltJournal) Trim(maxEvents int) error {
	j.mu.Lock()
	defer j.mu.Unlock()

	if j.db == nil {
		return ErrClosed
	}

	count := j.count
	err := j.db.Update(func(tx *bbolt.Tx) error {
		bucket := tx.Bucket([]byte(eventsBucket))
		if bucket == nil {
			return fmt.Errorf("events bucket not found")
		}

		var err error
		count, err = trimTx(bucket, count, maxEvents)
		return err
	})
	if err != nil {
		return err
	}

	j.count = count
	return nil
}

// trimTx deletes the oldest entries beyond maxEvents. Keys are collected
// first because deleting under a live cursor skips entries.
func trimTx(bucket *bbolt.Bucket, count, maxEvents int) (int, error) {
	if count <= maxEvents {
		return count, nil
	}

	toDelete := count - maxEvents
	keys := make([][]byte, 0, toDelete)
	cursor := bucket.Cursor()
	for k, _ := cursor.First(); k != nil && len(keys) < toDelete; k, _ = cursor.Next() {
		keys = append(keys, append([]byte(nil), k...))
	}

	for _, k := range keys {
		if err := bucket.Delete(k); err != nil {
			return count, fmt.Errorf("failed to delete old event: %w", err)
		}
		count--
	}
	return count, nil
}

// Close closes the journal
func (j *BoltJournal) Close() error {
	j.mu.Lock()
	defer j.mu.Unlock()

	if j.db == nil {
		return nil
	}
	err := j.db.Close()
	j.db = nil
	return err
}

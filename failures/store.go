// Package failures keeps an audit record of every failed transcode so that
// operators can inspect the exit code and the last encoder diagnostics
// after the task status has expired.
package failures

import (
	"encoding/json"
	"fmt"
	"sort"
	"time"

	"mediaforge/kvstore"
)

const keyPrefix = "failure/"

// FailureRecord represents a processing failure
type FailureRecord struct {
	TaskID     string    `json:"task_id"`
	URN        string    `json:"urn,omitempty"`
	ExitCode   int       `json:"exit_code"`
	Error      string    `json:"error"`
	StderrTail []string  `json:"stderr_tail,omitempty"`
	Timestamp  time.Time `json:"timestamp"`
}

// Store is a pebble-backed failure store.
type Store struct {
	db *kvstore.DB
}

// Open opens the failure store at dbPath.
func Open(dbPath string) (*Store, error) {
	db, err := kvstore.Open(dbPath)
	if err != nil {
		return nil, fmt.Errorf("failed to open failure store: %w", err)
	}
	return &Store{db: db}, nil
}

// Close closes the failure store
func (s *Store) Close() error {
	return s.db.Close()
}

// StoreFailure stores a processing failure keyed by task id.
func (s *Store) StoreFailure(record FailureRecord) error {
	if record.TaskID == "" {
		return fmt.Errorf("failure record needs a task id")
	}
	if record.Timestamp.IsZero() {
		record.Timestamp = time.Now().UTC()
	}
	return s.db.PutJSON(keyPrefix+record.TaskID, record)
}

// GetFailure retrieves a failure record by task id. It returns nil, nil
// when no failure is recorded.
func (s *Store) GetFailure(taskID string) (*FailureRecord, error) {
	var record FailureRecord
	found, err := s.db.GetJSON(keyPrefix+taskID, &record)
	if err != nil {
		return nil, fmt.Errorf("failed to get failure: %w", err)
	}
	if !found {
		return nil, nil
	}
	return &record, nil
}

// DeleteFailure removes a failure record
func (s *Store) DeleteFailure(taskID string) error {
	return s.db.Delete(keyPrefix + taskID)
}

// ListFailures returns all failure records, newest first.
func (s *Store) ListFailures() ([]FailureRecord, error) {
	var records []FailureRecord
	err := s.db.Scan(keyPrefix, func(_ string, value []byte) error {
		var record FailureRecord
		if err := json.Unmarshal(value, &record); err != nil {
			return nil // Skip invalid records
		}
		records = append(records, record)
		return nil
	})
	if err != nil {
		return nil, err
	}
	sort.Slice(records, func(i, j int) bool {
		return records[i].Timestamp.After(records[j].Timestamp)
	})
	return records, nil
}

// Prune deletes records older than maxAge and returns how many were removed.
func (s *Store) Prune(maxAge time.Duration) (int, error) {
	records, err := s.ListFailures()
	if err != nil {
		return 0, err
	}
	cutoff := time.Now().Add(-maxAge)
	removed := 0
	for _, r := range records {
		if r.Timestamp.Before(cutoff) {
			if err := s.DeleteFailure(r.TaskID); err != nil {
				return removed, err
			}
			removed++
		}
	}
	return removed, nil
}

// CheckHealth verifies the underlying database is readable.
func (s *Store) CheckHealth() error {
	return s.db.CheckHealth()
}

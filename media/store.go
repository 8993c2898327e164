// Package media persists media records. Once a transcode starts, the
// supervisor is the only writer of a record's status.
package media

import (
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"time"

	"mediaforge/kvstore"
	"mediaforge/logger"
	"mediaforge/models"
)

const keyPrefix = "media/"

var ErrNotFound = errors.New("media record not found")

// Store is a pebble-backed media record store.
type Store struct {
	db *kvstore.DB
}

// Open opens the media store at dbPath.
func Open(dbPath string) (*Store, error) {
	db, err := kvstore.Open(dbPath)
	if err != nil {
		logger.Errorf("Failed to open media DB: %v", err)
		return nil, err
	}
	return &Store{db: db}, nil
}

// Close closes the DB
func (s *Store) Close() error {
	return s.db.Close()
}

// Save inserts or replaces rec.
func (s *Store) Save(rec *models.MediaRecord) error {
	if rec.URN == "" {
		return fmt.Errorf("media record needs a urn")
	}
	if !rec.Status.Valid() {
		return fmt.Errorf("invalid media status %q", rec.Status)
	}
	if rec.CreatedAt.IsZero() {
		rec.CreatedAt = time.Now().UTC()
	}
	rec.UpdatedAt = time.Now().UTC()
	return s.db.PutJSON(keyPrefix+rec.URN, rec)
}

// Get returns the record for urn, or ErrNotFound.
func (s *Store) Get(urn string) (*models.MediaRecord, error) {
	var rec models.MediaRecord
	found, err := s.db.GetJSON(keyPrefix+urn, &rec)
	if err != nil {
		return nil, err
	}
	if !found {
		return nil, fmt.Errorf("%w: %s", ErrNotFound, urn)
	}
	return &rec, nil
}

// SetStatus updates the status of urn.
func (s *Store) SetStatus(urn string, status models.MediaStatus) error {
	rec, err := s.Get(urn)
	if err != nil {
		return err
	}
	rec.Status = status
	if err := s.Save(rec); err != nil {
		return err
	}
	logger.Debugf("media %s status -> %s", urn, status)
	return nil
}

// Delete removes urn. Deleting a missing record is not an error.
func (s *Store) Delete(urn string) error {
	return s.db.Delete(keyPrefix + urn)
}

// List returns every record ordered by creation time.
func (s *Store) List() ([]models.MediaRecord, error) {
	var records []models.MediaRecord
	err := s.db.Scan(keyPrefix, func(key string, value []byte) error {
		var rec models.MediaRecord
		if err := json.Unmarshal(value, &rec); err != nil {
			logger.Warnf("skipping unreadable media record %s: %v", key, err)
			return nil
		}
		records = append(records, rec)
		return nil
	})
	if err != nil {
		return nil, err
	}
	sort.Slice(records, func(i, j int) bool {
		return records[i].CreatedAt.Before(records[j].CreatedAt)
	})
	return records, nil
}

// Children returns the records derived from parent.
func (s *Store) Children(parent string) ([]models.MediaRecord, error) {
	all, err := s.List()
	if err != nil {
		return nil, err
	}
	var children []models.MediaRecord
	for _, rec := range all {
		if rec.Parent == parent {
			children = append(children, rec)
		}
	}
	return children, nil
}

// CheckHealth verifies the underlying database is readable.
func (s *Store) CheckHealth() error {
	return s.db.CheckHealth()
}

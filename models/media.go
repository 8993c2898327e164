package models

import (
	"time"

	"github.com/google/uuid"
)

// MediaStatus is the lifecycle status of a media record.
type MediaStatus string

const (
	StatusReady       MediaStatus = "ready"
	StatusTranscoding MediaStatus = "transcoding"
	StatusFailed      MediaStatus = "failed"
)

// Valid reports whether s is one of the known statuses.
func (s MediaStatus) Valid() bool {
	switch s {
	case StatusReady, StatusTranscoding, StatusFailed:
		return true
	}
	return false
}

// Terminal reports whether s ends a transcode.
func (s MediaStatus) Terminal() bool {
	return s == StatusReady || s == StatusFailed
}

// MediaRecord is a media file known to the system. PrivateLocator may use
// any registered volume scheme; PublicURL is set by a separate publish step.
// Responses must pass PrivateLocator through locator.Redact.
type MediaRecord struct {
	URN            string      `json:"urn"`
	PrivateLocator string      `json:"private_locator"`
	PublicURL      string      `json:"public_url,omitempty"`
	PublishedName  string      `json:"published_name,omitempty"` // copy under the publish volume, if any
	MediaType      string      `json:"media_type,omitempty"`
	Status         MediaStatus `json:"status"`
	Parent         string      `json:"parent,omitempty"` // urn of the source media, by id only
	CreatedAt      time.Time   `json:"created_at"`
	UpdatedAt      time.Time   `json:"updated_at"`
}

// NewMediaRecord returns a record with a fresh urn:uuid identifier.
func NewMediaRecord(privateLocator, mediaType string, status MediaStatus) *MediaRecord {
	now := time.Now().UTC()
	return &MediaRecord{
		URN:            uuid.New().URN(),
		PrivateLocator: privateLocator,
		MediaType:      mediaType,
		Status:         status,
		CreatedAt:      now,
		UpdatedAt:      now,
	}
}

// Package taskstatus publishes transcode progress for external pollers.
// Each task id has exactly one writer (its supervisor) and any number of
// readers; entries expire after a TTL.
package taskstatus

import (
	"context"

	"mediaforge/models"
)

// Reader is the read-only view handed to pollers.
type Reader interface {
	Get(ctx context.Context, id string) (models.TaskStatus, bool, error)
}

// Store is the read-write view owned by supervisors.
type Store interface {
	Reader
	Set(ctx context.Context, id string, status models.TaskStatus) error
}

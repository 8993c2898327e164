// Package job turns transcode requests into encoder tasks. It owns the
// media records on both sides of a transcode: the input is looked up (or
// registered), the output is created in status transcoding with the input
// as its parent, and the encoder finalizes it.
package job

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"mediaforge/encoder"
	"mediaforge/logger"
	"mediaforge/media"
	"mediaforge/models"
	"mediaforge/taskqueue"
	"mediaforge/taskstatus"
	"mediaforge/volumes"
)

// ErrInvalidRequest is returned for requests missing an input or output.
var ErrInvalidRequest = errors.New("invalid transcode request")

// Submission is the result of a successful Submit.
type Submission struct {
	Task   *encoder.Task
	Input  *models.MediaRecord
	Output *models.MediaRecord
}

// Service submits transcodes and answers task queries.
type Service struct {
	media    *media.Store
	encoders *encoder.Registry
	selector *volumes.Selector
	status   taskstatus.Reader
	pool     *taskqueue.Pool
}

// NewService wires a Service. status and pool may be nil when the caller
// only submits.
func NewService(store *media.Store, encoders *encoder.Registry, selector *volumes.Selector, status taskstatus.Reader, pool *taskqueue.Pool) *Service {
	return &Service{media: store, encoders: encoders, selector: selector, status: status, pool: pool}
}

// Submit validates req and hands it to the selected encoder. Errors from
// locator parsing, scheme lookup, probing and queue admission are returned
// synchronously; the output record is then marked failed.
func (s *Service) Submit(ctx context.Context, req models.TranscodeRequest) (*Submission, error) {
	if strings.TrimSpace(req.Input) == "" || strings.TrimSpace(req.Output) == "" {
		return nil, fmt.Errorf("%w: input and output are required", ErrInvalidRequest)
	}

	enc, err := s.encoders.Get(req.Encoder)
	if err != nil {
		return nil, err
	}
	in, err := s.input(req.Input)
	if err != nil {
		return nil, err
	}
	if _, _, err := s.selector.Resolve(req.Output); err != nil {
		return nil, err
	}

	out := models.NewMediaRecord(req.Output, req.MediaType, models.StatusTranscoding)
	if out.MediaType == "" {
		out.MediaType = in.MediaType
	}
	out.Parent = in.URN
	if err := s.media.Save(out); err != nil {
		return nil, fmt.Errorf("saving output record: %w", err)
	}

	task, err := enc.Transcode(ctx, in, out, req.Args)
	if err != nil {
		if serr := s.media.SetStatus(out.URN, models.StatusFailed); serr != nil {
			logger.Errorf("Failed to mark output %s failed: %v", out.URN, serr)
		}
		return nil, err
	}

	logger.Infof("Submitted %s task %s for %s (parent %s)", enc.Name(), task.ID, out.URN, in.URN)
	return &Submission{Task: task, Input: in, Output: out}, nil
}

// input returns the record named by ref, registering a new ready record
// when ref is a locator rather than a urn.
func (s *Service) input(ref string) (*models.MediaRecord, error) {
	if strings.HasPrefix(ref, "urn:") {
		rec, err := s.media.Get(ref)
		if err != nil {
			return nil, fmt.Errorf("input %s: %w", ref, err)
		}
		return rec, nil
	}

	if _, _, err := s.selector.Resolve(ref); err != nil {
		return nil, err
	}
	rec := models.NewMediaRecord(ref, "", models.StatusReady)
	if err := s.media.Save(rec); err != nil {
		return nil, fmt.Errorf("saving input record: %w", err)
	}
	return rec, nil
}

// Status returns the published status of task id.
func (s *Service) Status(ctx context.Context, id string) (models.TaskStatus, bool, error) {
	if s.status == nil {
		return models.TaskStatus{}, false, nil
	}
	return s.status.Get(ctx, id)
}

// Cancel cancels a task that has not started yet.
func (s *Service) Cancel(id string) error {
	if s.pool == nil {
		return fmt.Errorf("%w: %s", taskqueue.ErrJobNotFound, id)
	}
	return s.pool.Cancel(id)
}

// Stats returns the number of running and waiting transcodes.
func (s *Service) Stats() (running, queued int) {
	if s.pool == nil {
		return 0, 0
	}
	return s.pool.Stats()
}

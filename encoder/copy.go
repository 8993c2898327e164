package encoder

import (
	"context"
	"fmt"

	"github.com/google/uuid"

	"mediaforge/logger"
	"mediaforge/models"
)

// Copy copies the input media to the output without any encoding. It runs
// synchronously: the returned task has already finished.
type Copy struct {
	env Env
}

// NewCopy returns the copy encoder.
func NewCopy(env Env) *Copy {
	return &Copy{env: env}
}

func (c *Copy) Name() string { return "copy" }

// Transcode implements Encoder. args are ignored.
func (c *Copy) Transcode(ctx context.Context, in, out *models.MediaRecord, _ string) (task *Task, err error) {
	inDriver, inLoc, err := c.env.Selector.Resolve(in.PrivateLocator)
	if err != nil {
		return nil, err
	}
	outDriver, outLoc, err := c.env.Selector.Resolve(out.PrivateLocator)
	if err != nil {
		return nil, err
	}

	task = newTask(fmt.Sprintf("task_%s_%s", c.Name(), uuid.NewString()))
	fin := &finalizer{env: c.env, task: task, urn: out.URN}
	defer func() {
		if r := recover(); r != nil {
			fin.recovered(r, nil)
			err = nil
		}
	}()
	if c.env.Status != nil {
		if err := c.env.Status.Set(ctx, task.ID, models.TaskStatus{}); err != nil {
			return nil, fmt.Errorf("publishing task status: %w", err)
		}
	}

	src, err := inDriver.Open(ctx, inLoc)
	if err != nil {
		fin.finish(-1, fmt.Errorf("opening %s: %w", inLoc.Redacted(), err), nil)
		return task, nil
	}
	defer src.Close()

	if err := outDriver.Save(ctx, outLoc, src); err != nil {
		fin.finish(-1, fmt.Errorf("saving %s: %w", outLoc.Redacted(), err), nil)
		return task, nil
	}

	logger.Debugf("copied original file from %s to %s", inLoc.Redacted(), outLoc.Redacted())
	fin.finish(0, nil, nil)
	return task, nil
}

package encoder

import (
	"context"
	"fmt"

	"github.com/google/shlex"
	"github.com/google/uuid"

	"mediaforge/logger"
	"mediaforge/models"
	"mediaforge/volumes"
)

// FFmpeg transcodes with the ffmpeg binary. Transcode probes the input
// synchronously, then hands the encode to the worker pool and returns
// immediately; progress is published to the task status store.
type FFmpeg struct {
	env    Env
	binary string
	probe  string
}

// NewFFmpeg returns an ffmpeg encoder using the given binaries.
func NewFFmpeg(env Env, binary, probe string) *FFmpeg {
	return &FFmpeg{env: env, binary: binary, probe: probe}
}

func (f *FFmpeg) Name() string { return "ffmpeg" }

// Command returns the argv used to encode input into output.
func (f *FFmpeg) Command(input, output, args string) ([]string, error) {
	extra, err := shlex.Split(args)
	if err != nil {
		return nil, fmt.Errorf("parsing encoder arguments: %w", err)
	}
	argv := []string{f.binary, "-y", "-i", input}
	argv = append(argv, extra...)
	return append(argv, output), nil
}

// Transcode implements Encoder.
func (f *FFmpeg) Transcode(ctx context.Context, in, out *models.MediaRecord, args string) (*Task, error) {
	inDriver, inLoc, err := f.env.Selector.Resolve(in.PrivateLocator)
	if err != nil {
		return nil, err
	}
	outDriver, outLoc, err := f.env.Selector.Resolve(out.PrivateLocator)
	if err != nil {
		return nil, err
	}

	inputPath, cleanupInput, err := volumes.LocalPath(ctx, inDriver, inLoc, f.env.TempDir)
	if err != nil {
		return nil, fmt.Errorf("resolving input %s: %w", inLoc.Redacted(), err)
	}
	output, err := volumes.LocalOutput(outDriver, outLoc, f.env.TempDir)
	if err != nil {
		cleanupInput()
		return nil, fmt.Errorf("resolving output %s: %w", outLoc.Redacted(), err)
	}
	release := func() {
		cleanupInput()
		output.Cleanup()
	}

	info, err := Probe(ctx, f.probe, inputPath)
	if err != nil {
		release()
		return nil, err
	}

	argv, err := f.Command(inputPath, output.Path, args)
	if err != nil {
		release()
		return nil, err
	}

	task := newTask(fmt.Sprintf("task_%s_%s", f.Name(), uuid.NewString()))
	sup := &supervisor{
		finalizer: &finalizer{
			env:     f.env,
			task:    task,
			urn:     out.URN,
			commit:  output.Commit,
			cleanup: []func(){release},
		},
		name:     argv[0],
		args:     argv[1:],
		duration: info.DurationSeconds(),
	}

	if err := f.env.Status.Set(ctx, task.ID, models.TaskStatus{}); err != nil {
		release()
		return nil, fmt.Errorf("publishing task status: %w", err)
	}
	if err := f.env.Pool.Submit(sup.job()); err != nil {
		release()
		return nil, err
	}

	logger.Infof("queued ffmpeg job [%s]: %s -> %s", task.ID, inLoc.Redacted(), outLoc.Redacted())
	return task, nil
}

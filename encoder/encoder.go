// Package encoder converts media between volumes. Encoders resolve local
// paths for their input and output, then run (or supervise) the conversion
// and finalize the output record exactly once.
package encoder

import (
	"context"
	"os/exec"
	"sort"
	"sync"
	"time"

	"mediaforge/failures"
	"mediaforge/logger"
	"mediaforge/models"
	"mediaforge/taskqueue"
	"mediaforge/taskstatus"
	"mediaforge/volumes"
)

// Encoder transcodes the media behind in into the media behind out. args
// are encoder-specific options.
type Encoder interface {
	Name() string
	Transcode(ctx context.Context, in, out *models.MediaRecord, args string) (*Task, error)
}

// StatusWriter records the terminal status of an output media record.
type StatusWriter interface {
	SetStatus(urn string, status models.MediaStatus) error
}

// FailureRecorder keeps an audit trail of failed tasks.
type FailureRecorder interface {
	StoreFailure(record failures.FailureRecord) error
}

// Env holds the collaborators shared by all encoders.
type Env struct {
	Selector *volumes.Selector
	Status   taskstatus.Store
	Media    StatusWriter
	Failures FailureRecorder // optional
	Pool     *taskqueue.Pool
	TempDir  string
	// UpdateInterval bounds how often progress is published.
	UpdateInterval time.Duration
	Now            func() time.Time
}

func (e Env) now() time.Time {
	if e.Now != nil {
		return e.Now()
	}
	return time.Now()
}

func (e Env) updateInterval() time.Duration {
	if e.UpdateInterval > 0 {
		return e.UpdateInterval
	}
	return 100 * time.Millisecond
}

// Result is the outcome of a finished task.
type Result struct {
	Status   models.MediaStatus
	ExitCode int
	Err      error
}

// Task is the handle of a submitted transcode.
type Task struct {
	ID string

	done   chan struct{}
	once   sync.Once
	result Result
}

func newTask(id string) *Task {
	return &Task{ID: id, done: make(chan struct{})}
}

func (t *Task) complete(r Result) {
	t.once.Do(func() {
		t.result = r
		close(t.done)
	})
}

// Done is closed once the task reached a terminal state.
func (t *Task) Done() <-chan struct{} { return t.done }

// Wait blocks until the task finishes or ctx is done.
func (t *Task) Wait(ctx context.Context) (Result, error) {
	select {
	case <-t.done:
		return t.result, nil
	case <-ctx.Done():
		return Result{}, ctx.Err()
	}
}

// Result returns the outcome if the task has finished.
func (t *Task) Result() (Result, bool) {
	select {
	case <-t.done:
		return t.result, true
	default:
		return Result{}, false
	}
}

// Options configures the builtin encoders.
type Options struct {
	FFmpegBinary string
	ProbeBinary  string
}

type constructor struct {
	// binaries that must be on PATH for the encoder to be usable
	binaries func(Options) []string
	build    func(env Env, opts Options) Encoder
}

var builtinEncoders = map[string]constructor{
	"ffmpeg": {
		binaries: func(o Options) []string { return []string{o.FFmpegBinary, o.ProbeBinary} },
		build: func(env Env, o Options) Encoder {
			return NewFFmpeg(env, o.FFmpegBinary, o.ProbeBinary)
		},
	},
	"copy": {
		build: func(env Env, _ Options) Encoder { return NewCopy(env) },
	},
}

// Registry maps encoder names to encoders.
type Registry struct {
	encoders    map[string]Encoder
	defaultName string
}

// NewRegistry builds the encoders listed in names. Encoders whose binaries
// are missing from PATH are skipped with a warning; unknown names fail.
func NewRegistry(names []string, defaultName string, env Env, opts Options) (*Registry, error) {
	if opts.FFmpegBinary == "" {
		opts.FFmpegBinary = "ffmpeg"
	}
	if opts.ProbeBinary == "" {
		opts.ProbeBinary = "ffprobe"
	}

	r := &Registry{encoders: make(map[string]Encoder, len(names)), defaultName: defaultName}
	for _, name := range names {
		c, ok := builtinEncoders[name]
		if !ok {
			return nil, &UnknownEncoderError{Name: name}
		}
		if missing := missingBinary(c, opts); missing != "" {
			logger.Warnf("encoder [%s] skipped: command '%s' not found in PATH", name, missing)
			continue
		}
		r.encoders[name] = c.build(env, opts)
		logger.Debugf("encoder [%s] registered", name)
	}
	return r, nil
}

func missingBinary(c constructor, opts Options) string {
	if c.binaries == nil {
		return ""
	}
	for _, bin := range c.binaries(opts) {
		if _, err := exec.LookPath(bin); err != nil {
			return bin
		}
	}
	return ""
}

// Register adds enc under its name, replacing any previous one.
func (r *Registry) Register(enc Encoder) {
	r.encoders[enc.Name()] = enc
}

// Get returns the encoder registered as name; an empty name selects the
// default encoder.
func (r *Registry) Get(name string) (Encoder, error) {
	if name == "" {
		name = r.defaultName
	}
	enc, ok := r.encoders[name]
	if !ok {
		return nil, &UnknownEncoderError{Name: name}
	}
	return enc, nil
}

// Names returns the registered encoder names in sorted order.
func (r *Registry) Names() []string {
	names := make([]string, 0, len(r.encoders))
	for name := range r.encoders {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

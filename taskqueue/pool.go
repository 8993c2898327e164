// Package taskqueue runs jobs on a bounded pool of workers. At most
// maxConcurrent jobs run at once and at most maxQueued wait for a slot;
// further submissions are rejected.
package taskqueue

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"golang.org/x/sync/semaphore"

	"mediaforge/logger"
)

var (
	ErrQueueFull    = errors.New("task queue is full")
	ErrClosed       = errors.New("task queue is shut down")
	ErrDuplicateJob = errors.New("job id already submitted")
	ErrJobNotFound  = errors.New("job not found")
)

// State represents the current state of a job
type State int

const (
	StatePending State = iota
	StateRunning
	StateCompleted
	StateFailed
	StateCancelled
)

func (s State) String() string {
	switch s {
	case StatePending:
		return "pending"
	case StateRunning:
		return "running"
	case StateCompleted:
		return "completed"
	case StateFailed:
		return "failed"
	case StateCancelled:
		return "cancelled"
	default:
		return fmt.Sprintf("State(%d)", int(s))
	}
}

// Terminal reports whether the job has finished.
func (s State) Terminal() bool {
	return s == StateCompleted || s == StateFailed || s == StateCancelled
}

// NotCancellableError is returned when cancelling a job that already left
// the pending state.
type NotCancellableError struct {
	ID    string
	State State
}

func (e *NotCancellableError) Error() string {
	return fmt.Sprintf("job %s is %s and cannot be cancelled", e.ID, e.State)
}

// Job is a unit of work.
type Job struct {
	ID  string
	Run func(ctx context.Context) error
	// OnCancel runs instead of Run when the job is cancelled or the pool
	// shuts down before the job started.
	OnCancel func()
}

// retainFinished bounds how many finished job states are remembered.
const retainFinished = 1024

// Pool is a bounded worker pool.
type Pool struct {
	sem       *semaphore.Weighted
	maxQueued int

	mu       sync.Mutex
	queued   int
	running  int
	closed   bool
	states   map[string]State
	cancels  map[string]context.CancelFunc
	finished []string

	wg sync.WaitGroup
}

// NewPool returns a pool running up to maxConcurrent jobs with up to
// maxQueued jobs waiting.
func NewPool(maxConcurrent, maxQueued int) *Pool {
	if maxConcurrent < 1 {
		maxConcurrent = 1
	}
	if maxQueued < 0 {
		maxQueued = 0
	}
	return &Pool{
		sem:       semaphore.NewWeighted(int64(maxConcurrent)),
		maxQueued: maxQueued,
		states:    make(map[string]State),
		cancels:   make(map[string]context.CancelFunc),
	}
}

// Submit schedules job. It fails synchronously with ErrQueueFull when no
// worker is free and the wait queue is at capacity.
func (p *Pool) Submit(job Job) error {
	if job.ID == "" || job.Run == nil {
		return errors.New("job needs an id and a run function")
	}

	p.mu.Lock()
	defer p.mu.Unlock()

	if p.closed {
		return ErrClosed
	}
	if _, exists := p.states[job.ID]; exists {
		return fmt.Errorf("%w: %s", ErrDuplicateJob, job.ID)
	}

	if p.sem.TryAcquire(1) {
		p.states[job.ID] = StateRunning
		p.running++
		p.wg.Add(1)
		go p.run(job)
		return nil
	}

	if p.queued >= p.maxQueued {
		return ErrQueueFull
	}
	ctx, cancel := context.WithCancel(context.Background())
	p.states[job.ID] = StatePending
	p.cancels[job.ID] = cancel
	p.queued++
	p.wg.Add(1)
	go p.wait(ctx, job)
	logger.Debugf("job %s queued (%d waiting)", job.ID, p.queued)
	return nil
}

// wait blocks until a worker slot is free, then runs job unless it was
// cancelled meanwhile.
func (p *Pool) wait(ctx context.Context, job Job) {
	err := p.sem.Acquire(ctx, 1)

	p.mu.Lock()
	p.queued--
	delete(p.cancels, job.ID)
	if err != nil || p.states[job.ID] != StatePending {
		if err == nil {
			p.sem.Release(1)
		}
		p.finish(job.ID, StateCancelled)
		p.mu.Unlock()

		logger.Infof("job %s cancelled before start", job.ID)
		if job.OnCancel != nil {
			job.OnCancel()
		}
		p.wg.Done()
		return
	}
	p.states[job.ID] = StateRunning
	p.running++
	p.mu.Unlock()

	p.run(job)
}

// run executes job on an acquired slot and records its outcome.
func (p *Pool) run(job Job) {
	defer p.wg.Done()

	state := StateFailed
	defer func() {
		if r := recover(); r != nil {
			logger.Errorf("job %s panicked: %v", job.ID, r)
		}
		p.mu.Lock()
		p.running--
		p.finish(job.ID, state)
		p.mu.Unlock()
		p.sem.Release(1)
	}()

	if err := job.Run(context.Background()); err != nil {
		logger.Errorf("job %s failed: %v", job.ID, err)
		return
	}
	state = StateCompleted
}

// finish records a terminal state. Caller holds p.mu.
func (p *Pool) finish(id string, state State) {
	p.states[id] = state
	p.finished = append(p.finished, id)
	if len(p.finished) > retainFinished {
		delete(p.states, p.finished[0])
		p.finished = p.finished[1:]
	}
}

// Cancel cancels a pending job. Running and finished jobs cannot be
// cancelled.
func (p *Pool) Cancel(id string) error {
	p.mu.Lock()
	defer p.mu.Unlock()

	state, exists := p.states[id]
	if !exists {
		return fmt.Errorf("%w: %s", ErrJobNotFound, id)
	}
	if state != StatePending {
		return &NotCancellableError{ID: id, State: state}
	}
	p.states[id] = StateCancelled
	if cancel, ok := p.cancels[id]; ok {
		cancel()
	}
	return nil
}

// State returns the state of job id.
func (p *Pool) State(id string) (State, bool) {
	p.mu.Lock()
	defer p.mu.Unlock()
	state, exists := p.states[id]
	return state, exists
}

// Stats returns the number of running and waiting jobs.
func (p *Pool) Stats() (running, queued int) {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.running, p.queued
}

// Shutdown stops accepting jobs, cancels every pending job and waits for
// running jobs to finish or ctx to expire.
func (p *Pool) Shutdown(ctx context.Context) error {
	p.mu.Lock()
	p.closed = true
	for id, cancel := range p.cancels {
		p.states[id] = StateCancelled
		cancel()
	}
	p.mu.Unlock()

	done := make(chan struct{})
	go func() {
		p.wg.Wait()
		close(done)
	}()
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Wait blocks until every submitted job has finished.
func (p *Pool) Wait() {
	p.wg.Wait()
}

package encoder

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"os/exec"
	"runtime/debug"
	"sync"
	"time"

	"mediaforge/failures"
	"mediaforge/logger"
	"mediaforge/models"
	"mediaforge/taskqueue"
)

const stderrTailLines = 20

var errCancelled = errors.New("cancelled before start")

// finalizer ends a task. Whatever path reaches it first wins; later calls
// are ignored, so every task gets exactly one terminal status.
type finalizer struct {
	env     Env
	task    *Task
	urn     string
	commit  func(ctx context.Context) error
	cleanup []func()
	once    sync.Once
}

// finish records the outcome. exitCode 0 with a nil err means success,
// subject to the output commit.
func (f *finalizer) finish(exitCode int, err error, stderrTail []string) error {
	var result error
	f.once.Do(func() {
		ctx := context.Background()

		if exitCode == 0 && err == nil && f.commit != nil {
			if cerr := f.commit(ctx); cerr != nil {
				err = fmt.Errorf("committing output: %w", cerr)
			}
		}
		for _, c := range f.cleanup {
			c()
		}

		status := models.StatusReady
		if exitCode != 0 || err != nil {
			status = models.StatusFailed
			result = &TranscodeFailedError{TaskID: f.task.ID, ExitCode: exitCode, Err: err}
		}

		if f.urn != "" && f.env.Media != nil {
			if serr := f.env.Media.SetStatus(f.urn, status); serr != nil {
				logger.Errorf("task %s: failed to set media %s status to %s: %v", f.task.ID, f.urn, status, serr)
			}
		}
		if result != nil && f.env.Failures != nil {
			record := failures.FailureRecord{
				TaskID:     f.task.ID,
				URN:        f.urn,
				ExitCode:   exitCode,
				Error:      result.Error(),
				StderrTail: stderrTail,
				Timestamp:  time.Now().UTC(),
			}
			if ferr := f.env.Failures.StoreFailure(record); ferr != nil {
				logger.Errorf("task %s: failed to store failure record: %v", f.task.ID, ferr)
			}
		}
		if f.env.Status != nil {
			if serr := f.env.Status.Set(ctx, f.task.ID, models.FinalTaskStatus); serr != nil {
				logger.Errorf("task %s: failed to publish final status: %v", f.task.ID, serr)
			}
		}

		f.task.complete(Result{Status: status, ExitCode: exitCode, Err: result})
		if result != nil {
			logger.Errorf("%v", result)
		} else {
			logger.Infof("task %s exited with status 0", f.task.ID)
		}
	})
	return result
}

// recovered finalizes a task whose runner panicked with r.
func (f *finalizer) recovered(r any, stderrTail []string) error {
	logger.Errorf("task %s panicked: %v\n%s", f.task.ID, r, debug.Stack())
	return f.finish(-1, fmt.Errorf("panic: %v", r), stderrTail)
}

// supervisor runs one encoder process and publishes its progress.
type supervisor struct {
	*finalizer
	name     string
	args     []string
	duration float64
}

// job wraps the supervisor as a pool job. A job cancelled before it
// started is finalized as failed.
func (s *supervisor) job() taskqueue.Job {
	return taskqueue.Job{
		ID:  s.task.ID,
		Run: s.run,
		OnCancel: func() {
			s.finish(-1, errCancelled, nil)
		},
	}
}

func (s *supervisor) run(ctx context.Context) (err error) {
	tail := newTail(stderrTailLines)
	cmd := exec.Command(s.name, s.args...)
	var stream chan string
	defer func() {
		r := recover()
		if r == nil {
			return
		}
		if cmd.Process != nil && cmd.ProcessState == nil {
			cmd.Process.Kill()
			if stream != nil {
				go func() {
					for range stream {
					}
				}()
			}
			cmd.Wait()
		}
		err = s.recovered(r, tail.snapshot())
	}()

	stderr, err := cmd.StderrPipe()
	if err != nil {
		return s.finish(-1, fmt.Errorf("stderr pipe: %w", err), nil)
	}
	if err := cmd.Start(); err != nil {
		return s.finish(-1, fmt.Errorf("starting %s: %w", s.name, err), nil)
	}
	logger.Infof("started %s job [%s] (pid %d)", s.name, s.task.ID, cmd.Process.Pid)

	start := s.env.now()
	tracker := NewTracker(s.duration, start, s.env.now)
	lines := make(chan string, 64)
	stream = lines
	go readLines(stderr, lines)

	ticker := time.NewTicker(s.env.updateInterval())
	defer ticker.Stop()

	var pending *models.TaskStatus
	for lines != nil {
		select {
		case line, ok := <-lines:
			if !ok {
				lines = nil
				continue
			}
			tail.add(line)
			if status, ok := tracker.Observe(line); ok {
				pending = &status
			}
		case <-ticker.C:
			if pending != nil {
				if err := s.env.Status.Set(ctx, s.task.ID, *pending); err != nil {
					logger.Warnf("task %s: status update failed: %v", s.task.ID, err)
				}
				logger.Debugf("task %s: %.1f%% eta %ds", s.task.ID, pending.Progress, pending.ETA)
				pending = nil
			}
		}
	}

	waitErr := cmd.Wait()
	exitCode := 0
	if waitErr != nil {
		var exitErr *exec.ExitError
		if errors.As(waitErr, &exitErr) {
			exitCode = exitErr.ExitCode()
			waitErr = nil
		} else {
			exitCode = -1
		}
	}
	return s.finish(exitCode, waitErr, tail.snapshot())
}

// readLines forwards status lines from r until EOF and closes out.
func readLines(r io.Reader, out chan<- string) {
	defer close(out)
	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)
	scanner.Split(ScanStatusLines)
	for scanner.Scan() {
		out <- scanner.Text()
	}
	if err := scanner.Err(); err != nil {
		logger.Warnf("reading encoder output: %v", err)
		io.Copy(io.Discard, r)
	}
}

package encoder

import (
	"fmt"
	"strings"
)

// ProbeFailedError is returned synchronously when the input cannot be
// inspected; no task is created.
type ProbeFailedError struct {
	Path   string
	Output string
	Err    error
}

func (e *ProbeFailedError) Error() string {
	msg := fmt.Sprintf("probe %s: %v", e.Path, e.Err)
	if out := strings.TrimSpace(e.Output); out != "" {
		msg += ": " + out
	}
	return msg
}

func (e *ProbeFailedError) Unwrap() error { return e.Err }

// TranscodeFailedError describes a task that ended in the failed state. It
// is recorded on the task and in the failure store, never returned by
// Transcode.
type TranscodeFailedError struct {
	TaskID   string
	ExitCode int
	Err      error
}

func (e *TranscodeFailedError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("task %s failed (exit code %d): %v", e.TaskID, e.ExitCode, e.Err)
	}
	return fmt.Sprintf("task %s failed with exit code %d", e.TaskID, e.ExitCode)
}

func (e *TranscodeFailedError) Unwrap() error { return e.Err }

// UnknownEncoderError is returned for an encoder name that is not
// registered.
type UnknownEncoderError struct {
	Name string
}

func (e *UnknownEncoderError) Error() string {
	return fmt.Sprintf("unknown encoder %q", e.Name)
}

package watch

import (
	"errors"
	"fmt"
)

// Domain errors for the event bridge.
var (
	// ErrMissingFile is returned when a queued file no longer exists.
	ErrMissingFile = errors.New("watch: file missing")

	// ErrEmptyFile is journalled when a queued file has no content yet.
	ErrEmptyFile = errors.New("watch: file is empty")

	// ErrReadFile is returned when a file exists but cannot be read.
	ErrReadFile = errors.New("watch: reading file failed")

	// ErrPublish is returned when the bus rejects a publish. The file is left in place.
	ErrPublish = errors.New("watch: publish failed")

	// ErrQueueFull is journalled when a task is dropped on a full queue.
	ErrQueueFull = errors.New("watch: publish queue full")

	// ErrInvalidRule is returned by New for an unusable rule.
	ErrInvalidRule = errors.New("watch: invalid rule")

	// ErrStopped is returned by Start after Stop.
	ErrStopped = errors.New("watch: bridge stopped")
)

// TaskError describes a failed task.
type TaskError struct {
	Path string
	Kind Kind
	Err  error
}

func (e *TaskError) Error() string {
	return fmt.Sprintf("watch: %s task for %s: %v", e.Kind, e.Path, e.Err)
}

func (e *TaskError) Unwrap() error {
	return e.Err
}

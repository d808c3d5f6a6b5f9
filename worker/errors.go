package worker

import (
	"errors"
	"fmt"
)

// ErrClosed is returned by WriteLine once the process was killed or has exited.
var ErrClosed = errors.New("worker input is closed")

// errMultiline guards the one-line-per-request framing.
var errMultiline = errors.New("request line contains a newline")

// SpawnError is returned when the worker executable cannot be started.
type SpawnError struct {
	Path string
	Err  error
}

func (e *SpawnError) Error() string {
	return fmt.Sprintf("failed to start ocr worker %s: %v", e.Path, e.Err)
}

func (e *SpawnError) Unwrap() error {
	return e.Err
}

// WriteError is returned when a request line could not be written to stdin.
type WriteError struct {
	Err error
}

func (e *WriteError) Error() string {
	return fmt.Sprintf("failed to write to ocr worker: %v", e.Err)
}

func (e *WriteError) Unwrap() error {
	return e.Err
}

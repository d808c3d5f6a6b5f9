package ocr

import (
	"errors"
	"fmt"

	"github.com/zhubert/ocrpipe/queue"
)

var (
	// ErrClosed is returned for requests submitted after Terminate or exit.
	ErrClosed = queue.ErrClosed

	// ErrExited matches every *ExitedError via errors.Is.
	ErrExited = errors.New("ocr worker exited")

	// ErrNotReady is returned by Remote before the handshake arrived.
	ErrNotReady = errors.New("ocr worker is not ready")

	// ErrNoAddress is returned by Remote when the worker did not advertise a socket.
	ErrNoAddress = errors.New("ocr worker did not advertise an address")
)

// ExitedError fails every request that was pending when the worker exited.
type ExitedError struct {
	// Code is the exit status, nil when the process was killed by a signal.
	Code *int
	// Cause is the *protocol.HandshakeError when the worker never became ready.
	Cause error
}

func (e *ExitedError) Error() string {
	switch {
	case e.Cause != nil:
		return fmt.Sprintf("ocr worker exited: %v", e.Cause)
	case e.Code != nil:
		return fmt.Sprintf("ocr worker exited with code %d", *e.Code)
	default:
		return "ocr worker was killed"
	}
}

func (e *ExitedError) Unwrap() error {
	return e.Cause
}

func (e *ExitedError) Is(target error) bool {
	return target == ErrExited
}

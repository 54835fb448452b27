package actor

import (
	"errors"
	"fmt"
)

var (
	// ErrAlreadyExists is returned by Start when the name is taken.
	ErrAlreadyExists = errors.New("actor already exists")
	// ErrInvalidName is returned by Start for an empty name or one that is
	// not valid UTF-8, which the wire encoding cannot carry.
	ErrInvalidName = errors.New("actor name must be non-empty UTF-8")
	// ErrDirectoryStopped is returned by Start after Shutdown.
	ErrDirectoryStopped = errors.New("actor directory is stopped")
	// ErrTimedOut is returned by a receive that saw no message before its deadline.
	ErrTimedOut = errors.New("receive timed out")
	// ErrMailboxClosed is returned by a receive on a closed mailbox.
	ErrMailboxClosed = errors.New("mailbox is closed")
)

// DecodeError reports bytes that are not a valid envelope.
type DecodeError struct {
	Reason string
	Err    error
}

func (e *DecodeError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("decode envelope: %s: %v", e.Reason, e.Err)
	}
	return "decode envelope: " + e.Reason
}

func (e *DecodeError) Unwrap() error {
	return e.Err
}

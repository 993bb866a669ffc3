package entity

import (
	"errors"
	"fmt"
)

var (
	ErrPathNotFound     = errors.New("path not found")
	ErrCountMismatch    = errors.New("foreground and background frame counts differ")
	ErrInsufficientMask = errors.New("not enough mask frames")
	ErrMissingMask      = errors.New("mask frame missing")
	ErrNoAudioStream    = errors.New("reference has no audio stream")
	ErrEmptySequence    = errors.New("no frames to assemble")
	ErrEncode           = errors.New("encode failed")
	ErrInvalidConfig    = errors.New("invalid pipeline config")
)

// FrameError ties a per-frame failure to its position in the FrameIndex.
type FrameError struct {
	Index int
	Path  string
	Err   error
}

func (e *FrameError) Error() string {
	return fmt.Sprintf("frame %d (%s): %v", e.Index, e.Path, e.Err)
}

func (e *FrameError) Unwrap() error {
	return e.Err
}

// IsPermanent reports whether err belongs to the validation/encode taxonomy.
// Re-running the same job cannot fix these, so the worker does not retry them.
func IsPermanent(err error) bool {
	for _, target := range []error{
		ErrPathNotFound, ErrCountMismatch, ErrInsufficientMask, ErrMissingMask,
		ErrNoAudioStream, ErrEmptySequence, ErrEncode, ErrInvalidConfig,
	} {
		if errors.Is(err, target) {
			return true
		}
	}
	return false
}

// RetryableError is returned by the job handler when the message should be
// redelivered. Attempt is the attempt that just failed.
type RetryableError struct {
	Attempt int
	Err     error
}

func (e *RetryableError) Error() string {
	return fmt.Sprintf("retryable failure (attempt %d): %v", e.Attempt, e.Err)
}

func (e *RetryableError) Unwrap() error {
	return e.Err
}

package domain

import "github.com/pkg/errors"

var (
	ErrNotFound          = errors.New("session not found")
	ErrNotReady          = errors.New("session not ready/connected")
	ErrInvalidArgument   = errors.New("invalid argument")
	ErrUpstreamFailure   = errors.New("upstream failure")
	ErrInvalidTransition = errors.New("invalid state transition")
)

// UpstreamError wraps a failure reported by the protocol engine or the
// auto-reply service. It matches ErrUpstreamFailure under errors.Is.
type UpstreamError struct {
	Op  string
	Err error
}

func NewUpstreamError(op string, err error) error {
	if err == nil {
		return nil
	}
	return &UpstreamError{Op: op, Err: err}
}

func (e *UpstreamError) Error() string {
	return e.Op + ": " + e.Err.Error()
}

func (e *UpstreamError) Unwrap() error { return e.Err }

func (e *UpstreamError) Is(target error) bool {
	return target == ErrUpstreamFailure
}

// InvalidArgument returns an error matching ErrInvalidArgument that names
// the offending field.
func InvalidArgument(format string, args ...any) error {
	return errors.Wrapf(ErrInvalidArgument, format, args...)
}

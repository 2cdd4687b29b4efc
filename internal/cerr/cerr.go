// Package cerr defines the error taxonomy shared by every component of the
// processing engine. Only the worker loop (see package worker) translates
// these kinds into queue outcomes; everything else simply returns them.
package cerr

import (
	"fmt"

	"github.com/pkg/errors"
)

// RawDataMissingError means an upstream input (raw file or upstream
// product) is absent or empty. Always skippable: the condition cannot be
// fixed by retrying immediately, only by new data arriving later.
type RawDataMissingError struct {
	Reason string
}

func (e *RawDataMissingError) Error() string { return "raw data missing: " + e.Reason }

func NewRawDataMissing(format string, args ...interface{}) error {
	return &RawDataMissingError{Reason: fmt.Sprintf(format, args...)}
}

// MiscError means semantically invalid input that no retry will fix
// (wrong date, zenith out of range, incomplete model file, ...).
type MiscError struct {
	Reason string
}

func (e *MiscError) Error() string { return e.Reason }

func NewMisc(format string, args ...interface{}) error {
	return &MiscError{Reason: fmt.Sprintf(format, args...)}
}

// SkipTaskError is the union surfaced to the worker loop: the task is
// marked complete, not failed, to avoid hot-looping on an unsolvable
// state. Handlers construct it directly for combinations the dispatch
// matrix declares unsupported, or it is produced by AsSkip below.
type SkipTaskError struct {
	Reason string
}

func (e *SkipTaskError) Error() string { return e.Reason }

func NewSkip(format string, args ...interface{}) error {
	return &SkipTaskError{Reason: fmt.Sprintf(format, args...)}
}

// TransientError wraps a retryable failure (HTTP 5xx, network timeout,
// object-store hiccup). The HTTP clients retry 5xx and network errors
// internally (package httpx) and return the last error without this
// wrapper; an error of this kind that reaches the worker loop is
// treated as fatal.
type TransientError struct {
	cause error
}

func (e *TransientError) Error() string { return "transient: " + e.cause.Error() }
func (e *TransientError) Unwrap() error { return e.cause }

func NewTransient(cause error) error {
	return &TransientError{cause: cause}
}

// AsSkip converts a scientific-transform error (RawDataMissingError,
// MiscError, or an unrecognized domain error) into a SkipTaskError with a
// human-readable reason. Task handlers apply it to every transform
// failure so the worker loop completes, rather than fails, the task.
func AsSkip(err error) error {
	if err == nil {
		return nil
	}
	var rd *RawDataMissingError
	if errors.As(err, &rd) {
		return NewSkip("raw data missing: %s", rd.Reason)
	}
	var misc *MiscError
	if errors.As(err, &misc) {
		return NewSkip("%s", misc.Reason)
	}
	var skip *SkipTaskError
	if errors.As(err, &skip) {
		return err
	}
	return NewSkip("scientific transform failed: %s", err.Error())
}

// IsSkip reports whether err (or something it wraps) is a SkipTaskError.
// The worker loop uses this to decide complete-vs-fail without caring
// about the rest of the chain.
func IsSkip(err error) bool {
	var skip *SkipTaskError
	return errors.As(err, &skip)
}

// Wrap attaches context to err, preserving the underlying kind for
// IsSkip/As.
func Wrap(err error, format string, args ...interface{}) error {
	if err == nil {
		return nil
	}
	return errors.Wrapf(err, format, args...)
}

package errs

import (
	"errors"
)

// Code is a check failure or application error code.
type Code string

const (
	// Verification failure reasons. These are reported, never recovered.
	ElementNotVisible    Code = "element_not_visible"
	MissingReference     Code = "missing_reference"
	ComparisonMismatch   Code = "comparison_mismatch"
	NoNavigationDetected Code = "no_navigation_detected"
	AmbiguousOutcome     Code = "ambiguous_outcome"

	// Page check failure reasons.
	ScrollMismatch  Code = "scroll_mismatch"
	ImageNotLoaded  Code = "image_not_loaded"
	AspectDistorted Code = "aspect_distorted"
	AssertionFailed Code = "assertion_failed"

	InvalidArgument Code = "invalid_argument"
	Unavailable     Code = "unavailable"
	Internal        Code = "internal"
)

// Error is a coded application error.
type Error struct {
	Code    Code
	Message string
	Err     error
}

func (e *Error) Error() string {
	if e == nil {
		return ""
	}
	if e.Message != "" {
		return e.Message
	}
	if e.Err != nil {
		return e.Err.Error()
	}
	return string(e.Code)
}

func (e *Error) Unwrap() error {
	if e == nil {
		return nil
	}
	return e.Err
}

// New creates a coded error with message.
func New(code Code, message string) error {
	return &Error{
		Code:    code,
		Message: message,
	}
}

// Wrap creates a coded error with message and cause.
func Wrap(code Code, message string, cause error) error {
	return &Error{
		Code:    code,
		Message: message,
		Err:     cause,
	}
}

// CodeOf returns the error code, defaulting to internal.
func CodeOf(err error) Code {
	if err == nil {
		return Internal
	}
	var coded *Error
	if errors.As(err, &coded) {
		if coded.Code == "" {
			return Internal
		}
		return coded.Code
	}
	return Internal
}

// MessageOf returns the coded message, or the raw error text for uncoded errors.
// Unlike a public API there is nothing to hide here: the text ends up in a CI report
// read by the people who own the site.
func MessageOf(err error) string {
	if err == nil {
		return string(Internal)
	}
	var coded *Error
	if errors.As(err, &coded) && coded.Message != "" {
		if coded.Err != nil {
			return coded.Message + ": " + coded.Err.Error()
		}
		return coded.Message
	}
	return err.Error()
}

// IsCheckFailure reports whether code describes a failed check rather than a
// broken run.
func IsCheckFailure(code Code) bool {
	switch code {
	case ElementNotVisible, MissingReference, ComparisonMismatch, NoNavigationDetected,
		AmbiguousOutcome, ScrollMismatch, ImageNotLoaded, AspectDistorted, AssertionFailed:
		return true
	default:
		return false
	}
}

// Process exit codes used by cmd/navcheck.
const (
	ExitOK          = 0
	ExitCheckFailed = 1
	ExitConfig      = 2
	ExitFatal       = 3
)

// ExitCode maps an error code to a process exit code.
func ExitCode(code Code) int {
	switch {
	case IsCheckFailure(code):
		return ExitCheckFailed
	case code == InvalidArgument:
		return ExitConfig
	default:
		return ExitFatal
	}
}

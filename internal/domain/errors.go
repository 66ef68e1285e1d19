package domain

import (
	"errors"
	"fmt"
)

// Kind classifies pipeline errors so handlers can map them to HTTP statuses
// without string matching.
type Kind string

const (
	KindInvalidInput      Kind = "invalid_input"
	KindUnsupportedFormat Kind = "unsupported_format"
	KindInvalidThreshold  Kind = "invalid_threshold"
	KindToolUnavailable   Kind = "tool_unavailable"
	KindAggregateFailure  Kind = "aggregate_failure"
	KindGroupingFailure   Kind = "grouping_failure"
	KindPackagingFailure  Kind = "packaging_failure"
)

// Error is a classified pipeline error, optionally wrapping a cause.
type Error struct {
	Kind    Kind
	Message string
	Err     error
}

func (e *Error) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %s: %v", e.Kind, e.Message, e.Err)
	}
	return fmt.Sprintf("%s: %s", e.Kind, e.Message)
}

func (e *Error) Unwrap() error { return e.Err }

// KindOf extracts the Kind of err, or "" if err is not a domain error.
func KindOf(err error) Kind {
	var de *Error
	if errors.As(err, &de) {
		return de.Kind
	}
	return ""
}

// IsKind reports whether err is a domain error of the given kind.
func IsKind(err error, kind Kind) bool {
	return KindOf(err) == kind
}

func newError(kind Kind, message string, cause error) *Error {
	return &Error{Kind: kind, Message: message, Err: cause}
}

func InvalidInput(message string, cause error) *Error {
	return newError(KindInvalidInput, message, cause)
}

func UnsupportedFormat(message string, cause error) *Error {
	return newError(KindUnsupportedFormat, message, cause)
}

func InvalidThreshold(message string, cause error) *Error {
	return newError(KindInvalidThreshold, message, cause)
}

func ToolUnavailable(message string, cause error) *Error {
	return newError(KindToolUnavailable, message, cause)
}

func AggregateFailure(message string, cause error) *Error {
	return newError(KindAggregateFailure, message, cause)
}

func GroupingFailure(message string, cause error) *Error {
	return newError(KindGroupingFailure, message, cause)
}

func PackagingFailure(message string, cause error) *Error {
	return newError(KindPackagingFailure, message, cause)
}

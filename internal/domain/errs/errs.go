// Package errs defines the closed set of error kinds surfaced by the workflow engine.
package errs

import (
	"errors"
	"strings"
)

// Kind classifies an error for callers.
type Kind string

const (
	KindInternal         Kind = "INTERNAL"
	KindInvalidWorkflow  Kind = "INVALID_WORKFLOW"
	KindValidation       Kind = "VALIDATION"
	KindNotFound         Kind = "NOT_FOUND"
	KindConflict         Kind = "CONFLICT"
	KindPermissionDenied Kind = "PERMISSION_DENIED"
	KindExternalService  Kind = "EXTERNAL_SERVICE"
	KindRollbackFailure  Kind = "ROLLBACK_FAILURE"
)

// Error is a classified error. Op names the operation that failed.
type Error struct {
	Kind    Kind
	Op      string
	Message string
	Err     error
}

func (e *Error) Error() string {
	var b strings.Builder
	if e.Op != "" {
		b.WriteString(e.Op)
		b.WriteString(": ")
	}
	b.WriteString(e.Message)
	if e.Err != nil {
		if e.Message != "" {
			b.WriteString(": ")
		}
		b.WriteString(e.Err.Error())
	}
	return b.String()
}

func (e *Error) Unwrap() error {
	return e.Err
}

// E creates a classified error.
func E(kind Kind, op, msg string) error {
	return &Error{Kind: kind, Op: op, Message: msg}
}

// Wrap classifies err. Returns nil when err is nil.
func Wrap(kind Kind, op string, err error, msg string) error {
	if err == nil {
		return nil
	}
	return &Error{Kind: kind, Op: op, Message: msg, Err: err}
}

// KindOf returns the kind of the first classified error in err's tree.
func KindOf(err error) Kind {
	if err == nil {
		return ""
	}
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return KindInternal
}

// Is reports whether err is classified as kind.
func Is(err error, kind Kind) bool {
	return err != nil && KindOf(err) == kind
}

// RollbackError reports a failed rollback together with the error that
// triggered it. KindOf returns the original error's kind.
type RollbackError struct {
	Original error
	Rollback error
}

func (e *RollbackError) Error() string {
	return e.Original.Error() + " (rollback failed: " + e.Rollback.Error() + ")"
}

func (e *RollbackError) Unwrap() []error {
	return []error{e.Original, &Error{Kind: KindRollbackFailure, Message: "rollback failed", Err: e.Rollback}}
}

// WithRollbackFailure attaches a rollback failure to original.
func WithRollbackFailure(original, rollback error) error {
	if rollback == nil {
		return original
	}
	return &RollbackError{Original: original, Rollback: rollback}
}

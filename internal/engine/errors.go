package engine

import (
	"errors"
	"fmt"

	"gapline/internal/repo"
)

// ValidationError reports a malformed input. Nothing has been written when it is returned.
type ValidationError struct {
	Field  string
	Reason string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("invalid %s: %s", e.Field, e.Reason)
}

// NotFoundError reports an unknown assessment, pack, program or action.
type NotFoundError struct {
	Kind string
	ID   string
}

func (e *NotFoundError) Error() string {
	return fmt.Sprintf("%s %s not found", e.Kind, e.ID)
}

func (e *NotFoundError) Unwrap() error { return repo.ErrNotFound }

// ConflictError reports an id that is already taken.
type ConflictError struct {
	Kind string
	ID   string
}

func (e *ConflictError) Error() string {
	return fmt.Sprintf("%s %s already exists", e.Kind, e.ID)
}

func (e *ConflictError) Unwrap() error { return repo.ErrConflict }

// UpstreamError wraps a failure of the response or catalog source.
type UpstreamError struct {
	Source string
	Err    error
}

func (e *UpstreamError) Error() string {
	return fmt.Sprintf("%s source: %v", e.Source, e.Err)
}

func (e *UpstreamError) Unwrap() error { return e.Err }

func invalid(field, format string, args ...any) error {
	return &ValidationError{Field: field, Reason: fmt.Sprintf(format, args...)}
}

// notFound converts repo.ErrNotFound into a NotFoundError and passes other errors through.
func notFound(kind, id string, err error) error {
	if errors.Is(err, repo.ErrNotFound) {
		return &NotFoundError{Kind: kind, ID: id}
	}
	return err
}

func upstream(source string, err error) error {
	var nf *NotFoundError
	if errors.As(err, &nf) {
		return err
	}
	return &UpstreamError{Source: source, Err: err}
}

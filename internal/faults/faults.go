// Package faults classifies failures crossing the boundary between the primary document
// path and the indexing/suggestion pipeline.
package faults

import (
	"errors"
	"fmt"
)

// Kind groups failures by how callers are expected to react to them.
type Kind string

const (
	KindNotFound   Kind = "not_found"
	KindValidation Kind = "validation"
	KindBackend    Kind = "backend"
	KindParse      Kind = "parse"
)

// Sentinels usable with errors.Is against any *Error of the matching kind.
var (
	ErrNotFound   = &Error{Kind: KindNotFound}
	ErrValidation = &Error{Kind: KindValidation}
	ErrBackend    = &Error{Kind: KindBackend}
	ErrParse      = &Error{Kind: KindParse}
)

// Error carries the failing operation and its kind.
type Error struct {
	Kind Kind
	Op   string
	Err  error
}

func (e *Error) Error() string {
	switch {
	case e.Op != "" && e.Err != nil:
		return fmt.Sprintf("%s: %s: %v", e.Op, e.Kind, e.Err)
	case e.Err != nil:
		return fmt.Sprintf("%s: %v", e.Kind, e.Err)
	case e.Op != "":
		return fmt.Sprintf("%s: %s", e.Op, e.Kind)
	default:
		return string(e.Kind)
	}
}

func (e *Error) Unwrap() error { return e.Err }

// Is matches any *Error with the same kind, so sentinels work with errors.Is.
func (e *Error) Is(target error) bool {
	var t *Error
	if !errors.As(target, &t) {
		return false
	}
	return t.Kind == e.Kind && t.Op == "" && t.Err == nil
}

func NotFound(op string, format string, args ...interface{}) error {
	return &Error{Kind: KindNotFound, Op: op, Err: fmt.Errorf(format, args...)}
}

func Validation(op string, format string, args ...interface{}) error {
	return &Error{Kind: KindValidation, Op: op, Err: fmt.Errorf(format, args...)}
}

// Backend wraps a failed or timed-out call to the embedding, generation or vector backend.
func Backend(op string, err error) error {
	if err == nil {
		return nil
	}
	return &Error{Kind: KindBackend, Op: op, Err: err}
}

func Parse(op string, format string, args ...interface{}) error {
	return &Error{Kind: KindParse, Op: op, Err: fmt.Errorf(format, args...)}
}

// KindOf reports the kind of the first *Error in the chain, or "" when unclassified.
func KindOf(err error) Kind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return ""
}

// IsPipeline reports whether err originates from a best-effort pipeline stage.
func IsPipeline(err error) bool {
	switch KindOf(err) {
	case KindBackend, KindParse:
		return true
	}
	return false
}

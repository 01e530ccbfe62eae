package handbrain

import (
	"context"
	"errors"
	"fmt"
)

// Kind classifies a domain failure.
type Kind string

const (
	KindNotFound    Kind = "NOT_FOUND"
	KindConflict    Kind = "CONFLICT"
	KindTurn        Kind = "TURN"
	KindRule        Kind = "RULE"
	KindFormat      Kind = "FORMAT"
	KindState       Kind = "STATE"
	KindUnavailable Kind = "UNAVAILABLE"
	KindInternal    Kind = "INTERNAL"
)

// Error is the failure surfaced to callers. Message names the violated rule.
type Error struct {
	Kind      Kind
	Message   string
	Retryable bool
	Err       error
}

func (e *Error) Error() string {
	if e.Message != "" {
		return e.Message
	}
	if e.Kind != "" {
		return string(e.Kind)
	}
	return "hand and brain error"
}

func (e *Error) Unwrap() error { return e.Err }

// Is matches on Kind so errors.Is(err, ErrRule) works for any rule violation.
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	if !ok {
		return false
	}
	return t.Kind == e.Kind && (t.Message == "" || t.Message == e.Message)
}

// Sentinels for errors.Is matching by kind.
var (
	ErrNotFound    = &Error{Kind: KindNotFound}
	ErrConflict    = &Error{Kind: KindConflict}
	ErrTurn        = &Error{Kind: KindTurn}
	ErrRule        = &Error{Kind: KindRule}
	ErrFormat      = &Error{Kind: KindFormat}
	ErrState       = &Error{Kind: KindState}
	ErrUnavailable = &Error{Kind: KindUnavailable}
)

// ErrTxConflict is returned by stores when an optimistic transaction kept
// losing to concurrent writers.
var ErrTxConflict = errors.New("concurrent update conflict")

func notFound(format string, args ...any) *Error {
	return &Error{Kind: KindNotFound, Message: fmt.Sprintf(format, args...)}
}

func conflict(msg string) *Error { return &Error{Kind: KindConflict, Message: msg} }
func turnErr(msg string) *Error  { return &Error{Kind: KindTurn, Message: msg} }
func ruleErr(msg string) *Error  { return &Error{Kind: KindRule, Message: msg} }
func stateErr(msg string) *Error { return &Error{Kind: KindState, Message: msg} }

func formatErr(format string, args ...any) *Error {
	return &Error{Kind: KindFormat, Message: fmt.Sprintf(format, args...)}
}

// KindOf classifies any error returned by the engine.
func KindOf(err error) Kind {
	if err == nil {
		return ""
	}
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	if errors.Is(err, context.DeadlineExceeded) || errors.Is(err, ErrTxConflict) {
		return KindUnavailable
	}
	return KindInternal
}

// classify converts collaborator failures into domain errors. Timeouts and
// exhausted optimistic retries are transient and distinct from rule violations.
func classify(op string, err error) error {
	if err == nil {
		return nil
	}
	var e *Error
	if errors.As(err, &e) {
		return e
	}
	switch {
	case errors.Is(err, context.DeadlineExceeded):
		return &Error{Kind: KindUnavailable, Message: op + ": timed out", Retryable: true, Err: err}
	case errors.Is(err, ErrTxConflict):
		return &Error{Kind: KindUnavailable, Message: op + ": concurrent update, retry", Retryable: true, Err: err}
	case errors.Is(err, context.Canceled):
		return &Error{Kind: KindUnavailable, Message: op + ": canceled", Err: err}
	}
	return fmt.Errorf("%s: %w", op, err)
}

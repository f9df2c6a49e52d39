package ragcore

import (
	"fmt"

	"github.com/cockroachdb/errors"
)

// ErrorKind classifies a failure the way §7 of the design describes:
// most kinds are contained within the stage that owns them and never
// reach the caller; only ValidationError and DeadlineExceeded do.
type ErrorKind int

const (
	// KindAdapterUnavailable means an external dependency is down.
	// Stages substitute a degraded local behavior and never propagate it.
	KindAdapterUnavailable ErrorKind = iota
	// KindAdapterTimeout means a per-adapter timeout fired.
	KindAdapterTimeout
	// KindValidation means malformed caller input. Surfaced to the caller.
	KindValidation
	// KindNotFound means a referenced passage id has no content.
	KindNotFound
	// KindDeadlineExceeded means the per-request deadline fired.
	// Surfaced to the caller with whatever partial results exist.
	KindDeadlineExceeded
	// KindInternal means an unexpected failure; captured with a stack
	// trace and logged, affecting only the one request.
	KindInternal
)

func (k ErrorKind) String() string {
	switch k {
	case KindAdapterUnavailable:
		return "adapter_unavailable"
	case KindAdapterTimeout:
		return "adapter_timeout"
	case KindValidation:
		return "validation"
	case KindNotFound:
		return "not_found"
	case KindDeadlineExceeded:
		return "deadline_exceeded"
	case KindInternal:
		return "internal"
	default:
		return "unknown"
	}
}

// Error wraps a failure with its ErrorKind. Internal errors carry a
// stack trace captured via cockroachdb/errors so an operator can
// locate the panic-equivalent site without the request itself dying.
type Error struct {
	Kind ErrorKind
	err  error
}

func (e *Error) Error() string { return fmt.Sprintf("%s: %v", e.Kind, e.err) }
func (e *Error) Unwrap() error { return e.err }

// newError builds a Error of the given kind, capturing a stack trace
// for Internal errors only — the other kinds are expected, recoverable
// conditions that don't warrant one.
func newError(kind ErrorKind, format string, args ...any) *Error {
	var err error
	if kind == KindInternal {
		err = errors.Newf(format, args...)
	} else {
		err = fmt.Errorf(format, args...)
	}
	return &Error{Kind: kind, err: err}
}

// wrapInternal captures cause with a stack trace, for the "Internal"
// error kind's "logged with stack" requirement.
func wrapInternal(cause error, msg string) *Error {
	return &Error{Kind: KindInternal, err: errors.Wrap(cause, msg)}
}

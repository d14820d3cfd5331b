// Package rberr defines the error taxonomy shared by every layer of the
// policy engine: catalog gateway, filter translator, policy resolution,
// action execution, and the runner/trigger loop.
//
// Errors are plain wrapped Go errors (fmt.Errorf("...: %w", err)); the
// taxonomy is a set of sentinel Kind values plus a MissingAttrs variant
// that carries its own payload (the mask of attributes the caller must
// supply before retrying).
package rberr

import (
	"errors"
	"fmt"

	"github.com/cea-hpc/robinhood-sub006/internal/domain/attr"
)

// Kind classifies an error for retry/propagation decisions. Kinds are
// sentinel values compared with errors.Is, not a type switch, so a
// wrapped error chain still matches.
type Kind struct {
	name string
}

func (k Kind) Error() string { return k.name }

var (
	// NotFound: entry or variable does not exist.
	NotFound = Kind{"not found"}
	// AlreadyExists: duplicate insertion.
	AlreadyExists = Kind{"already exists"}
	// ConnectionLost: transient; the catalog gateway retries internally.
	ConnectionLost = Kind{"connection lost"}
	// Deadlock: transient; the catalog gateway retries the failed operation.
	Deadlock = Kind{"deadlock"}
	// InvalidArg: fatal at the call site.
	InvalidArg = Kind{"invalid argument"}
	// InvalidSchema: fatal at the call site.
	InvalidSchema = Kind{"invalid schema"}
	// ReadOnlyAttr: an action consumer attempted to set a read-only attribute.
	ReadOnlyAttr = Kind{"read-only attribute"}
	// OutOfMemory: fatal; callers should give up and let the process exit.
	OutOfMemory = Kind{"out of memory"}
	// Busy: scheduler or queue is full; caller should back off and retry.
	Busy = Kind{"busy"}
	// Cancelled: shutdown in progress; callers should unwind cleanly.
	Cancelled = Kind{"cancelled"}
	// FilesystemChanged: the root device id changed mid-run; fatal at the
	// process level.
	FilesystemChanged = Kind{"filesystem changed"}
	// UnknownParameter: an action-parameter placeholder had no substitution.
	UnknownParameter = Kind{"unknown parameter"}
)

// wrapped pairs a Kind with additional context, so errors.Is(err, Kind)
// still works after fmt.Errorf wrapping.
type wrapped struct {
	kind Kind
	msg  string
}

func (w *wrapped) Error() string { return w.msg }
func (w *wrapped) Is(target error) bool {
	k, ok := target.(Kind)
	return ok && k == w.kind
}
func (w *wrapped) Unwrap() error { return w.kind }

// New builds an error of the given kind with a formatted message.
func New(kind Kind, format string, args ...any) error {
	return &wrapped{kind: kind, msg: fmt.Sprintf(format, args...)}
}

// Is reports whether err (or anything it wraps) is of the given kind.
func Is(err error, kind Kind) bool {
	return errors.Is(err, kind)
}

// Retryable reports whether the gateway's retry combinator should retry
// an operation that failed with err.
func Retryable(err error) bool {
	return Is(err, ConnectionLost) || Is(err, Deadlock)
}

// MissingAttrs is returned by policy/fileclass evaluation when the
// supplied attr.Set lacks attributes referenced by a condition. The
// caller must fetch Mask (from the catalog or the filesystem) and retry.
type MissingAttrs struct {
	Mask attr.Mask
}

func (e *MissingAttrs) Error() string {
	return fmt.Sprintf("missing attributes: mask=%s", e.Mask.String())
}

// AsMissingAttrs unwraps err into a *MissingAttrs, if it is one.
func AsMissingAttrs(err error) (*MissingAttrs, bool) {
	var m *MissingAttrs
	ok := errors.As(err, &m)
	return m, ok
}

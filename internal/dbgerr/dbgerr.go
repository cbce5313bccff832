// Package dbgerr implements the core's error taxonomy: a closed set of
// error kinds that recoverable errors are tagged with, so that callers can
// distinguish "retry later" from "user mistake" from "we have a bug".
package dbgerr

import (
	"errors"
	"fmt"
)

// Kind classifies an error without fixing its concrete Go type.
type Kind uint8

const (
	// Internal marks an invariant violation. Logged and surfaced; must not
	// corrupt persistent state.
	Internal Kind = iota
	// Usage marks invalid caller state, e.g. stepping while not suspended.
	// Surfaced to the caller; does not mutate state.
	Usage
	// ProcessState marks that the target has exited, a thread is gone, or
	// an address is unmapped.
	ProcessState
	// Loading marks that symbol or address resolution requires background
	// work not yet complete. Treated as "retry later".
	Loading
	// MissingSymbols marks that the debug info has no matching code at all.
	MissingSymbols
	// NoCodeLocations marks that a line breakpoint has no machine code at
	// or below its line.
	NoCodeLocations
	// NoFunction marks that a named function or point of interest could not
	// be found.
	NoFunction
	// NoVariable marks that a requested local or global was not found.
	NoVariable
	// DebugInfoError marks malformed unwind, expression, or base-type data.
	DebugInfoError
	// OptimizedAway marks that an expression cannot produce a value because
	// the compiler discarded the underlying storage.
	OptimizedAway
	// OutOfHardwareBreakpoints marks that all four hardware slots are in
	// use.
	OutOfHardwareBreakpoints
	// NotImplemented marks a deliberately unsupported operation (TLS
	// expressions, unsupported registers, watch-expression operations that
	// need debug info the caller's context lacks).
	NotImplemented
	// Sanity is a stronger Internal: a check that should be impossible to
	// fail given the caller's contract.
	Sanity
)

func (k Kind) String() string {
	switch k {
	case Internal:
		return "internal"
	case Usage:
		return "usage"
	case ProcessState:
		return "process-state"
	case Loading:
		return "loading"
	case MissingSymbols:
		return "missing-symbols"
	case NoCodeLocations:
		return "no-code-locations"
	case NoFunction:
		return "no-function"
	case NoVariable:
		return "no-variable"
	case DebugInfoError:
		return "debug-info"
	case OptimizedAway:
		return "optimized-away"
	case OutOfHardwareBreakpoints:
		return "out-of-hardware-breakpoints"
	case NotImplemented:
		return "not-implemented"
	case Sanity:
		return "sanity"
	default:
		return "unknown"
	}
}

// Error is the concrete error type every package in this module returns for
// recoverable failures. It carries a Kind so callers can branch with
// errors.Is/errors.As, a human-readable Message, and an optional Cause for
// errors.Unwrap.
type Error struct {
	Kind    Kind
	Message string
	Cause   error
}

func (e *Error) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("%s: %s: %v", e.Kind, e.Message, e.Cause)
	}
	return fmt.Sprintf("%s: %s", e.Kind, e.Message)
}

func (e *Error) Unwrap() error { return e.Cause }

// Is lets errors.Is(err, dbgerr.New(dbgerr.Loading, "")) work by comparing
// kinds when the target is a bare Kind-tagged sentinel created with
// New(kind, "").
func (e *Error) Is(target error) bool {
	other, ok := target.(*Error)
	if !ok {
		return false
	}
	return other.Kind == e.Kind
}

// New builds an *Error with no cause.
func New(kind Kind, format string, args ...any) *Error {
	return &Error{Kind: kind, Message: fmt.Sprintf(format, args...)}
}

// Wrap builds an *Error that records the triggering cause.
func Wrap(kind Kind, cause error, format string, args ...any) *Error {
	return &Error{Kind: kind, Message: fmt.Sprintf(format, args...), Cause: cause}
}

// IsLoading reports whether err is a Loading-kind error, mirroring the
// source's `e.is_loading()` helper used throughout breakpoint resolution.
func IsLoading(err error) bool {
	var e *Error
	if !errors.As(err, &e) {
		return false
	}
	return e.Kind == Loading
}

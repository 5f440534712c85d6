// Package werr defines the error-kind taxonomy shared by every layer of the
// wallet kit, so callers can branch on "what kind of failure" without
// string-matching messages.
package werr

import (
	"errors"
	"fmt"
)

// Kind classifies a failure per the propagation rules each layer follows.
type Kind int

const (
	// Transport is an underlying socket/HTTP failure. Retried with backoff;
	// never surfaced as fatal on its own.
	Transport Kind = iota
	// Protocol means a peer violated the wire contract (bad RLP, bad MAC,
	// broken header chain, wrong genesis). Causes a disconnect + reconnect
	// after backoff; surfaced only if persistent.
	Protocol
	// Validation means the caller supplied bad input (bad address, bad hex,
	// negative amount). Returned synchronously, never retried.
	Validation
	// Unsupported means the operation isn't available in the active mode
	// (e.g. eth_call against an SPV back-end). Returned synchronously.
	Unsupported
	// State means the local store is inconsistent (missing parent header,
	// proof fails against root). Fatal to the current sync cycle.
	State
	// Cancelled means stop/clear interrupted an in-flight operation.
	// Surfaced once; never retried.
	Cancelled
)

func (k Kind) String() string {
	switch k {
	case Transport:
		return "transport"
	case Protocol:
		return "protocol"
	case Validation:
		return "validation"
	case Unsupported:
		return "unsupported"
	case State:
		return "state"
	case Cancelled:
		return "cancelled"
	default:
		return "unknown"
	}
}

// Error pairs a Kind with a message and an optional wrapped cause.
type Error struct {
	Kind    Kind
	Msg     string
	Cause   error
}

func (e *Error) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("%s: %s: %v", e.Kind, e.Msg, e.Cause)
	}
	return fmt.Sprintf("%s: %s", e.Kind, e.Msg)
}

func (e *Error) Unwrap() error { return e.Cause }

// New builds a Kind-tagged error with no wrapped cause.
func New(k Kind, msg string) error {
	return &Error{Kind: k, Msg: msg}
}

// Wrap tags cause with a Kind, preserving it for errors.Is/As. Returns nil
// if cause is nil.
func Wrap(k Kind, msg string, cause error) error {
	if cause == nil {
		return nil
	}
	return &Error{Kind: k, Msg: msg, Cause: cause}
}

// Is reports whether err (or something it wraps) carries the given Kind.
func Is(err error, k Kind) bool {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind == k
	}
	return false
}

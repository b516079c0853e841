// Package xerrors defines the error taxonomy shared across the shared-memory
// bridge: every operation either returns a valid result or one error carrying
// one of the Kinds below plus a human-readable cause.
package xerrors

import (
	"fmt"

	"github.com/pkg/errors"
)

// Kind classifies a bridge error so callers can branch on errors.As without
// parsing messages.
type Kind int

const (
	// KindChannelOpen covers segment or event creation/open failure.
	KindChannelOpen Kind = iota
	// KindSize covers an over-size payload, an over-size frame, or a
	// zero-length publication.
	KindSize
	// KindTimeout covers a wait on data_ready or ack that elapsed.
	KindTimeout
	// KindProtocol covers an out-of-order chunk, an illegal state
	// transition, or a malformed in-band chunk header.
	KindProtocol
	// KindShell covers a shell command that exited non-zero or wrote to
	// its error stream.
	KindShell
	// KindClosed covers an operation on a released channel handle.
	KindClosed
)

func (k Kind) String() string {
	switch k {
	case KindChannelOpen:
		return "ChannelOpenError"
	case KindSize:
		return "SizeError"
	case KindTimeout:
		return "Timeout"
	case KindProtocol:
		return "ProtocolError"
	case KindShell:
		return "ShellError"
	case KindClosed:
		return "Closed"
	default:
		return "Unknown"
	}
}

// Error is the single error type surfaced by every bridge operation.
type Error struct {
	Kind    Kind
	Channel string
	cause   error
}

func (e *Error) Error() string {
	if e.cause == nil {
		if e.Channel == "" {
			return e.Kind.String()
		}
		return fmt.Sprintf("%s: channel %q", e.Kind, e.Channel)
	}
	if e.Channel == "" {
		return fmt.Sprintf("%s: %v", e.Kind, e.cause)
	}
	return fmt.Sprintf("%s: channel %q: %v", e.Kind, e.Channel, e.cause)
}

func (e *Error) Unwrap() error { return e.cause }

// New builds an Error of the given kind with a wrapped cause. cause may be nil.
func New(kind Kind, channel string, cause error) *Error {
	return &Error{Kind: kind, Channel: channel, cause: cause}
}

// Wrap annotates cause with msg and returns it as the given Kind, preserving
// the original error for errors.Is/As via github.com/pkg/errors' stack trace.
func Wrap(kind Kind, channel string, cause error, msg string) *Error {
	return &Error{Kind: kind, Channel: channel, cause: errors.Wrap(cause, msg)}
}

// Is reports whether err carries the given Kind.
func Is(err error, kind Kind) bool {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind == kind
	}
	return false
}

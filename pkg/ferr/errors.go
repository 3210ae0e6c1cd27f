// Package ferr defines the error kinds surfaced across flureedb (spec §7)
// and a Wrap helper in the same spirit as the teacher's pkg/utils.Wrap.
package ferr

import (
	"errors"
	"fmt"
)

// Kind tags an error with the surface-level semantics spec §7 assigns it.
type Kind string

const (
	KindInvalidCommit    Kind = "db/invalid-commit"
	KindUnexpectedError  Kind = "db/unexpected-error"
	KindUnavailable      Kind = "db/unavailable"
	KindUnknownLedger    Kind = "db/unkown-ledger"
	KindUnknownAddress   Kind = "db/unkown-address"
	KindInvalidTime      Kind = "db/invalid-time"
	KindLedgerExists     Kind = "db/ledger-exists"
	KindTimeout          Kind = "db/timeout"
	KindNDJSONParseError Kind = "db/ndjson-parse-error"
	KindPublishingError  Kind = "db/publishing-error"
	KindNoPasswordAuth   Kind = "db/no-password-auth"
	KindInvalidRequest   Kind = "db/invalid-request"
	KindInvalidToken     Kind = "db/invalid-token"
)

// Error pairs a Kind with an underlying cause, so callers can branch on
// errors.As while still getting a useful message and %w chain.
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

// New builds an *Error with no underlying cause.
func New(kind Kind, message string) error {
	return &Error{Kind: kind, Message: message}
}

// Wrap adds a kind and message to cause. It returns nil if cause is nil,
// matching the teacher's pkg/utils.Wrap contract.
func Wrap(kind Kind, cause error, message string) error {
	if cause == nil {
		return nil
	}
	return &Error{Kind: kind, Message: message, Cause: cause}
}

// Is reports whether err (or anything it wraps) carries kind.
func Is(err error, kind Kind) bool {
	var fe *Error
	if errors.As(err, &fe) {
		return fe.Kind == kind
	}
	return false
}

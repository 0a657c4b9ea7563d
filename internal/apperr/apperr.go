// Package apperr defines the closed set of failure kinds produced by the
// seat reservation core.  Services return *Error values; the HTTP layer maps
// the Kind to a status code and never inspects the message text.
package apperr

import (
	"errors"
	"fmt"
	"strings"
)

// Kind identifies a failure class.  The set is closed: callers switch on
// the constants below.
type Kind string

const (
	SeatNotFound          Kind = "SEAT_NOT_FOUND"
	SeatWrongEvent        Kind = "SEAT_WRONG_EVENT"
	SeatNotAvailable      Kind = "SEAT_NOT_AVAILABLE"
	SeatLockContended     Kind = "SEAT_LOCK_CONTENDED"
	SeatNotReserved       Kind = "SEAT_NOT_RESERVED"
	LockOwnershipMismatch Kind = "LOCK_OWNERSHIP_MISMATCH"
	DurableWriteFailure   Kind = "DURABLE_WRITE_FAILURE"
	StoreUnavailable      Kind = "STORE_UNAVAILABLE"

	PurchaseNotFound    Kind = "PURCHASE_NOT_FOUND"
	PurchaseAlreadyPaid Kind = "PURCHASE_ALREADY_PAID"
	InvalidRequest      Kind = "INVALID_REQUEST"

	// Door check-in.
	PurchaseNotPaid  Kind = "PURCHASE_NOT_PAID"
	AlreadyCheckedIn Kind = "ALREADY_CHECKED_IN"

	// Unknown is reported by KindOf for errors that did not originate here.
	Unknown Kind = "UNKNOWN"
)

// Error carries a Kind plus the identifiers involved in the failed
// operation.  Err holds the underlying cause when there is one.
type Error struct {
	Kind       Kind
	EventID    string
	SeatID     string
	UserID     string
	PurchaseID string
	Err        error
}

func (e *Error) Error() string {
	var b strings.Builder
	b.WriteString(string(e.Kind))
	if e.EventID != "" {
		fmt.Fprintf(&b, " event=%s", e.EventID)
	}
	if e.SeatID != "" {
		fmt.Fprintf(&b, " seat=%s", e.SeatID)
	}
	if e.UserID != "" {
		fmt.Fprintf(&b, " user=%s", e.UserID)
	}
	if e.PurchaseID != "" {
		fmt.Fprintf(&b, " purchase=%s", e.PurchaseID)
	}
	if e.Err != nil {
		b.WriteString(": ")
		b.WriteString(e.Err.Error())
	}
	return b.String()
}

func (e *Error) Unwrap() error { return e.Err }

// Seat builds an error about a seat of an event.
func Seat(kind Kind, eventID, seatID string) *Error {
	return &Error{Kind: kind, EventID: eventID, SeatID: seatID}
}

// Wrap builds an error of the given kind around cause.
func Wrap(kind Kind, cause error, eventID, seatID string) *Error {
	return &Error{Kind: kind, EventID: eventID, SeatID: seatID, Err: cause}
}

// KindOf returns the Kind of the first *Error in err's chain, or Unknown.
func KindOf(err error) Kind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return Unknown
}

// Is reports whether err carries the given kind.
func Is(err error, kind Kind) bool {
	return err != nil && KindOf(err) == kind
}

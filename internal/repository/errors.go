// Package repository defines error types that are reused across multiple
// repositories. These sentinel values allow the service layer to
// distinguish between different failure scenarios without inspecting
// driver errors.
package repository

import "errors"

// ErrSeatNotFound is returned when a seat lookup yields no rows.
var ErrSeatNotFound = errors.New("seat not found")

// ErrPurchaseNotFound is returned when a purchase lookup yields no rows.
var ErrPurchaseNotFound = errors.New("purchase not found")

// ErrConflict is returned when a guarded update matched no row because
// the record was no longer in the expected state.  Callers re-read the
// record to decide what happened.
var ErrConflict = errors.New("conflict")

package model

import "time"

// SeatState is the durable state of a seat.  SOLD is terminal; BLOCKED is
// an administrative state excluded from reservation.
type SeatState string

const (
    SeatAvailable SeatState = "AVAILABLE"
    SeatReserving SeatState = "RESERVING"
    SeatSold      SeatState = "SOLD"
    SeatBlocked   SeatState = "BLOCKED"

    // SeatInProgress is never stored.  Seat views report it for a seat that
    // is AVAILABLE in the directory while a lease on it is live.
    SeatInProgress SeatState = "IN_PROGRESS"
)

// Valid reports whether s is one of the stored states.
func (s SeatState) Valid() bool {
    switch s {
    case SeatAvailable, SeatReserving, SeatSold, SeatBlocked:
        return true
    }
    return false
}

// Seat describes one sellable seat of an event.  Seats are uniquely
// identified within an event by their row label and number.  This struct
// corresponds to a row in the `seats` table.
//
// Fields:
//  ID         – primary key identifier (UUID).
//  EventID    – event the seat belongs to.
//  Row        – row label (A, B, AA ...).
//  Number     – seat number within the row.
//  State      – AVAILABLE, RESERVING, SOLD or BLOCKED.
//  ReservedAt – when the current reservation started (nil unless RESERVING).
//  CreatedAt  – creation timestamp.
//  UpdatedAt  – last update timestamp.
type Seat struct {
    ID         string     // seats.id
    EventID    string     // seats.event_id
    Row        string     // seats.row_label
    Number     uint32     // seats.seat_number
    State      SeatState  // seats.state
    ReservedAt *time.Time // seats.reserved_at (nullable)
    CreatedAt  time.Time  // seats.created_at
    UpdatedAt  time.Time  // seats.updated_at
}

package model

import "time"

// Attendance records one validated entry at the door.  A purchase has at
// most one attendance row; this struct corresponds to the `attendance`
// table.
type Attendance struct {
    ID          string    // attendance.id
    PurchaseID  string    // attendance.purchase_id
    UserID      string    // attendance.user_id (ticket holder)
    EventID     string    // attendance.event_id
    SeatID      string    // attendance.seat_id
    ValidatedBy string    // attendance.validated_by (operator)
    CheckedInAt time.Time // attendance.checked_in_at
}

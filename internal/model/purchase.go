package model

import "time"

// PaymentStatus is the lifecycle state of a purchase.
type PaymentStatus string

const (
    PaymentPending PaymentStatus = "PENDING"
    PaymentPaid    PaymentStatus = "PAID"
    PaymentFailed  PaymentStatus = "FAILED"
)

// Purchase links a seat, the buying user and the event with the status of
// the payment.  A purchase becomes PAID in the same transaction that marks
// its seat SOLD.  This struct corresponds to a row in the `purchases` table.
//
// Fields:
//  ID          – primary key identifier (UUID).
//  UserID      – buyer.
//  EventID     – event of the seat.
//  SeatID      – seat being bought.
//  AmountCents – price charged.
//  Status      – PENDING, PAID or FAILED.
//  Alias       – unique reference handed to the payer; webhooks quote it.
//  PaidAt      – when the payment was confirmed (nil until PAID).
//  CheckedInAt – when the ticket was used at the door (nil until then).
//  CheckedInBy – operator who validated the entry.
//  CreatedAt   – creation timestamp.
//  UpdatedAt   – last update timestamp.
type Purchase struct {
    ID          string        // purchases.id
    UserID      string        // purchases.user_id
    EventID     string        // purchases.event_id
    SeatID      string        // purchases.seat_id
    AmountCents uint32        // purchases.amount_cents
    Status      PaymentStatus // purchases.status
    Alias       string        // purchases.payment_alias
    PaidAt      *time.Time    // purchases.paid_at (nullable)
    CheckedInAt *time.Time    // purchases.checked_in_at (nullable)
    CheckedInBy string        // purchases.checked_in_by (nullable)
    CreatedAt   time.Time     // purchases.created_at
    UpdatedAt   time.Time     // purchases.updated_at
}

// Package queue defines message payloads exchanged over the message broker.
package queue

// PurchasePaidQueue is the durable queue receiving PurchasePaidEvent.
const PurchasePaidQueue = "purchase.paid"

// PurchasePaidEvent is published when a payment confirmation moves a seat
// to SOLD.  It contains enough information for downstream consumers to log,
// notify, or trigger analytics without querying the primary database.
type PurchasePaidEvent struct {
    PurchaseID   string `json:"purchase_id"`
    UserID       string `json:"user_id"`
    EventID      string `json:"event_id"`
    SeatID       string `json:"seat_id"`
    SeatLabel    string `json:"seat"`
    AmountCents  uint32 `json:"amount_cents"`
    PaymentAlias string `json:"payment_alias"`
    PaidAt       string `json:"paid_at"`
}

// Package realtime fans seat state changes out to every client watching an
// event.  Each process keeps the clients it serves in a Hub of rooms, one
// room per event.  Messages never go to the hub directly: they are
// published on a shared Backbone (Redis pub/sub or a RabbitMQ topic
// exchange) and every process, including the publisher, delivers what it
// receives from the backbone to its local rooms.  Delivery is best effort
// and at most once.
package realtime

import (
	"github.com/iliyamo/event-seat-reservation/internal/model"
)

// Type names a message kind on the wire.
type Type string

const (
	SeatReserved  Type = "seat_reserved"
	SeatReleased  Type = "seat_released"
	SeatSold      Type = "seat_sold"
	SeatsResynced Type = "seats_resynced"

	// SeatsSnapshot is only sent by the websocket handler as the first frame
	// of a connection.  It is never published on the backbone.
	SeatsSnapshot Type = "seats_snapshot"
)

// Message is the JSON frame clients receive.
type Message struct {
	Type       Type            `json:"type"`
	EventID    string          `json:"event_id"`
	SeatID     string          `json:"seat_id,omitempty"`
	State      model.SeatState `json:"state,omitempty"`
	TTLSeconds int             `json:"ttl_seconds,omitempty"`
	Count      int             `json:"count,omitempty"`
	Seats      interface{}     `json:"seats,omitempty"`
}

// Reserved announces that seatID is now held for ttlSeconds.
func Reserved(eventID, seatID string, ttlSeconds int) Message {
	return Message{Type: SeatReserved, EventID: eventID, SeatID: seatID, State: model.SeatReserving, TTLSeconds: ttlSeconds}
}

// Released announces that seatID is available again.
func Released(eventID, seatID string) Message {
	return Message{Type: SeatReleased, EventID: eventID, SeatID: seatID, State: model.SeatAvailable}
}

// Sold announces the terminal transition of seatID.
func Sold(eventID, seatID string) Message {
	return Message{Type: SeatSold, EventID: eventID, SeatID: seatID, State: model.SeatSold}
}

// Resynced tells clients that count seats changed without a per-seat
// message and that they should re-fetch the seat list.
func Resynced(eventID string, count int) Message {
	return Message{Type: SeatsResynced, EventID: eventID, Count: count}
}

// Snapshot wraps the authoritative seat list sent on room entry.
func Snapshot(eventID string, seats interface{}) Message {
	return Message{Type: SeatsSnapshot, EventID: eventID, Seats: seats}
}

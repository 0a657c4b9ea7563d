package handler

import (
    "encoding/json"

    "github.com/labstack/echo/v4"
    "golang.org/x/net/websocket"

    "github.com/iliyamo/event-seat-reservation/internal/realtime"
)

// RoomHandler upgrades clients into an event's realtime room.
type RoomHandler struct {
    Seats SeatService
    Hub   *realtime.Hub
}

func NewRoomHandler(seats SeatService, hub *realtime.Hub) *RoomHandler {
    if seats == nil || hub == nil {
        panic("nil dependency passed to NewRoomHandler")
    }
    return &RoomHandler{Seats: seats, Hub: hub}
}

// Join handles GET /v1/events/:eventId/ws.  The client is subscribed before
// the snapshot is read, so no change published after the snapshot can be
// missed; frames that raced the snapshot are harmless repeats.  Clients
// only listen; anything they send is discarded.
func (h *RoomHandler) Join(c echo.Context) error {
    eventID, ok := param(c, "eventId")
    if !ok {
        return badRequest(c, "invalid event id")
    }
    userID := getUserID(c)
    logger := c.Logger()

    websocket.Handler(func(ws *websocket.Conn) {
        defer ws.Close()
        sub := h.Hub.Join(eventID)
        defer sub.Close()

        ctx := c.Request().Context()
        views, err := h.Seats.ListEventSeats(ctx, eventID, userID)
        if err != nil {
            logger.Warnf("ws: snapshot event=%s: %v", eventID, err)
            return
        }
        first, err := json.Marshal(realtime.Snapshot(eventID, views))
        if err != nil {
            logger.Errorf("ws: encode snapshot event=%s: %v", eventID, err)
            return
        }
        if err := websocket.Message.Send(ws, string(first)); err != nil {
            return
        }

        gone := make(chan struct{})
        go func() {
            defer close(gone)
            var discard string
            for {
                if err := websocket.Message.Receive(ws, &discard); err != nil {
                    return
                }
            }
        }()

        for {
            select {
            case <-gone:
                return
            case <-ctx.Done():
                return
            case frame, ok := <-sub.C():
                if !ok {
                    return
                }
                if err := websocket.Message.Send(ws, string(frame)); err != nil {
                    return
                }
            }
        }
    }).ServeHTTP(c.Response(), c.Request())
    return nil
}

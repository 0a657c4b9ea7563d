package handler

import (
    "context"
    "net/http"
    "strings"

    "github.com/labstack/echo/v4"

    "github.com/iliyamo/event-seat-reservation/internal/model"
    "github.com/iliyamo/event-seat-reservation/internal/service"
)

// SeatService is the reservation core as seen by the HTTP layer.
type SeatService interface {
    Reserve(ctx context.Context, eventID, seatID, userID string) (service.SeatView, error)
    Release(ctx context.Context, eventID, seatID, userID string) (service.SeatView, error)
    ListEventSeats(ctx context.Context, eventID, userID string) ([]service.SeatView, error)
    GetSeat(ctx context.Context, seatID, userID string) (service.SeatView, error)
    LeaseStatus(ctx context.Context, eventID, seatID, userID string) (service.LeaseInfo, error)
    ForceUnlock(ctx context.Context, eventID, seatID string) (service.SeatView, error)
    SetBlocked(ctx context.Context, seatID string, blocked bool) (service.SeatView, error)
    CreateSeats(ctx context.Context, eventID string, specs []service.SeatSpec) ([]model.Seat, error)
}

// SeatHandler serves the seat map and the reserve/release endpoints.
type SeatHandler struct {
    Seats SeatService
}

func NewSeatHandler(seats SeatService) *SeatHandler {
    if seats == nil {
        panic("nil seat service passed to NewSeatHandler")
    }
    return &SeatHandler{Seats: seats}
}

// seatRequest is the body of reserve and release.
type seatRequest struct {
    EventID string `json:"event_id"`
    SeatID  string `json:"seat_id"`
}

func (r *seatRequest) bind(c echo.Context) bool {
    if err := c.Bind(r); err != nil {
        return false
    }
    r.EventID = strings.TrimSpace(r.EventID)
    r.SeatID = strings.TrimSpace(r.SeatID)
    return r.EventID != "" && r.SeatID != ""
}

// ListEventSeats handles GET /v1/events/:eventId/seats.  Anonymous callers
// get the same map without the locked_by_me flag.
func (h *SeatHandler) ListEventSeats(c echo.Context) error {
    eventID, ok := param(c, "eventId")
    if !ok {
        return badRequest(c, "invalid event id")
    }
    views, err := h.Seats.ListEventSeats(c.Request().Context(), eventID, getUserID(c))
    if err != nil {
        return respondError(c, err)
    }
    return c.JSON(http.StatusOK, echo.Map{"event_id": eventID, "seats": views})
}

// GetSeat handles GET /v1/seats/:seatId.
func (h *SeatHandler) GetSeat(c echo.Context) error {
    seatID, ok := param(c, "seatId")
    if !ok {
        return badRequest(c, "invalid seat id")
    }
    view, err := h.Seats.GetSeat(c.Request().Context(), seatID, getUserID(c))
    if err != nil {
        return respondError(c, err)
    }
    return c.JSON(http.StatusOK, view)
}

// LeaseStatus handles GET /v1/events/:eventId/seats/:seatId/lease.
func (h *SeatHandler) LeaseStatus(c echo.Context) error {
    eventID, ok1 := param(c, "eventId")
    seatID, ok2 := param(c, "seatId")
    if !ok1 || !ok2 {
        return badRequest(c, "invalid event or seat id")
    }
    info, err := h.Seats.LeaseStatus(c.Request().Context(), eventID, seatID, getUserID(c))
    if err != nil {
        return respondError(c, err)
    }
    return c.JSON(http.StatusOK, info)
}

// Reserve handles POST /v1/seats/reserve.  On success the caller holds the
// seat for the lease TTL reported in ttl_seconds.
func (h *SeatHandler) Reserve(c echo.Context) error {
    userID := getUserID(c)
    if userID == "" {
        return c.JSON(http.StatusUnauthorized, echo.Map{"error": "unauthorized", "code": "UNAUTHORIZED"})
    }
    var req seatRequest
    if !req.bind(c) {
        return badRequest(c, "event_id and seat_id are required")
    }
    view, err := h.Seats.Reserve(c.Request().Context(), req.EventID, req.SeatID, userID)
    if err != nil {
        return respondError(c, err)
    }
    return c.JSON(http.StatusOK, view)
}

// Release handles POST /v1/seats/release.
func (h *SeatHandler) Release(c echo.Context) error {
    userID := getUserID(c)
    if userID == "" {
        return c.JSON(http.StatusUnauthorized, echo.Map{"error": "unauthorized", "code": "UNAUTHORIZED"})
    }
    var req seatRequest
    if !req.bind(c) {
        return badRequest(c, "event_id and seat_id are required")
    }
    view, err := h.Seats.Release(c.Request().Context(), req.EventID, req.SeatID, userID)
    if err != nil {
        return respondError(c, err)
    }
    return c.JSON(http.StatusOK, view)
}

package handler

import (
    "context"
    "net/http"

    "github.com/labstack/echo/v4"

    "github.com/iliyamo/event-seat-reservation/internal/service"
)

// Sweeper heals seats whose lease expired without a release.
type Sweeper interface {
    Sweep(ctx context.Context, eventID string) (int, error)
}

// AdminHandler exposes operator actions.  Routes are guarded by
// RequireRole(ADMIN).
type AdminHandler struct {
    Seats   SeatService
    Sweeper Sweeper
}

func NewAdminHandler(seats SeatService, sweeper Sweeper) *AdminHandler {
    if seats == nil || sweeper == nil {
        panic("nil dependency passed to NewAdminHandler")
    }
    return &AdminHandler{Seats: seats, Sweeper: sweeper}
}

// CreateSeats handles POST /v1/admin/events/:eventId/seats with a body of
// {"seats":[{"row":"A","number":1},...]}.
func (h *AdminHandler) CreateSeats(c echo.Context) error {
    eventID, ok := param(c, "eventId")
    if !ok {
        return badRequest(c, "invalid event id")
    }
    var req struct {
        Seats []struct {
            Row    string `json:"row"`
            Number uint32 `json:"number"`
        } `json:"seats"`
    }
    if err := c.Bind(&req); err != nil {
        return badRequest(c, "invalid request body")
    }
    specs := make([]service.SeatSpec, 0, len(req.Seats))
    for _, s := range req.Seats {
        specs = append(specs, service.SeatSpec{Row: s.Row, Number: s.Number})
    }
    seats, err := h.Seats.CreateSeats(c.Request().Context(), eventID, specs)
    if err != nil {
        return respondError(c, err)
    }
    ids := make([]string, 0, len(seats))
    for _, s := range seats {
        ids = append(ids, s.ID)
    }
    return c.JSON(http.StatusCreated, echo.Map{"event_id": eventID, "created": len(seats), "seat_ids": ids})
}

// Sweep handles POST /v1/admin/events/:eventId/sweep and runs one
// reconciliation pass immediately.
func (h *AdminHandler) Sweep(c echo.Context) error {
    eventID, ok := param(c, "eventId")
    if !ok {
        return badRequest(c, "invalid event id")
    }
    n, err := h.Sweeper.Sweep(c.Request().Context(), eventID)
    if err != nil {
        return respondError(c, err)
    }
    return c.JSON(http.StatusOK, echo.Map{"event_id": eventID, "reset": n})
}

// ForceUnlock handles DELETE /v1/admin/events/:eventId/seats/:seatId/lease.
func (h *AdminHandler) ForceUnlock(c echo.Context) error {
    eventID, ok1 := param(c, "eventId")
    seatID, ok2 := param(c, "seatId")
    if !ok1 || !ok2 {
        return badRequest(c, "invalid event or seat id")
    }
    view, err := h.Seats.ForceUnlock(c.Request().Context(), eventID, seatID)
    if err != nil {
        return respondError(c, err)
    }
    return c.JSON(http.StatusOK, view)
}

func (h *AdminHandler) setBlocked(c echo.Context, blocked bool) error {
    seatID, ok := param(c, "seatId")
    if !ok {
        return badRequest(c, "invalid seat id")
    }
    view, err := h.Seats.SetBlocked(c.Request().Context(), seatID, blocked)
    if err != nil {
        return respondError(c, err)
    }
    return c.JSON(http.StatusOK, view)
}

// Block handles POST /v1/admin/seats/:seatId/block.
func (h *AdminHandler) Block(c echo.Context) error { return h.setBlocked(c, true) }

// Unblock handles POST /v1/admin/seats/:seatId/unblock.
func (h *AdminHandler) Unblock(c echo.Context) error { return h.setBlocked(c, false) }

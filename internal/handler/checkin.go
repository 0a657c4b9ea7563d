package handler

import (
    "context"
    "net/http"
    "strings"
    "time"

    "github.com/labstack/echo/v4"

    "github.com/iliyamo/event-seat-reservation/internal/model"
    "github.com/iliyamo/event-seat-reservation/internal/service"
)

// CheckInService validates tickets at the door.
type CheckInService interface {
    CheckIn(ctx context.Context, req service.CheckInRequest, operatorID string) (*model.Attendance, error)
    Attendance(ctx context.Context, eventID string) ([]model.Attendance, error)
}

// DoorHandler serves entry validation for operators.
type DoorHandler struct {
    Door CheckInService
}

func NewDoorHandler(door CheckInService) *DoorHandler {
    if door == nil {
        panic("nil check-in service passed to NewDoorHandler")
    }
    return &DoorHandler{Door: door}
}

type attendanceResponse struct {
    ID          string    `json:"id"`
    PurchaseID  string    `json:"purchase_id"`
    UserID      string    `json:"user_id"`
    EventID     string    `json:"event_id"`
    SeatID      string    `json:"seat_id"`
    ValidatedBy string    `json:"validated_by"`
    CheckedInAt time.Time `json:"checked_in_at"`
}

func toAttendanceResponse(a model.Attendance) attendanceResponse {
    return attendanceResponse{
        ID:          a.ID,
        PurchaseID:  a.PurchaseID,
        UserID:      a.UserID,
        EventID:     a.EventID,
        SeatID:      a.SeatID,
        ValidatedBy: a.ValidatedBy,
        CheckedInAt: a.CheckedInAt,
    }
}

// CheckIn handles POST /v1/admin/checkins with a body of
// {"purchase_id":"..."} or {"alias":"..."}, optionally with "event_id".
func (h *DoorHandler) CheckIn(c echo.Context) error {
    var req service.CheckInRequest
    if err := c.Bind(&req); err != nil {
        return badRequest(c, "invalid request body")
    }
    req.EventID = strings.TrimSpace(req.EventID)
    a, err := h.Door.CheckIn(c.Request().Context(), req, getUserID(c))
    if err != nil {
        return respondError(c, err)
    }
    return c.JSON(http.StatusCreated, toAttendanceResponse(*a))
}

// ListAttendance handles GET /v1/admin/events/:eventId/attendance.
func (h *DoorHandler) ListAttendance(c echo.Context) error {
    eventID, ok := param(c, "eventId")
    if !ok {
        return badRequest(c, "invalid event id")
    }
    list, err := h.Door.Attendance(c.Request().Context(), eventID)
    if err != nil {
        return respondError(c, err)
    }
    out := make([]attendanceResponse, 0, len(list))
    for _, a := range list {
        out = append(out, toAttendanceResponse(a))
    }
    return c.JSON(http.StatusOK, echo.Map{"event_id": eventID, "count": len(out), "attendance": out})
}

package handler

import (
    "net/http"

    "github.com/labstack/echo/v4"

    "github.com/iliyamo/event-seat-reservation/internal/apperr"
)

// statusFor maps a failure kind to its HTTP status.  Expected conditions
// are 4xx; durable write failures and store outages are 5xx and may be
// retried by the client.
func statusFor(kind apperr.Kind) int {
    switch kind {
    case apperr.SeatNotFound, apperr.PurchaseNotFound:
        return http.StatusNotFound
    case apperr.SeatWrongEvent, apperr.InvalidRequest:
        return http.StatusBadRequest
    case apperr.SeatNotAvailable, apperr.SeatLockContended, apperr.SeatNotReserved, apperr.PurchaseAlreadyPaid,
        apperr.PurchaseNotPaid, apperr.AlreadyCheckedIn:
        return http.StatusConflict
    case apperr.LockOwnershipMismatch:
        return http.StatusForbidden
    case apperr.StoreUnavailable:
        return http.StatusServiceUnavailable
    default:
        return http.StatusInternalServerError
    }
}

var messages = map[apperr.Kind]string{
    apperr.SeatNotFound:          "seat not found",
    apperr.SeatWrongEvent:        "seat does not belong to this event",
    apperr.SeatNotAvailable:      "seat is not available",
    apperr.SeatLockContended:     "seat is being reserved by someone else",
    apperr.SeatNotReserved:       "seat is not reserved",
    apperr.LockOwnershipMismatch: "you do not hold this seat",
    apperr.DurableWriteFailure:   "could not save the seat, please retry",
    apperr.StoreUnavailable:      "reservations are temporarily unavailable",
    apperr.PurchaseNotFound:      "purchase not found",
    apperr.PurchaseAlreadyPaid:   "purchase is already paid",
    apperr.InvalidRequest:        "invalid request",
    apperr.PurchaseNotPaid:       "purchase is not paid",
    apperr.AlreadyCheckedIn:      "ticket was already used",
}

// respondError writes {"error": msg, "code": KIND}.  Server-side failures
// are logged with their cause, which never reaches the client.
func respondError(c echo.Context, err error) error {
    kind := apperr.KindOf(err)
    status := statusFor(kind)
    msg, ok := messages[kind]
    if !ok {
        msg = "internal error"
    }
    if status >= http.StatusInternalServerError {
        c.Logger().Errorf("%s %s: %v", c.Request().Method, c.Path(), err)
    }
    return c.JSON(status, echo.Map{"error": msg, "code": string(kind)})
}

// badRequest rejects malformed input before it reaches a service.
func badRequest(c echo.Context, msg string) error {
    return c.JSON(http.StatusBadRequest, echo.Map{"error": msg, "code": string(apperr.InvalidRequest)})
}

package handler

import (
    "strings"

    "github.com/labstack/echo/v4"

    "github.com/iliyamo/event-seat-reservation/internal/middleware"
)

// getUserID returns the authenticated caller, or "" on public routes.
func getUserID(c echo.Context) string {
    return middleware.UserID(c)
}

// param returns a trimmed path parameter; ok is false when it is empty.
func param(c echo.Context, name string) (string, bool) {
    v := strings.TrimSpace(c.Param(name))
    return v, v != ""
}

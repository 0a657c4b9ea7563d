package router

import (
	"github.com/labstack/echo/v4"

	"github.com/iliyamo/event-seat-reservation/internal/handler"
	"github.com/iliyamo/event-seat-reservation/internal/middleware"
)

// RegisterAdmin registers operator endpoints under /v1/admin.  Every route
// requires a valid JWT with the ADMIN role.
func RegisterAdmin(e *echo.Echo, h *handler.AdminHandler, door *handler.DoorHandler, jwtSecret string) {
	g := e.Group(
		"/v1/admin",
		middleware.JWTAuth(jwtSecret),
		middleware.RequireRole(middleware.RoleAdmin),
	)
	g.POST("/events/:eventId/seats", h.CreateSeats)
	g.POST("/events/:eventId/sweep", h.Sweep)
	g.DELETE("/events/:eventId/seats/:seatId/lease", h.ForceUnlock)
	g.POST("/seats/:seatId/block", h.Block)
	g.POST("/seats/:seatId/unblock", h.Unblock)
	g.POST("/checkins", door.CheckIn)
	g.GET("/events/:eventId/attendance", door.ListAttendance)
}

package router

import (
	"github.com/labstack/echo/v4"

	"github.com/iliyamo/event-seat-reservation/internal/handler"
	"github.com/iliyamo/event-seat-reservation/internal/middleware"
)

// RegisterSeats registers the seat map, the realtime room and the
// reserve/release endpoints.  Browsing is open to guests; a token, when
// sent, personalises locked_by_me.  Reserve and release pass through the
// rate limiter after authentication so buckets are keyed by user.
func RegisterSeats(e *echo.Echo, h *handler.SeatHandler, room *handler.RoomHandler, limiter echo.MiddlewareFunc, jwtSecret string) {
	public := e.Group("/v1", middleware.OptionalJWT(jwtSecret))
	public.GET("/events/:eventId/seats", h.ListEventSeats)
	public.GET("/seats/:seatId", h.GetSeat)
	public.GET("/events/:eventId/ws", room.Join)

	g := e.Group(
		"/v1",
		middleware.JWTAuth(jwtSecret),
		middleware.RequireRole(middleware.RoleUser, middleware.RoleAdmin),
	)
	g.GET("/events/:eventId/seats/:seatId/lease", h.LeaseStatus)
	g.POST("/seats/reserve", h.Reserve, limiter)
	g.POST("/seats/release", h.Release, limiter)
}

// RegisterPurchases registers purchase creation for buyers and manual
// confirmation for operators.
func RegisterPurchases(e *echo.Echo, p *handler.PurchaseHandler, jwtSecret string) {
	g := e.Group(
		"/v1",
		middleware.JWTAuth(jwtSecret),
		middleware.RequireRole(middleware.RoleUser, middleware.RoleAdmin),
	)
	g.POST("/purchases", p.StartPurchase)
	g.POST("/purchases/:id/confirm", p.Confirm, middleware.RequireRole(middleware.RoleAdmin))
}

package router // package router defines how HTTP routes are registered for the API

import (
	"github.com/labstack/echo/v4" // import the Echo web framework to handle routing

	"github.com/iliyamo/event-seat-reservation/internal/handler" // handlers that call the reservation core
)

// RegisterRoutes registers routes that do not require authentication.  The
// health check pings every store passed in deps.
func RegisterRoutes(e *echo.Echo, deps map[string]handler.Pinger) {
	e.GET("/healthz", handler.Health(deps))
}

// RegisterWebhook registers the payer callback.  It carries no JWT; the
// handler authenticates the body signature instead.
func RegisterWebhook(e *echo.Echo, p *handler.PurchaseHandler) {
	e.POST("/v1/payments/webhook", p.Webhook)
}

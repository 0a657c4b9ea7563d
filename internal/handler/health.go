package handler // declare the package name; contains HTTP handlers

import (
    "context"
    "net/http" // net/http provides status codes and response helpers
    "time"

    "github.com/labstack/echo/v4" // echo is the web framework used for this project
)

// Pinger is satisfied by *sql.DB and by the Redis client adapter.
type Pinger interface {
    PingContext(ctx context.Context) error
}

// Health reports whether the service and its stores are reachable.  It
// returns 200 "ok" when every dependency answers and 503 naming the
// failing ones otherwise, so load balancers drain a process that lost a
// store.
func Health(deps map[string]Pinger) echo.HandlerFunc {
    return func(c echo.Context) error {
        if len(deps) == 0 {
            return c.String(http.StatusOK, "ok")
        }
        ctx, cancel := context.WithTimeout(c.Request().Context(), 2*time.Second)
        defer cancel()
        failed := echo.Map{}
        for name, p := range deps {
            if err := p.PingContext(ctx); err != nil {
                failed[name] = err.Error()
            }
        }
        if len(failed) > 0 {
            return c.JSON(http.StatusServiceUnavailable, echo.Map{"status": "degraded", "failed": failed})
        }
        return c.String(http.StatusOK, "ok")
    }
}

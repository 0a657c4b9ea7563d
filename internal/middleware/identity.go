package middleware

// identity.go defines the context keys JWTAuth fills and the helpers that
// read them back.  Handlers and other middleware never touch the raw token.

import (
    "strconv"

    "github.com/labstack/echo/v4"
)

// Context keys set by JWTAuth and OptionalJWT.
const (
    ContextUserID = "user_id"
    ContextRole   = "role"
)

// Roles carried in the "role" claim.
const (
    RoleUser  = "USER"
    RoleAdmin = "ADMIN"
)

// UserID returns the authenticated user or "" for anonymous requests.
func UserID(c echo.Context) string {
    s, _ := c.Get(ContextUserID).(string)
    return s
}

// Role returns the role claim or "".
func Role(c echo.Context) string {
    s, _ := c.Get(ContextRole).(string)
    return s
}

// subject converts a "sub" claim to a user ID.  Tokens issued by older
// tooling carry numeric subjects, which JSON decodes as float64.
func subject(v interface{}) string {
    switch t := v.(type) {
    case string:
        return t
    case float64:
        return strconv.FormatInt(int64(t), 10)
    }
    return ""
}

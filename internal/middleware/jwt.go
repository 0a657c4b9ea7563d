package middleware // declare the middleware package; contains reusable HTTP middleware functions

import (
    "errors"
    "net/http" // HTTP status codes for responses
    "strings"  // string utilities for prefix checking and trimming

    "github.com/golang-jwt/jwt/v5" // JWT library for parsing and validating tokens
    "github.com/labstack/echo/v4"  // Echo framework used for defining middleware and handlers
)

var (
    errNoToken      = errors.New("missing bearer token")
    errInvalidToken = errors.New("invalid token")
)

// parseBearer validates the Bearer token of the request and stores its
// subject and role in the context.
func parseBearer(c echo.Context, secret string) error {
    auth := c.Request().Header.Get("Authorization")
    if !strings.HasPrefix(auth, "Bearer ") {
        return errNoToken
    }
    raw := strings.TrimPrefix(auth, "Bearer ")

    // Only HMAC-signed tokens are accepted; the callback rejects any other
    // algorithm before the signature is checked.
    tok, err := jwt.Parse(raw, func(t *jwt.Token) (interface{}, error) {
        if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
            return nil, echo.ErrUnauthorized
        }
        return []byte(secret), nil
    })
    if err != nil || !tok.Valid {
        return errInvalidToken
    }
    claims, ok := tok.Claims.(jwt.MapClaims)
    if !ok {
        return errInvalidToken
    }
    uid := subject(claims["sub"])
    if uid == "" {
        return errInvalidToken
    }
    role, _ := claims["role"].(string)
    if role == "" {
        role = RoleUser
    }
    c.Set(ContextUserID, uid)
    c.Set(ContextRole, role)
    return nil
}

// JWTAuth returns an Echo middleware that requires a valid Bearer access
// token and injects the token's subject and role into the request context.
// Handlers read them with UserID and Role.
func JWTAuth(secret string) echo.MiddlewareFunc {
    return func(next echo.HandlerFunc) echo.HandlerFunc {
        return func(c echo.Context) error {
            if err := parseBearer(c, secret); err != nil {
                return c.JSON(http.StatusUnauthorized, echo.Map{"error": err.Error(), "code": "UNAUTHORIZED"})
            }
            return next(c)
        }
    }
}

// OptionalJWT identifies the caller when a token is present and lets
// anonymous requests through.  A token that is present but invalid is
// still rejected, so a client never silently loses its identity.
func OptionalJWT(secret string) echo.MiddlewareFunc {
    return func(next echo.HandlerFunc) echo.HandlerFunc {
        return func(c echo.Context) error {
            err := parseBearer(c, secret)
            if err != nil && !errors.Is(err, errNoToken) {
                return c.JSON(http.StatusUnauthorized, echo.Map{"error": err.Error(), "code": "UNAUTHORIZED"})
            }
            return next(c)
        }
    }
}

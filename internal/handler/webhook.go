package handler

import (
    "encoding/json"
    "io"
    "net/http"
    "strings"

    "github.com/labstack/echo/v4"

    "github.com/iliyamo/event-seat-reservation/internal/apperr"
    "github.com/iliyamo/event-seat-reservation/internal/service"
    "github.com/iliyamo/event-seat-reservation/internal/utils"
)

// Payer acknowledgement codes.  The payer retries anything that is not
// webhookOK.
const (
    webhookOK       = "0000"
    webhookRejected = "1212"
)

const maxWebhookBody = 64 << 10

// SignatureHeader carries the hex HMAC-SHA256 of the raw webhook body.
const SignatureHeader = "X-Signature"

// Webhook handles POST /v1/payments/webhook.  The body is authenticated
// with the shared secret before it is parsed.  A payment that was already
// applied is acknowledged with webhookOK so re-deliveries stop.
func (h *PurchaseHandler) Webhook(c echo.Context) error {
    body, err := io.ReadAll(io.LimitReader(c.Request().Body, maxWebhookBody+1))
    if err != nil || len(body) > maxWebhookBody {
        return badRequest(c, "unreadable body")
    }
    if !utils.VerifyPayload(h.WebhookSecret, body, c.Request().Header.Get(SignatureHeader)) {
        return c.JSON(http.StatusUnauthorized, echo.Map{"error": "invalid signature", "code": "UNAUTHORIZED"})
    }

    var req struct {
        Alias  string `json:"alias"`
        Status string `json:"status"`
    }
    if err := json.Unmarshal(body, &req); err != nil {
        return badRequest(c, "invalid json")
    }
    req.Alias = strings.TrimSpace(req.Alias)
    if req.Alias == "" {
        return c.JSON(http.StatusOK, echo.Map{"code": webhookRejected, "message": "missing alias"})
    }
    if req.Status == "" {
        req.Status = "PAID"
    }

    res, err := h.Payments.ConfirmPayment(c.Request().Context(), service.Confirmation{Alias: req.Alias, Status: req.Status})
    if err == nil {
        return c.JSON(http.StatusOK, echo.Map{"code": webhookOK, "applied": res.Applied})
    }
    switch apperr.KindOf(err) {
    case apperr.PurchaseNotFound:
        return c.JSON(http.StatusOK, echo.Map{"code": webhookRejected, "message": "unknown alias"})
    case apperr.DurableWriteFailure, apperr.StoreUnavailable, apperr.Unknown:
        // 5xx makes the payer retry later.
        return respondError(c, err)
    default:
        c.Logger().Warnf("webhook alias=%s status=%s not applied: %v", req.Alias, req.Status, err)
        return c.JSON(http.StatusOK, echo.Map{"code": webhookRejected, "message": strings.ToLower(string(apperr.KindOf(err)))})
    }
}

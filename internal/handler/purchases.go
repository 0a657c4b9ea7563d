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

// PaymentService opens purchases and applies payment outcomes.
type PaymentService interface {
    StartPurchase(ctx context.Context, eventID, seatID, userID string, amountCents uint32) (*model.Purchase, error)
    ConfirmPayment(ctx context.Context, c service.Confirmation) (service.ConfirmResult, error)
}

// PurchaseHandler serves purchase creation and payment confirmation.
type PurchaseHandler struct {
    Payments      PaymentService
    WebhookSecret string
}

func NewPurchaseHandler(payments PaymentService, webhookSecret string) *PurchaseHandler {
    if payments == nil {
        panic("nil payment service passed to NewPurchaseHandler")
    }
    return &PurchaseHandler{Payments: payments, WebhookSecret: webhookSecret}
}

type purchaseResponse struct {
    ID          string     `json:"id"`
    UserID      string     `json:"user_id"`
    EventID     string     `json:"event_id"`
    SeatID      string     `json:"seat_id"`
    AmountCents uint32     `json:"amount_cents"`
    Status      string     `json:"status"`
    Alias       string     `json:"payment_alias"`
    PaidAt      *time.Time `json:"paid_at,omitempty"`
    CreatedAt   time.Time  `json:"created_at"`
}

func toPurchaseResponse(p *model.Purchase) purchaseResponse {
    return purchaseResponse{
        ID:          p.ID,
        UserID:      p.UserID,
        EventID:     p.EventID,
        SeatID:      p.SeatID,
        AmountCents: p.AmountCents,
        Status:      string(p.Status),
        Alias:       p.Alias,
        PaidAt:      p.PaidAt,
        CreatedAt:   p.CreatedAt,
    }
}

// StartPurchase handles POST /v1/purchases.  The caller must currently hold
// the seat's lease; the returned payment_alias is what the payer quotes
// back in its webhook.
func (h *PurchaseHandler) StartPurchase(c echo.Context) error {
    userID := getUserID(c)
    if userID == "" {
        return c.JSON(http.StatusUnauthorized, echo.Map{"error": "unauthorized", "code": "UNAUTHORIZED"})
    }
    var req struct {
        EventID     string `json:"event_id"`
        SeatID      string `json:"seat_id"`
        AmountCents uint32 `json:"amount_cents"`
    }
    if err := c.Bind(&req); err != nil {
        return badRequest(c, "invalid request body")
    }
    req.EventID = strings.TrimSpace(req.EventID)
    req.SeatID = strings.TrimSpace(req.SeatID)
    if req.EventID == "" || req.SeatID == "" {
        return badRequest(c, "event_id and seat_id are required")
    }
    p, err := h.Payments.StartPurchase(c.Request().Context(), req.EventID, req.SeatID, userID, req.AmountCents)
    if err != nil {
        return respondError(c, err)
    }
    return c.JSON(http.StatusCreated, toPurchaseResponse(p))
}

// Confirm handles POST /v1/purchases/:id/confirm, used by operators and by
// the payment poller to push a result for a known purchase.
func (h *PurchaseHandler) Confirm(c echo.Context) error {
    purchaseID, ok := param(c, "id")
    if !ok {
        return badRequest(c, "invalid purchase id")
    }
    var req struct {
        Status  string `json:"status"`
        EventID string `json:"event_id"`
        SeatID  string `json:"seat_id"`
    }
    if err := c.Bind(&req); err != nil {
        return badRequest(c, "invalid request body")
    }
    res, err := h.Payments.ConfirmPayment(c.Request().Context(), service.Confirmation{
        PurchaseID: purchaseID,
        EventID:    strings.TrimSpace(req.EventID),
        SeatID:     strings.TrimSpace(req.SeatID),
        Status:     req.Status,
    })
    if err != nil {
        return respondError(c, err)
    }
    return c.JSON(http.StatusOK, echo.Map{"purchase": toPurchaseResponse(res.Purchase), "applied": res.Applied})
}

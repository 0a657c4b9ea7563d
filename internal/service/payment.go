package service

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/labstack/gommon/log"

	"github.com/iliyamo/event-seat-reservation/internal/apperr"
	"github.com/iliyamo/event-seat-reservation/internal/clock"
	"github.com/iliyamo/event-seat-reservation/internal/model"
	"github.com/iliyamo/event-seat-reservation/internal/queue"
	"github.com/iliyamo/event-seat-reservation/internal/realtime"
	"github.com/iliyamo/event-seat-reservation/internal/repository"
)

// Confirmation is a payment result from polling or the payer's webhook.
// Either PurchaseID or Alias identifies the purchase; EventID and SeatID
// are optional cross-checks.
type Confirmation struct {
	PurchaseID string `json:"purchase_id"`
	Alias      string `json:"alias"`
	EventID    string `json:"event_id"`
	SeatID     string `json:"seat_id"`
	Status     string `json:"status"`
}

// ConfirmResult reports the purchase after a confirmation.  Applied is
// false when the confirmation changed nothing, e.g. a re-delivery.
type ConfirmResult struct {
	Purchase *model.Purchase `json:"purchase"`
	Applied  bool            `json:"applied"`
}

// PaymentReconciler drives RESERVING seats to SOLD or back to AVAILABLE
// when a payment outcome is known.
type PaymentReconciler struct {
	seats     SeatDirectory
	purchases PurchaseStore
	leases    LeaseStore
	notifier  Notifier
	paid      PaidPublisher
	clock     clock.Clock
	logger    *log.Logger
}

func NewPaymentReconciler(seats SeatDirectory, purchases PurchaseStore, leases LeaseStore, notifier Notifier, paid PaidPublisher, clk clock.Clock, logger *log.Logger) *PaymentReconciler {
	return &PaymentReconciler{seats: seats, purchases: purchases, leases: leases, notifier: notifier, paid: paid, clock: clk, logger: logger}
}

func (r *PaymentReconciler) notify(ctx context.Context, msg realtime.Message) {
	if r.notifier == nil {
		return
	}
	if err := r.notifier.Publish(ctx, msg); err != nil {
		r.logger.Warnf("payment: broadcast %s event=%s seat=%s failed: %v", msg.Type, msg.EventID, msg.SeatID, err)
	}
}

func (r *PaymentReconciler) getSeat(ctx context.Context, eventID, seatID string) (*model.Seat, error) {
	seat, err := r.seats.GetByID(ctx, seatID)
	if errors.Is(err, repository.ErrSeatNotFound) {
		return nil, apperr.Seat(apperr.SeatNotFound, eventID, seatID)
	}
	if err != nil {
		return nil, apperr.Wrap(apperr.StoreUnavailable, err, eventID, seatID)
	}
	return seat, nil
}

// StartPurchase opens a PENDING purchase for a seat the caller holds.  A
// caller that already has a pending purchase for the seat gets that one
// back, so retries never leave a second purchase to be paid.
func (r *PaymentReconciler) StartPurchase(ctx context.Context, eventID, seatID, userID string, amountCents uint32) (*model.Purchase, error) {
	seat, err := r.getSeat(ctx, eventID, seatID)
	if err != nil {
		return nil, err
	}
	if seat.EventID != eventID {
		return nil, apperr.Seat(apperr.SeatWrongEvent, eventID, seatID)
	}
	if seat.State != model.SeatReserving {
		return nil, apperr.Seat(apperr.SeatNotReserved, eventID, seatID)
	}
	owner, held, err := r.leases.Owner(ctx, eventID, seatID)
	if err != nil {
		return nil, apperr.Wrap(apperr.StoreUnavailable, err, eventID, seatID)
	}
	if !held || owner != userID {
		e := apperr.Seat(apperr.LockOwnershipMismatch, eventID, seatID)
		e.UserID = userID
		return nil, e
	}

	existing, err := r.purchases.FindPending(ctx, seatID, userID)
	switch {
	case err == nil:
		r.logger.Infof("payment: reusing pending purchase %s event=%s seat=%s user=%s", existing.ID, eventID, seatID, userID)
		return existing, nil
	case !errors.Is(err, repository.ErrPurchaseNotFound):
		return nil, &apperr.Error{Kind: apperr.StoreUnavailable, EventID: eventID, SeatID: seatID, UserID: userID, Err: err}
	}

	p := &model.Purchase{
		UserID:      userID,
		EventID:     eventID,
		SeatID:      seatID,
		AmountCents: amountCents,
		Status:      model.PaymentPending,
	}
	if err := r.purchases.CreatePending(ctx, p); err != nil {
		return nil, apperr.Wrap(apperr.DurableWriteFailure, err, eventID, seatID)
	}
	r.logger.Infof("payment: purchase %s pending event=%s seat=%s user=%s alias=%s", p.ID, eventID, seatID, userID, p.Alias)
	return p, nil
}

func (r *PaymentReconciler) resolve(ctx context.Context, c Confirmation) (*model.Purchase, error) {
	var (
		p   *model.Purchase
		err error
	)
	switch {
	case c.PurchaseID != "":
		p, err = r.purchases.GetByID(ctx, c.PurchaseID)
	case c.Alias != "":
		p, err = r.purchases.GetByAlias(ctx, c.Alias)
	default:
		return nil, &apperr.Error{Kind: apperr.InvalidRequest, Err: errors.New("purchase id or alias required")}
	}
	if errors.Is(err, repository.ErrPurchaseNotFound) {
		return nil, &apperr.Error{Kind: apperr.PurchaseNotFound, PurchaseID: c.PurchaseID, Err: fmt.Errorf("alias %q", c.Alias)}
	}
	if err != nil {
		return nil, &apperr.Error{Kind: apperr.StoreUnavailable, PurchaseID: c.PurchaseID, Err: err}
	}
	if (c.SeatID != "" && c.SeatID != p.SeatID) || (c.EventID != "" && c.EventID != p.EventID) {
		return nil, &apperr.Error{Kind: apperr.InvalidRequest, EventID: c.EventID, SeatID: c.SeatID, PurchaseID: p.ID, Err: errors.New("confirmation does not match purchase")}
	}
	return p, nil
}

// ConfirmPayment applies a payment outcome.  PAID sells the seat;
// CANCELLED, FAILED and EXPIRED release it; PENDING changes nothing.
// Repeated confirmations are no-ops that succeed.
func (r *PaymentReconciler) ConfirmPayment(ctx context.Context, c Confirmation) (ConfirmResult, error) {
	p, err := r.resolve(ctx, c)
	if err != nil {
		return ConfirmResult{}, err
	}
	switch strings.ToUpper(strings.TrimSpace(c.Status)) {
	case "PAID":
		return r.confirmPaid(ctx, p)
	case "CANCELLED", "CANCELED", "FAILED", "EXPIRED":
		return r.cancel(ctx, p)
	case "PENDING":
		return ConfirmResult{Purchase: p}, nil
	default:
		return ConfirmResult{}, &apperr.Error{Kind: apperr.InvalidRequest, PurchaseID: p.ID, Err: fmt.Errorf("unknown payment status %q", c.Status)}
	}
}

func (r *PaymentReconciler) confirmPaid(ctx context.Context, p *model.Purchase) (ConfirmResult, error) {
	seat, err := r.getSeat(ctx, p.EventID, p.SeatID)
	if err != nil {
		return ConfirmResult{}, err
	}
	if seat.State == model.SeatSold {
		return r.alreadySold(ctx, p)
	}
	if p.Status == model.PaymentFailed {
		return ConfirmResult{}, &apperr.Error{Kind: apperr.InvalidRequest, EventID: p.EventID, SeatID: p.SeatID, PurchaseID: p.ID, Err: errors.New("purchase was cancelled")}
	}
	if seat.State != model.SeatReserving {
		return ConfirmResult{}, &apperr.Error{Kind: apperr.SeatNotReserved, EventID: p.EventID, SeatID: p.SeatID, PurchaseID: p.ID}
	}

	paidAt := r.clock.Now()
	err = r.purchases.MarkPaid(ctx, p.ID, p.SeatID, paidAt)
	if errors.Is(err, repository.ErrConflict) {
		// A concurrent confirmation may have won; SOLD means this one is a
		// duplicate.
		again, gerr := r.getSeat(ctx, p.EventID, p.SeatID)
		if gerr != nil {
			return ConfirmResult{}, gerr
		}
		if again.State == model.SeatSold {
			return ConfirmResult{Purchase: r.reload(ctx, p)}, nil
		}
		return ConfirmResult{}, &apperr.Error{Kind: apperr.SeatNotReserved, EventID: p.EventID, SeatID: p.SeatID, PurchaseID: p.ID, Err: err}
	}
	if err != nil {
		return ConfirmResult{}, &apperr.Error{Kind: apperr.DurableWriteFailure, EventID: p.EventID, SeatID: p.SeatID, PurchaseID: p.ID, Err: err}
	}

	cctx, cancel := detached(ctx)
	defer cancel()
	if err := r.leases.ForceRelease(cctx, p.EventID, p.SeatID); err != nil {
		r.logger.Warnf("payment: dropping lease of sold seat=%s failed: %v", p.SeatID, err)
	}
	r.logger.Infof("payment: purchase %s paid, seat=%s sold event=%s", p.ID, p.SeatID, p.EventID)
	r.notify(ctx, realtime.Sold(p.EventID, p.SeatID))

	p.Status = model.PaymentPaid
	p.PaidAt = &paidAt
	if r.paid != nil {
		ev := queue.PurchasePaidEvent{
			PurchaseID:   p.ID,
			UserID:       p.UserID,
			EventID:      p.EventID,
			SeatID:       p.SeatID,
			SeatLabel:    fmt.Sprintf("%s%d", seat.Row, seat.Number),
			AmountCents:  p.AmountCents,
			PaymentAlias: p.Alias,
			PaidAt:       paidAt.Format(time.RFC3339),
		}
		if err := r.paid.PublishPurchasePaid(cctx, ev); err != nil {
			r.logger.Warnf("payment: publish purchase.paid %s failed: %v", p.ID, err)
		}
	}
	return ConfirmResult{Purchase: p, Applied: true}, nil
}

// alreadySold settles a PAID confirmation for a seat that is SOLD.  When p
// itself is the paid purchase the confirmation is a duplicate.  Otherwise
// another purchase sold the seat; p is closed as FAILED so it cannot stay
// pending, and the confirmation is rejected.
func (r *PaymentReconciler) alreadySold(ctx context.Context, p *model.Purchase) (ConfirmResult, error) {
	p = r.reload(ctx, p)
	if p.Status == model.PaymentPaid {
		return ConfirmResult{Purchase: p}, nil
	}
	if p.Status == model.PaymentPending {
		_, err := r.purchases.MarkFailed(ctx, p.ID, p.SeatID, false)
		if errors.Is(err, repository.ErrConflict) {
			if again := r.reload(ctx, p); again.Status == model.PaymentPaid {
				return ConfirmResult{Purchase: again}, nil
			}
		} else if err != nil {
			return ConfirmResult{}, &apperr.Error{Kind: apperr.DurableWriteFailure, EventID: p.EventID, SeatID: p.SeatID, PurchaseID: p.ID, Err: err}
		}
	}
	r.logger.Warnf("payment: purchase %s paid but seat=%s already sold by another purchase; purchase failed", p.ID, p.SeatID)
	return ConfirmResult{}, &apperr.Error{Kind: apperr.SeatNotAvailable, EventID: p.EventID, SeatID: p.SeatID, PurchaseID: p.ID, Err: errors.New("seat sold by another purchase")}
}

func (r *PaymentReconciler) cancel(ctx context.Context, p *model.Purchase) (ConfirmResult, error) {
	switch p.Status {
	case model.PaymentPaid:
		return ConfirmResult{}, &apperr.Error{Kind: apperr.PurchaseAlreadyPaid, EventID: p.EventID, SeatID: p.SeatID, PurchaseID: p.ID}
	case model.PaymentFailed:
		return ConfirmResult{Purchase: p}, nil
	}

	// Lease first, durable reset second, as on release.  The seat is only
	// reset when the buyer's lease was dropped here or is already gone; a
	// seat re-reserved by someone else after the buyer's lease expired is
	// left alone.
	resetSeat := false
	owner, held, err := r.leases.Owner(ctx, p.EventID, p.SeatID)
	switch {
	case err != nil:
		r.logger.Warnf("payment: lease of cancelled seat=%s unknown, leaving seat to the sweeper: %v", p.SeatID, err)
	case !held:
		resetSeat = true
	case owner == p.UserID:
		released, rerr := r.leases.Release(ctx, p.EventID, p.SeatID, p.UserID)
		if rerr != nil {
			r.logger.Warnf("payment: dropping lease of cancelled seat=%s failed: %v", p.SeatID, rerr)
		}
		resetSeat = released
	}
	reset, err := r.purchases.MarkFailed(ctx, p.ID, p.SeatID, resetSeat)
	if errors.Is(err, repository.ErrConflict) {
		again := r.reload(ctx, p)
		if again.Status == model.PaymentPaid {
			return ConfirmResult{}, &apperr.Error{Kind: apperr.PurchaseAlreadyPaid, EventID: p.EventID, SeatID: p.SeatID, PurchaseID: p.ID}
		}
		return ConfirmResult{Purchase: again}, nil
	}
	if err != nil {
		return ConfirmResult{}, &apperr.Error{Kind: apperr.DurableWriteFailure, EventID: p.EventID, SeatID: p.SeatID, PurchaseID: p.ID, Err: err}
	}
	r.logger.Infof("payment: purchase %s cancelled event=%s seat=%s reset=%t", p.ID, p.EventID, p.SeatID, reset)
	if reset {
		r.notify(ctx, realtime.Released(p.EventID, p.SeatID))
	}
	p.Status = model.PaymentFailed
	return ConfirmResult{Purchase: p, Applied: true}, nil
}

// reload re-reads p, falling back to p when the read fails.
func (r *PaymentReconciler) reload(ctx context.Context, p *model.Purchase) *model.Purchase {
	fresh, err := r.purchases.GetByID(ctx, p.ID)
	if err != nil {
		return p
	}
	return fresh
}

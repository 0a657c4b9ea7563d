package service

import (
	"context"
	"errors"
	"strings"

	"github.com/labstack/gommon/log"

	"github.com/iliyamo/event-seat-reservation/internal/apperr"
	"github.com/iliyamo/event-seat-reservation/internal/clock"
	"github.com/iliyamo/event-seat-reservation/internal/model"
	"github.com/iliyamo/event-seat-reservation/internal/repository"
)

// CheckInRequest identifies the ticket shown at the door by purchase ID or
// payment alias.  EventID, when set, must match the purchase so a ticket
// cannot be used at another event.
type CheckInRequest struct {
	PurchaseID string `json:"purchase_id"`
	Alias      string `json:"alias"`
	EventID    string `json:"event_id"`
}

// DoorCheck validates entries.  Each PAID purchase admits once.
type DoorCheck struct {
	purchases  PurchaseStore
	attendance AttendanceStore
	clock      clock.Clock
	logger     *log.Logger
}

func NewDoorCheck(purchases PurchaseStore, attendance AttendanceStore, clk clock.Clock, logger *log.Logger) *DoorCheck {
	return &DoorCheck{purchases: purchases, attendance: attendance, clock: clk, logger: logger}
}

// CheckIn admits the holder of a PAID, unused purchase and records who
// validated the entry.
func (d *DoorCheck) CheckIn(ctx context.Context, req CheckInRequest, operatorID string) (*model.Attendance, error) {
	var (
		p   *model.Purchase
		err error
	)
	switch {
	case strings.TrimSpace(req.PurchaseID) != "":
		p, err = d.purchases.GetByID(ctx, strings.TrimSpace(req.PurchaseID))
	case strings.TrimSpace(req.Alias) != "":
		p, err = d.purchases.GetByAlias(ctx, strings.TrimSpace(req.Alias))
	default:
		return nil, &apperr.Error{Kind: apperr.InvalidRequest, Err: errors.New("purchase id or alias required")}
	}
	if errors.Is(err, repository.ErrPurchaseNotFound) {
		return nil, &apperr.Error{Kind: apperr.PurchaseNotFound, PurchaseID: req.PurchaseID}
	}
	if err != nil {
		return nil, &apperr.Error{Kind: apperr.StoreUnavailable, PurchaseID: req.PurchaseID, Err: err}
	}
	if req.EventID != "" && req.EventID != p.EventID {
		return nil, &apperr.Error{Kind: apperr.InvalidRequest, EventID: req.EventID, PurchaseID: p.ID, Err: errors.New("ticket is for another event")}
	}
	if err := checkAdmissible(p); err != nil {
		return nil, err
	}

	a, err := d.attendance.CheckIn(ctx, p.ID, operatorID, d.clock.Now())
	if errors.Is(err, repository.ErrConflict) {
		// Lost a race with another door; report what the row says now.
		fresh, gerr := d.purchases.GetByID(ctx, p.ID)
		if gerr != nil {
			return nil, &apperr.Error{Kind: apperr.StoreUnavailable, PurchaseID: p.ID, Err: gerr}
		}
		if cerr := checkAdmissible(fresh); cerr != nil {
			return nil, cerr
		}
		return nil, &apperr.Error{Kind: apperr.AlreadyCheckedIn, PurchaseID: p.ID, Err: err}
	}
	if err != nil {
		return nil, &apperr.Error{Kind: apperr.DurableWriteFailure, EventID: p.EventID, SeatID: p.SeatID, PurchaseID: p.ID, Err: err}
	}
	d.logger.Infof("checkin: purchase %s admitted event=%s seat=%s by=%s", p.ID, p.EventID, p.SeatID, operatorID)
	return a, nil
}

func checkAdmissible(p *model.Purchase) error {
	if p.Status != model.PaymentPaid {
		return &apperr.Error{Kind: apperr.PurchaseNotPaid, EventID: p.EventID, SeatID: p.SeatID, PurchaseID: p.ID}
	}
	if p.CheckedInAt != nil {
		return &apperr.Error{Kind: apperr.AlreadyCheckedIn, EventID: p.EventID, SeatID: p.SeatID, PurchaseID: p.ID}
	}
	return nil
}

// Attendance lists the entries validated for an event.
func (d *DoorCheck) Attendance(ctx context.Context, eventID string) ([]model.Attendance, error) {
	eventID = strings.TrimSpace(eventID)
	if eventID == "" {
		return nil, &apperr.Error{Kind: apperr.InvalidRequest, Err: errors.New("event id required")}
	}
	list, err := d.attendance.ListAttendance(ctx, eventID)
	if err != nil {
		return nil, &apperr.Error{Kind: apperr.StoreUnavailable, EventID: eventID, Err: err}
	}
	return list, nil
}

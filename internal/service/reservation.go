package service

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/labstack/gommon/log"

	"github.com/iliyamo/event-seat-reservation/internal/apperr"
	"github.com/iliyamo/event-seat-reservation/internal/clock"
	"github.com/iliyamo/event-seat-reservation/internal/model"
	"github.com/iliyamo/event-seat-reservation/internal/realtime"
	"github.com/iliyamo/event-seat-reservation/internal/repository"
)

// Lease status reported by seat views.
const (
	LeaseHeld    = "held"
	LeaseFree    = "free"
	LeaseUnknown = "unknown"
)

// SeatView is a durable seat with the lease overlaid.  A seat that is
// AVAILABLE in the directory while a lease is live reports IN_PROGRESS.
type SeatView struct {
	ID          string          `json:"id"`
	EventID     string          `json:"event_id"`
	Row         string          `json:"row"`
	Number      uint32          `json:"number"`
	State       model.SeatState `json:"state"`
	ReservedAt  *time.Time      `json:"reserved_at,omitempty"`
	LockedByMe  bool            `json:"locked_by_me"`
	TTLSeconds  int             `json:"ttl_seconds,omitempty"`
	LeaseStatus string          `json:"lease_status"`
}

// LeaseInfo answers a lease status query.
type LeaseInfo struct {
	EventID    string `json:"event_id"`
	SeatID     string `json:"seat_id"`
	Status     string `json:"status"`
	LockedByMe bool   `json:"locked_by_me"`
	TTLSeconds int    `json:"ttl_seconds,omitempty"`
}

// SeatSpec names one seat to create.
type SeatSpec struct {
	Row    string `json:"row"`
	Number uint32 `json:"number"`
}

func newView(s *model.Seat, status, owner string, ttl int, userID string) SeatView {
	v := SeatView{
		ID:          s.ID,
		EventID:     s.EventID,
		Row:         s.Row,
		Number:      s.Number,
		State:       s.State,
		ReservedAt:  s.ReservedAt,
		LeaseStatus: status,
	}
	if status == LeaseHeld {
		if s.State == model.SeatAvailable {
			v.State = model.SeatInProgress
		}
		v.LockedByMe = userID != "" && owner == userID
		v.TTLSeconds = ttl
	}
	return v
}

// ReservationService runs reserve and release and the seat reads and
// administrative operations built on the same two stores.
type ReservationService struct {
	seats    SeatDirectory
	leases   LeaseStore
	notifier Notifier
	clock    clock.Clock
	ttl      time.Duration
	logger   *log.Logger
}

// NewReservationService wires the service.  ttl is the configured lease
// duration, reported when the store cannot tell the remaining time.
func NewReservationService(seats SeatDirectory, leases LeaseStore, notifier Notifier, clk clock.Clock, ttl time.Duration, logger *log.Logger) *ReservationService {
	return &ReservationService{seats: seats, leases: leases, notifier: notifier, clock: clk, ttl: ttl, logger: logger}
}

func (s *ReservationService) getSeat(ctx context.Context, eventID, seatID string) (*model.Seat, error) {
	seat, err := s.seats.GetByID(ctx, seatID)
	if errors.Is(err, repository.ErrSeatNotFound) {
		return nil, apperr.Seat(apperr.SeatNotFound, eventID, seatID)
	}
	if err != nil {
		return nil, apperr.Wrap(apperr.StoreUnavailable, err, eventID, seatID)
	}
	return seat, nil
}

func (s *ReservationService) notify(ctx context.Context, msg realtime.Message) {
	if s.notifier == nil {
		return
	}
	if err := s.notifier.Publish(ctx, msg); err != nil {
		s.logger.Warnf("reservation: broadcast %s event=%s seat=%s failed: %v", msg.Type, msg.EventID, msg.SeatID, err)
	}
}

// Reserve gives userID a lease on the seat and marks it RESERVING.
func (s *ReservationService) Reserve(ctx context.Context, eventID, seatID, userID string) (SeatView, error) {
	seat, err := s.getSeat(ctx, eventID, seatID)
	if err != nil {
		return SeatView{}, err
	}
	if seat.EventID != eventID {
		return SeatView{}, apperr.Seat(apperr.SeatWrongEvent, eventID, seatID)
	}
	if seat.State != model.SeatAvailable {
		return SeatView{}, apperr.Seat(apperr.SeatNotAvailable, eventID, seatID)
	}

	ok, err := s.leases.Acquire(ctx, eventID, seatID, userID)
	if err != nil {
		// Fail closed: no lease, no state change.
		return SeatView{}, apperr.Wrap(apperr.StoreUnavailable, err, eventID, seatID)
	}
	if !ok {
		return SeatView{}, apperr.Seat(apperr.SeatLockContended, eventID, seatID)
	}

	now := s.clock.Now()
	changed, err := s.seats.Update(ctx, seatID, repository.SeatUpdate{
		State:       model.SeatReserving,
		ReservedAt:  &now,
		ExpectState: model.SeatAvailable,
	})
	if err != nil {
		s.compensate(ctx, eventID, seatID, userID)
		return SeatView{}, apperr.Wrap(apperr.DurableWriteFailure, err, eventID, seatID)
	}
	if !changed {
		// Blocked or otherwise moved between the read and the write.
		s.compensate(ctx, eventID, seatID, userID)
		return SeatView{}, apperr.Seat(apperr.SeatNotAvailable, eventID, seatID)
	}

	ttl, held, err := s.leases.TTLRemaining(ctx, eventID, seatID)
	if err != nil || !held {
		ttl = int(s.ttl / time.Second)
	}
	s.logger.Infof("reservation: reserved event=%s seat=%s user=%s ttl=%ds", eventID, seatID, userID, ttl)
	s.notify(ctx, realtime.Reserved(eventID, seatID, ttl))

	seat.State = model.SeatReserving
	seat.ReservedAt = &now
	v := newView(seat, LeaseHeld, userID, ttl, userID)
	return v, nil
}

// compensate drops the lease taken by a reserve whose durable write did not
// happen.  A failure here is logged; the lease expires on its own.
func (s *ReservationService) compensate(ctx context.Context, eventID, seatID, userID string) {
	cctx, cancel := detached(ctx)
	defer cancel()
	released, err := s.leases.Release(cctx, eventID, seatID, userID)
	switch {
	case err != nil:
		s.logger.Warnf("reservation: compensating release event=%s seat=%s failed: %v", eventID, seatID, err)
	case !released:
		s.logger.Warnf("reservation: compensating release event=%s seat=%s found no lease for user=%s", eventID, seatID, userID)
	}
}

// Release drops userID's lease and returns the seat to AVAILABLE.
func (s *ReservationService) Release(ctx context.Context, eventID, seatID, userID string) (SeatView, error) {
	seat, err := s.getSeat(ctx, eventID, seatID)
	if err != nil {
		return SeatView{}, err
	}
	if seat.State != model.SeatReserving {
		return SeatView{}, apperr.Seat(apperr.SeatNotReserved, eventID, seatID)
	}

	released, err := s.leases.Release(ctx, eventID, seatID, userID)
	if err != nil {
		// Ownership cannot be verified; leave durable state alone.
		return SeatView{}, apperr.Wrap(apperr.StoreUnavailable, err, eventID, seatID)
	}
	if !released {
		e := apperr.Seat(apperr.LockOwnershipMismatch, eventID, seatID)
		e.UserID = userID
		return SeatView{}, e
	}

	changed, err := s.seats.Update(ctx, seatID, repository.SeatUpdate{
		State:       model.SeatAvailable,
		ExpectState: model.SeatReserving,
	})
	if err != nil {
		// The lease is gone; the sweeper resets the seat.
		s.logger.Warnf("reservation: reset after release event=%s seat=%s failed: %v", eventID, seatID, err)
		return SeatView{}, apperr.Wrap(apperr.DurableWriteFailure, err, eventID, seatID)
	}
	if !changed {
		return SeatView{}, apperr.Seat(apperr.SeatNotReserved, eventID, seatID)
	}

	s.logger.Infof("reservation: released event=%s seat=%s user=%s", eventID, seatID, userID)
	s.notify(ctx, realtime.Released(eventID, seatID))

	seat.State = model.SeatAvailable
	seat.ReservedAt = nil
	return newView(seat, LeaseFree, "", 0, userID), nil
}

// ListEventSeats returns every seat of the event with the lease overlay.
// When the lease store is unreachable the durable states are returned with
// lease status "unknown".
func (s *ReservationService) ListEventSeats(ctx context.Context, eventID, userID string) ([]SeatView, error) {
	seats, err := s.seats.ListByEvent(ctx, eventID)
	if err != nil {
		return nil, apperr.Wrap(apperr.StoreUnavailable, err, eventID, "")
	}
	views := make([]SeatView, 0, len(seats))
	active, err := s.leases.ListActive(ctx, eventID)
	if err != nil {
		s.logger.Warnf("reservation: list leases event=%s failed, serving durable state: %v", eventID, err)
		for i := range seats {
			views = append(views, newView(&seats[i], LeaseUnknown, "", 0, userID))
		}
		return views, nil
	}
	byID := make(map[string]int, len(active))
	for i, a := range active {
		byID[a.SeatID] = i
	}
	for i := range seats {
		if j, ok := byID[seats[i].ID]; ok {
			views = append(views, newView(&seats[i], LeaseHeld, active[j].Owner, active[j].TTLSeconds, userID))
			continue
		}
		views = append(views, newView(&seats[i], LeaseFree, "", 0, userID))
	}
	return views, nil
}

// GetSeat returns one seat with the lease overlay.
func (s *ReservationService) GetSeat(ctx context.Context, seatID, userID string) (SeatView, error) {
	seat, err := s.getSeat(ctx, "", seatID)
	if err != nil {
		return SeatView{}, err
	}
	info := s.leaseInfo(ctx, seat.EventID, seatID, userID)
	owner := ""
	if info.LockedByMe {
		owner = userID
	}
	return newView(seat, info.Status, owner, info.TTLSeconds, userID), nil
}

// LeaseStatus reports whether the seat is leased and by whom relative to
// userID.  It never fails on a lease store outage; the status is then
// "unknown".
func (s *ReservationService) LeaseStatus(ctx context.Context, eventID, seatID, userID string) (LeaseInfo, error) {
	seat, err := s.getSeat(ctx, eventID, seatID)
	if err != nil {
		return LeaseInfo{}, err
	}
	if seat.EventID != eventID {
		return LeaseInfo{}, apperr.Seat(apperr.SeatWrongEvent, eventID, seatID)
	}
	return s.leaseInfo(ctx, eventID, seatID, userID), nil
}

func (s *ReservationService) leaseInfo(ctx context.Context, eventID, seatID, userID string) LeaseInfo {
	info := LeaseInfo{EventID: eventID, SeatID: seatID, Status: LeaseFree}
	owner, held, err := s.leases.Owner(ctx, eventID, seatID)
	if err != nil {
		s.logger.Warnf("reservation: lease owner event=%s seat=%s unknown: %v", eventID, seatID, err)
		info.Status = LeaseUnknown
		return info
	}
	if !held {
		return info
	}
	info.Status = LeaseHeld
	info.LockedByMe = userID != "" && owner == userID
	ttl, held, err := s.leases.TTLRemaining(ctx, eventID, seatID)
	switch {
	case err != nil:
		info.Status = LeaseUnknown
	case !held:
		// Expired between the two reads.
		info.Status = LeaseFree
		info.LockedByMe = false
	default:
		info.TTLSeconds = ttl
	}
	return info
}

// ForceUnlock deletes the seat's lease without an ownership check and
// resets a RESERVING seat to AVAILABLE.
func (s *ReservationService) ForceUnlock(ctx context.Context, eventID, seatID string) (SeatView, error) {
	seat, err := s.getSeat(ctx, eventID, seatID)
	if err != nil {
		return SeatView{}, err
	}
	if seat.EventID != eventID {
		return SeatView{}, apperr.Seat(apperr.SeatWrongEvent, eventID, seatID)
	}
	if err := s.leases.ForceRelease(ctx, eventID, seatID); err != nil {
		return SeatView{}, apperr.Wrap(apperr.StoreUnavailable, err, eventID, seatID)
	}
	if seat.State == model.SeatReserving {
		changed, err := s.seats.Update(ctx, seatID, repository.SeatUpdate{
			State:       model.SeatAvailable,
			ExpectState: model.SeatReserving,
		})
		if err != nil {
			return SeatView{}, apperr.Wrap(apperr.DurableWriteFailure, err, eventID, seatID)
		}
		if changed {
			seat.State = model.SeatAvailable
			seat.ReservedAt = nil
			s.notify(ctx, realtime.Released(eventID, seatID))
		}
	}
	s.logger.Infof("reservation: force unlocked event=%s seat=%s state=%s", eventID, seatID, seat.State)
	return newView(seat, LeaseFree, "", 0, ""), nil
}

// SetBlocked moves a seat between AVAILABLE and BLOCKED.  Blocking a seat
// that is not AVAILABLE fails SEAT_NOT_AVAILABLE; unblocking a seat that is
// not BLOCKED fails INVALID_REQUEST.
func (s *ReservationService) SetBlocked(ctx context.Context, seatID string, blocked bool) (SeatView, error) {
	seat, err := s.getSeat(ctx, "", seatID)
	if err != nil {
		return SeatView{}, err
	}
	u := repository.SeatUpdate{State: model.SeatBlocked, ExpectState: model.SeatAvailable}
	if !blocked {
		u = repository.SeatUpdate{State: model.SeatAvailable, ExpectState: model.SeatBlocked}
	}
	changed, err := s.seats.Update(ctx, seatID, u)
	if err != nil {
		return SeatView{}, apperr.Wrap(apperr.DurableWriteFailure, err, seat.EventID, seatID)
	}
	if !changed {
		kind := apperr.SeatNotAvailable
		if !blocked {
			kind = apperr.InvalidRequest
		}
		return SeatView{}, apperr.Seat(kind, seat.EventID, seatID)
	}
	seat.State = u.State
	seat.ReservedAt = nil
	s.logger.Infof("reservation: seat event=%s seat=%s now %s", seat.EventID, seatID, seat.State)
	// Blocking has no message kind of its own; clients re-fetch.
	s.notify(ctx, realtime.Resynced(seat.EventID, 1))
	return newView(seat, LeaseFree, "", 0, ""), nil
}

// maxRowLabel is the width of seats.row_label, in characters.
const maxRowLabel = 8

// CreateSeats adds AVAILABLE seats to an event.  Row labels are trimmed
// and (row, number) must be unique within the request.
func (s *ReservationService) CreateSeats(ctx context.Context, eventID string, specs []SeatSpec) ([]model.Seat, error) {
	eventID = strings.TrimSpace(eventID)
	if eventID == "" || len(specs) == 0 {
		return nil, &apperr.Error{Kind: apperr.InvalidRequest, EventID: eventID, Err: errors.New("event id and at least one seat are required")}
	}
	seen := make(map[string]struct{}, len(specs))
	seats := make([]model.Seat, 0, len(specs))
	for _, sp := range specs {
		row := strings.TrimSpace(sp.Row)
		if row == "" || utf8.RuneCountInString(row) > maxRowLabel || sp.Number == 0 {
			return nil, &apperr.Error{Kind: apperr.InvalidRequest, EventID: eventID, Err: fmt.Errorf("invalid seat %q/%d", sp.Row, sp.Number)}
		}
		k := fmt.Sprintf("%s/%d", row, sp.Number)
		if _, dup := seen[k]; dup {
			return nil, &apperr.Error{Kind: apperr.InvalidRequest, EventID: eventID, Err: fmt.Errorf("duplicate seat %s", k)}
		}
		seen[k] = struct{}{}
		seats = append(seats, model.Seat{EventID: eventID, Row: row, Number: sp.Number, State: model.SeatAvailable})
	}
	if err := s.seats.CreateMany(ctx, seats); err != nil {
		return nil, apperr.Wrap(apperr.DurableWriteFailure, err, eventID, "")
	}
	s.logger.Infof("reservation: created %d seats event=%s", len(seats), eventID)
	return seats, nil
}

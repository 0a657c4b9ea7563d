// Package service holds the reservation core: reserve and release against
// the lease store and the seat directory, the reconciliation sweeper and
// the payment reconciler.  The lease store provides all mutual exclusion;
// nothing here relies on in-process locking, so any number of processes
// can serve the same event.
package service

import (
	"context"
	"time"

	"github.com/iliyamo/event-seat-reservation/internal/lease"
	"github.com/iliyamo/event-seat-reservation/internal/model"
	"github.com/iliyamo/event-seat-reservation/internal/queue"
	"github.com/iliyamo/event-seat-reservation/internal/realtime"
	"github.com/iliyamo/event-seat-reservation/internal/repository"
)

// LeaseStore is the subset of lease.RedisStore the services use.
type LeaseStore interface {
	Acquire(ctx context.Context, eventID, seatID, owner string) (bool, error)
	Release(ctx context.Context, eventID, seatID, owner string) (bool, error)
	ForceRelease(ctx context.Context, eventID, seatID string) error
	Owner(ctx context.Context, eventID, seatID string) (string, bool, error)
	TTLRemaining(ctx context.Context, eventID, seatID string) (int, bool, error)
	ListActive(ctx context.Context, eventID string) ([]lease.Active, error)
}

// SeatDirectory is the durable seat record.
type SeatDirectory interface {
	CreateMany(ctx context.Context, seats []model.Seat) error
	GetByID(ctx context.Context, id string) (*model.Seat, error)
	ListByEvent(ctx context.Context, eventID string) ([]model.Seat, error)
	List(ctx context.Context, f repository.SeatFilter) ([]model.Seat, error)
	EventsWithState(ctx context.Context, state model.SeatState) ([]string, error)
	Update(ctx context.Context, id string, u repository.SeatUpdate) (bool, error)
	BulkUpdate(ctx context.Context, ids []string, u repository.SeatUpdate) (int64, error)
}

// PurchaseStore persists purchases.  MarkPaid and MarkFailed change the
// purchase and its seat in one transaction.
type PurchaseStore interface {
	CreatePending(ctx context.Context, p *model.Purchase) error
	GetByID(ctx context.Context, id string) (*model.Purchase, error)
	GetByAlias(ctx context.Context, alias string) (*model.Purchase, error)
	FindPending(ctx context.Context, seatID, userID string) (*model.Purchase, error)
	MarkPaid(ctx context.Context, purchaseID, seatID string, paidAt time.Time) error
	MarkFailed(ctx context.Context, purchaseID, seatID string, resetSeat bool) (bool, error)
}

// AttendanceStore records door check-ins.
type AttendanceStore interface {
	CheckIn(ctx context.Context, purchaseID, operatorID string, at time.Time) (*model.Attendance, error)
	ListAttendance(ctx context.Context, eventID string) ([]model.Attendance, error)
}

// Notifier fans a seat message out to every process.
type Notifier interface {
	Publish(ctx context.Context, msg realtime.Message) error
}

// PaidPublisher hands paid purchases to downstream consumers.
type PaidPublisher interface {
	PublishPurchasePaid(ctx context.Context, event queue.PurchasePaidEvent) error
}

// compensationTimeout bounds best-effort cleanup that must still run after
// the request context is cancelled.
const compensationTimeout = 3 * time.Second

func detached(ctx context.Context) (context.Context, context.CancelFunc) {
	return context.WithTimeout(context.WithoutCancel(ctx), compensationTimeout)
}

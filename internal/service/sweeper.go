package service

import (
	"context"
	"time"

	"github.com/labstack/gommon/log"

	"github.com/iliyamo/event-seat-reservation/internal/apperr"
	"github.com/iliyamo/event-seat-reservation/internal/clock"
	"github.com/iliyamo/event-seat-reservation/internal/model"
	"github.com/iliyamo/event-seat-reservation/internal/realtime"
	"github.com/iliyamo/event-seat-reservation/internal/repository"
)

// Sweeper resets RESERVING seats whose lease is gone.
type Sweeper struct {
	seats    SeatDirectory
	leases   LeaseStore
	notifier Notifier
	clock    clock.Clock
	logger   *log.Logger
}

func NewSweeper(seats SeatDirectory, leases LeaseStore, notifier Notifier, clk clock.Clock, logger *log.Logger) *Sweeper {
	return &Sweeper{seats: seats, leases: leases, notifier: notifier, clock: clk, logger: logger}
}

// Sweep heals the orphaned reservations of one event and returns how many
// seats it reset.  A seat with a live lease is never touched.
func (w *Sweeper) Sweep(ctx context.Context, eventID string) (int, error) {
	// Seats reserved after this instant are newer than the lease listing
	// below may reflect, so the reset excludes them.
	cutoff := w.clock.Now()

	reserving, err := w.seats.List(ctx, repository.SeatFilter{
		EventID: eventID,
		States:  []model.SeatState{model.SeatReserving},
	})
	if err != nil {
		return 0, apperr.Wrap(apperr.StoreUnavailable, err, eventID, "")
	}
	if len(reserving) == 0 {
		return 0, nil
	}

	// Without the lease listing every seat would look orphaned.
	active, err := w.leases.ListActive(ctx, eventID)
	if err != nil {
		return 0, apperr.Wrap(apperr.StoreUnavailable, err, eventID, "")
	}
	live := make(map[string]struct{}, len(active))
	for _, a := range active {
		live[a.SeatID] = struct{}{}
	}
	var orphans []string
	for _, s := range reserving {
		if _, ok := live[s.ID]; !ok {
			orphans = append(orphans, s.ID)
		}
	}
	if len(orphans) == 0 {
		return 0, nil
	}

	n, err := w.seats.BulkUpdate(ctx, orphans, repository.SeatUpdate{
		State:          model.SeatAvailable,
		ExpectState:    model.SeatReserving,
		ReservedBefore: &cutoff,
	})
	if err != nil {
		return 0, apperr.Wrap(apperr.DurableWriteFailure, err, eventID, "")
	}
	if n > 0 {
		w.logger.Infof("sweeper: reset %d orphaned seats event=%s", n, eventID)
		if w.notifier != nil {
			if err := w.notifier.Publish(ctx, realtime.Resynced(eventID, int(n))); err != nil {
				w.logger.Warnf("sweeper: broadcast resync event=%s failed: %v", eventID, err)
			}
		}
	}
	return int(n), nil
}

// SweepAll sweeps every event that has RESERVING seats.  A failing event
// is logged and skipped.
func (w *Sweeper) SweepAll(ctx context.Context) (int, error) {
	events, err := w.seats.EventsWithState(ctx, model.SeatReserving)
	if err != nil {
		return 0, apperr.Wrap(apperr.StoreUnavailable, err, "", "")
	}
	total := 0
	for _, eventID := range events {
		if ctx.Err() != nil {
			return total, ctx.Err()
		}
		n, err := w.Sweep(ctx, eventID)
		if err != nil {
			w.logger.Warnf("sweeper: event=%s: %v", eventID, err)
			continue
		}
		total += n
	}
	return total, nil
}

// Run calls SweepAll every interval until ctx is done.  A non-positive
// interval disables the loop.
func (w *Sweeper) Run(ctx context.Context, interval time.Duration) {
	if interval <= 0 {
		w.logger.Info("sweeper: periodic sweep disabled")
		return
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if _, err := w.SweepAll(ctx); err != nil && ctx.Err() == nil {
				w.logger.Warnf("sweeper: %v", err)
			}
		}
	}
}

package service

import (
	"context"
	"fmt"
	"io"
	"sort"
	"sync"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/google/uuid"
	"github.com/labstack/gommon/log"
	"github.com/redis/go-redis/v9"

	"github.com/iliyamo/event-seat-reservation/internal/clock"
	"github.com/iliyamo/event-seat-reservation/internal/lease"
	"github.com/iliyamo/event-seat-reservation/internal/model"
	"github.com/iliyamo/event-seat-reservation/internal/queue"
	"github.com/iliyamo/event-seat-reservation/internal/realtime"
	"github.com/iliyamo/event-seat-reservation/internal/repository"
)

var testNow = time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

const testTTL = 300 * time.Second

// memStore is an in-memory seat directory and purchase store sharing one
// lock, so MarkPaid and MarkFailed are atomic like their SQL versions.
type memStore struct {
	mu         sync.Mutex
	seats      map[string]model.Seat
	purchases  map[string]model.Purchase
	attendance []model.Attendance
	failWrite  error
}

func newMemStore() *memStore {
	return &memStore{seats: make(map[string]model.Seat), purchases: make(map[string]model.Purchase)}
}

func (m *memStore) add(eventID, row string, number uint32) model.Seat {
	m.mu.Lock()
	defer m.mu.Unlock()
	s := model.Seat{ID: uuid.NewString(), EventID: eventID, Row: row, Number: number, State: model.SeatAvailable}
	m.seats[s.ID] = s
	return s
}

func (m *memStore) seat(t *testing.T, id string) model.Seat {
	t.Helper()
	m.mu.Lock()
	defer m.mu.Unlock()
	s, ok := m.seats[id]
	if !ok {
		t.Fatalf("seat %s missing", id)
	}
	return s
}

func (m *memStore) setState(id string, state model.SeatState) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.apply(id, repository.SeatUpdate{State: state})
}

func (m *memStore) setFailWrite(err error) {
	m.mu.Lock()
	m.failWrite = err
	m.mu.Unlock()
}

func (m *memStore) CreateMany(_ context.Context, seats []model.Seat) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.failWrite != nil {
		return m.failWrite
	}
	for i := range seats {
		if seats[i].ID == "" {
			seats[i].ID = uuid.NewString()
		}
		m.seats[seats[i].ID] = seats[i]
	}
	return nil
}

func (m *memStore) GetByID(_ context.Context, id string) (*model.Seat, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	s, ok := m.seats[id]
	if !ok {
		return nil, repository.ErrSeatNotFound
	}
	return &s, nil
}

func (m *memStore) ListByEvent(ctx context.Context, eventID string) ([]model.Seat, error) {
	return m.List(ctx, repository.SeatFilter{EventID: eventID})
}

func (m *memStore) List(_ context.Context, f repository.SeatFilter) ([]model.Seat, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]model.Seat, 0)
	for _, s := range m.seats {
		if f.EventID != "" && s.EventID != f.EventID {
			continue
		}
		if len(f.States) > 0 {
			match := false
			for _, st := range f.States {
				match = match || s.State == st
			}
			if !match {
				continue
			}
		}
		out = append(out, s)
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Row != out[j].Row {
			return out[i].Row < out[j].Row
		}
		return out[i].Number < out[j].Number
	})
	return out, nil
}

func (m *memStore) EventsWithState(_ context.Context, state model.SeatState) ([]string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	seen := map[string]bool{}
	var out []string
	for _, s := range m.seats {
		if s.State == state && !seen[s.EventID] {
			seen[s.EventID] = true
			out = append(out, s.EventID)
		}
	}
	return out, nil
}

// apply must be called with m.mu held.
func (m *memStore) apply(id string, u repository.SeatUpdate) bool {
	s, ok := m.seats[id]
	if !ok {
		return false
	}
	if u.ExpectState != "" && s.State != u.ExpectState {
		return false
	}
	if u.ReservedBefore != nil && s.ReservedAt != nil && s.ReservedAt.After(*u.ReservedBefore) {
		return false
	}
	s.State = u.State
	s.ReservedAt = u.ReservedAt
	m.seats[id] = s
	return true
}

func (m *memStore) Update(_ context.Context, id string, u repository.SeatUpdate) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.failWrite != nil {
		return false, m.failWrite
	}
	return m.apply(id, u), nil
}

func (m *memStore) BulkUpdate(_ context.Context, ids []string, u repository.SeatUpdate) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.failWrite != nil {
		return 0, m.failWrite
	}
	var n int64
	for _, id := range ids {
		if m.apply(id, u) {
			n++
		}
	}
	return n, nil
}

func (m *memStore) CreatePending(_ context.Context, p *model.Purchase) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.failWrite != nil {
		return m.failWrite
	}
	p.ID = uuid.NewString()
	p.Alias = fmt.Sprintf("SEAT%d", len(m.purchases)+1)
	p.Status = model.PaymentPending
	m.purchases[p.ID] = *p
	return nil
}

func (m *memStore) purchase(id string) (model.Purchase, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	p, ok := m.purchases[id]
	return p, ok
}

// purchaseView exposes the purchase half of memStore under the
// PurchaseStore method names, which clash with the seat ones.
type purchaseView struct{ m *memStore }

func (v purchaseView) CreatePending(ctx context.Context, p *model.Purchase) error {
	return v.m.CreatePending(ctx, p)
}

func (v purchaseView) GetByID(_ context.Context, id string) (*model.Purchase, error) {
	p, ok := v.m.purchase(id)
	if !ok {
		return nil, repository.ErrPurchaseNotFound
	}
	return &p, nil
}

func (v purchaseView) GetByAlias(_ context.Context, alias string) (*model.Purchase, error) {
	v.m.mu.Lock()
	defer v.m.mu.Unlock()
	for _, p := range v.m.purchases {
		if p.Alias == alias {
			return &p, nil
		}
	}
	return nil, repository.ErrPurchaseNotFound
}

func (v purchaseView) FindPending(_ context.Context, seatID, userID string) (*model.Purchase, error) {
	v.m.mu.Lock()
	defer v.m.mu.Unlock()
	for _, p := range v.m.purchases {
		if p.SeatID == seatID && p.UserID == userID && p.Status == model.PaymentPending {
			return &p, nil
		}
	}
	return nil, repository.ErrPurchaseNotFound
}

func (v purchaseView) CheckIn(_ context.Context, purchaseID, operatorID string, at time.Time) (*model.Attendance, error) {
	m := v.m
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.failWrite != nil {
		return nil, m.failWrite
	}
	p, ok := m.purchases[purchaseID]
	if !ok || p.Status != model.PaymentPaid || p.CheckedInAt != nil {
		return nil, repository.ErrConflict
	}
	p.CheckedInAt = &at
	p.CheckedInBy = operatorID
	m.purchases[purchaseID] = p
	a := model.Attendance{ID: uuid.NewString(), PurchaseID: p.ID, UserID: p.UserID, EventID: p.EventID, SeatID: p.SeatID, ValidatedBy: operatorID, CheckedInAt: at}
	m.attendance = append(m.attendance, a)
	return &a, nil
}

func (v purchaseView) ListAttendance(_ context.Context, eventID string) ([]model.Attendance, error) {
	v.m.mu.Lock()
	defer v.m.mu.Unlock()
	out := make([]model.Attendance, 0)
	for _, a := range v.m.attendance {
		if a.EventID == eventID {
			out = append(out, a)
		}
	}
	return out, nil
}

func (v purchaseView) MarkPaid(_ context.Context, purchaseID, seatID string, paidAt time.Time) error {
	m := v.m
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.failWrite != nil {
		return m.failWrite
	}
	p, ok := m.purchases[purchaseID]
	if !ok || p.Status != model.PaymentPending {
		return repository.ErrConflict
	}
	if s, ok := m.seats[seatID]; !ok || s.State != model.SeatReserving {
		return repository.ErrConflict
	}
	m.apply(seatID, repository.SeatUpdate{State: model.SeatSold})
	p.Status = model.PaymentPaid
	p.PaidAt = &paidAt
	m.purchases[purchaseID] = p
	return nil
}

func (v purchaseView) MarkFailed(_ context.Context, purchaseID, seatID string, resetSeat bool) (bool, error) {
	m := v.m
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.failWrite != nil {
		return false, m.failWrite
	}
	p, ok := m.purchases[purchaseID]
	if !ok || p.Status != model.PaymentPending {
		return false, repository.ErrConflict
	}
	p.Status = model.PaymentFailed
	m.purchases[purchaseID] = p
	if !resetSeat {
		return false, nil
	}
	return m.apply(seatID, repository.SeatUpdate{State: model.SeatAvailable, ExpectState: model.SeatReserving}), nil
}

type recordingNotifier struct {
	mu   sync.Mutex
	msgs []realtime.Message
}

func (r *recordingNotifier) Publish(_ context.Context, msg realtime.Message) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.msgs = append(r.msgs, msg)
	return nil
}

func (r *recordingNotifier) ofType(t realtime.Type) []realtime.Message {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []realtime.Message
	for _, m := range r.msgs {
		if m.Type == t {
			out = append(out, m)
		}
	}
	return out
}

type recordingPaid struct {
	mu     sync.Mutex
	events []queue.PurchasePaidEvent
}

func (r *recordingPaid) PublishPurchasePaid(_ context.Context, ev queue.PurchasePaidEvent) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, ev)
	return nil
}

func (r *recordingPaid) count() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.events)
}

// fixture wires every service against one in-memory store and a real
// lease store on miniredis.
type fixture struct {
	mr       *miniredis.Miniredis
	store    *memStore
	leases   *lease.RedisStore
	notifier *recordingNotifier
	paid     *recordingPaid
	res      *ReservationService
	sweeper  *Sweeper
	payments *PaymentReconciler
	door     *DoorCheck
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	mr := miniredis.RunT(t)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr(), MaxRetries: -1})
	t.Cleanup(func() { _ = rdb.Close() })

	logger := log.New("test")
	logger.SetOutput(io.Discard)
	clk := clock.NewFixed(testNow)

	f := &fixture{
		mr:       mr,
		store:    newMemStore(),
		leases:   lease.NewRedisStore(rdb, testTTL),
		notifier: &recordingNotifier{},
		paid:     &recordingPaid{},
	}
	f.res = NewReservationService(f.store, f.leases, f.notifier, clk, testTTL, logger)
	f.sweeper = NewSweeper(f.store, f.leases, f.notifier, clk, logger)
	f.payments = NewPaymentReconciler(f.store, purchaseView{f.store}, f.leases, f.notifier, f.paid, clk, logger)
	f.door = NewDoorCheck(purchaseView{f.store}, purchaseView{f.store}, clk, logger)
	return f
}

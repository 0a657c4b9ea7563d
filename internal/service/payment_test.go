package service

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/iliyamo/event-seat-reservation/internal/apperr"
	"github.com/iliyamo/event-seat-reservation/internal/model"
	"github.com/iliyamo/event-seat-reservation/internal/realtime"
)

// reservedPurchase reserves a fresh seat for user and opens a purchase.
func reservedPurchase(t *testing.T, f *fixture, user string) (model.Seat, *model.Purchase) {
	t.Helper()
	ctx := context.Background()
	s := f.store.add("ev-1", "C", 3)
	if _, err := f.res.Reserve(ctx, "ev-1", s.ID, user); err != nil {
		t.Fatalf("reserve: %v", err)
	}
	p, err := f.payments.StartPurchase(ctx, "ev-1", s.ID, user, 2500)
	if err != nil {
		t.Fatalf("start purchase: %v", err)
	}
	if p.Status != model.PaymentPending || p.Alias == "" {
		t.Fatalf("purchase = %+v", p)
	}
	return s, p
}

func TestPayment_PaidSellsSeatOnce(t *testing.T) {
	t.Parallel()
	f := newFixture(t)
	ctx := context.Background()
	s3, p := reservedPurchase(t, f, "alice")

	res, err := f.payments.ConfirmPayment(ctx, Confirmation{PurchaseID: p.ID, SeatID: s3.ID, EventID: "ev-1", Status: "PAID"})
	if err != nil || !res.Applied {
		t.Fatalf("confirm = %+v, %v", res, err)
	}
	if res.Purchase.Status != model.PaymentPaid || res.Purchase.PaidAt == nil {
		t.Fatalf("purchase = %+v", res.Purchase)
	}
	if got := f.store.seat(t, s3.ID); got.State != model.SeatSold || got.ReservedAt != nil {
		t.Fatalf("seat = %+v", got)
	}
	if _, held, _ := f.leases.Owner(ctx, "ev-1", s3.ID); held {
		t.Fatal("lease of sold seat not dropped")
	}

	// Re-delivery by alias is a successful no-op.
	again, err := f.payments.ConfirmPayment(ctx, Confirmation{Alias: p.Alias, Status: "paid"})
	if err != nil || again.Applied {
		t.Fatalf("second confirm = %+v, %v", again, err)
	}
	if n := len(f.notifier.ofType(realtime.SeatSold)); n != 1 {
		t.Fatalf("seat_sold count = %d, want 1", n)
	}
	if n := f.paid.count(); n != 1 {
		t.Fatalf("purchase.paid count = %d, want 1", n)
	}
	if ev := f.paid.events[0]; ev.SeatLabel != "C3" || ev.AmountCents != 2500 || ev.PaidAt != testNow.Format(time.RFC3339) {
		t.Fatalf("purchase.paid event = %+v", ev)
	}

	for _, user := range []string{"alice", "bob"} {
		_, err := f.res.Reserve(ctx, "ev-1", s3.ID, user)
		wantKind(t, err, apperr.SeatNotAvailable)
	}
	_, err = f.payments.ConfirmPayment(ctx, Confirmation{PurchaseID: p.ID, Status: "CANCELLED"})
	wantKind(t, err, apperr.PurchaseAlreadyPaid)
}

func TestPayment_ConcurrentConfirmationsApplyOnce(t *testing.T) {
	t.Parallel()
	f := newFixture(t)
	ctx := context.Background()
	_, p := reservedPurchase(t, f, "alice")

	var (
		wg      sync.WaitGroup
		mu      sync.Mutex
		applied int
	)
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			res, err := f.payments.ConfirmPayment(ctx, Confirmation{PurchaseID: p.ID, Status: "PAID"})
			if err != nil {
				t.Errorf("confirm: %v", err)
				return
			}
			if res.Applied {
				mu.Lock()
				applied++
				mu.Unlock()
			}
		}()
	}
	wg.Wait()
	if applied != 1 {
		t.Fatalf("applied %d times, want 1", applied)
	}
}

func TestPayment_CancelReleasesSeat(t *testing.T) {
	t.Parallel()
	f := newFixture(t)
	ctx := context.Background()
	s3, p := reservedPurchase(t, f, "alice")

	res, err := f.payments.ConfirmPayment(ctx, Confirmation{PurchaseID: p.ID, Status: "EXPIRED"})
	if err != nil || !res.Applied || res.Purchase.Status != model.PaymentFailed {
		t.Fatalf("cancel = %+v, %v", res, err)
	}
	if got := f.store.seat(t, s3.ID); got.State != model.SeatAvailable {
		t.Fatalf("seat = %+v", got)
	}
	if _, held, _ := f.leases.Owner(ctx, "ev-1", s3.ID); held {
		t.Fatal("lease of cancelled seat not dropped")
	}
	if n := len(f.notifier.ofType(realtime.SeatReleased)); n != 1 {
		t.Fatalf("seat_released count = %d", n)
	}

	res, err = f.payments.ConfirmPayment(ctx, Confirmation{PurchaseID: p.ID, Status: "FAILED"})
	if err != nil || res.Applied {
		t.Fatalf("repeated cancel = %+v, %v", res, err)
	}
	_, err = f.payments.ConfirmPayment(ctx, Confirmation{PurchaseID: p.ID, Status: "PAID"})
	wantKind(t, err, apperr.InvalidRequest)
}

func TestPayment_StaleCancelKeepsNewReservation(t *testing.T) {
	t.Parallel()
	f := newFixture(t)
	ctx := context.Background()
	s3, p := reservedPurchase(t, f, "alice")

	f.mr.FastForward(testTTL + time.Second)
	if n, err := f.sweeper.Sweep(ctx, "ev-1"); err != nil || n != 1 {
		t.Fatalf("sweep = %d, %v", n, err)
	}
	if _, err := f.res.Reserve(ctx, "ev-1", s3.ID, "bob"); err != nil {
		t.Fatalf("bob reserve: %v", err)
	}

	if _, err := f.payments.ConfirmPayment(ctx, Confirmation{PurchaseID: p.ID, Status: "CANCELLED"}); err != nil {
		t.Fatalf("cancel: %v", err)
	}
	if got := f.store.seat(t, s3.ID); got.State != model.SeatReserving {
		t.Fatalf("bob's reservation was reset: %+v", got)
	}
	if owner, held, _ := f.leases.Owner(ctx, "ev-1", s3.ID); !held || owner != "bob" {
		t.Fatalf("lease owner = %q held=%v, want bob", owner, held)
	}
}

func TestPayment_Rejections(t *testing.T) {
	t.Parallel()
	f := newFixture(t)
	ctx := context.Background()
	s3, p := reservedPurchase(t, f, "alice")
	free := f.store.add("ev-1", "D", 1)

	_, err := f.payments.StartPurchase(ctx, "ev-1", s3.ID, "bob", 100)
	wantKind(t, err, apperr.LockOwnershipMismatch)
	_, err = f.payments.StartPurchase(ctx, "ev-1", free.ID, "bob", 100)
	wantKind(t, err, apperr.SeatNotReserved)
	_, err = f.payments.StartPurchase(ctx, "ev-2", s3.ID, "alice", 100)
	wantKind(t, err, apperr.SeatWrongEvent)

	tests := []struct {
		name string
		c    Confirmation
		want apperr.Kind
	}{
		{"no reference", Confirmation{Status: "PAID"}, apperr.InvalidRequest},
		{"unknown alias", Confirmation{Alias: "SEATNOPE", Status: "PAID"}, apperr.PurchaseNotFound},
		{"seat mismatch", Confirmation{PurchaseID: p.ID, SeatID: free.ID, Status: "PAID"}, apperr.InvalidRequest},
		{"bad status", Confirmation{PurchaseID: p.ID, Status: "MAYBE"}, apperr.InvalidRequest},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := f.payments.ConfirmPayment(ctx, tt.c)
			wantKind(t, err, tt.want)
		})
	}

	res, err := f.payments.ConfirmPayment(ctx, Confirmation{PurchaseID: p.ID, Status: "PENDING"})
	if err != nil || res.Applied || res.Purchase.Status != model.PaymentPending {
		t.Fatalf("pending poll = %+v, %v", res, err)
	}
}

func TestPayment_StartPurchaseReusesPending(t *testing.T) {
	t.Parallel()
	f := newFixture(t)
	ctx := context.Background()
	s3, p := reservedPurchase(t, f, "alice")

	again, err := f.payments.StartPurchase(ctx, "ev-1", s3.ID, "alice", 2500)
	if err != nil {
		t.Fatalf("second start: %v", err)
	}
	if again.ID != p.ID || again.Alias != p.Alias {
		t.Fatalf("second start opened %s, want existing %s", again.ID, p.ID)
	}
	f.store.mu.Lock()
	n := len(f.store.purchases)
	f.store.mu.Unlock()
	if n != 1 {
		t.Fatalf("purchases = %d, want 1", n)
	}
}

func TestPayment_DuplicatePendingFailsOnceSeatIsSold(t *testing.T) {
	t.Parallel()
	f := newFixture(t)
	ctx := context.Background()
	s3, first := reservedPurchase(t, f, "alice")

	// A second pending row for the same seat, e.g. from before the reuse
	// rule existed.
	dup := &model.Purchase{UserID: "alice", EventID: "ev-1", SeatID: s3.ID, AmountCents: 2500}
	if err := (purchaseView{f.store}).CreatePending(ctx, dup); err != nil {
		t.Fatal(err)
	}

	if _, err := f.payments.ConfirmPayment(ctx, Confirmation{PurchaseID: first.ID, Status: "PAID"}); err != nil {
		t.Fatalf("confirm first: %v", err)
	}
	_, err := f.payments.ConfirmPayment(ctx, Confirmation{Alias: dup.Alias, Status: "PAID"})
	wantKind(t, err, apperr.SeatNotAvailable)

	if got, _ := f.store.purchase(dup.ID); got.Status != model.PaymentFailed {
		t.Fatalf("duplicate purchase = %s, want FAILED", got.Status)
	}
	if got, _ := f.store.purchase(first.ID); got.Status != model.PaymentPaid {
		t.Fatalf("first purchase = %s, want PAID", got.Status)
	}
	if n := f.paid.count(); n != 1 {
		t.Fatalf("purchase.paid count = %d, want 1", n)
	}
}

package service

import (
	"context"
	"errors"
	"sync"
	"testing"

	"github.com/iliyamo/event-seat-reservation/internal/apperr"
)

func TestDoorCheck_AdmitsPaidPurchaseOnce(t *testing.T) {
	t.Parallel()
	f := newFixture(t)
	ctx := context.Background()
	s3, p := reservedPurchase(t, f, "alice")

	_, err := f.door.CheckIn(ctx, CheckInRequest{PurchaseID: p.ID}, "door-1")
	wantKind(t, err, apperr.PurchaseNotPaid)

	if _, err := f.payments.ConfirmPayment(ctx, Confirmation{PurchaseID: p.ID, Status: "PAID"}); err != nil {
		t.Fatalf("confirm: %v", err)
	}

	a, err := f.door.CheckIn(ctx, CheckInRequest{Alias: p.Alias, EventID: "ev-1"}, "door-1")
	if err != nil {
		t.Fatalf("check in: %v", err)
	}
	if a.PurchaseID != p.ID || a.UserID != "alice" || a.SeatID != s3.ID || a.ValidatedBy != "door-1" || !a.CheckedInAt.Equal(testNow) {
		t.Fatalf("attendance = %+v", a)
	}
	if got, _ := f.store.purchase(p.ID); got.CheckedInAt == nil || got.CheckedInBy != "door-1" {
		t.Fatalf("purchase after check in = %+v", got)
	}

	_, err = f.door.CheckIn(ctx, CheckInRequest{PurchaseID: p.ID}, "door-2")
	wantKind(t, err, apperr.AlreadyCheckedIn)

	list, err := f.door.Attendance(ctx, "ev-1")
	if err != nil || len(list) != 1 {
		t.Fatalf("attendance = %+v, %v", list, err)
	}
}

func TestDoorCheck_Rejections(t *testing.T) {
	t.Parallel()
	f := newFixture(t)
	ctx := context.Background()
	_, p := reservedPurchase(t, f, "alice")
	if _, err := f.payments.ConfirmPayment(ctx, Confirmation{PurchaseID: p.ID, Status: "PAID"}); err != nil {
		t.Fatal(err)
	}

	tests := []struct {
		name string
		req  CheckInRequest
		want apperr.Kind
	}{
		{"no reference", CheckInRequest{}, apperr.InvalidRequest},
		{"unknown alias", CheckInRequest{Alias: "SEATNOPE"}, apperr.PurchaseNotFound},
		{"other event", CheckInRequest{PurchaseID: p.ID, EventID: "ev-2"}, apperr.InvalidRequest},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := f.door.CheckIn(ctx, tt.req, "door-1")
			wantKind(t, err, tt.want)
		})
	}

	f.store.setFailWrite(errors.New("read only"))
	_, err := f.door.CheckIn(ctx, CheckInRequest{PurchaseID: p.ID}, "door-1")
	wantKind(t, err, apperr.DurableWriteFailure)
}

func TestDoorCheck_ConcurrentScansAdmitOnce(t *testing.T) {
	t.Parallel()
	f := newFixture(t)
	ctx := context.Background()
	_, p := reservedPurchase(t, f, "alice")
	if _, err := f.payments.ConfirmPayment(ctx, Confirmation{PurchaseID: p.ID, Status: "PAID"}); err != nil {
		t.Fatal(err)
	}

	var (
		wg       sync.WaitGroup
		mu       sync.Mutex
		admitted int
	)
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := f.door.CheckIn(ctx, CheckInRequest{PurchaseID: p.ID}, "door")
			switch {
			case err == nil:
				mu.Lock()
				admitted++
				mu.Unlock()
			case !apperr.Is(err, apperr.AlreadyCheckedIn):
				t.Errorf("check in: %v", err)
			}
		}()
	}
	wg.Wait()
	if admitted != 1 {
		t.Fatalf("admitted %d times, want 1", admitted)
	}
}

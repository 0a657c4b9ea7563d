package repository

import (
	"context"
	"database/sql"
	"errors"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/iliyamo/event-seat-reservation/internal/model"
)

// PurchaseRepo provides access to the purchases table.  The terminal
// transitions (paid/sold and failed/released) update the purchase and its
// seat in one transaction so the two rows never disagree once committed.
type PurchaseRepo struct {
	db *sql.DB
}

// NewPurchaseRepo returns a new PurchaseRepo bound to the given database.
func NewPurchaseRepo(db *sql.DB) *PurchaseRepo { return &PurchaseRepo{db: db} }

const purchaseColumns = `id, user_id, event_id, seat_id, amount_cents, status, payment_alias, paid_at, checked_in_at, checked_in_by, created_at, updated_at`

func scanPurchase(sc rowScanner) (*model.Purchase, error) {
	var p model.Purchase
	var status string
	var paidAt, checkedInAt sql.NullTime
	var checkedInBy sql.NullString
	err := sc.Scan(&p.ID, &p.UserID, &p.EventID, &p.SeatID, &p.AmountCents, &status, &p.Alias, &paidAt, &checkedInAt, &checkedInBy, &p.CreatedAt, &p.UpdatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrPurchaseNotFound
	}
	if err != nil {
		return nil, err
	}
	p.Status = model.PaymentStatus(status)
	if paidAt.Valid {
		t := paidAt.Time.UTC()
		p.PaidAt = &t
	}
	if checkedInAt.Valid {
		t := checkedInAt.Time.UTC()
		p.CheckedInAt = &t
	}
	p.CheckedInBy = checkedInBy.String
	return &p, nil
}

// NewAlias returns a payment reference handed to the payer.  It is unique
// per purchase and free of separators so bank systems accept it.
func NewAlias() string {
	return "SEAT" + strings.ToUpper(strings.ReplaceAll(uuid.NewString(), "-", ""))
}

// CreatePending inserts a PENDING purchase.  ID and Alias are generated
// when empty and written back into p.
func (r *PurchaseRepo) CreatePending(ctx context.Context, p *model.Purchase) error {
	if p.ID == "" {
		p.ID = uuid.NewString()
	}
	if p.Alias == "" {
		p.Alias = NewAlias()
	}
	p.Status = model.PaymentPending
	const q = `INSERT INTO purchases (id, user_id, event_id, seat_id, amount_cents, status, payment_alias)
	           VALUES (?, ?, ?, ?, ?, ?, ?)`
	if _, err := r.db.ExecContext(ctx, q, p.ID, p.UserID, p.EventID, p.SeatID, p.AmountCents, string(p.Status), p.Alias); err != nil {
		return err
	}
	got, err := r.GetByID(ctx, p.ID)
	if err != nil {
		return err
	}
	*p = *got
	return nil
}

// GetByID returns a purchase or ErrPurchaseNotFound.
func (r *PurchaseRepo) GetByID(ctx context.Context, id string) (*model.Purchase, error) {
	return scanPurchase(r.db.QueryRowContext(ctx, `SELECT `+purchaseColumns+` FROM purchases WHERE id = ?`, id))
}

// GetByAlias returns the purchase with the given payment alias or
// ErrPurchaseNotFound.
func (r *PurchaseRepo) GetByAlias(ctx context.Context, alias string) (*model.Purchase, error) {
	return scanPurchase(r.db.QueryRowContext(ctx, `SELECT `+purchaseColumns+` FROM purchases WHERE payment_alias = ?`, alias))
}

// FindPending returns the newest PENDING purchase of userID for seatID or
// ErrPurchaseNotFound.
func (r *PurchaseRepo) FindPending(ctx context.Context, seatID, userID string) (*model.Purchase, error) {
	return scanPurchase(r.db.QueryRowContext(ctx,
		`SELECT `+purchaseColumns+` FROM purchases WHERE seat_id = ? AND user_id = ? AND status = ?
		 ORDER BY created_at DESC LIMIT 1`,
		seatID, userID, string(model.PaymentPending)))
}

// MarkPaid marks a PENDING purchase PAID and its RESERVING seat SOLD in a
// single transaction.  When either row is not in the expected state
// nothing is written and ErrConflict is returned.
func (r *PurchaseRepo) MarkPaid(ctx context.Context, purchaseID, seatID string, paidAt time.Time) error {
	return r.withTx(ctx, func(tx *sql.Tx) error {
		res, err := tx.ExecContext(ctx,
			`UPDATE purchases SET status = ?, paid_at = ? WHERE id = ? AND status = ?`,
			string(model.PaymentPaid), paidAt.UTC(), purchaseID, string(model.PaymentPending))
		if err != nil {
			return err
		}
		if n, err := res.RowsAffected(); err != nil {
			return err
		} else if n != 1 {
			return ErrConflict
		}
		ok, err := updateSeat(ctx, tx, seatID, SeatUpdate{State: model.SeatSold, ExpectState: model.SeatReserving})
		if err != nil {
			return err
		}
		if !ok {
			return ErrConflict
		}
		return nil
	})
}

// MarkFailed marks a PENDING purchase FAILED and, when resetSeat is set,
// returns its seat to AVAILABLE in the same transaction if it is still
// RESERVING.  It reports whether the seat was reset.  ErrConflict means the
// purchase was no longer pending.
func (r *PurchaseRepo) MarkFailed(ctx context.Context, purchaseID, seatID string, resetSeat bool) (bool, error) {
	seatReset := false
	err := r.withTx(ctx, func(tx *sql.Tx) error {
		res, err := tx.ExecContext(ctx,
			`UPDATE purchases SET status = ? WHERE id = ? AND status = ?`,
			string(model.PaymentFailed), purchaseID, string(model.PaymentPending))
		if err != nil {
			return err
		}
		if n, err := res.RowsAffected(); err != nil {
			return err
		} else if n != 1 {
			return ErrConflict
		}
		if !resetSeat {
			return nil
		}
		seatReset, err = updateSeat(ctx, tx, seatID, SeatUpdate{State: model.SeatAvailable, ExpectState: model.SeatReserving})
		return err
	})
	if err != nil {
		return false, err
	}
	return seatReset, nil
}

// CheckIn marks a PAID purchase as used and records the attendance in one
// transaction.  The guarded update admits each purchase once; ErrConflict
// means it is not PAID or was already checked in.
func (r *PurchaseRepo) CheckIn(ctx context.Context, purchaseID, operatorID string, at time.Time) (*model.Attendance, error) {
	var a *model.Attendance
	err := r.withTx(ctx, func(tx *sql.Tx) error {
		res, err := tx.ExecContext(ctx,
			`UPDATE purchases SET checked_in_at = ?, checked_in_by = ?
			 WHERE id = ? AND status = ? AND checked_in_at IS NULL`,
			at.UTC(), operatorID, purchaseID, string(model.PaymentPaid))
		if err != nil {
			return err
		}
		if n, err := res.RowsAffected(); err != nil {
			return err
		} else if n != 1 {
			return ErrConflict
		}
		p, err := scanPurchase(tx.QueryRowContext(ctx, `SELECT `+purchaseColumns+` FROM purchases WHERE id = ?`, purchaseID))
		if err != nil {
			return err
		}
		a = &model.Attendance{
			ID:          uuid.NewString(),
			PurchaseID:  p.ID,
			UserID:      p.UserID,
			EventID:     p.EventID,
			SeatID:      p.SeatID,
			ValidatedBy: operatorID,
			CheckedInAt: at.UTC(),
		}
		_, err = tx.ExecContext(ctx,
			`INSERT INTO attendance (id, purchase_id, user_id, event_id, seat_id, validated_by, checked_in_at)
			 VALUES (?, ?, ?, ?, ?, ?, ?)`,
			a.ID, a.PurchaseID, a.UserID, a.EventID, a.SeatID, a.ValidatedBy, a.CheckedInAt)
		return err
	})
	if err != nil {
		return nil, err
	}
	return a, nil
}

// ListAttendance returns the entries of an event in check-in order.
func (r *PurchaseRepo) ListAttendance(ctx context.Context, eventID string) ([]model.Attendance, error) {
	rows, err := r.db.QueryContext(ctx,
		`SELECT id, purchase_id, user_id, event_id, seat_id, validated_by, checked_in_at
		 FROM attendance WHERE event_id = ? ORDER BY checked_in_at, id`, eventID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	out := make([]model.Attendance, 0)
	for rows.Next() {
		var a model.Attendance
		if err := rows.Scan(&a.ID, &a.PurchaseID, &a.UserID, &a.EventID, &a.SeatID, &a.ValidatedBy, &a.CheckedInAt); err != nil {
			return nil, err
		}
		a.CheckedInAt = a.CheckedInAt.UTC()
		out = append(out, a)
	}
	return out, rows.Err()
}

// withTx runs fn inside a transaction, committing when fn returns nil.
func (r *PurchaseRepo) withTx(ctx context.Context, fn func(tx *sql.Tx) error) error {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	committed := false
	defer func() {
		if !committed {
			_ = tx.Rollback()
		}
	}()
	if err := fn(tx); err != nil {
		return err
	}
	if err := tx.Commit(); err != nil {
		return err
	}
	committed = true
	return nil
}

package repository // repository defines data access for seats

import (
	"context"      // context allows query cancellation and timeouts
	"database/sql" // sql provides DB primitives
	"errors"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/iliyamo/event-seat-reservation/internal/model"
)

// SeatFilter selects seats for List.  Zero-valued fields do not restrict
// the result.
type SeatFilter struct {
	EventID    string
	States     []model.SeatState
	IDs        []string
	ExcludeIDs []string
}

// SeatUpdate describes a state change.  ReservedAt is written as given, so
// a nil value clears the column.  When ExpectState is set the row is only
// updated if its current state matches, which makes every transition a
// compare-and-set on the durable record.  ReservedBefore further limits
// the update to rows reserved at or before that instant, or with no
// reservation time at all.
type SeatUpdate struct {
	State          model.SeatState
	ReservedAt     *time.Time
	ExpectState    model.SeatState
	ReservedBefore *time.Time
}

// guard appends the optional conditions of u to a WHERE clause.
func (u SeatUpdate) guard(q string, args []interface{}) (string, []interface{}) {
	if u.ExpectState != "" {
		q += ` AND state = ?`
		args = append(args, string(u.ExpectState))
	}
	if u.ReservedBefore != nil {
		q += ` AND (reserved_at IS NULL OR reserved_at <= ?)`
		args = append(args, u.ReservedBefore.UTC())
	}
	return q, args
}

// SeatRepo provides methods to work with seats in the database.
type SeatRepo struct {
	db *sql.DB
}

// NewSeatRepo constructs a SeatRepo with the given DB handle.
func NewSeatRepo(db *sql.DB) *SeatRepo {
	return &SeatRepo{db: db}
}

// DB exposes the underlying handle so other repositories can share
// transactions with this one.
func (r *SeatRepo) DB() *sql.DB { return r.db }

const seatColumns = `id, event_id, row_label, seat_number, state, reserved_at, created_at, updated_at`

type rowScanner interface {
	Scan(dest ...interface{}) error
}

func scanSeat(sc rowScanner) (model.Seat, error) {
	var s model.Seat
	var state string
	var reservedAt sql.NullTime
	if err := sc.Scan(&s.ID, &s.EventID, &s.Row, &s.Number, &state, &reservedAt, &s.CreatedAt, &s.UpdatedAt); err != nil {
		return model.Seat{}, err
	}
	s.State = model.SeatState(state)
	if reservedAt.Valid {
		t := reservedAt.Time.UTC()
		s.ReservedAt = &t
	}
	return s, nil
}

// CreateMany inserts the seats of an event in a single statement.  Seats
// without an ID get a new UUID, written back into the slice.  Passing an
// empty slice has no effect.
func (r *SeatRepo) CreateMany(ctx context.Context, seats []model.Seat) error {
	if len(seats) == 0 {
		return nil
	}
	var b strings.Builder
	b.WriteString(`INSERT INTO seats (id, event_id, row_label, seat_number, state) VALUES `)
	args := make([]interface{}, 0, len(seats)*5)
	for i := range seats {
		if i > 0 {
			b.WriteString(",")
		}
		b.WriteString("(?, ?, ?, ?, ?)")
		if seats[i].ID == "" {
			seats[i].ID = uuid.NewString()
		}
		if seats[i].State == "" {
			seats[i].State = model.SeatAvailable
		}
		args = append(args, seats[i].ID, seats[i].EventID, seats[i].Row, seats[i].Number, string(seats[i].State))
	}
	_, err := r.db.ExecContext(ctx, b.String(), args...)
	return err
}

// GetByID returns a seat by primary key or ErrSeatNotFound.
func (r *SeatRepo) GetByID(ctx context.Context, id string) (*model.Seat, error) {
	row := r.db.QueryRowContext(ctx, `SELECT `+seatColumns+` FROM seats WHERE id = ?`, id)
	s, err := scanSeat(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrSeatNotFound
	}
	if err != nil {
		return nil, err
	}
	return &s, nil
}

// ListByEvent returns every seat of an event ordered by row then number.
func (r *SeatRepo) ListByEvent(ctx context.Context, eventID string) ([]model.Seat, error) {
	return r.List(ctx, SeatFilter{EventID: eventID})
}

// List returns the seats matching f ordered by row then number.
func (r *SeatRepo) List(ctx context.Context, f SeatFilter) ([]model.Seat, error) {
	where, args := f.where()
	q := `SELECT ` + seatColumns + ` FROM seats` + where + ` ORDER BY row_label, seat_number`
	rows, err := r.db.QueryContext(ctx, q, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	seats := make([]model.Seat, 0)
	for rows.Next() {
		s, err := scanSeat(rows)
		if err != nil {
			return nil, err
		}
		seats = append(seats, s)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return seats, nil
}

// EventsWithState lists the distinct events that have at least one seat
// in the given state.
func (r *SeatRepo) EventsWithState(ctx context.Context, state model.SeatState) ([]string, error) {
	rows, err := r.db.QueryContext(ctx, `SELECT DISTINCT event_id FROM seats WHERE state = ?`, string(state))
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var ids []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}

// Update applies u to one seat and reports whether a row changed.  A
// false result with a nil error means the seat does not exist or was not
// in u.ExpectState.
func (r *SeatRepo) Update(ctx context.Context, id string, u SeatUpdate) (bool, error) {
	return updateSeat(ctx, r.db, id, u)
}

// UpdateTx is Update inside the caller's transaction.
func (r *SeatRepo) UpdateTx(ctx context.Context, tx *sql.Tx, id string, u SeatUpdate) (bool, error) {
	return updateSeat(ctx, tx, id, u)
}

// BulkUpdate applies u to every listed seat and returns the number of rows
// changed.  Seats not in u.ExpectState are skipped.
func (r *SeatRepo) BulkUpdate(ctx context.Context, ids []string, u SeatUpdate) (int64, error) {
	if len(ids) == 0 {
		return 0, nil
	}
	q := `UPDATE seats SET state = ?, reserved_at = ? WHERE id IN (` + placeholders(len(ids)) + `)`
	args := make([]interface{}, 0, len(ids)+3)
	args = append(args, string(u.State), nullTime(u.ReservedAt))
	for _, id := range ids {
		args = append(args, id)
	}
	q, args = u.guard(q, args)
	res, err := r.db.ExecContext(ctx, q, args...)
	if err != nil {
		return 0, err
	}
	return res.RowsAffected()
}

type execer interface {
	ExecContext(ctx context.Context, query string, args ...interface{}) (sql.Result, error)
}

func updateSeat(ctx context.Context, db execer, id string, u SeatUpdate) (bool, error) {
	q := `UPDATE seats SET state = ?, reserved_at = ? WHERE id = ?`
	args := []interface{}{string(u.State), nullTime(u.ReservedAt), id}
	q, args = u.guard(q, args)
	res, err := db.ExecContext(ctx, q, args...)
	if err != nil {
		return false, err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, err
	}
	return n == 1, nil
}

func (f SeatFilter) where() (string, []interface{}) {
	var conds []string
	var args []interface{}
	if f.EventID != "" {
		conds = append(conds, "event_id = ?")
		args = append(args, f.EventID)
	}
	if len(f.States) > 0 {
		conds = append(conds, "state IN ("+placeholders(len(f.States))+")")
		for _, s := range f.States {
			args = append(args, string(s))
		}
	}
	if len(f.IDs) > 0 {
		conds = append(conds, "id IN ("+placeholders(len(f.IDs))+")")
		for _, id := range f.IDs {
			args = append(args, id)
		}
	}
	if len(f.ExcludeIDs) > 0 {
		conds = append(conds, "id NOT IN ("+placeholders(len(f.ExcludeIDs))+")")
		for _, id := range f.ExcludeIDs {
			args = append(args, id)
		}
	}
	if len(conds) == 0 {
		return "", nil
	}
	return " WHERE " + strings.Join(conds, " AND "), args
}

func placeholders(n int) string {
	if n <= 0 {
		return ""
	}
	return strings.TrimSuffix(strings.Repeat("?,", n), ",")
}

// nullTime stores timestamps in UTC, matching the DSN's loc=UTC.
func nullTime(t *time.Time) interface{} {
	if t == nil {
		return nil
	}
	return t.UTC()
}

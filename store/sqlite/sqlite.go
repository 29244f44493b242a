/*
Package sqlite provides the SQLite-backed Reservation Store.

PURPOSE:
  Implements booking.Store over database/sql + mattn/go-sqlite3. The same
  patterns apply to PostgreSQL - only minor SQL dialect differences.

NO DOUBLE BOOKING:
  Create re-runs the overlap check against the live table INSIDE the same
  transaction that performs the insert. Two concurrent creates for one slot
  cannot both commit; the loser gets booking.ErrSlotConflict. The order_id
  primary key additionally absorbs idempotent retries of the same request.

KEY TABLE:
  reservations: one row per booking; unique on order_id; indexed on
  (place, day) for overlap queries and on client_id for client listings.

TIME HANDLING:
  Instants are stored as RFC3339 UTC and localized to the configured
  timezone on the way out. The day column holds the local calendar date.

WAL MODE:
  SQLite is opened with WAL for better concurrency: readers don't block,
  single writer at a time.

RETRIES:
  Transient SQLITE_BUSY failures are retried a small fixed number of times
  with backoff, then surfaced as booking.ErrStoreUnavailable.

SEE ALSO:
  - booking/store.go: Interface definition
  - booking/store/memory.go: In-memory implementation for tests
*/
package sqlite

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"sync"
	"time"

	_ "github.com/mattn/go-sqlite3"
	"github.com/shopspring/decimal"

	"github.com/ikigai/booking-engine/booking"
)

const (
	maxRetries   = 3
	retryBackoff = 50 * time.Millisecond

	dayFormat = "2006-01-02"
)

// Store implements booking.Store using SQLite.
type Store struct {
	db  *sql.DB
	loc *time.Location
	mu  sync.RWMutex
}

// New opens (or creates) the database at path and migrates the schema.
// Use ":memory:" for an in-memory database. Read instants are localized
// to loc; nil means UTC.
func New(path string, loc *time.Location) (*Store, error) {
	if loc == nil {
		loc = time.UTC
	}

	db, err := sql.Open("sqlite3", path+"?_foreign_keys=on&_journal_mode=WAL&_busy_timeout=5000")
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	// One writer at a time; also keeps ":memory:" on a single connection,
	// which would otherwise be a fresh database per pooled connection.
	db.SetMaxOpenConns(1)

	s := &Store{db: db, loc: loc}
	if err := s.migrate(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to migrate database: %w", err)
	}
	return s, nil
}

// Close closes the database connection.
func (s *Store) Close() error {
	return s.db.Close()
}

func (s *Store) migrate() error {
	schema := `
	CREATE TABLE IF NOT EXISTS reservations (
		order_id    TEXT PRIMARY KEY,
		client_id   TEXT NOT NULL,
		client_name TEXT NOT NULL DEFAULT '',
		type        TEXT NOT NULL,
		place       INTEGER NOT NULL,
		day         TEXT NOT NULL,
		time_from   TEXT NOT NULL,
		time_to     TEXT NOT NULL,
		hours       TEXT NOT NULL,
		price       TEXT NOT NULL,
		paid        INTEGER NOT NULL DEFAULT 0,
		payment_ref TEXT NOT NULL DEFAULT '',
		created_at  TEXT NOT NULL
	);

	-- Hot path: overlap queries at create/update time
	CREATE INDEX IF NOT EXISTS idx_reservations_place_day
		ON reservations(place, day);

	CREATE INDEX IF NOT EXISTS idx_reservations_client
		ON reservations(client_id);

	CREATE INDEX IF NOT EXISTS idx_reservations_time_from
		ON reservations(time_from);
	`
	_, err := s.db.Exec(schema)
	return err
}

const reservationColumns = `order_id, client_id, client_name, type, place, day,
	time_from, time_to, hours, price, paid, payment_ref, created_at`

// =============================================================================
// WRITES
// =============================================================================

// Create inserts a reservation after re-validating the slot inside the same
// transaction.
func (s *Store) Create(ctx context.Context, r booking.Reservation) (booking.Reservation, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	err := s.withRetry(func() error {
		tx, err := s.db.BeginTx(ctx, nil)
		if err != nil {
			return err
		}
		defer tx.Rollback()

		taken, err := s.slotTakenTx(ctx, tx, r.Place, r.Day, r.TimeFrom, r.TimeTo, "")
		if err != nil {
			return err
		}
		if taken {
			return &booking.SlotConflictError{Place: r.Place, TimeFrom: r.TimeFrom, TimeTo: r.TimeTo}
		}

		_, err = tx.ExecContext(ctx, `
			INSERT INTO reservations
			(order_id, client_id, client_name, type, place, day, time_from, time_to,
			 hours, price, paid, payment_ref, created_at)
			VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
			r.OrderID, r.ClientID, r.ClientName, string(r.Type), r.Place,
			r.Day.Format(dayFormat),
			r.TimeFrom.UTC().Format(time.RFC3339),
			r.TimeTo.UTC().Format(time.RFC3339),
			r.Hours.String(), r.Price.String(),
			boolToInt(r.Paid), r.PaymentRef,
			r.CreatedAt.UTC().Format(time.RFC3339),
		)
		if err != nil {
			if isUniqueConstraintError(err) {
				// Same order id = same slot+client retried.
				return &booking.SlotConflictError{Place: r.Place, TimeFrom: r.TimeFrom, TimeTo: r.TimeTo}
			}
			return err
		}
		return tx.Commit()
	})
	if err != nil {
		return booking.Reservation{}, s.mapErr("create", err)
	}
	return r, nil
}

// Update mutates allow-listed fields, re-validating overlap when the slot
// moves.
func (s *Store) Update(ctx context.Context, orderID string, upd booking.Update) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	found := false
	err := s.withRetry(func() error {
		tx, err := s.db.BeginTx(ctx, nil)
		if err != nil {
			return err
		}
		defer tx.Rollback()

		row := tx.QueryRowContext(ctx,
			`SELECT `+reservationColumns+` FROM reservations WHERE order_id = ?`, orderID)
		current, err := s.scanReservation(row)
		if err == sql.ErrNoRows {
			found = false
			return tx.Commit()
		}
		if err != nil {
			return err
		}
		found = true

		next := applyUpdate(current, upd)

		if upd.TouchesSlot() {
			taken, err := s.slotTakenTx(ctx, tx, next.Place, next.Day, next.TimeFrom, next.TimeTo, orderID)
			if err != nil {
				return err
			}
			if taken {
				return &booking.SlotConflictError{Place: next.Place, TimeFrom: next.TimeFrom, TimeTo: next.TimeTo}
			}
		}

		_, err = tx.ExecContext(ctx, `
			UPDATE reservations
			SET place = ?, day = ?, time_from = ?, time_to = ?, paid = ?, payment_ref = ?
			WHERE order_id = ?`,
			next.Place,
			next.Day.Format(dayFormat),
			next.TimeFrom.UTC().Format(time.RFC3339),
			next.TimeTo.UTC().Format(time.RFC3339),
			boolToInt(next.Paid), next.PaymentRef,
			orderID,
		)
		if err != nil {
			return err
		}
		return tx.Commit()
	})
	if err != nil {
		return false, s.mapErr("update", err)
	}
	return found, nil
}

// Delete removes a reservation unconditionally, returning the deleted row.
func (s *Store) Delete(ctx context.Context, orderID string) (booking.Reservation, error) {
	return s.deleteWhere(ctx, orderID, "")
}

// DeleteIfUnpaid removes a reservation only while it is still unpaid and
// has no payment confirmation. A row that moved to PendingConfirmation
// between the caller's read and this delete survives (ErrNotFound).
func (s *Store) DeleteIfUnpaid(ctx context.Context, orderID string) (booking.Reservation, error) {
	return s.deleteWhere(ctx, orderID, " AND paid = 0 AND payment_ref = ''")
}

func (s *Store) deleteWhere(ctx context.Context, orderID, condition string) (booking.Reservation, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var deleted booking.Reservation
	err := s.withRetry(func() error {
		tx, err := s.db.BeginTx(ctx, nil)
		if err != nil {
			return err
		}
		defer tx.Rollback()

		row := tx.QueryRowContext(ctx,
			`SELECT `+reservationColumns+` FROM reservations WHERE order_id = ?`+condition, orderID)
		r, err := s.scanReservation(row)
		if err == sql.ErrNoRows {
			return booking.ErrNotFound
		}
		if err != nil {
			return err
		}

		res, err := tx.ExecContext(ctx,
			`DELETE FROM reservations WHERE order_id = ?`+condition, orderID)
		if err != nil {
			return err
		}
		affected, err := res.RowsAffected()
		if err != nil {
			return err
		}
		if affected == 0 {
			return booking.ErrNotFound
		}

		deleted = r
		return tx.Commit()
	})
	if err != nil {
		return booking.Reservation{}, s.mapErr("delete", err)
	}
	return deleted, nil
}

// =============================================================================
// READS
// =============================================================================

func (s *Store) GetByOrderID(ctx context.Context, orderID string) (booking.Reservation, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	row := s.db.QueryRowContext(ctx,
		`SELECT `+reservationColumns+` FROM reservations WHERE order_id = ?`, orderID)
	r, err := s.scanReservation(row)
	if err == sql.ErrNoRows {
		return booking.Reservation{}, booking.ErrNotFound
	}
	if err != nil {
		return booking.Reservation{}, s.mapErr("get", err)
	}
	return r, nil
}

func (s *Store) GetUpcomingUnpaid(ctx context.Context, now time.Time) ([]booking.Reservation, error) {
	return s.query(ctx, `
		SELECT `+reservationColumns+` FROM reservations
		WHERE payment_ref = '' AND paid = 0 AND time_from > ?
		ORDER BY time_from ASC`,
		now.UTC().Format(time.RFC3339))
}

func (s *Store) GetPaidUnconfirmed(ctx context.Context, now time.Time) ([]booking.Reservation, error) {
	return s.query(ctx, `
		SELECT `+reservationColumns+` FROM reservations
		WHERE payment_ref != '' AND paid = 0 AND time_from > ?
		ORDER BY time_from ASC`,
		now.UTC().Format(time.RFC3339))
}

func (s *Store) ListForDate(ctx context.Context, day time.Time) ([]booking.Reservation, error) {
	return s.query(ctx, `
		SELECT `+reservationColumns+` FROM reservations
		WHERE day = ?
		ORDER BY time_from ASC`,
		day.Format(dayFormat))
}

func (s *Store) ListUpcomingForClient(ctx context.Context, clientID string, now time.Time) ([]booking.Reservation, error) {
	return s.query(ctx, `
		SELECT `+reservationColumns+` FROM reservations
		WHERE client_id = ? AND time_from > ?
		ORDER BY time_from ASC`,
		clientID, now.UTC().Format(time.RFC3339))
}

func (s *Store) ListUnpaidForClient(ctx context.Context, clientID string, now time.Time) ([]booking.Reservation, error) {
	return s.query(ctx, `
		SELECT `+reservationColumns+` FROM reservations
		WHERE client_id = ? AND payment_ref = '' AND paid = 0 AND time_from > ?
		ORDER BY time_from ASC`,
		clientID, now.UTC().Format(time.RFC3339))
}

func (s *Store) query(ctx context.Context, query string, args ...any) ([]booking.Reservation, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, s.mapErr("query", err)
	}
	defer rows.Close()

	var out []booking.Reservation
	for rows.Next() {
		r, err := s.scanReservation(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, r)
	}
	return out, rows.Err()
}

// =============================================================================
// HELPERS
// =============================================================================

// slotTakenTx is the in-transaction overlap check: half-open intervals, so
// touching endpoints do not collide.
func (s *Store) slotTakenTx(ctx context.Context, tx *sql.Tx, place int, day, from, to time.Time, excludeOrderID string) (bool, error) {
	var count int
	err := tx.QueryRowContext(ctx, `
		SELECT COUNT(*) FROM reservations
		WHERE place = ? AND day = ?
		  AND time_from < ? AND ? < time_to
		  AND order_id != ?`,
		place, day.Format(dayFormat),
		to.UTC().Format(time.RFC3339), from.UTC().Format(time.RFC3339),
		excludeOrderID,
	).Scan(&count)
	return count > 0, err
}

type rowScanner interface {
	Scan(dest ...any) error
}

func (s *Store) scanReservation(row rowScanner) (booking.Reservation, error) {
	var (
		r                       booking.Reservation
		typ, day, from, to      string
		hours, price, createdAt string
		paid                    int
	)
	err := row.Scan(&r.OrderID, &r.ClientID, &r.ClientName, &typ, &r.Place, &day,
		&from, &to, &hours, &price, &paid, &r.PaymentRef, &createdAt)
	if err != nil {
		return r, err
	}

	r.Type = booking.PlaceType(typ)
	r.Paid = paid != 0
	r.Day, _ = time.ParseInLocation(dayFormat, day, s.loc)
	r.TimeFrom = parseInstant(from, s.loc)
	r.TimeTo = parseInstant(to, s.loc)
	r.CreatedAt = parseInstant(createdAt, s.loc)
	r.Hours = mustDecimal(hours)
	r.Price = mustDecimal(price)
	return r, nil
}

func applyUpdate(r booking.Reservation, upd booking.Update) booking.Reservation {
	if upd.Day != nil {
		r.Day = *upd.Day
	}
	if upd.TimeFrom != nil {
		r.TimeFrom = *upd.TimeFrom
	}
	if upd.TimeTo != nil {
		r.TimeTo = *upd.TimeTo
	}
	if upd.Place != nil {
		r.Place = *upd.Place
	}
	if upd.PaymentRef != nil {
		r.PaymentRef = *upd.PaymentRef
	}
	if upd.Paid != nil {
		r.Paid = *upd.Paid
	}
	return r
}

// withRetry runs fn up to maxRetries times, backing off on transient
// lock/busy failures. Domain errors pass straight through.
func (s *Store) withRetry(fn func() error) error {
	var err error
	for attempt := 0; attempt < maxRetries; attempt++ {
		err = fn()
		if err == nil || !isTransient(err) {
			return err
		}
		time.Sleep(retryBackoff * time.Duration(attempt+1))
	}
	return fmt.Errorf("%w: %v", booking.ErrStoreUnavailable, err)
}

func (s *Store) mapErr(op string, err error) error {
	if err == nil || booking.IsConflict(err) || booking.IsNotFound(err) || booking.IsUnavailable(err) {
		return err
	}
	return fmt.Errorf("%s: %w", op, err)
}

func isTransient(err error) bool {
	if err == nil {
		return false
	}
	msg := err.Error()
	return strings.Contains(msg, "database is locked") || strings.Contains(msg, "database table is locked")
}

func isUniqueConstraintError(err error) bool {
	return err != nil && strings.Contains(err.Error(), "UNIQUE constraint failed")
}

func parseInstant(s string, loc *time.Location) time.Time {
	t, _ := time.Parse(time.RFC3339, s)
	return t.In(loc)
}

func mustDecimal(s string) decimal.Decimal {
	d, err := decimal.NewFromString(s)
	if err != nil {
		return decimal.Zero
	}
	return d
}

func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}

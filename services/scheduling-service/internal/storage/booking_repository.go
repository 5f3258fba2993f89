package storage

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"

	"github.com/ibrahgraphix/FlameCounselling-sub000/libs/db"
	"github.com/ibrahgraphix/FlameCounselling-sub000/services/scheduling-service/internal/model"
)

type BookingRepository struct {
	pool *db.Pool
}

func NewBookingRepository(pool *db.Pool) *BookingRepository {
	return &BookingRepository{pool: pool}
}

func (r *BookingRepository) Begin(ctx context.Context) (pgx.Tx, error) {
	return r.pool.Begin(ctx)
}

const bookingColumns = `
	id::text,
	student_id::text,
	counselor_id::text,
	to_char(booking_date, 'YYYY-MM-DD'),
	booking_time,
	status,
	COALESCE(google_event_id, ''),
	COALESCE(notes, ''),
	created_at,
	updated_at`

func scanBooking(row pgx.Row) (model.Booking, error) {
	var b model.Booking
	err := row.Scan(
		&b.ID,
		&b.StudentID,
		&b.CounselorID,
		&b.BookingDate,
		&b.BookingTime,
		&b.Status,
		&b.GoogleEventID,
		&b.Notes,
		&b.CreatedAt,
		&b.UpdatedAt,
	)
	return b, err
}

func (r *BookingRepository) Get(ctx context.Context, bookingID string) (model.Booking, error) {
	return scanBooking(r.pool.QueryRow(ctx, `
		SELECT `+bookingColumns+`
		FROM bookings
		WHERE id = $1
	`, bookingID))
}

// Create inserts a booking in pending state and returns its id.
func (r *BookingRepository) Create(ctx context.Context, tx pgx.Tx, b *model.Booking) (string, error) {
	var id string
	err := tx.QueryRow(ctx, `
		INSERT INTO bookings (student_id, counselor_id, booking_date, booking_time, status, notes)
		VALUES ($1, $2, $3, $4, $5, $6)
		RETURNING id
	`, b.StudentID, b.CounselorID, b.BookingDate, b.BookingTime, model.StatusPending, b.Notes).Scan(&id)
	if err != nil {
		return "", err
	}
	return id, nil
}

// Confirm transitions a pending booking to confirmed once the external event
// exists. The event id is linked separately so a failure there cannot undo the
// confirmation.
func (r *BookingRepository) Confirm(ctx context.Context, tx pgx.Tx, bookingID string) error {
	tag, err := tx.Exec(ctx, `
		UPDATE bookings
		SET status = $2,
			updated_at = now()
		WHERE id = $1 AND status = $3
	`, bookingID, model.StatusConfirmed, model.StatusPending)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return pgx.ErrNoRows
	}
	return nil
}

// SetGoogleEventID links (or relinks) the external event. Best-effort callers
// log and continue on failure.
func (r *BookingRepository) SetGoogleEventID(ctx context.Context, bookingID, googleEventID string) error {
	_, err := r.pool.Exec(ctx, `
		UPDATE bookings
		SET google_event_id = $2,
			updated_at = now()
		WHERE id = $1
	`, bookingID, googleEventID)
	return err
}

// UpdateSchedule moves a booking to a new date/time without touching status.
// Runs inside the caller's transaction so the outbox event commits with it.
func (r *BookingRepository) UpdateSchedule(ctx context.Context, tx pgx.Tx, bookingID, newDate, newTime string) error {
	tag, err := tx.Exec(ctx, `
		UPDATE bookings
		SET booking_date = $2,
			booking_time = $3,
			updated_at = now()
		WHERE id = $1
	`, bookingID, newDate, newTime)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return pgx.ErrNoRows
	}
	return nil
}

// Transition applies a status change, enforcing the machine inside the UPDATE
// so concurrent writers cannot revive a terminal booking.
func (r *BookingRepository) Transition(ctx context.Context, tx pgx.Tx, bookingID, from, to string) error {
	if !model.CanTransition(from, to) {
		return fmt.Errorf("booking %s: illegal transition %s -> %s", bookingID, from, to)
	}
	tag, err := tx.Exec(ctx, `
		UPDATE bookings
		SET status = $3,
			updated_at = now()
		WHERE id = $1 AND status = $2
	`, bookingID, from, to)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return pgx.ErrNoRows
	}
	return nil
}

func IsConflict(err error) bool {
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && (pgErr.Code == "23505" || pgErr.Code == "23P01")
}

func IsNotFound(err error) bool {
	return errors.Is(err, pgx.ErrNoRows)
}

// StudentRepository resolves students by email during booking. Student CRUD
// itself lives outside the scheduling core.
type StudentRepository struct {
	pool *db.Pool
}

func NewStudentRepository(pool *db.Pool) *StudentRepository {
	return &StudentRepository{pool: pool}
}

// FindOrCreateByEmail returns the existing student with this email or inserts
// a minimal row.
func (r *StudentRepository) FindOrCreateByEmail(ctx context.Context, tx pgx.Tx, email, name string) (model.Student, error) {
	var s model.Student
	err := tx.QueryRow(ctx, `
		SELECT id::text, name, email FROM students WHERE lower(email) = lower($1)
	`, email).Scan(&s.ID, &s.Name, &s.Email)
	if err == nil {
		return s, nil
	}
	if !errors.Is(err, pgx.ErrNoRows) {
		return model.Student{}, err
	}

	if name == "" {
		name = email
	}
	err = tx.QueryRow(ctx, `
		INSERT INTO students (name, email)
		VALUES ($1, $2)
		ON CONFLICT (email) DO UPDATE SET name = students.name
		RETURNING id::text, name, email
	`, name, email).Scan(&s.ID, &s.Name, &s.Email)
	if err != nil {
		return model.Student{}, err
	}
	return s, nil
}

// Get is used by handlers to echo student details back on booking responses.
func (r *StudentRepository) Get(ctx context.Context, studentID string) (model.Student, error) {
	var s model.Student
	err := r.pool.QueryRow(ctx, `
		SELECT id::text, name, email FROM students WHERE id = $1
	`, studentID).Scan(&s.ID, &s.Name, &s.Email)
	return s, err
}

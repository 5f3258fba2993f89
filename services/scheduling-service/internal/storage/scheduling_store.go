package storage

import (
	"context"

	"github.com/jackc/pgx/v5"

	"github.com/ibrahgraphix/FlameCounselling-sub000/libs/db"
	"github.com/ibrahgraphix/FlameCounselling-sub000/services/scheduling-service/internal/model"
	"github.com/ibrahgraphix/FlameCounselling-sub000/services/scheduling-service/internal/outbox"
)

// SchedulingStore composes the booking and student repositories with the
// outbox so each booking mutation and its lifecycle event commit together.
type SchedulingStore struct {
	pool     *db.Pool
	bookings *BookingRepository
	students *StudentRepository
	outbox   *outbox.Repository
}

func NewSchedulingStore(pool *db.Pool) *SchedulingStore {
	return &SchedulingStore{
		pool:     pool,
		bookings: NewBookingRepository(pool),
		students: NewStudentRepository(pool),
		outbox:   outbox.NewRepository(pool),
	}
}

func (s *SchedulingStore) Booking(ctx context.Context, bookingID string) (model.Booking, error) {
	return s.bookings.Get(ctx, bookingID)
}

func (s *SchedulingStore) Student(ctx context.Context, studentID string) (model.Student, error) {
	return s.students.Get(ctx, studentID)
}

// CreateConfirmedBooking resolves the student, inserts the booking pending,
// flips it to confirmed, and records the lifecycle event in one transaction.
// The pending insert keeps the status machine honest even though callers only
// ever see the confirmed row.
func (s *SchedulingStore) CreateConfirmedBooking(ctx context.Context, b model.Booking, studentEmail, studentName string, evt outbox.Event) (model.Booking, error) {
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return model.Booking{}, err
	}
	defer tx.Rollback(ctx)

	if b.StudentID == "" {
		student, err := s.students.FindOrCreateByEmail(ctx, tx, studentEmail, studentName)
		if err != nil {
			return model.Booking{}, err
		}
		b.StudentID = student.ID
	}

	id, err := s.bookings.Create(ctx, tx, &b)
	if err != nil {
		return model.Booking{}, err
	}
	if err := s.bookings.Confirm(ctx, tx, id); err != nil {
		return model.Booking{}, err
	}

	evt.AggregateID = id
	if err := s.outbox.Insert(ctx, tx, evt); err != nil {
		return model.Booking{}, err
	}

	stored, err := scanBooking(tx.QueryRow(ctx, `
		SELECT `+bookingColumns+`
		FROM bookings
		WHERE id = $1
	`, id))
	if err != nil {
		return model.Booking{}, err
	}
	if err := tx.Commit(ctx); err != nil {
		return model.Booking{}, err
	}
	return stored, nil
}

func (s *SchedulingStore) LinkGoogleEvent(ctx context.Context, bookingID, googleEventID string) error {
	return s.bookings.SetGoogleEventID(ctx, bookingID, googleEventID)
}

func (s *SchedulingStore) UpdateBookingSchedule(ctx context.Context, bookingID, newDate, newTime string, evt outbox.Event) error {
	return s.inTx(ctx, func(tx pgx.Tx) error {
		if err := s.bookings.UpdateSchedule(ctx, tx, bookingID, newDate, newTime); err != nil {
			return err
		}
		return s.outbox.Insert(ctx, tx, evt)
	})
}

func (s *SchedulingStore) TransitionBooking(ctx context.Context, bookingID, from, to string, evt outbox.Event) error {
	return s.inTx(ctx, func(tx pgx.Tx) error {
		if err := s.bookings.Transition(ctx, tx, bookingID, from, to); err != nil {
			return err
		}
		return s.outbox.Insert(ctx, tx, evt)
	})
}

func (s *SchedulingStore) inTx(ctx context.Context, fn func(pgx.Tx) error) error {
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return err
	}
	defer tx.Rollback(ctx)
	if err := fn(tx); err != nil {
		return err
	}
	return tx.Commit(ctx)
}

// Package reconciler ties local booking state to the counselor's Google
// Calendar: it computes available slots from free/busy data, re-verifies
// availability at write time, and keeps the external event in step with the
// local row across reschedules and cancellations, tolerating partial failure
// at every external call.
package reconciler

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/ibrahgraphix/FlameCounselling-sub000/services/scheduling-service/internal/availability"
	"github.com/ibrahgraphix/FlameCounselling-sub000/services/scheduling-service/internal/gcal"
	"github.com/ibrahgraphix/FlameCounselling-sub000/services/scheduling-service/internal/model"
	"github.com/ibrahgraphix/FlameCounselling-sub000/services/scheduling-service/internal/outbox"
	"github.com/ibrahgraphix/FlameCounselling-sub000/services/scheduling-service/internal/slotlock"
	"github.com/ibrahgraphix/FlameCounselling-sub000/services/scheduling-service/internal/timeparse"
)

var (
	ErrMissingFields       = errors.New("counselor id, booking date and booking time are required")
	ErrInvalidTimeFormat   = errors.New("unrecognized booking time format")
	ErrInvalidNewStartTime = errors.New("unrecognized new start time")
	ErrSlotUnavailable     = errors.New("slot is no longer available")
	ErrBookingNotFound     = errors.New("booking not found")
	ErrMissingCounselorID  = errors.New("booking has no counselor id")
	ErrIllegalTransition   = errors.New("status transition not allowed")
)

// CalendarClient is the per-counselor calendar session surface the reconciler
// uses. *gcal.Client satisfies it.
type CalendarClient interface {
	FreeBusy(ctx context.Context, calendarID string, timeMin, timeMax time.Time, timezone string) ([]availability.BusyRange, error)
	CreateEvent(ctx context.Context, calendarID string, in gcal.EventInput) (gcal.Event, error)
	PatchEvent(ctx context.Context, calendarID, eventID string, start, end time.Time, timezone string) (gcal.Event, error)
	GetEvent(ctx context.Context, calendarID, eventID string) (gcal.Event, error)
	DeleteEvent(ctx context.Context, calendarID, eventID string) error
	ListEventsInWindow(ctx context.Context, calendarID string, timeMin, timeMax time.Time) ([]gcal.Event, error)
}

// Authorizer obtains an authorized calendar session for a counselor. The
// counselor record is returned even when authorization fails so callers still
// know the timezone and working hours.
type Authorizer interface {
	AuthorizedClient(ctx context.Context, counselorID string) (CalendarClient, model.Counselor, error)
}

// GatewayAuthorizer adapts *gcal.Gateway to the Authorizer interface.
type GatewayAuthorizer struct {
	Gateway *gcal.Gateway
}

func (a GatewayAuthorizer) AuthorizedClient(ctx context.Context, counselorID string) (CalendarClient, model.Counselor, error) {
	client, counselor, err := a.Gateway.AuthorizedClient(ctx, counselorID)
	if err != nil {
		return nil, counselor, err
	}
	return client, counselor, nil
}

// Store is the persistence contract the reconciler drives. The pg
// implementation wraps the booking/student repositories and the outbox in one
// transaction per mutation.
type Store interface {
	Booking(ctx context.Context, bookingID string) (model.Booking, error)
	Student(ctx context.Context, studentID string) (model.Student, error)
	// CreateConfirmedBooking resolves the student (by id, or find-or-create by
	// email), inserts the booking pending, flips it to confirmed, and records
	// the lifecycle event, all transactionally. Returns the stored booking.
	CreateConfirmedBooking(ctx context.Context, b model.Booking, studentEmail, studentName string, evt outbox.Event) (model.Booking, error)
	// LinkGoogleEvent is best-effort; callers log and continue on failure.
	LinkGoogleEvent(ctx context.Context, bookingID, googleEventID string) error
	UpdateBookingSchedule(ctx context.Context, bookingID, newDate, newTime string, evt outbox.Event) error
	TransitionBooking(ctx context.Context, bookingID, from, to string, evt outbox.Event) error
}

type Reconciler struct {
	auth       Authorizer
	store      Store
	locks      slotlock.Locker
	logger     *slog.Logger
	defaultLoc *time.Location
}

const DefaultDuration = 60 * time.Minute

func New(auth Authorizer, store Store, locks slotlock.Locker, logger *slog.Logger, defaultLoc *time.Location) *Reconciler {
	if defaultLoc == nil {
		defaultLoc = time.UTC
	}
	return &Reconciler{
		auth:       auth,
		store:      store,
		locks:      locks,
		logger:     logger,
		defaultLoc: defaultLoc,
	}
}

func (r *Reconciler) location(counselor model.Counselor) *time.Location {
	if counselor.Timezone != "" {
		if loc, err := time.LoadLocation(counselor.Timezone); err == nil {
			return loc
		}
		r.logger.Warn("unknown counselor timezone, using default",
			"counselor_id", counselor.ID, "timezone", counselor.Timezone)
	}
	return r.defaultLoc
}

func calendarID(counselor model.Counselor) string {
	if counselor.CalendarID != "" {
		return counselor.CalendarID
	}
	return counselor.Email
}

// SlotsResult is the slot-query outcome. Connected=false is a normal state for
// counselors who never linked a calendar, not an error.
type SlotsResult struct {
	Connected bool
	Slots     []availability.Slot
}

// AvailableSlots returns the free slots for one day. The list is advisory:
// BookSession re-verifies against the calendar at write time.
func (r *Reconciler) AvailableSlots(ctx context.Context, counselorID, date string, duration time.Duration) (SlotsResult, error) {
	if duration <= 0 {
		duration = DefaultDuration
	}

	client, counselor, err := r.auth.AuthorizedClient(ctx, counselorID)
	if err != nil {
		if gcal.IsAuthError(err) {
			r.logger.Info("counselor calendar not connected",
				"counselor_id", counselorID, "err", err)
			return SlotsResult{Connected: false, Slots: []availability.Slot{}}, nil
		}
		return SlotsResult{}, err
	}

	loc := r.location(counselor)
	day, err := time.ParseInLocation("2006-01-02", date, loc)
	if err != nil {
		return SlotsResult{}, fmt.Errorf("%w: %q", ErrInvalidTimeFormat, date)
	}

	busy, err := client.FreeBusy(ctx, calendarID(counselor), day, day.AddDate(0, 0, 1), counselor.Timezone)
	if err != nil {
		return SlotsResult{}, err
	}

	workStart, ok := timeparse.Parse(date, counselor.WorkStart, loc)
	if !ok {
		return SlotsResult{}, fmt.Errorf("%w: working hours start %q", ErrInvalidTimeFormat, counselor.WorkStart)
	}
	workEnd, ok := timeparse.Parse(date, counselor.WorkEnd, loc)
	if !ok {
		return SlotsResult{}, fmt.Errorf("%w: working hours end %q", ErrInvalidTimeFormat, counselor.WorkEnd)
	}

	slots := availability.Slots(workStart, workEnd, duration, busy, loc)
	if slots == nil {
		slots = []availability.Slot{}
	}
	return SlotsResult{Connected: true, Slots: slots}, nil
}

type BookRequest struct {
	StudentID    string
	StudentEmail string
	StudentName  string
	CounselorID  string
	BookingDate  string
	BookingTime  string
	Duration     time.Duration
	Summary      string
	Description  string
	Timezone     string // optional override of the counselor's zone
}

type BookResult struct {
	Booking model.Booking
	Event   gcal.Event
}

// BookSession creates a booking and its calendar event. The free/busy re-check
// and the event insert sit as close together as possible and are guarded by an
// advisory lock on the (counselor, date, time) tuple; the check is
// authoritative, the slot list the caller saw earlier is not.
func (r *Reconciler) BookSession(ctx context.Context, req BookRequest) (BookResult, error) {
	if req.CounselorID == "" || req.BookingDate == "" || req.BookingTime == "" {
		return BookResult{}, ErrMissingFields
	}

	client, counselor, err := r.auth.AuthorizedClient(ctx, req.CounselorID)
	if err != nil {
		return BookResult{}, err
	}

	loc := r.location(counselor)
	if req.Timezone != "" {
		if override, err := time.LoadLocation(req.Timezone); err == nil {
			loc = override
		}
	}

	start, ok := timeparse.Parse(req.BookingDate, req.BookingTime, loc)
	if !ok {
		return BookResult{}, fmt.Errorf("%w: %q", ErrInvalidTimeFormat, req.BookingTime)
	}
	duration := req.Duration
	if duration <= 0 {
		duration = DefaultDuration
	}
	end := start.Add(duration)
	canonicalTime := start.In(loc).Format("15:04")

	release, locked, err := r.locks.Acquire(ctx, req.CounselorID, req.BookingDate, canonicalTime)
	if err != nil {
		// Lock backend trouble degrades to the unlocked (reference) behavior
		// rather than blocking bookings outright.
		r.logger.Warn("slot lock unavailable, proceeding unlocked", "err", err)
	} else if !locked {
		return BookResult{}, ErrSlotUnavailable
	} else {
		defer release()
	}

	// Authoritative conflict check, immediately before the create.
	busy, err := client.FreeBusy(ctx, calendarID(counselor), start, end, counselor.Timezone)
	if err != nil {
		return BookResult{}, err
	}
	if len(busy) > 0 {
		return BookResult{}, fmt.Errorf("%w: %s %s", ErrSlotUnavailable, req.BookingDate, canonicalTime)
	}

	summary := req.Summary
	if summary == "" {
		summary = "Counseling session"
		if req.StudentName != "" {
			summary += " with " + req.StudentName
		}
	}
	event, err := client.CreateEvent(ctx, calendarID(counselor), gcal.EventInput{
		Summary:     summary,
		Description: req.Description,
		Start:       start,
		End:         end,
		Timezone:    counselor.Timezone,
		Attendees:   []string{counselor.Email, req.StudentEmail},
	})
	if err != nil {
		// No local booking without a confirmed calendar event.
		return BookResult{}, err
	}

	booking := model.Booking{
		StudentID:   req.StudentID,
		CounselorID: req.CounselorID,
		BookingDate: req.BookingDate,
		BookingTime: canonicalTime,
		Notes:       req.Description,
	}
	evtPayload, _ := json.Marshal(map[string]any{
		"counselor_id":  req.CounselorID,
		"booking_date":  req.BookingDate,
		"booking_time":  canonicalTime,
		"student_email": req.StudentEmail,
	})
	stored, err := r.store.CreateConfirmedBooking(ctx, booking, req.StudentEmail, req.StudentName, outbox.Event{
		AggregateType: "booking",
		EventType:     outbox.EventBookingConfirmed,
		Payload:       evtPayload,
	})
	if err != nil {
		r.logger.Error("booking persist failed after calendar event creation",
			"counselor_id", req.CounselorID, "google_event_id", event.ID, "err", err)
		return BookResult{}, err
	}

	if err := r.store.LinkGoogleEvent(ctx, stored.ID, event.ID); err != nil {
		// The booking stands without the link; reschedules fall back to the
		// heuristic event search.
		r.logger.Warn("failed to store google event id",
			"booking_id", stored.ID, "google_event_id", event.ID, "err", err)
	} else {
		stored.GoogleEventID = event.ID
	}

	return BookResult{Booking: stored, Event: event}, nil
}

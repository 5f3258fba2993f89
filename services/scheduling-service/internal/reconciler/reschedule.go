package reconciler

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/ibrahgraphix/FlameCounselling-sub000/services/scheduling-service/internal/gcal"
	"github.com/ibrahgraphix/FlameCounselling-sub000/services/scheduling-service/internal/model"
	"github.com/ibrahgraphix/FlameCounselling-sub000/services/scheduling-service/internal/outbox"
	"github.com/ibrahgraphix/FlameCounselling-sub000/services/scheduling-service/internal/storage"
	"github.com/ibrahgraphix/FlameCounselling-sub000/services/scheduling-service/internal/timeparse"
)

// RescheduleResult reports the calendar side of a reschedule. The local row is
// updated before any calendar work, so Success=false never means the
// reschedule itself failed; it means the calendar could not be brought in step.
type RescheduleResult struct {
	Success         bool
	Reason          string
	Event           *gcal.Event
	CreatedNewEvent bool
	Err             error
}

// Reschedule moves a booking to a new date/time. A human explicitly asked for
// the change, so the local update never waits on the calendar: conflicts in the
// new window are logged rather than blocking, and every calendar failure
// degrades to a RescheduleResult the caller can surface alongside the updated
// booking.
func (r *Reconciler) Reschedule(ctx context.Context, bookingID, newDate, newTime string, duration time.Duration) (model.Booking, RescheduleResult, error) {
	booking, err := r.store.Booking(ctx, bookingID)
	if err != nil {
		if storage.IsNotFound(err) {
			return model.Booking{}, RescheduleResult{}, fmt.Errorf("%w: %s", ErrBookingNotFound, bookingID)
		}
		return model.Booking{}, RescheduleResult{}, err
	}
	if booking.CounselorID == "" {
		return model.Booking{}, RescheduleResult{}, ErrMissingCounselorID
	}

	client, counselor, authErr := r.auth.AuthorizedClient(ctx, booking.CounselorID)
	if authErr != nil && !gcal.IsAuthError(authErr) {
		return model.Booking{}, RescheduleResult{}, authErr
	}

	loc := r.location(counselor)
	start, ok := timeparse.Parse(newDate, newTime, loc)
	if !ok {
		return model.Booking{}, RescheduleResult{}, fmt.Errorf("%w: %q", ErrInvalidNewStartTime, newTime)
	}
	if duration <= 0 {
		duration = DefaultDuration
	}
	end := start.Add(duration)
	canonicalTime := start.In(loc).Format("15:04")

	evtPayload, _ := json.Marshal(map[string]any{
		"booking_id":   booking.ID,
		"counselor_id": booking.CounselorID,
		"old_date":     booking.BookingDate,
		"old_time":     booking.BookingTime,
		"new_date":     newDate,
		"new_time":     canonicalTime,
	})
	if err := r.store.UpdateBookingSchedule(ctx, booking.ID, newDate, canonicalTime, outbox.Event{
		AggregateType: "booking",
		AggregateID:   booking.ID,
		EventType:     outbox.EventBookingRescheduled,
		Payload:       evtPayload,
	}); err != nil {
		return model.Booking{}, RescheduleResult{}, err
	}
	booking.BookingDate = newDate
	booking.BookingTime = canonicalTime

	if authErr != nil {
		r.logger.Warn("reschedule: calendar not connected, local row updated only",
			"booking_id", booking.ID, "err", authErr)
		return booking, RescheduleResult{Reason: "calendar not connected", Err: authErr}, nil
	}

	result := r.syncRescheduledEvent(ctx, client, counselor, booking, start, end)
	if result.Event != nil && result.Event.ID != "" && result.Event.ID != booking.GoogleEventID {
		if err := r.store.LinkGoogleEvent(ctx, booking.ID, result.Event.ID); err != nil {
			r.logger.Warn("failed to store google event id after reschedule",
				"booking_id", booking.ID, "google_event_id", result.Event.ID, "err", err)
		} else {
			booking.GoogleEventID = result.Event.ID
		}
	}
	return booking, result, nil
}

func (r *Reconciler) syncRescheduledEvent(ctx context.Context, client CalendarClient, counselor model.Counselor, booking model.Booking, start, end time.Time) RescheduleResult {
	calID := calendarID(counselor)

	// Informational only: an admin-driven reschedule may override conflicts.
	if busy, err := client.FreeBusy(ctx, calID, start, end, counselor.Timezone); err != nil {
		r.logger.Warn("reschedule: free/busy check failed", "booking_id", booking.ID, "err", err)
	} else if len(busy) > 0 {
		r.logger.Warn("reschedule: new window conflicts with existing events, proceeding anyway",
			"booking_id", booking.ID, "conflicts", len(busy))
	}

	eventID := booking.GoogleEventID
	if eventID == "" {
		eventID = r.findEventHeuristically(ctx, client, calID, booking, start)
	}

	if eventID != "" {
		if _, err := client.GetEvent(ctx, calID, eventID); err != nil {
			r.logger.Warn("reschedule: stored event not fetchable, will create a new one",
				"booking_id", booking.ID, "google_event_id", eventID, "err", err)
			eventID = ""
		}
	}

	if eventID != "" {
		patched, err := client.PatchEvent(ctx, calID, eventID, start, end, counselor.Timezone)
		if err == nil {
			return RescheduleResult{Success: true, Event: &patched}
		}
		// Event deleted externally, permissions changed, etc. Fall back to a
		// fresh event rather than failing the reschedule.
		r.logger.Warn("reschedule: patch failed, creating replacement event",
			"booking_id", booking.ID, "google_event_id", eventID, "err", err)
	}

	created, err := r.createReplacementEvent(ctx, client, calID, counselor, booking, start, end)
	if err != nil {
		return RescheduleResult{Reason: "calendar event could not be updated or recreated", Err: err}
	}
	return RescheduleResult{Success: true, Event: &created, CreatedNewEvent: true}
}

// findEventHeuristically searches a ±1-day window around the new start for an
// event that looks like this booking: the embedded booking id, a matching
// student attendee, or a counseling-session summary. Best effort for legacy
// rows created before event ids were stored; it may find nothing.
func (r *Reconciler) findEventHeuristically(ctx context.Context, client CalendarClient, calID string, booking model.Booking, around time.Time) string {
	events, err := client.ListEventsInWindow(ctx, calID, around.AddDate(0, 0, -1), around.AddDate(0, 0, 1))
	if err != nil {
		r.logger.Warn("reschedule: event search failed", "booking_id", booking.ID, "err", err)
		return ""
	}

	var studentEmail string
	if booking.StudentID != "" {
		if student, err := r.store.Student(ctx, booking.StudentID); err == nil {
			studentEmail = student.Email
		}
	}

	for _, ev := range events {
		if ev.BookingID == booking.ID {
			return ev.ID
		}
	}
	if studentEmail != "" {
		for _, ev := range events {
			for _, attendee := range ev.Attendees {
				if strings.EqualFold(attendee, studentEmail) {
					return ev.ID
				}
			}
		}
	}
	for _, ev := range events {
		if strings.Contains(strings.ToLower(ev.Summary), "counseling session") {
			return ev.ID
		}
	}
	return ""
}

func (r *Reconciler) createReplacementEvent(ctx context.Context, client CalendarClient, calID string, counselor model.Counselor, booking model.Booking, start, end time.Time) (gcal.Event, error) {
	attendees := []string{counselor.Email}
	if booking.StudentID != "" {
		if student, err := r.store.Student(ctx, booking.StudentID); err == nil && student.Email != "" {
			attendees = append(attendees, student.Email)
		}
	}
	return client.CreateEvent(ctx, calID, gcal.EventInput{
		Summary:     "Counseling session",
		Description: booking.Notes,
		Start:       start,
		End:         end,
		Timezone:    counselor.Timezone,
		Attendees:   attendees,
		BookingID:   booking.ID,
	})
}

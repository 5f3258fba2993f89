package reconciler

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/ibrahgraphix/FlameCounselling-sub000/services/scheduling-service/internal/model"
	"github.com/ibrahgraphix/FlameCounselling-sub000/services/scheduling-service/internal/outbox"
	"github.com/ibrahgraphix/FlameCounselling-sub000/services/scheduling-service/internal/storage"
)

// Cancel transitions a booking to canceled and best-effort removes its
// calendar event. Calendar trouble never blocks the cancellation.
func (r *Reconciler) Cancel(ctx context.Context, bookingID, reason string) (model.Booking, error) {
	booking, err := r.resolve(ctx, bookingID)
	if err != nil {
		return model.Booking{}, err
	}
	if !model.CanTransition(booking.Status, model.StatusCanceled) {
		return model.Booking{}, fmt.Errorf("%w: cancel from %s", ErrIllegalTransition, booking.Status)
	}

	payload, _ := json.Marshal(map[string]any{
		"booking_id":   booking.ID,
		"counselor_id": booking.CounselorID,
		"reason":       reason,
	})
	if err := r.store.TransitionBooking(ctx, booking.ID, booking.Status, model.StatusCanceled, outbox.Event{
		AggregateType: "booking",
		AggregateID:   booking.ID,
		EventType:     outbox.EventBookingCanceled,
		Payload:       payload,
	}); err != nil {
		return model.Booking{}, err
	}
	booking.Status = model.StatusCanceled

	if booking.GoogleEventID != "" {
		if client, counselor, err := r.auth.AuthorizedClient(ctx, booking.CounselorID); err != nil {
			r.logger.Warn("cancel: calendar not reachable, event left in place",
				"booking_id", booking.ID, "err", err)
		} else if err := client.DeleteEvent(ctx, calendarID(counselor), booking.GoogleEventID); err != nil {
			r.logger.Warn("cancel: failed to delete calendar event",
				"booking_id", booking.ID, "google_event_id", booking.GoogleEventID, "err", err)
		}
	}
	return booking, nil
}

// Complete marks a confirmed booking as completed. Purely local; the calendar
// event stays as a record of the held session.
func (r *Reconciler) Complete(ctx context.Context, bookingID string) (model.Booking, error) {
	booking, err := r.resolve(ctx, bookingID)
	if err != nil {
		return model.Booking{}, err
	}
	if !model.CanTransition(booking.Status, model.StatusCompleted) {
		return model.Booking{}, fmt.Errorf("%w: complete from %s", ErrIllegalTransition, booking.Status)
	}

	payload, _ := json.Marshal(map[string]any{
		"booking_id":   booking.ID,
		"counselor_id": booking.CounselorID,
	})
	if err := r.store.TransitionBooking(ctx, booking.ID, booking.Status, model.StatusCompleted, outbox.Event{
		AggregateType: "booking",
		AggregateID:   booking.ID,
		EventType:     outbox.EventBookingCompleted,
		Payload:       payload,
	}); err != nil {
		return model.Booking{}, err
	}
	booking.Status = model.StatusCompleted
	return booking, nil
}

func (r *Reconciler) resolve(ctx context.Context, bookingID string) (model.Booking, error) {
	booking, err := r.store.Booking(ctx, bookingID)
	if err != nil {
		if storage.IsNotFound(err) {
			return model.Booking{}, fmt.Errorf("%w: %s", ErrBookingNotFound, bookingID)
		}
		return model.Booking{}, err
	}
	return booking, nil
}

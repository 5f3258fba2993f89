package handlers

import (
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/ibrahgraphix/FlameCounselling-sub000/services/scheduling-service/internal/availability"
	"github.com/ibrahgraphix/FlameCounselling-sub000/services/scheduling-service/internal/gcal"
	"github.com/ibrahgraphix/FlameCounselling-sub000/services/scheduling-service/internal/model"
	"github.com/ibrahgraphix/FlameCounselling-sub000/services/scheduling-service/internal/reconciler"
)

type fakeScheduler struct {
	slotsRes      reconciler.SlotsResult
	slotsErr      error
	slotsDuration time.Duration

	bookRes reconciler.BookResult
	bookErr error
	lastReq reconciler.BookRequest

	reschedBooking model.Booking
	reschedResult  reconciler.RescheduleResult
	reschedErr     error

	cancelBooking model.Booking
	cancelErr     error
	cancelReason  string

	completeBooking model.Booking
	completeErr     error
}

func (f *fakeScheduler) AvailableSlots(_ context.Context, _, _ string, duration time.Duration) (reconciler.SlotsResult, error) {
	f.slotsDuration = duration
	return f.slotsRes, f.slotsErr
}

func (f *fakeScheduler) BookSession(_ context.Context, req reconciler.BookRequest) (reconciler.BookResult, error) {
	f.lastReq = req
	return f.bookRes, f.bookErr
}

func (f *fakeScheduler) Reschedule(_ context.Context, _, _, _ string, _ time.Duration) (model.Booking, reconciler.RescheduleResult, error) {
	return f.reschedBooking, f.reschedResult, f.reschedErr
}

func (f *fakeScheduler) Cancel(_ context.Context, _, reason string) (model.Booking, error) {
	f.cancelReason = reason
	return f.cancelBooking, f.cancelErr
}

func (f *fakeScheduler) Complete(_ context.Context, _ string) (model.Booking, error) {
	return f.completeBooking, f.completeErr
}

func newHandler(f *fakeScheduler) *SchedulingHandler {
	return NewSchedulingHandler(f, slog.New(slog.NewTextHandler(io.Discard, nil)))
}

func TestSlotsRequiresParams(t *testing.T) {
	h := newHandler(&fakeScheduler{})
	rec := httptest.NewRecorder()
	h.Slots(rec, httptest.NewRequest(http.MethodGet, "/api/v1/available-slots", nil))
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("status = %d, want 400", rec.Code)
	}
}

func TestSlotsRejectsBadDate(t *testing.T) {
	h := newHandler(&fakeScheduler{})
	rec := httptest.NewRecorder()
	h.Slots(rec, httptest.NewRequest(http.MethodGet, "/api/v1/available-slots?counselor_id=c1&date=tomorrow", nil))
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("status = %d, want 400", rec.Code)
	}
}

func TestSlotsReturnsConnectedAndLabels(t *testing.T) {
	start := time.Date(2026, 3, 2, 10, 0, 0, 0, time.UTC)
	h := newHandler(&fakeScheduler{slotsRes: reconciler.SlotsResult{
		Connected: true,
		Slots:     []availability.Slot{{Start: start, End: start.Add(time.Hour), Label: "10:00-11:00"}},
	}})
	rec := httptest.NewRecorder()
	h.Slots(rec, httptest.NewRequest(http.MethodGet, "/api/v1/available-slots?counselor_id=c1&date=2026-03-02", nil))
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", rec.Code)
	}

	var resp slotsResponse
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	if !resp.Connected || len(resp.Slots) != 1 || resp.Slots[0] != "10:00-11:00" {
		t.Fatalf("response = %+v, want the slot serialized as its label", resp)
	}
}

func TestSlotsDurationParam(t *testing.T) {
	cases := []struct {
		name  string
		query string
		want  time.Duration
	}{
		{"duration", "duration=30", 30 * time.Minute},
		{"duration_minutes alias", "duration_minutes=45", 45 * time.Minute},
		{"duration wins over alias", "duration=30&duration_minutes=45", 30 * time.Minute},
		{"absent means default", "", 0},
		{"garbage means default", "duration=soon", 0},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			f := &fakeScheduler{slotsRes: reconciler.SlotsResult{Connected: true, Slots: []availability.Slot{}}}
			h := newHandler(f)
			rec := httptest.NewRecorder()
			h.Slots(rec, httptest.NewRequest(http.MethodGet,
				"/api/v1/available-slots?counselor_id=c1&date=2026-03-02&"+tc.query, nil))
			if rec.Code != http.StatusOK {
				t.Fatalf("status = %d, want 200", rec.Code)
			}
			if f.slotsDuration != tc.want {
				t.Fatalf("duration passed through = %v, want %v", f.slotsDuration, tc.want)
			}
		})
	}
}

func TestSlotsNotConnectedIsStillOK(t *testing.T) {
	h := newHandler(&fakeScheduler{slotsRes: reconciler.SlotsResult{Connected: false, Slots: []availability.Slot{}}})
	rec := httptest.NewRecorder()
	h.Slots(rec, httptest.NewRequest(http.MethodGet, "/api/v1/available-slots?counselor_id=c1&date=2026-03-02", nil))
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", rec.Code)
	}
	if !strings.Contains(rec.Body.String(), `"connected":false`) {
		t.Fatalf("body = %s", rec.Body.String())
	}
	if !strings.Contains(rec.Body.String(), `"slots":[]`) {
		t.Fatalf("slots must serialize as an empty array, body = %s", rec.Body.String())
	}
}

func TestBookCreated(t *testing.T) {
	f := &fakeScheduler{bookRes: reconciler.BookResult{
		Booking: model.Booking{ID: "bk-1", CounselorID: "c1", Status: model.StatusConfirmed, BookingDate: "2026-03-02", BookingTime: "14:00", GoogleEventID: "evt-1"},
		Event:   gcal.Event{ID: "evt-1", HTMLLink: "https://calendar.google.com/event?eid=abc"},
	}}
	h := newHandler(f)

	body := `{"counselor_id":"c1","booking_date":"2026-03-02","booking_time":"2:00 PM","student_email":"s@example.com","duration":60,"summary":"Intake session","description":"first meeting"}`
	rec := httptest.NewRecorder()
	h.Book(rec, httptest.NewRequest(http.MethodPost, "/api/v1/book-session", strings.NewReader(body)))
	if rec.Code != http.StatusCreated {
		t.Fatalf("status = %d, want 201, body %s", rec.Code, rec.Body.String())
	}
	if f.lastReq.Duration != time.Hour {
		t.Fatalf("duration = %v, want 1h", f.lastReq.Duration)
	}
	if f.lastReq.Summary != "Intake session" || f.lastReq.Description != "first meeting" {
		t.Fatalf("summary/description not passed through: %+v", f.lastReq)
	}

	var resp bookSessionResponse
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	if !resp.Success || resp.Result.Booking.BookingID != "bk-1" || resp.Result.GoogleEvent.EventLink == "" {
		t.Fatalf("response = %+v", resp)
	}
}

func TestBookFieldAliases(t *testing.T) {
	f := &fakeScheduler{bookRes: reconciler.BookResult{Booking: model.Booking{ID: "bk-1"}}}
	h := newHandler(f)

	body := `{"counselor_id":"c1","booking_date":"2026-03-02","booking_time":"14:00","duration_minutes":30,"notes":"legacy notes"}`
	rec := httptest.NewRecorder()
	h.Book(rec, httptest.NewRequest(http.MethodPost, "/api/v1/book-session", strings.NewReader(body)))
	if rec.Code != http.StatusCreated {
		t.Fatalf("status = %d, want 201, body %s", rec.Code, rec.Body.String())
	}
	if f.lastReq.Duration != 30*time.Minute {
		t.Fatalf("duration = %v, want 30m via duration_minutes", f.lastReq.Duration)
	}
	if f.lastReq.Description != "legacy notes" {
		t.Fatalf("description = %q, want notes fallback", f.lastReq.Description)
	}
}

func TestBookErrorMapping(t *testing.T) {
	cases := []struct {
		name string
		err  error
		want int
	}{
		{"missing fields", reconciler.ErrMissingFields, http.StatusBadRequest},
		{"bad time", reconciler.ErrInvalidTimeFormat, http.StatusBadRequest},
		{"slot taken", reconciler.ErrSlotUnavailable, http.StatusConflict},
		{"not connected", gcal.ErrNoRefreshToken, http.StatusBadRequest},
		{"revoked", gcal.ErrInvalidGrant, http.StatusBadRequest},
		{"freebusy down", gcal.ErrFreeBusy, http.StatusInternalServerError},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			h := newHandler(&fakeScheduler{bookErr: tc.err})
			rec := httptest.NewRecorder()
			h.Book(rec, httptest.NewRequest(http.MethodPost, "/api/v1/book-session", strings.NewReader(`{}`)))
			if rec.Code != tc.want {
				t.Fatalf("status = %d, want %d", rec.Code, tc.want)
			}
		})
	}
}

func TestBookNotConnectedBody(t *testing.T) {
	h := newHandler(&fakeScheduler{bookErr: gcal.ErrNoRefreshToken})
	rec := httptest.NewRecorder()
	h.Book(rec, httptest.NewRequest(http.MethodPost, "/api/v1/book-session", strings.NewReader(`{}`)))
	if !strings.Contains(rec.Body.String(), `"connected":false`) {
		t.Fatalf("body = %s, want connected:false marker", rec.Body.String())
	}
}

func TestRescheduleReportsCalendarOutcome(t *testing.T) {
	f := &fakeScheduler{
		reschedBooking: model.Booking{ID: "bk-1", Status: model.StatusConfirmed, BookingDate: "2026-03-03", BookingTime: "10:00", GoogleEventID: "evt-2"},
		reschedResult: reconciler.RescheduleResult{
			Success:         true,
			CreatedNewEvent: true,
			Event:           &gcal.Event{ID: "evt-2"},
		},
	}
	h := newHandler(f)

	body := `{"new_date":"2026-03-03","new_time":"10:00"}`
	rec := httptest.NewRecorder()
	h.BookingAction(rec, httptest.NewRequest(http.MethodPost, "/api/v1/bookings/bk-1/reschedule", strings.NewReader(body)))
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200, body %s", rec.Code, rec.Body.String())
	}

	var resp rescheduleResponse
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	if !resp.Google.Success || !resp.Google.CreatedNewEvent || resp.Google.EventID != "evt-2" {
		t.Fatalf("google result = %+v", resp.Google)
	}
	if resp.Booking.BookingDate != "2026-03-03" {
		t.Fatalf("booking = %+v", resp.Booking)
	}
}

func TestRescheduleCalendarFailureStillOK(t *testing.T) {
	f := &fakeScheduler{
		reschedBooking: model.Booking{ID: "bk-1", BookingDate: "2026-03-03", BookingTime: "10:00"},
		reschedResult:  reconciler.RescheduleResult{Reason: "calendar not connected"},
	}
	h := newHandler(f)

	rec := httptest.NewRecorder()
	h.BookingAction(rec, httptest.NewRequest(http.MethodPost, "/api/v1/bookings/bk-1/reschedule",
		strings.NewReader(`{"new_date":"2026-03-03","new_time":"10:00"}`)))
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200 even when the calendar lags", rec.Code)
	}
	var resp rescheduleResponse
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	if !resp.Success {
		t.Fatal("the reschedule itself succeeded, success must be true")
	}
	if resp.Google.Success || resp.Google.Reason == "" {
		t.Fatalf("google result = %+v, want failed sync with a reason", resp.Google)
	}
}

func TestRescheduleErrorMapping(t *testing.T) {
	cases := []struct {
		name string
		err  error
		want int
	}{
		{"not found", reconciler.ErrBookingNotFound, http.StatusNotFound},
		{"bad new time", reconciler.ErrInvalidNewStartTime, http.StatusBadRequest},
		{"no counselor", reconciler.ErrMissingCounselorID, http.StatusBadRequest},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			h := newHandler(&fakeScheduler{reschedErr: tc.err})
			rec := httptest.NewRecorder()
			h.BookingAction(rec, httptest.NewRequest(http.MethodPost, "/api/v1/bookings/bk-1/reschedule",
				strings.NewReader(`{"new_date":"2026-03-03","new_time":"10:00"}`)))
			if rec.Code != tc.want {
				t.Fatalf("status = %d, want %d", rec.Code, tc.want)
			}
		})
	}
}

func TestRescheduleRequiresNewDateTime(t *testing.T) {
	h := newHandler(&fakeScheduler{})
	rec := httptest.NewRecorder()
	h.BookingAction(rec, httptest.NewRequest(http.MethodPost, "/api/v1/bookings/bk-1/reschedule",
		strings.NewReader(`{"new_date":"2026-03-03"}`)))
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("status = %d, want 400", rec.Code)
	}
}

func TestCancelPassesReason(t *testing.T) {
	f := &fakeScheduler{cancelBooking: model.Booking{ID: "bk-1", Status: model.StatusCanceled}}
	h := newHandler(f)

	rec := httptest.NewRecorder()
	h.BookingAction(rec, httptest.NewRequest(http.MethodPost, "/api/v1/bookings/bk-1/cancel",
		strings.NewReader(`{"reason":"student request"}`)))
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", rec.Code)
	}
	if f.cancelReason != "student request" {
		t.Fatalf("reason = %q", f.cancelReason)
	}
}

func TestCancelIllegalTransitionConflicts(t *testing.T) {
	h := newHandler(&fakeScheduler{cancelErr: reconciler.ErrIllegalTransition})
	rec := httptest.NewRecorder()
	h.BookingAction(rec, httptest.NewRequest(http.MethodPost, "/api/v1/bookings/bk-1/cancel", strings.NewReader(`{}`)))
	if rec.Code != http.StatusConflict {
		t.Fatalf("status = %d, want 409", rec.Code)
	}
}

func TestCompleteTransitionsBooking(t *testing.T) {
	h := newHandler(&fakeScheduler{completeBooking: model.Booking{ID: "bk-1", Status: model.StatusCompleted}})
	rec := httptest.NewRecorder()
	h.BookingAction(rec, httptest.NewRequest(http.MethodPost, "/api/v1/bookings/bk-1/complete", nil))
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", rec.Code)
	}
	if !strings.Contains(rec.Body.String(), model.StatusCompleted) {
		t.Fatalf("body = %s", rec.Body.String())
	}
}

func TestBookingActionUnknownPath(t *testing.T) {
	h := newHandler(&fakeScheduler{})
	rec := httptest.NewRecorder()
	h.BookingAction(rec, httptest.NewRequest(http.MethodPost, "/api/v1/bookings/bk-1/archive", nil))
	if rec.Code != http.StatusNotFound {
		t.Fatalf("status = %d, want 404", rec.Code)
	}
}

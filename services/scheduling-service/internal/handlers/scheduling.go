package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/ibrahgraphix/FlameCounselling-sub000/services/scheduling-service/internal/gcal"
	"github.com/ibrahgraphix/FlameCounselling-sub000/services/scheduling-service/internal/model"
	"github.com/ibrahgraphix/FlameCounselling-sub000/services/scheduling-service/internal/reconciler"
)

// Scheduler is the booking surface the HTTP layer drives.
// *reconciler.Reconciler satisfies it.
type Scheduler interface {
	AvailableSlots(ctx context.Context, counselorID, date string, duration time.Duration) (reconciler.SlotsResult, error)
	BookSession(ctx context.Context, req reconciler.BookRequest) (reconciler.BookResult, error)
	Reschedule(ctx context.Context, bookingID, newDate, newTime string, duration time.Duration) (model.Booking, reconciler.RescheduleResult, error)
	Cancel(ctx context.Context, bookingID, reason string) (model.Booking, error)
	Complete(ctx context.Context, bookingID string) (model.Booking, error)
}

type SchedulingHandler struct {
	sched  Scheduler
	logger *slog.Logger
}

func NewSchedulingHandler(sched Scheduler, logger *slog.Logger) *SchedulingHandler {
	return &SchedulingHandler{sched: sched, logger: logger}
}

// Slots serialize as their "HH:mm-HH:mm" labels; the frontend slot picker
// renders and posts them back verbatim.
type slotsResponse struct {
	Connected bool     `json:"connected"`
	Slots     []string `json:"slots"`
}

type bookingPayload struct {
	BookingID     string `json:"booking_id"`
	StudentID     string `json:"student_id,omitempty"`
	CounselorID   string `json:"counselor_id"`
	BookingDate   string `json:"booking_date"`
	BookingTime   string `json:"booking_time"`
	Status        string `json:"status"`
	GoogleEventID string `json:"google_event_id,omitempty"`
}

func toBookingPayload(b model.Booking) bookingPayload {
	return bookingPayload{
		BookingID:     b.ID,
		StudentID:     b.StudentID,
		CounselorID:   b.CounselorID,
		BookingDate:   b.BookingDate,
		BookingTime:   b.BookingTime,
		Status:        b.Status,
		GoogleEventID: b.GoogleEventID,
	}
}

// durationFromMinutes returns the first value that parses as a sane minute
// count. Zero means "use the default".
func durationFromMinutes(raws ...string) time.Duration {
	for _, raw := range raws {
		if raw == "" {
			continue
		}
		if mins, err := strconv.Atoi(raw); err == nil && mins > 0 && mins <= 8*60 {
			return time.Duration(mins) * time.Minute
		}
	}
	return 0
}

func minutesToDuration(values ...int) time.Duration {
	for _, mins := range values {
		if mins > 0 && mins <= 8*60 {
			return time.Duration(mins) * time.Minute
		}
	}
	return 0
}

func writeJSON(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(body)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}

func (h *SchedulingHandler) Slots(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}

	q := r.URL.Query()
	counselorID := strings.TrimSpace(q.Get("counselor_id"))
	if counselorID == "" {
		counselorID = strings.TrimSpace(q.Get("counselorId"))
	}
	date := strings.TrimSpace(q.Get("date"))
	if counselorID == "" || date == "" {
		writeError(w, http.StatusBadRequest, "counselor_id and date are required")
		return
	}
	if _, err := time.Parse("2006-01-02", date); err != nil {
		writeError(w, http.StatusBadRequest, "date must be YYYY-MM-DD")
		return
	}

	res, err := h.sched.AvailableSlots(r.Context(), counselorID, date,
		durationFromMinutes(q.Get("duration"), q.Get("duration_minutes")))
	if err != nil {
		if errors.Is(err, reconciler.ErrInvalidTimeFormat) {
			writeError(w, http.StatusBadRequest, err.Error())
			return
		}
		h.logger.Error("slot query failed", "counselor_id", counselorID, "date", date, "err", err)
		writeError(w, http.StatusInternalServerError, "failed to load available slots")
		return
	}

	labels := make([]string, 0, len(res.Slots))
	for _, s := range res.Slots {
		labels = append(labels, s.Label)
	}
	writeJSON(w, http.StatusOK, slotsResponse{Connected: res.Connected, Slots: labels})
}

type bookSessionRequest struct {
	StudentID    string `json:"student_id"`
	StudentEmail string `json:"student_email"`
	StudentName  string `json:"student_name"`
	CounselorID  string `json:"counselor_id"`
	BookingDate  string `json:"booking_date"`
	BookingTime  string `json:"booking_time"`
	// duration is in minutes; duration_minutes is an accepted alias.
	Duration        int    `json:"duration"`
	DurationMinutes int    `json:"duration_minutes"`
	Summary         string `json:"summary"`
	Description     string `json:"description"`
	Notes           string `json:"notes"` // alias for description
	Timezone        string `json:"timezone"`
}

type eventPayload struct {
	EventID   string `json:"event_id"`
	EventLink string `json:"event_link,omitempty"`
}

type bookResult struct {
	Booking     bookingPayload `json:"booking"`
	GoogleEvent eventPayload   `json:"google_event"`
}

type bookSessionResponse struct {
	Success bool       `json:"success"`
	Result  bookResult `json:"result"`
}

func (h *SchedulingHandler) Book(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}

	var req bookSessionRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid json body")
		return
	}

	description := req.Description
	if description == "" {
		description = req.Notes
	}

	res, err := h.sched.BookSession(r.Context(), reconciler.BookRequest{
		StudentID:    strings.TrimSpace(req.StudentID),
		StudentEmail: strings.TrimSpace(req.StudentEmail),
		StudentName:  strings.TrimSpace(req.StudentName),
		CounselorID:  strings.TrimSpace(req.CounselorID),
		BookingDate:  strings.TrimSpace(req.BookingDate),
		BookingTime:  strings.TrimSpace(req.BookingTime),
		Duration:     minutesToDuration(req.Duration, req.DurationMinutes),
		Summary:      strings.TrimSpace(req.Summary),
		Description:  description,
		Timezone:     strings.TrimSpace(req.Timezone),
	})
	if err != nil {
		switch {
		case errors.Is(err, reconciler.ErrMissingFields),
			errors.Is(err, reconciler.ErrInvalidTimeFormat):
			writeError(w, http.StatusBadRequest, err.Error())
		case errors.Is(err, reconciler.ErrSlotUnavailable):
			writeError(w, http.StatusConflict, "slot is no longer available")
		case gcal.NeedsReconnect(err):
			writeJSON(w, http.StatusBadRequest, map[string]any{
				"error":     "counselor calendar is not connected",
				"connected": false,
			})
		default:
			h.logger.Error("booking failed", "counselor_id", req.CounselorID, "err", err)
			writeError(w, http.StatusInternalServerError, "failed to book session")
		}
		return
	}

	writeJSON(w, http.StatusCreated, bookSessionResponse{
		Success: true,
		Result: bookResult{
			Booking:     toBookingPayload(res.Booking),
			GoogleEvent: eventPayload{EventID: res.Event.ID, EventLink: res.Event.HTMLLink},
		},
	})
}

// BookingAction routes POST /api/v1/bookings/{id}/{reschedule|cancel|complete}.
func (h *SchedulingHandler) BookingAction(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}

	rest := strings.TrimPrefix(r.URL.Path, "/api/v1/bookings/")
	parts := strings.Split(strings.Trim(rest, "/"), "/")
	if len(parts) != 2 || parts[0] == "" {
		writeError(w, http.StatusNotFound, "not found")
		return
	}
	bookingID, action := parts[0], parts[1]

	switch action {
	case "reschedule":
		h.reschedule(w, r, bookingID)
	case "cancel":
		h.cancel(w, r, bookingID)
	case "complete":
		h.complete(w, r, bookingID)
	default:
		writeError(w, http.StatusNotFound, "not found")
	}
}

type rescheduleRequest struct {
	NewDate         string `json:"new_date"`
	NewTime         string `json:"new_time"`
	Duration        int    `json:"duration"`
	DurationMinutes int    `json:"duration_minutes"`
}

type googleSyncResult struct {
	Success         bool   `json:"success"`
	CreatedNewEvent bool   `json:"created_new_event,omitempty"`
	Reason          string `json:"reason,omitempty"`
	EventID         string `json:"event_id,omitempty"`
	EventLink       string `json:"event_link,omitempty"`
}

type rescheduleResponse struct {
	Success bool             `json:"success"`
	Booking bookingPayload   `json:"booking"`
	Google  googleSyncResult `json:"google_result"`
}

// reschedule always answers 200 once the local row moved; the google block
// tells the caller whether the calendar kept up.
func (h *SchedulingHandler) reschedule(w http.ResponseWriter, r *http.Request, bookingID string) {
	var req rescheduleRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid json body")
		return
	}
	req.NewDate = strings.TrimSpace(req.NewDate)
	req.NewTime = strings.TrimSpace(req.NewTime)
	if req.NewDate == "" || req.NewTime == "" {
		writeError(w, http.StatusBadRequest, "new_date and new_time are required")
		return
	}

	booking, result, err := h.sched.Reschedule(r.Context(), bookingID, req.NewDate, req.NewTime,
		minutesToDuration(req.Duration, req.DurationMinutes))
	if err != nil {
		switch {
		case errors.Is(err, reconciler.ErrBookingNotFound):
			writeError(w, http.StatusNotFound, "booking not found")
		case errors.Is(err, reconciler.ErrInvalidNewStartTime),
			errors.Is(err, reconciler.ErrMissingCounselorID):
			writeError(w, http.StatusBadRequest, err.Error())
		default:
			h.logger.Error("reschedule failed", "booking_id", bookingID, "err", err)
			writeError(w, http.StatusInternalServerError, "failed to reschedule booking")
		}
		return
	}

	google := googleSyncResult{
		Success:         result.Success,
		CreatedNewEvent: result.CreatedNewEvent,
		Reason:          result.Reason,
	}
	if result.Event != nil {
		google.EventID = result.Event.ID
		google.EventLink = result.Event.HTMLLink
	}
	writeJSON(w, http.StatusOK, rescheduleResponse{Success: true, Booking: toBookingPayload(booking), Google: google})
}

type cancelRequest struct {
	Reason string `json:"reason"`
}

func (h *SchedulingHandler) cancel(w http.ResponseWriter, r *http.Request, bookingID string) {
	var req cancelRequest
	if r.Body != nil {
		_ = json.NewDecoder(r.Body).Decode(&req)
	}

	booking, err := h.sched.Cancel(r.Context(), bookingID, strings.TrimSpace(req.Reason))
	if err != nil {
		h.writeTransitionError(w, bookingID, "cancel", err)
		return
	}
	writeJSON(w, http.StatusOK, toBookingPayload(booking))
}

func (h *SchedulingHandler) complete(w http.ResponseWriter, r *http.Request, bookingID string) {
	booking, err := h.sched.Complete(r.Context(), bookingID)
	if err != nil {
		h.writeTransitionError(w, bookingID, "complete", err)
		return
	}
	writeJSON(w, http.StatusOK, toBookingPayload(booking))
}

func (h *SchedulingHandler) writeTransitionError(w http.ResponseWriter, bookingID, action string, err error) {
	switch {
	case errors.Is(err, reconciler.ErrBookingNotFound):
		writeError(w, http.StatusNotFound, "booking not found")
	case errors.Is(err, reconciler.ErrIllegalTransition):
		writeError(w, http.StatusConflict, err.Error())
	default:
		h.logger.Error("booking action failed", "booking_id", bookingID, "action", action, "err", err)
		writeError(w, http.StatusInternalServerError, "failed to "+action+" booking")
	}
}

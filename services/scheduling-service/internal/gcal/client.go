package gcal

import (
	"context"
	"fmt"
	"time"

	"golang.org/x/oauth2"
	"google.golang.org/api/calendar/v3"
	"google.golang.org/api/option"

	"github.com/ibrahgraphix/FlameCounselling-sub000/services/scheduling-service/internal/availability"
)

// bookingIDProperty is the private extended property linking a calendar event
// back to its local booking row. Used by the reschedule heuristic when a row
// predates event-id storage.
const bookingIDProperty = "counselingBookingId"

// Event is the gateway's view of a calendar event. Provider structs stay
// inside this package.
type Event struct {
	ID          string
	Summary     string
	Description string
	Start       time.Time
	End         time.Time
	Attendees   []string
	BookingID   string
	HTMLLink    string
	Status      string
}

type EventInput struct {
	Summary     string
	Description string
	Start       time.Time
	End         time.Time
	Timezone    string
	Attendees   []string
	BookingID   string
}

// Client is an authorized calendar session for one counselor.
type Client struct {
	svc     *calendar.Service
	timeout time.Duration
}

func newClient(ctx context.Context, source oauth2.TokenSource, timeout time.Duration) (*Client, error) {
	svc, err := calendar.NewService(ctx, option.WithTokenSource(source))
	if err != nil {
		return nil, fmt.Errorf("create calendar service: %w", err)
	}
	return &Client{svc: svc, timeout: timeout}, nil
}

// FreeBusy returns the busy intervals on calendarID within [timeMin, timeMax).
// Periods with unparseable timestamps are dropped rather than treated as
// blocking.
func (c *Client) FreeBusy(ctx context.Context, calendarID string, timeMin, timeMax time.Time, timezone string) ([]availability.BusyRange, error) {
	callCtx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	resp, err := c.svc.Freebusy.Query(&calendar.FreeBusyRequest{
		TimeMin:  timeMin.Format(time.RFC3339),
		TimeMax:  timeMax.Format(time.RFC3339),
		TimeZone: timezone,
		Items:    []*calendar.FreeBusyRequestItem{{Id: calendarID}},
	}).Context(callCtx).Do()
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrFreeBusy, err)
	}

	return busyRanges(resp)
}

// busyRanges flattens a free/busy response. A per-calendar error means the
// provider could not compute availability for that calendar, so the whole
// lookup fails rather than silently reporting the counselor as free.
func busyRanges(resp *calendar.FreeBusyResponse) ([]availability.BusyRange, error) {
	var busy []availability.BusyRange
	for id, cal := range resp.Calendars {
		if len(cal.Errors) > 0 {
			return nil, fmt.Errorf("%w: calendar %s: %s", ErrFreeBusy, id, cal.Errors[0].Reason)
		}
		for _, period := range cal.Busy {
			start, startErr := time.Parse(time.RFC3339, period.Start)
			end, endErr := time.Parse(time.RFC3339, period.End)
			if startErr != nil || endErr != nil {
				continue
			}
			busy = append(busy, availability.BusyRange{Start: start, End: end})
		}
	}
	return busy, nil
}

// CreateEvent inserts a new event and returns the gateway view of it.
func (c *Client) CreateEvent(ctx context.Context, calendarID string, in EventInput) (Event, error) {
	callCtx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	ev := &calendar.Event{
		Summary:     in.Summary,
		Description: in.Description,
		Start:       &calendar.EventDateTime{DateTime: in.Start.Format(time.RFC3339), TimeZone: in.Timezone},
		End:         &calendar.EventDateTime{DateTime: in.End.Format(time.RFC3339), TimeZone: in.Timezone},
	}
	for _, email := range in.Attendees {
		if email == "" {
			continue
		}
		ev.Attendees = append(ev.Attendees, &calendar.EventAttendee{Email: email})
	}
	if in.BookingID != "" {
		ev.ExtendedProperties = &calendar.EventExtendedProperties{
			Private: map[string]string{bookingIDProperty: in.BookingID},
		}
	}

	created, err := c.svc.Events.Insert(calendarID, ev).Context(callCtx).Do()
	if err != nil {
		return Event{}, wrapEventErr("insert event", err)
	}
	return convertEvent(created), nil
}

// PatchEvent updates only the start/end of an existing event, leaving
// attendees, summary, and the rest untouched.
func (c *Client) PatchEvent(ctx context.Context, calendarID, eventID string, start, end time.Time, timezone string) (Event, error) {
	callCtx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	patched, err := c.svc.Events.Patch(calendarID, eventID, &calendar.Event{
		Start: &calendar.EventDateTime{DateTime: start.Format(time.RFC3339), TimeZone: timezone},
		End:   &calendar.EventDateTime{DateTime: end.Format(time.RFC3339), TimeZone: timezone},
	}).Context(callCtx).Do()
	if err != nil {
		return Event{}, wrapEventErr("patch event", err)
	}
	return convertEvent(patched), nil
}

func (c *Client) GetEvent(ctx context.Context, calendarID, eventID string) (Event, error) {
	callCtx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	ev, err := c.svc.Events.Get(calendarID, eventID).Context(callCtx).Do()
	if err != nil {
		return Event{}, wrapEventErr("get event", err)
	}
	return convertEvent(ev), nil
}

// DeleteEvent removes an event. Callers treat failures as best-effort.
func (c *Client) DeleteEvent(ctx context.Context, calendarID, eventID string) error {
	callCtx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	if err := c.svc.Events.Delete(calendarID, eventID).Context(callCtx).Do(); err != nil {
		return wrapEventErr("delete event", err)
	}
	return nil
}

// ListEventsInWindow returns single (expanded) events ordered by start time.
func (c *Client) ListEventsInWindow(ctx context.Context, calendarID string, timeMin, timeMax time.Time) ([]Event, error) {
	callCtx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	list, err := c.svc.Events.List(calendarID).
		TimeMin(timeMin.Format(time.RFC3339)).
		TimeMax(timeMax.Format(time.RFC3339)).
		SingleEvents(true).
		OrderBy("startTime").
		Context(callCtx).
		Do()
	if err != nil {
		return nil, wrapEventErr("list events", err)
	}

	events := make([]Event, 0, len(list.Items))
	for _, item := range list.Items {
		events = append(events, convertEvent(item))
	}
	return events, nil
}

func wrapEventErr(op string, err error) error {
	if authStatus(err) {
		return fmt.Errorf("%w: %s: %v", ErrAuth, op, err)
	}
	return fmt.Errorf("%w: %s: %v", ErrEvent, op, err)
}

func convertEvent(e *calendar.Event) Event {
	out := Event{
		ID:          e.Id,
		Summary:     e.Summary,
		Description: e.Description,
		HTMLLink:    e.HtmlLink,
		Status:      e.Status,
	}
	if e.Start != nil && e.Start.DateTime != "" {
		out.Start, _ = time.Parse(time.RFC3339, e.Start.DateTime)
	}
	if e.End != nil && e.End.DateTime != "" {
		out.End, _ = time.Parse(time.RFC3339, e.End.DateTime)
	}
	for _, a := range e.Attendees {
		if a != nil && a.Email != "" {
			out.Attendees = append(out.Attendees, a.Email)
		}
	}
	if e.ExtendedProperties != nil {
		out.BookingID = e.ExtendedProperties.Private[bookingIDProperty]
	}
	return out
}

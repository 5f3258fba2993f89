package availability

import (
	"time"

	"github.com/ibrahgraphix/FlameCounselling-sub000/services/scheduling-service/internal/timeparse"
)

// BusyRange is an occupied interval reported by the counselor's calendar.
// Half-open: [Start, End).
type BusyRange struct {
	Start time.Time
	End   time.Time
}

// Slot is a bookable interval plus its display label ("HH:mm-HH:mm" in the
// counselor's timezone).
type Slot struct {
	Start time.Time
	End   time.Time
	Label string
}

// Slots returns every duration-length slot on a fixed grid between workStart
// and workEnd that does not overlap any busy range. Slots are dropped whole on
// overlap, never shortened or split, and the grid advances by duration rather
// than snapping to busy-range edges.
//
// All times are expected to be in loc already.
func Slots(workStart, workEnd time.Time, duration time.Duration, busy []BusyRange, loc *time.Location) []Slot {
	if duration <= 0 {
		return nil
	}
	if !workEnd.After(workStart) {
		return nil
	}

	var slots []Slot
	for t := workStart; !t.Add(duration).After(workEnd); t = t.Add(duration) {
		end := t.Add(duration)
		if overlapsAny(t, end, busy) {
			continue
		}
		slots = append(slots, Slot{
			Start: t,
			End:   end,
			Label: timeparse.FormatRange(t, end, loc),
		})
	}
	return slots
}

func overlapsAny(start, end time.Time, busy []BusyRange) bool {
	for _, b := range busy {
		// Half-open intervals: [start,end) overlaps [b.Start,b.End) iff
		// start < b.End && b.Start < end. Touching endpoints do not overlap.
		if start.Before(b.End) && b.Start.Before(end) {
			return true
		}
	}
	return false
}

// Package timeparse normalizes the loosely formatted booking times that arrive
// from slot pickers, admin forms, and legacy rows into timezone-aware instants.
package timeparse

import (
	"regexp"
	"strconv"
	"strings"
	"time"
)

// Booking times show up with unicode dash variants and non-breaking spaces when
// copied out of spreadsheets or the frontend slot labels.
var charNormalizer = strings.NewReplacer(
	"‐", "-", // hyphen
	"‑", "-", // non-breaking hyphen
	"‒", "-", // figure dash
	"–", "-", // en dash
	"—", "-", // em dash
	"−", "-", // minus sign
	" ", " ", // non-breaking space
	" ", " ", // narrow non-breaking space
)

var (
	clockPrefixRe = regexp.MustCompile(`^\d{1,2}:\d{2}`)
	clock24Re     = regexp.MustCompile(`^(\d{1,2}):(\d{2})(?::(\d{2}))?$`)
	utcOffsetRe   = regexp.MustCompile(`[+-]\d{2}:?\d{2}$`)
)

// Layouts tried for strings that already carry a date component.
var timestampLayouts = []string{
	time.RFC3339,
	"2006-01-02T15:04:05",
	"2006-01-02T15:04",
	"2006-01-02 15:04:05Z07:00",
}

// Layouts tried for 12-hour clock strings. The input is upper-cased first so
// "9:00 am" matches too.
var twelveHourLayouts = []string{
	"3:04 PM",
	"03:04 PM",
	"3:04PM",
	"03:04PM",
	"3:04:05 PM",
	"03:04:05 PM",
}

// Layouts for the last-resort combined "date time" parse.
var combinedLayouts = []string{
	"2006-01-02 15:04",
	"2006-01-02 15:04:05",
	"2006-01-02 3:04 PM",
	"2006-01-02 3:04PM",
}

// Parse combines a "2006-01-02" date with a loosely formatted clock time and
// returns an instant in loc. The fallback chain is deliberately forgiving: an
// unparsed time here turns into a silently double-booked slot downstream, so
// every known input shape gets a try before giving up. ok is false when nothing
// matched; Parse never panics on garbage.
func Parse(dateStr, timeStr string, loc *time.Location) (time.Time, bool) {
	day, err := time.ParseInLocation("2006-01-02", strings.TrimSpace(dateStr), loc)
	if err != nil {
		return time.Time{}, false
	}

	s := strings.TrimSpace(charNormalizer.Replace(timeStr))
	if s == "" {
		return time.Time{}, false
	}

	// Slot labels arrive as ranges ("09:00-09:30"); only the start matters.
	// Strings that open with a clock cannot be ISO timestamps, so the dash is a
	// range separator there and nowhere else.
	if clockPrefixRe.MatchString(s) {
		if idx := strings.Index(s, "-"); idx > 0 {
			s = strings.TrimSpace(s[:idx])
		}
	}

	if hasDateComponent(s) {
		if t, ok := parseTimestamp(s, loc); ok {
			return t, true
		}
	}

	if m := clock24Re.FindStringSubmatch(s); m != nil {
		hour, _ := strconv.Atoi(m[1])
		min, _ := strconv.Atoi(m[2])
		sec := 0
		if m[3] != "" {
			sec, _ = strconv.Atoi(m[3])
		}
		if hour < 24 && min < 60 && sec < 60 {
			return time.Date(day.Year(), day.Month(), day.Day(), hour, min, sec, 0, loc), true
		}
		return time.Time{}, false
	}

	upper := strings.ToUpper(s)
	for _, layout := range twelveHourLayouts {
		if clock, err := time.ParseInLocation(layout, upper, loc); err == nil {
			return time.Date(day.Year(), day.Month(), day.Day(),
				clock.Hour(), clock.Minute(), clock.Second(), 0, loc), true
		}
	}

	// Last resort: glue the date and time together and let the combined layouts
	// have a go. Catches legacy rows like "2024-03-01 9:05 PM" stored whole in
	// the time column.
	combined := day.Format("2006-01-02") + " " + upper
	for _, layout := range combinedLayouts {
		if t, err := time.ParseInLocation(layout, combined, loc); err == nil {
			return t, true
		}
	}

	return time.Time{}, false
}

func hasDateComponent(s string) bool {
	return strings.Contains(s, "T") || strings.HasSuffix(s, "Z") || utcOffsetRe.MatchString(s)
}

func parseTimestamp(s string, loc *time.Location) (time.Time, bool) {
	for _, layout := range timestampLayouts {
		if t, err := time.ParseInLocation(layout, s, loc); err == nil {
			return t.In(loc), true
		}
	}
	return time.Time{}, false
}

// FormatRange renders a slot label in 24-hour notation local to loc,
// e.g. "09:00-10:00".
func FormatRange(start, end time.Time, loc *time.Location) string {
	return start.In(loc).Format("15:04") + "-" + end.In(loc).Format("15:04")
}

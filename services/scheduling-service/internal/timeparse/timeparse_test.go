package timeparse

import (
	"testing"
	"time"
)

func mustLoc(t *testing.T, name string) *time.Location {
	t.Helper()
	loc, err := time.LoadLocation(name)
	if err != nil {
		t.Fatalf("load location %s: %v", name, err)
	}
	return loc
}

func TestParse_Formats(t *testing.T) {
	loc := mustLoc(t, "Africa/Lagos")

	tests := []struct {
		name    string
		time    string
		wantH   int
		wantM   int
	}{
		{"24h", "09:00", 9, 0},
		{"24h single digit hour", "9:05", 9, 5},
		{"24h with seconds", "14:30:15", 14, 30},
		{"range label", "09:00-09:30", 9, 0},
		{"range with en dash", "09:00–09:30", 9, 0},
		{"12h upper", "9:00 AM", 9, 0},
		{"12h lower", "9:00 pm", 21, 0},
		{"12h no space", "9:00AM", 9, 0},
		{"12h non-breaking space", "9:00 AM", 9, 0},
		{"combined fallback", "2026-03-02 9:05 PM", 21, 5},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			got, ok := Parse("2026-03-02", tc.time, loc)
			if !ok {
				t.Fatalf("Parse(%q) failed", tc.time)
			}
			if got.Hour() != tc.wantH || got.Minute() != tc.wantM {
				t.Fatalf("Parse(%q) = %s, want %02d:%02d", tc.time, got.Format("15:04"), tc.wantH, tc.wantM)
			}
			if got.Year() != 2026 || got.Month() != time.March || got.Day() != 2 {
				t.Fatalf("Parse(%q) moved the date: %s", tc.time, got.Format("2006-01-02"))
			}
			if got.Location() != loc {
				t.Fatalf("Parse(%q) returned wrong location %s", tc.time, got.Location())
			}
		})
	}
}

func TestParse_FullTimestamp(t *testing.T) {
	loc := mustLoc(t, "Africa/Lagos") // UTC+1, no DST

	got, ok := Parse("2026-03-02", "2026-03-02T09:00:00Z", loc)
	if !ok {
		t.Fatal("Parse failed")
	}
	// 09:00 UTC is 10:00 in Lagos; the timestamp wins over the supplied date's clock.
	if got.Hour() != 10 || got.Minute() != 0 {
		t.Fatalf("got %s, want 10:00", got.Format("15:04"))
	}

	got, ok = Parse("2026-03-02", "2026-03-02T09:00", loc)
	if !ok {
		t.Fatal("Parse of offset-less timestamp failed")
	}
	if got.Hour() != 9 {
		t.Fatalf("offset-less timestamp should be read in target zone, got %s", got.Format("15:04"))
	}
}

func TestParse_RoundTrip(t *testing.T) {
	loc := time.UTC
	for _, in := range []string{"09:00", "9:00 AM", "09:00-09:30", "2026-03-02T09:00"} {
		got, ok := Parse("2026-03-02", in, loc)
		if !ok {
			t.Fatalf("Parse(%q) failed", in)
		}
		if got.Format("15:04") != "09:00" {
			t.Fatalf("Parse(%q) round-tripped to %s, want 09:00", in, got.Format("15:04"))
		}
	}
}

func TestParse_Garbage(t *testing.T) {
	loc := time.UTC
	for _, in := range []string{"not a time", "", "25:00", "  ", "99:99", "noon-ish"} {
		if _, ok := Parse("2026-03-02", in, loc); ok {
			t.Fatalf("Parse(%q) unexpectedly succeeded", in)
		}
	}
	if _, ok := Parse("garbage-date", "09:00", loc); ok {
		t.Fatal("Parse with a bad date unexpectedly succeeded")
	}
}

func TestFormatRange(t *testing.T) {
	loc := time.UTC
	start := time.Date(2026, 3, 2, 9, 0, 0, 0, loc)
	if got := FormatRange(start, start.Add(time.Hour), loc); got != "09:00-10:00" {
		t.Fatalf("FormatRange = %q", got)
	}
}

package availability

import (
	"testing"
	"time"
)

func day(t *testing.T) time.Time {
	t.Helper()
	return time.Date(2026, 1, 28, 0, 0, 0, 0, time.UTC)
}

func TestSlots_NoBusyRanges(t *testing.T) {
	d := day(t)
	slots := Slots(d.Add(9*time.Hour), d.Add(11*time.Hour), time.Hour, nil, time.UTC)

	if len(slots) != 2 {
		t.Fatalf("expected 2 slots, got %d", len(slots))
	}
	if slots[0].Label != "09:00-10:00" || slots[1].Label != "10:00-11:00" {
		t.Fatalf("unexpected labels: %q, %q", slots[0].Label, slots[1].Label)
	}
}

func TestSlots_OverlappingSlotDroppedWhole(t *testing.T) {
	d := day(t)
	busy := []BusyRange{{Start: d.Add(9*time.Hour + 30*time.Minute), End: d.Add(10*time.Hour + 30*time.Minute)}}

	slots := Slots(d.Add(9*time.Hour), d.Add(11*time.Hour), time.Hour, busy, time.UTC)
	if len(slots) != 1 {
		t.Fatalf("expected 1 slot, got %d", len(slots))
	}
	// 09:00-10:00 overlaps 09:30 and is discarded entirely, not shortened.
	if slots[0].Label != "10:00-11:00" {
		t.Fatalf("expected 10:00-11:00 to survive, got %q", slots[0].Label)
	}
}

func TestSlots_TouchingEndpointsDoNotOverlap(t *testing.T) {
	d := day(t)
	busy := []BusyRange{{Start: d.Add(10 * time.Hour), End: d.Add(11 * time.Hour)}}

	slots := Slots(d.Add(9*time.Hour), d.Add(10*time.Hour), time.Hour, busy, time.UTC)
	if len(slots) != 1 {
		t.Fatalf("expected the 09:00-10:00 slot to survive a busy range starting at 10:00, got %d slots", len(slots))
	}
}

func TestSlots_EmptyWindow(t *testing.T) {
	d := day(t)
	if got := Slots(d.Add(11*time.Hour), d.Add(9*time.Hour), time.Hour, nil, time.UTC); len(got) != 0 {
		t.Fatalf("inverted window produced %d slots", len(got))
	}
	if got := Slots(d.Add(9*time.Hour), d.Add(9*time.Hour), time.Hour, nil, time.UTC); len(got) != 0 {
		t.Fatalf("zero-width window produced %d slots", len(got))
	}
}

func TestSlots_GridAlignment(t *testing.T) {
	d := day(t)
	slots := Slots(d.Add(9*time.Hour), d.Add(17*time.Hour), 45*time.Minute, nil, time.UTC)
	for i := 1; i < len(slots); i++ {
		if !slots[i].Start.Equal(slots[i-1].Start.Add(45 * time.Minute)) {
			t.Fatalf("slot %d starts at %s, breaking the fixed grid", i, slots[i].Start.Format("15:04"))
		}
	}
	// The last slot must fit entirely within the window.
	last := slots[len(slots)-1]
	if last.End.After(d.Add(17 * time.Hour)) {
		t.Fatalf("last slot %q spills past the window", last.Label)
	}
}

func TestSlots_Deterministic(t *testing.T) {
	d := day(t)
	busy := []BusyRange{
		{Start: d.Add(9*time.Hour + 30*time.Minute), End: d.Add(10 * time.Hour)},
		{Start: d.Add(13 * time.Hour), End: d.Add(14 * time.Hour)},
	}
	first := Slots(d.Add(9*time.Hour), d.Add(17*time.Hour), 30*time.Minute, busy, time.UTC)
	for i := 0; i < 5; i++ {
		again := Slots(d.Add(9*time.Hour), d.Add(17*time.Hour), 30*time.Minute, busy, time.UTC)
		if len(again) != len(first) {
			t.Fatalf("run %d: %d slots vs %d", i, len(again), len(first))
		}
		for j := range again {
			if !again[j].Start.Equal(first[j].Start) || again[j].Label != first[j].Label {
				t.Fatalf("run %d: slot %d differs", i, j)
			}
		}
	}
}

func TestSlots_NoOverlapWithBusy(t *testing.T) {
	d := day(t)
	busy := []BusyRange{
		{Start: d.Add(9*time.Hour + 15*time.Minute), End: d.Add(9*time.Hour + 45*time.Minute)},
		{Start: d.Add(12 * time.Hour), End: d.Add(12*time.Hour + 1*time.Minute)},
	}
	slots := Slots(d.Add(9*time.Hour), d.Add(17*time.Hour), 30*time.Minute, busy, time.UTC)
	for _, s := range slots {
		for _, b := range busy {
			if s.Start.Before(b.End) && b.Start.Before(s.End) {
				t.Fatalf("slot %q overlaps busy range %s-%s", s.Label, b.Start.Format("15:04"), b.End.Format("15:04"))
			}
		}
	}
}

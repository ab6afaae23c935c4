package availability

import (
	"context"
	"errors"
	"reflect"
	"testing"
	"time"
	_ "time/tzdata"

	"github.com/md-rashed-zaman/clinicbook/services/booking-service/internal/schedule"
)

var tuesday = schedule.Date{Year: 2025, Month: time.March, Day: 4}

func kolkata(t *testing.T) *time.Location {
	t.Helper()
	loc, err := time.LoadLocation("Asia/Kolkata")
	if err != nil {
		t.Fatalf("load location: %v", err)
	}
	return loc
}

func lunchBlocks(t *testing.T) []schedule.Block {
	t.Helper()
	cfg := schedule.NewWeeklySchedule(
		schedule.DayHours{Start: schedule.NewClock(9, 0), End: schedule.NewClock(17, 0)},
		nil, true,
		schedule.Lunch{Enabled: true, Start: schedule.NewClock(13, 0), End: schedule.NewClock(14, 0)},
	)
	blocks, err := cfg.Blocks(tuesday)
	if err != nil {
		t.Fatalf("Blocks: %v", err)
	}
	return blocks
}

func policy(width, buffer int) schedule.SlotPolicy {
	return schedule.SlotPolicy{SlotWidth: time.Duration(width) * time.Minute, Buffer: time.Duration(buffer) * time.Minute}
}

func TestGenerateSlotsAroundLunch(t *testing.T) {
	loc := kolkata(t)
	slots := Generate("doc-1", tuesday, lunchBlocks(t), loc, policy(15, 0))
	if len(slots) != 28 {
		t.Fatalf("expected 28 slots, got %d", len(slots))
	}
	if slots[0].StartLocal != "2025-03-04T09:00:00+05:30" || slots[15].EndLocal != "2025-03-04T13:00:00+05:30" {
		t.Fatalf("unexpected morning bounds %s / %s", slots[0].StartLocal, slots[15].EndLocal)
	}
	if slots[16].StartLocal != "2025-03-04T14:00:00+05:30" || slots[27].EndLocal != "2025-03-04T17:00:00+05:30" {
		t.Fatalf("unexpected afternoon bounds %s / %s", slots[16].StartLocal, slots[27].EndLocal)
	}
	if !slots[0].StartUTC.Equal(time.Date(2025, 3, 4, 3, 30, 0, 0, time.UTC)) {
		t.Fatalf("unexpected UTC start %s", slots[0].StartUTC)
	}
	if slots[0].DurationMinutes != 15 || slots[0].ID() != "20250304_doc-1_1" {
		t.Fatalf("unexpected slot %+v id=%s", slots[0], slots[0].ID())
	}
}

func TestGenerateSortedNonOverlappingAndOutsideLunch(t *testing.T) {
	loc := kolkata(t)
	lunch := Interval{Start: tuesday.At(schedule.NewClock(13, 0), loc), End: tuesday.At(schedule.NewClock(14, 0), loc)}
	for _, p := range []schedule.SlotPolicy{policy(15, 0), policy(15, 5), policy(20, 10), policy(45, 0)} {
		slots := Generate("doc-1", tuesday, lunchBlocks(t), loc, p)
		if len(slots) == 0 {
			t.Fatalf("policy %+v: no slots", p)
		}
		for i, s := range slots {
			if !s.StartUTC.Before(lunch.Start) && s.StartUTC.Before(lunch.End) {
				t.Fatalf("policy %+v: slot starts inside lunch: %s", p, s.StartLocal)
			}
			if Overlaps(s.Interval(), lunch) {
				t.Fatalf("policy %+v: slot overlaps lunch: %s", p, s.StartLocal)
			}
			if i == 0 {
				continue
			}
			prev := slots[i-1]
			if s.StartUTC.Before(prev.StartUTC) {
				t.Fatalf("policy %+v: slots not sorted at %d", p, i)
			}
			if Overlaps(prev.Interval(), s.Interval()) {
				t.Fatalf("policy %+v: slots %d and %d overlap", p, i-1, i)
			}
		}
	}
}

func TestGenerateBufferSpacesSlots(t *testing.T) {
	loc := kolkata(t)
	blocks := []schedule.Block{{Start: schedule.NewClock(9, 0), End: schedule.NewClock(10, 0)}}
	slots := Generate("doc-1", tuesday, blocks, loc, policy(15, 5))
	// 09:00, 09:20, 09:40 fit; 10:00 would end at 10:15.
	if len(slots) != 3 {
		t.Fatalf("expected 3 slots, got %d", len(slots))
	}
	if slots[1].StartLocal != "2025-03-04T09:20:00+05:30" {
		t.Fatalf("unexpected second slot %s", slots[1].StartLocal)
	}
	if raw := GenerateRaw("doc-1", tuesday, blocks, loc, policy(15, 5)); len(raw) != 4 {
		t.Fatalf("expected 4 raw slots, got %d", len(raw))
	}
}

func TestGenerateIsIdempotent(t *testing.T) {
	loc := kolkata(t)
	a := Generate("doc-1", tuesday, lunchBlocks(t), loc, policy(15, 5))
	b := Generate("doc-1", tuesday, lunchBlocks(t), loc, policy(15, 5))
	if !reflect.DeepEqual(a, b) {
		t.Fatal("identical inputs produced different slots")
	}
}

func TestSequenceIsRestartable(t *testing.T) {
	seq := NewSequence("doc-1", tuesday, lunchBlocks(t), kolkata(t), policy(30, 0))
	first, ok := seq.Next()
	if !ok {
		t.Fatal("expected a slot")
	}
	count := 1
	for {
		if _, ok := seq.Next(); !ok {
			break
		}
		count++
	}
	if count != 14 {
		t.Fatalf("expected 14 half-hour slots, got %d", count)
	}
	seq.Reset()
	again, _ := seq.Next()
	if again != first {
		t.Fatalf("reset produced %+v, want %+v", again, first)
	}
}

func TestGenerateAcrossSpringForwardGap(t *testing.T) {
	loc, err := time.LoadLocation("America/New_York")
	if err != nil {
		t.Fatalf("load location: %v", err)
	}
	// 2025-03-09 02:00-03:00 does not exist in New York.
	date := schedule.Date{Year: 2025, Month: time.March, Day: 9}
	blocks := []schedule.Block{{Start: schedule.NewClock(1, 0), End: schedule.NewClock(4, 0)}}
	slots := Generate("doc-1", date, blocks, loc, policy(15, 0))
	if len(slots) != 8 {
		t.Fatalf("expected 8 slots over two real hours, got %d", len(slots))
	}
	if slots[4].StartLocal != "2025-03-09T03:00:00-04:00" {
		t.Fatalf("expected jump to 03:00 EDT, got %s", slots[4].StartLocal)
	}
}

func TestGenerateRangeHonoursCancellation(t *testing.T) {
	cfg := schedule.NewWeeklySchedule(
		schedule.DayHours{Start: schedule.NewClock(9, 0), End: schedule.NewClock(10, 0)}, nil, true, schedule.Lunch{})
	loc := kolkata(t)

	slots, err := GenerateRange(context.Background(), "doc-1", cfg, loc, policy(15, 0), tuesday, tuesday.AddDays(6))
	if err != nil {
		t.Fatalf("GenerateRange: %v", err)
	}
	// Mon-Fri open, Saturday and Sunday closed: Tue..Mon covers 5 open days.
	if len(slots) != 20 {
		t.Fatalf("expected 20 slots, got %d", len(slots))
	}

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if _, err := GenerateRange(ctx, "doc-1", cfg, loc, policy(15, 0), tuesday, tuesday.AddDays(6)); !errors.Is(err, context.Canceled) {
		t.Fatalf("expected context.Canceled, got %v", err)
	}
}

func TestStartingFromDropsPastSlots(t *testing.T) {
	loc := kolkata(t)
	blocks := []schedule.Block{{Start: schedule.NewClock(9, 0), End: schedule.NewClock(10, 0)}}
	slots := Generate("doc-1", tuesday, blocks, loc, policy(15, 0))
	now := tuesday.At(schedule.NewClock(9, 31), loc)
	got := StartingFrom(slots, now)
	if len(got) != 1 || got[0].StartLocal != "2025-03-04T09:45:00+05:30" {
		t.Fatalf("unexpected remaining slots %+v", got)
	}
}

func TestSortByStartThenDoctor(t *testing.T) {
	base := time.Date(2025, 3, 4, 4, 0, 0, 0, time.UTC)
	slots := []Slot{
		{DoctorID: "b", StartUTC: base},
		{DoctorID: "a", StartUTC: base.Add(15 * time.Minute)},
		{DoctorID: "a", StartUTC: base},
	}
	Sort(slots)
	if slots[0].DoctorID != "a" || slots[1].DoctorID != "b" || !slots[2].StartUTC.Equal(base.Add(15*time.Minute)) {
		t.Fatalf("unexpected order %+v", slots)
	}
}

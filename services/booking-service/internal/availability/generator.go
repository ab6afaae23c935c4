package availability

import (
	"context"
	"fmt"
	"slices"
	"time"

	"github.com/md-rashed-zaman/clinicbook/services/booking-service/internal/schedule"
)

// Slot is a candidate booking interval. Slots are regenerated on every query
// and never persisted.
type Slot struct {
	DoctorID        string
	Date            schedule.Date
	StartUTC        time.Time
	EndUTC          time.Time
	StartLocal      string
	EndLocal        string
	DurationMinutes int
	Seq             int
}

// ID is a synthetic, per-query identifier (date, doctor, generation order).
func (s Slot) ID() string {
	return fmt.Sprintf("%s_%s_%d", s.Date.Compact(), s.DoctorID, s.Seq)
}

func (s Slot) Interval() Interval {
	return Interval{Start: s.StartUTC, End: s.EndUTC}
}

// Localize converts the local blocks of date into UTC intervals. Blocks whose
// localized end is not after their start (possible around DST changes) are dropped.
func Localize(date schedule.Date, blocks []schedule.Block, loc *time.Location) []Interval {
	out := make([]Interval, 0, len(blocks))
	for _, b := range blocks {
		iv := Interval{Start: date.At(b.Start, loc).UTC(), End: date.At(b.End, loc).UTC()}
		if iv.Valid() {
			out = append(out, iv)
		}
	}
	return out
}

// Sequence lazily walks the slot grid of one doctor-day. It is restartable:
// Reset rewinds it and the same slots come out again.
type Sequence struct {
	doctorID string
	date     schedule.Date
	loc      *time.Location
	width    time.Duration
	step     time.Duration
	blocks   []Interval

	block  int
	cursor time.Time
	seq    int
}

func NewSequence(doctorID string, date schedule.Date, blocks []schedule.Block, loc *time.Location, policy schedule.SlotPolicy) *Sequence {
	s := &Sequence{
		doctorID: doctorID,
		date:     date,
		loc:      loc,
		width:    policy.SlotWidth,
		step:     policy.Step(),
		blocks:   Localize(date, blocks, loc),
	}
	s.Reset()
	return s
}

func (s *Sequence) Reset() {
	s.block = 0
	s.seq = 0
	if len(s.blocks) > 0 {
		s.cursor = s.blocks[0].Start
	}
}

// Next returns the next slot, or false when the grid is exhausted.
func (s *Sequence) Next() (Slot, bool) {
	if s.width <= 0 || s.step <= 0 {
		return Slot{}, false
	}
	for s.block < len(s.blocks) {
		end := s.cursor.Add(s.width)
		if !end.After(s.blocks[s.block].End) {
			start := s.cursor
			s.cursor = s.cursor.Add(s.step)
			s.seq++
			return s.slot(start, end), true
		}
		s.block++
		if s.block < len(s.blocks) {
			s.cursor = s.blocks[s.block].Start
		}
	}
	return Slot{}, false
}

func (s *Sequence) slot(start, end time.Time) Slot {
	return Slot{
		DoctorID:        s.doctorID,
		Date:            s.date,
		StartUTC:        start,
		EndUTC:          end,
		StartLocal:      start.In(s.loc).Format(time.RFC3339),
		EndLocal:        end.In(s.loc).Format(time.RFC3339),
		DurationMinutes: int(end.Sub(start) / time.Minute),
		Seq:             s.seq,
	}
}

// Generate returns every grid slot of the doctor-day, sorted.
func Generate(doctorID string, date schedule.Date, blocks []schedule.Block, loc *time.Location, policy schedule.SlotPolicy) []Slot {
	seq := NewSequence(doctorID, date, blocks, loc, policy)
	var out []Slot
	for {
		slot, ok := seq.Next()
		if !ok {
			break
		}
		out = append(out, slot)
	}
	Sort(out)
	return out
}

// GenerateRaw is Generate without the inter-slot buffer, so adjacent slots touch.
// Multi-slot services chain raw slots.
func GenerateRaw(doctorID string, date schedule.Date, blocks []schedule.Block, loc *time.Location, policy schedule.SlotPolicy) []Slot {
	policy.Buffer = 0
	return Generate(doctorID, date, blocks, loc, policy)
}

// GenerateRange generates slots for every date in [from, to]. It stops with
// ctx.Err() when ctx is cancelled between days.
func GenerateRange(ctx context.Context, doctorID string, hours schedule.WeeklyScheduleConfig, loc *time.Location, policy schedule.SlotPolicy, from, to schedule.Date) ([]Slot, error) {
	var out []Slot
	for d := from; !d.After(to); d = d.AddDays(1) {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		blocks, err := hours.Blocks(d)
		if err != nil {
			return nil, err
		}
		out = append(out, Generate(doctorID, d, blocks, loc, policy)...)
	}
	return out, nil
}

// Sort orders slots by (StartUTC, DoctorID).
func Sort(slots []Slot) {
	slices.SortStableFunc(slots, func(a, b Slot) int {
		if c := a.StartUTC.Compare(b.StartUTC); c != 0 {
			return c
		}
		switch {
		case a.DoctorID < b.DoctorID:
			return -1
		case a.DoctorID > b.DoctorID:
			return 1
		}
		return 0
	})
}

// StartingFrom drops slots that start before t.
func StartingFrom(slots []Slot, t time.Time) []Slot {
	out := make([]Slot, 0, len(slots))
	for _, s := range slots {
		if !s.StartUTC.Before(t) {
			out = append(out, s)
		}
	}
	return out
}

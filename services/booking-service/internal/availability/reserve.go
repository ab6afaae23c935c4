package availability

import "time"

// ReserveConsecutive returns the earliest run of n free slots in which each
// slot starts exactly where the previous one ends.
func ReserveConsecutive(free []Slot, n int) ([]Slot, bool) {
	return FindRun(free, n, RunConstraints{})
}

// RunConstraints further restricts a run found by FindRun.
type RunConstraints struct {
	// Before and After widen the run's interval.
	Before time.Duration
	After  time.Duration
	// Blocks, when set, must contain the widened interval.
	Blocks []Interval
	// Busy must not overlap the widened interval.
	Busy []Interval
}

func (c RunConstraints) accepts(run []Slot) bool {
	iv := Interval{Start: run[0].StartUTC, End: run[len(run)-1].EndUTC}.Pad(c.Before, c.After)
	if len(c.Blocks) > 0 && !withinAny(iv, c.Blocks) {
		return false
	}
	return !overlapsAny(iv, c.Busy)
}

// FindRun scans free (sorted by start) for the earliest contiguous run of n
// slots that satisfies c. A gap resets the chain; a run rejected by c slides
// forward by one slot.
func FindRun(free []Slot, n int, c RunConstraints) ([]Slot, bool) {
	runs := scanRuns(free, n, c, true)
	if len(runs) == 0 {
		return nil, false
	}
	return runs[0], true
}

// FeasibleRuns returns every run FindRun could choose, one per starting slot.
func FeasibleRuns(free []Slot, n int, c RunConstraints) [][]Slot {
	return scanRuns(free, n, c, false)
}

func scanRuns(free []Slot, n int, c RunConstraints, first bool) [][]Slot {
	if n <= 0 {
		return nil
	}
	var (
		runs  [][]Slot
		chain int // length of the contiguous chain ending at i
	)
	for i := range free {
		if chain > 0 && free[i].StartUTC.Equal(free[i-1].EndUTC) && free[i].DoctorID == free[i-1].DoctorID {
			chain++
		} else {
			chain = 1
		}
		if chain < n {
			continue
		}
		run := free[i-n+1 : i+1]
		if !c.accepts(run) {
			continue
		}
		runs = append(runs, append([]Slot(nil), run...))
		if first {
			break
		}
	}
	return runs
}

// Merge collapses a run into one slot spanning it. The first slot's Seq is kept.
func Merge(run []Slot) Slot {
	if len(run) == 0 {
		return Slot{}
	}
	out := run[0]
	last := run[len(run)-1]
	out.EndUTC = last.EndUTC
	out.EndLocal = last.EndLocal
	out.DurationMinutes = int(out.EndUTC.Sub(out.StartUTC) / time.Minute)
	return out
}

package availability

import (
	"slices"
	"strings"

	"github.com/md-rashed-zaman/clinicbook/services/booking-service/internal/model"
)

// BusyIntervals returns the blocked ranges of doctorID's active bookings,
// ordered by blocked start.
func BusyIntervals(doctorID string, bookings []model.Appointment) []Interval {
	group := IndexByDoctor(bookings)[doctorID]
	busy := make([]Interval, 0, len(group))
	for _, b := range group {
		start, end := b.Blocked()
		busy = append(busy, Interval{Start: start, End: end})
	}
	return busy
}

// FilterFree keeps the slots that overlap none of busy.
func FilterFree(slots []Slot, busy []Interval) []Slot {
	out := make([]Slot, 0, len(slots))
	for _, s := range slots {
		if !overlapsAny(s.Interval(), busy) {
			out = append(out, s)
		}
	}
	return out
}

// FirstConflict returns the active booking of doctorID with the earliest
// blocked start whose blocked range overlaps iv.
func FirstConflict(doctorID string, iv Interval, bookings []model.Appointment) (model.Appointment, bool) {
	for _, b := range IndexByDoctor(bookings)[doctorID] {
		start, end := b.Blocked()
		if Overlaps(iv, Interval{Start: start, End: end}) {
			return b, true
		}
	}
	return model.Appointment{}, false
}

// IndexByDoctor groups active bookings by doctor, each group sorted by
// blocked start, then id.
func IndexByDoctor(bookings []model.Appointment) map[string][]model.Appointment {
	idx := map[string][]model.Appointment{}
	for _, b := range bookings {
		if b.Status.Active() {
			idx[b.DoctorID] = append(idx[b.DoctorID], b)
		}
	}
	for _, group := range idx {
		slices.SortFunc(group, compareBlockStart)
	}
	return idx
}

func compareBlockStart(a, b model.Appointment) int {
	as, _ := a.Blocked()
	bs, _ := b.Blocked()
	if c := as.Compare(bs); c != 0 {
		return c
	}
	return strings.Compare(a.ID, b.ID)
}

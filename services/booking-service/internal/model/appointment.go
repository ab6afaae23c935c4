package model

import (
	"fmt"
	"time"
)

type Status string

const (
	StatusConfirmed Status = "confirmed"
	StatusPending   Status = "pending"
	StatusCancelled Status = "cancelled"
	StatusCompleted Status = "completed"
	StatusNoShow    Status = "no_show"
)

func ParseStatus(s string) (Status, error) {
	switch st := Status(s); st {
	case StatusConfirmed, StatusPending, StatusCancelled, StatusCompleted, StatusNoShow:
		return st, nil
	}
	return "", fmt.Errorf("unknown appointment status %q", s)
}

// Active statuses hold their time range against other bookings.
func (s Status) Active() bool {
	return s == StatusConfirmed || s == StatusPending
}

const (
	CreatedViaAPI       = "api"
	CreatedViaWhatsApp  = "whatsapp"
	CreatedViaDashboard = "dashboard"
	CreatedViaCLI       = "slotctl"
)

// Appointment is the persisted booking record. Records are never deleted;
// they move between statuses.
//
// StartUTC/EndUTC is the slot-aligned service interval. BlockStartUTC/BlockEndUTC
// additionally covers the service's before/after buffers and is the range used
// for overlap checks.
type Appointment struct {
	ID              string
	ClinicID        string
	DoctorID        string
	ServiceID       string
	PatientRef      string
	Date            string // clinic-local calendar date, YYYY-MM-DD
	StartUTC        time.Time
	EndUTC          time.Time
	BlockStartUTC   time.Time
	BlockEndUTC     time.Time
	Status          Status
	CreatedVia      string
	Notes           string
	CancelReason    string
	RescheduledFrom string
	IdempotencyKey  string
	CancelledAt     *time.Time
	CreatedAt       time.Time
	UpdatedAt       time.Time
}

// Blocked returns the buffered range, falling back to the service interval
// when no block range was recorded.
func (a Appointment) Blocked() (start, end time.Time) {
	start, end = a.BlockStartUTC, a.BlockEndUTC
	if start.IsZero() {
		start = a.StartUTC
	}
	if end.IsZero() {
		end = a.EndUTC
	}
	return start, end
}

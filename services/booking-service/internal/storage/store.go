package storage

import (
	"context"
	"errors"
	"time"

	"github.com/md-rashed-zaman/clinicbook/services/booking-service/internal/model"
	"github.com/md-rashed-zaman/clinicbook/services/booking-service/internal/outbox"
)

var (
	ErrNotFound = errors.New("appointment not found")
	// ErrOverlap means the write would leave two active appointments of one
	// doctor overlapping.
	ErrOverlap = errors.New("overlapping active appointment")
	// ErrBusy means the per-doctor lock could not be taken in time.
	ErrBusy      = errors.New("doctor is busy with another booking")
	ErrDuplicate = errors.New("duplicate appointment")
)

// Filter narrows List. Zero fields are ignored. Dates are clinic-local
// YYYY-MM-DD and inclusive.
type Filter struct {
	ClinicID string
	DoctorID string
	DateFrom string
	DateTo   string
	Status   model.Status
	Limit    int
}

const (
	DefaultListLimit = 50
	MaxListLimit     = 500
)

func (f Filter) limit() int {
	switch {
	case f.Limit <= 0:
		return DefaultListLimit
	case f.Limit > MaxListLimit:
		return MaxListLimit
	}
	return f.Limit
}

// Store persists appointments. Reads outside InDoctorTx see committed state only.
type Store interface {
	// ListActive returns doctorID's active appointments whose blocked range
	// overlaps [from, to), ordered by blocked start.
	ListActive(ctx context.Context, doctorID string, from, to time.Time) ([]model.Appointment, error)
	Get(ctx context.Context, id string) (model.Appointment, error)
	List(ctx context.Context, f Filter) ([]model.Appointment, error)
	// InDoctorTx runs fn while holding doctorID's write exclusion. Writes made
	// through tx become visible together when fn returns nil, and not at all otherwise.
	InDoctorTx(ctx context.Context, doctorID string, fn func(ctx context.Context, tx Tx) error) error
}

// Tx is the write side of one InDoctorTx call.
type Tx interface {
	// Overlapping returns active appointments of doctorID whose blocked range
	// overlaps [start, end), skipping excludeID, ordered by blocked start.
	Overlapping(ctx context.Context, doctorID string, start, end time.Time, excludeID string) ([]model.Appointment, error)
	GetForUpdate(ctx context.Context, id string) (model.Appointment, error)
	FindByIdempotencyKey(ctx context.Context, clinicID, key string) (model.Appointment, bool, error)
	Insert(ctx context.Context, a model.Appointment) error
	// SetStatus moves id to status. Cancelling records reason and at.
	SetStatus(ctx context.Context, id string, status model.Status, reason string, at time.Time) error
	AppendEvent(ctx context.Context, evt outbox.Event) error
}

// Package booking is the availability and reservation engine: it answers
// free-slot and conflict queries from a consistent snapshot and performs
// serialized per-doctor booking writes.
package booking

import (
	"context"
	"log/slog"
	"time"

	"github.com/md-rashed-zaman/clinicbook/libs/lock"
	"github.com/md-rashed-zaman/clinicbook/services/booking-service/internal/availability"
	"github.com/md-rashed-zaman/clinicbook/services/booking-service/internal/metrics"
	"github.com/md-rashed-zaman/clinicbook/services/booking-service/internal/model"
	"github.com/md-rashed-zaman/clinicbook/services/booking-service/internal/reference"
	"github.com/md-rashed-zaman/clinicbook/services/booking-service/internal/schedule"
	"github.com/md-rashed-zaman/clinicbook/services/booking-service/internal/storage"
)

const tracerName = "clinicbook/booking"

const DefaultLockWait = 2 * time.Second

type Config struct {
	// LockWait bounds how long a write waits for the doctor's lock.
	LockWait time.Duration
	// Now overrides the wall clock (tests).
	Now func() time.Time
}

type Engine struct {
	catalog reference.Catalog
	store   storage.Store
	locker  lock.Locker
	metrics *metrics.BookingMetrics
	logger  *slog.Logger

	lockWait time.Duration
	now      func() time.Time
}

// New wires an engine. metrics may be nil; logger defaults to slog.Default.
func New(catalog reference.Catalog, store storage.Store, locker lock.Locker, m *metrics.BookingMetrics, logger *slog.Logger, cfg Config) *Engine {
	if logger == nil {
		logger = slog.Default()
	}
	if cfg.LockWait <= 0 {
		cfg.LockWait = DefaultLockWait
	}
	if cfg.Now == nil {
		cfg.Now = time.Now
	}
	if locker == nil {
		locker = lock.NewKeyed()
	}
	return &Engine{
		catalog:  catalog,
		store:    store,
		locker:   locker,
		metrics:  m,
		logger:   logger,
		lockWait: cfg.LockWait,
		now:      cfg.Now,
	}
}

// ReserveConsecutive picks the earliest run of n touching slots from free.
func ReserveConsecutive(free []availability.Slot, n int) ([]availability.Slot, bool) {
	return availability.ReserveConsecutive(free, n)
}

// Get returns one appointment by id.
func (e *Engine) Get(ctx context.Context, id string) (model.Appointment, error) {
	a, err := e.store.Get(ctx, id)
	if err != nil {
		return model.Appointment{}, fromStorage(err, id)
	}
	return a, nil
}

// ListFilter narrows List. Dates are clinic-local YYYY-MM-DD, inclusive.
type ListFilter struct {
	ClinicID string
	DoctorID string
	DateFrom string
	DateTo   string
	Status   string
	Limit    int
}

func (e *Engine) List(ctx context.Context, f ListFilter) ([]model.Appointment, error) {
	out := storage.Filter{ClinicID: f.ClinicID, DoctorID: f.DoctorID, Limit: f.Limit}
	for _, d := range []struct {
		raw string
		dst *string
	}{{f.DateFrom, &out.DateFrom}, {f.DateTo, &out.DateTo}} {
		if d.raw == "" {
			continue
		}
		date, err := schedule.ParseDate(d.raw)
		if err != nil {
			return nil, invalidf("%v", err)
		}
		*d.dst = date.String()
	}
	if out.DateFrom != "" && out.DateTo != "" && out.DateFrom > out.DateTo {
		return nil, invalidf("date_from %s is after date_to %s", out.DateFrom, out.DateTo)
	}
	if f.Status != "" {
		st, err := model.ParseStatus(f.Status)
		if err != nil {
			return nil, invalidf("%v", err)
		}
		out.Status = st
	}
	return e.store.List(ctx, out)
}

// clinicDoctor loads the clinic and checks the doctor practices there.
func (e *Engine) clinicDoctor(ctx context.Context, clinicID, doctorID string) (schedule.Clinic, reference.Doctor, error) {
	clinic, err := e.catalog.Clinic(ctx, clinicID)
	if err != nil {
		return schedule.Clinic{}, reference.Doctor{}, fromReference(err)
	}
	doctor, err := e.catalog.Doctor(ctx, doctorID)
	if err != nil {
		return schedule.Clinic{}, reference.Doctor{}, fromReference(err)
	}
	if doctor.ClinicID != clinic.ID || !doctor.Active {
		return schedule.Clinic{}, reference.Doctor{}, &NotFoundError{Kind: "doctor", ID: doctorID}
	}
	return clinic, doctor, nil
}

// service resolves serviceID; blank means a single slot with no buffers.
func (e *Engine) service(ctx context.Context, clinic schedule.Clinic, serviceID string) (*schedule.ServiceSpec, error) {
	if serviceID == "" {
		return nil, nil
	}
	spec, err := e.catalog.Service(ctx, clinic.ID, serviceID)
	if err != nil {
		return nil, fromReference(err)
	}
	return &spec, nil
}

// dayWindow is the UTC span of a clinic-local calendar day.
func dayWindow(date schedule.Date, loc *time.Location) availability.Interval {
	return availability.Interval{
		Start: date.At(0, loc).UTC(),
		End:   date.AddDays(1).At(0, loc).UTC(),
	}
}

func (e *Engine) observe(op string, err error) {
	e.metrics.ObserveOperation(op, outcome(err))
}

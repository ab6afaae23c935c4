package booking

import (
	"context"
	"fmt"
	"time"

	otelx "github.com/md-rashed-zaman/clinicbook/libs/otel"
	"github.com/md-rashed-zaman/clinicbook/services/booking-service/internal/availability"
	"github.com/md-rashed-zaman/clinicbook/services/booking-service/internal/schedule"
	"go.opentelemetry.io/otel/attribute"
)

// GetFreeSlots lists the bookable slots of a doctor on a clinic-local date.
// With a service, each slot spans the service's slot-aligned duration and its
// before/after buffers must fit inside the same open block without touching
// another booking. Slots that already started are omitted, as are dates in
// the past or beyond the booking horizon.
func (e *Engine) GetFreeSlots(ctx context.Context, clinicID, doctorID, date, serviceID string) (slots []availability.Slot, err error) {
	ctx, span := otelx.Start(ctx, tracerName, "booking.GetFreeSlots",
		attribute.String("clinic.id", clinicID),
		attribute.String("doctor.id", doctorID),
		attribute.String("date", date),
	)
	started := time.Now()
	defer func() {
		e.metrics.ObserveQuery("free_slots", time.Since(started).Seconds())
		e.metrics.AddSlotsServed(len(slots))
		span.SetAttributes(attribute.Int("slots", len(slots)))
		otelx.End(span, err)
	}()

	day, err := schedule.ParseDate(date)
	if err != nil {
		return nil, invalidf("%v", err)
	}
	clinic, _, err := e.clinicDoctor(ctx, clinicID, doctorID)
	if err != nil {
		return nil, err
	}
	spec, err := e.service(ctx, clinic, serviceID)
	if err != nil {
		return nil, err
	}

	now := e.now()
	if !clinic.Bookable(day, now) {
		return []availability.Slot{}, nil
	}
	blocks, err := clinic.Hours.Blocks(day)
	if err != nil {
		return nil, fmt.Errorf("clinic %q: %w", clinic.ID, err)
	}
	if len(blocks) == 0 {
		if reason, ok := clinic.Hours.ClosedOn(day); ok {
			e.logger.Debug("clinic closed", "clinic_id", clinic.ID, "date", date, "reason", reason)
		}
		return []availability.Slot{}, nil
	}

	window := dayWindow(day, clinic.Location)
	bookings, err := e.store.ListActive(ctx, doctorID, window.Start, window.End)
	if err != nil {
		return nil, fmt.Errorf("load bookings: %w", err)
	}
	busy := availability.BusyIntervals(doctorID, bookings)

	slots = freeSlots(doctorID, day, blocks, clinic, spec, busy)
	return availability.StartingFrom(slots, now), nil
}

// freeSlots is the pure part of GetFreeSlots.
//
// Buffers are spent once: a plain single-slot query walks the clinic grid,
// which already leaves the policy buffer between slots. A service with its
// own buffers or a multi-slot duration walks the unbuffered grid and applies
// only the service buffers to each candidate run.
func freeSlots(doctorID string, day schedule.Date, blocks []schedule.Block, clinic schedule.Clinic, spec *schedule.ServiceSpec, busy []availability.Interval) []availability.Slot {
	width := clinic.Policy.SlotWidth
	if spec == nil || (spec.RequiredSlots(width) == 1 && !spec.HasBuffers()) {
		grid := availability.Generate(doctorID, day, blocks, clinic.Location, clinic.Policy)
		return availability.FilterFree(grid, busy)
	}

	raw := availability.GenerateRaw(doctorID, day, blocks, clinic.Location, clinic.Policy)
	runs := availability.FeasibleRuns(availability.FilterFree(raw, busy), spec.RequiredSlots(width), availability.RunConstraints{
		Before: spec.BeforeBuffer,
		After:  spec.AfterBuffer,
		Blocks: availability.Localize(day, blocks, clinic.Location),
		Busy:   busy,
	})
	out := make([]availability.Slot, 0, len(runs))
	for _, run := range runs {
		out = append(out, availability.Merge(run))
	}
	availability.Sort(out)
	return out
}

// ConflictResult is the answer to CheckConflict. Free is false when an
// active appointment overlaps; ConflictingAppointmentID names the earliest.
type ConflictResult struct {
	Free                     bool
	ConflictingAppointmentID string
}

// CheckConflict reports whether [start, end) collides with any active
// appointment of doctorID. Touching endpoints do not collide.
func (e *Engine) CheckConflict(ctx context.Context, doctorID, date string, start, end time.Time) (res ConflictResult, err error) {
	ctx, span := otelx.Start(ctx, tracerName, "booking.CheckConflict",
		attribute.String("doctor.id", doctorID),
		attribute.String("date", date),
	)
	started := time.Now()
	defer func() {
		e.metrics.ObserveQuery("check_conflict", time.Since(started).Seconds())
		otelx.End(span, err)
	}()

	if doctorID == "" {
		return ConflictResult{}, invalidf("doctor_id is required")
	}
	if date != "" {
		if _, err := schedule.ParseDate(date); err != nil {
			return ConflictResult{}, invalidf("%v", err)
		}
	}
	iv := availability.Interval{Start: start.UTC(), End: end.UTC()}
	if !iv.Valid() {
		return ConflictResult{}, invalidf("end must be after start")
	}
	if _, err := e.catalog.Doctor(ctx, doctorID); err != nil {
		return ConflictResult{}, fromReference(err)
	}

	bookings, err := e.store.ListActive(ctx, doctorID, iv.Start, iv.End)
	if err != nil {
		return ConflictResult{}, fmt.Errorf("load bookings: %w", err)
	}
	if hit, ok := availability.FirstConflict(doctorID, iv, bookings); ok {
		return ConflictResult{ConflictingAppointmentID: hit.ID}, nil
	}
	return ConflictResult{Free: true}, nil
}

// FirstAvailable returns the earliest free slot for the doctor from fromDate
// up to the end of the booking horizon. Finding nothing is reported as
// ErrNoAvailability.
func (e *Engine) FirstAvailable(ctx context.Context, clinicID, doctorID, fromDate, serviceID string) (availability.Slot, error) {
	day, err := schedule.ParseDate(fromDate)
	if err != nil {
		return availability.Slot{}, invalidf("%v", err)
	}
	clinic, _, err := e.clinicDoctor(ctx, clinicID, doctorID)
	if err != nil {
		return availability.Slot{}, err
	}
	if _, err := e.service(ctx, clinic, serviceID); err != nil {
		return availability.Slot{}, err
	}
	today := clinic.Today(e.now())
	if day.Before(today) {
		day = today
	}
	horizon := clinic.Policy.MaxAdvanceDays
	if horizon == 0 {
		horizon = schedule.DefaultMaxAdvanceDays
	}
	last := today.AddDays(horizon)
	// Only dates with at least one grid slot can have a free one.
	grid, err := availability.GenerateRange(ctx, doctorID, clinic.Hours, clinic.Location, clinic.Policy, day, last)
	if err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return availability.Slot{}, ctxErr
		}
		return availability.Slot{}, fmt.Errorf("clinic %q: %w", clinic.ID, err)
	}
	for _, d := range openDates(grid) {
		slots, err := e.GetFreeSlots(ctx, clinicID, doctorID, d.String(), serviceID)
		if err != nil {
			return availability.Slot{}, err
		}
		if len(slots) > 0 {
			return slots[0], nil
		}
	}
	e.logger.Info("no availability", "clinic_id", clinicID, "doctor_id", doctorID, "from", day.String(), "service_id", serviceID)
	return availability.Slot{}, ErrNoAvailability
}

// openDates lists the distinct dates of grid in order. grid is sorted by start.
func openDates(grid []availability.Slot) []schedule.Date {
	var dates []schedule.Date
	for _, s := range grid {
		if n := len(dates); n == 0 || dates[n-1] != s.Date {
			dates = append(dates, s.Date)
		}
	}
	return dates
}

package booking

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/md-rashed-zaman/clinicbook/libs/lock"
	otelx "github.com/md-rashed-zaman/clinicbook/libs/otel"
	"github.com/md-rashed-zaman/clinicbook/services/booking-service/internal/availability"
	"github.com/md-rashed-zaman/clinicbook/services/booking-service/internal/model"
	"github.com/md-rashed-zaman/clinicbook/services/booking-service/internal/outbox"
	"github.com/md-rashed-zaman/clinicbook/services/booking-service/internal/schedule"
	"github.com/md-rashed-zaman/clinicbook/services/booking-service/internal/storage"
	"go.opentelemetry.io/otel/attribute"
)

type CreateRequest struct {
	ClinicID   string
	DoctorID   string
	ServiceID  string
	StartUTC   time.Time
	PatientRef string
	CreatedVia string
	// Status is confirmed (default) or pending.
	Status         model.Status
	Notes          string
	IdempotencyKey string
}

// placement is a validated interval for a new appointment.
type placement struct {
	date    schedule.Date
	service availability.Interval
	blocked availability.Interval
}

// place checks that a service starting at start fits the clinic's hours and
// booking window. The buffered interval must lie inside one open block.
func (e *Engine) place(clinic schedule.Clinic, spec *schedule.ServiceSpec, start time.Time) (placement, error) {
	width := clinic.Policy.SlotWidth
	length := width
	var before, after time.Duration
	if spec != nil {
		length = spec.ReservedDuration(width)
		before, after = spec.BeforeBuffer, spec.AfterBuffer
	}
	start = start.UTC()
	p := placement{
		date:    clinic.LocalDate(start),
		service: availability.Interval{Start: start, End: start.Add(length)},
	}
	p.blocked = p.service.Pad(before, after)

	now := e.now()
	if start.Before(now) || !clinic.Bookable(p.date, now) {
		return placement{}, fmt.Errorf("%w: %s", ErrOutsideHorizon, p.date)
	}
	blocks, err := clinic.Hours.Blocks(p.date)
	if err != nil {
		return placement{}, fmt.Errorf("clinic %q: %w", clinic.ID, err)
	}
	for _, b := range availability.Localize(p.date, blocks, clinic.Location) {
		if b.Contains(p.blocked) {
			return p, nil
		}
	}
	return placement{}, ErrOutsideHours
}

// CreateBooking reserves an interval for a patient. The overlap check and
// the insert run under the doctor's lock against the latest committed state,
// so of several concurrent requests for the same time exactly one wins and
// the rest get a *ConflictError. A repeated IdempotencyKey returns the
// appointment created the first time.
func (e *Engine) CreateBooking(ctx context.Context, req CreateRequest) (appt model.Appointment, err error) {
	ctx, span := otelx.Start(ctx, tracerName, "booking.CreateBooking",
		attribute.String("clinic.id", req.ClinicID),
		attribute.String("doctor.id", req.DoctorID),
		attribute.String("service.id", req.ServiceID),
	)
	defer func() {
		e.observe("create", err)
		otelx.End(span, err)
	}()

	if err := validateCreate(&req); err != nil {
		return model.Appointment{}, err
	}
	clinic, _, err := e.clinicDoctor(ctx, req.ClinicID, req.DoctorID)
	if err != nil {
		return model.Appointment{}, err
	}
	spec, err := e.service(ctx, clinic, req.ServiceID)
	if err != nil {
		return model.Appointment{}, err
	}
	p, err := e.place(clinic, spec, req.StartUTC)
	if err != nil {
		return model.Appointment{}, err
	}

	now := e.now().UTC()
	appt = model.Appointment{
		ID:             uuid.NewString(),
		ClinicID:       clinic.ID,
		DoctorID:       req.DoctorID,
		ServiceID:      req.ServiceID,
		PatientRef:     req.PatientRef,
		Date:           p.date.String(),
		StartUTC:       p.service.Start,
		EndUTC:         p.service.End,
		BlockStartUTC:  p.blocked.Start,
		BlockEndUTC:    p.blocked.End,
		Status:         req.Status,
		CreatedVia:     req.CreatedVia,
		Notes:          req.Notes,
		IdempotencyKey: req.IdempotencyKey,
		CreatedAt:      now,
		UpdatedAt:      now,
	}

	replayed := false
	err = e.inDoctorTx(ctx, req.DoctorID, func(ctx context.Context, tx storage.Tx) error {
		if req.IdempotencyKey != "" {
			prior, found, err := tx.FindByIdempotencyKey(ctx, clinic.ID, req.IdempotencyKey)
			if err != nil {
				return err
			}
			if found {
				appt, replayed = prior, true
				return nil
			}
		}
		if err := checkFree(ctx, tx, req.DoctorID, p.blocked, ""); err != nil {
			return err
		}
		if err := tx.Insert(ctx, appt); err != nil {
			return err
		}
		evt, err := outbox.AppointmentEvent(outbox.EventBooked, appt, now)
		if err != nil {
			return err
		}
		return tx.AppendEvent(ctx, evt)
	})
	if err != nil {
		return model.Appointment{}, fromStorage(err, "")
	}

	span.SetAttributes(attribute.String("appointment.id", appt.ID), attribute.Bool("replayed", replayed))
	if !replayed {
		e.logger.Info("appointment booked",
			"appointment_id", appt.ID,
			"clinic_id", appt.ClinicID,
			"doctor_id", appt.DoctorID,
			"start_utc", appt.StartUTC,
			"created_via", appt.CreatedVia,
		)
	}
	return appt, nil
}

func validateCreate(req *CreateRequest) error {
	req.ClinicID = strings.TrimSpace(req.ClinicID)
	req.DoctorID = strings.TrimSpace(req.DoctorID)
	req.ServiceID = strings.TrimSpace(req.ServiceID)
	req.IdempotencyKey = strings.TrimSpace(req.IdempotencyKey)
	switch {
	case req.ClinicID == "":
		return invalidf("clinic_id is required")
	case req.DoctorID == "":
		return invalidf("doctor_id is required")
	case req.StartUTC.IsZero():
		return invalidf("start_utc is required")
	}
	switch req.Status {
	case "":
		req.Status = model.StatusConfirmed
	case model.StatusConfirmed, model.StatusPending:
	default:
		return invalidf("new appointments must be confirmed or pending, got %q", req.Status)
	}
	switch req.CreatedVia {
	case "":
		req.CreatedVia = model.CreatedViaAPI
	case model.CreatedViaAPI, model.CreatedViaWhatsApp, model.CreatedViaDashboard, model.CreatedViaCLI:
	default:
		return invalidf("unknown created_via %q", req.CreatedVia)
	}
	return nil
}

// Reschedule moves an active appointment to newStart. The old record is
// cancelled with reason "rescheduled" and a new record pointing back at it
// is inserted in the same transaction. The overlap check ignores the
// appointment being moved.
func (e *Engine) Reschedule(ctx context.Context, id string, newStart time.Time) (appt model.Appointment, err error) {
	ctx, span := otelx.Start(ctx, tracerName, "booking.Reschedule", attribute.String("appointment.id", id))
	defer func() {
		e.observe("reschedule", err)
		otelx.End(span, err)
	}()

	if newStart.IsZero() {
		return model.Appointment{}, invalidf("new start_utc is required")
	}
	old, err := e.Get(ctx, id)
	if err != nil {
		return model.Appointment{}, err
	}
	if !old.Status.Active() {
		return model.Appointment{}, fmt.Errorf("%w: appointment is %s", ErrInvalidTransition, old.Status)
	}
	clinic, _, err := e.clinicDoctor(ctx, old.ClinicID, old.DoctorID)
	if err != nil {
		return model.Appointment{}, err
	}
	spec, err := e.service(ctx, clinic, old.ServiceID)
	if err != nil {
		return model.Appointment{}, err
	}
	p, err := e.place(clinic, spec, newStart)
	if err != nil {
		return model.Appointment{}, err
	}

	now := e.now().UTC()
	appt = old
	appt.ID = uuid.NewString()
	appt.Date = p.date.String()
	appt.StartUTC, appt.EndUTC = p.service.Start, p.service.End
	appt.BlockStartUTC, appt.BlockEndUTC = p.blocked.Start, p.blocked.End
	appt.RescheduledFrom = old.ID
	appt.IdempotencyKey = ""
	appt.CancelReason = ""
	appt.CancelledAt = nil
	appt.CreatedAt, appt.UpdatedAt = now, now

	err = e.inDoctorTx(ctx, old.DoctorID, func(ctx context.Context, tx storage.Tx) error {
		cur, err := tx.GetForUpdate(ctx, id)
		if err != nil {
			return err
		}
		if !cur.Status.Active() {
			return fmt.Errorf("%w: appointment is %s", ErrInvalidTransition, cur.Status)
		}
		if err := checkFree(ctx, tx, old.DoctorID, p.blocked, id); err != nil {
			return err
		}
		if err := tx.SetStatus(ctx, id, model.StatusCancelled, "rescheduled", now); err != nil {
			return err
		}
		if err := tx.Insert(ctx, appt); err != nil {
			return err
		}
		evt, err := outbox.AppointmentEvent(outbox.EventRescheduled, appt, now)
		if err != nil {
			return err
		}
		return tx.AppendEvent(ctx, evt)
	})
	if err != nil {
		return model.Appointment{}, fromStorage(err, id)
	}
	e.logger.Info("appointment rescheduled", "appointment_id", appt.ID, "rescheduled_from", id, "start_utc", appt.StartUTC)
	return appt, nil
}

// notCancelled guards every status change: a cancelled appointment is final,
// anything else may be corrected (no_show to completed and back).
func notCancelled(s model.Status) bool { return s != model.StatusCancelled }

// Cancel frees the appointment's interval. Cancelling twice is rejected.
func (e *Engine) Cancel(ctx context.Context, id, reason string) (model.Appointment, error) {
	return e.transition(ctx, "cancel", id, model.StatusCancelled, reason, outbox.EventCancelled, notCancelled)
}

// Complete marks an appointment as attended.
func (e *Engine) Complete(ctx context.Context, id string) (model.Appointment, error) {
	return e.transition(ctx, "complete", id, model.StatusCompleted, "", outbox.EventCompleted, notCancelled)
}

// MarkNoShow marks an appointment as missed.
func (e *Engine) MarkNoShow(ctx context.Context, id string) (model.Appointment, error) {
	return e.transition(ctx, "no_show", id, model.StatusNoShow, "", outbox.EventNoShow, notCancelled)
}

func (e *Engine) transition(ctx context.Context, op, id string, to model.Status, reason, eventType string, allowed func(model.Status) bool) (appt model.Appointment, err error) {
	ctx, span := otelx.Start(ctx, tracerName, "booking."+op,
		attribute.String("appointment.id", id),
		attribute.String("status", string(to)),
	)
	defer func() {
		e.observe(op, err)
		otelx.End(span, err)
	}()

	cur, err := e.Get(ctx, id)
	if err != nil {
		return model.Appointment{}, err
	}
	now := e.now().UTC()
	err = e.inDoctorTx(ctx, cur.DoctorID, func(ctx context.Context, tx storage.Tx) error {
		a, err := tx.GetForUpdate(ctx, id)
		if err != nil {
			return err
		}
		if !allowed(a.Status) {
			return fmt.Errorf("%w: %s to %s", ErrInvalidTransition, a.Status, to)
		}
		if err := tx.SetStatus(ctx, id, to, reason, now); err != nil {
			return err
		}
		a.Status = to
		a.UpdatedAt = now
		if to == model.StatusCancelled {
			a.CancelReason = reason
			a.CancelledAt = &now
		}
		evt, err := outbox.AppointmentEvent(eventType, a, now)
		if err != nil {
			return err
		}
		if err := tx.AppendEvent(ctx, evt); err != nil {
			return err
		}
		appt = a
		return nil
	})
	if err != nil {
		return model.Appointment{}, fromStorage(err, id)
	}
	e.logger.Info("appointment status changed", "appointment_id", id, "status", to)
	return appt, nil
}

// inDoctorTx takes the doctor's lock, then runs fn in a store transaction.
func (e *Engine) inDoctorTx(ctx context.Context, doctorID string, fn func(ctx context.Context, tx storage.Tx) error) error {
	started := time.Now()
	release, err := e.locker.Acquire(ctx, "doctor:"+doctorID, e.lockWait)
	e.metrics.ObserveLockWait(time.Since(started).Seconds())
	if err != nil {
		if errors.Is(err, lock.ErrTimeout) {
			e.logger.Warn("doctor lock wait exceeded", "doctor_id", doctorID, "wait", e.lockWait)
			return ErrBusy
		}
		return fmt.Errorf("acquire doctor lock: %w", err)
	}
	defer release()
	return e.store.InDoctorTx(ctx, doctorID, fn)
}

// checkFree fails with a *ConflictError naming the earliest active
// appointment whose blocked range overlaps iv.
func checkFree(ctx context.Context, tx storage.Tx, doctorID string, iv availability.Interval, excludeID string) error {
	hits, err := tx.Overlapping(ctx, doctorID, iv.Start, iv.End, excludeID)
	if err != nil {
		return err
	}
	if len(hits) > 0 {
		return &ConflictError{AppointmentID: hits[0].ID}
	}
	return nil
}

func outcome(err error) string {
	switch {
	case err == nil:
		return "ok"
	case errors.Is(err, ErrConflict):
		return "conflict"
	case errors.Is(err, ErrBusy):
		return "busy"
	case errors.Is(err, ErrNotFound):
		return "not_found"
	case errors.Is(err, ErrInvalidRequest), errors.Is(err, ErrInvalidTransition),
		errors.Is(err, ErrOutsideHours), errors.Is(err, ErrOutsideHorizon):
		return "rejected"
	}
	return "error"
}

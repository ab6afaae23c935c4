package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/md-rashed-zaman/clinicbook/libs/grpcx"
	"github.com/md-rashed-zaman/clinicbook/services/booking-service/internal/booking"
	"github.com/md-rashed-zaman/clinicbook/services/booking-service/internal/grpcapi"
	"github.com/md-rashed-zaman/clinicbook/services/booking-service/internal/model"
	"github.com/md-rashed-zaman/clinicbook/services/booking-service/internal/reference"
	"github.com/md-rashed-zaman/clinicbook/services/booking-service/internal/storage"
)

type slotRow struct {
	ID         string `json:"slot_id"`
	StartUTC   string `json:"start_utc"`
	EndUTC     string `json:"end_utc"`
	StartLocal string `json:"start_local"`
	EndLocal   string `json:"end_local"`
	Minutes    int    `json:"duration_minutes"`
}

type reservation struct {
	AppointmentID string `json:"appointment_id"`
	Date          string `json:"date"`
	StartUTC      string `json:"start_utc"`
	EndUTC        string `json:"end_utc"`
	Status        string `json:"status"`
}

type reserveInput struct {
	ClinicID       string
	DoctorID       string
	ServiceID      string
	Start          time.Time
	PatientRef     string
	IdempotencyKey string
}

// errTaken carries the id of the appointment that holds the requested time.
type errTaken struct{ id string }

func (e errTaken) Error() string { return fmt.Sprintf("slot taken by appointment %s", e.id) }

type backend interface {
	Slots(ctx context.Context, clinicID, doctorID, date, serviceID string) ([]slotRow, error)
	Check(ctx context.Context, doctorID, date string, start, end time.Time) (string, error)
	Reserve(ctx context.Context, in reserveInput) (reservation, error)
	Close() error
}

type localBackend struct {
	engine *booking.Engine
}

func newLocalBackend(path string, logger *slog.Logger) (*localBackend, error) {
	catalog, err := reference.LoadFile(path)
	if err != nil {
		return nil, err
	}
	engine := booking.New(catalog, storage.NewMemoryStore(0), nil, nil, logger, booking.Config{})
	return &localBackend{engine: engine}, nil
}

func (b *localBackend) Slots(ctx context.Context, clinicID, doctorID, date, serviceID string) ([]slotRow, error) {
	slots, err := b.engine.GetFreeSlots(ctx, clinicID, doctorID, date, serviceID)
	if err != nil {
		return nil, err
	}
	rows := make([]slotRow, 0, len(slots))
	for _, s := range slots {
		rows = append(rows, slotRow{
			ID:         s.ID(),
			StartUTC:   s.StartUTC.Format(time.RFC3339),
			EndUTC:     s.EndUTC.Format(time.RFC3339),
			StartLocal: s.StartLocal,
			EndLocal:   s.EndLocal,
			Minutes:    s.DurationMinutes,
		})
	}
	return rows, nil
}

func (b *localBackend) Check(ctx context.Context, doctorID, date string, start, end time.Time) (string, error) {
	res, err := b.engine.CheckConflict(ctx, doctorID, date, start, end)
	if err != nil {
		return "", err
	}
	return res.ConflictingAppointmentID, nil
}

func (b *localBackend) Reserve(ctx context.Context, in reserveInput) (reservation, error) {
	appt, err := b.engine.CreateBooking(ctx, booking.CreateRequest{
		ClinicID:       in.ClinicID,
		DoctorID:       in.DoctorID,
		ServiceID:      in.ServiceID,
		StartUTC:       in.Start,
		PatientRef:     in.PatientRef,
		CreatedVia:     model.CreatedViaCLI,
		IdempotencyKey: in.IdempotencyKey,
	})
	var conflict *booking.ConflictError
	if errors.As(err, &conflict) {
		return reservation{}, errTaken{id: conflict.AppointmentID}
	}
	if err != nil {
		return reservation{}, err
	}
	return reservation{
		AppointmentID: appt.ID,
		Date:          appt.Date,
		StartUTC:      appt.StartUTC.Format(time.RFC3339),
		EndUTC:        appt.EndUTC.Format(time.RFC3339),
		Status:        string(appt.Status),
	}, nil
}

func (b *localBackend) Close() error { return nil }

type remoteBackend struct {
	close  func() error
	client *grpcapi.Client
}

func newRemoteBackend(addr string, timeout time.Duration) (*remoteBackend, error) {
	cc, err := grpcx.Dial(addr, grpcx.DialOptions{
		Timeout:       timeout,
		ServiceConfig: grpcapi.ReadRetryServiceConfig,
	})
	if err != nil {
		return nil, err
	}
	return &remoteBackend{close: cc.Close, client: grpcapi.NewClient(cc)}, nil
}

func (b *remoteBackend) Slots(ctx context.Context, clinicID, doctorID, date, serviceID string) ([]slotRow, error) {
	slots, err := b.client.GetFreeSlots(ctx, clinicID, doctorID, date, serviceID)
	if err != nil {
		return nil, err
	}
	rows := make([]slotRow, 0, len(slots))
	for _, s := range slots {
		rows = append(rows, slotRow{
			ID:         s.ID,
			StartUTC:   s.StartUTC,
			EndUTC:     s.EndUTC,
			StartLocal: s.StartLocal,
			EndLocal:   s.EndLocal,
			Minutes:    s.DurationMinutes,
		})
	}
	return rows, nil
}

func (b *remoteBackend) Check(ctx context.Context, doctorID, date string, start, end time.Time) (string, error) {
	return b.client.CheckConflict(ctx, doctorID, date, start, end)
}

func (b *remoteBackend) Reserve(ctx context.Context, in reserveInput) (reservation, error) {
	bk, err := b.client.CreateBooking(ctx, grpcapi.BookingRequest{
		ClinicID:       in.ClinicID,
		DoctorID:       in.DoctorID,
		ServiceID:      in.ServiceID,
		StartUTC:       in.Start,
		PatientRef:     in.PatientRef,
		CreatedVia:     model.CreatedViaCLI,
		IdempotencyKey: in.IdempotencyKey,
	})
	var conflict *grpcapi.ConflictError
	if errors.As(err, &conflict) {
		return reservation{}, errTaken{id: conflict.AppointmentID}
	}
	if err != nil {
		return reservation{}, err
	}
	return reservation{
		AppointmentID: bk.AppointmentID,
		Date:          bk.Date,
		StartUTC:      bk.StartUTC,
		EndUTC:        bk.EndUTC,
		Status:        bk.Status,
	}, nil
}

func (b *remoteBackend) Close() error { return b.close() }

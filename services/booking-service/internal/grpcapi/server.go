package grpcapi

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/md-rashed-zaman/clinicbook/services/booking-service/internal/availability"
	"github.com/md-rashed-zaman/clinicbook/services/booking-service/internal/booking"
	"github.com/md-rashed-zaman/clinicbook/services/booking-service/internal/model"
	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/metadata"
	"google.golang.org/grpc/status"
	"google.golang.org/protobuf/types/known/structpb"
)

// Engine is the subset of the booking engine served over gRPC.
type Engine interface {
	GetFreeSlots(ctx context.Context, clinicID, doctorID, date, serviceID string) ([]availability.Slot, error)
	CheckConflict(ctx context.Context, doctorID, date string, start, end time.Time) (booking.ConflictResult, error)
	CreateBooking(ctx context.Context, req booking.CreateRequest) (model.Appointment, error)
}

type Server struct {
	engine Engine
	logger *slog.Logger
}

func NewServer(engine Engine, logger *slog.Logger) *Server {
	if logger == nil {
		logger = slog.Default()
	}
	return &Server{engine: engine, logger: logger}
}

func (s *Server) GetFreeSlots(ctx context.Context, in *structpb.Struct) (*structpb.Struct, error) {
	clinicID, doctorID, date := str(in, "clinic_id"), str(in, "doctor_id"), str(in, "date")
	if clinicID == "" || doctorID == "" || date == "" {
		return nil, status.Error(codes.InvalidArgument, "clinic_id, doctor_id and date are required")
	}
	slots, err := s.engine.GetFreeSlots(ctx, clinicID, doctorID, date, str(in, "service_id"))
	if err != nil {
		return nil, s.toStatus(ctx, err)
	}
	items := make([]any, 0, len(slots))
	for _, sl := range slots {
		items = append(items, slotFields(sl))
	}
	return structpb.NewStruct(map[string]any{"date": date, "slots": items})
}

func (s *Server) CheckConflict(ctx context.Context, in *structpb.Struct) (*structpb.Struct, error) {
	start, err := instant(in, "start_utc")
	if err != nil {
		return nil, err
	}
	end, err := instant(in, "end_utc")
	if err != nil {
		return nil, err
	}
	res, err := s.engine.CheckConflict(ctx, str(in, "doctor_id"), str(in, "date"), start, end)
	if err != nil {
		return nil, s.toStatus(ctx, err)
	}
	out := map[string]any{"free": res.Free}
	if !res.Free {
		out["conflicting_appointment_id"] = res.ConflictingAppointmentID
	}
	return structpb.NewStruct(out)
}

func (s *Server) CreateBooking(ctx context.Context, in *structpb.Struct) (*structpb.Struct, error) {
	start, err := instant(in, "start_utc")
	if err != nil {
		return nil, err
	}
	appt, err := s.engine.CreateBooking(ctx, booking.CreateRequest{
		ClinicID:       str(in, "clinic_id"),
		DoctorID:       str(in, "doctor_id"),
		ServiceID:      str(in, "service_id"),
		StartUTC:       start,
		PatientRef:     str(in, "patient_ref"),
		CreatedVia:     str(in, "created_via"),
		Status:         model.Status(str(in, "status")),
		Notes:          str(in, "notes"),
		IdempotencyKey: str(in, "idempotency_key"),
	})
	if err != nil {
		return nil, s.toStatus(ctx, err)
	}
	return structpb.NewStruct(map[string]any{
		"appointment_id": appt.ID,
		"clinic_id":      appt.ClinicID,
		"doctor_id":      appt.DoctorID,
		"service_id":     appt.ServiceID,
		"date":           appt.Date,
		"start_utc":      appt.StartUTC.UTC().Format(time.RFC3339),
		"end_utc":        appt.EndUTC.UTC().Format(time.RFC3339),
		"status":         string(appt.Status),
	})
}

func (s *Server) toStatus(ctx context.Context, err error) error {
	var (
		conflict *booking.ConflictError
		notFound *booking.NotFoundError
	)
	switch {
	case errors.As(err, &conflict):
		if conflict.AppointmentID != "" {
			_ = grpc.SetTrailer(ctx, metadata.Pairs(ConflictTrailerKey, conflict.AppointmentID))
		}
		return status.Error(codes.AlreadyExists, err.Error())
	case errors.As(err, &notFound):
		return status.Error(codes.NotFound, err.Error())
	case errors.Is(err, booking.ErrBusy):
		return status.Error(codes.Unavailable, err.Error())
	case errors.Is(err, booking.ErrNoAvailability):
		return status.Error(codes.NotFound, err.Error())
	case errors.Is(err, booking.ErrOutsideHours), errors.Is(err, booking.ErrOutsideHorizon),
		errors.Is(err, booking.ErrInvalidTransition):
		return status.Error(codes.FailedPrecondition, err.Error())
	case errors.Is(err, booking.ErrInvalidRequest):
		return status.Error(codes.InvalidArgument, err.Error())
	}
	s.logger.Error("grpc booking call failed", "err", err)
	return status.Error(codes.Internal, "internal error")
}

func slotFields(sl availability.Slot) map[string]any {
	return map[string]any{
		"slot_id":          sl.ID(),
		"doctor_id":        sl.DoctorID,
		"date":             sl.Date.String(),
		"start_utc":        sl.StartUTC.UTC().Format(time.RFC3339),
		"end_utc":          sl.EndUTC.UTC().Format(time.RFC3339),
		"start_local":      sl.StartLocal,
		"end_local":        sl.EndLocal,
		"duration_minutes": sl.DurationMinutes,
	}
}

func str(in *structpb.Struct, key string) string {
	return in.GetFields()[key].GetStringValue()
}

func instant(in *structpb.Struct, key string) (time.Time, error) {
	raw := str(in, key)
	t, err := time.Parse(time.RFC3339, raw)
	if err != nil {
		return time.Time{}, status.Errorf(codes.InvalidArgument, "%s must be an RFC3339 timestamp", key)
	}
	return t.UTC(), nil
}

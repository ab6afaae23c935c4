package grpcapi

import (
	"context"
	"time"

	"google.golang.org/grpc"
	"google.golang.org/grpc/metadata"
	"google.golang.org/grpc/status"
	"google.golang.org/protobuf/types/known/structpb"
)

// Slot is a free slot as seen by a remote caller.
type Slot struct {
	ID              string
	DoctorID        string
	Date            string
	StartUTC        string
	EndUTC          string
	StartLocal      string
	EndLocal        string
	DurationMinutes int
}

type Booking struct {
	AppointmentID string
	Date          string
	StartUTC      string
	EndUTC        string
	Status        string
}

type BookingRequest struct {
	ClinicID       string
	DoctorID       string
	ServiceID      string
	StartUTC       time.Time
	PatientRef     string
	CreatedVia     string
	IdempotencyKey string
}

// ConflictError is returned by Client.CreateBooking when the time is taken.
type ConflictError struct {
	AppointmentID string
	Message       string
}

func (e *ConflictError) Error() string { return e.Message }

type Client struct {
	cc grpc.ClientConnInterface
}

func NewClient(cc grpc.ClientConnInterface) *Client {
	return &Client{cc: cc}
}

func (c *Client) call(ctx context.Context, method string, in map[string]any, opts ...grpc.CallOption) (*structpb.Struct, error) {
	req, err := structpb.NewStruct(in)
	if err != nil {
		return nil, err
	}
	out := new(structpb.Struct)
	if err := c.cc.Invoke(ctx, fullMethod(method), req, out, opts...); err != nil {
		return nil, err
	}
	return out, nil
}

func (c *Client) GetFreeSlots(ctx context.Context, clinicID, doctorID, date, serviceID string) ([]Slot, error) {
	out, err := c.call(ctx, methodGetFreeSlots, map[string]any{
		"clinic_id":  clinicID,
		"doctor_id":  doctorID,
		"date":       date,
		"service_id": serviceID,
	})
	if err != nil {
		return nil, err
	}
	values := out.GetFields()["slots"].GetListValue().GetValues()
	slots := make([]Slot, 0, len(values))
	for _, v := range values {
		s := v.GetStructValue()
		slots = append(slots, Slot{
			ID:              str(s, "slot_id"),
			DoctorID:        str(s, "doctor_id"),
			Date:            str(s, "date"),
			StartUTC:        str(s, "start_utc"),
			EndUTC:          str(s, "end_utc"),
			StartLocal:      str(s, "start_local"),
			EndLocal:        str(s, "end_local"),
			DurationMinutes: int(s.GetFields()["duration_minutes"].GetNumberValue()),
		})
	}
	return slots, nil
}

// CheckConflict returns the earliest conflicting appointment id, or "" when free.
func (c *Client) CheckConflict(ctx context.Context, doctorID, date string, start, end time.Time) (string, error) {
	out, err := c.call(ctx, methodCheckConflict, map[string]any{
		"doctor_id": doctorID,
		"date":      date,
		"start_utc": start.UTC().Format(time.RFC3339),
		"end_utc":   end.UTC().Format(time.RFC3339),
	})
	if err != nil {
		return "", err
	}
	if out.GetFields()["free"].GetBoolValue() {
		return "", nil
	}
	return str(out, "conflicting_appointment_id"), nil
}

func (c *Client) CreateBooking(ctx context.Context, req BookingRequest) (Booking, error) {
	var trailer metadata.MD
	out, err := c.call(ctx, methodCreateBooking, map[string]any{
		"clinic_id":       req.ClinicID,
		"doctor_id":       req.DoctorID,
		"service_id":      req.ServiceID,
		"start_utc":       req.StartUTC.UTC().Format(time.RFC3339),
		"patient_ref":     req.PatientRef,
		"created_via":     req.CreatedVia,
		"idempotency_key": req.IdempotencyKey,
	}, grpc.Trailer(&trailer))
	if err != nil {
		if ids := trailer.Get(ConflictTrailerKey); len(ids) > 0 {
			return Booking{}, &ConflictError{AppointmentID: ids[0], Message: status.Convert(err).Message()}
		}
		return Booking{}, err
	}
	return Booking{
		AppointmentID: str(out, "appointment_id"),
		Date:          str(out, "date"),
		StartUTC:      str(out, "start_utc"),
		EndUTC:        str(out, "end_utc"),
		Status:        str(out, "status"),
	}, nil
}

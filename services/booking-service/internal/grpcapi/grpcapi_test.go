package grpcapi

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"net"
	"testing"
	"time"
	_ "time/tzdata"

	"github.com/md-rashed-zaman/clinicbook/libs/grpcx"
	"github.com/md-rashed-zaman/clinicbook/libs/lock"
	"github.com/md-rashed-zaman/clinicbook/services/booking-service/internal/booking"
	"github.com/md-rashed-zaman/clinicbook/services/booking-service/internal/reference"
	"github.com/md-rashed-zaman/clinicbook/services/booking-service/internal/schedule"
	"github.com/md-rashed-zaman/clinicbook/services/booking-service/internal/storage"
	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
	"google.golang.org/grpc/test/bufconn"
)

func startServer(t *testing.T) (*Client, *time.Location) {
	t.Helper()
	loc, err := time.LoadLocation("Asia/Kolkata")
	if err != nil {
		t.Fatalf("load location: %v", err)
	}
	hours := schedule.NewWeeklySchedule(
		schedule.DayHours{Start: schedule.NewClock(9, 0), End: schedule.NewClock(17, 0)},
		nil, true,
		schedule.Lunch{Enabled: true, Start: schedule.NewClock(13, 0), End: schedule.NewClock(14, 0)},
	)
	catalog, err := reference.NewStatic(
		[]schedule.Clinic{{ID: "sunrise", Location: loc, Hours: hours, Policy: schedule.SlotPolicy{SlotWidth: 15 * time.Minute, MaxAdvanceDays: 7}}},
		[]reference.Doctor{{ID: "dr-rao", ClinicID: "sunrise", Active: true}},
		nil,
	)
	if err != nil {
		t.Fatalf("catalog: %v", err)
	}
	now := time.Date(2025, 3, 3, 6, 0, 0, 0, loc)
	engine := booking.New(catalog, storage.NewMemoryStore(time.Second), lock.NewKeyed(), nil, nil, booking.Config{
		Now: func() time.Time { return now },
	})

	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	lis := bufconn.Listen(1 << 20)
	srv := grpcx.NewServer(logger)
	Register(srv, NewServer(engine, logger))
	go func() { _ = srv.Serve(lis) }()
	t.Cleanup(srv.Stop)

	conn, err := grpcx.Dial("passthrough:///bufnet", grpcx.DialOptions{ServiceConfig: ReadRetryServiceConfig}, grpc.WithContextDialer(func(ctx context.Context, _ string) (net.Conn, error) {
		return lis.DialContext(ctx)
	}))
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	t.Cleanup(func() { _ = conn.Close() })
	return NewClient(conn), loc
}

func TestGetFreeSlotsOverGRPC(t *testing.T) {
	client, _ := startServer(t)
	slots, err := client.GetFreeSlots(context.Background(), "sunrise", "dr-rao", "2025-03-04", "")
	if err != nil {
		t.Fatalf("GetFreeSlots: %v", err)
	}
	if len(slots) != 28 {
		t.Fatalf("expected 28 slots, got %d", len(slots))
	}
	if slots[0].ID != "20250304_dr-rao_1" || slots[0].DurationMinutes != 15 || slots[0].StartUTC != "2025-03-04T03:30:00Z" {
		t.Fatalf("unexpected first slot %+v", slots[0])
	}
}

func TestCreateBookingConflictOverGRPC(t *testing.T) {
	client, loc := startServer(t)
	ctx := context.Background()
	start := time.Date(2025, 3, 4, 10, 0, 0, 0, loc)

	first, err := client.CreateBooking(ctx, BookingRequest{ClinicID: "sunrise", DoctorID: "dr-rao", StartUTC: start})
	if err != nil {
		t.Fatalf("CreateBooking: %v", err)
	}
	if first.Status != "confirmed" || first.Date != "2025-03-04" {
		t.Fatalf("unexpected booking %+v", first)
	}

	_, err = client.CreateBooking(ctx, BookingRequest{ClinicID: "sunrise", DoctorID: "dr-rao", StartUTC: start})
	var ce *ConflictError
	if !errors.As(err, &ce) || ce.AppointmentID != first.AppointmentID {
		t.Fatalf("expected conflict naming %s, got %v", first.AppointmentID, err)
	}

	hit, err := client.CheckConflict(ctx, "dr-rao", "2025-03-04", start.Add(-15*time.Minute), start)
	if err != nil || hit != "" {
		t.Fatalf("touching interval should be free, got %q (err=%v)", hit, err)
	}
	hit, err = client.CheckConflict(ctx, "dr-rao", "2025-03-04", start.Add(-5*time.Minute), start.Add(5*time.Minute))
	if err != nil || hit != first.AppointmentID {
		t.Fatalf("expected conflict with %s, got %q (err=%v)", first.AppointmentID, hit, err)
	}
}

func TestStatusCodes(t *testing.T) {
	client, _ := startServer(t)
	_, err := client.GetFreeSlots(context.Background(), "sunrise", "dr-nobody", "2025-03-04", "")
	if status.Code(err) != codes.NotFound {
		t.Fatalf("expected NotFound, got %v", err)
	}
	_, err = client.GetFreeSlots(context.Background(), "sunrise", "", "2025-03-04", "")
	if status.Code(err) != codes.InvalidArgument {
		t.Fatalf("expected InvalidArgument, got %v", err)
	}
}

package reference

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
	_ "time/tzdata"

	"github.com/md-rashed-zaman/clinicbook/services/booking-service/internal/schedule"
	pgxmock "github.com/pashagolub/pgxmock/v4"
)

const clinicYAML = `
clinics:
  - id: sunrise
    name: Sunrise Clinic
    timezone: Asia/Kolkata
    hours:
      weekdays: {start: "09:00", end: "17:00"}
      saturday: {start: "09:00", end: "13:00"}
      sunday_closed: true
      lunch: {start: "13:00", end: "14:00"}
      days:
        wednesday: {start: "10:00", end: "14:00"}
      closed_dates:
        - date: "2025-03-14"
          reason: Holi
    policy:
      slot_minutes: 15
      buffer_minutes: 0
    doctors:
      - id: dr-rao
        name: Dr. Rao
        specialization: General
      - id: dr-old
        name: Dr. Old
        active: false
    services:
      - id: consult
        name: Consultation
        duration_minutes: 15
      - id: procedure
        name: Procedure
        duration_minutes: 45
        after_buffer_minutes: 10
`

func TestLoadYAML(t *testing.T) {
	cat, err := Load(strings.NewReader(clinicYAML), "yaml")
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	ctx := context.Background()
	clinic, err := cat.Clinic(ctx, "sunrise")
	if err != nil {
		t.Fatalf("Clinic: %v", err)
	}
	if clinic.Location.String() != "Asia/Kolkata" {
		t.Fatalf("unexpected location %s", clinic.Location)
	}
	if clinic.Policy.SlotWidth != 15*time.Minute || clinic.Policy.Buffer != 0 || clinic.Policy.MaxAdvanceDays != schedule.DefaultMaxAdvanceDays {
		t.Fatalf("unexpected policy %+v", clinic.Policy)
	}

	monday, _ := clinic.Hours.Blocks(schedule.Date{Year: 2025, Month: time.March, Day: 3})
	if len(monday) != 2 {
		t.Fatalf("expected lunch split on monday, got %v", monday)
	}
	wednesday, _ := clinic.Hours.Blocks(schedule.Date{Year: 2025, Month: time.March, Day: 5})
	if len(wednesday) != 1 || wednesday[0].Start != schedule.NewClock(10, 0) {
		t.Fatalf("expected wednesday override, got %v", wednesday)
	}
	saturday, _ := clinic.Hours.Blocks(schedule.Date{Year: 2025, Month: time.March, Day: 8})
	if len(saturday) != 1 || saturday[0].End != schedule.NewClock(13, 0) {
		t.Fatalf("unexpected saturday %v", saturday)
	}
	if reason, ok := clinic.Hours.ClosedOn(schedule.Date{Year: 2025, Month: time.March, Day: 14}); !ok || reason != "Holi" {
		t.Fatalf("expected Holi closure, got %q %v", reason, ok)
	}

	doctors, err := cat.Doctors(ctx, "sunrise")
	if err != nil || len(doctors) != 1 || doctors[0].ID != "dr-rao" {
		t.Fatalf("expected only active doctor, got %+v (err=%v)", doctors, err)
	}
	proc, err := cat.Service(ctx, "sunrise", "procedure")
	if err != nil {
		t.Fatalf("Service: %v", err)
	}
	if proc.RequiredSlots(clinic.Policy.SlotWidth) != 3 || proc.AfterBuffer != 10*time.Minute {
		t.Fatalf("unexpected service %+v", proc)
	}
}

func TestLoadFileDefaults(t *testing.T) {
	path := filepath.Join(t.TempDir(), "clinics.yaml")
	doc := `
clinics:
  - id: plain
    hours:
      weekdays: {start: "08:00", end: "12:00"}
`
	if err := os.WriteFile(path, []byte(doc), 0o600); err != nil {
		t.Fatalf("write: %v", err)
	}
	cat, err := LoadFile(path)
	if err != nil {
		t.Fatalf("LoadFile: %v", err)
	}
	clinic, _ := cat.Clinic(context.Background(), "plain")
	if clinic.Location.String() != schedule.DefaultTimezone {
		t.Fatalf("expected default timezone, got %s", clinic.Location)
	}
	if clinic.Policy != schedule.DefaultSlotPolicy() {
		t.Fatalf("expected default policy, got %+v", clinic.Policy)
	}
	if !clinic.Hours.Days[time.Sunday].Closed || !clinic.Hours.Days[time.Saturday].Closed {
		t.Fatal("weekend should default to closed")
	}
}

func TestLoadRejectsMalformedHours(t *testing.T) {
	cases := map[string]string{
		"inverted": `
clinics:
  - id: bad
    hours:
      weekdays: {start: "17:00", end: "09:00"}
`,
		"lunch outside": `
clinics:
  - id: bad
    hours:
      weekdays: {start: "09:00", end: "17:00"}
      lunch: {start: "08:00", end: "10:00"}
`,
		"bad clock": `
clinics:
  - id: bad
    hours:
      weekdays: {start: "9am", end: "17:00"}
`,
		"unknown zone": `
clinics:
  - id: bad
    timezone: Mars/Olympus
    hours:
      weekdays: {start: "09:00", end: "17:00"}
`,
	}
	for name, doc := range cases {
		t.Run(name, func(t *testing.T) {
			_, err := Load(strings.NewReader(doc), "yaml")
			if !errors.Is(err, schedule.ErrInvalidConfig) {
				t.Fatalf("expected config error, got %v", err)
			}
		})
	}
}

func TestStaticNotFound(t *testing.T) {
	cat, err := Load(strings.NewReader(clinicYAML), "yaml")
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	_, err = cat.Doctor(context.Background(), "dr-nobody")
	var nf *NotFoundError
	if !errors.As(err, &nf) || nf.Kind != "doctor" || !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected doctor NotFoundError, got %v", err)
	}
	if _, err := cat.Service(context.Background(), "sunrise", "massage"); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected service not found, got %v", err)
	}
	if _, err := cat.Clinic(context.Background(), "moonrise"); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected clinic not found, got %v", err)
	}
}

func TestPostgresCatalogClinic(t *testing.T) {
	mock, err := pgxmock.NewPool()
	if err != nil {
		t.Fatalf("failed to create pgx mock: %v", err)
	}
	defer mock.Close()

	mock.ExpectQuery("FROM clinics").WithArgs("sunrise").
		WillReturnRows(pgxmock.NewRows([]string{"id", "name", "timezone", "slot_minutes", "buffer_minutes", "max_advance_days"}).
			AddRow("sunrise", "Sunrise Clinic", "Asia/Kolkata", 15, 5, 7))
	hourCols := []string{"weekday", "is_closed", "start_time", "end_time", "lunch_enabled", "lunch_start", "lunch_end"}
	hours := pgxmock.NewRows(hourCols)
	for wd := 1; wd <= 5; wd++ {
		hours.AddRow(wd, false, "09:00", "17:00", true, "13:00", "14:00")
	}
	hours.AddRow(6, false, "09:00", "13:00", false, "", "")
	mock.ExpectQuery("FROM clinic_hours").WithArgs("sunrise").WillReturnRows(hours)
	mock.ExpectQuery("FROM clinic_closed_dates").WithArgs("sunrise").
		WillReturnRows(pgxmock.NewRows([]string{"closed_date", "reason"}).AddRow("2025-03-14", "Holi"))

	clinic, err := NewPostgresCatalog(mock).Clinic(context.Background(), "sunrise")
	if err != nil {
		t.Fatalf("Clinic: %v", err)
	}
	if !clinic.Hours.Days[time.Sunday].Closed {
		t.Fatal("sunday without a row must be closed")
	}
	blocks, err := clinic.Hours.Blocks(schedule.Date{Year: 2025, Month: time.March, Day: 4})
	if err != nil || len(blocks) != 2 {
		t.Fatalf("expected lunch split, got %v (err=%v)", blocks, err)
	}
	if _, closed := clinic.Hours.ClosedOn(schedule.Date{Year: 2025, Month: time.March, Day: 14}); !closed {
		t.Fatal("expected closed date")
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("unmet expectations: %v", err)
	}
}

func TestPostgresCatalogServiceNotFound(t *testing.T) {
	mock, err := pgxmock.NewPool()
	if err != nil {
		t.Fatalf("failed to create pgx mock: %v", err)
	}
	defer mock.Close()
	mock.ExpectQuery("FROM services").WithArgs("sunrise", "massage").
		WillReturnRows(pgxmock.NewRows([]string{"id", "name", "duration_minutes", "before_buffer_minutes", "after_buffer_minutes"}))

	_, err = NewPostgresCatalog(mock).Service(context.Background(), "sunrise", "massage")
	if !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected not found, got %v", err)
	}
}

package main

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/md-rashed-zaman/clinicbook/services/booking-service/internal/model"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const everyDayClinic = `
clinics:
  - id: harbor
    name: Harbor Clinic
    timezone: UTC
    hours:
      weekdays: {start: "09:00", end: "12:00"}
      saturday: {start: "09:00", end: "12:00"}
      sunday_closed: false
      days:
        sunday: {start: "09:00", end: "12:00"}
    policy:
      slot_minutes: 30
      buffer_minutes: 0
    doctors:
      - id: dr-sen
        name: Dr. Sen
`

func writeClinicFile(t *testing.T) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "clinics.yaml")
	require.NoError(t, os.WriteFile(path, []byte(everyDayClinic), 0o600))
	return path
}

func execute(t *testing.T, args ...string) (string, error) {
	t.Helper()
	var out bytes.Buffer
	cmd := newRootCmd(&out)
	cmd.SetErr(&bytes.Buffer{})
	cmd.SetArgs(args)
	err := cmd.Execute()
	return out.String(), err
}

func tomorrow() time.Time {
	now := time.Now().UTC()
	return time.Date(now.Year(), now.Month(), now.Day()+1, 0, 0, 0, 0, time.UTC)
}

func TestSlotsOffline(t *testing.T) {
	cfg := writeClinicFile(t)
	date := tomorrow().Format("2006-01-02")

	out, err := execute(t, "--config", cfg, "--json", "slots", "--clinic", "harbor", "--doctor", "dr-sen", "--date", date)
	require.NoError(t, err)

	var rows []slotRow
	require.NoError(t, json.Unmarshal([]byte(out), &rows))
	require.Len(t, rows, 6)
	assert.Equal(t, date+"T09:00:00Z", rows[0].StartLocal)
	assert.Equal(t, 30, rows[0].Minutes)
	assert.Equal(t, date+"T11:30:00Z", rows[5].StartLocal)
}

func TestSlotsTable(t *testing.T) {
	cfg := writeClinicFile(t)
	date := tomorrow().Format("2006-01-02")

	out, err := execute(t, "--config", cfg, "slots", "--clinic", "harbor", "--doctor", "dr-sen", "--date", date)
	require.NoError(t, err)
	assert.Contains(t, out, "SLOT")
	assert.Contains(t, out, "6 free")
}

func TestReserveOffline(t *testing.T) {
	cfg := writeClinicFile(t)
	start := tomorrow().Add(10 * time.Hour).Format(time.RFC3339)

	out, err := execute(t, "--config", cfg, "--json", "reserve",
		"--clinic", "harbor", "--doctor", "dr-sen", "--start", start, "--patient", "p-1")
	require.NoError(t, err)

	var res reservation
	require.NoError(t, json.Unmarshal([]byte(out), &res))
	assert.NotEmpty(t, res.AppointmentID)
	assert.Equal(t, "confirmed", res.Status)
	assert.Equal(t, start, res.StartUTC)
}

func TestLocalReserveRecordsCLIOrigin(t *testing.T) {
	b, err := newLocalBackend(writeClinicFile(t), slog.New(slog.NewTextHandler(io.Discard, nil)))
	require.NoError(t, err)
	defer func() { _ = b.Close() }()

	res, err := b.Reserve(context.Background(), reserveInput{
		ClinicID:   "harbor",
		DoctorID:   "dr-sen",
		Start:      tomorrow().Add(9 * time.Hour),
		PatientRef: "p-2",
	})
	require.NoError(t, err)
	appt, err := b.engine.Get(context.Background(), res.AppointmentID)
	require.NoError(t, err)
	assert.Equal(t, model.CreatedViaCLI, appt.CreatedVia)
}

func TestCheckOffline(t *testing.T) {
	cfg := writeClinicFile(t)
	day := tomorrow()

	out, err := execute(t, "--config", cfg, "check", "--doctor", "dr-sen", "--date", day.Format("2006-01-02"),
		"--start", day.Add(9*time.Hour).Format(time.RFC3339), "--end", day.Add(10*time.Hour).Format(time.RFC3339))
	require.NoError(t, err)
	assert.Equal(t, "free", strings.TrimSpace(out))
}

func TestBackendSelection(t *testing.T) {
	_, err := execute(t, "slots", "--clinic", "harbor", "--doctor", "dr-sen", "--date", "2030-01-01")
	require.Error(t, err)

	_, err = execute(t, "--addr", "localhost:9083", "--config", "x.yaml", "slots", "--clinic", "harbor", "--doctor", "dr-sen", "--date", "2030-01-01")
	require.Error(t, err)
}

func TestReserveRejectsBadStart(t *testing.T) {
	cfg := writeClinicFile(t)
	_, err := execute(t, "--config", cfg, "reserve", "--clinic", "harbor", "--doctor", "dr-sen", "--start", "tomorrow", "--patient", "p-1")
	require.Error(t, err)
}

package reference

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/md-rashed-zaman/clinicbook/services/booking-service/internal/schedule"
)

// Querier is the subset of pgxpool.Pool (and pgxmock) the catalog reads through.
type Querier interface {
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

// PostgresCatalog reads reference records from the clinics, clinic_hours,
// clinic_closed_dates, doctors and services tables. Each clinic is validated
// as it is loaded.
type PostgresCatalog struct {
	db Querier
}

func NewPostgresCatalog(db Querier) *PostgresCatalog {
	return &PostgresCatalog{db: db}
}

func (c *PostgresCatalog) Clinic(ctx context.Context, id string) (schedule.Clinic, error) {
	var (
		clinic                               schedule.Clinic
		tz                                   string
		slotMinutes, bufferMinutes, maxAhead int
	)
	err := c.db.QueryRow(ctx, `
		SELECT id, name, timezone, slot_minutes, buffer_minutes, max_advance_days
		FROM clinics
		WHERE id = $1
	`, id).Scan(&clinic.ID, &clinic.Name, &tz, &slotMinutes, &bufferMinutes, &maxAhead)
	if errors.Is(err, pgx.ErrNoRows) {
		return schedule.Clinic{}, &NotFoundError{Kind: "clinic", ID: id}
	}
	if err != nil {
		return schedule.Clinic{}, err
	}
	if clinic.Location, err = schedule.LoadLocation(tz); err != nil {
		return schedule.Clinic{}, err
	}
	clinic.Policy = schedule.SlotPolicy{
		SlotWidth:      minutes(slotMinutes),
		Buffer:         minutes(bufferMinutes),
		MaxAdvanceDays: maxAhead,
	}

	if err := c.loadHours(ctx, &clinic); err != nil {
		return schedule.Clinic{}, err
	}
	if err := c.loadClosedDates(ctx, &clinic); err != nil {
		return schedule.Clinic{}, err
	}
	if err := clinic.Validate(); err != nil {
		return schedule.Clinic{}, fmt.Errorf("clinic %q: %w", id, err)
	}
	return clinic, nil
}

// Weekdays without a clinic_hours row are closed.
func (c *PostgresCatalog) loadHours(ctx context.Context, clinic *schedule.Clinic) error {
	for i := range clinic.Hours.Days {
		clinic.Hours.Days[i] = schedule.DayHours{Closed: true}
	}
	rows, err := c.db.Query(ctx, `
		SELECT weekday, is_closed,
			COALESCE(to_char(start_time, 'HH24:MI'), ''), COALESCE(to_char(end_time, 'HH24:MI'), ''),
			lunch_enabled,
			COALESCE(to_char(lunch_start, 'HH24:MI'), ''), COALESCE(to_char(lunch_end, 'HH24:MI'), '')
		FROM clinic_hours
		WHERE clinic_id = $1
	`, clinic.ID)
	if err != nil {
		return err
	}
	defer rows.Close()
	for rows.Next() {
		var (
			weekday                          int
			closed, lunchEnabled             bool
			start, end, lunchStart, lunchEnd string
		)
		if err := rows.Scan(&weekday, &closed, &start, &end, &lunchEnabled, &lunchStart, &lunchEnd); err != nil {
			return err
		}
		if weekday < 0 || weekday > 6 {
			return &schedule.ConfigError{Field: "clinic_hours.weekday", Reason: fmt.Sprintf("out of range: %d", weekday)}
		}
		field := fmt.Sprintf("clinics.%s.hours.%s", clinic.ID, time.Weekday(weekday))
		day := fileDay{Closed: closed, Start: start, End: end}
		if lunchEnabled {
			day.Lunch = &fileRange{Start: lunchStart, End: lunchEnd}
		}
		hours, err := day.dayHours(field)
		if err != nil {
			return err
		}
		clinic.Hours.Days[weekday] = hours
	}
	return rows.Err()
}

func (c *PostgresCatalog) loadClosedDates(ctx context.Context, clinic *schedule.Clinic) error {
	rows, err := c.db.Query(ctx, `
		SELECT closed_date::text, COALESCE(reason, '')
		FROM clinic_closed_dates
		WHERE clinic_id = $1
	`, clinic.ID)
	if err != nil {
		return err
	}
	defer rows.Close()
	for rows.Next() {
		var raw, reason string
		if err := rows.Scan(&raw, &reason); err != nil {
			return err
		}
		date, err := schedule.ParseDate(raw)
		if err != nil {
			return &schedule.ConfigError{Field: "clinic_closed_dates", Reason: err.Error()}
		}
		clinic.Hours.Close(date, reason)
	}
	return rows.Err()
}

func (c *PostgresCatalog) Doctor(ctx context.Context, id string) (Doctor, error) {
	var d Doctor
	err := c.db.QueryRow(ctx, `
		SELECT id, clinic_id, name, COALESCE(specialization, ''), is_active
		FROM doctors
		WHERE id = $1
	`, id).Scan(&d.ID, &d.ClinicID, &d.Name, &d.Specialization, &d.Active)
	if errors.Is(err, pgx.ErrNoRows) {
		return Doctor{}, &NotFoundError{Kind: "doctor", ID: id}
	}
	return d, err
}

func (c *PostgresCatalog) Doctors(ctx context.Context, clinicID string) ([]Doctor, error) {
	rows, err := c.db.Query(ctx, `
		SELECT id, clinic_id, name, COALESCE(specialization, ''), is_active
		FROM doctors
		WHERE clinic_id = $1 AND is_active
		ORDER BY id
	`, clinicID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []Doctor
	for rows.Next() {
		var d Doctor
		if err := rows.Scan(&d.ID, &d.ClinicID, &d.Name, &d.Specialization, &d.Active); err != nil {
			return nil, err
		}
		out = append(out, d)
	}
	return out, rows.Err()
}

func (c *PostgresCatalog) Service(ctx context.Context, clinicID, serviceID string) (schedule.ServiceSpec, error) {
	var (
		spec                          schedule.ServiceSpec
		duration, beforeBuf, afterBuf int
	)
	err := c.db.QueryRow(ctx, `
		SELECT id, name, duration_minutes, before_buffer_minutes, after_buffer_minutes
		FROM services
		WHERE clinic_id = $1 AND id = $2 AND is_active
	`, clinicID, serviceID).Scan(&spec.ID, &spec.Name, &duration, &beforeBuf, &afterBuf)
	if errors.Is(err, pgx.ErrNoRows) {
		return schedule.ServiceSpec{}, &NotFoundError{Kind: "service", ID: serviceID}
	}
	if err != nil {
		return schedule.ServiceSpec{}, err
	}
	spec.Duration = minutes(duration)
	spec.BeforeBuffer = minutes(beforeBuf)
	spec.AfterBuffer = minutes(afterBuf)
	if err := spec.Validate(); err != nil {
		return schedule.ServiceSpec{}, err
	}
	return spec, nil
}

package storage

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/md-rashed-zaman/clinicbook/services/booking-service/internal/model"
	"github.com/md-rashed-zaman/clinicbook/services/booking-service/internal/outbox"
)

// Pool is the subset of pgxpool.Pool (and pgxmock) the store uses.
type Pool interface {
	Begin(ctx context.Context) (pgx.Tx, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
}

// PostgresStore keeps appointments in Postgres. Writers for one doctor are
// serialized by a transaction-scoped advisory lock; the appointments_no_overlap
// exclusion constraint rejects anything that slips past it.
type PostgresStore struct {
	pool     Pool
	outbox   *outbox.Repository
	lockWait time.Duration
}

func NewPostgresStore(pool Pool, outboxRepo *outbox.Repository, lockWait time.Duration) *PostgresStore {
	if lockWait <= 0 {
		lockWait = 2 * time.Second
	}
	if outboxRepo == nil {
		outboxRepo = outbox.NewRepository()
	}
	return &PostgresStore{pool: pool, outbox: outboxRepo, lockWait: lockWait}
}

const appointmentColumns = `id, clinic_id, doctor_id, service_id, patient_ref, appt_date::text,
	start_utc, end_utc, block_start_utc, block_end_utc, status, created_via,
	COALESCE(notes, ''), COALESCE(cancel_reason, ''), COALESCE(rescheduled_from, ''),
	COALESCE(idempotency_key, ''), cancelled_at, created_at, updated_at`

const activeStatuses = `status IN ('confirmed', 'pending')`

func (s *PostgresStore) ListActive(ctx context.Context, doctorID string, from, to time.Time) ([]model.Appointment, error) {
	return s.query(ctx, `
		SELECT `+appointmentColumns+`
		FROM appointments
		WHERE doctor_id = $1
			AND `+activeStatuses+`
			AND block_start_utc < $3
			AND block_end_utc > $2
		ORDER BY block_start_utc ASC, id ASC
	`, doctorID, from, to)
}

func (s *PostgresStore) Get(ctx context.Context, id string) (model.Appointment, error) {
	appts, err := s.query(ctx, `
		SELECT `+appointmentColumns+`
		FROM appointments
		WHERE id = $1
	`, id)
	if err != nil {
		return model.Appointment{}, err
	}
	if len(appts) == 0 {
		return model.Appointment{}, ErrNotFound
	}
	return appts[0], nil
}

func (s *PostgresStore) List(ctx context.Context, f Filter) ([]model.Appointment, error) {
	var (
		where []string
		args  []any
	)
	add := func(cond string, v any) {
		args = append(args, v)
		where = append(where, fmt.Sprintf(cond, len(args)))
	}
	if f.ClinicID != "" {
		add("clinic_id = $%d", f.ClinicID)
	}
	if f.DoctorID != "" {
		add("doctor_id = $%d", f.DoctorID)
	}
	if f.DateFrom != "" {
		add("appt_date >= $%d::date", f.DateFrom)
	}
	if f.DateTo != "" {
		add("appt_date <= $%d::date", f.DateTo)
	}
	if f.Status != "" {
		add("status = $%d", string(f.Status))
	}
	args = append(args, f.limit())

	sql := `SELECT ` + appointmentColumns + ` FROM appointments`
	if len(where) > 0 {
		sql += ` WHERE ` + strings.Join(where, " AND ")
	}
	sql += fmt.Sprintf(` ORDER BY start_utc ASC, id ASC LIMIT $%d`, len(args))
	return s.query(ctx, sql, args...)
}

func (s *PostgresStore) InDoctorTx(ctx context.Context, doctorID string, fn func(ctx context.Context, tx Tx) error) error {
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return err
	}
	defer func() { _ = tx.Rollback(ctx) }()

	if _, err := tx.Exec(ctx, `SELECT set_config('lock_timeout', $1, true)`, fmt.Sprintf("%dms", s.lockWait.Milliseconds())); err != nil {
		return mapError(err)
	}
	if _, err := tx.Exec(ctx, `SELECT pg_advisory_xact_lock(hashtextextended($1, 0))`, doctorID); err != nil {
		return mapError(err)
	}

	if err := fn(ctx, &pgTx{tx: tx, outbox: s.outbox}); err != nil {
		return err
	}
	return mapError(tx.Commit(ctx))
}

func (s *PostgresStore) query(ctx context.Context, sql string, args ...any) ([]model.Appointment, error) {
	rows, err := s.pool.Query(ctx, sql, args...)
	if err != nil {
		return nil, mapError(err)
	}
	return collect(rows)
}

type pgTx struct {
	tx     pgx.Tx
	outbox *outbox.Repository
}

func (t *pgTx) Overlapping(ctx context.Context, doctorID string, start, end time.Time, excludeID string) ([]model.Appointment, error) {
	rows, err := t.tx.Query(ctx, `
		SELECT `+appointmentColumns+`
		FROM appointments
		WHERE doctor_id = $1
			AND `+activeStatuses+`
			AND block_start_utc < $3
			AND block_end_utc > $2
			AND id <> $4
		ORDER BY block_start_utc ASC, id ASC
		FOR UPDATE
	`, doctorID, start, end, excludeID)
	if err != nil {
		return nil, mapError(err)
	}
	return collect(rows)
}

func (t *pgTx) GetForUpdate(ctx context.Context, id string) (model.Appointment, error) {
	rows, err := t.tx.Query(ctx, `
		SELECT `+appointmentColumns+`
		FROM appointments
		WHERE id = $1
		FOR UPDATE
	`, id)
	if err != nil {
		return model.Appointment{}, mapError(err)
	}
	appts, err := collect(rows)
	if err != nil {
		return model.Appointment{}, err
	}
	if len(appts) == 0 {
		return model.Appointment{}, ErrNotFound
	}
	return appts[0], nil
}

func (t *pgTx) FindByIdempotencyKey(ctx context.Context, clinicID, key string) (model.Appointment, bool, error) {
	if key == "" {
		return model.Appointment{}, false, nil
	}
	rows, err := t.tx.Query(ctx, `
		SELECT `+appointmentColumns+`
		FROM appointments
		WHERE clinic_id = $1 AND idempotency_key = $2
	`, clinicID, key)
	if err != nil {
		return model.Appointment{}, false, mapError(err)
	}
	appts, err := collect(rows)
	if err != nil || len(appts) == 0 {
		return model.Appointment{}, false, err
	}
	return appts[0], true, nil
}

func (t *pgTx) Insert(ctx context.Context, a model.Appointment) error {
	_, err := t.tx.Exec(ctx, `
		INSERT INTO appointments
			(id, clinic_id, doctor_id, service_id, patient_ref, appt_date,
			 start_utc, end_utc, block_start_utc, block_end_utc, status, created_via,
			 notes, rescheduled_from, idempotency_key, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6::date, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16, $16)
	`, a.ID, a.ClinicID, a.DoctorID, a.ServiceID, a.PatientRef, a.Date,
		a.StartUTC, a.EndUTC, a.BlockStartUTC, a.BlockEndUTC, string(a.Status), a.CreatedVia,
		nullable(a.Notes), nullable(a.RescheduledFrom), nullable(a.IdempotencyKey), a.CreatedAt)
	return mapError(err)
}

func (t *pgTx) SetStatus(ctx context.Context, id string, status model.Status, reason string, at time.Time) error {
	var (
		tag pgconn.CommandTag
		err error
	)
	if status == model.StatusCancelled {
		tag, err = t.tx.Exec(ctx, `
			UPDATE appointments
			SET status = $2, cancel_reason = $3, cancelled_at = $4, updated_at = $4
			WHERE id = $1
		`, id, string(status), nullable(reason), at)
	} else {
		tag, err = t.tx.Exec(ctx, `
			UPDATE appointments
			SET status = $2, updated_at = $3
			WHERE id = $1
		`, id, string(status), at)
	}
	if err != nil {
		return mapError(err)
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

func (t *pgTx) AppendEvent(ctx context.Context, evt outbox.Event) error {
	return mapError(t.outbox.Insert(ctx, t.tx, evt))
}

func collect(rows pgx.Rows) ([]model.Appointment, error) {
	defer rows.Close()
	var appts []model.Appointment
	for rows.Next() {
		var (
			a           model.Appointment
			status      string
			cancelledAt *time.Time
		)
		if err := rows.Scan(
			&a.ID,
			&a.ClinicID,
			&a.DoctorID,
			&a.ServiceID,
			&a.PatientRef,
			&a.Date,
			&a.StartUTC,
			&a.EndUTC,
			&a.BlockStartUTC,
			&a.BlockEndUTC,
			&status,
			&a.CreatedVia,
			&a.Notes,
			&a.CancelReason,
			&a.RescheduledFrom,
			&a.IdempotencyKey,
			&cancelledAt,
			&a.CreatedAt,
			&a.UpdatedAt,
		); err != nil {
			return nil, err
		}
		a.Status = model.Status(status)
		a.CancelledAt = cancelledAt
		a.StartUTC = a.StartUTC.UTC()
		a.EndUTC = a.EndUTC.UTC()
		a.BlockStartUTC = a.BlockStartUTC.UTC()
		a.BlockEndUTC = a.BlockEndUTC.UTC()
		appts = append(appts, a)
	}
	if rows.Err() != nil {
		return nil, mapError(rows.Err())
	}
	return appts, nil
}

func nullable(s string) any {
	if s == "" {
		return nil
	}
	return s
}

// Postgres error codes the store translates.
const (
	codeExclusionViolation = "23P01"
	codeUniqueViolation    = "23505"
	codeLockNotAvailable   = "55P03"
)

func mapError(err error) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, pgx.ErrNoRows) {
		return ErrNotFound
	}
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		switch pgErr.Code {
		case codeExclusionViolation:
			return fmt.Errorf("%w: %s", ErrOverlap, pgErr.ConstraintName)
		case codeUniqueViolation:
			return fmt.Errorf("%w: %s", ErrDuplicate, pgErr.ConstraintName)
		case codeLockNotAvailable:
			return ErrBusy
		}
	}
	return err
}

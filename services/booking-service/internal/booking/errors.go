package booking

import (
	"errors"
	"fmt"

	"github.com/md-rashed-zaman/clinicbook/services/booking-service/internal/reference"
	"github.com/md-rashed-zaman/clinicbook/services/booking-service/internal/schedule"
	"github.com/md-rashed-zaman/clinicbook/services/booking-service/internal/storage"
)

var (
	// ErrInvalidConfig marks malformed clinic hours or policy. It is an
	// operator error and is never coerced into an answer.
	ErrInvalidConfig = schedule.ErrInvalidConfig
	ErrNotFound      = errors.New("not found")
	ErrConflict      = errors.New("requested time overlaps an existing appointment")
	// ErrNoAvailability is an expected outcome, not a failure.
	ErrNoAvailability = errors.New("no free slot satisfies the request")
	// ErrBusy is retryable: the doctor's booking lock was held too long by another writer.
	ErrBusy              = errors.New("doctor is busy, retry later")
	ErrOutsideHours      = errors.New("requested time is outside clinic hours")
	ErrOutsideHorizon    = errors.New("requested date is outside the booking window")
	ErrInvalidTransition = errors.New("invalid appointment status transition")
	ErrInvalidRequest    = errors.New("invalid request")
)

// NotFoundError names the missing record. Kind is "clinic", "doctor",
// "service" or "appointment".
type NotFoundError struct {
	Kind string
	ID   string
}

func (e *NotFoundError) Error() string {
	return fmt.Sprintf("%s %q not found", e.Kind, e.ID)
}

func (e *NotFoundError) Unwrap() error { return ErrNotFound }

// ConflictError carries the earliest colliding appointment so callers can
// offer another time. AppointmentID is empty when the collision was only
// detected by the store at commit.
type ConflictError struct {
	AppointmentID string
}

func (e *ConflictError) Error() string {
	if e.AppointmentID == "" {
		return ErrConflict.Error()
	}
	return fmt.Sprintf("%s %s", ErrConflict, e.AppointmentID)
}

func (e *ConflictError) Unwrap() error { return ErrConflict }

func invalidf(format string, args ...any) error {
	return fmt.Errorf("%w: %s", ErrInvalidRequest, fmt.Sprintf(format, args...))
}

// fromReference converts catalog lookups into engine errors.
func fromReference(err error) error {
	var nf *reference.NotFoundError
	if errors.As(err, &nf) {
		return &NotFoundError{Kind: nf.Kind, ID: nf.ID}
	}
	return err
}

// fromStorage converts store errors into engine errors.
func fromStorage(err error, appointmentID string) error {
	switch {
	case err == nil:
		return nil
	case errors.Is(err, storage.ErrNotFound):
		return &NotFoundError{Kind: "appointment", ID: appointmentID}
	case errors.Is(err, storage.ErrOverlap), errors.Is(err, storage.ErrDuplicate):
		return &ConflictError{}
	case errors.Is(err, storage.ErrBusy):
		return ErrBusy
	}
	return err
}

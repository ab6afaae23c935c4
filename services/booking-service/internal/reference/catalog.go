// Package reference serves the read-only clinic, doctor and service records
// the booking engine consults.
package reference

import (
	"context"
	"errors"
	"fmt"

	"github.com/md-rashed-zaman/clinicbook/services/booking-service/internal/schedule"
)

var ErrNotFound = errors.New("reference record not found")

// NotFoundError names the missing record. Kind is "clinic", "doctor" or "service".
type NotFoundError struct {
	Kind string
	ID   string
}

func (e *NotFoundError) Error() string {
	return fmt.Sprintf("%s %q not found", e.Kind, e.ID)
}

func (e *NotFoundError) Unwrap() error { return ErrNotFound }

type Doctor struct {
	ID             string
	ClinicID       string
	Name           string
	Specialization string
	Active         bool
}

type Catalog interface {
	Clinic(ctx context.Context, id string) (schedule.Clinic, error)
	Doctor(ctx context.Context, id string) (Doctor, error)
	// Doctors lists the active doctors of a clinic.
	Doctors(ctx context.Context, clinicID string) ([]Doctor, error)
	Service(ctx context.Context, clinicID, serviceID string) (schedule.ServiceSpec, error)
}

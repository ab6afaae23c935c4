package outbox

import (
	"encoding/json"
	"time"

	"github.com/md-rashed-zaman/clinicbook/services/booking-service/internal/model"
)

// Event is the domain event envelope written to the outbox table.
// The Kafka topic name equals EventType (one topic per event type).
// PartitionKey orders delivery: appointment events are keyed by doctor so a
// consumer sees one doctor's calendar changes in commit order.
type Event struct {
	AggregateType string
	AggregateID   string
	EventType     string
	PartitionKey  string
	Payload       []byte
}

const (
	AggregateAppointment = "appointment"

	EventBooked      = "booking.appointment.booked.v1"
	EventCancelled   = "booking.appointment.cancelled.v1"
	EventRescheduled = "booking.appointment.rescheduled.v1"
	EventCompleted   = "booking.appointment.completed.v1"
	EventNoShow      = "booking.appointment.no_show.v1"
)

// AppointmentPayload is the JSON body of every appointment event.
type AppointmentPayload struct {
	AppointmentID   string    `json:"appointment_id"`
	ClinicID        string    `json:"clinic_id"`
	DoctorID        string    `json:"doctor_id"`
	ServiceID       string    `json:"service_id"`
	PatientRef      string    `json:"patient_ref,omitempty"`
	Date            string    `json:"date"`
	StartUTC        time.Time `json:"start_utc"`
	EndUTC          time.Time `json:"end_utc"`
	Status          string    `json:"status"`
	CreatedVia      string    `json:"created_via,omitempty"`
	Reason          string    `json:"reason,omitempty"`
	RescheduledFrom string    `json:"rescheduled_from,omitempty"`
	OccurredAt      time.Time `json:"occurred_at"`
}

// AppointmentEvent builds the event for a state change of a.
func AppointmentEvent(eventType string, a model.Appointment, occurredAt time.Time) (Event, error) {
	payload, err := json.Marshal(AppointmentPayload{
		AppointmentID:   a.ID,
		ClinicID:        a.ClinicID,
		DoctorID:        a.DoctorID,
		ServiceID:       a.ServiceID,
		PatientRef:      a.PatientRef,
		Date:            a.Date,
		StartUTC:        a.StartUTC.UTC(),
		EndUTC:          a.EndUTC.UTC(),
		Status:          string(a.Status),
		CreatedVia:      a.CreatedVia,
		Reason:          a.CancelReason,
		RescheduledFrom: a.RescheduledFrom,
		OccurredAt:      occurredAt.UTC(),
	})
	if err != nil {
		return Event{}, err
	}
	return Event{
		AggregateType: AggregateAppointment,
		AggregateID:   a.ID,
		EventType:     eventType,
		PartitionKey:  a.DoctorID,
		Payload:       payload,
	}, nil
}

package handlers

import (
	"context"
	"log/slog"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-playground/validator/v10"
	"github.com/md-rashed-zaman/clinicbook/services/booking-service/internal/availability"
	"github.com/md-rashed-zaman/clinicbook/services/booking-service/internal/booking"
	"github.com/md-rashed-zaman/clinicbook/services/booking-service/internal/model"
)

// Engine is the booking engine surface the HTTP layer drives.
type Engine interface {
	GetFreeSlots(ctx context.Context, clinicID, doctorID, date, serviceID string) ([]availability.Slot, error)
	FirstAvailable(ctx context.Context, clinicID, doctorID, fromDate, serviceID string) (availability.Slot, error)
	CheckConflict(ctx context.Context, doctorID, date string, start, end time.Time) (booking.ConflictResult, error)
	CreateBooking(ctx context.Context, req booking.CreateRequest) (model.Appointment, error)
	Reschedule(ctx context.Context, id string, newStart time.Time) (model.Appointment, error)
	Cancel(ctx context.Context, id, reason string) (model.Appointment, error)
	Complete(ctx context.Context, id string) (model.Appointment, error)
	MarkNoShow(ctx context.Context, id string) (model.Appointment, error)
	Get(ctx context.Context, id string) (model.Appointment, error)
	List(ctx context.Context, f booking.ListFilter) ([]model.Appointment, error)
}

type BookingHandler struct {
	engine     Engine
	logger     *slog.Logger
	validate   *validator.Validate
	retryAfter string
}

// NewBookingHandler serves the engine over HTTP. retryAfter is advertised
// to clients when a doctor's lock is contended.
func NewBookingHandler(engine Engine, logger *slog.Logger, retryAfter time.Duration) *BookingHandler {
	if logger == nil {
		logger = slog.Default()
	}
	secs := int(retryAfter.Round(time.Second) / time.Second)
	if secs < 1 {
		secs = 1
	}
	return &BookingHandler{
		engine:     engine,
		logger:     logger,
		validate:   newValidator(),
		retryAfter: strconv.Itoa(secs),
	}
}

// Routes mounts the /api/v1 surface.
func (h *BookingHandler) Routes() chi.Router {
	r := chi.NewRouter()
	r.Get("/slots", h.Slots)
	r.Get("/slots/next", h.NextSlot)
	r.Post("/conflicts/check", h.CheckConflict)
	r.Route("/appointments", func(r chi.Router) {
		r.Post("/", h.Create)
		r.Get("/", h.List)
		r.Get("/{id}", h.Get)
		r.Patch("/{id}/cancel", h.Cancel)
		r.Patch("/{id}/reschedule", h.Reschedule)
		r.Patch("/{id}/complete", h.Complete)
		r.Patch("/{id}/no-show", h.NoShow)
	})
	return r
}

type slotsQuery struct {
	ClinicID  string `json:"clinic_id" validate:"required"`
	DoctorID  string `json:"doctor_id" validate:"required"`
	Date      string `json:"date" validate:"required,datetime=2006-01-02"`
	ServiceID string `json:"service_id"`
}

type slotItem struct {
	SlotID          string `json:"slot_id"`
	DoctorID        string `json:"doctor_id"`
	Date            string `json:"date"`
	StartUTC        string `json:"start_utc"`
	EndUTC          string `json:"end_utc"`
	StartLocal      string `json:"start_local"`
	EndLocal        string `json:"end_local"`
	DurationMinutes int    `json:"duration_minutes"`
}

func toSlotItem(s availability.Slot) slotItem {
	return slotItem{
		SlotID:          s.ID(),
		DoctorID:        s.DoctorID,
		Date:            s.Date.String(),
		StartUTC:        s.StartUTC.UTC().Format(time.RFC3339),
		EndUTC:          s.EndUTC.UTC().Format(time.RFC3339),
		StartLocal:      s.StartLocal,
		EndLocal:        s.EndLocal,
		DurationMinutes: s.DurationMinutes,
	}
}

func (h *BookingHandler) Slots(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	req := slotsQuery{
		ClinicID:  strings.TrimSpace(q.Get("clinic_id")),
		DoctorID:  strings.TrimSpace(q.Get("doctor_id")),
		Date:      strings.TrimSpace(q.Get("date")),
		ServiceID: strings.TrimSpace(q.Get("service_id")),
	}
	if err := h.validate.Struct(req); err != nil {
		writeValidation(w, err)
		return
	}
	slots, err := h.engine.GetFreeSlots(r.Context(), req.ClinicID, req.DoctorID, req.Date, req.ServiceID)
	if err != nil {
		h.writeEngineError(w, r, err)
		return
	}
	items := make([]slotItem, 0, len(slots))
	for _, s := range slots {
		items = append(items, toSlotItem(s))
	}
	writeJSON(w, http.StatusOK, map[string]any{"date": req.Date, "slots": items})
}

func (h *BookingHandler) NextSlot(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	req := slotsQuery{
		ClinicID:  strings.TrimSpace(q.Get("clinic_id")),
		DoctorID:  strings.TrimSpace(q.Get("doctor_id")),
		Date:      strings.TrimSpace(q.Get("from")),
		ServiceID: strings.TrimSpace(q.Get("service_id")),
	}
	if err := h.validate.Struct(req); err != nil {
		writeValidation(w, err)
		return
	}
	slot, err := h.engine.FirstAvailable(r.Context(), req.ClinicID, req.DoctorID, req.Date, req.ServiceID)
	if err != nil {
		h.writeEngineError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, toSlotItem(slot))
}

type checkConflictRequest struct {
	DoctorID string `json:"doctor_id" validate:"required"`
	Date     string `json:"date" validate:"omitempty,datetime=2006-01-02"`
	StartUTC string `json:"start_utc" validate:"required"`
	EndUTC   string `json:"end_utc" validate:"required"`
}

type checkConflictResponse struct {
	Free                     bool   `json:"free"`
	ConflictingAppointmentID string `json:"conflicting_appointment_id,omitempty"`
}

func (h *BookingHandler) CheckConflict(w http.ResponseWriter, r *http.Request) {
	var req checkConflictRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, codeValidation, "invalid json body", nil)
		return
	}
	if err := h.validate.Struct(req); err != nil {
		writeValidation(w, err)
		return
	}
	start, err := parseInstant("start_utc", req.StartUTC)
	if err != nil {
		writeValidation(w, err)
		return
	}
	end, err := parseInstant("end_utc", req.EndUTC)
	if err != nil {
		writeValidation(w, err)
		return
	}
	res, err := h.engine.CheckConflict(r.Context(), req.DoctorID, req.Date, start, end)
	if err != nil {
		h.writeEngineError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, checkConflictResponse{Free: res.Free, ConflictingAppointmentID: res.ConflictingAppointmentID})
}

type createAppointmentRequest struct {
	ClinicID   string `json:"clinic_id" validate:"required"`
	DoctorID   string `json:"doctor_id" validate:"required"`
	ServiceID  string `json:"service_id"`
	StartUTC   string `json:"start_utc" validate:"required"`
	PatientRef string `json:"patient_ref" validate:"max=128"`
	CreatedVia string `json:"created_via" validate:"omitempty,oneof=api whatsapp dashboard"`
	Status     string `json:"status" validate:"omitempty,oneof=confirmed pending"`
	Notes      string `json:"notes" validate:"max=2000"`
}

type appointmentItem struct {
	AppointmentID   string `json:"appointment_id"`
	ClinicID        string `json:"clinic_id"`
	DoctorID        string `json:"doctor_id"`
	ServiceID       string `json:"service_id,omitempty"`
	PatientRef      string `json:"patient_ref,omitempty"`
	Date            string `json:"date"`
	StartUTC        string `json:"start_utc"`
	EndUTC          string `json:"end_utc"`
	Status          string `json:"status"`
	CreatedVia      string `json:"created_via"`
	Notes           string `json:"notes,omitempty"`
	CancelReason    string `json:"cancel_reason,omitempty"`
	CancelledAt     string `json:"cancelled_at,omitempty"`
	RescheduledFrom string `json:"rescheduled_from,omitempty"`
	CreatedAt       string `json:"created_at"`
}

func toAppointmentItem(a model.Appointment) appointmentItem {
	item := appointmentItem{
		AppointmentID:   a.ID,
		ClinicID:        a.ClinicID,
		DoctorID:        a.DoctorID,
		ServiceID:       a.ServiceID,
		PatientRef:      a.PatientRef,
		Date:            a.Date,
		StartUTC:        a.StartUTC.UTC().Format(time.RFC3339),
		EndUTC:          a.EndUTC.UTC().Format(time.RFC3339),
		Status:          string(a.Status),
		CreatedVia:      a.CreatedVia,
		Notes:           a.Notes,
		CancelReason:    a.CancelReason,
		RescheduledFrom: a.RescheduledFrom,
		CreatedAt:       a.CreatedAt.UTC().Format(time.RFC3339),
	}
	if a.CancelledAt != nil {
		item.CancelledAt = a.CancelledAt.UTC().Format(time.RFC3339)
	}
	return item
}

func (h *BookingHandler) Create(w http.ResponseWriter, r *http.Request) {
	var req createAppointmentRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, codeValidation, "invalid json body", nil)
		return
	}
	if err := h.validate.Struct(req); err != nil {
		writeValidation(w, err)
		return
	}
	start, err := parseInstant("start_utc", req.StartUTC)
	if err != nil {
		writeValidation(w, err)
		return
	}

	appt, err := h.engine.CreateBooking(r.Context(), booking.CreateRequest{
		ClinicID:       req.ClinicID,
		DoctorID:       req.DoctorID,
		ServiceID:      req.ServiceID,
		StartUTC:       start,
		PatientRef:     strings.TrimSpace(req.PatientRef),
		CreatedVia:     req.CreatedVia,
		Status:         model.Status(req.Status),
		Notes:          strings.TrimSpace(req.Notes),
		IdempotencyKey: strings.TrimSpace(r.Header.Get("Idempotency-Key")),
	})
	if err != nil {
		h.writeEngineError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, toAppointmentItem(appt))
}

func (h *BookingHandler) List(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	limit := 0
	if raw := strings.TrimSpace(q.Get("limit")); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n < 1 {
			writeError(w, http.StatusBadRequest, codeValidation, "limit must be a positive integer", nil)
			return
		}
		limit = n
	}
	appts, err := h.engine.List(r.Context(), booking.ListFilter{
		ClinicID: strings.TrimSpace(q.Get("clinic_id")),
		DoctorID: strings.TrimSpace(q.Get("doctor_id")),
		DateFrom: strings.TrimSpace(q.Get("date_from")),
		DateTo:   strings.TrimSpace(q.Get("date_to")),
		Status:   strings.TrimSpace(q.Get("status")),
		Limit:    limit,
	})
	if err != nil {
		h.writeEngineError(w, r, err)
		return
	}
	items := make([]appointmentItem, 0, len(appts))
	for _, a := range appts {
		items = append(items, toAppointmentItem(a))
	}
	writeJSON(w, http.StatusOK, map[string]any{"appointments": items})
}

func (h *BookingHandler) Get(w http.ResponseWriter, r *http.Request) {
	appt, err := h.engine.Get(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		h.writeEngineError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, toAppointmentItem(appt))
}

type cancelRequest struct {
	Reason string `json:"reason" validate:"max=500"`
}

func (h *BookingHandler) Cancel(w http.ResponseWriter, r *http.Request) {
	var req cancelRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, codeValidation, "invalid json body", nil)
		return
	}
	if err := h.validate.Struct(req); err != nil {
		writeValidation(w, err)
		return
	}
	appt, err := h.engine.Cancel(r.Context(), chi.URLParam(r, "id"), strings.TrimSpace(req.Reason))
	if err != nil {
		h.writeEngineError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, toAppointmentItem(appt))
}

type rescheduleRequest struct {
	StartUTC string `json:"start_utc" validate:"required"`
}

func (h *BookingHandler) Reschedule(w http.ResponseWriter, r *http.Request) {
	var req rescheduleRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, codeValidation, "invalid json body", nil)
		return
	}
	if err := h.validate.Struct(req); err != nil {
		writeValidation(w, err)
		return
	}
	start, err := parseInstant("start_utc", req.StartUTC)
	if err != nil {
		writeValidation(w, err)
		return
	}
	appt, err := h.engine.Reschedule(r.Context(), chi.URLParam(r, "id"), start)
	if err != nil {
		h.writeEngineError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, toAppointmentItem(appt))
}

func (h *BookingHandler) Complete(w http.ResponseWriter, r *http.Request) {
	appt, err := h.engine.Complete(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		h.writeEngineError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, toAppointmentItem(appt))
}

func (h *BookingHandler) NoShow(w http.ResponseWriter, r *http.Request) {
	appt, err := h.engine.MarkNoShow(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		h.writeEngineError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, toAppointmentItem(appt))
}

type fieldError struct {
	field string
}

func (e *fieldError) Error() string {
	return e.field + " must be an RFC3339 timestamp"
}

func parseInstant(field, raw string) (time.Time, error) {
	t, err := time.Parse(time.RFC3339, strings.TrimSpace(raw))
	if err != nil {
		return time.Time{}, &fieldError{field: field}
	}
	return t.UTC(), nil
}

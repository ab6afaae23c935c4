package handlers

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"reflect"
	"strings"

	"github.com/go-playground/validator/v10"
	"github.com/md-rashed-zaman/clinicbook/services/booking-service/internal/booking"
)

const (
	codeSlotTaken         = "SLOT_TAKEN"
	codeInvalidClinic     = "INVALID_CLINIC"
	codeInvalidDoctor     = "INVALID_DOCTOR"
	codeInvalidService    = "INVALID_SERVICE"
	codeNotFound          = "NOT_FOUND"
	codeNoAvailability    = "NO_AVAILABILITY"
	codeOutsideHours      = "OUTSIDE_HOURS"
	codeOutsideHorizon    = "OUTSIDE_HORIZON"
	codeInvalidConfig     = "INVALID_CONFIG"
	codeBusy              = "BUSY"
	codeValidation        = "VALIDATION_ERROR"
	codeInvalidTransition = "INVALID_TRANSITION"
	codeInternal          = "INTERNAL_ERROR"
)

type errorBody struct {
	Success bool           `json:"success"`
	Code    string         `json:"error_code"`
	Message string         `json:"message"`
	Details map[string]any `json:"details,omitempty"`
}

type okBody struct {
	Success bool `json:"success"`
	Data    any  `json:"data"`
}

func newValidator() *validator.Validate {
	v := validator.New()
	v.RegisterTagNameFunc(func(f reflect.StructField) string {
		name, _, _ := strings.Cut(f.Tag.Get("json"), ",")
		if name == "" || name == "-" {
			return f.Name
		}
		return name
	})
	return v
}

func writeJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(okBody{Success: true, Data: data})
}

func writeError(w http.ResponseWriter, status int, code, msg string, details map[string]any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(errorBody{Code: code, Message: msg, Details: details})
}

func writeValidation(w http.ResponseWriter, err error) {
	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) {
		writeError(w, http.StatusBadRequest, codeValidation, err.Error(), nil)
		return
	}
	fields := map[string]any{}
	for _, fe := range verrs {
		fields[fe.Field()] = fe.Tag()
	}
	writeError(w, http.StatusBadRequest, codeValidation, "request failed validation", map[string]any{"fields": fields})
}

// writeEngineError maps engine errors onto status codes and error codes.
func (h *BookingHandler) writeEngineError(w http.ResponseWriter, r *http.Request, err error) {
	var (
		conflict *booking.ConflictError
		notFound *booking.NotFoundError
	)
	switch {
	case errors.As(err, &conflict):
		var details map[string]any
		if conflict.AppointmentID != "" {
			details = map[string]any{"conflicting_appointment_id": conflict.AppointmentID}
		}
		writeError(w, http.StatusConflict, codeSlotTaken, "time slot already booked", details)
	case errors.As(err, &notFound):
		code := codeNotFound
		switch notFound.Kind {
		case "clinic":
			code = codeInvalidClinic
		case "doctor":
			code = codeInvalidDoctor
		case "service":
			code = codeInvalidService
		}
		writeError(w, http.StatusNotFound, code, notFound.Error(), map[string]any{"id": notFound.ID})
	case errors.Is(err, booking.ErrNoAvailability):
		writeError(w, http.StatusNotFound, codeNoAvailability, err.Error(), nil)
	case errors.Is(err, booking.ErrOutsideHours):
		writeError(w, http.StatusUnprocessableEntity, codeOutsideHours, err.Error(), nil)
	case errors.Is(err, booking.ErrOutsideHorizon):
		writeError(w, http.StatusUnprocessableEntity, codeOutsideHorizon, err.Error(), nil)
	case errors.Is(err, booking.ErrBusy):
		w.Header().Set("Retry-After", h.retryAfter)
		writeError(w, http.StatusServiceUnavailable, codeBusy, err.Error(), nil)
	case errors.Is(err, booking.ErrInvalidTransition):
		writeError(w, http.StatusBadRequest, codeInvalidTransition, err.Error(), nil)
	case errors.Is(err, booking.ErrInvalidRequest):
		writeError(w, http.StatusBadRequest, codeValidation, err.Error(), nil)
	case errors.Is(err, booking.ErrInvalidConfig):
		h.logger.Error("clinic configuration invalid", "path", r.URL.Path, "err", err)
		writeError(w, http.StatusInternalServerError, codeInvalidConfig, err.Error(), nil)
	default:
		h.logger.Error("booking request failed", "path", r.URL.Path, "err", err)
		writeError(w, http.StatusInternalServerError, codeInternal, "internal server error", nil)
	}
}

// decodeJSON decodes an optional JSON body. An empty body leaves dst untouched.
func decodeJSON(r *http.Request, dst any) error {
	dec := json.NewDecoder(r.Body)
	dec.DisallowUnknownFields()
	if err := dec.Decode(dst); err != nil && !errors.Is(err, io.EOF) {
		return err
	}
	return nil
}

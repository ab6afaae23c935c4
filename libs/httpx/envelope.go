package httpx

import (
	"encoding/json"
	"net/http"
)

// Error codes emitted by the middleware in this package. Handlers add their own.
const (
	CodeRateLimited = "RATE_LIMITED"
	CodeTimeout     = "TIMEOUT"
	CodeUnavailable = "UNAVAILABLE"
	CodeInternal    = "INTERNAL_ERROR"
)

type errorEnvelope struct {
	Success   bool   `json:"success"`
	ErrorCode string `json:"error_code"`
	Message   string `json:"message"`
}

func errorJSON(code, message string) []byte {
	b, _ := json.Marshal(errorEnvelope{ErrorCode: code, Message: message})
	return b
}

// WriteError writes the standard {"success":false,...} error envelope.
func WriteError(w http.ResponseWriter, status int, code, message string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_, _ = w.Write(errorJSON(code, message))
}

package handler

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/notify-relay/internal/application/dispatch"
	"github.com/notify-relay/internal/domain"
)

// MessageEnvelope is the generic response wrapper.
type MessageEnvelope struct {
	Message   string `json:"message,omitempty"`
	Error     string `json:"error,omitempty"`
	ErrorCode int    `json:"error_code,omitempty"`
}

// PublicKeyEnvelope is the response of GET /push/public-key.
type PublicKeyEnvelope struct {
	PublicKey string `json:"publicKey"`
}

// CountEnvelope is the response of GET /notifications/count.
type CountEnvelope struct {
	Count int `json:"count"`
}

// DispatchEnvelope reports a stored notification and how its push went.
type DispatchEnvelope struct {
	Notification *domain.Notification `json:"notification"`
	Push         dispatch.Report      `json:"push"`
}

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, MessageEnvelope{Error: msg})
}

// httpError maps domain sentinel errors to status codes. Anything unknown is
// a 500 and its text is not sent to the client.
func httpError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, domain.ErrNotFound):
		writeError(w, http.StatusNotFound, "not found")
	case errors.Is(err, domain.ErrForbidden):
		writeError(w, http.StatusForbidden, "forbidden")
	case errors.Is(err, domain.ErrUnauthorized):
		writeError(w, http.StatusUnauthorized, "unauthorized")
	case errors.Is(err, domain.ErrConflict):
		writeError(w, http.StatusConflict, "conflict")
	case errors.Is(err, domain.ErrBadRequest):
		writeError(w, http.StatusBadRequest, err.Error())
	case errors.Is(err, domain.ErrStoreUnavailable):
		writeError(w, http.StatusServiceUnavailable, "store unavailable")
	default:
		writeError(w, http.StatusInternalServerError, "internal error")
	}
}

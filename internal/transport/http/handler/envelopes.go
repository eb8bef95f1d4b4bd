package handler

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/youme-api/internal/domain"
)

// MessageEnvelope is the generic response wrapper.
type MessageEnvelope struct {
	Message string `json:"message,omitempty"`
	Error   string `json:"error,omitempty"`
}

// StateEnvelope wraps every auth operation's outcome.
type StateEnvelope struct {
	State  domain.AuthState `json:"state"`
	Bearer string           `json:"Bearer,omitempty"`
}

// LinkEnvelope reports a pairing outcome.
type LinkEnvelope struct {
	Result  string `json:"result"`
	Message string `json:"message,omitempty"`
}

type CodeEnvelope struct {
	Code string `json:"code"`
}

type ProfileEnvelope struct {
	Profile *domain.UserProfile `json:"profile"`
}

type PartnerEnvelope struct {
	Partner *domain.PartnerInfo `json:"partner"`
}

type RememberMeEnvelope struct {
	RememberMe bool `json:"remember_me"`
}

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, MessageEnvelope{Error: msg})
}

// statusFor maps the domain taxonomy to an HTTP status.
func statusFor(err error) int {
	switch {
	case errors.Is(err, domain.ErrInvalidInput), errors.Is(err, domain.ErrBadRequest):
		return http.StatusBadRequest
	case errors.Is(err, domain.ErrUnauthorized):
		return http.StatusUnauthorized
	case errors.Is(err, domain.ErrForbidden):
		return http.StatusForbidden
	case errors.Is(err, domain.ErrNotFound):
		return http.StatusNotFound
	case errors.Is(err, domain.ErrInvariant), errors.Is(err, domain.ErrConflict):
		return http.StatusConflict
	case errors.Is(err, domain.ErrGateway):
		return http.StatusBadGateway
	default:
		return http.StatusInternalServerError
	}
}

func writeServiceError(w http.ResponseWriter, err error) {
	status := statusFor(err)
	if status == http.StatusInternalServerError {
		writeError(w, status, "internal server error")
		return
	}
	writeError(w, status, err.Error())
}

func decode(r *http.Request, v interface{}) error {
	if err := json.NewDecoder(r.Body).Decode(v); err != nil {
		return errors.New("invalid request body")
	}
	return nil
}

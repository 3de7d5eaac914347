package handler

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/whisper-api/internal/domain"
)

// APIResponse is the uniform result envelope every endpoint returns.
type APIResponse struct {
	Success bool   `json:"success"`
	Message string `json:"message"`
}

// AuthEnvelope wraps login responses.
type AuthEnvelope struct {
	Success bool         `json:"success"`
	Message string       `json:"message,omitempty"`
	Bearer  string       `json:"bearer,omitempty"`
	Account *SafeAccount `json:"account,omitempty"`
}

// MessagesEnvelope wraps inbox listing responses.
type MessagesEnvelope struct {
	Success  bool             `json:"success"`
	Message  string           `json:"message,omitempty"`
	Messages []domain.Message `json:"messages"`
}

// AcceptMessagesEnvelope wraps accept-flag responses.
type AcceptMessagesEnvelope struct {
	Success             bool   `json:"success"`
	Message             string `json:"message,omitempty"`
	IsAcceptingMessages bool   `json:"is_accepting_messages"`
}

// AccountEnvelope wraps single-account responses.
type AccountEnvelope struct {
	Success bool         `json:"success"`
	Message string       `json:"message,omitempty"`
	Account *SafeAccount `json:"account,omitempty"`
}

// SafeAccount is the projection of an Account that may leave the server:
// no hashes, no outstanding codes or tokens, no inbox.
type SafeAccount struct {
	AccountID           string `json:"id"`
	Username            string `json:"username"`
	Email               string `json:"email"`
	IsVerified          bool   `json:"is_verified"`
	IsAcceptingMessages bool   `json:"is_accepting_messages"`
}

func toSafeAccount(a *domain.Account) *SafeAccount {
	if a == nil {
		return nil
	}
	return &SafeAccount{
		AccountID:           a.AccountID,
		Username:            a.Username,
		Email:               a.Email,
		IsVerified:          a.IsVerified,
		IsAcceptingMessages: a.IsAcceptingMessages,
	}
}

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, APIResponse{Success: false, Message: msg})
}

// httpError maps domain sentinel errors to HTTP status codes in one place.
func httpError(w http.ResponseWriter, err error) {
	status := http.StatusInternalServerError
	switch {
	case errors.Is(err, domain.ErrNotFound):
		status = http.StatusNotFound
	case errors.Is(err, domain.ErrConflict):
		status = http.StatusConflict
	case errors.Is(err, domain.ErrUnauthorized):
		status = http.StatusUnauthorized
	case errors.Is(err, domain.ErrForbidden):
		status = http.StatusForbidden
	case errors.Is(err, domain.ErrBadRequest):
		status = http.StatusBadRequest
	case errors.Is(err, domain.ErrUnavailable):
		status = http.StatusServiceUnavailable
	}
	writeError(w, status, err.Error())
}

package portalapi

import (
	"encoding/json"
	"net/http"
	"strings"

	"github.com/civicportal/resident-portal/internal/core/domain"
)

// Kind classifies an APIError so screens never inspect raw statuses.
type Kind string

const (
	KindSessionExpired        Kind = "session_expired"
	KindIdentifierUnavailable Kind = "identifier_unavailable"
	KindHTTP                  Kind = "http"
)

// APIError is the normalized error for any non-2xx backend response.
type APIError struct {
	Kind    Kind
	Status  int
	Message string
	Err     error
}

func (e *APIError) Error() string {
	if e.Message != "" {
		return e.Message
	}
	return http.StatusText(e.Status)
}

func (e *APIError) Unwrap() error { return e.Err }

// userNotFoundMarkers are matched case-insensitively against server messages.
var userNotFoundMarkers = []string{
	"user not found",
	"user_not_found",
	"usernotfound",
	"no user",
	"user does not exist",
}

// serverMessage extracts a message from the common error bodies the backend
// sends: {"message": ...}, {"error": ...} or plain text.
func serverMessage(body []byte) string {
	var envelope struct {
		Message string `json:"message"`
		Error   string `json:"error"`
	}
	if err := json.Unmarshal(body, &envelope); err == nil {
		if envelope.Message != "" {
			return envelope.Message
		}
		if envelope.Error != "" {
			return envelope.Error
		}
		return ""
	}
	return strings.TrimSpace(string(body))
}

func mentionsUnknownUser(msg string) bool {
	lower := strings.ToLower(msg)
	for _, marker := range userNotFoundMarkers {
		if strings.Contains(lower, marker) {
			return true
		}
	}
	return false
}

// sessionExpired is the single error every unauthorized response becomes.
func sessionExpired() *APIError {
	return &APIError{
		Kind:    KindSessionExpired,
		Status:  http.StatusUnauthorized,
		Message: domain.ErrSessionExpired.Error(),
		Err:     domain.ErrSessionExpired,
	}
}

// normalizeFailure maps a non-2xx response (other than a session expiry) to
// an APIError.
func normalizeFailure(status int, body []byte, public bool) *APIError {
	msg := serverMessage(body)
	if mentionsUnknownUser(msg) {
		return &APIError{
			Kind:    KindIdentifierUnavailable,
			Status:  status,
			Message: domain.ErrIdentifierUnavailable.Error(),
			Err:     domain.ErrIdentifierUnavailable,
		}
	}

	apiErr := &APIError{Kind: KindHTTP, Status: status, Message: msg}
	if public && (status == http.StatusUnauthorized || status == http.StatusForbidden) {
		apiErr.Err = domain.ErrInvalidCredentials
		if apiErr.Message == "" {
			apiErr.Message = domain.ErrInvalidCredentials.Error()
		}
	}
	return apiErr
}

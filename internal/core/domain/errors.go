package domain

import "errors"

var (
	// ErrNoCredential is returned by a token store that holds nothing.
	ErrNoCredential = errors.New("no stored credential")
	// ErrMissingToken means the login endpoint answered without a token.
	ErrMissingToken = errors.New("login response did not contain a token")
	// ErrInvalidCredentials covers a rejected or incomplete login form.
	ErrInvalidCredentials = errors.New("invalid credentials")
	// ErrSessionExpired is the single shape every unauthorized response is
	// normalized to.
	ErrSessionExpired = errors.New("session expired, please log in again")
	// ErrIdentifierUnavailable replaces backend "user not found" style errors.
	ErrIdentifierUnavailable = errors.New("identifier unavailable")
)

// AuthenticationError is returned by Login. Its message is meant to be shown
// to the user as is.
type AuthenticationError struct {
	Err error
}

func (e *AuthenticationError) Error() string {
	if e.Err == nil {
		return "authentication failed"
	}
	return "authentication failed: " + e.Err.Error()
}

func (e *AuthenticationError) Unwrap() error { return e.Err }

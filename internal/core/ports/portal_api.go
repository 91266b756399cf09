package ports

import (
	"context"

	"github.com/civicportal/resident-portal/internal/core/domain"
)

// LoginResult is the body of a successful call to the login endpoint.
type LoginResult struct {
	Token string
}

// PortalAPI is the subset of the municipal backend the session depends on.
type PortalAPI interface {
	Login(ctx context.Context, creds domain.Credentials) (LoginResult, error)
	Profile(ctx context.Context) (*domain.Profile, error)
	// SetBearer replaces the default Authorization header. An empty token
	// removes it.
	SetBearer(token string)
}

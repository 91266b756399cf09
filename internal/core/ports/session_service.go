package ports

import (
	"context"

	"github.com/civicportal/resident-portal/internal/core/domain"
)

// SessionService is what handlers and commands see of the session manager.
type SessionService interface {
	Initialize(ctx context.Context) error
	Login(ctx context.Context, creds domain.Credentials) error
	Logout(ctx context.Context) domain.Redirect
	Refresh(ctx context.Context) error

	Snapshot() domain.Snapshot
	IsAuthenticated() bool
	IsAdmin() bool
	UserID() string

	RememberPath(path string)
	TakeReturnPath() string
}

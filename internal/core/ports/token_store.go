package ports

import "context"

// TokenStore persists exactly one credential. Load returns
// domain.ErrNoCredential when nothing is stored; Clear on an empty store is
// not an error.
type TokenStore interface {
	Save(ctx context.Context, token string) error
	Load(ctx context.Context) (string, error)
	Clear(ctx context.Context) error
}

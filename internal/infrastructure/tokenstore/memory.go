// Package tokenstore holds the single credential the portal is logged in
// with. Memory and File live here; Redis and Mongo backed stores live next to
// their connection helpers under internal/infrastructure/db.
package tokenstore

import (
	"context"
	"sync"

	"github.com/civicportal/resident-portal/internal/core/domain"
	"github.com/civicportal/resident-portal/internal/core/ports"
)

// Memory keeps the credential in process memory.
type Memory struct {
	mu    sync.RWMutex
	token string
}

var _ ports.TokenStore = (*Memory)(nil)

func NewMemory() *Memory {
	return &Memory{}
}

func (m *Memory) Save(_ context.Context, token string) error {
	m.mu.Lock()
	m.token = token
	m.mu.Unlock()
	return nil
}

func (m *Memory) Load(_ context.Context) (string, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if m.token == "" {
		return "", domain.ErrNoCredential
	}
	return m.token, nil
}

func (m *Memory) Clear(_ context.Context) error {
	m.mu.Lock()
	m.token = ""
	m.mu.Unlock()
	return nil
}

package redis

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/civicportal/resident-portal/internal/core/domain"
	"github.com/civicportal/resident-portal/internal/core/ports"
)

// CredentialStore keeps one credential per profile in Redis.
// Key format: portal:credential:<profile>
type CredentialStore struct {
	client  *redis.Client
	profile string
	ttl     time.Duration
}

var _ ports.TokenStore = (*CredentialStore)(nil)

// NewCredentialStore wraps client. A ttl of zero keeps the key until Clear.
func NewCredentialStore(client *redis.Client, profile string, ttl time.Duration) *CredentialStore {
	return &CredentialStore{client: client, profile: profile, ttl: ttl}
}

func (s *CredentialStore) Save(ctx context.Context, token string) error {
	if err := s.client.Set(ctx, s.key(), token, s.ttl).Err(); err != nil {
		return fmt.Errorf("save credential: %w", err)
	}
	return nil
}

func (s *CredentialStore) Load(ctx context.Context) (string, error) {
	token, err := s.client.Get(ctx, s.key()).Result()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return "", domain.ErrNoCredential
		}
		return "", fmt.Errorf("load credential: %w", err)
	}
	if token == "" {
		return "", domain.ErrNoCredential
	}
	return token, nil
}

// Clear deletes the key; deleting a missing key is not an error in Redis.
func (s *CredentialStore) Clear(ctx context.Context) error {
	if err := s.client.Del(ctx, s.key()).Err(); err != nil {
		return fmt.Errorf("clear credential: %w", err)
	}
	return nil
}

func (s *CredentialStore) key() string {
	return fmt.Sprintf("portal:credential:%s", s.profile)
}

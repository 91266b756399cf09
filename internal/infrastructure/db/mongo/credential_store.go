package mongo

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	"github.com/civicportal/resident-portal/internal/core/domain"
	"github.com/civicportal/resident-portal/internal/core/ports"
)

const credentialCollection = "portal_credentials"

// CredentialStore keeps one credential document per profile.
type CredentialStore struct {
	coll    *mongo.Collection
	profile string
}

var _ ports.TokenStore = (*CredentialStore)(nil)

func NewCredentialStore(db *mongo.Database, profile string) *CredentialStore {
	return &CredentialStore{coll: db.Collection(credentialCollection), profile: profile}
}

type credentialDoc struct {
	Profile   string `bson:"_id"`
	Token     string `bson:"token"`
	UpdatedAt int64  `bson:"updated_at"`
}

// Save upserts the profile's document, replacing any earlier token.
func (s *CredentialStore) Save(ctx context.Context, token string) error {
	doc := credentialDoc{
		Profile:   s.profile,
		Token:     token,
		UpdatedAt: time.Now().UTC().Unix(),
	}
	_, err := s.coll.ReplaceOne(ctx, bson.M{"_id": s.profile}, doc, options.Replace().SetUpsert(true))
	if err != nil {
		return fmt.Errorf("save credential: %w", err)
	}
	return nil
}

func (s *CredentialStore) Load(ctx context.Context) (string, error) {
	var doc credentialDoc
	if err := s.coll.FindOne(ctx, bson.M{"_id": s.profile}).Decode(&doc); err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return "", domain.ErrNoCredential
		}
		return "", fmt.Errorf("load credential: %w", err)
	}
	if doc.Token == "" {
		return "", domain.ErrNoCredential
	}
	return doc.Token, nil
}

// Clear removes the profile's document. Removing nothing is fine.
func (s *CredentialStore) Clear(ctx context.Context) error {
	if _, err := s.coll.DeleteOne(ctx, bson.M{"_id": s.profile}); err != nil {
		return fmt.Errorf("clear credential: %w", err)
	}
	return nil
}

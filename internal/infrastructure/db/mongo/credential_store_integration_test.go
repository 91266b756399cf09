//go:build integration

package mongo

import (
	"context"
	"errors"
	"os"
	"testing"

	"github.com/civicportal/resident-portal/internal/core/domain"
)

func TestCredentialStore_Lifecycle(t *testing.T) {
	uri := os.Getenv("MONGO_URI")
	if uri == "" {
		t.Skip("MONGO_URI not set")
	}

	ctx := context.Background()
	client, db, err := Connect(ctx, Config{URI: uri, Database: "portal_integration"})
	if err != nil {
		t.Fatalf("connect: %v", err)
	}
	defer func() { _ = client.Disconnect(ctx) }()

	store := NewCredentialStore(db, "integration-"+t.Name())
	defer func() { _ = store.Clear(ctx) }()

	if _, err := store.Load(ctx); !errors.Is(err, domain.ErrNoCredential) {
		t.Fatalf("expected ErrNoCredential on empty store, got %v", err)
	}
	if err := store.Save(ctx, "first"); err != nil {
		t.Fatalf("save: %v", err)
	}
	if err := store.Save(ctx, "second"); err != nil {
		t.Fatalf("overwrite: %v", err)
	}
	if got, err := store.Load(ctx); err != nil || got != "second" {
		t.Fatalf("expected second, got %q (%v)", got, err)
	}
	for i := 0; i < 2; i++ {
		if err := store.Clear(ctx); err != nil {
			t.Fatalf("clear #%d: %v", i+1, err)
		}
	}
	if _, err := store.Load(ctx); !errors.Is(err, domain.ErrNoCredential) {
		t.Fatalf("expected ErrNoCredential after clear, got %v", err)
	}
}

package tokenstore

import (
	"context"
	"fmt"

	"github.com/civicportal/resident-portal/internal/core/ports"
	mongostore "github.com/civicportal/resident-portal/internal/infrastructure/db/mongo"
	redisstore "github.com/civicportal/resident-portal/internal/infrastructure/db/redis"
	"github.com/civicportal/resident-portal/internal/pkg/config"
)

// Backend is an opened token store together with its lifecycle hooks.
type Backend struct {
	Name  string
	Store ports.TokenStore
	// Ping checks the backend is reachable; nil for local backends.
	Ping  func(ctx context.Context) error
	Close func(ctx context.Context) error
}

func noopClose(context.Context) error { return nil }

// Open builds the token store selected by cfg.Store.Backend.
func Open(ctx context.Context, cfg *config.Config) (*Backend, error) {
	switch cfg.Store.Backend {
	case config.StoreMemory:
		return &Backend{Name: config.StoreMemory, Store: NewMemory(), Close: noopClose}, nil

	case config.StoreFile:
		path := cfg.Store.Path
		if path == "" {
			var err error
			if path, err = DefaultPath(cfg.Profile); err != nil {
				return nil, err
			}
		}
		store, err := NewFile(path, cfg.Store.Key)
		if err != nil {
			return nil, err
		}
		return &Backend{Name: config.StoreFile, Store: store, Close: noopClose}, nil

	case config.StoreRedis:
		client, err := redisstore.Connect(ctx, redisstore.Config{
			Addr:     cfg.Redis.Addr,
			Password: cfg.Redis.Password,
			DB:       cfg.Redis.DB,
		})
		if err != nil {
			return nil, err
		}
		return &Backend{
			Name:  config.StoreRedis,
			Store: redisstore.NewCredentialStore(client, cfg.Profile, cfg.Store.TTL),
			Ping:  func(ctx context.Context) error { return client.Ping(ctx).Err() },
			Close: func(context.Context) error { return client.Close() },
		}, nil

	case config.StoreMongo:
		client, db, err := mongostore.Connect(ctx, mongostore.Config{
			URI:      cfg.Mongo.URI,
			Database: cfg.Mongo.Database,
		})
		if err != nil {
			return nil, err
		}
		return &Backend{
			Name:  config.StoreMongo,
			Store: mongostore.NewCredentialStore(db, cfg.Profile),
			Ping:  func(ctx context.Context) error { return client.Ping(ctx, nil) },
			Close: client.Disconnect,
		}, nil
	}
	return nil, fmt.Errorf("tokenstore: unknown backend %q", cfg.Store.Backend)
}

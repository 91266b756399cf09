// Package app wires the session stack shared by the gateway and the CLI.
package app

import (
	"context"
	"fmt"

	"github.com/rs/zerolog"

	"github.com/civicportal/resident-portal/internal/api/handler"
	"github.com/civicportal/resident-portal/internal/core/service"
	"github.com/civicportal/resident-portal/internal/infrastructure/portalapi"
	"github.com/civicportal/resident-portal/internal/infrastructure/tokenstore"
	"github.com/civicportal/resident-portal/internal/pkg/config"
)

// App is one Session: a token store, the API client reading it and the
// manager that owns the session state.
type App struct {
	Config   *config.Config
	Store    *tokenstore.Backend
	Client   *portalapi.Client
	Sessions *service.SessionManager
}

// New opens the configured token store and builds the client and session
// manager on top of it. Unauthorized responses from the client expire the
// session.
func New(ctx context.Context, cfg *config.Config, log zerolog.Logger) (*App, error) {
	store, err := tokenstore.Open(ctx, cfg)
	if err != nil {
		return nil, fmt.Errorf("open token store: %w", err)
	}

	client, err := portalapi.New(portalapi.Config{
		BaseURL: cfg.API.BaseURL,
		Timeout: cfg.API.Timeout,
	}, store.Store, log.With().Str("component", "portalapi").Logger())
	if err != nil {
		_ = store.Close(ctx)
		return nil, err
	}

	sessions := service.NewSessionManager(store.Store, client, log.With().Str("component", "session").Logger())
	client.OnUnauthorized(sessions.Expire)

	return &App{Config: cfg, Store: store, Client: client, Sessions: sessions}, nil
}

// Checks returns the readiness probes for the gateway.
func (a *App) Checks() map[string]handler.Check {
	return map[string]handler.Check{
		"token_store:" + a.Store.Name: a.Store.Ping,
		"backend":                     a.Client.Ping,
	}
}

// Close releases the token store connection.
func (a *App) Close(ctx context.Context) error {
	return a.Store.Close(ctx)
}

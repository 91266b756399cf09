// Package main runs the resident portal gateway: it restores the saved
// session, guards the portal views and polls feeds while someone is signed in.
package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"

	"github.com/civicportal/resident-portal/internal/api"
	"github.com/civicportal/resident-portal/internal/app"
	"github.com/civicportal/resident-portal/internal/infrastructure/poller"
	"github.com/civicportal/resident-portal/internal/pkg/config"
	"github.com/civicportal/resident-portal/pkg/logger"
)

const shutdownTimeout = 10 * time.Second

func main() {
	cfg := config.Load()
	log := logger.Init(logger.Options{
		Level:   cfg.LogLevel,
		Pretty:  cfg.IsDevelopment(),
		Service: "portal",
	})

	if err := run(cfg, log); err != nil {
		log.Error().Err(err).Msg("portal gateway stopped")
		os.Exit(1)
	}
	log.Info().Msg("portal gateway stopped")
}

func run(cfg *config.Config, log zerolog.Logger) error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	portal, err := app.New(ctx, cfg, log)
	if err != nil {
		return err
	}
	defer func() {
		if err := portal.Close(context.Background()); err != nil {
			log.Warn().Err(err).Msg("closing token store")
		}
	}()

	feeds := poller.NewFeedWatcher(portal.Client, cfg.PollInterval, logger.For("feeds"))

	e := api.NewRouter(api.Deps{
		Sessions: portal.Sessions,
		Backend:  portal.Client,
		Feeds:    feeds,
		Checks:   portal.Checks(),
		Log:      logger.For("http"),
	})

	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		log.Info().Str("port", cfg.Port).Str("token_store", portal.Store.Name).Msg("starting portal gateway")
		if err := e.Start(":" + cfg.Port); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})

	g.Go(func() error {
		return feeds.Run(gctx, portal.Sessions)
	})

	g.Go(func() error {
		// Views answer 202 until this settles.
		return portal.Sessions.Initialize(gctx)
	})

	g.Go(func() error {
		<-gctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		return e.Shutdown(shutdownCtx)
	})

	return g.Wait()
}

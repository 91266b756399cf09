package api

import (
	"github.com/google/uuid"
	"github.com/labstack/echo-contrib/echoprometheus"
	"github.com/labstack/echo/v4"
	echomiddleware "github.com/labstack/echo/v4/middleware"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/rs/zerolog"

	"github.com/civicportal/resident-portal/internal/api/handler"
	"github.com/civicportal/resident-portal/internal/api/middleware"
	"github.com/civicportal/resident-portal/internal/core/ports"
)

// Deps is everything the gateway routes need.
type Deps struct {
	Sessions ports.SessionService
	Backend  handler.Backend
	Feeds    handler.FeedReader
	// Checks are run by the readiness probe, keyed by dependency name.
	Checks map[string]handler.Check
	Log    zerolog.Logger
	// Registry receives the HTTP metrics; nil uses the default registry.
	Registry *prometheus.Registry
}

// NewRouter builds and returns the Echo instance with all routes registered.
func NewRouter(d Deps) *echo.Echo {
	e := echo.New()
	e.HideBanner = true
	e.HidePort = true
	e.Validator = handler.NewValidator()
	e.HTTPErrorHandler = NewHTTPErrorHandler(d.Log, d.Sessions)

	// --- Global middleware ---
	e.Use(echomiddleware.Recover())
	e.Use(echomiddleware.RequestIDWithConfig(echomiddleware.RequestIDConfig{
		Generator: uuid.NewString,
	}))
	e.Use(requestLogger(d.Log))
	e.Use(metricsMiddleware(d.Registry))
	e.Use(middleware.Session(d.Sessions))

	// --- Health probes and metrics (no session required) ---
	e.GET("/health", handler.NewHealthHandler().Liveness)
	e.GET("/health/ready", handler.NewReadinessHandler(d.Checks).Readiness)
	e.GET("/metrics", metricsHandler(d.Registry))

	// --- Session routes ---
	sessionHandler := handler.NewSessionHandler(d.Sessions)
	e.GET(middleware.LoginPath, sessionHandler.LoginForm)
	e.POST(middleware.LoginPath, sessionHandler.Login)
	e.POST("/logout", sessionHandler.Logout)
	e.GET("/api/session", sessionHandler.Current)
	e.POST("/api/session/refresh", sessionHandler.Refresh)

	// --- Protected views ---
	views := handler.NewViewHandler(d.Backend, d.Feeds)
	anyUser := middleware.RouteGuard(d.Sessions, middleware.AnyAuthenticated())
	e.GET(middleware.HomePath, views.Home, anyUser)
	e.GET("/api/notifications", views.Feeds, anyUser)
	for _, v := range proxiedViews {
		e.GET(v.path, views.Proxy(v.backend), middleware.RouteGuard(d.Sessions, v.policy))
	}

	return e
}

func requestLogger(log zerolog.Logger) echo.MiddlewareFunc {
	return echomiddleware.RequestLoggerWithConfig(echomiddleware.RequestLoggerConfig{
		LogMethod:    true,
		LogURI:       true,
		LogStatus:    true,
		LogLatency:   true,
		LogRequestID: true,
		LogError:     true,
		HandleError:  true,
		LogValuesFunc: func(_ echo.Context, v echomiddleware.RequestLoggerValues) error {
			evt := log.Info()
			if v.Error != nil {
				evt = log.Warn().Err(v.Error)
			}
			evt.
				Str("method", v.Method).
				Str("uri", v.URI).
				Int("status", v.Status).
				Dur("latency", v.Latency).
				Str("request_id", v.RequestID).
				Msg("request")
			return nil
		},
	})
}

func metricsMiddleware(reg *prometheus.Registry) echo.MiddlewareFunc {
	cfg := echoprometheus.MiddlewareConfig{Namespace: "portal", Subsystem: "http"}
	if reg != nil {
		cfg.Registerer = reg
	}
	return echoprometheus.NewMiddlewareWithConfig(cfg)
}

func metricsHandler(reg *prometheus.Registry) echo.HandlerFunc {
	if reg == nil {
		return echoprometheus.NewHandler()
	}
	return echoprometheus.NewHandlerWithConfig(echoprometheus.HandlerConfig{Gatherer: reg})
}

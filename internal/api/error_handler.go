package api

import (
	"errors"
	"fmt"
	"net/http"
	"strings"

	"github.com/labstack/echo/v4"
	"github.com/rs/zerolog"

	"github.com/civicportal/resident-portal/internal/api/middleware"
	"github.com/civicportal/resident-portal/internal/core/domain"
	"github.com/civicportal/resident-portal/internal/infrastructure/portalapi"
)

// errorResponse is the canonical error envelope for all API errors.
type errorResponse struct {
	Error    string `json:"error"`
	Redirect string `json:"redirect,omitempty"`
}

// PathRecorder remembers where the user was headed when their session ended.
type PathRecorder interface {
	RememberPath(path string)
}

// NewHTTPErrorHandler returns an echo.HTTPErrorHandler that:
//   - Sends an expired session back to the login page, remembering the path.
//   - Maps known domain and backend errors to their HTTP status codes.
//   - Logs unexpected errors internally without leaking details to the client.
func NewHTTPErrorHandler(log zerolog.Logger, sessions PathRecorder) echo.HTTPErrorHandler {
	return func(err error, c echo.Context) {
		if c.Response().Committed {
			return
		}

		if errors.Is(err, domain.ErrSessionExpired) {
			handleExpired(c, sessions)
			return
		}

		code, msg := resolveError(err, log, c)
		_ = c.JSON(code, errorResponse{Error: msg})
	}
}

// handleExpired redirects page requests to the login page. API requests get
// a 401 naming the same destination.
func handleExpired(c echo.Context, sessions PathRecorder) {
	req := c.Request()
	isAPI := strings.HasPrefix(req.URL.Path, "/api/")
	if req.Method == http.MethodGet && !isAPI && sessions != nil {
		sessions.RememberPath(req.URL.RequestURI())
	}
	if isAPI {
		_ = c.JSON(http.StatusUnauthorized, errorResponse{
			Error:    domain.ErrSessionExpired.Error(),
			Redirect: middleware.LoginPath,
		})
		return
	}
	_ = c.Redirect(http.StatusFound, middleware.LoginPath)
}

func resolveError(err error, log zerolog.Logger, c echo.Context) (int, string) {
	// Echo's own errors (bind failures, 404 from router, etc.)
	var he *echo.HTTPError
	if errors.As(err, &he) {
		return he.Code, fmt.Sprintf("%v", he.Message)
	}

	// Authentication failures are shown verbatim.
	var authErr *domain.AuthenticationError
	if errors.As(err, &authErr) {
		if authErr.Err != nil {
			return http.StatusUnauthorized, authErr.Err.Error()
		}
		return http.StatusUnauthorized, authErr.Error()
	}

	switch {
	case errors.Is(err, domain.ErrInvalidCredentials):
		return http.StatusUnauthorized, err.Error()
	case errors.Is(err, domain.ErrIdentifierUnavailable):
		return http.StatusNotFound, err.Error()
	}

	var apiErr *portalapi.APIError
	if errors.As(err, &apiErr) && apiErr.Status >= http.StatusBadRequest {
		if apiErr.Status >= http.StatusInternalServerError {
			log.Warn().
				Int("status", apiErr.Status).
				Str("path", c.Path()).
				Msg("backend error")
			return http.StatusBadGateway, apiErr.Error()
		}
		return apiErr.Status, apiErr.Error()
	}

	// Unexpected error: log the real cause, return a generic message.
	log.Error().
		Err(err).
		Str("method", c.Request().Method).
		Str("path", c.Path()).
		Msg("unhandled error")

	return http.StatusInternalServerError, "internal server error"
}

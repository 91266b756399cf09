package handler

import (
	"net/http"

	"github.com/labstack/echo/v4"

	"github.com/civicportal/resident-portal/internal/api/middleware"
	"github.com/civicportal/resident-portal/internal/core/domain"
)

// ctxSession extracts the snapshot injected by the Session middleware and
// fails fast when it is missing or carries no user. Behind the route guard
// that only happens if the session ended mid-request.
func ctxSession(c echo.Context) (domain.Snapshot, error) {
	snap, ok := c.Get(middleware.SessionKey).(domain.Snapshot)
	if !ok {
		return domain.Snapshot{}, echo.NewHTTPError(http.StatusInternalServerError, "session middleware not installed")
	}
	if !snap.Authenticated() {
		return domain.Snapshot{}, domain.ErrSessionExpired
	}
	return snap, nil
}

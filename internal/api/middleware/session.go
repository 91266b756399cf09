package middleware

import (
	"github.com/labstack/echo/v4"

	"github.com/civicportal/resident-portal/internal/core/domain"
)

// SessionKey is the echo context key holding the request's session snapshot.
const SessionKey = "session"

// SnapshotSource publishes session snapshots.
type SnapshotSource interface {
	Snapshot() domain.Snapshot
}

// Session injects the current session snapshot into context so handlers see
// one consistent view for the whole request.
func Session(sessions SnapshotSource) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			c.Set(SessionKey, sessions.Snapshot())
			return next(c)
		}
	}
}

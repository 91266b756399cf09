package middleware

import (
	"net/http"

	"github.com/labstack/echo/v4"

	"github.com/civicportal/resident-portal/internal/core/domain"
	"github.com/civicportal/resident-portal/internal/pkg/metrics"
)

// Landing routes the guard redirects to.
const (
	LoginPath = "/login"
	HomePath  = "/"
	AdminPath = "/admin"
)

// Decision is the outcome of evaluating a route access policy.
type Decision string

const (
	DecisionAllow         Decision = "allow"
	DecisionWait          Decision = "wait"
	DecisionRedirectLogin Decision = "login"
	DecisionRedirectHome  Decision = "home"
	DecisionRedirectAdmin Decision = "admin"
)

// Policy declares which roles may enter a route. An empty policy admits any
// authenticated user.
type Policy struct {
	Roles []domain.Role
}

// AnyAuthenticated admits every logged-in user.
func AnyAuthenticated() Policy { return Policy{} }

// RequireRoles admits only the listed roles.
func RequireRoles(roles ...domain.Role) Policy { return Policy{Roles: roles} }

// Allows reports whether role may enter.
func (p Policy) Allows(role domain.Role) bool {
	if len(p.Roles) == 0 {
		return true
	}
	for _, r := range p.Roles {
		if role.Is(r) {
			return true
		}
	}
	return false
}

// GuardState is what the guard needs to know about the session.
type GuardState struct {
	Loading       bool
	Authenticated bool
	Role          domain.Role
}

// StateFromSnapshot projects a session snapshot onto GuardState.
func StateFromSnapshot(s domain.Snapshot) GuardState {
	return GuardState{Loading: s.Loading, Authenticated: s.Authenticated(), Role: s.Role()}
}

// Evaluate decides what to do with a navigation. It never yields a
// "forbidden" outcome: a role that may not enter is sent to its landing page.
func Evaluate(s GuardState, p Policy) Decision {
	switch {
	case s.Loading:
		return DecisionWait
	case !s.Authenticated:
		return DecisionRedirectLogin
	case !p.Allows(s.Role):
		if s.Role.IsAdmin() {
			return DecisionRedirectAdmin
		}
		return DecisionRedirectHome
	default:
		return DecisionAllow
	}
}

// SessionReader is the part of the session manager the guard uses.
type SessionReader interface {
	Snapshot() domain.Snapshot
	RememberPath(path string)
}

type waitingResponse struct {
	Status string `json:"status"`
}

// RouteGuard admits, holds or redirects requests according to policy.
func RouteGuard(sessions SessionReader, policy Policy) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			decision := Evaluate(StateFromSnapshot(sessions.Snapshot()), policy)
			metrics.GuardDecisionsTotal.WithLabelValues(string(decision)).Inc()

			switch decision {
			case DecisionWait:
				c.Response().Header().Set("Retry-After", "1")
				return c.JSON(http.StatusAccepted, waitingResponse{Status: "loading"})
			case DecisionRedirectLogin:
				sessions.RememberPath(c.Request().URL.RequestURI())
				return c.Redirect(http.StatusFound, LoginPath)
			case DecisionRedirectAdmin:
				return c.Redirect(http.StatusFound, AdminPath)
			case DecisionRedirectHome:
				return c.Redirect(http.StatusFound, HomePath)
			}
			return next(c)
		}
	}
}

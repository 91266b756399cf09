package middleware

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/labstack/echo/v4"

	"github.com/civicportal/resident-portal/internal/core/domain"
)

type stubSessions struct {
	snap       domain.Snapshot
	remembered string
}

func (s *stubSessions) Snapshot() domain.Snapshot { return s.snap }
func (s *stubSessions) RememberPath(path string)  { s.remembered = path }

func authenticated(role domain.Role) domain.Snapshot {
	return domain.Snapshot{State: domain.StateAuthenticated, User: &domain.User{ID: "1", Role: role}}
}

var adminOnly = RequireRoles(domain.RoleAdmin)

func TestEvaluate_LoadingNeverRedirects(t *testing.T) {
	states := []GuardState{
		{Loading: true},
		{Loading: true, Authenticated: true, Role: domain.RoleResident},
		{Loading: true, Authenticated: true, Role: domain.RoleAdmin},
	}
	for _, s := range states {
		for _, p := range []Policy{AnyAuthenticated(), adminOnly} {
			if got := Evaluate(s, p); got != DecisionWait {
				t.Fatalf("Evaluate(%+v, %+v) = %s, want wait", s, p, got)
			}
		}
	}
}

func TestEvaluate(t *testing.T) {
	tests := []struct {
		name   string
		state  GuardState
		policy Policy
		want   Decision
	}{
		{"anonymous", GuardState{}, AnyAuthenticated(), DecisionRedirectLogin},
		{"anonymous admin route", GuardState{}, adminOnly, DecisionRedirectLogin},
		{"resident open route", GuardState{Authenticated: true, Role: domain.RoleResident}, AnyAuthenticated(), DecisionAllow},
		{"resident admin route", GuardState{Authenticated: true, Role: domain.RoleResident}, adminOnly, DecisionRedirectHome},
		{"admin admin route lowercase", GuardState{Authenticated: true, Role: "admin"}, adminOnly, DecisionAllow},
		{"admin resident route", GuardState{Authenticated: true, Role: domain.RoleAdmin}, RequireRoles(domain.RoleResident), DecisionRedirectAdmin},
		{"no role admin route", GuardState{Authenticated: true}, adminOnly, DecisionRedirectHome},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := Evaluate(tt.state, tt.policy); got != tt.want {
				t.Fatalf("expected %s, got %s", tt.want, got)
			}
		})
	}
}

func runGuard(t *testing.T, sessions *stubSessions, policy Policy, target string) (*httptest.ResponseRecorder, bool) {
	t.Helper()
	e := echo.New()
	req := httptest.NewRequest(http.MethodGet, target, nil)
	rec := httptest.NewRecorder()
	c := e.NewContext(req, rec)

	called := false
	handler := RouteGuard(sessions, policy)(func(c echo.Context) error {
		called = true
		return c.NoContent(http.StatusOK)
	})
	if err := handler(c); err != nil {
		t.Fatalf("handler error: %v", err)
	}
	return rec, called
}

func TestRouteGuard_Waits(t *testing.T) {
	sessions := &stubSessions{snap: domain.Snapshot{State: domain.StateLoading, Loading: true}}

	rec, called := runGuard(t, sessions, AnyAuthenticated(), "/bills")

	if called {
		t.Fatalf("should not reach next while loading")
	}
	if rec.Code != http.StatusAccepted || rec.Header().Get("Location") != "" {
		t.Fatalf("expected neutral 202 without redirect, got %d %q", rec.Code, rec.Header().Get("Location"))
	}
	if sessions.remembered != "" {
		t.Fatalf("loading must not record a return path")
	}
}

func TestRouteGuard_AnonymousGoesToLogin(t *testing.T) {
	sessions := &stubSessions{snap: domain.Snapshot{State: domain.StateAnonymous}}

	rec, called := runGuard(t, sessions, AnyAuthenticated(), "/bills/42?tab=water")

	if called {
		t.Fatalf("should not reach next")
	}
	if rec.Code != http.StatusFound || rec.Header().Get("Location") != LoginPath {
		t.Fatalf("expected 302 to /login, got %d %q", rec.Code, rec.Header().Get("Location"))
	}
	if sessions.remembered != "/bills/42?tab=water" {
		t.Fatalf("attempted path not recorded: %q", sessions.remembered)
	}
}

func TestRouteGuard_ResidentOnAdminRoute(t *testing.T) {
	sessions := &stubSessions{snap: authenticated(domain.RoleResident)}

	rec, called := runGuard(t, sessions, adminOnly, "/admin/users")

	if called {
		t.Fatalf("should not reach next")
	}
	if rec.Code == http.StatusForbidden {
		t.Fatalf("authorization failure must not be a 403")
	}
	if loc := rec.Header().Get("Location"); loc != HomePath {
		t.Fatalf("expected redirect to /, got %q", loc)
	}
}

func TestRouteGuard_AdminOnResidentRoute(t *testing.T) {
	sessions := &stubSessions{snap: authenticated(domain.RoleAdmin)}

	rec, _ := runGuard(t, sessions, RequireRoles(domain.RoleResident), "/kindergartens/enroll")

	if loc := rec.Header().Get("Location"); loc != AdminPath {
		t.Fatalf("expected redirect to /admin, got %q", loc)
	}
}

func TestRouteGuard_Allows(t *testing.T) {
	sessions := &stubSessions{snap: authenticated("Admin")}

	rec, called := runGuard(t, sessions, adminOnly, "/admin")

	if !called {
		t.Fatalf("next handler not called")
	}
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
}

func TestSession_InjectsSnapshot(t *testing.T) {
	e := echo.New()
	c := e.NewContext(httptest.NewRequest(http.MethodGet, "/", nil), httptest.NewRecorder())
	sessions := &stubSessions{snap: authenticated(domain.RoleResident)}

	handler := Session(sessions)(func(c echo.Context) error {
		snap, ok := c.Get(SessionKey).(domain.Snapshot)
		if !ok || snap.User.ID != "1" {
			t.Fatalf("snapshot not injected: %+v", c.Get(SessionKey))
		}
		return nil
	})
	if err := handler(c); err != nil {
		t.Fatalf("handler error: %v", err)
	}
}

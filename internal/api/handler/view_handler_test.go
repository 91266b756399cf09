package handler

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"testing"
	"time"

	"github.com/labstack/echo/v4"

	"github.com/civicportal/resident-portal/internal/api/middleware"
	"github.com/civicportal/resident-portal/internal/core/domain"
	"github.com/civicportal/resident-portal/internal/infrastructure/poller"
	"github.com/civicportal/resident-portal/internal/infrastructure/portalapi"
)

type stubBackend struct {
	getFn func(ctx context.Context, path string, out any) error
}

func (s *stubBackend) GetJSON(ctx context.Context, path string, out any) error {
	return s.getFn(ctx, path, out)
}

type stubFeeds struct {
	feeds poller.Feeds
}

func (s *stubFeeds) Latest() poller.Feeds { return s.feeds }

func withSession(c echo.Context, snap domain.Snapshot) {
	c.Set(middleware.SessionKey, snap)
}

var resident = domain.Snapshot{
	State: domain.StateAuthenticated,
	User:  &domain.User{ID: "7", Email: "ana@city.gov", Role: domain.RoleResident},
}

func TestViewHandler_Proxy(t *testing.T) {
	backend := &stubBackend{getFn: func(_ context.Context, path string, out any) error {
		if path != "/api/bills" {
			t.Fatalf("unexpected path %q", path)
		}
		*(out.(*json.RawMessage)) = json.RawMessage(`[{"id":1,"amount":12.5}]`)
		return nil
	}}
	h := NewViewHandler(backend, &stubFeeds{})

	c, rec := newTestContext(http.MethodGet, "/bills", "")
	withSession(c, resident)
	if err := h.Proxy("/api/bills")(c); err != nil {
		t.Fatalf("handler error: %v", err)
	}

	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
	var resp struct {
		User *domain.User     `json:"user"`
		Data []map[string]any `json:"data"`
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatalf("invalid json: %v", err)
	}
	if resp.User.ID != "7" || len(resp.Data) != 1 {
		t.Fatalf("unexpected payload: %s", rec.Body.String())
	}
}

func TestViewHandler_Proxy_PropagatesBackendError(t *testing.T) {
	backendErr := &portalapi.APIError{Kind: portalapi.KindHTTP, Status: http.StatusBadGateway, Message: "upstream down"}
	h := NewViewHandler(&stubBackend{getFn: func(context.Context, string, any) error { return backendErr }}, &stubFeeds{})

	c, _ := newTestContext(http.MethodGet, "/complaints", "")
	withSession(c, resident)
	err := h.Proxy("/api/complaints")(c)

	if !errors.Is(err, backendErr) {
		t.Fatalf("expected backend error, got %v", err)
	}
}

func TestViewHandler_Proxy_SessionEndedMidRequest(t *testing.T) {
	h := NewViewHandler(&stubBackend{getFn: func(context.Context, string, any) error {
		t.Fatalf("backend should not be called")
		return nil
	}}, &stubFeeds{})

	c, _ := newTestContext(http.MethodGet, "/bills", "")
	withSession(c, domain.Snapshot{State: domain.StateAnonymous})

	if err := h.Proxy("/api/bills")(c); !errors.Is(err, domain.ErrSessionExpired) {
		t.Fatalf("expected ErrSessionExpired, got %v", err)
	}
}

func TestViewHandler_Home(t *testing.T) {
	feeds := &stubFeeds{feeds: poller.Feeds{
		Notifications: []portalapi.Notification{{ID: "1", Read: true}, {ID: "2"}},
		Announcements: []portalapi.Announcement{{ID: "a"}},
	}}
	h := NewViewHandler(&stubBackend{}, feeds)

	c, rec := newTestContext(http.MethodGet, "/", "")
	withSession(c, resident)
	if err := h.Home(c); err != nil {
		t.Fatalf("handler error: %v", err)
	}

	var resp homeResponse
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatalf("invalid json: %v", err)
	}
	if resp.Notifications != 2 || resp.Unread != 1 || resp.Announcements != 1 || resp.Admin {
		t.Fatalf("unexpected home payload: %+v", resp)
	}
}

func TestViewHandler_Feeds_EmptyLists(t *testing.T) {
	h := NewViewHandler(&stubBackend{}, &stubFeeds{})

	c, rec := newTestContext(http.MethodGet, "/api/notifications", "")
	withSession(c, resident)
	if err := h.Feeds(c); err != nil {
		t.Fatalf("handler error: %v", err)
	}

	var resp map[string]any
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatalf("invalid json: %v", err)
	}
	if list, ok := resp["notifications"].([]any); !ok || len(list) != 0 {
		t.Fatalf("expected empty notifications list, got %v", resp["notifications"])
	}
	if _, ok := resp["updated_at"]; ok {
		t.Fatalf("updated_at should be omitted before the first poll")
	}
}

func TestViewHandler_Feeds_UpdatedAt(t *testing.T) {
	at := time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC)
	h := NewViewHandler(&stubBackend{}, &stubFeeds{feeds: poller.Feeds{UpdatedAt: at}})

	c, rec := newTestContext(http.MethodGet, "/api/notifications", "")
	withSession(c, resident)
	if err := h.Feeds(c); err != nil {
		t.Fatalf("handler error: %v", err)
	}

	var resp feedsResponse
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatalf("invalid json: %v", err)
	}
	if resp.UpdatedAt == nil || !resp.UpdatedAt.Equal(at) {
		t.Fatalf("unexpected updated_at: %v", resp.UpdatedAt)
	}
}

func TestReadiness(t *testing.T) {
	h := NewReadinessHandler(map[string]Check{
		"token_store": nil,
		"backend":     func(context.Context) error { return errors.New("connection refused") },
	})

	c, rec := newTestContext(http.MethodGet, "/health/ready", "")
	if err := h.Readiness(c); err != nil {
		t.Fatalf("handler error: %v", err)
	}

	if rec.Code != http.StatusServiceUnavailable {
		t.Fatalf("expected 503, got %d", rec.Code)
	}
	var resp readinessResponse
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatalf("invalid json: %v", err)
	}
	if resp.Dependencies["token_store"].Status != "ok" || resp.Dependencies["backend"].Error != "connection refused" {
		t.Fatalf("unexpected dependencies: %+v", resp.Dependencies)
	}
}

func TestLiveness(t *testing.T) {
	c, rec := newTestContext(http.MethodGet, "/health", "")
	if err := NewHealthHandler().Liveness(c); err != nil {
		t.Fatalf("handler error: %v", err)
	}
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
}

package handler

import (
	"context"
	"encoding/json"
	"net/http"
	"time"

	"github.com/labstack/echo/v4"

	"github.com/civicportal/resident-portal/internal/core/domain"
	"github.com/civicportal/resident-portal/internal/infrastructure/poller"
)

// Backend fetches JSON documents from the municipal API.
type Backend interface {
	GetJSON(ctx context.Context, path string, out any) error
}

// FeedReader exposes the most recent polled feeds.
type FeedReader interface {
	Latest() poller.Feeds
}

// ViewHandler serves the portal's protected views. Views are thin: they
// pair the session user with whatever the backend returns.
type ViewHandler struct {
	backend Backend
	feeds   FeedReader
}

func NewViewHandler(backend Backend, feeds FeedReader) *ViewHandler {
	return &ViewHandler{backend: backend, feeds: feeds}
}

type homeResponse struct {
	User          *domain.User `json:"user"`
	Admin         bool         `json:"admin"`
	Notifications int          `json:"notifications"`
	Unread        int          `json:"unread"`
	Announcements int          `json:"announcements"`
}

type viewResponse struct {
	User *domain.User    `json:"user"`
	Data json.RawMessage `json:"data"`
}

type feedsResponse struct {
	Notifications any        `json:"notifications"`
	Announcements any        `json:"announcements"`
	UpdatedAt     *time.Time `json:"updated_at,omitempty"`
}

// Home godoc
//
// @Summary      Landing page
// @Tags         views
// @Produce      json
// @Success      200  {object}  homeResponse
// @Router       / [get]
func (h *ViewHandler) Home(c echo.Context) error {
	snap, err := ctxSession(c)
	if err != nil {
		return err
	}

	feeds := h.feeds.Latest()
	unread := 0
	for _, n := range feeds.Notifications {
		if !n.Read {
			unread++
		}
	}
	return c.JSON(http.StatusOK, homeResponse{
		User:          snap.User,
		Admin:         snap.Role().IsAdmin(),
		Notifications: len(feeds.Notifications),
		Unread:        unread,
		Announcements: len(feeds.Announcements),
	})
}

// Feeds godoc
//
// @Summary      Latest notifications and announcements
// @Tags         views
// @Produce      json
// @Success      200  {object}  feedsResponse
// @Router       /api/notifications [get]
func (h *ViewHandler) Feeds(c echo.Context) error {
	if _, err := ctxSession(c); err != nil {
		return err
	}

	feeds := h.feeds.Latest()
	resp := feedsResponse{
		Notifications: emptyIfNil(feeds.Notifications),
		Announcements: emptyIfNil(feeds.Announcements),
	}
	if !feeds.UpdatedAt.IsZero() {
		resp.UpdatedAt = &feeds.UpdatedAt
	}
	return c.JSON(http.StatusOK, resp)
}

// Proxy returns a view backed by a single backend document at path.
func (h *ViewHandler) Proxy(path string) echo.HandlerFunc {
	return func(c echo.Context) error {
		snap, err := ctxSession(c)
		if err != nil {
			return err
		}

		var data json.RawMessage
		if err := h.backend.GetJSON(c.Request().Context(), path, &data); err != nil {
			return err
		}
		if len(data) == 0 {
			data = json.RawMessage("null")
		}
		return c.JSON(http.StatusOK, viewResponse{User: snap.User, Data: data})
	}
}

func emptyIfNil[T any](items []T) []T {
	if items == nil {
		return []T{}
	}
	return items
}

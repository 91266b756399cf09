package handler

import (
	"errors"
	"net/http"

	"github.com/labstack/echo/v4"

	"github.com/civicportal/resident-portal/internal/core/domain"
	"github.com/civicportal/resident-portal/internal/core/ports"
)

type SessionHandler struct {
	sessions ports.SessionService
}

func NewSessionHandler(sessions ports.SessionService) *SessionHandler {
	return &SessionHandler{sessions: sessions}
}

type loginRequest struct {
	Email    string `json:"email" form:"email" validate:"required,max=254"`
	Password string `json:"password" form:"password" validate:"required,max=512"`
}

type loginResponse struct {
	Redirect string       `json:"redirect"`
	User     *domain.User `json:"user"`
}

type sessionResponse struct {
	State         domain.SessionState `json:"state"`
	Authenticated bool                `json:"authenticated"`
	Loading       bool                `json:"loading"`
	Admin         bool                `json:"admin"`
	User          *domain.User        `json:"user,omitempty"`
	Error         string              `json:"error,omitempty"`
}

func toSessionResponse(s domain.Snapshot) sessionResponse {
	resp := sessionResponse{
		State:         s.State,
		Authenticated: s.Authenticated(),
		Loading:       s.Loading,
		Admin:         s.Role().IsAdmin(),
		User:          s.User,
	}
	if s.Err != nil {
		resp.Error = s.Err.Error()
	}
	return resp
}

// LoginForm describes the login form, or sends an authenticated user on to
// their landing page.
//
// @Summary      Login form
// @Tags         session
// @Produce      json
// @Success      200  {object}  map[string][]string
// @Success      302
// @Router       /login [get]
func (h *SessionHandler) LoginForm(c echo.Context) error {
	if h.sessions.IsAuthenticated() {
		return c.Redirect(http.StatusFound, h.sessions.TakeReturnPath())
	}
	return c.JSON(http.StatusOK, map[string][]string{"fields": {"email", "password"}})
}

// Login authenticates against the backend and returns where to go next.
//
// @Summary      Login
// @Tags         session
// @Accept       json
// @Produce      json
// @Param        body  body      loginRequest  true  "Login credentials"
// @Success      200   {object}  loginResponse
// @Failure      400   {object}  map[string]string
// @Failure      401   {object}  map[string]string
// @Failure      422   {object}  map[string]string
// @Router       /login [post]
func (h *SessionHandler) Login(c echo.Context) error {
	var req loginRequest
	if err := c.Bind(&req); err != nil {
		return c.JSON(http.StatusBadRequest, map[string]string{"error": "invalid payload"})
	}
	if err := c.Validate(&req); err != nil {
		return c.JSON(http.StatusUnprocessableEntity, map[string]string{"error": err.Error()})
	}

	err := h.sessions.Login(c.Request().Context(), domain.Credentials{Identifier: req.Email, Password: req.Password})
	if err != nil {
		var authErr *domain.AuthenticationError
		if errors.As(err, &authErr) {
			// Shown to the user verbatim.
			msg := err.Error()
			if authErr.Err != nil {
				msg = authErr.Err.Error()
			}
			return c.JSON(http.StatusUnauthorized, map[string]string{"error": msg})
		}
		return err
	}

	return c.JSON(http.StatusOK, loginResponse{
		Redirect: h.sessions.TakeReturnPath(),
		User:     h.sessions.Snapshot().User,
	})
}

// Logout ends the session and hard-redirects to the root page.
//
// @Summary      Logout
// @Tags         session
// @Success      303
// @Router       /logout [post]
func (h *SessionHandler) Logout(c echo.Context) error {
	redirect := h.sessions.Logout(c.Request().Context())
	if redirect.Hard {
		c.Response().Header().Set("Clear-Site-Data", `"cache", "storage"`)
		c.Response().Header().Set(echo.HeaderCacheControl, "no-store")
	}
	return c.Redirect(http.StatusSeeOther, redirect.Path)
}

// Current returns the session as the portal sees it.
//
// @Summary      Current session
// @Tags         session
// @Produce      json
// @Success      200  {object}  sessionResponse
// @Router       /api/session [get]
func (h *SessionHandler) Current(c echo.Context) error {
	return c.JSON(http.StatusOK, toSessionResponse(h.sessions.Snapshot()))
}

// Refresh re-fetches the profile.
//
// @Summary      Refresh the profile
// @Tags         session
// @Produce      json
// @Success      200  {object}  sessionResponse
// @Failure      401  {object}  map[string]string
// @Router       /api/session/refresh [post]
func (h *SessionHandler) Refresh(c echo.Context) error {
	if err := h.sessions.Refresh(c.Request().Context()); err != nil {
		if errors.Is(err, domain.ErrNoCredential) {
			return domain.ErrSessionExpired
		}
		return err
	}
	return c.JSON(http.StatusOK, toSessionResponse(h.sessions.Snapshot()))
}

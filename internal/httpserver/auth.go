package httpserver

import (
	"errors"
	"net/http"
	"time"

	"github.com/labstack/echo/v4"

	"github.com/tipline/tipline/internal/middleware"
	"github.com/tipline/tipline/internal/repo"
	"github.com/tipline/tipline/internal/service"
	"github.com/tipline/tipline/internal/transport"
	"github.com/tipline/tipline/pkg/cookies"
	"github.com/tipline/tipline/pkg/logging"
)

const (
	refreshCookieName = "refresh_token"
	// The cookie is scoped to the auth group so browsers never attach the
	// refresh token to ordinary API calls.
	refreshCookiePath = "/api/v1/auth"
)

type AuthHTTP struct {
	Svc          *service.AuthService
	CookieSecure bool
}

func deviceInfo(c echo.Context) repo.DeviceInfo {
	return repo.DeviceInfo{
		UserAgent: c.Request().UserAgent(),
		IP:        c.RealIP(),
	}
}

func (h *AuthHTTP) setRefreshCookie(c echo.Context, value string, exp time.Time) {
	c.SetCookie(cookies.Create(refreshCookieName, value, refreshCookiePath, exp, h.CookieSecure))
}

func (h *AuthHTTP) clearRefreshCookie(c echo.Context) {
	c.SetCookie(cookies.Delete(refreshCookieName, refreshCookiePath, h.CookieSecure))
}

func (h *AuthHTTP) Register(c echo.Context) error {
	ctx := c.Request().Context()
	l := logging.FromContext(ctx).With("handler", "auth.register")

	var req transport.RegisterRequest
	if err := c.Bind(&req); err != nil {
		l.Warn("register_error", "status", 400, "error", err)
		return echo.NewHTTPError(http.StatusBadRequest, "invalid body")
	}

	user, err := h.Svc.Register(ctx, req.Email, req.Username, req.Password)
	if err != nil {
		switch {
		case errors.Is(err, service.ErrValidation):
			return echo.NewHTTPError(http.StatusBadRequest, "email, username and a password of at least 8 characters are required")
		case errors.Is(err, service.ErrConflict):
			return echo.NewHTTPError(http.StatusConflict, "email or username already taken")
		default:
			return echo.NewHTTPError(http.StatusInternalServerError, "registration failed")
		}
	}

	return c.JSON(http.StatusCreated, transport.NewUserSummary(user))
}

func (h *AuthHTTP) Login(c echo.Context) error {
	ctx := c.Request().Context()
	l := logging.FromContext(ctx).With("handler", "auth.login")

	var req transport.LoginRequest
	if err := c.Bind(&req); err != nil {
		l.Warn("login_error", "status", 400, "error", err)
		return echo.NewHTTPError(http.StatusBadRequest, "invalid body")
	}

	res, err := h.Svc.Login(ctx, req.Email, req.Password, deviceInfo(c))
	if err != nil {
		switch {
		case errors.Is(err, service.ErrValidation), errors.Is(err, service.ErrInvalidCredentials):
			return echo.NewHTTPError(http.StatusUnauthorized, "invalid email or password")
		case errors.Is(err, service.ErrAccountBanned):
			return echo.NewHTTPError(http.StatusForbidden, "account suspended")
		default:
			return echo.NewHTTPError(http.StatusInternalServerError, "login failed")
		}
	}

	h.setRefreshCookie(c, res.RefreshToken, res.RefreshExp)

	return c.JSON(http.StatusCreated, transport.AuthResponse{
		AccessToken: res.AccessToken,
		ExpiresAt:   res.AccessExp.Unix(),
		User:        transport.NewUserSummary(res.User),
	})
}

// Refresh exchanges the cookie-borne refresh token for a fresh pair. All
// failure causes collapse to one neutral 401: the split between
// invalid/expired/reuse stays in the server logs.
func (h *AuthHTTP) Refresh(c echo.Context) error {
	ctx := c.Request().Context()

	cookie, err := c.Cookie(refreshCookieName)
	if err != nil || cookie.Value == "" {
		h.clearRefreshCookie(c)
		return echo.NewHTTPError(http.StatusUnauthorized, "session expired, please sign in again")
	}

	res, err := h.Svc.Refresh(ctx, cookie.Value, deviceInfo(c))
	if err != nil {
		h.clearRefreshCookie(c)
		switch {
		case errors.Is(err, service.ErrRefreshTokenInvalid),
			errors.Is(err, service.ErrRefreshTokenExpired),
			errors.Is(err, service.ErrRefreshTokenReuse),
			errors.Is(err, service.ErrAccountBanned):
			return echo.NewHTTPError(http.StatusUnauthorized, "session expired, please sign in again")
		default:
			return echo.NewHTTPError(http.StatusInternalServerError, "refresh failed")
		}
	}

	h.setRefreshCookie(c, res.RefreshToken, res.RefreshExp)

	return c.JSON(http.StatusOK, transport.RefreshResponse{
		AccessToken: res.AccessToken,
		ExpiresAt:   res.AccessExp.Unix(),
	})
}

// LogOut revokes the presented session, and with ?all=1 every session of the
// caller. The cookie-borne token is revoked even when the access token is
// missing or stale, so logging out always works. Safe to call twice; a
// missing or dead cookie still returns 200.
func (h *AuthHTTP) LogOut(c echo.Context) error {
	ctx := c.Request().Context()
	l := logging.FromContext(ctx).With("handler", "auth.logout")

	if cookie, err := c.Cookie(refreshCookieName); err == nil {
		if err := h.Svc.LogOut(ctx, cookie.Value); err != nil {
			l.Error("logout_failed", "status", 500, "error", err)
			return echo.NewHTTPError(http.StatusInternalServerError, "logout failed")
		}
	}

	if c.QueryParam("all") == "1" {
		if userID, ok := middleware.UserIDFrom(c); ok {
			if err := h.Svc.LogOutAll(ctx, userID); err != nil {
				l.Error("logout_failed", "status", 500, "error", err)
				return echo.NewHTTPError(http.StatusInternalServerError, "logout failed")
			}
		}
	}

	h.clearRefreshCookie(c)
	return c.JSON(http.StatusOK, echo.Map{"message": "logged out"})
}

func (h *AuthHTTP) Sessions(c echo.Context) error {
	ctx := c.Request().Context()

	userID, ok := middleware.UserIDFrom(c)
	if !ok {
		return echo.NewHTTPError(http.StatusUnauthorized, "missing access token")
	}

	recs, err := h.Svc.Sessions(ctx, userID)
	if err != nil {
		return echo.NewHTTPError(http.StatusInternalServerError, "cannot list sessions")
	}

	out := make([]transport.SessionSummary, 0, len(recs))
	for _, rec := range recs {
		out = append(out, transport.SessionSummary{
			ID:        rec.ID,
			UserAgent: rec.UserAgent,
			IP:        rec.IP,
			CreatedAt: rec.CreatedAt,
			ExpiresAt: rec.ExpiresAt,
		})
	}
	return c.JSON(http.StatusOK, echo.Map{"sessions": out})
}

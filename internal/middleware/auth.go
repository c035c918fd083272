package middleware

import (
	"errors"
	"net/http"
	"strings"

	"github.com/google/uuid"
	"github.com/labstack/echo/v4"

	"github.com/tipline/tipline/internal/models"
	"github.com/tipline/tipline/pkg/tokens"
)

const (
	ContextUserID = "user_id"
	ContextRole   = "role"
)

// Guard verifies access tokens on incoming requests. It never touches the
// refresh endpoint or the store; renewing an expired token is the client's
// job.
type Guard struct {
	JWTSecret []byte
}

func NewGuard(secret []byte) *Guard {
	return &Guard{JWTSecret: secret}
}

func bearerToken(c echo.Context) string {
	h := c.Request().Header.Get(echo.HeaderAuthorization)
	const prefix = "Bearer "
	if !strings.HasPrefix(h, prefix) {
		return ""
	}
	return strings.TrimSpace(h[len(prefix):])
}

func (g *Guard) RequireAuth(next echo.HandlerFunc) echo.HandlerFunc {
	return func(c echo.Context) error {
		raw := bearerToken(c)
		if raw == "" {
			return echo.NewHTTPError(http.StatusUnauthorized, "missing access token")
		}

		claims, err := tokens.VerifyAccessToken(raw, g.JWTSecret)
		if err != nil {
			if errors.Is(err, tokens.ErrTokenExpired) {
				return echo.NewHTTPError(http.StatusUnauthorized, "access token expired")
			}
			return echo.NewHTTPError(http.StatusUnauthorized, "invalid access token")
		}

		if err := setIdentity(c, claims); err != nil {
			return echo.NewHTTPError(http.StatusUnauthorized, "invalid access token")
		}
		return next(c)
	}
}

// RequireRole layers a capability check on top of RequireAuth. Role compare
// uses the models.Role ordering, not string equality.
func (g *Guard) RequireRole(want models.Role) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return g.RequireAuth(func(c echo.Context) error {
			role, ok := RoleFrom(c)
			if !ok || !role.AtLeast(want) {
				return echo.NewHTTPError(http.StatusForbidden, "not enough rights")
			}
			return next(c)
		})
	}
}

// OptionalAuth attaches identity when a valid token is present and proceeds
// anonymously otherwise. It never rejects: endpoints behind it must work for
// logged-out callers.
func (g *Guard) OptionalAuth(next echo.HandlerFunc) echo.HandlerFunc {
	return func(c echo.Context) error {
		raw := bearerToken(c)
		if raw == "" {
			return next(c)
		}
		claims, err := tokens.VerifyAccessToken(raw, g.JWTSecret)
		if err != nil {
			return next(c)
		}
		_ = setIdentity(c, claims)
		return next(c)
	}
}

func setIdentity(c echo.Context, claims *tokens.AccessClaims) error {
	id, err := uuid.Parse(claims.Subject)
	if err != nil {
		return err
	}
	role, err := models.ParseRole(claims.Role)
	if err != nil {
		return err
	}
	c.Set(ContextUserID, id)
	c.Set(ContextRole, role)
	return nil
}

func UserIDFrom(c echo.Context) (uuid.UUID, bool) {
	id, ok := c.Get(ContextUserID).(uuid.UUID)
	return id, ok
}

func RoleFrom(c echo.Context) (models.Role, bool) {
	role, ok := c.Get(ContextRole).(models.Role)
	return role, ok
}

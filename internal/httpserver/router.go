package httpserver

import (
	"net/http"

	"github.com/labstack/echo/v4"

	"github.com/tipline/tipline/internal/middleware"
	"github.com/tipline/tipline/internal/models"
)

type Deps struct {
	AuthHandler *AuthHTTP
	TipHandler  *TipHTTP
	Guard       *middleware.Guard
}

func Register(e *echo.Echo, d *Deps) {
	e.GET("/health/live", func(c echo.Context) error { return c.NoContent(http.StatusOK) })
	e.GET("/health/ready", func(c echo.Context) error { return c.NoContent(http.StatusOK) })

	v1 := e.Group("/api/v1")

	auth := v1.Group("/auth")
	auth.POST("/register", d.AuthHandler.Register)
	auth.POST("/login", d.AuthHandler.Login)
	auth.POST("/refresh", d.AuthHandler.Refresh)
	// Logout works from the cookie alone; OptionalAuth only feeds the
	// ?all=1 variant, which needs to know who is asking.
	auth.POST("/logout", d.AuthHandler.LogOut, d.Guard.OptionalAuth)
	auth.GET("/sessions", d.AuthHandler.Sessions, d.Guard.RequireAuth)

	tips := v1.Group("/tips")
	tips.GET("", d.TipHandler.ListTips)
	tips.GET("/:id", d.TipHandler.GetTip, d.Guard.OptionalAuth)
	tips.GET("/:id/comments", d.TipHandler.ListComments)
	tips.POST("", d.TipHandler.CreateTip, d.Guard.RequireAuth)
	tips.POST("/:id/comments", d.TipHandler.AddComment, d.Guard.RequireAuth)

	v1.GET("/search", d.TipHandler.SearchTips)

	admin := v1.Group("/admin", d.Guard.RequireRole(models.RoleModerator))
	admin.DELETE("/tips/:id", d.TipHandler.HideTip)
}

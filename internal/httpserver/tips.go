package httpserver

import (
	"errors"
	"net/http"
	"strconv"

	"github.com/google/uuid"
	"github.com/labstack/echo/v4"
	"gorm.io/gorm"

	"github.com/tipline/tipline/internal/middleware"
	"github.com/tipline/tipline/internal/search"
	"github.com/tipline/tipline/internal/service"
	"github.com/tipline/tipline/internal/transport"
	"github.com/tipline/tipline/pkg/logging"
)

type TipHTTP struct {
	Svc    *service.TipService
	Search *search.Client
}

func parseIntDefault(s string, def int) int {
	n, err := strconv.Atoi(s)
	if err != nil || n <= 0 {
		return def
	}
	return n
}

func (h *TipHTTP) CreateTip(c echo.Context) error {
	ctx := c.Request().Context()
	l := logging.FromContext(ctx).With("handler", "tips.create")

	authorID, ok := middleware.UserIDFrom(c)
	if !ok {
		return echo.NewHTTPError(http.StatusUnauthorized, "missing access token")
	}

	var req transport.CreateTipRequest
	if err := c.Bind(&req); err != nil {
		l.Warn("tip_create_error", "status", 400, "error", err)
		return echo.NewHTTPError(http.StatusBadRequest, "invalid body")
	}

	tip, err := h.Svc.CreateTip(ctx, authorID, req.Match, req.Pick, req.Odds, req.Analysis)
	if err != nil {
		if errors.Is(err, service.ErrValidation) {
			return echo.NewHTTPError(http.StatusBadRequest, "match, pick and odds >= 1.0 are required")
		}
		return echo.NewHTTPError(http.StatusInternalServerError, "cannot create tip")
	}

	return c.JSON(http.StatusCreated, tip)
}

func (h *TipHTTP) ListTips(c echo.Context) error {
	ctx := c.Request().Context()

	page := parseIntDefault(c.QueryParam("page"), 1)
	size := parseIntDefault(c.QueryParam("size"), 20)
	if size > 100 {
		size = 100
	}
	offset := (page - 1) * size

	total, items, err := h.Svc.ListTips(ctx, offset, size)
	if err != nil {
		return echo.NewHTTPError(http.StatusInternalServerError, "cannot list tips")
	}

	return c.JSON(http.StatusOK, echo.Map{
		"data": items,
		"meta": echo.Map{
			"page":  page,
			"size":  size,
			"total": total,
		},
	})
}

// GetTip sits behind OptionalAuth: the viewer identity decides both view
// counting and whether a hidden tip is visible at all.
func (h *TipHTTP) GetTip(c echo.Context) error {
	ctx := c.Request().Context()

	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid tip id")
	}

	viewerID, _ := middleware.UserIDFrom(c)
	viewerRole, _ := middleware.RoleFrom(c)

	tip, err := h.Svc.GetTip(ctx, id, viewerID, viewerRole)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return echo.NewHTTPError(http.StatusNotFound, "tip not found")
		}
		return echo.NewHTTPError(http.StatusInternalServerError, "cannot get tip")
	}

	return c.JSON(http.StatusOK, tip)
}

func (h *TipHTTP) HideTip(c echo.Context) error {
	ctx := c.Request().Context()

	moderatorID, _ := middleware.UserIDFrom(c)

	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid tip id")
	}

	if err := h.Svc.HideTip(ctx, id, moderatorID); err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return echo.NewHTTPError(http.StatusNotFound, "tip not found")
		}
		return echo.NewHTTPError(http.StatusInternalServerError, "cannot hide tip")
	}

	return c.NoContent(http.StatusNoContent)
}

func (h *TipHTTP) AddComment(c echo.Context) error {
	ctx := c.Request().Context()

	authorID, ok := middleware.UserIDFrom(c)
	if !ok {
		return echo.NewHTTPError(http.StatusUnauthorized, "missing access token")
	}

	tipID, err := uuid.Parse(c.Param("id"))
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid tip id")
	}

	var req transport.CreateCommentRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid body")
	}

	comment, err := h.Svc.AddComment(ctx, tipID, authorID, req.Body)
	if err != nil {
		switch {
		case errors.Is(err, service.ErrValidation):
			return echo.NewHTTPError(http.StatusBadRequest, "comment body is required")
		case errors.Is(err, gorm.ErrRecordNotFound):
			return echo.NewHTTPError(http.StatusNotFound, "tip not found")
		default:
			return echo.NewHTTPError(http.StatusInternalServerError, "cannot add comment")
		}
	}

	return c.JSON(http.StatusCreated, comment)
}

func (h *TipHTTP) ListComments(c echo.Context) error {
	ctx := c.Request().Context()

	tipID, err := uuid.Parse(c.Param("id"))
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid tip id")
	}

	comments, err := h.Svc.ListComments(ctx, tipID)
	if err != nil {
		return echo.NewHTTPError(http.StatusInternalServerError, "cannot list comments")
	}
	return c.JSON(http.StatusOK, echo.Map{"comments": comments})
}

func (h *TipHTTP) SearchTips(c echo.Context) error {
	ctx := c.Request().Context()

	if h.Search == nil {
		return echo.NewHTTPError(http.StatusServiceUnavailable, "search is not configured")
	}

	q := c.QueryParam("q")
	if q == "" {
		return echo.NewHTTPError(http.StatusBadRequest, "query parameter q is required")
	}

	page := parseIntDefault(c.QueryParam("page"), 1)
	size := parseIntDefault(c.QueryParam("size"), 20)
	from := (page - 1) * size

	res, err := h.Search.SearchTips(ctx, q, from, size)
	if err != nil {
		logging.FromContext(ctx).Error("search_failed", "status", 500, "error", err)
		return echo.NewHTTPError(http.StatusInternalServerError, "search failed")
	}

	return c.JSON(http.StatusOK, echo.Map{"total": res.Total, "ids": res.IDs})
}

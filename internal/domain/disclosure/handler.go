package disclosure

import (
	"net/http"

	"github.com/labstack/echo/v4"

	"github.com/Oluwataye/Seeklab-sub001/internal/platform/apperr"
)

type Handler struct {
	svc *Service
}

func NewHandler(svc *Service) *Handler {
	return &Handler{svc: svc}
}

// RegisterRoutes mounts the patient-facing routes. They authenticate by
// access code or session id only, so callers apply rate limiting instead of
// staff roles.
func (h *Handler) RegisterRoutes(api *echo.Group, mw ...echo.MiddlewareFunc) {
	api.POST("/results/access", h.Open, mw...)
	api.GET("/disclosure/sessions/:id", h.View, mw...)
}

func (h *Handler) Open(c echo.Context) error {
	var req struct {
		Code string `json:"code"`
	}
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid request body")
	}
	v, err := h.svc.Open(c.Request().Context(), req.Code)
	if err != nil {
		return apperr.HTTPError(err)
	}
	return c.JSON(http.StatusOK, v)
}

func (h *Handler) View(c echo.Context) error {
	v, err := h.svc.View(c.Request().Context(), c.Param("id"))
	if err != nil {
		return apperr.HTTPError(err)
	}
	return c.JSON(http.StatusOK, v)
}

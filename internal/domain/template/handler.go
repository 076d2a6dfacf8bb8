package template

import (
	"net/http"

	"github.com/labstack/echo/v4"

	"github.com/Oluwataye/Seeklab-sub001/internal/platform/apperr"
	"github.com/Oluwataye/Seeklab-sub001/internal/platform/auth"
)

type Handler struct {
	svc *Service
}

func NewHandler(svc *Service) *Handler {
	return &Handler{svc: svc}
}

func (h *Handler) RegisterRoutes(api *echo.Group) {
	read := api.Group("", auth.RequireRole(auth.StaffRoles()...))
	read.GET("/result-templates", h.ListTemplates)
	read.GET("/result-templates/:id", h.GetTemplate)

	write := api.Group("", auth.RequireRole(auth.RoleAdmin, auth.RoleScientist))
	write.POST("/result-templates", h.CreateTemplate)
}

func (h *Handler) ListTemplates(c echo.Context) error {
	items, err := h.svc.ListTemplates(c.Request().Context())
	if err != nil {
		return apperr.HTTPError(err)
	}
	return c.JSON(http.StatusOK, items)
}

func (h *Handler) GetTemplate(c echo.Context) error {
	t, err := h.svc.GetTemplateByID(c.Request().Context(), c.Param("id"))
	if err != nil {
		return apperr.HTTPError(err)
	}
	return c.JSON(http.StatusOK, t)
}

func (h *Handler) CreateTemplate(c echo.Context) error {
	var t ResultTemplate
	if err := c.Bind(&t); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid request body")
	}
	if actor, ok := auth.ActorFromContext(c.Request().Context()); ok {
		t.CreatedBy = actor.Label()
	}
	created, err := h.svc.CreateTemplate(c.Request().Context(), &t)
	if err != nil {
		return apperr.HTTPError(err)
	}
	return c.JSON(http.StatusCreated, created)
}

package result

import (
	"fmt"
	"net/http"

	"github.com/google/uuid"
	"github.com/labstack/echo/v4"

	"github.com/Oluwataye/Seeklab-sub001/internal/platform/apperr"
	"github.com/Oluwataye/Seeklab-sub001/internal/platform/auth"
	"github.com/Oluwataye/Seeklab-sub001/internal/platform/reporting"
	"github.com/Oluwataye/Seeklab-sub001/pkg/pagination"
)

type Handler struct {
	svc *Service
}

func NewHandler(svc *Service) *Handler {
	return &Handler{svc: svc}
}

func (h *Handler) RegisterRoutes(api *echo.Group) {
	read := api.Group("", auth.RequireRole(auth.StaffRoles()...))
	read.GET("/results", h.ListResults)
	read.GET("/results/export", h.ExportWorklist)
	read.GET("/results/:id", h.GetResult)

	bench := api.Group("", auth.RequireRole(auth.RoleAdmin, auth.RoleScientist, auth.RoleTechnician))
	bench.PATCH("/results/:id", h.SubmitResultData)
	bench.POST("/results/:id/finalize", h.FinalizeResult)

	review := api.Group("", auth.RequireRole(auth.RoleAdmin, auth.RoleScientist))
	review.POST("/results/:id/review", h.SubmitReview)
	review.POST("/results/:id/reject", h.RejectResult)
	review.DELETE("/results/:id", h.DeleteResult)
}

// View is a result as shown to staff, with permissions for the caller.
type View struct {
	*Result
	DisplayStatus DisplayStatus `json:"display_status"`
	CanEdit       bool          `json:"can_edit"`
	CanDelete     bool          `json:"can_delete"`
}

func viewFor(r *Result, role auth.Role) View {
	return View{
		Result:        r,
		DisplayStatus: Display(r),
		CanEdit:       CanEdit(role, r) && r.Status != StatusRejected,
		CanDelete:     CanDelete(role),
	}
}

func actorOf(c echo.Context) auth.Actor {
	a, _ := auth.ActorFromContext(c.Request().Context())
	return a
}

func resultID(c echo.Context) (uuid.UUID, error) {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		return uuid.Nil, echo.NewHTTPError(http.StatusBadRequest, "invalid result id")
	}
	return id, nil
}

func filterFrom(c echo.Context) Filter {
	return Filter{
		PatientID: c.QueryParam("patient_id"),
		Status:    Status(c.QueryParam("status")),
		TestType:  c.QueryParam("test_type"),
	}
}

func (h *Handler) GetResult(c echo.Context) error {
	id, err := resultID(c)
	if err != nil {
		return err
	}
	r, err := h.svc.GetResult(c.Request().Context(), id)
	if err != nil {
		return apperr.HTTPError(err)
	}
	return c.JSON(http.StatusOK, viewFor(r, actorOf(c).Role))
}

func (h *Handler) ListResults(c echo.Context) error {
	pg := pagination.FromContext(c)
	items, total, err := h.svc.ListResults(c.Request().Context(), filterFrom(c), pg.Limit, pg.Offset)
	if err != nil {
		return apperr.HTTPError(err)
	}
	role := actorOf(c).Role
	views := make([]View, 0, len(items))
	for _, r := range items {
		views = append(views, viewFor(r, role))
	}
	return c.JSON(http.StatusOK, pagination.NewResponse(views, total, pg.Limit, pg.Offset).
		WithLinks(c.Request().URL.Path, c.QueryParams()))
}

type submitRequest struct {
	ResultData struct {
		TemplateID string            `json:"template_id"`
		Values     map[string]string `json:"values"`
	} `json:"result_data"`
	Version *int `json:"version"`
}

func (h *Handler) SubmitResultData(c echo.Context) error {
	id, err := resultID(c)
	if err != nil {
		return err
	}
	var req submitRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid request body")
	}
	actor := actorOf(c)
	r, err := h.svc.SubmitResultData(c.Request().Context(), id, req.ResultData.TemplateID, req.ResultData.Values, actor, req.Version)
	if err != nil {
		return apperr.HTTPError(err)
	}
	return c.JSON(http.StatusOK, viewFor(r, actor.Role))
}

func (h *Handler) FinalizeResult(c echo.Context) error {
	id, err := resultID(c)
	if err != nil {
		return err
	}
	var req struct {
		Version *int `json:"version"`
	}
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid request body")
	}
	actor := actorOf(c)
	r, err := h.svc.FinalizeResult(c.Request().Context(), id, actor, req.Version)
	if err != nil {
		return apperr.HTTPError(err)
	}
	return c.JSON(http.StatusOK, viewFor(r, actor.Role))
}

func (h *Handler) SubmitReview(c echo.Context) error {
	id, err := resultID(c)
	if err != nil {
		return err
	}
	var req struct {
		ReviewInput
		Version *int `json:"version"`
	}
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid request body")
	}
	actor := actorOf(c)
	r, err := h.svc.SubmitReview(c.Request().Context(), id, req.ReviewInput, actor, req.Version)
	if err != nil {
		return apperr.HTTPError(err)
	}
	return c.JSON(http.StatusOK, viewFor(r, actor.Role))
}

func (h *Handler) RejectResult(c echo.Context) error {
	id, err := resultID(c)
	if err != nil {
		return err
	}
	var req struct {
		Reason string `json:"reason"`
	}
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid request body")
	}
	actor := actorOf(c)
	r, err := h.svc.RejectResult(c.Request().Context(), id, req.Reason, actor)
	if err != nil {
		return apperr.HTTPError(err)
	}
	return c.JSON(http.StatusOK, viewFor(r, actor.Role))
}

func (h *Handler) DeleteResult(c echo.Context) error {
	id, err := resultID(c)
	if err != nil {
		return err
	}
	if err := h.svc.DeleteResult(c.Request().Context(), id, actorOf(c)); err != nil {
		return apperr.HTTPError(err)
	}
	return c.JSON(http.StatusOK, map[string]string{"id": id.String(), "status": "deleted"})
}

func (h *Handler) ExportWorklist(c echo.Context) error {
	items, _, err := h.svc.ListResults(c.Request().Context(), filterFrom(c), maxExportRows, 0)
	if err != nil {
		return apperr.HTTPError(err)
	}
	name := fmt.Sprintf("results-%s.xlsx", h.svc.now().Format("20060102"))
	return reporting.ServeXLSX(c, name, WorklistSheet(items))
}

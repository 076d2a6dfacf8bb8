package accesscode

import (
	"net/http"
	"time"

	"github.com/google/uuid"
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
	desk := api.Group("", auth.RequireRole(auth.RoleAdmin, auth.RoleReceptionist))
	desk.POST("/patients/:patient_id/access-code", h.IssueAccessCode)
	desk.POST("/results/:id/access-code/reissue", h.ReissueAccessCode)

	staff := api.Group("", auth.RequireRole(auth.RoleAdmin, auth.RoleReceptionist, auth.RoleScientist, auth.RoleTechnician))
	staff.GET("/patients/:patient_id/access-codes", h.ListForPatient)
}

type issueRequest struct {
	TestType string `json:"test_type"`
	IssueOptions
}

// IssueResponse is returned to staff after issuance.
type IssueResponse struct {
	AccessCode string    `json:"access_code"`
	PatientID  string    `json:"patient_id"`
	TestType   string    `json:"test_type"`
	ResultID   uuid.UUID `json:"result_id"`
	ExpiresAt  time.Time `json:"expires_at"`
}

func actorOf(c echo.Context) auth.Actor {
	a, _ := auth.ActorFromContext(c.Request().Context())
	return a
}

func (h *Handler) IssueAccessCode(c echo.Context) error {
	var req issueRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid request body")
	}
	out, err := h.svc.IssueAccessCode(c.Request().Context(), c.Param("patient_id"), req.TestType, req.IssueOptions, actorOf(c))
	if err != nil {
		return apperr.HTTPError(err)
	}
	return c.JSON(http.StatusCreated, IssueResponse{
		AccessCode: out.AccessCode.Code,
		PatientID:  out.AccessCode.PatientID,
		TestType:   out.AccessCode.TestType,
		ResultID:   out.Result.ID,
		ExpiresAt:  out.AccessCode.ExpiresAt,
	})
}

func (h *Handler) ReissueAccessCode(c echo.Context) error {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid result id")
	}
	ac, err := h.svc.ReissueAccessCode(c.Request().Context(), id, actorOf(c))
	if err != nil {
		return apperr.HTTPError(err)
	}
	return c.JSON(http.StatusCreated, IssueResponse{
		AccessCode: ac.Code,
		PatientID:  ac.PatientID,
		TestType:   ac.TestType,
		ResultID:   ac.ResultID,
		ExpiresAt:  ac.ExpiresAt,
	})
}

func (h *Handler) ListForPatient(c echo.Context) error {
	items, err := h.svc.ListForPatient(c.Request().Context(), c.Param("patient_id"))
	if err != nil {
		return apperr.HTTPError(err)
	}
	return c.JSON(http.StatusOK, map[string]interface{}{"data": items, "total": len(items)})
}

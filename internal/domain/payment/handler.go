package payment

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
	record := api.Group("", auth.RequireRole(auth.RoleAdmin, auth.RoleReceptionist, auth.RoleAccountant))
	record.POST("/payments", h.RecordPayment)

	accounts := api.Group("", auth.RequireRole(auth.RoleAdmin, auth.RoleAccountant))
	accounts.GET("/payments", h.ListPayments)
	accounts.GET("/payments/export", h.ExportLedger)
	accounts.GET("/payments/:id", h.GetPayment)
	accounts.POST("/payments/:id/confirm", h.ConfirmPayment)
	accounts.POST("/payments/:id/verify", h.VerifyPayment)
	accounts.POST("/payments/:id/fail", h.FailPayment)
}

func actorOf(c echo.Context) auth.Actor {
	a, _ := auth.ActorFromContext(c.Request().Context())
	return a
}

func paymentID(c echo.Context) (uuid.UUID, error) {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		return uuid.Nil, echo.NewHTTPError(http.StatusBadRequest, "invalid payment id")
	}
	return id, nil
}

func filterFrom(c echo.Context) Filter {
	return Filter{
		Reference: c.QueryParam("reference"),
		PatientID: c.QueryParam("patient_id"),
		Status:    Status(c.QueryParam("status")),
		Method:    Method(c.QueryParam("method")),
	}
}

func (h *Handler) RecordPayment(c echo.Context) error {
	var in RecordInput
	if err := c.Bind(&in); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid request body")
	}
	p, err := h.svc.RecordPayment(c.Request().Context(), in, actorOf(c))
	if err != nil {
		return apperr.HTTPError(err)
	}
	return c.JSON(http.StatusCreated, p)
}

func (h *Handler) GetPayment(c echo.Context) error {
	id, err := paymentID(c)
	if err != nil {
		return err
	}
	p, err := h.svc.GetPayment(c.Request().Context(), id)
	if err != nil {
		return apperr.HTTPError(err)
	}
	return c.JSON(http.StatusOK, p)
}

func (h *Handler) ConfirmPayment(c echo.Context) error {
	id, err := paymentID(c)
	if err != nil {
		return err
	}
	var body struct {
		TransactionID string `json:"transaction_id"`
	}
	if err := c.Bind(&body); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid request body")
	}
	p, err := h.svc.ConfirmPayment(c.Request().Context(), id, actorOf(c), body.TransactionID)
	if err != nil {
		return apperr.HTTPError(err)
	}
	return c.JSON(http.StatusOK, p)
}

func (h *Handler) VerifyPayment(c echo.Context) error {
	id, err := paymentID(c)
	if err != nil {
		return err
	}
	p, err := h.svc.VerifyPayment(c.Request().Context(), id, actorOf(c))
	if err != nil {
		return apperr.HTTPError(err)
	}
	return c.JSON(http.StatusOK, p)
}

func (h *Handler) FailPayment(c echo.Context) error {
	id, err := paymentID(c)
	if err != nil {
		return err
	}
	var body struct {
		Reason string `json:"reason"`
	}
	if err := c.Bind(&body); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid request body")
	}
	p, err := h.svc.FailPayment(c.Request().Context(), id, actorOf(c), body.Reason)
	if err != nil {
		return apperr.HTTPError(err)
	}
	return c.JSON(http.StatusOK, p)
}

func (h *Handler) ListPayments(c echo.Context) error {
	pg := pagination.FromContext(c)
	items, total, err := h.svc.ListPayments(c.Request().Context(), filterFrom(c), pg.Limit, pg.Offset)
	if err != nil {
		return apperr.HTTPError(err)
	}
	if items == nil {
		items = []*Payment{}
	}
	return c.JSON(http.StatusOK, pagination.NewResponse(items, total, pg.Limit, pg.Offset).
		WithLinks(c.Request().URL.Path, c.QueryParams()))
}

func (h *Handler) ExportLedger(c echo.Context) error {
	items, _, err := h.svc.ListPayments(c.Request().Context(), filterFrom(c), maxExportRows, 0)
	if err != nil {
		return apperr.HTTPError(err)
	}
	name := fmt.Sprintf("payments-%s.xlsx", h.svc.now().Format("20060102"))
	return reporting.ServeXLSX(c, name, LedgerSheet(items))
}

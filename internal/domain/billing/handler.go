package billing

import (
	"errors"
	"net/http"

	"github.com/google/uuid"
	"github.com/labstack/echo/v4"

	"github.com/dentaldesk/clinic/internal/domain/patient"
	"github.com/dentaldesk/clinic/internal/platform/auth"
	"github.com/dentaldesk/clinic/pkg/pagination"
)

type Handler struct {
	svc *Service
}

func NewHandler(svc *Service) *Handler {
	return &Handler{svc: svc}
}

func (h *Handler) RegisterRoutes(api *echo.Group) {
	api.GET("/patients/:id/history", h.ListHistory, auth.RequireCapability(auth.CapViewHistory))
	api.POST("/patients/:id/history", h.RecordHistory, auth.RequireCapability(auth.CapWriteHistory))
	api.GET("/patients/:id/payments", h.ListPatientPayments, auth.RequireCapability(auth.CapViewPayments))

	api.GET("/payments", h.ListPayments, auth.RequireCapability(auth.CapViewPayments))
	api.POST("/payments", h.RecordPayment, auth.RequireCapability(auth.CapRecordPayments))
}

func mapError(err error) error {
	if errors.Is(err, patient.ErrNotFound) || errors.Is(err, patient.ErrForbidden) {
		return patient.MapError(err)
	}
	return echo.NewHTTPError(http.StatusBadRequest, err.Error())
}

func patientParam(c echo.Context) (uuid.UUID, error) {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		return uuid.Nil, echo.NewHTTPError(http.StatusBadRequest, "invalid id")
	}
	return id, nil
}

func (h *Handler) ListHistory(c echo.Context) error {
	id, err := patientParam(c)
	if err != nil {
		return err
	}
	records, err := h.svc.ListHistory(c.Request().Context(), id)
	if err != nil {
		return mapError(err)
	}
	if records == nil {
		records = []*HistoryRecord{}
	}
	return c.JSON(http.StatusOK, records)
}

func (h *Handler) RecordHistory(c echo.Context) error {
	id, err := patientParam(c)
	if err != nil {
		return err
	}
	var req HistoryRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	rec, err := h.svc.RecordHistory(c.Request().Context(), id, req)
	if err != nil {
		return mapError(err)
	}
	return c.JSON(http.StatusCreated, rec)
}

func (h *Handler) ListPatientPayments(c echo.Context) error {
	id, err := patientParam(c)
	if err != nil {
		return err
	}
	payments, err := h.svc.ListPatientPayments(c.Request().Context(), id)
	if err != nil {
		return mapError(err)
	}
	if payments == nil {
		payments = []*Payment{}
	}
	return c.JSON(http.StatusOK, payments)
}

func (h *Handler) ListPayments(c echo.Context) error {
	p := pagination.FromContext(c)
	payments, total, err := h.svc.ListPayments(c.Request().Context(), p.Limit, p.Offset)
	if err != nil {
		if errors.Is(err, patient.ErrForbidden) {
			return mapError(err)
		}
		return echo.NewHTTPError(http.StatusInternalServerError, err.Error())
	}
	if payments == nil {
		payments = []*Payment{}
	}
	return c.JSON(http.StatusOK, pagination.NewResponse(payments, total, p.Limit, p.Offset))
}

func (h *Handler) RecordPayment(c echo.Context) error {
	var req PaymentRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	p, err := h.svc.RecordPayment(c.Request().Context(), req)
	if err != nil {
		return mapError(err)
	}
	return c.JSON(http.StatusCreated, p)
}

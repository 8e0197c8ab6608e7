package patient

import (
	"errors"
	"net/http"

	"github.com/google/uuid"
	"github.com/labstack/echo/v4"

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
	api.GET("/patients", h.ListPatients)
	api.GET("/patients/search", h.SearchPatients)
	api.POST("/patients", h.CreatePatient, auth.RequireCapability(auth.CapRegisterPatients))
	api.GET("/patients/:id", h.GetPatient)
	api.PUT("/patients/:id", h.UpdatePatient, auth.RequireCapability(auth.CapRegisterPatients))
	api.GET("/patients/:id/ledger", h.GetLedger, auth.RequireCapability(auth.CapViewPayments))
}

// MapError converts patient access errors to HTTP errors. Other packages
// that load patients through Access use it too.
func MapError(err error) error {
	switch {
	case errors.Is(err, ErrNotFound):
		return echo.NewHTTPError(http.StatusNotFound, "Patient not found")
	case errors.Is(err, ErrForbidden):
		return echo.NewHTTPError(http.StatusForbidden, err.Error())
	default:
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
}

func (h *Handler) ListPatients(c echo.Context) error {
	p := pagination.FromContext(c)
	rows, total, err := h.svc.ListPatients(c.Request().Context(), p.Limit, p.Offset)
	if err != nil {
		if errors.Is(err, ErrForbidden) {
			return MapError(err)
		}
		return echo.NewHTTPError(http.StatusInternalServerError, err.Error())
	}
	return c.JSON(http.StatusOK, pagination.NewResponse(rows, total, p.Limit, p.Offset))
}

func (h *Handler) SearchPatients(c echo.Context) error {
	ctx := c.Request().Context()
	found, err := h.svc.SearchPatients(ctx, c.QueryParam("name"))
	if err != nil {
		return MapError(err)
	}
	if auth.RoleFromContext(ctx) == auth.RoleReceptionist {
		contacts := make([]Contact, len(found))
		for i, p := range found {
			contacts[i] = p.Contact()
		}
		return c.JSON(http.StatusOK, contacts)
	}
	if found == nil {
		found = []*Patient{}
	}
	return c.JSON(http.StatusOK, found)
}

func (h *Handler) CreatePatient(c echo.Context) error {
	var req CreateRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	p, err := h.svc.CreatePatient(c.Request().Context(), req)
	if err != nil {
		return MapError(err)
	}
	return c.JSON(http.StatusCreated, p)
}

func (h *Handler) GetPatient(c echo.Context) error {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid id")
	}
	p, err := h.svc.Access(c.Request().Context(), id)
	if err != nil {
		return MapError(err)
	}
	return c.JSON(http.StatusOK, p)
}

func (h *Handler) UpdatePatient(c echo.Context) error {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid id")
	}
	var upd Update
	if err := c.Bind(&upd); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	p, err := h.svc.UpdatePatient(c.Request().Context(), id, upd)
	if err != nil {
		return MapError(err)
	}
	return c.JSON(http.StatusOK, p)
}

func (h *Handler) GetLedger(c echo.Context) error {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid id")
	}
	l, err := h.svc.Ledger(c.Request().Context(), id)
	if err != nil {
		if errors.Is(err, ErrNotFound) || errors.Is(err, ErrForbidden) {
			return MapError(err)
		}
		return echo.NewHTTPError(http.StatusInternalServerError, err.Error())
	}
	return c.JSON(http.StatusOK, l)
}

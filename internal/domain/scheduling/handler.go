package scheduling

import (
	"errors"
	"net/http"
	"strconv"

	"github.com/google/uuid"
	"github.com/labstack/echo/v4"

	"github.com/dentaldesk/clinic/internal/clinic"
	"github.com/dentaldesk/clinic/internal/domain/patient"
	"github.com/dentaldesk/clinic/internal/platform/auth"
)

type Handler struct {
	svc *Service
}

func NewHandler(svc *Service) *Handler {
	return &Handler{svc: svc}
}

func (h *Handler) RegisterRoutes(api *echo.Group) {
	api.GET("/appointments", h.ListAppointments)
	api.GET("/appointments/today", h.Today)
	api.GET("/appointments/upcoming", h.Upcoming)
	api.GET("/appointments/check-conflict", h.CheckConflict)
	api.GET("/appointments/:id", h.GetAppointment)
	api.GET("/calendar", h.Calendar)

	write := api.Group("/appointments", auth.RequireCapability(auth.CapManageSchedule))
	write.POST("", h.CreateAppointment)
	write.PUT("/:id", h.UpdateAppointment)
}

func mapError(err error) error {
	switch {
	case errors.Is(err, ErrNotFound):
		return echo.NewHTTPError(http.StatusNotFound, "Appointment not found")
	case errors.Is(err, ErrConflict):
		return echo.NewHTTPError(http.StatusConflict, err.Error())
	case errors.Is(err, ErrForbidden):
		return echo.NewHTTPError(http.StatusForbidden, err.Error())
	case errors.Is(err, patient.ErrNotFound), errors.Is(err, patient.ErrForbidden):
		return patient.MapError(err)
	default:
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
}

func appointmentList(appts []*Appointment) []*Appointment {
	if appts == nil {
		return []*Appointment{}
	}
	return appts
}

func (h *Handler) ListAppointments(c echo.Context) error {
	var f Filter
	if v := c.QueryParam("patient_id"); v != "" {
		id, err := uuid.Parse(v)
		if err != nil {
			return echo.NewHTTPError(http.StatusBadRequest, "invalid patient_id")
		}
		f.PatientID = &id
	}
	if v := c.QueryParam("doctor_id"); v != "" {
		id, err := uuid.Parse(v)
		if err != nil {
			return echo.NewHTTPError(http.StatusBadRequest, "invalid doctor_id")
		}
		f.DoctorID = &id
	}
	for param, dst := range map[string]*clinic.Date{"from": &f.From, "to": &f.To} {
		if v := c.QueryParam(param); v != "" {
			d, err := clinic.ParseDate(v)
			if err != nil {
				return echo.NewHTTPError(http.StatusBadRequest, err.Error())
			}
			*dst = d
		}
	}
	appts, err := h.svc.ListAppointments(c.Request().Context(), f)
	if err != nil {
		return mapError(err)
	}
	return c.JSON(http.StatusOK, appointmentList(appts))
}

func (h *Handler) GetAppointment(c echo.Context) error {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid id")
	}
	a, err := h.svc.GetAppointment(c.Request().Context(), id)
	if err != nil {
		return mapError(err)
	}
	return c.JSON(http.StatusOK, a)
}

func (h *Handler) CreateAppointment(c echo.Context) error {
	var req CreateRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	a, err := h.svc.CreateAppointment(c.Request().Context(), req)
	if err != nil {
		return mapError(err)
	}
	return c.JSON(http.StatusCreated, a)
}

func (h *Handler) UpdateAppointment(c echo.Context) error {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid id")
	}
	var req UpdateRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	a, err := h.svc.UpdateAppointment(c.Request().Context(), id, req)
	if err != nil {
		return mapError(err)
	}
	return c.JSON(http.StatusOK, a)
}

func (h *Handler) CheckConflict(c echo.Context) error {
	taken, err := h.svc.CheckConflict(c.Request().Context(),
		c.QueryParam("doctor_id"), c.QueryParam("date"), c.QueryParam("time"))
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	return c.JSON(http.StatusOK, map[string]bool{"has_conflict": taken})
}

func (h *Handler) Today(c echo.Context) error {
	appts, err := h.svc.TodayAppointments(c.Request().Context())
	if err != nil {
		return mapError(err)
	}
	return c.JSON(http.StatusOK, appointmentList(appts))
}

func (h *Handler) Upcoming(c echo.Context) error {
	var from clinic.Date
	if v := c.QueryParam("from"); v != "" {
		d, err := clinic.ParseDate(v)
		if err != nil {
			return echo.NewHTTPError(http.StatusBadRequest, err.Error())
		}
		from = d
	}
	appts, err := h.svc.Upcoming(c.Request().Context(), from)
	if err != nil {
		return mapError(err)
	}
	return c.JSON(http.StatusOK, appointmentList(appts))
}

// Calendar serves one month; year and month default to the current
// clinic-local month.
func (h *Handler) Calendar(c echo.Context) error {
	m := clinic.MonthOf(h.svc.Today())
	year, month := m.Year, int(m.Month)
	if v := c.QueryParam("year"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil {
			return echo.NewHTTPError(http.StatusBadRequest, "invalid year")
		}
		year = n
	}
	if v := c.QueryParam("month"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil {
			return echo.NewHTTPError(http.StatusBadRequest, "invalid month")
		}
		month = n
	}
	m, err := clinic.NewMonth(year, month)
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	view, err := h.svc.Calendar(c.Request().Context(), m)
	if err != nil {
		return mapError(err)
	}
	return c.JSON(http.StatusOK, view)
}

package imaging

import (
	"errors"
	"fmt"
	"net/http"
	"path/filepath"
	"strings"

	"github.com/google/uuid"
	"github.com/labstack/echo/v4"

	"github.com/dentaldesk/clinic/internal/domain/patient"
	"github.com/dentaldesk/clinic/internal/platform/auth"
	"github.com/dentaldesk/clinic/internal/platform/blobstore"
)

type Handler struct {
	svc *Service
}

func NewHandler(svc *Service) *Handler {
	return &Handler{svc: svc}
}

func (h *Handler) RegisterRoutes(api *echo.Group) {
	api.POST("/patients/:id/xray", h.Upload, auth.RequireCapability(auth.CapUploadImaging))
	api.GET("/patients/:id/xrays", h.List, auth.RequireCapability(auth.CapViewImaging))
	api.GET("/xrays/:id", h.Download, auth.RequireCapability(auth.CapViewImaging))
}

func mapError(err error) error {
	switch {
	case errors.Is(err, ErrNotFound):
		return echo.NewHTTPError(http.StatusNotFound, err.Error())
	case errors.Is(err, patient.ErrNotFound), errors.Is(err, patient.ErrForbidden):
		return patient.MapError(err)
	case errors.Is(err, blobstore.ErrFileTooLarge):
		return echo.NewHTTPError(http.StatusRequestEntityTooLarge, err.Error())
	case errors.Is(err, blobstore.ErrInvalidContentType):
		return echo.NewHTTPError(http.StatusUnsupportedMediaType, err.Error())
	case errors.Is(err, blobstore.ErrMissingFileName), errors.Is(err, blobstore.ErrEmptyFile):
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	default:
		return echo.NewHTTPError(http.StatusInternalServerError, err.Error())
	}
}

var extensionTypes = map[string]string{
	".png":  "image/png",
	".jpg":  "image/jpeg",
	".jpeg": "image/jpeg",
	".dcm":  "application/dicom",
}

// contentTypeOf trusts the part header unless the client sent none or a
// generic type, in which case the file extension decides.
func contentTypeOf(fileName, header string) string {
	ct := strings.TrimSpace(strings.SplitN(header, ";", 2)[0])
	if ct != "" && ct != "application/octet-stream" {
		return strings.ToLower(ct)
	}
	if byExt, ok := extensionTypes[strings.ToLower(filepath.Ext(fileName))]; ok {
		return byExt
	}
	return ct
}

func (h *Handler) Upload(c echo.Context) error {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid id")
	}
	fh, err := c.FormFile("file")
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "file is required")
	}
	f, err := fh.Open()
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	defer f.Close()

	name := filepath.Base(fh.Filename)
	meta, err := h.svc.Upload(c.Request().Context(), id, name,
		contentTypeOf(name, fh.Header.Get(echo.HeaderContentType)), c.FormValue("notes"), f)
	if err != nil {
		return mapError(err)
	}
	return c.JSON(http.StatusCreated, meta)
}

func (h *Handler) List(c echo.Context) error {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid id")
	}
	list, err := h.svc.List(c.Request().Context(), id)
	if err != nil {
		return mapError(err)
	}
	if list == nil {
		list = []*blobstore.BlobMetadata{}
	}
	return c.JSON(http.StatusOK, list)
}

func (h *Handler) Download(c echo.Context) error {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid id")
	}
	rc, meta, err := h.svc.Open(c.Request().Context(), id)
	if err != nil {
		return mapError(err)
	}
	defer rc.Close()

	c.Response().Header().Set(echo.HeaderContentDisposition, fmt.Sprintf("inline; filename=%q", meta.FileName))
	c.Response().Header().Set("X-Content-SHA256", meta.Hash)
	return c.Stream(http.StatusOK, meta.ContentType, rc)
}

package imaging

import (
	"bytes"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"net/textproto"
	"strings"
	"testing"

	"github.com/google/uuid"
	"github.com/labstack/echo/v4"

	"github.com/dentaldesk/clinic/internal/platform/auth"
)

func multipartUpload(t *testing.T, fileName, contentType, content string) *http.Request {
	t.Helper()
	var body bytes.Buffer
	w := multipart.NewWriter(&body)
	hdr := make(textproto.MIMEHeader)
	hdr.Set("Content-Disposition", `form-data; name="file"; filename="`+fileName+`"`)
	if contentType != "" {
		hdr.Set("Content-Type", contentType)
	}
	part, err := w.CreatePart(hdr)
	if err != nil {
		t.Fatalf("create part: %v", err)
	}
	_, _ = part.Write([]byte(content))
	_ = w.WriteField("notes", "pre-op")
	_ = w.Close()

	req := httptest.NewRequest(http.MethodPost, "/", &body)
	req.Header.Set(echo.HeaderContentType, w.FormDataContentType())
	return req
}

func TestContentTypeOf(t *testing.T) {
	tests := []struct {
		file, header, want string
	}{
		{"a.png", "image/png", "image/png"},
		{"a.dcm", "", "application/dicom"},
		{"a.JPG", "application/octet-stream", "image/jpeg"},
		{"a.bin", "Image/PNG; charset=binary", "image/png"},
		{"a.gif", "", ""},
	}
	for _, tt := range tests {
		if got := contentTypeOf(tt.file, tt.header); got != tt.want {
			t.Errorf("contentTypeOf(%q, %q) = %q, want %q", tt.file, tt.header, got, tt.want)
		}
	}
}

func TestHandler_UploadAndDownload(t *testing.T) {
	f := newFixture()
	h, e := NewHandler(f.svc), echo.New()
	h.RegisterRoutes(e.Group("/api"))

	req := multipartUpload(t, "molar.dcm", "", "DICM")
	req.URL.Path = "/api/patients/" + f.patient.ID.String() + "/xray"
	req = req.WithContext(auth.WithIdentity(req.Context(), f.doctor.String(), auth.RoleDoctor))
	rec := httptest.NewRecorder()
	e.ServeHTTP(rec, req)
	if rec.Code != http.StatusCreated {
		t.Fatalf("expected 201, got %d: %s", rec.Code, rec.Body.String())
	}

	list, _ := f.svc.List(asDoctor(f.doctor), f.patient.ID)
	if len(list) != 1 || list[0].ContentType != "application/dicom" || list[0].Notes != "pre-op" {
		t.Fatalf("unexpected stored metadata: %+v", list)
	}

	req = httptest.NewRequest(http.MethodGet, "/api/xrays/"+list[0].ID, nil)
	req = req.WithContext(auth.WithIdentity(req.Context(), uuid.New().String(), auth.RoleAdmin))
	rec = httptest.NewRecorder()
	e.ServeHTTP(rec, req)
	if rec.Code != http.StatusOK || rec.Body.String() != "DICM" {
		t.Fatalf("expected content back, got %d %q", rec.Code, rec.Body.String())
	}
	if rec.Header().Get(echo.HeaderContentType) != "application/dicom" {
		t.Errorf("unexpected content type %q", rec.Header().Get(echo.HeaderContentType))
	}
	if !strings.Contains(rec.Header().Get(echo.HeaderContentDisposition), "molar.dcm") {
		t.Error("expected file name in Content-Disposition")
	}
}

func TestHandler_Upload_Errors(t *testing.T) {
	f := newFixture()
	h, e := NewHandler(f.svc), echo.New()
	path := "/api/patients/" + f.patient.ID.String() + "/xray"

	tests := []struct {
		name string
		req  func() *http.Request
		want int
	}{
		{"unsupported type", func() *http.Request { return multipartUpload(t, "a.gif", "image/gif", "GIF") }, http.StatusUnsupportedMediaType},
		{"too large", func() *http.Request { return multipartUpload(t, "a.png", "image/png", strings.Repeat("x", 2048)) }, http.StatusRequestEntityTooLarge},
		{"empty", func() *http.Request { return multipartUpload(t, "a.png", "image/png", "") }, http.StatusBadRequest},
		{"no file", func() *http.Request { return httptest.NewRequest(http.MethodPost, path, nil) }, http.StatusBadRequest},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := tt.req().WithContext(asDoctor(f.doctor))
			c := e.NewContext(req, httptest.NewRecorder())
			c.SetParamNames("id")
			c.SetParamValues(f.patient.ID.String())
			err := h.Upload(c)
			httpErr, ok := err.(*echo.HTTPError)
			if !ok || httpErr.Code != tt.want {
				t.Errorf("expected %d, got %v", tt.want, err)
			}
		})
	}
}

func TestHandler_ReceptionistCannotViewXRays(t *testing.T) {
	f := newFixture()
	h, e := NewHandler(f.svc), echo.New()
	h.RegisterRoutes(e.Group("/api"))

	req := httptest.NewRequest(http.MethodGet, "/api/patients/"+f.patient.ID.String()+"/xrays", nil)
	req = req.WithContext(auth.WithIdentity(req.Context(), uuid.New().String(), auth.RoleReceptionist))
	rec := httptest.NewRecorder()
	e.ServeHTTP(rec, req)
	if rec.Code != http.StatusForbidden {
		t.Errorf("expected 403, got %d", rec.Code)
	}
}

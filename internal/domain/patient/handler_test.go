package patient

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/google/uuid"
	"github.com/labstack/echo/v4"
	"github.com/shopspring/decimal"
)

func jsonRequest(method, path, body string) *http.Request {
	req := httptest.NewRequest(method, path, strings.NewReader(body))
	req.Header.Set(echo.HeaderContentType, echo.MIMEApplicationJSON)
	return req
}

func expectHTTPStatus(t *testing.T, err error, want int) {
	t.Helper()
	httpErr, ok := err.(*echo.HTTPError)
	if !ok {
		t.Fatalf("expected *echo.HTTPError with %d, got %v", want, err)
	}
	if httpErr.Code != want {
		t.Errorf("expected %d, got %d (%v)", want, httpErr.Code, httpErr.Message)
	}
}

func TestHandler_SearchPatients_ReceptionistGetsContactsOnly(t *testing.T) {
	f := newFixture()
	h, e := NewHandler(f.svc), echo.New()
	f.mustCreate(t, "Dana Khalil", f.doctorA)

	req := httptest.NewRequest(http.MethodGet, "/api/patients/search?name=dana", nil)
	req = req.WithContext(asReceptionist())
	rec := httptest.NewRecorder()
	if err := h.SearchPatients(e.NewContext(req, rec)); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	var got []map[string]interface{}
	_ = json.Unmarshal(rec.Body.Bytes(), &got)
	if len(got) != 1 {
		t.Fatalf("expected 1 result, got %d", len(got))
	}
	if _, ok := got[0]["doctor_id"]; ok {
		t.Error("receptionist results must not carry doctor_id")
	}
	if got[0]["phone"] != "0790000000" {
		t.Errorf("expected phone, got %v", got[0]["phone"])
	}

	req = httptest.NewRequest(http.MethodGet, "/api/patients/search?name=dana", nil)
	req = req.WithContext(asAdmin())
	rec = httptest.NewRecorder()
	_ = h.SearchPatients(e.NewContext(req, rec))
	got = nil
	_ = json.Unmarshal(rec.Body.Bytes(), &got)
	if _, ok := got[0]["doctor_id"]; !ok {
		t.Error("admin results should carry doctor_id")
	}
}

func TestHandler_GetPatient_OtherDoctorForbidden(t *testing.T) {
	f := newFixture()
	h, e := NewHandler(f.svc), echo.New()
	p := f.mustCreate(t, "Nour", f.doctorA)

	req := httptest.NewRequest(http.MethodGet, "/", nil).WithContext(asDoctor(f.doctorB))
	c := e.NewContext(req, httptest.NewRecorder())
	c.SetParamNames("id")
	c.SetParamValues(p.ID.String())
	expectHTTPStatus(t, h.GetPatient(c), http.StatusForbidden)

	c = e.NewContext(httptest.NewRequest(http.MethodGet, "/", nil).WithContext(asAdmin()), httptest.NewRecorder())
	c.SetParamNames("id")
	c.SetParamValues(uuid.New().String())
	expectHTTPStatus(t, h.GetPatient(c), http.StatusNotFound)
}

func TestHandler_CreatePatient(t *testing.T) {
	f := newFixture()
	h, e := NewHandler(f.svc), echo.New()

	body := `{"name":"Karim","phone":"0771234567","doctor_id":"` + f.doctorA.String() + `"}`
	rec := httptest.NewRecorder()
	if err := h.CreatePatient(e.NewContext(jsonRequest(http.MethodPost, "/", body).WithContext(asReceptionist()), rec)); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if rec.Code != http.StatusCreated {
		t.Errorf("expected 201, got %d", rec.Code)
	}

	body = `{"name":"Karim","phone":"0771234567","doctor_id":"` + uuid.New().String() + `"}`
	err := h.CreatePatient(e.NewContext(jsonRequest(http.MethodPost, "/", body).WithContext(asReceptionist()), httptest.NewRecorder()))
	expectHTTPStatus(t, err, http.StatusBadRequest)
}

func TestHandler_ListPatients_CarriesLedger(t *testing.T) {
	f := newFixture()
	h, e := NewHandler(f.svc), echo.New()
	p := f.mustCreate(t, "Salma", f.doctorA)
	f.ledgers[p.ID.String()] = decimal.NewFromInt(120)

	rec := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/api/patients", nil).WithContext(asAdmin())
	if err := h.ListPatients(e.NewContext(req, rec)); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	var resp struct {
		Data  []map[string]interface{} `json:"data"`
		Total int                      `json:"total"`
	}
	_ = json.Unmarshal(rec.Body.Bytes(), &resp)
	if resp.Total != 1 || len(resp.Data) != 1 {
		t.Fatalf("expected one row, got %+v", resp)
	}
	row := resp.Data[0]
	if row["name"] != "Salma" || row["balance"] != "120.00" || row["display_balance"] != "120.00" {
		t.Errorf("unexpected row: %v", row)
	}
}

func TestHandler_GetLedger(t *testing.T) {
	f := newFixture()
	h, e := NewHandler(f.svc), echo.New()
	p := f.mustCreate(t, "Rami", f.doctorA)

	rec := httptest.NewRecorder()
	c := e.NewContext(httptest.NewRequest(http.MethodGet, "/", nil).WithContext(asDoctor(f.doctorA)), rec)
	c.SetParamNames("id")
	c.SetParamValues(p.ID.String())
	if err := h.GetLedger(c); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	var got map[string]string
	_ = json.Unmarshal(rec.Body.Bytes(), &got)
	if got["balance"] != "0.00" || got["patient_id"] != p.ID.String() {
		t.Errorf("unexpected ledger: %v", got)
	}
}

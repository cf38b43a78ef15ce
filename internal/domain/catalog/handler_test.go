package catalog

import (
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strconv"
	"strings"
	"testing"

	"github.com/labstack/echo/v4"
	"github.com/rs/zerolog"

	"github.com/hospitrack/hospitrack/internal/platform/auth"
)

func newTestHandler(t *testing.T) (*Handler, *MemStore, *Hospital, *echo.Echo) {
	t.Helper()
	s, city, _ := seedStore(t)
	svc := NewService(s.Hospitals(), s.Beds(), nil, zerolog.Nop()).WithDoctors(s.Doctors())
	return NewHandler(svc), s, city, echo.New()
}

func asStaff(req *http.Request, hospitalID int64) *http.Request {
	return req.WithContext(auth.WithIdentity(req.Context(), "7", []string{auth.RoleHospitalStaff}, hospitalID))
}

func httpCode(t *testing.T, err error) int {
	t.Helper()
	var he *echo.HTTPError
	if !errors.As(err, &he) {
		t.Fatalf("expected echo.HTTPError, got %T (%v)", err, err)
	}
	return he.Code
}

func TestHandler_ListHospitals(t *testing.T) {
	h, _, _, e := newTestHandler(t)
	rec := httptest.NewRecorder()
	c := e.NewContext(httptest.NewRequest(http.MethodGet, "/", nil), rec)

	if err := h.ListHospitals(c); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	var items []Hospital
	if err := json.Unmarshal(rec.Body.Bytes(), &items); err != nil {
		t.Fatalf("invalid body: %v", err)
	}
	if len(items) != 2 {
		t.Errorf("expected 2 hospitals, got %d", len(items))
	}
}

func TestHandler_SearchHospitals_NoMatchIsEmptyArray(t *testing.T) {
	h, _, _, e := newTestHandler(t)
	rec := httptest.NewRecorder()
	c := e.NewContext(httptest.NewRequest(http.MethodGet, "/?q=nowhere", nil), rec)

	if err := h.SearchHospitals(c); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if strings.TrimSpace(rec.Body.String()) != "[]" {
		t.Errorf("expected empty array, got %s", rec.Body.String())
	}
}

func TestHandler_CreateHospital(t *testing.T) {
	h, _, _, e := newTestHandler(t)
	body := `{"name":"Eastside Clinic","location":"Eastside","contact":"555-0199"}`
	req := httptest.NewRequest(http.MethodPost, "/", strings.NewReader(body))
	req.Header.Set(echo.HeaderContentType, echo.MIMEApplicationJSON)
	rec := httptest.NewRecorder()
	c := e.NewContext(req, rec)

	if err := h.CreateHospital(c); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if rec.Code != http.StatusCreated {
		t.Errorf("expected 201, got %d", rec.Code)
	}
	var resp map[string]interface{}
	_ = json.Unmarshal(rec.Body.Bytes(), &resp)
	if resp["id"] != float64(3) {
		t.Errorf("expected id 3, got %v", resp["id"])
	}
}

func TestHandler_CreateHospital_BadRequest(t *testing.T) {
	h, _, _, e := newTestHandler(t)
	req := httptest.NewRequest(http.MethodPost, "/", strings.NewReader(`{"location":"Eastside"}`))
	req.Header.Set(echo.HeaderContentType, echo.MIMEApplicationJSON)
	c := e.NewContext(req, httptest.NewRecorder())

	if code := httpCode(t, h.CreateHospital(c)); code != http.StatusBadRequest {
		t.Errorf("expected 400, got %d", code)
	}
}

func TestHandler_GetHospitalDetails(t *testing.T) {
	h, _, city, e := newTestHandler(t)
	rec := httptest.NewRecorder()
	c := e.NewContext(httptest.NewRequest(http.MethodGet, "/", nil), rec)
	c.SetParamNames("id")
	c.SetParamValues(strconv.FormatInt(city.ID, 10))

	if err := h.GetHospitalDetails(c); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	var d HospitalDetails
	if err := json.Unmarshal(rec.Body.Bytes(), &d); err != nil {
		t.Fatalf("invalid body: %v", err)
	}
	if len(d.Beds) != 3 {
		t.Errorf("expected 3 bed rows, got %d", len(d.Beds))
	}
}

func TestHandler_GetHospitalDetails_Errors(t *testing.T) {
	h, _, _, e := newTestHandler(t)
	for raw, want := range map[string]int{"abc": http.StatusBadRequest, "404": http.StatusNotFound} {
		c := e.NewContext(httptest.NewRequest(http.MethodGet, "/", nil), httptest.NewRecorder())
		c.SetParamNames("id")
		c.SetParamValues(raw)
		if code := httpCode(t, h.GetHospitalDetails(c)); code != want {
			t.Errorf("id %s: expected %d, got %d", raw, want, code)
		}
	}
}

func TestHandler_SearchBeds(t *testing.T) {
	h, _, _, e := newTestHandler(t)
	rec := httptest.NewRecorder()
	c := e.NewContext(httptest.NewRequest(http.MethodGet, "/?type=ICU&price=high", nil), rec)

	if err := h.SearchBeds(c); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	var items []BedListing
	_ = json.Unmarshal(rec.Body.Bytes(), &items)
	if len(items) != 1 || items[0].HospitalName != "City Hospital" {
		t.Errorf("unexpected listings %+v", items)
	}
}

func TestHandler_UpsertBed(t *testing.T) {
	h, s, city, e := newTestHandler(t)
	body := `{"hospital_id":` + strconv.FormatInt(city.ID, 10) + `,"bed_type":"Maternity","total_count":12,"available_count":12,"price":150}`
	req := httptest.NewRequest(http.MethodPost, "/", strings.NewReader(body))
	req.Header.Set(echo.HeaderContentType, echo.MIMEApplicationJSON)
	rec := httptest.NewRecorder()
	c := e.NewContext(asStaff(req, city.ID), rec)

	if err := h.UpsertBed(c); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if rec.Code != http.StatusCreated {
		t.Errorf("expected 201 for new bed type, got %d", rec.Code)
	}
	if _, err := s.Beds().Get(req.Context(), city.ID, "Maternity"); err != nil {
		t.Errorf("expected row to exist: %v", err)
	}
}

func TestHandler_UpsertBed_DefaultsToOwnHospital(t *testing.T) {
	h, s, city, e := newTestHandler(t)
	body := `{"bed_type":"ICU","total_count":20,"available_count":6,"price":500}`
	req := httptest.NewRequest(http.MethodPost, "/", strings.NewReader(body))
	req.Header.Set(echo.HeaderContentType, echo.MIMEApplicationJSON)
	rec := httptest.NewRecorder()
	c := e.NewContext(asStaff(req, city.ID), rec)

	if err := h.UpsertBed(c); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if rec.Code != http.StatusOK {
		t.Errorf("expected 200 for update, got %d", rec.Code)
	}
	row, _ := s.Beds().Get(req.Context(), city.ID, "ICU")
	if row.AvailableCount != 6 {
		t.Errorf("expected 6 available, got %d", row.AvailableCount)
	}
}

func TestHandler_UpsertBed_OtherHospitalForbidden(t *testing.T) {
	h, _, city, e := newTestHandler(t)
	body := `{"hospital_id":` + strconv.FormatInt(city.ID, 10) + `,"bed_type":"ICU","total_count":1,"available_count":1}`
	req := httptest.NewRequest(http.MethodPost, "/", strings.NewReader(body))
	req.Header.Set(echo.HeaderContentType, echo.MIMEApplicationJSON)
	c := e.NewContext(asStaff(req, city.ID+1), httptest.NewRecorder())

	if code := httpCode(t, h.UpsertBed(c)); code != http.StatusForbidden {
		t.Errorf("expected 403, got %d", code)
	}
}

func TestHandler_UpsertBed_AvailableOverTotal(t *testing.T) {
	h, _, city, e := newTestHandler(t)
	body := `{"bed_type":"ICU","total_count":1,"available_count":3}`
	req := httptest.NewRequest(http.MethodPost, "/", strings.NewReader(body))
	req.Header.Set(echo.HeaderContentType, echo.MIMEApplicationJSON)
	c := e.NewContext(asStaff(req, city.ID), httptest.NewRecorder())

	if code := httpCode(t, h.UpsertBed(c)); code != http.StatusBadRequest {
		t.Errorf("expected 400, got %d", code)
	}
}

func TestHandler_DeleteBed(t *testing.T) {
	h, s, city, e := newTestHandler(t)
	req := httptest.NewRequest(http.MethodDelete, "/", nil)
	row, _ := s.Beds().Get(req.Context(), city.ID, "ICU")

	rec := httptest.NewRecorder()
	c := e.NewContext(asStaff(req, city.ID), rec)
	c.SetParamNames("id")
	c.SetParamValues(strconv.FormatInt(row.ID, 10))

	if err := h.DeleteBed(c); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if rec.Code != http.StatusOK {
		t.Errorf("expected 200, got %d", rec.Code)
	}
}

func TestHandler_Doctors(t *testing.T) {
	h, _, city, e := newTestHandler(t)
	body := `{"name":"Dr. Smith","specialization":"Cardiologist","availability":"Mon-Fri 9AM-5PM"}`
	req := httptest.NewRequest(http.MethodPost, "/", strings.NewReader(body))
	req.Header.Set(echo.HeaderContentType, echo.MIMEApplicationJSON)
	rec := httptest.NewRecorder()
	if err := h.AddDoctor(e.NewContext(asStaff(req, city.ID), rec)); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if rec.Code != http.StatusCreated {
		t.Errorf("expected 201, got %d", rec.Code)
	}

	rec = httptest.NewRecorder()
	c := e.NewContext(httptest.NewRequest(http.MethodGet, "/", nil), rec)
	c.SetParamNames("id")
	c.SetParamValues(strconv.FormatInt(city.ID, 10))
	if err := h.ListDoctors(c); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	var items []Doctor
	if err := json.Unmarshal(rec.Body.Bytes(), &items); err != nil {
		t.Fatalf("invalid body: %v", err)
	}
	if len(items) != 1 || items[0].Name != "Dr. Smith" || items[0].Specialization != "Cardiologist" {
		t.Errorf("unexpected doctors: %+v", items)
	}

	req = httptest.NewRequest(http.MethodPost, "/", strings.NewReader(body))
	req.Header.Set(echo.HeaderContentType, echo.MIMEApplicationJSON)
	c = e.NewContext(asStaff(req, city.ID+1), httptest.NewRecorder())
	if err := h.AddDoctor(c); err == nil {
		t.Fatal("expected forbidden for a foreign hospital")
	} else if code := httpCode(t, err); code != http.StatusForbidden {
		t.Errorf("expected 403, got %d", code)
	}
}

package sandbox

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/labstack/echo/v4"
	"github.com/rs/zerolog"

	"github.com/hospitrack/hospitrack/internal/domain/catalog"
	"github.com/hospitrack/hospitrack/internal/domain/identity"
	"github.com/hospitrack/hospitrack/internal/platform/auth"
)

func newTestSeeder() (*Seeder, *catalog.Service, *identity.Service) {
	store := catalog.NewMemStore()
	cat := catalog.NewService(store.Hospitals(), store.Beds(), nil, zerolog.Nop()).WithDoctors(store.Doctors())
	users := identity.NewService(identity.NewUserRepoMem())
	return NewSeeder(cat, users, zerolog.Nop()), cat, users
}

func TestSeeder_Generate(t *testing.T) {
	s, cat, users := newTestSeeder()
	ctx := context.Background()

	result, err := s.Generate(ctx, DefaultSeedConfig())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if result.Skipped {
		t.Fatal("expected first run to seed")
	}
	if result.Hospitals != 2 || result.Beds != 4 || result.Doctors != 2 {
		t.Errorf("expected 2 hospitals, 4 bed rows and 2 doctors, got %d/%d/%d", result.Hospitals, result.Beds, result.Doctors)
	}
	if len(result.Users) != 5 {
		t.Errorf("expected 5 users, got %d", len(result.Users))
	}

	hospitals, err := cat.ListHospitals(ctx)
	if err != nil {
		t.Fatal(err)
	}
	if len(hospitals) != 2 {
		t.Fatalf("expected 2 hospitals, got %d", len(hospitals))
	}
	city := hospitals[0]
	if city.Name != "City Hospital" || city.TotalBeds != 130 || city.AvailableBeds != 49 {
		t.Errorf("unexpected city hospital aggregate %+v", city)
	}
	doctors, err := cat.ListDoctors(ctx, city.ID)
	if err != nil {
		t.Fatal(err)
	}
	if len(doctors) != 2 || doctors[0].Name != "Dr. Smith" || !doctors[1].IsVisiting {
		t.Errorf("unexpected city roster %+v", doctors)
	}

	staff, err := users.GetByUsername(ctx, "staff1")
	if err != nil {
		t.Fatal(err)
	}
	if staff.HospitalID == nil || *staff.HospitalID != city.ID {
		t.Errorf("expected staff1 bound to hospital %d", city.ID)
	}
	patient, err := users.GetByUsername(ctx, "patient")
	if err != nil {
		t.Fatal(err)
	}
	if patient.HospitrackID == "" {
		t.Error("expected seeded patient to have a hospitrack id")
	}
}

func TestSeeder_GenerateIsIdempotent(t *testing.T) {
	s, cat, _ := newTestSeeder()
	ctx := context.Background()
	if _, err := s.Generate(ctx, DefaultSeedConfig()); err != nil {
		t.Fatal(err)
	}
	result, err := s.Generate(ctx, DefaultSeedConfig())
	if err != nil {
		t.Fatal(err)
	}
	if !result.Skipped || result.Message != "Data already exists." {
		t.Errorf("expected skip on second run, got %+v", result)
	}
	hospitals, _ := cat.ListHospitals(ctx)
	if len(hospitals) != 2 {
		t.Errorf("expected no new hospitals, got %d", len(hospitals))
	}
}

func TestSeeder_ExtraPatientsDeterministic(t *testing.T) {
	cfg := SeedConfig{ExtraPatients: 5, Seed: 42}

	a, _, _ := newTestSeeder()
	ra, err := a.Generate(context.Background(), cfg)
	if err != nil {
		t.Fatal(err)
	}
	b, _, _ := newTestSeeder()
	rb, err := b.Generate(context.Background(), cfg)
	if err != nil {
		t.Fatal(err)
	}
	if len(ra.Users) != 10 || len(rb.Users) != 10 {
		t.Fatalf("expected 10 users each, got %d and %d", len(ra.Users), len(rb.Users))
	}
	for i := range ra.Users {
		if ra.Users[i].Username != rb.Users[i].Username {
			t.Errorf("user %d differs: %s vs %s", i, ra.Users[i].Username, rb.Users[i].Username)
		}
	}
}

func TestSeedHandler(t *testing.T) {
	s, _, _ := newTestSeeder()
	h := NewSeedHandler(s)
	e := echo.New()

	req := httptest.NewRequest(http.MethodPost, "/api/init_dummy_data", strings.NewReader(`{"extra_patients":2,"seed":7}`))
	req.Header.Set(echo.HeaderContentType, echo.MIMEApplicationJSON)
	req = req.WithContext(auth.WithIdentity(req.Context(), "1", []string{auth.RoleAdmin}, 0))
	rec := httptest.NewRecorder()

	if err := h.handleSeed(e.NewContext(req, rec)); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	var result SeedResult
	if err := json.Unmarshal(rec.Body.Bytes(), &result); err != nil {
		t.Fatalf("invalid body: %v", err)
	}
	if result.Message != "Dummy data initialized." || len(result.Users) != 7 {
		t.Errorf("unexpected result %+v", result)
	}

	req = httptest.NewRequest(http.MethodPost, "/api/init_dummy_data", strings.NewReader(`{"extra_patients":-1}`))
	req.Header.Set(echo.HeaderContentType, echo.MIMEApplicationJSON)
	err := h.handleSeed(e.NewContext(req, httptest.NewRecorder()))
	if he, ok := err.(*echo.HTTPError); !ok || he.Code != http.StatusBadRequest {
		t.Errorf("expected 400, got %v", err)
	}
}

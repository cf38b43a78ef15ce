package catalog

import (
	"bytes"
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/rs/zerolog"
)

type fakeHolds struct{ n int }

func (f fakeHolds) ActiveHolds(context.Context, int64, string) (int, error) { return f.n, nil }

func newTestService(t *testing.T, holds HoldCounter) (*Service, *MemStore, *Hospital, *bytes.Buffer) {
	t.Helper()
	s, city, _ := seedStore(t)
	var buf bytes.Buffer
	svc := NewService(s.Hospitals(), s.Beds(), holds, zerolog.New(&buf)).WithDoctors(s.Doctors())
	return svc, s, city, &buf
}

func TestBedInventory_Validate(t *testing.T) {
	tests := []struct {
		name string
		bed  BedInventory
		ok   bool
	}{
		{"valid", BedInventory{HospitalID: 1, BedType: "ICU", TotalCount: 5, AvailableCount: 5}, true},
		{"empty type", BedInventory{HospitalID: 1, BedType: "  ", TotalCount: 5}, false},
		{"no hospital", BedInventory{BedType: "ICU"}, false},
		{"negative total", BedInventory{HospitalID: 1, BedType: "ICU", TotalCount: -1}, false},
		{"negative available", BedInventory{HospitalID: 1, BedType: "ICU", TotalCount: 1, AvailableCount: -1}, false},
		{"available over total", BedInventory{HospitalID: 1, BedType: "ICU", TotalCount: 1, AvailableCount: 2}, false},
		{"negative price", BedInventory{HospitalID: 1, BedType: "ICU", TotalCount: 1, Price: -5}, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.bed.Validate()
			if tt.ok && err != nil {
				t.Errorf("expected valid, got %v", err)
			}
			if !tt.ok && !errors.Is(err, ErrInvalidBed) {
				t.Errorf("expected ErrInvalidBed, got %v", err)
			}
		})
	}
}

func TestService_CreateHospital_Validation(t *testing.T) {
	svc, _, _, _ := newTestService(t, nil)
	err := svc.CreateHospital(context.Background(), &Hospital{Name: "", Location: "Eastside"})
	if !errors.Is(err, ErrInvalidHospital) {
		t.Errorf("expected ErrInvalidHospital, got %v", err)
	}

	h := &Hospital{Name: " Eastside Clinic ", Location: "Eastside"}
	if err := svc.CreateHospital(context.Background(), h); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if h.ID == 0 || h.Name != "Eastside Clinic" {
		t.Errorf("unexpected hospital %+v", h)
	}
}

func TestService_SearchHospitals_EmptyQueryLists(t *testing.T) {
	svc, _, _, _ := newTestService(t, nil)
	items, err := svc.SearchHospitals(context.Background(), "  ")
	if err != nil || len(items) != 2 {
		t.Errorf("expected all hospitals, got %d (%v)", len(items), err)
	}
}

func TestService_SearchHospitals_LiteralText(t *testing.T) {
	svc, _, _, _ := newTestService(t, nil)
	items, _ := svc.SearchHospitals(context.Background(), "' OR '1'='1")
	if len(items) != 0 {
		t.Errorf("expected no match for injection text, got %d", len(items))
	}
}

func TestService_HospitalDetails(t *testing.T) {
	svc, _, city, _ := newTestService(t, nil)
	d, err := svc.HospitalDetails(context.Background(), city.ID)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if d.Hospital.Name != "City Hospital" || len(d.Beds) != 3 {
		t.Errorf("unexpected details: %+v", d)
	}

	if _, err := svc.HospitalDetails(context.Background(), 999); !errors.Is(err, ErrNotFound) {
		t.Errorf("expected ErrNotFound, got %v", err)
	}
}

func TestService_SearchBeds_RejectsUnknownPriceBand(t *testing.T) {
	svc, _, _, _ := newTestService(t, nil)
	if _, err := svc.SearchBeds(context.Background(), BedSearch{Price: "cheap"}); !errors.Is(err, ErrInvalidBed) {
		t.Errorf("expected ErrInvalidBed, got %v", err)
	}
	items, err := svc.SearchBeds(context.Background(), BedSearch{Price: "LOW"})
	if err != nil || len(items) != 2 {
		t.Errorf("expected case-insensitive band, got %d (%v)", len(items), err)
	}
}

func TestService_UpsertBed_RejectsInvalid(t *testing.T) {
	svc, _, city, _ := newTestService(t, nil)
	_, err := svc.UpsertBed(context.Background(), &BedInventory{HospitalID: city.ID, BedType: "ICU", TotalCount: 3, AvailableCount: 4})
	if !errors.Is(err, ErrInvalidBed) {
		t.Errorf("expected ErrInvalidBed, got %v", err)
	}
}

func TestService_UpsertBed_LogsDrift(t *testing.T) {
	// 15 units held according to the row, but the ledger only knows of 2.
	svc, _, city, buf := newTestService(t, fakeHolds{n: 2})
	_, err := svc.UpsertBed(context.Background(), &BedInventory{HospitalID: city.ID, BedType: "ICU", TotalCount: 20, AvailableCount: 5, Price: 500})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !strings.Contains(buf.String(), "catalog edit disagrees with reservation ledger") {
		t.Errorf("expected drift warning, got %q", buf.String())
	}
}

func TestService_UpsertBed_NoDriftWhenConsistent(t *testing.T) {
	svc, _, city, buf := newTestService(t, fakeHolds{n: 15})
	_, err := svc.UpsertBed(context.Background(), &BedInventory{HospitalID: city.ID, BedType: "ICU", TotalCount: 20, AvailableCount: 5, Price: 500})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if buf.Len() != 0 {
		t.Errorf("expected no warning, got %q", buf.String())
	}
}

func TestService_DeleteBed(t *testing.T) {
	svc, s, city, buf := newTestService(t, fakeHolds{n: 1})
	ctx := context.Background()
	row, _ := s.Beds().Get(ctx, city.ID, "ICU")

	if err := svc.DeleteBed(ctx, row.ID); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !strings.Contains(buf.String(), "still hold units") {
		t.Errorf("expected warning about active holds, got %q", buf.String())
	}
	if err := svc.DeleteBed(ctx, row.ID); !errors.Is(err, ErrNotFound) {
		t.Errorf("expected ErrNotFound, got %v", err)
	}
}

func TestService_Doctors(t *testing.T) {
	svc, _, city, _ := newTestService(t, nil)
	ctx := context.Background()

	for _, d := range []*Doctor{
		{HospitalID: city.ID, Name: "Dr. Smith", Specialization: "Cardiologist", Availability: "Mon-Fri 9AM-5PM"},
		{HospitalID: city.ID, Name: " Dr. Jones ", Specialization: "Neurologist", IsVisiting: true},
	} {
		if err := svc.AddDoctor(ctx, d); err != nil {
			t.Fatalf("add doctor: %v", err)
		}
	}

	items, err := svc.ListDoctors(ctx, city.ID)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(items) != 2 {
		t.Fatalf("expected 2 doctors, got %d", len(items))
	}
	if items[0].Name != "Dr. Smith" || items[1].Name != "Dr. Jones" || !items[1].IsVisiting {
		t.Errorf("unexpected roster: %+v %+v", items[0], items[1])
	}

	if err := svc.AddDoctor(ctx, &Doctor{HospitalID: city.ID}); !errors.Is(err, ErrInvalidDoctor) {
		t.Errorf("expected ErrInvalidDoctor, got %v", err)
	}
	if err := svc.AddDoctor(ctx, &Doctor{HospitalID: 999, Name: "Dr. Who"}); !errors.Is(err, ErrNotFound) {
		t.Errorf("expected ErrNotFound, got %v", err)
	}
	if _, err := svc.ListDoctors(ctx, 999); !errors.Is(err, ErrNotFound) {
		t.Errorf("expected ErrNotFound for unknown hospital, got %v", err)
	}
}

func TestService_ListDoctors_WithoutRoster(t *testing.T) {
	s, city, _ := seedStore(t)
	svc := NewService(s.Hospitals(), s.Beds(), nil, zerolog.Nop())
	items, err := svc.ListDoctors(context.Background(), city.ID)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if items == nil || len(items) != 0 {
		t.Errorf("expected empty roster, got %v", items)
	}
}

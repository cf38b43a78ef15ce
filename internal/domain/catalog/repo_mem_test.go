package catalog

import (
	"context"
	"errors"
	"sync"
	"testing"
)

func seedStore(t *testing.T) (*MemStore, *Hospital, *Hospital) {
	t.Helper()
	ctx := context.Background()
	s := NewMemStore()
	city := &Hospital{Name: "City Hospital", Location: "Downtown", Contact: "555-0101"}
	general := &Hospital{Name: "General Medical Center", Location: "Westside", Contact: "555-0102"}
	for _, h := range []*Hospital{city, general} {
		if err := s.Hospitals().Create(ctx, h); err != nil {
			t.Fatalf("create hospital: %v", err)
		}
	}
	beds := []*BedInventory{
		{HospitalID: city.ID, BedType: "ICU", TotalCount: 20, AvailableCount: 5, Price: 500},
		{HospitalID: city.ID, BedType: "General Ward", TotalCount: 100, AvailableCount: 42, Price: 100},
		{HospitalID: city.ID, BedType: "Ventilator", TotalCount: 10, AvailableCount: 0, Price: 1000},
		{HospitalID: general.ID, BedType: "General Ward", TotalCount: 80, AvailableCount: 10, Price: 120},
	}
	for _, b := range beds {
		if _, err := s.Beds().Upsert(ctx, b); err != nil {
			t.Fatalf("upsert bed: %v", err)
		}
	}
	return s, city, general
}

func TestMemStore_ListAggregates(t *testing.T) {
	s, city, _ := seedStore(t)
	items, err := s.Hospitals().List(context.Background())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(items) != 2 {
		t.Fatalf("expected 2 hospitals, got %d", len(items))
	}
	if items[0].ID != city.ID || items[0].AvailableBeds != 47 || items[0].TotalBeds != 130 {
		t.Errorf("unexpected aggregates for city: %+v", items[0])
	}
}

func TestMemStore_SearchHospitals(t *testing.T) {
	s, _, general := seedStore(t)
	items, _ := s.Hospitals().Search(context.Background(), "west")
	if len(items) != 1 || items[0].ID != general.ID {
		t.Errorf("expected only General Medical Center, got %+v", items)
	}
}

func TestMemStore_UpsertUpdatesInPlace(t *testing.T) {
	s, city, _ := seedStore(t)
	ctx := context.Background()

	before, _ := s.Beds().Get(ctx, city.ID, "ICU")
	created, err := s.Beds().Upsert(ctx, &BedInventory{HospitalID: city.ID, BedType: "ICU", TotalCount: 25, AvailableCount: 10, Price: 550})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if created {
		t.Error("expected update, not create")
	}
	after, _ := s.Beds().Get(ctx, city.ID, "ICU")
	if after.ID != before.ID || after.TotalCount != 25 || after.AvailableCount != 10 {
		t.Errorf("unexpected row after upsert: %+v", after)
	}
}

func TestMemStore_UpsertUnknownHospital(t *testing.T) {
	s := NewMemStore()
	_, err := s.Beds().Upsert(context.Background(), &BedInventory{HospitalID: 99, BedType: "ICU", TotalCount: 1, AvailableCount: 1})
	if !errors.Is(err, ErrNotFound) {
		t.Errorf("expected ErrNotFound, got %v", err)
	}
}

func TestMemStore_SearchAvailable(t *testing.T) {
	s, _, _ := seedStore(t)
	ctx := context.Background()

	all, _ := s.Beds().SearchAvailable(ctx, BedSearch{})
	if len(all) != 3 {
		t.Errorf("expected 3 rows with availability (ventilator is full), got %d", len(all))
	}

	low, _ := s.Beds().SearchAvailable(ctx, BedSearch{Price: "low"})
	for _, l := range low {
		if l.Price >= PriceThreshold {
			t.Errorf("low band returned price %v", l.Price)
		}
	}
	if len(low) != 2 {
		t.Errorf("expected 2 low-priced rows, got %d", len(low))
	}

	high, _ := s.Beds().SearchAvailable(ctx, BedSearch{Price: "high", Location: "DOWNTOWN"})
	if len(high) != 1 || high[0].BedType != "ICU" {
		t.Errorf("expected ICU only, got %+v", high)
	}

	ward, _ := s.Beds().SearchAvailable(ctx, BedSearch{BedType: "General Ward", Location: "general"})
	if len(ward) != 1 || ward[0].HospitalName != "General Medical Center" {
		t.Errorf("expected general ward at General Medical Center, got %+v", ward)
	}
}

func TestMemStore_WithRowLock(t *testing.T) {
	s, city, _ := seedStore(t)
	ctx := context.Background()

	err := s.WithRowLock(ctx, city.ID, "ICU", func(row *BedInventory) error {
		row.AvailableCount--
		return nil
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	row, _ := s.Beds().Get(ctx, city.ID, "ICU")
	if row.AvailableCount != 4 {
		t.Errorf("expected 4 available, got %d", row.AvailableCount)
	}

	boom := errors.New("boom")
	err = s.WithRowLock(ctx, city.ID, "ICU", func(row *BedInventory) error {
		row.AvailableCount = 0
		return boom
	})
	if !errors.Is(err, boom) {
		t.Fatalf("expected fn error, got %v", err)
	}
	row, _ = s.Beds().Get(ctx, city.ID, "ICU")
	if row.AvailableCount != 4 {
		t.Errorf("failed fn must not write back, got %d", row.AvailableCount)
	}

	err = s.WithRowLock(ctx, city.ID, "Burns Unit", func(*BedInventory) error {
		t.Error("fn must not run for a missing row")
		return nil
	})
	if !errors.Is(err, ErrNotFound) {
		t.Errorf("expected ErrNotFound, got %v", err)
	}
}

func TestMemStore_WithRowLock_Serialises(t *testing.T) {
	s, city, _ := seedStore(t)
	ctx := context.Background()

	var wg sync.WaitGroup
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_ = s.WithRowLock(ctx, city.ID, "General Ward", func(row *BedInventory) error {
				row.AvailableCount--
				return nil
			})
		}()
	}
	wg.Wait()

	row, _ := s.Beds().Get(ctx, city.ID, "General Ward")
	if row.AvailableCount != -8 {
		t.Errorf("expected 50 serialised decrements (42-50=-8), got %d", row.AvailableCount)
	}
}

func TestMemStore_Delete(t *testing.T) {
	s, city, _ := seedStore(t)
	ctx := context.Background()
	row, _ := s.Beds().Get(ctx, city.ID, "ICU")

	if err := s.Beds().Delete(ctx, row.ID); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if _, err := s.Beds().GetByID(ctx, row.ID); !errors.Is(err, ErrNotFound) {
		t.Errorf("expected ErrNotFound after delete, got %v", err)
	}
	if err := s.Beds().Delete(ctx, row.ID); !errors.Is(err, ErrNotFound) {
		t.Errorf("expected ErrNotFound on second delete, got %v", err)
	}
}

func TestMemStore_Names(t *testing.T) {
	s, city, general := seedStore(t)
	names, _ := s.Hospitals().Names(context.Background(), []int64{city.ID, general.ID, 404})
	if names[city.ID] != "City Hospital" || names[general.ID] != "General Medical Center" {
		t.Errorf("unexpected names %v", names)
	}
	if _, ok := names[404]; ok {
		t.Error("unknown id must be absent")
	}
}

// Package sandbox seeds a fresh deployment with demo hospitals, bed
// inventory and accounts so the API can be exercised end to end.
package sandbox

import (
	"context"
	"errors"
	"fmt"
	"math/rand"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/rs/zerolog"

	"github.com/hospitrack/hospitrack/internal/domain/catalog"
	"github.com/hospitrack/hospitrack/internal/domain/identity"
	"github.com/hospitrack/hospitrack/internal/platform/auth"
)

// ---------------------------------------------------------------------------
// Configuration
// ---------------------------------------------------------------------------

// SeedConfig controls how much demo data is generated beyond the fixed set.
type SeedConfig struct {
	ExtraPatients int   `json:"extra_patients"`
	Seed          int64 `json:"seed"`
}

func DefaultSeedConfig() SeedConfig {
	return SeedConfig{}
}

// SeedResult summarises one seeding run.
type SeedResult struct {
	Message   string           `json:"message"`
	Skipped   bool             `json:"skipped"`
	Hospitals int              `json:"hospitals"`
	Beds      int              `json:"beds"`
	Doctors   int              `json:"doctors"`
	Users     []*identity.User `json:"users"`
	Duration  time.Duration    `json:"duration_ns"`
}

// Catalog is the part of the catalog service the seeder writes through.
type Catalog interface {
	ListHospitals(ctx context.Context) ([]*catalog.Hospital, error)
	CreateHospital(ctx context.Context, h *catalog.Hospital) error
	UpsertBed(ctx context.Context, b *catalog.BedInventory) (bool, error)
	AddDoctor(ctx context.Context, d *catalog.Doctor) error
}

// Accounts creates users.
type Accounts interface {
	Create(ctx context.Context, u *identity.User) error
}

// ---------------------------------------------------------------------------
// Fixed demo data
// ---------------------------------------------------------------------------

type demoBed struct {
	bedType          string
	total, available int
	price            float64
}

type demoHospital struct {
	name, location, contact string
	staff, staffName        string
	beds                    []demoBed
	doctors                 []catalog.Doctor
}

var demoHospitals = []demoHospital{
	{
		name: "City Hospital", location: "Downtown", contact: "555-0101",
		staff: "staff1", staffName: "Admin City Hosp",
		beds: []demoBed{
			{"ICU", 20, 5, 500},
			{"General Ward", 100, 42, 100},
			{"Ventilator", 10, 2, 1000},
		},
		doctors: []catalog.Doctor{
			{Name: "Dr. Smith", Specialization: "Cardiologist", Availability: "Mon-Fri 9AM-5PM"},
			{Name: "Dr. Jones", Specialization: "Neurologist", Availability: "Tue, Thu 2PM-6PM", IsVisiting: true},
		},
	},
	{
		name: "General Medical Center", location: "Westside", contact: "555-0102",
		staff: "staff2", staffName: "Admin Gen Med",
		beds: []demoBed{
			{"General Ward", 80, 10, 120},
		},
	},
}

var (
	firstNames = []string{"Aarav", "Maria", "James", "Fatima", "Chen", "Olivia", "Noah", "Priya", "Lucas", "Amara"}
	lastNames  = []string{"Sharma", "Garcia", "Smith", "Khan", "Wei", "Johnson", "Brown", "Patel", "Silva", "Okafor"}
)

// ---------------------------------------------------------------------------
// Seeder
// ---------------------------------------------------------------------------

// Seeder writes demo data through the catalog and identity services so that
// the same validation applies as for API writes.
type Seeder struct {
	catalog  Catalog
	accounts Accounts
	logger   zerolog.Logger
	mu       sync.Mutex
}

func NewSeeder(cat Catalog, accounts Accounts, logger zerolog.Logger) *Seeder {
	return &Seeder{catalog: cat, accounts: accounts, logger: logger}
}

// Generate seeds an empty catalog. When any hospital already exists it does
// nothing and reports Skipped.
func (s *Seeder) Generate(ctx context.Context, cfg SeedConfig) (*SeedResult, error) {
	start := time.Now()
	s.mu.Lock()
	defer s.mu.Unlock()

	existing, err := s.catalog.ListHospitals(ctx)
	if err != nil {
		return nil, fmt.Errorf("checking existing hospitals: %w", err)
	}
	if len(existing) > 0 {
		return &SeedResult{Message: "Data already exists.", Skipped: true, Duration: time.Since(start)}, nil
	}

	result := &SeedResult{}
	for _, dh := range demoHospitals {
		h := &catalog.Hospital{Name: dh.name, Location: dh.location, Contact: dh.contact}
		if err := s.catalog.CreateHospital(ctx, h); err != nil {
			return nil, fmt.Errorf("creating hospital %q: %w", dh.name, err)
		}
		result.Hospitals++

		for _, db := range dh.beds {
			bed := &catalog.BedInventory{
				HospitalID: h.ID, BedType: db.bedType,
				TotalCount: db.total, AvailableCount: db.available, Price: db.price,
			}
			if _, err := s.catalog.UpsertBed(ctx, bed); err != nil {
				return nil, fmt.Errorf("creating %s beds at %q: %w", db.bedType, dh.name, err)
			}
			result.Beds++
		}

		for _, dd := range dh.doctors {
			d := dd
			d.HospitalID = h.ID
			if err := s.catalog.AddDoctor(ctx, &d); err != nil {
				return nil, fmt.Errorf("adding %s at %q: %w", d.Name, dh.name, err)
			}
			result.Doctors++
		}

		hid := h.ID
		if err := s.addUser(ctx, result, &identity.User{
			Username: dh.staff, Role: auth.RoleHospitalStaff, FullName: dh.staffName, HospitalID: &hid,
		}); err != nil {
			return nil, err
		}
	}

	fixed := []*identity.User{
		{Username: "patient", Role: auth.RolePatient, FullName: "John Doe"},
		{Username: "labtech", Role: auth.RoleLabTech, FullName: "Lab Technician"},
		{Username: "admin", Role: auth.RoleAdmin, FullName: "System Admin"},
	}
	for _, u := range fixed {
		if err := s.addUser(ctx, result, u); err != nil {
			return nil, err
		}
	}

	if cfg.ExtraPatients > 0 {
		seed := cfg.Seed
		if seed == 0 {
			seed = time.Now().UnixNano()
		}
		rng := rand.New(rand.NewSource(seed))
		for i := 0; i < cfg.ExtraPatients; i++ {
			first, last := firstNames[rng.Intn(len(firstNames))], lastNames[rng.Intn(len(lastNames))]
			u := &identity.User{
				Username: fmt.Sprintf("%s.%s%d", strings.ToLower(first), strings.ToLower(last), i+1),
				Role:     auth.RolePatient,
				FullName: first + " " + last,
			}
			if err := s.addUser(ctx, result, u); err != nil {
				return nil, err
			}
		}
	}

	result.Message = "Dummy data initialized."
	result.Duration = time.Since(start)
	s.logger.Info().
		Int("hospitals", result.Hospitals).
		Int("beds", result.Beds).
		Int("doctors", result.Doctors).
		Int("users", len(result.Users)).
		Dur("duration", result.Duration).
		Msg("demo data seeded")
	return result, nil
}

// addUser tolerates accounts left over from an earlier partial seed.
func (s *Seeder) addUser(ctx context.Context, result *SeedResult, u *identity.User) error {
	err := s.accounts.Create(ctx, u)
	if errors.Is(err, identity.ErrDuplicate) {
		s.logger.Warn().Str("username", u.Username).Msg("demo user already exists, skipping")
		return nil
	}
	if err != nil {
		return fmt.Errorf("creating user %q: %w", u.Username, err)
	}
	result.Users = append(result.Users, u)
	return nil
}

// ---------------------------------------------------------------------------
// SeedHandler
// ---------------------------------------------------------------------------

type SeedHandler struct {
	seeder *Seeder
}

func NewSeedHandler(seeder *Seeder) *SeedHandler {
	return &SeedHandler{seeder: seeder}
}

func (h *SeedHandler) RegisterRoutes(api *echo.Group) {
	api.POST("/init_dummy_data", h.handleSeed, auth.RequireRole(auth.RoleAdmin))
}

func (h *SeedHandler) handleSeed(c echo.Context) error {
	cfg := DefaultSeedConfig()
	if c.Request().ContentLength > 0 {
		if err := c.Bind(&cfg); err != nil {
			return echo.NewHTTPError(http.StatusBadRequest, "invalid request body")
		}
	}
	if cfg.ExtraPatients < 0 || cfg.ExtraPatients > 1000 {
		return echo.NewHTTPError(http.StatusBadRequest, "extra_patients must be between 0 and 1000")
	}

	result, err := h.seeder.Generate(c.Request().Context(), cfg)
	if err != nil {
		return echo.NewHTTPError(http.StatusInternalServerError, err.Error())
	}
	return c.JSON(http.StatusOK, result)
}

package appointment

import (
	"context"
	"errors"
	"regexp"
	"sync"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hospitrack/hospitrack/internal/domain/catalog"
	"github.com/hospitrack/hospitrack/internal/domain/identity"
	"github.com/hospitrack/hospitrack/internal/platform/events"
	"github.com/hospitrack/hospitrack/pkg/pagination"
)

type recorder struct {
	mu     sync.Mutex
	events []events.Event
}

func (r *recorder) Publish(_ context.Context, evt events.Event) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, evt)
	return nil
}

type fixture struct {
	svc      *Service
	repo     Repository
	events   *recorder
	hospital *catalog.Hospital
	patient  *identity.User
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	ctx := context.Background()

	cat := catalog.NewMemStore()
	h := &catalog.Hospital{Name: "City Hospital", Location: "Downtown"}
	require.NoError(t, cat.Hospitals().Create(ctx, h))
	hospitals := catalog.NewService(cat.Hospitals(), cat.Beds(), nil, zerolog.Nop())

	users := identity.NewService(identity.NewUserRepoMem())
	p := &identity.User{Username: "patient", FullName: "John Patient"}
	require.NoError(t, users.Create(ctx, p))

	repo := NewRepoMem()
	rec := &recorder{}
	return &fixture{
		svc:      NewService(repo, users, hospitals, rec, nil, zerolog.Nop()),
		repo:     repo,
		events:   rec,
		hospital: h,
		patient:  p,
	}
}

func (f *fixture) book(t *testing.T, date string) *Appointment {
	t.Helper()
	a, err := f.svc.Book(context.Background(), BookRequest{
		PatientID: f.patient.ID, HospitalID: f.hospital.ID, DoctorName: "Dr. Smith", Date: date,
	})
	require.NoError(t, err)
	return a
}

var numberPattern = regexp.MustCompile(`^APT-[0-9A-F]{8}$`)

func TestNewNumber_Format(t *testing.T) {
	seen := make(map[string]bool)
	for i := 0; i < 500; i++ {
		no := NewNumber()
		require.Regexp(t, numberPattern, no)
		seen[no] = true
	}
	assert.Greater(t, len(seen), 490)
}

func TestBook(t *testing.T) {
	f := newFixture(t)
	a := f.book(t, "2026-11-02")

	assert.Equal(t, StatusPending, a.Status)
	assert.Regexp(t, numberPattern, a.AppointmentNo)
	assert.NotZero(t, a.ID)
	require.Len(t, f.events.events, 1)
	assert.Equal(t, events.AppointmentBooked, f.events.events[0].Type)
}

func TestBook_Validation(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	good := BookRequest{PatientID: f.patient.ID, HospitalID: f.hospital.ID, DoctorName: "Dr. Smith", Date: "2026-11-02"}

	cases := map[string]func(r *BookRequest){
		"no patient":       func(r *BookRequest) { r.PatientID = 0 },
		"no hospital":      func(r *BookRequest) { r.HospitalID = 0 },
		"no doctor":        func(r *BookRequest) { r.DoctorName = "  " },
		"no date":          func(r *BookRequest) { r.Date = "" },
		"bad date":         func(r *BookRequest) { r.Date = "next tuesday" },
		"unknown patient":  func(r *BookRequest) { r.PatientID = 999 },
		"unknown hospital": func(r *BookRequest) { r.HospitalID = 999 },
	}
	for name, mutate := range cases {
		t.Run(name, func(t *testing.T) {
			req := good
			mutate(&req)
			_, err := f.svc.Book(ctx, req)
			assert.ErrorIs(t, err, ErrInvalidAppointment)
		})
	}

	for _, date := range []string{"2026-11-02T09:30", "2026-11-02 09:30", "2026-11-02T09:30:00Z"} {
		req := good
		req.Date = date
		_, err := f.svc.Book(ctx, req)
		assert.NoError(t, err, date)
	}
}

type collidingRepo struct {
	Repository
	failures int
}

func (r *collidingRepo) Create(ctx context.Context, a *Appointment) error {
	if r.failures > 0 {
		r.failures--
		return errNumberTaken
	}
	return r.Repository.Create(ctx, a)
}

func TestBook_RetriesNumberCollision(t *testing.T) {
	repo := &collidingRepo{Repository: NewRepoMem(), failures: 3}
	svc := NewService(repo, nil, nil, nil, nil, zerolog.Nop())
	req := BookRequest{PatientID: 1, HospitalID: 1, DoctorName: "Dr. Who", Date: "2026-11-02"}

	a, err := svc.Book(context.Background(), req)
	require.NoError(t, err)
	assert.NotZero(t, a.ID)

	repo.failures = maxNumberAttempts
	_, err = svc.Book(context.Background(), req)
	assert.Error(t, err)
}

func TestRepoMem_RejectsDuplicateNumber(t *testing.T) {
	repo := NewRepoMem()
	ctx := context.Background()
	require.NoError(t, repo.Create(ctx, &Appointment{AppointmentNo: "APT-00000001"}))
	assert.True(t, errors.Is(repo.Create(ctx, &Appointment{AppointmentNo: "APT-00000001"}), errNumberTaken))
}

func TestUpdateStatus_Unconstrained(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	a := f.book(t, "2026-11-02")

	for _, status := range []string{StatusCancelled, StatusConfirmed, StatusCompleted, StatusPending} {
		got, err := f.svc.UpdateStatus(ctx, a.ID, status)
		require.NoError(t, err)
		assert.Equal(t, status, got.Status)
	}
	_, err := f.svc.UpdateStatus(ctx, a.ID, StatusPending)
	require.NoError(t, err)
	assert.Len(t, f.events.events, 5, "booked plus four changes, no event for a same-status write")

	_, err = f.svc.UpdateStatus(ctx, a.ID, "Rescheduled")
	assert.ErrorIs(t, err, ErrInvalidStatus)
	_, err = f.svc.UpdateStatus(ctx, 999, StatusConfirmed)
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestListOrdering(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	mid := f.book(t, "2026-11-05")
	early := f.book(t, "2026-11-01")
	late := f.book(t, "2026-11-09")

	byPatient, total, err := f.svc.ListByPatient(ctx, f.patient.ID, pagination.Params{Limit: 10})
	require.NoError(t, err)
	assert.Equal(t, 3, total)
	require.Len(t, byPatient, 3)
	assert.Equal(t, []int64{late.ID, mid.ID, early.ID}, []int64{byPatient[0].ID, byPatient[1].ID, byPatient[2].ID})
	assert.Equal(t, "City Hospital", byPatient[0].HospitalName)

	byHospital, _, err := f.svc.ListByHospital(ctx, f.hospital.ID, pagination.Params{Limit: 10})
	require.NoError(t, err)
	require.Len(t, byHospital, 3)
	assert.Equal(t, []int64{early.ID, mid.ID, late.ID}, []int64{byHospital[0].ID, byHospital[1].ID, byHospital[2].ID})
	assert.Equal(t, "John Patient", byHospital[0].PatientName)
	assert.Equal(t, "patient", byHospital[0].PatientContact)

	n, err := f.svc.PatientsServed(ctx, f.hospital.ID)
	require.NoError(t, err)
	assert.Equal(t, 3, n)
}

func TestGetByAppointmentNo(t *testing.T) {
	f := newFixture(t)
	a := f.book(t, "2026-11-02")

	v, err := f.svc.GetByAppointmentNo(context.Background(), " "+a.AppointmentNo+" ")
	require.NoError(t, err)
	assert.Equal(t, a.ID, v.ID)
	assert.Equal(t, "City Hospital", v.HospitalName)
	assert.Equal(t, "John Patient", v.PatientName)

	_, err = f.svc.GetByAppointmentNo(context.Background(), "APT-FFFFFFFF")
	assert.ErrorIs(t, err, ErrNotFound)
}

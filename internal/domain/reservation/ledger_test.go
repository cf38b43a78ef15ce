package reservation

import (
	"bytes"
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/xuri/excelize/v2"

	"github.com/hospitrack/hospitrack/pkg/pagination"
)

func TestLedger_ListByHospitalNewestFirst(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	base := time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC)
	tick := 0
	f.store.now = func() time.Time { tick++; return base.Add(time.Duration(tick) * time.Minute) }

	first := f.reserve(t, "ICU")
	second := f.reserve(t, "General Ward")
	third := f.reserve(t, "ICU")

	views, total, err := f.ledger.ListByHospital(ctx, f.hospital.ID, pagination.Params{Limit: 2})
	require.NoError(t, err)
	assert.Equal(t, 3, total)
	require.Len(t, views, 2)
	assert.Equal(t, third.ID, views[0].ID)
	assert.Equal(t, second.ID, views[1].ID)
	assert.Equal(t, "John Patient", views[0].PatientName)
	assert.Equal(t, "patient", views[0].PatientContact)
	assert.Equal(t, f.patient.HospitrackID, views[0].PatientUID)

	views, _, err = f.ledger.ListByHospital(ctx, f.hospital.ID, pagination.Params{Limit: 2, Offset: 2})
	require.NoError(t, err)
	require.Len(t, views, 1)
	assert.Equal(t, first.ID, views[0].ID)
}

func TestLedger_ListByPatient(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	f.reserve(t, "ICU")

	views, total, err := f.ledger.ListByPatient(ctx, f.patient.ID, pagination.Params{Limit: 10})
	require.NoError(t, err)
	assert.Equal(t, 1, total)
	require.Len(t, views, 1)
	assert.Equal(t, "City Hospital", views[0].HospitalName)
	assert.Empty(t, views[0].PatientName)

	views, total, err = f.ledger.ListByPatient(ctx, 999, pagination.Params{Limit: 10})
	require.NoError(t, err)
	assert.Zero(t, total)
	assert.Empty(t, views)
}

func TestLedger_Get(t *testing.T) {
	f := newFixture(t)
	r := f.reserve(t, "ICU")

	got, err := f.ledger.Get(context.Background(), r.ID)
	require.NoError(t, err)
	assert.Equal(t, r.BedType, got.BedType)

	_, err = f.ledger.Get(context.Background(), 12345)
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestLedger_ActiveHoldsCountsUnreturnedUnits(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	a := f.reserve(t, "ICU")
	b := f.reserve(t, "ICU")
	c := f.reserve(t, "ICU")

	_, err := f.coord.ConfirmOrComplete(ctx, a.ID, StatusCompleted)
	require.NoError(t, err)
	_, err = f.coord.ReleaseHold(ctx, b.ID, StatusCancelled)
	require.NoError(t, err)
	_, err = f.coord.ConfirmOrComplete(ctx, c.ID, StatusConfirmed)
	require.NoError(t, err)

	n, err := f.ledger.ActiveHolds(ctx, f.hospital.ID, "ICU")
	require.NoError(t, err)
	assert.Equal(t, 2, n)
	assert.Equal(t, 5-n, f.available(t, "ICU"))
}

func TestLedger_Export(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	for i := 0; i < 3; i++ {
		f.reserve(t, "General Ward")
	}

	var buf bytes.Buffer
	require.NoError(t, f.ledger.Export(ctx, f.hospital.ID, &buf))

	book, err := excelize.OpenReader(&buf)
	require.NoError(t, err)
	defer book.Close()

	rows, err := book.GetRows(exportSheet)
	require.NoError(t, err)
	require.Len(t, rows, 4)
	assert.Equal(t, "Reservation ID", rows[0][0])
	assert.Equal(t, "John Patient", rows[1][1])
	assert.Equal(t, f.patient.HospitrackID, rows[1][2])
	assert.Equal(t, "General Ward", rows[1][4])
	assert.Equal(t, StatusReserved, rows[1][5])
}

func TestLedger_ExportEmptyHospital(t *testing.T) {
	f := newFixture(t)
	var buf bytes.Buffer
	require.NoError(t, f.ledger.Export(context.Background(), 999, &buf))

	book, err := excelize.OpenReader(&buf)
	require.NoError(t, err)
	defer book.Close()
	rows, err := book.GetRows(exportSheet)
	require.NoError(t, err)
	assert.Len(t, rows, 1)
}

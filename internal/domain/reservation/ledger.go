package reservation

import (
	"context"
	"fmt"
	"io"

	"github.com/xuri/excelize/v2"

	"github.com/hospitrack/hospitrack/pkg/pagination"
)

// Ledger serves reservation reads joined with display fields. It never
// writes status.
type Ledger struct {
	store     Store
	patients  PatientDirectory
	hospitals HospitalDirectory
}

func NewLedger(store Store, patients PatientDirectory, hospitals HospitalDirectory) *Ledger {
	return &Ledger{store: store, patients: patients, hospitals: hospitals}
}

func (l *Ledger) Get(ctx context.Context, id int64) (*Reservation, error) {
	return l.store.Get(ctx, id)
}

// ListByHospital returns the hospital's reservations newest first with the
// patient's name, contact and HospiTrack UID.
func (l *Ledger) ListByHospital(ctx context.Context, hospitalID int64, p pagination.Params) ([]*View, int, error) {
	items, total, err := l.store.ListByHospital(ctx, hospitalID, p)
	if err != nil {
		return nil, 0, err
	}
	views, err := l.withPatients(ctx, items)
	return views, total, err
}

// ListByPatient returns the patient's reservations newest first with the
// hospital name.
func (l *Ledger) ListByPatient(ctx context.Context, patientID int64, p pagination.Params) ([]*View, int, error) {
	items, total, err := l.store.ListByPatient(ctx, patientID, p)
	if err != nil {
		return nil, 0, err
	}
	views := make([]*View, len(items))
	ids := make([]int64, 0, len(items))
	for i, r := range items {
		views[i] = &View{Reservation: r}
		ids = append(ids, r.HospitalID)
	}
	if l.hospitals == nil || len(ids) == 0 {
		return views, total, nil
	}
	names, err := l.hospitals.HospitalNames(ctx, ids)
	if err != nil {
		return nil, 0, fmt.Errorf("resolving hospital names: %w", err)
	}
	for _, v := range views {
		v.HospitalName = names[v.HospitalID]
	}
	return views, total, nil
}

// ActiveHolds lets the catalog cross-check staff edits against the ledger.
func (l *Ledger) ActiveHolds(ctx context.Context, hospitalID int64, bedType string) (int, error) {
	return l.store.ActiveHolds(ctx, hospitalID, bedType)
}

func (l *Ledger) withPatients(ctx context.Context, items []*Reservation) ([]*View, error) {
	views := make([]*View, len(items))
	ids := make([]int64, 0, len(items))
	for i, r := range items {
		views[i] = &View{Reservation: r}
		ids = append(ids, r.PatientID)
	}
	if l.patients == nil || len(ids) == 0 {
		return views, nil
	}
	cards, err := l.patients.PatientCards(ctx, ids)
	if err != nil {
		return nil, fmt.Errorf("resolving patients: %w", err)
	}
	for _, v := range views {
		card, ok := cards[v.PatientID]
		if !ok {
			continue
		}
		v.PatientName = card.DisplayName()
		v.PatientContact = card.Username
		v.PatientUID = card.HospitrackID
	}
	return views, nil
}

const exportSheet = "Reservations"

var exportHeader = []interface{}{
	"Reservation ID", "Patient", "HospiTrack ID", "Contact",
	"Bed Type", "Status", "Urgency", "Address", "Created At", "Updated At",
}

// Export writes every reservation of the hospital, newest first, as an
// .xlsx workbook.
func (l *Ledger) Export(ctx context.Context, hospitalID int64, w io.Writer) error {
	f := excelize.NewFile()
	defer f.Close()

	if err := f.SetSheetName("Sheet1", exportSheet); err != nil {
		return fmt.Errorf("naming sheet: %w", err)
	}
	bold, err := f.NewStyle(&excelize.Style{
		Font: &excelize.Font{Bold: true},
		Fill: excelize.Fill{Type: "pattern", Color: []string{"#E6F3FF"}, Pattern: 1},
	})
	if err != nil {
		return fmt.Errorf("creating header style: %w", err)
	}
	if err := f.SetSheetRow(exportSheet, "A1", &exportHeader); err != nil {
		return err
	}
	if err := f.SetRowStyle(exportSheet, 1, 1, bold); err != nil {
		return err
	}

	line := 2
	p := pagination.Params{Limit: pagination.MaxLimit}
	for {
		views, total, err := l.ListByHospital(ctx, hospitalID, p)
		if err != nil {
			return err
		}
		for _, v := range views {
			cell, err := excelize.CoordinatesToCellName(1, line)
			if err != nil {
				return err
			}
			row := []interface{}{
				v.ID, v.PatientName, v.PatientUID, v.PatientContact,
				v.BedType, v.Status, v.Urgency, v.Address,
				v.CreatedAt.Format("2006-01-02 15:04:05"), v.UpdatedAt.Format("2006-01-02 15:04:05"),
			}
			if err := f.SetSheetRow(exportSheet, cell, &row); err != nil {
				return err
			}
			line++
		}
		if len(views) == 0 || !p.HasNext(total) {
			break
		}
		p.Offset += p.Limit
	}

	if err := f.SetColWidth(exportSheet, "A", "J", 18); err != nil {
		return err
	}
	return f.Write(w)
}

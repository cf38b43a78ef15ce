package laborder

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/hospitrack/hospitrack/internal/platform/db"
	"github.com/hospitrack/hospitrack/pkg/pagination"
)

type repoPG struct{ pool *pgxpool.Pool }

func NewRepoPG(pool *pgxpool.Pool) Repository { return &repoPG{pool: pool} }

func (r *repoPG) conn(ctx context.Context) db.Querier {
	return db.Pick(ctx, r.pool)
}

const orderCols = `id, lab_order_id, patient_id, hospital_id, COALESCE(appointment_no, ''),
	COALESCE(doctor_name, ''), COALESCE(report_name, ''), lab_name, status, date_uploaded,
	created_at, completed_at`

func scanOrder(row pgx.Row) (*Order, error) {
	var o Order
	err := row.Scan(&o.ID, &o.LabOrderID, &o.PatientID, &o.HospitalID, &o.AppointmentNo,
		&o.DoctorName, &o.ReportName, &o.LabName, &o.Status, &o.DateUploaded,
		&o.CreatedAt, &o.CompletedAt)
	return &o, err
}

func (r *repoPG) Create(ctx context.Context, o *Order) error {
	err := r.conn(ctx).QueryRow(ctx, `
		INSERT INTO lab_orders (lab_order_id, patient_id, hospital_id, appointment_no,
			doctor_name, report_name, lab_name, status, date_uploaded)
		VALUES ($1, $2, $3, NULLIF($4, ''), NULLIF($5, ''), NULLIF($6, ''), $7, $8, $9)
		RETURNING id, created_at`,
		o.LabOrderID, o.PatientID, o.HospitalID, o.AppointmentNo,
		o.DoctorName, o.ReportName, o.LabName, o.Status, o.DateUploaded).Scan(&o.ID, &o.CreatedAt)
	switch {
	case db.IsUniqueViolation(err):
		return errNumberTaken
	case db.IsForeignKeyViolation(err):
		return fmt.Errorf("%w: unknown patient or hospital", ErrInvalidOrder)
	}
	return err
}

func (r *repoPG) GetByLabOrderID(ctx context.Context, labOrderID string) (*Order, error) {
	o, err := scanOrder(r.conn(ctx).QueryRow(ctx,
		`SELECT `+orderCols+` FROM lab_orders WHERE lab_order_id = $1`, labOrderID))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, fmt.Errorf("lab order %s: %w", labOrderID, ErrNotFound)
	}
	return o, err
}

// Complete only matches Pending rows, so two concurrent completions of the
// same order cannot both succeed.
func (r *repoPG) Complete(ctx context.Context, labOrderID, appointmentNo string, at time.Time) (*Order, error) {
	o, err := scanOrder(r.conn(ctx).QueryRow(ctx, `
		UPDATE lab_orders
		SET status = $2, date_uploaded = $3, completed_at = $4,
			appointment_no = COALESCE(NULLIF($5, ''), appointment_no)
		WHERE lab_order_id = $1 AND status = $6
		RETURNING `+orderCols,
		labOrderID, StatusCompleted, at.Format(dateLayout), at, appointmentNo, StatusPending))
	if !errors.Is(err, pgx.ErrNoRows) {
		return o, err
	}
	if _, err := r.GetByLabOrderID(ctx, labOrderID); err != nil {
		return nil, err
	}
	return nil, fmt.Errorf("lab order %s: %w", labOrderID, ErrAlreadyCompleted)
}

func (r *repoPG) List(ctx context.Context, p pagination.Params) ([]*Order, int, error) {
	var total int
	if err := r.conn(ctx).QueryRow(ctx, `SELECT COUNT(*) FROM lab_orders`).Scan(&total); err != nil {
		return nil, 0, err
	}
	items, err := r.query(ctx, `
		SELECT `+orderCols+` FROM lab_orders
		ORDER BY id DESC
		LIMIT $1 OFFSET $2`, p.Limit, p.Offset)
	return items, total, err
}

func (r *repoPG) ListByPatient(ctx context.Context, patientID int64, p pagination.Params) ([]*Order, int, error) {
	var total int
	if err := r.conn(ctx).QueryRow(ctx, `SELECT COUNT(*) FROM lab_orders WHERE patient_id = $1`, patientID).Scan(&total); err != nil {
		return nil, 0, err
	}
	items, err := r.query(ctx, `
		SELECT `+orderCols+` FROM lab_orders
		WHERE patient_id = $1
		ORDER BY date_uploaded DESC, id DESC
		LIMIT $2 OFFSET $3`, patientID, p.Limit, p.Offset)
	return items, total, err
}

func (r *repoPG) query(ctx context.Context, sql string, args ...interface{}) ([]*Order, error) {
	rows, err := r.conn(ctx).Query(ctx, sql, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var items []*Order
	for rows.Next() {
		o, err := scanOrder(rows)
		if err != nil {
			return nil, err
		}
		items = append(items, o)
	}
	return items, rows.Err()
}

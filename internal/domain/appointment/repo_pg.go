package appointment

import (
	"context"
	"errors"
	"fmt"

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

const appointmentCols = `id, patient_id, hospital_id, doctor_name, date, status, appointment_no, created_at`

func scanAppointment(row pgx.Row) (*Appointment, error) {
	var a Appointment
	err := row.Scan(&a.ID, &a.PatientID, &a.HospitalID, &a.DoctorName, &a.Date, &a.Status, &a.AppointmentNo, &a.CreatedAt)
	return &a, err
}

func (r *repoPG) Create(ctx context.Context, a *Appointment) error {
	err := r.conn(ctx).QueryRow(ctx, `
		INSERT INTO appointments (patient_id, hospital_id, doctor_name, date, status, appointment_no)
		VALUES ($1, $2, $3, $4, $5, $6)
		RETURNING id, created_at`,
		a.PatientID, a.HospitalID, a.DoctorName, a.Date, a.Status, a.AppointmentNo).Scan(&a.ID, &a.CreatedAt)
	switch {
	case db.IsUniqueViolation(err):
		return errNumberTaken
	case db.IsForeignKeyViolation(err):
		return fmt.Errorf("%w: unknown patient or hospital", ErrInvalidAppointment)
	}
	return err
}

func (r *repoPG) get(ctx context.Context, where string, arg interface{}) (*Appointment, error) {
	a, err := scanAppointment(r.conn(ctx).QueryRow(ctx,
		`SELECT `+appointmentCols+` FROM appointments WHERE `+where+` = $1`, arg))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, fmt.Errorf("appointment %v: %w", arg, ErrNotFound)
	}
	return a, err
}

func (r *repoPG) GetByID(ctx context.Context, id int64) (*Appointment, error) {
	return r.get(ctx, "id", id)
}

func (r *repoPG) GetByNumber(ctx context.Context, no string) (*Appointment, error) {
	return r.get(ctx, "appointment_no", no)
}

func (r *repoPG) SetStatus(ctx context.Context, id int64, status string) (*Appointment, string, error) {
	var prev string
	row := r.conn(ctx).QueryRow(ctx, `
		UPDATE appointments a SET status = $2
		FROM (SELECT id, status FROM appointments WHERE id = $1 FOR UPDATE) old
		WHERE a.id = old.id
		RETURNING old.status, a.id, a.patient_id, a.hospital_id, a.doctor_name, a.date, a.status, a.appointment_no, a.created_at`,
		id, status)
	var a Appointment
	err := row.Scan(&prev, &a.ID, &a.PatientID, &a.HospitalID, &a.DoctorName, &a.Date, &a.Status, &a.AppointmentNo, &a.CreatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, "", fmt.Errorf("appointment %d: %w", id, ErrNotFound)
	}
	if err != nil {
		return nil, "", err
	}
	return &a, prev, nil
}

func (r *repoPG) ListByPatient(ctx context.Context, patientID int64, p pagination.Params) ([]*Appointment, int, error) {
	return r.page(ctx, `patient_id = $1`, `date DESC, id DESC`, patientID, p)
}

func (r *repoPG) ListByHospital(ctx context.Context, hospitalID int64, p pagination.Params) ([]*Appointment, int, error) {
	return r.page(ctx, `hospital_id = $1`, `date ASC, id ASC`, hospitalID, p)
}

func (r *repoPG) page(ctx context.Context, where, order string, id int64, p pagination.Params) ([]*Appointment, int, error) {
	var total int
	if err := r.conn(ctx).QueryRow(ctx, `SELECT COUNT(*) FROM appointments WHERE `+where, id).Scan(&total); err != nil {
		return nil, 0, err
	}
	rows, err := r.conn(ctx).Query(ctx, `
		SELECT `+appointmentCols+` FROM appointments
		WHERE `+where+`
		ORDER BY `+order+`
		LIMIT $2 OFFSET $3`, id, p.Limit, p.Offset)
	if err != nil {
		return nil, 0, err
	}
	defer rows.Close()
	var items []*Appointment
	for rows.Next() {
		a, err := scanAppointment(rows)
		if err != nil {
			return nil, 0, err
		}
		items = append(items, a)
	}
	return items, total, rows.Err()
}

func (r *repoPG) CountByHospital(ctx context.Context, hospitalID int64) (int, error) {
	var n int
	err := r.conn(ctx).QueryRow(ctx, `SELECT COUNT(*) FROM appointments WHERE hospital_id = $1`, hospitalID).Scan(&n)
	return n, err
}

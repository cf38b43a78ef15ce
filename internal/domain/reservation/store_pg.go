package reservation

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

type storePG struct {
	pool        *pgxpool.Pool
	lockTimeout time.Duration
}

// NewStorePG returns a Store backed by the bed_inventory and bed_reservation
// tables. lockTimeout bounds every row-lock wait; a wait that runs out
// surfaces as ErrContention.
func NewStorePG(pool *pgxpool.Pool, lockTimeout time.Duration) Store {
	return &storePG{pool: pool, lockTimeout: lockTimeout}
}

func (s *storePG) conn(ctx context.Context) db.Querier {
	return db.Pick(ctx, s.pool)
}

const reservationCols = `id, patient_id, hospital_id, bed_type, status, address, urgency, created_at, updated_at`

func scanReservation(row pgx.Row) (*Reservation, error) {
	var r Reservation
	err := row.Scan(&r.ID, &r.PatientID, &r.HospitalID, &r.BedType, &r.Status,
		&r.Address, &r.Urgency, &r.CreatedAt, &r.UpdatedAt)
	return &r, err
}

func (s *storePG) tx(ctx context.Context, fn func(pgx.Tx) error) error {
	err := db.WithTx(ctx, s.conn(ctx), s.lockTimeout, fn)
	if db.IsContention(err) {
		return fmt.Errorf("%w: %v", ErrContention, err)
	}
	return err
}

func (s *storePG) Reserve(ctx context.Context, req ReserveRequest) (*Reservation, error) {
	var out *Reservation
	err := s.tx(ctx, func(tx pgx.Tx) error {
		r, err := scanReservation(tx.QueryRow(ctx, `
			WITH held AS (
				UPDATE bed_inventory
				SET available_count = available_count - 1, updated_at = NOW()
				WHERE hospital_id = $1 AND bed_type = $2 AND available_count > 0
				RETURNING hospital_id, bed_type
			)
			INSERT INTO bed_reservation (patient_id, hospital_id, bed_type, address, urgency)
			SELECT $3, hospital_id, bed_type, $4, $5 FROM held
			RETURNING `+reservationCols,
			req.HospitalID, req.BedType, req.PatientID, req.Address, req.Urgency))
		if errors.Is(err, pgx.ErrNoRows) {
			var exists bool
			if err := tx.QueryRow(ctx,
				`SELECT EXISTS (SELECT 1 FROM bed_inventory WHERE hospital_id = $1 AND bed_type = $2)`,
				req.HospitalID, req.BedType).Scan(&exists); err != nil {
				return err
			}
			if !exists {
				return fmt.Errorf("bed type %q at hospital %d: %w", req.BedType, req.HospitalID, ErrNotFound)
			}
			return fmt.Errorf("bed type %q at hospital %d: %w", req.BedType, req.HospitalID, ErrNoCapacity)
		}
		if db.IsForeignKeyViolation(err) {
			return fmt.Errorf("patient %d: %w", req.PatientID, ErrNotFound)
		}
		if err != nil {
			return err
		}
		out = r
		return nil
	})
	return out, err
}

func (s *storePG) Release(ctx context.Context, id int64, to string) (*Reservation, Drift, error) {
	return s.release(ctx, id, to, false)
}

func (s *storePG) Expire(ctx context.Context, id int64) (*Reservation, Drift, error) {
	return s.release(ctx, id, StatusCancelled, true)
}

func (s *storePG) release(ctx context.Context, id int64, to string, reservedOnly bool) (*Reservation, Drift, error) {
	var (
		out   *Reservation
		drift Drift
	)
	err := s.tx(ctx, func(tx pgx.Tx) error {
		var status string
		err := tx.QueryRow(ctx, `SELECT status FROM bed_reservation WHERE id = $1 FOR UPDATE`, id).Scan(&status)
		if errors.Is(err, pgx.ErrNoRows) {
			return fmt.Errorf("reservation %d: %w", id, ErrNotFound)
		}
		if err != nil {
			return err
		}
		if err := checkRelease(id, status, reservedOnly); err != nil {
			return err
		}

		r, err := scanReservation(tx.QueryRow(ctx, `
			UPDATE bed_reservation SET status = $2, updated_at = NOW()
			WHERE id = $1 AND status = $3
			RETURNING `+reservationCols, id, to, status))
		if err != nil {
			return err
		}

		tag, err := tx.Exec(ctx, `
			UPDATE bed_inventory
			SET available_count = available_count + 1, updated_at = NOW()
			WHERE hospital_id = $1 AND bed_type = $2 AND available_count < total_count`,
			r.HospitalID, r.BedType)
		if err != nil {
			return err
		}
		if tag.RowsAffected() == 0 {
			var exists bool
			if err := tx.QueryRow(ctx,
				`SELECT EXISTS (SELECT 1 FROM bed_inventory WHERE hospital_id = $1 AND bed_type = $2)`,
				r.HospitalID, r.BedType).Scan(&exists); err != nil {
				return err
			}
			drift = DriftRowFull
			if !exists {
				drift = DriftRowMissing
			}
		}
		out = r
		return nil
	})
	if err != nil {
		return nil, DriftNone, err
	}
	return out, drift, nil
}

func (s *storePG) Transition(ctx context.Context, id int64, to string) (*Reservation, string, error) {
	var (
		out  *Reservation
		prev string
	)
	err := s.tx(ctx, func(tx pgx.Tx) error {
		err := tx.QueryRow(ctx, `SELECT status FROM bed_reservation WHERE id = $1 FOR UPDATE`, id).Scan(&prev)
		if errors.Is(err, pgx.ErrNoRows) {
			return fmt.Errorf("reservation %d: %w", id, ErrNotFound)
		}
		if err != nil {
			return err
		}
		if !holdsUnit(prev) {
			return fmt.Errorf("reservation %d is %s: %w", id, prev, ErrInvalidTransition)
		}
		r, err := scanReservation(tx.QueryRow(ctx, `
			UPDATE bed_reservation SET status = $2, updated_at = NOW()
			WHERE id = $1
			RETURNING `+reservationCols, id, to))
		if err != nil {
			return err
		}
		out = r
		return nil
	})
	if err != nil {
		return nil, "", err
	}
	return out, prev, nil
}

func (s *storePG) Get(ctx context.Context, id int64) (*Reservation, error) {
	r, err := scanReservation(s.conn(ctx).QueryRow(ctx,
		`SELECT `+reservationCols+` FROM bed_reservation WHERE id = $1`, id))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, fmt.Errorf("reservation %d: %w", id, ErrNotFound)
	}
	return r, err
}

func (s *storePG) ListByHospital(ctx context.Context, hospitalID int64, p pagination.Params) ([]*Reservation, int, error) {
	return s.page(ctx, "hospital_id", hospitalID, p)
}

func (s *storePG) ListByPatient(ctx context.Context, patientID int64, p pagination.Params) ([]*Reservation, int, error) {
	return s.page(ctx, "patient_id", patientID, p)
}

// page lists newest first. column is one of the two indexed owner columns,
// never caller input.
func (s *storePG) page(ctx context.Context, column string, id int64, p pagination.Params) ([]*Reservation, int, error) {
	var total int
	if err := s.conn(ctx).QueryRow(ctx,
		`SELECT COUNT(*) FROM bed_reservation WHERE `+column+` = $1`, id).Scan(&total); err != nil {
		return nil, 0, err
	}
	items, err := s.query(ctx, `
		SELECT `+reservationCols+` FROM bed_reservation
		WHERE `+column+` = $1
		ORDER BY created_at DESC, id DESC
		LIMIT $2 OFFSET $3`, id, p.Limit, p.Offset)
	if err != nil {
		return nil, 0, err
	}
	return items, total, nil
}

func (s *storePG) ListStaleReserved(ctx context.Context, cutoff time.Time, limit int) ([]*Reservation, error) {
	return s.query(ctx, `
		SELECT `+reservationCols+` FROM bed_reservation
		WHERE status = 'Reserved' AND created_at < $1
		ORDER BY created_at
		LIMIT $2`, cutoff, limit)
}

func (s *storePG) ActiveHolds(ctx context.Context, hospitalID int64, bedType string) (int, error) {
	var n int
	err := s.conn(ctx).QueryRow(ctx, `
		SELECT COUNT(*) FROM bed_reservation
		WHERE hospital_id = $1 AND bed_type = $2
		AND status IN ('Reserved', 'Confirmed', 'Completed')`,
		hospitalID, bedType).Scan(&n)
	return n, err
}

func (s *storePG) query(ctx context.Context, sql string, args ...interface{}) ([]*Reservation, error) {
	rows, err := s.conn(ctx).Query(ctx, sql, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var items []*Reservation
	for rows.Next() {
		r, err := scanReservation(rows)
		if err != nil {
			return nil, err
		}
		items = append(items, r)
	}
	return items, rows.Err()
}

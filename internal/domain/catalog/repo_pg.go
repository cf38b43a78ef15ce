package catalog

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/hospitrack/hospitrack/internal/platform/db"
)

// =========== Hospital Repository ===========

type hospitalRepoPG struct{ pool *pgxpool.Pool }

func NewHospitalRepoPG(pool *pgxpool.Pool) HospitalRepository { return &hospitalRepoPG{pool: pool} }

func (r *hospitalRepoPG) conn(ctx context.Context) db.Querier {
	return db.Pick(ctx, r.pool)
}

const hospitalAggSelect = `
	SELECT h.id, h.name, h.location, COALESCE(h.contact, ''), h.created_at,
		COALESCE(SUM(b.available_count), 0), COALESCE(SUM(b.total_count), 0)
	FROM hospitals h
	LEFT JOIN bed_inventory b ON b.hospital_id = h.id`

func scanHospital(row pgx.Row) (*Hospital, error) {
	var h Hospital
	err := row.Scan(&h.ID, &h.Name, &h.Location, &h.Contact, &h.CreatedAt, &h.AvailableBeds, &h.TotalBeds)
	return &h, err
}

func (r *hospitalRepoPG) Create(ctx context.Context, h *Hospital) error {
	return r.conn(ctx).QueryRow(ctx, `
		INSERT INTO hospitals (name, location, contact)
		VALUES ($1, $2, NULLIF($3, ''))
		RETURNING id, created_at`,
		h.Name, h.Location, h.Contact).Scan(&h.ID, &h.CreatedAt)
}

func (r *hospitalRepoPG) GetByID(ctx context.Context, id int64) (*Hospital, error) {
	h, err := scanHospital(r.conn(ctx).QueryRow(ctx, hospitalAggSelect+` WHERE h.id = $1 GROUP BY h.id`, id))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, fmt.Errorf("hospital %d: %w", id, ErrNotFound)
	}
	return h, err
}

func (r *hospitalRepoPG) List(ctx context.Context) ([]*Hospital, error) {
	return r.query(ctx, hospitalAggSelect+` GROUP BY h.id ORDER BY h.id`)
}

func (r *hospitalRepoPG) Search(ctx context.Context, q string) ([]*Hospital, error) {
	pattern := "%" + escapeLike(q) + "%"
	return r.query(ctx, hospitalAggSelect+`
		WHERE h.name ILIKE $1 OR h.location ILIKE $1
		GROUP BY h.id ORDER BY h.name`, pattern)
}

func (r *hospitalRepoPG) Names(ctx context.Context, ids []int64) (map[int64]string, error) {
	out := make(map[int64]string, len(ids))
	if len(ids) == 0 {
		return out, nil
	}
	rows, err := r.conn(ctx).Query(ctx, `SELECT id, name FROM hospitals WHERE id = ANY($1)`, ids)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	for rows.Next() {
		var id int64
		var name string
		if err := rows.Scan(&id, &name); err != nil {
			return nil, err
		}
		out[id] = name
	}
	return out, rows.Err()
}

func (r *hospitalRepoPG) query(ctx context.Context, sql string, args ...interface{}) ([]*Hospital, error) {
	rows, err := r.conn(ctx).Query(ctx, sql, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var items []*Hospital
	for rows.Next() {
		h, err := scanHospital(rows)
		if err != nil {
			return nil, err
		}
		items = append(items, h)
	}
	return items, rows.Err()
}

// =========== Bed Inventory Repository ===========

type bedRepoPG struct{ pool *pgxpool.Pool }

func NewBedRepoPG(pool *pgxpool.Pool) BedRepository { return &bedRepoPG{pool: pool} }

func (r *bedRepoPG) conn(ctx context.Context) db.Querier {
	return db.Pick(ctx, r.pool)
}

const bedCols = `id, hospital_id, bed_type, total_count, available_count, price, updated_at`

func scanBed(row pgx.Row) (*BedInventory, error) {
	var b BedInventory
	err := row.Scan(&b.ID, &b.HospitalID, &b.BedType, &b.TotalCount, &b.AvailableCount, &b.Price, &b.UpdatedAt)
	return &b, err
}

func (r *bedRepoPG) Upsert(ctx context.Context, b *BedInventory) (bool, error) {
	var inserted bool
	err := r.conn(ctx).QueryRow(ctx, `
		INSERT INTO bed_inventory (hospital_id, bed_type, total_count, available_count, price)
		VALUES ($1, $2, $3, $4, $5)
		ON CONFLICT (hospital_id, bed_type) DO UPDATE
			SET total_count = EXCLUDED.total_count,
				available_count = EXCLUDED.available_count,
				price = EXCLUDED.price,
				updated_at = NOW()
		RETURNING id, updated_at, (xmax = 0)`,
		b.HospitalID, b.BedType, b.TotalCount, b.AvailableCount, b.Price).Scan(&b.ID, &b.UpdatedAt, &inserted)
	switch {
	case db.IsForeignKeyViolation(err):
		return false, fmt.Errorf("hospital %d: %w", b.HospitalID, ErrNotFound)
	case db.IsCheckViolation(err):
		return false, fmt.Errorf("%w: %v", ErrInvalidBed, err)
	}
	return inserted, err
}

func (r *bedRepoPG) GetByID(ctx context.Context, id int64) (*BedInventory, error) {
	b, err := scanBed(r.conn(ctx).QueryRow(ctx, `SELECT `+bedCols+` FROM bed_inventory WHERE id = $1`, id))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, fmt.Errorf("bed %d: %w", id, ErrNotFound)
	}
	return b, err
}

func (r *bedRepoPG) Get(ctx context.Context, hospitalID int64, bedType string) (*BedInventory, error) {
	b, err := scanBed(r.conn(ctx).QueryRow(ctx,
		`SELECT `+bedCols+` FROM bed_inventory WHERE hospital_id = $1 AND bed_type = $2`, hospitalID, bedType))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, fmt.Errorf("bed type %q at hospital %d: %w", bedType, hospitalID, ErrNotFound)
	}
	return b, err
}

func (r *bedRepoPG) ListByHospital(ctx context.Context, hospitalID int64) ([]*BedInventory, error) {
	rows, err := r.conn(ctx).Query(ctx,
		`SELECT `+bedCols+` FROM bed_inventory WHERE hospital_id = $1 ORDER BY bed_type`, hospitalID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var items []*BedInventory
	for rows.Next() {
		b, err := scanBed(rows)
		if err != nil {
			return nil, err
		}
		items = append(items, b)
	}
	return items, rows.Err()
}

func (r *bedRepoPG) Delete(ctx context.Context, id int64) error {
	tag, err := r.conn(ctx).Exec(ctx, `DELETE FROM bed_inventory WHERE id = $1`, id)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("bed %d: %w", id, ErrNotFound)
	}
	return nil
}

func (r *bedRepoPG) SearchAvailable(ctx context.Context, q BedSearch) ([]*BedListing, error) {
	query := `
		SELECT b.id, b.bed_type, b.price, b.available_count, h.id, h.name, h.location
		FROM bed_inventory b
		JOIN hospitals h ON b.hospital_id = h.id
		WHERE b.available_count > 0`
	var args []interface{}
	idx := 1

	if loc := strings.TrimSpace(q.Location); loc != "" {
		query += fmt.Sprintf(` AND (h.name ILIKE $%d OR h.location ILIKE $%d)`, idx, idx)
		args = append(args, "%"+escapeLike(loc)+"%")
		idx++
	}
	if q.BedType != "" {
		query += fmt.Sprintf(` AND b.bed_type = $%d`, idx)
		args = append(args, q.BedType)
		idx++
	}
	switch q.Price {
	case "low":
		query += fmt.Sprintf(` AND b.price < $%d`, idx)
		args = append(args, PriceThreshold)
	case "high":
		query += fmt.Sprintf(` AND b.price >= $%d`, idx)
		args = append(args, PriceThreshold)
	}
	query += ` ORDER BY b.price, h.name`

	rows, err := r.conn(ctx).Query(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var items []*BedListing
	for rows.Next() {
		var l BedListing
		if err := rows.Scan(&l.BedID, &l.BedType, &l.Price, &l.AvailableCount, &l.HospitalID, &l.HospitalName, &l.HospitalLocation); err != nil {
			return nil, err
		}
		items = append(items, &l)
	}
	return items, rows.Err()
}

// =========== Doctor Repository ===========

type doctorRepoPG struct{ pool *pgxpool.Pool }

func NewDoctorRepoPG(pool *pgxpool.Pool) DoctorRepository { return &doctorRepoPG{pool: pool} }

func (r *doctorRepoPG) conn(ctx context.Context) db.Querier {
	return db.Pick(ctx, r.pool)
}

func (r *doctorRepoPG) Create(ctx context.Context, d *Doctor) error {
	err := r.conn(ctx).QueryRow(ctx, `
		INSERT INTO doctors (hospital_id, name, specialization, availability, is_visiting)
		VALUES ($1, $2, $3, $4, $5)
		RETURNING id, created_at`,
		d.HospitalID, d.Name, d.Specialization, d.Availability, d.IsVisiting).Scan(&d.ID, &d.CreatedAt)
	if db.IsForeignKeyViolation(err) {
		return fmt.Errorf("hospital %d: %w", d.HospitalID, ErrNotFound)
	}
	return err
}

func (r *doctorRepoPG) ListByHospital(ctx context.Context, hospitalID int64) ([]*Doctor, error) {
	rows, err := r.conn(ctx).Query(ctx, `
		SELECT id, hospital_id, name, specialization, availability, is_visiting, created_at
		FROM doctors WHERE hospital_id = $1 ORDER BY id`, hospitalID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var items []*Doctor
	for rows.Next() {
		var d Doctor
		if err := rows.Scan(&d.ID, &d.HospitalID, &d.Name, &d.Specialization, &d.Availability, &d.IsVisiting, &d.CreatedAt); err != nil {
			return nil, err
		}
		items = append(items, &d)
	}
	return items, rows.Err()
}

// escapeLike escapes LIKE metacharacters so user text matches literally.
func escapeLike(s string) string {
	r := strings.NewReplacer(`\`, `\\`, `%`, `\%`, `_`, `\_`)
	return r.Replace(s)
}

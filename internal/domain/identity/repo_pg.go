package identity

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/hospitrack/hospitrack/internal/platform/db"
)

type userRepoPG struct{ pool *pgxpool.Pool }

func NewUserRepoPG(pool *pgxpool.Pool) UserRepository { return &userRepoPG{pool: pool} }

func (r *userRepoPG) conn(ctx context.Context) db.Querier {
	return db.Pick(ctx, r.pool)
}

const userCols = `id, username, role, COALESCE(full_name, ''), hospital_id, COALESCE(hospitrack_id, ''), created_at`

func scanUser(row pgx.Row) (*User, error) {
	var u User
	err := row.Scan(&u.ID, &u.Username, &u.Role, &u.FullName, &u.HospitalID, &u.HospitrackID, &u.CreatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	return &u, err
}

func (r *userRepoPG) Create(ctx context.Context, u *User) error {
	err := r.conn(ctx).QueryRow(ctx, `
		INSERT INTO users (username, role, full_name, hospital_id, hospitrack_id)
		VALUES ($1, $2, NULLIF($3, ''), $4, NULLIF($5, ''))
		RETURNING id, created_at`,
		u.Username, u.Role, u.FullName, u.HospitalID, u.HospitrackID).Scan(&u.ID, &u.CreatedAt)
	if db.IsUniqueViolation(err) {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.ConstraintName == "users_hospitrack_id_key" {
			return errHospitrackIDTaken
		}
		return fmt.Errorf("%q: %w", u.Username, ErrDuplicate)
	}
	if db.IsForeignKeyViolation(err) {
		return fmt.Errorf("%w: hospital %d does not exist", ErrInvalidUser, *u.HospitalID)
	}
	return err
}

func (r *userRepoPG) GetByID(ctx context.Context, id int64) (*User, error) {
	return scanUser(r.conn(ctx).QueryRow(ctx, `SELECT `+userCols+` FROM users WHERE id = $1`, id))
}

func (r *userRepoPG) GetByUsername(ctx context.Context, username string) (*User, error) {
	return scanUser(r.conn(ctx).QueryRow(ctx, `SELECT `+userCols+` FROM users WHERE username = $1`, username))
}

func (r *userRepoPG) GetByHospitrackID(ctx context.Context, hospitrackID string) (*User, error) {
	return scanUser(r.conn(ctx).QueryRow(ctx,
		`SELECT `+userCols+` FROM users WHERE hospitrack_id = $1 AND role = 'patient'`, hospitrackID))
}

func (r *userRepoPG) Cards(ctx context.Context, ids []int64) (map[int64]PatientCard, error) {
	out := make(map[int64]PatientCard, len(ids))
	if len(ids) == 0 {
		return out, nil
	}
	rows, err := r.conn(ctx).Query(ctx, `
		SELECT id, username, COALESCE(full_name, ''), COALESCE(hospitrack_id, '')
		FROM users WHERE id = ANY($1) AND role = 'patient'`, ids)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	for rows.Next() {
		var c PatientCard
		if err := rows.Scan(&c.ID, &c.Username, &c.FullName, &c.HospitrackID); err != nil {
			return nil, err
		}
		out[c.ID] = c
	}
	return out, rows.Err()
}

package directory

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/docbook/docbook/internal/platform/db"
)

type doctorRepoPG struct{ pool *pgxpool.Pool }

func NewDoctorRepoPG(pool *pgxpool.Pool) DoctorRepository {
	return &doctorRepoPG{pool: pool}
}

func (r *doctorRepoPG) conn(ctx context.Context) db.Querier {
	if tx := db.TxFromContext(ctx); tx != nil {
		return tx
	}
	return r.pool
}

const doctorCols = `id, name, email, speciality, degree, experience, about, fees,
	address_line1, address_line2, image_url, available, opening_hour, closing_hour,
	timezone, created_at, updated_at`

func (r *doctorRepoPG) scanDoctor(row pgx.Row) (*Doctor, error) {
	var d Doctor
	err := row.Scan(&d.ID, &d.Name, &d.Email, &d.Speciality, &d.Degree, &d.Experience, &d.About, &d.Fees,
		&d.Address.Line1, &d.Address.Line2, &d.ImageURL, &d.Available, &d.OpeningHour, &d.ClosingHour,
		&d.Timezone, &d.CreatedAt, &d.UpdatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return &d, nil
}

func (r *doctorRepoPG) Create(ctx context.Context, d *Doctor) error {
	d.ID = uuid.New()
	err := r.conn(ctx).QueryRow(ctx, `
		INSERT INTO doctor (id, name, email, speciality, degree, experience, about, fees,
			address_line1, address_line2, image_url, available, opening_hour, closing_hour, timezone)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13,$14,$15)
		RETURNING created_at, updated_at`,
		d.ID, d.Name, d.Email, d.Speciality, d.Degree, d.Experience, d.About, d.Fees,
		d.Address.Line1, d.Address.Line2, d.ImageURL, d.Available, d.OpeningHour, d.ClosingHour, d.Timezone,
	).Scan(&d.CreatedAt, &d.UpdatedAt)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == db.UniqueViolation {
			return fmt.Errorf("%s: %w", d.Email, ErrDuplicateEmail)
		}
		return fmt.Errorf("insert doctor: %w", err)
	}
	return nil
}

func (r *doctorRepoPG) GetByID(ctx context.Context, id uuid.UUID) (*Doctor, error) {
	return r.scanDoctor(r.conn(ctx).QueryRow(ctx, `SELECT `+doctorCols+` FROM doctor WHERE id = $1`, id))
}

func (r *doctorRepoPG) List(ctx context.Context, speciality string, limit, offset int) ([]*Doctor, int, error) {
	where := ""
	args := []interface{}{}
	if speciality != "" {
		where = ` WHERE lower(speciality) = lower($1)`
		args = append(args, speciality)
	}

	var total int
	if err := r.conn(ctx).QueryRow(ctx, `SELECT COUNT(*) FROM doctor`+where, args...).Scan(&total); err != nil {
		return nil, 0, err
	}

	n := len(args)
	query := fmt.Sprintf(`SELECT %s FROM doctor%s ORDER BY name, id LIMIT $%d OFFSET $%d`, doctorCols, where, n+1, n+2)
	rows, err := r.conn(ctx).Query(ctx, query, append(args, limit, offset)...)
	if err != nil {
		return nil, 0, err
	}
	defer rows.Close()
	var items []*Doctor
	for rows.Next() {
		d, err := r.scanDoctor(rows)
		if err != nil {
			return nil, 0, err
		}
		items = append(items, d)
	}
	return items, total, rows.Err()
}

func (r *doctorRepoPG) SetAvailability(ctx context.Context, id uuid.UUID, available bool) (*Doctor, error) {
	return r.scanDoctor(r.conn(ctx).QueryRow(ctx, `
		UPDATE doctor SET available = $2, updated_at = NOW()
		WHERE id = $1
		RETURNING `+doctorCols, id, available))
}

package catalog

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/dentaldesk/clinic/internal/platform/db"
)

type procedureRepoPG struct {
	pool *pgxpool.Pool
}

func NewProcedureRepo(pool *pgxpool.Pool) ProcedureRepository {
	return &procedureRepoPG{pool: pool}
}

const procedureColumns = `id, name_en, name_ar, price, COALESCE(description_en, ''), COALESCE(description_ar, ''), created_at, updated_at`

func (r *procedureRepoPG) Create(ctx context.Context, p *Procedure) error {
	p.ID = uuid.New()
	return db.Conn(ctx, r.pool).QueryRow(ctx, `
		INSERT INTO procedure (id, name_en, name_ar, price, description_en, description_ar)
		VALUES ($1, $2, $3, $4, $5, $6)
		RETURNING created_at, updated_at`,
		p.ID, p.NameEn, p.NameAr, p.Price, p.DescriptionEn, p.DescriptionAr,
	).Scan(&p.CreatedAt, &p.UpdatedAt)
}

func (r *procedureRepoPG) GetByID(ctx context.Context, id uuid.UUID) (*Procedure, error) {
	return scanProcedure(db.Conn(ctx, r.pool).QueryRow(ctx,
		`SELECT `+procedureColumns+` FROM procedure WHERE id = $1`, id))
}

func (r *procedureRepoPG) Update(ctx context.Context, p *Procedure) error {
	err := db.Conn(ctx, r.pool).QueryRow(ctx, `
		UPDATE procedure SET name_en = $2, name_ar = $3, price = $4,
			description_en = $5, description_ar = $6, updated_at = NOW()
		WHERE id = $1
		RETURNING updated_at`,
		p.ID, p.NameEn, p.NameAr, p.Price, p.DescriptionEn, p.DescriptionAr,
	).Scan(&p.UpdatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return ErrNotFound
	}
	return err
}

func (r *procedureRepoPG) Delete(ctx context.Context, id uuid.UUID) error {
	tag, err := db.Conn(ctx, r.pool).Exec(ctx, `DELETE FROM procedure WHERE id = $1`, id)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

func (r *procedureRepoPG) List(ctx context.Context) ([]*Procedure, error) {
	rows, err := db.Conn(ctx, r.pool).Query(ctx,
		`SELECT `+procedureColumns+` FROM procedure ORDER BY name_en, id`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []*Procedure
	for rows.Next() {
		p, err := scanProcedure(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, p)
	}
	return out, rows.Err()
}

func (r *procedureRepoPG) Count(ctx context.Context) (int, error) {
	var n int
	err := db.Conn(ctx, r.pool).QueryRow(ctx, `SELECT COUNT(*) FROM procedure`).Scan(&n)
	return n, err
}

func scanProcedure(row pgx.Row) (*Procedure, error) {
	var p Procedure
	err := row.Scan(&p.ID, &p.NameEn, &p.NameAr, &p.Price, &p.DescriptionEn, &p.DescriptionAr, &p.CreatedAt, &p.UpdatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("scan procedure: %w", err)
	}
	return &p, nil
}

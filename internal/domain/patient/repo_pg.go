package patient

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/dentaldesk/clinic/internal/platform/db"
)

type patientRepoPG struct {
	pool *pgxpool.Pool
}

func NewPatientRepo(pool *pgxpool.Pool) PatientRepository {
	return &patientRepoPG{pool: pool}
}

const patientColumns = `id, name, phone, doctor_id, created_at`

func (r *patientRepoPG) Create(ctx context.Context, p *Patient) error {
	p.ID = uuid.New()
	err := db.Conn(ctx, r.pool).QueryRow(ctx, `
		INSERT INTO patient (id, name, phone, doctor_id)
		VALUES ($1, $2, $3, $4)
		RETURNING created_at`,
		p.ID, p.Name, p.Phone, p.DoctorID,
	).Scan(&p.CreatedAt)
	if db.IsForeignKeyViolation(err) {
		return ErrUnknownDoctor
	}
	return err
}

func (r *patientRepoPG) GetByID(ctx context.Context, id uuid.UUID) (*Patient, error) {
	return scanPatient(db.Conn(ctx, r.pool).QueryRow(ctx,
		`SELECT `+patientColumns+` FROM patient WHERE id = $1`, id))
}

func (r *patientRepoPG) Update(ctx context.Context, p *Patient) error {
	tag, err := db.Conn(ctx, r.pool).Exec(ctx,
		`UPDATE patient SET name = $2, phone = $3, doctor_id = $4 WHERE id = $1`,
		p.ID, p.Name, p.Phone, p.DoctorID)
	if db.IsForeignKeyViolation(err) {
		return ErrUnknownDoctor
	}
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

func (r *patientRepoPG) List(ctx context.Context, doctorID *uuid.UUID, limit, offset int) ([]*Patient, int, error) {
	conn := db.Conn(ctx, r.pool)
	var total int
	if err := conn.QueryRow(ctx,
		`SELECT COUNT(*) FROM patient WHERE ($1::uuid IS NULL OR doctor_id = $1)`, doctorID,
	).Scan(&total); err != nil {
		return nil, 0, err
	}
	rows, err := conn.Query(ctx, `
		SELECT `+patientColumns+` FROM patient
		WHERE ($1::uuid IS NULL OR doctor_id = $1)
		ORDER BY created_at DESC, id
		LIMIT $2 OFFSET $3`, doctorID, limit, offset)
	if err != nil {
		return nil, 0, err
	}
	defer rows.Close()
	out, err := collectPatients(rows)
	return out, total, err
}

var likeEscaper = strings.NewReplacer(`\`, `\\`, `%`, `\%`, `_`, `\_`)

// containsPattern builds an ILIKE pattern matching name anywhere, with the
// wildcard characters in name taken literally.
func containsPattern(name string) string {
	return "%" + likeEscaper.Replace(name) + "%"
}

func (r *patientRepoPG) Search(ctx context.Context, name string, doctorID *uuid.UUID, limit int) ([]*Patient, error) {
	rows, err := db.Conn(ctx, r.pool).Query(ctx, `
		SELECT `+patientColumns+` FROM patient
		WHERE name ILIKE $1 ESCAPE '\'
		  AND ($2::uuid IS NULL OR doctor_id = $2)
		ORDER BY name, id
		LIMIT $3`, containsPattern(name), doctorID, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return collectPatients(rows)
}

func collectPatients(rows pgx.Rows) ([]*Patient, error) {
	var out []*Patient
	for rows.Next() {
		p, err := scanPatient(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, p)
	}
	return out, rows.Err()
}

func scanPatient(row pgx.Row) (*Patient, error) {
	var p Patient
	err := row.Scan(&p.ID, &p.Name, &p.Phone, &p.DoctorID, &p.CreatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("scan patient: %w", err)
	}
	return &p, nil
}

package scheduling

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/dentaldesk/clinic/internal/clinic"
	"github.com/dentaldesk/clinic/internal/platform/db"
)

type appointmentRepoPG struct {
	pool *pgxpool.Pool
}

func NewAppointmentRepo(pool *pgxpool.Pool) AppointmentRepository {
	return &appointmentRepoPG{pool: pool}
}

const apptColumns = `id, patient_id, doctor_id, to_char(appt_date, 'YYYY-MM-DD'), to_char(appt_time, 'HH24:MI'),
	status, notes, procedure_ids, created_at, updated_at`

func (r *appointmentRepoPG) Create(ctx context.Context, a *Appointment) error {
	a.ID = uuid.New()
	if a.ProcedureIDs == nil {
		a.ProcedureIDs = []uuid.UUID{}
	}
	err := db.Conn(ctx, r.pool).QueryRow(ctx, `
		INSERT INTO appointment (id, patient_id, doctor_id, appt_date, appt_time, status, notes, procedure_ids)
		VALUES ($1, $2, $3, $4::date, $5::time, $6, $7, $8)
		RETURNING created_at, updated_at`,
		a.ID, a.PatientID, a.DoctorID, a.Date.String(), a.Time.String(), string(a.Status), a.Notes, a.ProcedureIDs,
	).Scan(&a.CreatedAt, &a.UpdatedAt)
	if db.IsUniqueViolation(err) {
		return ErrConflict
	}
	if err != nil {
		return fmt.Errorf("insert appointment: %w", err)
	}
	return nil
}

func (r *appointmentRepoPG) GetByID(ctx context.Context, id uuid.UUID) (*Appointment, error) {
	return scanAppointment(db.Conn(ctx, r.pool).QueryRow(ctx,
		`SELECT `+apptColumns+` FROM appointment WHERE id = $1`, id))
}

func (r *appointmentRepoPG) Update(ctx context.Context, a *Appointment) error {
	err := db.Conn(ctx, r.pool).QueryRow(ctx, `
		UPDATE appointment SET appt_date = $2::date, appt_time = $3::time, status = $4,
			notes = $5, procedure_ids = $6, updated_at = NOW()
		WHERE id = $1
		RETURNING updated_at`,
		a.ID, a.Date.String(), a.Time.String(), string(a.Status), a.Notes, a.ProcedureIDs,
	).Scan(&a.UpdatedAt)
	switch {
	case errors.Is(err, pgx.ErrNoRows):
		return ErrNotFound
	case db.IsUniqueViolation(err):
		return ErrConflict
	case err != nil:
		return fmt.Errorf("update appointment: %w", err)
	}
	return nil
}

func (r *appointmentRepoPG) List(ctx context.Context, f Filter) ([]*Appointment, error) {
	var (
		where []string
		args  []interface{}
	)
	add := func(cond string, v interface{}) {
		args = append(args, v)
		where = append(where, fmt.Sprintf(cond, len(args)))
	}
	if f.DoctorID != nil {
		add("doctor_id = $%d", *f.DoctorID)
	}
	if f.PatientID != nil {
		add("patient_id = $%d", *f.PatientID)
	}
	if !f.From.IsZero() {
		add("appt_date >= $%d::date", f.From.String())
	}
	if !f.To.IsZero() {
		add("appt_date <= $%d::date", f.To.String())
	}

	query := `SELECT ` + apptColumns + ` FROM appointment`
	if len(where) > 0 {
		query += ` WHERE ` + strings.Join(where, " AND ")
	}
	query += ` ORDER BY appt_date, appt_time, created_at`

	rows, err := db.Conn(ctx, r.pool).Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("list appointments: %w", err)
	}
	defer rows.Close()

	var out []*Appointment
	for rows.Next() {
		a, err := scanAppointment(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, a)
	}
	return out, rows.Err()
}

func (r *appointmentRepoPG) SlotTaken(ctx context.Context, doctorID uuid.UUID, date clinic.Date, at clinic.TimeOfDay, exclude *uuid.UUID) (bool, error) {
	var taken bool
	err := db.Conn(ctx, r.pool).QueryRow(ctx, `
		SELECT EXISTS (
			SELECT 1 FROM appointment
			WHERE doctor_id = $1 AND appt_date = $2::date AND appt_time = $3::time
			  AND status <> 'cancelled'
			  AND ($4::uuid IS NULL OR id <> $4)
		)`, doctorID, date.String(), at.String(), exclude,
	).Scan(&taken)
	return taken, err
}

func scanAppointment(row pgx.Row) (*Appointment, error) {
	var (
		a            Appointment
		date, at, st string
	)
	err := row.Scan(&a.ID, &a.PatientID, &a.DoctorID, &date, &at, &st, &a.Notes, &a.ProcedureIDs, &a.CreatedAt, &a.UpdatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("scan appointment: %w", err)
	}
	if a.Date, err = clinic.ParseDate(date); err != nil {
		return nil, err
	}
	if a.Time, err = clinic.ParseTimeOfDay(at); err != nil {
		return nil, err
	}
	// stored values outside the known set are kept as-is
	a.Status = clinic.Status(st)
	return &a, nil
}

package billing

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/dentaldesk/clinic/internal/platform/db"
)

// -- History --

type historyRepoPG struct {
	pool *pgxpool.Pool
}

func NewHistoryRepo(pool *pgxpool.Pool) HistoryRepository {
	return &historyRepoPG{pool: pool}
}

const historyColumns = `id, patient_id, recorded_at, notes, procedure_ids, total_cost, recorded_by, appointment_id`

func (r *historyRepoPG) Create(ctx context.Context, h *HistoryRecord) error {
	h.ID = uuid.New()
	if h.ProcedureIDs == nil {
		h.ProcedureIDs = []uuid.UUID{}
	}
	err := db.Conn(ctx, r.pool).QueryRow(ctx, `
		INSERT INTO patient_history (id, patient_id, notes, procedure_ids, total_cost, recorded_by, appointment_id)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
		RETURNING recorded_at`,
		h.ID, h.PatientID, h.Notes, h.ProcedureIDs, h.TotalCost, h.RecordedBy, h.AppointmentID,
	).Scan(&h.RecordedAt)
	if err != nil {
		return fmt.Errorf("insert history: %w", err)
	}
	return nil
}

func (r *historyRepoPG) ListByPatients(ctx context.Context, patientIDs []uuid.UUID) ([]*HistoryRecord, error) {
	if len(patientIDs) == 0 {
		return nil, nil
	}
	rows, err := db.Conn(ctx, r.pool).Query(ctx, `
		SELECT `+historyColumns+` FROM patient_history
		WHERE patient_id = ANY($1)
		ORDER BY recorded_at DESC, id`, patientIDs)
	if err != nil {
		return nil, fmt.Errorf("list history: %w", err)
	}
	defer rows.Close()

	var out []*HistoryRecord
	for rows.Next() {
		h, err := scanHistory(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, h)
	}
	return out, rows.Err()
}

func scanHistory(row pgx.Row) (*HistoryRecord, error) {
	var h HistoryRecord
	if err := row.Scan(&h.ID, &h.PatientID, &h.RecordedAt, &h.Notes, &h.ProcedureIDs,
		&h.TotalCost, &h.RecordedBy, &h.AppointmentID); err != nil {
		return nil, fmt.Errorf("scan history: %w", err)
	}
	return &h, nil
}

// -- Payment --

type paymentRepoPG struct {
	pool *pgxpool.Pool
}

func NewPaymentRepo(pool *pgxpool.Pool) PaymentRepository {
	return &paymentRepoPG{pool: pool}
}

const paymentColumns = `p.id, p.patient_id, p.amount, p.payment_date, p.notes, p.recorded_by`

func (r *paymentRepoPG) Create(ctx context.Context, p *Payment) error {
	p.ID = uuid.New()
	err := db.Conn(ctx, r.pool).QueryRow(ctx, `
		INSERT INTO payment (id, patient_id, amount, notes, recorded_by)
		VALUES ($1, $2, $3, $4, $5)
		RETURNING payment_date`,
		p.ID, p.PatientID, p.Amount, p.Notes, p.RecordedBy,
	).Scan(&p.PaymentDate)
	if err != nil {
		return fmt.Errorf("insert payment: %w", err)
	}
	return nil
}

func (r *paymentRepoPG) List(ctx context.Context, doctorID *uuid.UUID, limit, offset int) ([]*Payment, int, error) {
	conn := db.Conn(ctx, r.pool)
	const scope = `FROM payment p JOIN patient pt ON pt.id = p.patient_id
		WHERE ($1::uuid IS NULL OR pt.doctor_id = $1)`

	var total int
	if err := conn.QueryRow(ctx, `SELECT COUNT(*) `+scope, doctorID).Scan(&total); err != nil {
		return nil, 0, fmt.Errorf("count payments: %w", err)
	}
	rows, err := conn.Query(ctx, `SELECT `+paymentColumns+` `+scope+`
		ORDER BY p.payment_date DESC, p.id LIMIT $2 OFFSET $3`, doctorID, limit, offset)
	if err != nil {
		return nil, 0, fmt.Errorf("list payments: %w", err)
	}
	defer rows.Close()
	out, err := collectPayments(rows)
	return out, total, err
}

func (r *paymentRepoPG) ListByPatients(ctx context.Context, patientIDs []uuid.UUID) ([]*Payment, error) {
	if len(patientIDs) == 0 {
		return nil, nil
	}
	rows, err := db.Conn(ctx, r.pool).Query(ctx, `
		SELECT `+paymentColumns+` FROM payment p
		WHERE p.patient_id = ANY($1)
		ORDER BY p.payment_date DESC, p.id`, patientIDs)
	if err != nil {
		return nil, fmt.Errorf("list payments: %w", err)
	}
	defer rows.Close()
	return collectPayments(rows)
}

func collectPayments(rows pgx.Rows) ([]*Payment, error) {
	var out []*Payment
	for rows.Next() {
		p, err := scanPayment(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, p)
	}
	return out, rows.Err()
}

func scanPayment(row pgx.Row) (*Payment, error) {
	var p Payment
	if err := row.Scan(&p.ID, &p.PatientID, &p.Amount, &p.PaymentDate, &p.Notes, &p.RecordedBy); err != nil {
		return nil, fmt.Errorf("scan payment: %w", err)
	}
	return &p, nil
}

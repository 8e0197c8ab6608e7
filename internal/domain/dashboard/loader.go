package dashboard

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/dentaldesk/clinic/internal/clinic"
	"github.com/dentaldesk/clinic/internal/platform/db"
)

// SnapshotLoader reads every collection the rollup needs as of one instant.
type SnapshotLoader interface {
	Load(ctx context.Context) (clinic.Snapshot, error)
}

type pgLoader struct {
	snapshots *db.Snapshots
}

// NewPGLoader loads snapshots from the tenant schema named in the context.
func NewPGLoader(pool *pgxpool.Pool) SnapshotLoader {
	return &pgLoader{snapshots: db.NewSnapshots(pool)}
}

func (l *pgLoader) Load(ctx context.Context) (clinic.Snapshot, error) {
	schema, err := db.SchemaFor(db.TenantFromContext(ctx))
	if err != nil {
		return clinic.Snapshot{}, err
	}
	var s clinic.Snapshot
	err = l.snapshots.Read(ctx, schema,
		func(ctx context.Context, q db.Querier) (err error) {
			s.Patients, err = readPatients(ctx, q)
			return err
		},
		func(ctx context.Context, q db.Querier) (err error) {
			s.Doctors, err = readDoctors(ctx, q)
			return err
		},
		func(ctx context.Context, q db.Querier) (err error) {
			s.Appointments, err = readAppointments(ctx, q)
			return err
		},
		func(ctx context.Context, q db.Querier) (err error) {
			s.History, err = readHistory(ctx, q)
			return err
		},
		func(ctx context.Context, q db.Querier) (err error) {
			s.Payments, err = readPayments(ctx, q)
			return err
		},
	)
	if err != nil {
		return clinic.Snapshot{}, fmt.Errorf("load dashboard snapshot: %w", err)
	}
	return s, nil
}

func readPatients(ctx context.Context, q db.Querier) ([]clinic.Patient, error) {
	rows, err := q.Query(ctx, `SELECT id::text, COALESCE(doctor_id::text, '') FROM patient ORDER BY created_at, id`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []clinic.Patient
	for rows.Next() {
		var p clinic.Patient
		if err := rows.Scan(&p.ID, &p.DoctorID); err != nil {
			return nil, err
		}
		out = append(out, p)
	}
	return out, rows.Err()
}

func readDoctors(ctx context.Context, q db.Querier) ([]clinic.Doctor, error) {
	rows, err := q.Query(ctx, `SELECT id::text FROM users WHERE role = 'doctor' ORDER BY id`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []clinic.Doctor
	for rows.Next() {
		var d clinic.Doctor
		if err := rows.Scan(&d.ID); err != nil {
			return nil, err
		}
		out = append(out, d)
	}
	return out, rows.Err()
}

func readAppointments(ctx context.Context, q db.Querier) ([]clinic.Appointment, error) {
	rows, err := q.Query(ctx, `
		SELECT id::text, patient_id::text, doctor_id::text,
			to_char(appt_date, 'YYYY-MM-DD'), to_char(appt_time, 'HH24:MI'), status
		FROM appointment ORDER BY appt_date, appt_time, created_at`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []clinic.Appointment
	for rows.Next() {
		var (
			a              clinic.Appointment
			date, at, stat string
		)
		if err := rows.Scan(&a.ID, &a.PatientID, &a.DoctorID, &date, &at, &stat); err != nil {
			return nil, err
		}
		if a.Date, err = clinic.ParseDate(date); err != nil {
			return nil, err
		}
		if a.Time, err = clinic.ParseTimeOfDay(at); err != nil {
			return nil, err
		}
		a.Status = clinic.Status(stat)
		out = append(out, a)
	}
	return out, rows.Err()
}

func readHistory(ctx context.Context, q db.Querier) ([]clinic.HistoryRecord, error) {
	rows, err := q.Query(ctx, `SELECT id::text, patient_id::text, procedure_ids::text[], total_cost FROM patient_history`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []clinic.HistoryRecord
	for rows.Next() {
		var h clinic.HistoryRecord
		if err := rows.Scan(&h.ID, &h.PatientID, &h.ProcedureIDs, &h.TotalCost); err != nil {
			return nil, err
		}
		out = append(out, h)
	}
	return out, rows.Err()
}

func readPayments(ctx context.Context, q db.Querier) ([]clinic.Payment, error) {
	rows, err := q.Query(ctx, `SELECT id::text, patient_id::text, amount FROM payment`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []clinic.Payment
	for rows.Next() {
		var p clinic.Payment
		if err := rows.Scan(&p.ID, &p.PatientID, &p.Amount); err != nil {
			return nil, err
		}
		out = append(out, p)
	}
	return out, rows.Err()
}

package billing

import (
	"context"
	"fmt"
	"strings"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/dentaldesk/clinic/internal/clinic"
	"github.com/dentaldesk/clinic/internal/domain/patient"
	"github.com/dentaldesk/clinic/internal/platform/auth"
	"github.com/dentaldesk/clinic/internal/platform/db"
	"github.com/dentaldesk/clinic/internal/platform/websocket"
)

// PatientAccess loads a patient the caller may read.
type PatientAccess interface {
	Access(ctx context.Context, id uuid.UUID) (*patient.Patient, error)
}

// PriceList returns current procedure prices keyed by id.
type PriceList interface {
	Catalog(ctx context.Context) (map[string]clinic.Procedure, error)
}

type Service struct {
	history  HistoryRepository
	payments PaymentRepository
	patients PatientAccess
	prices   PriceList
	notifier *websocket.Notifier
	logger   zerolog.Logger
	snapshot db.ReadSnapshotFunc
}

func NewService(history HistoryRepository, payments PaymentRepository, patients PatientAccess, prices PriceList, notifier *websocket.Notifier, logger zerolog.Logger) *Service {
	return &Service{
		history:  history,
		payments: payments,
		patients: patients,
		prices:   prices,
		notifier: notifier,
		logger:   logger,
		snapshot: db.InReadSnapshot,
	}
}

func callerID(ctx context.Context) *uuid.UUID {
	id, err := uuid.Parse(auth.UserIDFromContext(ctx))
	if err != nil {
		return nil
	}
	return &id
}

func parseProcedureIDs(raw []string) ([]uuid.UUID, error) {
	ids := make([]uuid.UUID, 0, len(raw))
	for _, s := range raw {
		id, err := uuid.Parse(strings.TrimSpace(s))
		if err != nil {
			return nil, fmt.Errorf("invalid procedure id: %q", s)
		}
		ids = append(ids, id)
	}
	return ids, nil
}

// -- History --

// RecordHistory writes a history entry for a patient the caller may read.
// The cost is summed from current catalog prices and frozen on the record.
func (s *Service) RecordHistory(ctx context.Context, patientID uuid.UUID, req HistoryRequest) (*HistoryRecord, error) {
	if _, err := s.patients.Access(ctx, patientID); err != nil {
		return nil, err
	}
	procs, err := parseProcedureIDs(req.Procedures)
	if err != nil {
		return nil, err
	}
	return s.record(ctx, &HistoryRecord{
		PatientID:    patientID,
		Notes:        strings.TrimSpace(req.Notes),
		ProcedureIDs: procs,
	})
}

// Charge bills the procedures performed during an appointment. The caller
// has already authorized access to the patient.
func (s *Service) Charge(ctx context.Context, patientID, appointmentID uuid.UUID, procedureIDs []string, notes string) (*HistoryRecord, error) {
	procs, err := parseProcedureIDs(procedureIDs)
	if err != nil {
		return nil, err
	}
	return s.record(ctx, &HistoryRecord{
		PatientID:     patientID,
		AppointmentID: &appointmentID,
		Notes:         strings.TrimSpace(notes),
		ProcedureIDs:  procs,
	})
}

func (s *Service) record(ctx context.Context, h *HistoryRecord) (*HistoryRecord, error) {
	catalog, err := s.prices.Catalog(ctx)
	if err != nil {
		return nil, fmt.Errorf("load procedure catalog: %w", err)
	}
	core := h.Core()
	total, missing := clinic.PriceProcedures(core.ProcedureIDs, catalog)
	if len(missing) > 0 {
		s.logger.Warn().
			Str("patient_id", core.PatientID).
			Strs("missing_procedures", missing).
			Msg("history references procedures not in the catalog; they are billed at zero")
	}
	h.TotalCost = total
	h.RecordedBy = callerID(ctx)
	if err := s.history.Create(ctx, h); err != nil {
		return nil, err
	}
	s.notifier.Notify(ctx, db.TenantFromContext(ctx), websocket.EventHistoryCreated, h.ID.String(), core.PatientID, h)
	return h, nil
}

// ListHistory returns a patient's history, newest first.
func (s *Service) ListHistory(ctx context.Context, patientID uuid.UUID) ([]*HistoryRecord, error) {
	if _, err := s.patients.Access(ctx, patientID); err != nil {
		return nil, err
	}
	return s.history.ListByPatients(ctx, []uuid.UUID{patientID})
}

// -- Payments --

func (s *Service) RecordPayment(ctx context.Context, req PaymentRequest) (*Payment, error) {
	pid, err := uuid.Parse(req.PatientID)
	if err != nil {
		return nil, fmt.Errorf("invalid patient_id")
	}
	if !req.Amount.IsPositive() {
		return nil, fmt.Errorf("amount must be greater than zero")
	}
	if !req.Amount.Equal(req.Amount.Round(2)) {
		return nil, fmt.Errorf("amount has more than two decimal places")
	}
	if _, err := s.patients.Access(ctx, pid); err != nil {
		return nil, err
	}
	p := &Payment{
		PatientID:  pid,
		Amount:     req.Amount,
		Notes:      strings.TrimSpace(req.Notes),
		RecordedBy: callerID(ctx),
	}
	if err := s.payments.Create(ctx, p); err != nil {
		return nil, err
	}
	s.notifier.Notify(ctx, db.TenantFromContext(ctx), websocket.EventPaymentRecorded, p.ID.String(), pid.String(), p)
	return p, nil
}

// ListPayments returns payments newest first. Doctors only see payments of
// their own patients.
func (s *Service) ListPayments(ctx context.Context, limit, offset int) ([]*Payment, int, error) {
	var scope *uuid.UUID
	if !auth.Can(auth.RolesFromContext(ctx), auth.CapViewAllPatients) {
		if scope = callerID(ctx); scope == nil {
			return nil, 0, patient.ErrForbidden
		}
	}
	return s.payments.List(ctx, scope, limit, offset)
}

func (s *Service) ListPatientPayments(ctx context.Context, patientID uuid.UUID) ([]*Payment, error) {
	if _, err := s.patients.Access(ctx, patientID); err != nil {
		return nil, err
	}
	return s.payments.ListByPatients(ctx, []uuid.UUID{patientID})
}

// -- Ledgers --

// Ledgers derives one ledger per patient id, in order. Unparseable ids get
// an empty ledger. History and payments are read from one snapshot.
func (s *Service) Ledgers(ctx context.Context, patientIDs []string) ([]clinic.Ledger, error) {
	ids := make([]uuid.UUID, 0, len(patientIDs))
	for _, raw := range patientIDs {
		if id, err := uuid.Parse(raw); err == nil {
			ids = append(ids, id)
		}
	}
	var history []*HistoryRecord
	var payments []*Payment
	err := s.snapshot(ctx, func(ctx context.Context) (err error) {
		if history, err = s.history.ListByPatients(ctx, ids); err != nil {
			return err
		}
		payments, err = s.payments.ListByPatients(ctx, ids)
		return err
	})
	if err != nil {
		return nil, err
	}
	coreHistory := make([]clinic.HistoryRecord, len(history))
	for i, h := range history {
		coreHistory[i] = h.Core()
	}
	corePayments := make([]clinic.Payment, len(payments))
	for i, p := range payments {
		corePayments[i] = p.Core()
	}
	return clinic.LedgersFor(patientIDs, coreHistory, corePayments), nil
}


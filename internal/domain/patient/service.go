package patient

import (
	"context"
	"fmt"
	"strings"

	"github.com/google/uuid"

	"github.com/dentaldesk/clinic/internal/clinic"
	"github.com/dentaldesk/clinic/internal/platform/auth"
	"github.com/dentaldesk/clinic/internal/platform/db"
)

const searchLimit = 10

// DoctorDirectory answers whether a user id belongs to a doctor.
type DoctorDirectory interface {
	IsDoctor(ctx context.Context, id uuid.UUID) (bool, error)
}

// LedgerSource derives ledgers for the given patients, in order.
type LedgerSource interface {
	Ledgers(ctx context.Context, patientIDs []string) ([]clinic.Ledger, error)
}

type Service struct {
	patients PatientRepository
	doctors  DoctorDirectory
	ledgers  LedgerSource
	snapshot db.ReadSnapshotFunc
}

func NewService(patients PatientRepository, doctors DoctorDirectory) *Service {
	return &Service{patients: patients, doctors: doctors, snapshot: db.InReadSnapshot}
}

// SetLedgerSource wires the billing ledger after both services exist.
func (s *Service) SetLedgerSource(l LedgerSource) {
	s.ledgers = l
}

// doctorScope returns the doctor the caller is restricted to, or nil when the
// caller may see every patient.
func doctorScope(ctx context.Context) (*uuid.UUID, error) {
	if auth.Can(auth.RolesFromContext(ctx), auth.CapViewAllPatients) {
		return nil, nil
	}
	id, err := uuid.Parse(auth.UserIDFromContext(ctx))
	if err != nil {
		return nil, ErrForbidden
	}
	return &id, nil
}

// Access loads a patient the caller is allowed to read.
func (s *Service) Access(ctx context.Context, id uuid.UUID) (*Patient, error) {
	p, err := s.patients.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	scope, err := doctorScope(ctx)
	if err != nil {
		return nil, err
	}
	if scope != nil && !p.BelongsTo(*scope) {
		return nil, ErrForbidden
	}
	return p, nil
}

// CanAccess is Access reduced to a yes/no on a textual id.
func (s *Service) CanAccess(ctx context.Context, id string) bool {
	pid, err := uuid.Parse(id)
	if err != nil {
		return false
	}
	_, err = s.Access(ctx, pid)
	return err == nil
}

func (s *Service) resolveDoctor(ctx context.Context, raw string) (*uuid.UUID, error) {
	if raw == "" {
		return nil, nil
	}
	id, err := uuid.Parse(raw)
	if err != nil {
		return nil, fmt.Errorf("invalid doctor_id")
	}
	ok, err := s.doctors.IsDoctor(ctx, id)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, ErrUnknownDoctor
	}
	return &id, nil
}

func (s *Service) CreatePatient(ctx context.Context, req CreateRequest) (*Patient, error) {
	p := &Patient{
		Name:  strings.TrimSpace(req.Name),
		Phone: strings.TrimSpace(req.Phone),
	}
	if p.Name == "" {
		return nil, fmt.Errorf("name is required")
	}
	if p.Phone == "" {
		return nil, fmt.Errorf("phone is required")
	}
	doctorID := req.DoctorID
	if doctorID == "" && auth.RoleFromContext(ctx) == auth.RoleDoctor {
		doctorID = auth.UserIDFromContext(ctx)
	}
	if doctorID == "" {
		return nil, fmt.Errorf("doctor_id is required")
	}
	doc, err := s.resolveDoctor(ctx, doctorID)
	if err != nil {
		return nil, err
	}
	p.DoctorID = doc
	if err := s.patients.Create(ctx, p); err != nil {
		return nil, err
	}
	return p, nil
}

func (s *Service) UpdatePatient(ctx context.Context, id uuid.UUID, upd Update) (*Patient, error) {
	p, err := s.Access(ctx, id)
	if err != nil {
		return nil, err
	}
	if upd.Name != nil {
		if p.Name = strings.TrimSpace(*upd.Name); p.Name == "" {
			return nil, fmt.Errorf("name cannot be empty")
		}
	}
	if upd.Phone != nil {
		if p.Phone = strings.TrimSpace(*upd.Phone); p.Phone == "" {
			return nil, fmt.Errorf("phone cannot be empty")
		}
	}
	if upd.DoctorID != nil {
		doc, err := s.resolveDoctor(ctx, *upd.DoctorID)
		if err != nil {
			return nil, err
		}
		p.DoctorID = doc
	}
	if err := s.patients.Update(ctx, p); err != nil {
		return nil, err
	}
	return p, nil
}

// ListPatients returns the caller's visible patients with their ledgers. The
// page and the ledgers are read from one snapshot.
func (s *Service) ListPatients(ctx context.Context, limit, offset int) ([]Summary, int, error) {
	scope, err := doctorScope(ctx)
	if err != nil {
		return nil, 0, err
	}
	var out []Summary
	var total int
	err = s.snapshot(ctx, func(ctx context.Context) error {
		patients, n, err := s.patients.List(ctx, scope, limit, offset)
		if err != nil {
			return err
		}
		ids := make([]string, len(patients))
		for i, p := range patients {
			ids[i] = p.ID.String()
		}
		ledgers, err := s.ledgersFor(ctx, ids)
		if err != nil {
			return err
		}
		out = make([]Summary, len(patients))
		for i, p := range patients {
			out[i] = Summary{Patient: p, Ledger: ledgers[i]}
		}
		total = n
		return nil
	})
	if err != nil {
		return nil, 0, err
	}
	return out, total, nil
}

func (s *Service) ledgersFor(ctx context.Context, ids []string) ([]clinic.Ledger, error) {
	if s.ledgers == nil {
		return clinic.LedgersFor(ids, nil, nil), nil
	}
	ledgers, err := s.ledgers.Ledgers(ctx, ids)
	if err != nil {
		return nil, fmt.Errorf("derive ledgers: %w", err)
	}
	if len(ledgers) != len(ids) {
		return nil, fmt.Errorf("derive ledgers: got %d for %d patients", len(ledgers), len(ids))
	}
	return ledgers, nil
}

// SearchPatients matches name case-insensitively anywhere in the patient's
// name. At most ten patients are returned.
func (s *Service) SearchPatients(ctx context.Context, name string) ([]*Patient, error) {
	name = strings.TrimSpace(name)
	if name == "" {
		return nil, fmt.Errorf("name is required")
	}
	scope, err := doctorScope(ctx)
	if err != nil {
		return nil, err
	}
	return s.patients.Search(ctx, name, scope, searchLimit)
}

// Ledger derives the money position of one patient the caller may read.
func (s *Service) Ledger(ctx context.Context, id uuid.UUID) (clinic.Ledger, error) {
	var ledger clinic.Ledger
	err := s.snapshot(ctx, func(ctx context.Context) error {
		if _, err := s.Access(ctx, id); err != nil {
			return err
		}
		ledgers, err := s.ledgersFor(ctx, []string{id.String()})
		if err != nil {
			return err
		}
		ledger = ledgers[0]
		return nil
	})
	return ledger, err
}

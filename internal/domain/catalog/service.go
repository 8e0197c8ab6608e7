package catalog

import (
	"context"
	"fmt"
	"strings"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/dentaldesk/clinic/internal/clinic"
)

type Service struct {
	procs  ProcedureRepository
	logger zerolog.Logger
}

func NewService(procs ProcedureRepository, logger zerolog.Logger) *Service {
	return &Service{procs: procs, logger: logger}
}

func validate(p *Procedure) error {
	p.NameEn = strings.TrimSpace(p.NameEn)
	p.NameAr = strings.TrimSpace(p.NameAr)
	if p.NameEn == "" {
		return fmt.Errorf("name_en is required")
	}
	if p.NameAr == "" {
		return fmt.Errorf("name_ar is required")
	}
	if p.Price.IsNegative() {
		return fmt.Errorf("price cannot be negative")
	}
	if !p.Price.Equal(p.Price.Round(2)) {
		return fmt.Errorf("price has more than two decimal places")
	}
	return nil
}

func (s *Service) CreateProcedure(ctx context.Context, p *Procedure) error {
	if err := validate(p); err != nil {
		return err
	}
	return s.procs.Create(ctx, p)
}

func (s *Service) GetProcedure(ctx context.Context, id uuid.UUID) (*Procedure, error) {
	return s.procs.GetByID(ctx, id)
}

func (s *Service) ListProcedures(ctx context.Context) ([]*Procedure, error) {
	return s.procs.List(ctx)
}

// UpdateProcedure applies a partial update. Price changes affect only
// charges recorded afterwards.
func (s *Service) UpdateProcedure(ctx context.Context, id uuid.UUID, upd ProcedureUpdate) (*Procedure, error) {
	p, err := s.procs.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if upd.NameEn != nil {
		p.NameEn = *upd.NameEn
	}
	if upd.NameAr != nil {
		p.NameAr = *upd.NameAr
	}
	if upd.Price != nil {
		p.Price = *upd.Price
	}
	if upd.DescriptionEn != nil {
		p.DescriptionEn = *upd.DescriptionEn
	}
	if upd.DescriptionAr != nil {
		p.DescriptionAr = *upd.DescriptionAr
	}
	if err := validate(p); err != nil {
		return nil, err
	}
	if err := s.procs.Update(ctx, p); err != nil {
		return nil, err
	}
	return p, nil
}

func (s *Service) DeleteProcedure(ctx context.Context, id uuid.UUID) error {
	return s.procs.Delete(ctx, id)
}

// Catalog returns current prices keyed by procedure id.
func (s *Service) Catalog(ctx context.Context) (map[string]clinic.Procedure, error) {
	procs, err := s.procs.List(ctx)
	if err != nil {
		return nil, err
	}
	out := make(map[string]clinic.Procedure, len(procs))
	for _, p := range procs {
		out[p.ID.String()] = p.Core()
	}
	return out, nil
}

// SeedDefaults fills an empty catalog with DefaultProcedures and returns how
// many were inserted.
func (s *Service) SeedDefaults(ctx context.Context) (int, error) {
	n, err := s.procs.Count(ctx)
	if err != nil {
		return 0, err
	}
	if n > 0 {
		return 0, nil
	}
	defaults := DefaultProcedures()
	for i := range defaults {
		if err := s.procs.Create(ctx, &defaults[i]); err != nil {
			return i, fmt.Errorf("seed procedure %q: %w", defaults[i].NameEn, err)
		}
	}
	s.logger.Info().Int("count", len(defaults)).Msg("seeded default dental procedures")
	return len(defaults), nil
}

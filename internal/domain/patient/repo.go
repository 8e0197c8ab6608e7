package patient

import (
	"context"

	"github.com/google/uuid"
)

// PatientRepository stores patients. A non-nil doctorID narrows list and
// search results to that doctor's patients.
type PatientRepository interface {
	Create(ctx context.Context, p *Patient) error
	GetByID(ctx context.Context, id uuid.UUID) (*Patient, error)
	Update(ctx context.Context, p *Patient) error
	List(ctx context.Context, doctorID *uuid.UUID, limit, offset int) ([]*Patient, int, error)
	Search(ctx context.Context, name string, doctorID *uuid.UUID, limit int) ([]*Patient, error)
}

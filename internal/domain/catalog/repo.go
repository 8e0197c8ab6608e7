package catalog

import (
	"context"

	"github.com/google/uuid"
)

type ProcedureRepository interface {
	Create(ctx context.Context, p *Procedure) error
	GetByID(ctx context.Context, id uuid.UUID) (*Procedure, error)
	Update(ctx context.Context, p *Procedure) error
	Delete(ctx context.Context, id uuid.UUID) error
	List(ctx context.Context) ([]*Procedure, error)
	Count(ctx context.Context) (int, error)
}

package identity

import (
	"context"

	"github.com/google/uuid"

	"github.com/dentaldesk/clinic/internal/platform/auth"
)

// UserRepository defines the persistence interface for staff accounts.
// Lookups by email are case-insensitive.
type UserRepository interface {
	Create(ctx context.Context, u *User) error
	GetByID(ctx context.Context, id uuid.UUID) (*User, error)
	GetByEmail(ctx context.Context, email string) (*User, error)
	Update(ctx context.Context, u *User) error
	Delete(ctx context.Context, id uuid.UUID) error
	List(ctx context.Context, limit, offset int) ([]*User, int, error)
	ListByRole(ctx context.Context, role auth.Role) ([]*User, error)
	// CreateFirst creates u only when no user exists yet and reports
	// whether it did.
	CreateFirst(ctx context.Context, u *User) (bool, error)
}

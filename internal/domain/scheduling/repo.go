package scheduling

import (
	"context"

	"github.com/google/uuid"

	"github.com/dentaldesk/clinic/internal/clinic"
)

type AppointmentRepository interface {
	// Create and Update return ErrConflict when another live appointment
	// holds the doctor's slot.
	Create(ctx context.Context, a *Appointment) error
	GetByID(ctx context.Context, id uuid.UUID) (*Appointment, error)
	Update(ctx context.Context, a *Appointment) error
	// List returns matching appointments ordered by date then time.
	List(ctx context.Context, f Filter) ([]*Appointment, error)
	// SlotTaken reports whether a non-cancelled appointment other than
	// exclude holds the slot.
	SlotTaken(ctx context.Context, doctorID uuid.UUID, date clinic.Date, at clinic.TimeOfDay, exclude *uuid.UUID) (bool, error)
}

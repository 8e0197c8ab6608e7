package billing

import (
	"context"

	"github.com/google/uuid"
)

type HistoryRepository interface {
	Create(ctx context.Context, h *HistoryRecord) error
	// ListByPatients returns the records of every listed patient, newest
	// first.
	ListByPatients(ctx context.Context, patientIDs []uuid.UUID) ([]*HistoryRecord, error)
}

// PaymentRepository stores payments. A non-nil doctorID narrows List to
// payments of that doctor's patients.
type PaymentRepository interface {
	Create(ctx context.Context, p *Payment) error
	List(ctx context.Context, doctorID *uuid.UUID, limit, offset int) ([]*Payment, int, error)
	ListByPatients(ctx context.Context, patientIDs []uuid.UUID) ([]*Payment, error)
}

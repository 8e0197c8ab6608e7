package billing

import (
	"encoding/json"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/dentaldesk/clinic/internal/clinic"
)

var ErrNotFound = errors.New("record not found")

// HistoryRecord is one clinical encounter. TotalCost is priced from the
// catalog when the record is written and never recomputed.
type HistoryRecord struct {
	ID            uuid.UUID       `json:"id"`
	PatientID     uuid.UUID       `json:"patient_id"`
	RecordedAt    time.Time       `json:"date"`
	Notes         string          `json:"notes"`
	ProcedureIDs  []uuid.UUID     `json:"procedures"`
	TotalCost     decimal.Decimal `json:"total_cost"`
	RecordedBy    *uuid.UUID      `json:"recorded_by,omitempty"`
	AppointmentID *uuid.UUID      `json:"appointment_id,omitempty"`
}

func (h HistoryRecord) MarshalJSON() ([]byte, error) {
	type alias HistoryRecord
	procs := h.ProcedureIDs
	if procs == nil {
		procs = []uuid.UUID{}
	}
	return json.Marshal(struct {
		alias
		ProcedureIDs []uuid.UUID `json:"procedures"`
		TotalCost    string      `json:"total_cost"`
	}{alias: alias(h), ProcedureIDs: procs, TotalCost: clinic.Money(h.TotalCost)})
}

func (h *HistoryRecord) Core() clinic.HistoryRecord {
	ids := make([]string, len(h.ProcedureIDs))
	for i, id := range h.ProcedureIDs {
		ids[i] = id.String()
	}
	return clinic.HistoryRecord{
		ID:           h.ID.String(),
		PatientID:    h.PatientID.String(),
		ProcedureIDs: ids,
		TotalCost:    h.TotalCost,
	}
}

type Payment struct {
	ID          uuid.UUID       `json:"id"`
	PatientID   uuid.UUID       `json:"patient_id"`
	Amount      decimal.Decimal `json:"amount"`
	PaymentDate time.Time       `json:"payment_date"`
	Notes       string          `json:"notes"`
	RecordedBy  *uuid.UUID      `json:"recorded_by,omitempty"`
}

func (p Payment) MarshalJSON() ([]byte, error) {
	type alias Payment
	return json.Marshal(struct {
		alias
		Amount string `json:"amount"`
	}{alias: alias(p), Amount: clinic.Money(p.Amount)})
}

func (p *Payment) Core() clinic.Payment {
	return clinic.Payment{ID: p.ID.String(), PatientID: p.PatientID.String(), Amount: p.Amount}
}

type HistoryRequest struct {
	Notes      string   `json:"notes"`
	Procedures []string `json:"procedures"`
}

type PaymentRequest struct {
	PatientID string          `json:"patient_id"`
	Amount    decimal.Decimal `json:"amount"`
	Notes     string          `json:"notes"`
}

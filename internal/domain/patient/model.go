package patient

import (
	"encoding/json"
	"errors"
	"time"

	"github.com/google/uuid"

	"github.com/dentaldesk/clinic/internal/clinic"
)

var (
	ErrNotFound      = errors.New("patient not found")
	ErrForbidden     = errors.New("access denied to this patient")
	ErrUnknownDoctor = errors.New("doctor_id does not refer to a doctor")
)

type Patient struct {
	ID        uuid.UUID  `json:"id"`
	Name      string     `json:"name"`
	Phone     string     `json:"phone"`
	DoctorID  *uuid.UUID `json:"doctor_id"`
	CreatedAt time.Time  `json:"created_at"`
}

// Core returns the view used by the aggregation engine. A patient without a
// doctor has an empty DoctorID.
func (p *Patient) Core() clinic.Patient {
	out := clinic.Patient{ID: p.ID.String()}
	if p.DoctorID != nil {
		out.DoctorID = p.DoctorID.String()
	}
	return out
}

// BelongsTo reports whether doctorID is the patient's doctor.
func (p *Patient) BelongsTo(doctorID uuid.UUID) bool {
	return p.DoctorID != nil && *p.DoctorID == doctorID
}

// Summary is a list row: the patient plus its derived ledger figures.
type Summary struct {
	*Patient
	Ledger clinic.Ledger
}

func (s Summary) MarshalJSON() ([]byte, error) {
	return json.Marshal(struct {
		*Patient
		TotalCost      string `json:"total_cost"`
		TotalPaid      string `json:"total_paid"`
		Balance        string `json:"balance"`
		DisplayBalance string `json:"display_balance"`
	}{
		Patient:        s.Patient,
		TotalCost:      clinic.Money(s.Ledger.TotalCost),
		TotalPaid:      clinic.Money(s.Ledger.TotalPaid),
		Balance:        clinic.Money(s.Ledger.Balance),
		DisplayBalance: clinic.Money(s.Ledger.DisplayBalance()),
	})
}

// Contact is the front-desk view of a search hit.
type Contact struct {
	ID    uuid.UUID `json:"id"`
	Name  string    `json:"name"`
	Phone string    `json:"phone"`
}

func (p *Patient) Contact() Contact {
	return Contact{ID: p.ID, Name: p.Name, Phone: p.Phone}
}

type CreateRequest struct {
	Name     string `json:"name"`
	Phone    string `json:"phone"`
	DoctorID string `json:"doctor_id"`
}

// Update carries a partial update; nil fields are unchanged.
type Update struct {
	Name     *string `json:"name"`
	Phone    *string `json:"phone"`
	DoctorID *string `json:"doctor_id"`
}

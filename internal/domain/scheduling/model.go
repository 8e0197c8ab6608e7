package scheduling

import (
	"errors"
	"time"

	"github.com/google/uuid"

	"github.com/dentaldesk/clinic/internal/clinic"
)

var (
	ErrNotFound  = errors.New("appointment not found")
	ErrConflict  = errors.New("doctor already has an appointment at this date and time")
	ErrForbidden = errors.New("access denied to this appointment")
)

// Appointment is a booked slot. Date and Time are clinic-local wall-clock
// values.
type Appointment struct {
	ID           uuid.UUID        `json:"id"`
	PatientID    uuid.UUID        `json:"patient_id"`
	DoctorID     uuid.UUID        `json:"doctor_id"`
	Date         clinic.Date      `json:"date"`
	Time         clinic.TimeOfDay `json:"time"`
	Status       clinic.Status    `json:"status"`
	Notes        string           `json:"notes"`
	ProcedureIDs []uuid.UUID      `json:"procedures"`
	CreatedAt    time.Time        `json:"created_at"`
	UpdatedAt    time.Time        `json:"updated_at"`
}

func (a *Appointment) Core() clinic.Appointment {
	return clinic.Appointment{
		ID:        a.ID.String(),
		PatientID: a.PatientID.String(),
		DoctorID:  a.DoctorID.String(),
		Date:      a.Date,
		Time:      a.Time,
		Status:    a.Status,
	}
}

type CreateRequest struct {
	PatientID string `json:"patient_id"`
	DoctorID  string `json:"doctor_id"`
	Date      string `json:"date"`
	Time      string `json:"time"`
	Status    string `json:"status"`
	Notes     string `json:"notes"`
}

// UpdateRequest changes an appointment. Procedures, when present, are billed
// to the patient as a new history record.
type UpdateRequest struct {
	Status     *string  `json:"status"`
	Date       *string  `json:"date"`
	Time       *string  `json:"time"`
	Notes      *string  `json:"notes"`
	Procedures []string `json:"procedures"`
}

// Filter narrows appointment listings. Zero values leave a field open.
type Filter struct {
	DoctorID  *uuid.UUID
	PatientID *uuid.UUID
	From      clinic.Date
	To        clinic.Date
}

// MonthRef points at a neighbouring calendar page.
type MonthRef struct {
	Year  int `json:"year"`
	Month int `json:"month"`
}

func refOf(m clinic.Month) MonthRef {
	return MonthRef{Year: m.Year, Month: int(m.Month)}
}

type CalendarDay struct {
	Day          int            `json:"day"`
	Date         clinic.Date    `json:"date"`
	IsToday      bool           `json:"is_today"`
	Appointments []*Appointment `json:"appointments"`
}

// CalendarView is one month laid out on a Sunday-first grid. Offset blank
// cells precede day 1.
type CalendarView struct {
	Year        int           `json:"year"`
	Month       int           `json:"month"`
	Offset      int           `json:"offset"`
	DaysInMonth int           `json:"days_in_month"`
	Total       int           `json:"total"`
	TodayIndex  *int          `json:"today_index,omitempty"`
	Prev        MonthRef      `json:"prev"`
	Next        MonthRef      `json:"next"`
	Days        []CalendarDay `json:"days"`
}

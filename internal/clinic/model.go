// Package clinic holds the pure ledger and calendar rules behind the clinic
// dashboard. Nothing in this package performs I/O or reads the wall clock.
// Every function takes the records it needs and returns freshly derived
// values.
package clinic

import (
	"fmt"
	"time"

	"github.com/shopspring/decimal"
)

// Status is the lifecycle state of an appointment.
type Status string

const (
	StatusConfirmed Status = "confirmed"
	StatusDone      Status = "done"
	StatusCancelled Status = "cancelled"
)

var validStatuses = map[Status]bool{
	StatusConfirmed: true,
	StatusDone:      true,
	StatusCancelled: true,
}

// ParseStatus validates an inbound status string. An empty string yields
// StatusConfirmed.
func ParseStatus(s string) (Status, error) {
	if s == "" {
		return StatusConfirmed, nil
	}
	st := Status(s)
	if !validStatuses[st] {
		return "", fmt.Errorf("invalid status: %s", s)
	}
	return st, nil
}

// Valid reports whether s is one of the known statuses.
func (s Status) Valid() bool { return validStatuses[s] }

// Cancelled reports whether the appointment has been withdrawn. Unknown
// values are treated as not cancelled.
func (s Status) Cancelled() bool { return s == StatusCancelled }

const dateLayout = "2006-01-02"

// Date is a calendar day with no time zone attached.
type Date struct {
	Year  int
	Month time.Month
	Day   int
}

// ParseDate parses a "YYYY-MM-DD" string.
func ParseDate(s string) (Date, error) {
	t, err := time.Parse(dateLayout, s)
	if err != nil {
		return Date{}, fmt.Errorf("invalid date %q: expected YYYY-MM-DD", s)
	}
	return DateOf(t), nil
}

// MustDate is ParseDate for literals known to be valid.
func MustDate(s string) Date {
	d, err := ParseDate(s)
	if err != nil {
		panic(err)
	}
	return d
}

// DateOf returns the calendar day of t in t's own location.
func DateOf(t time.Time) Date {
	y, m, d := t.Date()
	return Date{Year: y, Month: m, Day: d}
}

// Time returns midnight UTC of the day.
func (d Date) Time() time.Time {
	return time.Date(d.Year, d.Month, d.Day, 0, 0, 0, 0, time.UTC)
}

func (d Date) IsZero() bool { return d == Date{} }

// Compare returns -1, 0 or +1 depending on whether d is before, equal to or
// after o.
func (d Date) Compare(o Date) int {
	switch {
	case d.Year != o.Year:
		return cmpInt(d.Year, o.Year)
	case d.Month != o.Month:
		return cmpInt(int(d.Month), int(o.Month))
	default:
		return cmpInt(d.Day, o.Day)
	}
}

func (d Date) Before(o Date) bool { return d.Compare(o) < 0 }

func (d Date) String() string {
	return fmt.Sprintf("%04d-%02d-%02d", d.Year, int(d.Month), d.Day)
}

func (d Date) MarshalText() ([]byte, error) {
	return []byte(d.String()), nil
}

func (d *Date) UnmarshalText(b []byte) error {
	parsed, err := ParseDate(string(b))
	if err != nil {
		return err
	}
	*d = parsed
	return nil
}

// TimeOfDay is a local wall-clock time stored as minutes after midnight.
type TimeOfDay int

// ParseTimeOfDay parses a 24-hour "HH:MM" string.
func ParseTimeOfDay(s string) (TimeOfDay, error) {
	t, err := time.Parse("15:04", s)
	if err != nil {
		return 0, fmt.Errorf("invalid time %q: expected HH:MM", s)
	}
	return TimeOfDay(t.Hour()*60 + t.Minute()), nil
}

// MustTime is ParseTimeOfDay for literals known to be valid.
func MustTime(s string) TimeOfDay {
	t, err := ParseTimeOfDay(s)
	if err != nil {
		panic(err)
	}
	return t
}

func (t TimeOfDay) Hour() int   { return int(t) / 60 }
func (t TimeOfDay) Minute() int { return int(t) % 60 }

func (t TimeOfDay) String() string {
	return fmt.Sprintf("%02d:%02d", t.Hour(), t.Minute())
}

func (t TimeOfDay) MarshalText() ([]byte, error) {
	return []byte(t.String()), nil
}

func (t *TimeOfDay) UnmarshalText(b []byte) error {
	parsed, err := ParseTimeOfDay(string(b))
	if err != nil {
		return err
	}
	*t = parsed
	return nil
}

// Procedure is a billable catalog entry. Price is the current price; records
// written in the past keep the price that applied when they were written.
type Procedure struct {
	ID    string
	Price decimal.Decimal
}

// HistoryRecord is one clinical encounter. TotalCost was frozen from catalog
// prices when the record was written.
type HistoryRecord struct {
	ID           string
	PatientID    string
	ProcedureIDs []string
	TotalCost    decimal.Decimal
}

type Payment struct {
	ID        string
	PatientID string
	Amount    decimal.Decimal
}

type Patient struct {
	ID       string
	DoctorID string
}

type Doctor struct {
	ID string
}

type Appointment struct {
	ID        string
	PatientID string
	DoctorID  string
	Date      Date
	Time      TimeOfDay
	Status    Status
}

// Snapshot is one consistent read of every collection the aggregators need.
type Snapshot struct {
	Patients     []Patient
	Doctors      []Doctor
	Appointments []Appointment
	History      []HistoryRecord
	Payments     []Payment
}

// ScopedToDoctor narrows the snapshot to one doctor's patients and
// appointments, plus the money records of those patients.
func (s Snapshot) ScopedToDoctor(doctorID string) Snapshot {
	out := Snapshot{}
	own := make(map[string]bool)
	for _, p := range s.Patients {
		if p.DoctorID == doctorID {
			out.Patients = append(out.Patients, p)
			own[p.ID] = true
		}
	}
	for _, d := range s.Doctors {
		if d.ID == doctorID {
			out.Doctors = append(out.Doctors, d)
		}
	}
	out.Appointments = ForDoctor(s.Appointments, doctorID)
	for _, h := range s.History {
		if own[h.PatientID] {
			out.History = append(out.History, h)
		}
	}
	for _, p := range s.Payments {
		if own[p.PatientID] {
			out.Payments = append(out.Payments, p)
		}
	}
	return out
}

func cmpInt(a, b int) int {
	switch {
	case a < b:
		return -1
	case a > b:
		return 1
	}
	return 0
}

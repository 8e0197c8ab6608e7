package clinic

import (
	"encoding/json"
	"sort"

	"github.com/shopspring/decimal"
)

// DashboardStats is a clinic-wide projection. It is never stored.
type DashboardStats struct {
	TotalPatients     int
	AppointmentsToday int
	TotalDoctors      int
	TotalRevenue      decimal.Decimal
	TotalCollected    decimal.Decimal
	TotalPending      decimal.Decimal
}

func (s DashboardStats) MarshalJSON() ([]byte, error) {
	return json.Marshal(struct {
		TotalPatients     int    `json:"total_patients"`
		AppointmentsToday int    `json:"appointments_today"`
		TotalDoctors      int    `json:"total_doctors"`
		TotalRevenue      string `json:"total_revenue"`
		TotalCollected    string `json:"total_collected"`
		TotalPending      string `json:"total_pending"`
	}{
		TotalPatients:     s.TotalPatients,
		AppointmentsToday: s.AppointmentsToday,
		TotalDoctors:      s.TotalDoctors,
		TotalRevenue:      Money(s.TotalRevenue),
		TotalCollected:    Money(s.TotalCollected),
		TotalPending:      Money(s.TotalPending),
	})
}

// PatientIDs lists the ids of the snapshot's patients in order.
func (s Snapshot) PatientIDs() []string {
	ids := make([]string, len(s.Patients))
	for i, p := range s.Patients {
		ids[i] = p.ID
	}
	return ids
}

// Ledgers derives one ledger per snapshot patient.
func (s Snapshot) Ledgers() []Ledger {
	return LedgersFor(s.PatientIDs(), s.History, s.Payments)
}

// Rollup aggregates the snapshot. Money totals come only from per-patient
// ledgers; the appointment count comes only from the Today filter.
func Rollup(s Snapshot, today Date) DashboardStats {
	stats := DashboardStats{
		TotalPatients:     len(s.Patients),
		TotalDoctors:      len(s.Doctors),
		AppointmentsToday: len(Today(s.Appointments, today)),
		TotalRevenue:      decimal.Zero,
		TotalCollected:    decimal.Zero,
		TotalPending:      decimal.Zero,
	}
	for _, l := range s.Ledgers() {
		stats.TotalRevenue = stats.TotalRevenue.Add(l.TotalCost)
		stats.TotalCollected = stats.TotalCollected.Add(l.TotalPaid)
		stats.TotalPending = stats.TotalPending.Add(l.DisplayBalance())
	}
	return stats
}

// DoctorRollup aggregates only what one doctor may see.
func DoctorRollup(s Snapshot, doctorID string, today Date) DashboardStats {
	return Rollup(s.ScopedToDoctor(doctorID), today)
}

// FrontDeskRollup carries the patient and appointment counts only; money
// fields stay zero.
func FrontDeskRollup(s Snapshot, today Date) DashboardStats {
	return DashboardStats{
		TotalPatients:     len(s.Patients),
		AppointmentsToday: len(Today(s.Appointments, today)),
		TotalRevenue:      decimal.Zero,
		TotalCollected:    decimal.Zero,
		TotalPending:      decimal.Zero,
	}
}

// PendingBalances keeps ledgers that still owe money, largest balance first.
func PendingBalances(ledgers []Ledger) []Ledger {
	var out []Ledger
	for _, l := range ledgers {
		if l.Owes() {
			out = append(out, l)
		}
	}
	sort.SliceStable(out, func(i, j int) bool {
		return out[i].Balance.GreaterThan(out[j].Balance)
	})
	return out
}

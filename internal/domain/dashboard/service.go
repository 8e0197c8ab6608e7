// Package dashboard serves clinic-wide figures derived from one consistent
// snapshot of patients, doctors, appointments and money records.
package dashboard

import (
	"context"
	"errors"
	"time"

	"github.com/dentaldesk/clinic/internal/clinic"
	"github.com/dentaldesk/clinic/internal/platform/auth"
)

var ErrForbidden = errors.New("dashboard not available for this role")

// Counts is the dashboard of callers who do not see clinic finances.
type Counts struct {
	TotalPatients     int `json:"total_patients"`
	AppointmentsToday int `json:"appointments_today"`
}

type Service struct {
	loader SnapshotLoader
	loc    *time.Location
	now    func() time.Time
}

// NewService builds the dashboard service. loc decides which calendar day
// counts as today.
func NewService(loader SnapshotLoader, loc *time.Location) *Service {
	if loc == nil {
		loc = time.UTC
	}
	return &Service{loader: loader, loc: loc, now: time.Now}
}

func (s *Service) SetClock(now func() time.Time) {
	s.now = now
}

func (s *Service) Today() clinic.Date {
	return clinic.DateOf(s.now().In(s.loc))
}

// ClinicStats is the full rollup for the given day.
func (s *Service) ClinicStats(ctx context.Context, today clinic.Date) (clinic.DashboardStats, error) {
	snap, err := s.loader.Load(ctx)
	if err != nil {
		return clinic.DashboardStats{}, err
	}
	return clinic.Rollup(snap, today), nil
}

// Stats returns what the caller's role may see: the full rollup for admins,
// counts over their own patients for doctors, and clinic-wide counts for the
// front desk.
func (s *Service) Stats(ctx context.Context) (interface{}, error) {
	today := s.Today()
	role := auth.RoleFromContext(ctx)
	switch role {
	case auth.RoleAdmin:
		return s.ClinicStats(ctx, today)
	case auth.RoleDoctor, auth.RoleReceptionist:
	default:
		return nil, ErrForbidden
	}

	snap, err := s.loader.Load(ctx)
	if err != nil {
		return nil, err
	}
	var stats clinic.DashboardStats
	if role == auth.RoleDoctor {
		stats = clinic.DoctorRollup(snap, auth.UserIDFromContext(ctx), today)
	} else {
		stats = clinic.FrontDeskRollup(snap, today)
	}
	return Counts{TotalPatients: stats.TotalPatients, AppointmentsToday: stats.AppointmentsToday}, nil
}

// Pending lists patients who still owe money, largest balance first.
func (s *Service) Pending(ctx context.Context) ([]clinic.Ledger, error) {
	snap, err := s.loader.Load(ctx)
	if err != nil {
		return nil, err
	}
	return clinic.PendingBalances(snap.Ledgers()), nil
}

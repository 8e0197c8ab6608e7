package scheduling

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/dentaldesk/clinic/internal/clinic"
	"github.com/dentaldesk/clinic/internal/domain/billing"
	"github.com/dentaldesk/clinic/internal/domain/patient"
	"github.com/dentaldesk/clinic/internal/platform/auth"
	"github.com/dentaldesk/clinic/internal/platform/db"
	"github.com/dentaldesk/clinic/internal/platform/websocket"
)

type PatientAccess interface {
	Access(ctx context.Context, id uuid.UUID) (*patient.Patient, error)
}

type DoctorDirectory interface {
	IsDoctor(ctx context.Context, id uuid.UUID) (bool, error)
}

// Charger bills procedures performed during an appointment.
type Charger interface {
	Charge(ctx context.Context, patientID, appointmentID uuid.UUID, procedureIDs []string, notes string) (*billing.HistoryRecord, error)
}

type Service struct {
	appts    AppointmentRepository
	patients PatientAccess
	doctors  DoctorDirectory
	charger  Charger
	notifier *websocket.Notifier
	loc      *time.Location
	now      func() time.Time
}

// NewService builds the scheduling service. loc is the clinic's time zone,
// used to decide which calendar day is today.
func NewService(appts AppointmentRepository, patients PatientAccess, doctors DoctorDirectory, charger Charger, notifier *websocket.Notifier, loc *time.Location) *Service {
	if loc == nil {
		loc = time.UTC
	}
	return &Service{
		appts:    appts,
		patients: patients,
		doctors:  doctors,
		charger:  charger,
		notifier: notifier,
		loc:      loc,
		now:      time.Now,
	}
}

// SetClock replaces the wall clock.
func (s *Service) SetClock(now func() time.Time) {
	s.now = now
}

// Today is the current clinic-local date.
func (s *Service) Today() clinic.Date {
	return clinic.DateOf(s.now().In(s.loc))
}

// doctorScope returns the doctor whose schedule the caller is limited to, or
// nil when the caller sees the whole clinic.
func doctorScope(ctx context.Context) (*uuid.UUID, error) {
	if auth.Can(auth.RolesFromContext(ctx), auth.CapViewAllSchedules) {
		return nil, nil
	}
	id, err := uuid.Parse(auth.UserIDFromContext(ctx))
	if err != nil {
		return nil, ErrForbidden
	}
	return &id, nil
}

func (s *Service) notify(ctx context.Context, a *Appointment) {
	s.notifier.Notify(ctx, db.TenantFromContext(ctx), websocket.EventAppointmentChanged,
		a.ID.String(), a.PatientID.String(), a, websocket.TopicSchedule)
}

func (s *Service) ensureFree(ctx context.Context, a *Appointment, exclude *uuid.UUID) error {
	if a.Status.Cancelled() {
		return nil
	}
	taken, err := s.appts.SlotTaken(ctx, a.DoctorID, a.Date, a.Time, exclude)
	if err != nil {
		return err
	}
	if taken {
		return ErrConflict
	}
	return nil
}

func (s *Service) CreateAppointment(ctx context.Context, req CreateRequest) (*Appointment, error) {
	patientID, err := uuid.Parse(req.PatientID)
	if err != nil {
		return nil, fmt.Errorf("invalid patient_id")
	}
	doctorID, err := uuid.Parse(req.DoctorID)
	if err != nil {
		return nil, fmt.Errorf("invalid doctor_id")
	}
	date, err := clinic.ParseDate(req.Date)
	if err != nil {
		return nil, err
	}
	at, err := clinic.ParseTimeOfDay(req.Time)
	if err != nil {
		return nil, err
	}
	status, err := clinic.ParseStatus(req.Status)
	if err != nil {
		return nil, err
	}

	scope, err := doctorScope(ctx)
	if err != nil {
		return nil, err
	}
	if scope != nil && *scope != doctorID {
		return nil, ErrForbidden
	}
	if _, err := s.patients.Access(ctx, patientID); err != nil {
		return nil, err
	}
	ok, err := s.doctors.IsDoctor(ctx, doctorID)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, fmt.Errorf("doctor_id does not refer to a doctor")
	}

	a := &Appointment{
		PatientID: patientID,
		DoctorID:  doctorID,
		Date:      date,
		Time:      at,
		Status:    status,
		Notes:     strings.TrimSpace(req.Notes),
	}
	if err := s.ensureFree(ctx, a, nil); err != nil {
		return nil, err
	}
	if err := s.appts.Create(ctx, a); err != nil {
		return nil, err
	}
	s.notify(ctx, a)
	return a, nil
}

func (s *Service) GetAppointment(ctx context.Context, id uuid.UUID) (*Appointment, error) {
	a, err := s.appts.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	scope, err := doctorScope(ctx)
	if err != nil {
		return nil, err
	}
	if scope != nil && a.DoctorID != *scope {
		return nil, ErrForbidden
	}
	return a, nil
}

// UpdateAppointment applies status, slot and note changes. Procedures are
// billed in the same transaction as the update. Cancelling never removes
// charges already billed.
func (s *Service) UpdateAppointment(ctx context.Context, id uuid.UUID, req UpdateRequest) (*Appointment, error) {
	a, err := s.GetAppointment(ctx, id)
	if err != nil {
		return nil, err
	}
	before := *a

	if req.Status != nil {
		if *req.Status == "" {
			return nil, fmt.Errorf("status must be one of confirmed, done, cancelled")
		}
		if a.Status, err = clinic.ParseStatus(*req.Status); err != nil {
			return nil, fmt.Errorf("status must be one of confirmed, done, cancelled")
		}
	}
	if req.Date != nil {
		if a.Date, err = clinic.ParseDate(*req.Date); err != nil {
			return nil, err
		}
	}
	if req.Time != nil {
		if a.Time, err = clinic.ParseTimeOfDay(*req.Time); err != nil {
			return nil, err
		}
	}
	if req.Notes != nil {
		a.Notes = strings.TrimSpace(*req.Notes)
	}

	moved := a.Date != before.Date || a.Time != before.Time
	revived := before.Status.Cancelled() && !a.Status.Cancelled()
	if moved || revived {
		if err := s.ensureFree(ctx, a, &a.ID); err != nil {
			return nil, err
		}
	}

	err = db.InTx(ctx, func(ctx context.Context) error {
		if len(req.Procedures) > 0 {
			h, err := s.charger.Charge(ctx, a.PatientID, a.ID, req.Procedures, a.Notes)
			if err != nil {
				return err
			}
			a.ProcedureIDs = append(a.ProcedureIDs, h.ProcedureIDs...)
		}
		return s.appts.Update(ctx, a)
	})
	if err != nil {
		return nil, err
	}
	s.notify(ctx, a)
	return a, nil
}

// CheckConflict reports whether the doctor's slot is already held by a live
// appointment.
func (s *Service) CheckConflict(ctx context.Context, doctorID, date, at string) (bool, error) {
	doc, err := uuid.Parse(doctorID)
	if err != nil {
		return false, fmt.Errorf("invalid doctor_id")
	}
	d, err := clinic.ParseDate(date)
	if err != nil {
		return false, err
	}
	t, err := clinic.ParseTimeOfDay(at)
	if err != nil {
		return false, err
	}
	return s.appts.SlotTaken(ctx, doc, d, t, nil)
}

// list loads the caller's visible appointments matching f.
func (s *Service) list(ctx context.Context, f Filter) ([]*Appointment, error) {
	scope, err := doctorScope(ctx)
	if err != nil {
		return nil, err
	}
	if scope != nil {
		f.DoctorID = scope
	}
	return s.appts.List(ctx, f)
}

func (s *Service) ListAppointments(ctx context.Context, f Filter) ([]*Appointment, error) {
	return s.list(ctx, f)
}

// pick maps core appointments back to the loaded records, keeping the core
// order.
func pick(all []*Appointment, core []clinic.Appointment) []*Appointment {
	byID := make(map[string]*Appointment, len(all))
	for _, a := range all {
		byID[a.ID.String()] = a
	}
	out := make([]*Appointment, 0, len(core))
	for _, c := range core {
		if a, ok := byID[c.ID]; ok {
			out = append(out, a)
		}
	}
	return out
}

func cores(appts []*Appointment) []clinic.Appointment {
	out := make([]clinic.Appointment, len(appts))
	for i, a := range appts {
		out[i] = a.Core()
	}
	return out
}

// TodayAppointments returns today's live appointments ordered by time.
func (s *Service) TodayAppointments(ctx context.Context) ([]*Appointment, error) {
	today := s.Today()
	appts, err := s.list(ctx, Filter{From: today, To: today})
	if err != nil {
		return nil, err
	}
	return pick(appts, clinic.Today(cores(appts), today)), nil
}

// Upcoming returns live appointments from the given day on. A zero from
// means today.
func (s *Service) Upcoming(ctx context.Context, from clinic.Date) ([]*Appointment, error) {
	if from.IsZero() {
		from = s.Today()
	}
	appts, err := s.list(ctx, Filter{From: from})
	if err != nil {
		return nil, err
	}
	return pick(appts, clinic.Upcoming(cores(appts), from)), nil
}

// Calendar lays out one month of the caller's visible appointments.
func (s *Service) Calendar(ctx context.Context, m clinic.Month) (*CalendarView, error) {
	first := clinic.Date{Year: m.Year, Month: m.Month, Day: 1}
	last := clinic.Date{Year: m.Year, Month: m.Month, Day: m.Days()}
	appts, err := s.list(ctx, Filter{From: first, To: last})
	if err != nil {
		return nil, err
	}

	grid := clinic.IndexMonth(m, cores(appts))
	today := s.Today()
	view := &CalendarView{
		Year:        m.Year,
		Month:       int(m.Month),
		Offset:      grid.Offset,
		DaysInMonth: grid.DaysInMonth,
		Total:       grid.Total(),
		Prev:        refOf(m.Prev()),
		Next:        refOf(m.Next()),
		Days:        make([]CalendarDay, grid.DaysInMonth),
	}
	if idx := grid.TodayIndex(today); idx >= 0 {
		view.TodayIndex = &idx
	}
	for d := 1; d <= grid.DaysInMonth; d++ {
		bucket := grid.Day(d)
		view.Days[d-1] = CalendarDay{
			Day:          d,
			Date:         bucket.Date,
			IsToday:      grid.IsToday(d, today),
			Appointments: pick(appts, bucket.Appointments),
		}
	}
	return view, nil
}

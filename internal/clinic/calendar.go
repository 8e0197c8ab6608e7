package clinic

import (
	"fmt"
	"sort"
	"time"
)

// Month identifies one calendar month.
type Month struct {
	Year  int
	Month time.Month
}

// NewMonth validates a year/month pair.
func NewMonth(year, month int) (Month, error) {
	if month < 1 || month > 12 {
		return Month{}, fmt.Errorf("month must be between 1 and 12, got %d", month)
	}
	if year < 1 || year > 9999 {
		return Month{}, fmt.Errorf("year out of range: %d", year)
	}
	return Month{Year: year, Month: time.Month(month)}, nil
}

func MonthOf(d Date) Month { return Month{Year: d.Year, Month: d.Month} }

// Add moves n months forward (or backward when n is negative), carrying into
// the year.
func (m Month) Add(n int) Month {
	t := time.Date(m.Year, m.Month+time.Month(n), 1, 0, 0, 0, 0, time.UTC)
	return Month{Year: t.Year(), Month: t.Month()}
}

func (m Month) Next() Month { return m.Add(1) }
func (m Month) Prev() Month { return m.Add(-1) }

// Days returns the number of days in the month, including leap Februaries.
func (m Month) Days() int {
	return time.Date(m.Year, m.Month+1, 0, 0, 0, 0, 0, time.UTC).Day()
}

// FirstWeekday is the weekday of day 1, Sunday being 0.
func (m Month) FirstWeekday() time.Weekday {
	return time.Date(m.Year, m.Month, 1, 0, 0, 0, 0, time.UTC).Weekday()
}

func (m Month) Contains(d Date) bool {
	return d.Year == m.Year && d.Month == m.Month
}

func (m Month) String() string {
	return fmt.Sprintf("%04d-%02d", m.Year, int(m.Month))
}

// DayBucket holds the non-cancelled appointments of one day ordered by time.
type DayBucket struct {
	Date         Date
	Appointments []Appointment
}

func (b DayBucket) Len() int { return len(b.Appointments) }

// MonthGrid lays a month out for a Sunday-first seven column calendar.
type MonthGrid struct {
	Month       Month
	Offset      int
	DaysInMonth int
	// Days[d-1] is the bucket of day d.
	Days []DayBucket
}

// Cell is one square of the grid. Day is zero for the leading blanks.
type Cell struct {
	Day          int
	Appointments []Appointment
}

// IndexMonth buckets appts into the days of m. Appointments outside the month
// and cancelled appointments are left out; the input slice is not modified.
func IndexMonth(m Month, appts []Appointment) MonthGrid {
	n := m.Days()
	g := MonthGrid{
		Month:       m,
		Offset:      int(m.FirstWeekday()),
		DaysInMonth: n,
		Days:        make([]DayBucket, n),
	}
	for i := range g.Days {
		g.Days[i].Date = Date{Year: m.Year, Month: m.Month, Day: i + 1}
	}
	for _, a := range appts {
		if !m.Contains(a.Date) || a.Date.Day < 1 || a.Date.Day > n {
			continue
		}
		b := &g.Days[a.Date.Day-1]
		if inBucket(a, b.Date) {
			b.Appointments = append(b.Appointments, a)
		}
	}
	for i := range g.Days {
		sortByTime(g.Days[i].Appointments)
	}
	return g
}

// BucketFor returns the non-cancelled appointments on d ordered by time,
// ties kept in input order.
func BucketFor(d Date, appts []Appointment) []Appointment {
	var out []Appointment
	for _, a := range appts {
		if inBucket(a, d) {
			out = append(out, a)
		}
	}
	sortByTime(out)
	return out
}

// inBucket reports whether a belongs in the bucket of day d.
func inBucket(a Appointment, d Date) bool {
	return a.Date == d && !a.Status.Cancelled()
}

// Day returns the bucket for day-of-month d, or an empty bucket when d is out
// of range.
func (g MonthGrid) Day(d int) DayBucket {
	if d < 1 || d > len(g.Days) {
		return DayBucket{}
	}
	return g.Days[d-1]
}

func (g MonthGrid) CellCount() int { return g.Offset + g.DaysInMonth }

// Cells flattens the grid into Offset blanks followed by one cell per day.
func (g MonthGrid) Cells() []Cell {
	cells := make([]Cell, g.CellCount())
	for i, b := range g.Days {
		cells[g.Offset+i] = Cell{Day: i + 1, Appointments: b.Appointments}
	}
	return cells
}

// Total counts every bucketed appointment in the month.
func (g MonthGrid) Total() int {
	n := 0
	for _, b := range g.Days {
		n += len(b.Appointments)
	}
	return n
}

// IsToday reports whether day-of-month d of this grid is today.
func (g MonthGrid) IsToday(d int, today Date) bool {
	return g.Month.Contains(today) && today.Day == d
}

// TodayIndex is the cell index of today, or -1 when today lies in another
// month.
func (g MonthGrid) TodayIndex(today Date) int {
	if !g.Month.Contains(today) {
		return -1
	}
	return g.Offset + today.Day - 1
}

func sortByTime(appts []Appointment) {
	sort.SliceStable(appts, func(i, j int) bool {
		return appts[i].Time < appts[j].Time
	})
}

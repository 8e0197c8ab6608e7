package clinic

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func appt(id, date, tm string, st Status) Appointment {
	return Appointment{ID: id, PatientID: "p-" + id, DoctorID: "d1", Date: MustDate(date), Time: MustTime(tm), Status: st}
}

func TestMonth_LeapFebruary(t *testing.T) {
	m := Month{Year: 2024, Month: time.February}
	assert.Equal(t, time.Thursday, m.FirstWeekday())

	g := IndexMonth(m, nil)
	assert.Equal(t, 4, g.Offset)
	assert.Equal(t, 29, g.DaysInMonth)
	assert.Equal(t, 33, g.CellCount())
	assert.Len(t, g.Cells(), 33)
}

func TestMonth_Days(t *testing.T) {
	tests := []struct {
		year  int
		month time.Month
		want  int
	}{
		{2023, time.February, 28},
		{2024, time.February, 29},
		{1900, time.February, 28},
		{2000, time.February, 29},
		{2024, time.April, 30},
		{2024, time.December, 31},
	}
	for _, tt := range tests {
		m := Month{Year: tt.year, Month: tt.month}
		assert.Equal(t, tt.want, m.Days(), "%s", m)
	}
}

func TestMonth_NavigationCarriesYear(t *testing.T) {
	dec24 := Month{Year: 2024, Month: time.December}
	assert.Equal(t, Month{Year: 2025, Month: time.January}, dec24.Next())

	jan25 := Month{Year: 2025, Month: time.January}
	assert.Equal(t, Month{Year: 2024, Month: time.December}, jan25.Prev())

	assert.Equal(t, Month{Year: 2023, Month: time.November}, dec24.Add(-13))
	assert.Equal(t, dec24, dec24.Next().Prev())
}

func TestNewMonth_Validation(t *testing.T) {
	_, err := NewMonth(2024, 13)
	assert.Error(t, err)
	_, err = NewMonth(2024, 0)
	assert.Error(t, err)
	m, err := NewMonth(2024, 2)
	require.NoError(t, err)
	assert.Equal(t, "2024-02", m.String())
}

func TestIndexMonth_GridBoundsEveryMonth(t *testing.T) {
	// one full 400-year Gregorian cycle
	m := Month{Year: 2000, Month: time.January}
	for i := 0; i < 400*12; i++ {
		g := IndexMonth(m, nil)
		if g.Offset < 0 || g.Offset > 6 {
			t.Fatalf("%s: offset %d out of range", m, g.Offset)
		}
		if len(g.Cells()) != g.Offset+g.DaysInMonth {
			t.Fatalf("%s: cell count %d != %d+%d", m, len(g.Cells()), g.Offset, g.DaysInMonth)
		}
		first := time.Date(m.Year, m.Month, 1, 0, 0, 0, 0, time.UTC)
		if int(first.Weekday()) != g.Offset {
			t.Fatalf("%s: offset %d, weekday %d", m, g.Offset, first.Weekday())
		}
		m = m.Next()
	}
}

func TestIndexMonth_BucketsAndOrders(t *testing.T) {
	appts := []Appointment{
		appt("a", "2024-02-15", "10:00", StatusConfirmed),
		appt("b", "2024-02-15", "09:00", StatusDone),
		appt("c", "2024-02-15", "08:00", StatusCancelled),
		appt("d", "2024-02-29", "12:00", StatusConfirmed),
		appt("e", "2024-03-01", "12:00", StatusConfirmed),
		appt("f", "2024-02-15", "09:00", StatusConfirmed),
	}

	g := IndexMonth(Month{Year: 2024, Month: time.February}, appts)

	day15 := g.Day(15)
	require.Equal(t, 3, day15.Len())
	assert.Equal(t, "b", day15.Appointments[0].ID)
	assert.Equal(t, "f", day15.Appointments[1].ID, "ties keep input order")
	assert.Equal(t, "a", day15.Appointments[2].ID)
	assert.Equal(t, "2024-02-15", day15.Date.String())

	assert.Equal(t, 1, g.Day(29).Len())
	assert.Equal(t, 4, g.Total())
	assert.Equal(t, 0, g.Day(30).Len())

	cells := g.Cells()
	assert.Equal(t, 0, cells[0].Day)
	assert.Equal(t, 1, cells[g.Offset].Day)
	assert.Len(t, cells[g.Offset+14].Appointments, 3)

	// input untouched
	assert.Equal(t, "a", appts[0].ID)
	assert.Equal(t, StatusCancelled, appts[2].Status)
}

func TestIndexMonth_NeverIncludesCancelled(t *testing.T) {
	appts := []Appointment{
		appt("x", "2024-05-01", "09:00", StatusCancelled),
		appt("y", "2024-05-02", "09:00", StatusCancelled),
	}
	g := IndexMonth(Month{Year: 2024, Month: time.May}, appts)
	assert.Equal(t, 0, g.Total())
	for _, c := range g.Cells() {
		assert.Empty(t, c.Appointments)
	}
}

func TestIndexMonth_AgreesWithBucketFor(t *testing.T) {
	m := Month{Year: 2024, Month: time.February}
	appts := []Appointment{
		appt("a", "2024-02-01", "10:00", StatusConfirmed),
		appt("b", "2024-02-01", "08:30", StatusDone),
		appt("c", "2024-02-10", "09:00", StatusCancelled),
		appt("d", "2024-02-29", "17:00", StatusDone),
		appt("e", "2024-02-29", "17:00", StatusConfirmed),
		appt("f", "2023-02-10", "09:00", StatusConfirmed),
		appt("g", "2024-03-01", "09:00", StatusConfirmed),
	}

	g := IndexMonth(m, appts)
	for day := 1; day <= m.Days(); day++ {
		d := Date{Year: 2024, Month: time.February, Day: day}
		assert.Equal(t, BucketFor(d, appts), g.Day(day).Appointments, "day %d", day)
	}
}

func TestMonthGrid_Today(t *testing.T) {
	g := IndexMonth(Month{Year: 2024, Month: time.February}, nil)

	today := MustDate("2024-02-10")
	assert.True(t, g.IsToday(10, today))
	assert.False(t, g.IsToday(11, today))
	assert.Equal(t, 4+9, g.TodayIndex(today))

	assert.Equal(t, -1, g.TodayIndex(MustDate("2024-03-10")))
	assert.False(t, g.IsToday(10, MustDate("2023-02-10")))
}

func TestParseDateAndTime(t *testing.T) {
	d, err := ParseDate("2024-02-29")
	require.NoError(t, err)
	assert.Equal(t, Date{Year: 2024, Month: time.February, Day: 29}, d)

	_, err = ParseDate("2023-02-29")
	assert.Error(t, err)
	_, err = ParseDate("29/02/2024")
	assert.Error(t, err)

	tm, err := ParseTimeOfDay("09:05")
	require.NoError(t, err)
	assert.Equal(t, 9, tm.Hour())
	assert.Equal(t, 5, tm.Minute())
	assert.Equal(t, "09:05", tm.String())

	_, err = ParseTimeOfDay("25:00")
	assert.Error(t, err)
}

func TestDate_Compare(t *testing.T) {
	a := MustDate("2024-12-31")
	b := MustDate("2025-01-01")
	assert.Equal(t, -1, a.Compare(b))
	assert.Equal(t, 1, b.Compare(a))
	assert.Equal(t, 0, a.Compare(a))
	assert.True(t, a.Before(b))
}

func TestParseStatus(t *testing.T) {
	st, err := ParseStatus("")
	require.NoError(t, err)
	assert.Equal(t, StatusConfirmed, st)

	_, err = ParseStatus("postponed")
	assert.Error(t, err)

	assert.False(t, Status("postponed").Cancelled())
	assert.True(t, StatusCancelled.Cancelled())
}

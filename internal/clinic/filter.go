package clinic

import "sort"

// Today is the bucket of today's date: non-cancelled, ordered by time.
func Today(appts []Appointment, today Date) []Appointment {
	return BucketFor(today, appts)
}

// Active drops cancelled appointments and keeps input order.
func Active(appts []Appointment) []Appointment {
	var out []Appointment
	for _, a := range appts {
		if !a.Status.Cancelled() {
			out = append(out, a)
		}
	}
	return out
}

// Upcoming returns non-cancelled appointments on or after from, ordered by
// date then time.
func Upcoming(appts []Appointment, from Date) []Appointment {
	var out []Appointment
	for _, a := range Active(appts) {
		if !a.Date.Before(from) {
			out = append(out, a)
		}
	}
	sort.SliceStable(out, func(i, j int) bool {
		if c := out[i].Date.Compare(out[j].Date); c != 0 {
			return c < 0
		}
		return out[i].Time < out[j].Time
	})
	return out
}

func ForDoctor(appts []Appointment, doctorID string) []Appointment {
	var out []Appointment
	for _, a := range appts {
		if a.DoctorID == doctorID {
			out = append(out, a)
		}
	}
	return out
}

func ForPatient(appts []Appointment, patientID string) []Appointment {
	var out []Appointment
	for _, a := range appts {
		if a.PatientID == patientID {
			out = append(out, a)
		}
	}
	return out
}

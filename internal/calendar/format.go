package calendar

import (
	"fmt"
	"strings"
	"time"
)

var weekdayNames = [...]string{"Domingo", "Lunes", "Martes", "Miércoles", "Jueves", "Viernes", "Sábado"}

var typeLabels = map[AppointmentType]string{
	TypeConsultation: "Consulta",
	TypeVaccination:  "Vacunación",
	TypeSurgery:      "Cirugía",
	TypeGrooming:     "Peluquería",
	TypeEmergency:    "Urgencia",
	TypeDental:       "Limpieza dental",
	TypeFollowUp:     "Control",
}

// WeekdayName returns the Spanish weekday name.
func WeekdayName(d time.Weekday) string {
	return weekdayNames[d]
}

// Clock12 renders 14:30 as "2:30 PM".
func Clock12(t time.Time) string {
	return t.Format("3:04 PM")
}

// DayLabel renders a day relative to today: Hoy, Mañana or "Jueves 15/10".
func DayLabel(day, today time.Time) string {
	dy, dm, dd := day.Date()
	ty, tm, td := today.Date()
	dayOnly := time.Date(dy, dm, dd, 0, 0, 0, 0, time.UTC)
	todayOnly := time.Date(ty, tm, td, 0, 0, 0, 0, time.UTC)
	switch dayOnly.Sub(todayOnly) {
	case 0:
		return "Hoy"
	case 24 * time.Hour:
		return "Mañana"
	}
	return fmt.Sprintf("%s %02d/%02d", WeekdayName(day.Weekday()), dd, int(dm))
}

// SlotDisplay renders a slot on a day, e.g. "Mañana 9:00 AM".
func SlotDisplay(day, today time.Time, slot TimeSlot) string {
	start, _, err := slot.On(day)
	if err != nil {
		return DayLabel(day, today) + " " + slot.Start
	}
	return DayLabel(day, today) + " " + Clock12(start)
}

// TypeLabel returns the Spanish label of an appointment type.
func TypeLabel(kind AppointmentType) string {
	if label, ok := typeLabels[kind]; ok {
		return label
	}
	return "Consulta"
}

// ConfirmationText is the message sent to the client after booking over a
// channel that cannot show the in-dialogue confirmation (voice).
func ConfirmationText(clinicName string, appt Appointment, loc *time.Location) string {
	start := appt.StartsAt.In(loc)
	var b strings.Builder
	fmt.Fprintf(&b, "Cita confirmada en %s\n", clinicName)
	fmt.Fprintf(&b, "Fecha: %s\n", start.Format("02/01/2006"))
	fmt.Fprintf(&b, "Hora: %s\n", start.Format("03:04 PM"))
	fmt.Fprintf(&b, "Tipo: %s\n", TypeLabel(appt.Type))
	b.WriteString("\nTe esperamos.")
	return b.String()
}

// SpokenTime renders a time for speech: "10 de la mañana", "3 y media de la tarde".
func SpokenTime(t time.Time) string {
	hour := t.Hour()
	var period string
	switch {
	case hour < 12:
		period = "de la mañana"
	case hour < 18:
		period = "de la tarde"
	default:
		period = "de la noche"
	}
	h12 := hour % 12
	if h12 == 0 {
		h12 = 12
	}
	switch t.Minute() {
	case 0:
		return fmt.Sprintf("%d %s", h12, period)
	case 30:
		return fmt.Sprintf("%d y media %s", h12, period)
	case 15:
		return fmt.Sprintf("%d y cuarto %s", h12, period)
	default:
		return fmt.Sprintf("%d y %d %s", h12, t.Minute(), period)
	}
}

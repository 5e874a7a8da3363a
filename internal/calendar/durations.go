package calendar

import (
	"strings"

	"github.com/wolfman30/vetclinic-ai-platform/internal/clinic"
)

// DefaultDurationMinutes applies to types without an entry.
const DefaultDurationMinutes = 30

var defaultDurations = map[AppointmentType]int{
	TypeConsultation: 30,
	TypeVaccination:  15,
	TypeSurgery:      60,
	TypeGrooming:     45,
	TypeEmergency:    30,
	TypeDental:       60,
	TypeFollowUp:     15,
}

// ordered so that more specific matches win
var typeKeywords = []struct {
	kind  AppointmentType
	words []string
}{
	{TypeEmergency, []string{"urgente", "urgencia", "emergencia"}},
	{TypeSurgery, []string{"cirugía", "cirugia", "operación", "operacion", "operar", "castración", "castracion", "esterilización", "esterilizacion"}},
	{TypeDental, []string{"dental", "dientes", "limpieza dental", "sarro"}},
	{TypeVaccination, []string{"vacuna", "vacunación", "vacunacion", "refuerzo"}},
	{TypeGrooming, []string{"peluquería", "peluqueria", "baño", "bano", "corte de pelo", "grooming"}},
	{TypeFollowUp, []string{"control", "revisión de puntos", "revision de puntos", "seguimiento"}},
}

// InferType guesses the appointment type from the consultation reason.
func InferType(reason string) AppointmentType {
	text := strings.ToLower(reason)
	for _, entry := range typeKeywords {
		for _, w := range entry.words {
			if strings.Contains(text, w) {
				return entry.kind
			}
		}
	}
	return TypeConsultation
}

// DurationFor returns the minutes booked for a type, preferring clinic overrides.
func DurationFor(cfg *clinic.Config, kind AppointmentType) int {
	if minutes, ok := cfg.DurationOverride(string(kind)); ok {
		return minutes
	}
	if minutes, ok := defaultDurations[kind]; ok {
		return minutes
	}
	return DefaultDurationMinutes
}

// DurationForReason combines InferType and DurationFor.
func DurationForReason(cfg *clinic.Config, reason string) int {
	return DurationFor(cfg, InferType(reason))
}

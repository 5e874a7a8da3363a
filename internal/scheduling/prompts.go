package scheduling

import (
	"fmt"
	"strings"
	"time"

	"github.com/wolfman30/vetclinic-ai-platform/internal/calendar"
)

var questions = map[string]string{
	FieldSpecies:       "¿Qué tipo de mascota es? (perro, gato, otro)",
	FieldReason:        "¿Cuál es el motivo de la consulta?",
	FieldPreferredDate: "¿Para qué día te gustaría la cita? (por ejemplo: mañana, el jueves o 12/03)",
}

// QuestionFor returns the single clarifying question for a missing field.
func QuestionFor(field string) string {
	if q, ok := questions[field]; ok {
		return q
	}
	return questions[FieldReason]
}

// SlotList renders offered slots as a numbered list.
func SlotList(day, today time.Time, slots []calendar.TimeSlot) string {
	lines := make([]string, 0, len(slots))
	for i, slot := range slots {
		lines = append(lines, fmt.Sprintf("%d. %s", i+1, calendar.SlotDisplay(day, today, slot)))
	}
	return strings.Join(lines, "\n")
}

func answerHint(n int) string {
	switch n {
	case 1:
		return "(responde 1)"
	case 2:
		return "(responde 1 o 2)"
	case 3:
		return "(responde 1, 2 o 3)"
	}
	return fmt.Sprintf("(responde un número del 1 al %d)", n)
}

// OfferText presents a fresh slot list.
func OfferText(day, today time.Time, slots []calendar.TimeSlot) string {
	return fmt.Sprintf("Tengo disponibilidad:\n\n%s\n\n¿Cuál te funciona mejor? %s",
		SlotList(day, today, slots), answerHint(len(slots)))
}

// RepromptText repeats an unchanged offer after an unmatched reply.
func RepromptText(day, today time.Time, slots []calendar.TimeSlot) string {
	return fmt.Sprintf("No entendí tu selección. Por favor responde con el número:\n\n%s\n\n¿Cuál prefieres? %s",
		SlotList(day, today, slots), answerHint(len(slots)))
}

// ReofferText lists the same offer again after the caller declined a pick.
func ReofferText(day, today time.Time, slots []calendar.TimeSlot) string {
	return fmt.Sprintf("Entendido. Estas son las opciones disponibles:\n\n%s\n\n¿Cuál te funciona mejor?",
		SlotList(day, today, slots))
}

// AlternativeText explains that the requested day is full and offers the
// next day with space.
func AlternativeText(requested, next, today time.Time, slots []calendar.TimeSlot) string {
	first := calendar.SlotDisplay(next, today, slots[0])
	return fmt.Sprintf("No hay disponibilidad el %s. El próximo horario disponible es %s.\n\n%s\n\n¿Te sirve alguna? %s",
		requested.Format("02/01"), first, SlotList(next, today, slots), answerHint(len(slots)))
}

// UnavailableText is used when the whole search horizon is full.
const UnavailableText = "Lo siento, no hay disponibilidad en los próximos días.\nPor favor llama directamente a la clínica para agendar."

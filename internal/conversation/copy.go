package conversation

import (
	"fmt"
	"strings"
	"time"

	"github.com/wolfman30/vetclinic-ai-platform/internal/calendar"
	"github.com/wolfman30/vetclinic-ai-platform/internal/clinic"
)

// Dialogue copy. Everything the assistant says lives here so the handlers
// read as control flow.
const (
	emergencyLeadDefault = "Entiendo que puede ser una emergencia."
	emergencyLeadUrgent  = "Parece que puede ser urgente."

	emergencyConfirmQuestion = "Para confirmar: ¿la vida de tu mascota está en riesgo en este momento?\n\nResponde SÍ o NO"
	emergencyAskAgain        = "Por favor responde SÍ si es una emergencia real, o NO si no lo es."
	emergencyRegistered      = "🚨 EMERGENCIA REGISTRADA\n\n" +
		"El veterinario ha sido notificado y te contactará en los próximos minutos.\n\n" +
		"Mientras tanto:\n" +
		"• Mantén a tu mascota tranquila\n" +
		"• No le des medicamentos sin indicación\n" +
		"• Ten a la mano cualquier información relevante\n\n" +
		"¿En qué dirección te encuentras?"
	emergencyRevoked      = "Lo siento, el acceso a emergencias está restringido.\nPor favor llama directamente a la clínica."
	emergencyLogged       = "Tu mensaje ha sido registrado. El veterinario revisará toda la información."
	emergencyNotEmergency = "Entendido, no es una emergencia.\n\n¿Te gustaría agendar una cita regular? "
	escalatedNotePrefix   = "[Durante emergencia] "

	schedulingLead   = "Con gusto te ayudo a agendar. "
	confirmAskAgain  = "Por favor responde Sí para confirmar o No para ver otras opciones."
	slotJustTaken    = "Lo siento, ese horario acaba de ser reservado."
	slotNoLongerFree = "Lo siento, ese horario ya no está disponible. "

	unclearReply    = "No estoy seguro de entender. ¿Te gustaría agendar una cita?\n\nEscribe 'sí' para agendar o describe qué necesitas."
	illegalReply    = "Disculpa, no entendí. ¿Puedes repetirlo de otra forma?"
	anythingElse    = "¿Hay algo más en lo que pueda ayudarte?"
	hoursFollowUp   = "¿Te gustaría agendar una cita?"
	followUpWorried = "Gracias por la información. He notificado al veterinario sobre estos síntomas para que los revise.\n\nTe contactaremos pronto."
	followUpFine    = "Gracias por la actualización. Nos alegra saber que va bien.\n\nSi notas cualquier cambio preocupante, escríbenos de inmediato."

	goodbyeChat        = "Gracias por escribirnos. ¡Que tengas un excelente día! 🐾"
	goodbyeVoice       = "Gracias por llamar. ¡Que tenga un excelente día!"
	goodbyeVoiceBooked = "Gracias por llamar. Le enviaremos un recordatorio antes de su cita. ¡Que tenga un excelente día!"

	reminderNudge         = "Hola, ¿sigues ahí? Quedamos a mitad de tu solicitud. Responde cuando quieras y la retomamos."
	reminderFollowUpNudge = "Hola, ¿cómo sigue %s? Cuando puedas, cuéntanos."
)

func greetingMenu(clinicName string) string {
	return fmt.Sprintf("Hola, bienvenido a %s. Soy el asistente virtual.\n\n"+
		"¿En qué puedo ayudarte hoy?\n"+
		"• Agendar una cita\n"+
		"• Consultar horarios\n"+
		"• Reportar una emergencia", clinicName)
}

func greetingSchedulingLead(clinicName string) string {
	return fmt.Sprintf("Hola, bienvenido a %s. Con gusto te ayudo a agendar una cita.\n\n", clinicName)
}

func greetingShort(clinicName string) string {
	return fmt.Sprintf("Hola, bienvenido a %s. ", clinicName)
}

func emergencyConfirm(lead string) string {
	return lead + "\n" + emergencyConfirmQuestion
}

func emergencyUnreached(cfg *clinic.Config) string {
	if cfg != nil && cfg.Phone != "" {
		return fmt.Sprintf("Si no recibes una llamada en los próximos minutos, llama directamente a la clínica al %s.", cfg.Phone)
	}
	return "Si no recibes una llamada en los próximos minutos, llama directamente a la clínica."
}

func reasonLine(reason string) string {
	reason = strings.TrimSpace(reason)
	if reason == "" {
		return "Consulta"
	}
	if r := []rune(reason); len(r) > 50 {
		return string(r[:50]) + "..."
	}
	return reason
}

func understoodLead(reason string) string {
	return "Entendido: " + reasonLine(reason) + "\n\n"
}

func confirmBookingText(display, reason string) string {
	return fmt.Sprintf("Perfecto. Confirmo tu cita:\n\n📅 %s\n📋 %s\n\n¿Confirmas esta cita? (Sí/No)", display, reasonLine(reason))
}

func bookedText(display string) string {
	return fmt.Sprintf("✓ Cita confirmada.\n\n📅 %s\n\nTe esperamos. Si necesitas cancelar o cambiar, escríbenos con tiempo.", display)
}

func goodbye(channel Channel, outcome string) string {
	if channel == ChannelVoice {
		if outcome == OutcomeAppointmentScheduled {
			return goodbyeVoiceBooked
		}
		return goodbyeVoice
	}
	return goodbyeChat
}

// hoursText lists the week's opening hours, Monday first.
func hoursText(cfg *clinic.Config) string {
	var b strings.Builder
	fmt.Fprintf(&b, "Nuestro horario de atención en %s:\n\n", cfg.Name)
	for i := 1; i <= 7; i++ {
		day := time.Weekday(i % 7)
		hours := cfg.BusinessHours.GetHoursForDay(day)
		if hours == nil || hours.Open == "" {
			fmt.Fprintf(&b, "%s: Cerrado\n", calendar.WeekdayName(day))
			continue
		}
		fmt.Fprintf(&b, "%s: %s - %s\n", calendar.WeekdayName(day), hours.Open, hours.Close)
	}
	if cfg.Phone != "" {
		fmt.Fprintf(&b, "\nTeléfono: %s\n", cfg.Phone)
	}
	b.WriteString("\n" + hoursFollowUp)
	return b.String()
}

func followUpNudge(petName string) string {
	if strings.TrimSpace(petName) == "" {
		petName = "tu mascota"
	}
	return fmt.Sprintf(reminderFollowUpNudge, petName)
}

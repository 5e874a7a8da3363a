package notify

import (
	"context"
	"errors"
	"fmt"
	"html"
	"strings"
	"time"

	"github.com/wolfman30/vetclinic-ai-platform/internal/clinic"
	"github.com/wolfman30/vetclinic-ai-platform/internal/events"
	"github.com/wolfman30/vetclinic-ai-platform/pkg/logging"
)

// ClinicConfigStore retrieves clinic configuration.
type ClinicConfigStore interface {
	Get(ctx context.Context, clinicID string) (*clinic.Config, error)
}

// Service emails clinic staff a digest of emergencies and worrying
// follow-up replies. It is an outbox delivery handler.
type Service struct {
	email   EmailSender
	clinics ClinicConfigStore
	logger  *logging.Logger
}

func NewService(email EmailSender, clinics ClinicConfigStore, logger *logging.Logger) *Service {
	if logger == nil {
		logger = logging.Default()
	}
	return &Service{email: email, clinics: clinics, logger: logger}
}

// Types lists the outbox events the service reacts to.
func (s *Service) Types() []string {
	return []string{events.TypeEmergencyEscalated, events.TypeFollowUpEscalated}
}

// Handle implements events.DeliveryHandler.
func (s *Service) Handle(ctx context.Context, entry events.OutboxEntry) error {
	if s.email == nil || s.clinics == nil {
		return nil
	}
	if entry.Type != events.TypeEmergencyEscalated && entry.Type != events.TypeFollowUpEscalated {
		return nil
	}
	cfg, to, err := s.recipients(ctx, entry.ClinicID)
	if errors.Is(err, errNoRecipients) {
		return nil
	}
	if err != nil {
		return fmt.Errorf("notify: %s: %w", entry.Type, err)
	}

	var msg EmailMessage
	switch entry.Type {
	case events.TypeEmergencyEscalated:
		var evt events.EmergencyEscalatedV1
		if err := entry.Decode(&evt); err != nil {
			return err
		}
		msg = emergencyDigest(cfg, evt)
	case events.TypeFollowUpEscalated:
		var evt events.FollowUpEscalatedV1
		if err := entry.Decode(&evt); err != nil {
			return err
		}
		msg = followUpDigest(cfg, evt)
	}
	return s.deliver(ctx, entry.ClinicID, to, msg)
}

var errNoRecipients = errors.New("notify: no recipients")

func (s *Service) recipients(ctx context.Context, clinicID string) (*clinic.Config, []string, error) {
	cfg, err := s.clinics.Get(ctx, clinicID)
	if err != nil {
		return nil, nil, fmt.Errorf("get clinic config: %w", err)
	}
	if !cfg.Notifications.EmailEnabled {
		return nil, nil, errNoRecipients
	}
	to := cfg.Notifications.EmailRecipients
	if len(to) == 0 && cfg.Email != "" {
		to = []string{cfg.Email}
	}
	if len(to) == 0 {
		return nil, nil, errNoRecipients
	}
	return cfg, to, nil
}

func (s *Service) deliver(ctx context.Context, clinicID string, to []string, msg EmailMessage) error {
	var errs []error
	for _, addr := range to {
		m := msg
		m.To = addr
		if err := s.email.Send(ctx, m); err != nil {
			s.logger.Warn("clinic email failed", "clinic_id", clinicID, "to", addr, "error", err)
			errs = append(errs, err)
		}
	}
	// the entry is retried only when nobody got the email
	if len(errs) == len(to) {
		return errors.Join(errs...)
	}
	return nil
}

func emergencyDigest(cfg *clinic.Config, evt events.EmergencyEscalatedV1) EmailMessage {
	pet := petLabel(evt.PetName, evt.PetSpecies)
	lines := []string{
		"Se registró una emergencia confirmada por el cliente.",
		"",
		"Teléfono: " + evt.ClientPhone,
		"Mascota: " + pet,
		"Prioridad: " + evt.Priority,
		"Descripción: " + truncate(evt.Description, 300),
	}
	if len(evt.Keywords) > 0 {
		lines = append(lines, "Palabras clave: "+strings.Join(evt.Keywords, ", "))
	}
	lines = append(lines,
		fmt.Sprintf("Alertas enviadas: %d", evt.AlertsSent),
		"Hora: "+localTime(cfg, evt.RaisedAt),
	)
	if !evt.Reached {
		lines = append(lines, "", "ATENCIÓN: ningún contacto de guardia confirmó la recepción de la alerta.")
	}
	return render("🚨 Emergencia registrada: "+pet, lines)
}

func followUpDigest(cfg *clinic.Config, evt events.FollowUpEscalatedV1) EmailMessage {
	pet := petLabel(evt.PetName, "")
	lines := []string{
		"Un cliente respondió al seguimiento con síntomas que requieren revisión.",
		"",
		"Teléfono: " + evt.ClientPhone,
		"Mascota: " + pet,
		"Respuesta: " + truncate(evt.Response, 500),
		"Hora: " + localTime(cfg, evt.EscalatedAt),
	}
	return render("Seguimiento con síntomas: "+pet, lines)
}

func render(subject string, lines []string) EmailMessage {
	var b strings.Builder
	b.WriteString("<div>")
	for _, l := range lines {
		if l == "" {
			b.WriteString("<br>")
			continue
		}
		b.WriteString("<p>" + html.EscapeString(l) + "</p>")
	}
	b.WriteString("</div>")
	return EmailMessage{Subject: subject, Body: strings.Join(lines, "\n"), HTML: b.String()}
}

func petLabel(name, species string) string {
	switch {
	case name != "" && species != "":
		return name + " (" + species + ")"
	case name != "":
		return name
	case species != "":
		return species
	}
	return "sin nombre"
}

func localTime(cfg *clinic.Config, t time.Time) string {
	if t.IsZero() {
		return "-"
	}
	return t.In(cfg.Location()).Format("02/01/2006 15:04")
}

func truncate(s string, maxLen int) string {
	r := []rune(strings.TrimSpace(s))
	if len(r) <= maxLen {
		return string(r)
	}
	return string(r[:maxLen]) + "..."
}

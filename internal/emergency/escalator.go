package emergency

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"

	"github.com/wolfman30/vetclinic-ai-platform/internal/clinic"
	"github.com/wolfman30/vetclinic-ai-platform/internal/observability/metrics"
	"github.com/wolfman30/vetclinic-ai-platform/pkg/logging"
)

var tracer = otel.Tracer("vetclinic.internal.emergency")

// Notifier delivers a text to a phone over a named channel (sms, whatsapp).
type Notifier interface {
	SendMessage(ctx context.Context, phone, text, channel string) error
}

// channelOrder is tried per contact until one succeeds.
var channelOrder = []Channel{ChannelWhatsApp, ChannelSMS}

type alertIDKey struct{}

// ContextWithAlertID tags an outbound send with the alert it belongs to so
// transports can request delivery receipts for it.
func ContextWithAlertID(ctx context.Context, id string) context.Context {
	return context.WithValue(ctx, alertIDKey{}, id)
}

// AlertIDFromContext returns the alert id set by ContextWithAlertID.
func AlertIDFromContext(ctx context.Context) (string, bool) {
	id, ok := ctx.Value(alertIDKey{}).(string)
	return id, ok && id != ""
}

// Escalator fans a message out to a clinic's on-call contacts.
type Escalator struct {
	notifier Notifier
	metrics  *metrics.ConversationMetrics
	logger   *logging.Logger
	now      func() time.Time
}

// NewEscalator wires an escalator. metrics may be nil.
func NewEscalator(notifier Notifier, m *metrics.ConversationMetrics, logger *logging.Logger) *Escalator {
	if notifier == nil {
		panic("emergency: notifier cannot be nil")
	}
	if logger == nil {
		logger = logging.Default()
	}
	return &Escalator{notifier: notifier, metrics: m, logger: logger, now: time.Now}
}

// Escalate walks contacts by ascending priority. Each contact is tried on
// WhatsApp, then SMS. For high and critical urgency the walk stops at the
// first contact reached; otherwise every contact is notified. A failing
// contact never stops the walk. reached reports whether any alert was sent.
func (e *Escalator) Escalate(ctx context.Context, eventID string, contacts []clinic.Contact, message, urgency string) (alerts []Alert, reached bool) {
	ctx, span := tracer.Start(ctx, "emergency.escalate")
	defer span.End()

	stopEarly := urgency == UrgencyHigh || urgency == UrgencyCritical
	for _, contact := range clinic.SortContacts(contacts) {
		if strings.TrimSpace(contact.Phone) == "" {
			continue
		}
		for _, ch := range channelOrder {
			alert := e.send(ctx, eventID, contact, ch, message)
			alerts = append(alerts, alert)
			if alert.Status == AlertSent {
				reached = true
				break
			}
		}
		if reached && stopEarly {
			break
		}
	}

	span.SetAttributes(
		attribute.Int("vetclinic.alerts", len(alerts)),
		attribute.Bool("vetclinic.reached", reached),
	)
	if !reached {
		e.logger.Error("emergency escalation reached no contact", "event_id", eventID, "contacts", len(contacts))
	}
	return alerts, reached
}

func (e *Escalator) send(ctx context.Context, eventID string, contact clinic.Contact, ch Channel, message string) Alert {
	alert := Alert{
		ID:        uuid.NewString(),
		EventID:   eventID,
		Contact:   contact,
		Channel:   ch,
		Message:   message,
		Status:    AlertPending,
		CreatedAt: e.now().UTC(),
	}
	err := e.notifier.SendMessage(ContextWithAlertID(ctx, alert.ID), contact.Phone, message, string(ch))
	if err != nil {
		alert.Status = AlertFailed
		alert.Error = err.Error()
		e.logger.Warn("emergency alert failed",
			"event_id", eventID,
			"contact", contact.Name,
			"channel", string(ch),
			"error", err,
		)
	} else {
		sent := e.now().UTC()
		alert.Status = AlertSent
		alert.SentAt = &sent
	}
	e.metrics.ObserveAlert(string(ch), string(alert.Status))
	return alert
}

// AlertText renders the staff alert for an event.
func AlertText(ev Event) string {
	pet := ev.PetSpecies
	if strings.TrimSpace(pet) == "" {
		pet = "Mascota"
	}
	if ev.PetName != "" {
		pet += " - " + ev.PetName
	}
	desc := truncateRunes(strings.TrimSpace(ev.Description), 100)
	if desc == "" {
		desc = "Sin descripción"
	}
	keywords := ev.Keywords
	if len(keywords) > 3 {
		keywords = keywords[:3]
	}
	return fmt.Sprintf("🚨 EMERGENCIA\n\n📞 %s\n🐾 %s\n⚠️ %s\n\nPalabras clave: %s",
		ev.Phone, pet, desc, strings.Join(keywords, ", "))
}

func truncateRunes(s string, n int) string {
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return string(r[:n])
}

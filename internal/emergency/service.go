package emergency

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/wolfman30/vetclinic-ai-platform/internal/clients"
	"github.com/wolfman30/vetclinic-ai-platform/internal/clinic"
	"github.com/wolfman30/vetclinic-ai-platform/internal/compliance"
	"github.com/wolfman30/vetclinic-ai-platform/internal/events"
	"github.com/wolfman30/vetclinic-ai-platform/pkg/logging"
)

// ClientAccess is the part of the client repository the abuse policy needs.
type ClientAccess interface {
	RecordFalseAlarm(ctx context.Context, clinicID, id string, threshold int) (*clients.Client, error)
	ClearAccess(ctx context.Context, clinicID, id string) (*clients.Client, error)
}

// ClinicDirectory supplies escalation contacts.
type ClinicDirectory interface {
	Get(ctx context.Context, clinicID string) (*clinic.Config, error)
}

// Config tunes the service.
type Config struct {
	AbuseThreshold int
}

// Service owns the emergency lifecycle.
type Service struct {
	store     Store
	escalator *Escalator
	clients   ClientAccess
	clinics   ClinicDirectory
	audit     compliance.Auditor
	outbox    events.Recorder
	threshold int
	onResolve []func(ctx context.Context, ev Event)
	logger    *logging.Logger
	now       func() time.Time
}

// OnResolve registers fn to run after an event is resolved or marked a
// false alarm. Hooks run synchronously in registration order.
func (s *Service) OnResolve(fn func(ctx context.Context, ev Event)) {
	if fn != nil {
		s.onResolve = append(s.onResolve, fn)
	}
}

// NewService wires the emergency service. audit and outbox may be nil.
func NewService(store Store, escalator *Escalator, clientRepo ClientAccess, clinics ClinicDirectory, audit compliance.Auditor, outbox events.Recorder, cfg Config, logger *logging.Logger) *Service {
	if store == nil || escalator == nil || clientRepo == nil || clinics == nil {
		panic("emergency: store, escalator, clients and clinics are required")
	}
	if logger == nil {
		logger = logging.Default()
	}
	if audit == nil {
		audit = compliance.NopAuditor{}
	}
	if cfg.AbuseThreshold <= 0 {
		cfg.AbuseThreshold = DefaultAbuseThreshold
	}
	return &Service{
		store:     store,
		escalator: escalator,
		clients:   clientRepo,
		clinics:   clinics,
		audit:     audit,
		outbox:    outbox,
		threshold: cfg.AbuseThreshold,
		logger:    logger,
		now:       time.Now,
	}
}

// Raise records a confirmed emergency and alerts on-call staff. The event is
// stored even when no contact is reached; Outcome.Reached reports delivery.
func (s *Service) Raise(ctx context.Context, req RaiseRequest) (Outcome, error) {
	cfg, err := s.clinics.Get(ctx, req.ClinicID)
	if err != nil {
		return Outcome{}, fmt.Errorf("emergency: load clinic: %w", err)
	}

	ev := &Event{
		ID:             uuid.NewString(),
		ClinicID:       req.ClinicID,
		ConversationID: req.ConversationID,
		ClientID:       req.ClientID,
		Phone:          req.Phone,
		PetName:        req.PetName,
		PetSpecies:     req.PetSpecies,
		Description:    req.Description,
		Keywords:       append([]string(nil), req.Keywords...),
		Status:         StatusActive,
		Priority:       PriorityFor(req.Urgency),
		CreatedAt:      s.now().UTC(),
	}
	if err := s.store.CreateEvent(ctx, ev); err != nil {
		return Outcome{}, err
	}

	urgency := req.Urgency
	if urgency != UrgencyCritical {
		urgency = UrgencyHigh
	}
	alerts, reached := s.escalator.Escalate(ctx, ev.ID, cfg.EscalationContacts, AlertText(*ev), urgency)
	if err := s.store.SaveAlerts(ctx, alerts); err != nil {
		return Outcome{}, err
	}

	if s.outbox != nil {
		sent := 0
		for _, a := range alerts {
			if a.Status == AlertSent {
				sent++
			}
		}
		if err := s.outbox.Record(ctx, ev.ClinicID, events.EmergencyEscalatedV1{
			EventID:        ev.ID,
			ClinicID:       ev.ClinicID,
			ConversationID: ev.ConversationID,
			ClientPhone:    ev.Phone,
			PetName:        ev.PetName,
			PetSpecies:     ev.PetSpecies,
			Description:    ev.Description,
			Keywords:       ev.Keywords,
			Priority:       string(ev.Priority),
			AlertsSent:     sent,
			Reached:        reached,
			RaisedAt:       ev.CreatedAt,
		}); err != nil {
			return Outcome{}, fmt.Errorf("emergency: record event: %w", err)
		}
	}

	s.logAudit(ctx, compliance.NewEvent(compliance.EventEmergencyRaised, ev.ClinicID, ev.ID, "system", compliance.AuditDetails{
		Keywords:   ev.Keywords,
		Priority:   string(ev.Priority),
		AlertCount: len(alerts),
		Reached:    reached,
	}), ev.ConversationID)

	s.logger.Warn("emergency raised",
		"clinic_id", ev.ClinicID,
		"event_id", ev.ID,
		"conversation_id", ev.ConversationID,
		"priority", string(ev.Priority),
		"alerts", len(alerts),
		"reached", reached,
	)
	return Outcome{Event: ev, Alerts: alerts, Reached: reached}, nil
}

// Denied records that a client with revoked access confirmed an emergency.
func (s *Service) Denied(ctx context.Context, clinicID, clientID, conversationID string) {
	s.logAudit(ctx, compliance.NewEvent(compliance.EventEmergencyDenied, clinicID, clientID, "system", compliance.AuditDetails{}), conversationID)
}

// NotifyStaff sends a non-emergency notice to every contact.
func (s *Service) NotifyStaff(ctx context.Context, clinicID, message string) (bool, error) {
	cfg, err := s.clinics.Get(ctx, clinicID)
	if err != nil {
		return false, fmt.Errorf("emergency: load clinic: %w", err)
	}
	if len(cfg.EscalationContacts) == 0 {
		return false, ErrNoContacts
	}
	_, reached := s.escalator.Escalate(ctx, "", cfg.EscalationContacts, message, UrgencyModerate)
	return reached, nil
}

// Acknowledge moves an active event to acknowledged.
func (s *Service) Acknowledge(ctx context.Context, clinicID, id, actor string) (*Event, error) {
	ev, err := s.transition(ctx, clinicID, id, func(ev *Event) error {
		if ev.Status.Terminal() {
			return ErrTerminalStatus
		}
		if ev.Status != StatusActive {
			return ErrInvalidTransition
		}
		now := s.now().UTC()
		ev.Status = StatusAcknowledged
		ev.AcknowledgedBy = actor
		ev.AcknowledgedAt = &now
		return nil
	})
	if err != nil {
		return nil, err
	}
	s.logAudit(ctx, compliance.NewEvent(compliance.EventEmergencyAcknowledged, clinicID, id, actor, compliance.AuditDetails{}), ev.ConversationID)
	return ev, nil
}

// Resolve closes an event. A false alarm counts against the client and
// revokes their emergency access once the threshold is reached.
func (s *Service) Resolve(ctx context.Context, clinicID, id, actor, notes string, falseAlarm bool) (*Event, error) {
	ev, err := s.transition(ctx, clinicID, id, func(ev *Event) error {
		if ev.Status.Terminal() {
			return ErrTerminalStatus
		}
		now := s.now().UTC()
		ev.Status = StatusResolved
		if falseAlarm {
			ev.Status = StatusFalseAlarm
		}
		ev.ResolvedBy = actor
		ev.ResolvedAt = &now
		ev.Notes = strings.TrimSpace(notes)
		return nil
	})
	if err != nil {
		return nil, err
	}

	kind := compliance.EventEmergencyResolved
	if falseAlarm {
		kind = compliance.EventEmergencyFalseAlarm
	}
	s.logAudit(ctx, compliance.NewEvent(kind, clinicID, id, actor, compliance.AuditDetails{Notes: ev.Notes}), ev.ConversationID)

	if falseAlarm && ev.ClientID != "" {
		client, err := s.clients.RecordFalseAlarm(ctx, clinicID, ev.ClientID, s.threshold)
		if err != nil && !errors.Is(err, clients.ErrNotFound) {
			return nil, fmt.Errorf("emergency: record false alarm: %w", err)
		}
		if client != nil && client.AccessRevoked && client.FalseAlarmCount == s.threshold {
			s.logAudit(ctx, compliance.NewEvent(compliance.EventAccessRevoked, clinicID, client.ID, actor,
				compliance.AuditDetails{Threshold: s.threshold}), ev.ConversationID)
			s.logger.Warn("emergency access revoked", "clinic_id", clinicID, "client_id", client.ID)
		}
	}
	for _, fn := range s.onResolve {
		fn(ctx, *ev)
	}
	return ev, nil
}

// transition applies change to a fresh read of the event and writes it only
// if no other writer moved the status in between. A lost race re-reads and
// re-checks, so a second resolver sees the terminal status.
func (s *Service) transition(ctx context.Context, clinicID, id string, change func(*Event) error) (*Event, error) {
	for attempt := 0; ; attempt++ {
		ev, err := s.store.GetEvent(ctx, clinicID, id)
		if err != nil {
			return nil, err
		}
		from := ev.Status
		if err := change(ev); err != nil {
			return nil, err
		}
		err = s.store.UpdateEvent(ctx, ev, from)
		if err == nil {
			return ev, nil
		}
		if !errors.Is(err, ErrStatusChanged) || attempt >= maxTransitionAttempts-1 {
			return nil, err
		}
	}
}

// ClearAccess restores a client's emergency access.
func (s *Service) ClearAccess(ctx context.Context, clinicID, clientID, actor string) (*clients.Client, error) {
	client, err := s.clients.ClearAccess(ctx, clinicID, clientID)
	if err != nil {
		return nil, err
	}
	s.logAudit(ctx, compliance.NewEvent(compliance.EventAccessCleared, clinicID, clientID, actor, compliance.AuditDetails{}), "")
	return client, nil
}

// List returns events for a clinic, newest first. An empty status lists all.
func (s *Service) List(ctx context.Context, clinicID string, status Status, limit int) ([]Event, error) {
	return s.store.ListEvents(ctx, clinicID, status, limit)
}

// Get returns one event.
func (s *Service) Get(ctx context.Context, clinicID, id string) (*Event, error) {
	return s.store.GetEvent(ctx, clinicID, id)
}

// Alerts returns the alerts sent for an event.
func (s *Service) Alerts(ctx context.Context, clinicID, id string) ([]Alert, error) {
	if _, err := s.store.GetEvent(ctx, clinicID, id); err != nil {
		return nil, err
	}
	return s.store.ListAlerts(ctx, id)
}

// AlertDelivered records a delivery receipt from the transport.
func (s *Service) AlertDelivered(ctx context.Context, alertID string) error {
	return s.store.MarkAlertDelivered(ctx, alertID, s.now().UTC())
}

func (s *Service) logAudit(ctx context.Context, ev compliance.AuditEvent, conversationID string) {
	ev.ConversationID = conversationID
	if err := s.audit.LogEvent(ctx, ev); err != nil {
		s.logger.Error("audit log failed", "event_type", string(ev.EventType), "clinic_id", ev.ClinicID, "error", err)
	}
}

package followup

import (
	"context"
	"fmt"
	"time"

	"github.com/wolfman30/vetclinic-ai-platform/internal/calendar"
	"github.com/wolfman30/vetclinic-ai-platform/internal/clinic"
	"github.com/wolfman30/vetclinic-ai-platform/pkg/logging"
)

// Scheduler creates the follow-ups of a completed appointment. It is
// registered on the calendar as a completion hook.
type Scheduler struct {
	store  Store
	logger *logging.Logger
	now    func() time.Time
}

func NewScheduler(store Store, logger *logging.Logger) *Scheduler {
	if store == nil {
		panic("followup: store cannot be nil")
	}
	if logger == nil {
		logger = logging.Default()
	}
	return &Scheduler{store: store, logger: logger, now: time.Now}
}

var _ calendar.CompletionHook = (*Scheduler)(nil)

// AppointmentCompleted schedules one follow-up per protocol step, counted
// from the completion time. Appointment types without a protocol are skipped.
func (s *Scheduler) AppointmentCompleted(ctx context.Context, cfg *clinic.Config, appt calendar.Appointment) error {
	if cfg == nil {
		return nil
	}
	protocol, ok := cfg.ProtocolFor(string(appt.Type))
	if !ok || len(protocol.ScheduleHours) == 0 {
		return nil
	}
	items := Plan(protocol, appt, s.now().UTC())
	if len(items) == 0 {
		return nil
	}
	if err := s.store.Create(ctx, items); err != nil {
		return fmt.Errorf("followup: schedule: %w", err)
	}
	s.logger.Info("follow-ups scheduled",
		"clinic_id", appt.ClinicID,
		"appointment_id", appt.ID,
		"protocol", protocol.Name,
		"count", len(items),
	)
	return nil
}

// Plan expands a protocol into pending follow-ups. Steps without their own
// template reuse the last one.
func Plan(protocol clinic.FollowUpProtocol, appt calendar.Appointment, now time.Time) []FollowUp {
	if len(protocol.MessageTemplates) == 0 {
		return nil
	}
	base := now
	if appt.CompletedAt != nil {
		base = appt.CompletedAt.UTC()
	}
	items := make([]FollowUp, 0, len(protocol.ScheduleHours))
	for i, hours := range protocol.ScheduleHours {
		if hours <= 0 {
			continue
		}
		tmpl := protocol.MessageTemplates[len(protocol.MessageTemplates)-1]
		if i < len(protocol.MessageTemplates) {
			tmpl = protocol.MessageTemplates[i]
		}
		items = append(items, FollowUp{
			ClinicID:           appt.ClinicID,
			AppointmentID:      appt.ID,
			ClientPhone:        appt.ClientPhone,
			PetName:            appt.PetName,
			Protocol:           protocol.Name,
			Step:               i + 1,
			Template:           tmpl,
			EscalationKeywords: append([]string(nil), protocol.EscalationKeywords...),
			DueAt:              base.Add(time.Duration(hours) * time.Hour),
			Status:             StatusPending,
			CreatedAt:          now,
		})
	}
	return items
}

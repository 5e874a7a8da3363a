package followup

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/wolfman30/vetclinic-ai-platform/internal/emergency"
	"github.com/wolfman30/vetclinic-ai-platform/internal/events"
	"github.com/wolfman30/vetclinic-ai-platform/pkg/logging"
)

// StaffNotifier messages a clinic's escalation contacts.
type StaffNotifier interface {
	NotifyStaff(ctx context.Context, clinicID, message string) (bool, error)
}

// StaffAlerter forwards escalated follow-ups to clinic staff. It is an
// outbox delivery handler for followup.escalated events.
type StaffAlerter struct {
	staff  StaffNotifier
	logger *logging.Logger
}

func NewStaffAlerter(staff StaffNotifier, logger *logging.Logger) *StaffAlerter {
	if staff == nil {
		panic("followup: staff notifier cannot be nil")
	}
	if logger == nil {
		logger = logging.Default()
	}
	return &StaffAlerter{staff: staff, logger: logger}
}

var _ events.DeliveryHandler = (*StaffAlerter)(nil)

func (a *StaffAlerter) Handle(ctx context.Context, entry events.OutboxEntry) error {
	if entry.Type != events.TypeFollowUpEscalated {
		return nil
	}
	var evt events.FollowUpEscalatedV1
	if err := entry.Decode(&evt); err != nil {
		a.logger.Error("malformed follow-up escalation", "entry_id", entry.ID, "error", err)
		return nil
	}
	reached, err := a.staff.NotifyStaff(ctx, evt.ClinicID, StaffMessage(evt))
	if errors.Is(err, emergency.ErrNoContacts) {
		a.logger.Warn("follow-up escalation has no staff contacts", "clinic_id", evt.ClinicID, "follow_up_id", evt.FollowUpID)
		return nil
	}
	if err != nil {
		return fmt.Errorf("followup: notify staff: %w", err)
	}
	if !reached {
		a.logger.Warn("no staff contact reached for follow-up", "clinic_id", evt.ClinicID, "follow_up_id", evt.FollowUpID)
	}
	return nil
}

// StaffMessage is the text sent to staff for a worrying follow-up answer.
func StaffMessage(evt events.FollowUpEscalatedV1) string {
	pet := evt.PetName
	if strings.TrimSpace(pet) == "" {
		pet = "sin nombre"
	}
	var b strings.Builder
	b.WriteString("⚠️ SEGUIMIENTO CON SÍNTOMAS\n")
	fmt.Fprintf(&b, "Tel: %s\n", evt.ClientPhone)
	fmt.Fprintf(&b, "Mascota: %s\n", pet)
	fmt.Fprintf(&b, "Respuesta: %s", strings.TrimSpace(evt.Response))
	return b.String()
}

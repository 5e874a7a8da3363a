package archive

import (
	"context"
	"time"

	"github.com/wolfman30/vetclinic-ai-platform/internal/events"
)

// Categories group transcripts for later review.
const (
	CategoryBooking   = "booking"
	CategoryEmergency = "emergency"
	CategoryFollowUp  = "follow_up"
	CategoryAbandoned = "abandoned"
	CategoryOther     = "other"
)

// Archiver turns conversation.ended outbox events into stored transcripts.
type Archiver struct {
	store *Store
	now   func() time.Time
}

func NewArchiver(store *Store) *Archiver {
	return &Archiver{store: store, now: time.Now}
}

// Handle implements events.DeliveryHandler.
func (a *Archiver) Handle(ctx context.Context, entry events.OutboxEntry) error {
	if entry.Type != events.TypeConversationEnded || !a.store.Enabled() {
		return nil
	}
	var evt events.ConversationEndedV1
	if err := entry.Decode(&evt); err != nil {
		return err
	}
	return a.store.ArchiveTranscript(ctx, a.record(evt))
}

func (a *Archiver) record(evt events.ConversationEndedV1) *TranscriptRecord {
	msgs := make([]Message, len(evt.Transcript))
	for i, line := range evt.Transcript {
		msgs[i] = Message{Role: line.Role, Content: line.Content, Timestamp: line.CreatedAt}
	}
	scrubMessages(msgs)
	duration := 0
	if !evt.StartedAt.IsZero() && evt.EndedAt.After(evt.StartedAt) {
		duration = int(evt.EndedAt.Sub(evt.StartedAt).Seconds())
	}
	return &TranscriptRecord{
		Version:         recordVersion,
		ConversationID:  evt.ConversationID,
		ClinicID:        evt.ClinicID,
		Channel:         evt.Channel,
		PhoneHash:       HashPhone(evt.ClientPhone),
		Status:          evt.Status,
		Outcome:         evt.Outcome,
		FinalState:      evt.FinalState,
		Category:        Categorize(evt.Status, evt.Outcome),
		StartedAt:       evt.StartedAt,
		EndedAt:         evt.EndedAt,
		ArchivedAt:      a.now().UTC(),
		DurationSeconds: duration,
		MessageCount:    len(msgs),
		Messages:        msgs,
	}
}

// Categorize maps a conversation's status and outcome to a category.
func Categorize(status, outcome string) string {
	switch outcome {
	case "appointment_scheduled":
		return CategoryBooking
	case "escalated", "emergency_denied":
		return CategoryEmergency
	case "followup_responded", "followup_escalated":
		return CategoryFollowUp
	case "abandoned", "no_response":
		return CategoryAbandoned
	}
	switch status {
	case "escalated":
		return CategoryEmergency
	case "abandoned":
		return CategoryAbandoned
	}
	return CategoryOther
}

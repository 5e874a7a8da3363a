package followup

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/wolfman30/vetclinic-ai-platform/internal/conversation"
	"github.com/wolfman30/vetclinic-ai-platform/internal/events"
	"github.com/wolfman30/vetclinic-ai-platform/pkg/logging"
)

// Responder records follow-up answers. It runs inside the turn's unit of
// work, so the status change and the escalation event commit together.
type Responder struct {
	store  Store
	outbox events.Recorder
	logger *logging.Logger
	now    func() time.Time
}

func NewResponder(store Store, outbox events.Recorder, logger *logging.Logger) *Responder {
	if store == nil {
		panic("followup: store cannot be nil")
	}
	if logger == nil {
		logger = logging.Default()
	}
	return &Responder{store: store, outbox: outbox, logger: logger, now: time.Now}
}

var _ conversation.FollowUpResponder = (*Responder)(nil)

func (r *Responder) FollowUpReplied(ctx context.Context, reply conversation.FollowUpReply) error {
	now := r.now().UTC()
	status := StatusResponded
	if len(reply.Concerning) > 0 {
		status = StatusEscalated
	}
	err := r.store.RecordResponse(ctx, reply.FollowUpID, status, reply.Response, now)
	if errors.Is(err, ErrNotFound) {
		r.logger.Warn("follow-up reply for unknown follow-up", "follow_up_id", reply.FollowUpID, "conversation_id", reply.ConversationID)
		return nil
	}
	if err != nil {
		return fmt.Errorf("followup: record response: %w", err)
	}
	if status != StatusEscalated || r.outbox == nil {
		return nil
	}
	evt := events.FollowUpEscalatedV1{
		FollowUpID:     reply.FollowUpID,
		ClinicID:       reply.ClinicID,
		AppointmentID:  reply.AppointmentID,
		ConversationID: reply.ConversationID,
		ClientPhone:    reply.Phone,
		PetName:        reply.PetName,
		Response:       reply.Response,
		EscalatedAt:    now,
	}
	if err := r.outbox.Record(ctx, reply.ClinicID, evt); err != nil {
		return fmt.Errorf("followup: record escalation: %w", err)
	}
	r.logger.Info("follow-up escalated", "follow_up_id", reply.FollowUpID, "clinic_id", reply.ClinicID, "keywords", reply.Concerning)
	return nil
}

package conversation

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/wolfman30/vetclinic-ai-platform/internal/emergency"
	"github.com/wolfman30/vetclinic-ai-platform/internal/scheduling"
)

// ErrConversationBusy is returned when a follow-up cannot open because the
// client is mid-conversation.
var ErrConversationBusy = errors.New("conversation: client has an open conversation")

// ConcerningKeywords flag a follow-up reply for staff attention.
var ConcerningKeywords = []string{
	"sangre", "fiebre", "no come", "vomita", "peor",
	"hinchado", "pus", "olor", "no mejora",
}

// MatchConcerning returns the keywords, from ConcerningKeywords and extra,
// that start a word in text. Matching ignores case and accents.
func MatchConcerning(text string, extra []string) []string {
	folded := " " + strings.Join(strings.FieldsFunc(scheduling.Fold(text), notWordRune), " ")
	seen := make(map[string]bool)
	var matched []string
	for _, list := range [][]string{ConcerningKeywords, extra} {
		for _, kw := range list {
			k := strings.Join(strings.Fields(scheduling.Fold(kw)), " ")
			if k == "" || seen[k] {
				continue
			}
			if strings.Contains(folded, " "+k) {
				seen[k] = true
				matched = append(matched, kw)
			}
		}
	}
	return matched
}

func notWordRune(r rune) bool {
	return !(r >= 'a' && r <= 'z' || r >= '0' && r <= '9')
}

// FollowUpStart opens a COLLECT_STATUS conversation for a check-in.
type FollowUpStart struct {
	ClinicID           string
	Phone              string
	ReplyChannel       string
	FollowUpID         string
	AppointmentID      string
	PetName            string
	EscalationKeywords []string
	// Message is the check-in text sent to the client.
	Message string
}

// StartFollowUp records the check-in as the opening assistant message of a
// chat conversation waiting in COLLECT_STATUS. Finished conversations are
// closed first; an unfinished one yields ErrConversationBusy.
func (e *Engine) StartFollowUp(ctx context.Context, req FollowUpStart) (string, error) {
	if req.ClinicID == "" || req.Phone == "" || req.FollowUpID == "" {
		return "", errors.New("conversation: follow-up needs clinic, phone and id")
	}
	unlock, err := e.locker.Lock(ctx, LockKey(req.ClinicID, ChannelChat, req.Phone))
	if err != nil {
		return "", fmt.Errorf("%w: lock: %w", ErrPersistence, err)
	}
	defer unlock()

	var conversationID string
	err = e.store.Atomic(ctx, func(ctx context.Context) error {
		now := e.now().UTC()
		open, err := e.store.FindOpen(ctx, req.ClinicID, req.Phone, ChannelChat)
		switch {
		case errors.Is(err, ErrNotFound):
		case err != nil:
			return err
		case open.Expired(now):
			if err := e.abandon(ctx, open, now); err != nil {
				return err
			}
		case open.State.Terminal():
			if err := e.retire(ctx, open, now); err != nil {
				return err
			}
		default:
			return ErrConversationBusy
		}

		t := &turn{
			in: Turn{
				ClinicID:     req.ClinicID,
				Channel:      ChannelChat,
				Phone:        req.Phone,
				ReplyChannel: req.ReplyChannel,
			},
			now: now,
		}
		conv, err := e.create(ctx, t)
		if err != nil {
			return err
		}
		t.conv = conv
		if !e.move(t, StateIntentDetection, StateCollectStatus) {
			return fmt.Errorf("conversation: cannot enter %s", StateCollectStatus)
		}
		conv.Data.Scheduling.PetName = req.PetName
		conv.Data.FollowUp = &FollowUpData{
			FollowUpID:         req.FollowUpID,
			AppointmentID:      req.AppointmentID,
			PetName:            req.PetName,
			EscalationKeywords: append([]string(nil), req.EscalationKeywords...),
		}
		if err := e.store.AppendMessage(ctx, &Message{
			ConversationID: conv.ID,
			Role:           RoleAssistant,
			Content:        req.Message,
			CreatedAt:      now,
		}); err != nil {
			return err
		}
		if err := e.store.Update(ctx, conv); err != nil {
			return err
		}
		conversationID = conv.ID
		return nil
	})
	if errors.Is(err, ErrConversationBusy) {
		return "", err
	}
	if err != nil {
		return "", fmt.Errorf("%w: %w", ErrPersistence, err)
	}
	return conversationID, nil
}

// EmergencyResolved completes the conversation that raised ev. It is
// registered as an emergency resolve hook.
func (e *Engine) EmergencyResolved(ctx context.Context, ev emergency.Event) {
	if ev.ConversationID == "" {
		return
	}
	conv, err := e.store.Get(ctx, ev.ConversationID)
	if err != nil {
		if !errors.Is(err, ErrNotFound) {
			e.logger.Warn("load escalated conversation failed", "conversation_id", ev.ConversationID, "error", err)
		}
		return
	}
	unlock, err := e.locker.Lock(ctx, LockKey(conv.ClinicID, conv.Channel, conv.Phone))
	if err != nil {
		e.logger.Warn("lock escalated conversation failed", "conversation_id", conv.ID, "error", err)
		return
	}
	defer unlock()

	err = e.store.Atomic(ctx, func(ctx context.Context) error {
		conv, err := e.store.Get(ctx, ev.ConversationID)
		if err != nil {
			return err
		}
		if conv.State != StateEscalate {
			return nil
		}
		wasEnded := conv.EndedAt != nil
		if !e.apply(conv, StateCompleted, e.now().UTC()) {
			return nil
		}
		if err := e.store.Update(ctx, conv); err != nil {
			return err
		}
		if !wasEnded {
			return e.recordEnded(ctx, conv)
		}
		return nil
	})
	if err != nil {
		e.logger.Error("complete escalated conversation failed", "conversation_id", ev.ConversationID, "error", err)
		return
	}
	e.logger.Info("escalated conversation completed", "conversation_id", ev.ConversationID, "emergency_status", ev.Status)
}

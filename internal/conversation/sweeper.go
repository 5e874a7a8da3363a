package conversation

import (
	"context"
	"errors"
	"fmt"
)

// ReplySender delivers an assistant message outside of a turn.
type ReplySender interface {
	SendMessage(ctx context.Context, phone, text, channel string) error
}

// sweepable are the states whose deadline the sweeper enforces.
var sweepable = []State{
	StateGreeting, StateIntentDetection, StateAskReason, StateOfferSlots, StateAwaitSelection,
	StateConfirmBooking, StateConfirmEmergency, StateCollectStatus, StateReminder,
}

// SweepReport counts what one sweep did.
type SweepReport struct {
	Nudged    int `json:"nudged"`
	Abandoned int `json:"abandoned"`
	Closed    int `json:"closed"`
}

type sweepAction int

const (
	sweepSkipped sweepAction = iota
	sweepNudged
	sweepAbandoned
	sweepClosed
)

// Sweep enforces idle deadlines. Chat conversations of clinics that opted
// into reminder nudges get one nudge and move to REMINDER; an unanswered
// reminder closes the conversation; everything else is abandoned. A nil
// sender disables nudges.
func (e *Engine) Sweep(ctx context.Context, sender ReplySender, limit int) (SweepReport, error) {
	var report SweepReport
	now := e.now().UTC()
	for _, ch := range []Channel{ChannelChat, ChannelVoice, ChannelWebchat} {
		expired, err := e.store.ListExpired(ctx, ch, sweepable, now, limit)
		if err != nil {
			return report, fmt.Errorf("conversation: list expired: %w", err)
		}
		for i := range expired {
			conv := &expired[i]
			action, nudge, err := e.sweepOne(ctx, conv, sender != nil)
			if err != nil {
				e.logger.Warn("sweep conversation failed", "conversation_id", conv.ID, "error", err)
				continue
			}
			switch action {
			case sweepNudged:
				report.Nudged++
				if err := sender.SendMessage(ctx, conv.Phone, nudge, conv.ReplyChannel); err != nil {
					e.logger.Warn("send reminder nudge failed", "conversation_id", conv.ID, "error", err)
				}
			case sweepAbandoned:
				report.Abandoned++
			case sweepClosed:
				report.Closed++
			}
		}
	}
	if report != (SweepReport{}) {
		e.logger.Info("conversation sweep finished", "nudged", report.Nudged, "abandoned", report.Abandoned, "closed", report.Closed)
	}
	return report, nil
}

func (e *Engine) sweepOne(ctx context.Context, listed *Conversation, canNudge bool) (sweepAction, string, error) {
	unlock, err := e.locker.Lock(ctx, LockKey(listed.ClinicID, listed.Channel, listed.Phone))
	if err != nil {
		return sweepSkipped, "", err
	}
	defer unlock()

	action := sweepSkipped
	var nudge string
	err = e.store.Atomic(ctx, func(ctx context.Context) error {
		now := e.now().UTC()
		conv, err := e.store.Get(ctx, listed.ID)
		if errors.Is(err, ErrNotFound) {
			return nil
		}
		if err != nil {
			return err
		}
		if conv.Status != StatusActive || !conv.Expired(now) {
			return nil
		}

		if conv.State == StateReminder {
			wasEnded := conv.EndedAt != nil
			e.apply(conv, StateClosed, now)
			conv.Outcome = OutcomeNoResponse
			if err := e.store.Update(ctx, conv); err != nil {
				return err
			}
			action = sweepClosed
			if wasEnded {
				return nil
			}
			return e.recordEnded(ctx, conv)
		}

		if canNudge && conv.Channel == ChannelChat && CanTransition(conv.State, StateReminder) {
			cfg, err := e.clinics.Get(ctx, conv.ClinicID)
			if err != nil {
				return err
			}
			if cfg.ReminderNudges {
				text := reminderNudge
				if conv.State == StateCollectStatus {
					pet := ""
					if conv.Data.FollowUp != nil {
						pet = conv.Data.FollowUp.PetName
					}
					text = followUpNudge(pet)
				}
				e.apply(conv, StateReminder, now)
				if err := e.store.AppendMessage(ctx, &Message{
					ConversationID: conv.ID,
					Role:           RoleAssistant,
					Content:        text,
					CreatedAt:      now,
				}); err != nil {
					return err
				}
				if err := e.store.Update(ctx, conv); err != nil {
					return err
				}
				action, nudge = sweepNudged, text
				listed.ReplyChannel = conv.ReplyChannel
				return nil
			}
		}

		if err := e.abandon(ctx, conv, now); err != nil {
			return err
		}
		action = sweepAbandoned
		return nil
	})
	if err != nil {
		return sweepSkipped, "", err
	}
	return action, nudge, nil
}

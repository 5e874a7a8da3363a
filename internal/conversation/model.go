package conversation

import (
	"errors"
	"time"

	"github.com/wolfman30/vetclinic-ai-platform/internal/scheduling"
)

var (
	// ErrPersistence aborts a turn. Nothing the turn wrote is committed and
	// the transport may retry with the same external id.
	ErrPersistence = errors.New("conversation: persistence failure")
	// ErrNotFound is returned when a conversation does not exist.
	ErrNotFound = errors.New("conversation: not found")
)

// ServiceLimitedReply is sent when a turn cannot be processed at all.
const ServiceLimitedReply = "Lo sentimos, en este momento el servicio está limitado. Por favor intenta de nuevo en unos minutos o llama directamente a la clínica."

// Channel is the transport a conversation runs on.
type Channel string

const (
	ChannelVoice   Channel = "voice"
	ChannelChat    Channel = "chat"
	ChannelWebchat Channel = "webchat"
)

// ParseChannel accepts the three known channels.
func ParseChannel(v string) (Channel, bool) {
	switch c := Channel(v); c {
	case ChannelVoice, ChannelChat, ChannelWebchat:
		return c, true
	}
	return "", false
}

// Status is the lifecycle of a conversation row.
type Status string

const (
	StatusActive    Status = "active"
	StatusCompleted Status = "completed"
	StatusEscalated Status = "escalated"
	StatusAbandoned Status = "abandoned"
)

// Outcome classifies how a conversation ended.
const (
	OutcomeAppointmentScheduled = "appointment_scheduled"
	OutcomeEscalated            = "escalated"
	OutcomeEmergencyDenied      = "emergency_denied"
	OutcomeFollowUpResponded    = "followup_responded"
	OutcomeFollowUpEscalated    = "followup_escalated"
	OutcomeAbandoned            = "abandoned"
	OutcomeNoResponse           = "no_response"
	OutcomeClosed               = "closed"
)

// Message roles.
const (
	RoleUser      = "user"
	RoleAssistant = "assistant"
	RoleSystem    = "system"
)

// EmergencyData is the scratch section filled while confirming an emergency.
type EmergencyData struct {
	Urgency     string   `json:"urgency,omitempty"`
	Keywords    []string `json:"keywords,omitempty"`
	Description string   `json:"description,omitempty"`
	EventID     string   `json:"event_id,omitempty"`
}

// FollowUpData links a COLLECT_STATUS conversation to the follow-up that
// opened it.
type FollowUpData struct {
	FollowUpID         string   `json:"follow_up_id"`
	AppointmentID      string   `json:"appointment_id,omitempty"`
	PetName            string   `json:"pet_name,omitempty"`
	EscalationKeywords []string `json:"escalation_keywords,omitempty"`
}

// ScratchData is the typed scratch record persisted with a conversation.
type ScratchData struct {
	Scheduling scheduling.State `json:"scheduling"`
	Emergency  *EmergencyData   `json:"emergency,omitempty"`
	FollowUp   *FollowUpData    `json:"follow_up,omitempty"`
}

// Clone returns a deep copy.
func (d ScratchData) Clone() ScratchData {
	out := ScratchData{Scheduling: d.Scheduling.Clone()}
	if d.Emergency != nil {
		em := *d.Emergency
		em.Keywords = append([]string(nil), d.Emergency.Keywords...)
		out.Emergency = &em
	}
	if d.FollowUp != nil {
		fu := *d.FollowUp
		fu.EscalationKeywords = append([]string(nil), d.FollowUp.EscalationKeywords...)
		out.FollowUp = &fu
	}
	return out
}

// Conversation is one dialogue with a caller on one channel.
type Conversation struct {
	ID                   string      `json:"id"`
	ClinicID             string      `json:"clinic_id"`
	ClientID             string      `json:"client_id,omitempty"`
	Channel              Channel     `json:"channel"`
	ExternalID           string      `json:"external_id,omitempty"`
	Phone                string      `json:"client_phone"`
	ReplyChannel         string      `json:"reply_channel,omitempty"`
	State                State       `json:"state"`
	Data                 ScratchData `json:"data"`
	LastStateChange      time.Time   `json:"last_state_change"`
	TimeoutAt            *time.Time  `json:"timeout_at,omitempty"`
	Status               Status      `json:"status"`
	Outcome              string      `json:"outcome,omitempty"`
	EmergencyKeywords    []string    `json:"emergency_keywords,omitempty"`
	EmergencyDescription string      `json:"emergency_description,omitempty"`
	StartedAt            time.Time   `json:"started_at"`
	EndedAt              *time.Time  `json:"ended_at,omitempty"`
}

// Open reports whether the conversation still owns its (clinic, phone,
// channel) identity.
func (c *Conversation) Open() bool {
	return c.Status != StatusAbandoned && c.State != StateClosed
}

// Expired reports whether the idle deadline has passed.
func (c *Conversation) Expired(now time.Time) bool {
	return c.TimeoutAt != nil && now.After(*c.TimeoutAt)
}

// Clone returns a deep copy.
func (c Conversation) Clone() Conversation {
	out := c
	out.Data = c.Data.Clone()
	out.EmergencyKeywords = append([]string(nil), c.EmergencyKeywords...)
	if c.TimeoutAt != nil {
		t := *c.TimeoutAt
		out.TimeoutAt = &t
	}
	if c.EndedAt != nil {
		t := *c.EndedAt
		out.EndedAt = &t
	}
	return out
}

// Message is one transcript line. Messages are never updated.
type Message struct {
	ID             string    `json:"id"`
	ConversationID string    `json:"conversation_id"`
	Role           string    `json:"role"`
	Content        string    `json:"content"`
	AudioURL       string    `json:"audio_url,omitempty"`
	Confidence     *float64  `json:"confidence,omitempty"`
	ExternalID     string    `json:"external_id,omitempty"`
	ReplyTo        string    `json:"reply_to,omitempty"`
	CreatedAt      time.Time `json:"created_at"`
}

// Turn is one inbound message in canonical form.
type Turn struct {
	ClinicID string  `json:"clinic_id"`
	Channel  Channel `json:"channel"`
	Phone    string  `json:"phone"`
	Text     string  `json:"text"`
	// ExternalID is the transport's message id, used for dedupe.
	ExternalID string `json:"external_id,omitempty"`
	// SessionID identifies the transport session, e.g. a call SID.
	SessionID string `json:"session_id,omitempty"`
	// ReplyChannel is sms or whatsapp for chat turns.
	ReplyChannel string   `json:"reply_channel,omitempty"`
	AudioURL     string   `json:"audio_url,omitempty"`
	Confidence   *float64 `json:"confidence,omitempty"`
}

// TurnResult is what adapters render back to the caller.
type TurnResult struct {
	ReplyText         string `json:"reply_text"`
	ConversationID    string `json:"conversation_id"`
	EndConversation   bool   `json:"end_conversation"`
	AppointmentBooked bool   `json:"appointment_booked"`
	Escalated         bool   `json:"escalated"`
	Duplicate         bool   `json:"duplicate,omitempty"`
	State             State  `json:"state,omitempty"`
}

// RecordedTurn is an already processed inbound message and its reply.
type RecordedTurn struct {
	ConversationID string
	State          State
	Reply          string
}

// Package emergency records confirmed emergencies, fans alerts out to on-call
// staff and enforces the false-alarm abuse policy.
package emergency

import (
	"errors"
	"time"

	"github.com/wolfman30/vetclinic-ai-platform/internal/clinic"
)

var (
	// ErrNotFound is returned when an event or alert does not exist.
	ErrNotFound = errors.New("emergency: not found")
	// ErrTerminalStatus is returned when acting on a resolved or false-alarm event.
	ErrTerminalStatus = errors.New("emergency: event already closed")
	// ErrInvalidTransition is returned for a status change the lifecycle forbids.
	ErrInvalidTransition = errors.New("emergency: invalid status transition")
	// ErrStatusChanged is returned by UpdateEvent when another writer moved
	// the event first.
	ErrStatusChanged = errors.New("emergency: event status changed concurrently")
	// ErrNoContacts is returned when a clinic has no escalation contacts.
	ErrNoContacts = errors.New("emergency: no escalation contacts configured")
)

// maxTransitionAttempts bounds re-reads when status writes race.
const maxTransitionAttempts = 3

// DefaultAbuseThreshold is the number of false alarms that revokes access.
const DefaultAbuseThreshold = 2

// Status is the lifecycle state of an emergency event.
type Status string

const (
	StatusActive       Status = "active"
	StatusAcknowledged Status = "acknowledged"
	StatusResolved     Status = "resolved"
	StatusFalseAlarm   Status = "false_alarm"
)

// Terminal reports whether no further transition is allowed.
func (s Status) Terminal() bool {
	return s == StatusResolved || s == StatusFalseAlarm
}

// Priority ranks an event for the on-call team.
type Priority string

const (
	PriorityHigh     Priority = "high"
	PriorityCritical Priority = "critical"
)

// Urgency levels understood by the escalator. High and critical stop the
// fan-out at the first contact reached; lower levels notify every contact.
const (
	UrgencyModerate = "moderate"
	UrgencyHigh     = "high"
	UrgencyCritical = "critical"
)

// PriorityFor maps a classifier urgency onto an event priority.
func PriorityFor(urgency string) Priority {
	if urgency == UrgencyCritical {
		return PriorityCritical
	}
	return PriorityHigh
}

// Channel is the transport an alert went out on.
type Channel string

const (
	ChannelWhatsApp Channel = "whatsapp"
	ChannelSMS      Channel = "sms"
)

// AlertStatus tracks one alert delivery attempt.
type AlertStatus string

const (
	AlertPending   AlertStatus = "pending"
	AlertSent      AlertStatus = "sent"
	AlertFailed    AlertStatus = "failed"
	AlertDelivered AlertStatus = "delivered"
)

// Event is a confirmed emergency raised from a conversation.
type Event struct {
	ID             string     `json:"id"`
	ClinicID       string     `json:"clinic_id"`
	ConversationID string     `json:"conversation_id,omitempty"`
	ClientID       string     `json:"client_id,omitempty"`
	Phone          string     `json:"client_phone"`
	PetName        string     `json:"pet_name,omitempty"`
	PetSpecies     string     `json:"pet_species,omitempty"`
	Description    string     `json:"description,omitempty"`
	Keywords       []string   `json:"keywords_detected"`
	Status         Status     `json:"status"`
	Priority       Priority   `json:"priority"`
	AcknowledgedBy string     `json:"acknowledged_by,omitempty"`
	AcknowledgedAt *time.Time `json:"acknowledged_at,omitempty"`
	ResolvedBy     string     `json:"resolved_by,omitempty"`
	ResolvedAt     *time.Time `json:"resolved_at,omitempty"`
	Notes          string     `json:"resolution_notes,omitempty"`
	CreatedAt      time.Time  `json:"created_at"`
}

// Alert is one message sent to a contact about an event.
type Alert struct {
	ID          string         `json:"id"`
	EventID     string         `json:"event_id"`
	Contact     clinic.Contact `json:"contact"`
	Channel     Channel        `json:"channel"`
	Message     string         `json:"message"`
	Status      AlertStatus    `json:"status"`
	Error       string         `json:"error,omitempty"`
	SentAt      *time.Time     `json:"sent_at,omitempty"`
	DeliveredAt *time.Time     `json:"delivered_at,omitempty"`
	CreatedAt   time.Time      `json:"created_at"`
}

// RaiseRequest carries what the conversation knows about an emergency.
type RaiseRequest struct {
	ClinicID       string
	ConversationID string
	ClientID       string
	Phone          string
	PetName        string
	PetSpecies     string
	Description    string
	Keywords       []string
	Urgency        string
}

// Outcome summarizes an escalation.
type Outcome struct {
	Event   *Event
	Alerts  []Alert
	Reached bool
}

// Package followup schedules post-appointment check-ins, sends them when
// due and records what the client answered.
package followup

import (
	"errors"
	"strings"
	"time"
)

// Status is the lifecycle of one follow-up message.
type Status string

const (
	StatusPending   Status = "pending"
	StatusSent      Status = "sent"
	StatusResponded Status = "responded"
	StatusEscalated Status = "escalated"
	StatusFailed    Status = "failed"
)

var ErrNotFound = errors.New("followup: not found")

// DefaultPetName stands in for a missing pet name in templates.
const DefaultPetName = "tu mascota"

// FollowUp is one scheduled check-in.
type FollowUp struct {
	ID                 string     `json:"id"`
	ClinicID           string     `json:"clinic_id"`
	AppointmentID      string     `json:"appointment_id"`
	ClientPhone        string     `json:"client_phone"`
	PetName            string     `json:"pet_name,omitempty"`
	Protocol           string     `json:"protocol"`
	Step               int        `json:"step"`
	Template           string     `json:"template"`
	EscalationKeywords []string   `json:"escalation_keywords,omitempty"`
	DueAt              time.Time  `json:"due_at"`
	Status             Status     `json:"status"`
	Attempts           int        `json:"attempts"`
	ConversationID     string     `json:"conversation_id,omitempty"`
	Response           string     `json:"response,omitempty"`
	LastError          string     `json:"last_error,omitempty"`
	SentAt             *time.Time `json:"sent_at,omitempty"`
	RespondedAt        *time.Time `json:"responded_at,omitempty"`
	CreatedAt          time.Time  `json:"created_at"`
}

// Render fills {pet_name} in the template.
func Render(template, petName string) string {
	if strings.TrimSpace(petName) == "" {
		petName = DefaultPetName
	}
	return strings.ReplaceAll(template, "{pet_name}", petName)
}

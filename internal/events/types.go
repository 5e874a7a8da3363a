package events

import "time"

// Event type names. Subjects on the bus are "<prefix>.<type>".
const (
	TypeAppointmentBooked  = "appointment.booked.v1"
	TypeEmergencyEscalated = "emergency.escalated.v1"
	TypeConversationEnded  = "conversation.ended.v1"
	TypeFollowUpEscalated  = "followup.escalated.v1"
)

// Event is a versioned domain event written to the outbox.
type Event interface {
	EventType() string
}

type AppointmentBookedV1 struct {
	AppointmentID  string    `json:"appointment_id"`
	ClinicID       string    `json:"clinic_id"`
	ConversationID string    `json:"conversation_id,omitempty"`
	ClientPhone    string    `json:"client_phone"`
	PetName        string    `json:"pet_name,omitempty"`
	PetSpecies     string    `json:"pet_species"`
	Type           string    `json:"type"`
	Reason         string    `json:"reason"`
	StartsAt       time.Time `json:"starts_at"`
	EndsAt         time.Time `json:"ends_at"`
	Channel        string    `json:"channel"`
}

func (AppointmentBookedV1) EventType() string { return TypeAppointmentBooked }

type EmergencyEscalatedV1 struct {
	EventID        string    `json:"event_id"`
	ClinicID       string    `json:"clinic_id"`
	ConversationID string    `json:"conversation_id,omitempty"`
	ClientPhone    string    `json:"client_phone"`
	PetName        string    `json:"pet_name,omitempty"`
	PetSpecies     string    `json:"pet_species,omitempty"`
	Description    string    `json:"description,omitempty"`
	Keywords       []string  `json:"keywords,omitempty"`
	Priority       string    `json:"priority"`
	AlertsSent     int       `json:"alerts_sent"`
	Reached        bool      `json:"reached"`
	RaisedAt       time.Time `json:"raised_at"`
}

func (EmergencyEscalatedV1) EventType() string { return TypeEmergencyEscalated }

// TranscriptLine is one message of an ended conversation.
type TranscriptLine struct {
	Role      string    `json:"role"`
	Content   string    `json:"content"`
	CreatedAt time.Time `json:"created_at"`
}

type ConversationEndedV1 struct {
	ConversationID string           `json:"conversation_id"`
	ClinicID       string           `json:"clinic_id"`
	Channel        string           `json:"channel"`
	ClientPhone    string           `json:"client_phone"`
	Status         string           `json:"status"`
	Outcome        string           `json:"outcome,omitempty"`
	FinalState     string           `json:"final_state"`
	StartedAt      time.Time        `json:"started_at"`
	EndedAt        time.Time        `json:"ended_at"`
	Transcript     []TranscriptLine `json:"transcript"`
}

func (ConversationEndedV1) EventType() string { return TypeConversationEnded }

type FollowUpEscalatedV1 struct {
	FollowUpID     string    `json:"follow_up_id"`
	ClinicID       string    `json:"clinic_id"`
	AppointmentID  string    `json:"appointment_id"`
	ConversationID string    `json:"conversation_id,omitempty"`
	ClientPhone    string    `json:"client_phone"`
	PetName        string    `json:"pet_name,omitempty"`
	Response       string    `json:"response"`
	EscalatedAt    time.Time `json:"escalated_at"`
}

func (FollowUpEscalatedV1) EventType() string { return TypeFollowUpEscalated }

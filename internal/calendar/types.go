// Package calendar generates bookable slots from clinic hours and books
// appointments with a conflict check inside the insert's critical section.
package calendar

import (
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"
)

var (
	// ErrSlotTaken reports that the requested window overlaps another appointment.
	ErrSlotTaken = errors.New("calendar: slot taken")
	// ErrIncompleteBooking reports a booking request missing required fields.
	ErrIncompleteBooking = errors.New("calendar: incomplete booking data")
	// ErrOutsideHours reports a window outside the clinic's working hours.
	ErrOutsideHours = errors.New("calendar: outside working hours")
	// ErrNotFound is returned when an appointment does not exist.
	ErrNotFound = errors.New("calendar: appointment not found")
)

// Booking failure codes surfaced to callers.
const (
	CodeSlotTaken      = "SLOT_TAKEN"
	CodeIncompleteInfo = "INCOMPLETE_INFO"
	CodeOutsideHours   = "OUTSIDE_HOURS"
)

// TimeSlot is a local wall-clock window such as 09:00-09:30.
type TimeSlot struct {
	Start string `json:"start"`
	End   string `json:"end"`
}

// Equal reports whether both start and end match exactly.
func (s TimeSlot) Equal(o TimeSlot) bool {
	return s.Start == o.Start && s.End == o.End
}

func (s TimeSlot) String() string {
	return s.Start + "-" + s.End
}

// StartClock returns the start hour and minute.
func (s TimeSlot) StartClock() (int, int, error) {
	return parseClock(s.Start)
}

// On anchors the slot to a local day.
func (s TimeSlot) On(day time.Time) (time.Time, time.Time, error) {
	sh, sm, err := parseClock(s.Start)
	if err != nil {
		return time.Time{}, time.Time{}, err
	}
	eh, em, err := parseClock(s.End)
	if err != nil {
		return time.Time{}, time.Time{}, err
	}
	y, m, d := day.Date()
	loc := day.Location()
	return time.Date(y, m, d, sh, sm, 0, 0, loc), time.Date(y, m, d, eh, em, 0, 0, loc), nil
}

func parseClock(v string) (int, int, error) {
	hh, mm, ok := strings.Cut(strings.TrimSpace(v), ":")
	if !ok {
		return 0, 0, fmt.Errorf("calendar: invalid clock %q", v)
	}
	h, err := strconv.Atoi(hh)
	if err != nil || h < 0 || h > 23 {
		return 0, 0, fmt.Errorf("calendar: invalid hour in %q", v)
	}
	m, err := strconv.Atoi(mm)
	if err != nil || m < 0 || m > 59 {
		return 0, 0, fmt.Errorf("calendar: invalid minute in %q", v)
	}
	return h, m, nil
}

// NextSlot is the earliest bookable time found by NextAvailable.
type NextSlot struct {
	Date time.Time `json:"date"`
	Slot TimeSlot  `json:"slot"`
}

// AppointmentType drives duration and follow-up protocol selection.
type AppointmentType string

const (
	TypeConsultation AppointmentType = "consultation"
	TypeVaccination  AppointmentType = "vaccination"
	TypeSurgery      AppointmentType = "surgery"
	TypeGrooming     AppointmentType = "grooming"
	TypeEmergency    AppointmentType = "emergency"
	TypeDental       AppointmentType = "dental"
	TypeFollowUp     AppointmentType = "followup"
)

// Status is the lifecycle state of an appointment.
type Status string

const (
	StatusScheduled Status = "scheduled"
	StatusConfirmed Status = "confirmed"
	StatusCompleted Status = "completed"
	StatusCancelled Status = "cancelled"
	StatusNoShow    Status = "no_show"
)

// Source records which surface created an appointment.
type Source string

const (
	SourceAIVoice   Source = "ai_voice"
	SourceAIChat    Source = "ai_chat"
	SourceAIWebchat Source = "ai_webchat"
	SourceStaff     Source = "staff"
)

// Appointment is a booked window on the clinic calendar.
type Appointment struct {
	ID              string          `json:"id"`
	ClinicID        string          `json:"clinic_id"`
	StaffID         string          `json:"staff_id,omitempty"`
	ClientID        string          `json:"client_id,omitempty"`
	ClientPhone     string          `json:"client_phone"`
	ClientName      string          `json:"client_name,omitempty"`
	PetName         string          `json:"pet_name,omitempty"`
	PetSpecies      string          `json:"pet_species"`
	Type            AppointmentType `json:"type"`
	Reason          string          `json:"reason"`
	StartsAt        time.Time       `json:"starts_at"`
	EndsAt          time.Time       `json:"ends_at"`
	DurationMinutes int             `json:"duration_minutes"`
	Status          Status          `json:"status"`
	Source          Source          `json:"source"`
	Priority        string          `json:"priority"`
	ConversationID  string          `json:"conversation_id,omitempty"`
	CreatedAt       time.Time       `json:"created_at"`
	CompletedAt     *time.Time      `json:"completed_at,omitempty"`
}

// Overlaps reports whether the appointment intersects [start, end).
func (a Appointment) Overlaps(start, end time.Time) bool {
	return start.Before(a.EndsAt) && end.After(a.StartsAt)
}

// BookingRequest carries everything needed to place an appointment.
type BookingRequest struct {
	StaffID        string
	ClientID       string
	ClientPhone    string
	ClientName     string
	PetName        string
	PetSpecies     string
	Reason         string
	Type           AppointmentType
	Date           time.Time
	Slot           TimeSlot
	Source         Source
	ConversationID string
}

// Missing lists the required fields that are empty.
func (r BookingRequest) Missing() []string {
	var missing []string
	if strings.TrimSpace(r.ClientPhone) == "" {
		missing = append(missing, "client_phone")
	}
	if strings.TrimSpace(r.PetSpecies) == "" {
		missing = append(missing, "pet_species")
	}
	if strings.TrimSpace(r.Reason) == "" {
		missing = append(missing, "reason")
	}
	if r.Date.IsZero() {
		missing = append(missing, "date")
	}
	if strings.TrimSpace(r.Slot.Start) == "" {
		missing = append(missing, "slot")
	}
	return missing
}

// BookingResult is the structured outcome of Book.
type BookingResult struct {
	Success          bool         `json:"success"`
	Appointment      *Appointment `json:"appointment,omitempty"`
	ErrorCode        string       `json:"error_code,omitempty"`
	Message          string       `json:"message,omitempty"`
	Alternatives     []TimeSlot   `json:"alternatives,omitempty"`
	AlternativesDate time.Time    `json:"alternatives_date,omitempty"`
}

// Err maps a failed result onto the package sentinels.
func (r BookingResult) Err() error {
	if r.Success {
		return nil
	}
	switch r.ErrorCode {
	case CodeSlotTaken:
		return ErrSlotTaken
	case CodeIncompleteInfo:
		return ErrIncompleteBooking
	case CodeOutsideHours:
		return ErrOutsideHours
	}
	return fmt.Errorf("calendar: booking failed: %s", r.ErrorCode)
}

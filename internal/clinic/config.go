package clinic

import (
	"errors"
	"fmt"
	"sort"
	"strings"
	"time"
)

// ErrClinicNotFound is returned when a phone number or id maps to no clinic.
var ErrClinicNotFound = errors.New("clinic: not found")

// DefaultTimezone is used when a clinic has no timezone configured.
const DefaultTimezone = "America/Bogota"

// DefaultContactPriority is the priority assumed for contacts without one.
const DefaultContactPriority = 99

// DayHours represents open/close times for a single day.
type DayHours struct {
	Open  string `json:"open" yaml:"open"`   // "08:00" in 24-hour format
	Close string `json:"close" yaml:"close"` // "18:00" in 24-hour format
}

// Bounds returns the open and close instants of h on the given local day.
func (h DayHours) Bounds(day time.Time) (time.Time, time.Time, error) {
	open, err := time.Parse("15:04", h.Open)
	if err != nil {
		return time.Time{}, time.Time{}, fmt.Errorf("clinic: invalid open time %q: %w", h.Open, err)
	}
	closeAt, err := time.Parse("15:04", h.Close)
	if err != nil {
		return time.Time{}, time.Time{}, fmt.Errorf("clinic: invalid close time %q: %w", h.Close, err)
	}
	y, m, d := day.Date()
	loc := day.Location()
	return time.Date(y, m, d, open.Hour(), open.Minute(), 0, 0, loc),
		time.Date(y, m, d, closeAt.Hour(), closeAt.Minute(), 0, 0, loc), nil
}

// BusinessHours holds weekly hours. A nil day is closed.
type BusinessHours struct {
	Monday    *DayHours `json:"monday,omitempty" yaml:"monday,omitempty"`
	Tuesday   *DayHours `json:"tuesday,omitempty" yaml:"tuesday,omitempty"`
	Wednesday *DayHours `json:"wednesday,omitempty" yaml:"wednesday,omitempty"`
	Thursday  *DayHours `json:"thursday,omitempty" yaml:"thursday,omitempty"`
	Friday    *DayHours `json:"friday,omitempty" yaml:"friday,omitempty"`
	Saturday  *DayHours `json:"saturday,omitempty" yaml:"saturday,omitempty"`
	Sunday    *DayHours `json:"sunday,omitempty" yaml:"sunday,omitempty"`
}

// GetHoursForDay returns the hours for a weekday, or nil when closed.
func (b *BusinessHours) GetHoursForDay(weekday time.Weekday) *DayHours {
	switch weekday {
	case time.Sunday:
		return b.Sunday
	case time.Monday:
		return b.Monday
	case time.Tuesday:
		return b.Tuesday
	case time.Wednesday:
		return b.Wednesday
	case time.Thursday:
		return b.Thursday
	case time.Friday:
		return b.Friday
	case time.Saturday:
		return b.Saturday
	}
	return nil
}

// HasAnyHours reports whether at least one day is open.
func (b *BusinessHours) HasAnyHours() bool {
	return b.Monday != nil || b.Tuesday != nil || b.Wednesday != nil ||
		b.Thursday != nil || b.Friday != nil || b.Saturday != nil || b.Sunday != nil
}

// Contact is one on-call escalation target.
type Contact struct {
	Name     string `json:"name" yaml:"name"`
	Phone    string `json:"phone" yaml:"phone"`
	Role     string `json:"role,omitempty" yaml:"role,omitempty"`
	Priority *int   `json:"priority,omitempty" yaml:"priority,omitempty"`
}

// EffectivePriority returns the contact's priority, lower is more urgent.
func (c Contact) EffectivePriority() int {
	if c.Priority == nil {
		return DefaultContactPriority
	}
	return *c.Priority
}

// SortContacts returns a copy of contacts ordered by priority ascending.
// Contacts sharing a priority keep their configured order.
func SortContacts(contacts []Contact) []Contact {
	out := make([]Contact, len(contacts))
	copy(out, contacts)
	sort.SliceStable(out, func(i, j int) bool {
		return out[i].EffectivePriority() < out[j].EffectivePriority()
	})
	return out
}

// FollowUpProtocol describes the post-care messages sent after an appointment type.
type FollowUpProtocol struct {
	Name               string   `json:"name" yaml:"name"`
	AppointmentType    string   `json:"appointment_type" yaml:"appointment_type"`
	ScheduleHours      []int    `json:"schedule_hours" yaml:"schedule_hours"`
	MessageTemplates   []string `json:"message_templates" yaml:"message_templates"`
	EscalationKeywords []string `json:"escalation_keywords,omitempty" yaml:"escalation_keywords,omitempty"`
	Disabled           bool     `json:"disabled,omitempty" yaml:"disabled,omitempty"`
}

// NotificationPrefs controls clinic-facing notifications.
type NotificationPrefs struct {
	EmailEnabled    bool     `json:"email_enabled" yaml:"email_enabled"`
	EmailRecipients []string `json:"email_recipients,omitempty" yaml:"email_recipients,omitempty"`
}

// Config holds clinic-specific settings used by the assistant.
type Config struct {
	ID                   string             `json:"id" yaml:"id"`
	Name                 string             `json:"name" yaml:"name"`
	Phone                string             `json:"phone,omitempty" yaml:"phone,omitempty"`
	Email                string             `json:"email,omitempty" yaml:"email,omitempty"`
	Address              string             `json:"address,omitempty" yaml:"address,omitempty"`
	Timezone             string             `json:"timezone" yaml:"timezone"`
	Numbers              []string           `json:"numbers,omitempty" yaml:"numbers,omitempty"`
	BusinessHours        BusinessHours      `json:"business_hours" yaml:"business_hours"`
	AppointmentDurations map[string]int     `json:"appointment_durations,omitempty" yaml:"appointment_durations,omitempty"`
	EscalationContacts   []Contact          `json:"escalation_contacts,omitempty" yaml:"escalation_contacts,omitempty"`
	FollowUpProtocols    []FollowUpProtocol `json:"follow_up_protocols,omitempty" yaml:"follow_up_protocols,omitempty"`
	ReminderNudges       bool               `json:"reminder_nudges" yaml:"reminder_nudges"`
	Notifications        NotificationPrefs  `json:"notifications" yaml:"notifications"`
}

// DefaultConfig returns the settings a clinic gets before it is configured.
func DefaultConfig(clinicID string) *Config {
	weekday := func() *DayHours { return &DayHours{Open: "08:00", Close: "18:00"} }
	return &Config{
		ID:       clinicID,
		Name:     "la clínica veterinaria",
		Timezone: DefaultTimezone,
		BusinessHours: BusinessHours{
			Monday:    weekday(),
			Tuesday:   weekday(),
			Wednesday: weekday(),
			Thursday:  weekday(),
			Friday:    weekday(),
			Saturday:  &DayHours{Open: "09:00", Close: "14:00"},
			Sunday:    nil,
		},
		AppointmentDurations: map[string]int{},
		FollowUpProtocols:    DefaultFollowUpProtocols(),
	}
}

// Location loads the clinic timezone, falling back to UTC.
func (c *Config) Location() *time.Location {
	tz := strings.TrimSpace(c.Timezone)
	if tz == "" {
		tz = DefaultTimezone
	}
	loc, err := time.LoadLocation(tz)
	if err != nil {
		return time.UTC
	}
	return loc
}

// HoursOn returns the hours for the local day of t, or nil when closed.
func (c *Config) HoursOn(t time.Time) *DayHours {
	return c.BusinessHours.GetHoursForDay(t.In(c.Location()).Weekday())
}

// IsOpenAt checks if the clinic is open at the given time.
func (c *Config) IsOpenAt(t time.Time) bool {
	local := t.In(c.Location())
	hours := c.HoursOn(local)
	if hours == nil {
		return false
	}
	open, closeAt, err := hours.Bounds(local)
	if err != nil {
		return false
	}
	return !local.Before(open) && local.Before(closeAt)
}

// DurationOverride returns a configured duration for an appointment type.
func (c *Config) DurationOverride(appointmentType string) (int, bool) {
	if c == nil || c.AppointmentDurations == nil {
		return 0, false
	}
	minutes, ok := c.AppointmentDurations[strings.ToLower(strings.TrimSpace(appointmentType))]
	return minutes, ok && minutes > 0
}

// ProtocolFor returns the active follow-up protocol for an appointment type.
func (c *Config) ProtocolFor(appointmentType string) (FollowUpProtocol, bool) {
	key := strings.ToLower(strings.TrimSpace(appointmentType))
	for _, p := range c.FollowUpProtocols {
		if !p.Disabled && strings.EqualFold(p.AppointmentType, key) {
			return p, true
		}
	}
	return FollowUpProtocol{}, false
}

// Validate checks the settings an operator can get wrong in a profile file.
func (c *Config) Validate() error {
	if strings.TrimSpace(c.ID) == "" {
		return errors.New("clinic: id is required")
	}
	if _, err := time.LoadLocation(c.Timezone); err != nil {
		return fmt.Errorf("clinic %s: invalid timezone %q: %w", c.ID, c.Timezone, err)
	}
	for _, wd := range []time.Weekday{time.Sunday, time.Monday, time.Tuesday, time.Wednesday, time.Thursday, time.Friday, time.Saturday} {
		h := c.BusinessHours.GetHoursForDay(wd)
		if h == nil {
			continue
		}
		open, closeAt, err := h.Bounds(time.Date(2000, 1, 1, 0, 0, 0, 0, time.UTC))
		if err != nil {
			return fmt.Errorf("clinic %s %s: %w", c.ID, wd, err)
		}
		if !open.Before(closeAt) {
			return fmt.Errorf("clinic %s %s: open %s is not before close %s", c.ID, wd, h.Open, h.Close)
		}
	}
	for i, p := range c.FollowUpProtocols {
		if len(p.ScheduleHours) != len(p.MessageTemplates) {
			return fmt.Errorf("clinic %s: protocol %d has %d hours but %d templates", c.ID, i, len(p.ScheduleHours), len(p.MessageTemplates))
		}
	}
	return nil
}

// DefaultFollowUpProtocols returns the built-in post-care protocols.
func DefaultFollowUpProtocols() []FollowUpProtocol {
	return []FollowUpProtocol{
		{
			Name:            "Post-cirugía",
			AppointmentType: "surgery",
			ScheduleHours:   []int{24, 48, 72, 168},
			MessageTemplates: []string{
				"Hola, ¿cómo sigue {pet_name} después de la cirugía de ayer? ¿Ha comido y orinado con normalidad?",
				"Hola, segundo día post-operatorio. ¿Cómo va la recuperación de {pet_name}? ¿Alguna molestia o sangrado?",
				"Hola, ¿cómo sigue {pet_name}? ¿La herida se ve bien? ¿Ha tenido fiebre o dejado de comer?",
				"Hola, esta semana toca revisión de puntos para {pet_name}. ¿Quieres que agendemos la cita?",
			},
			EscalationKeywords: []string{"sangre", "sangrado", "fiebre", "no come", "hinchado", "pus", "olor", "vomita"},
		},
		{
			Name:            "Post-vacuna",
			AppointmentType: "vaccination",
			ScheduleHours:   []int{24},
			MessageTemplates: []string{
				"Hola, ¿cómo está {pet_name} después de la vacuna? Es normal algo de decaimiento. Si presenta vómito, diarrea o hinchazón en la cara, escríbenos de inmediato.",
			},
			EscalationKeywords: []string{"vómito", "diarrea", "hinchazón", "cara hinchada", "no respira", "temblando"},
		},
		{
			Name:               "Post-consulta",
			AppointmentType:    "consultation",
			ScheduleHours:      []int{48},
			MessageTemplates:   []string{"Hola, ¿cómo sigue {pet_name}? ¿Ha mejorado con el tratamiento?"},
			EscalationKeywords: []string{"peor", "empeora", "no mejora", "igual", "mal"},
		},
		{
			Name:            "Post-limpieza dental",
			AppointmentType: "dental",
			ScheduleHours:   []int{24, 72},
			MessageTemplates: []string{
				"Hola, ¿cómo está {pet_name} después de la limpieza dental? Recuerda que no debe comer alimento duro por 24 horas.",
				"Hola, ¿cómo va {pet_name}? ¿Ya puede comer con normalidad? ¿Alguna molestia?",
			},
			EscalationKeywords: []string{"sangre", "no come", "dolor", "hinchado"},
		},
	}
}

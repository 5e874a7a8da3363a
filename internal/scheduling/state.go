package scheduling

import (
	"strings"
	"time"

	"github.com/wolfman30/vetclinic-ai-platform/internal/calendar"
)

// Required fields, in the order they are asked for.
const (
	FieldSpecies       = "species"
	FieldReason        = "reason"
	FieldPreferredDate = "preferred_date"
)

const maxReasonLength = 200

// State is the scratch data a scheduling negotiation accumulates across
// turns. It is persisted with the conversation. PreferredDate is the day the
// client asked for; OfferDate is the day of OfferedSlots, which differs when
// the requested day had nothing free.
type State struct {
	Species       string              `json:"species,omitempty"`
	PetName       string              `json:"pet_name,omitempty"`
	Reason        string              `json:"reason,omitempty"`
	PreferredDate string              `json:"preferred_date,omitempty"`
	PreferredTime string              `json:"preferred_time,omitempty"`
	ClientName    string              `json:"client_name,omitempty"`
	ClientPhone   string              `json:"client_phone,omitempty"`
	OfferDate     string              `json:"offer_date,omitempty"`
	OfferedSlots  []calendar.TimeSlot `json:"offered_slots,omitempty"`
	SelectedSlot  *calendar.TimeSlot  `json:"selected_slot,omitempty"`
	AwaitingField string              `json:"awaiting_field,omitempty"`
}

// Extraction is what a classifier pulled out of a single message. Empty
// fields mean "not mentioned".
type Extraction struct {
	Species       string
	PetName       string
	Reason        string
	PreferredDate string
	PreferredTime string
	ClientName    string
}

// Merge folds newly extracted fields into the state. Only present fields
// overwrite; a missing value never clears what is already known, so
// merging the same extraction twice is a no-op the second time. Dates are
// resolved against today and unparseable or past dates are dropped.
func (s *State) Merge(e Extraction, today time.Time) {
	if v := CanonicalSpecies(e.Species); v != "" {
		s.Species = v
	}
	if v := strings.TrimSpace(e.PetName); v != "" {
		s.PetName = v
	}
	if v := strings.TrimSpace(e.Reason); v != "" {
		s.Reason = truncate(v, maxReasonLength)
	}
	if d, ok := resolveDate(e.PreferredDate, today); ok {
		s.PreferredDate = d
	}
	if v := strings.TrimSpace(e.PreferredTime); v != "" {
		s.PreferredTime = v
	}
	if v := strings.TrimSpace(e.ClientName); v != "" {
		s.ClientName = v
	}
}

func resolveDate(v string, today time.Time) (string, bool) {
	if strings.TrimSpace(v) == "" {
		return "", false
	}
	d, ok := ParseDate(v, today)
	if !ok {
		return "", false
	}
	return FormatDate(d), true
}

// MissingFields lists unset required fields in asking order.
func (s *State) MissingFields() []string {
	var missing []string
	if s.Species == "" {
		missing = append(missing, FieldSpecies)
	}
	if s.Reason == "" {
		missing = append(missing, FieldReason)
	}
	if s.PreferredDate == "" {
		missing = append(missing, FieldPreferredDate)
	}
	return missing
}

// IsComplete reports whether the state carries everything Book needs.
func (s *State) IsComplete() bool {
	return s.Species != "" && s.Reason != "" && s.SelectedSlot != nil && s.ClientPhone != ""
}

// HasPendingOffer reports whether slots were offered and none picked yet.
func (s *State) HasPendingOffer() bool {
	return len(s.OfferedSlots) > 0 && s.SelectedSlot == nil
}

// Date returns the requested date as a local day in loc.
func (s *State) Date(loc *time.Location) (time.Time, bool) {
	return parseDay(s.PreferredDate, loc)
}

// SlotDate returns the day of the offered slots, falling back to the
// requested date for state saved before offers carried their own day.
func (s *State) SlotDate(loc *time.Location) (time.Time, bool) {
	if s.OfferDate != "" {
		return parseDay(s.OfferDate, loc)
	}
	return s.Date(loc)
}

// SetOffer records slots offered for day and drops any earlier selection.
func (s *State) SetOffer(day time.Time, slots []calendar.TimeSlot) {
	s.OfferDate = FormatDate(day)
	s.OfferedSlots = slots
	s.SelectedSlot = nil
}

// ClearOffer drops the offered list and any selection.
func (s *State) ClearOffer() {
	s.OfferDate = ""
	s.OfferedSlots = nil
	s.SelectedSlot = nil
}

func parseDay(v string, loc *time.Location) (time.Time, bool) {
	if v == "" {
		return time.Time{}, false
	}
	d, err := time.ParseInLocation("2006-01-02", v, loc)
	if err != nil {
		return time.Time{}, false
	}
	return d, true
}

// Clone returns a deep copy.
func (s State) Clone() State {
	out := s
	if s.OfferedSlots != nil {
		out.OfferedSlots = append([]calendar.TimeSlot(nil), s.OfferedSlots...)
	}
	if s.SelectedSlot != nil {
		sel := *s.SelectedSlot
		out.SelectedSlot = &sel
	}
	return out
}

func truncate(v string, n int) string {
	r := []rune(v)
	if len(r) <= n {
		return v
	}
	return string(r[:n])
}

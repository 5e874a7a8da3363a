package scheduling

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/wolfman30/vetclinic-ai-platform/internal/calendar"
)

// Action is the negotiator's decision for a turn.
type Action string

const (
	ActionAsk         Action = "ask_field"
	ActionOffer       Action = "offer_slots"
	ActionReprompt    Action = "reprompt"
	ActionReady       Action = "ready_to_book"
	ActionUnavailable Action = "no_availability"
)

// SlotSource is the part of the calendar the negotiator reads.
type SlotSource interface {
	FindAvailableSlots(ctx context.Context, clinicID string, date time.Time, durationMinutes int) ([]calendar.TimeSlot, error)
	NextAvailable(ctx context.Context, clinicID string, durationMinutes int) (*calendar.NextSlot, error)
}

// Request is one negotiation turn.
type Request struct {
	ClinicID   string
	Text       string
	Extraction Extraction
	// Now is the current time in the clinic's timezone.
	Now time.Time
	// Duration maps a consultation reason to minutes. Nil means the
	// calendar default.
	Duration func(reason string) int
}

// Decision is what the engine should do next.
type Decision struct {
	Action      Action
	Field       string
	Slots       []calendar.TimeSlot
	Date        time.Time
	Alternative bool
	Message     string
}

// Negotiator runs the per-turn scheduling algorithm over a State.
type Negotiator struct {
	slots SlotSource
}

// NewNegotiator wires the negotiator to a slot source.
func NewNegotiator(slots SlotSource) *Negotiator {
	if slots == nil {
		panic("scheduling: slot source cannot be nil")
	}
	return &Negotiator{slots: slots}
}

// Step merges the turn into st and decides one action. st is mutated in
// place; callers that need rollback should pass a clone.
func (n *Negotiator) Step(ctx context.Context, st *State, req Request) (Decision, error) {
	today := startOfDay(req.Now)
	previousDate := st.PreferredDate

	st.Merge(req.Extraction, today)
	n.fillAwaited(st, req.Text, today)

	if st.HasPendingOffer() {
		// Repeating the original day or naming the offered day keeps the
		// offer; only a third date starts over.
		asked := st.PreferredDate
		if asked == "" || asked == previousDate || asked == st.OfferDate {
			return n.selectFromOffer(st, req)
		}
		st.ClearOffer()
	}

	missing := st.MissingFields()
	if len(missing) == 0 {
		return n.offer(ctx, st, req, today)
	}

	field := missing[0]
	st.AwaitingField = field
	return Decision{Action: ActionAsk, Field: field, Message: QuestionFor(field)}, nil
}

// fillAwaited treats a bare answer to the last question as that field.
func (n *Negotiator) fillAwaited(st *State, text string, today time.Time) {
	text = strings.TrimSpace(text)
	if text == "" {
		return
	}
	switch st.AwaitingField {
	case FieldSpecies:
		if st.Species == "" && len(strings.Fields(text)) <= 3 {
			st.Species = CanonicalSpecies(text)
		}
	case FieldReason:
		if st.Reason == "" {
			st.Reason = truncate(text, maxReasonLength)
		}
	case FieldPreferredDate:
		if st.PreferredDate == "" {
			if d, ok := ParseDate(text, today); ok {
				st.PreferredDate = FormatDate(d)
			}
		}
	}
	if field := st.AwaitingField; field != "" && !contains(st.MissingFields(), field) {
		st.AwaitingField = ""
	}
}

func (n *Negotiator) selectFromOffer(st *State, req Request) (Decision, error) {
	day, _ := st.SlotDate(req.Now.Location())
	slot, ok := MatchSlot(req.Text, st.OfferedSlots)
	if !ok && strings.TrimSpace(req.Extraction.PreferredTime) != "" {
		slot, ok = MatchSlot(req.Extraction.PreferredTime, st.OfferedSlots)
	}
	if ok {
		st.SelectedSlot = &slot
		return Decision{Action: ActionReady, Slots: []calendar.TimeSlot{slot}, Date: day}, nil
	}
	return Decision{
		Action:  ActionReprompt,
		Slots:   st.OfferedSlots,
		Date:    day,
		Message: RepromptText(day, req.Now, st.OfferedSlots),
	}, nil
}

func (n *Negotiator) offer(ctx context.Context, st *State, req Request, today time.Time) (Decision, error) {
	loc := req.Now.Location()
	day, ok := st.Date(loc)
	if !ok {
		st.AwaitingField = FieldPreferredDate
		return Decision{Action: ActionAsk, Field: FieldPreferredDate, Message: QuestionFor(FieldPreferredDate)}, nil
	}
	duration := 0
	if req.Duration != nil {
		duration = req.Duration(st.Reason)
	}

	found, err := n.slots.FindAvailableSlots(ctx, req.ClinicID, day, duration)
	if err != nil {
		return Decision{}, fmt.Errorf("scheduling: find slots: %w", err)
	}
	if offered := SpreadSlots(found, MaxOffered); len(offered) > 0 {
		st.SetOffer(day, offered)
		return Decision{Action: ActionOffer, Slots: offered, Date: day, Message: OfferText(day, req.Now, offered)}, nil
	}

	next, err := n.slots.NextAvailable(ctx, req.ClinicID, duration)
	if err != nil {
		return Decision{}, fmt.Errorf("scheduling: next available: %w", err)
	}
	if next == nil {
		st.ClearOffer()
		return Decision{Action: ActionUnavailable, Date: day, Message: UnavailableText}, nil
	}

	nextDay := startOfDay(next.Date.In(loc))
	alt, err := n.slots.FindAvailableSlots(ctx, req.ClinicID, nextDay, duration)
	if err != nil {
		return Decision{}, fmt.Errorf("scheduling: find slots: %w", err)
	}
	offered := SpreadSlots(alt, MaxOffered)
	if len(offered) == 0 {
		offered = []calendar.TimeSlot{next.Slot}
	}
	st.SetOffer(nextDay, offered)
	return Decision{
		Action:      ActionOffer,
		Slots:       offered,
		Date:        nextDay,
		Alternative: true,
		Message:     AlternativeText(day, nextDay, req.Now, offered),
	}, nil
}

// SpreadSlots keeps the first slot of each hour, up to limit, so an offer
// covers the day instead of four quarter-hours of the same hour.
func SpreadSlots(slots []calendar.TimeSlot, limit int) []calendar.TimeSlot {
	out := make([]calendar.TimeSlot, 0, limit)
	seen := map[int]bool{}
	for _, slot := range slots {
		if len(out) == limit {
			break
		}
		h, _, err := slot.StartClock()
		if err != nil || seen[h] {
			continue
		}
		seen[h] = true
		out = append(out, slot)
	}
	return out
}

func contains(list []string, v string) bool {
	for _, s := range list {
		if s == v {
			return true
		}
	}
	return false
}

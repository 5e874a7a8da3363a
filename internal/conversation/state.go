package conversation

import "time"

// State is a node of the conversation state machine.
type State string

const (
	StateGreeting         State = "GREETING"
	StateIntentDetection  State = "INTENT_DETECTION"
	StateAskReason        State = "ASK_REASON"
	StateOfferSlots       State = "OFFER_SLOTS"
	StateAwaitSelection   State = "AWAIT_SELECTION"
	StateConfirmBooking   State = "CONFIRM_BOOKING"
	StateConfirmEmergency State = "CONFIRM_EMERGENCY"
	StateEscalate         State = "ESCALATE"
	StateCollectStatus    State = "COLLECT_STATUS"
	StateCompleted        State = "COMPLETED"
	StateReminder         State = "REMINDER"
	StateClosed           State = "CLOSED"
)

// AllStates lists every state in declaration order.
var AllStates = []State{
	StateGreeting,
	StateIntentDetection,
	StateAskReason,
	StateOfferSlots,
	StateAwaitSelection,
	StateConfirmBooking,
	StateConfirmEmergency,
	StateEscalate,
	StateCollectStatus,
	StateCompleted,
	StateReminder,
	StateClosed,
}

var transitions = map[State][]State{
	StateGreeting:         {StateIntentDetection, StateReminder},
	StateIntentDetection:  {StateAskReason, StateConfirmEmergency, StateCollectStatus, StateGreeting, StateReminder, StateClosed},
	StateAskReason:        {StateOfferSlots, StateConfirmEmergency, StateReminder},
	StateOfferSlots:       {StateAwaitSelection, StateAskReason, StateReminder},
	StateAwaitSelection:   {StateConfirmBooking, StateOfferSlots, StateReminder},
	StateConfirmBooking:   {StateCompleted, StateOfferSlots, StateReminder},
	StateConfirmEmergency: {StateEscalate, StateAskReason, StateClosed},
	StateEscalate:         {StateCompleted},
	StateCollectStatus:    {StateCompleted, StateEscalate, StateReminder},
	StateCompleted:        {StateClosed},
	StateReminder:         {StateIntentDetection, StateClosed},
	StateClosed:           {StateGreeting},
}

var timeouts = map[State]time.Duration{
	StateGreeting:         5 * time.Minute,
	StateIntentDetection:  10 * time.Minute,
	StateAskReason:        15 * time.Minute,
	StateOfferSlots:       15 * time.Minute,
	StateAwaitSelection:   15 * time.Minute,
	StateConfirmBooking:   10 * time.Minute,
	StateConfirmEmergency: 5 * time.Minute,
	StateCollectStatus:    24 * time.Hour,
	StateReminder:         24 * time.Hour,
}

// Valid reports whether s is a known state.
func (s State) Valid() bool {
	_, ok := transitions[s]
	return ok
}

// Terminal reports whether entering s ends the conversation.
func (s State) Terminal() bool {
	return s == StateCompleted || s == StateClosed
}

// Timeout is the inactivity window for s. Zero means no deadline.
func (s State) Timeout() time.Duration {
	return timeouts[s]
}

// Targets returns the legal next states of s.
func (s State) Targets() []State {
	return append([]State(nil), transitions[s]...)
}

// CanTransition reports whether from → to is in the transition table.
func CanTransition(from, to State) bool {
	for _, t := range transitions[from] {
		if t == to {
			return true
		}
	}
	return false
}

// PathTo returns the shortest chain of legal hops from → to, excluding from
// itself. It returns nil when to is unreachable or equal to from.
func PathTo(from, to State) []State {
	if from == to {
		return nil
	}
	prev := map[State]State{from: from}
	queue := []State{from}
	for len(queue) > 0 {
		cur := queue[0]
		queue = queue[1:]
		for _, next := range transitions[cur] {
			if _, seen := prev[next]; seen {
				continue
			}
			prev[next] = cur
			if next == to {
				var path []State
				for s := to; s != from; s = prev[s] {
					path = append([]State{s}, path...)
				}
				return path
			}
			queue = append(queue, next)
		}
	}
	return nil
}

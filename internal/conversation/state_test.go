package conversation

import (
	"testing"
	"time"

	"pgregory.net/rapid"
)

func TestPathToFollowsLegalHops(t *testing.T) {
	rapid.Check(t, func(t *rapid.T) {
		from := rapid.SampledFrom(AllStates).Draw(t, "from")
		to := rapid.SampledFrom(AllStates).Draw(t, "to")
		path := PathTo(from, to)
		if path == nil {
			return
		}
		if path[len(path)-1] != to {
			t.Fatalf("path %v does not end at %s", path, to)
		}
		cur := from
		for _, next := range path {
			if !CanTransition(cur, next) {
				t.Fatalf("illegal hop %s -> %s in %v", cur, next, path)
			}
			cur = next
		}
	})
}

func TestRandomWalkStaysInTable(t *testing.T) {
	rapid.Check(t, func(t *rapid.T) {
		cur := StateGreeting
		steps := rapid.IntRange(1, 40).Draw(t, "steps")
		for i := 0; i < steps; i++ {
			targets := cur.Targets()
			if len(targets) == 0 {
				t.Fatalf("%s has no exits", cur)
			}
			next := rapid.SampledFrom(targets).Draw(t, "next")
			if !next.Valid() || !CanTransition(cur, next) {
				t.Fatalf("walk left the table at %s -> %s", cur, next)
			}
			cur = next
		}
	})
}

func TestPathToConfirmEmergency(t *testing.T) {
	cases := map[State][]State{
		StateGreeting:       {StateIntentDetection, StateConfirmEmergency},
		StateOfferSlots:     {StateAskReason, StateConfirmEmergency},
		StateConfirmBooking: {StateOfferSlots, StateAskReason, StateConfirmEmergency},
		StateCollectStatus:  {StateReminder, StateIntentDetection, StateConfirmEmergency},
	}
	for from, want := range cases {
		got := PathTo(from, StateConfirmEmergency)
		if len(got) != len(want) {
			t.Fatalf("PathTo(%s) = %v, want %v", from, got, want)
		}
		for i := range want {
			if got[i] != want[i] {
				t.Fatalf("PathTo(%s) = %v, want %v", from, got, want)
			}
		}
	}
	if got := PathTo(StateEscalate, StateConfirmEmergency); len(got) == 0 || got[0] != StateCompleted {
		t.Fatalf("an escalated conversation must finish before anything else, got %v", got)
	}
}

func TestIllegalTransitionLeavesConversationUntouched(t *testing.T) {
	engine := newEngineFixture(t).engine
	changed := testNow.Add(-3 * time.Minute)
	deadline := changed.Add(5 * time.Minute)

	checked := 0
	for _, from := range AllStates {
		for _, to := range AllStates {
			if CanTransition(from, to) {
				continue
			}
			checked++
			conv := &Conversation{
				ID:              "conv-1",
				State:           from,
				Status:          StatusActive,
				LastStateChange: changed,
				TimeoutAt:       &deadline,
			}
			if engine.apply(conv, to, testNow) {
				t.Fatalf("%s -> %s should be rejected", from, to)
			}
			if conv.State != from || conv.Status != StatusActive || conv.EndedAt != nil {
				t.Fatalf("%s -> %s changed the conversation: %#v", from, to, conv)
			}
			if !conv.LastStateChange.Equal(changed) || conv.TimeoutAt != &deadline || !conv.TimeoutAt.Equal(deadline) {
				t.Fatalf("%s -> %s moved the deadline", from, to)
			}
		}
	}
	if checked == 0 {
		t.Fatal("transition table allows every pair")
	}
}

func TestTimeouts(t *testing.T) {
	for _, s := range AllStates {
		if s.Terminal() && s.Timeout() != 0 {
			t.Fatalf("terminal state %s should have no deadline", s)
		}
	}
	if StateEscalate.Timeout() != 0 {
		t.Fatal("ESCALATE waits for staff without a deadline")
	}
	if StateConfirmEmergency.Timeout() >= StateAskReason.Timeout() {
		t.Fatal("emergency confirmation should time out sooner than scheduling")
	}
}

func TestParseChannel(t *testing.T) {
	if c, ok := ParseChannel("webchat"); !ok || c != ChannelWebchat {
		t.Fatalf("expected webchat, got %q %v", c, ok)
	}
	if _, ok := ParseChannel("sms"); ok {
		t.Fatal("sms is a reply channel, not a conversation channel")
	}
}

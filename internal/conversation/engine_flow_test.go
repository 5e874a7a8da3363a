package conversation

import (
	"context"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/wolfman30/vetclinic-ai-platform/internal/calendar"
	"github.com/wolfman30/vetclinic-ai-platform/internal/classifier"
)

func (f *engineFixture) appointments() []calendar.Appointment {
	f.t.Helper()
	appts, err := f.appts.ListAppointments(context.Background(), testClinic, "", testNow.AddDate(0, 0, -1), testNow.AddDate(0, 1, 0))
	if err != nil {
		f.t.Fatalf("list appointments: %v", err)
	}
	return appts
}

// toConfirmBooking drives a fresh chat conversation to CONFIRM_BOOKING on
// the second slot offered for tomorrow.
func (f *engineFixture) toConfirmBooking() *Conversation {
	f.t.Helper()
	f.say(ChannelChat, "quiero vacunar a mi perro mañana", "")
	res := f.say(ChannelChat, "la segunda", "")
	if res.State != StateConfirmBooking {
		f.t.Fatalf("expected CONFIRM_BOOKING, got %s (%q)", res.State, res.ReplyText)
	}
	return f.conversation(res.ConversationID)
}

func TestEngine_BooksAlternativeDayWhenRequestedDateRepeats(t *testing.T) {
	f := newEngineFixture(t)
	f.scriptDefaults()
	// Sunday: the clinic is closed.
	f.script["quiero una consulta para mi gato el domingo"] = classifier.Result{
		Intent:     classifier.IntentSchedule,
		Confidence: 0.9,
		Urgency:    classifier.UrgencyNone,
		Data:       classifier.Extracted{Species: "gato", Reason: "consulta general", PreferredDate: "2026-03-08"},
	}
	// History-aware classifiers carry the requested day forward.
	f.script["la primera"] = classifier.Result{
		Intent:     classifier.IntentConfirmation,
		Confidence: 0.8,
		Urgency:    classifier.UrgencyNone,
		Data:       classifier.Extracted{PreferredDate: "2026-03-08"},
	}

	res := f.say(ChannelChat, "quiero una consulta para mi gato el domingo", "")
	if res.State != StateOfferSlots || !strings.Contains(res.ReplyText, "No hay disponibilidad el 08/03") {
		t.Fatalf("expected alternative offer, got %s %q", res.State, res.ReplyText)
	}
	st := f.conversation(res.ConversationID).Data.Scheduling
	if st.PreferredDate != "2026-03-08" || st.OfferDate == "" || st.OfferDate == st.PreferredDate {
		t.Fatalf("expected requested and offered days kept apart, got %q / %q", st.PreferredDate, st.OfferDate)
	}
	first := st.OfferedSlots[0]

	res = f.say(ChannelChat, "la primera", "")
	if res.State != StateConfirmBooking {
		t.Fatalf("alternative slot was not accepted: %s %q", res.State, res.ReplyText)
	}
	res = f.say(ChannelChat, "sí", "")
	if !res.AppointmentBooked {
		t.Fatalf("expected booking, got %#v", res)
	}

	appts := f.appointments()
	if len(appts) != 1 {
		t.Fatalf("expected one appointment, got %d", len(appts))
	}
	start := appts[0].StartsAt.In(f.cfg.Location())
	if got := start.Format("2006-01-02 15:04"); got != st.OfferDate+" "+first.Start {
		t.Fatalf("expected booking on the offered slot %s %s, got %s", st.OfferDate, first.Start, got)
	}
}

func TestEngine_ConcurrentConfirmationsBookOnce(t *testing.T) {
	f := newEngineFixture(t)
	f.scriptDefaults()
	f.toConfirmBooking()

	var wg sync.WaitGroup
	results := make([]TurnResult, 2)
	errs := make([]error, 2)
	for i, id := range []string{"SMa", "SMb"} {
		wg.Add(1)
		go func(i int, id string) {
			defer wg.Done()
			results[i], errs[i] = f.engine.Handle(context.Background(), Turn{
				ClinicID:   testClinic,
				Channel:    ChannelChat,
				Phone:      testPhone,
				Text:       "sí",
				ExternalID: id,
			})
		}(i, id)
	}
	wg.Wait()

	booked := 0
	for i := range results {
		if errs[i] != nil {
			t.Fatalf("turn %d failed: %v", i, errs[i])
		}
		if results[i].AppointmentBooked {
			booked++
		}
	}
	if booked != 1 {
		t.Fatalf("expected exactly one turn to book, got %d", booked)
	}
	if n := len(f.appointments()); n != 1 {
		t.Fatalf("expected one appointment, got %d", n)
	}
}

func TestEngine_SlotTakenReoffersAlternatives(t *testing.T) {
	f := newEngineFixture(t)
	f.scriptDefaults()
	conv := f.toConfirmBooking()
	st := conv.Data.Scheduling
	day, ok := st.SlotDate(f.cfg.Location())
	if !ok || st.SelectedSlot == nil {
		t.Fatalf("expected a selected slot, got %#v", st)
	}
	start, end, err := st.SelectedSlot.On(day)
	if err != nil {
		t.Fatalf("anchor slot: %v", err)
	}
	walkIn := &calendar.Appointment{
		ID:          "walk-in",
		ClinicID:    testClinic,
		ClientPhone: "+573009998877",
		PetSpecies:  "gato",
		Reason:      "consulta",
		StartsAt:    start,
		EndsAt:      end,
		Status:      calendar.StatusScheduled,
	}
	if err := f.appts.Insert(context.Background(), walkIn); err != nil {
		t.Fatalf("insert walk-in: %v", err)
	}

	res := f.say(ChannelChat, "sí", "")
	if res.AppointmentBooked || res.State != StateOfferSlots || !strings.HasPrefix(res.ReplyText, slotJustTaken) {
		t.Fatalf("expected alternatives after a lost race, got %s %q", res.State, res.ReplyText)
	}
	after := f.conversation(res.ConversationID).Data.Scheduling
	if after.SelectedSlot != nil || len(after.OfferedSlots) == 0 || len(after.OfferedSlots) > calendar.MaxAlternatives {
		t.Fatalf("unexpected offer after SLOT_TAKEN: %#v", after)
	}
	for _, s := range after.OfferedSlots {
		if s.Start == st.SelectedSlot.Start && after.OfferDate == st.OfferDate {
			t.Fatalf("taken slot %s offered again", s.Start)
		}
	}

	f.say(ChannelChat, "la primera", "")
	res = f.say(ChannelChat, "sí", "")
	if !res.AppointmentBooked {
		t.Fatalf("expected the alternative to book, got %#v", res)
	}
	if n := len(f.appointments()); n != 2 {
		t.Fatalf("expected walk-in plus booking, got %d", n)
	}
}

func TestEngine_EmergencyPreemptsEveryActiveState(t *testing.T) {
	for _, state := range AllStates {
		if state.Terminal() || state == StateConfirmEmergency || state == StateEscalate {
			continue
		}
		t.Run(string(state), func(t *testing.T) {
			f := newEngineFixture(t)
			f.scriptDefaults()
			changed := testNow.Add(-time.Minute)
			deadline := testNow.Add(time.Minute)
			seeded := &Conversation{
				ID:              "conv-" + string(state),
				ClinicID:        testClinic,
				Channel:         ChannelChat,
				Phone:           testPhone,
				State:           state,
				Status:          StatusActive,
				StartedAt:       changed,
				LastStateChange: changed,
				TimeoutAt:       &deadline,
			}
			if err := f.memory.Create(context.Background(), seeded); err != nil {
				t.Fatalf("seed: %v", err)
			}

			res := f.say(ChannelChat, "mi perro fue atropellado y sangra", "")
			if res.ConversationID != seeded.ID || res.State != StateConfirmEmergency {
				t.Fatalf("expected %s to preempt to CONFIRM_EMERGENCY on the same conversation, got %s on %s", state, res.State, res.ConversationID)
			}
			if conv := f.conversation(seeded.ID); conv.Data.Emergency == nil || conv.Data.Emergency.Urgency != string(classifier.UrgencyCritical) {
				t.Fatalf("expected emergency scratch recorded, got %#v", conv.Data.Emergency)
			}
		})
	}
}

func TestEngine_OfferSlotsTimesOutAfterFifteenMinutes(t *testing.T) {
	f := newEngineFixture(t)
	f.scriptDefaults()
	offer := f.say(ChannelChat, "quiero vacunar a mi perro mañana", "")
	conv := f.conversation(offer.ConversationID)
	if conv.State != StateOfferSlots || conv.TimeoutAt == nil || !conv.TimeoutAt.Equal(testNow.Add(15*time.Minute)) {
		t.Fatalf("expected a 15 minute deadline in OFFER_SLOTS, got %s %v", conv.State, conv.TimeoutAt)
	}

	f.advance(14 * time.Minute)
	res := f.say(ChannelChat, "la primera", "")
	if res.ConversationID != offer.ConversationID || res.State != StateConfirmBooking {
		t.Fatalf("expected the offer to be answered before the deadline, got %s on %s", res.State, res.ConversationID)
	}

	late := newEngineFixture(t)
	late.scriptDefaults()
	offer = late.say(ChannelChat, "quiero vacunar a mi perro mañana", "")
	late.advance(15*time.Minute + time.Second)
	res = late.say(ChannelChat, "la primera", "")
	if res.ConversationID == offer.ConversationID {
		t.Fatal("an expired offer must not be resumed")
	}
	if old := late.conversation(offer.ConversationID); old.Status != StatusAbandoned || old.Outcome != OutcomeAbandoned {
		t.Fatalf("expected the expired offer abandoned, got %s %q", old.Status, old.Outcome)
	}
}

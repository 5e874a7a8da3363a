package scheduling

import (
	"context"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"pgregory.net/rapid"

	"github.com/wolfman30/vetclinic-ai-platform/internal/calendar"
)

type fakeSlots struct {
	byDay map[string][]calendar.TimeSlot
	next  *calendar.NextSlot
	calls []string
}

func (f *fakeSlots) FindAvailableSlots(_ context.Context, _ string, date time.Time, _ int) ([]calendar.TimeSlot, error) {
	key := FormatDate(date)
	f.calls = append(f.calls, key)
	return f.byDay[key], nil
}

func (f *fakeSlots) NextAvailable(context.Context, string, int) (*calendar.NextSlot, error) {
	return f.next, nil
}

var testNow = time.Date(2026, 10, 15, 9, 0, 0, 0, time.UTC)

func quarterHours(from, to int) []calendar.TimeSlot {
	var out []calendar.TimeSlot
	for h := from; h < to; h++ {
		for _, m := range []int{0, 15, 30, 45} {
			s := time.Date(2026, 1, 1, h, m, 0, 0, time.UTC)
			out = append(out, calendar.TimeSlot{Start: s.Format("15:04"), End: s.Add(30 * time.Minute).Format("15:04")})
		}
	}
	return out
}

func TestStepAsksOneFieldAtATime(t *testing.T) {
	n := NewNegotiator(&fakeSlots{})
	st := &State{ClientPhone: "+573001112233"}

	d, err := n.Step(context.Background(), st, Request{Text: "quiero una cita", Now: testNow})
	require.NoError(t, err)
	assert.Equal(t, ActionAsk, d.Action)
	assert.Equal(t, FieldSpecies, d.Field)
	assert.Equal(t, QuestionFor(FieldSpecies), d.Message)

	d, err = n.Step(context.Background(), st, Request{Text: "perro", Now: testNow})
	require.NoError(t, err)
	assert.Equal(t, SpeciesDog, st.Species)
	assert.Equal(t, FieldReason, d.Field)

	d, err = n.Step(context.Background(), st, Request{Text: "vacunas anuales", Now: testNow})
	require.NoError(t, err)
	assert.Equal(t, "vacunas anuales", st.Reason)
	assert.Equal(t, FieldPreferredDate, d.Field)
	assert.Equal(t, FieldPreferredDate, st.AwaitingField)
}

func TestStepOffersSpreadSlotsForDate(t *testing.T) {
	src := &fakeSlots{byDay: map[string][]calendar.TimeSlot{"2026-10-16": quarterHours(8, 18)}}
	n := NewNegotiator(src)
	st := &State{Species: SpeciesCat, Reason: "control", ClientPhone: "+57300"}

	d, err := n.Step(context.Background(), st, Request{
		Text:       "mañana",
		Extraction: Extraction{PreferredDate: "mañana"},
		Now:        testNow,
	})
	require.NoError(t, err)
	require.Equal(t, ActionOffer, d.Action)
	require.Len(t, d.Slots, MaxOffered)
	assert.Equal(t, []string{"08:00", "09:00", "10:00", "11:00", "12:00"}, starts(d.Slots))
	assert.Equal(t, d.Slots, st.OfferedSlots)
	assert.Contains(t, d.Message, "Mañana 8:00 AM")
}

func TestStepFallsBackToNextAvailable(t *testing.T) {
	src := &fakeSlots{
		byDay: map[string][]calendar.TimeSlot{"2026-10-19": quarterHours(8, 10)},
		next:  &calendar.NextSlot{Date: time.Date(2026, 10, 19, 0, 0, 0, 0, time.UTC), Slot: calendar.TimeSlot{Start: "08:00", End: "08:30"}},
	}
	n := NewNegotiator(src)
	st := &State{Species: SpeciesDog, Reason: "consulta", PreferredDate: "2026-10-18", ClientPhone: "+57300"}

	d, err := n.Step(context.Background(), st, Request{Text: "ok", Now: testNow})
	require.NoError(t, err)
	assert.Equal(t, ActionOffer, d.Action)
	assert.True(t, d.Alternative)
	assert.Equal(t, "2026-10-18", st.PreferredDate)
	assert.Equal(t, "2026-10-19", st.OfferDate)
	assert.Equal(t, []string{"08:00", "09:00"}, starts(st.OfferedSlots))
	assert.True(t, strings.HasPrefix(d.Message, "No hay disponibilidad el 18/10."))
}

func TestStepSelectsAlternativeWhenRequestedDateRepeats(t *testing.T) {
	src := &fakeSlots{
		byDay: map[string][]calendar.TimeSlot{"2026-10-19": quarterHours(8, 10)},
		next:  &calendar.NextSlot{Date: time.Date(2026, 10, 19, 0, 0, 0, 0, time.UTC), Slot: calendar.TimeSlot{Start: "08:00", End: "08:30"}},
	}
	n := NewNegotiator(src)
	st := &State{Species: SpeciesDog, Reason: "consulta", ClientPhone: "+57300"}
	sunday := Extraction{PreferredDate: "2026-10-18"}

	d, err := n.Step(context.Background(), st, Request{Text: "el domingo", Extraction: sunday, Now: testNow})
	require.NoError(t, err)
	require.True(t, d.Alternative)

	for _, ext := range []Extraction{sunday, {PreferredDate: "2026-10-19"}} {
		cur := st.Clone()
		d, err = n.Step(context.Background(), &cur, Request{Text: "la primera", Extraction: ext, Now: testNow})
		require.NoError(t, err)
		assert.Equal(t, ActionReady, d.Action, "extraction %q", ext.PreferredDate)
		require.NotNil(t, cur.SelectedSlot)
		assert.Equal(t, "08:00", cur.SelectedSlot.Start)
		assert.Equal(t, "2026-10-19", FormatDate(d.Date))
		day, ok := cur.SlotDate(time.UTC)
		require.True(t, ok)
		assert.Equal(t, "2026-10-19", FormatDate(day))
	}
}

func TestStepNoAvailability(t *testing.T) {
	n := NewNegotiator(&fakeSlots{})
	st := &State{Species: SpeciesDog, Reason: "consulta", PreferredDate: "2026-10-18"}

	d, err := n.Step(context.Background(), st, Request{Text: "ok", Now: testNow})
	require.NoError(t, err)
	assert.Equal(t, ActionUnavailable, d.Action)
	assert.Equal(t, UnavailableText, d.Message)
	assert.Empty(t, st.OfferedSlots)
}

func TestStepSelectsOfferedSlot(t *testing.T) {
	slots := offered("09:00", "10:00", "11:00")
	n := NewNegotiator(&fakeSlots{})
	st := &State{Species: SpeciesDog, Reason: "consulta", PreferredDate: "2026-10-16", ClientPhone: "+57300", OfferedSlots: slots}

	d, err := n.Step(context.Background(), st, Request{Text: "la segunda", Now: testNow})
	require.NoError(t, err)
	assert.Equal(t, ActionReady, d.Action)
	require.NotNil(t, st.SelectedSlot)
	assert.Equal(t, "10:00", st.SelectedSlot.Start)
	assert.True(t, st.IsComplete())
}

func TestStepUsesPreferredTimeFallback(t *testing.T) {
	slots := offered("09:00", "10:00", "11:00")
	n := NewNegotiator(&fakeSlots{})
	st := &State{Species: SpeciesDog, Reason: "consulta", PreferredDate: "2026-10-16", ClientPhone: "+57300", OfferedSlots: slots}

	d, err := n.Step(context.Background(), st, Request{
		Text:       "la de once me sirve",
		Extraction: Extraction{PreferredTime: "11:00"},
		Now:        testNow,
	})
	require.NoError(t, err)
	assert.Equal(t, ActionReady, d.Action)
	assert.Equal(t, "11:00", st.SelectedSlot.Start)
}

func TestStepRepromptKeepsOffer(t *testing.T) {
	slots := offered("09:00", "10:00")
	n := NewNegotiator(&fakeSlots{})
	st := &State{Species: SpeciesDog, Reason: "consulta", PreferredDate: "2026-10-16", OfferedSlots: slots}

	d, err := n.Step(context.Background(), st, Request{Text: "no sé", Now: testNow})
	require.NoError(t, err)
	assert.Equal(t, ActionReprompt, d.Action)
	assert.Equal(t, slots, st.OfferedSlots)
	assert.Nil(t, st.SelectedSlot)
	assert.Contains(t, d.Message, "1. Mañana 9:00 AM")
}

func TestStepNewDateReplacesOffer(t *testing.T) {
	src := &fakeSlots{byDay: map[string][]calendar.TimeSlot{"2026-10-19": quarterHours(15, 17)}}
	n := NewNegotiator(src)
	st := &State{Species: SpeciesDog, Reason: "consulta", PreferredDate: "2026-10-16", OfferedSlots: offered("09:00")}

	d, err := n.Step(context.Background(), st, Request{
		Text:       "mejor el lunes",
		Extraction: Extraction{PreferredDate: "el lunes"},
		Now:        testNow,
	})
	require.NoError(t, err)
	assert.Equal(t, ActionOffer, d.Action)
	assert.Equal(t, []string{"15:00", "16:00"}, starts(st.OfferedSlots))
	assert.Equal(t, "2026-10-19", st.OfferDate)
}

func TestMergeIsIdempotentAndNeverClears(t *testing.T) {
	rapid.Check(t, func(t *rapid.T) {
		opt := func(label string, values ...string) string {
			return rapid.SampledFrom(append([]string{""}, values...)).Draw(t, label)
		}
		base := State{
			Species: opt("species0", SpeciesDog, SpeciesCat),
			Reason:  opt("reason0", "vacuna", "cojea"),
			PetName: opt("pet0", "Luna"),
		}
		e := Extraction{
			Species:       opt("species", "perro", "gato", "conejo"),
			PetName:       opt("pet", "Toby", "Max"),
			Reason:        opt("reason", "control", "limpieza dental"),
			PreferredDate: opt("date", "mañana", "el lunes", "2026-10-20", "ayer"),
			PreferredTime: opt("time", "10:00"),
		}

		once := base.Clone()
		once.Merge(e, testNow)
		twice := once.Clone()
		twice.Merge(e, testNow)
		if !assert.ObjectsAreEqual(once, twice) {
			t.Fatalf("merge not idempotent: %+v vs %+v", once, twice)
		}
		if base.Species != "" && once.Species == "" || base.Reason != "" && once.Reason == "" || base.PetName != "" && once.PetName == "" {
			t.Fatalf("merge cleared a known field: %+v -> %+v", base, once)
		}
	})
}

func TestStepNeverAsksTwoThings(t *testing.T) {
	rapid.Check(t, func(t *rapid.T) {
		st := &State{
			Species:       rapid.SampledFrom([]string{"", SpeciesDog}).Draw(t, "species"),
			Reason:        rapid.SampledFrom([]string{"", "vacuna"}).Draw(t, "reason"),
			PreferredDate: rapid.SampledFrom([]string{"", "2026-10-16"}).Draw(t, "date"),
		}
		missing := st.MissingFields()
		d, err := NewNegotiator(&fakeSlots{}).Step(context.Background(), st, Request{Text: "hola, buenas tardes a todos", Now: testNow})
		if err != nil {
			t.Fatalf("step: %v", err)
		}
		if len(missing) == 0 {
			return
		}
		if d.Action != ActionAsk {
			t.Fatalf("expected a question, got %s", d.Action)
		}
		if strings.Count(d.Message, "?") != 1 {
			t.Fatalf("more than one question in %q", d.Message)
		}
	})
}

func starts(slots []calendar.TimeSlot) []string {
	out := make([]string, 0, len(slots))
	for _, s := range slots {
		out = append(out, s.Start)
	}
	return out
}

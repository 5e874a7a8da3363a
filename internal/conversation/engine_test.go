package conversation

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/wolfman30/vetclinic-ai-platform/internal/calendar"
	"github.com/wolfman30/vetclinic-ai-platform/internal/classifier"
	"github.com/wolfman30/vetclinic-ai-platform/internal/clients"
	"github.com/wolfman30/vetclinic-ai-platform/internal/clinic"
	"github.com/wolfman30/vetclinic-ai-platform/internal/emergency"
	"github.com/wolfman30/vetclinic-ai-platform/internal/events"
	"github.com/wolfman30/vetclinic-ai-platform/pkg/logging"
)

const (
	testClinic = "clinic-1"
	testPhone  = "+573001112233"
)

// Monday 2 March 2026, 10:00 in Bogotá.
var testNow = time.Date(2026, 3, 2, 15, 0, 0, 0, time.UTC)

type engineFixture struct {
	t           *testing.T
	engine      *Engine
	store       Store
	memory      *MemoryStore
	outbox      *events.MemoryOutbox
	appts       *calendar.MemoryRepository
	clients     *clients.MemoryRepository
	emergencies *fakeEmergencies
	cfg         *clinic.Config
	script      map[string]classifier.Result

	mu  sync.Mutex
	now time.Time
}

func newEngineFixture(t *testing.T) *engineFixture {
	t.Helper()
	f := &engineFixture{
		t:           t,
		outbox:      events.NewMemoryOutbox(),
		appts:       calendar.NewMemoryRepository(),
		clients:     clients.NewMemoryRepository(),
		emergencies: &fakeEmergencies{reached: true},
		script:      map[string]classifier.Result{},
		now:         testNow,
	}
	f.cfg = clinic.DefaultConfig(testClinic)
	f.cfg.Name = "Clínica Patitas"
	f.cfg.Phone = "+5716000000"
	f.memory = NewMemoryStore().WithOutbox(f.outbox)
	f.store = f.memory
	f.build()
	return f
}

func (f *engineFixture) build() {
	directory := staticClinics{cfg: f.cfg}
	cal := calendar.NewService(f.appts, directory, logging.Default(), calendar.WithClock(f.clock))
	f.engine = NewEngine(EngineDeps{
		Store:       f.store,
		Classifier:  classifier.Func(f.classify),
		Calendar:    cal,
		Clinics:     directory,
		Clients:     f.clients,
		Emergencies: f.emergencies,
		Outbox:      f.outbox,
	}, logging.Default()).WithClock(f.clock)
}

func (f *engineFixture) clock() time.Time {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.now
}

func (f *engineFixture) advance(d time.Duration) {
	f.mu.Lock()
	f.now = f.now.Add(d)
	f.mu.Unlock()
}

func (f *engineFixture) classify(_ context.Context, text string, _ []classifier.Message) (classifier.Result, error) {
	if r, ok := f.script[text]; ok {
		return r, nil
	}
	return classifier.Result{Intent: classifier.IntentUnclear, Confidence: 0.3, Urgency: classifier.UrgencyNone}, nil
}

func (f *engineFixture) say(channel Channel, text, externalID string) TurnResult {
	f.t.Helper()
	res, err := f.engine.Handle(context.Background(), Turn{
		ClinicID:     testClinic,
		Channel:      channel,
		Phone:        testPhone,
		Text:         text,
		ExternalID:   externalID,
		ReplyChannel: "sms",
	})
	if err != nil {
		f.t.Fatalf("turn %q failed: %v", text, err)
	}
	return res
}

func (f *engineFixture) conversation(id string) *Conversation {
	f.t.Helper()
	conv, err := f.memory.Get(context.Background(), id)
	if err != nil {
		f.t.Fatalf("load conversation %s: %v", id, err)
	}
	return conv
}

func (f *engineFixture) eventTypes() []string {
	var out []string
	for _, e := range f.outbox.Entries() {
		out = append(out, e.Type)
	}
	return out
}

var (
	greetingResult     = classifier.Result{Intent: classifier.IntentGreeting, Confidence: 0.9, Urgency: classifier.UrgencyNone}
	confirmationResult = classifier.Result{Intent: classifier.IntentConfirmation, Confidence: 0.9, Urgency: classifier.UrgencyNone}
	rejectionResult    = classifier.Result{Intent: classifier.IntentRejection, Confidence: 0.9, Urgency: classifier.UrgencyNone}
	criticalResult     = classifier.Result{
		Intent:      classifier.IntentEmergency,
		Confidence:  0.9,
		IsEmergency: true,
		Urgency:     classifier.UrgencyCritical,
		Keywords:    []string{"atropellado", "sangra"},
	}
)

func (f *engineFixture) scriptDefaults() {
	f.script["hola"] = greetingResult
	f.script["sí"] = confirmationResult
	f.script["no"] = rejectionResult
	f.script["mi perro fue atropellado y sangra"] = criticalResult
	f.script["quiero vacunar a mi perro mañana"] = classifier.Result{
		Intent:     classifier.IntentSchedule,
		Confidence: 0.9,
		Urgency:    classifier.UrgencyNone,
		Data: classifier.Extracted{
			Species:       "perro",
			Reason:        "vacuna",
			PreferredDate: "mañana",
		},
	}
}

func TestEngine_BooksAppointmentOverChat(t *testing.T) {
	f := newEngineFixture(t)
	f.scriptDefaults()

	res := f.say(ChannelChat, "hola", "SM1")
	if res.State != StateIntentDetection || !strings.Contains(res.ReplyText, "Clínica Patitas") {
		t.Fatalf("unexpected greeting: %#v", res)
	}

	res = f.say(ChannelChat, "quiero vacunar a mi perro mañana", "SM2")
	if res.State != StateOfferSlots {
		t.Fatalf("expected OFFER_SLOTS, got %s (%q)", res.State, res.ReplyText)
	}
	if !strings.Contains(res.ReplyText, "Tengo disponibilidad") || !strings.Contains(res.ReplyText, "Mañana") {
		t.Fatalf("expected slot offer for tomorrow, got %q", res.ReplyText)
	}

	res = f.say(ChannelChat, "la segunda", "SM3")
	if res.State != StateConfirmBooking || !strings.Contains(res.ReplyText, "Confirmo tu cita") {
		t.Fatalf("expected confirmation prompt, got %s %q", res.State, res.ReplyText)
	}

	res = f.say(ChannelChat, "sí", "SM4")
	if !res.AppointmentBooked || res.State != StateCompleted {
		t.Fatalf("expected booked appointment, got %#v", res)
	}

	conv := f.conversation(res.ConversationID)
	if conv.Outcome != OutcomeAppointmentScheduled || conv.Status != StatusCompleted || conv.EndedAt == nil {
		t.Fatalf("unexpected conversation after booking: %#v", conv)
	}
	loc := f.cfg.Location()
	appts, err := f.appts.ListAppointments(context.Background(), testClinic, "", testNow.AddDate(0, 0, 1).Add(-24*time.Hour), testNow.AddDate(0, 0, 3))
	if err != nil || len(appts) != 1 {
		t.Fatalf("expected one appointment, got %v %v", appts, err)
	}
	start := appts[0].StartsAt.In(loc)
	if start.Day() != 3 || start.Hour() != 9 || start.Minute() != 0 {
		t.Fatalf("expected Tuesday 09:00, got %s", start)
	}
	if appts[0].Source != calendar.SourceAIChat || appts[0].ClientPhone != testPhone {
		t.Fatalf("unexpected appointment: %#v", appts[0])
	}

	types := f.eventTypes()
	if len(types) != 2 || types[0] != events.TypeAppointmentBooked || types[1] != events.TypeConversationEnded {
		t.Fatalf("unexpected outbox events: %v", types)
	}

	msgs, _ := f.memory.Messages(context.Background(), conv.ID)
	if len(msgs) != 8 {
		t.Fatalf("expected 4 user and 4 assistant messages, got %d", len(msgs))
	}
	if msgs[1].ReplyTo != msgs[0].ID {
		t.Fatal("assistant message should reference the user message it answers")
	}
}

func TestEngine_CompletedConversationClosesOnThanks(t *testing.T) {
	f := newEngineFixture(t)
	f.scriptDefaults()
	f.say(ChannelChat, "quiero vacunar a mi perro mañana", "")
	f.say(ChannelChat, "la primera", "")
	booked := f.say(ChannelChat, "sí", "")
	if booked.State != StateCompleted {
		t.Fatalf("expected COMPLETED, got %s", booked.State)
	}

	res := f.say(ChannelChat, "gracias", "")
	if res.State != StateClosed || res.ReplyText != anythingElse || res.EndConversation {
		t.Fatalf("unexpected closing turn: %#v", res)
	}
	if res.ConversationID != booked.ConversationID {
		t.Fatal("closing remark should stay on the booked conversation")
	}

	next := f.say(ChannelChat, "hola", "")
	if next.ConversationID == booked.ConversationID {
		t.Fatal("a closed conversation must not be reused")
	}
}

func TestEngine_EmergencyEscalates(t *testing.T) {
	f := newEngineFixture(t)
	f.scriptDefaults()

	res := f.say(ChannelChat, "mi perro fue atropellado y sangra", "")
	if res.State != StateConfirmEmergency || !strings.Contains(res.ReplyText, "Responde SÍ o NO") {
		t.Fatalf("expected emergency confirmation, got %s %q", res.State, res.ReplyText)
	}

	res = f.say(ChannelChat, "sí", "")
	if !res.Escalated || res.State != StateEscalate || res.ReplyText != emergencyRegistered {
		t.Fatalf("expected escalation, got %#v", res)
	}
	if len(f.emergencies.raised) != 1 {
		t.Fatalf("expected one raise, got %d", len(f.emergencies.raised))
	}
	raised := f.emergencies.raised[0]
	if raised.Description != "mi perro fue atropellado y sangra" || raised.Urgency != string(classifier.UrgencyCritical) {
		t.Fatalf("unexpected raise request: %#v", raised)
	}
	conv := f.conversation(res.ConversationID)
	if conv.Status != StatusEscalated || conv.Data.Emergency == nil || conv.Data.Emergency.EventID != "em-1" {
		t.Fatalf("unexpected escalated conversation: %#v", conv)
	}

	res = f.say(ChannelChat, "estoy en la calle 10", "")
	if res.State != StateEscalate || res.ReplyText != emergencyLogged {
		t.Fatalf("expected note during escalation, got %#v", res)
	}
	msgs, _ := f.memory.Messages(context.Background(), conv.ID)
	if got := msgs[len(msgs)-2].Content; got != escalatedNotePrefix+"estoy en la calle 10" {
		t.Fatalf("expected prefixed note, got %q", got)
	}

	f.engine.EmergencyResolved(context.Background(), emergency.Event{ID: "em-1", ConversationID: conv.ID, Status: emergency.StatusResolved})
	conv = f.conversation(conv.ID)
	if conv.State != StateCompleted || conv.EndedAt == nil {
		t.Fatalf("expected resolved emergency to complete the conversation, got %s", conv.State)
	}
}

func TestEngine_EscalationWithoutReachedContact(t *testing.T) {
	f := newEngineFixture(t)
	f.scriptDefaults()
	f.emergencies.reached = false

	f.say(ChannelChat, "mi perro fue atropellado y sangra", "")
	res := f.say(ChannelChat, "sí", "")
	if !strings.HasPrefix(res.ReplyText, emergencyRegistered) || !strings.Contains(res.ReplyText, "+5716000000") {
		t.Fatalf("expected clinic phone fallback, got %q", res.ReplyText)
	}
}

func TestEngine_FalseEmergencyReturnsToScheduling(t *testing.T) {
	f := newEngineFixture(t)
	f.scriptDefaults()

	first := f.say(ChannelChat, "mi perro fue atropellado y sangra", "")
	res := f.say(ChannelChat, "no", "")
	if res.State != StateAskReason || !strings.HasPrefix(res.ReplyText, emergencyNotEmergency) {
		t.Fatalf("expected return to scheduling, got %s %q", res.State, res.ReplyText)
	}
	conv := f.conversation(first.ConversationID)
	if conv.Data.Emergency != nil {
		t.Fatal("emergency scratch should be cleared")
	}
	client, err := f.clients.Get(context.Background(), testClinic, conv.ClientID)
	if err != nil {
		t.Fatalf("load client: %v", err)
	}
	if client.FalseEmergencyCount != 1 {
		t.Fatalf("expected false emergency counted, got %d", client.FalseEmergencyCount)
	}
}

func TestEngine_RevokedClientIsDenied(t *testing.T) {
	f := newEngineFixture(t)
	f.scriptDefaults()
	ctx := context.Background()
	client, _ := f.clients.GetOrCreate(ctx, testClinic, testPhone, "")
	if _, err := f.clients.RecordFalseAlarm(ctx, testClinic, client.ID, 1); err != nil {
		t.Fatalf("revoke: %v", err)
	}

	f.say(ChannelChat, "mi perro fue atropellado y sangra", "")
	res := f.say(ChannelChat, "sí", "")
	if res.State != StateClosed || !res.EndConversation || res.ReplyText != emergencyRevoked {
		t.Fatalf("expected denial, got %#v", res)
	}
	if len(f.emergencies.raised) != 0 || f.emergencies.denied != 1 {
		t.Fatalf("expected denial without raise, raised=%d denied=%d", len(f.emergencies.raised), f.emergencies.denied)
	}
	if conv := f.conversation(res.ConversationID); conv.Outcome != OutcomeEmergencyDenied {
		t.Fatalf("expected denied outcome, got %q", conv.Outcome)
	}
}

func TestEngine_EmergencyPreemptsScheduling(t *testing.T) {
	f := newEngineFixture(t)
	f.scriptDefaults()

	res := f.say(ChannelChat, "quiero vacunar a mi perro mañana", "")
	if res.State != StateOfferSlots {
		t.Fatalf("expected OFFER_SLOTS, got %s", res.State)
	}
	res = f.say(ChannelChat, "mi perro fue atropellado y sangra", "")
	if res.State != StateConfirmEmergency {
		t.Fatalf("expected preemption to CONFIRM_EMERGENCY, got %s", res.State)
	}
}

func TestEngine_DuplicateExternalIDReturnsStoredReply(t *testing.T) {
	f := newEngineFixture(t)
	f.scriptDefaults()

	first := f.say(ChannelChat, "hola", "SM-dup")
	second := f.say(ChannelChat, "hola", "SM-dup")
	if !second.Duplicate || second.ReplyText != first.ReplyText || second.ConversationID != first.ConversationID {
		t.Fatalf("expected duplicate replay, got %#v", second)
	}
	msgs, _ := f.memory.Messages(context.Background(), first.ConversationID)
	if len(msgs) != 2 {
		t.Fatalf("duplicate must not append messages, got %d", len(msgs))
	}
}

func TestEngine_PersistenceFailureRollsBack(t *testing.T) {
	f := newEngineFixture(t)
	f.scriptDefaults()
	f.store = &failingStore{MemoryStore: f.memory, failRole: RoleAssistant}
	f.build()

	res, err := f.engine.Handle(context.Background(), Turn{ClinicID: testClinic, Channel: ChannelChat, Phone: testPhone, Text: "hola"})
	if !errors.Is(err, ErrPersistence) {
		t.Fatalf("expected ErrPersistence, got %v", err)
	}
	if res.ReplyText != ServiceLimitedReply {
		t.Fatalf("expected service limited reply, got %q", res.ReplyText)
	}
	convs, _ := f.memory.List(context.Background(), testClinic, "", 10)
	if len(convs) != 0 {
		t.Fatalf("expected rollback to drop the conversation, got %d", len(convs))
	}
	if len(f.outbox.Entries()) != 0 {
		t.Fatal("expected no outbox entries after rollback")
	}
}

func TestEngine_VoiceRejectionEndsCall(t *testing.T) {
	f := newEngineFixture(t)
	f.scriptDefaults()

	res, err := f.engine.Handle(context.Background(), Turn{ClinicID: testClinic, Channel: ChannelVoice, Phone: testPhone, SessionID: "CA1"})
	if err != nil {
		t.Fatalf("open call: %v", err)
	}
	if res.State != StateIntentDetection || !strings.Contains(res.ReplyText, "Clínica Patitas") {
		t.Fatalf("expected greeting on empty first turn, got %#v", res)
	}
	res, err = f.engine.Handle(context.Background(), Turn{ClinicID: testClinic, Channel: ChannelVoice, Phone: testPhone, SessionID: "CA1", Text: "no"})
	if err != nil {
		t.Fatalf("reject: %v", err)
	}
	if !res.EndConversation || res.ReplyText != goodbyeVoice || res.State != StateClosed {
		t.Fatalf("expected voice goodbye, got %#v", res)
	}
}

func TestEngine_NewCallRetiresPreviousSession(t *testing.T) {
	f := newEngineFixture(t)
	f.scriptDefaults()

	first, _ := f.engine.Handle(context.Background(), Turn{ClinicID: testClinic, Channel: ChannelVoice, Phone: testPhone, SessionID: "CA1"})
	second, _ := f.engine.Handle(context.Background(), Turn{ClinicID: testClinic, Channel: ChannelVoice, Phone: testPhone, SessionID: "CA2"})
	if first.ConversationID == second.ConversationID {
		t.Fatal("a new call must start a new conversation")
	}
	if conv := f.conversation(first.ConversationID); conv.Status != StatusAbandoned {
		t.Fatalf("expected previous call abandoned, got %s", conv.Status)
	}
}

func TestEngine_ExpiredConversationStartsFresh(t *testing.T) {
	f := newEngineFixture(t)
	f.scriptDefaults()

	first := f.say(ChannelChat, "hola", "")
	f.advance(11 * time.Minute)
	second := f.say(ChannelChat, "hola", "")
	if first.ConversationID == second.ConversationID {
		t.Fatal("expired conversation must not be resumed")
	}
	if conv := f.conversation(first.ConversationID); conv.Outcome != OutcomeAbandoned {
		t.Fatalf("expected abandoned outcome, got %q", conv.Outcome)
	}
}

func TestEngine_IncomingTurnDetectsWhatsApp(t *testing.T) {
	f := newEngineFixture(t)
	f.scriptDefaults()

	res, err := f.engine.HandleIncomingTurn(context.Background(), testClinic, ChannelChat, "whatsapp:"+testPhone, "hola", "SMw")
	if err != nil {
		t.Fatalf("turn: %v", err)
	}
	conv := f.conversation(res.ConversationID)
	if conv.Phone != testPhone || conv.ReplyChannel != "whatsapp" {
		t.Fatalf("expected whatsapp reply channel and bare phone, got %q %q", conv.Phone, conv.ReplyChannel)
	}
}

func TestEngine_RejectsUnknownChannel(t *testing.T) {
	f := newEngineFixture(t)
	if _, err := f.engine.Handle(context.Background(), Turn{ClinicID: testClinic, Channel: "fax", Phone: testPhone}); err == nil {
		t.Fatal("expected unknown channel to be rejected")
	}
}

type staticClinics struct {
	cfg *clinic.Config
}

func (s staticClinics) Get(_ context.Context, clinicID string) (*clinic.Config, error) {
	if clinicID != s.cfg.ID {
		return nil, clinic.ErrClinicNotFound
	}
	cp := *s.cfg
	return &cp, nil
}

type fakeEmergencies struct {
	mu      sync.Mutex
	reached bool
	raised  []emergency.RaiseRequest
	denied  int
}

func (f *fakeEmergencies) Raise(_ context.Context, req emergency.RaiseRequest) (emergency.Outcome, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.raised = append(f.raised, req)
	ev := &emergency.Event{ID: "em-1", ClinicID: req.ClinicID, ConversationID: req.ConversationID, Status: emergency.StatusActive}
	return emergency.Outcome{Event: ev, Reached: f.reached}, nil
}

func (f *fakeEmergencies) Denied(_ context.Context, _, _, _ string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.denied++
}

type failingStore struct {
	*MemoryStore
	failRole string
}

func (s *failingStore) AppendMessage(ctx context.Context, m *Message) error {
	if m.Role == s.failRole {
		return errors.New("disk full")
	}
	return s.MemoryStore.AppendMessage(ctx, m)
}

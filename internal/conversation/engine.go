package conversation

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/wolfman30/vetclinic-ai-platform/internal/calendar"
	"github.com/wolfman30/vetclinic-ai-platform/internal/classifier"
	"github.com/wolfman30/vetclinic-ai-platform/internal/clients"
	"github.com/wolfman30/vetclinic-ai-platform/internal/clinic"
	"github.com/wolfman30/vetclinic-ai-platform/internal/emergency"
	"github.com/wolfman30/vetclinic-ai-platform/internal/events"
	"github.com/wolfman30/vetclinic-ai-platform/internal/observability/metrics"
	"github.com/wolfman30/vetclinic-ai-platform/internal/scheduling"
	"github.com/wolfman30/vetclinic-ai-platform/pkg/logging"
)

var tracer = otel.Tracer("vetclinic.internal.conversation")

// DefaultHistoryLimit is how many prior messages the classifier sees.
const DefaultHistoryLimit = 10

// Calendar is the slot lookup and booking surface the engine drives.
type Calendar interface {
	scheduling.SlotSource
	Book(ctx context.Context, clinicID string, req calendar.BookingRequest) (calendar.BookingResult, error)
}

// ClinicDirectory resolves per-clinic settings.
type ClinicDirectory interface {
	Get(ctx context.Context, clinicID string) (*clinic.Config, error)
}

// Emergencies raises confirmed emergencies.
type Emergencies interface {
	Raise(ctx context.Context, req emergency.RaiseRequest) (emergency.Outcome, error)
	Denied(ctx context.Context, clinicID, clientID, conversationID string)
}

// FollowUpReply is a client's answer to a post-appointment check-in.
type FollowUpReply struct {
	ClinicID       string
	ConversationID string
	FollowUpID     string
	AppointmentID  string
	Phone          string
	PetName        string
	Response       string
	// Concerning lists the warning keywords found in the response. A
	// non-empty list means staff must be told.
	Concerning []string
}

// FollowUpResponder records follow-up answers inside the turn's unit of work.
type FollowUpResponder interface {
	FollowUpReplied(ctx context.Context, reply FollowUpReply) error
}

// EngineDeps are the collaborators of the turn engine. Outbox and Metrics
// may be nil.
type EngineDeps struct {
	Store       Store
	Locker      Locker
	Classifier  classifier.Classifier
	Calendar    Calendar
	Clinics     ClinicDirectory
	Clients     clients.Repository
	Emergencies Emergencies
	Outbox      events.Recorder
	Metrics     *metrics.ConversationMetrics
}

// Engine runs one conversation turn at a time per (clinic, channel, phone):
// it classifies the message, walks the state machine, books appointments,
// raises emergencies and persists the transcript as one unit of work.
type Engine struct {
	store        Store
	locker       Locker
	classifier   classifier.Classifier
	calendar     Calendar
	negotiator   *scheduling.Negotiator
	clinics      ClinicDirectory
	clients      clients.Repository
	emergencies  Emergencies
	outbox       events.Recorder
	followUps    FollowUpResponder
	metrics      *metrics.ConversationMetrics
	logger       *logging.Logger
	now          func() time.Time
	historyLimit int
}

// NewEngine wires the engine. A nil Locker falls back to an in-process one.
func NewEngine(deps EngineDeps, logger *logging.Logger) *Engine {
	if deps.Store == nil || deps.Classifier == nil || deps.Calendar == nil || deps.Clinics == nil ||
		deps.Clients == nil || deps.Emergencies == nil {
		panic("conversation: store, classifier, calendar, clinics, clients and emergencies are required")
	}
	if deps.Locker == nil {
		deps.Locker = NewLocalLocker()
	}
	if logger == nil {
		logger = logging.Default()
	}
	return &Engine{
		store:        deps.Store,
		locker:       deps.Locker,
		classifier:   deps.Classifier,
		calendar:     deps.Calendar,
		negotiator:   scheduling.NewNegotiator(deps.Calendar),
		clinics:      deps.Clinics,
		clients:      deps.Clients,
		emergencies:  deps.Emergencies,
		outbox:       deps.Outbox,
		metrics:      deps.Metrics,
		logger:       logger,
		now:          time.Now,
		historyLimit: DefaultHistoryLimit,
	}
}

// WithClock overrides the engine clock.
func (e *Engine) WithClock(now func() time.Time) *Engine {
	if now != nil {
		e.now = now
	}
	return e
}

// SetFollowUpResponder attaches the follow-up tracker. It is set after
// construction because the tracker itself opens conversations through the
// engine.
func (e *Engine) SetFollowUpResponder(r FollowUpResponder) {
	e.followUps = r
}

// HandleIncomingTurn processes a plain inbound message. A "whatsapp:" phone
// prefix selects WhatsApp as the reply channel for chat.
func (e *Engine) HandleIncomingTurn(ctx context.Context, clinicID string, channel Channel, phone, rawText, externalID string) (TurnResult, error) {
	in := Turn{
		ClinicID:   clinicID,
		Channel:    channel,
		Phone:      phone,
		Text:       rawText,
		ExternalID: externalID,
	}
	if rest, ok := strings.CutPrefix(strings.TrimSpace(phone), "whatsapp:"); ok {
		in.Phone = rest
		in.ReplyChannel = "whatsapp"
	} else if channel == ChannelChat {
		in.ReplyChannel = "sms"
	}
	return e.Handle(ctx, in)
}

// Handle processes one turn. On ErrPersistence nothing was committed and the
// returned result carries ServiceLimitedReply.
func (e *Engine) Handle(ctx context.Context, in Turn) (TurnResult, error) {
	in.Phone = strings.TrimSpace(in.Phone)
	in.Text = strings.TrimSpace(in.Text)
	in.ExternalID = strings.TrimSpace(in.ExternalID)
	if in.ClinicID == "" || in.Phone == "" {
		return TurnResult{}, errors.New("conversation: clinic id and phone are required")
	}
	if _, ok := ParseChannel(string(in.Channel)); !ok {
		return TurnResult{}, fmt.Errorf("conversation: unknown channel %q", in.Channel)
	}

	ctx, span := tracer.Start(ctx, "conversation.turn", trace.WithAttributes(
		attribute.String("clinic_id", in.ClinicID),
		attribute.String("channel", string(in.Channel)),
	))
	defer span.End()

	start := time.Now()
	res, err := e.handle(ctx, in)
	outcome := "ok"
	switch {
	case err != nil:
		outcome = "error"
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		res = TurnResult{ReplyText: ServiceLimitedReply}
	case res.Duplicate:
		outcome = "duplicate"
	}
	span.SetAttributes(attribute.String("state", string(res.State)))
	e.metrics.ObserveTurn(string(in.Channel), string(res.State), outcome, time.Since(start).Seconds())
	return res, err
}

// preread is what the engine saw before entering the unit of work.
type preread struct {
	conversationID string
	state          State
	changed        time.Time
	result         classifier.Result
}

// turn is the mutable working set of one Handle call.
type turn struct {
	in    Turn
	cfg   *clinic.Config
	now   time.Time
	local time.Time
	class classifier.Result

	conv      *Conversation
	wasEnded  bool
	userMsg   *Message
	reply     string
	end       bool
	booked    bool
	escalated bool
	illegal   bool
	events    []events.Event
}

func (t *turn) result() TurnResult {
	return TurnResult{
		ReplyText:         t.reply,
		ConversationID:    t.conv.ID,
		EndConversation:   t.end,
		AppointmentBooked: t.booked,
		Escalated:         t.escalated,
		State:             t.conv.State,
	}
}

func (e *Engine) handle(ctx context.Context, in Turn) (TurnResult, error) {
	unlock, err := e.locker.Lock(ctx, LockKey(in.ClinicID, in.Channel, in.Phone))
	if err != nil {
		return TurnResult{}, fmt.Errorf("%w: lock: %w", ErrPersistence, err)
	}
	defer unlock()

	cfg, err := e.clinics.Get(ctx, in.ClinicID)
	if err != nil {
		return TurnResult{}, fmt.Errorf("%w: load clinic: %w", ErrPersistence, err)
	}

	// Classification can take seconds, so it runs before the transaction and
	// is redone inside only when the conversation moved in between.
	pre := e.preclassify(ctx, in)

	var res TurnResult
	err = e.store.Atomic(ctx, func(ctx context.Context) error {
		if in.ExternalID != "" {
			rec, err := e.store.FindTurn(ctx, in.ClinicID, in.ExternalID)
			switch {
			case err == nil:
				res = TurnResult{
					ReplyText:       rec.Reply,
					ConversationID:  rec.ConversationID,
					State:           rec.State,
					Duplicate:       true,
					EndConversation: rec.State == StateClosed,
				}
				return nil
			case !errors.Is(err, ErrNotFound):
				return err
			}
		}

		now := e.now().UTC()
		t := &turn{in: in, cfg: cfg, now: now, local: now.In(cfg.Location())}
		if err := e.open(ctx, t, pre); err != nil {
			return err
		}
		if err := e.dispatch(ctx, t); err != nil {
			return err
		}
		if err := e.finish(ctx, t); err != nil {
			return err
		}
		res = t.result()
		return nil
	})
	if err != nil {
		e.logger.Error("conversation turn failed", "clinic_id", in.ClinicID, "channel", in.Channel, "error", err)
		return TurnResult{}, fmt.Errorf("%w: %w", ErrPersistence, err)
	}
	return res, nil
}

func (e *Engine) preclassify(ctx context.Context, in Turn) preread {
	var p preread
	var history []classifier.Message
	conv, err := e.store.FindOpen(ctx, in.ClinicID, in.Phone, in.Channel)
	if err == nil && !conv.Expired(e.now()) {
		p.conversationID = conv.ID
		p.state = conv.State
		p.changed = conv.LastStateChange
		history = e.history(ctx, conv.ID)
	}
	p.result = e.classify(ctx, in.Text, history)
	return p
}

func (e *Engine) history(ctx context.Context, conversationID string) []classifier.Message {
	msgs, err := e.store.RecentMessages(ctx, conversationID, e.historyLimit)
	if err != nil {
		e.logger.Warn("load conversation history failed", "conversation_id", conversationID, "error", err)
		return nil
	}
	out := make([]classifier.Message, 0, len(msgs))
	for _, m := range msgs {
		out = append(out, classifier.Message{Role: m.Role, Content: m.Content})
	}
	return out
}

func (e *Engine) classify(ctx context.Context, text string, history []classifier.Message) classifier.Result {
	if text == "" {
		return classifier.Result{Intent: classifier.IntentGreeting, Confidence: 1, Urgency: classifier.UrgencyNone}
	}
	r, err := e.classifier.Classify(ctx, text, history)
	if err != nil {
		e.logger.Warn("classification failed", "error", err)
		e.metrics.ObserveClassifierFallback("engine")
		return classifier.Unclear()
	}
	return r
}

// open loads or creates the conversation the turn belongs to.
func (e *Engine) open(ctx context.Context, t *turn, pre preread) error {
	conv, err := e.store.FindOpen(ctx, t.in.ClinicID, t.in.Phone, t.in.Channel)
	switch {
	case errors.Is(err, ErrNotFound):
		conv = nil
	case err != nil:
		return err
	}

	if conv != nil && conv.Expired(t.now) {
		if err := e.abandon(ctx, conv, t.now); err != nil {
			return err
		}
		conv = nil
	}
	if conv != nil && t.in.Channel == ChannelVoice && t.in.SessionID != "" &&
		conv.ExternalID != "" && conv.ExternalID != t.in.SessionID {
		if err := e.retire(ctx, conv, t.now); err != nil {
			return err
		}
		conv = nil
	}

	stale := conv == nil && pre.conversationID != ""
	if conv != nil {
		stale = conv.ID != pre.conversationID || conv.State != pre.state || !conv.LastStateChange.Equal(pre.changed)
	}
	if stale {
		var history []classifier.Message
		if conv != nil {
			history = e.history(ctx, conv.ID)
		}
		t.class = e.classify(ctx, t.in.Text, history)
	} else {
		t.class = pre.result
	}

	if conv != nil && conv.State == StateCompleted && startsOver(t.class) {
		if err := e.retire(ctx, conv, t.now); err != nil {
			return err
		}
		conv = nil
	}

	if conv == nil {
		conv, err = e.create(ctx, t)
		if err != nil {
			return err
		}
	}
	t.conv = conv
	t.wasEnded = conv.EndedAt != nil
	return nil
}

// startsOver reports whether a message after a completed conversation is a
// new request rather than a closing remark.
func startsOver(r classifier.Result) bool {
	if r.Preempts() || r.IsEmergency {
		return true
	}
	switch r.Intent {
	case classifier.IntentSchedule, classifier.IntentEmergency, classifier.IntentQuestion:
		return true
	}
	return false
}

func (e *Engine) create(ctx context.Context, t *turn) (*Conversation, error) {
	client, err := e.clients.GetOrCreate(ctx, t.in.ClinicID, t.in.Phone, "")
	if err != nil {
		return nil, err
	}
	deadline := t.now.Add(StateGreeting.Timeout())
	conv := &Conversation{
		ClinicID:        t.in.ClinicID,
		ClientID:        client.ID,
		Channel:         t.in.Channel,
		ExternalID:      t.in.SessionID,
		Phone:           t.in.Phone,
		ReplyChannel:    t.in.ReplyChannel,
		State:           StateGreeting,
		LastStateChange: t.now,
		TimeoutAt:       &deadline,
		Status:          StatusActive,
		StartedAt:       t.now,
	}
	conv.Data.Scheduling.ClientPhone = t.in.Phone
	if client.Name != "" {
		conv.Data.Scheduling.ClientName = client.Name
	}
	if err := e.store.Create(ctx, conv); err != nil {
		return nil, err
	}
	return conv, nil
}

// abandon ends a conversation whose idle deadline passed.
func (e *Engine) abandon(ctx context.Context, conv *Conversation, now time.Time) error {
	conv.Status = StatusAbandoned
	conv.Outcome = OutcomeAbandoned
	conv.TimeoutAt = nil
	if conv.EndedAt == nil {
		ended := now
		conv.EndedAt = &ended
	}
	if err := e.store.Update(ctx, conv); err != nil {
		return err
	}
	return e.recordEnded(ctx, conv)
}

// retire releases the identity held by a conversation that a new one
// replaces: finished ones are closed, unfinished ones abandoned.
func (e *Engine) retire(ctx context.Context, conv *Conversation, now time.Time) error {
	if !conv.State.Terminal() {
		return e.abandon(ctx, conv, now)
	}
	wasEnded := conv.EndedAt != nil
	if conv.Outcome == "" {
		conv.Outcome = OutcomeClosed
	}
	e.apply(conv, StateClosed, now)
	if err := e.store.Update(ctx, conv); err != nil {
		return err
	}
	if !wasEnded {
		return e.recordEnded(ctx, conv)
	}
	return nil
}

// apply performs one transition. An illegal transition is logged, counted
// and leaves conv untouched.
func (e *Engine) apply(conv *Conversation, to State, now time.Time) bool {
	from := conv.State
	if !CanTransition(from, to) {
		e.logger.Warn("illegal state transition", "conversation_id", conv.ID, "from", from, "to", to)
		e.metrics.ObserveIllegalTransition(string(from), string(to))
		return false
	}
	conv.State = to
	conv.LastStateChange = now
	if d := to.Timeout(); d > 0 {
		deadline := now.Add(d)
		conv.TimeoutAt = &deadline
	} else {
		conv.TimeoutAt = nil
	}
	if to.Terminal() {
		conv.Status = StatusCompleted
		if conv.EndedAt == nil {
			ended := now
			conv.EndedAt = &ended
		}
	}
	return true
}

// move walks the turn's conversation through each state in order and stops
// at the first illegal hop.
func (e *Engine) move(t *turn, path ...State) bool {
	for _, to := range path {
		if !e.apply(t.conv, to, t.now) {
			t.illegal = true
			return false
		}
	}
	return true
}

func (e *Engine) dispatch(ctx context.Context, t *turn) error {
	conv := t.conv
	if t.in.Text != "" {
		content := t.in.Text
		if conv.State == StateEscalate {
			content = escalatedNotePrefix + content
		}
		msg := &Message{
			ConversationID: conv.ID,
			Role:           RoleUser,
			Content:        content,
			AudioURL:       t.in.AudioURL,
			Confidence:     t.in.Confidence,
			ExternalID:     t.in.ExternalID,
			CreatedAt:      t.now,
		}
		if err := e.store.AppendMessage(ctx, msg); err != nil {
			return err
		}
		t.userMsg = msg
	} else if conv.State != StateGreeting {
		t.reply = illegalReply
		return nil
	}

	handled, err := e.preempt(ctx, t)
	if err != nil || handled {
		return err
	}

	switch conv.State {
	case StateGreeting:
		return e.onGreeting(ctx, t)
	case StateIntentDetection:
		return e.onIntentDetection(ctx, t)
	case StateAskReason:
		return e.onAskReason(ctx, t)
	case StateOfferSlots:
		return e.onOfferSlots(ctx, t)
	case StateAwaitSelection:
		return e.onAwaitSelection(ctx, t)
	case StateConfirmBooking:
		return e.onConfirmBooking(ctx, t)
	case StateConfirmEmergency:
		return e.onConfirmEmergency(ctx, t)
	case StateEscalate:
		t.reply = emergencyLogged
		return nil
	case StateCollectStatus:
		return e.onCollectStatus(ctx, t)
	case StateReminder:
		return e.onReminder(ctx, t)
	case StateCompleted:
		return e.onCompleted(ctx, t)
	case StateClosed:
		e.move(t, StateGreeting)
		t.reply = greetingMenu(t.cfg.Name)
		return nil
	}
	return fmt.Errorf("conversation: unknown state %q", conv.State)
}

// finish persists the reply, the conversation row and the turn's events.
func (e *Engine) finish(ctx context.Context, t *turn) error {
	conv := t.conv
	if t.illegal {
		t.reply = illegalReply
	}
	if !conv.State.Terminal() {
		if d := conv.State.Timeout(); d > 0 {
			deadline := t.now.Add(d)
			conv.TimeoutAt = &deadline
		} else {
			conv.TimeoutAt = nil
		}
	}

	reply := &Message{
		ConversationID: conv.ID,
		Role:           RoleAssistant,
		Content:        t.reply,
		CreatedAt:      t.now.Add(time.Microsecond),
	}
	if t.userMsg != nil {
		reply.ReplyTo = t.userMsg.ID
	}
	if err := e.store.AppendMessage(ctx, reply); err != nil {
		return err
	}
	if err := e.store.Update(ctx, conv); err != nil {
		return err
	}

	if e.outbox != nil {
		for _, ev := range t.events {
			if err := e.outbox.Record(ctx, conv.ClinicID, ev); err != nil {
				return err
			}
		}
	}
	if conv.EndedAt != nil && !t.wasEnded {
		return e.recordEnded(ctx, conv)
	}
	return nil
}

func (e *Engine) recordEnded(ctx context.Context, conv *Conversation) error {
	if e.outbox == nil {
		return nil
	}
	msgs, err := e.store.Messages(ctx, conv.ID)
	if err != nil {
		return err
	}
	transcript := make([]events.TranscriptLine, 0, len(msgs))
	for _, m := range msgs {
		transcript = append(transcript, events.TranscriptLine{Role: m.Role, Content: m.Content, CreatedAt: m.CreatedAt})
	}
	var ended time.Time
	if conv.EndedAt != nil {
		ended = *conv.EndedAt
	}
	return e.outbox.Record(ctx, conv.ClinicID, events.ConversationEndedV1{
		ConversationID: conv.ID,
		ClinicID:       conv.ClinicID,
		Channel:        string(conv.Channel),
		ClientPhone:    conv.Phone,
		Status:         string(conv.Status),
		Outcome:        conv.Outcome,
		FinalState:     string(conv.State),
		StartedAt:      conv.StartedAt,
		EndedAt:        ended,
		Transcript:     transcript,
	})
}

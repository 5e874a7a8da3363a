package messaging

import (
	"context"
	"errors"
	"net/http"
	"strings"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"

	"github.com/wolfman30/vetclinic-ai-platform/internal/clinic"
	"github.com/wolfman30/vetclinic-ai-platform/internal/conversation"
	"github.com/wolfman30/vetclinic-ai-platform/internal/events"
	"github.com/wolfman30/vetclinic-ai-platform/internal/observability/metrics"
	"github.com/wolfman30/vetclinic-ai-platform/pkg/logging"
)

var twilioTracer = otel.Tracer("vetclinic.internal.messaging.twilio")

const twilioProvider = "twilio"

type turnEnqueuer interface {
	EnqueueTurn(ctx context.Context, jobID string, in conversation.Turn, opts ...conversation.PublishOption) (string, error)
}

type turnHandler interface {
	Handle(ctx context.Context, in conversation.Turn) (conversation.TurnResult, error)
}

type alertReceipts interface {
	AlertDelivered(ctx context.Context, alertID string) error
}

// HandlerDeps are the collaborators of the Twilio webhooks. Dedupe, Alerts
// and Metrics may be nil.
type HandlerDeps struct {
	WebhookSecret string
	// VoiceActionURL is where Gather posts the caller's speech.
	VoiceActionURL string
	Resolver       clinic.Resolver
	Queue          turnEnqueuer
	Turns          turnHandler
	Dedupe         events.Deduper
	Alerts         alertReceipts
	Metrics        *metrics.MessagingMetrics
}

// Handler serves the Twilio chat, voice and status webhooks.
type Handler struct {
	deps   HandlerDeps
	logger *logging.Logger
}

// NewHandler creates a new messaging handler.
func NewHandler(deps HandlerDeps, logger *logging.Logger) *Handler {
	if logger == nil {
		logger = logging.Default()
	}
	if deps.Resolver == nil {
		panic("messaging: clinic resolver cannot be nil")
	}
	if deps.VoiceActionURL == "" {
		deps.VoiceActionURL = "/webhooks/twilio/voice?gather=1"
	}
	return &Handler{deps: deps, logger: logger}
}

func (h *Handler) verified(w http.ResponseWriter, r *http.Request) bool {
	if h.deps.WebhookSecret == "" {
		return true
	}
	if ValidateTwilioSignature(r, h.deps.WebhookSecret, buildAbsoluteURL(r)) {
		return true
	}
	h.logger.Warn("invalid twilio signature", "path", r.URL.Path)
	http.Error(w, "Unauthorized", http.StatusUnauthorized)
	return false
}

// TwilioChatWebhook handles POST /webhooks/twilio/messages for SMS and WhatsApp.
// The turn is queued and Twilio gets an empty TwiML ack; the worker replies.
func (h *Handler) TwilioChatWebhook(w http.ResponseWriter, r *http.Request) {
	ctx, span := twilioTracer.Start(r.Context(), "messaging.twilio.chat")
	defer span.End()
	start := time.Now()
	status := "rejected"
	channel := "chat"
	defer func() {
		h.deps.Metrics.ObserveInbound(channel, status)
		h.deps.Metrics.ObserveWebhookLatency(channel, time.Since(start).Seconds())
	}()

	if !h.verified(w, r) {
		span.RecordError(errors.New("invalid twilio signature"))
		return
	}
	webhook, err := ParseTwilioWebhook(r)
	if err != nil {
		h.logger.Error("failed to parse twilio webhook", "error", err)
		http.Error(w, "Bad Request", http.StatusBadRequest)
		return
	}
	from, replyChannel := SplitAddress(webhook.From)
	to, _ := SplitAddress(webhook.To)
	if webhook.MessageSid == "" || from == "" || strings.TrimSpace(webhook.Body) == "" {
		h.logger.Error("invalid twilio payload", "message_sid", webhook.MessageSid)
		http.Error(w, "Bad Request", http.StatusBadRequest)
		return
	}
	channel = replyChannel
	span.SetAttributes(
		attribute.String("vetclinic.twilio.message_sid", webhook.MessageSid),
		attribute.String("vetclinic.twilio.channel", replyChannel),
	)

	clinicID, err := h.deps.Resolver.ResolveClinicID(ctx, to)
	if err != nil {
		h.logger.Error("failed to resolve clinic for twilio number", "error", err, "to", to)
		http.Error(w, "Unknown destination number", http.StatusBadRequest)
		span.RecordError(err)
		return
	}
	span.SetAttributes(attribute.String("vetclinic.clinic_id", clinicID))

	if h.deps.Dedupe != nil {
		seen, err := h.deps.Dedupe.AlreadyProcessed(ctx, twilioProvider, webhook.MessageSid)
		if err != nil {
			h.logger.Warn("dedupe lookup failed", "error", err, "message_sid", webhook.MessageSid)
		}
		if seen {
			h.logger.Info("duplicate twilio webhook ignored", "message_sid", webhook.MessageSid)
			status = "duplicate"
			writeTwiML(w, EmptyTwiML())
			return
		}
	}
	if h.deps.Queue == nil {
		http.Error(w, "Service unavailable", http.StatusServiceUnavailable)
		return
	}

	in := conversation.Turn{
		ClinicID:     clinicID,
		Channel:      conversation.ChannelChat,
		Phone:        from,
		Text:         webhook.Body,
		ExternalID:   webhook.MessageSid,
		ReplyChannel: replyChannel,
	}
	publishCtx, cancel := context.WithTimeout(ctx, 3*time.Second)
	defer cancel()
	if _, err := h.deps.Queue.EnqueueTurn(publishCtx, webhook.MessageSid, in); err != nil {
		h.logger.Error("failed to enqueue chat turn", "error", err, "clinic_id", clinicID, "message_sid", webhook.MessageSid)
		http.Error(w, "Failed to schedule reply", http.StatusInternalServerError)
		span.RecordError(err)
		status = "enqueue_failed"
		return
	}
	if h.deps.Dedupe != nil {
		if _, err := h.deps.Dedupe.MarkProcessed(ctx, twilioProvider, webhook.MessageSid); err != nil {
			h.logger.Warn("mark webhook processed failed", "error", err, "message_sid", webhook.MessageSid)
		}
	}

	h.logger.Info("twilio chat webhook accepted", "clinic_id", clinicID, "message_sid", webhook.MessageSid, "channel", replyChannel)
	status = "accepted"
	writeTwiML(w, EmptyTwiML())
}

// TwilioVoiceWebhook handles POST /webhooks/twilio/voice. The first request
// of a call greets the caller; each Gather callback carries one utterance.
func (h *Handler) TwilioVoiceWebhook(w http.ResponseWriter, r *http.Request) {
	ctx, span := twilioTracer.Start(r.Context(), "messaging.twilio.voice")
	defer span.End()
	start := time.Now()
	defer func() {
		h.deps.Metrics.ObserveInbound("voice", "handled")
		h.deps.Metrics.ObserveWebhookLatency("voice", time.Since(start).Seconds())
	}()

	if !h.verified(w, r) {
		span.RecordError(errors.New("invalid twilio voice signature"))
		return
	}
	webhook, err := ParseTwilioWebhook(r)
	if err != nil {
		h.logger.Error("failed to parse twilio voice form", "error", err)
		http.Error(w, "Bad Request", http.StatusBadRequest)
		return
	}
	from := NormalizeE164(webhook.From)
	to := NormalizeE164(webhook.To)
	if webhook.CallSid == "" || from == "" {
		http.Error(w, "Bad Request", http.StatusBadRequest)
		return
	}
	span.SetAttributes(attribute.String("vetclinic.twilio.call_sid", webhook.CallSid))

	clinicID, err := h.deps.Resolver.ResolveClinicID(ctx, to)
	if err != nil {
		h.logger.Warn("voice call to unknown number", "error", err, "to", to)
		writeTwiML(w, HangupTwiML(VoiceUnavailable))
		return
	}
	gathered := r.URL.Query().Get("gather") != ""
	if gathered && webhook.SpeechResult == "" {
		writeTwiML(w, GatherTwiML(VoiceNoSpeechPrompt, h.deps.VoiceActionURL))
		return
	}
	if h.deps.Turns == nil {
		writeTwiML(w, HangupTwiML(conversation.ServiceLimitedReply))
		return
	}

	in := conversation.Turn{
		ClinicID:  clinicID,
		Channel:   conversation.ChannelVoice,
		Phone:     from,
		Text:      webhook.SpeechResult,
		SessionID: webhook.CallSid,
		AudioURL:  webhook.RecordingURL,
	}
	if gathered {
		confidence := webhook.Confidence
		in.Confidence = &confidence
	}
	res, err := h.deps.Turns.Handle(ctx, in)
	if err != nil {
		h.logger.Error("voice turn failed", "error", err, "clinic_id", clinicID, "call_sid", webhook.CallSid)
		span.RecordError(err)
		writeTwiML(w, HangupTwiML(conversation.ServiceLimitedReply))
		return
	}
	if res.EndConversation {
		writeTwiML(w, HangupTwiML(res.ReplyText))
		return
	}
	writeTwiML(w, GatherTwiML(res.ReplyText, h.deps.VoiceActionURL))
}

// TwilioStatusWebhook handles POST /webhooks/twilio/status. Delivery receipts
// for emergency alerts carry the alert id in the callback URL.
func (h *Handler) TwilioStatusWebhook(w http.ResponseWriter, r *http.Request) {
	if !h.verified(w, r) {
		return
	}
	webhook, err := ParseTwilioWebhook(r)
	if err != nil {
		http.Error(w, "Bad Request", http.StatusBadRequest)
		return
	}
	alertID := r.URL.Query().Get("alert_id")
	if alertID == "" || h.deps.Alerts == nil {
		w.WriteHeader(http.StatusNoContent)
		return
	}
	switch webhook.MessageStatus {
	case "delivered", "read":
		if err := h.deps.Alerts.AlertDelivered(r.Context(), alertID); err != nil {
			h.logger.Warn("record alert delivery failed", "error", err, "alert_id", alertID)
		}
	case "failed", "undelivered":
		h.logger.Warn("emergency alert not delivered", "alert_id", alertID, "status", webhook.MessageStatus, "error_code", webhook.ErrorCode)
	}
	w.WriteHeader(http.StatusNoContent)
}

// StatusCallbackURL builds the per-alert callback used by the Twilio sender.
func StatusCallbackURL(base string, alertID string) string {
	if base == "" || alertID == "" {
		return ""
	}
	return strings.TrimRight(base, "/") + "/webhooks/twilio/status?alert_id=" + alertID
}

func writeTwiML(w http.ResponseWriter, body string) {
	w.Header().Set("Content-Type", "application/xml")
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte(body))
}

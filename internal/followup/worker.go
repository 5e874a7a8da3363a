package followup

import (
	"context"
	"errors"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"

	"github.com/wolfman30/vetclinic-ai-platform/internal/conversation"
	"github.com/wolfman30/vetclinic-ai-platform/pkg/logging"
)

var tracer = otel.Tracer("vetclinic.internal.followup")

const (
	// DefaultBatchSize is how many due follow-ups one pass handles.
	DefaultBatchSize = 50
	// DefaultDeferral is how long a follow-up waits when the client is busy.
	DefaultDeferral = time.Hour
	// DefaultInterval is the polling period of Start.
	DefaultInterval = 5 * time.Minute
)

// Opener opens the COLLECT_STATUS conversation of a follow-up.
type Opener interface {
	StartFollowUp(ctx context.Context, req conversation.FollowUpStart) (string, error)
}

// WorkerConfig tunes the worker. Zero values take the defaults.
type WorkerConfig struct {
	BatchSize int
	Deferral  time.Duration
	Interval  time.Duration
	// Channel is the reply channel for check-ins; empty infers it from the phone.
	Channel string
}

// Report counts what one pass did.
type Report struct {
	Sent     int `json:"sent"`
	Deferred int `json:"deferred"`
	Failed   int `json:"failed"`
}

// Worker sends due follow-ups.
type Worker struct {
	store  Store
	opener Opener
	sender conversation.ReplySender
	cfg    WorkerConfig
	logger *logging.Logger
	now    func() time.Time
}

func NewWorker(store Store, opener Opener, sender conversation.ReplySender, cfg WorkerConfig, logger *logging.Logger) *Worker {
	if store == nil || opener == nil || sender == nil {
		panic("followup: store, opener and sender are required")
	}
	if cfg.BatchSize <= 0 {
		cfg.BatchSize = DefaultBatchSize
	}
	if cfg.Deferral <= 0 {
		cfg.Deferral = DefaultDeferral
	}
	if cfg.Interval <= 0 {
		cfg.Interval = DefaultInterval
	}
	if logger == nil {
		logger = logging.Default()
	}
	return &Worker{store: store, opener: opener, sender: sender, cfg: cfg, logger: logger, now: time.Now}
}

// Start runs ProcessDue every interval until ctx is done.
func (w *Worker) Start(ctx context.Context) {
	ticker := time.NewTicker(w.cfg.Interval)
	defer ticker.Stop()
	for {
		if _, err := w.ProcessDue(ctx); err != nil && ctx.Err() == nil {
			w.logger.Error("follow-up pass failed", "error", err)
		}
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}
	}
}

// ProcessDue sends one batch of due follow-ups. A client with an open
// conversation is retried after the deferral.
func (w *Worker) ProcessDue(ctx context.Context) (Report, error) {
	ctx, span := tracer.Start(ctx, "followup.process_due")
	defer span.End()

	var report Report
	now := w.now().UTC()
	due, err := w.store.Due(ctx, now, w.cfg.BatchSize)
	if err != nil {
		span.RecordError(err)
		return report, err
	}
	for _, f := range due {
		if ctx.Err() != nil {
			return report, ctx.Err()
		}
		switch w.send(ctx, f, now) {
		case outcomeSent:
			report.Sent++
		case outcomeDeferred:
			report.Deferred++
		case outcomeFailed:
			report.Failed++
		}
	}
	span.SetAttributes(
		attribute.Int("vetclinic.followup.sent", report.Sent),
		attribute.Int("vetclinic.followup.deferred", report.Deferred),
		attribute.Int("vetclinic.followup.failed", report.Failed),
	)
	if len(due) > 0 {
		w.logger.Info("follow-up pass finished", "sent", report.Sent, "deferred", report.Deferred, "failed", report.Failed)
	}
	return report, nil
}

type outcome int

const (
	outcomeSkipped outcome = iota
	outcomeSent
	outcomeDeferred
	outcomeFailed
)

func (w *Worker) send(ctx context.Context, f FollowUp, now time.Time) outcome {
	message := Render(f.Template, f.PetName)
	conversationID, err := w.opener.StartFollowUp(ctx, conversation.FollowUpStart{
		ClinicID:           f.ClinicID,
		Phone:              f.ClientPhone,
		ReplyChannel:       w.cfg.Channel,
		FollowUpID:         f.ID,
		AppointmentID:      f.AppointmentID,
		PetName:            f.PetName,
		EscalationKeywords: f.EscalationKeywords,
		Message:            message,
	})
	if errors.Is(err, conversation.ErrConversationBusy) {
		if err := w.store.Defer(ctx, f.ID, now.Add(w.cfg.Deferral)); err != nil {
			w.logger.Warn("defer follow-up failed", "follow_up_id", f.ID, "error", err)
			return outcomeSkipped
		}
		return outcomeDeferred
	}
	if err != nil {
		return w.fail(ctx, f, err)
	}
	if err := w.sender.SendMessage(ctx, f.ClientPhone, message, w.cfg.Channel); err != nil {
		return w.fail(ctx, f, err)
	}
	if err := w.store.MarkSent(ctx, f.ID, conversationID, now); err != nil {
		w.logger.Error("mark follow-up sent failed", "follow_up_id", f.ID, "error", err)
	}
	return outcomeSent
}

func (w *Worker) fail(ctx context.Context, f FollowUp, cause error) outcome {
	w.logger.Warn("follow-up not sent", "follow_up_id", f.ID, "clinic_id", f.ClinicID, "error", cause)
	if err := w.store.MarkFailed(ctx, f.ID, cause.Error()); err != nil {
		w.logger.Error("mark follow-up failed", "follow_up_id", f.ID, "error", err)
	}
	return outcomeFailed
}

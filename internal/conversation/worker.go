package conversation

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/wolfman30/vetclinic-ai-platform/pkg/logging"
)

// TurnHandler processes one turn. *Engine implements it.
type TurnHandler interface {
	Handle(ctx context.Context, in Turn) (TurnResult, error)
}

// Worker consumes turn jobs from the queue, runs them through the engine and
// delivers chat replies.
type Worker struct {
	handler TurnHandler
	queue   Queue
	jobs    JobUpdater
	sender  ReplySender
	logger  *logging.Logger

	cfg workerConfig
	wg  sync.WaitGroup
}

type workerConfig struct {
	workers          int
	receiveWaitSecs  int
	receiveBatchSize int
	maxAttempts      int
}

const (
	defaultWorkerCount   = 2
	defaultWaitSeconds   = 2
	defaultBatchSize     = 5
	defaultMaxAttempts   = 3
	maxWaitSeconds       = 20
	maxReceiveBatchSize  = 10
	deleteTimeoutSeconds = 5
	sendTimeoutSeconds   = 10
)

// WorkerOption customizes worker behavior.
type WorkerOption func(*workerConfig)

// WithWorkerCount sets the number of concurrent consumer goroutines.
func WithWorkerCount(count int) WorkerOption {
	return func(cfg *workerConfig) {
		if count > 0 {
			cfg.workers = count
		}
	}
}

// WithReceiveWaitSeconds sets the long-poll wait duration.
func WithReceiveWaitSeconds(seconds int) WorkerOption {
	return func(cfg *workerConfig) {
		if seconds < 0 {
			return
		}
		if seconds > maxWaitSeconds {
			seconds = maxWaitSeconds
		}
		cfg.receiveWaitSecs = seconds
	}
}

// WithReceiveBatchSize sets how many messages to fetch per poll.
func WithReceiveBatchSize(size int) WorkerOption {
	return func(cfg *workerConfig) {
		if size <= 0 {
			return
		}
		if size > maxReceiveBatchSize {
			size = maxReceiveBatchSize
		}
		cfg.receiveBatchSize = size
	}
}

// WithMaxAttempts bounds how often a job failing on persistence is retried
// before the caller gets the service-limited reply.
func WithMaxAttempts(n int) WorkerOption {
	return func(cfg *workerConfig) {
		if n > 0 {
			cfg.maxAttempts = n
		}
	}
}

// NewWorker constructs a queue consumer. jobs and sender may be nil.
func NewWorker(handler TurnHandler, queue Queue, jobs JobUpdater, sender ReplySender, logger *logging.Logger, opts ...WorkerOption) *Worker {
	if handler == nil {
		panic("conversation: turn handler cannot be nil")
	}
	if queue == nil {
		panic("conversation: queue cannot be nil")
	}
	if logger == nil {
		logger = logging.Default()
	}
	cfg := workerConfig{
		workers:          defaultWorkerCount,
		receiveWaitSecs:  defaultWaitSeconds,
		receiveBatchSize: defaultBatchSize,
		maxAttempts:      defaultMaxAttempts,
	}
	for _, opt := range opts {
		opt(&cfg)
	}
	return &Worker{
		handler: handler,
		queue:   queue,
		jobs:    jobs,
		sender:  sender,
		logger:  logger,
		cfg:     cfg,
	}
}

// Start launches worker goroutines until ctx is cancelled.
func (w *Worker) Start(ctx context.Context) {
	for i := 0; i < w.cfg.workers; i++ {
		w.wg.Add(1)
		go w.run(ctx, i+1)
	}
}

// Wait blocks until all worker goroutines exit.
func (w *Worker) Wait() {
	w.wg.Wait()
}

func (w *Worker) run(ctx context.Context, workerID int) {
	defer w.wg.Done()
	w.logger.Debug("turn worker started", "worker_id", workerID)

	backoff := time.Second
	for {
		select {
		case <-ctx.Done():
			w.logger.Debug("turn worker stopping", "worker_id", workerID)
			return
		default:
		}

		messages, err := w.queue.Receive(ctx, w.cfg.receiveBatchSize, w.cfg.receiveWaitSecs)
		if err != nil {
			if errors.Is(err, context.Canceled) || ctx.Err() != nil {
				return
			}
			w.logger.Error("failed to receive turn jobs", "error", err, "worker_id", workerID)
			select {
			case <-ctx.Done():
				return
			case <-time.After(backoff):
			}
			if backoff < 5*time.Second {
				backoff *= 2
			}
			continue
		}
		backoff = time.Second

		for _, msg := range messages {
			w.handleMessage(ctx, msg)
		}
	}
}

func (w *Worker) handleMessage(ctx context.Context, msg QueuedMessage) {
	job, err := decodeJob(msg.Body)
	if err != nil {
		w.logger.Error("dropping undecodable turn job", "error", err, "msg_id", msg.ID)
		w.deleteMessage(ctx, msg.Receipt)
		return
	}
	in := job.Turn
	attempt := max(msg.Attempt, 1)

	res, err := w.handler.Handle(ctx, in)
	if err != nil {
		if errors.Is(err, ErrPersistence) && attempt < w.cfg.maxAttempts {
			// left undeleted so the queue redelivers it
			w.logger.Warn("turn job will be retried", "error", err, "job_id", job.JobID, "attempt", attempt)
			return
		}
		w.logger.Error("turn job failed", "error", err, "job_id", job.JobID, "attempt", attempt)
		if job.Track && w.jobs != nil {
			if storeErr := w.jobs.MarkFailed(ctx, job.JobID, err.Error()); storeErr != nil {
				w.logger.Error("failed to update job status", "error", storeErr, "job_id", job.JobID)
			}
		}
		w.reply(ctx, in, ServiceLimitedReply)
		w.deleteMessage(ctx, msg.Receipt)
		return
	}

	if job.Track && w.jobs != nil {
		if storeErr := w.jobs.MarkCompleted(ctx, job.JobID, res); storeErr != nil {
			w.logger.Error("failed to update job status", "error", storeErr, "job_id", job.JobID)
		}
	}
	// A duplicate on first delivery means the transport resent a message we
	// already answered. On redelivery the earlier send may not have happened.
	if !res.Duplicate || attempt > 1 {
		w.reply(ctx, in, res.ReplyText)
	}
	w.logger.Debug("turn job processed", "job_id", job.JobID, "conversation_id", res.ConversationID, "state", res.State)
	w.deleteMessage(ctx, msg.Receipt)
}

// reply delivers chat replies. Voice and webchat answer on their own
// connection.
func (w *Worker) reply(ctx context.Context, in Turn, text string) {
	if w.sender == nil || in.Channel != ChannelChat || text == "" {
		return
	}
	sendCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), sendTimeoutSeconds*time.Second)
	defer cancel()
	if err := w.sender.SendMessage(sendCtx, in.Phone, text, in.ReplyChannel); err != nil {
		w.logger.Error("failed to send turn reply", "error", err, "clinic_id", in.ClinicID, "reply_channel", in.ReplyChannel)
	}
}

func (w *Worker) deleteMessage(ctx context.Context, receipt string) {
	if receipt == "" {
		return
	}
	deleteCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), deleteTimeoutSeconds*time.Second)
	defer cancel()
	if err := w.queue.Delete(deleteCtx, receipt); err != nil {
		w.logger.Error("failed to delete turn job", "error", err)
	}
}

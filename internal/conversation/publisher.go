package conversation

import (
	"context"
	"fmt"

	"github.com/wolfman30/vetclinic-ai-platform/pkg/logging"
)

// Publisher enqueues turns for the turn workers.
type Publisher struct {
	queue  Queue
	logger *logging.Logger
}

// NewPublisher creates a queue-backed publisher.
func NewPublisher(queue Queue, logger *logging.Logger) *Publisher {
	if queue == nil {
		panic("conversation: queue cannot be nil")
	}
	if logger == nil {
		logger = logging.Default()
	}
	return &Publisher{queue: queue, logger: logger}
}

// EnqueueTurn publishes a turn job and returns its id. An empty jobID is
// generated.
func (p *Publisher) EnqueueTurn(ctx context.Context, jobID string, in Turn, opts ...PublishOption) (string, error) {
	job := TurnJob{JobID: jobID, Turn: in}
	for _, opt := range opts {
		opt(&job)
	}
	job, body, err := encodeJob(job)
	if err != nil {
		return "", err
	}
	if err := p.queue.Send(ctx, body); err != nil {
		return "", fmt.Errorf("conversation: enqueue turn: %w", err)
	}
	p.logger.Debug("turn job enqueued", "job_id", job.JobID, "clinic_id", in.ClinicID, "channel", in.Channel)
	return job.JobID, nil
}

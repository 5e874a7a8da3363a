package conversation

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
)

// Queue carries turn jobs from the webhook tier to turn workers. A message
// that is received and not deleted is delivered again later.
type Queue interface {
	Send(ctx context.Context, body string) error
	Receive(ctx context.Context, maxMessages int, waitSeconds int) ([]QueuedMessage, error)
	Delete(ctx context.Context, receipt string) error
}

// QueuedMessage is one delivery of a job.
type QueuedMessage struct {
	ID      string
	Body    string
	Receipt string
	// Attempt counts deliveries, starting at 1.
	Attempt int
}

// TurnJob is the queued form of a turn.
type TurnJob struct {
	JobID      string    `json:"job_id"`
	Turn       Turn      `json:"turn"`
	Track      bool      `json:"track"`
	EnqueuedAt time.Time `json:"enqueued_at"`
}

// PublishOption customizes an enqueued job.
type PublishOption func(*TurnJob)

// WithJobTracking records the job's result for GET /v1/conversations/jobs/{id}.
func WithJobTracking() PublishOption {
	return func(j *TurnJob) {
		j.Track = true
	}
}

func encodeJob(job TurnJob) (TurnJob, string, error) {
	if job.JobID == "" {
		job.JobID = uuid.NewString()
	}
	if job.EnqueuedAt.IsZero() {
		job.EnqueuedAt = time.Now().UTC()
	}
	body, err := json.Marshal(job)
	if err != nil {
		return TurnJob{}, "", fmt.Errorf("conversation: encode job: %w", err)
	}
	return job, string(body), nil
}

func decodeJob(body string) (TurnJob, error) {
	var job TurnJob
	if err := json.Unmarshal([]byte(body), &job); err != nil {
		return TurnJob{}, fmt.Errorf("conversation: decode job: %w", err)
	}
	if job.Turn.ClinicID == "" || job.Turn.Phone == "" {
		return TurnJob{}, fmt.Errorf("conversation: job %s has no clinic or phone", job.JobID)
	}
	return job, nil
}

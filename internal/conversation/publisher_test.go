package conversation

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/wolfman30/vetclinic-ai-platform/pkg/logging"
)

func TestPublisher_EnqueueTurn(t *testing.T) {
	queue := &stubQueue{}
	publisher := NewPublisher(queue, logging.Default())

	jobID, err := publisher.EnqueueTurn(context.Background(), "job-123", Turn{
		ClinicID: "clinic-1",
		Channel:  ChannelChat,
		Phone:    "+573001112233",
		Text:     "hola",
	}, WithJobTracking())
	if err != nil {
		t.Fatalf("enqueue returned error: %v", err)
	}
	if jobID != "job-123" {
		t.Fatalf("expected job id job-123, got %s", jobID)
	}
	if len(queue.sent) != 1 {
		t.Fatalf("expected 1 message, got %d", len(queue.sent))
	}
	job, err := decodeJob(queue.sent[0])
	if err != nil {
		t.Fatalf("failed to decode payload: %v", err)
	}
	if !job.Track || job.Turn.Text != "hola" || job.EnqueuedAt.IsZero() {
		t.Fatalf("unexpected job: %#v", job)
	}
}

func TestPublisher_GeneratesJobID(t *testing.T) {
	queue := &stubQueue{}
	publisher := NewPublisher(queue, nil)

	jobID, err := publisher.EnqueueTurn(context.Background(), "", Turn{ClinicID: "c", Channel: ChannelChat, Phone: "p"})
	if err != nil {
		t.Fatalf("enqueue returned error: %v", err)
	}
	if jobID == "" {
		t.Fatal("expected generated job id")
	}
	job, _ := decodeJob(queue.sent[0])
	if job.Track {
		t.Fatal("tracking should be opt-in")
	}
}

func TestPublisher_SendError(t *testing.T) {
	publisher := NewPublisher(&stubQueue{sendErr: errors.New("queue down")}, nil)
	if _, err := publisher.EnqueueTurn(context.Background(), "j", Turn{ClinicID: "c", Phone: "p"}); err == nil {
		t.Fatal("expected send error")
	}
}

func TestDecodeJob_RejectsIncompleteTurn(t *testing.T) {
	if _, err := decodeJob(`{"job_id":"j","turn":{"clinic_id":"c"}}`); err == nil {
		t.Fatal("expected missing phone to be rejected")
	}
	if _, err := decodeJob("not json"); err == nil {
		t.Fatal("expected invalid json to be rejected")
	}
}

type stubQueue struct {
	sent    []string
	sendErr error
	deleted []string
}

func (s *stubQueue) Send(ctx context.Context, body string) error {
	if s.sendErr != nil {
		return s.sendErr
	}
	s.sent = append(s.sent, body)
	return nil
}

func (s *stubQueue) Receive(ctx context.Context, maxMessages int, waitSeconds int) ([]QueuedMessage, error) {
	select {
	case <-ctx.Done():
	case <-time.After(time.Duration(waitSeconds) * time.Second):
	}
	return nil, context.Canceled
}

func (s *stubQueue) Delete(ctx context.Context, receipt string) error {
	s.deleted = append(s.deleted, receipt)
	return nil
}

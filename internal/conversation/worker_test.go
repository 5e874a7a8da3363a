package conversation

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/wolfman30/vetclinic-ai-platform/pkg/logging"
)

func TestWorkerProcessesQueuedTurns(t *testing.T) {
	queue := NewMemoryQueue(10)
	handler := &scriptedHandler{result: TurnResult{ReplyText: "Hola", ConversationID: "conv-1"}}
	jobs := &stubJobUpdater{}
	sender := &stubSender{}
	worker := NewWorker(handler, queue, jobs, sender, logging.Default(), WithWorkerCount(1), WithReceiveWaitSeconds(1))

	publisher := NewPublisher(queue, logging.Default())
	if _, err := publisher.EnqueueTurn(context.Background(), "job-1", chatTurn("hola"), WithJobTracking()); err != nil {
		t.Fatalf("enqueue: %v", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	worker.Start(ctx)

	waitFor(func() bool { return queue.Len() == 0 && len(sender.sentTexts()) == 1 }, 2*time.Second, t)
	cancel()
	worker.Wait()

	if handler.calls() != 1 {
		t.Fatalf("expected 1 handle call, got %d", handler.calls())
	}
	if jobs := jobs.completedJobs(); len(jobs) != 1 || jobs[0] != "job-1" {
		t.Fatalf("expected job completion to be recorded, got %#v", jobs)
	}
	if got := sender.sentTexts()[0]; got != "Hola" {
		t.Fatalf("expected reply Hola, got %q", got)
	}
}

func TestWorkerLeavesPersistenceFailuresForRedelivery(t *testing.T) {
	queue := &stubQueue{}
	handler := &scriptedHandler{err: fmt.Errorf("%w: db down", ErrPersistence)}
	jobs := &stubJobUpdater{}
	sender := &stubSender{}
	worker := NewWorker(handler, queue, jobs, sender, nil, WithMaxAttempts(3))

	worker.handleMessage(context.Background(), queued(t, "job-1", chatTurn("hola"), 1))
	if len(queue.deleted) != 0 {
		t.Fatalf("expected message to stay undeleted, got deletes %v", queue.deleted)
	}
	if len(sender.sentTexts()) != 0 || jobs.failureCount() != 0 {
		t.Fatal("no reply or failure should be recorded before the last attempt")
	}

	worker.handleMessage(context.Background(), queued(t, "job-1", chatTurn("hola"), 3))
	if len(queue.deleted) != 1 {
		t.Fatalf("expected message deleted on final attempt, got %v", queue.deleted)
	}
	if jobs.failureCount() != 1 {
		t.Fatalf("expected failure recorded, got %d", jobs.failureCount())
	}
	if texts := sender.sentTexts(); len(texts) != 1 || texts[0] != ServiceLimitedReply {
		t.Fatalf("expected service limited reply, got %v", texts)
	}
}

func TestWorkerNonPersistenceErrorFailsImmediately(t *testing.T) {
	queue := &stubQueue{}
	sender := &stubSender{}
	worker := NewWorker(&scriptedHandler{err: errors.New("bad turn")}, queue, nil, sender, nil)

	worker.handleMessage(context.Background(), queued(t, "job-2", chatTurn("hola"), 1))
	if len(queue.deleted) != 1 {
		t.Fatalf("expected message deleted, got %v", queue.deleted)
	}
	if texts := sender.sentTexts(); len(texts) != 1 || texts[0] != ServiceLimitedReply {
		t.Fatalf("expected service limited reply, got %v", texts)
	}
}

func TestWorkerDuplicateRepliesOnlyOnRedelivery(t *testing.T) {
	queue := &stubQueue{}
	sender := &stubSender{}
	handler := &scriptedHandler{result: TurnResult{ReplyText: "Cita confirmada", Duplicate: true}}
	worker := NewWorker(handler, queue, nil, sender, nil)

	worker.handleMessage(context.Background(), queued(t, "job-3", chatTurn("sí"), 1))
	if len(sender.sentTexts()) != 0 {
		t.Fatalf("first-delivery duplicate must not resend, got %v", sender.sentTexts())
	}
	worker.handleMessage(context.Background(), queued(t, "job-3", chatTurn("sí"), 2))
	if texts := sender.sentTexts(); len(texts) != 1 || texts[0] != "Cita confirmada" {
		t.Fatalf("redelivered duplicate should resend stored reply, got %v", texts)
	}
	if len(queue.deleted) != 2 {
		t.Fatalf("expected both deliveries deleted, got %v", queue.deleted)
	}
}

func TestWorkerSkipsRepliesForVoiceTurns(t *testing.T) {
	sender := &stubSender{}
	worker := NewWorker(&scriptedHandler{result: TurnResult{ReplyText: "Hola"}}, &stubQueue{}, nil, sender, nil)

	in := chatTurn("hola")
	in.Channel = ChannelVoice
	worker.handleMessage(context.Background(), queued(t, "job-4", in, 1))
	if len(sender.sentTexts()) != 0 {
		t.Fatalf("voice turns answer on the call, got %v", sender.sentTexts())
	}
}

func TestWorkerDropsMalformedPayload(t *testing.T) {
	queue := &stubQueue{}
	handler := &scriptedHandler{}
	worker := NewWorker(handler, queue, nil, nil, nil)

	worker.handleMessage(context.Background(), QueuedMessage{ID: "m", Body: "{", Receipt: "rh", Attempt: 1})
	if handler.calls() != 0 {
		t.Fatal("malformed payload must not reach the engine")
	}
	if len(queue.deleted) != 1 {
		t.Fatalf("expected malformed payload deleted, got %v", queue.deleted)
	}
}

func TestWorkerConfigOptions(t *testing.T) {
	worker := NewWorker(&scriptedHandler{}, &stubQueue{}, nil, nil, nil,
		WithWorkerCount(4),
		WithReceiveWaitSeconds(60),
		WithReceiveBatchSize(50),
		WithMaxAttempts(0),
	)
	if worker.cfg.workers != 4 {
		t.Fatalf("expected 4 workers, got %d", worker.cfg.workers)
	}
	if worker.cfg.receiveWaitSecs != maxWaitSeconds {
		t.Fatalf("expected wait capped at %d, got %d", maxWaitSeconds, worker.cfg.receiveWaitSecs)
	}
	if worker.cfg.receiveBatchSize != maxReceiveBatchSize {
		t.Fatalf("expected batch capped at %d, got %d", maxReceiveBatchSize, worker.cfg.receiveBatchSize)
	}
	if worker.cfg.maxAttempts != defaultMaxAttempts {
		t.Fatalf("expected default attempts, got %d", worker.cfg.maxAttempts)
	}
}

func chatTurn(text string) Turn {
	return Turn{ClinicID: "clinic-1", Channel: ChannelChat, Phone: "+573001112233", Text: text, ReplyChannel: "sms"}
}

func queued(t *testing.T, jobID string, in Turn, attempt int) QueuedMessage {
	t.Helper()
	_, body, err := encodeJob(TurnJob{JobID: jobID, Turn: in, Track: true})
	if err != nil {
		t.Fatalf("encode job: %v", err)
	}
	return QueuedMessage{ID: "msg-" + jobID, Body: body, Receipt: fmt.Sprintf("rh-%s-%d", jobID, attempt), Attempt: attempt}
}

func waitFor(cond func() bool, timeout time.Duration, t *testing.T) {
	t.Helper()
	deadline := time.Now().Add(timeout)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(10 * time.Millisecond)
	}
	t.Fatalf("condition not met within %s", timeout)
}

type scriptedHandler struct {
	mu     sync.Mutex
	n      int
	result TurnResult
	err    error
}

func (s *scriptedHandler) Handle(ctx context.Context, in Turn) (TurnResult, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.n++
	return s.result, s.err
}

func (s *scriptedHandler) calls() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.n
}

type stubSender struct {
	mu    sync.Mutex
	texts []string
}

func (s *stubSender) SendMessage(ctx context.Context, phone, text, channel string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.texts = append(s.texts, text)
	return nil
}

func (s *stubSender) sentTexts() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]string(nil), s.texts...)
}

type stubJobUpdater struct {
	mu        sync.Mutex
	completed []string
	failed    []string
}

func (s *stubJobUpdater) MarkCompleted(ctx context.Context, jobID string, res TurnResult) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.completed = append(s.completed, jobID)
	return nil
}

func (s *stubJobUpdater) MarkFailed(ctx context.Context, jobID string, errMsg string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.failed = append(s.failed, jobID)
	return nil
}

func (s *stubJobUpdater) completedJobs() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]string(nil), s.completed...)
}

func (s *stubJobUpdater) failureCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.failed)
}

package conversation

import (
	"context"
	"testing"
	"time"
)

func TestMemoryQueue_RedeliversUndeletedMessages(t *testing.T) {
	q := NewMemoryQueue(4).WithVisibilityTimeout(30 * time.Millisecond)
	ctx := context.Background()
	if err := q.Send(ctx, "body"); err != nil {
		t.Fatalf("send: %v", err)
	}

	first, err := q.Receive(ctx, 1, 1)
	if err != nil || len(first) != 1 {
		t.Fatalf("expected one message, got %v %v", first, err)
	}
	if first[0].Attempt != 1 {
		t.Fatalf("expected attempt 1, got %d", first[0].Attempt)
	}

	second, err := q.Receive(ctx, 1, 1)
	if err != nil || len(second) != 1 {
		t.Fatalf("expected redelivery, got %v %v", second, err)
	}
	if second[0].Attempt != 2 || second[0].Receipt == first[0].Receipt {
		t.Fatalf("expected attempt 2 with fresh receipt, got %#v", second[0])
	}

	if err := q.Delete(ctx, second[0].Receipt); err != nil {
		t.Fatalf("delete: %v", err)
	}
	if q.Len() != 0 {
		t.Fatalf("expected empty queue, got %d", q.Len())
	}
}

func TestMemoryQueue_ReceiveTimesOut(t *testing.T) {
	q := NewMemoryQueue(1)
	msgs, err := q.Receive(context.Background(), 5, 1)
	if err != nil || len(msgs) != 0 {
		t.Fatalf("expected empty receive, got %v %v", msgs, err)
	}
}

func TestMemoryQueue_SendRespectsContextWhenFull(t *testing.T) {
	q := NewMemoryQueue(1)
	if err := q.Send(context.Background(), "a"); err != nil {
		t.Fatalf("send: %v", err)
	}
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Millisecond)
	defer cancel()
	if err := q.Send(ctx, "b"); err == nil {
		t.Fatal("expected full queue send to fail with the context")
	}
}

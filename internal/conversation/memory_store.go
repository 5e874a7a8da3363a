package conversation

import (
	"context"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/wolfman30/vetclinic-ai-platform/internal/events"
)

type memoryTxKey struct{}

// MemoryStore keeps conversations in process memory. Atomic serializes units
// of work and restores the maps when fn fails. An attached outbox is
// truncated back on rollback; other in-memory collaborators keep their
// writes.
type MemoryStore struct {
	txMu sync.Mutex

	mu            sync.RWMutex
	conversations map[string]Conversation
	messages      map[string][]Message
	outbox        *events.MemoryOutbox
}

// NewMemoryStore creates an empty store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		conversations: make(map[string]Conversation),
		messages:      make(map[string][]Message),
	}
}

// WithOutbox makes Atomic roll back outbox entries recorded by a failed unit.
func (s *MemoryStore) WithOutbox(outbox *events.MemoryOutbox) *MemoryStore {
	s.outbox = outbox
	return s
}

var _ Store = (*MemoryStore)(nil)

func (s *MemoryStore) Atomic(ctx context.Context, fn func(ctx context.Context) error) error {
	if ctx.Value(memoryTxKey{}) != nil {
		return fn(ctx)
	}
	s.txMu.Lock()
	defer s.txMu.Unlock()

	s.mu.RLock()
	convSnap := make(map[string]Conversation, len(s.conversations))
	for id, c := range s.conversations {
		convSnap[id] = c.Clone()
	}
	msgSnap := make(map[string][]Message, len(s.messages))
	for id, list := range s.messages {
		msgSnap[id] = append([]Message(nil), list...)
	}
	s.mu.RUnlock()
	outboxLen := 0
	if s.outbox != nil {
		outboxLen = len(s.outbox.Entries())
	}

	if err := fn(context.WithValue(ctx, memoryTxKey{}, true)); err != nil {
		s.mu.Lock()
		s.conversations = convSnap
		s.messages = msgSnap
		s.mu.Unlock()
		if s.outbox != nil {
			s.outbox.Truncate(outboxLen)
		}
		return err
	}
	return nil
}

func (s *MemoryStore) FindOpen(_ context.Context, clinicID, phone string, channel Channel) (*Conversation, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var found *Conversation
	for _, c := range s.conversations {
		if c.ClinicID != clinicID || c.Phone != phone || c.Channel != channel || !c.Open() {
			continue
		}
		if found == nil || c.StartedAt.After(found.StartedAt) {
			cp := c.Clone()
			found = &cp
		}
	}
	if found == nil {
		return nil, ErrNotFound
	}
	return found, nil
}

func (s *MemoryStore) Get(_ context.Context, id string) (*Conversation, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	c, ok := s.conversations[id]
	if !ok {
		return nil, ErrNotFound
	}
	cp := c.Clone()
	return &cp, nil
}

func (s *MemoryStore) Create(_ context.Context, c *Conversation) error {
	if c.ID == "" {
		c.ID = uuid.NewString()
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.conversations[c.ID] = c.Clone()
	return nil
}

func (s *MemoryStore) Update(_ context.Context, c *Conversation) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.conversations[c.ID]; !ok {
		return ErrNotFound
	}
	s.conversations[c.ID] = c.Clone()
	return nil
}

func (s *MemoryStore) AppendMessage(_ context.Context, m *Message) error {
	if m.ID == "" {
		m.ID = uuid.NewString()
	}
	if m.CreatedAt.IsZero() {
		m.CreatedAt = time.Now().UTC()
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.messages[m.ConversationID] = append(s.messages[m.ConversationID], *m)
	return nil
}

func (s *MemoryStore) RecentMessages(_ context.Context, conversationID string, limit int) ([]Message, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	list := s.messages[conversationID]
	if limit > 0 && len(list) > limit {
		list = list[len(list)-limit:]
	}
	return append([]Message(nil), list...), nil
}

func (s *MemoryStore) Messages(ctx context.Context, conversationID string) ([]Message, error) {
	return s.RecentMessages(ctx, conversationID, 0)
}

func (s *MemoryStore) FindTurn(_ context.Context, clinicID, externalID string) (*RecordedTurn, error) {
	externalID = strings.TrimSpace(externalID)
	if externalID == "" {
		return nil, ErrNotFound
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	for convID, list := range s.messages {
		conv, ok := s.conversations[convID]
		if !ok || conv.ClinicID != clinicID {
			continue
		}
		for _, m := range list {
			if m.ExternalID != externalID {
				continue
			}
			turn := &RecordedTurn{ConversationID: convID, State: conv.State}
			for _, r := range list {
				if r.ReplyTo == m.ID {
					turn.Reply = r.Content
					break
				}
			}
			return turn, nil
		}
	}
	return nil, ErrNotFound
}

func (s *MemoryStore) ListExpired(_ context.Context, channel Channel, states []State, now time.Time, limit int) ([]Conversation, error) {
	want := make(map[State]bool, len(states))
	for _, st := range states {
		want[st] = true
	}
	s.mu.RLock()
	var out []Conversation
	for _, c := range s.conversations {
		if c.Channel != channel || c.Status != StatusActive || !want[c.State] || !c.Expired(now) {
			continue
		}
		out = append(out, c.Clone())
	}
	s.mu.RUnlock()
	sort.Slice(out, func(i, j int) bool { return out[i].TimeoutAt.Before(*out[j].TimeoutAt) })
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (s *MemoryStore) List(_ context.Context, clinicID string, status Status, limit int) ([]Conversation, error) {
	s.mu.RLock()
	var out []Conversation
	for _, c := range s.conversations {
		if c.ClinicID != clinicID || (status != "" && c.Status != status) {
			continue
		}
		out = append(out, c.Clone())
	}
	s.mu.RUnlock()
	sort.Slice(out, func(i, j int) bool { return out[i].StartedAt.After(out[j].StartedAt) })
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

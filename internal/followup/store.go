package followup

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
)

// Store persists follow-ups. Implementations join the ambient transaction.
type Store interface {
	Create(ctx context.Context, items []FollowUp) error
	Get(ctx context.Context, id string) (*FollowUp, error)
	// Due returns pending follow-ups whose due time has passed, oldest first.
	Due(ctx context.Context, now time.Time, limit int) ([]FollowUp, error)
	MarkSent(ctx context.Context, id, conversationID string, at time.Time) error
	MarkFailed(ctx context.Context, id, reason string) error
	// Defer pushes a pending follow-up to until and counts the attempt.
	Defer(ctx context.Context, id string, until time.Time) error
	RecordResponse(ctx context.Context, id string, status Status, response string, at time.Time) error
	ListByAppointment(ctx context.Context, clinicID, appointmentID string) ([]FollowUp, error)
}

// MemoryStore keeps follow-ups in process.
type MemoryStore struct {
	mu    sync.Mutex
	items map[string]*FollowUp
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{items: make(map[string]*FollowUp)}
}

var _ Store = (*MemoryStore)(nil)

func (m *MemoryStore) Create(_ context.Context, items []FollowUp) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for i := range items {
		if items[i].ID == "" {
			items[i].ID = uuid.NewString()
		}
		f := items[i]
		f.EscalationKeywords = append([]string(nil), f.EscalationKeywords...)
		m.items[f.ID] = &f
	}
	return nil
}

func (m *MemoryStore) Get(_ context.Context, id string) (*FollowUp, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	f, ok := m.items[id]
	if !ok {
		return nil, ErrNotFound
	}
	out := *f
	return &out, nil
}

func (m *MemoryStore) Due(_ context.Context, now time.Time, limit int) ([]FollowUp, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []FollowUp
	for _, f := range m.items {
		if f.Status == StatusPending && !f.DueAt.After(now) {
			out = append(out, *f)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].DueAt.Before(out[j].DueAt) })
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (m *MemoryStore) update(id string, fn func(f *FollowUp)) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	f, ok := m.items[id]
	if !ok {
		return ErrNotFound
	}
	fn(f)
	return nil
}

func (m *MemoryStore) MarkSent(_ context.Context, id, conversationID string, at time.Time) error {
	return m.update(id, func(f *FollowUp) {
		f.Status = StatusSent
		f.ConversationID = conversationID
		f.SentAt = &at
		f.Attempts++
	})
}

func (m *MemoryStore) MarkFailed(_ context.Context, id, reason string) error {
	return m.update(id, func(f *FollowUp) {
		f.Status = StatusFailed
		f.LastError = reason
		f.Attempts++
	})
}

func (m *MemoryStore) Defer(_ context.Context, id string, until time.Time) error {
	return m.update(id, func(f *FollowUp) {
		f.DueAt = until
		f.Attempts++
	})
}

func (m *MemoryStore) RecordResponse(_ context.Context, id string, status Status, response string, at time.Time) error {
	return m.update(id, func(f *FollowUp) {
		f.Status = status
		f.Response = response
		f.RespondedAt = &at
	})
}

func (m *MemoryStore) ListByAppointment(_ context.Context, clinicID, appointmentID string) ([]FollowUp, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []FollowUp
	for _, f := range m.items {
		if f.ClinicID == clinicID && f.AppointmentID == appointmentID {
			out = append(out, *f)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Step < out[j].Step })
	return out, nil
}

package emergency

import (
	"context"
	"sort"
	"sync"
	"time"
)

// Store persists emergency events and their alerts.
type Store interface {
	CreateEvent(ctx context.Context, ev *Event) error
	GetEvent(ctx context.Context, clinicID, id string) (*Event, error)
	// UpdateEvent writes status, ack and resolution fields if the stored
	// status is still from, and returns ErrStatusChanged otherwise.
	UpdateEvent(ctx context.Context, ev *Event, from Status) error
	ListEvents(ctx context.Context, clinicID string, status Status, limit int) ([]Event, error)
	SaveAlerts(ctx context.Context, alerts []Alert) error
	ListAlerts(ctx context.Context, eventID string) ([]Alert, error)
	MarkAlertDelivered(ctx context.Context, alertID string, at time.Time) error
}

// MemoryStore keeps events in process memory.
type MemoryStore struct {
	mu     sync.RWMutex
	events map[string]Event
	alerts map[string][]Alert
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		events: make(map[string]Event),
		alerts: make(map[string][]Alert),
	}
}

func (s *MemoryStore) CreateEvent(_ context.Context, ev *Event) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.events[ev.ID] = cloneEvent(*ev)
	return nil
}

func (s *MemoryStore) GetEvent(_ context.Context, clinicID, id string) (*Event, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	ev, ok := s.events[id]
	if !ok || ev.ClinicID != clinicID {
		return nil, ErrNotFound
	}
	out := cloneEvent(ev)
	return &out, nil
}

func (s *MemoryStore) UpdateEvent(_ context.Context, ev *Event, from Status) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	cur, ok := s.events[ev.ID]
	if !ok || cur.ClinicID != ev.ClinicID {
		return ErrNotFound
	}
	if cur.Status != from {
		return ErrStatusChanged
	}
	s.events[ev.ID] = cloneEvent(*ev)
	return nil
}

func (s *MemoryStore) ListEvents(_ context.Context, clinicID string, status Status, limit int) ([]Event, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []Event
	for _, ev := range s.events {
		if ev.ClinicID != clinicID || (status != "" && ev.Status != status) {
			continue
		}
		out = append(out, cloneEvent(ev))
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.After(out[j].CreatedAt) })
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (s *MemoryStore) SaveAlerts(_ context.Context, alerts []Alert) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, a := range alerts {
		s.alerts[a.EventID] = append(s.alerts[a.EventID], a)
	}
	return nil
}

func (s *MemoryStore) ListAlerts(_ context.Context, eventID string) ([]Alert, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return append([]Alert(nil), s.alerts[eventID]...), nil
}

func (s *MemoryStore) MarkAlertDelivered(_ context.Context, alertID string, at time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for eventID, alerts := range s.alerts {
		for i := range alerts {
			if alerts[i].ID != alertID {
				continue
			}
			alerts[i].Status = AlertDelivered
			delivered := at
			alerts[i].DeliveredAt = &delivered
			s.alerts[eventID] = alerts
			return nil
		}
	}
	return ErrNotFound
}

func cloneEvent(ev Event) Event {
	ev.Keywords = append([]string(nil), ev.Keywords...)
	return ev
}

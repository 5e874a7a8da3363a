package clients

import (
	"context"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
)

// Repository persists clients.
type Repository interface {
	// GetOrCreate returns the client for (clinic, phone), creating it on
	// first contact. A non-empty name fills a missing one.
	GetOrCreate(ctx context.Context, clinicID, phone, name string) (*Client, error)
	Get(ctx context.Context, clinicID, id string) (*Client, error)
	FindByPhone(ctx context.Context, clinicID, phone string) (*Client, error)
	// IncrementFalseEmergency counts a caller backing out of an emergency.
	IncrementFalseEmergency(ctx context.Context, clinicID, id string) (*Client, error)
	// RecordFalseAlarm counts a staff-confirmed false alarm and revokes
	// emergency access once threshold is reached.
	RecordFalseAlarm(ctx context.Context, clinicID, id string, threshold int) (*Client, error)
	// ClearAccess restores emergency access and resets the alarm counter.
	ClearAccess(ctx context.Context, clinicID, id string) (*Client, error)
}

// MemoryRepository keeps clients in process memory.
type MemoryRepository struct {
	mu      sync.RWMutex
	clients map[string]*Client
	byPhone map[string]string
}

func NewMemoryRepository() *MemoryRepository {
	return &MemoryRepository{
		clients: make(map[string]*Client),
		byPhone: make(map[string]string),
	}
}

func phoneKey(clinicID, phone string) string {
	return clinicID + "|" + strings.TrimSpace(phone)
}

func (r *MemoryRepository) GetOrCreate(_ context.Context, clinicID, phone, name string) (*Client, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if id, ok := r.byPhone[phoneKey(clinicID, phone)]; ok {
		c := r.clients[id]
		if c.Name == "" && strings.TrimSpace(name) != "" {
			c.Name = strings.TrimSpace(name)
			c.UpdatedAt = time.Now().UTC()
		}
		cp := *c
		return &cp, nil
	}
	now := time.Now().UTC()
	c := &Client{
		ID:        uuid.New().String(),
		ClinicID:  clinicID,
		Phone:     strings.TrimSpace(phone),
		Name:      strings.TrimSpace(name),
		CreatedAt: now,
		UpdatedAt: now,
	}
	r.clients[c.ID] = c
	r.byPhone[phoneKey(clinicID, phone)] = c.ID
	cp := *c
	return &cp, nil
}

func (r *MemoryRepository) Get(_ context.Context, clinicID, id string) (*Client, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	c, ok := r.clients[id]
	if !ok || c.ClinicID != clinicID {
		return nil, ErrNotFound
	}
	cp := *c
	return &cp, nil
}

func (r *MemoryRepository) FindByPhone(_ context.Context, clinicID, phone string) (*Client, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	id, ok := r.byPhone[phoneKey(clinicID, phone)]
	if !ok {
		return nil, ErrNotFound
	}
	cp := *r.clients[id]
	return &cp, nil
}

func (r *MemoryRepository) update(clinicID, id string, fn func(c *Client)) (*Client, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	c, ok := r.clients[id]
	if !ok || c.ClinicID != clinicID {
		return nil, ErrNotFound
	}
	fn(c)
	c.UpdatedAt = time.Now().UTC()
	cp := *c
	return &cp, nil
}

func (r *MemoryRepository) IncrementFalseEmergency(_ context.Context, clinicID, id string) (*Client, error) {
	return r.update(clinicID, id, func(c *Client) { c.FalseEmergencyCount++ })
}

func (r *MemoryRepository) RecordFalseAlarm(_ context.Context, clinicID, id string, threshold int) (*Client, error) {
	return r.update(clinicID, id, func(c *Client) {
		c.FalseEmergencyCount++
		c.FalseAlarmCount++
		if threshold > 0 && c.FalseAlarmCount >= threshold {
			c.AccessRevoked = true
		}
	})
}

func (r *MemoryRepository) ClearAccess(_ context.Context, clinicID, id string) (*Client, error) {
	return r.update(clinicID, id, func(c *Client) {
		c.AccessRevoked = false
		c.FalseAlarmCount = 0
	})
}

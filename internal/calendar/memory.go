package calendar

import (
	"context"
	"sort"
	"sync"
	"time"
)

// MemoryRepository keeps appointments in process memory. It backs local
// development and tests.
type MemoryRepository struct {
	mu      sync.RWMutex
	appts   map[string]*Appointment
	locksMu sync.Mutex
	locks   map[string]*sync.Mutex
}

// NewMemoryRepository returns an empty repository.
func NewMemoryRepository() *MemoryRepository {
	return &MemoryRepository{
		appts: make(map[string]*Appointment),
		locks: make(map[string]*sync.Mutex),
	}
}

func (r *MemoryRepository) ListAppointments(_ context.Context, clinicID, staffID string, from, to time.Time) ([]Appointment, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	var out []Appointment
	for _, a := range r.appts {
		if a.ClinicID != clinicID || a.Status == StatusCancelled {
			continue
		}
		if staffID != "" && a.StaffID != staffID {
			continue
		}
		if a.StartsAt.Before(from) || !a.StartsAt.Before(to) {
			continue
		}
		out = append(out, *a)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].StartsAt.Before(out[j].StartsAt) })
	return out, nil
}

func (r *MemoryRepository) Insert(_ context.Context, appt *Appointment) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, a := range r.appts {
		if a.ClinicID == appt.ClinicID && a.StaffID == appt.StaffID && a.Status != StatusCancelled && a.Overlaps(appt.StartsAt, appt.EndsAt) {
			return ErrSlotTaken
		}
	}
	cp := *appt
	r.appts[appt.ID] = &cp
	return nil
}

func (r *MemoryRepository) Get(_ context.Context, clinicID, id string) (*Appointment, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	a, ok := r.appts[id]
	if !ok || a.ClinicID != clinicID {
		return nil, ErrNotFound
	}
	cp := *a
	return &cp, nil
}

func (r *MemoryRepository) UpdateStatus(_ context.Context, clinicID, id string, status Status, at time.Time) (*Appointment, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	a, ok := r.appts[id]
	if !ok || a.ClinicID != clinicID {
		return nil, ErrNotFound
	}
	a.Status = status
	if status == StatusCompleted {
		t := at
		a.CompletedAt = &t
	}
	cp := *a
	return &cp, nil
}

func (r *MemoryRepository) WithWindowLock(ctx context.Context, clinicID, staffID string, day time.Time, fn func(ctx context.Context) error) error {
	key := windowKey(clinicID, staffID, day)
	r.locksMu.Lock()
	l, ok := r.locks[key]
	if !ok {
		l = &sync.Mutex{}
		r.locks[key] = l
	}
	r.locksMu.Unlock()

	l.Lock()
	defer l.Unlock()
	return fn(ctx)
}

func windowKey(clinicID, staffID string, day time.Time) string {
	return clinicID + "|" + staffID + "|" + day.Format("2006-01-02")
}

package calendar

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"

	"github.com/wolfman30/vetclinic-ai-platform/internal/clinic"
	"github.com/wolfman30/vetclinic-ai-platform/pkg/logging"
)

var tracer = otel.Tracer("vetclinic.internal.calendar")

// DefaultHorizonDays bounds NextAvailable.
const DefaultHorizonDays = 14

// MaxAlternatives caps the alternatives returned with SLOT_TAKEN.
const MaxAlternatives = 3

// Repository persists appointments.
type Repository interface {
	// ListAppointments returns non-cancelled appointments starting in [from, to).
	// An empty staffID means the whole clinic.
	ListAppointments(ctx context.Context, clinicID, staffID string, from, to time.Time) ([]Appointment, error)
	Insert(ctx context.Context, appt *Appointment) error
	Get(ctx context.Context, clinicID, id string) (*Appointment, error)
	UpdateStatus(ctx context.Context, clinicID, id string, status Status, at time.Time) (*Appointment, error)
	// WithWindowLock runs fn while holding an exclusive lock on the
	// clinic/staff/day window.
	WithWindowLock(ctx context.Context, clinicID, staffID string, day time.Time, fn func(ctx context.Context) error) error
}

// ClinicDirectory supplies hours, timezone and duration overrides.
type ClinicDirectory interface {
	Get(ctx context.Context, clinicID string) (*clinic.Config, error)
}

// CompletionHook observes appointments moving to completed.
type CompletionHook interface {
	AppointmentCompleted(ctx context.Context, cfg *clinic.Config, appt Appointment) error
}

// Option configures a Service.
type Option func(*Service)

// WithClock overrides time.Now.
func WithClock(now func() time.Time) Option {
	return func(s *Service) { s.now = now }
}

// WithHorizonDays overrides the NextAvailable search horizon.
func WithHorizonDays(days int) Option {
	return func(s *Service) {
		if days > 0 {
			s.horizonDays = days
		}
	}
}

// WithCompletionHook registers a hook run when an appointment completes.
func WithCompletionHook(h CompletionHook) Option {
	return func(s *Service) { s.onComplete = h }
}

// Service is the slot-availability and booking engine.
type Service struct {
	repo        Repository
	clinics     ClinicDirectory
	logger      *logging.Logger
	now         func() time.Time
	horizonDays int
	onComplete  CompletionHook
}

// NewService wires a calendar service.
func NewService(repo Repository, clinics ClinicDirectory, logger *logging.Logger, opts ...Option) *Service {
	if repo == nil {
		panic("calendar: repository cannot be nil")
	}
	if clinics == nil {
		panic("calendar: clinic directory cannot be nil")
	}
	if logger == nil {
		logger = logging.Default()
	}
	s := &Service{
		repo:        repo,
		clinics:     clinics,
		logger:      logger,
		now:         time.Now,
		horizonDays: DefaultHorizonDays,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// FindAvailableSlots lists free windows of durationMinutes on date.
func (s *Service) FindAvailableSlots(ctx context.Context, clinicID string, date time.Time, durationMinutes int) ([]TimeSlot, error) {
	cfg, err := s.clinics.Get(ctx, clinicID)
	if err != nil {
		return nil, fmt.Errorf("calendar: load clinic: %w", err)
	}
	return s.slotsForDay(ctx, cfg, "", localDay(date, cfg.Location()), durationMinutes)
}

func (s *Service) slotsForDay(ctx context.Context, cfg *clinic.Config, staffID string, day time.Time, durationMinutes int) ([]TimeSlot, error) {
	if durationMinutes <= 0 {
		durationMinutes = DefaultDurationMinutes
	}
	hours := cfg.HoursOn(day)
	if hours == nil {
		return nil, nil
	}
	from, to := dayBounds(day)
	booked, err := s.repo.ListAppointments(ctx, cfg.ID, staffID, from, to)
	if err != nil {
		return nil, fmt.Errorf("calendar: list appointments: %w", err)
	}
	return generateSlots(hours, day, time.Duration(durationMinutes)*time.Minute, booked, s.now().In(cfg.Location())), nil
}

// NextAvailable finds the earliest free window within the search horizon,
// starting today. It returns nil when nothing is free.
func (s *Service) NextAvailable(ctx context.Context, clinicID string, durationMinutes int) (*NextSlot, error) {
	cfg, err := s.clinics.Get(ctx, clinicID)
	if err != nil {
		return nil, fmt.Errorf("calendar: load clinic: %w", err)
	}
	return s.nextAvailable(ctx, cfg, "", localDay(s.now().In(cfg.Location()), cfg.Location()), durationMinutes)
}

func (s *Service) nextAvailable(ctx context.Context, cfg *clinic.Config, staffID string, from time.Time, durationMinutes int) (*NextSlot, error) {
	for i := 0; i < s.horizonDays; i++ {
		day := from.AddDate(0, 0, i)
		slots, err := s.slotsForDay(ctx, cfg, staffID, day, durationMinutes)
		if err != nil {
			return nil, err
		}
		if len(slots) > 0 {
			return &NextSlot{Date: day, Slot: slots[0]}, nil
		}
	}
	return nil, nil
}

// Book places an appointment. Conflicts are reported in the result, not as an
// error; the returned error is reserved for infrastructure failures.
func (s *Service) Book(ctx context.Context, clinicID string, req BookingRequest) (BookingResult, error) {
	ctx, span := tracer.Start(ctx, "calendar.book")
	defer span.End()
	span.SetAttributes(attribute.String("clinic_id", clinicID))

	if missing := req.Missing(); len(missing) > 0 {
		return BookingResult{
			ErrorCode: CodeIncompleteInfo,
			Message:   "missing " + strings.Join(missing, ", "),
		}, nil
	}

	cfg, err := s.clinics.Get(ctx, clinicID)
	if err != nil {
		return BookingResult{}, fmt.Errorf("calendar: load clinic: %w", err)
	}
	loc := cfg.Location()

	kind := req.Type
	if kind == "" {
		kind = InferType(req.Reason)
	}
	duration := DurationFor(cfg, kind)
	day := localDay(req.Date, loc)
	sh, sm, err := req.Slot.StartClock()
	if err != nil {
		return BookingResult{ErrorCode: CodeIncompleteInfo, Message: err.Error()}, nil
	}
	start := time.Date(day.Year(), day.Month(), day.Day(), sh, sm, 0, 0, loc)
	end := start.Add(time.Duration(duration) * time.Minute)

	if !withinHours(cfg.HoursOn(day), start, end) {
		return BookingResult{ErrorCode: CodeOutsideHours, Message: "outside working hours"}, nil
	}

	var result BookingResult
	err = s.repo.WithWindowLock(ctx, clinicID, req.StaffID, day, func(ctx context.Context) error {
		from, to := dayBounds(day)
		booked, err := s.repo.ListAppointments(ctx, clinicID, req.StaffID, from, to)
		if err != nil {
			return fmt.Errorf("calendar: list appointments: %w", err)
		}
		if !start.After(s.now()) || overlapsAny(booked, start, end) {
			alts, altDay, err := s.alternatives(ctx, cfg, req.StaffID, day, duration, booked)
			if err != nil {
				return err
			}
			result = BookingResult{ErrorCode: CodeSlotTaken, Message: "slot no longer available", Alternatives: alts, AlternativesDate: altDay}
			return nil
		}

		appt := &Appointment{
			ID:              uuid.NewString(),
			ClinicID:        clinicID,
			StaffID:         req.StaffID,
			ClientID:        req.ClientID,
			ClientPhone:     req.ClientPhone,
			ClientName:      req.ClientName,
			PetName:         req.PetName,
			PetSpecies:      req.PetSpecies,
			Type:            kind,
			Reason:          req.Reason,
			StartsAt:        start,
			EndsAt:          end,
			DurationMinutes: duration,
			Status:          StatusScheduled,
			Source:          req.Source,
			Priority:        "normal",
			ConversationID:  req.ConversationID,
			CreatedAt:       s.now().UTC(),
		}
		if err := s.repo.Insert(ctx, appt); err != nil {
			return err
		}
		result = BookingResult{Success: true, Appointment: appt}
		return nil
	})
	if err != nil {
		if errors.Is(err, ErrSlotTaken) {
			// storage-level exclusion constraint caught a race the lock missed
			alts, altErr := s.slotsForDay(ctx, cfg, req.StaffID, day, duration)
			if altErr != nil {
				return BookingResult{}, altErr
			}
			return BookingResult{ErrorCode: CodeSlotTaken, Message: "slot no longer available", Alternatives: capSlots(alts, MaxAlternatives), AlternativesDate: day}, nil
		}
		span.RecordError(err)
		span.SetStatus(codes.Error, "booking failed")
		return BookingResult{}, err
	}

	if result.Success {
		s.logger.Info("appointment booked",
			"clinic_id", clinicID,
			"appointment_id", result.Appointment.ID,
			"starts_at", result.Appointment.StartsAt.Format(time.RFC3339),
			"type", string(kind),
		)
	} else {
		s.logger.Warn("appointment slot taken",
			"clinic_id", clinicID,
			"slot", req.Slot.String(),
			"alternatives", len(result.Alternatives),
		)
	}
	span.SetAttributes(attribute.Bool("booked", result.Success))
	return result, nil
}

// alternatives proposes up to MaxAlternatives windows: the same day first,
// then the next open day within the horizon. The returned day is the one the
// windows belong to.
func (s *Service) alternatives(ctx context.Context, cfg *clinic.Config, staffID string, day time.Time, duration int, booked []Appointment) ([]TimeSlot, time.Time, error) {
	hours := cfg.HoursOn(day)
	now := s.now().In(cfg.Location())
	alts := generateSlots(hours, day, time.Duration(duration)*time.Minute, booked, now)
	if len(alts) > 0 {
		return capSlots(alts, MaxAlternatives), day, nil
	}
	next, err := s.nextAvailable(ctx, cfg, staffID, day.AddDate(0, 0, 1), duration)
	if err != nil || next == nil {
		return nil, time.Time{}, err
	}
	slots, err := s.slotsForDay(ctx, cfg, staffID, next.Date, duration)
	if err != nil {
		return nil, time.Time{}, err
	}
	return capSlots(slots, MaxAlternatives), next.Date, nil
}

// Complete marks an appointment completed and runs the completion hook.
func (s *Service) Complete(ctx context.Context, clinicID, appointmentID string) (*Appointment, error) {
	appt, err := s.repo.UpdateStatus(ctx, clinicID, appointmentID, StatusCompleted, s.now().UTC())
	if err != nil {
		return nil, err
	}
	if s.onComplete != nil {
		cfg, err := s.clinics.Get(ctx, clinicID)
		if err != nil {
			return nil, fmt.Errorf("calendar: load clinic: %w", err)
		}
		if err := s.onComplete.AppointmentCompleted(ctx, cfg, *appt); err != nil {
			return nil, err
		}
	}
	return appt, nil
}

// Cancel frees the appointment's window.
func (s *Service) Cancel(ctx context.Context, clinicID, appointmentID string) (*Appointment, error) {
	return s.repo.UpdateStatus(ctx, clinicID, appointmentID, StatusCancelled, s.now().UTC())
}

// List returns the clinic's non-cancelled appointments starting in [from, to).
func (s *Service) List(ctx context.Context, clinicID string, from, to time.Time) ([]Appointment, error) {
	return s.repo.ListAppointments(ctx, clinicID, "", from, to)
}

// Get returns a single appointment.
func (s *Service) Get(ctx context.Context, clinicID, appointmentID string) (*Appointment, error) {
	return s.repo.Get(ctx, clinicID, appointmentID)
}

func capSlots(slots []TimeSlot, n int) []TimeSlot {
	if len(slots) > n {
		return slots[:n]
	}
	return slots
}

// localDay anchors the calendar day of t (read in t's own location) to loc.
func localDay(t time.Time, loc *time.Location) time.Time {
	y, m, d := t.Date()
	return time.Date(y, m, d, 0, 0, 0, 0, loc)
}

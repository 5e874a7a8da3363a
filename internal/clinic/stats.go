package clinic

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/jackc/pgx/v5"

	"github.com/wolfman30/vetclinic-ai-platform/pkg/logging"
)

// Stats are per-clinic activity counters for the admin dashboard.
type Stats struct {
	ClinicID             string `json:"clinic_id"`
	ConversationsStarted int64  `json:"conversations_started"`
	AppointmentsBooked   int64  `json:"appointments_booked"`
	AppointmentsDone     int64  `json:"appointments_completed"`
	Emergencies          int64  `json:"emergencies"`
	FalseAlarms          int64  `json:"false_alarms"`
	FollowUpsSent        int64  `json:"follow_ups_sent"`
	FollowUpsEscalated   int64  `json:"follow_ups_escalated"`
	PeriodStart          string `json:"period_start"`
	PeriodEnd            string `json:"period_end"`
}

type statsDB interface {
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

// StatsRepository queries clinic activity from Postgres.
type StatsRepository struct {
	db statsDB
}

func NewStatsRepository(db statsDB) *StatsRepository {
	if db == nil {
		panic("clinic: database required for stats")
	}
	return &StatsRepository{db: db}
}

type statCounter struct {
	name   string
	query  string
	column string
	dest   func(*Stats) *int64
}

var statCounters = []statCounter{
	{"conversations", `SELECT COUNT(*) FROM conversations WHERE clinic_id = $1`, "started_at", func(s *Stats) *int64 { return &s.ConversationsStarted }},
	{"appointments", `SELECT COUNT(*) FROM appointments WHERE clinic_id = $1 AND status <> 'cancelled'`, "created_at", func(s *Stats) *int64 { return &s.AppointmentsBooked }},
	{"completed appointments", `SELECT COUNT(*) FROM appointments WHERE clinic_id = $1 AND status = 'completed'`, "created_at", func(s *Stats) *int64 { return &s.AppointmentsDone }},
	{"emergencies", `SELECT COUNT(*) FROM emergency_events WHERE clinic_id = $1`, "created_at", func(s *Stats) *int64 { return &s.Emergencies }},
	{"false alarms", `SELECT COUNT(*) FROM emergency_events WHERE clinic_id = $1 AND status = 'false_alarm'`, "created_at", func(s *Stats) *int64 { return &s.FalseAlarms }},
	{"follow-ups sent", `SELECT COUNT(*) FROM follow_ups WHERE clinic_id = $1 AND status IN ('sent', 'responded', 'escalated')`, "due_at", func(s *Stats) *int64 { return &s.FollowUpsSent }},
	{"escalated follow-ups", `SELECT COUNT(*) FROM follow_ups WHERE clinic_id = $1 AND status = 'escalated'`, "due_at", func(s *Stats) *int64 { return &s.FollowUpsEscalated }},
}

// GetStats aggregates counters for a clinic. Nil bounds mean all time.
func (r *StatsRepository) GetStats(ctx context.Context, clinicID string, start, end *time.Time) (*Stats, error) {
	stats := &Stats{ClinicID: clinicID, PeriodStart: "all-time", PeriodEnd: "now"}
	args := []any{clinicID}
	if start != nil && end != nil {
		args = append(args, *start, *end)
		stats.PeriodStart = start.Format(time.RFC3339)
		stats.PeriodEnd = end.Format(time.RFC3339)
	}
	for _, c := range statCounters {
		query := c.query
		if len(args) == 3 {
			query += fmt.Sprintf(" AND %s >= $2 AND %s < $3", c.column, c.column)
		}
		if err := r.db.QueryRow(ctx, query, args...).Scan(c.dest(stats)); err != nil {
			return nil, fmt.Errorf("clinic stats: count %s: %w", c.name, err)
		}
	}
	return stats, nil
}

// StatsHandler serves GET /admin/clinics/{clinicID}/stats.
type StatsHandler struct {
	repo   *StatsRepository
	logger *logging.Logger
}

func NewStatsHandler(repo *StatsRepository, logger *logging.Logger) *StatsHandler {
	if logger == nil {
		logger = logging.Default()
	}
	return &StatsHandler{repo: repo, logger: logger}
}

// GetStats accepts optional start and end RFC3339 query params; both or neither.
func (h *StatsHandler) GetStats(w http.ResponseWriter, r *http.Request) {
	clinicID := chi.URLParam(r, "clinicID")
	if clinicID == "" {
		http.Error(w, `{"error": "clinic_id required"}`, http.StatusBadRequest)
		return
	}

	var start, end *time.Time
	for _, p := range []struct {
		name string
		dst  **time.Time
	}{{"start", &start}, {"end", &end}} {
		raw := r.URL.Query().Get(p.name)
		if raw == "" {
			continue
		}
		t, err := time.Parse(time.RFC3339, raw)
		if err != nil {
			writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid " + p.name + " time, use RFC3339 format"})
			return
		}
		*p.dst = &t
	}
	if (start == nil) != (end == nil) {
		http.Error(w, `{"error": "both start and end must be provided, or neither"}`, http.StatusBadRequest)
		return
	}

	stats, err := h.repo.GetStats(r.Context(), clinicID, start, end)
	if err != nil {
		h.logger.Error("failed to get clinic stats", "clinic_id", clinicID, "error", err)
		http.Error(w, `{"error": "internal server error"}`, http.StatusInternalServerError)
		return
	}
	writeJSON(w, http.StatusOK, stats)
}

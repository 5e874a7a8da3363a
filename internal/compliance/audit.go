// Package compliance keeps an append-only audit trail of staff and system
// actions on emergencies and client access.
package compliance

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
)

// AuditEventType represents the type of audited action.
type AuditEventType string

const (
	// EventEmergencyRaised is logged when a confirmed emergency is escalated.
	EventEmergencyRaised AuditEventType = "emergency.raised"
	// EventEmergencyAcknowledged is logged when staff take ownership.
	EventEmergencyAcknowledged AuditEventType = "emergency.acknowledged"
	// EventEmergencyResolved is logged when staff close an emergency.
	EventEmergencyResolved AuditEventType = "emergency.resolved"
	// EventEmergencyFalseAlarm is logged when staff mark an emergency as a false alarm.
	EventEmergencyFalseAlarm AuditEventType = "emergency.false_alarm"
	// EventEmergencyDenied is logged when a revoked client confirms an emergency.
	EventEmergencyDenied AuditEventType = "emergency.access_denied"
	// EventAccessRevoked is logged when a client loses emergency access.
	EventAccessRevoked AuditEventType = "client.access_revoked"
	// EventAccessCleared is logged when staff restore emergency access.
	EventAccessCleared AuditEventType = "client.access_cleared"
)

// AuditEvent is an immutable audit record.
type AuditEvent struct {
	ID             string          `json:"id"`
	EventType      AuditEventType  `json:"event_type"`
	ClinicID       string          `json:"clinic_id"`
	ConversationID string          `json:"conversation_id,omitempty"`
	SubjectID      string          `json:"subject_id,omitempty"`
	Actor          string          `json:"actor,omitempty"`
	Details        json.RawMessage `json:"details,omitempty"`
	CreatedAt      time.Time       `json:"created_at"`
}

// AuditDetails contains event-specific details.
type AuditDetails struct {
	Keywords   []string `json:"keywords,omitempty"`
	Priority   string   `json:"priority,omitempty"`
	Notes      string   `json:"notes,omitempty"`
	AlertCount int      `json:"alert_count,omitempty"`
	Reached    bool     `json:"reached,omitempty"`
	Threshold  int      `json:"threshold,omitempty"`
}

// Auditor records audit events.
type Auditor interface {
	LogEvent(ctx context.Context, event AuditEvent) error
}

// NewEvent builds an event with marshalled details.
func NewEvent(kind AuditEventType, clinicID, subjectID, actor string, details AuditDetails) AuditEvent {
	raw, _ := json.Marshal(details)
	return AuditEvent{EventType: kind, ClinicID: clinicID, SubjectID: subjectID, Actor: actor, Details: raw}
}

// AuditService writes audit events through database/sql.
type AuditService struct {
	db *sql.DB
}

// NewAuditService creates a new audit service.
func NewAuditService(db *sql.DB) *AuditService {
	return &AuditService{db: db}
}

// LogEvent records an audit event.
func (s *AuditService) LogEvent(ctx context.Context, event AuditEvent) error {
	if event.ID == "" {
		event.ID = uuid.NewString()
	}
	if event.CreatedAt.IsZero() {
		event.CreatedAt = time.Now().UTC()
	}
	if len(event.Details) == 0 {
		event.Details = json.RawMessage(`{}`)
	}

	query := `
		INSERT INTO compliance_audit_events (
			id, event_type, clinic_id, conversation_id, subject_id, actor, details, created_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
	`
	_, err := s.db.ExecContext(ctx, query,
		event.ID,
		event.EventType,
		event.ClinicID,
		nullString(event.ConversationID),
		nullString(event.SubjectID),
		nullString(event.Actor),
		[]byte(event.Details),
		event.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("compliance: failed to log audit event: %w", err)
	}
	return nil
}

// AuditFilter specifies criteria for querying audit events.
type AuditFilter struct {
	ClinicID  string
	SubjectID string
	EventType AuditEventType
	StartTime time.Time
	EndTime   time.Time
	Limit     int
}

// QueryEvents retrieves audit events, newest first.
func (s *AuditService) QueryEvents(ctx context.Context, filter AuditFilter) ([]AuditEvent, error) {
	query := `
		SELECT id, event_type, clinic_id, conversation_id, subject_id, actor, details, created_at
		FROM compliance_audit_events
		WHERE clinic_id = $1
	`
	args := []any{filter.ClinicID}
	argIdx := 2

	if filter.SubjectID != "" {
		query += fmt.Sprintf(" AND subject_id = $%d", argIdx)
		args = append(args, filter.SubjectID)
		argIdx++
	}
	if filter.EventType != "" {
		query += fmt.Sprintf(" AND event_type = $%d", argIdx)
		args = append(args, filter.EventType)
		argIdx++
	}
	if !filter.StartTime.IsZero() {
		query += fmt.Sprintf(" AND created_at >= $%d", argIdx)
		args = append(args, filter.StartTime)
		argIdx++
	}
	if !filter.EndTime.IsZero() {
		query += fmt.Sprintf(" AND created_at <= $%d", argIdx)
		args = append(args, filter.EndTime)
	}
	query += " ORDER BY created_at DESC"
	if filter.Limit > 0 {
		query += fmt.Sprintf(" LIMIT %d", filter.Limit)
	}

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("compliance: failed to query audit events: %w", err)
	}
	defer rows.Close()

	var events []AuditEvent
	for rows.Next() {
		var e AuditEvent
		var convID, subjectID, actor sql.NullString
		var details []byte
		if err := rows.Scan(&e.ID, &e.EventType, &e.ClinicID, &convID, &subjectID, &actor, &details, &e.CreatedAt); err != nil {
			return nil, fmt.Errorf("compliance: failed to scan audit event: %w", err)
		}
		e.ConversationID = convID.String
		e.SubjectID = subjectID.String
		e.Actor = actor.String
		e.Details = details
		events = append(events, e)
	}
	return events, rows.Err()
}

func nullString(s string) sql.NullString {
	if s == "" {
		return sql.NullString{}
	}
	return sql.NullString{String: s, Valid: true}
}

// NopAuditor drops events. Used when no audit database is configured.
type NopAuditor struct{}

func (NopAuditor) LogEvent(context.Context, AuditEvent) error { return nil }

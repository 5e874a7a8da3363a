package followup

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"github.com/wolfman30/vetclinic-ai-platform/internal/store/pgtx"
)

// PostgresStore persists follow-ups in the follow_ups table.
type PostgresStore struct {
	db pgtx.DB
}

func NewPostgresStore(db pgtx.DB) *PostgresStore {
	if db == nil {
		panic("followup: db cannot be nil")
	}
	return &PostgresStore{db: db}
}

var _ Store = (*PostgresStore)(nil)

const columns = `id::text, clinic_id, appointment_id::text, client_phone, COALESCE(pet_name, ''), protocol, step,
	template, escalation_keywords, due_at, status, attempts, COALESCE(conversation_id::text, ''),
	COALESCE(response, ''), COALESCE(last_error, ''), sent_at, responded_at, created_at`

func (s *PostgresStore) Create(ctx context.Context, items []FollowUp) error {
	conn := pgtx.Conn(ctx, s.db)
	for i := range items {
		f := &items[i]
		if f.ID == "" {
			f.ID = uuid.NewString()
		}
		if f.CreatedAt.IsZero() {
			f.CreatedAt = time.Now().UTC()
		}
		_, err := conn.Exec(ctx, `
			INSERT INTO follow_ups (id, clinic_id, appointment_id, client_phone, pet_name, protocol, step, template,
				escalation_keywords, due_at, status, attempts, created_at)
			VALUES ($1, $2, $3::uuid, $4, NULLIF($5, ''), $6, $7, $8, $9, $10, $11, 0, $12)
			ON CONFLICT (appointment_id, step) DO NOTHING
		`, f.ID, f.ClinicID, f.AppointmentID, f.ClientPhone, f.PetName, f.Protocol, f.Step, f.Template,
			f.EscalationKeywords, f.DueAt, string(f.Status), f.CreatedAt)
		if err != nil {
			return fmt.Errorf("followup: insert: %w", err)
		}
	}
	return nil
}

func (s *PostgresStore) Get(ctx context.Context, id string) (*FollowUp, error) {
	if _, err := uuid.Parse(id); err != nil {
		return nil, ErrNotFound
	}
	row := pgtx.Conn(ctx, s.db).QueryRow(ctx, `SELECT `+columns+` FROM follow_ups WHERE id = $1::uuid`, id)
	return scan(row)
}

func (s *PostgresStore) Due(ctx context.Context, now time.Time, limit int) ([]FollowUp, error) {
	if limit <= 0 {
		limit = DefaultBatchSize
	}
	rows, err := pgtx.Conn(ctx, s.db).Query(ctx, `
		SELECT `+columns+` FROM follow_ups
		WHERE status = 'pending' AND due_at <= $1
		ORDER BY due_at
		LIMIT $2
	`, now, limit)
	if err != nil {
		return nil, fmt.Errorf("followup: list due: %w", err)
	}
	return collect(rows)
}

func (s *PostgresStore) exec(ctx context.Context, op, sql string, args ...any) error {
	tag, err := pgtx.Conn(ctx, s.db).Exec(ctx, sql, args...)
	if err != nil {
		return fmt.Errorf("followup: %s: %w", op, err)
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

func (s *PostgresStore) MarkSent(ctx context.Context, id, conversationID string, at time.Time) error {
	return s.exec(ctx, "mark sent", `
		UPDATE follow_ups SET status = 'sent', conversation_id = NULLIF($2, '')::uuid, sent_at = $3, attempts = attempts + 1
		WHERE id = $1::uuid
	`, id, conversationID, at)
}

func (s *PostgresStore) MarkFailed(ctx context.Context, id, reason string) error {
	return s.exec(ctx, "mark failed", `
		UPDATE follow_ups SET status = 'failed', last_error = $2, attempts = attempts + 1 WHERE id = $1::uuid
	`, id, reason)
}

func (s *PostgresStore) Defer(ctx context.Context, id string, until time.Time) error {
	return s.exec(ctx, "defer", `
		UPDATE follow_ups SET due_at = $2, attempts = attempts + 1 WHERE id = $1::uuid AND status = 'pending'
	`, id, until)
}

func (s *PostgresStore) RecordResponse(ctx context.Context, id string, status Status, response string, at time.Time) error {
	return s.exec(ctx, "record response", `
		UPDATE follow_ups SET status = $2, response = $3, responded_at = $4 WHERE id = $1::uuid
	`, id, string(status), response, at)
}

func (s *PostgresStore) ListByAppointment(ctx context.Context, clinicID, appointmentID string) ([]FollowUp, error) {
	if _, err := uuid.Parse(appointmentID); err != nil {
		return nil, nil
	}
	rows, err := pgtx.Conn(ctx, s.db).Query(ctx, `
		SELECT `+columns+` FROM follow_ups WHERE clinic_id = $1 AND appointment_id = $2::uuid ORDER BY step
	`, clinicID, appointmentID)
	if err != nil {
		return nil, fmt.Errorf("followup: list by appointment: %w", err)
	}
	return collect(rows)
}

func collect(rows pgx.Rows) ([]FollowUp, error) {
	defer rows.Close()
	var out []FollowUp
	for rows.Next() {
		f, err := scan(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, *f)
	}
	return out, rows.Err()
}

func scan(row pgx.Row) (*FollowUp, error) {
	var (
		f      FollowUp
		status string
	)
	err := row.Scan(&f.ID, &f.ClinicID, &f.AppointmentID, &f.ClientPhone, &f.PetName, &f.Protocol, &f.Step,
		&f.Template, &f.EscalationKeywords, &f.DueAt, &status, &f.Attempts, &f.ConversationID, &f.Response,
		&f.LastError, &f.SentAt, &f.RespondedAt, &f.CreatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("followup: scan: %w", err)
	}
	f.Status = Status(status)
	return &f, nil
}

package emergency

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"

	"github.com/wolfman30/vetclinic-ai-platform/internal/clinic"
	"github.com/wolfman30/vetclinic-ai-platform/internal/store/pgtx"
)

// PostgresStore persists events in emergency_events and emergency_alerts.
type PostgresStore struct {
	db pgtx.DB
}

func NewPostgresStore(db pgtx.DB) *PostgresStore {
	if db == nil {
		panic("emergency: db cannot be nil")
	}
	return &PostgresStore{db: db}
}

const eventColumns = `id::text, clinic_id, COALESCE(conversation_id::text, ''), COALESCE(client_id::text, ''),
	client_phone, COALESCE(pet_name, ''), COALESCE(pet_species, ''), COALESCE(description, ''), keywords_detected,
	status, priority, COALESCE(acknowledged_by, ''), acknowledged_at, COALESCE(resolved_by, ''), resolved_at,
	COALESCE(resolution_notes, ''), created_at`

func (s *PostgresStore) CreateEvent(ctx context.Context, ev *Event) error {
	_, err := pgtx.Conn(ctx, s.db).Exec(ctx, `
		INSERT INTO emergency_events (id, clinic_id, conversation_id, client_id, client_phone, pet_name, pet_species,
			description, keywords_detected, status, priority, created_at)
		VALUES ($1, $2, NULLIF($3, '')::uuid, NULLIF($4, '')::uuid, $5, NULLIF($6, ''), NULLIF($7, ''), $8, $9, $10, $11, $12)
	`, ev.ID, ev.ClinicID, ev.ConversationID, ev.ClientID, ev.Phone, ev.PetName, ev.PetSpecies,
		ev.Description, ev.Keywords, string(ev.Status), string(ev.Priority), ev.CreatedAt)
	if err != nil {
		return fmt.Errorf("emergency: insert event: %w", err)
	}
	return nil
}

func (s *PostgresStore) GetEvent(ctx context.Context, clinicID, id string) (*Event, error) {
	row := pgtx.Conn(ctx, s.db).QueryRow(ctx,
		`SELECT `+eventColumns+` FROM emergency_events WHERE clinic_id = $1 AND id = $2::uuid`, clinicID, id)
	ev, err := scanEvent(row)
	if err != nil {
		return nil, err
	}
	return ev, nil
}

func (s *PostgresStore) UpdateEvent(ctx context.Context, ev *Event, from Status) error {
	conn := pgtx.Conn(ctx, s.db)
	tag, err := conn.Exec(ctx, `
		UPDATE emergency_events
		SET status = $3, acknowledged_by = NULLIF($4, ''), acknowledged_at = $5,
			resolved_by = NULLIF($6, ''), resolved_at = $7, resolution_notes = NULLIF($8, '')
		WHERE clinic_id = $1 AND id = $2::uuid AND status = $9
	`, ev.ClinicID, ev.ID, string(ev.Status), ev.AcknowledgedBy, ev.AcknowledgedAt, ev.ResolvedBy, ev.ResolvedAt, ev.Notes, string(from))
	if err != nil {
		return fmt.Errorf("emergency: update event: %w", err)
	}
	if tag.RowsAffected() > 0 {
		return nil
	}
	var current string
	err = conn.QueryRow(ctx, `SELECT status FROM emergency_events WHERE clinic_id = $1 AND id = $2::uuid`, ev.ClinicID, ev.ID).Scan(&current)
	switch {
	case errors.Is(err, pgx.ErrNoRows):
		return ErrNotFound
	case err != nil:
		return fmt.Errorf("emergency: check event status: %w", err)
	}
	return ErrStatusChanged
}

func (s *PostgresStore) ListEvents(ctx context.Context, clinicID string, status Status, limit int) ([]Event, error) {
	if limit <= 0 {
		limit = 50
	}
	rows, err := pgtx.Conn(ctx, s.db).Query(ctx, `
		SELECT `+eventColumns+` FROM emergency_events
		WHERE clinic_id = $1 AND ($2 = '' OR status = $2)
		ORDER BY created_at DESC
		LIMIT $3
	`, clinicID, string(status), limit)
	if err != nil {
		return nil, fmt.Errorf("emergency: list events: %w", err)
	}
	defer rows.Close()

	var out []Event
	for rows.Next() {
		ev, err := scanEvent(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, *ev)
	}
	return out, rows.Err()
}

func (s *PostgresStore) SaveAlerts(ctx context.Context, alerts []Alert) error {
	conn := pgtx.Conn(ctx, s.db)
	for _, a := range alerts {
		_, err := conn.Exec(ctx, `
			INSERT INTO emergency_alerts (id, event_id, contact_name, contact_phone, contact_role, contact_priority,
				channel, message_content, status, error_message, sent_at, created_at)
			VALUES ($1, $2::uuid, $3, $4, NULLIF($5, ''), $6, $7, $8, $9, NULLIF($10, ''), $11, $12)
		`, a.ID, a.EventID, a.Contact.Name, a.Contact.Phone, a.Contact.Role, a.Contact.EffectivePriority(),
			string(a.Channel), a.Message, string(a.Status), a.Error, a.SentAt, a.CreatedAt)
		if err != nil {
			return fmt.Errorf("emergency: insert alert: %w", err)
		}
	}
	return nil
}

func (s *PostgresStore) ListAlerts(ctx context.Context, eventID string) ([]Alert, error) {
	rows, err := pgtx.Conn(ctx, s.db).Query(ctx, `
		SELECT id::text, event_id::text, contact_name, contact_phone, COALESCE(contact_role, ''), contact_priority,
			channel, message_content, status, COALESCE(error_message, ''), sent_at, delivered_at, created_at
		FROM emergency_alerts WHERE event_id = $1::uuid ORDER BY created_at, contact_priority
	`, eventID)
	if err != nil {
		return nil, fmt.Errorf("emergency: list alerts: %w", err)
	}
	defer rows.Close()

	var out []Alert
	for rows.Next() {
		var a Alert
		var priority int
		var channel, status string
		if err := rows.Scan(&a.ID, &a.EventID, &a.Contact.Name, &a.Contact.Phone, &a.Contact.Role, &priority,
			&channel, &a.Message, &status, &a.Error, &a.SentAt, &a.DeliveredAt, &a.CreatedAt); err != nil {
			return nil, fmt.Errorf("emergency: scan alert: %w", err)
		}
		if priority != clinic.DefaultContactPriority {
			p := priority
			a.Contact.Priority = &p
		}
		a.Channel = Channel(channel)
		a.Status = AlertStatus(status)
		out = append(out, a)
	}
	return out, rows.Err()
}

func (s *PostgresStore) MarkAlertDelivered(ctx context.Context, alertID string, at time.Time) error {
	tag, err := pgtx.Conn(ctx, s.db).Exec(ctx, `
		UPDATE emergency_alerts SET status = 'delivered', delivered_at = $2
		WHERE id = $1::uuid AND status IN ('sent', 'delivered')
	`, alertID, at)
	if err != nil {
		return fmt.Errorf("emergency: mark delivered: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

func scanEvent(row pgx.Row) (*Event, error) {
	var ev Event
	var status, priority string
	err := row.Scan(&ev.ID, &ev.ClinicID, &ev.ConversationID, &ev.ClientID, &ev.Phone, &ev.PetName, &ev.PetSpecies,
		&ev.Description, &ev.Keywords, &status, &priority, &ev.AcknowledgedBy, &ev.AcknowledgedAt,
		&ev.ResolvedBy, &ev.ResolvedAt, &ev.Notes, &ev.CreatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("emergency: scan event: %w", err)
	}
	ev.Status = Status(status)
	ev.Priority = Priority(priority)
	return &ev, nil
}

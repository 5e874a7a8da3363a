package clients

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/jackc/pgx/v5"

	"github.com/wolfman30/vetclinic-ai-platform/internal/store/pgtx"
)

const clientColumns = `id::text, clinic_id, phone, COALESCE(name, ''), false_emergency_count,
	false_alarm_count, emergency_access_revoked, created_at, updated_at`

// PostgresRepository stores clients in Postgres. Calls join the ambient
// turn transaction when one is on the context.
type PostgresRepository struct {
	db pgtx.DB
}

func NewPostgresRepository(db pgtx.DB) *PostgresRepository {
	if db == nil {
		panic("clients: pgx pool required")
	}
	return &PostgresRepository{db: db}
}

func (r *PostgresRepository) GetOrCreate(ctx context.Context, clinicID, phone, name string) (*Client, error) {
	query := `
		INSERT INTO clients (clinic_id, phone, name)
		VALUES ($1, $2, NULLIF($3, ''))
		ON CONFLICT (clinic_id, phone)
		DO UPDATE SET name = COALESCE(clients.name, EXCLUDED.name),
			updated_at = CASE WHEN clients.name IS NULL AND EXCLUDED.name IS NOT NULL THEN now() ELSE clients.updated_at END
		RETURNING ` + clientColumns
	c, err := scanClient(pgtx.Conn(ctx, r.db).QueryRow(ctx, query, clinicID, strings.TrimSpace(phone), strings.TrimSpace(name)))
	if err != nil {
		return nil, fmt.Errorf("clients: upsert: %w", err)
	}
	return c, nil
}

func (r *PostgresRepository) Get(ctx context.Context, clinicID, id string) (*Client, error) {
	query := `SELECT ` + clientColumns + ` FROM clients WHERE clinic_id = $1 AND id = $2`
	return r.one(ctx, "get", query, clinicID, id)
}

func (r *PostgresRepository) FindByPhone(ctx context.Context, clinicID, phone string) (*Client, error) {
	query := `SELECT ` + clientColumns + ` FROM clients WHERE clinic_id = $1 AND phone = $2`
	return r.one(ctx, "find by phone", query, clinicID, strings.TrimSpace(phone))
}

func (r *PostgresRepository) IncrementFalseEmergency(ctx context.Context, clinicID, id string) (*Client, error) {
	query := `
		UPDATE clients SET false_emergency_count = false_emergency_count + 1, updated_at = now()
		WHERE clinic_id = $1 AND id = $2
		RETURNING ` + clientColumns
	return r.one(ctx, "increment false emergency", query, clinicID, id)
}

func (r *PostgresRepository) RecordFalseAlarm(ctx context.Context, clinicID, id string, threshold int) (*Client, error) {
	query := `
		UPDATE clients SET
			false_emergency_count = false_emergency_count + 1,
			false_alarm_count = false_alarm_count + 1,
			emergency_access_revoked = emergency_access_revoked OR ($3 > 0 AND false_alarm_count + 1 >= $3),
			updated_at = now()
		WHERE clinic_id = $1 AND id = $2
		RETURNING ` + clientColumns
	return r.one(ctx, "record false alarm", query, clinicID, id, threshold)
}

func (r *PostgresRepository) ClearAccess(ctx context.Context, clinicID, id string) (*Client, error) {
	query := `
		UPDATE clients SET emergency_access_revoked = false, false_alarm_count = 0, updated_at = now()
		WHERE clinic_id = $1 AND id = $2
		RETURNING ` + clientColumns
	return r.one(ctx, "clear access", query, clinicID, id)
}

func (r *PostgresRepository) one(ctx context.Context, op, query string, args ...any) (*Client, error) {
	c, err := scanClient(pgtx.Conn(ctx, r.db).QueryRow(ctx, query, args...))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("clients: %s: %w", op, err)
	}
	return c, nil
}

func scanClient(row pgx.Row) (*Client, error) {
	var c Client
	if err := row.Scan(
		&c.ID,
		&c.ClinicID,
		&c.Phone,
		&c.Name,
		&c.FalseEmergencyCount,
		&c.FalseAlarmCount,
		&c.AccessRevoked,
		&c.CreatedAt,
		&c.UpdatedAt,
	); err != nil {
		return nil, err
	}
	return &c, nil
}

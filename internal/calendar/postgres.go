package calendar

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"

	"github.com/wolfman30/vetclinic-ai-platform/internal/store/pgtx"
)

// exclusion_violation, raised by the appointments_no_overlap constraint
const pgExclusionViolation = "23P01"

// PostgresRepository stores appointments in Postgres.
type PostgresRepository struct {
	db pgtx.Beginner
}

// NewPostgresRepository returns a repository over a pool or tx-capable DB.
func NewPostgresRepository(db pgtx.Beginner) *PostgresRepository {
	if db == nil {
		panic("calendar: postgres db cannot be nil")
	}
	return &PostgresRepository{db: db}
}

const appointmentColumns = `id::text, clinic_id, staff_id, COALESCE(client_id::text, ''), client_phone, client_name, pet_name, pet_species,
	type, reason, starts_at, ends_at, duration_minutes, status, source, priority, COALESCE(conversation_id::text, ''), created_at, completed_at`

func (r *PostgresRepository) ListAppointments(ctx context.Context, clinicID, staffID string, from, to time.Time) ([]Appointment, error) {
	query := `SELECT ` + appointmentColumns + `
		FROM appointments
		WHERE clinic_id = $1 AND status <> 'cancelled' AND starts_at >= $2 AND starts_at < $3`
	args := []any{clinicID, from, to}
	if staffID != "" {
		query += ` AND staff_id = $4`
		args = append(args, staffID)
	}
	query += ` ORDER BY starts_at`

	rows, err := pgtx.Conn(ctx, r.db).Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("calendar: list appointments: %w", err)
	}
	defer rows.Close()

	var out []Appointment
	for rows.Next() {
		a, err := scanAppointment(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, *a)
	}
	return out, rows.Err()
}

func (r *PostgresRepository) Insert(ctx context.Context, a *Appointment) error {
	_, err := pgtx.Conn(ctx, r.db).Exec(ctx, `
		INSERT INTO appointments (id, clinic_id, staff_id, client_id, client_phone, client_name, pet_name, pet_species,
			type, reason, starts_at, ends_at, duration_minutes, status, source, priority, conversation_id, created_at)
		VALUES ($1, $2, $3, NULLIF($4, '')::uuid, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16, NULLIF($17, '')::uuid, $18)`,
		a.ID, a.ClinicID, a.StaffID, a.ClientID, a.ClientPhone, a.ClientName, a.PetName, a.PetSpecies,
		string(a.Type), a.Reason, a.StartsAt, a.EndsAt, a.DurationMinutes, string(a.Status), string(a.Source), a.Priority,
		a.ConversationID, a.CreatedAt,
	)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == pgExclusionViolation {
			return ErrSlotTaken
		}
		return fmt.Errorf("calendar: insert appointment: %w", err)
	}
	return nil
}

func (r *PostgresRepository) Get(ctx context.Context, clinicID, id string) (*Appointment, error) {
	row := pgtx.Conn(ctx, r.db).QueryRow(ctx, `SELECT `+appointmentColumns+` FROM appointments WHERE clinic_id = $1 AND id = $2`, clinicID, id)
	a, err := scanAppointment(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	return a, err
}

func (r *PostgresRepository) UpdateStatus(ctx context.Context, clinicID, id string, status Status, at time.Time) (*Appointment, error) {
	row := pgtx.Conn(ctx, r.db).QueryRow(ctx, `
		UPDATE appointments
		SET status = $3,
			completed_at = CASE WHEN $3 = 'completed' THEN $4 ELSE completed_at END,
			updated_at = $4
		WHERE clinic_id = $1 AND id = $2
		RETURNING `+appointmentColumns, clinicID, id, string(status), at)
	a, err := scanAppointment(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	return a, err
}

// WithWindowLock serializes bookings for one clinic/staff/day using a
// transaction-scoped advisory lock. Inside a turn transaction it runs in a
// savepoint so a constraint violation does not poison the turn.
func (r *PostgresRepository) WithWindowLock(ctx context.Context, clinicID, staffID string, day time.Time, fn func(ctx context.Context) error) error {
	return pgtx.Nested(ctx, r.db, func(ctx context.Context) error {
		if _, err := pgtx.Conn(ctx, r.db).Exec(ctx, `SELECT pg_advisory_xact_lock(hashtextextended($1, 0))`, windowKey(clinicID, staffID, day)); err != nil {
			return fmt.Errorf("calendar: window lock: %w", err)
		}
		return fn(ctx)
	})
}

func scanAppointment(row pgx.Row) (*Appointment, error) {
	var a Appointment
	var kind, status, source string
	if err := row.Scan(&a.ID, &a.ClinicID, &a.StaffID, &a.ClientID, &a.ClientPhone, &a.ClientName, &a.PetName, &a.PetSpecies,
		&kind, &a.Reason, &a.StartsAt, &a.EndsAt, &a.DurationMinutes, &status, &source, &a.Priority, &a.ConversationID,
		&a.CreatedAt, &a.CompletedAt); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, err
		}
		return nil, fmt.Errorf("calendar: scan appointment: %w", err)
	}
	a.Type = AppointmentType(kind)
	a.Status = Status(status)
	a.Source = Source(source)
	return &a, nil
}

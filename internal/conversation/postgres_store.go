package conversation

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"github.com/wolfman30/vetclinic-ai-platform/internal/store/pgtx"
)

// PostgresStore persists conversations and messages. Atomic opens one
// transaction and carries it through ctx, so the calendar, client, emergency
// and outbox stores join the same unit of work.
type PostgresStore struct {
	db pgtx.Beginner
}

func NewPostgresStore(db pgtx.Beginner) *PostgresStore {
	if db == nil {
		panic("conversation: db cannot be nil")
	}
	return &PostgresStore{db: db}
}

var _ Store = (*PostgresStore)(nil)

const conversationColumns = `id::text, clinic_id, COALESCE(client_id::text, ''), channel, COALESCE(external_id, ''),
	client_phone, COALESCE(reply_channel, ''), state, data, last_state_change, timeout_at, status,
	COALESCE(outcome, ''), emergency_keywords, COALESCE(emergency_description, ''), started_at, ended_at`

func (s *PostgresStore) Atomic(ctx context.Context, fn func(ctx context.Context) error) error {
	return pgtx.Run(ctx, s.db, fn)
}

func (s *PostgresStore) FindOpen(ctx context.Context, clinicID, phone string, channel Channel) (*Conversation, error) {
	row := pgtx.Conn(ctx, s.db).QueryRow(ctx, `
		SELECT `+conversationColumns+` FROM conversations
		WHERE clinic_id = $1 AND client_phone = $2 AND channel = $3
			AND status <> 'abandoned' AND state <> 'CLOSED'
		ORDER BY started_at DESC
		LIMIT 1
		FOR UPDATE
	`, clinicID, phone, string(channel))
	return scanConversation(row)
}

func (s *PostgresStore) Get(ctx context.Context, id string) (*Conversation, error) {
	if _, err := uuid.Parse(id); err != nil {
		return nil, ErrNotFound
	}
	row := pgtx.Conn(ctx, s.db).QueryRow(ctx,
		`SELECT `+conversationColumns+` FROM conversations WHERE id = $1::uuid`, id)
	return scanConversation(row)
}

func (s *PostgresStore) Create(ctx context.Context, c *Conversation) error {
	if c.ID == "" {
		c.ID = uuid.NewString()
	}
	data, err := json.Marshal(c.Data)
	if err != nil {
		return fmt.Errorf("conversation: encode data: %w", err)
	}
	_, err = pgtx.Conn(ctx, s.db).Exec(ctx, `
		INSERT INTO conversations (id, clinic_id, client_id, channel, external_id, client_phone, reply_channel,
			state, data, last_state_change, timeout_at, status, outcome, emergency_keywords, emergency_description,
			started_at, ended_at)
		VALUES ($1, $2, NULLIF($3, '')::uuid, $4, NULLIF($5, ''), $6, NULLIF($7, ''), $8, $9, $10, $11, $12,
			NULLIF($13, ''), $14, NULLIF($15, ''), $16, $17)
	`, c.ID, c.ClinicID, c.ClientID, string(c.Channel), c.ExternalID, c.Phone, c.ReplyChannel,
		string(c.State), data, c.LastStateChange, c.TimeoutAt, string(c.Status), c.Outcome,
		c.EmergencyKeywords, c.EmergencyDescription, c.StartedAt, c.EndedAt)
	if err != nil {
		return fmt.Errorf("conversation: insert: %w", err)
	}
	return nil
}

func (s *PostgresStore) Update(ctx context.Context, c *Conversation) error {
	data, err := json.Marshal(c.Data)
	if err != nil {
		return fmt.Errorf("conversation: encode data: %w", err)
	}
	tag, err := pgtx.Conn(ctx, s.db).Exec(ctx, `
		UPDATE conversations
		SET client_id = NULLIF($2, '')::uuid, external_id = NULLIF($3, ''), reply_channel = NULLIF($4, ''),
			state = $5, data = $6, last_state_change = $7, timeout_at = $8, status = $9, outcome = NULLIF($10, ''),
			emergency_keywords = $11, emergency_description = NULLIF($12, ''), ended_at = $13, updated_at = now()
		WHERE id = $1::uuid
	`, c.ID, c.ClientID, c.ExternalID, c.ReplyChannel, string(c.State), data, c.LastStateChange, c.TimeoutAt,
		string(c.Status), c.Outcome, c.EmergencyKeywords, c.EmergencyDescription, c.EndedAt)
	if err != nil {
		return fmt.Errorf("conversation: update: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

func (s *PostgresStore) AppendMessage(ctx context.Context, m *Message) error {
	if m.ID == "" {
		m.ID = uuid.NewString()
	}
	if m.CreatedAt.IsZero() {
		m.CreatedAt = time.Now().UTC()
	}
	_, err := pgtx.Conn(ctx, s.db).Exec(ctx, `
		INSERT INTO conversation_messages (id, conversation_id, role, content, audio_url, confidence, external_id,
			reply_to, created_at)
		VALUES ($1, $2::uuid, $3, $4, NULLIF($5, ''), $6, NULLIF($7, ''), NULLIF($8, '')::uuid, $9)
	`, m.ID, m.ConversationID, m.Role, m.Content, m.AudioURL, m.Confidence, m.ExternalID, m.ReplyTo, m.CreatedAt)
	if err != nil {
		return fmt.Errorf("conversation: insert message: %w", err)
	}
	return nil
}

const messageColumns = `id::text, conversation_id::text, role, content, COALESCE(audio_url, ''), confidence,
	COALESCE(external_id, ''), COALESCE(reply_to::text, ''), created_at`

func (s *PostgresStore) RecentMessages(ctx context.Context, conversationID string, limit int) ([]Message, error) {
	if limit <= 0 {
		return s.Messages(ctx, conversationID)
	}
	rows, err := pgtx.Conn(ctx, s.db).Query(ctx, `
		SELECT * FROM (
			SELECT `+messageColumns+` FROM conversation_messages
			WHERE conversation_id = $1::uuid
			ORDER BY created_at DESC, id DESC
			LIMIT $2
		) recent ORDER BY created_at, id
	`, conversationID, limit)
	if err != nil {
		return nil, fmt.Errorf("conversation: recent messages: %w", err)
	}
	return collectMessages(rows)
}

func (s *PostgresStore) Messages(ctx context.Context, conversationID string) ([]Message, error) {
	rows, err := pgtx.Conn(ctx, s.db).Query(ctx, `
		SELECT `+messageColumns+` FROM conversation_messages
		WHERE conversation_id = $1::uuid
		ORDER BY created_at, id
	`, conversationID)
	if err != nil {
		return nil, fmt.Errorf("conversation: list messages: %w", err)
	}
	return collectMessages(rows)
}

func (s *PostgresStore) FindTurn(ctx context.Context, clinicID, externalID string) (*RecordedTurn, error) {
	if externalID == "" {
		return nil, ErrNotFound
	}
	var turn RecordedTurn
	var state string
	err := pgtx.Conn(ctx, s.db).QueryRow(ctx, `
		SELECT c.id::text, c.state, COALESCE(r.content, '')
		FROM conversation_messages m
		JOIN conversations c ON c.id = m.conversation_id
		LEFT JOIN conversation_messages r ON r.reply_to = m.id
		WHERE c.clinic_id = $1 AND m.external_id = $2
		LIMIT 1
	`, clinicID, externalID).Scan(&turn.ConversationID, &state, &turn.Reply)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("conversation: find turn: %w", err)
	}
	turn.State = State(state)
	return &turn, nil
}

func (s *PostgresStore) ListExpired(ctx context.Context, channel Channel, states []State, now time.Time, limit int) ([]Conversation, error) {
	if limit <= 0 {
		limit = 100
	}
	names := make([]string, len(states))
	for i, st := range states {
		names[i] = string(st)
	}
	rows, err := pgtx.Conn(ctx, s.db).Query(ctx, `
		SELECT `+conversationColumns+` FROM conversations
		WHERE channel = $1 AND status = 'active' AND state = ANY($2) AND timeout_at < $3
		ORDER BY timeout_at
		LIMIT $4
	`, string(channel), names, now, limit)
	if err != nil {
		return nil, fmt.Errorf("conversation: list expired: %w", err)
	}
	return collectConversations(rows)
}

func (s *PostgresStore) List(ctx context.Context, clinicID string, status Status, limit int) ([]Conversation, error) {
	if limit <= 0 {
		limit = 50
	}
	rows, err := pgtx.Conn(ctx, s.db).Query(ctx, `
		SELECT `+conversationColumns+` FROM conversations
		WHERE clinic_id = $1 AND ($2 = '' OR status = $2)
		ORDER BY started_at DESC
		LIMIT $3
	`, clinicID, string(status), limit)
	if err != nil {
		return nil, fmt.Errorf("conversation: list: %w", err)
	}
	return collectConversations(rows)
}

func collectConversations(rows pgx.Rows) ([]Conversation, error) {
	defer rows.Close()
	var out []Conversation
	for rows.Next() {
		c, err := scanConversation(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, *c)
	}
	return out, rows.Err()
}

func collectMessages(rows pgx.Rows) ([]Message, error) {
	defer rows.Close()
	var out []Message
	for rows.Next() {
		var m Message
		if err := rows.Scan(&m.ID, &m.ConversationID, &m.Role, &m.Content, &m.AudioURL, &m.Confidence,
			&m.ExternalID, &m.ReplyTo, &m.CreatedAt); err != nil {
			return nil, fmt.Errorf("conversation: scan message: %w", err)
		}
		out = append(out, m)
	}
	return out, rows.Err()
}

func scanConversation(row pgx.Row) (*Conversation, error) {
	var (
		c       Conversation
		channel string
		state   string
		status  string
		data    []byte
	)
	err := row.Scan(&c.ID, &c.ClinicID, &c.ClientID, &channel, &c.ExternalID, &c.Phone, &c.ReplyChannel,
		&state, &data, &c.LastStateChange, &c.TimeoutAt, &status, &c.Outcome, &c.EmergencyKeywords,
		&c.EmergencyDescription, &c.StartedAt, &c.EndedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("conversation: scan: %w", err)
	}
	c.Channel = Channel(channel)
	c.State = State(state)
	c.Status = Status(status)
	if len(data) > 0 {
		if err := json.Unmarshal(data, &c.Data); err != nil {
			return nil, fmt.Errorf("conversation: decode data: %w", err)
		}
	}
	return &c, nil
}

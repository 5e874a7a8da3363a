package conversation

import (
	"context"
	"time"
)

// Store persists conversations and their transcripts.
type Store interface {
	// Atomic runs fn as one unit of work. Store calls made with the ctx
	// passed to fn, and any collaborator that joins the same ambient
	// transaction, commit or roll back together.
	Atomic(ctx context.Context, fn func(ctx context.Context) error) error
	// FindOpen returns the open conversation for the identity, locking it
	// for the rest of the unit of work. ErrNotFound when there is none.
	FindOpen(ctx context.Context, clinicID, phone string, channel Channel) (*Conversation, error)
	Get(ctx context.Context, id string) (*Conversation, error)
	Create(ctx context.Context, c *Conversation) error
	Update(ctx context.Context, c *Conversation) error
	AppendMessage(ctx context.Context, m *Message) error
	// RecentMessages returns up to limit messages, oldest first.
	RecentMessages(ctx context.Context, conversationID string, limit int) ([]Message, error)
	Messages(ctx context.Context, conversationID string) ([]Message, error)
	// FindTurn looks up an inbound message by transport id.
	FindTurn(ctx context.Context, clinicID, externalID string) (*RecordedTurn, error)
	// ListExpired returns active conversations on channel whose deadline
	// passed before now and whose state is one of states.
	ListExpired(ctx context.Context, channel Channel, states []State, now time.Time, limit int) ([]Conversation, error)
	// List returns a clinic's conversations, newest first.
	List(ctx context.Context, clinicID string, status Status, limit int) ([]Conversation, error)
}

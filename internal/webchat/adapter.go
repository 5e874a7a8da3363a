package webchat

import (
	"context"
	"errors"

	"github.com/wolfman30/vetclinic-ai-platform/internal/conversation"
)

// ErrNoSession is returned when no open session can take the message.
var ErrNoSession = errors.New("webchat: no open session")

// ChannelWebchat is the reply channel recorded for web chat conversations.
const ChannelWebchat = "webchat"

// Sender delivers out-of-turn messages to open web chat sessions and hands
// every other channel to next.
type Sender struct {
	handler *Handler
	next    conversation.ReplySender
}

func NewSender(handler *Handler, next conversation.ReplySender) *Sender {
	return &Sender{handler: handler, next: next}
}

var _ conversation.ReplySender = (*Sender)(nil)

func (s *Sender) SendMessage(ctx context.Context, phone, text, channel string) error {
	if channel == ChannelWebchat {
		if s.handler == nil || !s.handler.SendToPhone("", phone, text) {
			return ErrNoSession
		}
		return nil
	}
	if s.next == nil {
		return ErrNoSession
	}
	return s.next.SendMessage(ctx, phone, text, channel)
}

package messaging

import (
	"context"
	"errors"
)

// Delivery channels for outbound text.
const (
	ChannelSMS      = "sms"
	ChannelWhatsApp = "whatsapp"
)

const whatsAppPrefix = "whatsapp:"

// ErrChannelUnavailable is returned when a provider cannot deliver on the requested channel.
var ErrChannelUnavailable = errors.New("messaging: channel unavailable")

// OutboundMessage is one provider-neutral text message.
type OutboundMessage struct {
	ClinicID string
	To       string
	From     string
	Body     string
	Channel  string
	Metadata map[string]string
}

// Sender delivers a single outbound message through a provider.
type Sender interface {
	Send(ctx context.Context, msg OutboundMessage) error
}

// SenderFunc adapts a function into a Sender.
type SenderFunc func(ctx context.Context, msg OutboundMessage) error

// Send calls f.
func (f SenderFunc) Send(ctx context.Context, msg OutboundMessage) error {
	return f(ctx, msg)
}

func isWhatsApp(channel string) bool {
	return channel == ChannelWhatsApp
}

package messaging

import (
	"context"
	"errors"
	"strings"

	"github.com/wolfman30/vetclinic-ai-platform/internal/observability/metrics"
	"github.com/wolfman30/vetclinic-ai-platform/pkg/logging"
)

// Notifier adapts a Sender to the phone/text/channel shape used by the
// conversation engine and the emergency escalator.
type Notifier struct {
	sender  Sender
	logger  *logging.Logger
	metrics *metrics.MessagingMetrics
}

// NewNotifier wraps sender. A nil sender yields a notifier that logs and drops.
func NewNotifier(sender Sender, logger *logging.Logger) *Notifier {
	if logger == nil {
		logger = logging.Default()
	}
	return &Notifier{sender: sender, logger: logger}
}

// SendMessage delivers text to phone over channel ("sms" or "whatsapp").
func (n *Notifier) SendMessage(ctx context.Context, phone, text, channel string) error {
	if n.sender == nil {
		n.logger.Warn("notifier has no sender; message dropped", "channel", channel)
		return errors.New("messaging: no sender configured")
	}
	to, inferred := SplitAddress(phone)
	if to == "" {
		return errors.New("messaging: invalid phone")
	}
	channel = strings.ToLower(strings.TrimSpace(channel))
	if channel == "" {
		channel = inferred
	}
	if channel != ChannelSMS && channel != ChannelWhatsApp {
		return ErrChannelUnavailable
	}
	err := n.sender.Send(ctx, OutboundMessage{
		To:      to,
		Body:    text,
		Channel: channel,
	})
	status := "sent"
	if err != nil {
		status = "failed"
	}
	n.metrics.ObserveOutbound(channel, status)
	return err
}

// WithMetrics counts sends per channel and outcome.
func (n *Notifier) WithMetrics(m *metrics.MessagingMetrics) *Notifier {
	n.metrics = m
	return n
}

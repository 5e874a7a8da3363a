package messaging

import (
	"context"
	"errors"

	"github.com/wolfman30/vetclinic-ai-platform/pkg/logging"
)

// FailoverSender attempts a primary send, then falls back to a secondary provider on error.
type FailoverSender struct {
	primary       Sender
	secondary     Sender
	primaryName   string
	secondaryName string
	logger        *logging.Logger
}

// NewFailoverSender builds a failover sender with named providers.
func NewFailoverSender(primary Sender, primaryName string, secondary Sender, secondaryName string, logger *logging.Logger) *FailoverSender {
	if logger == nil {
		logger = logging.Default()
	}
	return &FailoverSender{
		primary:       primary,
		secondary:     secondary,
		primaryName:   primaryName,
		secondaryName: secondaryName,
		logger:        logger,
	}
}

var _ Sender = (*FailoverSender)(nil)

// Send tries the primary provider first. WhatsApp traffic never falls back,
// the caller decides whether to retry it as SMS.
func (f *FailoverSender) Send(ctx context.Context, msg OutboundMessage) error {
	if f == nil || f.primary == nil {
		return errors.New("messaging: failover primary sender not configured")
	}
	err := f.primary.Send(ctx, msg)
	if err == nil || f.secondary == nil || isWhatsApp(msg.Channel) {
		return err
	}
	f.logger.Warn("primary send failed; attempting fallback",
		"provider", f.primaryName,
		"fallback", f.secondaryName,
		"error", err,
		"clinic_id", msg.ClinicID,
	)
	if fallbackErr := f.secondary.Send(ctx, msg); fallbackErr != nil {
		f.logger.Error("fallback send failed",
			"provider", f.secondaryName,
			"error", fallbackErr,
			"clinic_id", msg.ClinicID,
		)
		return fallbackErr
	}
	return nil
}

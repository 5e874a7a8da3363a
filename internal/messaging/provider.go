package messaging

import (
	"strings"

	"github.com/wolfman30/vetclinic-ai-platform/pkg/logging"
)

const (
	ProviderTwilio = "twilio"
	ProviderTelnyx = "telnyx"
)

// ProviderConfig captures the credentials required to build outbound senders.
type ProviderConfig struct {
	TwilioAccountSID   string
	TwilioAuthToken    string
	TwilioFromNumber   string
	TwilioWhatsAppFrom string
	TelnyxAPIKey       string
	TelnyxProfileID    string
	TelnyxFromNumber   string
}

// BuildSender wires Twilio as the primary provider with Telnyx as the SMS
// backup when both are configured. It returns the sender, the provider label,
// and a reason when nothing could be initialized.
func BuildSender(cfg ProviderConfig, logger *logging.Logger, opts ...TwilioOption) (Sender, string, string) {
	if logger == nil {
		logger = logging.Default()
	}

	var twilio, telnyx Sender
	var reasons []string
	if cfg.TwilioAccountSID != "" && cfg.TwilioAuthToken != "" {
		opts = append([]TwilioOption{WithWhatsAppFrom(cfg.TwilioWhatsAppFrom)}, opts...)
		twilio = NewTwilioSender(cfg.TwilioAccountSID, cfg.TwilioAuthToken, cfg.TwilioFromNumber, logger, opts...)
	} else {
		reasons = append(reasons, "twilio: TWILIO_ACCOUNT_SID or TWILIO_AUTH_TOKEN missing")
	}
	if cfg.TelnyxAPIKey != "" {
		telnyx = NewTelnyxSender(cfg.TelnyxAPIKey, cfg.TelnyxProfileID, cfg.TelnyxFromNumber, logger)
	} else {
		reasons = append(reasons, "telnyx: TELNYX_API_KEY missing")
	}

	switch {
	case twilio != nil && telnyx != nil:
		return NewFailoverSender(twilio, ProviderTwilio, telnyx, ProviderTelnyx, logger), ProviderTwilio + "+" + ProviderTelnyx, ""
	case twilio != nil:
		return twilio, ProviderTwilio, ""
	case telnyx != nil:
		return telnyx, ProviderTelnyx, ""
	}
	return nil, "", strings.Join(reasons, "; ")
}

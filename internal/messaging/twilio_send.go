package messaging

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"math/rand"
	"net/http"
	"net/url"
	"strings"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"

	"github.com/wolfman30/vetclinic-ai-platform/pkg/logging"
)

var twilioSendTracer = otel.Tracer("vetclinic.internal.messaging.twilio_send")

const defaultTwilioBaseURL = "https://api.twilio.com"

// TwilioSender posts SMS and WhatsApp messages using Twilio's REST API.
type TwilioSender struct {
	accountSID     string
	authToken      string
	from           string
	whatsAppFrom   string
	baseURL        string
	statusCallback func(ctx context.Context) string
	retryDelay     func() time.Duration
	httpClient     *http.Client
	logger         *logging.Logger
}

// TwilioOption customizes a TwilioSender.
type TwilioOption func(*TwilioSender)

// WithWhatsAppFrom sets the approved WhatsApp sender number.
func WithWhatsAppFrom(number string) TwilioOption {
	return func(s *TwilioSender) {
		s.whatsAppFrom = strings.TrimSpace(number)
	}
}

// WithStatusCallback attaches a per-message StatusCallback URL. Returning "" skips it.
func WithStatusCallback(fn func(ctx context.Context) string) TwilioOption {
	return func(s *TwilioSender) {
		s.statusCallback = fn
	}
}

// WithTwilioBaseURL points the sender at another API host. Used by tests.
func WithTwilioBaseURL(base string) TwilioOption {
	return func(s *TwilioSender) {
		s.baseURL = strings.TrimRight(base, "/")
	}
}

// WithHTTPClient overrides the HTTP client.
func WithHTTPClient(c *http.Client) TwilioOption {
	return func(s *TwilioSender) {
		if c != nil {
			s.httpClient = c
		}
	}
}

// NewTwilioSender builds a sender with sane defaults.
func NewTwilioSender(accountSID, authToken, defaultFrom string, logger *logging.Logger, opts ...TwilioOption) *TwilioSender {
	if logger == nil {
		logger = logging.Default()
	}
	s := &TwilioSender{
		accountSID: accountSID,
		authToken:  authToken,
		from:       defaultFrom,
		baseURL:    defaultTwilioBaseURL,
		retryDelay: jitter,
		httpClient: &http.Client{
			Timeout: 10 * time.Second,
		},
		logger: logger,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

var _ Sender = (*TwilioSender)(nil)

// Send dispatches a single message, retrying transient failures.
func (s *TwilioSender) Send(ctx context.Context, msg OutboundMessage) error {
	if s.accountSID == "" || s.authToken == "" {
		return errors.New("messaging: twilio credentials missing")
	}
	if msg.To == "" {
		return errors.New("messaging: to required")
	}
	if msg.From == "" {
		msg.From = s.from
		if isWhatsApp(msg.Channel) {
			msg.From = s.whatsAppFrom
		}
	}
	if msg.From == "" {
		if isWhatsApp(msg.Channel) {
			return fmt.Errorf("%w: no whatsapp sender configured", ErrChannelUnavailable)
		}
		return errors.New("messaging: from required")
	}
	if strings.TrimSpace(msg.Body) == "" {
		return errors.New("messaging: body required")
	}
	to, from := msg.To, msg.From
	if isWhatsApp(msg.Channel) {
		to, from = withWhatsAppPrefix(to), withWhatsAppPrefix(from)
	}

	ctx, span := twilioSendTracer.Start(ctx, "messaging.twilio.send")
	defer span.End()
	span.SetAttributes(
		attribute.String("vetclinic.clinic_id", msg.ClinicID),
		attribute.String("vetclinic.channel", msg.Channel),
	)

	payload := url.Values{}
	payload.Set("To", to)
	payload.Set("From", from)
	payload.Set("Body", msg.Body)
	if s.statusCallback != nil {
		if cb := s.statusCallback(ctx); cb != "" {
			payload.Set("StatusCallback", cb)
		}
	}

	endpoint := fmt.Sprintf("%s/2010-04-01/Accounts/%s/Messages.json", s.baseURL, s.accountSID)

	var lastErr error
	for attempt := 1; attempt <= 3; attempt++ {
		req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, strings.NewReader(payload.Encode()))
		if err != nil {
			lastErr = err
			break
		}
		req.SetBasicAuth(s.accountSID, s.authToken)
		req.Header.Set("Content-Type", "application/x-www-form-urlencoded")

		resp, err := s.httpClient.Do(req)
		if err != nil {
			lastErr = err
		} else {
			body, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
			resp.Body.Close()
			if resp.StatusCode >= 200 && resp.StatusCode < 300 {
				if msg.Metadata != nil && len(body) > 0 {
					var parsed struct {
						SID    string `json:"sid"`
						Status string `json:"status"`
					}
					if err := json.Unmarshal(body, &parsed); err == nil {
						if parsed.SID != "" {
							msg.Metadata["provider_message_id"] = parsed.SID
						}
						if parsed.Status != "" {
							msg.Metadata["provider_status"] = parsed.Status
						}
					}
				}
				s.logger.Info("twilio message sent", "clinic_id", msg.ClinicID, "channel", msg.Channel)
				return nil
			}
			lastErr = fmt.Errorf("messaging: twilio send failed: %s", formatTwilioError(resp.StatusCode, body))
			// Don't retry non-rate-limit 4xx errors.
			if resp.StatusCode >= 400 && resp.StatusCode < 500 && resp.StatusCode != http.StatusTooManyRequests {
				break
			}
		}

		if attempt < 3 {
			select {
			case <-ctx.Done():
				span.RecordError(ctx.Err())
				return ctx.Err()
			case <-time.After(s.retryDelay()):
			}
		}
	}

	if lastErr != nil {
		span.RecordError(lastErr)
	}
	return lastErr
}

func withWhatsAppPrefix(number string) string {
	if strings.HasPrefix(number, whatsAppPrefix) {
		return number
	}
	return whatsAppPrefix + number
}

func jitter() time.Duration {
	return time.Duration(200+rand.Intn(300)) * time.Millisecond
}

type twilioAPIError struct {
	Code     int    `json:"code"`
	Message  string `json:"message"`
	MoreInfo string `json:"more_info"`
	Status   int    `json:"status"`
}

func formatTwilioError(status int, body []byte) string {
	body = []byte(strings.TrimSpace(string(body)))
	if len(body) == 0 {
		return fmt.Sprintf("status %d", status)
	}
	var parsed twilioAPIError
	if err := json.Unmarshal(body, &parsed); err == nil && parsed.Message != "" {
		if parsed.Code != 0 {
			return fmt.Sprintf("status %d code %d: %s", status, parsed.Code, parsed.Message)
		}
		return fmt.Sprintf("status %d: %s", status, parsed.Message)
	}
	return fmt.Sprintf("status %d: %s", status, string(body))
}

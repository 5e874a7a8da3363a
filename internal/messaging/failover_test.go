package messaging

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/wolfman30/vetclinic-ai-platform/pkg/logging"
)

type recordingSender struct {
	err  error
	sent []OutboundMessage
}

func (r *recordingSender) Send(_ context.Context, msg OutboundMessage) error {
	r.sent = append(r.sent, msg)
	return r.err
}

func TestFailoverSenderFallsBackForSMS(t *testing.T) {
	primary := &recordingSender{err: errors.New("down")}
	secondary := &recordingSender{}
	f := NewFailoverSender(primary, "twilio", secondary, "telnyx", logging.Discard())

	require.NoError(t, f.Send(context.Background(), OutboundMessage{To: "+1", Body: "x", Channel: ChannelSMS}))
	assert.Len(t, primary.sent, 1)
	assert.Len(t, secondary.sent, 1)
}

func TestFailoverSenderKeepsWhatsAppOnPrimary(t *testing.T) {
	primary := &recordingSender{err: errors.New("down")}
	secondary := &recordingSender{}
	f := NewFailoverSender(primary, "twilio", secondary, "telnyx", logging.Discard())

	err := f.Send(context.Background(), OutboundMessage{To: "+1", Body: "x", Channel: ChannelWhatsApp})
	require.Error(t, err)
	assert.Empty(t, secondary.sent)
}

func TestFailoverSenderWithoutPrimary(t *testing.T) {
	var f *FailoverSender
	if err := f.Send(context.Background(), OutboundMessage{}); err == nil {
		t.Fatalf("expected error for nil failover sender")
	}
}

func TestNotifierMapsChannelAndPhone(t *testing.T) {
	rec := &recordingSender{}
	n := NewNotifier(rec, logging.Discard())

	require.NoError(t, n.SendMessage(context.Background(), " +57 300 111 2233 ", "hola", "WhatsApp"))
	require.NoError(t, n.SendMessage(context.Background(), "whatsapp:+573001112233", "hola", ""))
	require.Len(t, rec.sent, 2)
	assert.Equal(t, OutboundMessage{To: "+573001112233", Body: "hola", Channel: ChannelWhatsApp}, rec.sent[0])
	assert.Equal(t, ChannelWhatsApp, rec.sent[1].Channel)

	err := n.SendMessage(context.Background(), "+573001112233", "hola", "voice")
	assert.ErrorIs(t, err, ErrChannelUnavailable)
	assert.Error(t, n.SendMessage(context.Background(), "", "hola", "sms"))
}

func TestBuildSender(t *testing.T) {
	s, provider, reason := BuildSender(ProviderConfig{}, logging.Discard())
	assert.Nil(t, s)
	assert.Empty(t, provider)
	assert.Contains(t, reason, "twilio")

	s, provider, _ = BuildSender(ProviderConfig{TwilioAccountSID: "AC", TwilioAuthToken: "tok"}, logging.Discard())
	assert.IsType(t, &TwilioSender{}, s)
	assert.Equal(t, ProviderTwilio, provider)

	s, provider, _ = BuildSender(ProviderConfig{TwilioAccountSID: "AC", TwilioAuthToken: "tok", TelnyxAPIKey: "k"}, logging.Discard())
	assert.IsType(t, &FailoverSender{}, s)
	assert.Equal(t, "twilio+telnyx", provider)
}

func TestTelnyxRejectsWhatsApp(t *testing.T) {
	s := NewTelnyxSender("key", "", "+1", logging.Discard())
	err := s.Send(context.Background(), OutboundMessage{To: "+2", Body: "x", Channel: ChannelWhatsApp})
	assert.ErrorIs(t, err, ErrChannelUnavailable)
}

package notify

import (
	"context"
	"errors"
	"testing"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/sesv2"
	"github.com/sendgrid/rest"
	"github.com/sendgrid/sendgrid-go/helpers/mail"
)

type fakeSendGrid struct {
	sent   []*mail.SGMailV3
	status int
	err    error
}

func (f *fakeSendGrid) SendWithContext(_ context.Context, m *mail.SGMailV3) (*rest.Response, error) {
	f.sent = append(f.sent, m)
	if f.err != nil {
		return nil, f.err
	}
	return &rest.Response{StatusCode: f.status}, nil
}

func TestNewSendGridSenderNeedsKey(t *testing.T) {
	if s := NewSendGridSender(SendGridConfig{FromEmail: "a@b.co"}, nil); s != nil {
		t.Fatal("expected nil sender without API key")
	}
	s := NewSendGridSender(SendGridConfig{APIKey: "k", FromEmail: "a@b.co"}, nil)
	if s == nil || s.fromName != defaultFromName {
		t.Fatalf("unexpected sender: %#v", s)
	}
}

func TestSendGridSenderSend(t *testing.T) {
	fake := &fakeSendGrid{status: 202}
	s := newSendGridSender(fake, SendGridConfig{FromEmail: "alertas@patitas.co", FromName: "Patitas"}, nil)

	err := s.Send(context.Background(), EmailMessage{To: "vet@patitas.co", Subject: "Emergencia", Body: "texto"})
	if err != nil {
		t.Fatalf("Send: %v", err)
	}
	if len(fake.sent) != 1 || fake.sent[0].Subject != "Emergencia" || fake.sent[0].From.Address != "alertas@patitas.co" {
		t.Fatalf("unexpected message: %#v", fake.sent)
	}

	fake.status = 401
	if err := s.Send(context.Background(), EmailMessage{To: "vet@patitas.co"}); err == nil {
		t.Fatal("expected error for 4xx status")
	}
	fake.err = errors.New("network")
	if err := s.Send(context.Background(), EmailMessage{To: "vet@patitas.co"}); err == nil {
		t.Fatal("expected transport error")
	}
}

func TestSendGridSenderNil(t *testing.T) {
	var s *SendGridSender
	if err := s.Send(context.Background(), EmailMessage{}); err == nil {
		t.Fatal("expected error for unconfigured sender")
	}
}

type fakeSES struct {
	in *sesv2.SendEmailInput
}

func (f *fakeSES) SendEmail(_ context.Context, in *sesv2.SendEmailInput, _ ...func(*sesv2.Options)) (*sesv2.SendEmailOutput, error) {
	f.in = in
	return &sesv2.SendEmailOutput{MessageId: aws.String("m-1")}, nil
}

func TestSESSenderBuildsInput(t *testing.T) {
	fake := &fakeSES{}
	s := NewSESSender(fake, SESConfig{FromEmail: "alertas@patitas.co"}, nil)
	err := s.Send(context.Background(), EmailMessage{To: "vet@patitas.co", Subject: "Hola", Body: "texto", HTML: "<p>texto</p>"})
	if err != nil {
		t.Fatalf("Send: %v", err)
	}
	if got := aws.ToString(fake.in.FromEmailAddress); got != defaultFromName+" <alertas@patitas.co>" {
		t.Fatalf("unexpected from: %q", got)
	}
	body := fake.in.Content.Simple.Body
	if aws.ToString(body.Text.Data) != "texto" || aws.ToString(body.Html.Data) != "<p>texto</p>" {
		t.Fatalf("unexpected body: %#v", body)
	}
	if NewSESSender(nil, SESConfig{}, nil) != nil {
		t.Fatal("expected nil sender without client")
	}
}

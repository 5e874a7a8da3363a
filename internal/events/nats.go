package events

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/nats-io/nats.go"

	"github.com/wolfman30/vetclinic-ai-platform/pkg/logging"
)

// DefaultSubjectPrefix namespaces published subjects.
const DefaultSubjectPrefix = "vetclinic"

type natsConn interface {
	Publish(subject string, data []byte) error
}

// NATSPublisher publishes outbox entries as envelopes on "<prefix>.<type>".
type NATSPublisher struct {
	conn   natsConn
	prefix string
	logger *logging.Logger
	closer func()
}

// ConnectNATS dials the bus with reconnect handling.
func ConnectNATS(url, token, prefix string, logger *logging.Logger) (*NATSPublisher, error) {
	if logger == nil {
		logger = logging.Default()
	}
	opts := []nats.Option{
		nats.Name("vetclinic-outbox"),
		nats.RetryOnFailedConnect(true),
		nats.MaxReconnects(60),
		nats.ReconnectWait(2 * time.Second),
		nats.DisconnectErrHandler(func(_ *nats.Conn, err error) {
			if err != nil {
				logger.Warn("nats disconnected", "error", err)
			}
		}),
		nats.ReconnectHandler(func(_ *nats.Conn) {
			logger.Info("nats reconnected")
		}),
	}
	if token != "" {
		opts = append(opts, nats.Token(token))
	}
	nc, err := nats.Connect(url, opts...)
	if err != nil {
		return nil, fmt.Errorf("events: nats connect: %w", err)
	}
	p := NewNATSPublisher(nc, prefix, logger)
	p.closer = nc.Close
	return p, nil
}

// NewNATSPublisher wraps an existing connection.
func NewNATSPublisher(conn natsConn, prefix string, logger *logging.Logger) *NATSPublisher {
	if conn == nil {
		panic("events: nats connection required")
	}
	if logger == nil {
		logger = logging.Default()
	}
	prefix = strings.Trim(strings.TrimSpace(prefix), ".")
	if prefix == "" {
		prefix = DefaultSubjectPrefix
	}
	return &NATSPublisher{conn: conn, prefix: prefix, logger: logger}
}

// Subject returns the subject an event type is published on.
func (p *NATSPublisher) Subject(eventType string) string {
	return p.prefix + "." + eventType
}

func (p *NATSPublisher) Handle(_ context.Context, entry OutboxEntry) error {
	data, err := json.Marshal(entry.Envelope())
	if err != nil {
		return fmt.Errorf("events: marshal envelope: %w", err)
	}
	subject := p.Subject(entry.Type)
	if err := p.conn.Publish(subject, data); err != nil {
		return fmt.Errorf("events: publish %s: %w", subject, err)
	}
	return nil
}

func (p *NATSPublisher) Close() {
	if p.closer != nil {
		p.closer()
	}
}

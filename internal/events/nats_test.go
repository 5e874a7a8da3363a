package events

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeConn struct {
	subjects []string
	payloads [][]byte
}

func (c *fakeConn) Publish(subject string, data []byte) error {
	c.subjects = append(c.subjects, subject)
	c.payloads = append(c.payloads, data)
	return nil
}

func TestNATSPublisherUsesTypedSubject(t *testing.T) {
	conn := &fakeConn{}
	p := NewNATSPublisher(conn, "", nil)

	entry := OutboxEntry{
		ID:        uuid.New(),
		ClinicID:  "clinic-1",
		Type:      TypeEmergencyEscalated,
		Payload:   json.RawMessage(`{"event_id":"e-1"}`),
		CreatedAt: time.Date(2026, 10, 15, 12, 0, 0, 0, time.UTC),
	}
	require.NoError(t, p.Handle(context.Background(), entry))

	require.Equal(t, []string{"vetclinic.emergency.escalated.v1"}, conn.subjects)
	var env Envelope
	require.NoError(t, json.Unmarshal(conn.payloads[0], &env))
	assert.Equal(t, entry.ID, env.EventID)
	assert.Equal(t, "clinic-1", env.ClinicID)
	assert.JSONEq(t, `{"event_id":"e-1"}`, string(env.Payload))
}

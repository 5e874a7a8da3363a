package followup

import (
	"context"
	"encoding/json"
	"errors"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/wolfman30/vetclinic-ai-platform/internal/conversation"
	"github.com/wolfman30/vetclinic-ai-platform/internal/emergency"
	"github.com/wolfman30/vetclinic-ai-platform/internal/events"
)

type recordedEvent struct {
	clinicID string
	evt      events.Event
}

type fakeRecorder struct{ events []recordedEvent }

func (f *fakeRecorder) Record(_ context.Context, clinicID string, evt events.Event) error {
	f.events = append(f.events, recordedEvent{clinicID, evt})
	return nil
}

func TestResponderMarksCalmReplyResponded(t *testing.T) {
	store := NewMemoryStore()
	seed(t, store, FollowUp{ID: "f1", ClinicID: "clinic-1", Status: StatusSent})
	outbox := &fakeRecorder{}

	err := NewResponder(store, outbox, nil).FollowUpReplied(context.Background(), conversation.FollowUpReply{
		ClinicID: "clinic-1", FollowUpID: "f1", Response: "Está muy bien, gracias",
	})
	require.NoError(t, err)

	f, err := store.Get(context.Background(), "f1")
	require.NoError(t, err)
	assert.Equal(t, StatusResponded, f.Status)
	assert.Equal(t, "Está muy bien, gracias", f.Response)
	assert.Empty(t, outbox.events)
}

func TestResponderEscalatesConcerningReply(t *testing.T) {
	store := NewMemoryStore()
	seed(t, store, FollowUp{ID: "f1", ClinicID: "clinic-1", Status: StatusSent})
	outbox := &fakeRecorder{}

	err := NewResponder(store, outbox, nil).FollowUpReplied(context.Background(), conversation.FollowUpReply{
		ClinicID:       "clinic-1",
		ConversationID: "conv-1",
		FollowUpID:     "f1",
		AppointmentID:  "a1",
		Phone:          "+573001112233",
		PetName:        "Luna",
		Response:       "tiene fiebre",
		Concerning:     []string{"fiebre"},
	})
	require.NoError(t, err)

	f, err := store.Get(context.Background(), "f1")
	require.NoError(t, err)
	assert.Equal(t, StatusEscalated, f.Status)

	require.Len(t, outbox.events, 1)
	assert.Equal(t, "clinic-1", outbox.events[0].clinicID)
	evt, ok := outbox.events[0].evt.(events.FollowUpEscalatedV1)
	require.True(t, ok)
	assert.Equal(t, "f1", evt.FollowUpID)
	assert.Equal(t, "tiene fiebre", evt.Response)
	assert.Equal(t, "conv-1", evt.ConversationID)
}

func TestResponderIgnoresUnknownFollowUp(t *testing.T) {
	err := NewResponder(NewMemoryStore(), nil, nil).FollowUpReplied(context.Background(), conversation.FollowUpReply{FollowUpID: "missing"})
	assert.NoError(t, err)
}

type fakeStaff struct {
	messages []string
	reached  bool
	err      error
}

func (f *fakeStaff) NotifyStaff(_ context.Context, _ string, message string) (bool, error) {
	if f.err != nil {
		return false, f.err
	}
	f.messages = append(f.messages, message)
	return f.reached, nil
}

func escalationEntry(t *testing.T, evt events.FollowUpEscalatedV1) events.OutboxEntry {
	t.Helper()
	payload, err := json.Marshal(evt)
	require.NoError(t, err)
	return events.OutboxEntry{ID: uuid.New(), ClinicID: evt.ClinicID, Type: events.TypeFollowUpEscalated, Payload: payload}
}

func TestStaffAlerterNotifiesStaff(t *testing.T) {
	staff := &fakeStaff{reached: true}
	alerter := NewStaffAlerter(staff, nil)

	entry := escalationEntry(t, events.FollowUpEscalatedV1{
		ClinicID: "clinic-1", ClientPhone: "+573001112233", PetName: "Luna", Response: "sangra la herida",
	})
	require.NoError(t, alerter.Handle(context.Background(), entry))
	require.Len(t, staff.messages, 1)
	assert.Contains(t, staff.messages[0], "SEGUIMIENTO")
	assert.Contains(t, staff.messages[0], "Luna")
	assert.Contains(t, staff.messages[0], "sangra la herida")

	require.NoError(t, alerter.Handle(context.Background(), events.OutboxEntry{Type: events.TypeConversationEnded}))
	assert.Len(t, staff.messages, 1)
}

func TestStaffAlerterErrors(t *testing.T) {
	entry := escalationEntry(t, events.FollowUpEscalatedV1{ClinicID: "clinic-1"})

	assert.NoError(t, NewStaffAlerter(&fakeStaff{err: emergency.ErrNoContacts}, nil).Handle(context.Background(), entry))
	assert.Error(t, NewStaffAlerter(&fakeStaff{err: errors.New("twilio down")}, nil).Handle(context.Background(), entry))
}

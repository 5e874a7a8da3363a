package archive

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"testing"
	"time"

	"github.com/aws/aws-sdk-go-v2/service/s3"
	s3types "github.com/aws/aws-sdk-go-v2/service/s3/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/wolfman30/vetclinic-ai-platform/internal/events"
)

type mockS3Client struct {
	putKeys []string
	objects map[string][]byte
}

func newMockS3() *mockS3Client {
	return &mockS3Client{objects: make(map[string][]byte)}
}

func (m *mockS3Client) PutObject(_ context.Context, input *s3.PutObjectInput, _ ...func(*s3.Options)) (*s3.PutObjectOutput, error) {
	body, _ := io.ReadAll(input.Body)
	m.putKeys = append(m.putKeys, *input.Key)
	m.objects[*input.Key] = body
	return &s3.PutObjectOutput{}, nil
}

func (m *mockS3Client) GetObject(_ context.Context, input *s3.GetObjectInput, _ ...func(*s3.Options)) (*s3.GetObjectOutput, error) {
	data, ok := m.objects[*input.Key]
	if !ok {
		return nil, &s3types.NoSuchKey{}
	}
	return &s3.GetObjectOutput{Body: io.NopCloser(bytes.NewReader(data))}, nil
}

func endedEntry(t *testing.T, id string, ended time.Time) events.OutboxEntry {
	t.Helper()
	payload, err := json.Marshal(events.ConversationEndedV1{
		ConversationID: id,
		ClinicID:       "clinic-1",
		Channel:        "chat",
		ClientPhone:    "+573001112233",
		Status:         "completed",
		Outcome:        "appointment_scheduled",
		FinalState:     "COMPLETED",
		StartedAt:      ended.Add(-3 * time.Minute),
		EndedAt:        ended,
		Transcript: []events.TranscriptLine{
			{Role: "user", Content: "quiero vacunar a Luna, mi número es 300 111 2233", CreatedAt: ended.Add(-3 * time.Minute)},
			{Role: "assistant", Content: "✓ Cita confirmada.", CreatedAt: ended},
		},
	})
	require.NoError(t, err)
	return events.OutboxEntry{ClinicID: "clinic-1", Type: events.TypeConversationEnded, Payload: payload}
}

func TestArchiverStoresScrubbedTranscript(t *testing.T) {
	mock := newMockS3()
	archiver := NewArchiver(NewStore(mock, "bucket", nil))
	ended := time.Date(2026, 3, 2, 15, 0, 0, 0, time.UTC)

	require.NoError(t, archiver.Handle(context.Background(), endedEntry(t, "conv-1", ended)))

	require.Len(t, mock.putKeys, 2)
	assert.Equal(t, "transcripts/v1/clinic-1/2026/03/02/conv-1.json", mock.putKeys[0])
	assert.Equal(t, "transcripts/v1/clinic-1/manifests/2026-03.jsonl", mock.putKeys[1])

	var record TranscriptRecord
	require.NoError(t, json.Unmarshal(mock.objects[mock.putKeys[0]], &record))
	assert.Equal(t, CategoryBooking, record.Category)
	assert.Equal(t, HashPhone("+573001112233"), record.PhoneHash)
	assert.Equal(t, 180, record.DurationSeconds)
	assert.Equal(t, 2, record.MessageCount)
	assert.Contains(t, record.Messages[0].Content, "[PHONE]")
	assert.NotContains(t, string(mock.objects[mock.putKeys[0]]), "300 111 2233")
}

func TestArchiverAppendsManifest(t *testing.T) {
	mock := newMockS3()
	archiver := NewArchiver(NewStore(mock, "bucket", nil))
	ended := time.Date(2026, 3, 2, 15, 0, 0, 0, time.UTC)

	require.NoError(t, archiver.Handle(context.Background(), endedEntry(t, "conv-1", ended)))
	require.NoError(t, archiver.Handle(context.Background(), endedEntry(t, "conv-2", ended.Add(time.Hour))))

	manifest := mock.objects["transcripts/v1/clinic-1/manifests/2026-03.jsonl"]
	lines := bytes.Split(bytes.TrimSpace(manifest), []byte("\n"))
	require.Len(t, lines, 2)
	var entry ManifestEntry
	require.NoError(t, json.Unmarshal(lines[1], &entry))
	assert.Equal(t, "conv-2", entry.ConversationID)
}

func TestArchiverIgnoresOtherEventsAndDisabledStore(t *testing.T) {
	mock := newMockS3()
	archiver := NewArchiver(NewStore(mock, "bucket", nil))
	require.NoError(t, archiver.Handle(context.Background(), events.OutboxEntry{Type: events.TypeAppointmentBooked}))
	assert.Empty(t, mock.putKeys)

	disabled := NewArchiver(NewStore(nil, "", nil))
	require.NoError(t, disabled.Handle(context.Background(), endedEntry(t, "conv-1", time.Now())))
}

func TestCategorize(t *testing.T) {
	assert.Equal(t, CategoryEmergency, Categorize("escalated", ""))
	assert.Equal(t, CategoryEmergency, Categorize("completed", "emergency_denied"))
	assert.Equal(t, CategoryFollowUp, Categorize("completed", "followup_escalated"))
	assert.Equal(t, CategoryAbandoned, Categorize("abandoned", ""))
	assert.Equal(t, CategoryOther, Categorize("completed", "closed"))
}

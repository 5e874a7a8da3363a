package archive

import "time"

const recordVersion = "1.0"

// TranscriptRecord is one ended conversation as stored in the bucket.
// The client's phone is kept only as a hash.
type TranscriptRecord struct {
	Version         string    `json:"version"`
	ConversationID  string    `json:"conversation_id"`
	ClinicID        string    `json:"clinic_id"`
	Channel         string    `json:"channel"`
	PhoneHash       string    `json:"phone_hash"`
	Status          string    `json:"status"`
	Outcome         string    `json:"outcome,omitempty"`
	FinalState      string    `json:"final_state"`
	Category        string    `json:"category"`
	StartedAt       time.Time `json:"started_at"`
	EndedAt         time.Time `json:"ended_at"`
	ArchivedAt      time.Time `json:"archived_at"`
	DurationSeconds int       `json:"duration_seconds"`
	MessageCount    int       `json:"message_count"`
	Messages        []Message `json:"messages"`
}

type Message struct {
	Role      string    `json:"role"`
	Content   string    `json:"content"`
	Timestamp time.Time `json:"timestamp"`
}

// ManifestEntry is one JSONL line in a clinic's monthly manifest.
type ManifestEntry struct {
	ConversationID string `json:"conversation_id"`
	S3Key          string `json:"s3_key"`
	Channel        string `json:"channel"`
	Category       string `json:"category"`
	Outcome        string `json:"outcome,omitempty"`
	ArchivedAt     string `json:"archived_at"`
	MessageCount   int    `json:"message_count"`
}

package archive

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	s3types "github.com/aws/aws-sdk-go-v2/service/s3/types"

	"github.com/wolfman30/vetclinic-ai-platform/pkg/logging"
)

// S3API is the subset of the S3 client used by Store.
type S3API interface {
	PutObject(ctx context.Context, params *s3.PutObjectInput, optFns ...func(*s3.Options)) (*s3.PutObjectOutput, error)
	GetObject(ctx context.Context, params *s3.GetObjectInput, optFns ...func(*s3.Options)) (*s3.GetObjectOutput, error)
}

// Store writes transcripts to S3. Without a bucket every call is a no-op.
type Store struct {
	bucket   string
	s3Client S3API
	logger   *logging.Logger
}

func NewStore(s3Client S3API, bucket string, logger *logging.Logger) *Store {
	if logger == nil {
		logger = logging.Default()
	}
	return &Store{bucket: bucket, s3Client: s3Client, logger: logger}
}

func (s *Store) Enabled() bool {
	return s != nil && s.bucket != "" && s.s3Client != nil
}

// TranscriptKey is the object key of a transcript. Keys are stable per
// conversation, so re-archiving overwrites.
func TranscriptKey(record *TranscriptRecord) string {
	ended := record.EndedAt.UTC()
	return fmt.Sprintf("transcripts/v1/%s/%d/%02d/%02d/%s.json",
		record.ClinicID, ended.Year(), ended.Month(), ended.Day(), record.ConversationID)
}

// ArchiveTranscript stores record and appends it to the monthly manifest.
func (s *Store) ArchiveTranscript(ctx context.Context, record *TranscriptRecord) error {
	if !s.Enabled() {
		return nil
	}
	data, err := json.Marshal(record)
	if err != nil {
		return fmt.Errorf("archive: marshal record: %w", err)
	}
	key := TranscriptKey(record)
	if _, err := s.s3Client.PutObject(ctx, &s3.PutObjectInput{
		Bucket:      aws.String(s.bucket),
		Key:         aws.String(key),
		Body:        bytes.NewReader(data),
		ContentType: aws.String("application/json"),
	}); err != nil {
		return fmt.Errorf("archive: s3 put %s: %w", key, err)
	}
	s.logger.Info("archived transcript", "conversation_id", record.ConversationID, "clinic_id", record.ClinicID, "s3_key", key)

	entry := ManifestEntry{
		ConversationID: record.ConversationID,
		S3Key:          key,
		Channel:        record.Channel,
		Category:       record.Category,
		Outcome:        record.Outcome,
		ArchivedAt:     record.ArchivedAt.UTC().Format(time.RFC3339),
		MessageCount:   record.MessageCount,
	}
	if err := s.appendManifest(ctx, record.ClinicID, record.EndedAt, entry); err != nil {
		// the transcript itself is stored
		s.logger.Warn("append manifest failed", "error", err, "conversation_id", record.ConversationID)
	}
	return nil
}

// appendManifest read-modify-writes the clinic's JSONL manifest for the
// month of at.
func (s *Store) appendManifest(ctx context.Context, clinicID string, at time.Time, entry ManifestEntry) error {
	line, err := json.Marshal(entry)
	if err != nil {
		return fmt.Errorf("archive: marshal manifest entry: %w", err)
	}
	at = at.UTC()
	key := fmt.Sprintf("transcripts/v1/%s/manifests/%d-%02d.jsonl", clinicID, at.Year(), at.Month())

	var existing []byte
	out, err := s.s3Client.GetObject(ctx, &s3.GetObjectInput{Bucket: aws.String(s.bucket), Key: aws.String(key)})
	var missing *s3types.NoSuchKey
	switch {
	case errors.As(err, &missing):
	case err != nil:
		return fmt.Errorf("archive: s3 get manifest: %w", err)
	default:
		existing, err = io.ReadAll(out.Body)
		out.Body.Close()
		if err != nil {
			return fmt.Errorf("archive: read manifest: %w", err)
		}
	}

	var buf bytes.Buffer
	buf.Write(existing)
	if len(existing) > 0 && existing[len(existing)-1] != '\n' {
		buf.WriteByte('\n')
	}
	buf.Write(line)
	buf.WriteByte('\n')

	if _, err := s.s3Client.PutObject(ctx, &s3.PutObjectInput{
		Bucket:      aws.String(s.bucket),
		Key:         aws.String(key),
		Body:        bytes.NewReader(buf.Bytes()),
		ContentType: aws.String("application/x-ndjson"),
	}); err != nil {
		return fmt.Errorf("archive: s3 put manifest: %w", err)
	}
	return nil
}

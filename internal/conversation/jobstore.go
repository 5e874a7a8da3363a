package conversation

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/feature/dynamodb/attributevalue"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"

	"github.com/wolfman30/vetclinic-ai-platform/pkg/logging"
)

const jobTTL = 24 * time.Hour

// JobStatus is the lifecycle of an async turn.
type JobStatus string

const (
	JobStatusPending   JobStatus = "pending"
	JobStatusCompleted JobStatus = "completed"
	JobStatusFailed    JobStatus = "failed"
)

// ErrJobNotFound indicates the requested job id does not exist.
var ErrJobNotFound = errors.New("conversation: job not found")

// JobRecord is the tracked state of an async turn.
type JobRecord struct {
	JobID          string      `dynamodbav:"jobId" json:"job_id"`
	Status         JobStatus   `dynamodbav:"status" json:"status"`
	ClinicID       string      `dynamodbav:"clinicId" json:"clinic_id"`
	Channel        Channel     `dynamodbav:"channel" json:"channel"`
	ConversationID string      `dynamodbav:"conversationId,omitempty" json:"conversation_id,omitempty"`
	Result         *TurnResult `dynamodbav:"result,omitempty" json:"result,omitempty"`
	ErrorMessage   string      `dynamodbav:"errorMessage,omitempty" json:"error,omitempty"`
	CreatedAt      string      `dynamodbav:"createdAt" json:"created_at"`
	UpdatedAt      string      `dynamodbav:"updatedAt" json:"updated_at"`
	ExpiresAt      int64       `dynamodbav:"expiresAt,omitempty" json:"-"`
}

// JobRecorder creates and reads job records.
type JobRecorder interface {
	PutPending(ctx context.Context, job *JobRecord) error
	GetJob(ctx context.Context, jobID string) (*JobRecord, error)
}

// JobUpdater settles job records.
type JobUpdater interface {
	MarkCompleted(ctx context.Context, jobID string, res TurnResult) error
	MarkFailed(ctx context.Context, jobID string, errMsg string) error
}

type dynamoAPI interface {
	PutItem(context.Context, *dynamodb.PutItemInput, ...func(*dynamodb.Options)) (*dynamodb.PutItemOutput, error)
	UpdateItem(context.Context, *dynamodb.UpdateItemInput, ...func(*dynamodb.Options)) (*dynamodb.UpdateItemOutput, error)
	GetItem(context.Context, *dynamodb.GetItemInput, ...func(*dynamodb.Options)) (*dynamodb.GetItemOutput, error)
}

// JobStore keeps job records in DynamoDB with a TTL attribute.
type JobStore struct {
	client    dynamoAPI
	tableName string
	logger    *logging.Logger
}

var (
	_ JobRecorder = (*JobStore)(nil)
	_ JobUpdater  = (*JobStore)(nil)
)

func NewJobStore(client dynamoAPI, tableName string, logger *logging.Logger) *JobStore {
	if client == nil {
		panic("conversation: dynamodb client cannot be nil")
	}
	if tableName == "" {
		panic("conversation: job table name cannot be empty")
	}
	if logger == nil {
		logger = logging.Default()
	}
	return &JobStore{client: client, tableName: tableName, logger: logger}
}

func (s *JobStore) PutPending(ctx context.Context, job *JobRecord) error {
	if job == nil || job.JobID == "" {
		return errors.New("conversation: job id required")
	}
	stampPending(job, time.Now().UTC())
	item, err := attributevalue.MarshalMap(job)
	if err != nil {
		return fmt.Errorf("conversation: marshal job: %w", err)
	}
	_, err = s.client.PutItem(ctx, &dynamodb.PutItemInput{
		TableName:           aws.String(s.tableName),
		Item:                item,
		ConditionExpression: aws.String("attribute_not_exists(jobId)"),
	})
	if err != nil {
		return fmt.Errorf("conversation: put job: %w", err)
	}
	return nil
}

func (s *JobStore) MarkCompleted(ctx context.Context, jobID string, res TurnResult) error {
	if jobID == "" {
		return errors.New("conversation: job id required")
	}
	resAttr, err := attributevalue.Marshal(res)
	if err != nil {
		return fmt.Errorf("conversation: marshal result: %w", err)
	}
	return s.update(ctx, jobID, "SET #status = :status, #result = :result, conversationId = :conversation, #error = :error, #updated = :updated",
		map[string]types.AttributeValue{
			":status":       &types.AttributeValueMemberS{Value: string(JobStatusCompleted)},
			":result":       resAttr,
			":conversation": &types.AttributeValueMemberS{Value: res.ConversationID},
			":error":        &types.AttributeValueMemberS{Value: ""},
			":updated":      &types.AttributeValueMemberS{Value: time.Now().UTC().Format(time.RFC3339Nano)},
		})
}

func (s *JobStore) MarkFailed(ctx context.Context, jobID string, errMsg string) error {
	if jobID == "" {
		return errors.New("conversation: job id required")
	}
	return s.update(ctx, jobID, "SET #status = :status, #result = :result, #error = :error, #updated = :updated",
		map[string]types.AttributeValue{
			":status":  &types.AttributeValueMemberS{Value: string(JobStatusFailed)},
			":result":  &types.AttributeValueMemberNULL{Value: true},
			":error":   &types.AttributeValueMemberS{Value: errMsg},
			":updated": &types.AttributeValueMemberS{Value: time.Now().UTC().Format(time.RFC3339Nano)},
		})
}

func (s *JobStore) GetJob(ctx context.Context, jobID string) (*JobRecord, error) {
	if jobID == "" {
		return nil, errors.New("conversation: job id required")
	}
	out, err := s.client.GetItem(ctx, &dynamodb.GetItemInput{
		TableName: aws.String(s.tableName),
		Key:       map[string]types.AttributeValue{"jobId": &types.AttributeValueMemberS{Value: jobID}},
	})
	if err != nil {
		return nil, fmt.Errorf("conversation: get job: %w", err)
	}
	if out.Item == nil {
		return nil, ErrJobNotFound
	}
	var job JobRecord
	if err := attributevalue.UnmarshalMap(out.Item, &job); err != nil {
		return nil, fmt.Errorf("conversation: decode job: %w", err)
	}
	return &job, nil
}

// status, result and updatedAt style names collide with DynamoDB reserved
// words, so every update aliases them.
func (s *JobStore) update(ctx context.Context, jobID, expression string, values map[string]types.AttributeValue) error {
	_, err := s.client.UpdateItem(ctx, &dynamodb.UpdateItemInput{
		TableName: aws.String(s.tableName),
		Key:       map[string]types.AttributeValue{"jobId": &types.AttributeValueMemberS{Value: jobID}},
		ExpressionAttributeNames: map[string]string{
			"#status":  "status",
			"#result":  "result",
			"#error":   "errorMessage",
			"#updated": "updatedAt",
		},
		UpdateExpression:          aws.String(expression),
		ExpressionAttributeValues: values,
		ConditionExpression:       aws.String("attribute_exists(jobId)"),
	})
	if err != nil {
		return fmt.Errorf("conversation: update job %s: %w", jobID, err)
	}
	return nil
}

func stampPending(job *JobRecord, now time.Time) {
	job.Status = JobStatusPending
	job.CreatedAt = now.Format(time.RFC3339Nano)
	job.UpdatedAt = job.CreatedAt
	if job.ExpiresAt == 0 {
		job.ExpiresAt = now.Add(jobTTL).Unix()
	}
}

// MemoryJobStore keeps job records in process memory.
type MemoryJobStore struct {
	mu   sync.Mutex
	jobs map[string]JobRecord
}

var (
	_ JobRecorder = (*MemoryJobStore)(nil)
	_ JobUpdater  = (*MemoryJobStore)(nil)
)

func NewMemoryJobStore() *MemoryJobStore {
	return &MemoryJobStore{jobs: make(map[string]JobRecord)}
}

func (s *MemoryJobStore) PutPending(_ context.Context, job *JobRecord) error {
	if job == nil || job.JobID == "" {
		return errors.New("conversation: job id required")
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.jobs[job.JobID]; ok {
		return fmt.Errorf("conversation: job %s already exists", job.JobID)
	}
	stampPending(job, time.Now().UTC())
	s.jobs[job.JobID] = *job
	return nil
}

func (s *MemoryJobStore) MarkCompleted(_ context.Context, jobID string, res TurnResult) error {
	return s.settle(jobID, func(j *JobRecord) {
		j.Status = JobStatusCompleted
		j.ConversationID = res.ConversationID
		j.Result = &res
		j.ErrorMessage = ""
	})
}

func (s *MemoryJobStore) MarkFailed(_ context.Context, jobID string, errMsg string) error {
	return s.settle(jobID, func(j *JobRecord) {
		j.Status = JobStatusFailed
		j.Result = nil
		j.ErrorMessage = errMsg
	})
}

func (s *MemoryJobStore) GetJob(_ context.Context, jobID string) (*JobRecord, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	job, ok := s.jobs[jobID]
	if !ok {
		return nil, ErrJobNotFound
	}
	return &job, nil
}

func (s *MemoryJobStore) settle(jobID string, fn func(*JobRecord)) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	job, ok := s.jobs[jobID]
	if !ok {
		return ErrJobNotFound
	}
	fn(&job)
	job.UpdatedAt = time.Now().UTC().Format(time.RFC3339Nano)
	s.jobs[jobID] = job
	return nil
}

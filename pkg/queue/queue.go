// Package queue hands ingestion work from the API server to background
// workers over Redis.
package queue

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/hibiken/asynq"
	"github.com/redis/go-redis/v9"
)

const TaskTypeDocumentIngest = "document:ingest"

// ErrDuplicateTask means an identical ingestion task is already queued or
// running for the same document.
var ErrDuplicateTask = errors.New("task already enqueued")

// IngestTask is the payload for a document ingestion run.
type IngestTask struct {
	DocumentID string    `json:"documentId"`
	EnqueuedAt time.Time `json:"enqueuedAt"`
}

// Queue enqueues ingestion tasks.
type Queue interface {
	Enqueue(ctx context.Context, task *IngestTask) error
	Close() error
}

// Lock is a distributed claim on a document id. Acquire returns false when
// another worker already holds the claim.
type Lock interface {
	Acquire(ctx context.Context, documentID string, ttl time.Duration) (bool, error)
	Release(ctx context.Context, documentID string) error
}

// Config for the asynq-backed queue.
type Config struct {
	RedisAddr      string
	RedisDB        int
	QueueName      string
	MaxRetries     int
	ProcessTimeout time.Duration
}

func (c *Config) defaults() {
	if c.QueueName == "" {
		c.QueueName = "default"
	}
	if c.MaxRetries == 0 {
		c.MaxRetries = 3
	}
	if c.ProcessTimeout == 0 {
		c.ProcessTimeout = 10 * time.Minute
	}
}

// AsynqQueue is the Redis-backed Queue and Lock implementation.
type AsynqQueue struct {
	client *asynq.Client
	redis  *redis.Client
	cfg    Config
}

func NewAsynqQueue(cfg Config) *AsynqQueue {
	cfg.defaults()
	redisOpt := asynq.RedisClientOpt{Addr: cfg.RedisAddr, DB: cfg.RedisDB}
	return &AsynqQueue{
		client: asynq.NewClient(redisOpt),
		redis:  redis.NewClient(&redis.Options{Addr: cfg.RedisAddr, DB: cfg.RedisDB}),
		cfg:    cfg,
	}
}

// Enqueue queues an ingestion run. The asynq task id is derived from the
// document id, so a document can have at most one queued or running task.
func (q *AsynqQueue) Enqueue(ctx context.Context, task *IngestTask) error {
	if task.EnqueuedAt.IsZero() {
		task.EnqueuedAt = time.Now().UTC()
	}
	payload, err := json.Marshal(task)
	if err != nil {
		return fmt.Errorf("marshal task: %w", err)
	}
	opts := []asynq.Option{
		asynq.Queue(q.cfg.QueueName),
		asynq.MaxRetry(q.cfg.MaxRetries),
		asynq.Timeout(q.cfg.ProcessTimeout),
		asynq.TaskID("ingest:" + task.DocumentID),
	}
	_, err = q.client.EnqueueContext(ctx, asynq.NewTask(TaskTypeDocumentIngest, payload, opts...))
	if errors.Is(err, asynq.ErrTaskIDConflict) {
		return ErrDuplicateTask
	}
	if err != nil {
		return fmt.Errorf("enqueue task: %w", err)
	}
	return nil
}

// Acquire claims the document id with SET NX. The TTL bounds how long a
// crashed worker can hold the claim.
func (q *AsynqQueue) Acquire(ctx context.Context, documentID string, ttl time.Duration) (bool, error) {
	ok, err := q.redis.SetNX(ctx, processingKey(documentID), time.Now().UTC().Format(time.RFC3339), ttl).Result()
	if err != nil {
		return false, fmt.Errorf("acquire processing lock: %w", err)
	}
	return ok, nil
}

func (q *AsynqQueue) Release(ctx context.Context, documentID string) error {
	if err := q.redis.Del(ctx, processingKey(documentID)).Err(); err != nil {
		return fmt.Errorf("release processing lock: %w", err)
	}
	return nil
}

func (q *AsynqQueue) Close() error {
	if err := q.client.Close(); err != nil {
		return err
	}
	return q.redis.Close()
}

func processingKey(documentID string) string {
	return "ingest_lock:" + documentID
}

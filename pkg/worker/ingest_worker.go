package worker

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/hibiken/asynq"

	"github.com/docuchat/docuchat/internal/ingest"
	"github.com/docuchat/docuchat/pkg/logger"
	"github.com/docuchat/docuchat/pkg/queue"
)

// IngestWorker consumes document ingestion tasks and runs them through the
// pipeline.
type IngestWorker struct {
	BaseWorker
	pipeline *ingest.Pipeline
}

func NewIngestWorker(cfg *Config, pipeline *ingest.Pipeline, log logger.Logger) *IngestWorker {
	queueName := cfg.QueueName
	if queueName == "" {
		queueName = "default"
	}
	concurrency := cfg.Concurrency
	if concurrency <= 0 {
		concurrency = 5
	}
	server := asynq.NewServer(
		asynq.RedisClientOpt{Addr: cfg.RedisAddr, DB: cfg.RedisDB},
		asynq.Config{
			Concurrency: concurrency,
			Queues:      map[string]int{queueName: 1},
			RetryDelayFunc: func(n int, err error, task *asynq.Task) time.Duration {
				return time.Duration(n) * time.Minute
			},
		},
	)

	w := &IngestWorker{
		BaseWorker: BaseWorker{
			server:   server,
			mux:      asynq.NewServeMux(),
			logger:   log.Named("worker"),
			stopChan: make(chan struct{}),
		},
		pipeline: pipeline,
	}
	w.mux.HandleFunc(queue.TaskTypeDocumentIngest, w.handleIngest)
	return w
}

func (w *IngestWorker) handleIngest(ctx context.Context, t *asynq.Task) error {
	var task queue.IngestTask
	if err := json.Unmarshal(t.Payload(), &task); err != nil {
		w.logger.Error("Failed to unmarshal task",
			logger.Error(err),
			logger.String("payload", string(t.Payload())),
		)
		return fmt.Errorf("unmarshal task: %w", err)
	}
	if task.DocumentID == "" {
		return fmt.Errorf("task missing document id")
	}

	w.logger.Info("Processing ingestion task", logger.String("documentId", task.DocumentID))
	if err := w.pipeline.Process(ctx, task.DocumentID); err != nil {
		w.logger.Error("Ingestion task failed",
			logger.String("documentId", task.DocumentID),
			logger.Error(err),
		)
		return err
	}
	return nil
}

func (w *IngestWorker) Start(ctx context.Context) error {
	go func() {
		if err := w.server.Run(w.mux); err != nil {
			w.logger.Error("Worker server stopped", logger.Error(err))
		}
	}()
	go func() {
		select {
		case <-ctx.Done():
			w.Stop()
		case <-w.stopChan:
		}
	}()
	return nil
}

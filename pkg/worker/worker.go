// Package worker runs background ingestion consumers on asynq.
package worker

import (
	"context"
	"sync"

	"github.com/hibiken/asynq"

	"github.com/docuchat/docuchat/pkg/logger"
)

type Worker interface {
	Start(ctx context.Context) error
	Stop() error
}

type Config struct {
	RedisAddr   string
	RedisDB     int
	Concurrency int
	QueueName   string
}

type BaseWorker struct {
	server   *asynq.Server
	mux      *asynq.ServeMux
	logger   logger.Logger
	stopChan chan struct{}
	stopOnce sync.Once
}

// Stop shuts the server down. Safe to call more than once: both the signal
// handler and the context watcher in Start may race to stop the worker.
func (w *BaseWorker) Stop() error {
	w.stopOnce.Do(func() {
		close(w.stopChan)
		w.server.Shutdown()
	})
	return nil
}

package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/docuchat/docuchat/config"
	"github.com/docuchat/docuchat/internal/ai"
	"github.com/docuchat/docuchat/internal/chunker"
	"github.com/docuchat/docuchat/internal/extract"
	"github.com/docuchat/docuchat/internal/ingest"
	"github.com/docuchat/docuchat/internal/store"
	"github.com/docuchat/docuchat/internal/vectorstore/qdrant"
	"github.com/docuchat/docuchat/pkg/logger"
	"github.com/docuchat/docuchat/pkg/queue"
	"github.com/docuchat/docuchat/pkg/storage/minio"
	"github.com/docuchat/docuchat/pkg/worker"
)

func main() {
	log, err := logger.NewLogger(
		logger.WithLevel("info"),
		logger.WithEncoding("json"),
		logger.WithOutputPaths([]string{"stdout", "logs/worker.log"}),
	)
	if err != nil {
		panic(err)
	}
	defer log.Sync()

	cfg := config.Get()

	db, err := store.Open(cfg.Server.SQLitePath)
	if err != nil {
		log.Error("Failed to open database", logger.Error(err))
		os.Exit(1)
	}
	defer db.Close()

	files, err := minio.NewMinioStorage(cfg.Minio, log)
	if err != nil {
		log.Error("Failed to initialize object storage", logger.Error(err))
		os.Exit(1)
	}

	vectors := qdrant.NewStorage(qdrant.Config{
		URL:        cfg.Qdrant.URL,
		APIKey:     cfg.Qdrant.APIKey,
		Collection: cfg.Qdrant.Collection,
		Timeout:    cfg.Qdrant.Timeout,
	})

	embedder := ai.NewOpenAIEmbedder(ai.EmbedderConfig{
		BaseURL: cfg.Model.BaseURL,
		APIKey:  cfg.Model.APIKey,
		Model:   cfg.Model.EmbeddingModel,
		Timeout: cfg.Model.Timeout,
	})
	generator := ai.NewClient(ai.ClientConfig{
		BaseURL: cfg.Model.BaseURL,
		APIKey:  cfg.Model.APIKey,
		Model:   cfg.Model.ChatModel,
		Timeout: cfg.Model.Timeout,
	})

	q := queue.NewAsynqQueue(queue.Config{
		RedisAddr:      cfg.Redis.Addr,
		RedisDB:        cfg.Redis.DB,
		QueueName:      cfg.Ingest.QueueName,
		ProcessTimeout: cfg.Ingest.ProcessTimeout,
	})
	defer q.Close()

	pipeline := ingest.NewPipeline(
		db, files,
		extract.NewExtractor(),
		ai.NewClassifier(generator),
		chunker.New(cfg.Ingest.ChunkSize, cfg.Ingest.ChunkOverlap),
		embedder, vectors, q, log,
		ingest.Options{
			EmbedWorkers: cfg.Ingest.EmbedWorkers,
			StageTimeout: cfg.Ingest.StageTimeout,
		},
	)

	ingestWorker := worker.NewIngestWorker(&worker.Config{
		RedisAddr:   cfg.Redis.Addr,
		RedisDB:     cfg.Redis.DB,
		Concurrency: cfg.Ingest.Concurrency,
		QueueName:   cfg.Ingest.QueueName,
	}, pipeline, log)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	if err := ingestWorker.Start(ctx); err != nil {
		log.Error("Failed to start worker", logger.Error(err))
		os.Exit(1)
	}

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
	<-sigChan

	log.Info("Shutting down worker...")
	ingestWorker.Stop()
	log.Info("Worker stopped")
}

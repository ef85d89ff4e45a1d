package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/docuchat/docuchat/api/handlers"
	"github.com/docuchat/docuchat/api/routes"
	"github.com/docuchat/docuchat/config"
	"github.com/docuchat/docuchat/internal/ai"
	"github.com/docuchat/docuchat/internal/retrieval"
	"github.com/docuchat/docuchat/internal/service/chat"
	"github.com/docuchat/docuchat/internal/service/document"
	"github.com/docuchat/docuchat/internal/store"
	"github.com/docuchat/docuchat/internal/vectorstore/qdrant"
	"github.com/docuchat/docuchat/pkg/logger"
	"github.com/docuchat/docuchat/pkg/queue"
	"github.com/docuchat/docuchat/pkg/storage/minio"
)

func main() {
	log, err := logger.NewLogger(
		logger.WithLevel("info"),
		logger.WithEncoding("json"),
		logger.WithOutputPaths([]string{"stdout", "logs/app.log"}),
	)
	if err != nil {
		panic(err)
	}
	defer log.Sync()

	cfg := config.Get()

	db, err := store.Open(cfg.Server.SQLitePath)
	if err != nil {
		log.Fatal("Failed to open database", logger.Error(err))
	}
	defer db.Close()

	files, err := minio.NewMinioStorage(cfg.Minio, log)
	if err != nil {
		log.Fatal("Failed to initialize object storage", logger.Error(err))
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

	retriever := retrieval.NewEngine(embedder, vectors, db, log, retrieval.Options{
		TopK:     cfg.Chat.TopK,
		MinScore: cfg.Chat.MinScore,
	})
	docService := document.NewService(db, files, q, vectors, retriever, log,
		&document.ServiceConfig{MaxFileSize: cfg.Ingest.MaxFileSize})
	chatService := chat.NewService(db, retriever, generator, log, chat.ServiceConfig{
		HistoryMessages: cfg.Chat.HistoryMessages,
		ContextBudget:   cfg.Chat.ContextBudget,
		TopK:            cfg.Chat.TopK,
		GenTimeout:      cfg.Chat.GenTimeout,
	})

	h := handlers.New(docService, chatService, log)
	r := gin.New()
	r.Use(gin.Recovery())
	routes.SetupRoutes(r, h)

	srv := &http.Server{
		Addr:    cfg.Server.Addr,
		Handler: r,
	}

	go func() {
		log.Info("Server starting", logger.String("addr", cfg.Server.Addr))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Error("Server error", logger.Error(err))
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Info("Shutting down server...")
	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer shutdownCancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Error("Server forced to shutdown", logger.Error(err))
	}
}

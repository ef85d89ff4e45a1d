package document

import (
	"context"
	"errors"
	"fmt"
	"io"
	"time"

	"github.com/google/uuid"

	"github.com/docuchat/docuchat/internal/extract"
	"github.com/docuchat/docuchat/internal/models"
	"github.com/docuchat/docuchat/internal/retrieval"
	"github.com/docuchat/docuchat/internal/store"
	"github.com/docuchat/docuchat/internal/vectorstore"
	"github.com/docuchat/docuchat/pkg/logger"
	"github.com/docuchat/docuchat/pkg/queue"
	"github.com/docuchat/docuchat/pkg/storage"
)

type DocumentService struct {
	docs      store.DocumentStore
	files     storage.Storage
	queue     queue.Queue
	vectors   vectorstore.Store
	retriever *retrieval.Engine
	logger    logger.Logger
	config    *ServiceConfig
}

type ServiceConfig struct {
	MaxFileSize int64
}

func NewService(
	docs store.DocumentStore,
	files storage.Storage,
	q queue.Queue,
	vectors vectorstore.Store,
	retriever *retrieval.Engine,
	log logger.Logger,
	cfg *ServiceConfig,
) Service {
	if cfg == nil {
		cfg = &ServiceConfig{MaxFileSize: 10 * 1024 * 1024} // 10MB
	}
	return &DocumentService{
		docs:      docs,
		files:     files,
		queue:     q,
		vectors:   vectors,
		retriever: retriever,
		logger:    log.Named("document"),
		config:    cfg,
	}
}

func (s *DocumentService) Upload(ctx context.Context, req UploadRequest) (*models.Document, error) {
	s.logger.Info("Starting file upload",
		logger.String("filename", req.Filename),
		logger.Int64("size", req.Size),
	)

	format, err := s.validate(req)
	if err != nil {
		s.logger.Warn("File validation failed",
			logger.String("filename", req.Filename),
			logger.Error(err),
		)
		return nil, err
	}

	id := uuid.New().String()
	now := time.Now().UTC()
	doc := &models.Document{
		ID:               id,
		Filename:         id + extensionFor(format),
		OriginalFilename: req.Filename,
		Size:             req.Size,
		Format:           format,
		Status:           models.StatusPending,
		CreatedAt:        now,
		UpdatedAt:        now,
	}

	if _, err := s.files.Store(ctx, io.LimitReader(req.Content, s.config.MaxFileSize), doc.Filename); err != nil {
		return nil, fmt.Errorf("store upload: %w", err)
	}
	if err := s.docs.CreateDocument(ctx, doc); err != nil {
		_ = s.files.Delete(ctx, doc.Filename)
		return nil, fmt.Errorf("create document record: %w", err)
	}
	if err := s.enqueue(ctx, doc.ID); err != nil {
		_ = s.docs.DeleteDocument(ctx, doc.ID)
		_ = s.files.Delete(ctx, doc.Filename)
		return nil, err
	}

	s.logger.Info("Document queued for ingestion", logger.String("documentId", doc.ID))
	return doc, nil
}

func (s *DocumentService) Reprocess(ctx context.Context, id string) (*models.Document, error) {
	ok, err := s.docs.ResetForReprocess(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("reset document: %w", err)
	}
	if !ok {
		doc, err := s.docs.GetDocument(ctx, id)
		if err != nil {
			return nil, err
		}
		if doc.Status == models.StatusProcessing {
			return nil, models.ErrAlreadyProcessing
		}
		// Pending already: the queued run will pick it up.
		return doc, nil
	}

	// Drop stale vectors so a shorter re-ingest cannot leave orphan chunks.
	if err := s.vectors.DeleteByDocument(ctx, id); err != nil {
		s.logger.Error("Failed to clear stale vectors before reprocess",
			logger.String("documentId", id),
			logger.Error(err),
		)
	}
	if err := s.enqueue(ctx, id); err != nil {
		return nil, err
	}
	s.logger.Info("Document re-queued for ingestion", logger.String("documentId", id))
	return s.docs.GetDocument(ctx, id)
}

func (s *DocumentService) enqueue(ctx context.Context, id string) error {
	err := s.queue.Enqueue(ctx, &queue.IngestTask{DocumentID: id})
	if errors.Is(err, queue.ErrDuplicateTask) {
		return models.ErrAlreadyProcessing
	}
	if err != nil {
		return fmt.Errorf("enqueue ingestion: %w", err)
	}
	return nil
}

func (s *DocumentService) Get(ctx context.Context, id string) (*models.Document, error) {
	return s.docs.GetDocument(ctx, id)
}

func (s *DocumentService) List(ctx context.Context, filter store.ListFilter) (*ListResult, error) {
	if filter.Limit <= 0 {
		filter.Limit = 10
	}
	if filter.Limit > 100 {
		filter.Limit = 100
	}
	docs, total, err := s.docs.ListDocuments(ctx, filter)
	if err != nil {
		return nil, fmt.Errorf("list documents: %w", err)
	}
	if docs == nil {
		docs = []models.Document{}
	}
	return &ListResult{Documents: docs, Total: total, Skip: filter.Skip, Limit: filter.Limit}, nil
}

func (s *DocumentService) Delete(ctx context.Context, id string) error {
	doc, err := s.docs.GetDocument(ctx, id)
	if err != nil {
		return err
	}
	// Metadata first: in-flight pipeline runs observe the deletion through
	// their conditional updates and clean up after themselves.
	if err := s.docs.DeleteDocument(ctx, id); err != nil {
		return err
	}
	if err := s.vectors.DeleteByDocument(ctx, id); err != nil {
		s.logger.Error("Failed to remove vectors", logger.String("documentId", id), logger.Error(err))
	}
	if err := s.files.Delete(ctx, doc.Filename); err != nil {
		s.logger.Error("Failed to remove stored file", logger.String("documentId", id), logger.Error(err))
	}
	s.logger.Info("Document deleted", logger.String("documentId", id))
	return nil
}

func (s *DocumentService) Search(ctx context.Context, q retrieval.Query) ([]retrieval.Result, error) {
	return s.retriever.Search(ctx, q)
}

func (s *DocumentService) SupportedExtensions() []string {
	return extract.Extensions()
}

func (s *DocumentService) validate(req UploadRequest) (models.FileFormat, error) {
	if req.Filename == "" {
		return "", fmt.Errorf("%w: missing filename", models.ErrInvalidInput)
	}
	format, ok := extract.FormatForFilename(req.Filename)
	if !ok {
		return "", fmt.Errorf("%w: unsupported file type %q", models.ErrInvalidInput, req.Filename)
	}
	if req.Size <= 0 {
		return "", fmt.Errorf("%w: empty file", models.ErrInvalidInput)
	}
	if req.Size > s.config.MaxFileSize {
		return "", fmt.Errorf("%w: file exceeds %d bytes", models.ErrInvalidInput, s.config.MaxFileSize)
	}
	return format, nil
}

func extensionFor(format models.FileFormat) string {
	switch format {
	case models.FormatPDF:
		return ".pdf"
	case models.FormatDocx:
		return ".docx"
	default:
		return ".txt"
	}
}

package document

import (
	"context"
	"io"

	"github.com/docuchat/docuchat/internal/models"
	"github.com/docuchat/docuchat/internal/retrieval"
	"github.com/docuchat/docuchat/internal/store"
)

// UploadRequest carries one uploaded file into the service.
type UploadRequest struct {
	Filename string
	Size     int64
	Content  io.Reader
}

// ListResult pages document listings.
type ListResult struct {
	Documents []models.Document `json:"documents"`
	Total     int               `json:"total"`
	Skip      int               `json:"skip"`
	Limit     int               `json:"limit"`
}

// Service manages document upload, lifecycle, and search.
type Service interface {
	// Upload validates the file, stores it, and queues ingestion. The
	// returned document is in status pending.
	Upload(ctx context.Context, req UploadRequest) (*models.Document, error)
	// Reprocess re-queues ingestion for a document in a terminal status.
	// Returns ErrAlreadyProcessing when a run is still in flight.
	Reprocess(ctx context.Context, id string) (*models.Document, error)
	Get(ctx context.Context, id string) (*models.Document, error)
	List(ctx context.Context, filter store.ListFilter) (*ListResult, error)
	// Delete removes the document's metadata, stored file, and index vectors.
	Delete(ctx context.Context, id string) error
	// Search runs a semantic query over completed documents.
	Search(ctx context.Context, q retrieval.Query) ([]retrieval.Result, error)
	// SupportedExtensions lists accepted upload extensions.
	SupportedExtensions() []string
}

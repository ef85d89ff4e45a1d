// Package vectorstore indexes chunk embeddings for similarity search.
package vectorstore

import (
	"context"

	"github.com/docuchat/docuchat/internal/models"
)

// Filter narrows a search to chunks with matching payload fields. Zero values
// match everything.
type Filter struct {
	DocumentType string
}

// Hit is one search result with its similarity score.
type Hit struct {
	Chunk models.Chunk
	Score float64
}

// Store is a vector index over document chunks. Upsert is atomic per call:
// either every entry lands or none do.
type Store interface {
	// Init prepares the index for vectors of the given dimension. Calling it
	// again with the same dimension is a no-op.
	Init(ctx context.Context, dimension int) error
	Upsert(ctx context.Context, chunks []models.Chunk) error
	Search(ctx context.Context, vector []float64, topK int, filter Filter) ([]Hit, error)
	// DeleteByDocument removes every chunk belonging to the document. Deleting
	// a document with no chunks is not an error.
	DeleteByDocument(ctx context.Context, documentID string) error
}

// Package storage abstracts where uploaded files live between upload and
// ingestion.
package storage

import (
	"context"
	"io"
)

// Storage stores uploaded file bytes under a key and serves them back to the
// ingestion pipeline.
type Storage interface {
	Store(ctx context.Context, reader io.Reader, key string) (string, error)
	Get(ctx context.Context, key string) (io.ReadCloser, error)
	Delete(ctx context.Context, key string) error
}

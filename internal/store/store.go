// Package store persists document and chat session metadata.
package store

import (
	"context"

	"github.com/docuchat/docuchat/internal/models"
)

// ListFilter narrows and pages document listings.
type ListFilter struct {
	Skip         int
	Limit        int
	DocumentType string
	Status       models.DocumentStatus
}

// DocumentStore persists document metadata and enforces the forward-only
// status lifecycle through conditional updates.
type DocumentStore interface {
	CreateDocument(ctx context.Context, doc *models.Document) error
	GetDocument(ctx context.Context, id string) (*models.Document, error)
	ListDocuments(ctx context.Context, filter ListFilter) ([]models.Document, int, error)
	// MarkProcessing claims a pending document for processing. It reports
	// false when the document is not pending or no longer exists, so
	// terminal documents stay terminal until ResetForReprocess.
	MarkProcessing(ctx context.Context, id string) (bool, error)
	// ResetForReprocess returns a terminal document to pending for a
	// user-initiated re-ingest. False when in flight or missing.
	ResetForReprocess(ctx context.Context, id string) (bool, error)
	// Finalize records classification results and marks the document
	// completed. False when the document was deleted or is not processing.
	Finalize(ctx context.Context, id, documentType string, fields, metadata map[string]any) (bool, error)
	// MarkFailed records a stage failure. False when the document was deleted
	// or is not processing.
	MarkFailed(ctx context.Context, id string, stage models.FailureStage, reason string) (bool, error)
	DeleteDocument(ctx context.Context, id string) error
}

// SessionStore persists chat sessions and their append-only transcripts.
type SessionStore interface {
	CreateSession(ctx context.Context, session *models.ChatSession) error
	GetSession(ctx context.Context, id string) (*models.ChatSession, error)
	ListSessions(ctx context.Context) ([]models.ChatSession, error)
	AppendMessage(ctx context.Context, msg *models.Message) error
	DeleteSession(ctx context.Context, id string) error
}

// Store combines both stores; the sqlite implementation backs both with one
// database handle.
type Store interface {
	DocumentStore
	SessionStore
	Close() error
}

package ingest

import (
	"bytes"
	"context"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/docuchat/docuchat/internal/ai"
	"github.com/docuchat/docuchat/internal/chunker"
	"github.com/docuchat/docuchat/internal/extract"
	"github.com/docuchat/docuchat/internal/models"
	"github.com/docuchat/docuchat/internal/store"
	"github.com/docuchat/docuchat/internal/vectorstore"
	"github.com/docuchat/docuchat/internal/vectorstore/memory"
	"github.com/docuchat/docuchat/pkg/logger"
	"github.com/docuchat/docuchat/pkg/storage/local"
)

// fakeGenerator replies with scripted responses in call order.
type fakeGenerator struct {
	mu      sync.Mutex
	replies []string
	err     error
}

func (f *fakeGenerator) Generate(_ context.Context, _ string) (string, error) {
	if f.err != nil {
		return "", f.err
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	if len(f.replies) == 0 {
		return "", errors.New("no scripted reply")
	}
	r := f.replies[0]
	f.replies = f.replies[1:]
	return r, nil
}

// fakeEmbedder returns deterministic vectors, optionally failing after a set
// number of calls.
type fakeEmbedder struct {
	mu        sync.Mutex
	calls     int
	failAfter int // 0 means never fail
}

func (f *fakeEmbedder) Embed(_ context.Context, text string) ([]float64, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls++
	if f.failAfter > 0 && f.calls > f.failAfter {
		return nil, errors.New("embedding service unavailable")
	}
	return []float64{float64(len(text)), 1, 0}, nil
}

func (f *fakeEmbedder) Dimension() int { return 3 }

type env struct {
	pipeline *Pipeline
	docs     *store.SQLiteStore
	files    *local.LocalStorage
	vectors  *memory.Storage
}

func newEnv(t *testing.T, gen ai.Generator, emb ai.Embedder) *env {
	t.Helper()
	docs, err := store.Open(":memory:")
	if err != nil {
		t.Fatalf("open store: %v", err)
	}
	t.Cleanup(func() { docs.Close() })

	files, err := local.NewLocalStorage(t.TempDir())
	if err != nil {
		t.Fatalf("local storage: %v", err)
	}
	vectors := memory.NewStorage()

	p := NewPipeline(
		docs, files,
		extract.NewExtractor(),
		ai.NewClassifier(gen),
		chunker.New(100, 20),
		emb, vectors, nil,
		logger.NewTestLogger(),
		Options{EmbedWorkers: 2},
	)
	return &env{pipeline: p, docs: docs, files: files, vectors: vectors}
}

func (e *env) upload(t *testing.T, id, text string) {
	t.Helper()
	now := time.Now().UTC()
	doc := &models.Document{
		ID:               id,
		Filename:         id + ".txt",
		OriginalFilename: "notes.txt",
		Size:             int64(len(text)),
		Format:           models.FormatText,
		Status:           models.StatusPending,
		CreatedAt:        now,
		UpdatedAt:        now,
	}
	if _, err := e.files.Store(context.Background(), bytes.NewReader([]byte(text)), doc.Filename); err != nil {
		t.Fatalf("store file: %v", err)
	}
	if err := e.docs.CreateDocument(context.Background(), doc); err != nil {
		t.Fatalf("create document: %v", err)
	}
}

func TestProcessCompletesDocument(t *testing.T) {
	gen := &fakeGenerator{replies: []string{
		"invoice",
		`{"invoice_number": "INV-7", "total_amount": "99.50"}`,
	}}
	e := newEnv(t, gen, &fakeEmbedder{})
	text := strings.Repeat("Invoice line item. ", 30)
	e.upload(t, "doc-1", text)

	if err := e.pipeline.Process(context.Background(), "doc-1"); err != nil {
		t.Fatalf("process: %v", err)
	}

	doc, err := e.docs.GetDocument(context.Background(), "doc-1")
	if err != nil {
		t.Fatalf("get document: %v", err)
	}
	if doc.Status != models.StatusCompleted {
		t.Fatalf("status = %q, want completed (failure: %s %s)", doc.Status, doc.FailureStage, doc.FailureReason)
	}
	if doc.DocumentType != "invoice" {
		t.Errorf("document type = %q, want invoice", doc.DocumentType)
	}
	if doc.ExtractedData["invoice_number"] != "INV-7" {
		t.Errorf("extracted data = %v", doc.ExtractedData)
	}

	hits, err := e.vectors.Search(context.Background(), []float64{1, 1, 0}, 100, vectorstore.Filter{})
	if err != nil {
		t.Fatalf("search: %v", err)
	}
	if len(hits) == 0 {
		t.Error("no chunks indexed")
	}
	for _, h := range hits {
		if h.Chunk.DocumentID != "doc-1" || h.Chunk.DocumentType != "invoice" {
			t.Errorf("chunk payload wrong: %+v", h.Chunk)
		}
	}
}

func TestProcessClassifyFailure(t *testing.T) {
	gen := &fakeGenerator{replies: []string{"I cannot determine the category"}}
	e := newEnv(t, gen, &fakeEmbedder{})
	e.upload(t, "doc-1", "some text")

	if err := e.pipeline.Process(context.Background(), "doc-1"); err != nil {
		t.Fatalf("process: %v", err)
	}

	doc, _ := e.docs.GetDocument(context.Background(), "doc-1")
	if doc.Status != models.StatusFailed {
		t.Fatalf("status = %q, want failed", doc.Status)
	}
	if doc.FailureStage != models.StageClassify {
		t.Errorf("failure stage = %q, want classify", doc.FailureStage)
	}
	// Nothing reached the index.
	hits, _ := e.vectors.Search(context.Background(), []float64{1, 0, 0}, 10, vectorstore.Filter{})
	if len(hits) != 0 {
		t.Errorf("chunks indexed after classify failure: %v", hits)
	}
}

func TestProcessEmbedFailureIsAllOrNothing(t *testing.T) {
	gen := &fakeGenerator{replies: []string{"report", `{"report_title": "Q3"}`}}
	e := newEnv(t, gen, &fakeEmbedder{failAfter: 1})
	e.upload(t, "doc-1", strings.Repeat("Quarterly results paragraph. ", 40))

	if err := e.pipeline.Process(context.Background(), "doc-1"); err != nil {
		t.Fatalf("process: %v", err)
	}

	doc, _ := e.docs.GetDocument(context.Background(), "doc-1")
	if doc.Status != models.StatusFailed || doc.FailureStage != models.StageEmbed {
		t.Fatalf("status=%q stage=%q, want failed/embed", doc.Status, doc.FailureStage)
	}
	hits, _ := e.vectors.Search(context.Background(), []float64{1, 0, 0}, 10, vectorstore.Filter{})
	if len(hits) != 0 {
		t.Errorf("partial chunks indexed: %d", len(hits))
	}
}

func TestProcessExtractFailure(t *testing.T) {
	gen := &fakeGenerator{}
	e := newEnv(t, gen, &fakeEmbedder{})

	// Metadata exists but the file bytes are gone.
	now := time.Now().UTC()
	doc := &models.Document{
		ID: "doc-1", Filename: "doc-1.txt", OriginalFilename: "gone.txt",
		Size: 10, Format: models.FormatText, Status: models.StatusPending,
		CreatedAt: now, UpdatedAt: now,
	}
	if err := e.docs.CreateDocument(context.Background(), doc); err != nil {
		t.Fatalf("create document: %v", err)
	}

	if err := e.pipeline.Process(context.Background(), "doc-1"); err != nil {
		t.Fatalf("process: %v", err)
	}
	got, _ := e.docs.GetDocument(context.Background(), "doc-1")
	if got.Status != models.StatusFailed || got.FailureStage != models.StageExtract {
		t.Errorf("status=%q stage=%q, want failed/extract", got.Status, got.FailureStage)
	}
}

func TestProcessDeletedDocumentIsSkipped(t *testing.T) {
	e := newEnv(t, &fakeGenerator{}, &fakeEmbedder{})
	if err := e.pipeline.Process(context.Background(), "missing"); err != nil {
		t.Errorf("process missing document: %v", err)
	}
}

func TestProcessEmptyTextCompletesWithoutChunks(t *testing.T) {
	gen := &fakeGenerator{replies: []string{"other"}}
	e := newEnv(t, gen, &fakeEmbedder{})
	e.upload(t, "doc-1", "   \n  ")

	if err := e.pipeline.Process(context.Background(), "doc-1"); err != nil {
		t.Fatalf("process: %v", err)
	}
	doc, _ := e.docs.GetDocument(context.Background(), "doc-1")
	if doc.Status != models.StatusCompleted {
		t.Fatalf("status = %q, want completed", doc.Status)
	}
	if doc.Metadata["chunkCount"] != float64(0) {
		t.Errorf("chunkCount = %v, want 0", doc.Metadata["chunkCount"])
	}
}

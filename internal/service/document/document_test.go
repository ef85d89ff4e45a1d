package document

import (
	"bytes"
	"context"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/docuchat/docuchat/internal/models"
	"github.com/docuchat/docuchat/internal/retrieval"
	"github.com/docuchat/docuchat/internal/store"
	"github.com/docuchat/docuchat/internal/vectorstore"
	"github.com/docuchat/docuchat/internal/vectorstore/memory"
	"github.com/docuchat/docuchat/pkg/logger"
	"github.com/docuchat/docuchat/pkg/queue"
	"github.com/docuchat/docuchat/pkg/storage/local"
)

type nullEmbedder struct{}

func (nullEmbedder) Embed(_ context.Context, _ string) ([]float64, error) {
	return []float64{1, 0}, nil
}
func (nullEmbedder) Dimension() int { return 2 }

type testEnv struct {
	svc     Service
	docs    *store.SQLiteStore
	vectors *memory.Storage

	mu     sync.Mutex
	queued []string
}

func newTestEnv(t *testing.T) *testEnv {
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

	e := &testEnv{docs: docs, vectors: memory.NewStorage()}
	q := queue.NewMemoryQueue(func(_ context.Context, task *queue.IngestTask) error {
		e.mu.Lock()
		e.queued = append(e.queued, task.DocumentID)
		e.mu.Unlock()
		return nil
	})
	t.Cleanup(func() { q.Close() })

	retriever := retrieval.NewEngine(nullEmbedder{}, e.vectors, docs, logger.NewTestLogger(), retrieval.Options{TopK: 5})
	e.svc = NewService(docs, files, q, e.vectors, retriever, logger.NewTestLogger(),
		&ServiceConfig{MaxFileSize: 1024})
	return e
}

func TestUploadQueuesPendingDocument(t *testing.T) {
	e := newTestEnv(t)
	doc, err := e.svc.Upload(context.Background(), UploadRequest{
		Filename: "report.txt",
		Size:     11,
		Content:  bytes.NewReader([]byte("hello world")),
	})
	if err != nil {
		t.Fatalf("upload: %v", err)
	}
	if doc.Status != models.StatusPending {
		t.Errorf("status = %q, want pending", doc.Status)
	}
	if doc.Format != models.FormatText {
		t.Errorf("format = %q, want text", doc.Format)
	}
	if doc.OriginalFilename != "report.txt" {
		t.Errorf("original filename = %q", doc.OriginalFilename)
	}

	stored, err := e.docs.GetDocument(context.Background(), doc.ID)
	if err != nil {
		t.Fatalf("get stored: %v", err)
	}
	if stored.Status != models.StatusPending {
		t.Errorf("stored status = %q", stored.Status)
	}
}

func TestUploadRejectsInvalidInput(t *testing.T) {
	e := newTestEnv(t)
	cases := []struct {
		name string
		req  UploadRequest
	}{
		{"unsupported extension", UploadRequest{Filename: "image.png", Size: 10, Content: strings.NewReader("x")}},
		{"empty file", UploadRequest{Filename: "a.txt", Size: 0, Content: strings.NewReader("")}},
		{"oversized file", UploadRequest{Filename: "a.txt", Size: 4096, Content: strings.NewReader("x")}},
		{"missing filename", UploadRequest{Size: 10, Content: strings.NewReader("x")}},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			_, err := e.svc.Upload(context.Background(), tc.req)
			if !errors.Is(err, models.ErrInvalidInput) {
				t.Errorf("err = %v, want ErrInvalidInput", err)
			}
		})
	}
}

func TestReprocessFailedDocument(t *testing.T) {
	e := newTestEnv(t)
	ctx := context.Background()
	doc, err := e.svc.Upload(ctx, UploadRequest{
		Filename: "a.txt", Size: 5, Content: strings.NewReader("hello"),
	})
	if err != nil {
		t.Fatalf("upload: %v", err)
	}

	if ok, _ := e.docs.MarkProcessing(ctx, doc.ID); !ok {
		t.Fatal("mark processing")
	}
	if ok, _ := e.docs.MarkFailed(ctx, doc.ID, models.StageEmbed, "down"); !ok {
		t.Fatal("mark failed")
	}

	got, err := e.svc.Reprocess(ctx, doc.ID)
	if err != nil {
		t.Fatalf("reprocess: %v", err)
	}
	if got.Status != models.StatusPending {
		t.Errorf("status = %q, want pending", got.Status)
	}
}

func TestReprocessWhileProcessing(t *testing.T) {
	e := newTestEnv(t)
	ctx := context.Background()
	doc, err := e.svc.Upload(ctx, UploadRequest{
		Filename: "a.txt", Size: 5, Content: strings.NewReader("hello"),
	})
	if err != nil {
		t.Fatalf("upload: %v", err)
	}
	if ok, _ := e.docs.MarkProcessing(ctx, doc.ID); !ok {
		t.Fatal("mark processing")
	}

	_, err = e.svc.Reprocess(ctx, doc.ID)
	if !errors.Is(err, models.ErrAlreadyProcessing) {
		t.Errorf("err = %v, want ErrAlreadyProcessing", err)
	}
}

func TestReprocessMissingDocument(t *testing.T) {
	e := newTestEnv(t)
	_, err := e.svc.Reprocess(context.Background(), "missing")
	if !errors.Is(err, models.ErrNotFound) {
		t.Errorf("err = %v, want ErrNotFound", err)
	}
}

func TestDeleteRemovesEverything(t *testing.T) {
	e := newTestEnv(t)
	ctx := context.Background()
	doc, err := e.svc.Upload(ctx, UploadRequest{
		Filename: "a.txt", Size: 5, Content: strings.NewReader("hello"),
	})
	if err != nil {
		t.Fatalf("upload: %v", err)
	}

	if err := e.vectors.Init(ctx, 2); err != nil {
		t.Fatalf("init vectors: %v", err)
	}
	err = e.vectors.Upsert(ctx, []models.Chunk{{
		ID: doc.ID + ":0", DocumentID: doc.ID, Text: "hello", Vector: []float64{1, 0},
	}})
	if err != nil {
		t.Fatalf("upsert: %v", err)
	}

	if err := e.svc.Delete(ctx, doc.ID); err != nil {
		t.Fatalf("delete: %v", err)
	}
	if _, err := e.svc.Get(ctx, doc.ID); !errors.Is(err, models.ErrNotFound) {
		t.Errorf("get after delete: %v", err)
	}
	hits, _ := e.vectors.Search(ctx, []float64{1, 0}, 10, vectorstore.Filter{})
	if len(hits) != 0 {
		t.Errorf("vectors remain after delete: %v", hits)
	}
}

func TestDeleteMissingDocument(t *testing.T) {
	e := newTestEnv(t)
	err := e.svc.Delete(context.Background(), "missing")
	if !errors.Is(err, models.ErrNotFound) {
		t.Errorf("err = %v, want ErrNotFound", err)
	}
}

func TestListDefaultsAndCaps(t *testing.T) {
	e := newTestEnv(t)
	ctx := context.Background()
	for i := 0; i < 3; i++ {
		if _, err := e.svc.Upload(ctx, UploadRequest{
			Filename: "a.txt", Size: 5, Content: strings.NewReader("hello"),
		}); err != nil {
			t.Fatalf("upload: %v", err)
		}
		time.Sleep(time.Millisecond)
	}

	res, err := e.svc.List(ctx, store.ListFilter{})
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if res.Total != 3 || len(res.Documents) != 3 {
		t.Errorf("total=%d len=%d, want 3/3", res.Total, len(res.Documents))
	}
	if res.Limit != 10 {
		t.Errorf("default limit = %d, want 10", res.Limit)
	}
}

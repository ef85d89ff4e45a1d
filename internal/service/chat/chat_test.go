package chat

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/docuchat/docuchat/internal/models"
	"github.com/docuchat/docuchat/internal/retrieval"
	"github.com/docuchat/docuchat/internal/store"
	"github.com/docuchat/docuchat/internal/vectorstore/memory"
	"github.com/docuchat/docuchat/pkg/logger"
)

type stubGenerator struct {
	mu      sync.Mutex
	reply   string
	err     error
	prompts []string
}

func (g *stubGenerator) Generate(_ context.Context, prompt string) (string, error) {
	g.mu.Lock()
	g.prompts = append(g.prompts, prompt)
	g.mu.Unlock()
	return g.reply, g.err
}

type stubEmbedder struct {
	vec []float64
	err error
}

func (e *stubEmbedder) Embed(_ context.Context, _ string) ([]float64, error) {
	return e.vec, e.err
}
func (e *stubEmbedder) Dimension() int { return len(e.vec) }

type chatEnv struct {
	svc     Service
	gen     *stubGenerator
	docs    *store.SQLiteStore
	vectors *memory.Storage
}

func newChatEnv(t *testing.T, emb *stubEmbedder) *chatEnv {
	t.Helper()
	db, err := store.Open(":memory:")
	if err != nil {
		t.Fatalf("open store: %v", err)
	}
	t.Cleanup(func() { db.Close() })

	vectors := memory.NewStorage()
	gen := &stubGenerator{reply: "The answer is in the report."}
	retriever := retrieval.NewEngine(emb, vectors, db, logger.NewTestLogger(), retrieval.Options{TopK: 5})
	svc := NewService(db, retriever, gen, logger.NewTestLogger(), ServiceConfig{})
	return &chatEnv{svc: svc, gen: gen, docs: db, vectors: vectors}
}

// seedDocument indexes one completed document with a single chunk.
func (e *chatEnv) seedDocument(t *testing.T, id string, vec []float64) {
	t.Helper()
	ctx := context.Background()
	now := time.Now().UTC()
	doc := &models.Document{
		ID: id, Filename: id + ".txt", OriginalFilename: "report.txt",
		Size: 1, Format: models.FormatText, Status: models.StatusPending,
		CreatedAt: now, UpdatedAt: now,
	}
	if err := e.docs.CreateDocument(ctx, doc); err != nil {
		t.Fatalf("create document: %v", err)
	}
	if ok, _ := e.docs.MarkProcessing(ctx, id); !ok {
		t.Fatal("mark processing")
	}
	if ok, _ := e.docs.Finalize(ctx, id, "report", nil, nil); !ok {
		t.Fatal("finalize")
	}
	if err := e.vectors.Init(ctx, len(vec)); err != nil {
		t.Fatalf("init vectors: %v", err)
	}
	err := e.vectors.Upsert(ctx, []models.Chunk{{
		ID: id + ":0", DocumentID: id, Text: "Revenue grew 12% in Q3.",
		DocumentType: "report", Filename: "report.txt", Vector: vec,
	}})
	if err != nil {
		t.Fatalf("upsert: %v", err)
	}
}

func TestSendMessageGroundedAnswer(t *testing.T) {
	e := newChatEnv(t, &stubEmbedder{vec: []float64{1, 0}})
	e.seedDocument(t, "d1", []float64{1, 0})
	ctx := context.Background()

	session, err := e.svc.CreateSession(ctx, "")
	if err != nil {
		t.Fatalf("create session: %v", err)
	}
	if session.Title != "New Chat" {
		t.Errorf("title = %q, want default", session.Title)
	}

	msg, err := e.svc.SendMessage(ctx, session.ID, "How did revenue do?")
	if err != nil {
		t.Fatalf("send message: %v", err)
	}
	if msg.Role != models.RoleAssistant {
		t.Errorf("role = %q", msg.Role)
	}
	if msg.Confidence != confidenceWithSources {
		t.Errorf("confidence = %v, want %v", msg.Confidence, confidenceWithSources)
	}
	if len(msg.Sources) == 0 {
		t.Fatal("no sources attached")
	}
	if msg.Sources[0].Filename != "report.txt" {
		t.Errorf("source = %+v", msg.Sources[0])
	}

	// The prompt carried the retrieved excerpt.
	if len(e.gen.prompts) == 0 || !strings.Contains(e.gen.prompts[0], "Revenue grew 12%") {
		t.Error("prompt missing document excerpt")
	}

	got, err := e.svc.GetSession(ctx, session.ID)
	if err != nil {
		t.Fatalf("get session: %v", err)
	}
	if len(got.Messages) != 2 {
		t.Fatalf("messages = %d, want 2", len(got.Messages))
	}
	if got.Messages[0].Role != models.RoleUser || got.Messages[1].Role != models.RoleAssistant {
		t.Error("message order is not user then assistant")
	}
}

func TestPromptContextBudgetCountsRunes(t *testing.T) {
	db, err := store.Open(":memory:")
	if err != nil {
		t.Fatalf("open store: %v", err)
	}
	t.Cleanup(func() { db.Close() })

	vectors := memory.NewStorage()
	gen := &stubGenerator{reply: "ok"}
	emb := &stubEmbedder{vec: []float64{1, 0}}
	retriever := retrieval.NewEngine(emb, vectors, db, logger.NewTestLogger(), retrieval.Options{TopK: 5})
	svc := NewService(db, retriever, gen, logger.NewTestLogger(), ServiceConfig{ContextBudget: 10})

	ctx := context.Background()
	now := time.Now().UTC()
	doc := &models.Document{
		ID: "d1", Filename: "d1.txt", OriginalFilename: "notes.txt",
		Size: 1, Format: models.FormatText, Status: models.StatusPending,
		CreatedAt: now, UpdatedAt: now,
	}
	if err := db.CreateDocument(ctx, doc); err != nil {
		t.Fatalf("create document: %v", err)
	}
	if ok, _ := db.MarkProcessing(ctx, doc.ID); !ok {
		t.Fatal("mark processing")
	}
	if ok, _ := db.Finalize(ctx, doc.ID, "report", nil, nil); !ok {
		t.Fatal("finalize")
	}
	if err := vectors.Init(ctx, 2); err != nil {
		t.Fatalf("init vectors: %v", err)
	}
	// Multibyte text: 10 runes of it span far more than 10 bytes.
	long := "売上高は前年比で大幅に増加しました"
	err = vectors.Upsert(ctx, []models.Chunk{
		{ID: "d1:0", DocumentID: "d1", Index: 0, Text: long, DocumentType: "report", Filename: "notes.txt", Vector: []float64{1, 0}},
		{ID: "d1:1", DocumentID: "d1", Index: 1, Text: "second excerpt", DocumentType: "report", Filename: "notes.txt", Vector: []float64{0.9, 0.1}},
	})
	if err != nil {
		t.Fatalf("upsert: %v", err)
	}

	session, err := svc.CreateSession(ctx, "t")
	if err != nil {
		t.Fatalf("create session: %v", err)
	}
	if _, err := svc.SendMessage(ctx, session.ID, "How did revenue do?"); err != nil {
		t.Fatalf("send message: %v", err)
	}

	if len(gen.prompts) == 0 {
		t.Fatal("no prompt captured")
	}
	prompt := gen.prompts[0]
	wantExcerpt := string([]rune(long)[:10])
	if !strings.Contains(prompt, wantExcerpt) {
		t.Errorf("prompt missing truncated excerpt %q", wantExcerpt)
	}
	if strings.Contains(prompt, long) {
		t.Error("prompt carries the full excerpt past the budget")
	}
	if strings.Contains(prompt, "[2]") {
		t.Error("second excerpt included after budget was spent")
	}
}

func TestConcurrentMessagesKeepTranscriptOrder(t *testing.T) {
	e := newChatEnv(t, &stubEmbedder{vec: []float64{1, 0}})
	ctx := context.Background()

	first, err := e.svc.CreateSession(ctx, "first")
	if err != nil {
		t.Fatalf("create session: %v", err)
	}
	second, err := e.svc.CreateSession(ctx, "second")
	if err != nil {
		t.Fatalf("create session: %v", err)
	}

	const senders = 8
	var wg sync.WaitGroup
	for i := 0; i < senders; i++ {
		wg.Add(2)
		go func(i int) {
			defer wg.Done()
			if _, err := e.svc.SendMessage(ctx, first.ID, fmt.Sprintf("question a-%d", i)); err != nil {
				t.Errorf("first session send %d: %v", i, err)
			}
		}(i)
		go func(i int) {
			defer wg.Done()
			if _, err := e.svc.SendMessage(ctx, second.ID, fmt.Sprintf("question b-%d", i)); err != nil {
				t.Errorf("second session send %d: %v", i, err)
			}
		}(i)
	}
	wg.Wait()

	for name, id := range map[string]string{"a": first.ID, "b": second.ID} {
		got, err := e.svc.GetSession(ctx, id)
		if err != nil {
			t.Fatalf("get session %s: %v", name, err)
		}
		if len(got.Messages) != 2*senders {
			t.Fatalf("session %s: messages = %d, want %d", name, len(got.Messages), 2*senders)
		}
		for j, m := range got.Messages {
			want := models.RoleUser
			if j%2 == 1 {
				want = models.RoleAssistant
			}
			if m.Role != want {
				t.Errorf("session %s: message %d role = %q, want %q", name, j, m.Role, want)
			}
			if m.Role == models.RoleUser && !strings.HasPrefix(m.Content, "question "+name+"-") {
				t.Errorf("session %s: foreign message %q", name, m.Content)
			}
		}
	}
}

func TestSendMessageRetrievalDownDegrades(t *testing.T) {
	e := newChatEnv(t, &stubEmbedder{err: errors.New("connection refused")})
	ctx := context.Background()

	session, _ := e.svc.CreateSession(ctx, "t")
	msg, err := e.svc.SendMessage(ctx, session.ID, "hello?")
	if err != nil {
		t.Fatalf("send message: %v", err)
	}
	if len(msg.Sources) != 0 {
		t.Errorf("sources = %v, want none", msg.Sources)
	}
	if msg.Confidence != confidenceWithoutSources {
		t.Errorf("confidence = %v, want %v", msg.Confidence, confidenceWithoutSources)
	}
}

func TestSendMessageGenerationFailureFallsBack(t *testing.T) {
	e := newChatEnv(t, &stubEmbedder{vec: []float64{1, 0}})
	e.gen.err = errors.New("model unavailable")
	ctx := context.Background()

	session, _ := e.svc.CreateSession(ctx, "t")
	msg, err := e.svc.SendMessage(ctx, session.ID, "hello?")
	if err != nil {
		t.Fatalf("send message: %v", err)
	}
	if msg.Content != fallbackAnswer {
		t.Errorf("content = %q, want fallback", msg.Content)
	}
	if msg.Confidence != 0 {
		t.Errorf("confidence = %v, want 0", msg.Confidence)
	}

	// Both messages persisted despite the failure.
	got, _ := e.svc.GetSession(ctx, session.ID)
	if len(got.Messages) != 2 {
		t.Errorf("messages = %d, want 2", len(got.Messages))
	}
}

func TestSendMessageValidation(t *testing.T) {
	e := newChatEnv(t, &stubEmbedder{vec: []float64{1, 0}})
	ctx := context.Background()

	session, _ := e.svc.CreateSession(ctx, "t")
	if _, err := e.svc.SendMessage(ctx, session.ID, "   "); !errors.Is(err, models.ErrInvalidInput) {
		t.Errorf("empty message err = %v, want ErrInvalidInput", err)
	}
	if _, err := e.svc.SendMessage(ctx, "missing", "hi"); !errors.Is(err, models.ErrNotFound) {
		t.Errorf("missing session err = %v, want ErrNotFound", err)
	}
}

func TestSuggestionsParsing(t *testing.T) {
	e := newChatEnv(t, &stubEmbedder{vec: []float64{1, 0}})
	ctx := context.Background()

	session, _ := e.svc.CreateSession(ctx, "t")

	// Empty session returns the defaults without calling the model.
	got, err := e.svc.Suggestions(ctx, session.ID, "")
	if err != nil {
		t.Fatalf("suggestions: %v", err)
	}
	if len(got) != len(defaultSuggestions) {
		t.Errorf("suggestions = %v, want defaults", got)
	}

	if _, err := e.svc.SendMessage(ctx, session.ID, "What is in the report?"); err != nil {
		t.Fatalf("send message: %v", err)
	}
	e.gen.reply = "1. What were the key findings?\n2) Who wrote the report?\n3. When was it published?"
	got, err = e.svc.Suggestions(ctx, session.ID, "")
	if err != nil {
		t.Fatalf("suggestions: %v", err)
	}
	want := []string{"What were the key findings?", "Who wrote the report?", "When was it published?"}
	if len(got) != len(want) {
		t.Fatalf("suggestions = %v, want %v", got, want)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Errorf("suggestion[%d] = %q, want %q", i, got[i], want[i])
		}
	}
}

func TestSummary(t *testing.T) {
	e := newChatEnv(t, &stubEmbedder{vec: []float64{1, 0}})
	ctx := context.Background()

	session, _ := e.svc.CreateSession(ctx, "t")
	if _, err := e.svc.Summary(ctx, session.ID); !errors.Is(err, models.ErrInvalidInput) {
		t.Errorf("empty session summary err = %v, want ErrInvalidInput", err)
	}

	if _, err := e.svc.SendMessage(ctx, session.ID, "hello"); err != nil {
		t.Fatalf("send message: %v", err)
	}
	e.gen.reply = "  The user greeted the assistant.  "
	summary, err := e.svc.Summary(ctx, session.ID)
	if err != nil {
		t.Fatalf("summary: %v", err)
	}
	if summary != "The user greeted the assistant." {
		t.Errorf("summary = %q", summary)
	}
}

func TestDeleteSession(t *testing.T) {
	e := newChatEnv(t, &stubEmbedder{vec: []float64{1, 0}})
	ctx := context.Background()

	session, _ := e.svc.CreateSession(ctx, "t")
	if err := e.svc.DeleteSession(ctx, session.ID); err != nil {
		t.Fatalf("delete: %v", err)
	}
	if _, err := e.svc.GetSession(ctx, session.ID); !errors.Is(err, models.ErrNotFound) {
		t.Errorf("get after delete: %v", err)
	}
	if err := e.svc.DeleteSession(ctx, session.ID); !errors.Is(err, models.ErrNotFound) {
		t.Errorf("double delete err = %v, want ErrNotFound", err)
	}
}

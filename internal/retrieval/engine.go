// Package retrieval answers semantic queries against the chunk index.
package retrieval

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/docuchat/docuchat/internal/ai"
	"github.com/docuchat/docuchat/internal/models"
	"github.com/docuchat/docuchat/internal/store"
	"github.com/docuchat/docuchat/internal/vectorstore"
	"github.com/docuchat/docuchat/pkg/logger"
)

// Result is one retrieved chunk with its similarity score.
type Result struct {
	Chunk models.Chunk `json:"chunk"`
	Score float64      `json:"score"`
}

// Query parameterizes a retrieval call. Zero values fall back to the engine's
// configured defaults.
type Query struct {
	Text         string
	TopK         int
	MinScore     float64
	DocumentType string
}

// Options configures engine defaults.
type Options struct {
	TopK     int
	MinScore float64
}

// oversample asks the index for more hits than requested so that results
// filtered out for belonging to deleted or unfinished documents still leave
// enough survivors.
const oversample = 3

// Engine embeds queries and searches the vector index, returning only chunks
// whose documents are still completed.
type Engine struct {
	embedder ai.Embedder
	vectors  vectorstore.Store
	docs     store.DocumentStore
	logger   logger.Logger
	opts     Options
}

func NewEngine(embedder ai.Embedder, vectors vectorstore.Store, docs store.DocumentStore, log logger.Logger, opts Options) *Engine {
	if opts.TopK <= 0 {
		opts.TopK = 5
	}
	return &Engine{
		embedder: embedder,
		vectors:  vectors,
		docs:     docs,
		logger:   log.Named("retrieval"),
		opts:     opts,
	}
}

// Search returns the best-matching chunks for the query text. An unreachable
// embedding service or vector index yields ErrRetrievalUnavailable so callers
// can degrade instead of failing outright.
func (e *Engine) Search(ctx context.Context, q Query) ([]Result, error) {
	// An empty query matches nothing rather than failing.
	if strings.TrimSpace(q.Text) == "" {
		return []Result{}, nil
	}
	topK := q.TopK
	if topK <= 0 {
		topK = e.opts.TopK
	}
	minScore := q.MinScore
	if minScore == 0 {
		minScore = e.opts.MinScore
	}

	vec, err := e.embedder.Embed(ctx, q.Text)
	if err != nil {
		e.logger.Error("Failed to embed query", logger.Error(err))
		return nil, fmt.Errorf("%w: embed query: %v", models.ErrRetrievalUnavailable, err)
	}

	hits, err := e.vectors.Search(ctx, vec, topK*oversample, vectorstore.Filter{DocumentType: q.DocumentType})
	if err != nil {
		e.logger.Error("Vector search failed", logger.Error(err))
		return nil, fmt.Errorf("%w: vector search: %v", models.ErrRetrievalUnavailable, err)
	}

	results, err := e.filter(ctx, hits, minScore)
	if err != nil {
		return nil, err
	}
	if len(results) > topK {
		results = results[:topK]
	}
	return results, nil
}

// filter drops hits below the score threshold and hits whose document is no
// longer completed, then orders by score with document recency as tiebreak.
func (e *Engine) filter(ctx context.Context, hits []vectorstore.Hit, minScore float64) ([]Result, error) {
	type scored struct {
		Result
		createdAt time.Time
	}

	docCreated := make(map[string]time.Time)
	visible := make(map[string]bool)
	results := make([]scored, 0, len(hits))
	for _, h := range hits {
		if h.Score < minScore {
			continue
		}
		ok, seen := visible[h.Chunk.DocumentID]
		if !seen {
			doc, err := e.docs.GetDocument(ctx, h.Chunk.DocumentID)
			switch {
			case err == models.ErrNotFound:
				ok = false
			case err != nil:
				return nil, fmt.Errorf("check document status: %w", err)
			default:
				ok = doc.Status == models.StatusCompleted
				docCreated[h.Chunk.DocumentID] = doc.CreatedAt
			}
			visible[h.Chunk.DocumentID] = ok
		}
		if !ok {
			continue
		}
		results = append(results, scored{
			Result:    Result{Chunk: h.Chunk, Score: h.Score},
			createdAt: docCreated[h.Chunk.DocumentID],
		})
	}

	sort.SliceStable(results, func(i, j int) bool {
		if results[i].Score != results[j].Score {
			return results[i].Score > results[j].Score
		}
		return results[i].createdAt.After(results[j].createdAt)
	})

	out := make([]Result, len(results))
	for i, r := range results {
		out[i] = r.Result
	}
	return out, nil
}

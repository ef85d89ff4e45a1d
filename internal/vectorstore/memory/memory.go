// Package memory is an in-process vector index using brute-force cosine
// similarity. It backs tests and single-node deployments without Qdrant.
package memory

import (
	"context"
	"fmt"
	"math"
	"sort"
	"sync"

	"github.com/docuchat/docuchat/internal/models"
	"github.com/docuchat/docuchat/internal/vectorstore"
)

type Storage struct {
	mu        sync.RWMutex
	dimension int
	chunks    map[string]models.Chunk
}

func NewStorage() *Storage {
	return &Storage{chunks: make(map[string]models.Chunk)}
}

func (s *Storage) Init(_ context.Context, dimension int) error {
	if dimension <= 0 {
		return fmt.Errorf("invalid dimension %d", dimension)
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.dimension != 0 && s.dimension != dimension {
		return fmt.Errorf("dimension mismatch: index has %d, got %d", s.dimension, dimension)
	}
	s.dimension = dimension
	return nil
}

func (s *Storage) Upsert(_ context.Context, chunks []models.Chunk) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, c := range chunks {
		if s.dimension != 0 && len(c.Vector) != s.dimension {
			return fmt.Errorf("chunk %s: vector dimension %d, index has %d", c.ID, len(c.Vector), s.dimension)
		}
	}
	for _, c := range chunks {
		s.chunks[c.ID] = c
	}
	return nil
}

func (s *Storage) Search(_ context.Context, vector []float64, topK int, filter vectorstore.Filter) ([]vectorstore.Hit, error) {
	if topK <= 0 {
		topK = 5
	}
	s.mu.RLock()
	defer s.mu.RUnlock()

	hits := make([]vectorstore.Hit, 0, len(s.chunks))
	for _, c := range s.chunks {
		if filter.DocumentType != "" && c.DocumentType != filter.DocumentType {
			continue
		}
		hits = append(hits, vectorstore.Hit{Chunk: c, Score: cosine(vector, c.Vector)})
	}
	sort.Slice(hits, func(i, j int) bool { return hits[i].Score > hits[j].Score })
	if len(hits) > topK {
		hits = hits[:topK]
	}
	return hits, nil
}

func (s *Storage) DeleteByDocument(_ context.Context, documentID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for id, c := range s.chunks {
		if c.DocumentID == documentID {
			delete(s.chunks, id)
		}
	}
	return nil
}

func cosine(a, b []float64) float64 {
	if len(a) != len(b) || len(a) == 0 {
		return 0
	}
	var dot, na, nb float64
	for i := range a {
		dot += a[i] * b[i]
		na += a[i] * a[i]
		nb += b[i] * b[i]
	}
	if na == 0 || nb == 0 {
		return 0
	}
	return dot / (math.Sqrt(na) * math.Sqrt(nb))
}

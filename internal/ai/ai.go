// Package ai wraps the external model capabilities: text generation,
// embeddings, and document classification built on top of generation.
// Adapters return errors instead of panicking so callers can apply their own
// failure policy; every call honors the passed context.
package ai

import "context"

// Generator produces a text completion for a prompt.
type Generator interface {
	Generate(ctx context.Context, prompt string) (string, error)
}

// Embedder converts text into a fixed-dimension vector. Query and chunk
// embeddings must come from the same implementation so the spaces match.
type Embedder interface {
	Embed(ctx context.Context, text string) ([]float64, error)
	Dimension() int
}

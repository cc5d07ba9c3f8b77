// Package embeddings defines the embedding capability used to turn profile
// descriptions and conversation summaries into vectors.
package embeddings

import (
	"context"
	"errors"
	"fmt"
)

var (
	// ErrEmbedding is returned when a provider could not produce an embedding.
	ErrEmbedding = errors.New("embedding failed")

	// ErrDimensions is returned when a provider's vector has the wrong length.
	ErrDimensions = errors.New("embedding has unexpected dimensions")
)

// Embedder provides text embedding capabilities.
type Embedder interface {
	// Embed converts text into a vector embedding.
	Embed(ctx context.Context, text string) ([]float32, error)

	// Close releases any resources held by the embedder.
	Close() error
}

// Checked wraps an Embedder and rejects vectors whose length is not dims.
type Checked struct {
	Embedder
	dims int
}

// WithDimensions returns e guarded by a dimensionality check. A dims of 0
// returns e unchanged.
func WithDimensions(e Embedder, dims int) Embedder {
	if dims <= 0 {
		return e
	}
	return &Checked{Embedder: e, dims: dims}
}

func (c *Checked) Embed(ctx context.Context, text string) ([]float32, error) {
	v, err := c.Embedder.Embed(ctx, text)
	if err != nil {
		return nil, err
	}
	if len(v) != c.dims {
		return nil, fmt.Errorf("%w: got %d, want %d", ErrDimensions, len(v), c.dims)
	}
	return v, nil
}

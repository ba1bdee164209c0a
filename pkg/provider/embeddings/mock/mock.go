// Package mock provides a mock implementation of the embeddings.Provider
// interface for testing.
package mock

import (
	"context"
	"hash/fnv"
	"sync"

	"github.com/voxhall/telesuite/pkg/provider/embeddings"
)

var _ embeddings.Provider = (*Provider)(nil)

// Provider is a deterministic mock embeddings.Provider. When no canned
// vectors are configured, it derives a stable pseudo-embedding from the text
// hash so similarity comparisons are repeatable across test runs.
type Provider struct {
	mu sync.Mutex

	// Vectors maps input text to a canned embedding. Texts not present fall
	// back to the hash-derived vector.
	Vectors map[string][]float32
	// EmbedErr, when non-nil, is returned by Embed and EmbedBatch.
	EmbedErr error
	// Dim is the vector size; defaults to 8 when zero.
	Dim int
	// Model is the reported model ID; defaults to "mock-embed" when empty.
	Model string

	embedCalls []string
}

// Embed returns the canned or hash-derived vector for text.
func (p *Provider) Embed(ctx context.Context, text string) ([]float32, error) {
	p.mu.Lock()
	p.embedCalls = append(p.embedCalls, text)
	err := p.EmbedErr
	canned, ok := p.Vectors[text]
	dim := p.dimLocked()
	p.mu.Unlock()

	if err != nil {
		return nil, err
	}
	if ok {
		return canned, nil
	}
	return hashVector(text, dim), nil
}

// EmbedBatch embeds each text in order.
func (p *Provider) EmbedBatch(ctx context.Context, texts []string) ([][]float32, error) {
	out := make([][]float32, 0, len(texts))
	for _, t := range texts {
		v, err := p.Embed(ctx, t)
		if err != nil {
			return nil, err
		}
		out = append(out, v)
	}
	return out, nil
}

// Dimensions reports the configured vector size.
func (p *Provider) Dimensions() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.dimLocked()
}

// ModelID reports the configured model ID.
func (p *Provider) ModelID() string {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.Model == "" {
		return "mock-embed"
	}
	return p.Model
}

// EmbedCalls returns a copy of all texts passed to Embed.
func (p *Provider) EmbedCalls() []string {
	p.mu.Lock()
	defer p.mu.Unlock()
	out := make([]string, len(p.embedCalls))
	copy(out, p.embedCalls)
	return out
}

func (p *Provider) dimLocked() int {
	if p.Dim == 0 {
		return 8
	}
	return p.Dim
}

// hashVector derives a stable unit-ish vector from the FNV hash of text.
func hashVector(text string, dim int) []float32 {
	h := fnv.New64a()
	h.Write([]byte(text))
	seed := h.Sum64()
	out := make([]float32, dim)
	for i := range out {
		seed = seed*6364136223846793005 + 1442695040888963407
		out[i] = float32(int32(seed>>33)) / float32(1<<31)
	}
	return out
}

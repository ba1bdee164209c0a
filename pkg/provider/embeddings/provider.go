// Package embeddings defines the interface for text embedding providers used
// to index knowledge base entries and rank them against caller questions.
package embeddings

import "context"

// Provider generates vector embeddings for text.
type Provider interface {
	// Embed generates an embedding vector for a single text.
	Embed(ctx context.Context, text string) ([]float32, error)

	// EmbedBatch generates embedding vectors for multiple texts in one
	// request. The result preserves input order.
	EmbedBatch(ctx context.Context, texts []string) ([][]float32, error)

	// Dimensions reports the embedding vector size for the configured model.
	Dimensions() int

	// ModelID identifies the underlying embedding model. Stored alongside
	// indexed vectors so a model change invalidates stale embeddings.
	ModelID() string
}

// Package knowledge holds the product knowledge base and builds the
// knowledge context string injected into every gateway turn.
//
// Two retrieval paths exist and are merged by the [Assembler]:
//
//  1. Keyword ranking — token overlap between the caller's question and an
//     entry's title/keywords, the original ranking the voice agent shipped
//     with.
//  2. Semantic ranking — cosine distance over entry embeddings, available
//     when a Postgres store with pgvector is configured.
package knowledge

import (
	"context"
	"time"
)

// Entry is one knowledge base article scoped to a product.
type Entry struct {
	ID       string
	Product  string
	Title    string
	Content  string
	Keywords []string

	// Embedding is the vector for semantic retrieval; nil when the entry has
	// not been indexed yet.
	Embedding []float32
	// EmbeddingModel records which model produced Embedding so a model change
	// invalidates stale vectors.
	EmbeddingModel string

	UpdatedAt time.Time
}

// Result is one retrieved entry with its relevance score. Higher is more
// relevant for both retrieval paths; semantic distances are converted to
// similarities before ranking.
type Result struct {
	Entry Entry
	Score float64
}

// Store is the knowledge base persistence boundary.
type Store interface {
	// Upsert inserts or fully replaces an entry by ID.
	Upsert(ctx context.Context, entry Entry) error

	// Delete removes an entry. Deleting a missing ID is not an error.
	Delete(ctx context.Context, id string) error

	// ListByProduct returns all entries for a product.
	ListByProduct(ctx context.Context, product string) ([]Entry, error)

	// SearchKeyword ranks a product's entries against the query by keyword
	// overlap and returns up to topK results, best first. Entries with zero
	// overlap are omitted.
	SearchKeyword(ctx context.Context, product, query string, topK int) ([]Result, error)

	// SearchSemantic ranks a product's entries by similarity to the query
	// embedding and returns up to topK results, best first. Stores without a
	// vector index return an empty slice.
	SearchSemantic(ctx context.Context, product string, embedding []float32, topK int) ([]Result, error)
}

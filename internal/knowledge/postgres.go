package knowledge

import (
	"context"
	"fmt"
	"strings"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	pgvector "github.com/pgvector/pgvector-go"
	pgxvec "github.com/pgvector/pgvector-go/pgx"
)

var _ Store = (*PostgresStore)(nil)

const ddlEntries = `
CREATE TABLE IF NOT EXISTS kb_entries (
    id              TEXT         PRIMARY KEY,
    product         TEXT         NOT NULL,
    title           TEXT         NOT NULL,
    content         TEXT         NOT NULL,
    keywords        TEXT[]       NOT NULL DEFAULT '{}',
    embedding       VECTOR(%d),
    embedding_model TEXT         NOT NULL DEFAULT '',
    updated_at      TIMESTAMPTZ  NOT NULL DEFAULT now()
);

CREATE INDEX IF NOT EXISTS idx_kb_entries_product
    ON kb_entries (product);

CREATE INDEX IF NOT EXISTS idx_kb_entries_fts
    ON kb_entries USING GIN (to_tsvector('english', title || ' ' || content));
`

// PostgresStore is the pgx-backed knowledge Store with a pgvector column for
// semantic retrieval. All methods are safe for concurrent use.
type PostgresStore struct {
	pool *pgxpool.Pool
}

// NewPostgresStore establishes a connection pool to the database at dsn,
// registers pgvector types on every connection, and ensures the schema
// exists. embeddingDimensions must match the configured embeddings provider
// (e.g. 1536 for text-embedding-3-small); changing it after the first
// migration requires a manual schema change.
func NewPostgresStore(ctx context.Context, dsn string, embeddingDimensions int) (*PostgresStore, error) {
	cfg, err := pgxpool.ParseConfig(dsn)
	if err != nil {
		return nil, fmt.Errorf("knowledge store: parse dsn: %w", err)
	}
	cfg.AfterConnect = func(ctx context.Context, conn *pgx.Conn) error {
		return pgxvec.RegisterTypes(ctx, conn)
	}

	pool, err := pgxpool.NewWithConfig(ctx, cfg)
	if err != nil {
		return nil, fmt.Errorf("knowledge store: create pool: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("knowledge store: ping: %w", err)
	}

	if _, err := pool.Exec(ctx, "CREATE EXTENSION IF NOT EXISTS vector"); err != nil {
		pool.Close()
		return nil, fmt.Errorf("knowledge store: create pgvector extension: %w", err)
	}
	if _, err := pool.Exec(ctx, fmt.Sprintf(ddlEntries, embeddingDimensions)); err != nil {
		pool.Close()
		return nil, fmt.Errorf("knowledge store: migrate: %w", err)
	}

	return &PostgresStore{pool: pool}, nil
}

// Close releases all connections held by the underlying pool.
func (s *PostgresStore) Close() {
	s.pool.Close()
}

// Ping verifies database connectivity. Used by the readiness endpoint.
func (s *PostgresStore) Ping(ctx context.Context) error {
	return s.pool.Ping(ctx)
}

// Upsert implements [Store].
func (s *PostgresStore) Upsert(ctx context.Context, entry Entry) error {
	const q = `
		INSERT INTO kb_entries
		    (id, product, title, content, keywords, embedding, embedding_model, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, now())
		ON CONFLICT (id) DO UPDATE SET
		    product         = EXCLUDED.product,
		    title           = EXCLUDED.title,
		    content         = EXCLUDED.content,
		    keywords        = EXCLUDED.keywords,
		    embedding       = EXCLUDED.embedding,
		    embedding_model = EXCLUDED.embedding_model,
		    updated_at      = now()`

	var vec any
	if len(entry.Embedding) > 0 {
		vec = pgvector.NewVector(entry.Embedding)
	}
	_, err := s.pool.Exec(ctx, q,
		entry.ID,
		entry.Product,
		entry.Title,
		entry.Content,
		entry.Keywords,
		vec,
		entry.EmbeddingModel,
	)
	if err != nil {
		return fmt.Errorf("knowledge store: upsert: %w", err)
	}
	return nil
}

// Delete implements [Store].
func (s *PostgresStore) Delete(ctx context.Context, id string) error {
	if _, err := s.pool.Exec(ctx, "DELETE FROM kb_entries WHERE id = $1", id); err != nil {
		return fmt.Errorf("knowledge store: delete: %w", err)
	}
	return nil
}

// ListByProduct implements [Store].
func (s *PostgresStore) ListByProduct(ctx context.Context, product string) ([]Entry, error) {
	const q = `
		SELECT id, product, title, content, keywords, embedding, embedding_model, updated_at
		FROM   kb_entries
		WHERE  lower(product) = lower($1)
		ORDER  BY id`

	rows, err := s.pool.Query(ctx, q, product)
	if err != nil {
		return nil, fmt.Errorf("knowledge store: list: %w", err)
	}
	entries, err := pgx.CollectRows(rows, scanEntry)
	if err != nil {
		return nil, fmt.Errorf("knowledge store: scan rows: %w", err)
	}
	return entries, nil
}

// SearchKeyword implements [Store] using Postgres full-text search ranked by
// ts_rank over title and content.
func (s *PostgresStore) SearchKeyword(ctx context.Context, product, query string, topK int) ([]Result, error) {
	if strings.TrimSpace(query) == "" || topK <= 0 {
		return nil, nil
	}

	const q = `
		SELECT id, product, title, content, keywords, embedding, embedding_model, updated_at,
		       ts_rank(to_tsvector('english', title || ' ' || content),
		               plainto_tsquery('english', $2)) AS rank
		FROM   kb_entries
		WHERE  lower(product) = lower($1)
		  AND  to_tsvector('english', title || ' ' || content) @@ plainto_tsquery('english', $2)
		ORDER  BY rank DESC
		LIMIT  $3`

	rows, err := s.pool.Query(ctx, q, product, query, topK)
	if err != nil {
		return nil, fmt.Errorf("knowledge store: keyword search: %w", err)
	}
	results, err := pgx.CollectRows(rows, scanResult)
	if err != nil {
		return nil, fmt.Errorf("knowledge store: scan rows: %w", err)
	}
	return results, nil
}

// SearchSemantic implements [Store] using pgvector cosine distance. Scores
// are returned as similarities (1 - distance) so higher is better, matching
// the keyword path.
func (s *PostgresStore) SearchSemantic(ctx context.Context, product string, embedding []float32, topK int) ([]Result, error) {
	if len(embedding) == 0 || topK <= 0 {
		return nil, nil
	}

	const q = `
		SELECT id, product, title, content, keywords, embedding, embedding_model, updated_at,
		       1 - (embedding <=> $2) AS similarity
		FROM   kb_entries
		WHERE  lower(product) = lower($1)
		  AND  embedding IS NOT NULL
		ORDER  BY embedding <=> $2
		LIMIT  $3`

	rows, err := s.pool.Query(ctx, q, product, pgvector.NewVector(embedding), topK)
	if err != nil {
		return nil, fmt.Errorf("knowledge store: semantic search: %w", err)
	}
	results, err := pgx.CollectRows(rows, scanResult)
	if err != nil {
		return nil, fmt.Errorf("knowledge store: scan rows: %w", err)
	}
	return results, nil
}

func scanEntry(row pgx.CollectableRow) (Entry, error) {
	var (
		e   Entry
		vec *pgvector.Vector
	)
	if err := row.Scan(&e.ID, &e.Product, &e.Title, &e.Content, &e.Keywords, &vec, &e.EmbeddingModel, &e.UpdatedAt); err != nil {
		return Entry{}, err
	}
	if vec != nil {
		e.Embedding = vec.Slice()
	}
	return e, nil
}

func scanResult(row pgx.CollectableRow) (Result, error) {
	var (
		r   Result
		vec *pgvector.Vector
	)
	if err := row.Scan(
		&r.Entry.ID,
		&r.Entry.Product,
		&r.Entry.Title,
		&r.Entry.Content,
		&r.Entry.Keywords,
		&vec,
		&r.Entry.EmbeddingModel,
		&r.Entry.UpdatedAt,
		&r.Score,
	); err != nil {
		return Result{}, err
	}
	if vec != nil {
		r.Entry.Embedding = vec.Slice()
	}
	return r, nil
}

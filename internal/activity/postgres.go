package activity

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

var _ Store = (*PostgresStore)(nil)

const ddlActivity = `
CREATE TABLE IF NOT EXISTS activity_entries (
    id             TEXT         PRIMARY KEY,
    kind           TEXT         NOT NULL,
    product        TEXT         NOT NULL DEFAULT '',
    agent_name     TEXT         NOT NULL DEFAULT '',
    user_name      TEXT         NOT NULL DEFAULT '',
    transcript     TEXT         NOT NULL DEFAULT '',
    audio_ref      TEXT         NOT NULL DEFAULT '',
    score          DOUBLE PRECISION NOT NULL DEFAULT 0,
    score_category TEXT         NOT NULL DEFAULT '',
    created_at     TIMESTAMPTZ  NOT NULL DEFAULT now(),
    updated_at     TIMESTAMPTZ  NOT NULL DEFAULT now()
);

CREATE INDEX IF NOT EXISTS idx_activity_entries_created_at
    ON activity_entries (created_at DESC);
`

// PostgresStore is the pgx-backed activity Store.
// All methods are safe for concurrent use.
type PostgresStore struct {
	pool *pgxpool.Pool
}

// NewPostgresStore connects to the database at dsn and ensures the schema
// exists.
func NewPostgresStore(ctx context.Context, dsn string) (*PostgresStore, error) {
	pool, err := pgxpool.New(ctx, dsn)
	if err != nil {
		return nil, fmt.Errorf("activity store: create pool: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("activity store: ping: %w", err)
	}
	if _, err := pool.Exec(ctx, ddlActivity); err != nil {
		pool.Close()
		return nil, fmt.Errorf("activity store: migrate: %w", err)
	}
	return &PostgresStore{pool: pool}, nil
}

// Close releases all connections held by the underlying pool.
func (s *PostgresStore) Close() {
	s.pool.Close()
}

// Log implements [Store].
func (s *PostgresStore) Log(ctx context.Context, entry Entry) (string, error) {
	id := uuid.NewString()
	const q = `
		INSERT INTO activity_entries
		    (id, kind, product, agent_name, user_name, transcript, audio_ref, score, score_category)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)`

	_, err := s.pool.Exec(ctx, q,
		id,
		string(entry.Kind),
		entry.Product,
		entry.AgentName,
		entry.UserName,
		entry.Transcript,
		entry.AudioRef,
		entry.Score,
		entry.ScoreCategory,
	)
	if err != nil {
		return "", fmt.Errorf("activity store: log: %w", err)
	}
	return id, nil
}

// Update implements [Store].
func (s *PostgresStore) Update(ctx context.Context, id string, patch Patch) error {
	sets := []string{"updated_at = now()"}
	args := []any{id}
	next := func(v any) string {
		args = append(args, v)
		return fmt.Sprintf("$%d", len(args))
	}

	if patch.Transcript != nil {
		sets = append(sets, "transcript = "+next(*patch.Transcript))
	}
	if patch.AudioRef != nil {
		sets = append(sets, "audio_ref = "+next(*patch.AudioRef))
	}
	if patch.Score != nil {
		sets = append(sets, "score = "+next(*patch.Score))
	}
	if patch.ScoreCategory != nil {
		sets = append(sets, "score_category = "+next(*patch.ScoreCategory))
	}

	q := fmt.Sprintf("UPDATE activity_entries SET %s WHERE id = $1", strings.Join(sets, ", "))
	tag, err := s.pool.Exec(ctx, q, args...)
	if err != nil {
		return fmt.Errorf("activity store: update: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

// Get implements [Store].
func (s *PostgresStore) Get(ctx context.Context, id string) (*Entry, error) {
	const q = `
		SELECT id, kind, product, agent_name, user_name, transcript, audio_ref,
		       score, score_category, created_at, updated_at
		FROM   activity_entries
		WHERE  id = $1`

	rows, err := s.pool.Query(ctx, q, id)
	if err != nil {
		return nil, fmt.Errorf("activity store: get: %w", err)
	}
	entry, err := pgx.CollectOneRow(rows, scanActivityEntry)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("activity store: scan: %w", err)
	}
	return &entry, nil
}

// List implements [Store].
func (s *PostgresStore) List(ctx context.Context, limit int) ([]Entry, error) {
	const q = `
		SELECT id, kind, product, agent_name, user_name, transcript, audio_ref,
		       score, score_category, created_at, updated_at
		FROM   activity_entries
		ORDER  BY created_at DESC
		LIMIT  $1`

	rows, err := s.pool.Query(ctx, q, limit)
	if err != nil {
		return nil, fmt.Errorf("activity store: list: %w", err)
	}
	entries, err := pgx.CollectRows(rows, scanActivityEntry)
	if err != nil {
		return nil, fmt.Errorf("activity store: scan rows: %w", err)
	}
	return entries, nil
}

func scanActivityEntry(row pgx.CollectableRow) (Entry, error) {
	var (
		e    Entry
		kind string
	)
	if err := row.Scan(
		&e.ID,
		&kind,
		&e.Product,
		&e.AgentName,
		&e.UserName,
		&e.Transcript,
		&e.AudioRef,
		&e.Score,
		&e.ScoreCategory,
		&e.CreatedAt,
		&e.UpdatedAt,
	); err != nil {
		return Entry{}, err
	}
	e.Kind = Kind(kind)
	return e, nil
}

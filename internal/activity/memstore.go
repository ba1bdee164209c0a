package activity

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
)

var _ Store = (*MemStore)(nil)

// MemStore is an in-memory activity Store. Safe for concurrent use.
type MemStore struct {
	mu      sync.RWMutex
	entries map[string]Entry
}

// NewMemStore creates an empty in-memory activity store.
func NewMemStore() *MemStore {
	return &MemStore{entries: make(map[string]Entry)}
}

// Log implements [Store].
func (s *MemStore) Log(ctx context.Context, entry Entry) (string, error) {
	now := time.Now()
	entry.ID = uuid.NewString()
	entry.CreatedAt = now
	entry.UpdatedAt = now

	s.mu.Lock()
	s.entries[entry.ID] = entry
	s.mu.Unlock()
	return entry.ID, nil
}

// Update implements [Store].
func (s *MemStore) Update(ctx context.Context, id string, patch Patch) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	entry, ok := s.entries[id]
	if !ok {
		return ErrNotFound
	}
	if patch.Transcript != nil {
		entry.Transcript = *patch.Transcript
	}
	if patch.AudioRef != nil {
		entry.AudioRef = *patch.AudioRef
	}
	if patch.Score != nil {
		entry.Score = *patch.Score
	}
	if patch.ScoreCategory != nil {
		entry.ScoreCategory = *patch.ScoreCategory
	}
	entry.UpdatedAt = time.Now()
	s.entries[id] = entry
	return nil
}

// Get implements [Store].
func (s *MemStore) Get(ctx context.Context, id string) (*Entry, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	entry, ok := s.entries[id]
	if !ok {
		return nil, ErrNotFound
	}
	return &entry, nil
}

// List implements [Store].
func (s *MemStore) List(ctx context.Context, limit int) ([]Entry, error) {
	s.mu.RLock()
	out := make([]Entry, 0, len(s.entries))
	for _, e := range s.entries {
		out = append(out, e)
	}
	s.mu.RUnlock()

	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.After(out[j].CreatedAt) })
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

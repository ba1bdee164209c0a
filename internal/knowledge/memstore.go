package knowledge

import (
	"context"
	"math"
	"sort"
	"strings"
	"sync"
)

var _ Store = (*MemStore)(nil)

// MemStore is an in-memory Store. It supports both retrieval paths: keyword
// overlap over title/keywords/content and brute-force cosine similarity over
// entry embeddings. Safe for concurrent use.
type MemStore struct {
	mu      sync.RWMutex
	entries map[string]Entry
}

// NewMemStore creates an empty in-memory knowledge store.
func NewMemStore() *MemStore {
	return &MemStore{entries: make(map[string]Entry)}
}

// Upsert implements [Store].
func (s *MemStore) Upsert(ctx context.Context, entry Entry) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.entries[entry.ID] = entry
	return nil
}

// Delete implements [Store].
func (s *MemStore) Delete(ctx context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.entries, id)
	return nil
}

// ListByProduct implements [Store].
func (s *MemStore) ListByProduct(ctx context.Context, product string) ([]Entry, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []Entry
	for _, e := range s.entries {
		if strings.EqualFold(e.Product, product) {
			out = append(out, e)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

// SearchKeyword implements [Store]. The score of an entry is the fraction of
// query tokens found in its title, keywords or content, with title and
// keyword hits weighted double.
func (s *MemStore) SearchKeyword(ctx context.Context, product, query string, topK int) ([]Result, error) {
	tokens := queryTokens(query)
	if len(tokens) == 0 || topK <= 0 {
		return nil, nil
	}

	s.mu.RLock()
	defer s.mu.RUnlock()

	var results []Result
	for _, e := range s.entries {
		if !strings.EqualFold(e.Product, product) {
			continue
		}
		if score := keywordScore(e, tokens); score > 0 {
			results = append(results, Result{Entry: e, Score: score})
		}
	}

	sort.Slice(results, func(i, j int) bool {
		if results[i].Score != results[j].Score {
			return results[i].Score > results[j].Score
		}
		return results[i].Entry.ID < results[j].Entry.ID
	})
	if len(results) > topK {
		results = results[:topK]
	}
	return results, nil
}

// SearchSemantic implements [Store] via brute-force cosine similarity.
func (s *MemStore) SearchSemantic(ctx context.Context, product string, embedding []float32, topK int) ([]Result, error) {
	if len(embedding) == 0 || topK <= 0 {
		return nil, nil
	}

	s.mu.RLock()
	defer s.mu.RUnlock()

	var results []Result
	for _, e := range s.entries {
		if !strings.EqualFold(e.Product, product) || len(e.Embedding) != len(embedding) {
			continue
		}
		if sim := cosineSimilarity(embedding, e.Embedding); sim > 0 {
			results = append(results, Result{Entry: e, Score: sim})
		}
	}

	sort.Slice(results, func(i, j int) bool {
		if results[i].Score != results[j].Score {
			return results[i].Score > results[j].Score
		}
		return results[i].Entry.ID < results[j].Entry.ID
	})
	if len(results) > topK {
		results = results[:topK]
	}
	return results, nil
}

// queryTokens lowercases and splits a query, dropping one-character noise.
func queryTokens(query string) []string {
	fields := strings.Fields(strings.ToLower(query))
	out := fields[:0]
	for _, f := range fields {
		f = strings.Trim(f, ".,!?\"'()")
		if len(f) > 1 {
			out = append(out, f)
		}
	}
	return out
}

// keywordScore rates one entry against the query tokens. Title and keyword
// hits count double; the result is normalized by token count so longer
// queries do not inflate scores.
func keywordScore(e Entry, tokens []string) float64 {
	title := strings.ToLower(e.Title)
	content := strings.ToLower(e.Content)
	keywords := make([]string, len(e.Keywords))
	for i, k := range e.Keywords {
		keywords[i] = strings.ToLower(k)
	}

	var score float64
	for _, tok := range tokens {
		switch {
		case strings.Contains(title, tok):
			score += 2
		case containsToken(keywords, tok):
			score += 2
		case strings.Contains(content, tok):
			score++
		}
	}
	return score / float64(len(tokens))
}

func containsToken(keywords []string, tok string) bool {
	for _, k := range keywords {
		if strings.Contains(k, tok) {
			return true
		}
	}
	return false
}

// cosineSimilarity computes the cosine similarity of two equal-length vectors.
func cosineSimilarity(a, b []float32) float64 {
	var dot, normA, normB float64
	for i := range a {
		dot += float64(a[i]) * float64(b[i])
		normA += float64(a[i]) * float64(a[i])
		normB += float64(b[i]) * float64(b[i])
	}
	if normA == 0 || normB == 0 {
		return 0
	}
	return dot / (math.Sqrt(normA) * math.Sqrt(normB))
}

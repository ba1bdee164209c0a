package knowledge

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"golang.org/x/sync/errgroup"

	"github.com/voxhall/telesuite/pkg/provider/embeddings"
)

const (
	defaultTopK      = 4
	defaultMaxChars  = 4000
	entrySeparator   = "\n\n---\n\n"
	semanticMinScore = 0.2
)

// Assembler builds the knowledge context string for one gateway turn. The
// keyword and semantic retrieval paths run concurrently; results are merged
// by score with duplicates removed, then rendered into a bounded string.
//
// The embeddings provider is optional — without one the assembler degrades to
// keyword-only retrieval.
type Assembler struct {
	store    Store
	embedder embeddings.Provider
	logger   *slog.Logger
	topK     int
	maxChars int
}

// AssemblerOption is a functional option for [NewAssembler].
type AssemblerOption func(*Assembler)

// WithTopK sets how many results each retrieval path contributes. Default 4.
func WithTopK(k int) AssemblerOption {
	return func(a *Assembler) { a.topK = k }
}

// WithMaxChars bounds the rendered context string. Default 4000.
func WithMaxChars(n int) AssemblerOption {
	return func(a *Assembler) { a.maxChars = n }
}

// NewAssembler creates an Assembler over the given store. embedder may be nil
// for keyword-only retrieval.
func NewAssembler(store Store, embedder embeddings.Provider, logger *slog.Logger, opts ...AssemblerOption) *Assembler {
	if logger == nil {
		logger = slog.Default()
	}
	a := &Assembler{
		store:    store,
		embedder: embedder,
		logger:   logger.With("component", "knowledge"),
		topK:     defaultTopK,
		maxChars: defaultMaxChars,
	}
	for _, o := range opts {
		o(a)
	}
	return a
}

// Assemble retrieves and renders the knowledge context for one caller
// question. An empty query or a product with no matching entries yields an
// empty string, which the gateway treats as "no context available".
func (a *Assembler) Assemble(ctx context.Context, product, query string) (string, error) {
	if strings.TrimSpace(query) == "" {
		return "", nil
	}

	var keywordResults, semanticResults []Result

	eg, egCtx := errgroup.WithContext(ctx)

	eg.Go(func() error {
		results, err := a.store.SearchKeyword(egCtx, product, query, a.topK)
		if err != nil {
			return fmt.Errorf("knowledge: keyword search: %w", err)
		}
		keywordResults = results
		return nil
	})

	if a.embedder != nil {
		eg.Go(func() error {
			vec, err := a.embedder.Embed(egCtx, query)
			if err != nil {
				// Semantic retrieval is an enrichment; losing it must not
				// fail the turn.
				a.logger.Warn("embedding query failed, keyword-only context", "error", err)
				return nil
			}
			results, err := a.store.SearchSemantic(egCtx, product, vec, a.topK)
			if err != nil {
				a.logger.Warn("semantic search failed, keyword-only context", "error", err)
				return nil
			}
			semanticResults = results
			return nil
		})
	}

	if err := eg.Wait(); err != nil {
		return "", err
	}

	merged := mergeResults(keywordResults, semanticResults)
	if len(merged) == 0 {
		return "", nil
	}
	return a.render(merged), nil
}

// mergeResults combines both result sets, deduplicating by entry ID and
// keeping the higher score. Low-similarity semantic hits are dropped so a
// near-empty index does not inject noise.
func mergeResults(keyword, semantic []Result) []Result {
	byID := make(map[string]Result, len(keyword)+len(semantic))
	var order []string

	add := func(r Result) {
		existing, ok := byID[r.Entry.ID]
		if !ok {
			byID[r.Entry.ID] = r
			order = append(order, r.Entry.ID)
			return
		}
		if r.Score > existing.Score {
			byID[r.Entry.ID] = r
		}
	}

	for _, r := range keyword {
		add(r)
	}
	for _, r := range semantic {
		if r.Score >= semanticMinScore {
			add(r)
		}
	}

	out := make([]Result, 0, len(order))
	for _, id := range order {
		out = append(out, byID[id])
	}
	return out
}

// render flattens results into the context string, stopping before the
// character budget is exceeded. At least one entry is always included, its
// content truncated if necessary.
func (a *Assembler) render(results []Result) string {
	var b strings.Builder
	for i, r := range results {
		block := fmt.Sprintf("[%s]\n%s", r.Entry.Title, r.Entry.Content)
		if i > 0 && b.Len()+len(entrySeparator)+len(block) > a.maxChars {
			break
		}
		if i > 0 {
			b.WriteString(entrySeparator)
		}
		b.WriteString(block)
	}
	s := b.String()
	if len(s) > a.maxChars {
		s = s[:a.maxChars]
	}
	return s
}

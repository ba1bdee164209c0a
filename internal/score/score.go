// Package score rates a finished call transcript. The rating is produced by
// an LLM asked for a structured JSON verdict, then normalized into a 0–5
// score with a categorical label.
package score

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/voxhall/telesuite/pkg/provider/llm"
)

// Request carries everything the scorer needs for one call.
type Request struct {
	Product        string
	AgentName      string
	Transcript     string
	ProductContext string
}

// Result is the normalized score for one call.
type Result struct {
	// OverallScore is in [0, 5].
	OverallScore float64 `json:"overallScore"`
	// Category is the label derived from OverallScore, e.g. "Good".
	Category string `json:"category"`
	// Summary is the model's one-paragraph justification.
	Summary string `json:"summary,omitempty"`
}

// Scorer rates call transcripts.
type Scorer interface {
	Score(ctx context.Context, req Request) (*Result, error)
}

// ErrNoTranscript is returned when the request transcript is empty.
var ErrNoTranscript = errors.New("score: transcript is empty")

const defaultTimeout = 30 * time.Second

var _ Scorer = (*LLMScorer)(nil)

// LLMScorer implements Scorer on top of an llm.Provider.
type LLMScorer struct {
	provider llm.Provider
	logger   *slog.Logger
	timeout  time.Duration
}

// New creates an LLM-backed scorer.
func New(provider llm.Provider, logger *slog.Logger) (*LLMScorer, error) {
	if provider == nil {
		return nil, errors.New("score: provider must not be nil")
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &LLMScorer{
		provider: provider,
		logger:   logger.With("component", "score"),
		timeout:  defaultTimeout,
	}, nil
}

// Score implements [Scorer].
func (s *LLMScorer) Score(ctx context.Context, req Request) (*Result, error) {
	if strings.TrimSpace(req.Transcript) == "" {
		return nil, ErrNoTranscript
	}

	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	resp, err := s.provider.Complete(ctx, llm.CompletionRequest{
		SystemPrompt: systemPrompt,
		Messages: []llm.Message{{
			Role:    llm.RoleUser,
			Content: buildPrompt(req),
		}},
		Temperature: 0.2,
	})
	if err != nil {
		return nil, fmt.Errorf("score: completion: %w", err)
	}

	result, err := parseResult(resp.Content)
	if err != nil {
		return nil, err
	}

	s.logger.Debug("call scored",
		"product", req.Product,
		"score", result.OverallScore,
		"category", result.Category,
	)
	return result, nil
}

const systemPrompt = `You are a strict telesales QA reviewer. Rate the agent's performance on the transcript.
Reply with a single JSON object and nothing else:
{"overallScore": number, "summary": string}
overallScore is between 0 and 5 (decimals allowed). summary is one short paragraph.`

func buildPrompt(req Request) string {
	var b strings.Builder
	fmt.Fprintf(&b, "Product: %s\nAgent: %s\n", req.Product, req.AgentName)
	if req.ProductContext != "" {
		b.WriteString("\n[Product context]\n")
		b.WriteString(req.ProductContext)
		b.WriteString("\n")
	}
	b.WriteString("\n[Transcript]\n")
	b.WriteString(req.Transcript)
	return b.String()
}

// parseResult extracts and normalizes the model verdict. Scores outside
// [0, 5] are clamped rather than rejected.
func parseResult(content string) (*Result, error) {
	raw := extractJSON(content)
	if raw == "" {
		return nil, fmt.Errorf("score: no JSON object in model reply")
	}
	var result Result
	if err := json.Unmarshal([]byte(raw), &result); err != nil {
		return nil, fmt.Errorf("score: parse model reply: %w", err)
	}
	if result.OverallScore < 0 {
		result.OverallScore = 0
	} else if result.OverallScore > 5 {
		result.OverallScore = 5
	}
	result.Category = Categorize(result.OverallScore)
	return &result, nil
}

// Categorize maps a 0–5 score onto its label band.
func Categorize(score float64) string {
	switch {
	case score >= 4.5:
		return "Excellent"
	case score >= 3.5:
		return "Good"
	case score >= 2.5:
		return "Average"
	case score >= 1.5:
		return "Poor"
	default:
		return "Very Poor"
	}
}

// extractJSON returns the first balanced top-level JSON object in s, or "".
func extractJSON(s string) string {
	start := strings.IndexByte(s, '{')
	if start < 0 {
		return ""
	}
	depth := 0
	inString := false
	escaped := false
	for i := start; i < len(s); i++ {
		c := s[i]
		if inString {
			switch {
			case escaped:
				escaped = false
			case c == '\\':
				escaped = true
			case c == '"':
				inString = false
			}
			continue
		}
		switch c {
		case '"':
			inString = true
		case '{':
			depth++
		case '}':
			depth--
			if depth == 0 {
				return s[start : i+1]
			}
		}
	}
	return ""
}

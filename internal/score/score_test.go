package score_test

import (
	"context"
	"errors"
	"testing"

	"github.com/voxhall/telesuite/internal/score"
	"github.com/voxhall/telesuite/pkg/provider/llm"
	llmmock "github.com/voxhall/telesuite/pkg/provider/llm/mock"
)

func TestScore_ParsesVerdict(t *testing.T) {
	t.Parallel()
	mock := &llmmock.Provider{
		CompleteResponse: &llm.CompletionResponse{
			Content: `{"overallScore": 4.2, "summary": "Strong close, weak discovery."}`,
		},
	}
	s, err := score.New(mock, nil)
	if err != nil {
		t.Fatalf("New: %v", err)
	}

	result, err := s.Score(context.Background(), score.Request{
		Product:    "FiberMax 500",
		AgentName:  "Priya",
		Transcript: "AI: Hello\nUser: Hi",
	})
	if err != nil {
		t.Fatalf("Score: %v", err)
	}
	if result.OverallScore != 4.2 {
		t.Errorf("OverallScore = %v, want 4.2", result.OverallScore)
	}
	if result.Category != "Good" {
		t.Errorf("Category = %q, want Good", result.Category)
	}
	if result.Summary == "" {
		t.Error("Summary should be carried through")
	}
}

func TestScore_ClampsOutOfRange(t *testing.T) {
	t.Parallel()
	mock := &llmmock.Provider{
		CompleteResponse: &llm.CompletionResponse{Content: `{"overallScore": 11}`},
	}
	s, _ := score.New(mock, nil)

	result, err := s.Score(context.Background(), score.Request{Transcript: "x"})
	if err != nil {
		t.Fatalf("Score: %v", err)
	}
	if result.OverallScore != 5 {
		t.Errorf("OverallScore = %v, want clamped 5", result.OverallScore)
	}
	if result.Category != "Excellent" {
		t.Errorf("Category = %q, want Excellent", result.Category)
	}
}

func TestScore_EmptyTranscript(t *testing.T) {
	t.Parallel()
	s, _ := score.New(&llmmock.Provider{}, nil)
	if _, err := s.Score(context.Background(), score.Request{Transcript: "  "}); !errors.Is(err, score.ErrNoTranscript) {
		t.Errorf("err = %v, want ErrNoTranscript", err)
	}
}

func TestScore_UnparseableReply(t *testing.T) {
	t.Parallel()
	mock := &llmmock.Provider{
		CompleteResponse: &llm.CompletionResponse{Content: "four out of five, maybe"},
	}
	s, _ := score.New(mock, nil)
	if _, err := s.Score(context.Background(), score.Request{Transcript: "x"}); err == nil {
		t.Error("expected error for non-JSON verdict")
	}
}

func TestCategorize(t *testing.T) {
	t.Parallel()
	cases := []struct {
		score float64
		want  string
	}{
		{5, "Excellent"},
		{4.5, "Excellent"},
		{4, "Good"},
		{3, "Average"},
		{2, "Poor"},
		{1, "Very Poor"},
		{0, "Very Poor"},
	}
	for _, tc := range cases {
		if got := score.Categorize(tc.score); got != tc.want {
			t.Errorf("Categorize(%v) = %q, want %q", tc.score, got, tc.want)
		}
	}
}

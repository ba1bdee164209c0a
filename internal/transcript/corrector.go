// Package transcript post-processes final STT transcripts before they reach
// the AI gateway. The single stage is phonetic vocabulary alignment: product
// and agent names the STT engine is likely to mangle are snapped back to
// their canonical spelling.
package transcript

import (
	"strings"

	"github.com/voxhall/telesuite/internal/transcript/phonetic"
)

// Correction records one replacement applied to a transcript.
type Correction struct {
	Original   string
	Corrected  string
	Confidence float64
}

// Result is a corrected transcript with its change list.
type Result struct {
	Original    string
	Corrected   string
	Corrections []Correction
}

// Matcher aligns one word or phrase against a known vocabulary.
// [phonetic.Matcher] is the production implementation.
type Matcher interface {
	Match(word string, vocabulary []string) (corrected string, confidence float64, matched bool)
}

// Corrector applies vocabulary alignment to final transcripts. The vocabulary
// is fixed at construction: the product names and agent names of one call
// campaign. Safe for concurrent use.
type Corrector struct {
	matcher    Matcher
	vocabulary []string
	maxWords   int
}

// NewCorrector builds a Corrector over the given vocabulary. A nil matcher
// defaults to [phonetic.New]. An empty vocabulary yields a pass-through
// corrector.
func NewCorrector(matcher Matcher, vocabulary []string) *Corrector {
	if matcher == nil {
		matcher = phonetic.New()
	}
	vocab := make([]string, 0, len(vocabulary))
	for _, v := range vocabulary {
		if strings.TrimSpace(v) != "" {
			vocab = append(vocab, v)
		}
	}
	return &Corrector{
		matcher:    matcher,
		vocabulary: vocab,
		maxWords:   maxWordCount(vocab),
	}
}

// Correct aligns text against the vocabulary and returns the corrected
// transcript. At each token position, n-gram windows are tried from the
// longest vocabulary entry down to a single word; the longest match wins so
// multi-word product names take precedence over partial single-word matches.
func (c *Corrector) Correct(text string) *Result {
	result := &Result{Original: text, Corrected: text}
	if len(c.vocabulary) == 0 {
		return result
	}

	tokens := strings.Fields(text)
	if len(tokens) == 0 {
		return result
	}

	var output []string
	i := 0
	for i < len(tokens) {
		maxN := c.maxWords
		if i+maxN > len(tokens) {
			maxN = len(tokens) - i
		}

		matched := false
		for n := maxN; n >= 1; n-- {
			window := strings.Join(tokens[i:i+n], " ")
			entry, conf, ok := c.matcher.Match(window, c.vocabulary)
			if !ok {
				continue
			}

			output = append(output, strings.Fields(entry)...)
			result.Corrections = append(result.Corrections, Correction{
				Original:   window,
				Corrected:  entry,
				Confidence: conf,
			})
			i += n
			matched = true
			break
		}

		if !matched {
			output = append(output, tokens[i])
			i++
		}
	}

	result.Corrected = strings.Join(output, " ")
	return result
}

// CorrectText is a convenience wrapper returning only the corrected string,
// matching the shape the call controller consumes.
func (c *Corrector) CorrectText(text string) string {
	return c.Correct(text).Corrected
}

// maxWordCount returns the maximum number of whitespace-separated words in
// any vocabulary entry. Returns 1 when the vocabulary is empty.
func maxWordCount(vocabulary []string) int {
	max := 1
	for _, v := range vocabulary {
		if n := len(strings.Fields(v)); n > max {
			max = n
		}
	}
	return max
}

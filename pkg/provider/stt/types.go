package stt

import "time"

// Transcript represents a speech-to-text result from an STT provider.
// Both partial (interim) and final transcripts use this type.
type Transcript struct {
	// Text is the transcribed speech content. May be empty for a final that
	// represents a timed-out silent utterance.
	Text string

	// IsFinal indicates whether this is a final (authoritative) or partial
	// (interim) transcript.
	IsFinal bool

	// Confidence is the overall confidence score (0.0–1.0). May be zero if
	// the provider does not report confidence.
	Confidence float64

	// Timestamp marks when the utterance started, relative to session start.
	Timestamp time.Duration

	// Duration is the length of the utterance.
	Duration time.Duration
}

// KeywordBoost represents a keyword to boost in STT recognition.
// Used to improve recognition of product names, brand terms, and agent names.
type KeywordBoost struct {
	// Keyword is the text to boost (e.g., "FibreMax 500").
	Keyword string

	// Boost is the intensity of the boost (provider-specific scale).
	Boost float64
}

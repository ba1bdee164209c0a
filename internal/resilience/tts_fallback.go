package resilience

import (
	"context"
	"log/slog"

	"github.com/voxhall/telesuite/pkg/provider/tts"
)

// TTSFallback implements [tts.Provider] with automatic failover across multiple
// TTS backends. Each backend has its own circuit breaker.
type TTSFallback struct {
	group *FallbackGroup[tts.Provider]
	rate  int
}

// Compile-time interface assertion.
var _ tts.Provider = (*TTSFallback)(nil)

// NewTTSFallback creates a [TTSFallback] with primary as the preferred backend.
func NewTTSFallback(primary tts.Provider, primaryName string, cfg FallbackConfig) *TTSFallback {
	return &TTSFallback{
		group: NewFallbackGroup(primary, primaryName, cfg),
		rate:  primary.SampleRate(),
	}
}

// AddFallback registers an additional TTS provider as a fallback. Fallbacks
// whose sample rate differs from the primary's are still accepted but logged,
// since their audio would need resampling before playback.
func (f *TTSFallback) AddFallback(name string, provider tts.Provider) {
	if provider.SampleRate() != f.rate {
		slog.Warn("tts fallback sample rate differs from primary",
			"provider", name,
			"rate", provider.SampleRate(),
			"primary_rate", f.rate)
	}
	f.group.AddFallback(name, provider)
}

// Synthesize renders the utterance with the first healthy provider. If the
// primary fails, subsequent fallbacks are tried.
func (f *TTSFallback) Synthesize(ctx context.Context, text string, voice tts.VoiceProfile) ([]byte, error) {
	return ExecuteWithResult(f.group, func(p tts.Provider) ([]byte, error) {
		return p.Synthesize(ctx, text, voice)
	})
}

// SampleRate returns the primary provider's sample rate. This does not
// participate in failover because the playback path treats the rate as fixed
// for the lifetime of the provider.
func (f *TTSFallback) SampleRate() int {
	return f.rate
}

// ListVoices returns available voices from the first healthy provider.
func (f *TTSFallback) ListVoices(ctx context.Context) ([]tts.VoiceProfile, error) {
	return ExecuteWithResult(f.group, func(p tts.Provider) ([]tts.VoiceProfile, error) {
		return p.ListVoices(ctx)
	})
}

// Package mock provides a mock implementation of the tts.Provider interface
// for testing.
package mock

import (
	"context"
	"sync"

	"github.com/voxhall/telesuite/pkg/provider/tts"
)

var _ tts.Provider = (*Provider)(nil)

// SynthesizeCall records a single call to Synthesize.
type SynthesizeCall struct {
	Text  string
	Voice tts.VoiceProfile
}

// Provider is a configurable mock tts.Provider.
type Provider struct {
	mu sync.Mutex

	// SynthesizeAudio is returned by Synthesize when SynthesizeFn is nil.
	SynthesizeAudio []byte
	// SynthesizeErr is returned by Synthesize when non-nil.
	SynthesizeErr error
	// SynthesizeFn, when set, overrides the canned behavior entirely.
	SynthesizeFn func(ctx context.Context, text string, voice tts.VoiceProfile) ([]byte, error)

	// Voices is returned by ListVoices.
	Voices []tts.VoiceProfile
	// ListVoicesErr is returned by ListVoices when non-nil.
	ListVoicesErr error

	// Rate is the sample rate reported by SampleRate. Defaults to 16000
	// when zero.
	Rate int

	synthesizeCalls []SynthesizeCall
}

// Synthesize records the call and returns the configured audio or error.
func (p *Provider) Synthesize(ctx context.Context, text string, voice tts.VoiceProfile) ([]byte, error) {
	p.mu.Lock()
	p.synthesizeCalls = append(p.synthesizeCalls, SynthesizeCall{Text: text, Voice: voice})
	fn := p.SynthesizeFn
	audio := p.SynthesizeAudio
	err := p.SynthesizeErr
	p.mu.Unlock()

	if fn != nil {
		return fn(ctx, text, voice)
	}
	if err != nil {
		return nil, err
	}
	return audio, nil
}

// SampleRate reports the configured rate, defaulting to 16000.
func (p *Provider) SampleRate() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.Rate == 0 {
		return 16000
	}
	return p.Rate
}

// ListVoices returns the configured voices or error.
func (p *Provider) ListVoices(ctx context.Context) ([]tts.VoiceProfile, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.ListVoicesErr != nil {
		return nil, p.ListVoicesErr
	}
	return p.Voices, nil
}

// SynthesizeCalls returns a copy of all recorded Synthesize calls.
func (p *Provider) SynthesizeCalls() []SynthesizeCall {
	p.mu.Lock()
	defer p.mu.Unlock()
	out := make([]SynthesizeCall, len(p.synthesizeCalls))
	copy(out, p.synthesizeCalls)
	return out
}

// Reset clears all recorded calls.
func (p *Provider) Reset() {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.synthesizeCalls = nil
}

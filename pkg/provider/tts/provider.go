// Package tts defines the Provider interface for Text-to-Speech backends.
//
// A TTS provider wraps a speech synthesis service (e.g., ElevenLabs, or a
// local Coqui instance) and presents a uniform batch interface: one utterance
// of agent text in, one complete PCM audio payload out. The call-state
// controller wraps the payload in a data URI before handing it to playback,
// so the synthesis result of every turn can also be persisted with the
// conversation log.
//
// Implementations must be safe for concurrent use. Multiple synthesis
// requests may run in parallel (e.g., multiple live calls at once).
package tts

import "context"

// VoiceProfile describes a TTS voice configuration for an agent persona.
// It is selected once before a call starts and is immutable during a call.
type VoiceProfile struct {
	// ID is the provider-specific voice identifier.
	ID string

	// Name is the human-readable voice name shown to agents during call
	// configuration.
	Name string

	// Provider identifies which TTS provider this voice belongs to.
	Provider string

	// Metadata holds provider-specific voice attributes (gender, age,
	// accent, etc.).
	Metadata map[string]string
}

// Provider is the abstraction over any TTS backend.
type Provider interface {
	// Synthesize converts one complete utterance of text into raw 16-bit
	// little-endian PCM audio. The sample rate is provider-configured;
	// callers that need a container format should wrap the result with
	// pkg/audio.
	//
	// voice specifies the voice profile to use. Providers should return an
	// error if the requested voice is not available. An empty text input is
	// an error.
	Synthesize(ctx context.Context, text string, voice VoiceProfile) ([]byte, error)

	// SampleRate returns the sample rate in Hz of PCM produced by Synthesize.
	// Constant for the lifetime of the Provider instance.
	SampleRate() int

	// ListVoices returns all voice profiles available from this provider.
	// The list reflects the provider's current catalogue and may change
	// between calls if the underlying service adds or removes voices.
	ListVoices(ctx context.Context) ([]VoiceProfile, error)
}

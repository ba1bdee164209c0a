// Package capture wraps a streaming STT session into the speech capture
// adapter the call controller consumes: interim callbacks on every partial
// result, one final callback per completed utterance, and a per-utterance
// silence countdown that ends the utterance when the caller stops talking.
//
// Error taxonomy: engine noise (no speech detected, aborted stream, transient
// audio capture hiccups) is treated as a normal end of utterance and flushes
// whatever was buffered. Permission or network failures are surfaced once via
// OnFatal and leave capture stopped; the absence of a working STT backend is
// permanent for the session.
package capture

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/voxhall/telesuite/pkg/provider/stt"
)

// Benign engine conditions: treated as a normal end of utterance.
var (
	ErrNoSpeech     = errors.New("no-speech")
	ErrAborted      = errors.New("aborted")
	ErrAudioCapture = errors.New("audio-capture")
)

// Fatal conditions: reported once, capture left stopped.
var (
	ErrNotAllowed = errors.New("not-allowed")
	ErrNetwork    = errors.New("network")
)

// DefaultSilenceWindow is the per-utterance silence countdown. Every
// recognition result rearms it; when it fires the utterance is over.
const DefaultSilenceWindow = 800 * time.Millisecond

// Config describes the audio format and endpointing behavior of an adapter.
type Config struct {
	SampleRate int
	Channels   int
	Language   string
	Keywords   []stt.KeywordBoost

	// SilenceWindow overrides DefaultSilenceWindow when positive.
	SilenceWindow time.Duration
}

// Callbacks receive recognition events. All callbacks are invoked from the
// adapter's internal goroutine; they must not block for long and must not
// call back into the adapter synchronously except for Stop.
type Callbacks struct {
	// OnInterim fires on every partial result. Used for barge-in detection
	// and endpoint-timer rearming upstream.
	OnInterim func(text string)

	// OnFinal fires once per completed utterance with the accumulated
	// fragments joined. An empty string represents a timed-out empty turn
	// and is still delivered.
	OnFinal func(text string)

	// OnFatal fires at most once per session on an unrecoverable capture
	// failure.
	OnFatal func(err error)
}

// Adapter is the speech capture adapter. One Adapter serves one call; Start
// may be invoked repeatedly across utterances. Safe for concurrent use.
type Adapter struct {
	provider stt.Provider
	cfg      Config
	cb       Callbacks
	logger   *slog.Logger

	mu          sync.Mutex
	session     stt.SessionHandle
	running     bool
	unsupported bool
	gen         int
	fragments   []string
	silence     *time.Timer

	unsupportedOnce sync.Once
	fatalOnce       sync.Once
}

// New creates an Adapter over the given STT provider.
func New(provider stt.Provider, cfg Config, cb Callbacks, logger *slog.Logger) *Adapter {
	if logger == nil {
		logger = slog.Default()
	}
	if cfg.SilenceWindow <= 0 {
		cfg.SilenceWindow = DefaultSilenceWindow
	}
	return &Adapter{
		provider: provider,
		cfg:      cfg,
		cb:       cb,
		logger:   logger.With("component", "capture"),
	}
}

// Start begins continuous recognition for one utterance. Calling Start while
// already running is a no-op. When the STT capability is known to be absent
// the call logs once and returns nil — absence is permanent for the session
// and the caller must offer manual input instead.
func (a *Adapter) Start(ctx context.Context) error {
	a.mu.Lock()
	if a.running {
		a.mu.Unlock()
		return nil
	}
	if a.unsupported {
		a.mu.Unlock()
		a.unsupportedOnce.Do(func() {
			a.logger.Warn("speech recognition unavailable for this session")
		})
		return nil
	}
	a.mu.Unlock()

	session, err := a.provider.StartStream(ctx, stt.StreamConfig{
		SampleRate: a.cfg.SampleRate,
		Channels:   a.cfg.Channels,
		Language:   a.cfg.Language,
		Keywords:   a.cfg.Keywords,
	})
	if err != nil {
		if Classify(err) == SeverityFatal {
			a.mu.Lock()
			a.unsupported = true
			a.mu.Unlock()
			a.notifyFatal(fmt.Errorf("capture: start recognition: %w", err))
			return nil
		}
		return fmt.Errorf("capture: start recognition: %w", err)
	}

	a.mu.Lock()
	a.session = session
	a.running = true
	a.gen++
	a.fragments = nil
	gen := a.gen
	a.mu.Unlock()

	go a.readLoop(session, gen)
	return nil
}

// Stop requests recognition to end and flushes the accumulated utterance
// buffer via OnFinal. Safe to call when not running.
func (a *Adapter) Stop() error {
	a.mu.Lock()
	if !a.running {
		a.mu.Unlock()
		return nil
	}
	a.stopLocked()
	text := a.takeFragmentsLocked()
	a.mu.Unlock()

	a.emitFinal(text)
	return nil
}

// Running reports whether a recognition session is currently open.
func (a *Adapter) Running() bool {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.running
}

// SendAudio forwards one PCM chunk to the open session. Chunks arriving while
// stopped are dropped — the transport keeps streaming regardless of
// recognition state. Benign engine errors end the utterance normally; fatal
// ones stop capture and notify once.
func (a *Adapter) SendAudio(chunk []byte) {
	a.mu.Lock()
	session := a.session
	running := a.running
	a.mu.Unlock()
	if !running || session == nil {
		return
	}

	if err := session.SendAudio(chunk); err != nil {
		switch Classify(err) {
		case SeverityBenign:
			a.logger.Debug("benign capture condition, ending utterance", "error", err)
			_ = a.Stop()
		case SeverityFatal:
			a.mu.Lock()
			a.stopLocked()
			a.mu.Unlock()
			a.notifyFatal(fmt.Errorf("capture: send audio: %w", err))
		}
	}
}

// Close tears the adapter down. After Close the adapter must not be reused.
func (a *Adapter) Close() error {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.stopLocked()
	a.fragments = nil
	return nil
}

// readLoop pumps the session's partial and final channels until both close.
// gen guards against events from a superseded session leaking into the
// current utterance.
func (a *Adapter) readLoop(session stt.SessionHandle, gen int) {
	partials := session.Partials()
	finals := session.Finals()

	for partials != nil || finals != nil {
		select {
		case t, ok := <-partials:
			if !ok {
				partials = nil
				continue
			}
			if !a.isCurrent(gen) {
				return
			}
			a.rearmSilence(gen)
			// Empty partials still fire: upstream the reminder timer must
			// be canceled by any speech activity, transcribed or not.
			if a.cb.OnInterim != nil {
				a.cb.OnInterim(t.Text)
			}
		case t, ok := <-finals:
			if !ok {
				finals = nil
				continue
			}
			if !a.isCurrent(gen) {
				return
			}
			a.mu.Lock()
			if text := strings.TrimSpace(t.Text); text != "" {
				a.fragments = append(a.fragments, text)
			}
			a.mu.Unlock()
			a.rearmSilence(gen)
		}
	}

	// Engine-side end of stream: flush whatever was buffered, exactly like a
	// silence timeout.
	a.mu.Lock()
	if !a.isCurrentLocked(gen) {
		a.mu.Unlock()
		return
	}
	a.stopLocked()
	text := a.takeFragmentsLocked()
	a.mu.Unlock()
	a.emitFinal(text)
}

// rearmSilence clears and restarts the per-utterance countdown. At most one
// live timer exists per adapter.
func (a *Adapter) rearmSilence(gen int) {
	a.mu.Lock()
	defer a.mu.Unlock()
	if !a.isCurrentLocked(gen) {
		return
	}
	if a.silence != nil {
		a.silence.Stop()
	}
	a.silence = time.AfterFunc(a.cfg.SilenceWindow, func() {
		a.onSilence(gen)
	})
}

// onSilence ends the utterance when no result arrived within the window.
func (a *Adapter) onSilence(gen int) {
	a.mu.Lock()
	if !a.isCurrentLocked(gen) {
		a.mu.Unlock()
		return
	}
	a.stopLocked()
	text := a.takeFragmentsLocked()
	a.mu.Unlock()
	a.emitFinal(text)
}

// stopLocked closes the session and invalidates outstanding timers and read
// loops. Caller must hold a.mu.
func (a *Adapter) stopLocked() {
	if a.silence != nil {
		a.silence.Stop()
		a.silence = nil
	}
	if a.session != nil {
		_ = a.session.Close()
		a.session = nil
	}
	a.running = false
	a.gen++
}

func (a *Adapter) takeFragmentsLocked() string {
	text := strings.Join(a.fragments, " ")
	a.fragments = nil
	return text
}

func (a *Adapter) emitFinal(text string) {
	if a.cb.OnFinal != nil {
		a.cb.OnFinal(text)
	}
}

func (a *Adapter) notifyFatal(err error) {
	a.fatalOnce.Do(func() {
		a.logger.Error("capture failed permanently", "error", err)
		if a.cb.OnFatal != nil {
			a.cb.OnFatal(err)
		}
	})
}

func (a *Adapter) isCurrent(gen int) bool {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.isCurrentLocked(gen)
}

func (a *Adapter) isCurrentLocked(gen int) bool {
	return a.running && a.gen == gen
}

// Severity classifies a capture error.
type Severity int

const (
	// SeverityBenign conditions end the utterance normally.
	SeverityBenign Severity = iota
	// SeverityFatal conditions stop capture for good.
	SeverityFatal
)

// Classify maps an error onto the capture taxonomy. Unknown errors are
// treated as benign so a flaky engine hiccup never kills a call.
func Classify(err error) Severity {
	switch {
	case errors.Is(err, ErrNotAllowed), errors.Is(err, ErrNetwork):
		return SeverityFatal
	case errors.Is(err, ErrNoSpeech), errors.Is(err, ErrAborted), errors.Is(err, ErrAudioCapture):
		return SeverityBenign
	}

	msg := strings.ToLower(err.Error())
	switch {
	case strings.Contains(msg, "not-allowed"),
		strings.Contains(msg, "permission"),
		strings.Contains(msg, "unauthorized"),
		strings.Contains(msg, "network"):
		return SeverityFatal
	default:
		return SeverityBenign
	}
}

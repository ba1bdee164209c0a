// Package playback manages delivery of synthesized agent audio to the caller.
// At most one utterance plays at a time; barge-in cancels the active one
// immediately. Completion is signaled either by the transport acknowledging
// end of playback or by a wall-clock fallback derived from the PCM length.
package playback

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"
)

// ErrBusy is returned by Play while another utterance is still active.
// Callers must Cancel (or wait for completion) before starting a new one.
var ErrBusy = errors.New("playback: already active")

// Sink delivers agent audio over the transport to the listening client.
type Sink interface {
	// SendAudio ships one complete synthesized utterance.
	SendAudio(ctx context.Context, pcm []byte, sampleRate int) error

	// SendStop tells the client to discard any buffered agent audio.
	SendStop(ctx context.Context) error
}

// completionGrace pads the wall-clock fallback so a client ack normally wins.
const completionGrace = 300 * time.Millisecond

// Controller serializes playback of agent utterances. Safe for concurrent use.
type Controller struct {
	sink   Sink
	logger *slog.Logger

	mu      sync.Mutex
	active  bool
	gen     int
	timer   *time.Timer
	onEnded func()

	failOnce sync.Once
}

// New creates a playback controller over the given sink.
func New(sink Sink, logger *slog.Logger) *Controller {
	if logger == nil {
		logger = slog.Default()
	}
	return &Controller{
		sink:   sink,
		logger: logger.With("component", "playback"),
	}
}

// Play starts delivery of one utterance. onEnded fires exactly once when the
// utterance finishes naturally; it does not fire on Cancel. Calling Play
// while another utterance is active is a caller error and returns ErrBusy.
func (c *Controller) Play(ctx context.Context, pcm []byte, sampleRate int, onEnded func()) error {
	c.mu.Lock()
	if c.active {
		c.mu.Unlock()
		return ErrBusy
	}
	c.active = true
	c.gen++
	gen := c.gen
	c.onEnded = onEnded
	c.mu.Unlock()

	if err := c.sink.SendAudio(ctx, pcm, sampleRate); err != nil {
		c.mu.Lock()
		c.clearLocked()
		c.mu.Unlock()
		c.failOnce.Do(func() {
			c.logger.Warn("audio playback unavailable, continuing text-only", "error", err)
		})
		return fmt.Errorf("playback: send audio: %w", err)
	}

	// Fallback completion in case the client never acknowledges.
	d := Duration(len(pcm), sampleRate) + completionGrace
	c.mu.Lock()
	if c.gen == gen && c.active {
		c.timer = time.AfterFunc(d, func() { c.finish(gen) })
	}
	c.mu.Unlock()
	return nil
}

// NotifyEnded is called by the transport when the client reports that the
// utterance finished playing. Stale or duplicate notifications are ignored.
func (c *Controller) NotifyEnded() {
	c.mu.Lock()
	gen := c.gen
	c.mu.Unlock()
	c.finish(gen)
}

// Cancel stops the active utterance immediately. Idempotent; safe to call
// when nothing is playing. The canceled utterance's onEnded never fires.
func (c *Controller) Cancel(ctx context.Context) {
	c.mu.Lock()
	if !c.active {
		c.mu.Unlock()
		return
	}
	c.clearLocked()
	c.mu.Unlock()

	if err := c.sink.SendStop(ctx); err != nil {
		c.logger.Warn("stop signal failed", "error", err)
	}
}

// Active reports whether an utterance is currently playing.
func (c *Controller) Active() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.active
}

// Close cancels any active playback without signaling the sink.
func (c *Controller) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.clearLocked()
	return nil
}

func (c *Controller) finish(gen int) {
	c.mu.Lock()
	if !c.active || c.gen != gen {
		c.mu.Unlock()
		return
	}
	ended := c.onEnded
	c.clearLocked()
	c.mu.Unlock()

	if ended != nil {
		ended()
	}
}

// clearLocked resets playback state and disposes the fallback timer. Caller
// must hold c.mu.
func (c *Controller) clearLocked() {
	if c.timer != nil {
		c.timer.Stop()
		c.timer = nil
	}
	c.active = false
	c.onEnded = nil
	c.gen++
}

// Duration returns the wall-clock length of 16-bit mono PCM.
func Duration(byteLen, sampleRate int) time.Duration {
	if sampleRate <= 0 {
		return 0
	}
	samples := byteLen / 2
	return time.Duration(samples) * time.Second / time.Duration(sampleRate)
}

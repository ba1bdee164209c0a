// Package call implements the call-state controller: the finite-state
// machine that coordinates speech capture, agent playback, the AI gateway,
// and the endpoint/reminder timers for one voice call.
//
// Every external event — interim or final speech, playback completion, timer
// expiry, gateway resolution, end/reset — is dispatched into a single
// reducer goroutine that is the only writer of call state. Outgoing gateway
// requests carry a monotonic sequence number; responses whose sequence is
// stale relative to the controller's current turn are discarded rather than
// applied out of order.
package call

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/voxhall/telesuite/internal/activity"
	"github.com/voxhall/telesuite/internal/gateway"
	"github.com/voxhall/telesuite/internal/observe"
	"github.com/voxhall/telesuite/internal/score"
	"github.com/voxhall/telesuite/pkg/audio"
	"github.com/voxhall/telesuite/pkg/provider/tts"
)

const (
	// DefaultEndpointWindow is how long after the last speech activity the
	// controller forces capture to stop and flush the user's turn.
	DefaultEndpointWindow = 400 * time.Millisecond

	// DefaultReminderWindow is how long the caller may stay silent after the
	// agent finishes speaking before a reminder utterance is played.
	DefaultReminderWindow = 20 * time.Second

	eventBuffer = 64
)

// Capture is the slice of the speech capture adapter the controller drives.
type Capture interface {
	Start(ctx context.Context) error
	Stop() error
}

// Playback is the slice of the playback controller the controller drives.
type Playback interface {
	Play(ctx context.Context, pcm []byte, sampleRate int, onEnded func()) error
	Cancel(ctx context.Context)
	Active() bool
}

// ContextAssembler builds the knowledge context string for one user query.
type ContextAssembler interface {
	Assemble(ctx context.Context, product, query string) (string, error)
}

// LiveDataFetcher resolves a RequiresLiveDataFetch round trip.
type LiveDataFetcher interface {
	Fetch(ctx context.Context, product, question string) (string, error)
}

// TranscriptCorrector fixes misheard proper nouns in final transcripts
// before they reach the gateway. *transcript.Corrector satisfies it.
type TranscriptCorrector interface {
	CorrectText(text string) string
}

// Notifier receives push notifications as the call progresses, so a transport
// can forward state and transcript changes to the connected client. All
// methods are invoked from the controller's reducer goroutine and must not
// block.
type Notifier interface {
	// StateChanged fires on every state transition.
	StateChanged(s State)

	// TurnAppended fires when a turn is added to the conversation.
	TurnAppended(t Turn)

	// TurnUpdated fires when an existing turn gains synthesized audio.
	TurnUpdated(t Turn)
}

// Config is the per-call configuration, immutable once the call starts.
type Config struct {
	Product   string
	AgentName string
	UserName  string
	Voice     tts.VoiceProfile

	// EndpointWindow overrides DefaultEndpointWindow when positive.
	EndpointWindow time.Duration
	// ReminderWindow overrides DefaultReminderWindow when positive.
	ReminderWindow time.Duration
}

// Deps are the controller's collaborators. Capture, Playback, and Gateway
// are required; everything else degrades gracefully when nil.
type Deps struct {
	Capture  Capture
	Playback Playback
	Gateway  gateway.Gateway

	// Synth is the TTS provider; nil means every agent turn is text-only.
	Synth tts.Provider

	// Knowledge assembles the KnowledgeContext string; nil means none.
	Knowledge ContextAssembler

	// LiveData resolves RequiresLiveDataFetch responses; nil disables the
	// second round trip.
	LiveData LiveDataFetcher

	// Corrector is applied to final transcripts; nil disables correction.
	Corrector TranscriptCorrector

	// Activity receives the finalized call; nil disables logging.
	Activity activity.Store

	// Scorer grades the finished call; nil disables scoring.
	Scorer score.Scorer

	// Notify receives state and turn notifications; nil disables them.
	Notify Notifier

	// Metrics instruments the pipeline; nil disables instrumentation.
	Metrics *observe.Metrics

	Logger *slog.Logger
}

type eventKind int

const (
	evStart eventKind = iota
	evInterim
	evFinal
	evSynthDone
	evPlaybackEnded
	evGatewayDone
	evEndpointFired
	evReminderFired
	evCaptureFatal
	evEnd
	evReset
)

type event struct {
	kind eventKind
	text string
	seq  uint64
	gen  int

	resp  *gateway.Response
	err   error
	audio []byte

	turnID string
}

// Controller is the call-state machine for one call session. All exported
// methods are safe for concurrent use; they enqueue events consumed by the
// single reducer goroutine.
type Controller struct {
	cfg      Config
	strategy Strategy
	deps     Deps
	logger   *slog.Logger

	ctx    context.Context
	cancel context.CancelFunc
	events chan event

	closeOnce sync.Once
	loopDone  chan struct{}

	// bg tracks gateway/synthesis/finalize goroutines so tests can
	// synchronise before inspecting mocks.
	bg sync.WaitGroup

	// mu guards the snapshot fields read by State and Turns. The reducer is
	// the only writer.
	mu    sync.Mutex
	state State
	turns []Turn

	// Reducer-owned; never touched outside the event loop.
	seq           uint64
	reminderIdx   int
	endpointGen   int
	reminderGen   int
	endpointTimer *time.Timer
	reminderTimer *time.Timer
	captureDown   bool
	logged        bool
	recorder      *audio.Recorder

	// Stage timing marks for metrics; zero when no measurement is pending.
	utteranceStart time.Time
	turnStart      time.Time
}

// New creates a Controller in StateConfiguring and starts its event loop.
// The caller must Close it to release timers and the loop goroutine.
func New(cfg Config, strategy Strategy, deps Deps) (*Controller, error) {
	if deps.Capture == nil || deps.Playback == nil || deps.Gateway == nil {
		return nil, errors.New("call: capture, playback, and gateway are required")
	}
	if strategy == nil {
		return nil, errors.New("call: strategy is required")
	}
	if deps.Logger == nil {
		deps.Logger = slog.Default()
	}
	if cfg.EndpointWindow <= 0 {
		cfg.EndpointWindow = DefaultEndpointWindow
	}
	if cfg.ReminderWindow <= 0 {
		cfg.ReminderWindow = DefaultReminderWindow
	}

	sampleRate := 16000
	if deps.Synth != nil {
		sampleRate = deps.Synth.SampleRate()
	}

	ctx, cancel := context.WithCancel(context.Background())
	c := &Controller{
		cfg:      cfg,
		strategy: strategy,
		deps:     deps,
		logger:   deps.Logger.With("component", "call", "product", cfg.Product),
		ctx:      ctx,
		cancel:   cancel,
		events:   make(chan event, eventBuffer),
		loopDone: make(chan struct{}),
		state:    StateConfiguring,
		recorder: audio.NewRecorder(sampleRate),
	}
	go c.loop()
	if deps.Metrics != nil {
		deps.Metrics.ActiveCalls.Add(ctx, 1)
	}
	return c, nil
}

// ─── Public API ───────────────────────────────────────────────────────────────

// Start begins the call: the agent speaks its welcome line, then listens.
// Only valid in StateConfiguring; anything else is ignored with a log.
func (c *Controller) Start() { c.post(event{kind: evStart}) }

// OnInterim feeds a partial speech result. Wire it as the capture adapter's
// OnInterim callback.
func (c *Controller) OnInterim(text string) { c.post(event{kind: evInterim, text: text}) }

// OnFinal feeds a completed utterance. Empty text represents a timed-out
// silent turn and is still forwarded to the gateway.
func (c *Controller) OnFinal(text string) { c.post(event{kind: evFinal, text: text}) }

// SubmitText injects a typed user turn. It behaves exactly like a final
// speech result, which is what keeps a call usable after capture has failed
// permanently.
func (c *Controller) SubmitText(text string) { c.OnFinal(text) }

// OnCaptureFatal marks speech capture as permanently unavailable for this
// session. Wire it as the capture adapter's OnFatal callback. The call stays
// in Listening with recognition down rather than erroring out: Listening then
// means "awaiting user input", and typed turns via SubmitText keep flowing.
func (c *Controller) OnCaptureFatal(err error) { c.post(event{kind: evCaptureFatal, err: err}) }

// End terminates the call and finalizes it (activity log, audio assembly,
// scoring). Idempotent.
func (c *Controller) End() { c.post(event{kind: evEnd}) }

// Reset discards all per-call state and returns to StateConfiguring for a
// new call, finalizing the previous call first if it was never logged.
func (c *Controller) Reset() { c.post(event{kind: evReset}) }

// State returns the current call state.
func (c *Controller) State() State {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state
}

// Turns returns a snapshot of the conversation so far.
func (c *Controller) Turns() []Turn {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([]Turn, len(c.turns))
	copy(out, c.turns)
	return out
}

// AppendUserAudio adds caller PCM to the full-call recording. Called by the
// transport as audio chunks arrive; ignored after Close.
func (c *Controller) AppendUserAudio(pcm []byte, sampleRate, channels int) {
	c.recorder.Append(pcm, sampleRate, channels)
}

// Wait blocks until all background goroutines spawned by the controller
// (gateway calls, synthesis, finalize) have finished. Primarily for tests.
func (c *Controller) Wait() { c.bg.Wait() }

// Close tears the controller down exactly once: timers are disposed, the
// event loop exits, and an in-progress call is finalized best-effort.
func (c *Controller) Close() error {
	c.closeOnce.Do(func() {
		c.post(event{kind: evEnd})
		c.cancel()
		<-c.loopDone
		if c.deps.Metrics != nil {
			c.deps.Metrics.ActiveCalls.Add(context.Background(), -1)
		}
	})
	return nil
}

// ─── Event loop ───────────────────────────────────────────────────────────────

func (c *Controller) post(ev event) {
	select {
	case c.events <- ev:
	case <-c.ctx.Done():
	}
}

func (c *Controller) loop() {
	defer close(c.loopDone)
	defer c.disposeTimers()
	for {
		select {
		case <-c.ctx.Done():
			// Drain already-enqueued events so a teardown-time End still
			// finalizes the call best-effort.
			for {
				select {
				case ev := <-c.events:
					c.reduce(ev)
				default:
					return
				}
			}
		case ev := <-c.events:
			c.reduce(ev)
		}
	}
}

func (c *Controller) reduce(ev event) {
	switch ev.kind {
	case evStart:
		c.handleStart()
	case evInterim:
		c.handleInterim(ev.text)
	case evFinal:
		c.handleFinal(ev.text)
	case evSynthDone:
		c.handleSynthDone(ev)
	case evPlaybackEnded:
		c.handlePlaybackEnded(ev.seq)
	case evGatewayDone:
		c.handleGatewayDone(ev)
	case evEndpointFired:
		c.handleEndpointFired(ev.gen)
	case evReminderFired:
		c.handleReminderFired(ev.gen)
	case evCaptureFatal:
		c.captureDown = true
		c.logger.Warn("speech capture lost for this call, manual input only", "error", ev.err)
	case evEnd:
		c.handleEnd()
	case evReset:
		c.handleReset()
	}
}

func (c *Controller) handleStart() {
	if c.State() != StateConfiguring {
		c.logger.Warn("start ignored", "state", c.State().String())
		return
	}
	c.speak(c.strategy.Welcome(c.cfg))
}

func (c *Controller) handleInterim(text string) {
	st := c.State()
	if st == StateEnded || st == StateConfiguring {
		return
	}

	// Any interim speech cancels a pending reminder.
	c.clearReminder()

	if st == StateAISpeaking {
		// Barge-in: stop agent audio before the user's turn is processed.
		c.deps.Playback.Cancel(c.ctx)
		c.setState(StateListening)
		st = StateListening
		if c.deps.Metrics != nil {
			c.deps.Metrics.BargeIns.Add(c.ctx, 1)
		}
	}

	if st == StateListening {
		if c.utteranceStart.IsZero() {
			c.utteranceStart = time.Now()
		}
		c.armEndpoint()
	}
}

func (c *Controller) handleFinal(text string) {
	st := c.State()
	if st == StateEnded || st == StateError || st == StateConfiguring {
		return
	}

	c.clearEndpoint()
	c.clearReminder()

	if st == StateAISpeaking {
		c.deps.Playback.Cancel(c.ctx)
	}

	if c.deps.Metrics != nil && !c.utteranceStart.IsZero() {
		c.deps.Metrics.STTDuration.Record(c.ctx, time.Since(c.utteranceStart).Seconds())
	}
	c.utteranceStart = time.Time{}
	c.turnStart = time.Now()

	if c.deps.Corrector != nil && text != "" {
		text = c.deps.Corrector.CorrectText(text)
	}

	// Empty finals are forwarded (the gateway reacts to silence) but do not
	// produce a user turn in the transcript.
	if strings.TrimSpace(text) != "" {
		c.appendTurn(newTurn(SpeakerUser, text))
	}

	c.setState(StateProcessing)
	c.seq++
	c.dispatchGateway(c.seq, text)

	// Keep listening while the request is in flight; follow-up speech starts
	// a newer turn whose response supersedes this one.
	c.startCapture()
}

// dispatchGateway issues one gateway round trip for the turn tagged seq,
// including optional knowledge assembly and at most one live-data retry.
func (c *Controller) dispatchGateway(seq uint64, userText string) {
	history := c.gatewayHistory()
	c.bg.Add(1)
	go func() {
		defer c.bg.Done()

		var kb string
		if c.deps.Knowledge != nil && strings.TrimSpace(userText) != "" {
			ctxK, cancel := context.WithTimeout(c.ctx, 5*time.Second)
			var err error
			kb, err = c.deps.Knowledge.Assemble(ctxK, c.cfg.Product, userText)
			cancel()
			if err != nil {
				c.logger.Warn("knowledge assembly failed, continuing without context", "error", err)
			}
		}

		req := gateway.Request{
			Product:          c.cfg.Product,
			AgentName:        c.cfg.AgentName,
			UserName:         c.cfg.UserName,
			UserQuery:        userText,
			KnowledgeContext: kb,
			History:          history,
		}
		gwStart := time.Now()
		resp, err := c.deps.Gateway.Respond(c.ctx, req)

		if err == nil && resp.RequiresLiveDataFetch && c.deps.LiveData != nil {
			ctxL, cancel := context.WithTimeout(c.ctx, 10*time.Second)
			liveStart := time.Now()
			live, liveErr := c.deps.LiveData.Fetch(ctxL, c.cfg.Product, userText)
			cancel()
			if c.deps.Metrics != nil {
				c.deps.Metrics.LiveDataDuration.Record(c.ctx, time.Since(liveStart).Seconds())
			}
			if liveErr != nil {
				c.logger.Warn("live data fetch failed", "error", liveErr)
			} else {
				req.LiveData = live
				resp, err = c.deps.Gateway.Respond(c.ctx, req)
			}
		}

		if c.deps.Metrics != nil {
			c.deps.Metrics.GatewayDuration.Record(c.ctx, time.Since(gwStart).Seconds())
			if err != nil {
				c.deps.Metrics.RecordProviderError(c.ctx, "gateway", "llm")
			}
		}

		c.post(event{kind: evGatewayDone, seq: seq, resp: resp, err: err})
	}()
}

func (c *Controller) handleGatewayDone(ev event) {
	if ev.seq != c.seq {
		c.logger.Debug("stale gateway response discarded", "seq", ev.seq, "current", c.seq)
		return
	}
	st := c.State()
	if st == StateEnded || st == StateConfiguring {
		return
	}

	if ev.err != nil {
		c.failCall(ev.err.Error())
		return
	}
	if ev.resp.ErrorMessage != "" {
		c.failCall(ev.resp.ErrorMessage)
		return
	}
	c.speak(ev.resp.AIResponseText)
}

// failCall surfaces a gateway failure as an error-tagged AI turn and moves
// to StateError. Prior turns are untouched; End and Reset stay available.
func (c *Controller) failCall(msg string) {
	t := newTurn(SpeakerAI, msg)
	t.IsError = true
	c.appendTurn(t)
	c.setState(StateError)
	c.stopCapture()
	c.clearEndpoint()
	c.clearReminder()
}

// speak appends an AI turn and starts synthesis for it. The controller
// enters StateAISpeaking immediately; if synthesis or playback fails the
// turn degrades to text-only and the state falls back to StateListening.
func (c *Controller) speak(text string) {
	turn := newTurn(SpeakerAI, text)
	c.appendTurn(turn)
	c.setState(StateAISpeaking)

	// Capture stays live during agent speech so barge-in interims arrive.
	c.startCapture()

	if c.deps.Synth == nil {
		c.enterListening()
		return
	}

	seq := c.seq
	c.bg.Add(1)
	go func() {
		defer c.bg.Done()
		start := time.Now()
		pcm, err := c.deps.Synth.Synthesize(c.ctx, text, c.cfg.Voice)
		if c.deps.Metrics != nil {
			c.deps.Metrics.TTSDuration.Record(c.ctx, time.Since(start).Seconds())
			if err != nil {
				c.deps.Metrics.RecordProviderError(c.ctx, c.cfg.Voice.Provider, "tts")
			}
		}
		c.post(event{kind: evSynthDone, seq: seq, audio: pcm, err: err, turnID: turn.ID})
	}()
}

func (c *Controller) handleSynthDone(ev event) {
	if ev.seq != c.seq || c.State() != StateAISpeaking {
		// The user barged in (or the call moved on) while synthesis ran.
		return
	}

	if ev.err != nil {
		c.logger.Warn("synthesis failed, turn degrades to text-only", "error", ev.err)
		c.enterListening()
		return
	}

	rate := c.deps.Synth.SampleRate()
	c.attachAudio(ev.turnID, ev.audio, rate)
	c.recorder.Append(ev.audio, rate, 1)

	seq := ev.seq
	err := c.deps.Playback.Play(c.ctx, ev.audio, rate, func() {
		c.post(event{kind: evPlaybackEnded, seq: seq})
	})
	if err != nil {
		c.logger.Warn("playback failed, turn degrades to text-only", "error", err)
		c.enterListening()
		return
	}
	if c.deps.Metrics != nil && !c.turnStart.IsZero() {
		c.deps.Metrics.TurnDuration.Record(c.ctx, time.Since(c.turnStart).Seconds())
	}
	c.turnStart = time.Time{}
}

func (c *Controller) handlePlaybackEnded(seq uint64) {
	if seq != c.seq || c.State() != StateAISpeaking {
		return
	}
	c.enterListening()
}

// enterListening moves to StateListening, starts capture, and arms the
// inactivity reminder — entering Listening always follows agent speech (or
// its text-only degradation), which is exactly when the reminder belongs.
func (c *Controller) enterListening() {
	c.setState(StateListening)
	c.startCapture()
	c.armReminder()
}

func (c *Controller) handleEndpointFired(gen int) {
	if gen != c.endpointGen || c.State() != StateListening {
		return
	}
	// Force capture to stop; the flush arrives as OnFinal.
	if err := c.deps.Capture.Stop(); err != nil {
		c.logger.Warn("capture stop failed", "error", err)
	}
}

func (c *Controller) handleReminderFired(gen int) {
	if gen != c.reminderGen || c.State() != StateListening {
		return
	}
	pool := c.strategy.Reminders()
	if len(pool) == 0 {
		return
	}
	text := pool[c.reminderIdx%len(pool)]
	c.reminderIdx++
	if c.deps.Metrics != nil {
		c.deps.Metrics.Reminders.Add(c.ctx, 1)
	}
	c.speak(text)
}

func (c *Controller) handleEnd() {
	if c.State() == StateEnded {
		return
	}
	c.stopCapture()
	c.deps.Playback.Cancel(c.ctx)
	c.clearEndpoint()
	c.clearReminder()
	c.setState(StateEnded)
	c.finalize()
}

func (c *Controller) handleReset() {
	st := c.State()
	if st == StateConfiguring && len(c.Turns()) == 0 {
		return
	}
	if st != StateEnded {
		c.stopCapture()
		c.deps.Playback.Cancel(c.ctx)
		c.clearEndpoint()
		c.clearReminder()
	}
	c.finalize()

	c.mu.Lock()
	c.turns = nil
	c.state = StateConfiguring
	c.mu.Unlock()

	c.seq++ // invalidate anything still in flight
	c.reminderIdx = 0
	c.captureDown = false
	c.logged = false
	c.utteranceStart = time.Time{}
	c.turnStart = time.Time{}
	c.recorder.Reset()
	c.logger.Info("call state reset")
}

// finalize logs the call to the activity store and kicks off audio assembly
// and scoring as fire-and-forget updates. Runs at most once per call.
func (c *Controller) finalize() {
	if c.logged {
		return
	}
	turns := c.Turns()
	if len(turns) == 0 {
		return
	}
	c.logged = true

	if c.deps.Activity == nil {
		return
	}

	transcript := FlattenTranscript(turns)
	entry := activity.Entry{
		Kind:       c.strategy.Kind(),
		Product:    c.cfg.Product,
		AgentName:  c.cfg.AgentName,
		UserName:   c.cfg.UserName,
		Transcript: transcript,
	}

	c.bg.Add(1)
	go func() {
		defer c.bg.Done()
		ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer cancel()

		id, err := c.deps.Activity.Log(ctx, entry)
		if err != nil {
			c.logger.Error("activity log failed", "error", err)
			return
		}

		if uri, err := c.recorder.DataURI(); err == nil {
			if err := c.deps.Activity.Update(ctx, id, activity.Patch{AudioRef: &uri}); err != nil {
				c.logger.Warn("audio reference update failed", "id", id, "error", err)
			}
		}

		if c.deps.Scorer != nil {
			result, err := c.deps.Scorer.Score(ctx, score.Request{
				Product:        c.cfg.Product,
				AgentName:      c.cfg.AgentName,
				Transcript:     transcript,
				ProductContext: c.strategy.ScoreContext(c.cfg),
			})
			if err != nil {
				c.logger.Warn("call scoring failed", "id", id, "error", err)
				return
			}
			patch := activity.Patch{Score: &result.OverallScore, ScoreCategory: &result.Category}
			if err := c.deps.Activity.Update(ctx, id, patch); err != nil {
				c.logger.Warn("score update failed", "id", id, "error", err)
			}
		}
	}()
}

// ─── Timers ───────────────────────────────────────────────────────────────────

// armEndpoint (re)starts the endpoint silence timer. At most one live handle
// exists; arming always disposes the previous one.
func (c *Controller) armEndpoint() {
	if c.endpointTimer != nil {
		c.endpointTimer.Stop()
	}
	c.endpointGen++
	gen := c.endpointGen
	c.endpointTimer = time.AfterFunc(c.cfg.EndpointWindow, func() {
		c.post(event{kind: evEndpointFired, gen: gen})
	})
}

func (c *Controller) clearEndpoint() {
	if c.endpointTimer != nil {
		c.endpointTimer.Stop()
		c.endpointTimer = nil
	}
	c.endpointGen++
}

func (c *Controller) armReminder() {
	if c.reminderTimer != nil {
		c.reminderTimer.Stop()
	}
	c.reminderGen++
	gen := c.reminderGen
	c.reminderTimer = time.AfterFunc(c.cfg.ReminderWindow, func() {
		c.post(event{kind: evReminderFired, gen: gen})
	})
}

func (c *Controller) clearReminder() {
	if c.reminderTimer != nil {
		c.reminderTimer.Stop()
		c.reminderTimer = nil
	}
	c.reminderGen++
}

func (c *Controller) disposeTimers() {
	c.clearEndpoint()
	c.clearReminder()
}

// ─── Helpers ──────────────────────────────────────────────────────────────────

func (c *Controller) startCapture() {
	if c.captureDown {
		return
	}
	if err := c.deps.Capture.Start(c.ctx); err != nil {
		c.logger.Warn("capture start failed", "error", err)
	}
}

func (c *Controller) stopCapture() {
	if err := c.deps.Capture.Stop(); err != nil {
		c.logger.Warn("capture stop failed", "error", err)
	}
}

func (c *Controller) setState(s State) {
	c.mu.Lock()
	prev := c.state
	c.state = s
	c.mu.Unlock()
	if prev != s {
		c.logger.Debug("state transition", "from", prev.String(), "to", s.String())
		if c.deps.Notify != nil {
			c.deps.Notify.StateChanged(s)
		}
	}
}

func (c *Controller) appendTurn(t Turn) {
	c.mu.Lock()
	c.turns = append(c.turns, t)
	c.mu.Unlock()
	if c.deps.Metrics != nil {
		c.deps.Metrics.RecordTurn(c.ctx, string(t.Speaker))
	}
	if c.deps.Notify != nil {
		c.deps.Notify.TurnAppended(t)
	}
}

// attachAudio fills in the data URI of an already-appended agent turn once
// synthesis resolves. The turn's text and position never change.
func (c *Controller) attachAudio(turnID string, pcm []byte, sampleRate int) {
	uri := audio.WAVDataURI(pcm, sampleRate, 1)
	var updated *Turn
	c.mu.Lock()
	for i := range c.turns {
		if c.turns[i].ID == turnID {
			c.turns[i].AudioDataURI = uri
			t := c.turns[i]
			updated = &t
			break
		}
	}
	c.mu.Unlock()
	if updated != nil && c.deps.Notify != nil {
		c.deps.Notify.TurnUpdated(*updated)
	}
}

// gatewayHistory flattens the conversation into the gateway's turn shape.
func (c *Controller) gatewayHistory() []gateway.Turn {
	turns := c.Turns()
	out := make([]gateway.Turn, 0, len(turns))
	for _, t := range turns {
		if t.IsError {
			continue
		}
		out = append(out, gateway.Turn{Speaker: string(t.Speaker), Text: t.Text})
	}
	return out
}

// FlattenTranscript renders turns as the "Speaker: text" transcript persisted
// to the activity log.
func FlattenTranscript(turns []Turn) string {
	var sb strings.Builder
	for i, t := range turns {
		if i > 0 {
			sb.WriteByte('\n')
		}
		fmt.Fprintf(&sb, "%s: %s", t.Speaker, t.Text)
	}
	return sb.String()
}

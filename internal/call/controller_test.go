package call

import (
	"context"
	"errors"
	"log/slog"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/voxhall/telesuite/internal/activity"
	"github.com/voxhall/telesuite/internal/gateway"
	ttsmock "github.com/voxhall/telesuite/pkg/provider/tts/mock"
)

// ─── Fakes ────────────────────────────────────────────────────────────────────

type fakeCapture struct {
	mu     sync.Mutex
	starts int
	stops  int
}

func (f *fakeCapture) Start(context.Context) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.starts++
	return nil
}

func (f *fakeCapture) Stop() error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.stops++
	return nil
}

func (f *fakeCapture) stopCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.stops
}

type fakePlayback struct {
	mu      sync.Mutex
	autoEnd bool
	active  bool
	cancels int
	plays   int
	playErr error
	onEnded func()
}

func (f *fakePlayback) Play(_ context.Context, _ []byte, _ int, onEnded func()) error {
	f.mu.Lock()
	if f.playErr != nil {
		err := f.playErr
		f.mu.Unlock()
		return err
	}
	f.plays++
	f.active = true
	f.onEnded = onEnded
	auto := f.autoEnd
	f.mu.Unlock()
	if auto {
		go f.finish()
	}
	return nil
}

func (f *fakePlayback) Cancel(context.Context) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.active {
		f.cancels++
	}
	f.active = false
	f.onEnded = nil
}

func (f *fakePlayback) Active() bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.active
}

// finish simulates natural playback completion.
func (f *fakePlayback) finish() {
	f.mu.Lock()
	ended := f.onEnded
	f.active = false
	f.onEnded = nil
	f.mu.Unlock()
	if ended != nil {
		ended()
	}
}

func (f *fakePlayback) playCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.plays
}

func (f *fakePlayback) cancelCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.cancels
}

type fakeGateway struct {
	mu   sync.Mutex
	reqs []gateway.Request
	fn   func(req gateway.Request) (*gateway.Response, error)
}

func (f *fakeGateway) Respond(_ context.Context, req gateway.Request) (*gateway.Response, error) {
	f.mu.Lock()
	f.reqs = append(f.reqs, req)
	fn := f.fn
	f.mu.Unlock()
	if fn != nil {
		return fn(req)
	}
	return &gateway.Response{AIResponseText: "understood"}, nil
}

func (f *fakeGateway) requests() []gateway.Request {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]gateway.Request, len(f.reqs))
	copy(out, f.reqs)
	return out
}

// ─── Fixture ──────────────────────────────────────────────────────────────────

type fixture struct {
	ctrl  *Controller
	cap   *fakeCapture
	pb    *fakePlayback
	gw    *fakeGateway
	tts   *ttsmock.Provider
	store *activity.MemStore
}

func newFixture(t *testing.T, mutate func(cfg *Config, deps *Deps)) *fixture {
	t.Helper()
	f := &fixture{
		cap:   &fakeCapture{},
		pb:    &fakePlayback{},
		gw:    &fakeGateway{},
		tts:   &ttsmock.Provider{SynthesizeAudio: make([]byte, 3200)},
		store: activity.NewMemStore(),
	}
	cfg := Config{
		Product:   "FiberMax",
		AgentName: "Priya",
		UserName:  "Alex",
		// Long windows by default so timers never interfere; individual
		// tests shorten the one they exercise.
		EndpointWindow: time.Hour,
		ReminderWindow: time.Hour,
	}
	deps := Deps{
		Capture:  f.cap,
		Playback: f.pb,
		Gateway:  f.gw,
		Synth:    f.tts,
		Activity: f.store,
		Logger:   slog.New(slog.DiscardHandler),
	}
	if mutate != nil {
		mutate(&cfg, &deps)
	}
	ctrl, err := New(cfg, SalesStrategy{}, deps)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	t.Cleanup(func() { _ = ctrl.Close() })
	f.ctrl = ctrl
	return f
}

func waitFor(t *testing.T, cond func() bool, msg string) {
	t.Helper()
	deadline := time.Now().Add(3 * time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatalf("condition never met: %s", msg)
}

func (f *fixture) waitState(t *testing.T, want State) {
	t.Helper()
	waitFor(t, func() bool { return f.ctrl.State() == want },
		"state "+want.String())
}

func agentTurns(turns []Turn) []Turn {
	var out []Turn
	for _, tr := range turns {
		if tr.Speaker == SpeakerAI {
			out = append(out, tr)
		}
	}
	return out
}

func userTurns(turns []Turn) []Turn {
	var out []Turn
	for _, tr := range turns {
		if tr.Speaker == SpeakerUser {
			out = append(out, tr)
		}
	}
	return out
}

// ─── Basic flow ───────────────────────────────────────────────────────────────

func TestController_WelcomeThenListening(t *testing.T) {
	t.Parallel()

	f := newFixture(t, nil)
	f.ctrl.Start()
	f.waitState(t, StateAISpeaking)

	turns := f.ctrl.Turns()
	if len(turns) != 1 || turns[0].Speaker != SpeakerAI {
		t.Fatalf("turns after start = %+v, want one AI welcome turn", turns)
	}
	if !strings.Contains(turns[0].Text, "Alex") {
		t.Errorf("welcome text %q does not address the caller", turns[0].Text)
	}

	f.pb.finish()
	f.waitState(t, StateListening)

	if f.pb.Active() {
		t.Error("playback active while LISTENING")
	}
}

func TestController_StartIgnoredOutsideConfiguring(t *testing.T) {
	t.Parallel()

	f := newFixture(t, nil)
	f.ctrl.Start()
	f.waitState(t, StateAISpeaking)

	f.ctrl.Start()
	time.Sleep(50 * time.Millisecond)
	if got := len(f.ctrl.Turns()); got != 1 {
		t.Errorf("turns = %d after duplicate Start, want 1", got)
	}
}

func TestController_UserTurnRoundTrip(t *testing.T) {
	t.Parallel()

	f := newFixture(t, nil)
	f.gw.fn = func(gateway.Request) (*gateway.Response, error) {
		return &gateway.Response{AIResponseText: "FiberMax starts at thirty euros."}, nil
	}

	f.ctrl.Start()
	f.waitState(t, StateAISpeaking)
	f.pb.finish()
	f.waitState(t, StateListening)

	f.ctrl.OnFinal("how much does it cost")
	f.waitState(t, StateAISpeaking)
	f.pb.finish()
	f.waitState(t, StateListening)

	turns := f.ctrl.Turns()
	if len(turns) != 3 {
		t.Fatalf("turns = %d, want 3 (welcome, user, reply)", len(turns))
	}
	if turns[1].Speaker != SpeakerUser || turns[1].Text != "how much does it cost" {
		t.Errorf("user turn = %+v", turns[1])
	}
	if turns[2].Text != "FiberMax starts at thirty euros." {
		t.Errorf("agent reply = %q", turns[2].Text)
	}
	if !strings.HasPrefix(turns[2].AudioDataURI, "data:audio/wav;base64,") {
		t.Errorf("agent turn missing audio data URI, got %q", turns[2].AudioDataURI)
	}

	reqs := f.gw.requests()
	if len(reqs) != 1 {
		t.Fatalf("gateway requests = %d, want 1", len(reqs))
	}
	if reqs[0].UserQuery != "how much does it cost" {
		t.Errorf("UserQuery = %q", reqs[0].UserQuery)
	}
	// History carries the turns that existed when the request was issued.
	if len(reqs[0].History) != 2 {
		t.Errorf("history length = %d, want 2", len(reqs[0].History))
	}
}

func TestController_EmptyFinalForwardedWithoutUserTurn(t *testing.T) {
	t.Parallel()

	f := newFixture(t, nil)
	f.ctrl.Start()
	f.waitState(t, StateAISpeaking)
	f.pb.finish()
	f.waitState(t, StateListening)

	f.ctrl.OnFinal("")
	waitFor(t, func() bool { return len(f.gw.requests()) == 1 }, "gateway called for silent turn")

	if got := f.gw.requests()[0].UserQuery; got != "" {
		t.Errorf("UserQuery = %q, want empty", got)
	}
	if got := userTurns(f.ctrl.Turns()); len(got) != 0 {
		t.Errorf("user turns = %d for empty final, want 0", len(got))
	}
}

func TestController_SynthesisFailureDegradesToTextOnly(t *testing.T) {
	t.Parallel()

	f := newFixture(t, nil)
	f.ctrl.Start()
	f.waitState(t, StateAISpeaking)
	f.pb.finish()
	f.waitState(t, StateListening)

	f.tts.SynthesizeErr = errors.New("voice service down")
	f.gw.fn = func(gateway.Request) (*gateway.Response, error) {
		return &gateway.Response{AIResponseText: "text only reply"}, nil
	}

	playsBefore := f.pb.playCount()
	f.ctrl.OnFinal("tell me more")
	// The controller is already Listening, so waiting on state alone would
	// race the event loop; wait for the degraded turn to land first.
	waitFor(t, func() bool { return len(f.ctrl.Turns()) == 3 }, "degraded turn appended")
	f.waitState(t, StateListening)

	turns := f.ctrl.Turns()
	last := turns[len(turns)-1]
	if last.Text != "text only reply" || last.Speaker != SpeakerAI {
		t.Fatalf("last turn = %+v, want degraded agent reply", last)
	}
	if last.AudioDataURI != "" {
		t.Error("degraded turn has audio")
	}
	if f.pb.playCount() != playsBefore {
		t.Error("playback started despite synthesis failure")
	}
}

func TestController_PlaybackFailureFallsBackToListening(t *testing.T) {
	t.Parallel()

	f := newFixture(t, nil)
	f.pb.playErr = errors.New("autoplay blocked")

	f.ctrl.Start()
	f.waitState(t, StateListening)

	if got := len(f.ctrl.Turns()); got != 1 {
		t.Errorf("turns = %d, want 1 (welcome kept as text)", got)
	}
}

// ─── Barge-in (§8 scenarios 1–2, mutual exclusion) ───────────────────────────

func TestController_BargeInCancelsPlaybackBeforeGateway(t *testing.T) {
	t.Parallel()

	f := newFixture(t, nil)
	// The gateway observes playback state at dispatch time: barge-in must
	// have settled before the final transcript is forwarded.
	activeAtDispatch := make(chan bool, 1)
	f.gw.fn = func(gateway.Request) (*gateway.Response, error) {
		activeAtDispatch <- f.pb.Active()
		return &gateway.Response{AIResponseText: "go on"}, nil
	}

	f.ctrl.Start()
	f.waitState(t, StateAISpeaking)
	waitFor(t, func() bool { return f.pb.Active() }, "welcome playing")

	f.ctrl.OnInterim("actually")
	f.waitState(t, StateListening)
	if f.pb.cancelCount() != 1 {
		t.Fatalf("cancel count = %d, want 1", f.pb.cancelCount())
	}

	f.ctrl.OnFinal("actually I have a question")
	select {
	case active := <-activeAtDispatch:
		if active {
			t.Error("playback still active when final was forwarded to gateway")
		}
	case <-time.After(3 * time.Second):
		t.Fatal("gateway never called")
	}

	// The interrupted welcome is not appended twice.
	if got := agentTurns(f.ctrl.Turns()); len(got) < 1 {
		t.Fatal("welcome turn missing")
	} else {
		welcome := got[0].Text
		count := 0
		for _, tr := range f.ctrl.Turns() {
			if tr.Text == welcome {
				count++
			}
		}
		if count != 1 {
			t.Errorf("welcome appended %d times, want 1", count)
		}
	}
}

func TestController_ResourceMutualExclusion(t *testing.T) {
	t.Parallel()

	f := newFixture(t, nil)
	f.ctrl.Start()
	f.waitState(t, StateAISpeaking)
	waitFor(t, func() bool { return f.pb.Active() }, "welcome playing")

	f.ctrl.OnInterim("hey")
	f.waitState(t, StateListening)

	// After cancellation settles, only recognition holds a resource.
	if f.pb.Active() {
		t.Error("playback active in LISTENING after barge-in settled")
	}
}

// ─── Gateway failure (§8 scenario 3) ─────────────────────────────────────────

func TestController_GatewayErrorTurnsAndReset(t *testing.T) {
	t.Parallel()

	f := newFixture(t, nil)
	f.gw.fn = func(gateway.Request) (*gateway.Response, error) {
		return &gateway.Response{ErrorMessage: "boom"}, nil
	}

	f.ctrl.Start()
	f.waitState(t, StateAISpeaking)
	f.pb.finish()
	f.waitState(t, StateListening)

	f.ctrl.OnFinal("anything")
	f.waitState(t, StateError)

	turns := f.ctrl.Turns()
	last := turns[len(turns)-1]
	if last.Speaker != SpeakerAI || last.Text != "boom" || !last.IsError {
		t.Fatalf("error turn = %+v, want AI turn with text %q", last, "boom")
	}

	f.ctrl.Reset()
	f.waitState(t, StateConfiguring)
	f.ctrl.Wait()

	if got := len(f.ctrl.Turns()); got != 0 {
		t.Errorf("turns after reset = %d, want 0", got)
	}
	// The aborted call was logged exactly once before the reset cleared it.
	entries, err := f.store.List(context.Background(), 10)
	if err != nil {
		t.Fatalf("List: %v", err)
	}
	if len(entries) != 1 {
		t.Fatalf("activity entries = %d, want 1", len(entries))
	}
	if !strings.Contains(entries[0].Transcript, "boom") {
		t.Errorf("logged transcript missing error turn: %q", entries[0].Transcript)
	}
}

func TestController_GatewayTransportErrorSurfaced(t *testing.T) {
	t.Parallel()

	f := newFixture(t, nil)
	f.gw.fn = func(gateway.Request) (*gateway.Response, error) {
		return nil, errors.New("upstream timeout")
	}

	f.ctrl.Start()
	f.waitState(t, StateAISpeaking)
	f.pb.finish()
	f.waitState(t, StateListening)

	before := len(f.ctrl.Turns())
	f.ctrl.OnFinal("hello")
	f.waitState(t, StateError)

	turns := f.ctrl.Turns()
	// Prior turns untouched, one user turn plus one error turn appended.
	if len(turns) != before+2 {
		t.Fatalf("turns = %d, want %d", len(turns), before+2)
	}
	if !turns[len(turns)-1].IsError {
		t.Error("last turn not marked as error")
	}
}

// ─── Sequence guard (§8 scenario 4) ──────────────────────────────────────────

func TestController_StaleGatewayResponseDiscarded(t *testing.T) {
	t.Parallel()

	f := newFixture(t, nil)
	release := make(chan struct{})
	f.gw.fn = func(req gateway.Request) (*gateway.Response, error) {
		if req.UserQuery == "turn n" {
			<-release // resolves only after turn n+1 already answered
			return &gateway.Response{AIResponseText: "stale reply"}, nil
		}
		return &gateway.Response{AIResponseText: "fresh reply"}, nil
	}

	f.ctrl.Start()
	f.waitState(t, StateAISpeaking)
	f.pb.finish()
	f.waitState(t, StateListening)

	f.ctrl.OnFinal("turn n")
	f.waitState(t, StateProcessing)
	f.ctrl.OnFinal("turn n plus one")

	f.waitState(t, StateAISpeaking) // fresh reply plays
	close(release)
	f.ctrl.Wait()

	for _, tr := range f.ctrl.Turns() {
		if tr.Text == "stale reply" {
			t.Fatal("stale response for superseded turn was applied")
		}
	}
	found := false
	for _, tr := range f.ctrl.Turns() {
		if tr.Text == "fresh reply" {
			found = true
		}
	}
	if !found {
		t.Error("fresh reply missing from conversation")
	}
}

// ─── Timers ──────────────────────────────────────────────────────────────────

func TestController_EndpointTimerForcesCaptureStop(t *testing.T) {
	t.Parallel()

	f := newFixture(t, func(cfg *Config, _ *Deps) {
		cfg.EndpointWindow = 30 * time.Millisecond
	})
	f.ctrl.Start()
	f.waitState(t, StateAISpeaking)
	f.pb.finish()
	f.waitState(t, StateListening)

	stopsBefore := f.cap.stopCount()
	f.ctrl.OnInterim("hel")
	waitFor(t, func() bool { return f.cap.stopCount() > stopsBefore },
		"endpoint expiry stops capture")
}

func TestController_EndpointTimerRearmsWithoutDoubleFire(t *testing.T) {
	t.Parallel()

	f := newFixture(t, func(cfg *Config, _ *Deps) {
		cfg.EndpointWindow = 60 * time.Millisecond
	})
	f.ctrl.Start()
	f.waitState(t, StateAISpeaking)
	f.pb.finish()
	f.waitState(t, StateListening)

	stopsBefore := f.cap.stopCount()
	// Rearm several times in quick succession: only one live handle may
	// exist, so exactly one expiry fires after the last rearm.
	for range 4 {
		f.ctrl.OnInterim("still talking")
		time.Sleep(15 * time.Millisecond)
	}
	waitFor(t, func() bool { return f.cap.stopCount() == stopsBefore+1 },
		"single endpoint expiry")
	time.Sleep(120 * time.Millisecond)
	if got := f.cap.stopCount(); got != stopsBefore+1 {
		t.Errorf("capture stops = %d, want %d (no double fire)", got, stopsBefore+1)
	}
}

func TestController_SilenceProducesOneReminder(t *testing.T) {
	t.Parallel()

	f := newFixture(t, func(cfg *Config, _ *Deps) {
		cfg.ReminderWindow = 50 * time.Millisecond
	})
	f.ctrl.Start()
	f.waitState(t, StateAISpeaking)
	f.pb.finish()

	// Caller never speaks: exactly one reminder is appended and played
	// before any user turn exists.
	waitFor(t, func() bool { return len(f.ctrl.Turns()) == 2 }, "reminder turn appended")
	f.ctrl.End()
	f.waitState(t, StateEnded)

	turns := f.ctrl.Turns()
	if len(userTurns(turns)) != 0 {
		t.Error("user turn exists before reminder")
	}
	pool := SalesStrategy{}.Reminders()
	if turns[1].Speaker != SpeakerAI || turns[1].Text != pool[0] {
		t.Errorf("reminder turn = %+v, want pool[0] %q", turns[1], pool[0])
	}
}

func TestController_ReminderRotationWrapsAround(t *testing.T) {
	t.Parallel()

	f := newFixture(t, func(cfg *Config, _ *Deps) {
		cfg.ReminderWindow = 40 * time.Millisecond
	})
	f.pb.autoEnd = true // each reminder finishes playing immediately

	f.ctrl.Start()
	pool := SalesStrategy{}.Reminders()
	wantReminders := len(pool) + 1 // one full cycle plus wraparound

	waitFor(t, func() bool { return len(f.ctrl.Turns()) >= 1+wantReminders },
		"reminders accumulated")
	f.ctrl.End()
	f.waitState(t, StateEnded)

	agents := agentTurns(f.ctrl.Turns())
	reminders := agents[1:] // skip welcome
	for i := 0; i < wantReminders; i++ {
		want := pool[i%len(pool)]
		if reminders[i].Text != want {
			t.Errorf("reminder %d = %q, want %q", i, reminders[i].Text, want)
		}
	}
}

func TestController_InterimCancelsReminder(t *testing.T) {
	t.Parallel()

	f := newFixture(t, func(cfg *Config, _ *Deps) {
		cfg.ReminderWindow = 60 * time.Millisecond
	})
	f.ctrl.Start()
	f.waitState(t, StateAISpeaking)
	f.pb.finish()
	f.waitState(t, StateListening)

	f.ctrl.OnInterim("um")
	time.Sleep(150 * time.Millisecond)

	if got := len(f.ctrl.Turns()); got != 1 {
		t.Errorf("turns = %d after canceled reminder window, want 1", got)
	}
}

func TestController_EmptyInterimCancelsReminder(t *testing.T) {
	t.Parallel()

	f := newFixture(t, func(cfg *Config, _ *Deps) {
		cfg.ReminderWindow = 60 * time.Millisecond
	})
	f.ctrl.Start()
	f.waitState(t, StateAISpeaking)
	f.pb.finish()
	f.waitState(t, StateListening)

	// Noise with no recognized words still counts as speech activity:
	// the reminder must not talk over a caller mid-utterance.
	f.ctrl.OnInterim("")
	time.Sleep(150 * time.Millisecond)

	if got := len(f.ctrl.Turns()); got != 1 {
		t.Errorf("turns = %d after empty-interim reminder window, want 1", got)
	}
}

// ─── End / Reset lifecycle ───────────────────────────────────────────────────

func TestController_EndIsIdempotentAndLogsOnce(t *testing.T) {
	t.Parallel()

	f := newFixture(t, nil)
	f.ctrl.Start()
	f.waitState(t, StateAISpeaking)
	f.pb.finish()
	f.waitState(t, StateListening)

	f.ctrl.End()
	f.waitState(t, StateEnded)
	f.ctrl.End()
	time.Sleep(50 * time.Millisecond)
	f.ctrl.Wait()

	if got := f.ctrl.State(); got != StateEnded {
		t.Errorf("state = %v, want ENDED", got)
	}
	entries, err := f.store.List(context.Background(), 10)
	if err != nil {
		t.Fatalf("List: %v", err)
	}
	if len(entries) != 1 {
		t.Errorf("activity entries = %d, want 1", len(entries))
	}
	if entries[0].Kind != activity.KindSalesCall {
		t.Errorf("entry kind = %q", entries[0].Kind)
	}
}

func TestController_ResetWhenIdleIsNoOp(t *testing.T) {
	t.Parallel()

	f := newFixture(t, nil)
	f.ctrl.Reset()
	f.ctrl.Reset()
	time.Sleep(50 * time.Millisecond)

	if got := f.ctrl.State(); got != StateConfiguring {
		t.Errorf("state = %v, want CONFIGURING", got)
	}
	entries, _ := f.store.List(context.Background(), 10)
	if len(entries) != 0 {
		t.Errorf("activity entries = %d after idle resets, want 0", len(entries))
	}
}

func TestController_ResetAfterEndDoesNotLogTwice(t *testing.T) {
	t.Parallel()

	f := newFixture(t, nil)
	f.ctrl.Start()
	f.waitState(t, StateAISpeaking)
	f.ctrl.End()
	f.waitState(t, StateEnded)
	f.ctrl.Reset()
	f.waitState(t, StateConfiguring)
	f.ctrl.Wait()

	entries, _ := f.store.List(context.Background(), 10)
	if len(entries) != 1 {
		t.Errorf("activity entries = %d, want 1", len(entries))
	}

	// The controller is reusable for a fresh call after reset.
	f.ctrl.Start()
	f.waitState(t, StateAISpeaking)
	if got := len(f.ctrl.Turns()); got != 1 {
		t.Errorf("turns in new call = %d, want 1", got)
	}
}

// ─── Misc ────────────────────────────────────────────────────────────────────

func TestController_CaptureFatalLeavesCallUsable(t *testing.T) {
	t.Parallel()

	f := newFixture(t, nil)
	f.ctrl.Start()
	f.waitState(t, StateAISpeaking)
	f.pb.finish()
	f.waitState(t, StateListening)

	f.ctrl.OnCaptureFatal(errors.New("not-allowed"))

	// Typed input still drives the call.
	f.ctrl.SubmitText("typing instead")
	waitFor(t, func() bool { return len(f.gw.requests()) == 1 }, "typed turn forwarded")
	if got := f.gw.requests()[0].UserQuery; got != "typing instead" {
		t.Errorf("UserQuery = %q", got)
	}
}

func TestController_LiveDataSecondRoundTrip(t *testing.T) {
	t.Parallel()

	fetched := "current stock: 42 units"
	f := newFixture(t, func(_ *Config, deps *Deps) {
		deps.LiveData = liveDataFunc(func(_ context.Context, _, _ string) (string, error) {
			return fetched, nil
		})
	})
	f.gw.fn = func(req gateway.Request) (*gateway.Response, error) {
		if req.LiveData == "" {
			return &gateway.Response{RequiresLiveDataFetch: true}, nil
		}
		return &gateway.Response{AIResponseText: "we have 42 in stock"}, nil
	}

	f.ctrl.Start()
	f.waitState(t, StateAISpeaking)
	f.pb.finish()
	f.waitState(t, StateListening)

	f.ctrl.OnFinal("is it in stock")
	f.waitState(t, StateAISpeaking)

	reqs := f.gw.requests()
	if len(reqs) != 2 {
		t.Fatalf("gateway requests = %d, want 2 (live-data retry)", len(reqs))
	}
	if reqs[1].LiveData != fetched {
		t.Errorf("retry LiveData = %q, want %q", reqs[1].LiveData, fetched)
	}
}

type liveDataFunc func(ctx context.Context, product, question string) (string, error)

func (f liveDataFunc) Fetch(ctx context.Context, product, question string) (string, error) {
	return f(ctx, product, question)
}

func TestFlattenTranscript(t *testing.T) {
	t.Parallel()

	turns := []Turn{
		{Speaker: SpeakerAI, Text: "Hello"},
		{Speaker: SpeakerUser, Text: "Hi"},
	}
	want := "AI: Hello\nUser: Hi"
	if got := FlattenTranscript(turns); got != want {
		t.Errorf("FlattenTranscript = %q, want %q", got, want)
	}
	if got := FlattenTranscript(nil); got != "" {
		t.Errorf("FlattenTranscript(nil) = %q, want empty", got)
	}
}

func TestStateString(t *testing.T) {
	t.Parallel()

	cases := map[State]string{
		StateConfiguring: "CONFIGURING",
		StateListening:   "LISTENING",
		StateProcessing:  "PROCESSING",
		StateAISpeaking:  "AI_SPEAKING",
		StateEnded:       "ENDED",
		StateError:       "ERROR",
		State(99):        "UNKNOWN",
	}
	for s, want := range cases {
		if got := s.String(); got != want {
			t.Errorf("State(%d).String() = %q, want %q", int(s), got, want)
		}
	}
}

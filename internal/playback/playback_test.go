package playback

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"sync/atomic"
	"testing"
	"time"
)

type fakeSink struct {
	mu      sync.Mutex
	audio   [][]byte
	stops   int
	sendErr error
}

func (f *fakeSink) SendAudio(_ context.Context, pcm []byte, _ int) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.sendErr != nil {
		return f.sendErr
	}
	cp := make([]byte, len(pcm))
	copy(cp, pcm)
	f.audio = append(f.audio, cp)
	return nil
}

func (f *fakeSink) SendStop(context.Context) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.stops++
	return nil
}

func (f *fakeSink) stopCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.stops
}

func TestController_PlayAndNotifyEnded(t *testing.T) {
	t.Parallel()

	sink := &fakeSink{}
	c := New(sink, slog.New(slog.DiscardHandler))
	t.Cleanup(func() { _ = c.Close() })

	var ended atomic.Int32
	pcm := make([]byte, 32000) // 1s at 16kHz mono
	if err := c.Play(context.Background(), pcm, 16000, func() { ended.Add(1) }); err != nil {
		t.Fatalf("Play: %v", err)
	}
	if !c.Active() {
		t.Fatal("not active after Play")
	}

	c.NotifyEnded()
	if c.Active() {
		t.Error("still active after NotifyEnded")
	}
	if ended.Load() != 1 {
		t.Errorf("onEnded fired %d times, want 1", ended.Load())
	}

	// Duplicate ack must not re-fire.
	c.NotifyEnded()
	if ended.Load() != 1 {
		t.Errorf("onEnded fired %d times after duplicate ack, want 1", ended.Load())
	}
}

func TestController_PlayWhileActiveIsBusy(t *testing.T) {
	t.Parallel()

	sink := &fakeSink{}
	c := New(sink, slog.New(slog.DiscardHandler))
	t.Cleanup(func() { _ = c.Close() })

	if err := c.Play(context.Background(), make([]byte, 32000), 16000, nil); err != nil {
		t.Fatalf("Play: %v", err)
	}
	if err := c.Play(context.Background(), make([]byte, 32000), 16000, nil); !errors.Is(err, ErrBusy) {
		t.Fatalf("second Play error = %v, want ErrBusy", err)
	}
}

func TestController_CancelSuppressesOnEnded(t *testing.T) {
	t.Parallel()

	sink := &fakeSink{}
	c := New(sink, slog.New(slog.DiscardHandler))
	t.Cleanup(func() { _ = c.Close() })

	var ended atomic.Int32
	// Very short clip so the wall-clock fallback would fire quickly if the
	// cancel failed to dispose it.
	if err := c.Play(context.Background(), make([]byte, 320), 16000, func() { ended.Add(1) }); err != nil {
		t.Fatalf("Play: %v", err)
	}
	c.Cancel(context.Background())

	if c.Active() {
		t.Error("active after Cancel")
	}
	if sink.stopCount() != 1 {
		t.Errorf("SendStop called %d times, want 1", sink.stopCount())
	}

	time.Sleep(2 * completionGrace)
	if ended.Load() != 0 {
		t.Errorf("onEnded fired %d times after Cancel, want 0", ended.Load())
	}

	// Cancel is idempotent and quiet when nothing plays.
	c.Cancel(context.Background())
	if sink.stopCount() != 1 {
		t.Errorf("SendStop called %d times after idle Cancel, want 1", sink.stopCount())
	}
}

func TestController_FallbackTimerCompletes(t *testing.T) {
	t.Parallel()

	sink := &fakeSink{}
	c := New(sink, slog.New(slog.DiscardHandler))
	t.Cleanup(func() { _ = c.Close() })

	var ended atomic.Int32
	// 10ms of audio; fallback fires after duration + grace.
	if err := c.Play(context.Background(), make([]byte, 320), 16000, func() { ended.Add(1) }); err != nil {
		t.Fatalf("Play: %v", err)
	}

	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) && ended.Load() == 0 {
		time.Sleep(10 * time.Millisecond)
	}
	if ended.Load() != 1 {
		t.Fatalf("onEnded fired %d times via fallback, want 1", ended.Load())
	}
	if c.Active() {
		t.Error("active after fallback completion")
	}
}

func TestController_SendFailureClearsState(t *testing.T) {
	t.Parallel()

	sink := &fakeSink{sendErr: errors.New("socket closed")}
	c := New(sink, slog.New(slog.DiscardHandler))
	t.Cleanup(func() { _ = c.Close() })

	if err := c.Play(context.Background(), make([]byte, 320), 16000, nil); err == nil {
		t.Fatal("expected error from Play with failing sink")
	}
	if c.Active() {
		t.Error("active after failed Play")
	}

	// The controller must be usable again afterwards.
	sink.sendErr = nil
	if err := c.Play(context.Background(), make([]byte, 320), 16000, nil); err != nil {
		t.Fatalf("Play after recovery: %v", err)
	}
}

func TestDuration(t *testing.T) {
	t.Parallel()

	cases := []struct {
		byteLen, rate int
		want          time.Duration
	}{
		{32000, 16000, time.Second},
		{16000, 16000, 500 * time.Millisecond},
		{0, 16000, 0},
		{32000, 0, 0},
	}
	for _, tc := range cases {
		if got := Duration(tc.byteLen, tc.rate); got != tc.want {
			t.Errorf("Duration(%d, %d) = %v, want %v", tc.byteLen, tc.rate, got, tc.want)
		}
	}
}

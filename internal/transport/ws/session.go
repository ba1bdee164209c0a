package ws

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"sync"
	"time"

	"github.com/coder/websocket"

	"github.com/voxhall/telesuite/internal/call"
	"github.com/voxhall/telesuite/internal/playback"
	"github.com/voxhall/telesuite/pkg/audio"
)

// writeTimeout bounds every outbound frame write so a stalled client cannot
// block the controller's reducer goroutine.
const writeTimeout = 5 * time.Second

// session owns one websocket connection and the call pipeline behind it. It
// implements [playback.Sink] (agent audio out) and [call.Notifier] (state and
// transcript events out).
type session struct {
	conn    *websocket.Conn
	factory Factory
	logger  *slog.Logger
	subject string

	ctx    context.Context
	cancel context.CancelFunc

	// wmu serialises all writes to conn.
	wmu sync.Mutex

	// mu guards pipeline and decoder, set once on configure.
	mu       sync.Mutex
	pipeline *Pipeline
	decoder  *audio.OpusDecoder
}

var (
	_ playback.Sink = (*session)(nil)
	_ call.Notifier = (*session)(nil)
)

func newSession(conn *websocket.Conn, factory Factory, subject string, logger *slog.Logger) *session {
	ctx, cancel := context.WithCancel(context.Background())
	return &session{
		conn:    conn,
		factory: factory,
		logger:  logger.With("component", "ws", "subject", subject),
		subject: subject,
		ctx:     ctx,
		cancel:  cancel,
	}
}

// run processes inbound frames until the connection closes, then tears down
// the call pipeline. Blocks for the lifetime of the connection.
func (s *session) run(ctx context.Context) {
	defer s.teardown()

	for {
		typ, data, err := s.conn.Read(ctx)
		if err != nil {
			status := websocket.CloseStatus(err)
			if status == websocket.StatusNormalClosure || status == websocket.StatusGoingAway {
				s.logger.Debug("connection closed", "status", status.String())
			} else if !errors.Is(err, context.Canceled) {
				s.logger.Warn("connection read failed", "error", err)
			}
			return
		}

		switch typ {
		case websocket.MessageText:
			s.handleText(data)
		case websocket.MessageBinary:
			s.handleAudio(data)
		}
	}
}

// handleText dispatches one JSON control frame.
func (s *session) handleText(data []byte) {
	var msg clientMessage
	if err := json.Unmarshal(data, &msg); err != nil {
		s.sendError("malformed message")
		return
	}

	if msg.Type == msgConfigure {
		s.configure(msg)
		return
	}

	p := s.currentPipeline()
	if p == nil {
		s.sendError("call not configured")
		return
	}

	switch msg.Type {
	case msgStart:
		p.Controller.Start()
	case msgText:
		p.Controller.SubmitText(msg.Text)
	case msgPlaybackEnded:
		p.Playback.NotifyEnded()
	case msgEnd:
		p.Controller.End()
	case msgReset:
		p.Controller.Reset()
	default:
		s.sendError("unknown message type: " + msg.Type)
	}
}

// configure builds the call pipeline for the selected agent. A second
// configure on a live connection is rejected; the client should reset and
// reconnect instead.
func (s *session) configure(msg clientMessage) {
	s.mu.Lock()
	already := s.pipeline != nil
	s.mu.Unlock()
	if already {
		s.sendError("call already configured")
		return
	}

	p, err := s.factory.NewCall(msg.Agent, msg.UserName, s, s)
	if err != nil {
		s.logger.Warn("configure failed", "agent", msg.Agent, "error", err)
		s.sendError("configure failed: " + err.Error())
		return
	}

	dec, err := audio.NewOpusDecoder()
	if err != nil {
		p.close()
		s.sendError("audio setup failed")
		return
	}

	s.mu.Lock()
	s.pipeline = p
	s.decoder = dec
	s.mu.Unlock()

	s.logger.Info("call configured", "agent", msg.Agent)
}

// handleAudio decodes one inbound Opus packet and feeds the capture adapter
// and the full-call recorder.
func (s *session) handleAudio(packet []byte) {
	s.mu.Lock()
	p, dec := s.pipeline, s.decoder
	s.mu.Unlock()
	if p == nil || dec == nil {
		return
	}

	pcm, err := dec.Decode(packet)
	if err != nil {
		s.logger.Debug("opus decode failed", "error", err)
		return
	}

	if p.Capture != nil {
		p.Capture.SendAudio(pcm)
	}
	p.Controller.AppendUserAudio(pcm, dec.SampleRate(), dec.Channels())
}

func (s *session) currentPipeline() *Pipeline {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.pipeline
}

// teardown ends the call and releases the pipeline. Safe to call once, from
// the read loop's defer.
func (s *session) teardown() {
	s.cancel()
	s.mu.Lock()
	p := s.pipeline
	s.pipeline = nil
	s.mu.Unlock()
	if p != nil {
		p.Controller.End()
		p.close()
	}
}

// ─── playback.Sink ────────────────────────────────────────────────────────────

// SendAudio delivers one complete agent utterance as a binary WAV frame. The
// WAV header carries the sample rate, keeping codec detail out of the JSON
// protocol.
func (s *session) SendAudio(ctx context.Context, pcm []byte, sampleRate int) error {
	wav := audio.EncodeWAV(pcm, sampleRate, 1)

	ctx, cancel := context.WithTimeout(ctx, writeTimeout)
	defer cancel()

	s.wmu.Lock()
	defer s.wmu.Unlock()
	return s.conn.Write(ctx, websocket.MessageBinary, wav)
}

// SendStop tells the client to abort in-progress playback (barge-in).
func (s *session) SendStop(ctx context.Context) error {
	return s.writeJSON(ctx, serverMessage{Type: evtPlaybackStop})
}

// ─── call.Notifier ────────────────────────────────────────────────────────────

// StateChanged forwards a state transition to the client.
func (s *session) StateChanged(st call.State) {
	_ = s.writeJSON(s.ctx, serverMessage{Type: evtState, State: st.String()})
}

// TurnAppended forwards a new transcript turn to the client.
func (s *session) TurnAppended(t call.Turn) {
	_ = s.writeJSON(s.ctx, serverMessage{Type: evtTurn, Turn: newTurnPayload(t)})
}

// TurnUpdated forwards a turn that gained synthesized audio.
func (s *session) TurnUpdated(t call.Turn) {
	_ = s.writeJSON(s.ctx, serverMessage{Type: evtTurnUpdate, Turn: newTurnPayload(t)})
}

// ─── outbound helpers ─────────────────────────────────────────────────────────

func (s *session) sendError(msg string) {
	_ = s.writeJSON(s.ctx, serverMessage{Type: evtError, Error: msg})
}

func (s *session) writeJSON(ctx context.Context, msg serverMessage) error {
	data, err := json.Marshal(msg)
	if err != nil {
		return err
	}

	ctx, cancel := context.WithTimeout(ctx, writeTimeout)
	defer cancel()

	s.wmu.Lock()
	defer s.wmu.Unlock()
	return s.conn.Write(ctx, websocket.MessageText, data)
}

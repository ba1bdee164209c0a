package ws

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/coder/websocket"
	"github.com/golang-jwt/jwt/v5"

	"github.com/voxhall/telesuite/internal/call"
	"github.com/voxhall/telesuite/internal/gateway"
	"github.com/voxhall/telesuite/internal/playback"
	ttsmock "github.com/voxhall/telesuite/pkg/provider/tts/mock"
)

// stubCapture satisfies call.Capture for sessions without a live STT backend.
type stubCapture struct{}

func (stubCapture) Start(context.Context) error { return nil }
func (stubCapture) Stop() error                 { return nil }

type gatewayFunc func(ctx context.Context, req gateway.Request) (*gateway.Response, error)

func (f gatewayFunc) Respond(ctx context.Context, req gateway.Request) (*gateway.Response, error) {
	return f(ctx, req)
}

// testFactory wires a minimal pipeline: echo gateway, mock TTS, no capture
// adapter (typed input only).
func testFactory(t *testing.T) Factory {
	t.Helper()
	logger := slog.New(slog.DiscardHandler)

	return FactoryFunc(func(agent, userName string, sink playback.Sink, notify call.Notifier) (*Pipeline, error) {
		pb := playback.New(sink, logger)

		gw := gatewayFunc(func(_ context.Context, req gateway.Request) (*gateway.Response, error) {
			return &gateway.Response{AIResponseText: "echo: " + req.UserQuery}, nil
		})

		ctrl, err := call.New(
			call.Config{
				Product:        "FiberMax",
				AgentName:      agent,
				UserName:       userName,
				EndpointWindow: time.Hour,
				ReminderWindow: time.Hour,
			},
			call.SalesStrategy{},
			call.Deps{
				Capture:  stubCapture{},
				Playback: pb,
				Gateway:  gw,
				Synth:    &ttsmock.Provider{SynthesizeAudio: make([]byte, 3200)},
				Notify:   notify,
				Logger:   logger,
			},
		)
		if err != nil {
			return nil, err
		}
		return &Pipeline{Controller: ctrl, Playback: pb}, nil
	})
}

func newTestServer(t *testing.T, secret []byte) *httptest.Server {
	t.Helper()
	opts := []Option{WithLogger(slog.New(slog.DiscardHandler))}
	if secret != nil {
		opts = append(opts, WithJWTSecret(secret))
	}
	h := NewHandler(testFactory(t), opts...)

	mux := http.NewServeMux()
	h.Register(mux)
	srv := httptest.NewServer(mux)
	t.Cleanup(srv.Close)
	return srv
}

func wsURL(srv *httptest.Server) string {
	return "ws" + strings.TrimPrefix(srv.URL, "http") + "/ws/call"
}

func signToken(t *testing.T, secret []byte, subject string) string {
	t.Helper()
	tok := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.RegisteredClaims{
		Subject:   subject,
		ExpiresAt: jwt.NewNumericDate(time.Now().Add(time.Hour)),
	})
	signed, err := tok.SignedString(secret)
	if err != nil {
		t.Fatalf("sign token: %v", err)
	}
	return signed
}

func dial(t *testing.T, srv *httptest.Server, token string) *websocket.Conn {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	var opts websocket.DialOptions
	if token != "" {
		opts.HTTPHeader = http.Header{"Authorization": {"Bearer " + token}}
	}
	conn, _, err := websocket.Dial(ctx, wsURL(srv), &opts)
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	t.Cleanup(func() { _ = conn.CloseNow() })
	return conn
}

func send(t *testing.T, conn *websocket.Conn, msg clientMessage) {
	t.Helper()
	data, err := json.Marshal(msg)
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := conn.Write(ctx, websocket.MessageText, data); err != nil {
		t.Fatalf("write: %v", err)
	}
}

// frame is one received websocket frame, decoded when textual.
type frame struct {
	msg    *serverMessage
	binary []byte
}

// readUntil reads frames until pred returns true, failing the test on timeout.
func readUntil(t *testing.T, conn *websocket.Conn, pred func(frame) bool) []frame {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	var frames []frame
	for {
		typ, data, err := conn.Read(ctx)
		if err != nil {
			t.Fatalf("read (after %d frames): %v", len(frames), err)
		}
		var f frame
		if typ == websocket.MessageBinary {
			f.binary = data
		} else {
			var msg serverMessage
			if err := json.Unmarshal(data, &msg); err != nil {
				t.Fatalf("unmarshal server message: %v", err)
			}
			f.msg = &msg
		}
		frames = append(frames, f)
		if pred(f) {
			return frames
		}
	}
}

func stateEvent(name string) func(frame) bool {
	return func(f frame) bool {
		return f.msg != nil && f.msg.Type == evtState && f.msg.State == name
	}
}

// ─── auth ─────────────────────────────────────────────────────────────────────

func TestHandler_RejectsMissingToken(t *testing.T) {
	t.Parallel()
	srv := newTestServer(t, []byte("sekrit"))

	resp, err := http.Get(srv.URL + "/ws/call")
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusUnauthorized {
		t.Fatalf("status = %d, want %d", resp.StatusCode, http.StatusUnauthorized)
	}
}

func TestHandler_RejectsBadSignature(t *testing.T) {
	t.Parallel()
	srv := newTestServer(t, []byte("sekrit"))

	token := signToken(t, []byte("wrong-secret"), "agent-7")
	req, _ := http.NewRequest("GET", srv.URL+"/ws/call", nil)
	req.Header.Set("Authorization", "Bearer "+token)
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatalf("do: %v", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusUnauthorized {
		t.Fatalf("status = %d, want %d", resp.StatusCode, http.StatusUnauthorized)
	}
}

func TestHandler_AcceptsValidToken(t *testing.T) {
	t.Parallel()
	secret := []byte("sekrit")
	srv := newTestServer(t, secret)

	conn := dial(t, srv, signToken(t, secret, "agent-7"))
	_ = conn.Close(websocket.StatusNormalClosure, "done")
}

func TestHandler_OpenWithoutSecret(t *testing.T) {
	t.Parallel()
	srv := newTestServer(t, nil)

	conn := dial(t, srv, "")
	_ = conn.Close(websocket.StatusNormalClosure, "done")
}

func TestBearerToken(t *testing.T) {
	t.Parallel()
	tests := []struct {
		name   string
		header string
		query  string
		want   string
	}{
		{"header", "Bearer abc123", "", "abc123"},
		{"query", "", "abc123", "abc123"},
		{"header wins", "Bearer fromheader", "fromquery", "fromheader"},
		{"malformed header", "Token abc123", "", ""},
		{"none", "", "", ""},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			url := "/ws/call"
			if tt.query != "" {
				url += "?token=" + tt.query
			}
			r := httptest.NewRequest("GET", url, nil)
			if tt.header != "" {
				r.Header.Set("Authorization", tt.header)
			}
			if got := bearerToken(r); got != tt.want {
				t.Errorf("bearerToken = %q, want %q", got, tt.want)
			}
		})
	}
}

// ─── session flow ─────────────────────────────────────────────────────────────

func TestSession_WelcomeFlow(t *testing.T) {
	t.Parallel()
	srv := newTestServer(t, nil)
	conn := dial(t, srv, "")

	send(t, conn, clientMessage{Type: msgConfigure, Agent: "Priya", UserName: "Alex"})
	send(t, conn, clientMessage{Type: msgStart})

	// The agent speaks first: a welcome turn, AI_SPEAKING, and a WAV frame.
	var sawBinary bool
	frames := readUntil(t, conn, func(f frame) bool {
		if f.binary != nil {
			sawBinary = true
		}
		return sawBinary
	})

	var welcome *turnPayload
	for _, f := range frames {
		if f.msg != nil && f.msg.Type == evtTurn {
			welcome = f.msg.Turn
		}
	}
	if welcome == nil {
		t.Fatal("no turn event before agent audio")
	}
	if welcome.Speaker != "AI" {
		t.Fatalf("welcome speaker = %q, want AI", welcome.Speaker)
	}
	if !strings.Contains(welcome.Text, "Priya") {
		t.Fatalf("welcome text %q does not mention the agent", welcome.Text)
	}

	// WAV magic: RIFF header.
	bin := frames[len(frames)-1].binary
	if len(bin) < 12 || string(bin[:4]) != "RIFF" {
		t.Fatalf("binary frame is not a WAV file (got %d bytes)", len(bin))
	}

	// Client acks playback; the call settles into listening.
	send(t, conn, clientMessage{Type: msgPlaybackEnded})
	readUntil(t, conn, stateEvent("LISTENING"))
}

func TestSession_TypedTextTurn(t *testing.T) {
	t.Parallel()
	srv := newTestServer(t, nil)
	conn := dial(t, srv, "")

	send(t, conn, clientMessage{Type: msgConfigure, Agent: "Priya", UserName: "Alex"})
	send(t, conn, clientMessage{Type: msgStart})
	readUntil(t, conn, func(f frame) bool { return f.binary != nil })
	send(t, conn, clientMessage{Type: msgPlaybackEnded})
	readUntil(t, conn, stateEvent("LISTENING"))

	send(t, conn, clientMessage{Type: msgText, Text: "how much is it"})

	var userTurn, reply *turnPayload
	readUntil(t, conn, func(f frame) bool {
		if f.msg == nil || f.msg.Type != evtTurn {
			return false
		}
		switch f.msg.Turn.Speaker {
		case "User":
			userTurn = f.msg.Turn
		case "AI":
			if strings.HasPrefix(f.msg.Turn.Text, "echo:") {
				reply = f.msg.Turn
			}
		}
		return reply != nil
	})

	if userTurn == nil || userTurn.Text != "how much is it" {
		t.Fatalf("user turn = %+v, want the typed text", userTurn)
	}
	if reply.Text != "echo: how much is it" {
		t.Fatalf("reply text = %q", reply.Text)
	}
}

func TestSession_CommandsBeforeConfigureRejected(t *testing.T) {
	t.Parallel()
	srv := newTestServer(t, nil)
	conn := dial(t, srv, "")

	send(t, conn, clientMessage{Type: msgStart})

	frames := readUntil(t, conn, func(f frame) bool {
		return f.msg != nil && f.msg.Type == evtError
	})
	last := frames[len(frames)-1].msg
	if !strings.Contains(last.Error, "not configured") {
		t.Fatalf("error = %q, want a not-configured message", last.Error)
	}
}

func TestSession_DoubleConfigureRejected(t *testing.T) {
	t.Parallel()
	srv := newTestServer(t, nil)
	conn := dial(t, srv, "")

	send(t, conn, clientMessage{Type: msgConfigure, Agent: "Priya", UserName: "Alex"})
	send(t, conn, clientMessage{Type: msgConfigure, Agent: "Marco", UserName: "Alex"})

	frames := readUntil(t, conn, func(f frame) bool {
		return f.msg != nil && f.msg.Type == evtError
	})
	last := frames[len(frames)-1].msg
	if !strings.Contains(last.Error, "already configured") {
		t.Fatalf("error = %q, want already-configured", last.Error)
	}
}

func TestSession_UnknownMessageType(t *testing.T) {
	t.Parallel()
	srv := newTestServer(t, nil)
	conn := dial(t, srv, "")

	send(t, conn, clientMessage{Type: msgConfigure, Agent: "Priya", UserName: "Alex"})
	send(t, conn, clientMessage{Type: "bogus"})

	readUntil(t, conn, func(f frame) bool {
		return f.msg != nil && f.msg.Type == evtError &&
			strings.Contains(f.msg.Error, "unknown message type")
	})
}

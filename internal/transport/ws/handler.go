// Package ws is the websocket session transport: one connection per call,
// JSON control frames plus binary audio frames in both directions.
//
// Inbound, the client sends configure/start/text/end control messages and
// Opus-encoded microphone audio. Outbound, the server pushes call state
// transitions, transcript turns, and complete agent utterances as WAV binary
// frames. The upgrade request is authenticated with a JWT bearer token.
package ws

import (
	"context"
	"log/slog"
	"net/http"
	"sync"

	"github.com/coder/websocket"

	"github.com/voxhall/telesuite/internal/call"
	"github.com/voxhall/telesuite/internal/capture"
	"github.com/voxhall/telesuite/internal/observe"
	"github.com/voxhall/telesuite/internal/playback"
)

// Pipeline is the per-call processing chain assembled by a [Factory] for one
// connection.
type Pipeline struct {
	// Controller is the call-state machine. Required.
	Controller *call.Controller

	// Capture is the speech capture adapter; nil when no STT provider is
	// configured (typed input still works).
	Capture *capture.Adapter

	// Playback is the playback controller whose sink is the session. Required.
	Playback *playback.Controller
}

// close releases the pipeline's resources in dependency order.
func (p *Pipeline) close() {
	_ = p.Controller.Close()
	if p.Capture != nil {
		_ = p.Capture.Close()
	}
	_ = p.Playback.Close()
}

// Factory assembles the call pipeline for one accepted connection. sink
// receives agent audio; notify receives state and transcript events. Both are
// backed by the connection itself.
type Factory interface {
	NewCall(agent, userName string, sink playback.Sink, notify call.Notifier) (*Pipeline, error)
}

// FactoryFunc adapts a function to the [Factory] interface.
type FactoryFunc func(agent, userName string, sink playback.Sink, notify call.Notifier) (*Pipeline, error)

// NewCall calls f.
func (f FactoryFunc) NewCall(agent, userName string, sink playback.Sink, notify call.Notifier) (*Pipeline, error) {
	return f(agent, userName, sink, notify)
}

// Option is a functional option for configuring the Handler.
type Option func(*Handler)

// WithJWTSecret enables JWT verification on the upgrade request. An empty
// secret leaves the endpoint open (logged once).
func WithJWTSecret(secret []byte) Option {
	return func(h *Handler) { h.secret = secret }
}

// WithLogger sets the handler's logger.
func WithLogger(logger *slog.Logger) Option {
	return func(h *Handler) { h.logger = logger }
}

// WithMetrics wires the active-session gauge.
func WithMetrics(m *observe.Metrics) Option {
	return func(h *Handler) { h.metrics = m }
}

// Handler upgrades HTTP requests to websocket call sessions.
type Handler struct {
	factory Factory
	secret  []byte
	logger  *slog.Logger
	metrics *observe.Metrics

	openOnce sync.Once
}

// NewHandler creates a websocket session handler around factory.
func NewHandler(factory Factory, opts ...Option) *Handler {
	h := &Handler{
		factory: factory,
		logger:  slog.Default(),
	}
	for _, o := range opts {
		o(h)
	}
	return h
}

// ServeHTTP authenticates the upgrade request, accepts the websocket, and
// runs the session until the connection closes.
func (h *Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	subject, ok := h.authenticate(w, r)
	if !ok {
		return
	}

	conn, err := websocket.Accept(w, r, nil)
	if err != nil {
		h.logger.Warn("websocket accept failed", "error", err)
		return
	}
	defer conn.Close(websocket.StatusInternalError, "session ended")

	if h.metrics != nil {
		h.metrics.ActiveSessions.Add(r.Context(), 1)
		defer h.metrics.ActiveSessions.Add(context.Background(), -1)
	}

	sess := newSession(conn, h.factory, subject, h.logger)
	sess.run(r.Context())

	conn.Close(websocket.StatusNormalClosure, "session ended")
}

// authenticate verifies the JWT on the request. With no secret configured the
// endpoint is open; this is logged once.
func (h *Handler) authenticate(w http.ResponseWriter, r *http.Request) (string, bool) {
	if len(h.secret) == 0 {
		h.openOnce.Do(func() {
			h.logger.Warn("no JWT secret configured, websocket endpoint is unauthenticated")
		})
		return "", true
	}

	auth := &authenticator{secret: h.secret}
	subject, err := auth.verify(r)
	if err != nil {
		h.logger.Debug("rejected websocket upgrade", "error", err)
		http.Error(w, "unauthorized", http.StatusUnauthorized)
		return "", false
	}
	return subject, true
}

// Register adds the websocket call endpoint to mux.
func (h *Handler) Register(mux *http.ServeMux) {
	mux.Handle("GET /ws/call", h)
}

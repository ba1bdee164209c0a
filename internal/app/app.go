// Package app wires all TeleSuite subsystems into a running server.
//
// The App struct owns the full lifecycle: New creates and connects all
// subsystems, Run serves HTTP until the context is cancelled, and Shutdown
// tears everything down in order.
//
// For testing, inject mock implementations via functional options
// (WithKnowledgeStore, WithActivityStore, etc.). When an option is not
// provided, New creates real implementations from the config.
package app

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/voxhall/telesuite/internal/activity"
	"github.com/voxhall/telesuite/internal/call"
	"github.com/voxhall/telesuite/internal/capture"
	"github.com/voxhall/telesuite/internal/config"
	"github.com/voxhall/telesuite/internal/gateway"
	"github.com/voxhall/telesuite/internal/health"
	"github.com/voxhall/telesuite/internal/knowledge"
	"github.com/voxhall/telesuite/internal/livedata"
	"github.com/voxhall/telesuite/internal/observe"
	"github.com/voxhall/telesuite/internal/playback"
	"github.com/voxhall/telesuite/internal/score"
	"github.com/voxhall/telesuite/internal/transcript"
	"github.com/voxhall/telesuite/internal/transport/ws"
	"github.com/voxhall/telesuite/pkg/provider/embeddings"
	"github.com/voxhall/telesuite/pkg/provider/llm"
	"github.com/voxhall/telesuite/pkg/provider/stt"
	"github.com/voxhall/telesuite/pkg/provider/tts"
)

// captureSampleRate is the PCM rate of browser Opus audio after decode.
const captureSampleRate = 48000

// Providers holds one interface value per provider slot. Nil means the
// provider is not configured. Populated by main.go via the config registry,
// potentially wrapped in resilience fallback groups.
type Providers struct {
	LLM        llm.Provider
	STT        stt.Provider
	TTS        tts.Provider
	Embeddings embeddings.Provider
}

// App owns all subsystem lifetimes and serves the TeleSuite call endpoint.
type App struct {
	providers *Providers
	metrics   *observe.Metrics
	logger    *slog.Logger

	// mu guards cfg, which the config watcher may swap at runtime.
	mu  sync.RWMutex
	cfg *config.Config

	knowledge knowledge.Store
	activity  activity.Store
	assembler *knowledge.Assembler
	fetcher   livedata.Fetcher
	scorer    score.Scorer
	handler   *ws.Handler
	server    *http.Server

	// pgPing is non-nil when the stores are Postgres-backed; wired into the
	// readiness endpoint.
	pgPing func(ctx context.Context) error

	// closers are called in order during Shutdown.
	closers []func() error

	stopOnce sync.Once
}

// Option is a functional option for New. Use these to inject test doubles.
type Option func(*App)

// WithKnowledgeStore injects a knowledge store instead of creating one from config.
func WithKnowledgeStore(s knowledge.Store) Option {
	return func(a *App) { a.knowledge = s }
}

// WithActivityStore injects an activity store instead of creating one from config.
func WithActivityStore(s activity.Store) Option {
	return func(a *App) { a.activity = s }
}

// WithLiveDataFetcher injects a live-data fetcher instead of connecting to
// the configured MCP servers.
func WithLiveDataFetcher(f livedata.Fetcher) Option {
	return func(a *App) { a.fetcher = f }
}

// WithMetrics injects a metrics instance instead of using the global default.
func WithMetrics(m *observe.Metrics) Option {
	return func(a *App) { a.metrics = m }
}

// ─── New ─────────────────────────────────────────────────────────────────────

// New creates an App by wiring all subsystems together. The providers struct
// comes from main.go (populated via the config registry). Use Option functions
// to inject test doubles for any subsystem.
func New(ctx context.Context, cfg *config.Config, providers *Providers, opts ...Option) (*App, error) {
	a := &App{
		cfg:       cfg,
		providers: providers,
		logger:    slog.Default().With("component", "app"),
	}
	for _, o := range opts {
		o(a)
	}
	if a.metrics == nil {
		a.metrics = observe.DefaultMetrics()
	}

	if err := a.initStores(ctx); err != nil {
		return nil, fmt.Errorf("app: init stores: %w", err)
	}

	a.assembler = knowledge.NewAssembler(a.knowledge, providers.Embeddings, a.logger)

	if err := a.initLiveData(ctx); err != nil {
		return nil, fmt.Errorf("app: init livedata: %w", err)
	}

	if providers.LLM != nil {
		scorer, err := score.New(providers.LLM, a.logger)
		if err != nil {
			return nil, fmt.Errorf("app: init scorer: %w", err)
		}
		a.scorer = scorer
	}

	a.initHTTP()
	return a, nil
}

// ─── Init helpers ────────────────────────────────────────────────────────────

// initStores sets up the knowledge and activity stores: Postgres when a DSN
// is configured, in-memory otherwise.
func (a *App) initStores(ctx context.Context) error {
	if a.knowledge != nil && a.activity != nil {
		return nil // both injected
	}

	dsn := a.cfg.Storage.PostgresDSN
	if dsn == "" {
		if a.knowledge == nil {
			a.knowledge = knowledge.NewMemStore()
		}
		if a.activity == nil {
			a.activity = activity.NewMemStore()
		}
		return nil
	}

	dims := a.cfg.Storage.EmbeddingDimensions
	if dims <= 0 {
		dims = 1536 // matches text-embedding-3-small
	}

	if a.knowledge == nil {
		ks, err := knowledge.NewPostgresStore(ctx, dsn, dims)
		if err != nil {
			return err
		}
		a.knowledge = ks
		a.pgPing = ks.Ping
		a.closers = append(a.closers, func() error {
			ks.Close()
			return nil
		})
	}

	if a.activity == nil {
		as, err := activity.NewPostgresStore(ctx, dsn)
		if err != nil {
			return err
		}
		a.activity = as
		a.closers = append(a.closers, func() error {
			as.Close()
			return nil
		})
	}

	return nil
}

// initLiveData registers the configured MCP servers.
func (a *App) initLiveData(ctx context.Context) error {
	if a.fetcher != nil || len(a.cfg.LiveData.Servers) == 0 {
		return nil
	}

	fetcher := livedata.NewMCPFetcher(a.logger)
	for _, srv := range a.cfg.LiveData.Servers {
		serverCfg := livedata.ServerConfig{
			Name:      srv.Name,
			Transport: srv.Transport,
			Command:   srv.Command,
			URL:       srv.URL,
			Env:       srv.Env,
			Tool:      srv.Tool,
		}
		if err := fetcher.RegisterServer(ctx, serverCfg); err != nil {
			return fmt.Errorf("register mcp server %q: %w", srv.Name, err)
		}
		slog.Info("registered MCP server", "name", srv.Name, "tool", srv.Tool)
	}

	a.fetcher = fetcher
	a.closers = append(a.closers, fetcher.Close)
	return nil
}

// initHTTP builds the WebSocket handler and the HTTP server around it.
func (a *App) initHTTP() {
	wsOpts := []ws.Option{
		ws.WithLogger(slog.Default()),
		ws.WithMetrics(a.metrics),
	}
	if secret := a.cfg.Server.JWTSecret; secret != "" {
		wsOpts = append(wsOpts, ws.WithJWTSecret([]byte(secret)))
	}
	a.handler = ws.NewHandler(ws.FactoryFunc(a.newCall), wsOpts...)

	var checkers []health.Checker
	if a.pgPing != nil {
		checkers = append(checkers, health.Checker{Name: "postgres", Check: a.pgPing})
	}

	mux := http.NewServeMux()
	a.handler.Register(mux)
	health.New(checkers...).Register(mux)
	mux.Handle("GET /metrics", promhttp.Handler())
	if t, ok := a.providers.STT.(Transcriber); ok {
		mux.HandleFunc("POST /transcribe", transcribeHandler(t))
	}

	a.server = &http.Server{
		Addr:              a.cfg.Server.ListenAddr,
		Handler:           observe.Middleware(a.metrics)(mux),
		ReadHeaderTimeout: 10 * time.Second,
	}
}

// ─── Per-call pipeline ───────────────────────────────────────────────────────

// textOnlyCapture satisfies call.Capture when no STT provider is configured.
// The session still accepts typed text.
type textOnlyCapture struct{}

func (textOnlyCapture) Start(context.Context) error { return nil }
func (textOnlyCapture) Stop() error                 { return nil }

// newCall builds the full pipeline for one WebSocket session: playback,
// gateway, capture, and the call controller, configured from the agent
// persona named by the client.
func (a *App) newCall(agentName, userName string, sink playback.Sink, notify call.Notifier) (*ws.Pipeline, error) {
	cfg := a.config()

	agent, err := selectAgent(cfg, agentName)
	if err != nil {
		return nil, err
	}
	strategy := strategyFor(agent.Flavor)

	if a.providers.LLM == nil {
		return nil, errors.New("app: no LLM provider configured")
	}
	gw, err := gateway.New(a.providers.LLM, slog.Default(),
		gateway.WithSystemPrompt(strategy.SystemPrompt),
	)
	if err != nil {
		return nil, fmt.Errorf("app: create gateway: %w", err)
	}

	pb := playback.New(sink, slog.Default())

	callCfg := call.Config{
		Product:        agent.Product,
		AgentName:      agent.Name,
		UserName:       userName,
		Voice:          voiceProfile(agent.Voice),
		EndpointWindow: msDuration(cfg.Call.EndpointWindowMS),
		ReminderWindow: msDuration(cfg.Call.ReminderWindowMS),
	}

	deps := call.Deps{
		Playback:  pb,
		Gateway:   gw,
		Synth:     a.providers.TTS,
		Knowledge: a.assembler,
		Corrector: transcript.NewCorrector(nil, vocabulary(cfg)),
		Activity:  a.activity,
		Scorer:    a.scorer,
		Notify:    notify,
		Metrics:   a.metrics,
		Logger:    slog.Default(),
	}
	if a.fetcher != nil {
		deps.LiveData = liveDataAdapter{a.fetcher}
	}

	// The capture callbacks need the controller, which in turn needs the
	// capture adapter; ctrl is bound before any callback can fire because
	// callbacks only run after Start.
	var ctrl *call.Controller
	var adapter *capture.Adapter
	if a.providers.STT != nil {
		adapter = capture.New(a.providers.STT, capture.Config{
			SampleRate:    captureSampleRate,
			Channels:      1,
			Keywords:      keywordBoosts(agent),
			SilenceWindow: msDuration(cfg.Call.SilenceWindowMS),
		}, capture.Callbacks{
			OnInterim: func(text string) { ctrl.OnInterim(text) },
			OnFinal:   func(text string) { ctrl.OnFinal(text) },
			OnFatal:   func(err error) { ctrl.OnCaptureFatal(err) },
		}, slog.Default())
		deps.Capture = adapter
	} else {
		deps.Capture = textOnlyCapture{}
	}

	ctrl, err = call.New(callCfg, strategy, deps)
	if err != nil {
		if adapter != nil {
			_ = adapter.Close()
		}
		return nil, fmt.Errorf("app: create call: %w", err)
	}

	a.metrics.RecordCallStarted(context.Background(), string(strategy.Kind()))

	return &ws.Pipeline{
		Controller: ctrl,
		Capture:    adapter,
		Playback:   pb,
	}, nil
}

// liveDataAdapter bridges livedata.Fetcher to the controller's narrower
// fetch signature.
type liveDataAdapter struct {
	f livedata.Fetcher
}

func (l liveDataAdapter) Fetch(ctx context.Context, product, query string) (string, error) {
	return l.f.Fetch(ctx, livedata.Query{Product: product, Question: query})
}

var _ call.LiveDataFetcher = liveDataAdapter{}

// selectAgent resolves the agent persona by name. An empty name selects the
// first configured agent.
func selectAgent(cfg *config.Config, name string) (config.AgentConfig, error) {
	if len(cfg.Agents) == 0 {
		return config.AgentConfig{}, errors.New("app: no agents configured")
	}
	if name == "" {
		return cfg.Agents[0], nil
	}
	for _, ag := range cfg.Agents {
		if ag.Name == name {
			return ag, nil
		}
	}
	return config.AgentConfig{}, fmt.Errorf("app: unknown agent %q", name)
}

// strategyFor maps a config flavor to its call strategy. Unset flavors
// default to sales.
func strategyFor(f config.Flavor) call.Strategy {
	if f == config.FlavorSupport {
		return call.SupportStrategy{}
	}
	return call.SalesStrategy{}
}

// vocabulary collects the proper nouns of all configured personas for
// transcript correction: agent names plus product names.
func vocabulary(cfg *config.Config) []string {
	seen := make(map[string]bool)
	var vocab []string
	add := func(s string) {
		for _, w := range strings.Fields(s) {
			if w != "" && !seen[w] {
				seen[w] = true
				vocab = append(vocab, w)
			}
		}
	}
	for _, ag := range cfg.Agents {
		add(ag.Name)
		add(ag.Product)
	}
	return vocab
}

// keywordBoosts builds STT recognition boosts for one persona's proper nouns.
func keywordBoosts(agent config.AgentConfig) []stt.KeywordBoost {
	return []stt.KeywordBoost{
		{Keyword: agent.Product, Boost: 2},
		{Keyword: agent.Name, Boost: 1},
	}
}

// voiceProfile converts a config.VoiceConfig to tts.VoiceProfile.
func voiceProfile(vc config.VoiceConfig) tts.VoiceProfile {
	return tts.VoiceProfile{
		ID:       vc.VoiceID,
		Provider: vc.Provider,
	}
}

// msDuration converts a millisecond config value; zero or negative returns 0
// so downstream defaults apply.
func msDuration(ms int) time.Duration {
	if ms <= 0 {
		return 0
	}
	return time.Duration(ms) * time.Millisecond
}

// config returns the current configuration snapshot.
func (a *App) config() *config.Config {
	a.mu.RLock()
	defer a.mu.RUnlock()
	return a.cfg
}

// UpdateConfig swaps the configuration snapshot. Called by the config
// watcher; new calls pick up the new agents and timing, existing calls keep
// the config they started with.
func (a *App) UpdateConfig(cfg *config.Config) {
	a.mu.Lock()
	a.cfg = cfg
	a.mu.Unlock()
}

// ─── Run / Shutdown ──────────────────────────────────────────────────────────

// Run serves HTTP until ctx is cancelled or the server fails. The server is
// not stopped here; call Shutdown for a graceful stop.
func (a *App) Run(ctx context.Context) error {
	errCh := make(chan error, 1)
	go func() {
		var err error
		if tlsCfg := a.config().Server.TLS; tlsCfg != nil {
			err = a.server.ListenAndServeTLS(tlsCfg.CertFile, tlsCfg.KeyFile)
		} else {
			err = a.server.ListenAndServe()
		}
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()

	slog.Info("app running", "addr", a.server.Addr, "agents", len(a.config().Agents))

	select {
	case <-ctx.Done():
		return ctx.Err()
	case err := <-errCh:
		return fmt.Errorf("app: http server: %w", err)
	}
}

// Shutdown stops the HTTP server and tears down all subsystems in order. It
// respects the context deadline: if ctx expires before all closers finish,
// remaining closers are skipped and the context error is returned.
func (a *App) Shutdown(ctx context.Context) error {
	var shutdownErr error
	a.stopOnce.Do(func() {
		if err := a.server.Shutdown(ctx); err != nil {
			slog.Warn("http server shutdown error", "err", err)
		}

		slog.Info("shutting down", "closers", len(a.closers))
		for i, closer := range a.closers {
			select {
			case <-ctx.Done():
				slog.Warn("shutdown deadline exceeded", "remaining", len(a.closers)-i)
				shutdownErr = ctx.Err()
				return
			default:
			}
			if err := closer(); err != nil {
				slog.Warn("closer error", "index", i, "err", err)
			}
		}

		slog.Info("shutdown complete")
	})
	return shutdownErr
}

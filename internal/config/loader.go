package config

import (
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"slices"

	"github.com/voxhall/telesuite/internal/livedata"
	"gopkg.in/yaml.v3"
)

// ValidProviderNames lists known provider names per provider kind.
// Used by [Validate] to warn about unrecognised provider names.
var ValidProviderNames = map[string][]string{
	"llm":        {"anyllm", "openai", "anthropic", "ollama", "gemini", "mistral", "groq"},
	"stt":        {"deepgram", "whisper", "whisper-native"},
	"tts":        {"elevenlabs", "coqui"},
	"embeddings": {"openai"},
}

// Load reads the YAML configuration file at path and returns a validated
// [Config]. It is a convenience wrapper around [LoadFromReader] and [Validate].
func Load(path string) (*Config, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("config: open %q: %w", path, err)
	}
	defer f.Close()

	cfg, err := LoadFromReader(f)
	if err != nil {
		return nil, fmt.Errorf("config: parse %q: %w", path, err)
	}
	return cfg, nil
}

// LoadFromReader decodes a YAML config from r and validates the result.
// Useful in tests where configs are constructed from string literals.
func LoadFromReader(r io.Reader) (*Config, error) {
	cfg := &Config{}
	dec := yaml.NewDecoder(r)
	dec.KnownFields(true)
	if err := dec.Decode(cfg); err != nil {
		return nil, fmt.Errorf("config: decode yaml: %w", err)
	}
	if err := Validate(cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate checks that cfg contains a coherent set of values.
// It returns a joined error listing all validation failures found.
func Validate(cfg *Config) error {
	var errs []error

	// Server
	if cfg.Server.LogLevel != "" && !cfg.Server.LogLevel.IsValid() {
		errs = append(errs, fmt.Errorf("server.log_level %q is invalid; valid values: debug, info, warn, error", cfg.Server.LogLevel))
	}
	if cfg.Server.JWTSecret == "" {
		slog.Warn("server.jwt_secret is empty; WebSocket upgrades will not be authenticated")
	}

	// Provider name validation — warn for unknown provider names.
	validateProviderName("llm", cfg.Providers.LLM.Name)
	validateProviderName("stt", cfg.Providers.STT.Name)
	validateProviderName("tts", cfg.Providers.TTS.Name)
	validateProviderName("embeddings", cfg.Providers.Embeddings.Name)
	for _, fb := range cfg.Providers.LLM.Fallbacks {
		validateProviderName("llm", fb.Name)
	}
	for _, fb := range cfg.Providers.STT.Fallbacks {
		validateProviderName("stt", fb.Name)
	}
	for _, fb := range cfg.Providers.TTS.Fallbacks {
		validateProviderName("tts", fb.Name)
	}

	if cfg.Providers.LLM.Name == "" && len(cfg.Agents) > 0 {
		errs = append(errs, errors.New("providers.llm is required when agents are configured"))
	}
	if cfg.Providers.TTS.Name == "" && len(cfg.Agents) > 0 {
		slog.Warn("no TTS provider configured; agent turns will be text-only")
	}
	if cfg.Providers.Embeddings.Name != "" && cfg.Storage.EmbeddingDimensions <= 0 {
		slog.Warn("providers.embeddings is configured but storage.embedding_dimensions is not set; defaulting to 1536")
	}
	if cfg.Storage.PostgresDSN == "" {
		slog.Warn("storage.postgres_dsn is empty; knowledge base and activity log will be in-memory only")
	}

	// Call timing
	if cfg.Call.EndpointWindowMS < 0 {
		errs = append(errs, fmt.Errorf("call.endpoint_window_ms %d must not be negative", cfg.Call.EndpointWindowMS))
	}
	if cfg.Call.ReminderWindowMS < 0 {
		errs = append(errs, fmt.Errorf("call.reminder_window_ms %d must not be negative", cfg.Call.ReminderWindowMS))
	}
	if cfg.Call.SilenceWindowMS < 0 {
		errs = append(errs, fmt.Errorf("call.silence_window_ms %d must not be negative", cfg.Call.SilenceWindowMS))
	}
	if cfg.Call.EndpointWindowMS > 0 && cfg.Call.ReminderWindowMS > 0 &&
		cfg.Call.ReminderWindowMS <= cfg.Call.EndpointWindowMS {
		errs = append(errs, fmt.Errorf("call.reminder_window_ms %d must exceed call.endpoint_window_ms %d", cfg.Call.ReminderWindowMS, cfg.Call.EndpointWindowMS))
	}

	// Agent duplicate name detection
	agentNamesSeen := make(map[string]int, len(cfg.Agents))

	for i, a := range cfg.Agents {
		prefix := fmt.Sprintf("agents[%d]", i)
		if a.Name == "" {
			errs = append(errs, fmt.Errorf("%s.name is required", prefix))
		} else {
			if prev, ok := agentNamesSeen[a.Name]; ok {
				errs = append(errs, fmt.Errorf("%s.name %q is a duplicate of agents[%d]", prefix, a.Name, prev))
			}
			agentNamesSeen[a.Name] = i
		}
		if a.Product == "" {
			errs = append(errs, fmt.Errorf("%s.product is required", prefix))
		}
		if a.Flavor != "" && !a.Flavor.IsValid() {
			errs = append(errs, fmt.Errorf("%s.flavor %q is invalid; valid values: sales, support", prefix, a.Flavor))
		}

		// Voice provider ↔ TTS provider cross-validation
		if a.Voice.Provider != "" && cfg.Providers.TTS.Name != "" && a.Voice.Provider != cfg.Providers.TTS.Name {
			slog.Warn("agent voice provider does not match configured TTS provider",
				"agent", a.Name,
				"voice_provider", a.Voice.Provider,
				"tts_provider", cfg.Providers.TTS.Name,
			)
		}
	}

	// Live-data MCP servers
	for i, srv := range cfg.LiveData.Servers {
		prefix := fmt.Sprintf("livedata.servers[%d]", i)
		if srv.Name == "" {
			errs = append(errs, fmt.Errorf("%s.name is required", prefix))
		}
		if srv.Tool == "" {
			errs = append(errs, fmt.Errorf("%s.tool is required", prefix))
		}
		if srv.Transport != "" && !srv.Transport.IsValid() {
			errs = append(errs, fmt.Errorf("%s.transport %q is invalid; valid values: stdio, streamable-http", prefix, srv.Transport))
		}
		if srv.Transport == livedata.TransportStdio && srv.Command == "" {
			errs = append(errs, fmt.Errorf("%s.command is required when transport is stdio", prefix))
		}
		if srv.Transport == livedata.TransportStreamableHTTP && srv.URL == "" {
			errs = append(errs, fmt.Errorf("%s.url is required when transport is streamable-http", prefix))
		}
	}

	return errors.Join(errs...)
}

// validateProviderName logs a warning if name is non-empty and not found in
// the [ValidProviderNames] list for the given kind.
func validateProviderName(kind, name string) {
	if name == "" {
		return
	}
	known, ok := ValidProviderNames[kind]
	if !ok {
		return
	}
	if slices.Contains(known, name) {
		return
	}
	slog.Warn("unknown provider name — may be a typo or third-party provider",
		"kind", kind,
		"name", name,
		"known", known,
	)
}

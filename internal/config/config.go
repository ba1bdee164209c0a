// Package config provides the configuration schema, loader, and provider
// registry for the TeleSuite voice-agent server.
package config

import "github.com/voxhall/telesuite/internal/livedata"

// LogLevel controls log verbosity for the TeleSuite server.
type LogLevel string

const (
	LogDebug LogLevel = "debug"
	LogInfo  LogLevel = "info"
	LogWarn  LogLevel = "warn"
	LogError LogLevel = "error"
)

// IsValid reports whether l is a recognised log level.
func (l LogLevel) IsValid() bool {
	switch l {
	case LogDebug, LogInfo, LogWarn, LogError:
		return true
	}
	return false
}

// Flavor selects the call strategy for an agent persona.
type Flavor string

const (
	// FlavorSales drives an outbound pitch call.
	FlavorSales Flavor = "sales"

	// FlavorSupport drives an inbound support call.
	FlavorSupport Flavor = "support"
)

// IsValid reports whether f is a recognised call flavor.
func (f Flavor) IsValid() bool {
	return f == FlavorSales || f == FlavorSupport
}

// Config is the root configuration structure for TeleSuite.
// It is typically loaded from a YAML file using [Load] or [LoadFromReader].
type Config struct {
	Server    ServerConfig    `yaml:"server"`
	Providers ProvidersConfig `yaml:"providers"`
	Call      CallConfig      `yaml:"call"`
	Agents    []AgentConfig   `yaml:"agents"`
	Storage   StorageConfig   `yaml:"storage"`
	LiveData  LiveDataConfig  `yaml:"livedata"`
}

// ServerConfig holds network, auth, and logging settings.
type ServerConfig struct {
	// ListenAddr is the TCP address the server listens on (e.g., ":8080").
	ListenAddr string `yaml:"listen_addr"`

	// LogLevel controls verbosity.
	LogLevel LogLevel `yaml:"log_level"`

	// JWTSecret is the HMAC secret verifying bearer tokens on the WebSocket
	// upgrade. Empty disables auth (development only).
	JWTSecret string `yaml:"jwt_secret"`

	// TLS configures TLS for the server. When nil, the server runs plain HTTP.
	TLS *TLSConfig `yaml:"tls"`
}

// TLSConfig holds TLS certificate paths for enabling HTTPS.
type TLSConfig struct {
	// CertFile is the path to the PEM-encoded TLS certificate.
	CertFile string `yaml:"cert_file"`

	// KeyFile is the path to the PEM-encoded TLS private key.
	KeyFile string `yaml:"key_file"`
}

// ProvidersConfig declares which provider implementation to use for each
// pipeline stage. Each field selects a named provider registered in the
// [Registry].
type ProvidersConfig struct {
	LLM        ProviderEntry `yaml:"llm"`
	STT        ProviderEntry `yaml:"stt"`
	TTS        ProviderEntry `yaml:"tts"`
	Embeddings ProviderEntry `yaml:"embeddings"`
}

// ProviderEntry is the common configuration block shared by all provider
// types. The Name field is used to look up the constructor in the [Registry].
type ProviderEntry struct {
	// Name selects the registered provider implementation (e.g., "anyllm",
	// "deepgram", "elevenlabs").
	Name string `yaml:"name"`

	// APIKey is the authentication key for the provider's API if any.
	APIKey string `yaml:"api_key"`

	// BaseURL overrides the provider's default API endpoint.
	BaseURL string `yaml:"base_url"`

	// Model selects a specific model within the provider (e.g., "gpt-4o",
	// "nova-2").
	Model string `yaml:"model"`

	// Options holds provider-specific configuration values not covered by
	// the standard fields above.
	Options map[string]any `yaml:"options"`

	// Fallbacks lists providers tried in order when this one fails. Each
	// fallback gets its own circuit breaker.
	Fallbacks []ProviderEntry `yaml:"fallbacks"`
}

// CallConfig tunes the call-state machine's timing.
type CallConfig struct {
	// EndpointWindowMS is the silence window (milliseconds) after which the
	// caller's turn is considered finished. Zero uses the built-in default.
	EndpointWindowMS int `yaml:"endpoint_window_ms"`

	// ReminderWindowMS is the caller-inactivity window (milliseconds) before
	// the agent plays a reminder. Zero uses the built-in default.
	ReminderWindowMS int `yaml:"reminder_window_ms"`

	// SilenceWindowMS is the capture adapter's per-utterance countdown
	// (milliseconds). Zero uses the built-in default.
	SilenceWindowMS int `yaml:"silence_window_ms"`
}

// AgentConfig describes one agent persona selectable at call configuration.
type AgentConfig struct {
	// Name is the agent's display name spoken in the welcome line.
	Name string `yaml:"name"`

	// Product is the product or service the persona sells or supports.
	Product string `yaml:"product"`

	// Flavor selects the call strategy.
	Flavor Flavor `yaml:"flavor"`

	// Voice configures the TTS voice profile for this persona.
	Voice VoiceConfig `yaml:"voice"`
}

// VoiceConfig specifies the TTS voice for an agent persona.
type VoiceConfig struct {
	// Provider is the TTS provider name (e.g., "elevenlabs", "coqui").
	Provider string `yaml:"provider"`

	// VoiceID is the provider-specific voice identifier.
	VoiceID string `yaml:"voice_id"`
}

// StorageConfig holds settings for the knowledge base and activity log.
type StorageConfig struct {
	// PostgresDSN is the connection string for the knowledge and activity
	// stores. Empty falls back to in-memory stores (development only).
	PostgresDSN string `yaml:"postgres_dsn"`

	// EmbeddingDimensions is the vector dimension of the knowledge base's
	// embedding column. Must match the model configured in
	// Providers.Embeddings.
	EmbeddingDimensions int `yaml:"embedding_dimensions"`
}

// LiveDataConfig holds the list of MCP servers answering live-data lookups.
type LiveDataConfig struct {
	Servers []LiveDataServerConfig `yaml:"servers"`
}

// LiveDataServerConfig describes how to connect to a single MCP tool server.
type LiveDataServerConfig struct {
	// Name is a unique human-readable identifier for this server.
	Name string `yaml:"name"`

	// Transport specifies the connection mechanism.
	Transport livedata.Transport `yaml:"transport"`

	// Command is the executable (with optional arguments) launched when
	// Transport is "stdio". Ignored for streamable-http transport.
	Command string `yaml:"command"`

	// URL is the MCP endpoint address used when Transport is
	// "streamable-http". Ignored for stdio transport.
	URL string `yaml:"url"`

	// Tool is the lookup tool to call on this server.
	Tool string `yaml:"tool"`

	// Env holds additional environment variables injected into the
	// subprocess when Transport is "stdio". May be nil.
	Env map[string]string `yaml:"env"`
}

// Package livedata resolves gateway turns flagged RequiresLiveDataFetch.
//
// Some caller questions cannot be answered from the knowledge base snapshot —
// current pricing, stock levels, order status. The gateway marks such turns
// and the call controller consults a Fetcher, then re-issues the turn with
// the fetched context appended. The production Fetcher talks to Model
// Context Protocol servers through the official Go SDK.
package livedata

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os/exec"
	"strings"
	"sync"
	"time"

	mcpsdk "github.com/modelcontextprotocol/go-sdk/mcp"
)

// Query describes one live-data lookup.
type Query struct {
	Product  string
	Question string
}

// Fetcher resolves live data for one turn. Implementations must be safe for
// concurrent use.
type Fetcher interface {
	Fetch(ctx context.Context, q Query) (string, error)
}

// Transport selects how to reach an MCP server.
type Transport string

const (
	TransportStdio          Transport = "stdio"
	TransportStreamableHTTP Transport = "streamable-http"
)

// IsValid reports whether t is a recognised transport.
func (t Transport) IsValid() bool {
	return t == TransportStdio || t == TransportStreamableHTTP
}

// ServerConfig describes one MCP server and the tool on it that serves
// live-data lookups.
type ServerConfig struct {
	// Name uniquely identifies the server within one Fetcher.
	Name string
	// Transport is stdio or streamable-http.
	Transport Transport
	// Command is the executable plus arguments for stdio transport.
	Command string
	// URL is the endpoint for streamable-http transport.
	URL string
	// Env holds extra environment variables for stdio servers. May be nil.
	Env map[string]string
	// Tool is the name of the lookup tool to call on this server. It must
	// exist in the server's tool catalogue at registration time.
	Tool string
}

// ErrNoServers is returned by Fetch when no server is registered.
var ErrNoServers = errors.New("livedata: no MCP servers registered")

const defaultFetchTimeout = 10 * time.Second

var _ Fetcher = (*MCPFetcher)(nil)

// MCPFetcher is the MCP-backed Fetcher. One SDK client manages all server
// sessions; each registered server contributes one lookup tool.
type MCPFetcher struct {
	mu      sync.RWMutex
	client  *mcpsdk.Client
	servers map[string]*serverConn
	logger  *slog.Logger
	timeout time.Duration
}

type serverConn struct {
	session *mcpsdk.ClientSession
	tool    string
}

// Option is a functional option for [NewMCPFetcher].
type Option func(*MCPFetcher)

// WithFetchTimeout bounds one Fetch across all servers. Default 10s.
func WithFetchTimeout(d time.Duration) Option {
	return func(f *MCPFetcher) { f.timeout = d }
}

// NewMCPFetcher creates a Fetcher with no servers registered.
func NewMCPFetcher(logger *slog.Logger, opts ...Option) *MCPFetcher {
	if logger == nil {
		logger = slog.Default()
	}
	f := &MCPFetcher{
		client: mcpsdk.NewClient(
			&mcpsdk.Implementation{Name: "telesuite-livedata", Version: "1.0.0"},
			nil,
		),
		servers: make(map[string]*serverConn),
		logger:  logger.With("component", "livedata"),
		timeout: defaultFetchTimeout,
	}
	for _, o := range opts {
		o(f)
	}
	return f
}

// RegisterServer connects to the MCP server described by cfg and verifies the
// configured tool exists in its catalogue. Re-registering a name replaces the
// old connection.
func (f *MCPFetcher) RegisterServer(ctx context.Context, cfg ServerConfig) error {
	if cfg.Name == "" {
		return errors.New("livedata: server config must have a non-empty name")
	}
	if cfg.Tool == "" {
		return fmt.Errorf("livedata: server %q must name a lookup tool", cfg.Name)
	}

	var transport mcpsdk.Transport
	switch cfg.Transport {
	case TransportStdio:
		executable, args := splitCommand(cfg.Command)
		if executable == "" {
			return fmt.Errorf("livedata: stdio server %q requires a non-empty Command", cfg.Name)
		}
		cmd := exec.CommandContext(ctx, executable, args...)
		for k, v := range cfg.Env {
			cmd.Env = append(cmd.Env, k+"="+v)
		}
		transport = &mcpsdk.CommandTransport{Command: cmd}
	case TransportStreamableHTTP:
		if cfg.URL == "" {
			return fmt.Errorf("livedata: streamable-http server %q requires a non-empty URL", cfg.Name)
		}
		transport = &mcpsdk.StreamableClientTransport{Endpoint: cfg.URL}
	default:
		return fmt.Errorf("livedata: unknown transport %q for server %q", cfg.Transport, cfg.Name)
	}

	session, err := f.client.Connect(ctx, transport, nil)
	if err != nil {
		return fmt.Errorf("livedata: connect to server %q: %w", cfg.Name, err)
	}

	found := false
	for tool, err := range session.Tools(ctx, nil) {
		if err != nil {
			_ = session.Close()
			return fmt.Errorf("livedata: list tools for server %q: %w", cfg.Name, err)
		}
		if tool.Name == cfg.Tool {
			found = true
			break
		}
	}
	if !found {
		_ = session.Close()
		return fmt.Errorf("livedata: server %q does not expose tool %q", cfg.Name, cfg.Tool)
	}

	f.mu.Lock()
	defer f.mu.Unlock()
	if old, ok := f.servers[cfg.Name]; ok {
		_ = old.session.Close()
	}
	f.servers[cfg.Name] = &serverConn{session: session, tool: cfg.Tool}
	return nil
}

// Fetch implements [Fetcher]. Every registered server's lookup tool is called
// with the query; textual results are concatenated. A server failure is
// logged and skipped — Fetch errors only when no server produced anything.
func (f *MCPFetcher) Fetch(ctx context.Context, q Query) (string, error) {
	f.mu.RLock()
	conns := make(map[string]*serverConn, len(f.servers))
	for name, c := range f.servers {
		conns[name] = c
	}
	f.mu.RUnlock()

	if len(conns) == 0 {
		return "", ErrNoServers
	}

	ctx, cancel := context.WithTimeout(ctx, f.timeout)
	defer cancel()

	args := map[string]any{
		"product":  q.Product,
		"question": q.Question,
	}

	var parts []string
	var lastErr error
	for name, conn := range conns {
		result, err := conn.session.CallTool(ctx, &mcpsdk.CallToolParams{
			Name:      conn.tool,
			Arguments: args,
		})
		if err != nil {
			f.logger.Warn("live data tool call failed", "server", name, "tool", conn.tool, "error", err)
			lastErr = err
			continue
		}

		var sb strings.Builder
		for _, c := range result.Content {
			if tc, ok := c.(*mcpsdk.TextContent); ok {
				sb.WriteString(tc.Text)
			}
		}
		text := strings.TrimSpace(sb.String())
		if result.IsError {
			f.logger.Warn("live data tool returned error", "server", name, "tool", conn.tool, "message", text)
			lastErr = errors.New(text)
			continue
		}
		if text != "" {
			parts = append(parts, text)
		}
	}

	if len(parts) == 0 {
		if lastErr != nil {
			return "", fmt.Errorf("livedata: all lookups failed: %w", lastErr)
		}
		return "", nil
	}
	return strings.Join(parts, "\n"), nil
}

// Close shuts down all server sessions. The Fetcher must not be used after
// Close returns.
func (f *MCPFetcher) Close() error {
	f.mu.Lock()
	defer f.mu.Unlock()
	var errs []error
	for name, conn := range f.servers {
		if err := conn.session.Close(); err != nil {
			errs = append(errs, fmt.Errorf("livedata: close server %q: %w", name, err))
		}
		delete(f.servers, name)
	}
	return errors.Join(errs...)
}

// splitCommand splits a command line on spaces into executable and args.
// Quoting is not supported; configs needing it should use wrapper scripts.
func splitCommand(command string) (string, []string) {
	fields := strings.Fields(command)
	if len(fields) == 0 {
		return "", nil
	}
	return fields[0], fields[1:]
}

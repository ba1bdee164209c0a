// Package gateway implements the external AI boundary of a call: it turns
// the caller's utterance plus conversation context into the agent's next
// line. The call controller treats it as opaque request/response — there is
// no streaming and no cancellation of in-flight requests; stale responses are
// discarded by the controller's sequence guard instead.
package gateway

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/voxhall/telesuite/pkg/provider/llm"
)

// Turn is one conversation turn as the gateway sees it.
type Turn struct {
	Speaker string `json:"speaker"` // "AI" or "User"
	Text    string `json:"text"`
}

// Request carries one user turn plus its full conversation context.
type Request struct {
	Product          string
	AgentName        string
	UserName         string
	UserQuery        string
	KnowledgeContext string
	History          []Turn
	// LiveData holds the result of a previous RequiresLiveDataFetch round
	// trip; empty on the first attempt of a turn.
	LiveData string
}

// Response is the gateway's answer for one turn. ErrorMessage set means the
// turn failed in a way the caller should surface; the other fields are then
// meaningless.
type Response struct {
	AIResponseText        string `json:"aiResponseText"`
	ErrorMessage          string `json:"errorMessage,omitempty"`
	RequiresLiveDataFetch bool   `json:"requiresLiveDataFetch,omitempty"`
	IsUnanswerableFromKB  bool   `json:"isUnanswerableFromKB,omitempty"`
}

// Gateway produces the agent's next utterance for a turn.
type Gateway interface {
	Respond(ctx context.Context, req Request) (*Response, error)
}

// ErrEmptyResponse is returned when the model produced no usable reply.
var ErrEmptyResponse = errors.New("gateway: model returned empty response")

const defaultTimeout = 30 * time.Second

var _ Gateway = (*LLMGateway)(nil)

// LLMGateway implements Gateway on top of an llm.Provider. The model is asked
// for a strict JSON object matching [Response]; replies that are not valid
// JSON are salvaged as plain agent text.
type LLMGateway struct {
	provider llm.Provider
	logger   *slog.Logger
	timeout  time.Duration

	// BuildSystemPrompt lets a call strategy shape the persona. When nil,
	// defaultSystemPrompt is used.
	BuildSystemPrompt func(req Request) string
}

// Option is a functional option for [LLMGateway].
type Option func(*LLMGateway)

// WithTimeout bounds each gateway round trip.
func WithTimeout(d time.Duration) Option {
	return func(g *LLMGateway) { g.timeout = d }
}

// WithSystemPrompt overrides the default persona prompt builder.
func WithSystemPrompt(build func(req Request) string) Option {
	return func(g *LLMGateway) { g.BuildSystemPrompt = build }
}

// New creates an LLM-backed gateway.
func New(provider llm.Provider, logger *slog.Logger, opts ...Option) (*LLMGateway, error) {
	if provider == nil {
		return nil, errors.New("gateway: provider must not be nil")
	}
	if logger == nil {
		logger = slog.Default()
	}
	g := &LLMGateway{
		provider: provider,
		logger:   logger.With("component", "gateway"),
		timeout:  defaultTimeout,
	}
	for _, o := range opts {
		o(g)
	}
	return g, nil
}

// Respond implements [Gateway].
func (g *LLMGateway) Respond(ctx context.Context, req Request) (*Response, error) {
	ctx, cancel := context.WithTimeout(ctx, g.timeout)
	defer cancel()

	sys := defaultSystemPrompt(req)
	if g.BuildSystemPrompt != nil {
		sys = g.BuildSystemPrompt(req)
	}

	messages := make([]llm.Message, 0, len(req.History)+1)
	for _, t := range req.History {
		role := llm.RoleUser
		if t.Speaker == "AI" {
			role = llm.RoleAssistant
		}
		messages = append(messages, llm.Message{Role: role, Content: t.Text})
	}
	messages = append(messages, llm.Message{Role: llm.RoleUser, Content: buildUserTurn(req)})

	start := time.Now()
	resp, err := g.provider.Complete(ctx, llm.CompletionRequest{
		Messages:     messages,
		SystemPrompt: sys,
	})
	if err != nil {
		return nil, fmt.Errorf("gateway: completion: %w", err)
	}

	parsed := parseResponse(resp.Content)
	if parsed == nil {
		return nil, ErrEmptyResponse
	}

	g.logger.Debug("gateway turn resolved",
		"latency", time.Since(start),
		"live_data_fetch", parsed.RequiresLiveDataFetch,
		"unanswerable", parsed.IsUnanswerableFromKB,
		"tokens_out", resp.Usage.CompletionTokens,
	)
	return parsed, nil
}

// buildUserTurn renders the current turn with its knowledge and live-data
// context. An empty UserQuery represents a silence turn the model must react
// to rather than ignore.
func buildUserTurn(req Request) string {
	var b strings.Builder
	if req.KnowledgeContext != "" {
		b.WriteString("[Knowledge base context]\n")
		b.WriteString(req.KnowledgeContext)
		b.WriteString("\n\n")
	}
	if req.LiveData != "" {
		b.WriteString("[Live data]\n")
		b.WriteString(req.LiveData)
		b.WriteString("\n\n")
	}
	if strings.TrimSpace(req.UserQuery) == "" {
		b.WriteString("[The caller said nothing.]")
	} else {
		b.WriteString(req.UserQuery)
	}
	return b.String()
}

// defaultSystemPrompt is the persona used when no strategy override is set.
func defaultSystemPrompt(req Request) string {
	return fmt.Sprintf(`You are %q, a telesales agent for the product %q, speaking with %q on a live phone call.
Reply with a single JSON object and nothing else:
{"aiResponseText": string, "requiresLiveDataFetch": bool, "isUnanswerableFromKB": bool}
- aiResponseText: your next spoken line. Short sentences, natural phone register.
- requiresLiveDataFetch: true only when the caller asks for data that must be looked up live (pricing, stock, order status).
- isUnanswerableFromKB: true when the provided knowledge base context cannot answer the question.
Answer only from the provided context. If the caller said nothing, gently prompt them.`,
		req.AgentName, req.Product, req.UserName)
}

// parseResponse extracts a Response from a model reply. Models occasionally
// wrap JSON in code fences or prepend prose; both are tolerated. A reply with
// no recoverable JSON is treated as plain agent text.
func parseResponse(content string) *Response {
	content = strings.TrimSpace(content)
	if content == "" {
		return nil
	}

	if raw := extractJSON(content); raw != "" {
		var resp Response
		if err := json.Unmarshal([]byte(raw), &resp); err == nil &&
			(resp.AIResponseText != "" || resp.ErrorMessage != "") {
			return &resp
		}
	}
	return &Response{AIResponseText: content}
}

// extractJSON returns the first balanced top-level JSON object in s, or "".
func extractJSON(s string) string {
	start := strings.IndexByte(s, '{')
	if start < 0 {
		return ""
	}
	depth := 0
	inString := false
	escaped := false
	for i := start; i < len(s); i++ {
		c := s[i]
		if inString {
			switch {
			case escaped:
				escaped = false
			case c == '\\':
				escaped = true
			case c == '"':
				inString = false
			}
			continue
		}
		switch c {
		case '"':
			inString = true
		case '{':
			depth++
		case '}':
			depth--
			if depth == 0 {
				return s[start : i+1]
			}
		}
	}
	return ""
}

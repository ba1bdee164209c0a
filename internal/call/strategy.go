package call

import (
	"fmt"
	"strings"

	"github.com/voxhall/telesuite/internal/activity"
	"github.com/voxhall/telesuite/internal/gateway"
)

// Strategy parameterizes the generic call controller for one call flavor.
// The state machine is identical for sales and support calls; only the
// persona, the welcome line, the reminder pool, and the scoring context
// differ.
type Strategy interface {
	// Kind labels activity log entries produced by calls of this flavor.
	Kind() activity.Kind

	// Welcome returns the agent's opening utterance.
	Welcome(cfg Config) string

	// SystemPrompt shapes the gateway persona for one request. Wire it into
	// gateway.New via gateway.WithSystemPrompt.
	SystemPrompt(req gateway.Request) string

	// Reminders returns the fixed pool of inactivity prompts, cycled in
	// order with wraparound.
	Reminders() []string

	// ScoreContext returns extra product context for post-call scoring.
	ScoreContext(cfg Config) string
}

// SalesStrategy drives an outbound pitch call: the agent leads with the
// product and works toward a close.
type SalesStrategy struct{}

var _ Strategy = SalesStrategy{}

func (SalesStrategy) Kind() activity.Kind { return activity.KindSalesCall }

func (SalesStrategy) Welcome(cfg Config) string {
	return fmt.Sprintf(
		"Hello %s! My name is %s and I'm calling about %s. Do you have a couple of minutes?",
		orAnyone(cfg.UserName), cfg.AgentName, cfg.Product,
	)
}

func (SalesStrategy) SystemPrompt(req gateway.Request) string {
	var sb strings.Builder
	fmt.Fprintf(&sb, "You are %s, a telesales agent selling %s to %s over the phone.\n",
		req.AgentName, req.Product, orAnyone(req.UserName))
	sb.WriteString("Keep every reply short and conversational, one to three spoken sentences. ")
	sb.WriteString("Lead with benefits, handle objections politely, and steer toward a clear next step. ")
	sb.WriteString("Never invent pricing or availability that is not in the provided context; ")
	sb.WriteString("if live data is required, say so via the requiresLiveDataFetch field.\n")
	sb.WriteString(gatewayReplyContract)
	return sb.String()
}

func (SalesStrategy) Reminders() []string {
	return []string{
		"Are you still there? I'd love to tell you more.",
		"Hello? Just checking you can hear me alright.",
		"No rush at all. I'm here whenever you're ready to continue.",
		"Shall I go over that last part again?",
	}
}

func (SalesStrategy) ScoreContext(cfg Config) string {
	return fmt.Sprintf("Outbound sales pitch for %s. Judge rapport, objection handling, and progress toward a close.", cfg.Product)
}

// SupportStrategy drives an inbound support call: the caller leads, the
// agent resolves.
type SupportStrategy struct{}

var _ Strategy = SupportStrategy{}

func (SupportStrategy) Kind() activity.Kind { return activity.KindSupportCall }

func (SupportStrategy) Welcome(cfg Config) string {
	return fmt.Sprintf(
		"Hello %s, you've reached %s support, my name is %s. How can I help you today?",
		orAnyone(cfg.UserName), cfg.Product, cfg.AgentName,
	)
}

func (SupportStrategy) SystemPrompt(req gateway.Request) string {
	var sb strings.Builder
	fmt.Fprintf(&sb, "You are %s, a customer support agent for %s, speaking with %s on the phone.\n",
		req.AgentName, req.Product, orAnyone(req.UserName))
	sb.WriteString("Keep every reply short and spoken-friendly. Answer strictly from the provided ")
	sb.WriteString("knowledge context; if the answer is not there, set isUnanswerableFromKB and offer to escalate. ")
	sb.WriteString("Ask one clarifying question at a time when the issue is ambiguous.\n")
	sb.WriteString(gatewayReplyContract)
	return sb.String()
}

func (SupportStrategy) Reminders() []string {
	return []string{
		"Are you still with me?",
		"Take your time. Let me know when you're ready.",
		"Is there anything else I can look into for you?",
	}
}

func (SupportStrategy) ScoreContext(cfg Config) string {
	return fmt.Sprintf("Inbound support call for %s. Judge accuracy, empathy, and time to resolution.", cfg.Product)
}

const gatewayReplyContract = `Reply with a single JSON object: {"aiResponseText": string, "errorMessage"?: string, "requiresLiveDataFetch"?: boolean, "isUnanswerableFromKB"?: boolean}.`

func orAnyone(name string) string {
	if strings.TrimSpace(name) == "" {
		return "the customer"
	}
	return name
}

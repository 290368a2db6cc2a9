// Package classify turns a free-form error string into an
// agentcore.ErrorCategory. The approach — an ordered cascade of
// lower-cased substring checks — mirrors classifyProviderError in the
// teacher's failover orchestrator, generalized from LLM API error
// strings to agent-CLI stderr/exit text.
package classify

import (
	"strings"

	"github.com/remoteclaw/core/pkg/agentcore"
)

var retryablePatterns = []string{
	"rate limit",
	"429",
	"503",
	"overloaded",
	"etimedout",
	"econnreset",
	"econnrefused",
	"network",
}

var contextOverflowPatterns = []string{
	"context length",
	"context window",
	"context overflow",
	"too many tokens",
	"maximum context",
	"token limit",
}

var fatalAuthPatterns = []string{
	"401",
	"403",
	"unauthorized",
	"forbidden",
	"invalid key",
	"authentication",
}

// Classify applies the spec's three-tier pattern cascade: retryable,
// then context-overflow, then fatal-auth, case-insensitive and
// substring-based. The first match wins; an unmatched message is fatal.
func Classify(message string) agentcore.ErrorCategory {
	lower := strings.ToLower(message)

	for _, p := range retryablePatterns {
		if strings.Contains(lower, p) {
			return agentcore.ErrorRetryable
		}
	}
	for _, p := range contextOverflowPatterns {
		if strings.Contains(lower, p) {
			return agentcore.ErrorContextOverflow
		}
	}
	for _, p := range fatalAuthPatterns {
		if strings.Contains(lower, p) {
			return agentcore.ErrorFatal
		}
	}
	return agentcore.ErrorFatal
}

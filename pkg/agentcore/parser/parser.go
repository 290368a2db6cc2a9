// Package parser defines the per-CLI-family line parser contract.
// Each family package (claude, codex, gemini, opencode) implements
// Parser against its own NDJSON envelope shape; the runtime base only
// knows about this interface.
package parser

import "github.com/remoteclaw/core/pkg/agentcore"

// ParsedLine is what a Parser extracts from one line of stdout. Any
// field may be the zero value; Event is nil when the line carried no
// user-visible event (e.g. a bookkeeping-only envelope).
type ParsedLine struct {
	Event      *agentcore.AgentEvent
	SessionID  string
	Usage      *agentcore.AgentUsage
	ResultMeta *ResultMeta
}

// ResultMeta carries terminal-result metadata a family may report
// ahead of the runtime's own done synthesis (cost, duration, turns,
// stop reason, permission denials). The runtime base merges the latest
// non-nil ResultMeta into the done event it ultimately emits.
type ResultMeta struct {
	TotalCostUsd      *float64
	ApiDurationMs     *int64
	NumTurns          *int64
	StopReason        string
	ErrorSubtype      string
	PermissionDenials []string
}

// Parser turns one line of a CLI's stdout into zero or more
// ParsedLine values. Implementations must never panic and must return
// an empty slice for blank or malformed input — parser errors are
// swallowed by design (spec §7).
type Parser interface {
	ParseLine(line string) []ParsedLine
}

// Package agentcore defines the shared data model for the remoteclaw
// CLI runtime bridge: the normalized event stream produced by a spawned
// agent CLI, the parameters used to start a run, and the resolved
// authentication handed to it.
package agentcore

import "time"

// ErrorCategory classifies a failure so the surrounding reply loop can
// decide whether to retry, trim context, or give up.
type ErrorCategory string

const (
	ErrorRetryable       ErrorCategory = "retryable"
	ErrorContextOverflow ErrorCategory = "context_overflow"
	ErrorFatal           ErrorCategory = "fatal"
	ErrorTimeout         ErrorCategory = "timeout"
	ErrorAborted         ErrorCategory = "aborted"
)

// EventKind discriminates AgentEvent's payload.
type EventKind string

const (
	EventText             EventKind = "text"
	EventToolUse          EventKind = "tool_use"
	EventToolResult       EventKind = "tool_result"
	EventToolProgress     EventKind = "tool_progress"
	EventToolSummary      EventKind = "tool_summary"
	EventStatus           EventKind = "status"
	EventTaskStarted      EventKind = "task_started"
	EventTaskNotification EventKind = "task_notification"
	EventError            EventKind = "error"
	EventDone             EventKind = "done"
)

// AgentEvent is the tagged union of everything a runtime can emit.
// Exactly one of the payload fields matching Kind is populated; the
// others are left at zero value. Sequence is monotonic within a single
// run and is assigned by the runtime base, purely as a debugging aid —
// ordering is already guaranteed structurally by the single-producer
// event channel.
type AgentEvent struct {
	Kind     EventKind
	Sequence uint64

	// text
	Text string

	// tool_use
	ToolID    string
	ToolName  string
	ToolInput string

	// tool_result (reuses ToolID)
	ToolOutput  string
	ToolIsError bool

	// tool_progress (reuses ToolID, ToolName)
	ElapsedSeconds float64

	// tool_summary
	Summary string
	ToolIDs []string

	// status
	Status string

	// task_started / task_notification
	TaskID          string
	TaskDescription string
	TaskType        string
	TaskStatus      string
	TaskSummary     string

	// error
	Message  string
	Category ErrorCategory

	// done (terminal)
	Result *AgentRunResult
}

// AgentUsage carries token/cost accounting for a run. All fields are
// optional; zero means "not reported", not "zero usage".
type AgentUsage struct {
	InputTokens        int64
	OutputTokens       int64
	CacheReadTokens    int64
	CacheWriteTokens   int64
	CostUsd            *float64
	WebSearchRequests  *int64
}

// AgentRunResult is the payload of the terminal done event.
type AgentRunResult struct {
	Text       string
	SessionID  string
	DurationMs int64
	Usage      *AgentUsage
	Aborted    bool

	TotalCostUsd      *float64
	ApiDurationMs     *int64
	NumTurns          *int64
	StopReason        string
	ErrorSubtype      string
	PermissionDenials []string
}

// AuthMode identifies how ResolvedProviderAuth should be surfaced to a
// spawned child process.
type AuthMode string

const (
	AuthAPIKey AuthMode = "api-key"
	AuthToken  AuthMode = "token"
	AuthOAuth  AuthMode = "oauth"
	AuthAWSSDK AuthMode = "aws-sdk"
)

// ResolvedProviderAuth is what the auth resolver hands to a runtime.
type ResolvedProviderAuth struct {
	Mode      AuthMode
	APIKey    string
	ProfileID string
	// Source is a free-form diagnostic string, e.g. "profile:work" or
	// "env:AWS_BEARER_TOKEN_BEDROCK" — never logged verbatim with the key.
	Source string
}

// AgentRuntimeParams is the input to a single runtime execution.
type AgentRuntimeParams struct {
	Prompt       string
	SessionID    string // non-empty means resume
	WorkspaceDir string
	Model        string
	MaxTurns     int
	TimeoutMs    int64
	Auth         ResolvedProviderAuth
}

// SessionMapKey identifies a resumable conversation. An empty ThreadID
// is distinct from any non-empty ThreadID except "_", the placeholder
// the session map stores for an absent thread.
type SessionMapKey struct {
	ChannelID string
	UserID    string
	ThreadID  string
}

// SessionEntry is one record in the session map.
type SessionEntry struct {
	SessionID string    `json:"sessionId"`
	UpdatedAt time.Time `json:"-"`
	// UpdatedAtMs is the on-disk epoch-millisecond representation of
	// UpdatedAt; kept alongside it so JSON (de)serialization matches
	// spec.md's external file format exactly.
	UpdatedAtMs int64 `json:"updatedAt"`
}

// Package bridge is the per-message entry point that ties a runtime,
// the session map, and a caller's typed callbacks together into one
// handle() call. Grounded on the teacher's internal/sessions/scoping.go
// (session-key derivation) and internal/agent/failover.go's
// orchestrate-a-single-call shape: iterate a channel, dispatch to
// callbacks, accumulate a terminal result, never let the iteration
// throw out of the call.
package bridge

import (
	"context"
	"log/slog"
	"time"

	"github.com/remoteclaw/core/pkg/agentcore"
	"github.com/remoteclaw/core/pkg/agentcore/runtime"
	"github.com/remoteclaw/core/pkg/agentcore/sessionmap"
)

// Message is one inbound channel message.
type Message struct {
	ChannelID    string
	UserID       string
	ThreadID     string
	Text         string
	WorkspaceDir string
}

// RunParams carries the operator-configured defaults for a turn: the
// model/turn/timeout knobs and the already-resolved auth to hand the
// runtime. Resolving auth is the caller's job (see pkg/agentcore/authstore);
// the bridge never resolves credentials itself.
type RunParams struct {
	Model     string
	MaxTurns  int
	TimeoutMs int64
	Auth      agentcore.ResolvedProviderAuth
}

// Callbacks are the caller's typed hooks into the event stream. Every
// field is optional. A callback panicking is recovered and logged; it
// never aborts the run (spec.md §7: "Callback exceptions are caught
// and logged; the run continues").
type Callbacks struct {
	OnPartialText      func(text string)
	OnToolUse          func(ev *agentcore.AgentEvent)
	OnToolResult       func(ev *agentcore.AgentEvent)
	OnToolProgress     func(ev *agentcore.AgentEvent)
	OnToolSummary      func(ev *agentcore.AgentEvent)
	OnStatus           func(ev *agentcore.AgentEvent)
	OnTaskStarted      func(ev *agentcore.AgentEvent)
	OnTaskNotification func(ev *agentcore.AgentEvent)
	OnError            func(ev *agentcore.AgentEvent)
}

// ChannelReply is handle()'s return value: everything a channel
// adapter needs to answer the inbound message.
type ChannelReply struct {
	Text       string
	SessionID  string
	DurationMs int64
	Usage      *agentcore.AgentUsage
	Aborted    bool
	Error      string

	TotalCostUsd      *float64
	ApiDurationMs     *int64
	NumTurns          *int64
	StopReason        string
	ErrorSubtype      string
	PermissionDenials []string
}

// Bridge holds no per-call state beyond the session map it shares
// across calls (spec.md §4.H: "The bridge holds no state across calls
// beyond the session map").
type Bridge struct {
	runtime  runtime.Runtime
	sessions *sessionmap.Store
	logger   *slog.Logger
}

// New builds a Bridge over an already-constructed runtime and session
// map. Callers typically obtain rt via runtime/factory.NewRuntime.
func New(rt runtime.Runtime, sessions *sessionmap.Store, logger *slog.Logger) *Bridge {
	if logger == nil {
		logger = slog.Default()
	}
	return &Bridge{runtime: rt, sessions: sessions, logger: logger}
}

// Handle runs one turn to completion: starts the runtime, dispatches
// every event to the matching callback, and returns the accumulated
// ChannelReply. It never panics or returns an error — a spawn failure
// or an in-stream error event both surface through cb.OnError and the
// returned reply's Error field, per spec.md §4.H/§7.
func (b *Bridge) Handle(ctx context.Context, msg Message, params RunParams, cb Callbacks) ChannelReply {
	start := time.Now()
	key := agentcore.SessionMapKey{ChannelID: msg.ChannelID, UserID: msg.UserID, ThreadID: msg.ThreadID}
	sessionID, _ := b.sessions.Get(key)

	events, err := b.runtime.Execute(ctx, agentcore.AgentRuntimeParams{
		Prompt:       msg.Text,
		SessionID:    sessionID,
		WorkspaceDir: msg.WorkspaceDir,
		Model:        params.Model,
		MaxTurns:     params.MaxTurns,
		TimeoutMs:    params.TimeoutMs,
		Auth:         params.Auth,
	})
	if err != nil {
		b.dispatch(cb.OnError, &agentcore.AgentEvent{Kind: agentcore.EventError, Message: err.Error(), Category: agentcore.ErrorFatal})
		return ChannelReply{Error: err.Error(), DurationMs: time.Since(start).Milliseconds()}
	}

	var result *agentcore.AgentRunResult
	var lastErr string

	for ev := range events {
		switch ev.Kind {
		case agentcore.EventText:
			b.dispatchText(cb.OnPartialText, ev.Text)
		case agentcore.EventToolUse:
			b.dispatch(cb.OnToolUse, ev)
		case agentcore.EventToolResult:
			b.dispatch(cb.OnToolResult, ev)
		case agentcore.EventToolProgress:
			b.dispatch(cb.OnToolProgress, ev)
		case agentcore.EventToolSummary:
			b.dispatch(cb.OnToolSummary, ev)
		case agentcore.EventStatus:
			b.dispatch(cb.OnStatus, ev)
		case agentcore.EventTaskStarted:
			b.dispatch(cb.OnTaskStarted, ev)
		case agentcore.EventTaskNotification:
			b.dispatch(cb.OnTaskNotification, ev)
		case agentcore.EventError:
			lastErr = ev.Message
			b.dispatch(cb.OnError, ev)
		case agentcore.EventDone:
			result = ev.Result
		}
	}

	reply := ChannelReply{DurationMs: time.Since(start).Milliseconds(), Error: lastErr}
	if result != nil {
		reply.Text = result.Text
		reply.SessionID = result.SessionID
		reply.Usage = result.Usage
		reply.Aborted = result.Aborted
		reply.TotalCostUsd = result.TotalCostUsd
		reply.ApiDurationMs = result.ApiDurationMs
		reply.NumTurns = result.NumTurns
		reply.StopReason = result.StopReason
		reply.ErrorSubtype = result.ErrorSubtype
		reply.PermissionDenials = result.PermissionDenials

		if result.SessionID != "" {
			if err := b.sessions.Set(key, result.SessionID); err != nil {
				b.logger.Error("persist session id", "error", err, "channel", msg.ChannelID)
			}
		}
	}
	return reply
}

func (b *Bridge) dispatch(fn func(*agentcore.AgentEvent), ev *agentcore.AgentEvent) {
	if fn == nil {
		return
	}
	defer b.recoverCallback()
	fn(ev)
}

func (b *Bridge) dispatchText(fn func(string), text string) {
	if fn == nil {
		return
	}
	defer b.recoverCallback()
	fn(text)
}

func (b *Bridge) recoverCallback() {
	if r := recover(); r != nil {
		b.logger.Error("callback panicked, continuing run", "panic", r)
	}
}

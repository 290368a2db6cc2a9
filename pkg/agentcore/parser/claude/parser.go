// Package claude parses the Claude Code / Claude Agent SDK stream-json
// NDJSON protocol into normalized agentcore events. The envelope shapes
// (system/assistant/result, content-block iteration, usage extraction)
// are grounded on the teacher pack's stream-json adapter
// (other_examples/c0d95924_kdlbs-kandev__...streamjson-adapter.go.go),
// generalized from that adapter's internal event model to agentcore's.
package claude

import (
	"encoding/json"

	"github.com/remoteclaw/core/pkg/agentcore"
	"github.com/remoteclaw/core/pkg/agentcore/parser"
)

// Parser implements parser.Parser for Claude-family NDJSON output.
type Parser struct{}

// New returns a Claude-family line parser.
func New() *Parser { return &Parser{} }

type envelope struct {
	Type    string `json:"type"`
	Subtype string `json:"subtype"`

	SessionID string `json:"session_id"`

	// assistant
	Message *message `json:"message"`

	// result
	CostUSD           *float64        `json:"cost_usd"`
	DurationMs        *int64          `json:"duration_ms"`
	APIDurationMs     *int64          `json:"api_duration_ms"`
	NumTurns          *int64          `json:"num_turns"`
	StopReason        string          `json:"stop_reason"`
	PermissionDenials []string        `json:"permission_denials"`
	Usage             json.RawMessage `json:"usage"`

	// task_started / task_notification
	TaskID      string `json:"task_id"`
	Description string `json:"description"`
	TaskType    string `json:"task_type"`
	TaskStatus  string `json:"status"`
	Summary     string `json:"summary"`

	// tool_progress
	ToolID         string  `json:"tool_id"`
	ToolName       string  `json:"tool_name"`
	ElapsedSeconds float64 `json:"elapsed_seconds"`

	// tool_use_summary
	ToolIDs []string `json:"tool_ids"`
}

type message struct {
	Content []contentBlock `json:"content"`
}

type contentBlock struct {
	Type  string          `json:"type"`
	Text  string          `json:"text"`
	ID    string           `json:"id"`
	Name  string           `json:"name"`
	Input json.RawMessage `json:"input"`
}

// ParseLine implements parser.Parser.
func (p *Parser) ParseLine(line string) []parser.ParsedLine {
	if len(trimSpace(line)) == 0 {
		return nil
	}

	var env envelope
	if err := json.Unmarshal([]byte(line), &env); err != nil {
		return nil
	}

	switch env.Type {
	case "system":
		return p.parseSystem(&env)
	case "assistant":
		return p.parseAssistant(&env)
	case "result":
		return []parser.ParsedLine{p.parseResult(&env)}
	case "tool_progress":
		return []parser.ParsedLine{{
			SessionID: env.SessionID,
			Event: &agentcore.AgentEvent{
				Kind:           agentcore.EventToolProgress,
				ToolID:         env.ToolID,
				ToolName:       env.ToolName,
				ElapsedSeconds: env.ElapsedSeconds,
			},
		}}
	case "tool_use_summary":
		return []parser.ParsedLine{{
			SessionID: env.SessionID,
			Event: &agentcore.AgentEvent{
				Kind:    agentcore.EventToolSummary,
				Summary: env.Summary,
				ToolIDs: env.ToolIDs,
			},
		}}
	default:
		return []parser.ParsedLine{{}}
	}
}

func (p *Parser) parseSystem(env *envelope) []parser.ParsedLine {
	base := parser.ParsedLine{SessionID: env.SessionID}

	switch env.Subtype {
	case "init", "status":
		status := env.Subtype
		if status == "" {
			status = "status"
		}
		base.Event = &agentcore.AgentEvent{Kind: agentcore.EventStatus, Status: status}
	case "task_started":
		base.Event = &agentcore.AgentEvent{
			Kind:            agentcore.EventTaskStarted,
			TaskID:          env.TaskID,
			TaskDescription: env.Description,
			TaskType:        env.TaskType,
		}
	case "task_notification":
		base.Event = &agentcore.AgentEvent{
			Kind:        agentcore.EventTaskNotification,
			TaskID:      env.TaskID,
			TaskStatus:  env.TaskStatus,
			TaskSummary: env.Summary,
		}
	default:
		base.Event = &agentcore.AgentEvent{Kind: agentcore.EventStatus, Status: env.Subtype}
	}

	return []parser.ParsedLine{base}
}

func (p *Parser) parseAssistant(env *envelope) []parser.ParsedLine {
	if env.Message == nil || len(env.Message.Content) == 0 {
		return []parser.ParsedLine{{SessionID: env.SessionID}}
	}

	out := make([]parser.ParsedLine, 0, len(env.Message.Content))
	for _, block := range env.Message.Content {
		switch block.Type {
		case "text":
			out = append(out, parser.ParsedLine{
				SessionID: env.SessionID,
				Event:     &agentcore.AgentEvent{Kind: agentcore.EventText, Text: block.Text},
			})
		case "tool_use":
			out = append(out, parser.ParsedLine{
				SessionID: env.SessionID,
				Event: &agentcore.AgentEvent{
					Kind:      agentcore.EventToolUse,
					ToolID:    block.ID,
					ToolName:  block.Name,
					ToolInput: string(block.Input),
				},
			})
		}
	}
	if len(out) == 0 {
		return []parser.ParsedLine{{SessionID: env.SessionID}}
	}
	return out
}

func (p *Parser) parseResult(env *envelope) parser.ParsedLine {
	pl := parser.ParsedLine{
		SessionID: env.SessionID,
		ResultMeta: &parser.ResultMeta{
			TotalCostUsd:      env.CostUSD,
			ApiDurationMs:     env.APIDurationMs,
			NumTurns:          env.NumTurns,
			StopReason:        env.StopReason,
			PermissionDenials: env.PermissionDenials,
		},
	}
	if usage := parseUsage(env.Usage); usage != nil {
		pl.Usage = usage
	}
	return pl
}

// usage prefers per-model camelCase fields, falling back to the
// snake_case totals the CLI emits when no per-model breakdown is
// present.
type usageCamel struct {
	InputTokens      *int64   `json:"inputTokens"`
	OutputTokens     *int64   `json:"outputTokens"`
	CacheReadTokens  *int64   `json:"cacheReadTokens"`
	CacheWriteTokens *int64   `json:"cacheWriteTokens"`
	CostUsd          *float64 `json:"costUsd"`
	WebSearchRequests *int64  `json:"webSearchRequests"`
}

type usageSnake struct {
	InputTokens             *int64 `json:"input_tokens"`
	OutputTokens            *int64 `json:"output_tokens"`
	CacheReadInputTokens    *int64 `json:"cache_read_input_tokens"`
	CacheCreationInputTokens *int64 `json:"cache_creation_input_tokens"`
}

func parseUsage(raw json.RawMessage) *agentcore.AgentUsage {
	if len(raw) == 0 {
		return nil
	}

	var camel usageCamel
	_ = json.Unmarshal(raw, &camel)

	usage := &agentcore.AgentUsage{}
	have := false

	if camel.InputTokens != nil {
		usage.InputTokens = *camel.InputTokens
		have = true
	}
	if camel.OutputTokens != nil {
		usage.OutputTokens = *camel.OutputTokens
		have = true
	}
	if camel.CacheReadTokens != nil {
		usage.CacheReadTokens = *camel.CacheReadTokens
		have = true
	}
	if camel.CacheWriteTokens != nil {
		usage.CacheWriteTokens = *camel.CacheWriteTokens
		have = true
	}
	usage.CostUsd = camel.CostUsd
	usage.WebSearchRequests = camel.WebSearchRequests

	if have {
		return usage
	}

	var snake usageSnake
	if err := json.Unmarshal(raw, &snake); err != nil {
		return nil
	}
	if snake.InputTokens == nil && snake.OutputTokens == nil &&
		snake.CacheReadInputTokens == nil && snake.CacheCreationInputTokens == nil {
		return nil
	}
	if snake.InputTokens != nil {
		usage.InputTokens = *snake.InputTokens
	}
	if snake.OutputTokens != nil {
		usage.OutputTokens = *snake.OutputTokens
	}
	if snake.CacheReadInputTokens != nil {
		usage.CacheReadTokens = *snake.CacheReadInputTokens
	}
	if snake.CacheCreationInputTokens != nil {
		usage.CacheWriteTokens = *snake.CacheCreationInputTokens
	}
	return usage
}

func trimSpace(s string) string {
	start, end := 0, len(s)
	for start < end && isSpace(s[start]) {
		start++
	}
	for end > start && isSpace(s[end-1]) {
		end--
	}
	return s[start:end]
}

func isSpace(b byte) bool {
	return b == ' ' || b == '\t' || b == '\n' || b == '\r'
}

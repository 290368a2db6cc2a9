// Package codex parses OpenAI Codex exec's --json NDJSON output into
// normalized agentcore events. The line-by-line best-effort dispatch
// (silently dropping malformed or unrecognized input) is grounded on
// the teacher's internal/mcp/transport_stdio.go processLine.
package codex

import (
	"encoding/json"

	"github.com/remoteclaw/core/pkg/agentcore"
	"github.com/remoteclaw/core/pkg/agentcore/parser"
)

// Parser implements parser.Parser for Codex exec NDJSON output.
type Parser struct{}

// New returns a Codex line parser.
func New() *Parser { return &Parser{} }

type envelope struct {
	Type string `json:"type"`

	ThreadID string `json:"thread_id"`

	Item *item `json:"item"`

	Usage *usage `json:"usage"`

	Message string `json:"message"`
}

type item struct {
	Type string `json:"type"`

	// agent_message
	Text string `json:"text"`

	// command_execution
	Command  string `json:"command"`
	ID       string `json:"id"`
	Output   string `json:"aggregated_output"`
	Status   string `json:"status"`
}

type usage struct {
	InputTokens       *int64 `json:"input_tokens"`
	CachedInputTokens *int64 `json:"cached_input_tokens"`
	OutputTokens      *int64 `json:"output_tokens"`
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
	case "thread.started":
		return []parser.ParsedLine{{SessionID: env.ThreadID}}

	case "item.started":
		if env.Item != nil && env.Item.Type == "command_execution" {
			return []parser.ParsedLine{{
				Event: &agentcore.AgentEvent{
					Kind:      agentcore.EventToolUse,
					ToolID:    env.Item.ID,
					ToolName:  "command_execution",
					ToolInput: env.Item.Command,
				},
			}}
		}
		return []parser.ParsedLine{{}}

	case "item.completed":
		if env.Item == nil {
			return []parser.ParsedLine{{}}
		}
		switch env.Item.Type {
		case "agent_message":
			return []parser.ParsedLine{{
				Event: &agentcore.AgentEvent{Kind: agentcore.EventText, Text: env.Item.Text},
			}}
		case "command_execution":
			return []parser.ParsedLine{{
				Event: &agentcore.AgentEvent{
					Kind:        agentcore.EventToolResult,
					ToolID:      env.Item.ID,
					ToolOutput:  env.Item.Output,
					ToolIsError: env.Item.Status == "failed",
				},
			}}
		}
		return []parser.ParsedLine{{}}

	case "turn.completed":
		pl := parser.ParsedLine{}
		if env.Usage != nil {
			u := &agentcore.AgentUsage{}
			if env.Usage.InputTokens != nil {
				u.InputTokens = *env.Usage.InputTokens
			}
			if env.Usage.CachedInputTokens != nil {
				u.CacheReadTokens = *env.Usage.CachedInputTokens
			}
			if env.Usage.OutputTokens != nil {
				u.OutputTokens = *env.Usage.OutputTokens
			}
			pl.Usage = u
		}
		return []parser.ParsedLine{pl}

	case "error":
		return []parser.ParsedLine{{
			Event: &agentcore.AgentEvent{
				Kind:     agentcore.EventError,
				Message:  env.Message,
				Category: agentcore.ErrorFatal,
			},
		}}

	default:
		return []parser.ParsedLine{{}}
	}
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

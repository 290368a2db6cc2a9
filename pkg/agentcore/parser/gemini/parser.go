// Package gemini parses Google Gemini CLI's --output-format stream-json
// NDJSON output into normalized agentcore events. Tool-use envelopes
// carry no stable id of their own, so this package mints one per
// invocation the same way the teacher pack mints ids for ambient state
// that the upstream protocol doesn't provide (google/uuid, also used
// by the teacher for message/session identifiers).
package gemini

import (
	"encoding/json"

	"github.com/google/uuid"

	"github.com/remoteclaw/core/pkg/agentcore"
	"github.com/remoteclaw/core/pkg/agentcore/parser"
)

// Parser implements parser.Parser for Gemini CLI NDJSON output.
type Parser struct{}

// New returns a Gemini line parser.
func New() *Parser { return &Parser{} }

type envelope struct {
	Type string `json:"type"`

	SessionID string `json:"sessionId"`

	Content string `json:"content"`

	Tool string          `json:"tool"`
	Args json.RawMessage `json:"args"`

	Stats *stats `json:"stats"`
}

type stats struct {
	Models map[string]modelStats `json:"models"`
	Tools  *toolStats            `json:"tools"`
}

type modelStats struct {
	Tokens tokenStats `json:"tokens"`
}

type tokenStats struct {
	Prompt     *int64 `json:"prompt"`
	Candidates *int64 `json:"candidates"`
	Cached     *int64 `json:"cached"`
}

type toolStats struct {
	TotalCalls *int64 `json:"totalCalls"`
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
	case "init":
		return []parser.ParsedLine{{SessionID: env.SessionID}}

	case "message":
		return []parser.ParsedLine{{
			Event: &agentcore.AgentEvent{Kind: agentcore.EventText, Text: env.Content},
		}}

	case "tool_use":
		toolName := env.Tool
		if toolName == "" {
			toolName = "unknown"
		}
		input := string(env.Args)
		var asString string
		if err := json.Unmarshal(env.Args, &asString); err == nil {
			input = asString
		}
		return []parser.ParsedLine{{
			Event: &agentcore.AgentEvent{
				Kind:      agentcore.EventToolUse,
				ToolID:    uuid.NewString(),
				ToolName:  toolName,
				ToolInput: input,
			},
		}}

	case "tool_result":
		return []parser.ParsedLine{{}}

	case "result":
		pl := parser.ParsedLine{}
		if env.Stats != nil {
			if env.Stats.Tools != nil && env.Stats.Tools.TotalCalls != nil {
				pl.ResultMeta = &parser.ResultMeta{NumTurns: env.Stats.Tools.TotalCalls}
			}
			for _, m := range env.Stats.Models {
				u := &agentcore.AgentUsage{}
				if m.Tokens.Prompt != nil {
					u.InputTokens = *m.Tokens.Prompt
				}
				if m.Tokens.Candidates != nil {
					u.OutputTokens = *m.Tokens.Candidates
				}
				if m.Tokens.Cached != nil {
					u.CacheReadTokens = *m.Tokens.Cached
				}
				pl.Usage = u
				break
			}
		}
		return []parser.ParsedLine{pl}

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

// Package opencode parses OpenCode's --format json NDJSON output into
// normalized agentcore events. Every line shares one envelope type,
// message.part.updated, with part.type as the real discriminator.
package opencode

import (
	"encoding/json"
	"fmt"
	"os"
	"sync"

	"github.com/remoteclaw/core/pkg/agentcore"
	"github.com/remoteclaw/core/pkg/agentcore/parser"
)

// Parser implements parser.Parser for OpenCode NDJSON output. Tool ids
// are minted from a per-instance counter (spec.md's "Global mutable
// state" note rules out a shared package-level counter), prefixed with
// the process id and the parser's own address so ids stay unique across
// concurrently-running OpenCode runtimes in the same process. The protocol itself carries
// no stable id linking a tool's "running" part to its later
// "complete"/"failed" part, so the parser tracks a per-tool-name FIFO
// of ids it handed out for running calls and reuses the oldest one
// when that tool next completes.
type Parser struct {
	mu      sync.Mutex
	prefix  string
	counter uint64
	pending map[string][]string
}

// New returns an OpenCode line parser with its own tool-id counter.
func New() *Parser {
	p := &Parser{pending: make(map[string][]string)}
	p.prefix = fmt.Sprintf("oc-%d-%p-", os.Getpid(), p)
	return p
}

func (p *Parser) nextToolID() string {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.counter++
	return fmt.Sprintf("%s%d", p.prefix, p.counter)
}

func (p *Parser) startTool(name string) string {
	id := p.nextToolID()
	p.mu.Lock()
	p.pending[name] = append(p.pending[name], id)
	p.mu.Unlock()
	return id
}

func (p *Parser) completeTool(name string) string {
	p.mu.Lock()
	defer p.mu.Unlock()
	queue := p.pending[name]
	if len(queue) == 0 {
		p.counter++
		return fmt.Sprintf("%s%d", p.prefix, p.counter)
	}
	id := queue[0]
	p.pending[name] = queue[1:]
	return id
}

type envelope struct {
	Type string `json:"type"`
	Part *part  `json:"part"`
}

type part struct {
	Type string `json:"type"`

	// text
	Text string `json:"text"`

	// tool
	Tool  string `json:"tool"`
	State string `json:"state"`
	Input json.RawMessage `json:"input"`
	Output string `json:"output"`
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

	if env.Type != "message.part.updated" || env.Part == nil {
		return []parser.ParsedLine{{}}
	}

	switch env.Part.Type {
	case "text":
		return []parser.ParsedLine{{
			Event: &agentcore.AgentEvent{Kind: agentcore.EventText, Text: env.Part.Text},
		}}

	case "thinking", "reasoning":
		return []parser.ParsedLine{{}}

	case "tool":
		switch env.Part.State {
		case "running":
			return []parser.ParsedLine{{
				Event: &agentcore.AgentEvent{
					Kind:      agentcore.EventToolUse,
					ToolID:    p.startTool(env.Part.Tool),
					ToolName:  env.Part.Tool,
					ToolInput: string(env.Part.Input),
				},
			}}
		case "complete", "failed":
			return []parser.ParsedLine{{
				Event: &agentcore.AgentEvent{
					Kind:        agentcore.EventToolResult,
					ToolID:      p.completeTool(env.Part.Tool),
					ToolOutput:  env.Part.Output,
					ToolIsError: env.Part.State == "failed",
				},
			}}
		}
		return []parser.ParsedLine{{}}

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

package gemini

import (
	"testing"

	"github.com/remoteclaw/core/pkg/agentcore"
)

func TestParseLine_Init(t *testing.T) {
	lines := New().ParseLine(`{"type":"init","sessionId":"s-1"}`)
	if len(lines) != 1 || lines[0].SessionID != "s-1" {
		t.Errorf("got %+v", lines)
	}
}

func TestParseLine_Message(t *testing.T) {
	lines := New().ParseLine(`{"type":"message","content":"hello"}`)
	if lines[0].Event.Kind != agentcore.EventText || lines[0].Event.Text != "hello" {
		t.Errorf("event = %+v", lines[0].Event)
	}
}

func TestParseLine_ToolUseStringArgs(t *testing.T) {
	lines := New().ParseLine(`{"type":"tool_use","tool":"bash","args":"ls -la"}`)
	ev := lines[0].Event
	if ev.Kind != agentcore.EventToolUse || ev.ToolName != "bash" || ev.ToolInput != "ls -la" {
		t.Errorf("event = %+v", ev)
	}
	if ev.ToolID == "" {
		t.Error("expected generated tool id, got empty")
	}
}

func TestParseLine_ToolUseObjectArgsAndMissingToolName(t *testing.T) {
	lines := New().ParseLine(`{"type":"tool_use","args":{"cmd":"ls"}}`)
	ev := lines[0].Event
	if ev.ToolName != "unknown" {
		t.Errorf("ToolName = %q, want unknown", ev.ToolName)
	}
	if ev.ToolInput != `{"cmd":"ls"}` {
		t.Errorf("ToolInput = %q", ev.ToolInput)
	}
}

func TestParseLine_ToolResultNoEvent(t *testing.T) {
	lines := New().ParseLine(`{"type":"tool_result","output":"ok"}`)
	if len(lines) != 1 || lines[0].Event != nil {
		t.Errorf("got %+v, want no event", lines)
	}
}

func TestParseLine_Result(t *testing.T) {
	in := `{"type":"result","stats":{"models":{"gemini-2.5-pro":{"tokens":{"prompt":10,"candidates":2,"cached":1}}},"tools":{"totalCalls":4}}}`
	lines := New().ParseLine(in)
	pl := lines[0]
	if pl.Usage == nil || pl.Usage.InputTokens != 10 || pl.Usage.OutputTokens != 2 || pl.Usage.CacheReadTokens != 1 {
		t.Errorf("usage = %+v", pl.Usage)
	}
	if pl.ResultMeta == nil || pl.ResultMeta.NumTurns == nil || *pl.ResultMeta.NumTurns != 4 {
		t.Errorf("result meta = %+v", pl.ResultMeta)
	}
}

func TestParseLine_UnknownBlankMalformed(t *testing.T) {
	if lines := New().ParseLine(`{"type":"future_type"}`); len(lines) != 1 || lines[0].Event != nil {
		t.Errorf("got %+v", lines)
	}
	if lines := New().ParseLine(""); lines != nil {
		t.Errorf("blank: got %+v", lines)
	}
	if lines := New().ParseLine("nope"); lines != nil {
		t.Errorf("malformed: got %+v", lines)
	}
}

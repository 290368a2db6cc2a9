package runtime

import (
	"context"
	"testing"
	"time"

	"github.com/remoteclaw/core/pkg/agentcore"
	"github.com/remoteclaw/core/pkg/agentcore/parser"
	"github.com/remoteclaw/core/pkg/agentcore/parser/claude"
)

// bashFamily builds a FamilyConfig that runs an arbitrary bash script
// in place of a real agent CLI binary, using the Claude parser to
// interpret its stdout. This is the hermetic-test seam spec.md expects
// runtime implementations to support: no real CLI binary is spawned.
func bashFamily(script string) FamilyConfig {
	return FamilyConfig{
		Command: "bash",
		BuildArgv: func(p agentcore.AgentRuntimeParams, extraArgs []string, promptInStdin bool) []string {
			return []string{"-c", script}
		},
		BuildEnv: func(p agentcore.AgentRuntimeParams, operatorEnv map[string]string) []string {
			return nil
		},
		NewParser: func() parser.Parser { return claude.New() },
	}
}

func drain(t *testing.T, ch <-chan *agentcore.AgentEvent, timeout time.Duration) []*agentcore.AgentEvent {
	t.Helper()
	var events []*agentcore.AgentEvent
	deadline := time.After(timeout)
	for {
		select {
		case ev, ok := <-ch:
			if !ok {
				return events
			}
			events = append(events, ev)
		case <-deadline:
			t.Fatal("timed out draining events")
		}
	}
}

func TestExecute_FreshTurnSuccess(t *testing.T) {
	script := `echo '{"type":"system","subtype":"init","session_id":"s-1"}'; ` +
		`echo '{"type":"assistant","session_id":"s-1","message":{"content":[{"type":"text","text":"Hi"}]}}'; ` +
		`echo '{"type":"result","session_id":"s-1","usage":{"input_tokens":10,"output_tokens":1}}'; ` +
		`exit 0`

	base := NewBase(bashFamily(script), BackendConfig{})
	ch, err := base.Execute(context.Background(), agentcore.AgentRuntimeParams{Prompt: "hello", WorkspaceDir: "."})
	if err != nil {
		t.Fatalf("Execute: %v", err)
	}

	events := drain(t, ch, 5*time.Second)
	if len(events) == 0 {
		t.Fatal("no events received")
	}

	last := events[len(events)-1]
	if last.Kind != agentcore.EventDone {
		t.Fatalf("last event kind = %v, want done", last.Kind)
	}
	for i, ev := range events[:len(events)-1] {
		if ev.Kind == agentcore.EventDone {
			t.Fatalf("done event at index %d before the end", i)
		}
	}

	res := last.Result
	if res.Text != "Hi" {
		t.Errorf("result.Text = %q, want Hi", res.Text)
	}
	if res.SessionID != "s-1" {
		t.Errorf("result.SessionID = %q, want s-1", res.SessionID)
	}
	if res.Usage == nil || res.Usage.InputTokens != 10 || res.Usage.OutputTokens != 1 {
		t.Errorf("result.Usage = %+v", res.Usage)
	}
	if res.Aborted {
		t.Error("result.Aborted = true, want false")
	}
}

func TestExecute_EmptyStdoutSuccessNoError(t *testing.T) {
	base := NewBase(bashFamily("exit 0"), BackendConfig{})
	ch, err := base.Execute(context.Background(), agentcore.AgentRuntimeParams{Prompt: "x", WorkspaceDir: "."})
	if err != nil {
		t.Fatalf("Execute: %v", err)
	}

	events := drain(t, ch, 5*time.Second)
	if len(events) != 1 {
		t.Fatalf("got %d events, want exactly 1 (done)", len(events))
	}
	if events[0].Kind != agentcore.EventDone {
		t.Fatalf("event kind = %v, want done", events[0].Kind)
	}
	if events[0].Result.Text != "" {
		t.Errorf("result.Text = %q, want empty", events[0].Result.Text)
	}
}

func TestExecute_NonZeroExitClassifiedFromStderr(t *testing.T) {
	script := `echo 'rate limit exceeded' 1>&2; exit 1`
	base := NewBase(bashFamily(script), BackendConfig{})
	ch, err := base.Execute(context.Background(), agentcore.AgentRuntimeParams{Prompt: "x", WorkspaceDir: "."})
	if err != nil {
		t.Fatalf("Execute: %v", err)
	}

	events := drain(t, ch, 5*time.Second)
	if len(events) != 2 {
		t.Fatalf("got %d events, want error+done", len(events))
	}
	if events[0].Kind != agentcore.EventError || events[0].Category != agentcore.ErrorRetryable {
		t.Errorf("error event = %+v", events[0])
	}
	if events[1].Kind != agentcore.EventDone || events[1].Result.Aborted {
		t.Errorf("done event = %+v", events[1])
	}
}

func TestExecute_AbortSendsSigtermAndReportsAborted(t *testing.T) {
	script := `trap 'kill $!; exit 0' TERM; sleep 30 & wait`
	base := NewBase(bashFamily(script), BackendConfig{})
	ctx, cancel := context.WithCancel(context.Background())

	ch, err := base.Execute(ctx, agentcore.AgentRuntimeParams{Prompt: "x", WorkspaceDir: "."})
	if err != nil {
		t.Fatalf("Execute: %v", err)
	}

	time.Sleep(100 * time.Millisecond)
	cancel()

	events := drain(t, ch, 5*time.Second)
	if len(events) != 2 {
		t.Fatalf("got %d events, want error+done", len(events))
	}
	if events[0].Kind != agentcore.EventError || events[0].Category != agentcore.ErrorAborted {
		t.Errorf("error event = %+v", events[0])
	}
	if !events[1].Result.Aborted {
		t.Error("expected result.Aborted = true")
	}
}

func TestExecute_WatchdogFiresOnNoOutput(t *testing.T) {
	script := `sleep 2`
	base := NewBase(bashFamily(script), BackendConfig{FreshNoOutputTimeoutMs: 100})
	ch, err := base.Execute(context.Background(), agentcore.AgentRuntimeParams{Prompt: "x", WorkspaceDir: "."})
	if err != nil {
		t.Fatalf("Execute: %v", err)
	}

	events := drain(t, ch, 5*time.Second)
	if len(events) != 2 {
		t.Fatalf("got %d events, want error+done", len(events))
	}
	if events[0].Kind != agentcore.EventError || events[0].Category != agentcore.ErrorTimeout {
		t.Errorf("error event = %+v", events[0])
	}
	if !events[1].Result.Aborted {
		t.Error("expected result.Aborted = true")
	}
}

func TestExecute_TotalTimeoutFires(t *testing.T) {
	script := `sleep 2`
	base := NewBase(bashFamily(script), BackendConfig{})
	ch, err := base.Execute(context.Background(), agentcore.AgentRuntimeParams{
		Prompt: "x", WorkspaceDir: ".", TimeoutMs: 100,
	})
	if err != nil {
		t.Fatalf("Execute: %v", err)
	}

	events := drain(t, ch, 5*time.Second)
	last := events[len(events)-1]
	if !last.Result.Aborted {
		t.Error("expected result.Aborted = true on total timeout")
	}
}

package main

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/remoteclaw/core/pkg/agentcore"
	"github.com/remoteclaw/core/pkg/agentcore/parser"
	"github.com/remoteclaw/core/pkg/agentcore/parser/claude"
	"github.com/remoteclaw/core/pkg/agentcore/parser/codex"
	"github.com/remoteclaw/core/pkg/agentcore/parser/gemini"
	"github.com/remoteclaw/core/pkg/agentcore/parser/opencode"
	"github.com/remoteclaw/core/pkg/agentcore/runtime"
)

// buildDoctorCmd operationalizes the "mock child replays a captured
// stdout transcript" testable property as something an operator can
// run by hand: it drives the real runtime base against `cat <fixture>`
// instead of a live agent CLI, so the parsing and event-accumulation
// path under test is identical to production.
func buildDoctorCmd() *cobra.Command {
	var (
		fixture   string
		family    string
		prompt    string
		timeoutMs int64
	)

	cmd := &cobra.Command{
		Use:   "doctor",
		Short: "Replay a captured NDJSON transcript through the real parser/runtime pipeline",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runDoctor(cmd.Context(), fixture, family, prompt, timeoutMs)
		},
	}

	cmd.Flags().StringVar(&fixture, "fixture", "", "path to a captured NDJSON transcript (required)")
	cmd.Flags().StringVar(&family, "family", "claude", "wire protocol family to parse the fixture as: claude|codex|gemini|opencode")
	cmd.Flags().StringVar(&prompt, "prompt", "replay", "prompt placed in the run parameters (cat ignores it; it is not part of the printed result)")
	cmd.Flags().Int64Var(&timeoutMs, "timeout-ms", 0, "total wall-clock timeout in milliseconds (0 = none)")
	_ = cmd.MarkFlagRequired("fixture")

	return cmd
}

func newParserFor(family string) (func() parser.Parser, error) {
	switch family {
	case "claude":
		return func() parser.Parser { return claude.New() }, nil
	case "codex":
		return func() parser.Parser { return codex.New() }, nil
	case "gemini":
		return func() parser.Parser { return gemini.New() }, nil
	case "opencode":
		return func() parser.Parser { return opencode.New() }, nil
	default:
		return nil, fmt.Errorf("unknown family %q (want claude, codex, gemini, or opencode)", family)
	}
}

func runDoctor(ctx context.Context, fixture, family, prompt string, timeoutMs int64) error {
	if fixture == "" {
		return fmt.Errorf("--fixture is required")
	}
	newParser, err := newParserFor(family)
	if err != nil {
		return err
	}

	fc := runtime.FamilyConfig{
		Command: "cat",
		BuildArgv: func(p agentcore.AgentRuntimeParams, extraArgs []string, promptInStdin bool) []string {
			return []string{fixture}
		},
		BuildEnv: func(p agentcore.AgentRuntimeParams, operatorEnv map[string]string) []string {
			return nil
		},
		NewParser: newParser,
	}

	base := runtime.NewBase(fc, runtime.BackendConfig{})
	events, err := base.Execute(ctx, agentcore.AgentRuntimeParams{
		Prompt:       prompt,
		WorkspaceDir: ".",
		TimeoutMs:    timeoutMs,
	})
	if err != nil {
		return fmt.Errorf("execute: %w", err)
	}

	var result *agentcore.AgentRunResult
	deadline := time.After(30 * time.Second)
	for result == nil {
		select {
		case ev, ok := <-events:
			if !ok {
				return fmt.Errorf("event stream closed before a done event")
			}
			if ev.Kind == agentcore.EventDone {
				result = ev.Result
			}
		case <-deadline:
			return fmt.Errorf("timed out waiting for the replay to finish")
		}
	}

	out, err := json.MarshalIndent(result, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal result: %w", err)
	}
	fmt.Println(string(out))
	return nil
}

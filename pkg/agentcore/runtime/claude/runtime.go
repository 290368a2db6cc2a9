// Package claude configures the shared runtime base for the
// Claude-family CLI (Claude Code / Claude Agent SDK). Argv layering
// follows the teacher's internal/channels/signal/adapter.go pattern:
// build a base slice, then append operator and per-invocation layers
// in a fixed order.
package claude

import (
	"strconv"

	"github.com/remoteclaw/core/pkg/agentcore"
	"github.com/remoteclaw/core/pkg/agentcore/parser"
	"github.com/remoteclaw/core/pkg/agentcore/parser/claude"
	"github.com/remoteclaw/core/pkg/agentcore/runtime"
)

const command = "claude"

// New returns a configured Claude-family runtime.
func New(backend runtime.BackendConfig) runtime.Runtime {
	return runtime.NewBase(runtime.FamilyConfig{
		Command:    command,
		BuildArgv:  buildArgv,
		BuildEnv:   buildEnv,
		BuildStdin: buildStdin,
		NewParser:  func() parser.Parser { return claude.New() },
	}, backend)
}

func buildArgv(p agentcore.AgentRuntimeParams, extraArgs []string, promptInStdin bool) []string {
	args := []string{"--print", "--output-format", "stream-json", "--verbose", "--dangerously-skip-permissions"}
	args = append(args, extraArgs...)

	if p.Model != "" {
		args = append(args, "--model", p.Model)
	}
	if p.MaxTurns > 0 {
		args = append(args, "--max-turns", strconv.Itoa(p.MaxTurns))
	}
	if p.SessionID != "" {
		args = append(args, "--resume", p.SessionID)
	}

	if !promptInStdin {
		args = append(args, p.Prompt)
	}
	return args
}

func buildEnv(p agentcore.AgentRuntimeParams, operatorEnv map[string]string) []string {
	env := make([]string, 0, len(operatorEnv)+3)
	for k, v := range operatorEnv {
		env = append(env, k+"="+v)
	}
	env = append(env, "CLAUDECODE=")

	switch p.Auth.Mode {
	case agentcore.AuthAPIKey:
		env = append(env, "ANTHROPIC_API_KEY="+p.Auth.APIKey)
	case agentcore.AuthToken, agentcore.AuthOAuth:
		env = append(env, "CLAUDE_CODE_OAUTH_TOKEN="+p.Auth.APIKey)
	case agentcore.AuthAWSSDK:
		// inherit: AWS credential discovery happens via the SDK chain in
		// the parent environment, nothing to overlay.
	}
	return env
}

func buildStdin(p agentcore.AgentRuntimeParams, promptInStdin bool) (string, bool) {
	if promptInStdin {
		return p.Prompt, true
	}
	return "", false
}

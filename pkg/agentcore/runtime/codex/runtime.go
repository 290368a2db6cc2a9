// Package codex configures the shared runtime base for OpenAI's Codex
// exec CLI.
package codex

import (
	"github.com/remoteclaw/core/pkg/agentcore"
	"github.com/remoteclaw/core/pkg/agentcore/parser"
	"github.com/remoteclaw/core/pkg/agentcore/parser/codex"
	"github.com/remoteclaw/core/pkg/agentcore/runtime"
)

const command = "codex"

// New returns a configured Codex runtime.
func New(backend runtime.BackendConfig) runtime.Runtime {
	cfg := runtime.FamilyConfig{
		Command:    command,
		BuildArgv:  buildArgv,
		BuildEnv:   buildEnv,
		BuildStdin: buildStdin,
		NewParser:  func() parser.Parser { return codex.New() },
	}
	return runtime.NewBase(cfg, withClearEnv(backend))
}

func withClearEnv(backend runtime.BackendConfig) runtime.BackendConfig {
	backend.ClearEnv = append(append([]string(nil), backend.ClearEnv...), "ANTHROPIC_API_KEY")
	return backend
}

func buildArgv(p agentcore.AgentRuntimeParams, extraArgs []string, promptInStdin bool) []string {
	args := []string{"exec"}

	if p.SessionID != "" {
		args = append(args, "resume", p.SessionID)
	}

	args = append(args, "--json", "--color", "never")
	args = append(args, extraArgs...)

	if p.SessionID == "" && !promptInStdin {
		args = append(args, p.Prompt)
	}
	return args
}

func buildStdin(p agentcore.AgentRuntimeParams, promptInStdin bool) (string, bool) {
	if promptInStdin {
		return p.Prompt, true
	}
	return "", false
}

func buildEnv(p agentcore.AgentRuntimeParams, operatorEnv map[string]string) []string {
	env := make([]string, 0, len(operatorEnv)+1)
	for k, v := range operatorEnv {
		env = append(env, k+"="+v)
	}
	if p.Auth.Mode == agentcore.AuthAPIKey {
		env = append(env, "OPENAI_API_KEY="+p.Auth.APIKey)
	}
	return env
}

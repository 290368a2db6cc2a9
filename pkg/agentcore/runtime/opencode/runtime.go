// Package opencode configures the shared runtime base for the
// OpenCode CLI.
package opencode

import (
	"github.com/remoteclaw/core/pkg/agentcore"
	"github.com/remoteclaw/core/pkg/agentcore/parser"
	"github.com/remoteclaw/core/pkg/agentcore/parser/opencode"
	"github.com/remoteclaw/core/pkg/agentcore/runtime"
)

const command = "opencode"

// New returns a configured OpenCode runtime.
func New(backend runtime.BackendConfig) runtime.Runtime {
	return runtime.NewBase(runtime.FamilyConfig{
		Command:    command,
		BuildArgv:  buildArgv,
		BuildEnv:   buildEnv,
		BuildStdin: buildStdin,
		NewParser:  func() parser.Parser { return opencode.New() },
	}, backend)
}

func buildArgv(p agentcore.AgentRuntimeParams, extraArgs []string, promptInStdin bool) []string {
	args := []string{"--format", "json", "--quiet"}
	args = append(args, extraArgs...)

	if p.SessionID != "" {
		args = append(args, "--session", p.SessionID)
	}

	if !promptInStdin {
		args = append(args, "--prompt", p.Prompt)
	}
	return args
}

func buildEnv(p agentcore.AgentRuntimeParams, operatorEnv map[string]string) []string {
	env := make([]string, 0, len(operatorEnv)+1)
	for k, v := range operatorEnv {
		env = append(env, k+"="+v)
	}
	switch p.Auth.Mode {
	case agentcore.AuthAPIKey, agentcore.AuthToken:
		env = append(env, "ANTHROPIC_API_KEY="+p.Auth.APIKey)
	case agentcore.AuthAWSSDK:
		// inherit
	}
	return env
}

func buildStdin(p agentcore.AgentRuntimeParams, promptInStdin bool) (string, bool) {
	if promptInStdin {
		return p.Prompt, true
	}
	return "", false
}

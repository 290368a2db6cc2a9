// Package gemini configures the shared runtime base for Google's
// Gemini CLI.
package gemini

import (
	"strings"

	"github.com/remoteclaw/core/pkg/agentcore"
	"github.com/remoteclaw/core/pkg/agentcore/parser"
	"github.com/remoteclaw/core/pkg/agentcore/parser/gemini"
	"github.com/remoteclaw/core/pkg/agentcore/runtime"
)

const command = "gemini"

// New returns a configured Gemini runtime.
func New(backend runtime.BackendConfig) runtime.Runtime {
	return runtime.NewBase(runtime.FamilyConfig{
		Command:      command,
		BuildArgv:    buildArgv,
		BuildEnv:     buildEnv,
		BuildStdin:   buildStdin,
		ClassifyExit: classifyExit,
		NewParser:    func() parser.Parser { return gemini.New() },
	}, backend)
}

func buildArgv(p agentcore.AgentRuntimeParams, extraArgs []string, promptInStdin bool) []string {
	args := []string{"--output-format", "stream-json"}
	args = append(args, extraArgs...)

	if p.SessionID != "" {
		args = append(args, "-r", p.SessionID)
	}

	if !promptInStdin {
		args = append(args, "-p", p.Prompt)
	}
	return args
}

func buildEnv(p agentcore.AgentRuntimeParams, operatorEnv map[string]string) []string {
	env := make([]string, 0, len(operatorEnv)+1)
	for k, v := range operatorEnv {
		env = append(env, k+"="+v)
	}
	if p.Auth.Mode == agentcore.AuthAPIKey {
		env = append(env, "GEMINI_API_KEY="+p.Auth.APIKey)
	}
	return env
}

func buildStdin(p agentcore.AgentRuntimeParams, promptInStdin bool) (string, bool) {
	if promptInStdin {
		return p.Prompt, true
	}
	return "", false
}

// classifyExit fixes Gemini's exit code 53 to a stable "turn limit
// exceeded" fatal, preferring stderr text when the child reported one.
func classifyExit(exitCode int, stderr string) (string, agentcore.ErrorCategory, bool) {
	if exitCode != 53 {
		return "", "", false
	}
	msg := "Turn limit exceeded"
	if trimmed := strings.TrimSpace(stderr); trimmed != "" {
		msg = trimmed
	}
	return msg, agentcore.ErrorFatal, true
}

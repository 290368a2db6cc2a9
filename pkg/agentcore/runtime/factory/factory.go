// Package factory selects and constructs a configured Runtime for a
// provider id. It lives apart from pkg/agentcore/runtime itself
// because it must import every family package (claude, codex, gemini,
// opencode), each of which imports runtime — putting the factory in
// package runtime would create an import cycle. Grounded on the
// teacher's internal/agent/failover.go provider registry/selection
// shape and internal/channels/registry.go's alias-normalization
// pattern for channel-type lookup.
package factory

import (
	"errors"
	"fmt"
	"strings"

	"github.com/remoteclaw/core/pkg/agentcore/runtime"
	"github.com/remoteclaw/core/pkg/agentcore/runtime/claude"
	"github.com/remoteclaw/core/pkg/agentcore/runtime/codex"
	"github.com/remoteclaw/core/pkg/agentcore/runtime/gemini"
	"github.com/remoteclaw/core/pkg/agentcore/runtime/opencode"
)

// ErrNoRuntime is wrapped into NewRuntime's error for an unregistered
// provider, following internal/auth/profiles.go's sentinel-error
// convention so callers can errors.Is against it.
var ErrNoRuntime = errors.New("No CLI runtime registered for provider")

// providerAliases maps operator-facing provider ids to the canonical
// built-in id whose runtime implements them.
var providerAliases = map[string]string{
	"z.ai":          "zai",
	"opencode-zen":  "opencode",
	"qwen":          "qwen-portal",
}

// builtins maps a canonical provider id to its runtime constructor.
// Non-Claude-shaped aliases (zai, qwen-portal) still speak the
// Claude-family wire protocol, so they share claude.New.
var builtins = map[string]func(runtime.BackendConfig) runtime.Runtime{
	"anthropic": claude.New,
	"claude":    claude.New,
	"zai":       claude.New,
	"qwen-portal": claude.New,
	"openai":    codex.New,
	"codex":     codex.New,
	"google":    gemini.New,
	"gemini":    gemini.New,
	"opencode":  opencode.New,
}

// NewRuntime normalizes provider, resolves it against the alias table
// and built-in registry, and returns a configured runtime instance.
// Backends is keyed by canonical provider id.
func NewRuntime(provider string, backends map[string]runtime.BackendConfig) (runtime.Runtime, error) {
	id := strings.ToLower(provider)
	if alias, ok := providerAliases[id]; ok {
		id = alias
	}

	if ctor, ok := builtins[id]; ok {
		return ctor(backends[id]), nil
	}

	if backend, ok := backends[id]; ok {
		return claude.New(backend), nil
	}

	return nil, fmt.Errorf("%w: %s", ErrNoRuntime, provider)
}

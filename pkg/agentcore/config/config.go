// Package config defines the YAML-shaped configuration types a
// surrounding gateway binary populates and hands to the runtime
// factory, session map, and auth store. Full gateway configuration
// (channel adapters, tool registries, CLI flag parsing, env-var
// expansion/validation) is out of scope here — only the structures
// this core's components consume. Grounded on the teacher's
// internal/config/config.go nested-struct-per-concern layout and its
// yaml.v3-based Load.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/remoteclaw/core/pkg/agentcore/metrics"
	"github.com/remoteclaw/core/pkg/agentcore/runtime"
)

// BackendConfig is the YAML shape of one provider's runtime.BackendConfig.
type BackendConfig struct {
	Command                 string            `yaml:"command"`
	ExtraArgs                []string          `yaml:"extra_args"`
	Env                      map[string]string `yaml:"env"`
	ClearEnv                 []string          `yaml:"clear_env"`
	FreshNoOutputTimeoutMs   int64             `yaml:"fresh_no_output_timeout_ms"`
	ResumeNoOutputTimeoutMs  int64             `yaml:"resume_no_output_timeout_ms"`
}

// BackendsConfig maps canonical provider id -> its backend override.
type BackendsConfig struct {
	Backends map[string]BackendConfig `yaml:"backends"`
}

// ToRuntimeBackends converts the YAML-shaped config into the map
// runtime/factory.NewRuntime expects. ExtraArgs/Env/ClearEnv and the
// watchdog overrides are carried over and layered on top of a family's
// intrinsic argv/env in the runtime base (runtime.BackendConfig doc
// comment). Command is not carried over: runtime.BackendConfig has no
// command field, so each family always runs its built-in command.
// m is attached to every backend so each family's runtime reports
// spawns and exits against the same collector; nil is safe.
func (c BackendsConfig) ToRuntimeBackends(m *metrics.Metrics) map[string]runtime.BackendConfig {
	out := make(map[string]runtime.BackendConfig, len(c.Backends))
	for id, b := range c.Backends {
		out[id] = runtime.BackendConfig{
			ExtraArgs:               b.ExtraArgs,
			Env:                     b.Env,
			ClearEnv:                b.ClearEnv,
			FreshNoOutputTimeoutMs:  b.FreshNoOutputTimeoutMs,
			ResumeNoOutputTimeoutMs: b.ResumeNoOutputTimeoutMs,
			Metrics:                 m,
		}
	}
	return out
}

// SessionMapConfig locates and sizes the session map store.
type SessionMapConfig struct {
	Dir      string        `yaml:"dir"`
	FileName string        `yaml:"file_name"`
	TTL      time.Duration `yaml:"ttl"`
}

// defaultSessionMapFile matches the file name spec.md §6 names for
// the session map's on-disk format.
const defaultSessionMapFile = "remoteclaw-sessions.json"

// Path returns the resolved session map file path, applying the
// default file name when FileName is unset.
func (c SessionMapConfig) Path() string {
	name := c.FileName
	if name == "" {
		name = defaultSessionMapFile
	}
	return filepath.Join(c.Dir, name)
}

// AuthConfig locates the auth profile store and its rotation defaults.
type AuthConfig struct {
	ProfilesFile        string `yaml:"profiles_file"`
	DefaultCooldownSecs int64  `yaml:"default_cooldown_secs"`
	DefaultDisableSecs  int64  `yaml:"default_disable_secs"`
}

// Config is the top-level document this package loads.
type Config struct {
	Backends   BackendsConfig   `yaml:"backends"`
	SessionMap SessionMapConfig `yaml:"session_map"`
	Auth       AuthConfig       `yaml:"auth"`
}

// Load reads and parses path as YAML. It does not expand environment
// variables, apply gateway-wide defaults, or validate channel/tool
// sections — those live outside this core (non-goal surface).
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read config %s: %w", path, err)
	}

	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("parse config %s: %w", path, err)
	}
	return &cfg, nil
}

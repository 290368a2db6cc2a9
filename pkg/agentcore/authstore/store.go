// Package authstore holds the credential catalog a runtime draws
// provider auth from, plus the ordering policy that picks which
// profile to try next. Grounded on the teacher's
// internal/auth/profiles.go (ProfileStore/ProfileCredential/
// ProfileUsageStats, LoadProfileStore/SaveProfileStore's atomic-ish
// read/write shape), generalized from its single cooldown rule to the
// four-rule ordering precedence this package implements in resolver.go.
package authstore

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"sync"

	"github.com/remoteclaw/core/pkg/agentcore/metrics"
)

const storeVersion = 1

var (
	ErrNoProfiles         = errors.New("no profiles configured for provider")
	ErrAllInCooldown      = errors.New("all profiles in cooldown")
	ErrProfileNotFound    = errors.New("profile not found")
	ErrNoUsableCredential = errors.New("no usable credential for provider")
)

// CredentialType discriminates Credential's tagged union.
type CredentialType string

const (
	CredentialAPIKey CredentialType = "api_key"
	CredentialToken  CredentialType = "token"
)

// Credential is one profile's stored secret material.
type Credential struct {
	Type     CredentialType `json:"type"`
	Provider string         `json:"provider"`

	// Key is populated for type=api_key.
	Key string `json:"key,omitempty"`

	// Token and ExpiresMs are populated for type=token. ExpiresMs is
	// an epoch-millisecond expiry; zero means it never expires.
	Token     string `json:"token,omitempty"`
	ExpiresMs int64  `json:"expiresMs,omitempty"`

	Email string `json:"email,omitempty"`
}

// Stats is the per-profile rotation bookkeeping the resolver reads.
// The core never mutates these itself (spec.md's "hooks for credential
// updates" split) — callers record success/failure via MarkSuccess/
// MarkFailure.
type Stats struct {
	LastUsed       int64          `json:"lastUsed,omitempty"`
	CooldownUntil  int64          `json:"cooldownUntil,omitempty"`
	DisabledUntil  int64          `json:"disabledUntil,omitempty"`
	DisabledReason string         `json:"disabledReason,omitempty"`
	ErrorCount     int            `json:"errorCount,omitempty"`
	FailureCounts  map[string]int `json:"failureCounts,omitempty"`
	LastFailureAt  int64          `json:"lastFailureAt,omitempty"`
}

// Store is the on-disk auth profile catalog. The core resolves
// credentials from it but never guesses its file location — the
// surrounding runtime resolves an agent directory and passes the path
// in (spec.md §6).
type Store struct {
	mu   sync.RWMutex
	path string

	Version    int                   `json:"version"`
	Profiles   map[string]Credential `json:"profiles"`
	Order      map[string][]string   `json:"order,omitempty"`
	LastGood   map[string]string     `json:"lastGood,omitempty"`
	UsageStats map[string]Stats      `json:"usageStats,omitempty"`

	// Metrics, if set, is observed on every ResolveForProvider outcome.
	// Nil is safe: every Metrics method is a no-op on a nil receiver.
	Metrics *metrics.Metrics `json:"-"`
}

// Load reads a Store from path. A missing file yields an empty store;
// any other read or unmarshal error is returned.
func Load(path string) (*Store, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return empty(path), nil
		}
		return nil, fmt.Errorf("read auth store: %w", err)
	}

	s := empty(path)
	if err := json.Unmarshal(data, s); err != nil {
		return nil, fmt.Errorf("parse auth store %s: %w", path, err)
	}
	s.path = path
	s.initMaps()
	return s, nil
}

func empty(path string) *Store {
	return &Store{
		path:       path,
		Version:    storeVersion,
		Profiles:   map[string]Credential{},
		Order:      map[string][]string{},
		LastGood:   map[string]string{},
		UsageStats: map[string]Stats{},
	}
}

func (s *Store) initMaps() {
	if s.Profiles == nil {
		s.Profiles = map[string]Credential{}
	}
	if s.Order == nil {
		s.Order = map[string][]string{}
	}
	if s.LastGood == nil {
		s.LastGood = map[string]string{}
	}
	if s.UsageStats == nil {
		s.UsageStats = map[string]Stats{}
	}
}

// Save persists the store to its path, creating the parent directory
// if needed.
func (s *Store) Save() error {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if dir := filepath.Dir(s.path); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("create auth store dir: %w", err)
		}
	}
	data, err := json.MarshalIndent(s, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal auth store: %w", err)
	}
	return os.WriteFile(s.path, data, 0o600)
}

// MarkSuccess records a successful use of profileID: resets its
// failure count and promotes it to lastGood for its provider. This is
// a caller-driven hook, not something the resolver calls itself
// (spec.md §4.G "Hooks for credential updates").
func (s *Store) MarkSuccess(profileID string, nowMs int64) {
	s.mu.Lock()
	defer s.mu.Unlock()

	st := s.UsageStats[profileID]
	st.LastUsed = nowMs
	st.ErrorCount = 0
	s.UsageStats[profileID] = st

	if cred, ok := s.Profiles[profileID]; ok {
		s.LastGood[cred.Provider] = profileID
	}
}

// MarkFailure records a failed use of profileID under reason,
// optionally placing it in cooldown until cooldownUntilMs (0 = no
// cooldown change).
func (s *Store) MarkFailure(profileID, reason string, nowMs, cooldownUntilMs int64) {
	s.mu.Lock()
	defer s.mu.Unlock()

	st := s.UsageStats[profileID]
	st.LastUsed = nowMs
	st.LastFailureAt = nowMs
	st.ErrorCount++
	if st.FailureCounts == nil {
		st.FailureCounts = map[string]int{}
	}
	if reason != "" {
		st.FailureCounts[reason]++
	}
	if cooldownUntilMs > 0 {
		st.CooldownUntil = cooldownUntilMs
	}
	s.UsageStats[profileID] = st
}

// AddProfile inserts or replaces a profile's credential, appending it
// to that provider's order if it isn't already present.
func (s *Store) AddProfile(id string, cred Credential) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.Profiles[id] = cred
	order := s.Order[cred.Provider]
	for _, existing := range order {
		if existing == id {
			return
		}
	}
	s.Order[cred.Provider] = append(order, id)
}

// ListProfiles returns all profile ids for provider, sorted.
func (s *Store) ListProfiles(provider string) []string {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var ids []string
	for id, cred := range s.Profiles {
		if cred.Provider == provider {
			ids = append(ids, id)
		}
	}
	sort.Strings(ids)
	return ids
}

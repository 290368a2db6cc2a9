package authstore

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/remoteclaw/core/pkg/agentcore"
)

// ProfileConfig is the operator-configured expectation for one
// profile id: which provider it should belong to and which auth mode
// it should satisfy. It is distinct from the credential actually
// stored for that id — the resolver's mode-filtering rule compares
// the two and excludes mismatches (spec.md §4.G rule 4).
type ProfileConfig struct {
	Provider string
	Mode     agentcore.AuthMode
}

// ResolverConfig carries the operator-side inputs to ordering: a
// per-provider configured order (used when the store itself has none)
// and per-profile provider/mode expectations.
type ResolverConfig struct {
	Order    map[string][]string
	Profiles map[string]ProfileConfig
}

// ResolveOrder computes the preference list of profile ids for
// provider, applying spec.md §4.G's four ordering rules in
// precedence: base ordering, round-robin tie-break by ascending
// lastUsed, push-unavailable-to-end, then mode filtering is folded in
// as an exclusion pass over the base ordering (a profile excluded by
// mode never participates in the later rules).
func ResolveOrder(store *Store, cfg ResolverConfig, provider string, now time.Time) []string {
	store.mu.RLock()
	defer store.mu.RUnlock()

	ids := baseOrderLocked(store, cfg, provider)
	ids = filterByModeLocked(store, cfg, ids)
	ids = sortByLastUsedLocked(store, ids)
	return pushUnavailableToEndLocked(store, ids, now.UnixMilli())
}

// baseOrderLocked implements rule 1. Caller must hold store.mu.
func baseOrderLocked(store *Store, cfg ResolverConfig, provider string) []string {
	if order, ok := store.Order[provider]; ok && len(order) > 0 {
		return append([]string(nil), order...)
	}
	if order, ok := cfg.Order[provider]; ok && len(order) > 0 {
		return append([]string(nil), order...)
	}

	var ids []string
	for id, cred := range store.Profiles {
		if cred.Provider == provider {
			ids = append(ids, id)
		}
	}
	sort.Strings(ids)
	return ids
}

// filterByModeLocked implements rule 4. An id configured for a
// different provider, or whose configured mode disagrees with the
// credential's type, is dropped — except a configured mode "oauth"
// accepts a token credential (historical compatibility). An id with
// no ProfileConfig entry is never filtered: mode filtering only
// applies where the operator has actually configured an expectation.
func filterByModeLocked(store *Store, cfg ResolverConfig, ids []string) []string {
	out := make([]string, 0, len(ids))
	for _, id := range ids {
		cred, ok := store.Profiles[id]
		if !ok {
			continue
		}
		if pc, configured := cfg.Profiles[id]; configured {
			if pc.Provider != "" && pc.Provider != cred.Provider {
				continue
			}
			if pc.Mode != "" && !modeCompatible(pc.Mode, cred.Type) {
				continue
			}
		}
		out = append(out, id)
	}
	return out
}

func modeCompatible(mode agentcore.AuthMode, credType CredentialType) bool {
	switch mode {
	case agentcore.AuthAPIKey:
		return credType == CredentialAPIKey
	case agentcore.AuthToken:
		return credType == CredentialToken
	case agentcore.AuthOAuth:
		// Historical compatibility: oauth-mode profiles were issued
		// token credentials before the type was renamed.
		return credType == CredentialToken
	default:
		return false
	}
}

// sortByLastUsedLocked implements rule 2: a stable ascending sort by
// usageStats[id].lastUsed (missing = 0), so ties preserve the base
// ordering. lastGood is informational only and never consulted here.
func sortByLastUsedLocked(store *Store, ids []string) []string {
	out := append([]string(nil), ids...)
	sort.SliceStable(out, func(i, j int) bool {
		return store.UsageStats[out[i]].LastUsed < store.UsageStats[out[j]].LastUsed
	})
	return out
}

// pushUnavailableToEndLocked implements rule 3: a stable partition
// that keeps all available ids (in their current relative order)
// ahead of all unavailable ones (also in their relative order).
func pushUnavailableToEndLocked(store *Store, ids []string, nowMs int64) []string {
	available := make([]string, 0, len(ids))
	unavailable := make([]string, 0, len(ids))
	for _, id := range ids {
		if isUnavailableLocked(store, id, nowMs) {
			unavailable = append(unavailable, id)
		} else {
			available = append(available, id)
		}
	}
	return append(available, unavailable...)
}

func isUnavailableLocked(store *Store, id string, nowMs int64) bool {
	st := store.UsageStats[id]
	return nowMs < st.CooldownUntil || nowMs < st.DisabledUntil
}

// ResolvedCredential is the usable secret material extracted from one
// profile's Credential, before it is wrapped as a ResolvedProviderAuth.
type ResolvedCredential struct {
	APIKey   string
	Provider string
	Email    string
}

// ResolveAPIKeyForProfile returns id's usable credential, or false if
// the profile is missing, its key/token is blank, or (for a token
// credential) it has expired by nowMs.
func (s *Store) ResolveAPIKeyForProfile(id string, nowMs int64) (ResolvedCredential, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	cred, ok := s.Profiles[id]
	if !ok {
		return ResolvedCredential{}, false
	}

	switch cred.Type {
	case CredentialAPIKey:
		key := strings.TrimSpace(cred.Key)
		if key == "" {
			return ResolvedCredential{}, false
		}
		return ResolvedCredential{APIKey: key, Provider: cred.Provider, Email: cred.Email}, true
	case CredentialToken:
		token := strings.TrimSpace(cred.Token)
		if token == "" {
			return ResolvedCredential{}, false
		}
		if cred.ExpiresMs > 0 && cred.ExpiresMs <= nowMs {
			return ResolvedCredential{}, false
		}
		return ResolvedCredential{APIKey: token, Provider: cred.Provider, Email: cred.Email}, true
	default:
		return ResolvedCredential{}, false
	}
}

func authModeFor(cfg ResolverConfig, cred Credential, id string) agentcore.AuthMode {
	if pc, ok := cfg.Profiles[id]; ok && pc.Mode != "" {
		return pc.Mode
	}
	if cred.Type == CredentialToken {
		return agentcore.AuthToken
	}
	return agentcore.AuthAPIKey
}

// ResolveForProvider walks provider's ordered profile list and
// returns the first one with a usable credential. When none produce a
// key and provider is amazon-bedrock, it falls through to the AWS-SDK
// credential chain (bedrock.go). Any other provider with no usable
// profile fails with a diagnostic naming the store path.
func (s *Store) ResolveForProvider(ctx context.Context, cfg ResolverConfig, provider string, now time.Time) (agentcore.ResolvedProviderAuth, error) {
	order := ResolveOrder(s, cfg, provider, now)
	nowMs := now.UnixMilli()

	for _, id := range order {
		rc, ok := s.ResolveAPIKeyForProfile(id, nowMs)
		if !ok {
			continue
		}
		s.mu.RLock()
		cred := s.Profiles[id]
		s.mu.RUnlock()
		s.Metrics.ObserveAuthRotation(provider, "success")
		return agentcore.ResolvedProviderAuth{
			Mode:      authModeFor(cfg, cred, id),
			APIKey:    rc.APIKey,
			ProfileID: id,
			Source:    "profile:" + id,
		}, nil
	}

	if strings.EqualFold(provider, "amazon-bedrock") {
		auth, err := resolveBedrockAuth(ctx)
		outcome := "success"
		if err != nil {
			outcome = "failure"
		}
		s.Metrics.ObserveAuthRotation(provider, outcome)
		return auth, err
	}

	s.Metrics.ObserveAuthRotation(provider, "failure")
	if len(order) == 0 {
		return agentcore.ResolvedProviderAuth{}, fmt.Errorf("%w: provider %q (store %s)", ErrNoProfiles, provider, s.path)
	}
	if s.allUnavailableLocked(order, nowMs) {
		return agentcore.ResolvedProviderAuth{}, fmt.Errorf("%w: provider %q (store %s)", ErrAllInCooldown, provider, s.path)
	}
	return agentcore.ResolvedProviderAuth{}, fmt.Errorf(
		"%w: provider %q in auth store %s; add one with `remoteclaw-core auth add --provider %s`",
		ErrNoUsableCredential, provider, s.path, provider,
	)
}

func (s *Store) allUnavailableLocked(ids []string, nowMs int64) bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	for _, id := range ids {
		if !isUnavailableLocked(s, id, nowMs) {
			return false
		}
	}
	return true
}

package authstore

import (
	"context"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"

	"github.com/remoteclaw/core/pkg/agentcore"
	"github.com/remoteclaw/core/pkg/agentcore/metrics"
)

func newTestStore() *Store {
	return empty("/tmp/does-not-exist/auth.json")
}

func TestResolveOrder_LeastRecentlyUsedFirst(t *testing.T) {
	s := newTestStore()
	s.Profiles["a"] = Credential{Type: CredentialAPIKey, Provider: "anthropic", Key: "ka"}
	s.Profiles["b"] = Credential{Type: CredentialAPIKey, Provider: "anthropic", Key: "kb"}
	s.UsageStats["a"] = Stats{LastUsed: 500}
	s.UsageStats["b"] = Stats{LastUsed: 100}

	order := ResolveOrder(s, ResolverConfig{}, "anthropic", time.UnixMilli(1000))
	if len(order) != 2 || order[0] != "b" || order[1] != "a" {
		t.Fatalf("order = %v, want [b a]", order)
	}
}

func TestResolveOrder_LastUsedResortsWithinStoreOrder(t *testing.T) {
	s := newTestStore()
	s.Profiles["default"] = Credential{Type: CredentialAPIKey, Provider: "anthropic", Key: "k1"}
	s.Profiles["work"] = Credential{Type: CredentialAPIKey, Provider: "anthropic", Key: "k2"}
	s.Order["anthropic"] = []string{"default", "work"}
	s.UsageStats["work"] = Stats{LastUsed: 1}

	order := ResolveOrder(s, ResolverConfig{}, "anthropic", time.UnixMilli(1000))
	if len(order) != 2 || order[0] != "work" || order[1] != "default" {
		t.Fatalf("order = %v, want [work default] (round-robin still resorts within the configured base order)", order)
	}
}

func TestResolveOrder_CooldownProfilePushedToEnd(t *testing.T) {
	// Mirrors spec.md testable property 5: order=[default, work],
	// default in cooldown until now+60s -> resolver returns [work, default].
	s := newTestStore()
	s.Profiles["default"] = Credential{Type: CredentialAPIKey, Provider: "anthropic", Key: "k1"}
	s.Profiles["work"] = Credential{Type: CredentialAPIKey, Provider: "anthropic", Key: "k2"}
	s.Order["anthropic"] = []string{"default", "work"}
	now := time.UnixMilli(1_000_000)
	s.UsageStats["default"] = Stats{CooldownUntil: now.UnixMilli() + 60_000}

	order := ResolveOrder(s, ResolverConfig{}, "anthropic", now)
	if len(order) != 2 || order[0] != "work" || order[1] != "default" {
		t.Fatalf("order = %v, want [work default]", order)
	}
}

func TestResolveOrder_DisabledAlsoUnavailable(t *testing.T) {
	s := newTestStore()
	s.Profiles["a"] = Credential{Type: CredentialAPIKey, Provider: "anthropic", Key: "ka"}
	s.Profiles["b"] = Credential{Type: CredentialAPIKey, Provider: "anthropic", Key: "kb"}
	now := time.UnixMilli(1_000_000)
	s.UsageStats["a"] = Stats{DisabledUntil: now.UnixMilli() + 1}

	order := ResolveOrder(s, ResolverConfig{}, "anthropic", now)
	if len(order) != 2 || order[0] != "b" || order[1] != "a" {
		t.Fatalf("order = %v, want [b a]", order)
	}
}

func TestResolveOrder_ModeFilteringExcludesProviderMismatch(t *testing.T) {
	s := newTestStore()
	s.Profiles["a"] = Credential{Type: CredentialAPIKey, Provider: "anthropic", Key: "ka"}
	cfg := ResolverConfig{
		Profiles: map[string]ProfileConfig{
			"a": {Provider: "openai"},
		},
	}
	order := ResolveOrder(s, cfg, "anthropic", time.UnixMilli(0))
	if len(order) != 0 {
		t.Fatalf("order = %v, want empty (provider mismatch excludes the profile)", order)
	}
}

func TestResolveOrder_OAuthModeAcceptsTokenCredential(t *testing.T) {
	s := newTestStore()
	s.Profiles["a"] = Credential{Type: CredentialToken, Provider: "anthropic", Token: "t1"}
	cfg := ResolverConfig{
		Profiles: map[string]ProfileConfig{
			"a": {Provider: "anthropic", Mode: agentcore.AuthOAuth},
		},
	}
	order := ResolveOrder(s, cfg, "anthropic", time.UnixMilli(0))
	if len(order) != 1 || order[0] != "a" {
		t.Fatalf("order = %v, want [a]", order)
	}
}

func TestResolveOrder_ApiKeyModeRejectsTokenCredential(t *testing.T) {
	s := newTestStore()
	s.Profiles["a"] = Credential{Type: CredentialToken, Provider: "anthropic", Token: "t1"}
	cfg := ResolverConfig{
		Profiles: map[string]ProfileConfig{
			"a": {Provider: "anthropic", Mode: agentcore.AuthAPIKey},
		},
	}
	order := ResolveOrder(s, cfg, "anthropic", time.UnixMilli(0))
	if len(order) != 0 {
		t.Fatalf("order = %v, want empty (api-key mode rejects a token credential)", order)
	}
}

func TestResolveForProvider_ReturnsFirstUsableCredential(t *testing.T) {
	s := newTestStore()
	s.Profiles["a"] = Credential{Type: CredentialAPIKey, Provider: "anthropic", Key: "  sk-a  "}
	s.Profiles["b"] = Credential{Type: CredentialAPIKey, Provider: "anthropic", Key: "sk-b"}
	s.UsageStats["b"] = Stats{LastUsed: 1} // b used more recently, a should come first

	auth, err := s.ResolveForProvider(context.Background(), ResolverConfig{}, "anthropic", time.UnixMilli(1000))
	if err != nil {
		t.Fatalf("ResolveForProvider: %v", err)
	}
	if auth.ProfileID != "a" || auth.APIKey != "sk-a" || auth.Mode != agentcore.AuthAPIKey {
		t.Errorf("auth = %+v, want profile a, key sk-a, mode api-key", auth)
	}
}

func TestResolveForProvider_SkipsBlankKeyFallsThroughToNext(t *testing.T) {
	s := newTestStore()
	s.Profiles["a"] = Credential{Type: CredentialAPIKey, Provider: "anthropic", Key: "   "}
	s.Profiles["b"] = Credential{Type: CredentialAPIKey, Provider: "anthropic", Key: "sk-b"}
	s.Order["anthropic"] = []string{"a", "b"}

	auth, err := s.ResolveForProvider(context.Background(), ResolverConfig{}, "anthropic", time.UnixMilli(0))
	if err != nil {
		t.Fatalf("ResolveForProvider: %v", err)
	}
	if auth.ProfileID != "b" {
		t.Errorf("ProfileID = %q, want b", auth.ProfileID)
	}
}

func TestResolveForProvider_ExpiredTokenSkipped(t *testing.T) {
	s := newTestStore()
	s.Profiles["a"] = Credential{Type: CredentialToken, Provider: "anthropic", Token: "t1", ExpiresMs: 500}
	s.Profiles["b"] = Credential{Type: CredentialAPIKey, Provider: "anthropic", Key: "sk-b"}
	s.Order["anthropic"] = []string{"a", "b"}

	auth, err := s.ResolveForProvider(context.Background(), ResolverConfig{}, "anthropic", time.UnixMilli(1000))
	if err != nil {
		t.Fatalf("ResolveForProvider: %v", err)
	}
	if auth.ProfileID != "b" {
		t.Errorf("ProfileID = %q, want b (expired token at a must be skipped)", auth.ProfileID)
	}
}

func TestResolveForProvider_NoProfilesError(t *testing.T) {
	s := newTestStore()
	_, err := s.ResolveForProvider(context.Background(), ResolverConfig{}, "anthropic", time.UnixMilli(0))
	if err == nil {
		t.Fatal("expected an error when no profiles exist")
	}
}

func TestResolveForProvider_ObservesAuthRotationMetrics(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := metrics.New(reg)

	s := newTestStore()
	s.Metrics = m
	s.Profiles["default"] = Credential{Type: CredentialAPIKey, Provider: "anthropic", Key: "k1"}

	if _, err := s.ResolveForProvider(context.Background(), ResolverConfig{}, "anthropic", time.UnixMilli(0)); err != nil {
		t.Fatalf("ResolveForProvider: %v", err)
	}
	if got := testutil.ToFloat64(m.AuthRotationsTotal.WithLabelValues("anthropic", "success")); got != 1 {
		t.Errorf("success rotations = %v, want 1", got)
	}

	if _, err := s.ResolveForProvider(context.Background(), ResolverConfig{}, "openai", time.UnixMilli(0)); err == nil {
		t.Fatal("expected an error for a provider with no profiles")
	}
	if got := testutil.ToFloat64(m.AuthRotationsTotal.WithLabelValues("openai", "failure")); got != 1 {
		t.Errorf("failure rotations = %v, want 1", got)
	}
}

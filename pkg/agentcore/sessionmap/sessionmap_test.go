package sessionmap

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"

	"github.com/remoteclaw/core/pkg/agentcore"
	"github.com/remoteclaw/core/pkg/agentcore/metrics"
)

func tempStorePath(t *testing.T) string {
	t.Helper()
	dir := t.TempDir()
	return filepath.Join(dir, "remoteclaw-sessions.json")
}

func TestSetThenGet(t *testing.T) {
	s := New(tempStorePath(t), time.Hour)
	key := agentcore.SessionMapKey{ChannelID: "tg", UserID: "u1"}

	if err := s.Set(key, "s-1"); err != nil {
		t.Fatalf("Set: %v", err)
	}
	got, ok := s.Get(key)
	if !ok || got != "s-1" {
		t.Fatalf("Get = (%q, %v), want (s-1, true)", got, ok)
	}
}

func TestDeleteThenGetAbsent(t *testing.T) {
	s := New(tempStorePath(t), time.Hour)
	key := agentcore.SessionMapKey{ChannelID: "tg", UserID: "u1"}

	_ = s.Set(key, "s-1")
	if err := s.Delete(key); err != nil {
		t.Fatalf("Delete: %v", err)
	}
	if _, ok := s.Get(key); ok {
		t.Fatal("expected absent after delete")
	}
}

func TestExpiry(t *testing.T) {
	s := New(tempStorePath(t), time.Millisecond)
	key := agentcore.SessionMapKey{ChannelID: "tg", UserID: "u1"}

	if err := s.Set(key, "s-1"); err != nil {
		t.Fatalf("Set: %v", err)
	}
	time.Sleep(5 * time.Millisecond)

	if _, ok := s.Get(key); ok {
		t.Fatal("expected expired entry to be absent")
	}

	other := agentcore.SessionMapKey{ChannelID: "tg", UserID: "u2"}
	if err := s.Set(other, "s-2"); err != nil {
		t.Fatalf("Set other: %v", err)
	}

	// The expired record must be gone from the on-disk file too.
	path := s.path
	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("ReadFile: %v", err)
	}
	if strings.Contains(string(data), "s-1") {
		t.Errorf("expired session id still present on disk: %s", data)
	}
}

func TestDistinctThreadsDoNotCollide(t *testing.T) {
	s := New(tempStorePath(t), time.Hour)
	noThread := agentcore.SessionMapKey{ChannelID: "tg", UserID: "u1"}
	thread1 := agentcore.SessionMapKey{ChannelID: "tg", UserID: "u1", ThreadID: "t1"}
	thread2 := agentcore.SessionMapKey{ChannelID: "tg", UserID: "u1", ThreadID: "t2"}

	_ = s.Set(noThread, "s-none")
	_ = s.Set(thread1, "s-t1")
	_ = s.Set(thread2, "s-t2")

	got, _ := s.Get(noThread)
	if got != "s-none" {
		t.Errorf("no-thread key = %q, want s-none", got)
	}
	got1, _ := s.Get(thread1)
	if got1 != "s-t1" {
		t.Errorf("thread1 key = %q, want s-t1", got1)
	}
	got2, _ := s.Get(thread2)
	if got2 != "s-t2" {
		t.Errorf("thread2 key = %q, want s-t2", got2)
	}
}

func TestLoad_CorruptFileTreatedAsEmpty(t *testing.T) {
	path := tempStorePath(t)
	if err := os.WriteFile(path, []byte("not json"), 0o644); err != nil {
		t.Fatalf("WriteFile: %v", err)
	}

	s := New(path, time.Hour)
	key := agentcore.SessionMapKey{ChannelID: "tg", UserID: "u1"}
	if _, ok := s.Get(key); ok {
		t.Fatal("expected empty store from corrupt file")
	}

	if err := s.Set(key, "s-1"); err != nil {
		t.Fatalf("Set after corrupt load: %v", err)
	}
	if got, ok := s.Get(key); !ok || got != "s-1" {
		t.Errorf("Get after corrupt-file recovery = (%q, %v)", got, ok)
	}
}

func TestReloadYieldsSameMap(t *testing.T) {
	path := tempStorePath(t)
	s1 := New(path, time.Hour)
	key := agentcore.SessionMapKey{ChannelID: "tg", UserID: "u1"}
	_ = s1.Set(key, "s-1")

	s2 := New(path, time.Hour)
	got, ok := s2.Get(key)
	if !ok || got != "s-1" {
		t.Errorf("reloaded Get = (%q, %v), want (s-1, true)", got, ok)
	}
}

func TestMetrics_ObservesHitsMissesAndEvictions(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := metrics.New(reg)

	s := New(tempStorePath(t), time.Millisecond)
	s.Metrics = m
	key := agentcore.SessionMapKey{ChannelID: "tg", UserID: "u1"}

	if _, ok := s.Get(key); ok {
		t.Fatal("expected miss before any Set")
	}
	if got := testutil.ToFloat64(m.SessionMapMissesTotal); got != 1 {
		t.Errorf("misses = %v, want 1", got)
	}

	if err := s.Set(key, "s-1"); err != nil {
		t.Fatalf("Set: %v", err)
	}
	if _, ok := s.Get(key); !ok {
		t.Fatal("expected hit right after Set")
	}
	if got := testutil.ToFloat64(m.SessionMapHitsTotal); got != 1 {
		t.Errorf("hits = %v, want 1", got)
	}

	time.Sleep(5 * time.Millisecond)
	other := agentcore.SessionMapKey{ChannelID: "tg", UserID: "u2"}
	if err := s.Set(other, "s-2"); err != nil {
		t.Fatalf("Set other: %v", err)
	}
	if got := testutil.ToFloat64(m.SessionMapEvictionsTotal); got != 1 {
		t.Errorf("evictions = %v, want 1", got)
	}
}

func TestWatch_PicksUpSiblingProcessWrite(t *testing.T) {
	path := tempStorePath(t)
	writer := New(path, time.Hour)
	reader := New(path, time.Hour)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	watchErr := make(chan error, 1)
	go func() { watchErr <- reader.Watch(ctx, nil) }()

	key := agentcore.SessionMapKey{ChannelID: "tg", UserID: "u1"}
	if err := writer.Set(key, "s-1"); err != nil {
		t.Fatalf("Set: %v", err)
	}

	deadline := time.After(2 * time.Second)
	for {
		if got, ok := reader.Get(key); ok && got == "s-1" {
			break
		}
		select {
		case <-deadline:
			t.Fatal("timed out waiting for reader to observe sibling write")
		case <-time.After(10 * time.Millisecond):
		}
	}

	cancel()
	if err := <-watchErr; err == nil {
		t.Fatal("expected Watch to return an error once ctx is canceled")
	}
}


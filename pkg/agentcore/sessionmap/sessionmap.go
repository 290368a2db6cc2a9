// Package sessionmap persists the (channel, user, thread) -> sessionId
// mapping that lets a bridge resume an agent CLI conversation across
// calls. Atomic replace (temp file + rename) is grounded on the
// teacher's auth/profiles.go save idiom; the injectable clock for
// tests follows internal/sessions/expiry.go's nowFunc pattern.
package sessionmap

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"

	"github.com/remoteclaw/core/pkg/agentcore"
	"github.com/remoteclaw/core/pkg/agentcore/metrics"
)

const (
	// DefaultTTL is the default entry lifetime (spec.md §4.F).
	DefaultTTL = 7 * 24 * time.Hour

	absentThreadSentinel = "_"
)

// Store is a single-writer-per-process, file-backed session map.
type Store struct {
	path string
	ttl  time.Duration
	now  func() time.Time

	mu      sync.Mutex
	entries map[string]agentcore.SessionEntry

	// Metrics, if set, is observed on every Get (hit/miss) and every
	// TTL-driven eviction. Nil is safe: every Metrics method is a
	// no-op on a nil receiver.
	Metrics *metrics.Metrics
}

// New opens (or lazily creates) a session map backed by path. A
// missing or corrupted file is treated as an empty store.
func New(path string, ttl time.Duration) *Store {
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	s := &Store{
		path:    path,
		ttl:     ttl,
		now:     time.Now,
		entries: map[string]agentcore.SessionEntry{},
	}
	s.load()
	return s
}

// SetNowFunc overrides the store's clock, for deterministic TTL tests.
func (s *Store) SetNowFunc(fn func() time.Time) {
	s.mu.Lock()
	s.now = fn
	s.mu.Unlock()
}

// serializeKey renders a SessionMapKey as "channelId:userId:threadId",
// substituting the fixed placeholder when ThreadID is absent. The
// sentinel is opaque to downstream consumers (spec.md Open Questions).
func serializeKey(key agentcore.SessionMapKey) string {
	thread := key.ThreadID
	if thread == "" {
		thread = absentThreadSentinel
	}
	return key.ChannelID + ":" + key.UserID + ":" + thread
}

func (s *Store) load() {
	data, err := os.ReadFile(s.path)
	if err != nil {
		return
	}
	var raw map[string]agentcore.SessionEntry
	if err := json.Unmarshal(data, &raw); err != nil {
		return
	}
	for k, v := range raw {
		v.UpdatedAt = time.UnixMilli(v.UpdatedAtMs)
		s.entries[k] = v
	}
}

func (s *Store) expired(e agentcore.SessionEntry) bool {
	return s.now().Sub(e.UpdatedAt) > s.ttl
}

// purgeExpiredLocked removes expired entries and records how many were
// evicted on s.Metrics. Caller must hold s.mu.
func (s *Store) purgeExpiredLocked() {
	var evicted int
	for k, e := range s.entries {
		if s.expired(e) {
			delete(s.entries, k)
			evicted++
		}
	}
	s.Metrics.ObserveSessionMapEviction(evicted)
}

// Get returns the session id for key, or ("", false) if missing or
// expired. An expired entry is never returned.
func (s *Store) Get(key agentcore.SessionMapKey) (string, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	e, ok := s.entries[serializeKey(key)]
	hit := ok && !s.expired(e)
	s.Metrics.ObserveSessionMapHit(hit)
	if !hit {
		return "", false
	}
	return e.SessionID, true
}

// Set purges expired entries, upserts key -> sessionID with
// updatedAt=now, and atomically rewrites the backing file.
func (s *Store) Set(key agentcore.SessionMapKey, sessionID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.purgeExpiredLocked()
	now := s.now()
	s.entries[serializeKey(key)] = agentcore.SessionEntry{
		SessionID:   sessionID,
		UpdatedAt:   now,
		UpdatedAtMs: now.UnixMilli(),
	}
	return s.writeLocked()
}

// Delete removes key, rewriting the file if it was present.
func (s *Store) Delete(key agentcore.SessionMapKey) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	k := serializeKey(key)
	if _, ok := s.entries[k]; !ok {
		return nil
	}
	delete(s.entries, k)
	return s.writeLocked()
}

// writeLocked serializes the store to a sibling temp file, then
// renames it over the target path. Caller must hold s.mu.
func (s *Store) writeLocked() error {
	if dir := filepath.Dir(s.path); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("create session dir: %w", err)
		}
	}

	data, err := json.Marshal(s.entries)
	if err != nil {
		return fmt.Errorf("marshal session map: %w", err)
	}

	tmp := fmt.Sprintf("%s.tmp.%d", s.path, s.now().UnixNano())
	if err := os.WriteFile(tmp, data, 0o644); err != nil {
		return fmt.Errorf("write temp session map: %w", err)
	}
	if err := os.Rename(tmp, s.path); err != nil {
		_ = os.Remove(tmp)
		return fmt.Errorf("rename session map: %w", err)
	}
	return nil
}

// reload re-reads the backing file, replacing in-memory entries. Used
// by Watch to pick up writes made by a sibling process sharing the
// same store path; a process's own writeLocked calls never need it.
func (s *Store) reload() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.entries = map[string]agentcore.SessionEntry{}
	s.load()
}

// Watch follows the session map's directory for the rename-over-path
// writes that a sibling process's writeLocked produces, reloading this
// store's in-memory view whenever one lands. It blocks until ctx is
// canceled or the watcher's channels close; errors the watcher reports
// are logged and watching continues. Multiple gateway instances
// sharing one session map file is an optional deployment shape (not
// the default single-writer-per-process model writeLocked assumes);
// watching the containing directory, not the file itself, is required
// because the rename swaps the inode fsnotify would otherwise be
// watching out from under it, matching the teacher's skills.Manager
// directory-watch idiom.
func (s *Store) Watch(ctx context.Context, logger *slog.Logger) error {
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("create session map watcher: %w", err)
	}
	defer watcher.Close()

	dir := filepath.Dir(s.path)
	if dir == "" {
		dir = "."
	}
	if err := watcher.Add(dir); err != nil {
		return fmt.Errorf("watch session map dir %s: %w", dir, err)
	}

	target := filepath.Clean(s.path)
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case event, ok := <-watcher.Events:
			if !ok {
				return fmt.Errorf("session map watcher closed")
			}
			if filepath.Clean(event.Name) != target {
				continue
			}
			if event.Op&(fsnotify.Create|fsnotify.Write|fsnotify.Rename) != 0 {
				s.reload()
			}
		case err, ok := <-watcher.Errors:
			if !ok {
				return fmt.Errorf("session map watcher closed")
			}
			if logger != nil {
				logger.Warn("session map watcher error", "error", err)
			}
		}
	}
}

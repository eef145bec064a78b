package config

import (
	"context"
	"log/slog"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/raphaelgruber/insightd-go/internal/models"
)

// SettingsReader is the slice of the record store the settings cache needs.
type SettingsReader interface {
	GetSetting(ctx context.Context, key string) (*models.Setting, error)
}

type cachedSetting struct {
	value     string
	found     bool
	fetchedAt time.Time
}

// SettingsStore reads key/value settings from the record store with a
// lazily refreshed TTL cache. Expired entries are refreshed on the next
// read, never proactively, so a consumer observes at most one query
// round-trip after expiry.
type SettingsStore struct {
	reader SettingsReader
	ttl    time.Duration
	now    func() time.Time

	mu    sync.Mutex
	cache map[string]cachedSetting
}

// NewSettingsStore creates a settings store with the given cache TTL.
func NewSettingsStore(reader SettingsReader, ttl time.Duration) *SettingsStore {
	if ttl <= 0 {
		ttl = 5 * time.Minute
	}
	return &SettingsStore{
		reader: reader,
		ttl:    ttl,
		now:    time.Now,
		cache:  make(map[string]cachedSetting),
	}
}

// Get returns the raw string value for key, or def when the key is absent
// or the store is unreachable.
func (s *SettingsStore) Get(ctx context.Context, key, def string) string {
	v, found := s.lookup(ctx, key)
	if !found {
		return def
	}
	return v
}

// GetNumber returns the numeric value for key, or def when absent or
// unparseable.
func (s *SettingsStore) GetNumber(ctx context.Context, key string, def float64) float64 {
	v, found := s.lookup(ctx, key)
	if !found {
		return def
	}
	n, err := strconv.ParseFloat(strings.TrimSpace(v), 64)
	if err != nil {
		slog.Warn("setting is not a number", "key", key, "value", v)
		return def
	}
	return n
}

// IsFeatureEnabled reports whether the boolean setting for key is on.
// Absent keys are off.
func (s *SettingsStore) IsFeatureEnabled(ctx context.Context, key string) bool {
	v, found := s.lookup(ctx, key)
	if !found {
		return false
	}
	switch strings.ToLower(strings.TrimSpace(v)) {
	case "true", "1", "on", "yes", "enabled":
		return true
	}
	return false
}

// lookup serves from cache when fresh, otherwise refreshes from the store.
// A failed refresh keeps serving the stale value if one exists.
func (s *SettingsStore) lookup(ctx context.Context, key string) (string, bool) {
	s.mu.Lock()
	entry, ok := s.cache[key]
	fresh := ok && s.now().Sub(entry.fetchedAt) < s.ttl
	s.mu.Unlock()

	if fresh {
		return entry.value, entry.found
	}

	setting, err := s.reader.GetSetting(ctx, key)
	if err != nil {
		slog.Warn("settings refresh failed", "key", key, "error", err)
		if ok {
			return entry.value, entry.found
		}
		return "", false
	}

	refreshed := cachedSetting{fetchedAt: s.now()}
	if setting != nil {
		refreshed.value = setting.Value
		refreshed.found = true
	}

	s.mu.Lock()
	s.cache[key] = refreshed
	s.mu.Unlock()

	return refreshed.value, refreshed.found
}

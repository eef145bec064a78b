package config

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/raphaelgruber/insightd-go/internal/models"
)

type fakeReader struct {
	values map[string]string
	err    error
	calls  int
}

func (f *fakeReader) GetSetting(_ context.Context, key string) (*models.Setting, error) {
	f.calls++
	if f.err != nil {
		return nil, f.err
	}
	v, ok := f.values[key]
	if !ok {
		return nil, nil
	}
	return &models.Setting{Key: key, Value: v}, nil
}

func TestSettingsStoreCachesWithinTTL(t *testing.T) {
	reader := &fakeReader{values: map[string]string{"min_confidence": "0.4"}}

	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	s := NewSettingsStore(reader, time.Minute)
	s.now = func() time.Time { return now }

	ctx := context.Background()
	if got := s.GetNumber(ctx, "min_confidence", 0.3); got != 0.4 {
		t.Errorf("GetNumber() = %v, want 0.4", got)
	}

	// Within the TTL, repeated reads never touch the store.
	reader.values["min_confidence"] = "0.9"
	for i := 0; i < 5; i++ {
		if got := s.GetNumber(ctx, "min_confidence", 0.3); got != 0.4 {
			t.Errorf("GetNumber() = %v, want cached 0.4", got)
		}
	}
	if reader.calls != 1 {
		t.Errorf("store queried %d times, want 1", reader.calls)
	}

	// Past the TTL, the next read refreshes lazily.
	now = now.Add(time.Minute + time.Second)
	if got := s.GetNumber(ctx, "min_confidence", 0.3); got != 0.9 {
		t.Errorf("GetNumber() after expiry = %v, want 0.9", got)
	}
	if reader.calls != 2 {
		t.Errorf("store queried %d times, want 2", reader.calls)
	}
}

func TestSettingsStoreServesStaleOnRefreshError(t *testing.T) {
	reader := &fakeReader{values: map[string]string{"batch_size": "25"}}

	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	s := NewSettingsStore(reader, time.Minute)
	s.now = func() time.Time { return now }

	ctx := context.Background()
	if got := s.Get(ctx, "batch_size", "50"); got != "25" {
		t.Fatalf("Get() = %q, want 25", got)
	}

	now = now.Add(2 * time.Minute)
	reader.err = errors.New("connection refused")

	if got := s.Get(ctx, "batch_size", "50"); got != "25" {
		t.Errorf("Get() during outage = %q, want stale 25", got)
	}
}

func TestSettingsStoreDefaults(t *testing.T) {
	reader := &fakeReader{values: map[string]string{}}
	s := NewSettingsStore(reader, time.Minute)
	ctx := context.Background()

	if got := s.Get(ctx, "missing", "fallback"); got != "fallback" {
		t.Errorf("Get() = %q, want fallback", got)
	}
	if got := s.GetNumber(ctx, "missing", 7); got != 7 {
		t.Errorf("GetNumber() = %v, want 7", got)
	}

	reader.values["not_numeric"] = "banana"
	if got := s.GetNumber(ctx, "not_numeric", 7); got != 7 {
		t.Errorf("GetNumber() for non-numeric value = %v, want 7", got)
	}
}

func TestIsFeatureEnabled(t *testing.T) {
	reader := &fakeReader{values: map[string]string{
		"a": "true", "b": "1", "c": "ON", "d": "yes", "e": "enabled",
		"f": "false", "g": "0", "h": "maybe",
	}}
	s := NewSettingsStore(reader, time.Minute)
	ctx := context.Background()

	for _, key := range []string{"a", "b", "c", "d", "e"} {
		if !s.IsFeatureEnabled(ctx, key) {
			t.Errorf("IsFeatureEnabled(%q) = false, want true", key)
		}
	}
	for _, key := range []string{"f", "g", "h", "absent"} {
		if s.IsFeatureEnabled(ctx, key) {
			t.Errorf("IsFeatureEnabled(%q) = true, want false", key)
		}
	}
}

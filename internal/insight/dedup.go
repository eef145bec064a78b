package insight

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"log/slog"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/raphaelgruber/insightd-go/internal/models"
)

// Signature derives the dedup key for a candidate: a hash over its normalized
// identity fields. Content is deliberately excluded so rephrasings of the
// same conclusion collapse to one signature.
func Signature(c models.CandidateInsight) string {
	entities := make([]string, len(c.Entities))
	for i, e := range c.Entities {
		entities[i] = normalize(e)
	}
	sort.Strings(entities)

	parts := []string{
		normalize(c.Type),
		normalize(c.Category),
		normalize(c.Subcategory),
		strings.Join(entities, ","),
	}

	sum := sha256.Sum256([]byte(strings.Join(parts, "|")))
	return hex.EncodeToString(sum[:])
}

func normalize(s string) string {
	return strings.Join(strings.Fields(strings.ToLower(s)), " ")
}

// MergeConfidence combines an existing insight's confidence with a duplicate
// candidate's. Weighting is asymmetric toward the higher value, so repeated
// confirmations pull confidence up faster than weak repeats pull it down.
func MergeConfidence(existing, candidate float64) float64 {
	if candidate > existing {
		return existing*0.4 + candidate*0.6
	}
	return existing*0.6 + candidate*0.4
}

// WindowEntry is the in-memory view of one active dedup window slot.
type WindowEntry struct {
	InsightID  string
	Confidence float64
	ExpiresAt  time.Time
}

// Deduplicator maintains the signature window. Lookups and inserts are
// in-memory; an optional DedupStore persists the window across restarts.
type Deduplicator struct {
	window time.Duration
	store  DedupStore // nil means memory-only
	log    *slog.Logger
	now    func() time.Time

	mu      sync.Mutex
	entries map[string]WindowEntry
}

// DedupOption configures a Deduplicator.
type DedupOption func(*Deduplicator)

// WithDedupStore persists window entries so dedup survives restarts.
func WithDedupStore(store DedupStore) DedupOption {
	return func(d *Deduplicator) { d.store = store }
}

// WithDedupClock overrides the time source (for tests).
func WithDedupClock(now func() time.Time) DedupOption {
	return func(d *Deduplicator) { d.now = now }
}

// NewDeduplicator creates a deduplicator with the given window length.
func NewDeduplicator(window time.Duration, log *slog.Logger, opts ...DedupOption) *Deduplicator {
	if log == nil {
		log = slog.Default()
	}
	d := &Deduplicator{
		window:  window,
		log:     log,
		now:     time.Now,
		entries: make(map[string]WindowEntry),
	}
	for _, opt := range opts {
		opt(d)
	}
	return d
}

// LoadWindow rebuilds the in-memory index from persisted entries. Called once
// at startup; a memory-only deduplicator is a no-op.
func (d *Deduplicator) LoadWindow(ctx context.Context) error {
	if d.store == nil {
		return nil
	}

	persisted, err := d.store.LoadDedupEntries(ctx, d.now())
	if err != nil {
		return err
	}

	d.mu.Lock()
	defer d.mu.Unlock()
	for _, e := range persisted {
		d.entries[e.Signature] = WindowEntry{
			InsightID:  e.InsightID,
			Confidence: e.Confidence,
			ExpiresAt:  e.ExpiresAt,
		}
	}

	d.log.Info("dedup window loaded", "entries", len(persisted))
	return nil
}

// Lookup returns the active window entry for a signature. Expired entries are
// evicted lazily and reported as absent.
func (d *Deduplicator) Lookup(signature string) (WindowEntry, bool) {
	d.mu.Lock()
	defer d.mu.Unlock()

	e, ok := d.entries[signature]
	if !ok {
		return WindowEntry{}, false
	}
	if !e.ExpiresAt.After(d.now()) {
		delete(d.entries, signature)
		return WindowEntry{}, false
	}
	return e, true
}

// Remember records a signature resolution, restarting its window. Called both
// for newly created insights and after a merge updates confidence.
func (d *Deduplicator) Remember(ctx context.Context, signature, insightID string, confidence float64) error {
	expires := d.now().Add(d.window)

	d.mu.Lock()
	d.entries[signature] = WindowEntry{
		InsightID:  insightID,
		Confidence: confidence,
		ExpiresAt:  expires,
	}
	d.mu.Unlock()

	if d.store == nil {
		return nil
	}
	return d.store.SaveDedupEntry(ctx, models.DedupEntry{
		Signature:  signature,
		InsightID:  insightID,
		Confidence: confidence,
		ExpiresAt:  expires,
	})
}

// Sweep evicts expired entries from memory and the store. Returns the number
// of in-memory evictions.
func (d *Deduplicator) Sweep(ctx context.Context) (int, error) {
	now := d.now()

	d.mu.Lock()
	evicted := 0
	for sig, e := range d.entries {
		if !e.ExpiresAt.After(now) {
			delete(d.entries, sig)
			evicted++
		}
	}
	d.mu.Unlock()

	if d.store != nil {
		deleted, err := d.store.DeleteExpiredDedupEntries(ctx, now)
		if err != nil {
			return evicted, err
		}
		d.log.Debug("dedup sweep", "memory_evicted", evicted, "store_deleted", deleted)
	}
	return evicted, nil
}

// Size reports the current window population.
func (d *Deduplicator) Size() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return len(d.entries)
}

package insight

import (
	"context"
	"fmt"
	"sort"
	"sync"

	"github.com/raphaelgruber/insightd-go/internal/models"
)

// Processor turns one memory record into zero or more candidate insights.
// Zero candidates is a legitimate outcome for trivial content.
type Processor interface {
	// Name identifies the processor in logs and candidate Method tags.
	Name() string
	// Types lists the memory types this processor claims.
	Types() []string
	// Detect extracts candidates from a record. A returned error marks the
	// record failed; it never aborts sibling records in a batch.
	Detect(ctx context.Context, rec models.MemoryRecord) ([]models.CandidateInsight, error)
}

// Registry routes memory types to processors. Registration happens once at
// startup; Resolve is called concurrently by batch workers.
type Registry struct {
	mu       sync.RWMutex
	byType   map[string]Processor
	fallback Processor
}

// NewRegistry creates an empty registry.
func NewRegistry() *Registry {
	return &Registry{byType: make(map[string]Processor)}
}

// Register binds a processor to each of its claimed types. Fails with
// ErrDuplicateProcessor if a type is already claimed.
func (r *Registry) Register(p Processor) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	for _, t := range p.Types() {
		if existing, ok := r.byType[t]; ok {
			return fmt.Errorf("%w: %q claimed by %s", ErrDuplicateProcessor, t, existing.Name())
		}
	}
	for _, t := range p.Types() {
		r.byType[t] = p
	}
	return nil
}

// SetDefault installs the processor used for memory types no registration
// claims.
func (r *Registry) SetDefault(p Processor) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.fallback = p
}

// Resolve returns the processor for a memory type, falling back to the
// default. Fails with ErrNoProcessor when neither exists.
func (r *Registry) Resolve(memType string) (Processor, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	if p, ok := r.byType[memType]; ok {
		return p, nil
	}
	if r.fallback != nil {
		return r.fallback, nil
	}
	return nil, fmt.Errorf("%w: %q", ErrNoProcessor, memType)
}

// Types returns the sorted list of explicitly claimed memory types.
func (r *Registry) Types() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()

	types := make([]string, 0, len(r.byType))
	for t := range r.byType {
		types = append(types, t)
	}
	sort.Strings(types)
	return types
}

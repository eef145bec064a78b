// Package insight implements the unified processing pipeline: memory records
// are routed to a processor, candidate insights pass a quality gate and a
// windowed deduplicator, and survivors are persisted and enriched.
package insight

import "errors"

// Sentinel errors for pipeline operations.
var (
	// ErrNoProcessor indicates no registered processor handles a memory type
	// and no default is installed.
	ErrNoProcessor = errors.New("no processor for memory type")

	// ErrDuplicateProcessor indicates two processors claimed the same memory
	// type at registration.
	ErrDuplicateProcessor = errors.New("processor already registered for type")
)

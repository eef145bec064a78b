// Package models defines data structures for the insightd processing core.
package models

import (
	"time"

	surrealmodels "github.com/surrealdb/surrealdb.go/pkg/models"
)

// MemoryStatus tracks where a memory record sits in the processing lifecycle.
type MemoryStatus string

const (
	MemoryStatusPending         MemoryStatus = "pending"
	MemoryStatusProcessing      MemoryStatus = "processing"
	MemoryStatusReady           MemoryStatus = "ready"
	MemoryStatusFailed          MemoryStatus = "failed"
	MemoryStatusFailedPermanent MemoryStatus = "failed_permanent"
)

// MemoryRecord is one atomic unit of captured project knowledge (note,
// snippet, decision) awaiting insight extraction. The pipeline consumes these
// read-only except for the status transition and attempt counter.
type MemoryRecord struct {
	ID        surrealmodels.RecordID `json:"id"`
	Type      string                 `json:"type"`
	Content   string                 `json:"content"`
	Project   string                 `json:"project,omitempty"`
	Status    MemoryStatus           `json:"status"`
	Attempts  int                    `json:"attempts,omitempty"`
	Created   time.Time              `json:"created,omitempty"`
	Updated   time.Time              `json:"updated,omitempty"`
}

// Retryable reports whether the record is eligible for another processing
// pass given the configured attempt threshold.
func (m MemoryRecord) Retryable(maxAttempts int) bool {
	if m.Status == MemoryStatusFailedPermanent {
		return false
	}
	return m.Attempts < maxAttempts
}

package models

import (
	"time"

	surrealmodels "github.com/surrealdb/surrealdb.go/pkg/models"
)

// InsightSource identifies how a persisted insight was derived.
type InsightSource string

const (
	SourceMemory    InsightSource = "memory"
	SourcePattern   InsightSource = "pattern"
	SourceCluster   InsightSource = "cluster"
	SourceSynthesis InsightSource = "synthesis"
)

// ValidationStatus tracks whether an insight has been promoted.
type ValidationStatus string

const (
	ValidationPending       ValidationStatus = "pending"
	ValidationValidated     ValidationStatus = "validated"
	ValidationRejected      ValidationStatus = "rejected"
	ValidationAutoValidated ValidationStatus = "auto_validated"
)

// CandidateInsight is the ephemeral output of a Processor for one memory
// record. It is never persisted directly - it is rejected, merged into an
// existing insight, or promoted to an Insight row.
type CandidateInsight struct {
	Type         string
	Category     string
	Subcategory  string
	Confidence   float64
	Entities     []string
	Technologies []string
	MemoryID     string
	Method       string // raw detection method tag, e.g. "llm_categorize"
	Content      string
}

// Insight is a persisted, deduplicated conclusion derived from memory records.
type Insight struct {
	ID               surrealmodels.RecordID `json:"id"`
	Type             string                 `json:"type"`
	Category         string                 `json:"category"`
	Subcategory      string                 `json:"subcategory,omitempty"`
	Confidence       float64                `json:"confidence"`
	Relevance        float64                `json:"relevance,omitempty"`
	Impact           float64                `json:"impact,omitempty"`
	Content          string                 `json:"content,omitempty"`
	Signature        string                 `json:"signature"`
	Source           InsightSource          `json:"source"`
	Entities         []string               `json:"entities,omitempty"`
	Technologies     []string               `json:"technologies,omitempty"`
	RelatedIDs       []string               `json:"related_ids,omitempty"`
	SupersedesIDs    []string               `json:"supersedes_ids,omitempty"`
	ContradictsIDs   []string               `json:"contradicts_ids,omitempty"`
	MemoryID         string                 `json:"memory_id,omitempty"`
	ValidationStatus ValidationStatus       `json:"validation_status"`
	Embedding        []float32              `json:"embedding,omitempty"`
	Created          time.Time              `json:"created,omitempty"`
	Updated          time.Time              `json:"updated,omitempty"`
}

// InsightInput carries the fields needed to persist a new insight.
type InsightInput struct {
	Type             string
	Category         string
	Subcategory      string
	Confidence       float64
	Content          string
	Signature        string
	Source           InsightSource
	Entities         []string
	Technologies     []string
	MemoryID         string
	ValidationStatus ValidationStatus
}

// DedupEntry maps a content signature to the insight it resolved to within
// the active dedup window. Persisted so windowed dedup survives restarts.
type DedupEntry struct {
	ID         surrealmodels.RecordID `json:"id,omitempty"`
	Signature  string                 `json:"signature"`
	InsightID  string                 `json:"insight_id"`
	Confidence float64                `json:"confidence"`
	ExpiresAt  time.Time              `json:"expires_at"`
}

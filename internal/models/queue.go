package models

import (
	"time"

	surrealmodels "github.com/surrealdb/surrealdb.go/pkg/models"
)

// QueueStatus tracks a durable processing queue item.
type QueueStatus string

const (
	QueueStatusPending    QueueStatus = "pending"
	QueueStatusProcessing QueueStatus = "processing"
	QueueStatusCompleted  QueueStatus = "completed"
	QueueStatusFailed     QueueStatus = "failed"
	QueueStatusCancelled  QueueStatus = "cancelled"
	QueueStatusRetry      QueueStatus = "retry"
)

// TaskType names the kind of work a queue item requests.
type TaskType string

const (
	TaskPatternDetection TaskType = "pattern_detection"
	TaskSynthesis        TaskType = "synthesis"
	TaskValidation       TaskType = "validation"
	TaskEnrichment       TaskType = "enrichment"
)

// QueueItem is a durable backlog entry created when memories arrive faster
// than the batch driver drains them. The same driver consumes it later.
type QueueItem struct {
	ID       surrealmodels.RecordID `json:"id"`
	MemoryID string                 `json:"memory_id"`
	TaskType TaskType               `json:"task_type"`
	Status   QueueStatus            `json:"status"`
	Attempts int                    `json:"attempts"`
	Created  time.Time              `json:"created,omitempty"`
	Updated  time.Time              `json:"updated,omitempty"`
}

// Setting is one key/value configuration row with a category, consumed
// through the TTL-cached settings store.
type Setting struct {
	ID       surrealmodels.RecordID `json:"id"`
	Key      string                 `json:"key"`
	Value    string                 `json:"value"`
	Category string                 `json:"category,omitempty"`
	Updated  time.Time              `json:"updated,omitempty"`
}

// AnalyticsSnapshot is a periodic aggregate written by the analytics job.
type AnalyticsSnapshot struct {
	ID               surrealmodels.RecordID `json:"id,omitempty"`
	InsightsTotal    int                    `json:"insights_total"`
	InsightsByType   map[string]int         `json:"insights_by_type,omitempty"`
	MemoriesByStatus map[string]int         `json:"memories_by_status,omitempty"`
	TakenAt          time.Time              `json:"taken_at"`
}

package insight

import (
	"context"
	"time"

	"github.com/raphaelgruber/insightd-go/internal/models"
)

// Store is the persistence surface the pipeline needs. *db.Client satisfies
// it; tests supply an in-memory fake.
type Store interface {
	ListProcessableMemories(ctx context.Context, limit, maxAttempts int) ([]models.MemoryRecord, error)
	GetMemoryStatus(ctx context.Context, id string) (models.MemoryStatus, error)
	SetMemoryStatus(ctx context.Context, id string, status models.MemoryStatus) error
	MarkMemoryFailed(ctx context.Context, id string, maxAttempts int) (models.MemoryStatus, error)

	CreateInsight(ctx context.Context, input models.InsightInput) (*models.Insight, error)
	MergeInsightConfidence(ctx context.Context, id string, confidence float64) error
	FindRelatedInsights(ctx context.Context, technologies []string, excludeID string, limit int) ([]models.Insight, error)
	SetInsightRelations(ctx context.Context, id string, relatedIDs []string) error

	EnqueueItem(ctx context.Context, memoryID string, task models.TaskType) (*models.QueueItem, error)
	ListQueueItems(ctx context.Context, status models.QueueStatus, limit int) ([]models.QueueItem, error)
	SetQueueItemStatus(ctx context.Context, id string, status models.QueueStatus) error
}

// DedupStore is the persistence surface of the windowed deduplicator,
// kept separate so the deduplicator can run purely in memory in tests.
type DedupStore interface {
	SaveDedupEntry(ctx context.Context, entry models.DedupEntry) error
	LoadDedupEntries(ctx context.Context, now time.Time) ([]models.DedupEntry, error)
	DeleteExpiredDedupEntries(ctx context.Context, now time.Time) (int, error)
}

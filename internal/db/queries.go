// Package db provides SurrealDB query functions for memory and insight operations.
package db

import (
	"context"
	"fmt"
	"time"

	"github.com/raphaelgruber/insightd-go/internal/models"
	"github.com/surrealdb/surrealdb.go"
)

// TypeCount represents an insight type with its count.
type TypeCount struct {
	Type  string `json:"type"`
	Count int    `json:"count"`
}

// StatusCount represents a memory status with its count.
type StatusCount struct {
	Status string `json:"status"`
	Count  int    `json:"count"`
}

// =============================================================================
// MEMORY RECORDS
// =============================================================================

// CreateMemory inserts a new memory record in pending state.
func (c *Client) CreateMemory(ctx context.Context, memType, content, project string) (*models.MemoryRecord, error) {
	var proj *string
	if project != "" {
		proj = &project
	}
	results, err := surrealdb.Query[[]models.MemoryRecord](ctx, c.db, `
		CREATE memory SET
			type = $type,
			content = $content,
			project = $project,
			status = "pending",
			attempts = 0
		RETURN AFTER
	`, map[string]any{"type": memType, "content": content, "project": proj})
	if err != nil {
		return nil, fmt.Errorf("create memory: %w", wrapQueryError(err))
	}
	if results == nil || len(*results) == 0 || len((*results)[0].Result) == 0 {
		return nil, fmt.Errorf("create memory: no result returned")
	}
	return &(*results)[0].Result[0], nil
}

// ListProcessableMemories returns records eligible for a processing pass:
// status pending, or failed with attempts below the permanent-failure threshold.
func (c *Client) ListProcessableMemories(ctx context.Context, limit, maxAttempts int) ([]models.MemoryRecord, error) {
	results, err := surrealdb.Query[[]models.MemoryRecord](ctx, c.db, `
		SELECT * FROM memory
		WHERE (status = "pending" OR status = "failed") AND attempts < $max
		ORDER BY created ASC
		LIMIT $limit
	`, map[string]any{"limit": limit, "max": maxAttempts})
	if err != nil {
		return nil, fmt.Errorf("list processable memories: %w", err)
	}
	if results == nil || len(*results) == 0 {
		return []models.MemoryRecord{}, nil
	}
	return (*results)[0].Result, nil
}

// GetMemoryStatus returns the current status of a memory record.
func (c *Client) GetMemoryStatus(ctx context.Context, id string) (models.MemoryStatus, error) {
	results, err := surrealdb.Query[[]models.MemoryRecord](ctx, c.db, `
		SELECT * FROM type::record("memory", $id)
	`, map[string]any{"id": id})
	if err != nil {
		return "", fmt.Errorf("get memory status: %w", err)
	}
	if results == nil || len(*results) == 0 || len((*results)[0].Result) == 0 {
		return "", fmt.Errorf("get memory status: %w", ErrNotFound)
	}
	return (*results)[0].Result[0].Status, nil
}

// SetMemoryStatus transitions a memory record to the given status.
func (c *Client) SetMemoryStatus(ctx context.Context, id string, status models.MemoryStatus) error {
	_, err := surrealdb.Query[any](ctx, c.db, `
		UPDATE type::record("memory", $id) SET
			status = $status,
			updated = time::now()
	`, map[string]any{"id": id, "status": string(status)})
	if err != nil {
		return fmt.Errorf("set memory status: %w", err)
	}
	return nil
}

// MarkMemoryFailed increments the attempt counter and transitions the record
// to failed, or failed_permanent once maxAttempts is reached. Returns the
// resulting status.
func (c *Client) MarkMemoryFailed(ctx context.Context, id string, maxAttempts int) (models.MemoryStatus, error) {
	results, err := surrealdb.Query[[]models.MemoryRecord](ctx, c.db, `
		UPDATE type::record("memory", $id) SET
			attempts += 1,
			status = "failed",
			updated = time::now()
		RETURN AFTER
	`, map[string]any{"id": id})
	if err != nil {
		return "", fmt.Errorf("mark memory failed: %w", err)
	}
	if results == nil || len(*results) == 0 || len((*results)[0].Result) == 0 {
		return "", fmt.Errorf("mark memory failed: %w", ErrNotFound)
	}

	rec := (*results)[0].Result[0]
	if rec.Attempts < maxAttempts {
		return models.MemoryStatusFailed, nil
	}

	// Threshold reached: exclude from future batches.
	if err := c.SetMemoryStatus(ctx, id, models.MemoryStatusFailedPermanent); err != nil {
		return "", err
	}
	return models.MemoryStatusFailedPermanent, nil
}

// CountMemoriesByStatus returns memory record counts grouped by status.
func (c *Client) CountMemoriesByStatus(ctx context.Context) (map[string]int, error) {
	results, err := surrealdb.Query[[]StatusCount](ctx, c.db, `
		SELECT status, count() AS count FROM memory GROUP BY status
	`, nil)
	if err != nil {
		return nil, fmt.Errorf("count memories: %w", err)
	}

	counts := make(map[string]int)
	if results != nil && len(*results) > 0 {
		for _, row := range (*results)[0].Result {
			counts[row.Status] = row.Count
		}
	}
	return counts, nil
}

// =============================================================================
// INSIGHTS
// =============================================================================

// CreateInsight persists a new insight row.
func (c *Client) CreateInsight(ctx context.Context, input models.InsightInput) (*models.Insight, error) {
	if input.Entities == nil {
		input.Entities = []string{}
	}
	if input.Technologies == nil {
		input.Technologies = []string{}
	}
	source := input.Source
	if source == "" {
		source = models.SourceMemory
	}

	results, err := surrealdb.Query[[]models.Insight](ctx, c.db, `
		CREATE insight SET
			type = $type,
			category = $category,
			subcategory = $subcategory,
			confidence = $confidence,
			content = $content,
			signature = $signature,
			source = $source,
			entities = $entities,
			technologies = $technologies,
			related_ids = [],
			supersedes_ids = [],
			contradicts_ids = [],
			memory_id = $memory_id,
			validation_status = $validation_status,
			archived = false
		RETURN AFTER
	`, map[string]any{
		"type":              input.Type,
		"category":          input.Category,
		"subcategory":       input.Subcategory,
		"confidence":        input.Confidence,
		"content":           input.Content,
		"signature":         input.Signature,
		"source":            string(source),
		"entities":          input.Entities,
		"technologies":      input.Technologies,
		"memory_id":         input.MemoryID,
		"validation_status": string(input.ValidationStatus),
	})
	if err != nil {
		return nil, fmt.Errorf("create insight: %w", wrapQueryError(err))
	}
	if results == nil || len(*results) == 0 || len((*results)[0].Result) == 0 {
		return nil, fmt.Errorf("create insight: no result returned")
	}
	return &(*results)[0].Result[0], nil
}

// MergeInsightConfidence updates an existing insight's confidence after a
// windowed dedup merge. No new row is created.
func (c *Client) MergeInsightConfidence(ctx context.Context, id string, confidence float64) error {
	_, err := surrealdb.Query[any](ctx, c.db, `
		UPDATE type::record("insight", $id) SET
			confidence = $confidence,
			updated = time::now()
	`, map[string]any{"id": id, "confidence": confidence})
	if err != nil {
		return fmt.Errorf("merge insight confidence: %w", err)
	}
	return nil
}

// FindRelatedInsights returns non-archived insights sharing any of the given
// technologies, excluding the insight itself.
func (c *Client) FindRelatedInsights(ctx context.Context, technologies []string, excludeID string, limit int) ([]models.Insight, error) {
	if len(technologies) == 0 {
		return []models.Insight{}, nil
	}
	results, err := surrealdb.Query[[]models.Insight](ctx, c.db, `
		SELECT * FROM insight
		WHERE technologies CONTAINSANY $techs
			AND archived = false
			AND id != type::record("insight", $exclude)
		ORDER BY updated DESC
		LIMIT $limit
	`, map[string]any{"techs": technologies, "exclude": excludeID, "limit": limit})
	if err != nil {
		return nil, fmt.Errorf("find related insights: %w", err)
	}
	if results == nil || len(*results) == 0 {
		return []models.Insight{}, nil
	}
	return (*results)[0].Result, nil
}

// SetInsightRelations replaces the related_ids set of an insight.
func (c *Client) SetInsightRelations(ctx context.Context, id string, relatedIDs []string) error {
	if relatedIDs == nil {
		relatedIDs = []string{}
	}
	_, err := surrealdb.Query[any](ctx, c.db, `
		UPDATE type::record("insight", $id) SET
			related_ids = $related,
			updated = time::now()
	`, map[string]any{"id": id, "related": relatedIDs})
	if err != nil {
		return fmt.Errorf("set insight relations: %w", err)
	}
	return nil
}

// ListInsights returns recent non-archived insights, optionally filtered by category.
func (c *Client) ListInsights(ctx context.Context, category string, limit int) ([]models.Insight, error) {
	categoryClause := ""
	vars := map[string]any{"limit": limit}
	if category != "" {
		categoryClause = "AND category = $category"
		vars["category"] = category
	}

	sql := fmt.Sprintf(`
		SELECT * FROM insight WHERE archived = false %s
		ORDER BY updated DESC LIMIT $limit
	`, categoryClause)

	results, err := surrealdb.Query[[]models.Insight](ctx, c.db, sql, vars)
	if err != nil {
		return nil, fmt.Errorf("list insights: %w", err)
	}
	if results == nil || len(*results) == 0 {
		return []models.Insight{}, nil
	}
	return (*results)[0].Result, nil
}

// ArchiveInsightsBefore marks insights last updated before the cutoff as
// archived. Returns the number of rows archived.
func (c *Client) ArchiveInsightsBefore(ctx context.Context, cutoff time.Time) (int, error) {
	results, err := surrealdb.Query[[]models.Insight](ctx, c.db, `
		UPDATE insight SET archived = true
		WHERE archived = false AND updated < $cutoff
		RETURN AFTER
	`, map[string]any{"cutoff": cutoff})
	if err != nil {
		return 0, fmt.Errorf("archive insights: %w", err)
	}
	if results == nil || len(*results) == 0 {
		return 0, nil
	}
	return len((*results)[0].Result), nil
}

// ListInsightsMissingEmbedding returns insights without an embedding vector.
func (c *Client) ListInsightsMissingEmbedding(ctx context.Context, limit int) ([]models.Insight, error) {
	results, err := surrealdb.Query[[]models.Insight](ctx, c.db, `
		SELECT * FROM insight
		WHERE embedding IS NONE AND archived = false
		ORDER BY created ASC
		LIMIT $limit
	`, map[string]any{"limit": limit})
	if err != nil {
		return nil, fmt.Errorf("list insights missing embedding: %w", err)
	}
	if results == nil || len(*results) == 0 {
		return []models.Insight{}, nil
	}
	return (*results)[0].Result, nil
}

// SetInsightEmbedding stores the embedding vector for an insight.
func (c *Client) SetInsightEmbedding(ctx context.Context, id string, embedding []float32) error {
	_, err := surrealdb.Query[any](ctx, c.db, `
		UPDATE type::record("insight", $id) SET embedding = $embedding
	`, map[string]any{"id": id, "embedding": embedding})
	if err != nil {
		return fmt.Errorf("set insight embedding: %w", err)
	}
	return nil
}

// CountInsightsByType returns non-archived insight counts grouped by type.
func (c *Client) CountInsightsByType(ctx context.Context) (map[string]int, error) {
	results, err := surrealdb.Query[[]TypeCount](ctx, c.db, `
		SELECT type, count() AS count FROM insight WHERE archived = false GROUP BY type
	`, nil)
	if err != nil {
		return nil, fmt.Errorf("count insights: %w", err)
	}

	counts := make(map[string]int)
	if results != nil && len(*results) > 0 {
		for _, row := range (*results)[0].Result {
			counts[row.Type] = row.Count
		}
	}
	return counts, nil
}

// =============================================================================
// DEDUP WINDOW ENTRIES
// =============================================================================

// SaveDedupEntry upserts a window entry keyed by signature.
func (c *Client) SaveDedupEntry(ctx context.Context, entry models.DedupEntry) error {
	_, err := surrealdb.Query[any](ctx, c.db, `
		UPSERT dedup_entry SET
			signature = $signature,
			insight_id = $insight_id,
			confidence = $confidence,
			expires_at = $expires_at
		WHERE signature = $signature
	`, map[string]any{
		"signature":  entry.Signature,
		"insight_id": entry.InsightID,
		"confidence": entry.Confidence,
		"expires_at": entry.ExpiresAt,
	})
	if err != nil {
		return fmt.Errorf("save dedup entry: %w", wrapQueryError(err))
	}
	return nil
}

// LoadDedupEntries returns all window entries that have not expired.
// Called once on startup to rebuild the in-memory index.
func (c *Client) LoadDedupEntries(ctx context.Context, now time.Time) ([]models.DedupEntry, error) {
	results, err := surrealdb.Query[[]models.DedupEntry](ctx, c.db, `
		SELECT * FROM dedup_entry WHERE expires_at > $now
	`, map[string]any{"now": now})
	if err != nil {
		return nil, fmt.Errorf("load dedup entries: %w", err)
	}
	if results == nil || len(*results) == 0 {
		return []models.DedupEntry{}, nil
	}
	return (*results)[0].Result, nil
}

// DeleteExpiredDedupEntries removes entries whose window has passed.
// Returns the number of rows deleted.
func (c *Client) DeleteExpiredDedupEntries(ctx context.Context, now time.Time) (int, error) {
	results, err := surrealdb.Query[[]models.DedupEntry](ctx, c.db, `
		DELETE dedup_entry WHERE expires_at <= $now RETURN BEFORE
	`, map[string]any{"now": now})
	if err != nil {
		return 0, fmt.Errorf("delete expired dedup entries: %w", err)
	}
	if results == nil || len(*results) == 0 {
		return 0, nil
	}
	return len((*results)[0].Result), nil
}

// =============================================================================
// PROCESSING QUEUE
// =============================================================================

// EnqueueItem creates a durable backlog entry for a memory record.
func (c *Client) EnqueueItem(ctx context.Context, memoryID string, task models.TaskType) (*models.QueueItem, error) {
	results, err := surrealdb.Query[[]models.QueueItem](ctx, c.db, `
		CREATE processing_queue SET
			memory_id = $memory_id,
			task_type = $task_type,
			status = "pending",
			attempts = 0
		RETURN AFTER
	`, map[string]any{"memory_id": memoryID, "task_type": string(task)})
	if err != nil {
		return nil, fmt.Errorf("enqueue item: %w", wrapQueryError(err))
	}
	if results == nil || len(*results) == 0 || len((*results)[0].Result) == 0 {
		return nil, fmt.Errorf("enqueue item: no result returned")
	}
	return &(*results)[0].Result[0], nil
}

// ListQueueItems returns queue items with the given status, oldest first.
func (c *Client) ListQueueItems(ctx context.Context, status models.QueueStatus, limit int) ([]models.QueueItem, error) {
	results, err := surrealdb.Query[[]models.QueueItem](ctx, c.db, `
		SELECT * FROM processing_queue WHERE status = $status
		ORDER BY created ASC LIMIT $limit
	`, map[string]any{"status": string(status), "limit": limit})
	if err != nil {
		return nil, fmt.Errorf("list queue items: %w", err)
	}
	if results == nil || len(*results) == 0 {
		return []models.QueueItem{}, nil
	}
	return (*results)[0].Result, nil
}

// SetQueueItemStatus transitions a queue item, bumping its attempt counter
// when it re-enters retry.
func (c *Client) SetQueueItemStatus(ctx context.Context, id string, status models.QueueStatus) error {
	sql := `
		UPDATE type::record("processing_queue", $id) SET
			status = $status,
			updated = time::now()
	`
	if status == models.QueueStatusRetry {
		sql = `
			UPDATE type::record("processing_queue", $id) SET
				status = $status,
				attempts += 1,
				updated = time::now()
		`
	}
	_, err := surrealdb.Query[any](ctx, c.db, sql, map[string]any{"id": id, "status": string(status)})
	if err != nil {
		return fmt.Errorf("set queue item status: %w", err)
	}
	return nil
}

// PruneQueueItems deletes terminal queue items last updated before the cutoff.
// Returns the number of rows deleted.
func (c *Client) PruneQueueItems(ctx context.Context, cutoff time.Time) (int, error) {
	results, err := surrealdb.Query[[]models.QueueItem](ctx, c.db, `
		DELETE processing_queue
		WHERE status IN ["completed", "cancelled", "failed"] AND updated < $cutoff
		RETURN BEFORE
	`, map[string]any{"cutoff": cutoff})
	if err != nil {
		return 0, fmt.Errorf("prune queue items: %w", err)
	}
	if results == nil || len(*results) == 0 {
		return 0, nil
	}
	return len((*results)[0].Result), nil
}

// =============================================================================
// SETTINGS
// =============================================================================

// GetSetting returns the setting row for a key, or nil if absent.
func (c *Client) GetSetting(ctx context.Context, key string) (*models.Setting, error) {
	results, err := surrealdb.Query[[]models.Setting](ctx, c.db, `
		SELECT * FROM setting WHERE key = $key LIMIT 1
	`, map[string]any{"key": key})
	if err != nil {
		return nil, fmt.Errorf("get setting: %w", err)
	}
	if results == nil || len(*results) == 0 || len((*results)[0].Result) == 0 {
		return nil, nil
	}
	return &(*results)[0].Result[0], nil
}

// PutSetting upserts a setting row.
func (c *Client) PutSetting(ctx context.Context, key, value, category string) error {
	_, err := surrealdb.Query[any](ctx, c.db, `
		UPSERT setting SET
			key = $key,
			value = $value,
			category = $category,
			updated = time::now()
		WHERE key = $key
	`, map[string]any{"key": key, "value": value, "category": category})
	if err != nil {
		return fmt.Errorf("put setting: %w", wrapQueryError(err))
	}
	return nil
}

// =============================================================================
// ANALYTICS
// =============================================================================

// CreateAnalyticsSnapshot persists a point-in-time aggregate row.
func (c *Client) CreateAnalyticsSnapshot(ctx context.Context, snap models.AnalyticsSnapshot) error {
	_, err := surrealdb.Query[any](ctx, c.db, `
		CREATE analytics_snapshot SET
			insights_total = $total,
			insights_by_type = $by_type,
			memories_by_status = $by_status,
			taken_at = time::now()
	`, map[string]any{
		"total":     snap.InsightsTotal,
		"by_type":   snap.InsightsByType,
		"by_status": snap.MemoriesByStatus,
	})
	if err != nil {
		return fmt.Errorf("create analytics snapshot: %w", err)
	}
	return nil
}

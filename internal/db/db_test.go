// Package db provides integration tests for SurrealDB operations.
package db

import (
	"context"
	"fmt"
	"log"
	"os"
	"testing"
	"time"

	"github.com/raphaelgruber/insightd-go/internal/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/wait"
)

var testDB *Client
var testContainer testcontainers.Container

// TestMain sets up and tears down the SurrealDB container for all tests.
func TestMain(m *testing.M) {
	// Disable ryuk (cleanup container) as it can cause issues in some environments
	os.Setenv("TESTCONTAINERS_RYUK_DISABLED", "true")

	ctx := context.Background()

	var err error
	testContainer, err = testcontainers.GenericContainer(ctx, testcontainers.GenericContainerRequest{
		ContainerRequest: testcontainers.ContainerRequest{
			Image:        "surrealdb/surrealdb:v3.0.0-beta.1",
			ExposedPorts: []string{"8000/tcp"},
			Cmd:          []string{"start", "--log", "info", "--user", "root", "--pass", "root"},
			WaitingFor:   wait.ForLog("Started web server").WithStartupTimeout(60 * time.Second),
		},
		Started: true,
	})
	if err != nil {
		log.Fatalf("Failed to start SurrealDB container: %v", err)
	}

	host, err := testContainer.Host(ctx)
	if err != nil {
		log.Fatalf("Failed to get container host: %v", err)
	}
	// Workaround: testcontainers may return "null" as host in some environments
	if host == "" || host == "null" {
		host = "localhost"
	}
	mappedPort, err := testContainer.MappedPort(ctx, "8000")
	if err != nil {
		log.Fatalf("Failed to get mapped port: %v", err)
	}

	testDB, err = NewClient(ctx, Config{
		URL:       fmt.Sprintf("ws://%s:%s/rpc", host, mappedPort.Port()),
		Namespace: "test",
		Database:  "test",
		Username:  "root",
		Password:  "root",
		AuthLevel: "root",
	}, nil)
	if err != nil {
		log.Fatalf("Failed to connect to test database: %v", err)
	}

	// Initialize schema with the default embedding dimension.
	if err := testDB.InitSchema(ctx, 384); err != nil {
		log.Fatalf("Failed to initialize schema: %v", err)
	}

	code := m.Run()

	_ = testDB.Close(ctx)
	_ = testContainer.Terminate(ctx)

	os.Exit(code)
}

// freshDB wipes all tables so each test starts from an empty store.
func freshDB(t *testing.T) context.Context {
	t.Helper()
	ctx := context.Background()
	require.NoError(t, testDB.WipeData(ctx), "wipe data")
	return ctx
}

// testEmbedding returns a dummy 384-dim embedding.
func testEmbedding() []float32 {
	emb := make([]float32, 384)
	for i := range emb {
		emb[i] = float32(i) / 384.0
	}
	return emb
}

func createTestInsight(t *testing.T, ctx context.Context, category, signature string, confidence float64, techs []string) *models.Insight {
	t.Helper()
	ins, err := testDB.CreateInsight(ctx, models.InsightInput{
		Type:             "pattern",
		Category:         category,
		Confidence:       confidence,
		Content:          "test insight for " + category,
		Signature:        signature,
		Source:           models.SourceMemory,
		Technologies:     techs,
		ValidationStatus: models.ValidationAutoValidated,
	})
	require.NoError(t, err, "create insight")
	return ins
}

// =============================================================================
// MEMORY LIFECYCLE
// =============================================================================

func TestMemoryLifecycle(t *testing.T) {
	ctx := freshDB(t)

	rec, err := testDB.CreateMemory(ctx, "note", "retry with backoff fixed the flaky suite", "core")
	require.NoError(t, err)
	assert.Equal(t, models.MemoryStatusPending, rec.Status)
	assert.Equal(t, 0, rec.Attempts)

	id := models.MustRecordIDString(rec.ID)

	eligible, err := testDB.ListProcessableMemories(ctx, 10, 3)
	require.NoError(t, err)
	require.Len(t, eligible, 1)

	require.NoError(t, testDB.SetMemoryStatus(ctx, id, models.MemoryStatusProcessing))
	eligible, err = testDB.ListProcessableMemories(ctx, 10, 3)
	require.NoError(t, err)
	assert.Empty(t, eligible, "processing records are not eligible")

	require.NoError(t, testDB.SetMemoryStatus(ctx, id, models.MemoryStatusReady))
	counts, err := testDB.CountMemoriesByStatus(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, counts[string(models.MemoryStatusReady)])

	status, err := testDB.GetMemoryStatus(ctx, id)
	require.NoError(t, err)
	assert.Equal(t, models.MemoryStatusReady, status)

	_, err = testDB.GetMemoryStatus(ctx, "no-such-memory")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestMarkMemoryFailedReachesPermanent(t *testing.T) {
	ctx := freshDB(t)

	rec, err := testDB.CreateMemory(ctx, "note", "always breaks", "")
	require.NoError(t, err)
	id := models.MustRecordIDString(rec.ID)

	status, err := testDB.MarkMemoryFailed(ctx, id, 3)
	require.NoError(t, err)
	assert.Equal(t, models.MemoryStatusFailed, status)

	status, err = testDB.MarkMemoryFailed(ctx, id, 3)
	require.NoError(t, err)
	assert.Equal(t, models.MemoryStatusFailed, status)

	// Failed records stay eligible until the threshold.
	eligible, err := testDB.ListProcessableMemories(ctx, 10, 3)
	require.NoError(t, err)
	require.Len(t, eligible, 1)
	assert.Equal(t, 2, eligible[0].Attempts)

	status, err = testDB.MarkMemoryFailed(ctx, id, 3)
	require.NoError(t, err)
	assert.Equal(t, models.MemoryStatusFailedPermanent, status)

	eligible, err = testDB.ListProcessableMemories(ctx, 10, 3)
	require.NoError(t, err)
	assert.Empty(t, eligible, "permanently failed records never re-enter a batch")
}

func TestListProcessableMemoriesOrdersAndLimits(t *testing.T) {
	ctx := freshDB(t)

	for i := 0; i < 5; i++ {
		_, err := testDB.CreateMemory(ctx, "note", fmt.Sprintf("memory %d", i), "")
		require.NoError(t, err)
	}

	eligible, err := testDB.ListProcessableMemories(ctx, 3, 3)
	require.NoError(t, err)
	assert.Len(t, eligible, 3)
	assert.Equal(t, "memory 0", eligible[0].Content, "oldest first")
}

// =============================================================================
// INSIGHTS
// =============================================================================

func TestCreateAndListInsights(t *testing.T) {
	ctx := freshDB(t)

	createTestInsight(t, ctx, "error-handling", "sig-a", 0.8, []string{"go"})
	createTestInsight(t, ctx, "api-design", "sig-b", 0.6, nil)

	all, err := testDB.ListInsights(ctx, "", 10)
	require.NoError(t, err)
	assert.Len(t, all, 2)

	filtered, err := testDB.ListInsights(ctx, "api-design", 10)
	require.NoError(t, err)
	require.Len(t, filtered, 1)
	assert.Equal(t, "api-design", filtered[0].Category)

	byType, err := testDB.CountInsightsByType(ctx)
	require.NoError(t, err)
	assert.Equal(t, 2, byType["pattern"])
}

func TestMergeInsightConfidence(t *testing.T) {
	ctx := freshDB(t)

	ins := createTestInsight(t, ctx, "caching", "sig-c", 0.5, nil)
	id := models.MustRecordIDString(ins.ID)

	require.NoError(t, testDB.MergeInsightConfidence(ctx, id, 0.74))

	all, err := testDB.ListInsights(ctx, "caching", 1)
	require.NoError(t, err)
	require.Len(t, all, 1)
	assert.InDelta(t, 0.74, all[0].Confidence, 1e-9)
}

func TestFindRelatedInsightsAndRelations(t *testing.T) {
	ctx := freshDB(t)

	a := createTestInsight(t, ctx, "storage", "sig-d", 0.8, []string{"surrealdb", "go"})
	b := createTestInsight(t, ctx, "storage", "sig-e", 0.7, []string{"surrealdb"})
	createTestInsight(t, ctx, "frontend", "sig-f", 0.7, []string{"react"})

	aID := models.MustRecordIDString(a.ID)
	bID := models.MustRecordIDString(b.ID)

	related, err := testDB.FindRelatedInsights(ctx, []string{"surrealdb"}, aID, 10)
	require.NoError(t, err)
	require.Len(t, related, 1, "shares a technology, excluding self")
	assert.Equal(t, bID, models.MustRecordIDString(related[0].ID))

	// Empty technology list short-circuits.
	none, err := testDB.FindRelatedInsights(ctx, nil, aID, 10)
	require.NoError(t, err)
	assert.Empty(t, none)

	require.NoError(t, testDB.SetInsightRelations(ctx, aID, []string{bID}))
	all, err := testDB.ListInsights(ctx, "storage", 10)
	require.NoError(t, err)
	for _, ins := range all {
		if models.MustRecordIDString(ins.ID) == aID {
			assert.Equal(t, []string{bID}, ins.RelatedIDs)
		}
	}
}

func TestArchiveInsightsBefore(t *testing.T) {
	ctx := freshDB(t)

	createTestInsight(t, ctx, "old-stuff", "sig-g", 0.6, nil)

	archived, err := testDB.ArchiveInsightsBefore(ctx, time.Now().Add(time.Hour))
	require.NoError(t, err)
	assert.Equal(t, 1, archived)

	// Archived insights disappear from listings.
	all, err := testDB.ListInsights(ctx, "", 10)
	require.NoError(t, err)
	assert.Empty(t, all)

	// Idempotent: nothing left to archive.
	archived, err = testDB.ArchiveInsightsBefore(ctx, time.Now().Add(time.Hour))
	require.NoError(t, err)
	assert.Zero(t, archived)
}

func TestEmbeddingBackfillQueries(t *testing.T) {
	ctx := freshDB(t)

	ins := createTestInsight(t, ctx, "embedding", "sig-h", 0.9, nil)
	id := models.MustRecordIDString(ins.ID)

	missing, err := testDB.ListInsightsMissingEmbedding(ctx, 10)
	require.NoError(t, err)
	require.Len(t, missing, 1)

	require.NoError(t, testDB.SetInsightEmbedding(ctx, id, testEmbedding()))

	missing, err = testDB.ListInsightsMissingEmbedding(ctx, 10)
	require.NoError(t, err)
	assert.Empty(t, missing, "embedded insights drop out of the backfill set")
}

// =============================================================================
// DEDUP WINDOW ENTRIES
// =============================================================================

func TestDedupEntryRoundTrip(t *testing.T) {
	ctx := freshDB(t)
	now := time.Now()

	entry := models.DedupEntry{
		Signature:  "sig-live",
		InsightID:  "abc123",
		Confidence: 0.7,
		ExpiresAt:  now.Add(time.Hour),
	}
	require.NoError(t, testDB.SaveDedupEntry(ctx, entry))
	require.NoError(t, testDB.SaveDedupEntry(ctx, models.DedupEntry{
		Signature:  "sig-expired",
		InsightID:  "def456",
		Confidence: 0.5,
		ExpiresAt:  now.Add(-time.Hour),
	}))

	live, err := testDB.LoadDedupEntries(ctx, now)
	require.NoError(t, err)
	require.Len(t, live, 1, "expired entries are not loaded")
	assert.Equal(t, "sig-live", live[0].Signature)
	assert.Equal(t, "abc123", live[0].InsightID)

	// Upsert by signature replaces rather than duplicates.
	entry.Confidence = 0.74
	require.NoError(t, testDB.SaveDedupEntry(ctx, entry))
	live, err = testDB.LoadDedupEntries(ctx, now)
	require.NoError(t, err)
	require.Len(t, live, 1)
	assert.InDelta(t, 0.74, live[0].Confidence, 1e-9)

	deleted, err := testDB.DeleteExpiredDedupEntries(ctx, now)
	require.NoError(t, err)
	assert.Equal(t, 1, deleted)
}

// =============================================================================
// PROCESSING QUEUE
// =============================================================================

func TestQueueLifecycle(t *testing.T) {
	ctx := freshDB(t)

	item, err := testDB.EnqueueItem(ctx, "mem123", models.TaskPatternDetection)
	require.NoError(t, err)
	assert.Equal(t, models.QueueStatusPending, item.Status)
	assert.Equal(t, 0, item.Attempts)

	id := models.MustRecordIDString(item.ID)

	pending, err := testDB.ListQueueItems(ctx, models.QueueStatusPending, 10)
	require.NoError(t, err)
	require.Len(t, pending, 1)

	require.NoError(t, testDB.SetQueueItemStatus(ctx, id, models.QueueStatusRetry))
	retrying, err := testDB.ListQueueItems(ctx, models.QueueStatusRetry, 10)
	require.NoError(t, err)
	require.Len(t, retrying, 1)
	assert.Equal(t, 1, retrying[0].Attempts, "retry bumps the attempt counter")

	require.NoError(t, testDB.SetQueueItemStatus(ctx, id, models.QueueStatusCompleted))

	pruned, err := testDB.PruneQueueItems(ctx, time.Now().Add(time.Hour))
	require.NoError(t, err)
	assert.Equal(t, 1, pruned)
}

// =============================================================================
// SETTINGS AND ANALYTICS
// =============================================================================

func TestSettingsRoundTrip(t *testing.T) {
	ctx := freshDB(t)

	absent, err := testDB.GetSetting(ctx, "nope")
	require.NoError(t, err)
	assert.Nil(t, absent)

	require.NoError(t, testDB.PutSetting(ctx, "pipeline_paused", "true", "pipeline"))
	got, err := testDB.GetSetting(ctx, "pipeline_paused")
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.Equal(t, "true", got.Value)

	// Upsert by key.
	require.NoError(t, testDB.PutSetting(ctx, "pipeline_paused", "false", "pipeline"))
	got, err = testDB.GetSetting(ctx, "pipeline_paused")
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.Equal(t, "false", got.Value)
}

func TestCreateAnalyticsSnapshot(t *testing.T) {
	ctx := freshDB(t)

	err := testDB.CreateAnalyticsSnapshot(ctx, models.AnalyticsSnapshot{
		InsightsTotal:    3,
		InsightsByType:   map[string]int{"pattern": 2, "lesson": 1},
		MemoriesByStatus: map[string]int{"ready": 5},
	})
	require.NoError(t, err)
}

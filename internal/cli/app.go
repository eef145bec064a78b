package cli

import (
	"context"
	"fmt"
	"time"

	"github.com/raphaelgruber/insightd-go/internal/config"
	"github.com/raphaelgruber/insightd-go/internal/insight"
	"github.com/raphaelgruber/insightd-go/internal/llm"
	"github.com/raphaelgruber/insightd-go/internal/metrics"
	"github.com/raphaelgruber/insightd-go/internal/models"
	"github.com/raphaelgruber/insightd-go/internal/scheduler"
)

// Job ids, shared by serve, jobs and trigger paths.
const (
	jobInsights  = "insights"
	jobSweep     = "dedup-sweep"
	jobCleanup   = "cleanup"
	jobBackfill  = "embedding-backfill"
	jobAnalytics = "analytics-snapshot"
)

// pausedSettingKey is a record-store kill switch for the batch pipeline,
// togglable at runtime without a restart.
const pausedSettingKey = "pipeline_paused"

// app bundles the assembled processing components behind the CLI commands.
type app struct {
	pipeline  *insight.Pipeline
	dedup     *insight.Deduplicator
	embedder  *llm.Embedder
	settings  *config.SettingsStore
	collector *metrics.Collector
}

// buildApp assembles the pipeline from global config and the connected
// database client. The dedup window is reloaded from persisted entries.
func buildApp(ctx context.Context) (*app, error) {
	model, err := llm.NewModel(ctx, cfg)
	if err != nil {
		return nil, fmt.Errorf("init model: %w", err)
	}
	embedder, err := llm.NewEmbedder(cfg)
	if err != nil {
		return nil, fmt.Errorf("init embedder: %w", err)
	}

	registry := insight.NewRegistry()
	categorize := insight.NewCategorizeProcessor(model)
	if err := registry.Register(categorize); err != nil {
		return nil, err
	}
	if err := registry.Register(insight.NewDecisionProcessor(model)); err != nil {
		return nil, err
	}
	registry.SetDefault(categorize)

	dedup := insight.NewDeduplicator(cfg.DedupWindow, logger, insight.WithDedupStore(dbClient))
	if err := dedup.LoadWindow(ctx); err != nil {
		return nil, fmt.Errorf("load dedup window: %w", err)
	}

	collector := metrics.NewCollector()
	pipeline := insight.NewPipeline(
		dbClient,
		registry,
		dedup,
		insight.Gate{MinConfidence: cfg.MinConfidence, RequireValidation: cfg.RequireValidation},
		insight.Config{
			BatchSize:      cfg.BatchSize,
			MaxConcurrent:  cfg.MaxConcurrent,
			MaxAttempts:    cfg.MaxAttempts,
			RelateInsights: cfg.RelateInsights,
		},
		logger,
		insight.WithCollector(collector),
	)

	return &app{
		pipeline:  pipeline,
		dedup:     dedup,
		embedder:  embedder,
		settings:  config.NewSettingsStore(dbClient, cfg.SettingsTTL),
		collector: collector,
	}, nil
}

// registerJobs wires the five maintenance jobs into a scheduler.
func (a *app) registerJobs(s *scheduler.Scheduler) error {
	specs := []scheduler.JobSpec{
		{
			ID:          jobInsights,
			Name:        "Insight extraction",
			Description: "Batch-process pending and retryable memories into insights",
			Interval:    cfg.InsightInterval,
			Enabled:     true,
			Handler:     a.runInsights,
		},
		{
			ID:          jobSweep,
			Name:        "Dedup window sweep",
			Description: "Evict expired signature entries from memory and the store",
			Interval:    cfg.SweepInterval,
			Enabled:     true,
			Handler:     a.runSweep,
		},
		{
			ID:          jobCleanup,
			Name:        "Cleanup",
			Description: "Archive stale insights and prune settled queue items",
			Interval:    cfg.CleanupInterval,
			Enabled:     true,
			Handler:     a.runCleanup,
		},
		{
			ID:          jobBackfill,
			Name:        "Embedding backfill",
			Description: "Vectorize insights persisted without an embedding",
			Interval:    cfg.BackfillInterval,
			Enabled:     true,
			Handler:     a.runBackfill,
		},
		{
			ID:          jobAnalytics,
			Name:        "Analytics snapshot",
			Description: "Persist aggregate counts and log runtime timings",
			Interval:    cfg.AnalyticsInterval,
			Enabled:     true,
			Handler:     a.runAnalytics,
		},
	}

	for _, spec := range specs {
		if err := s.Register(spec); err != nil {
			return err
		}
	}
	return nil
}

func (a *app) runInsights(ctx context.Context) error {
	if a.settings.IsFeatureEnabled(ctx, pausedSettingKey) {
		logger.Info("batch pass skipped: pipeline paused via setting", "key", pausedSettingKey)
		return nil
	}
	_, err := a.pipeline.ProcessUnprocessed(ctx)
	return err
}

func (a *app) runSweep(ctx context.Context) error {
	evicted, err := a.dedup.Sweep(ctx)
	if err != nil {
		return err
	}
	logger.Info("dedup window swept", "evicted", evicted, "remaining", a.dedup.Size())
	return nil
}

func (a *app) runCleanup(ctx context.Context) error {
	cutoff := time.Now().AddDate(0, 0, -cfg.ArchiveAfterDays)

	archived, err := dbClient.ArchiveInsightsBefore(ctx, cutoff)
	if err != nil {
		return err
	}
	pruned, err := dbClient.PruneQueueItems(ctx, cutoff)
	if err != nil {
		return err
	}

	logger.Info("cleanup complete", "archived", archived, "queue_pruned", pruned)
	return nil
}

func (a *app) runBackfill(ctx context.Context) error {
	missing, err := dbClient.ListInsightsMissingEmbedding(ctx, cfg.BatchSize)
	if err != nil {
		return err
	}
	if len(missing) == 0 {
		return nil
	}

	done := 0
	for _, ins := range missing {
		id, err := models.RecordIDString(ins.ID)
		if err != nil {
			logger.Warn("backfill skipped insight with odd id", "error", err)
			continue
		}

		// Embed the identity fields plus content so near-identical
		// conclusions land close together in vector space.
		text := fmt.Sprintf("%s %s %s\n%s", ins.Type, ins.Category, ins.Subcategory, ins.Content)

		start := time.Now()
		vector, err := a.embedder.Embed(ctx, text)
		a.collector.RecordTiming(metrics.OpEmbedding, time.Since(start))
		if err != nil {
			// One bad embed does not block the rest of the batch.
			logger.Warn("embedding failed", "insight_id", id, "error", err)
			continue
		}

		if err := dbClient.SetInsightEmbedding(ctx, id, vector); err != nil {
			return err
		}
		done++
	}

	logger.Info("embedding backfill complete", "embedded", done, "candidates", len(missing))
	return nil
}

func (a *app) runAnalytics(ctx context.Context) error {
	byType, err := dbClient.CountInsightsByType(ctx)
	if err != nil {
		return err
	}
	byStatus, err := dbClient.CountMemoriesByStatus(ctx)
	if err != nil {
		return err
	}

	total := 0
	for _, n := range byType {
		total += n
	}

	if err := dbClient.CreateAnalyticsSnapshot(ctx, models.AnalyticsSnapshot{
		InsightsTotal:    total,
		InsightsByType:   byType,
		MemoriesByStatus: byStatus,
	}); err != nil {
		return err
	}

	snap := a.collector.Snapshot()
	logger.Info("analytics snapshot taken",
		"insights_total", total,
		"uptime_s", int(snap.UptimeSeconds),
		"batches", opCount(snap.Batch),
		"inferences", opCount(snap.Inference),
		"embeddings", opCount(snap.Embedding))
	return nil
}

func opCount(op *metrics.OperationSnapshot) int64 {
	if op == nil {
		return 0
	}
	return op.Count
}

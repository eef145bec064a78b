package insight

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/raphaelgruber/insightd-go/internal/llm"
	"github.com/raphaelgruber/insightd-go/internal/metrics"
	"github.com/raphaelgruber/insightd-go/internal/models"
)

// Config tunes the pipeline and its batch driver.
type Config struct {
	BatchSize      int
	MaxConcurrent  int
	MaxAttempts    int
	RelateInsights bool
	RelatedLimit   int
}

// MemoryResult is the per-record outcome of one pipeline pass.
type MemoryResult struct {
	MemoryID string
	Accepted int
	Merged   int
	Rejected int
}

// BatchResult aggregates one batch pass. AlreadyRunning reports that the pass
// was skipped because another batch held the re-entrancy guard; the zero
// counts then mean "nothing attempted", not "nothing eligible".
type BatchResult struct {
	AlreadyRunning bool
	Processed      int
	Accepted       int
	Merged         int
	Rejected       int
	Failed         int
	Duration       time.Duration
}

// ResultListener observes per-record outcomes. Called synchronously from
// batch workers; implementations must be fast.
type ResultListener func(MemoryResult)

// Pipeline routes memory records through detection, the quality gate, the
// dedup window and persistence. Safe for concurrent use.
type Pipeline struct {
	store     Store
	registry  *Registry
	gate      Gate
	dedup     *Deduplicator
	cfg       Config
	log       *slog.Logger
	collector *metrics.Collector
	listeners []ResultListener

	batchRunning atomic.Bool
}

// PipelineOption configures a Pipeline.
type PipelineOption func(*Pipeline)

// WithCollector wires runtime timing metrics.
func WithCollector(c *metrics.Collector) PipelineOption {
	return func(p *Pipeline) { p.collector = c }
}

// WithResultListener adds a per-record outcome observer.
func WithResultListener(l ResultListener) PipelineOption {
	return func(p *Pipeline) { p.listeners = append(p.listeners, l) }
}

// NewPipeline assembles a pipeline from its collaborators.
func NewPipeline(store Store, registry *Registry, dedup *Deduplicator, gate Gate, cfg Config, log *slog.Logger, opts ...PipelineOption) *Pipeline {
	if log == nil {
		log = slog.Default()
	}
	if cfg.RelatedLimit <= 0 {
		cfg.RelatedLimit = 5
	}
	p := &Pipeline{
		store:    store,
		registry: registry,
		gate:     gate,
		dedup:    dedup,
		cfg:      cfg,
		log:      log,
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// ProcessMemory runs one record through the full pipeline. On success the
// record lands in ready even when every candidate was rejected. On error the
// record's attempt counter advances toward permanent failure, except for
// storage errors before processing began.
func (p *Pipeline) ProcessMemory(ctx context.Context, rec models.MemoryRecord) (MemoryResult, error) {
	id, err := models.RecordIDString(rec.ID)
	if err != nil {
		return MemoryResult{}, fmt.Errorf("process memory: %w", err)
	}
	result := MemoryResult{MemoryID: id}

	if err := p.store.SetMemoryStatus(ctx, id, models.MemoryStatusProcessing); err != nil {
		return result, fmt.Errorf("process memory %s: %w", id, err)
	}

	proc, err := p.registry.Resolve(rec.Type)
	if err != nil {
		return result, p.fail(ctx, id, err)
	}

	detectStart := time.Now()
	candidates, err := proc.Detect(ctx, rec)
	if p.collector != nil {
		p.collector.RecordTiming(metrics.OpInference, time.Since(detectStart))
	}
	if err != nil {
		return result, p.fail(ctx, id, fmt.Errorf("detect via %s: %w", proc.Name(), err))
	}

	for _, cand := range candidates {
		if cand.MemoryID == "" {
			cand.MemoryID = id
		}

		status, ok, reason := p.gate.Check(cand)
		if !ok {
			result.Rejected++
			p.log.Debug("candidate rejected", "memory_id", id, "type", cand.Type, "reason", reason)
			continue
		}

		sig := Signature(cand)
		if entry, dup := p.dedup.Lookup(sig); dup {
			merged := MergeConfidence(entry.Confidence, cand.Confidence)
			if err := p.store.MergeInsightConfidence(ctx, entry.InsightID, merged); err != nil {
				return result, p.fail(ctx, id, fmt.Errorf("merge insight %s: %w", entry.InsightID, err))
			}
			if err := p.dedup.Remember(ctx, sig, entry.InsightID, merged); err != nil {
				p.log.Warn("dedup entry not persisted", "signature", sig, "error", err)
			}
			result.Merged++
			p.log.Debug("candidate merged", "memory_id", id, "insight_id", entry.InsightID, "confidence", merged)
			continue
		}

		created, err := p.store.CreateInsight(ctx, models.InsightInput{
			Type:             cand.Type,
			Category:         cand.Category,
			Subcategory:      cand.Subcategory,
			Confidence:       cand.Confidence,
			Content:          cand.Content,
			Signature:        sig,
			Source:           models.SourceMemory,
			Entities:         cand.Entities,
			Technologies:     cand.Technologies,
			MemoryID:         cand.MemoryID,
			ValidationStatus: status,
		})
		if err != nil {
			return result, p.fail(ctx, id, fmt.Errorf("create insight: %w", err))
		}

		insightID := models.MustRecordIDString(created.ID)
		if err := p.dedup.Remember(ctx, sig, insightID, cand.Confidence); err != nil {
			p.log.Warn("dedup entry not persisted", "signature", sig, "error", err)
		}
		result.Accepted++

		if p.cfg.RelateInsights {
			p.enrich(ctx, created)
		}
	}

	if err := p.store.SetMemoryStatus(ctx, id, models.MemoryStatusReady); err != nil {
		return result, fmt.Errorf("process memory %s: %w", id, err)
	}

	p.log.Info("memory processed",
		"memory_id", id,
		"accepted", result.Accepted,
		"merged", result.Merged,
		"rejected", result.Rejected)

	for _, l := range p.listeners {
		l(result)
	}
	return result, nil
}

// fail advances the record toward permanent failure and returns the original
// error for the caller's batch accounting.
func (p *Pipeline) fail(ctx context.Context, id string, cause error) error {
	status, err := p.store.MarkMemoryFailed(ctx, id, p.cfg.MaxAttempts)
	if err != nil {
		p.log.Error("failure not recorded", "memory_id", id, "error", err)
		return cause
	}
	if status == models.MemoryStatusFailedPermanent {
		p.log.Warn("memory failed permanently", "memory_id", id, "error", cause)
	} else {
		p.log.Warn("memory failed, will retry", "memory_id", id, "error", cause)
	}
	return cause
}

// enrich attaches related insights sharing a technology. Best-effort: errors
// are logged and never affect the record outcome.
func (p *Pipeline) enrich(ctx context.Context, ins *models.Insight) {
	if len(ins.Technologies) == 0 {
		return
	}
	id := models.MustRecordIDString(ins.ID)

	related, err := p.store.FindRelatedInsights(ctx, ins.Technologies, id, p.cfg.RelatedLimit)
	if err != nil {
		p.log.Warn("relationship lookup failed", "insight_id", id, "error", err)
		return
	}
	if len(related) == 0 {
		return
	}

	relatedIDs := make([]string, 0, len(related))
	for _, r := range related {
		relatedIDs = append(relatedIDs, models.MustRecordIDString(r.ID))
	}
	if err := p.store.SetInsightRelations(ctx, id, relatedIDs); err != nil {
		p.log.Warn("relationship update failed", "insight_id", id, "error", err)
		return
	}
	p.log.Debug("insight enriched", "insight_id", id, "related", len(relatedIDs))
}

// EnqueueMemory creates a durable backlog entry so a capture burst survives a
// restart before the next batch pass drains it.
func (p *Pipeline) EnqueueMemory(ctx context.Context, memoryID string) error {
	_, err := p.store.EnqueueItem(ctx, memoryID, models.TaskPatternDetection)
	if err != nil {
		return fmt.Errorf("enqueue memory %s: %w", memoryID, err)
	}
	return nil
}

// ProcessUnprocessed runs one batch pass: claim queue backlog, select
// eligible records, fan out across at most MaxConcurrent workers, and settle
// the backlog against per-record outcomes. At most one batch runs at a time;
// a concurrent call returns AlreadyRunning without touching any record.
func (p *Pipeline) ProcessUnprocessed(ctx context.Context) (BatchResult, error) {
	if !p.batchRunning.CompareAndSwap(false, true) {
		p.log.Debug("batch pass skipped: already running")
		return BatchResult{AlreadyRunning: true}, nil
	}
	defer p.batchRunning.Store(false)

	// Short run id to correlate the pass's log lines.
	runID := models.NewShortID()
	start := time.Now()
	items := p.claimQueueItems(ctx)

	records, err := p.store.ListProcessableMemories(ctx, p.cfg.BatchSize, p.cfg.MaxAttempts)
	if err != nil {
		// Release the claim so the items are not stranded in processing.
		p.settleQueueItems(ctx, items, map[string]error{})
		return BatchResult{}, fmt.Errorf("batch pass: %w", err)
	}
	if len(records) == 0 {
		p.settleQueueItems(ctx, items, map[string]error{})
		return BatchResult{}, nil
	}

	var (
		processed, accepted, merged, rejected, failed atomic.Int64

		fatal    atomic.Bool
		fatalErr atomic.Value

		outcomesMu sync.Mutex
		outcomes   = make(map[string]error, len(records))
	)

	jobs := make(chan models.MemoryRecord)
	var wg sync.WaitGroup

	workers := min(p.cfg.MaxConcurrent, len(records))
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for rec := range jobs {
				// After a fatal API error further calls cannot succeed.
				// Untouched records stay eligible for a later pass.
				if fatal.Load() {
					continue
				}

				res, err := p.ProcessMemory(ctx, rec)
				processed.Add(1)

				outcomesMu.Lock()
				outcomes[res.MemoryID] = err
				outcomesMu.Unlock()

				if err != nil {
					failed.Add(1)
					if errors.Is(err, llm.ErrFatalAPI) && fatal.CompareAndSwap(false, true) {
						fatalErr.Store(err)
					}
					continue
				}
				accepted.Add(int64(res.Accepted))
				merged.Add(int64(res.Merged))
				rejected.Add(int64(res.Rejected))
			}
		}()
	}

	for _, rec := range records {
		jobs <- rec
	}
	close(jobs)
	wg.Wait()

	p.settleQueueItems(ctx, items, outcomes)

	duration := time.Since(start)
	if p.collector != nil {
		p.collector.RecordTiming(metrics.OpBatch, duration)
	}

	result := BatchResult{
		Processed: int(processed.Load()),
		Accepted:  int(accepted.Load()),
		Merged:    int(merged.Load()),
		Rejected:  int(rejected.Load()),
		Failed:    int(failed.Load()),
		Duration:  duration,
	}

	p.log.Info("batch pass complete",
		"run_id", runID,
		"processed", result.Processed,
		"accepted", result.Accepted,
		"merged", result.Merged,
		"rejected", result.Rejected,
		"failed", result.Failed,
		"duration_ms", duration.Milliseconds())

	if fatal.Load() {
		err, _ := fatalErr.Load().(error)
		return result, fmt.Errorf("batch pass aborted: %w", err)
	}
	return result, nil
}

// claimQueueItems moves pending and retry backlog items to processing so a
// concurrent consumer cannot double-claim them. Best-effort: a storage error
// here only shrinks the claimed set.
func (p *Pipeline) claimQueueItems(ctx context.Context) []models.QueueItem {
	var claimed []models.QueueItem

	for _, status := range []models.QueueStatus{models.QueueStatusPending, models.QueueStatusRetry} {
		items, err := p.store.ListQueueItems(ctx, status, p.cfg.BatchSize)
		if err != nil {
			p.log.Warn("queue claim failed", "status", status, "error", err)
			continue
		}
		for _, item := range items {
			id := models.MustRecordIDString(item.ID)
			if err := p.store.SetQueueItemStatus(ctx, id, models.QueueStatusProcessing); err != nil {
				p.log.Warn("queue item not claimed", "item_id", id, "error", err)
				continue
			}
			claimed = append(claimed, item)
		}
	}
	return claimed
}

// settleQueueItems resolves claimed backlog items against the batch outcomes:
// completed on success, retry until the attempt threshold, failed past it.
// Items whose memory was not reached in this pass terminate if the memory is
// already settled, otherwise they return to pending.
func (p *Pipeline) settleQueueItems(ctx context.Context, items []models.QueueItem, outcomes map[string]error) {
	for _, item := range items {
		id := models.MustRecordIDString(item.ID)

		procErr, reached := outcomes[item.MemoryID]
		var status models.QueueStatus
		switch {
		case !reached:
			status = p.staleStatus(ctx, item.MemoryID)
		case procErr == nil:
			status = models.QueueStatusCompleted
		case item.Attempts+1 >= p.cfg.MaxAttempts:
			status = models.QueueStatusFailed
		default:
			status = models.QueueStatusRetry
		}

		if err := p.store.SetQueueItemStatus(ctx, id, status); err != nil {
			p.log.Warn("queue item not settled", "item_id", id, "status", status, "error", err)
		}
	}
}

// staleStatus resolves a claimed item whose memory was not reached in this
// pass. A memory that already settled will never be selected again, so its
// item must terminate here instead of churning through pending forever.
func (p *Pipeline) staleStatus(ctx context.Context, memoryID string) models.QueueStatus {
	memStatus, err := p.store.GetMemoryStatus(ctx, memoryID)
	if err != nil {
		p.log.Warn("stale queue check failed", "memory_id", memoryID, "error", err)
		return models.QueueStatusPending
	}
	switch memStatus {
	case models.MemoryStatusReady:
		return models.QueueStatusCompleted
	case models.MemoryStatusFailedPermanent:
		return models.QueueStatusCancelled
	}
	return models.QueueStatusPending
}

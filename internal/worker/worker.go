// Package worker provides async batch classification for the Pro tier.
package worker

import (
	"context"
	"encoding/json"
	"log/slog"
	"sync"
	"time"

	"github.com/retail-insights/kestrel/internal/classify"
	"github.com/retail-insights/kestrel/internal/domain"
	"github.com/retail-insights/kestrel/internal/screen"
	"github.com/retail-insights/kestrel/internal/window"
)

// Worker processes ingested record batches asynchronously from the EventBus.
type Worker struct {
	bus     domain.EventBus
	repo    domain.Repository
	engine  *classify.Engine
	screens *screen.Engine
	windows *window.Service

	subscriptions []domain.Subscription
	wg            sync.WaitGroup
	ctx           context.Context
	cancel        context.CancelFunc
}

// Config holds worker configuration.
type Config struct {
	// TenantIDs is the list of tenants to process (empty = all via wildcard if supported)
	TenantIDs []string
}

// NewWorker creates a new async worker.
func NewWorker(bus domain.EventBus, repo domain.Repository, engine *classify.Engine, screens *screen.Engine, windows *window.Service) *Worker {
	ctx, cancel := context.WithCancel(context.Background())
	return &Worker{
		bus:     bus,
		repo:    repo,
		engine:  engine,
		screens: screens,
		windows: windows,
		ctx:     ctx,
		cancel:  cancel,
	}
}

// Start begins processing batches for the given tenants.
func (w *Worker) Start(cfg Config) error {
	if len(cfg.TenantIDs) == 0 {
		return w.startGlobalWorker()
	}

	for _, tenantID := range cfg.TenantIDs {
		if err := w.startTenantWorker(tenantID); err != nil {
			slog.Error("failed to start worker for tenant",
				"tenant_id", tenantID,
				"error", err,
			)
			continue
		}
	}

	slog.Info("workers started",
		"tenant_count", len(cfg.TenantIDs),
	)

	return nil
}

// startGlobalWorker starts a worker that processes all tenants (for testing/dev).
func (w *Worker) startGlobalWorker() error {
	sub, err := w.bus.Subscribe(w.ctx, "_global", domain.TopicBatchIngested, w.handleMessage)
	if err != nil {
		return err
	}
	w.subscriptions = append(w.subscriptions, sub)

	slog.Info("global worker started")
	return nil
}

// startTenantWorker starts workers for a specific tenant.
func (w *Worker) startTenantWorker(tenantID string) error {
	sub, err := w.bus.Subscribe(w.ctx, tenantID, domain.TopicBatchIngested, func(ctx context.Context, msg *domain.Message) error {
		return w.processBatch(ctx, tenantID, msg)
	})
	if err != nil {
		return err
	}
	w.subscriptions = append(w.subscriptions, sub)

	slog.Info("tenant worker started",
		"tenant_id", tenantID,
		"topic", domain.TopicBatchIngested,
	)

	return nil
}

// handleMessage handles messages from the global subscription.
func (w *Worker) handleMessage(ctx context.Context, msg *domain.Message) error {
	return w.processBatch(ctx, msg.TenantID, msg)
}

// BatchMessage is the message payload for async batch classification.
type BatchMessage struct {
	BatchID  string                      `json:"batchId"`
	TenantID string                      `json:"tenantId"`
	TraceID  string                      `json:"traceId"`
	Records  []*domain.TransactionRecord `json:"records"`
}

// BatchResult is published on the completion topic.
type BatchResult struct {
	BatchID           string   `json:"batchId"`
	TenantID          string   `json:"tenantId"`
	Classified        int      `json:"classified"`
	SalesRows         int      `json:"salesRows"`
	ReturnRows        int      `json:"returnRows"`
	ClassificationIDs []string `json:"classificationIds"`
}

// processBatch classifies one ingested batch through the pipeline.
func (w *Worker) processBatch(ctx context.Context, tenantID string, msg *domain.Message) error {
	start := time.Now()

	var batch BatchMessage
	if err := json.Unmarshal(msg.Payload, &batch); err != nil {
		slog.Error("failed to parse batch message",
			"message_id", msg.ID,
			"error", err,
		)
		return err
	}

	// Use message tenant if provided
	if batch.TenantID != "" {
		tenantID = batch.TenantID
	}

	traceID := batch.TraceID
	if traceID == "" {
		traceID = msg.ID
	}

	slog.Debug("processing batch",
		"batch_id", batch.BatchID,
		"tenant_id", tenantID,
		"records", len(batch.Records),
		"trace_id", traceID,
	)

	// 1. Aggregate over the tenant's full returns partition, not just
	// this batch: window aggregates are global over the partition.
	var aggs *window.Aggregates
	if w.windows != nil {
		var err error
		aggs, err = w.windows.ForTenant(ctx, tenantID)
		if err != nil {
			slog.Warn("tenant-wide aggregates unavailable, falling back to batch-local",
				"batch_id", batch.BatchID,
				"error", err,
			)
			aggs = nil
		}
	}

	// 2. Classify
	classifications, err := w.engine.ClassifyBatch(ctx, &classify.BatchInput{
		TenantID:   tenantID,
		TraceID:    traceID,
		Records:    batch.Records,
		Aggregates: aggs,
	})
	if err != nil {
		slog.Error("batch classification failed",
			"batch_id", batch.BatchID,
			"error", err,
		)
		return err
	}

	// 3. Screen labeled rows and persist
	result := BatchResult{
		BatchID:  batch.BatchID,
		TenantID: tenantID,
	}

	for i, c := range classifications {
		rec := batch.Records[i]

		if w.screens != nil && w.screens.ScreensCount() > 0 {
			c.ScreenResults = w.screens.EvaluateAll(ctx, rec, c)
			c.Metadata.ScreensEvaluated = len(c.ScreenResults)
			c.Metadata.ScreensMatched = screen.MatchedCount(c.ScreenResults)
		}

		if w.repo != nil {
			if err := w.repo.SaveClassification(ctx, tenantID, c); err != nil {
				slog.Error("failed to save classification",
					"record_id", c.RecordID,
					"error", err,
				)
			}
		}

		if screen.ShouldAlert(c.ScreenResults) {
			alertPayload, _ := json.Marshal(c)
			if err := w.bus.Publish(ctx, tenantID, domain.TopicScreenAlert, alertPayload); err != nil {
				slog.Error("failed to publish screen alert",
					"record_id", c.RecordID,
					"error", err,
				)
			}
		}

		result.ClassificationIDs = append(result.ClassificationIDs, c.ID)
		switch c.Partition {
		case domain.PartitionSales:
			result.SalesRows++
		case domain.PartitionReturns:
			result.ReturnRows++
		}
	}
	result.Classified = len(classifications)

	// 4. Publish completion
	resultPayload, _ := json.Marshal(result)
	if err := w.bus.Publish(ctx, tenantID, domain.TopicClassificationComplete, resultPayload); err != nil {
		slog.Error("failed to publish batch result",
			"batch_id", batch.BatchID,
			"error", err,
		)
	}

	slog.Info("batch processed",
		"batch_id", batch.BatchID,
		"tenant_id", tenantID,
		"classified", result.Classified,
		"sales_rows", result.SalesRows,
		"return_rows", result.ReturnRows,
		"duration_ms", time.Since(start).Milliseconds(),
	)

	return nil
}

// Stop gracefully stops all workers.
func (w *Worker) Stop() error {
	w.cancel()

	// Unsubscribe all
	for _, sub := range w.subscriptions {
		if err := sub.Unsubscribe(); err != nil {
			slog.Error("failed to unsubscribe",
				"topic", sub.Topic(),
				"error", err,
			)
		}
	}
	w.subscriptions = nil

	w.wg.Wait()

	slog.Info("workers stopped")
	return nil
}

// Stats returns worker statistics.
type Stats struct {
	SubscriptionCount int      `json:"subscriptionCount"`
	Topics            []string `json:"topics"`
}

// GetStats returns current worker statistics.
func (w *Worker) GetStats() Stats {
	topics := make([]string, len(w.subscriptions))
	for i, sub := range w.subscriptions {
		topics[i] = sub.Topic()
	}
	return Stats{
		SubscriptionCount: len(w.subscriptions),
		Topics:            topics,
	}
}

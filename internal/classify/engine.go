package classify

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/retail-insights/kestrel/internal/domain"
	"github.com/retail-insights/kestrel/internal/window"
)

// EngineVersion is recorded in classification metadata.
const EngineVersion = "kestrel-1.0"

// Engine labels batches of transaction records. Per-row work is
// embarrassingly parallel; the only serialization point is the window
// aggregate reduce over the returns partition, which completes before
// any return row is evaluated.
type Engine struct {
	maxWorkers int
}

// NewEngine creates a new classification engine.
func NewEngine(maxWorkers int) *Engine {
	if maxWorkers <= 0 {
		maxWorkers = 10
	}
	return &Engine{maxWorkers: maxWorkers}
}

// BatchInput holds one batch of records to classify.
type BatchInput struct {
	TenantID string
	TraceID  string
	Records  []*domain.TransactionRecord

	// Aggregates, when set, are used instead of reducing the batch's own
	// returns partition. The async worker passes tenant-wide aggregates
	// here so labels reflect the customer's full history.
	Aggregates *window.Aggregates
}

// ClassifyBatch labels every record in the batch. The result slice is
// index-aligned with input.Records. Malformed records fail the whole
// batch: partial labeling would silently skew downstream aggregates.
func (e *Engine) ClassifyBatch(ctx context.Context, input *BatchInput) ([]*domain.Classification, error) {
	start := time.Now()

	for i, rec := range input.Records {
		if err := rec.Validate(); err != nil {
			return nil, fmt.Errorf("record %d (%s): %w", i, rec.ID, err)
		}
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	// Phase 1: reduce window aggregates over the returns partition.
	aggStart := time.Now()
	aggs := input.Aggregates
	if aggs == nil {
		returns := make([]*domain.TransactionRecord, 0, len(input.Records))
		for _, rec := range input.Records {
			if rec.Partition() == domain.PartitionReturns {
				returns = append(returns, rec)
			}
		}
		aggs = window.Compute(returns)
	}
	aggregateMs := time.Since(aggStart).Milliseconds()

	// Phase 2: per-row evaluation, fully parallel and read-only.
	classifyStart := time.Now()
	results := make([]*domain.Classification, len(input.Records))
	errs := make([]error, len(input.Records))

	var wg sync.WaitGroup
	sem := make(chan struct{}, e.maxWorkers)

	for i, rec := range input.Records {
		wg.Add(1)
		go func(idx int, r *domain.TransactionRecord) {
			defer wg.Done()

			sem <- struct{}{}        // Acquire
			defer func() { <-sem }() // Release

			results[idx], errs[idx] = e.classifyRecord(r, aggs, input.TraceID)
		}(i, rec)
	}

	wg.Wait()

	for i, err := range errs {
		if err != nil {
			return nil, fmt.Errorf("record %d (%s): %w", i, input.Records[i].ID, err)
		}
	}

	classifyMs := time.Since(classifyStart).Milliseconds()
	totalMs := time.Since(start).Milliseconds()

	for _, c := range results {
		c.Metadata.AggregateMs = aggregateMs
		c.Metadata.ClassifyMs = classifyMs
		c.Metadata.TotalMs = totalMs
	}

	return results, nil
}

// classifyRecord labels one record against precomputed aggregates.
func (e *Engine) classifyRecord(rec *domain.TransactionRecord, aggs *window.Aggregates, traceID string) (*domain.Classification, error) {
	c := &domain.Classification{
		ID:        uuid.New().String(),
		TenantID:  rec.TenantID,
		RecordID:  rec.ID,
		Partition: rec.Partition(),
		Timestamp: time.Now().UTC(),
		Metadata: domain.ClassificationMetadata{
			TraceID:       traceID,
			EngineVersion: EngineVersion,
		},
	}

	switch c.Partition {
	case domain.PartitionSales:
		labels, err := Sale(rec)
		if err != nil {
			return nil, err
		}
		c.Sales = &labels
	case domain.PartitionReturns:
		labels := returnLabels(rec, aggs)
		c.Returns = &labels
	}

	return c, nil
}

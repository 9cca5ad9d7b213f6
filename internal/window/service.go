package window

import (
	"context"
	"fmt"
	"time"

	"github.com/retail-insights/kestrel/internal/domain"
)

// Service computes window aggregates from stored return rows. It is the
// repository-backed counterpart to Compute: the async worker uses it to
// aggregate over a tenant's full returns partition, not just one batch.
type Service struct {
	repo  domain.Repository
	cache domain.Cache

	// snapshotTTL bounds how long cached per-customer snapshots stay valid.
	snapshotTTL time.Duration
}

// NewService creates a new window aggregate service.
func NewService(repo domain.Repository, cache domain.Cache, snapshotTTL time.Duration) *Service {
	if snapshotTTL <= 0 {
		snapshotTTL = 5 * time.Minute
	}
	return &Service{
		repo:        repo,
		cache:       cache,
		snapshotTTL: snapshotTTL,
	}
}

// ForTenant loads the tenant's full returns partition and reduces it.
// Per-customer snapshots are written through to the cache for audit
// lookups.
func (s *Service) ForTenant(ctx context.Context, tenantID string) (*Aggregates, error) {
	if tenantID == "" {
		return nil, fmt.Errorf("tenantID is required")
	}
	if s.repo == nil {
		return nil, fmt.Errorf("no data source available")
	}

	returns, err := s.repo.ListReturns(ctx, tenantID)
	if err != nil {
		return nil, fmt.Errorf("failed to list returns: %w", err)
	}

	aggs := Compute(returns)

	if s.cache != nil {
		for _, customerID := range aggs.Customers() {
			// Best effort: a cache miss just means recompute later.
			_ = s.cache.SetAggregates(ctx, tenantID, customerID, aggs.Snapshot(customerID), s.snapshotTTL)
		}
	}

	return aggs, nil
}

// CustomerReturnCount returns the lifetime return-row count for one
// customer, from cache when possible.
func (s *Service) CustomerReturnCount(ctx context.Context, tenantID, customerID string) (int, error) {
	if tenantID == "" || customerID == "" {
		return 0, fmt.Errorf("tenantID and customerID are required")
	}

	if s.cache != nil {
		snap, err := s.cache.GetAggregates(ctx, tenantID, customerID)
		if err == nil && snap != nil {
			return snap.ReturnCount, nil
		}
	}

	rows, err := s.repo.ListReturnsByCustomer(ctx, tenantID, customerID, time.Time{})
	if err != nil {
		return 0, fmt.Errorf("failed to get returns: %w", err)
	}
	return len(rows), nil
}

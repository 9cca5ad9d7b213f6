package domain

import (
	"context"
	"time"
)

// Cache defines the interface for caching operations.
// Supports two-phase caching: local LRU (Community) + Redis (Pro).
// All methods require tenantID for strict multi-tenancy isolation.
type Cache interface {
	// Get retrieves a value from cache.
	// Returns nil, nil if key not found.
	Get(ctx context.Context, tenantID string, key string) ([]byte, error)

	// Set stores a value in cache with expiration.
	Set(ctx context.Context, tenantID string, key string, value []byte, ttl time.Duration) error

	// Delete removes a value from cache.
	Delete(ctx context.Context, tenantID string, key string) error

	// GetAggregates retrieves a cached window-aggregate snapshot for a
	// customer's returns.
	GetAggregates(ctx context.Context, tenantID string, customerID string) (*AggregateSnapshot, error)

	// SetAggregates caches a window-aggregate snapshot.
	SetAggregates(ctx context.Context, tenantID string, customerID string, snap *AggregateSnapshot, ttl time.Duration) error

	// IncrementCounter atomically increments a counter and returns new value.
	// Used to track per-customer return volume between full recomputes.
	IncrementCounter(ctx context.Context, tenantID string, key string, window time.Duration) (int64, error)

	// Health check
	Ping(ctx context.Context) error

	// Lifecycle
	Close() error
}

// AggregateSnapshot holds cached window aggregates for one customer.
// DayNet is keyed by calendar day in "2006-01-02" form.
type AggregateSnapshot struct {
	CustomerID  string           `json:"customerId"`
	ReturnCount int              `json:"returnCount"`
	DayNet      map[string]int64 `json:"dayNet"`
	ComputedAt  string           `json:"computedAt"`
}

// CacheConfig holds configuration for cache initialization.
type CacheConfig struct {
	// Type is the cache type: "memory" or "redis"
	Type string

	// Local LRU cache settings (Community tier)
	LocalMaxSize int
	LocalTTL     time.Duration

	// Redis settings (Pro tier)
	RedisAddr     string
	RedisPassword string
	RedisDB       int

	// Two-phase settings
	EnableTwoPhase bool // If true, check local first, then Redis
}

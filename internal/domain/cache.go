package domain

import (
	"context"
	"time"
)

// Cache stores velocity counters and read-through copies of assessments.
// The local LRU serves the Community tier; Redis, optionally fronted by the
// LRU, serves the Pro tier. Every call is scoped to a tenant.
type Cache interface {
	// Get returns nil, nil when the key is missing.
	Get(ctx context.Context, tenantID string, key string) ([]byte, error)
	Set(ctx context.Context, tenantID string, key string, value []byte, ttl time.Duration) error
	Delete(ctx context.Context, tenantID string, key string) error

	// IncrementCounter atomically increments a windowed counter and returns
	// the new value. The window starts at the first increment.
	IncrementCounter(ctx context.Context, tenantID string, key string, window time.Duration) (int64, error)

	Ping(ctx context.Context) error
	Close() error
}

// CacheConfig holds configuration for cache initialization.
type CacheConfig struct {
	// Type is the cache type: "memory" or "redis"
	Type string `json:"type" mapstructure:"type" validate:"oneof=memory redis"`

	// Local LRU settings (Community tier, and L1 of the two-phase cache)
	LocalMaxSize int `json:"localMaxSize" mapstructure:"localmaxsize"`
	LocalTTL     int `json:"localTtl" mapstructure:"localttl"` // seconds

	// Redis settings (Pro tier)
	RedisAddr     string `json:"redisAddr" mapstructure:"redisaddr"`
	RedisPassword string `json:"redisPassword" mapstructure:"redispassword"`
	RedisDB       int    `json:"redisDb" mapstructure:"redisdb"`

	// EnableTwoPhase checks the local LRU before Redis.
	EnableTwoPhase bool `json:"enableTwoPhase" mapstructure:"enabletwophase"`
}

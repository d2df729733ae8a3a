// Package cache provides Redis-based caching for hot read paths with
// graceful degradation. When Redis is unavailable the callers fall back to
// database queries.
package cache

import (
	"context"
	"encoding/json"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"

	"token-trading-engine/config"
	"token-trading-engine/internal/logging"
)

// Key prefixes per cache type
const (
	PrefixLearningParam = "learning:param:%s"
	PrefixPatternPerf   = "perf:%s:%s"
	PrefixTokenPrice    = "token:%s:price"
)

// Default TTLs. Learning params and performance records change on tracker
// cycles, so short TTLs keep the feedback loop responsive.
const (
	ParamTTL = 30 * time.Second
	PerfTTL  = 60 * time.Second
)

const maxFailures = 3

// Service wraps a Redis client with a small circuit breaker. A run of
// failures marks the service unhealthy and operations short-circuit until a
// ping succeeds again.
type Service struct {
	client   *redis.Client
	log      *logging.Logger
	disabled bool

	mu           sync.RWMutex
	healthy      bool
	failureCount int
	lastCheck    time.Time

	checkInterval time.Duration
}

// NewService connects to Redis. A failed initial connection returns the
// service in degraded mode rather than an error; it recovers on its own.
// When Redis is disabled in configuration every operation is a no-op.
func NewService(cfg config.RedisConfig, log *logging.Logger) *Service {
	if !cfg.Enabled {
		log.WithComponent("cache").Info("redis disabled, caching off")
		return &Service{disabled: true, log: log.WithComponent("cache")}
	}

	client := redis.NewClient(&redis.Options{
		Addr:         cfg.Address,
		Password:     cfg.Password,
		DB:           cfg.DB,
		PoolSize:     cfg.PoolSize,
		MinIdleConns: 2,
		MaxRetries:   3,
		DialTimeout:  5 * time.Second,
		ReadTimeout:  3 * time.Second,
		WriteTimeout: 3 * time.Second,
	})

	s := &Service{
		client:        client,
		log:           log.WithComponent("cache"),
		checkInterval: 30 * time.Second,
	}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := client.Ping(ctx).Err(); err != nil {
		s.log.WithError(err).Warn("initial redis connection failed, starting degraded")
		return s
	}

	s.healthy = true
	s.lastCheck = time.Now()
	s.log.Info("redis connected at %s", cfg.Address)
	return s
}

// IsHealthy reports whether Redis is currently usable, re-probing after the
// check interval when unhealthy
func (s *Service) IsHealthy() bool {
	if s.disabled {
		return false
	}

	s.mu.RLock()
	healthy := s.healthy
	lastCheck := s.lastCheck
	s.mu.RUnlock()

	if healthy || time.Since(lastCheck) < s.checkInterval {
		return healthy
	}

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()

	s.mu.Lock()
	defer s.mu.Unlock()
	s.lastCheck = time.Now()
	if err := s.client.Ping(ctx).Err(); err == nil {
		s.healthy = true
		s.failureCount = 0
		s.log.Info("redis connection recovered")
	}
	return s.healthy
}

func (s *Service) recordFailure(err error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.failureCount++
	if s.failureCount >= maxFailures && s.healthy {
		s.healthy = false
		s.lastCheck = time.Now()
		s.log.WithError(err).Warn("redis marked unhealthy after %d failures", s.failureCount)
	}
}

func (s *Service) recordSuccess() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.failureCount = 0
}

// GetJSON reads a key into dest. The bool reports a cache hit.
func (s *Service) GetJSON(ctx context.Context, key string, dest interface{}) bool {
	if !s.IsHealthy() {
		return false
	}

	data, err := s.client.Get(ctx, key).Bytes()
	if err != nil {
		if err != redis.Nil {
			s.recordFailure(err)
		}
		return false
	}
	s.recordSuccess()

	if err := json.Unmarshal(data, dest); err != nil {
		s.log.WithError(err).Warn("corrupt cache entry at %s, dropping", key)
		s.client.Del(ctx, key)
		return false
	}
	return true
}

// SetJSON writes a value under key with a TTL, best effort
func (s *Service) SetJSON(ctx context.Context, key string, value interface{}, ttl time.Duration) {
	if !s.IsHealthy() {
		return
	}

	data, err := json.Marshal(value)
	if err != nil {
		return
	}
	if err := s.client.Set(ctx, key, data, ttl).Err(); err != nil {
		s.recordFailure(err)
		return
	}
	s.recordSuccess()
}

// Invalidate removes keys, best effort
func (s *Service) Invalidate(ctx context.Context, keys ...string) {
	if !s.IsHealthy() || len(keys) == 0 {
		return
	}
	if err := s.client.Del(ctx, keys...).Err(); err != nil {
		s.recordFailure(err)
	}
}

// Close releases the underlying client
func (s *Service) Close() error {
	if s.disabled {
		return nil
	}
	return s.client.Close()
}

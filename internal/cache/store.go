package cache

import (
	"context"
	"fmt"

	"token-trading-engine/internal/database"
)

// CachedRepository layers the cache service over the hot read paths of the
// repository. Every other method passes through via embedding. Writers that
// change a cached value invalidate it so readers never see a stale entry
// longer than one round trip.
type CachedRepository struct {
	*database.Repository
	cache *Service
}

func NewCachedRepository(repo *database.Repository, cache *Service) *CachedRepository {
	return &CachedRepository{Repository: repo, cache: cache}
}

// GetLearningParam serves the adaptive threshold from cache when possible.
// The detector and executor read it on every cycle and signal respectively,
// while the tracker writes it every couple of minutes.
func (c *CachedRepository) GetLearningParam(ctx context.Context, name string, fallback float64) (float64, error) {
	key := fmt.Sprintf(PrefixLearningParam, name)

	var value float64
	if c.cache.GetJSON(ctx, key, &value) {
		return value, nil
	}

	value, err := c.Repository.GetLearningParam(ctx, name, fallback)
	if err != nil {
		return 0, err
	}
	c.cache.SetJSON(ctx, key, value, ParamTTL)
	return value, nil
}

// UpdateLearningParam writes through and invalidates the cached value
func (c *CachedRepository) UpdateLearningParam(ctx context.Context, name string, value float64) error {
	if err := c.Repository.UpdateLearningParam(ctx, name, value); err != nil {
		return err
	}
	c.cache.Invalidate(ctx, fmt.Sprintf(PrefixLearningParam, name))
	return nil
}

// GetPatternPerformance caches per-type performance records, which the
// executor reads for every incoming signal
func (c *CachedRepository) GetPatternPerformance(ctx context.Context, patternType, timeframe string) (*database.PatternPerformance, error) {
	key := fmt.Sprintf(PrefixPatternPerf, patternType, timeframe)

	var perf database.PatternPerformance
	if c.cache.GetJSON(ctx, key, &perf) {
		return &perf, nil
	}

	result, err := c.Repository.GetPatternPerformance(ctx, patternType, timeframe)
	if err != nil {
		return nil, err
	}
	c.cache.SetJSON(ctx, key, result, PerfTTL)
	return result, nil
}

// UpsertPatternPerformance writes through and invalidates the cached record
func (c *CachedRepository) UpsertPatternPerformance(ctx context.Context, perf *database.PatternPerformance) error {
	if err := c.Repository.UpsertPatternPerformance(ctx, perf); err != nil {
		return err
	}
	c.cache.Invalidate(ctx, fmt.Sprintf(PrefixPatternPerf, perf.PatternType, perf.Timeframe))
	return nil
}

// UpdatePatternConfidenceMultiplier writes through and invalidates
func (c *CachedRepository) UpdatePatternConfidenceMultiplier(ctx context.Context, patternType, timeframe string, multiplier float64) error {
	if err := c.Repository.UpdatePatternConfidenceMultiplier(ctx, patternType, timeframe, multiplier); err != nil {
		return err
	}
	c.cache.Invalidate(ctx, fmt.Sprintf(PrefixPatternPerf, patternType, timeframe))
	return nil
}

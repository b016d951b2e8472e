package cache

import (
	"context"
	"fmt"
	"time"
)

// planTTL keeps plan payloads around long enough to cover a full backfill run
const planTTL = 6 * time.Hour

// PlanCache caches provider workout detail payloads so compliance
// re-evaluation does not refetch plans the provider already served.
type PlanCache struct {
	redis *RedisClient
}

// NewPlanCache creates a new plan cache instance
func NewPlanCache(redis *RedisClient) *PlanCache {
	return &PlanCache{
		redis: redis,
	}
}

// GetPlan retrieves a cached plan payload for a workout
// Returns the payload and true if found, nil and false otherwise
func (c *PlanCache) GetPlan(ctx context.Context, workoutID string) (map[string]interface{}, bool) {
	if c.redis == nil {
		return nil, false
	}

	cacheKey := fmt.Sprintf("plan:workout:%s", workoutID)
	var plan map[string]interface{}

	if err := c.redis.Get(ctx, cacheKey, &plan); err != nil {
		return nil, false
	}

	return plan, true
}

// SetPlan caches a plan payload for a workout
func (c *PlanCache) SetPlan(ctx context.Context, workoutID string, plan map[string]interface{}) error {
	if c.redis == nil {
		return fmt.Errorf("redis client not available")
	}

	cacheKey := fmt.Sprintf("plan:workout:%s", workoutID)
	return c.redis.Set(ctx, cacheKey, plan, planTTL)
}

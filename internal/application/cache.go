// internal/application/cache.go
package application

import (
	"context"
	"encoding/json"
	"errors"
	"strconv"
	"time"

	"pmc-registration/internal/models"
	"pmc-registration/internal/workflow"

	"github.com/redis/go-redis/v9"
)

const (
	dashboardPrefix = "dashboard:"
	generationKey   = dashboardPrefix + "generation"
)

// setIfCurrentScript writes a dashboard only while the generation still
// matches the one read before the list was loaded.
var setIfCurrentScript = redis.NewScript(`
local g = redis.call('GET', KEYS[1]) or '0'
if g ~= ARGV[1] then
  return 0
end
redis.call('SET', KEYS[2], ARGV[2], 'PX', ARGV[3])
return 1
`)

// DashboardCache keeps each role's pending list for a short while. Any
// transition drops every role's entry and bumps the generation, so a list
// loaded before the transition is never written back.
type DashboardCache struct {
	redis redis.UniversalClient
	ttl   time.Duration
}

func NewDashboardCache(rdb redis.UniversalClient, ttl time.Duration) *DashboardCache {
	if ttl <= 0 {
		ttl = time.Minute
	}
	return &DashboardCache{redis: rdb, ttl: ttl}
}

// Get reports a miss as (nil, false, nil).
func (c *DashboardCache) Get(ctx context.Context, role workflow.Role) ([]models.ApplicationSummary, bool, error) {
	data, err := c.redis.Get(ctx, dashboardPrefix+string(role)).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, err
	}
	var items []models.ApplicationSummary
	if err := json.Unmarshal(data, &items); err != nil {
		return nil, false, err
	}
	return items, true, nil
}

// Generation is read before loading a list and handed back to Set.
func (c *DashboardCache) Generation(ctx context.Context) (int64, error) {
	gen, err := c.redis.Get(ctx, generationKey).Int64()
	if errors.Is(err, redis.Nil) {
		return 0, nil
	}
	return gen, err
}

// Set stores items unless the cache was invalidated after gen was read.
func (c *DashboardCache) Set(ctx context.Context, role workflow.Role, gen int64, items []models.ApplicationSummary) (bool, error) {
	data, err := json.Marshal(items)
	if err != nil {
		return false, err
	}
	keys := []string{generationKey, dashboardPrefix + string(role)}
	n, err := setIfCurrentScript.Run(ctx, c.redis, keys, strconv.FormatInt(gen, 10), data, c.ttl.Milliseconds()).Int()
	if err != nil {
		return false, err
	}
	return n == 1, nil
}

// InvalidateAll drops every officer dashboard.
func (c *DashboardCache) InvalidateAll(ctx context.Context) error {
	roles := workflow.OfficerRoles()
	keys := make([]string, len(roles))
	for i, r := range roles {
		keys[i] = dashboardPrefix + string(r)
	}
	_, err := c.redis.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.Incr(ctx, generationKey)
		pipe.Del(ctx, keys...)
		return nil
	})
	return err
}

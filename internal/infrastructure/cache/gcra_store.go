package cache

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"threadline/internal/domain/ratelimit"
)

// gcraScript applies one GCRA arrival atomically. Times are unix milliseconds.
// It returns {allowed, tat} where tat is the stored value after the decision.
var gcraScript = redis.NewScript(`
local now = tonumber(ARGV[1])
local emission = tonumber(ARGV[2])
local tolerance = tonumber(ARGV[3])
local tat = tonumber(redis.call('GET', KEYS[1]) or now)
if tat < now then
  tat = now
end
local next_tat = tat + emission
if now < next_tat - tolerance then
  return {0, tat}
end
redis.call('SET', KEYS[1], next_tat, 'PX', math.ceil(next_tat - now) + 1)
return {1, next_tat}
`)

// GCRAStore is the shared ratelimit.StateStore used when several replicas serve traffic.
type GCRAStore struct {
	client redis.UniversalClient
}

var _ ratelimit.StateStore = (*GCRAStore)(nil)

func NewGCRAStore(cache *RedisCache) *GCRAStore {
	return &GCRAStore{client: cache.Client()}
}

func (s *GCRAStore) Admit(ctx context.Context, key string, limit ratelimit.Limit, now time.Time) (ratelimit.Result, error) {
	res, err := gcraScript.Run(ctx, s.client, []string{keyPrefix + "rl:" + key},
		now.UnixMilli(), limit.Emission().Milliseconds(), limit.Tolerance().Milliseconds(),
	).Int64Slice()
	if err != nil {
		return ratelimit.Result{}, fmt.Errorf("run gcra script: %w", err)
	}
	if len(res) != 2 {
		return ratelimit.Result{}, fmt.Errorf("unexpected gcra script reply %v", res)
	}
	return ratelimit.Describe(res[0] == 1, time.UnixMilli(res[1]), now, limit), nil
}

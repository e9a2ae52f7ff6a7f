// Package cache holds the Redis-backed counters and session store.
package cache

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/k1tz03/Forkfall/internal/models"
	"github.com/k1tz03/Forkfall/internal/repository"
)

// One hash per key, one field per bucket. The script prunes, sums, compares
// and increments in a single round trip, which Redis runs atomically.
var incrementAndCheck = redis.NewScript(`
local fields = redis.call('HGETALL', KEYS[1])
local oldest = tonumber(ARGV[1])
local count = 0
for i = 1, #fields, 2 do
  if tonumber(fields[i]) < oldest then
    redis.call('HDEL', KEYS[1], fields[i])
  else
    count = count + tonumber(fields[i + 1])
  end
end
if count >= tonumber(ARGV[3]) then
  return {count, 0}
end
redis.call('HINCRBY', KEYS[1], ARGV[2], 1)
redis.call('EXPIRE', KEYS[1], ARGV[4])
return {count + 1, 1}
`)

type rateCounter struct {
	client redis.UniversalClient
	prefix string
	logger *zap.Logger
}

func NewRateCounter(client redis.UniversalClient, logger *zap.Logger) repository.RateCounter {
	return &rateCounter{client: client, prefix: "rate:", logger: logger}
}

func (c *rateCounter) IncrementAndCheck(ctx context.Context, key string, window models.RateWindow, now time.Time) (int, bool, error) {
	ttl := int64((window.Span + window.Bucket) / time.Second)
	if ttl < 1 {
		ttl = 1
	}
	res, err := incrementAndCheck.Run(ctx, c.client, []string{c.prefix + key},
		window.Oldest(now), window.Index(now), window.Limit, ttl).Int64Slice()
	if err != nil {
		c.logger.Error("Failed to run rate counter script", zap.String("key", key), zap.Error(err))
		return 0, false, err
	}
	if len(res) != 2 {
		return 0, false, fmt.Errorf("rate counter: unexpected reply %v", res)
	}
	return int(res[0]), res[1] == 1, nil
}

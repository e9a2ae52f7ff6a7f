package memory

import (
	"context"
	"hash/maphash"
	"sync"
	"time"

	"github.com/k1tz03/Forkfall/internal/models"
)

const counterShards = 32

type counterShard struct {
	mu      sync.Mutex
	buckets map[string]map[int64]int
}

// RateCounter is a sharded in-process bucket counter. Each key is guarded by
// exactly one shard lock, so check and increment are atomic per key.
type RateCounter struct {
	seed   maphash.Seed
	shards [counterShards]counterShard
}

func NewRateCounter() *RateCounter {
	c := &RateCounter{seed: maphash.MakeSeed()}
	for i := range c.shards {
		c.shards[i].buckets = make(map[string]map[int64]int)
	}
	return c
}

func (c *RateCounter) IncrementAndCheck(_ context.Context, key string, window models.RateWindow, now time.Time) (int, bool, error) {
	shard := &c.shards[maphash.String(c.seed, key)%counterShards]
	shard.mu.Lock()
	defer shard.mu.Unlock()

	buckets, ok := shard.buckets[key]
	if !ok {
		buckets = make(map[int64]int)
		shard.buckets[key] = buckets
	}

	oldest := window.Oldest(now)
	count := 0
	for idx, n := range buckets {
		if idx < oldest {
			delete(buckets, idx)
			continue
		}
		count += n
	}
	if count >= window.Limit {
		return count, false, nil
	}
	buckets[window.Index(now)]++
	return count + 1, true, nil
}

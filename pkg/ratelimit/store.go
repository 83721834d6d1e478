package ratelimit

import (
	"sync"
	"time"

	"github.com/cespare/xxhash/v2"
)

// BucketStore owns TokenBuckets keyed by (endpoint, partition). Acquire
// creates a bucket lazily on first use and never blocks.
type BucketStore interface {
	// Acquire attempts to take one token from the bucket for
	// (endpoint, partition), creating it with the given capacity/period
	// if it doesn't exist yet. It returns true if the token was granted.
	Acquire(endpoint, partition string, capacity int, period time.Duration) bool

	// Close releases any background resources held by the store.
	Close() error
}

const shardCount = 32

// MemoryBucketStore is the default, in-process BucketStore. Buckets are
// sharded by a hash of their key to reduce lock contention, and idle
// buckets (untouched for 2x their configured period) are swept by a
// background ticker — the same sliding-expiration discipline the
// reference corpus's in-memory cache layer uses for TTL eviction.
type MemoryBucketStore struct {
	shards [shardCount]*bucketShard

	sweepInterval time.Duration
	stop          chan struct{}
	wg            sync.WaitGroup
}

type bucketShard struct {
	mu      sync.Mutex
	buckets map[string]*shardedBucket
}

type shardedBucket struct {
	bucket *TokenBucket
	period time.Duration
}

// NewMemoryBucketStore creates a store and starts its background sweeper.
// sweepInterval controls how often idle buckets are checked for eviction;
// callers with many short-lived partitions should keep this small.
func NewMemoryBucketStore(sweepInterval time.Duration) *MemoryBucketStore {
	if sweepInterval <= 0 {
		sweepInterval = 30 * time.Second
	}

	s := &MemoryBucketStore{
		sweepInterval: sweepInterval,
		stop:          make(chan struct{}),
	}
	for i := range s.shards {
		s.shards[i] = &bucketShard{buckets: make(map[string]*shardedBucket)}
	}

	s.wg.Add(1)
	go s.sweep()

	return s
}

// Acquire implements BucketStore.
func (s *MemoryBucketStore) Acquire(endpoint, partition string, capacity int, period time.Duration) bool {
	if capacity <= 0 {
		// RateLimit <= 0 disables the strategy entirely; callers should
		// not reach here, but treat it as always-admit for safety.
		return true
	}

	key := endpoint + "\x00" + partition
	shard := s.shards[shardIndex(key)]

	shard.mu.Lock()
	sb, ok := shard.buckets[key]
	if !ok {
		sb = &shardedBucket{bucket: NewTokenBucket(capacity, period), period: period}
		shard.buckets[key] = sb
	}
	shard.mu.Unlock()

	return sb.bucket.TryAcquire()
}

// Close stops the background sweeper.
func (s *MemoryBucketStore) Close() error {
	close(s.stop)
	s.wg.Wait()
	return nil
}

func (s *MemoryBucketStore) sweep() {
	defer s.wg.Done()

	ticker := time.NewTicker(s.sweepInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			s.evictIdle()
		case <-s.stop:
			return
		}
	}
}

func (s *MemoryBucketStore) evictIdle() {
	now := time.Now()
	for _, shard := range s.shards {
		shard.mu.Lock()
		for key, sb := range shard.buckets {
			if sb.bucket.IdleSince(now) >= 2*sb.period {
				delete(shard.buckets, key)
			}
		}
		shard.mu.Unlock()
	}
}

func shardIndex(key string) int {
	return int(xxhash.Sum64String(key) % shardCount)
}

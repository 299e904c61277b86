package cache

import (
	"container/list"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"sync"
	"time"

	"render-orchestrator/internal/domain/model"
	"render-orchestrator/internal/infra/metrics"
)

const shardCount = 32

// Key derives the canonical cache key from the generation-relevant
// request parameters. Seed is part of the key, so a pinned seed can
// only ever hit an entry produced with that exact seed.
func Key(p model.GenerationParams) string {
	seed := int64(-1)
	if p.Seed != nil {
		seed = *p.Seed
	}
	canonical := fmt.Sprintf("%s|%s|%dx%d|%d|%s|%d|%s",
		p.Prompt, p.NegativePrompt, p.Width, p.Height, p.FrameCount, p.QualityTier, seed, p.ModelName)
	sum := sha256.Sum256([]byte(canonical))
	return hex.EncodeToString(sum[:])
}

// GenerationCache is a bounded LRU over prior outputs. Mutations go
// through key-sharded locks so two concurrent requests for the same
// key cannot both generate: the first becomes the leader, later ones
// wait on the leader's done channel and then consume the stored entry.
type GenerationCache struct {
	shards [shardCount]*shard

	// lru bookkeeping is separate from the shard locks and held only
	// for list/map surgery, never across I/O.
	lruMu      sync.Mutex
	lru        *list.List // front = most recent
	index      map[string]*list.Element
	totalBytes int64
	maxEntries int
	maxBytes   int64

	statsMu sync.Mutex
	stats   model.CacheStats
}

type shard struct {
	mu       sync.Mutex
	inflight map[string]chan struct{} // key -> leader's done channel
}

func New(maxEntries int, maxBytes int64) *GenerationCache {
	c := &GenerationCache{
		lru:        list.New(),
		index:      make(map[string]*list.Element),
		maxEntries: maxEntries,
		maxBytes:   maxBytes,
	}
	for i := range c.shards {
		c.shards[i] = &shard{inflight: make(map[string]chan struct{})}
	}
	return c
}

func (c *GenerationCache) shardFor(key string) *shard {
	// keys are hex sha256; fold the first byte
	var b byte
	if len(key) > 0 {
		b = key[0]
	}
	return c.shards[int(b)%shardCount]
}

// Lookup returns the entry for params, if cached. Requests without a
// pinned seed are never hit-eligible because their output is expected
// to vary run to run.
func (c *GenerationCache) Lookup(params model.GenerationParams) (model.CacheEntry, bool) {
	if !params.SeedPinned() {
		metrics.IncCacheRequest("ineligible")
		return model.CacheEntry{}, false
	}
	return c.lookupKey(Key(params))
}

func (c *GenerationCache) lookupKey(key string) (model.CacheEntry, bool) {
	c.lruMu.Lock()
	defer c.lruMu.Unlock()

	el, ok := c.index[key]
	if !ok {
		c.bumpMiss()
		metrics.IncCacheRequest("miss")
		return model.CacheEntry{}, false
	}
	entry := el.Value.(*model.CacheEntry)
	entry.HitCount++
	entry.LastAccess = time.Now()
	c.lru.MoveToFront(el)
	c.bumpHit()
	metrics.IncCacheRequest("hit")
	return *entry, true
}

// Begin joins the singleflight group for key. The first caller gets
// leader=true and must eventually call Store or Abort; followers get
// a channel that closes when the leader finishes.
func (c *GenerationCache) Begin(key string) (leader bool, done <-chan struct{}) {
	s := c.shardFor(key)
	s.mu.Lock()
	defer s.mu.Unlock()
	if ch, ok := s.inflight[key]; ok {
		return false, ch
	}
	ch := make(chan struct{})
	s.inflight[key] = ch
	return true, ch
}

// Store records the leader's result and releases any followers.
// Eviction runs opportunistically afterwards, off the hot path's
// shard lock.
func (c *GenerationCache) Store(key, outputPath string, seed int64, costMB int, sizeBytes int64) {
	now := time.Now()
	entry := &model.CacheEntry{
		Key:        key,
		OutputPath: outputPath,
		Seed:       seed,
		CostMB:     costMB,
		SizeBytes:  sizeBytes,
		LastAccess: now,
		CreatedAt:  now,
	}

	c.lruMu.Lock()
	if el, ok := c.index[key]; ok {
		old := el.Value.(*model.CacheEntry)
		c.totalBytes -= old.SizeBytes
		c.lru.Remove(el)
		delete(c.index, key)
	}
	c.index[key] = c.lru.PushFront(entry)
	c.totalBytes += sizeBytes
	c.lruMu.Unlock()

	c.release(key)
	c.evictIfNeeded()
	metrics.SetCacheBytes(c.TotalBytes())
}

// Abort releases followers without storing; the next caller becomes a
// fresh leader.
func (c *GenerationCache) Abort(key string) { c.release(key) }

func (c *GenerationCache) release(key string) {
	s := c.shardFor(key)
	s.mu.Lock()
	if ch, ok := s.inflight[key]; ok {
		close(ch)
		delete(s.inflight, key)
	}
	s.mu.Unlock()
}

// evictIfNeeded drops least-recently-used entries until both the entry
// count and byte bounds hold.
func (c *GenerationCache) evictIfNeeded() {
	c.lruMu.Lock()
	defer c.lruMu.Unlock()

	evicted := 0
	for (c.maxEntries > 0 && c.lru.Len() > c.maxEntries) ||
		(c.maxBytes > 0 && c.totalBytes > c.maxBytes) {
		back := c.lru.Back()
		if back == nil {
			break
		}
		entry := back.Value.(*model.CacheEntry)
		c.lru.Remove(back)
		delete(c.index, entry.Key)
		c.totalBytes -= entry.SizeBytes
		evicted++
	}
	if evicted > 0 {
		c.statsMu.Lock()
		c.stats.Evictions += int64(evicted)
		c.statsMu.Unlock()
		metrics.IncCacheEvictions(evicted)
	}
}

func (c *GenerationCache) TotalBytes() int64 {
	c.lruMu.Lock()
	defer c.lruMu.Unlock()
	return c.totalBytes
}

func (c *GenerationCache) Stats() model.CacheStats {
	c.lruMu.Lock()
	entries := c.lru.Len()
	bytes := c.totalBytes
	c.lruMu.Unlock()

	c.statsMu.Lock()
	defer c.statsMu.Unlock()
	s := c.stats
	s.Entries = entries
	s.TotalBytes = bytes
	return s
}

func (c *GenerationCache) bumpHit() {
	c.statsMu.Lock()
	c.stats.Hits++
	c.statsMu.Unlock()
}

func (c *GenerationCache) bumpMiss() {
	c.statsMu.Lock()
	c.stats.Misses++
	c.statsMu.Unlock()
}

//go:build !integration

package cache_test

import (
	"sync"
	"testing"
	"time"

	"render-orchestrator/internal/domain/model"
	"render-orchestrator/internal/infra/cache"
)

func pinned(seed int64, prompt string) model.GenerationParams {
	return model.GenerationParams{
		Width: 768, Height: 768, FrameCount: 1,
		QualityTier: "standard", Prompt: prompt, ModelName: "sdxl",
		Seed: &seed,
	}
}

func TestKey_SeedAndParamsSensitivity(t *testing.T) {
	a := cache.Key(pinned(42, "portrait"))
	if a != cache.Key(pinned(42, "portrait")) {
		t.Fatal("key not deterministic")
	}
	if a == cache.Key(pinned(43, "portrait")) {
		t.Fatal("different seed must change the key")
	}
	if a == cache.Key(pinned(42, "landscape")) {
		t.Fatal("different prompt must change the key")
	}

	unpinned := pinned(42, "portrait")
	unpinned.Seed = nil
	if a == cache.Key(unpinned) {
		t.Fatal("unpinned request must not collide with a pinned key")
	}
}

func TestLookup_UnpinnedNeverHits(t *testing.T) {
	c := cache.New(16, 1<<20)

	params := pinned(7, "portrait")
	c.Store(cache.Key(params), "/out/a.png", 7, 5120, 100)

	unpinned := params
	unpinned.Seed = nil
	if _, ok := c.Lookup(unpinned); ok {
		t.Fatal("unpinned lookup must miss")
	}
	if _, ok := c.Lookup(params); !ok {
		t.Fatal("pinned lookup should hit")
	}
}

func TestLookup_HitUpdatesRecencyAndStats(t *testing.T) {
	c := cache.New(16, 1<<20)
	params := pinned(7, "portrait")
	c.Store(cache.Key(params), "/out/a.png", 7, 5120, 100)

	for i := 0; i < 3; i++ {
		entry, ok := c.Lookup(params)
		if !ok {
			t.Fatal("expected hit")
		}
		if entry.OutputPath != "/out/a.png" {
			t.Fatalf("wrong entry: %+v", entry)
		}
	}
	_, _ = c.Lookup(pinned(99, "missing"))

	stats := c.Stats()
	if stats.Hits != 3 || stats.Misses != 1 {
		t.Fatalf("want hits=3 misses=1, got %+v", stats)
	}
	if stats.Entries != 1 || stats.TotalBytes != 100 {
		t.Fatalf("occupancy wrong: %+v", stats)
	}
}

func TestEviction_ByEntryCount(t *testing.T) {
	c := cache.New(2, 0)

	p1, p2, p3 := pinned(1, "a"), pinned(2, "b"), pinned(3, "c")
	c.Store(cache.Key(p1), "/out/1.png", 1, 0, 10)
	c.Store(cache.Key(p2), "/out/2.png", 2, 0, 10)

	// touch p1 so p2 is the LRU victim
	if _, ok := c.Lookup(p1); !ok {
		t.Fatal("p1 should hit")
	}
	c.Store(cache.Key(p3), "/out/3.png", 3, 0, 10)

	if _, ok := c.Lookup(p2); ok {
		t.Fatal("LRU entry should have been evicted")
	}
	if _, ok := c.Lookup(p1); !ok {
		t.Fatal("recently used entry evicted")
	}
	if _, ok := c.Lookup(p3); !ok {
		t.Fatal("new entry missing")
	}
	if s := c.Stats(); s.Evictions != 1 {
		t.Fatalf("want 1 eviction, got %+v", s)
	}
}

func TestEviction_ByBytes(t *testing.T) {
	c := cache.New(0, 250)

	for i, prompt := range []string{"a", "b", "c"} {
		p := pinned(int64(i), prompt)
		c.Store(cache.Key(p), "/out/x.png", int64(i), 0, 100)
	}

	s := c.Stats()
	if s.TotalBytes > 250 {
		t.Fatalf("byte bound violated: %d", s.TotalBytes)
	}
	if s.Entries != 2 || s.Evictions != 1 {
		t.Fatalf("want 2 entries after evicting oldest, got %+v", s)
	}
	if _, ok := c.Lookup(pinned(0, "a")); ok {
		t.Fatal("oldest entry should be gone")
	}
}

func TestStore_UpsertReplacesBytes(t *testing.T) {
	c := cache.New(16, 1<<20)
	p := pinned(7, "portrait")
	key := cache.Key(p)

	c.Store(key, "/out/v1.png", 7, 0, 100)
	c.Store(key, "/out/v2.png", 7, 0, 300)

	entry, ok := c.Lookup(p)
	if !ok || entry.OutputPath != "/out/v2.png" {
		t.Fatalf("upsert lost: %+v", entry)
	}
	if s := c.Stats(); s.Entries != 1 || s.TotalBytes != 300 {
		t.Fatalf("stale bytes after upsert: %+v", s)
	}
}

func TestSingleflight_OneLeaderManyFollowers(t *testing.T) {
	c := cache.New(16, 1<<20)
	key := cache.Key(pinned(7, "portrait"))

	leader, _ := c.Begin(key)
	if !leader {
		t.Fatal("first Begin must lead")
	}

	const followers = 8
	var wg sync.WaitGroup
	released := make(chan struct{}, followers)
	for i := 0; i < followers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			isLeader, done := c.Begin(key)
			if isLeader {
				t.Error("second Begin must follow")
				return
			}
			select {
			case <-done:
				released <- struct{}{}
			case <-time.After(2 * time.Second):
				t.Error("follower never released")
			}
		}()
	}

	// give followers time to park, then publish the result
	time.Sleep(50 * time.Millisecond)
	c.Store(key, "/out/a.png", 7, 5120, 100)
	wg.Wait()

	if len(released) != followers {
		t.Fatalf("want %d released followers, got %d", followers, len(released))
	}
	if _, ok := c.Lookup(pinned(7, "portrait")); !ok {
		t.Fatal("followers should find the stored entry")
	}
}

func TestSingleflight_AbortHandsOffLeadership(t *testing.T) {
	c := cache.New(16, 1<<20)
	key := cache.Key(pinned(7, "portrait"))

	if leader, _ := c.Begin(key); !leader {
		t.Fatal("expected leadership")
	}
	c.Abort(key)

	// nothing stored; next caller must lead again
	if _, ok := c.Lookup(pinned(7, "portrait")); ok {
		t.Fatal("abort must not store")
	}
	if leader, _ := c.Begin(key); !leader {
		t.Fatal("leadership not released after abort")
	}
}

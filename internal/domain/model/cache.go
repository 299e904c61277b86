package model

import "time"

// CacheEntry stores a previously generated output keyed by the
// canonical hash of the request parameters that produced it.
type CacheEntry struct {
	Key        string
	OutputPath string
	Seed       int64
	CostMB     int
	SizeBytes  int64
	HitCount   int64
	LastAccess time.Time
	CreatedAt  time.Time
}

// CacheStats reports cache performance counters.
type CacheStats struct {
	Entries    int
	TotalBytes int64
	Hits       int64
	Misses     int64
	Evictions  int64
}

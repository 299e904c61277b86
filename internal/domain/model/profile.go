package model

import (
	"fmt"
	"time"
)

// ResourceProfile holds per-render-model memory estimates, bucketed by
// resolution and frame count. Estimates are exponentially smoothed so
// a single outlier sample cannot swing the table.
type ResourceProfile struct {
	ModelName     string
	BucketCostMB  map[string]float64
	LoadLatency   time.Duration
	LastUpdatedAt time.Time
}

func NewResourceProfile(modelName string) *ResourceProfile {
	return &ResourceProfile{
		ModelName:    modelName,
		BucketCostMB: make(map[string]float64),
	}
}

// Bucket maps a resolution/frame-count pair onto a coarse key so
// sparse observations still aggregate.
func Bucket(width, height, frameCount int) string {
	edge := width
	if height > edge {
		edge = height
	}
	var res string
	switch {
	case edge <= 512:
		res = "512"
	case edge <= 768:
		res = "768"
	case edge <= 1024:
		res = "1024"
	default:
		res = "1536"
	}
	if frameCount <= 1 {
		return res + "/1"
	}
	// video buckets step by 16 frames
	step := ((frameCount + 15) / 16) * 16
	return fmt.Sprintf("%s/%d", res, step)
}

// Observe folds a measured peak into the bucket estimate (EWMA).
func (p *ResourceProfile) Observe(bucket string, peakMB float64, alpha float64) {
	if alpha <= 0 || alpha > 1 {
		alpha = 0.2
	}
	prev, ok := p.BucketCostMB[bucket]
	if !ok {
		p.BucketCostMB[bucket] = peakMB
	} else {
		p.BucketCostMB[bucket] = prev + alpha*(peakMB-prev)
	}
	p.LastUpdatedAt = time.Now()
}

// Estimate returns the smoothed cost for a bucket, if observed.
func (p *ResourceProfile) Estimate(bucket string) (float64, bool) {
	v, ok := p.BucketCostMB[bucket]
	return v, ok
}

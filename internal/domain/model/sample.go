package model

import "time"

type Bottleneck string

const (
	BottleneckNominal       Bottleneck = "nominal"
	BottleneckMemoryBound   Bottleneck = "memory-bound"
	BottleneckUnderutilized Bottleneck = "compute-underutilized"
)

// PerformanceSample is one append-only row per terminal job.
type PerformanceSample struct {
	ID           string
	JobID        string
	Kind         JobKind
	Variant      WorkflowVariant
	ModelName    string
	Bucket       string
	QueueWait    time.Duration
	Processing   time.Duration
	Total        time.Duration
	PeakMemoryMB int
	Success      bool
	Bottleneck   Bottleneck
	RecordedAt   time.Time
}

// PerformanceReport aggregates samples over a window.
type PerformanceReport struct {
	Window         time.Duration
	Samples        int
	SuccessRate    float64
	AvgQueueWait   time.Duration
	AvgProcessing  time.Duration
	AvgPeakMemMB   float64
	Classification Bottleneck
}

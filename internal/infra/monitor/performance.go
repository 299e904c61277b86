package monitor

import (
	"context"
	"time"

	"render-orchestrator/internal/domain/model"
	"render-orchestrator/internal/domain/ports/repository"
	"render-orchestrator/internal/infra/metrics"
	"render-orchestrator/internal/usecase"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
)

// classification thresholds
const (
	memoryBoundRatio = 0.9 // avg peak within 90% of budget
	queueWaitRatio   = 1.5 // queue wait this many times processing time
)

// PerformanceMonitor ingests one sample per terminal job and feeds the
// estimator's profile table as a slow-moving average. Samples are
// append-only; aggregation never mutates them.
type PerformanceMonitor struct {
	samples  repository.SampleRepository
	profiles *usecase.ProfileStore
	budgetMB int
	log      *zerolog.Logger
}

func NewPerformanceMonitor(samples repository.SampleRepository, profiles *usecase.ProfileStore, budgetMB int, logger *zerolog.Logger) *PerformanceMonitor {
	l := logger.With().Str("component", "PerformanceMonitor").Logger()
	return &PerformanceMonitor{
		samples:  samples,
		profiles: profiles,
		budgetMB: budgetMB,
		log:      &l,
	}
}

// Record classifies and persists a sample, exports it to prometheus,
// and folds the peak into the resource profile (EWMA, so one outlier
// cannot swing the estimate).
func (m *PerformanceMonitor) Record(ctx context.Context, s *model.PerformanceSample) {
	if s.ID == "" {
		s.ID = uuid.NewString()
	}
	if s.RecordedAt.IsZero() {
		s.RecordedAt = time.Now()
	}
	s.Bottleneck = m.classify(float64(s.PeakMemoryMB), s.QueueWait, s.Processing)

	metrics.ObserveJobPeakMemory(string(s.Kind), string(s.Variant), float64(s.PeakMemoryMB))

	if s.Success && s.ModelName != "" && s.Bucket != "" {
		m.profiles.Observe(s.ModelName, s.Bucket, float64(s.PeakMemoryMB))
	}

	if m.samples != nil {
		if err := m.samples.Insert(ctx, repository.NoTX, s); err != nil {
			m.log.Error().Err(err).Str("job_id", s.JobID).Msg("sample insert failed")
		}
	}
}

// Report aggregates samples in the window and classifies the dominant
// bottleneck over the aggregate.
func (m *PerformanceMonitor) Report(ctx context.Context, window time.Duration) (model.PerformanceReport, error) {
	rows, err := m.samples.ListSince(ctx, repository.NoTX, time.Now().Add(-window))
	if err != nil {
		return model.PerformanceReport{}, err
	}
	report := model.PerformanceReport{Window: window, Samples: len(rows), Classification: model.BottleneckNominal}
	if len(rows) == 0 {
		return report, nil
	}

	var ok int
	var queueWait, processing time.Duration
	var peak float64
	for _, s := range rows {
		if s.Success {
			ok++
		}
		queueWait += s.QueueWait
		processing += s.Processing
		peak += float64(s.PeakMemoryMB)
	}
	n := time.Duration(len(rows))
	report.SuccessRate = float64(ok) / float64(len(rows))
	report.AvgQueueWait = queueWait / n
	report.AvgProcessing = processing / n
	report.AvgPeakMemMB = peak / float64(len(rows))
	report.Classification = m.classify(report.AvgPeakMemMB, report.AvgQueueWait, report.AvgProcessing)
	return report, nil
}

// classify applies the decision rule: near the memory ceiling means
// memory-bound; wall clock dominated by queue wait with the GPU idle
// means compute-underutilized; otherwise nominal.
func (m *PerformanceMonitor) classify(peakMB float64, queueWait, processing time.Duration) model.Bottleneck {
	if m.budgetMB > 0 && peakMB >= memoryBoundRatio*float64(m.budgetMB) {
		return model.BottleneckMemoryBound
	}
	if processing > 0 && float64(queueWait) >= queueWaitRatio*float64(processing) {
		return model.BottleneckUnderutilized
	}
	return model.BottleneckNominal
}

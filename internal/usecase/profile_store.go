package usecase

import (
	"sync"
	"time"

	"render-orchestrator/internal/domain/model"
)

// ProfileStore holds the live ResourceProfile per render model. The
// performance monitor writes smoothed observations; the estimator
// reads them before every submission.
type ProfileStore struct {
	mu       sync.RWMutex
	profiles map[string]*model.ResourceProfile
	alpha    float64
}

func NewProfileStore(alpha float64) *ProfileStore {
	if alpha <= 0 || alpha > 1 {
		alpha = 0.2
	}
	return &ProfileStore{
		profiles: make(map[string]*model.ResourceProfile),
		alpha:    alpha,
	}
}

// Observe folds a measured peak into the model's bucket estimate.
func (s *ProfileStore) Observe(modelName, bucket string, peakMB float64) {
	s.mu.Lock()
	defer s.mu.Unlock()
	p, ok := s.profiles[modelName]
	if !ok {
		p = model.NewResourceProfile(modelName)
		s.profiles[modelName] = p
	}
	p.Observe(bucket, peakMB, s.alpha)
}

// ObserveLoadLatency records the last measured model load latency.
func (s *ProfileStore) ObserveLoadLatency(modelName string, d time.Duration) {
	s.mu.Lock()
	defer s.mu.Unlock()
	p, ok := s.profiles[modelName]
	if !ok {
		p = model.NewResourceProfile(modelName)
		s.profiles[modelName] = p
	}
	p.LoadLatency = d
	p.LastUpdatedAt = time.Now()
}

// Estimate returns the smoothed cost for a model/bucket, if observed.
func (s *ProfileStore) Estimate(modelName, bucket string) (float64, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	p, ok := s.profiles[modelName]
	if !ok {
		return 0, false
	}
	return p.Estimate(bucket)
}

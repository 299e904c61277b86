//go:build !integration

package usecase_test

import (
	"context"
	"sync"

	"github.com/jackc/pgx/v4"
	"github.com/rs/zerolog"

	"render-orchestrator/internal/domain"
	"render-orchestrator/internal/domain/model"
	"render-orchestrator/internal/domain/ports/adapter"
	"render-orchestrator/internal/domain/ports/repository"
	"render-orchestrator/internal/usecase"
)

func testLogger() *zerolog.Logger {
	l := zerolog.Nop()
	return &l
}

// =============================
// Repositories
// =============================

// ---- Mock TransactionManager ----

// MockTxManager serializes callbacks with a mutex, standing in for the
// row lock a real transaction takes via SELECT ... FOR UPDATE.
type MockTxManager struct {
	mu sync.Mutex
}

var _ repository.TransactionManager = (*MockTxManager)(nil)

func (m *MockTxManager) WithTx(ctx context.Context, _ pgx.TxOptions, fn func(ctx context.Context, tx repository.Tx) error) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	return fn(ctx, repository.NoTX)
}

// ---- Mock ReadinessRepository ----

type MockReadinessRepo struct {
	mu   sync.Mutex
	rows map[string]*model.SubjectReadiness

	SaveFunc func(ctx context.Context, tx repository.Tx, r *model.SubjectReadiness) error
}

var _ repository.ReadinessRepository = (*MockReadinessRepo)(nil)

func NewMockReadinessRepo() *MockReadinessRepo {
	return &MockReadinessRepo{rows: make(map[string]*model.SubjectReadiness)}
}

func (m *MockReadinessRepo) Save(ctx context.Context, tx repository.Tx, r *model.SubjectReadiness) error {
	if m.SaveFunc != nil {
		return m.SaveFunc(ctx, tx, r)
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	cp := *r
	m.rows[r.SubjectID] = &cp
	return nil
}

func (m *MockReadinessRepo) FindBySubject(_ context.Context, _ repository.Tx, subjectID string) (*model.SubjectReadiness, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	r, ok := m.rows[subjectID]
	if !ok {
		return nil, domain.ErrNotFound
	}
	cp := *r
	return &cp, nil
}

func (m *MockReadinessRepo) FindBySubjectForUpdate(ctx context.Context, tx repository.Tx, subjectID string) (*model.SubjectReadiness, error) {
	return m.FindBySubject(ctx, tx, subjectID)
}

func (m *MockReadinessRepo) ListAll(context.Context, repository.Tx) ([]*model.SubjectReadiness, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]*model.SubjectReadiness, 0, len(m.rows))
	for _, r := range m.rows {
		cp := *r
		out = append(out, &cp)
	}
	return out, nil
}

// =============================
// Adapters
// =============================

// ---- Mock VisionOracleAdapter ----

type MockOracle struct {
	AssessFunc func(ctx context.Context, outputPath string, referencePaths []string) (model.QualityScore, error)
}

var _ adapter.VisionOracleAdapter = (*MockOracle)(nil)

func (m *MockOracle) Assess(ctx context.Context, outputPath string, referencePaths []string) (model.QualityScore, error) {
	if m.AssessFunc != nil {
		return m.AssessFunc(ctx, outputPath, referencePaths)
	}
	return model.QualityScore{Similarity: 1, Solo: true, Clarity: 1}, nil
}

// ---- Mock AlertNotifier ----

type MockNotifier struct {
	mu   sync.Mutex
	Sent []string
}

var _ adapter.AlertNotifier = (*MockNotifier)(nil)

func (m *MockNotifier) Notify(_ context.Context, text string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.Sent = append(m.Sent, text)
	return nil
}

func (m *MockNotifier) Count() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.Sent)
}

// =============================
// Processor surface
// =============================

// ---- Mock JobQueue ----

type MockJobQueue struct {
	mu       sync.Mutex
	jobs     map[string]*model.Job
	inFlight int

	EnqueueFunc func(job *model.Job) error
}

var _ usecase.JobQueue = (*MockJobQueue)(nil)

func NewMockJobQueue() *MockJobQueue {
	return &MockJobQueue{jobs: make(map[string]*model.Job)}
}

func (m *MockJobQueue) Enqueue(job *model.Job) error {
	if m.EnqueueFunc != nil {
		return m.EnqueueFunc(job)
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.jobs[job.ID] = job
	return nil
}

func (m *MockJobQueue) Get(id string) (model.Job, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	j, ok := m.jobs[id]
	if !ok {
		return model.Job{}, false
	}
	return j.Snapshot(), true
}

func (m *MockJobQueue) InFlight() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.inFlight
}

func (m *MockJobQueue) Len() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.jobs)
}

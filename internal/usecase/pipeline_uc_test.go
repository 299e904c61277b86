//go:build !integration

package usecase_test

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"

	"render-orchestrator/internal/domain/model"
	"render-orchestrator/internal/usecase"
)

func newPipelineFixture(t *testing.T, oracle *MockOracle) (*usecase.VerdictPipeline, *MockReadinessRepo, string) {
	t.Helper()
	repo := NewMockReadinessRepo()
	readiness := usecase.NewReadinessUseCase(repo, &MockTxManager{}, &MockNotifier{}, 5, testLogger())
	gate := usecase.NewQualityGate(oracle, 0.72, 0.5, testLogger())
	refDir := t.TempDir()
	return usecase.NewVerdictPipeline(gate, readiness, refDir, testLogger()), repo, refDir
}

func terminalJob(status model.JobStatus) model.Job {
	j := model.Job{
		ID:        "job-1",
		SubjectID: "subj-1",
		Kind:      model.JobKindImage,
		Status:    status,
	}
	if status == model.JobStatusCompleted {
		j.Outputs = []string{"/outputs/a.png"}
	}
	return j
}

func seedSubject(t *testing.T, repo *MockReadinessRepo, pending int) {
	t.Helper()
	row := model.NewSubjectReadiness("subj-1", 10)
	row.Pending = pending
	if err := repo.Save(context.Background(), nil, row); err != nil {
		t.Fatal(err)
	}
}

func TestVerdictPipeline_ApprovedOutput(t *testing.T) {
	pipeline, repo, _ := newPipelineFixture(t, &MockOracle{})
	seedSubject(t, repo, 1)

	pipeline.Handle(context.Background(), terminalJob(model.JobStatusCompleted))

	row, _ := repo.FindBySubject(context.Background(), nil, "subj-1")
	if row.Approved != 1 || row.Pending != 0 {
		t.Fatalf("want approved=1 pending=0, got %+v", row)
	}
}

func TestVerdictPipeline_RejectedOutput(t *testing.T) {
	oracle := &MockOracle{AssessFunc: func(context.Context, string, []string) (model.QualityScore, error) {
		return model.QualityScore{Similarity: 0.1, Solo: true, Clarity: 0.9}, nil
	}}
	pipeline, repo, _ := newPipelineFixture(t, oracle)
	seedSubject(t, repo, 1)

	pipeline.Handle(context.Background(), terminalJob(model.JobStatusCompleted))

	row, _ := repo.FindBySubject(context.Background(), nil, "subj-1")
	if row.Approved != 0 || row.Pending != 0 || row.ConsecutiveRejects != 1 {
		t.Fatalf("want reject bookkeeping, got %+v", row)
	}
}

func TestVerdictPipeline_FailuresReleaseWithoutScoring(t *testing.T) {
	scored := false
	oracle := &MockOracle{AssessFunc: func(context.Context, string, []string) (model.QualityScore, error) {
		scored = true
		return model.QualityScore{}, nil
	}}
	pipeline, repo, _ := newPipelineFixture(t, oracle)

	for _, status := range []model.JobStatus{model.JobStatusFailed, model.JobStatusTimeout} {
		seedSubject(t, repo, 1)
		pipeline.Handle(context.Background(), terminalJob(status))
		row, _ := repo.FindBySubject(context.Background(), nil, "subj-1")
		if row.Pending != 0 {
			t.Fatalf("%s: pending not released: %+v", status, row)
		}
		if row.Approved != 0 || row.ConsecutiveRejects != 0 {
			t.Fatalf("%s: counters touched: %+v", status, row)
		}
	}
	if scored {
		t.Fatal("failures must not reach the oracle")
	}
}

func TestVerdictPipeline_CacheHitSkipsGate(t *testing.T) {
	scored := false
	oracle := &MockOracle{AssessFunc: func(context.Context, string, []string) (model.QualityScore, error) {
		scored = true
		return model.QualityScore{Similarity: 1, Solo: true, Clarity: 1}, nil
	}}
	pipeline, repo, _ := newPipelineFixture(t, oracle)
	seedSubject(t, repo, 1)

	job := terminalJob(model.JobStatusCompleted)
	job.CacheHit = true
	pipeline.Handle(context.Background(), job)

	if scored {
		t.Fatal("cache hit must not be re-scored")
	}
	row, _ := repo.FindBySubject(context.Background(), nil, "subj-1")
	if row.Pending != 0 || row.Approved != 0 {
		t.Fatalf("cache hit should only release pending: %+v", row)
	}
}

func TestVerdictPipeline_ScoringErrorReleasesNotRejects(t *testing.T) {
	oracle := &MockOracle{AssessFunc: func(context.Context, string, []string) (model.QualityScore, error) {
		return model.QualityScore{}, errors.New("provider down")
	}}
	pipeline, repo, _ := newPipelineFixture(t, oracle)
	seedSubject(t, repo, 1)

	pipeline.Handle(context.Background(), terminalJob(model.JobStatusCompleted))

	row, _ := repo.FindBySubject(context.Background(), nil, "subj-1")
	if row.Pending != 0 {
		t.Fatalf("pending not released on oracle failure: %+v", row)
	}
	if row.ConsecutiveRejects != 0 {
		t.Fatalf("oracle failure must not count as reject: %+v", row)
	}
}

func TestVerdictPipeline_PassesSortedReferences(t *testing.T) {
	var gotRefs []string
	oracle := &MockOracle{AssessFunc: func(_ context.Context, _ string, refs []string) (model.QualityScore, error) {
		gotRefs = refs
		return model.QualityScore{Similarity: 1, Solo: true, Clarity: 1}, nil
	}}
	pipeline, repo, refDir := newPipelineFixture(t, oracle)
	seedSubject(t, repo, 1)

	subjDir := filepath.Join(refDir, "subj-1")
	if err := os.MkdirAll(subjDir, 0o755); err != nil {
		t.Fatal(err)
	}
	for _, name := range []string{"b.png", "a.jpg", "notes.txt"} {
		if err := os.WriteFile(filepath.Join(subjDir, name), []byte("x"), 0o644); err != nil {
			t.Fatal(err)
		}
	}

	pipeline.Handle(context.Background(), terminalJob(model.JobStatusCompleted))

	if len(gotRefs) != 2 {
		t.Fatalf("want 2 image refs, got %v", gotRefs)
	}
	if filepath.Base(gotRefs[0]) != "a.jpg" || filepath.Base(gotRefs[1]) != "b.png" {
		t.Fatalf("refs not sorted: %v", gotRefs)
	}
}

//go:build !integration

package usecase_test

import (
	"context"
	"testing"

	"render-orchestrator/internal/domain"
	"render-orchestrator/internal/domain/model"
	"render-orchestrator/internal/usecase"
)

func newSubmissionFixture(budgetMB int) (usecase.SubmissionUseCase, *MockJobQueue, *MockReadinessRepo) {
	queue := NewMockJobQueue()
	repo := NewMockReadinessRepo()
	readiness := usecase.NewReadinessUseCase(repo, &MockTxManager{}, &MockNotifier{}, 5, testLogger())
	est := usecase.NewResourceEstimator(usecase.NewProfileStore(0.2), 8, testLogger())
	uc := usecase.NewSubmissionUseCase(queue, est, readiness, budgetMB, testLogger())
	return uc, queue, repo
}

func validImage() model.GenerationParams {
	return model.GenerationParams{Width: 768, Height: 768, FrameCount: 1, Prompt: "portrait"}
}

func TestSubmissionUseCase_Submit(t *testing.T) {
	ctx := context.Background()
	uc, queue, repo := newSubmissionFixture(24576)

	job, err := uc.Submit(ctx, "subj-1", model.JobKindImage, validImage())
	if err != nil {
		t.Fatalf("Submit: %v", err)
	}
	if job.ID == "" || job.Status != model.JobStatusQueued {
		t.Fatalf("bad snapshot: %+v", job)
	}
	if job.Variant != model.VariantHigh {
		t.Fatalf("24G budget should pick high, got %s", job.Variant)
	}
	if job.EstimatedMB <= 0 {
		t.Fatal("estimate not recorded")
	}
	if queue.Len() != 1 {
		t.Fatalf("want one queued job, got %d", queue.Len())
	}

	// submission auto-creates the readiness row and counts the slot
	row, err := repo.FindBySubject(ctx, nil, "subj-1")
	if err != nil {
		t.Fatalf("readiness row missing: %v", err)
	}
	if row.Pending != 1 {
		t.Fatalf("want pending 1, got %d", row.Pending)
	}

	// Get returns the same snapshot
	got, err := uc.Get(ctx, job.ID)
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if got.ID != job.ID {
		t.Fatalf("want %s, got %s", job.ID, got.ID)
	}
}

func TestSubmissionUseCase_Validation(t *testing.T) {
	ctx := context.Background()
	uc, _, _ := newSubmissionFixture(24576)

	cases := []struct {
		name    string
		subject string
		kind    model.JobKind
		mutate  func(*model.GenerationParams)
	}{
		{"empty subject", "", model.JobKindImage, nil},
		{"bad kind", "s", model.JobKind("audio"), nil},
		{"zero width", "s", model.JobKindImage, func(p *model.GenerationParams) { p.Width = 0 }},
		{"zero frames", "s", model.JobKindImage, func(p *model.GenerationParams) { p.FrameCount = 0 }},
		{"multi-frame image", "s", model.JobKindImage, func(p *model.GenerationParams) { p.FrameCount = 16 }},
		{"empty prompt", "s", model.JobKindImage, func(p *model.GenerationParams) { p.Prompt = "  " }},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			params := validImage()
			if tc.mutate != nil {
				tc.mutate(&params)
			}
			if _, err := uc.Submit(ctx, tc.subject, tc.kind, params); err != domain.ErrInvalidArgument {
				t.Fatalf("want ErrInvalidArgument, got %v", err)
			}
		})
	}

	t.Run("video with frames is valid", func(t *testing.T) {
		params := validImage()
		params.FrameCount = 16
		if _, err := uc.Submit(ctx, "s", model.JobKindVideo, params); err != nil {
			t.Fatalf("video submit: %v", err)
		}
	})
}

func TestSubmissionUseCase_QueueFullPropagates(t *testing.T) {
	ctx := context.Background()
	queue := NewMockJobQueue()
	queue.EnqueueFunc = func(*model.Job) error { return domain.ErrQueueFull }
	readiness := usecase.NewReadinessUseCase(NewMockReadinessRepo(), &MockTxManager{}, &MockNotifier{}, 5, testLogger())
	est := usecase.NewResourceEstimator(usecase.NewProfileStore(0.2), 8, testLogger())
	uc := usecase.NewSubmissionUseCase(queue, est, readiness, 24576, testLogger())

	if _, err := uc.Submit(ctx, "s", model.JobKindImage, validImage()); err != domain.ErrQueueFull {
		t.Fatalf("want ErrQueueFull, got %v", err)
	}
}

func TestSubmissionUseCase_GetMissing(t *testing.T) {
	uc, _, _ := newSubmissionFixture(24576)
	if _, err := uc.Get(context.Background(), "nope"); err != domain.ErrNotFound {
		t.Fatalf("want ErrNotFound, got %v", err)
	}
}

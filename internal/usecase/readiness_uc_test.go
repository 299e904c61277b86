//go:build !integration

package usecase_test

import (
	"context"
	"strings"
	"sync"
	"testing"
	"time"

	"render-orchestrator/internal/domain"
	"render-orchestrator/internal/domain/model"
	"render-orchestrator/internal/domain/ports/repository"
	"render-orchestrator/internal/usecase"
)

func approved() model.QualityDecision {
	return model.QualityDecision{Verdict: model.VerdictApproved}
}

func rejected(reason string) model.QualityDecision {
	return model.QualityDecision{Verdict: model.VerdictRejected, Reason: reason}
}

func TestReadinessUseCase_VerdictBookkeeping(t *testing.T) {
	ctx := context.Background()
	repo := NewMockReadinessRepo()
	notifier := &MockNotifier{}
	uc := usecase.NewReadinessUseCase(repo, &MockTxManager{}, notifier, 5, testLogger())

	if _, err := uc.SetTarget(ctx, "subj-1", 10); err != nil {
		t.Fatalf("SetTarget: %v", err)
	}
	if err := uc.RecordEnqueued(ctx, "subj-1", 3); err != nil {
		t.Fatalf("RecordEnqueued: %v", err)
	}

	row, err := repo.FindBySubject(ctx, nil, "subj-1")
	if err != nil {
		t.Fatalf("find: %v", err)
	}
	if row.Pending != 3 || row.DailyGenerated != 3 {
		t.Fatalf("want pending=3 daily=3, got %+v", row)
	}
	if row.Deficit() != 7 {
		t.Fatalf("want deficit 7, got %d", row.Deficit())
	}

	// approval closes a pending slot and bumps approved
	if err := uc.ApplyVerdict(ctx, "subj-1", approved()); err != nil {
		t.Fatalf("ApplyVerdict: %v", err)
	}
	row, _ = repo.FindBySubject(ctx, nil, "subj-1")
	if row.Approved != 1 || row.Pending != 2 {
		t.Fatalf("want approved=1 pending=2, got %+v", row)
	}

	// rejection closes a pending slot without approving
	if err := uc.ApplyVerdict(ctx, "subj-1", rejected("blurry")); err != nil {
		t.Fatalf("ApplyVerdict reject: %v", err)
	}
	row, _ = repo.FindBySubject(ctx, nil, "subj-1")
	if row.Approved != 1 || row.Pending != 1 || row.ConsecutiveRejects != 1 {
		t.Fatalf("after reject: %+v", row)
	}

	// approval resets the reject streak
	if err := uc.ApplyVerdict(ctx, "subj-1", approved()); err != nil {
		t.Fatalf("ApplyVerdict: %v", err)
	}
	row, _ = repo.FindBySubject(ctx, nil, "subj-1")
	if row.ConsecutiveRejects != 0 {
		t.Fatalf("streak not reset: %+v", row)
	}
}

func TestReadinessUseCase_BreakerPausesAndAlerts(t *testing.T) {
	ctx := context.Background()
	repo := NewMockReadinessRepo()
	notifier := &MockNotifier{}
	uc := usecase.NewReadinessUseCase(repo, &MockTxManager{}, notifier, 3, testLogger())

	if _, err := uc.SetTarget(ctx, "subj-2", 5); err != nil {
		t.Fatalf("SetTarget: %v", err)
	}
	_ = uc.RecordEnqueued(ctx, "subj-2", 5)

	for i := 0; i < 3; i++ {
		if err := uc.ApplyVerdict(ctx, "subj-2", rejected("wrong face")); err != nil {
			t.Fatalf("reject %d: %v", i, err)
		}
	}

	row, _ := repo.FindBySubject(ctx, nil, "subj-2")
	if row.State != model.SubjectStatePaused {
		t.Fatalf("want paused, got %s", row.State)
	}
	if notifier.Count() != 1 {
		t.Fatalf("want exactly one alert, got %d", notifier.Count())
	}
	if !strings.Contains(notifier.Sent[0], "subj-2") {
		t.Fatalf("alert missing subject id: %q", notifier.Sent[0])
	}

	// paused subjects are excluded from the active list
	active, err := uc.ListActive(ctx)
	if err != nil {
		t.Fatalf("ListActive: %v", err)
	}
	for _, a := range active {
		if a.SubjectID == "subj-2" {
			t.Fatal("paused subject listed as active")
		}
	}

	// operator reset reactivates with a clean streak
	if err := uc.ResetBreaker(ctx, "subj-2"); err != nil {
		t.Fatalf("ResetBreaker: %v", err)
	}
	row, _ = repo.FindBySubject(ctx, nil, "subj-2")
	if row.State != model.SubjectStateActive || row.ConsecutiveRejects != 0 {
		t.Fatalf("after reset: %+v", row)
	}
}

func TestReadinessUseCase_ReleasePending(t *testing.T) {
	ctx := context.Background()
	repo := NewMockReadinessRepo()
	uc := usecase.NewReadinessUseCase(repo, &MockTxManager{}, &MockNotifier{}, 5, testLogger())

	_, _ = uc.SetTarget(ctx, "subj-3", 4)
	_ = uc.RecordEnqueued(ctx, "subj-3", 1)

	if err := uc.ReleasePending(ctx, "subj-3"); err != nil {
		t.Fatalf("ReleasePending: %v", err)
	}
	row, _ := repo.FindBySubject(ctx, nil, "subj-3")
	if row.Pending != 0 {
		t.Fatalf("want pending 0, got %d", row.Pending)
	}

	// releasing with nothing pending must not go negative
	if err := uc.ReleasePending(ctx, "subj-3"); err != nil {
		t.Fatalf("ReleasePending empty: %v", err)
	}
	row, _ = repo.FindBySubject(ctx, nil, "subj-3")
	if row.Pending != 0 {
		t.Fatalf("pending went negative: %d", row.Pending)
	}
}

func TestReadinessUseCase_SetTargetIfMissing(t *testing.T) {
	ctx := context.Background()
	repo := NewMockReadinessRepo()
	uc := usecase.NewReadinessUseCase(repo, &MockTxManager{}, &MockNotifier{}, 5, testLogger())

	if _, err := uc.SetTargetIfMissing(ctx, "new-subj"); err != nil {
		t.Fatalf("SetTargetIfMissing: %v", err)
	}
	row, err := repo.FindBySubject(ctx, nil, "new-subj")
	if err != nil {
		t.Fatalf("row not created: %v", err)
	}
	if row.Target != 0 {
		t.Fatalf("fresh row must have zero target, got %d", row.Target)
	}

	// existing row is untouched
	_, _ = uc.SetTarget(ctx, "new-subj", 9)
	if _, err := uc.SetTargetIfMissing(ctx, "new-subj"); err != nil {
		t.Fatalf("SetTargetIfMissing existing: %v", err)
	}
	row, _ = repo.FindBySubject(ctx, nil, "new-subj")
	if row.Target != 9 {
		t.Fatalf("existing target clobbered: %d", row.Target)
	}
}

func TestReadinessUseCase_ConcurrentVerdictsSerialize(t *testing.T) {
	ctx := context.Background()
	repo := NewMockReadinessRepo()
	uc := usecase.NewReadinessUseCase(repo, &MockTxManager{}, &MockNotifier{}, 5, testLogger())

	_, _ = uc.SetTarget(ctx, "subj-1", 10)
	_ = uc.RecordEnqueued(ctx, "subj-1", 2)

	// widen the read-modify-write window; interleaved verdicts would
	// overwrite each other's counters without the row lock
	repo.SaveFunc = func(_ context.Context, _ repository.Tx, r *model.SubjectReadiness) error {
		time.Sleep(2 * time.Millisecond)
		repo.mu.Lock()
		cp := *r
		repo.rows[r.SubjectID] = &cp
		repo.mu.Unlock()
		return nil
	}

	var wg sync.WaitGroup
	for i := 0; i < 2; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if err := uc.ApplyVerdict(ctx, "subj-1", rejected("blurry")); err != nil {
				t.Errorf("ApplyVerdict: %v", err)
			}
		}()
	}
	wg.Wait()

	repo.SaveFunc = nil
	row, _ := repo.FindBySubject(ctx, nil, "subj-1")
	if row.ConsecutiveRejects != 2 {
		t.Fatalf("lost a reject: want streak 2, got %d", row.ConsecutiveRejects)
	}
	if row.Pending != 0 {
		t.Fatalf("pending drifted: want 0, got %d", row.Pending)
	}
}

func TestReadinessUseCase_ReportResetsStaleDailyCount(t *testing.T) {
	ctx := context.Background()
	repo := NewMockReadinessRepo()
	uc := usecase.NewReadinessUseCase(repo, &MockTxManager{}, &MockNotifier{}, 5, testLogger())

	row := model.NewSubjectReadiness("subj-1", 10)
	row.DailyGenerated = 5
	row.LastGeneratedAt = time.Now().Add(-48 * time.Hour)
	if err := repo.Save(ctx, nil, row); err != nil {
		t.Fatal(err)
	}

	report, err := uc.Report(ctx)
	if err != nil {
		t.Fatalf("Report: %v", err)
	}
	if len(report) != 1 {
		t.Fatalf("want 1 row, got %d", len(report))
	}
	if report[0].DailyGenerated != 0 {
		t.Fatalf("stale daily count leaked into report: %d", report[0].DailyGenerated)
	}
}

func TestReadinessUseCase_InvalidInputs(t *testing.T) {
	ctx := context.Background()
	uc := usecase.NewReadinessUseCase(NewMockReadinessRepo(), &MockTxManager{}, &MockNotifier{}, 5, testLogger())

	if _, err := uc.SetTarget(ctx, "", 5); err != domain.ErrInvalidArgument {
		t.Fatalf("empty subject: want ErrInvalidArgument, got %v", err)
	}
	if _, err := uc.SetTarget(ctx, "s", -1); err != domain.ErrInvalidArgument {
		t.Fatalf("negative target: want ErrInvalidArgument, got %v", err)
	}
	if err := uc.RecordEnqueued(ctx, "s", 0); err != domain.ErrInvalidArgument {
		t.Fatalf("zero enqueue: want ErrInvalidArgument, got %v", err)
	}
	if err := uc.ApplyVerdict(ctx, "missing", approved()); err != domain.ErrNotFound {
		t.Fatalf("missing subject: want ErrNotFound, got %v", err)
	}
}

//go:build !integration

package progress_test

import (
	"context"
	"testing"
	"time"

	"github.com/rs/zerolog"

	"render-orchestrator/internal/domain/model"
	"render-orchestrator/internal/infra/progress"
)

func testLogger() *zerolog.Logger {
	l := zerolog.Nop()
	return &l
}

func collect(t *testing.T, sub *progress.Subscription, n int) []model.ProgressEvent {
	t.Helper()
	out := make([]model.ProgressEvent, 0, n)
	deadline := time.After(2 * time.Second)
	for len(out) < n {
		select {
		case ev := <-sub.Events:
			out = append(out, ev)
		case <-deadline:
			t.Fatalf("timed out after %d/%d events", len(out), n)
		}
	}
	return out
}

func TestChannel_SequenceIsMonotonic(t *testing.T) {
	ch := progress.NewChannel(time.Hour, testLogger())
	sub := ch.Subscribe("job-1")
	defer sub.Close()

	ch.Publish("job-1", model.StageQueued, 0, "queued", nil)
	ch.Publish("job-1", model.StageProgress, 0.5, "halfway", nil)
	ch.Publish("job-1", model.StageCompleted, 1, "done", []string{"/out/a.png"})

	events := collect(t, sub, 3)
	var last uint64
	for i, ev := range events {
		if ev.Seq <= last {
			t.Fatalf("sequence regressed at %d: %d after %d", i, ev.Seq, last)
		}
		last = ev.Seq
	}
	if events[2].Stage != model.StageCompleted || !events[2].Terminal() {
		t.Fatalf("last event not terminal: %+v", events[2])
	}
}

func TestChannel_ReplayLatestForInFlightJob(t *testing.T) {
	ch := progress.NewChannel(time.Hour, testLogger())

	ch.Publish("job-1", model.StageQueued, 0, "queued", nil)
	ch.Publish("job-1", model.StageProgress, 0.7, "rendering", nil)

	sub := ch.Subscribe("job-1")
	defer sub.Close()

	events := collect(t, sub, 1)
	if events[0].Stage != model.StageProgress || events[0].Progress != 0.7 {
		t.Fatalf("want latest snapshot replayed, got %+v", events[0])
	}
}

func TestChannel_ReplayTerminalForFinishedJob(t *testing.T) {
	ch := progress.NewChannel(time.Hour, testLogger())

	ch.Publish("job-1", model.StageProgress, 0.5, "rendering", nil)
	ch.Publish("job-1", model.StageFailed, 0, "backend error", nil)

	sub := ch.Subscribe("job-1")
	defer sub.Close()

	events := collect(t, sub, 1)
	if events[0].Stage != model.StageFailed {
		t.Fatalf("want terminal replay, got %+v", events[0])
	}
}

func TestChannel_PublishAfterTerminalDropped(t *testing.T) {
	ch := progress.NewChannel(time.Hour, testLogger())

	ch.Publish("job-1", model.StageCompleted, 1, "done", nil)
	ch.Publish("job-1", model.StageProgress, 0.5, "late", nil)

	ev, ok := ch.LastTerminal("job-1")
	if !ok || ev.Stage != model.StageCompleted {
		t.Fatalf("terminal lost: %+v ok=%v", ev, ok)
	}

	sub := ch.Subscribe("job-1")
	defer sub.Close()
	events := collect(t, sub, 1)
	if events[0].Stage != model.StageCompleted {
		t.Fatalf("late publish leaked: %+v", events[0])
	}
}

func TestChannel_SlowSubscriberDoesNotBlockPublisher(t *testing.T) {
	ch := progress.NewChannel(time.Hour, testLogger())
	sub := ch.Subscribe("job-1")
	defer sub.Close()

	// overflow the subscriber buffer without draining; Publish must not block
	done := make(chan struct{})
	go func() {
		for i := 0; i < 100; i++ {
			ch.Publish("job-1", model.StageProgress, float64(i)/100, "tick", nil)
		}
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("publisher blocked on slow subscriber")
	}
}

func TestChannel_IndependentJobsIsolated(t *testing.T) {
	ch := progress.NewChannel(time.Hour, testLogger())
	subA := ch.Subscribe("job-a")
	defer subA.Close()

	ch.Publish("job-b", model.StageQueued, 0, "queued", nil)
	ch.Publish("job-a", model.StageQueued, 0, "queued", nil)

	events := collect(t, subA, 1)
	if events[0].JobID != "job-a" {
		t.Fatalf("cross-job leak: %+v", events[0])
	}
	if events[0].Seq != 1 {
		t.Fatalf("sequences must be per-job, got %d", events[0].Seq)
	}
}

func TestChannel_HeartbeatCarriesCurrentSeq(t *testing.T) {
	ch := progress.NewChannel(20*time.Millisecond, testLogger())
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go ch.Run(ctx)

	sub := ch.Subscribe("job-1")
	defer sub.Close()
	ch.Publish("job-1", model.StageProgress, 0.5, "rendering", nil)

	deadline := time.After(2 * time.Second)
	for {
		select {
		case ev := <-sub.Events:
			if ev.Stage != model.StageHeartbeat {
				continue
			}
			if ev.Seq != 1 {
				t.Fatalf("heartbeat must not advance seq: %d", ev.Seq)
			}
			return
		case <-deadline:
			t.Fatal("no heartbeat observed")
		}
	}
}

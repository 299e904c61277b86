package worker

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"sync/atomic"
	"time"

	"render-orchestrator/internal/domain"
	"render-orchestrator/internal/domain/model"
	"render-orchestrator/internal/domain/ports/adapter"
	"render-orchestrator/internal/domain/ports/repository"
	"render-orchestrator/internal/infra/cache"
	"render-orchestrator/internal/infra/metrics"
	"render-orchestrator/internal/infra/progress"

	"github.com/rs/zerolog"
)

// Recorder receives one performance sample per terminal job.
type Recorder interface {
	Record(ctx context.Context, s *model.PerformanceSample)
}

// CompletionHook runs after a job reaches a terminal state; the quality
// pipeline hangs off it. It receives a snapshot, never the live record.
type CompletionHook func(job model.Job)

type Config struct {
	PollInterval   time.Duration
	ImageTimeout   time.Duration
	VideoTimeout   time.Duration
	RequestTimeout time.Duration
	OutputDir      string
	Workers        int
	QueueDepth     int
}

// Processor is the asynchronous job engine: a bounded pool of workers
// pulls from a FIFO queue, dispatches each job to the render backend
// and owns it from dispatch to terminal state, advancing the status
// machine by polling backend history. Jobs are immutable once
// terminal; external readers only ever get snapshots.
type Processor struct {
	backend  adapter.RenderBackendAdapter
	cache    *cache.GenerationCache
	progress *progress.Channel
	recorder Recorder
	jobsRepo repository.JobRepository
	cfg      Config

	queue    chan string
	mu       sync.RWMutex
	jobs     map[string]*model.Job
	leaders  map[string]struct{} // job ids holding a cache singleflight lease
	inFlight int64
	hook     CompletionHook
	wg       sync.WaitGroup
	log      *zerolog.Logger
}

func NewProcessor(
	backend adapter.RenderBackendAdapter,
	genCache *cache.GenerationCache,
	progressCh *progress.Channel,
	recorder Recorder,
	jobsRepo repository.JobRepository,
	cfg Config,
	logger *zerolog.Logger,
) *Processor {
	if cfg.PollInterval <= 0 {
		cfg.PollInterval = 500 * time.Millisecond
	}
	if cfg.Workers <= 0 {
		cfg.Workers = 1
	}
	if cfg.QueueDepth <= 0 {
		cfg.QueueDepth = cfg.Workers * 8
	}
	l := logger.With().Str("component", "JobProcessor").Logger()
	return &Processor{
		backend:  backend,
		cache:    genCache,
		progress: progressCh,
		recorder: recorder,
		jobsRepo: jobsRepo,
		cfg:      cfg,
		queue:    make(chan string, cfg.QueueDepth),
		jobs:     make(map[string]*model.Job),
		leaders:  make(map[string]struct{}),
		log:      &l,
	}
}

// SetCompletionHook must be called before Start.
func (p *Processor) SetCompletionHook(hook CompletionHook) { p.hook = hook }

// Start launches the worker pool. Width is whatever the caller derived
// from the GPU budget.
func (p *Processor) Start(ctx context.Context) {
	p.log.Info().Int("workers", p.cfg.Workers).Msg("job processor started")
	for i := 0; i < p.cfg.Workers; i++ {
		p.wg.Add(1)
		go p.worker(ctx, i)
	}
}

// Stop waits for workers to drain after ctx cancellation.
func (p *Processor) Stop() { p.wg.Wait() }

// Enqueue accepts a job into the FIFO queue. The processor owns the
// record from here until terminal.
func (p *Processor) Enqueue(job *model.Job) error {
	if job == nil || job.SubjectID == "" {
		return domain.ErrInvalidArgument
	}
	p.mu.Lock()
	if _, exists := p.jobs[job.ID]; exists {
		p.mu.Unlock()
		return domain.ErrAlreadyExists
	}
	p.jobs[job.ID] = job
	p.mu.Unlock()

	select {
	case p.queue <- job.ID:
	default:
		p.mu.Lock()
		delete(p.jobs, job.ID)
		p.mu.Unlock()
		return domain.ErrQueueFull
	}

	p.progress.Publish(job.ID, model.StageQueued, 0, "queued", nil)
	p.persist(job.Snapshot())
	return nil
}

// Get returns a snapshot of a job.
func (p *Processor) Get(id string) (model.Job, bool) {
	p.mu.RLock()
	defer p.mu.RUnlock()
	j, ok := p.jobs[id]
	if !ok {
		return model.Job{}, false
	}
	return j.Snapshot(), true
}

// InFlight is the number of jobs currently owned by a worker.
func (p *Processor) InFlight() int { return int(atomic.LoadInt64(&p.inFlight)) }

func (p *Processor) worker(ctx context.Context, id int) {
	defer p.wg.Done()
	for {
		select {
		case <-ctx.Done():
			return
		case jobID := <-p.queue:
			p.runOne(ctx, jobID)
		}
	}
}

// runOne owns a single job from dispatch to terminal state. An
// unexpected panic marks the job failed and keeps the pool alive: one
// bad job must never crash the other workers.
func (p *Processor) runOne(ctx context.Context, jobID string) {
	atomic.AddInt64(&p.inFlight, 1)
	metrics.SetJobsInFlight(p.InFlight())
	defer func() {
		atomic.AddInt64(&p.inFlight, -1)
		metrics.SetJobsInFlight(p.InFlight())
		if r := recover(); r != nil {
			p.log.Error().Interface("panic", r).Str("job_id", jobID).Msg("worker panic recovered")
			p.finishWith(ctx, jobID, func(j *model.Job) { _ = j.MarkFailed(fmt.Sprintf("worker panic: %v", r)) })
		}
	}()

	p.mu.RLock()
	job := p.jobs[jobID]
	p.mu.RUnlock()
	if job == nil || job.IsTerminal() {
		return
	}

	// Pinned-seed jobs consult the cache first. The first miss for a
	// key becomes the singleflight leader and dispatches; concurrent
	// requests for the same key wait for the leader's result instead
	// of submitting duplicate backend work.
	if p.cache != nil && job.Params.SeedPinned() {
		if done := p.tryServeFromCache(ctx, job); done {
			return
		}
	}

	// dispatch
	graph := BuildWorkflow(job)
	submitCtx, cancel := context.WithTimeout(ctx, p.cfg.RequestTimeout)
	start := time.Now()
	handle, err := p.backend.Submit(submitCtx, graph)
	cancel()
	metrics.ObserveBackendCall("submit", int(time.Since(start)/time.Millisecond), err == nil)
	if err != nil {
		p.log.Error().Err(err).Str("job_id", job.ID).Msg("backend submit failed")
		p.finishWith(ctx, jobID, func(j *model.Job) { _ = j.MarkFailed("backend submit: " + err.Error()) })
		return
	}

	p.mu.Lock()
	_ = job.MarkRunning(handle)
	p.mu.Unlock()
	p.progress.Publish(job.ID, model.StageProgress, 0, "dispatched", nil)

	p.poll(ctx, job)
}

// tryServeFromCache returns true when the job was finished from a
// cached entry (or the caller should not dispatch). A false return
// means this worker is the leader for the key and must generate.
func (p *Processor) tryServeFromCache(ctx context.Context, job *model.Job) bool {
	if entry, ok := p.cache.Lookup(job.Params); ok {
		p.finishCached(ctx, job.ID, entry)
		return true
	}

	key := cache.Key(job.Params)
	deadline := time.Now().Add(p.timeoutFor(job.Kind))
	for {
		leader, done := p.cache.Begin(key)
		if leader {
			p.markLeader(job.ID)
			return false
		}

		// follower: wait for the leader, bounded by the job's own ceiling
		p.log.Debug().Str("job_id", job.ID).Msg("waiting on in-flight generation for same key")
		select {
		case <-ctx.Done():
			p.finishWith(ctx, job.ID, func(j *model.Job) { _ = j.MarkFailed("shutdown") })
			return true
		case <-time.After(time.Until(deadline)):
			p.finishWith(ctx, job.ID, func(j *model.Job) { _ = j.MarkTimeout() })
			return true
		case <-done:
		}

		if entry, ok := p.cache.Lookup(job.Params); ok {
			p.finishCached(ctx, job.ID, entry)
			return true
		}
		// leader aborted; contend for the lease again. Begin decides
		// who takes over, so two waking followers cannot both dispatch.
	}
}

func (p *Processor) markLeader(jobID string) {
	p.mu.Lock()
	p.leaders[jobID] = struct{}{}
	p.mu.Unlock()
}

func (p *Processor) finishCached(ctx context.Context, jobID string, entry model.CacheEntry) {
	p.finishWith(ctx, jobID, func(j *model.Job) {
		j.CacheHit = true
		_ = j.MarkCompleted([]string{entry.OutputPath})
	})
}

// poll advances the job by inspecting backend history at a fixed
// interval until terminal or past the wall-clock ceiling. The worker
// suspends only while awaiting the poll response, never while holding
// the jobs lock.
func (p *Processor) poll(ctx context.Context, job *model.Job) {
	deadline := time.Now().Add(p.timeoutFor(job.Kind))
	ticker := time.NewTicker(p.cfg.PollInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			p.finishWith(ctx, job.ID, func(j *model.Job) { _ = j.MarkFailed("shutdown") })
			return
		case <-ticker.C:
			if time.Now().After(deadline) {
				// No cancellation signal is sent to the backend; the
				// abandoned run is reconciled via queue inspection.
				p.log.Warn().Str("job_id", job.ID).Str("handle", job.BackendHandle).Msg("job timed out")
				p.finishWith(ctx, job.ID, func(j *model.Job) { _ = j.MarkTimeout() })
				return
			}

			pollCtx, cancel := context.WithTimeout(ctx, p.cfg.RequestTimeout)
			start := time.Now()
			entry, err := p.backend.History(pollCtx, job.BackendHandle)
			cancel()
			metrics.ObserveBackendCall("history", int(time.Since(start)/time.Millisecond), err == nil)
			if err != nil {
				// transient poll errors are tolerated until the deadline
				p.log.Debug().Err(err).Str("job_id", job.ID).Msg("history poll failed")
				continue
			}
			if !entry.Finished {
				continue
			}
			if entry.Error != "" {
				p.finishWith(ctx, job.ID, func(j *model.Job) { _ = j.MarkFailed(entry.Error) })
				return
			}

			outputs, missing := p.resolveOutputs(entry.Outputs)
			if missing != "" {
				p.finishWith(ctx, job.ID, func(j *model.Job) {
					_ = j.MarkFailed("output artifact missing: " + missing)
				})
				return
			}
			p.finishWith(ctx, job.ID, func(j *model.Job) { _ = j.MarkCompleted(outputs) })
			return
		}
	}
}

// finishWith applies the terminal transition and runs all terminal
// side effects: progress event, cache store/abort, performance sample,
// persistence, completion hook.
func (p *Processor) finishWith(ctx context.Context, jobID string, transition func(*model.Job)) {
	p.mu.Lock()
	job, ok := p.jobs[jobID]
	if !ok || job.IsTerminal() {
		p.mu.Unlock()
		return
	}
	transition(job)
	snapshot := job.Snapshot()
	p.mu.Unlock()

	p.publishTerminal(snapshot)
	p.settleCache(snapshot)
	p.recordSample(ctx, snapshot)
	p.persist(snapshot)
	metrics.IncJob(string(snapshot.Kind), string(snapshot.Status))
	metrics.ObserveJobDuration(string(snapshot.Kind), string(snapshot.Variant),
		snapshot.CompletedAt.Sub(snapshot.QueuedAt).Seconds())

	if p.hook != nil {
		p.hook(snapshot)
	}
}

func (p *Processor) publishTerminal(job model.Job) {
	switch job.Status {
	case model.JobStatusCompleted:
		p.progress.Publish(job.ID, model.StageCompleted, 1, "completed", job.Outputs)
	case model.JobStatusTimeout:
		p.progress.Publish(job.ID, model.StageTimeout, 0, job.LastError, nil)
	default:
		p.progress.Publish(job.ID, model.StageFailed, 0, job.LastError, nil)
	}
}

// settleCache stores the output for pinned-seed jobs, or releases the
// singleflight group on failure so a later request can retry. Only the
// job holding the singleflight lease touches the cache; followers and
// cache-hit jobs must not release or overwrite the leader's entry.
func (p *Processor) settleCache(job model.Job) {
	if p.cache == nil || !job.Params.SeedPinned() {
		return
	}
	p.mu.Lock()
	_, isLeader := p.leaders[job.ID]
	delete(p.leaders, job.ID)
	p.mu.Unlock()
	if !isLeader {
		return
	}
	key := cache.Key(job.Params)
	if job.Status == model.JobStatusCompleted && len(job.Outputs) > 0 {
		var size int64
		for _, out := range job.Outputs {
			if fi, err := os.Stat(out); err == nil {
				size += fi.Size()
			}
		}
		p.cache.Store(key, job.Outputs[0], *job.Params.Seed, job.EstimatedMB, size)
	} else {
		p.cache.Abort(key)
	}
}

func (p *Processor) recordSample(ctx context.Context, job model.Job) {
	if p.recorder == nil {
		return
	}
	processing := time.Duration(0)
	if !job.StartedAt.IsZero() {
		processing = job.CompletedAt.Sub(job.StartedAt)
	}
	p.recorder.Record(ctx, &model.PerformanceSample{
		JobID:        job.ID,
		Kind:         job.Kind,
		Variant:      job.Variant,
		ModelName:    job.Params.ModelName,
		Bucket:       model.Bucket(job.Params.Width, job.Params.Height, job.Params.FrameCount),
		QueueWait:    job.QueueWait(),
		Processing:   processing,
		Total:        job.CompletedAt.Sub(job.QueuedAt),
		PeakMemoryMB: job.EstimatedMB,
		Success:      job.Status == model.JobStatusCompleted,
		RecordedAt:   time.Now(),
	})
}

func (p *Processor) persist(job model.Job) {
	if p.jobsRepo == nil {
		return
	}
	// background context: persistence must survive shutdown of the
	// triggering request
	if err := p.jobsRepo.Save(context.Background(), repository.NoTX, &job); err != nil {
		p.log.Error().Err(err).Str("job_id", job.ID).Msg("job persist failed")
	}
}

func (p *Processor) resolveOutputs(paths []string) (resolved []string, missing string) {
	resolved = make([]string, 0, len(paths))
	for _, path := range paths {
		full := path
		if !filepath.IsAbs(full) && p.cfg.OutputDir != "" {
			full = filepath.Join(p.cfg.OutputDir, path)
		}
		if _, err := os.Stat(full); err != nil {
			return nil, path
		}
		resolved = append(resolved, full)
	}
	return resolved, ""
}

func (p *Processor) timeoutFor(kind model.JobKind) time.Duration {
	if kind == model.JobKindVideo {
		if p.cfg.VideoTimeout > 0 {
			return p.cfg.VideoTimeout
		}
		return 10 * time.Minute
	}
	if p.cfg.ImageTimeout > 0 {
		return p.cfg.ImageTimeout
	}
	return 2 * time.Minute
}

package model

import (
	"crypto/rand"
	"time"

	"github.com/oklog/ulid/v2"

	"render-orchestrator/internal/domain"
)

type JobKind string

const (
	JobKindImage JobKind = "image"
	JobKindVideo JobKind = "video"
)

type JobStatus string

const (
	JobStatusQueued    JobStatus = "queued"
	JobStatusRunning   JobStatus = "running"
	JobStatusCompleted JobStatus = "completed"
	JobStatusFailed    JobStatus = "failed"
	JobStatusTimeout   JobStatus = "timeout"
)

// WorkflowVariant is the quality/speed tradeoff profile chosen per job.
type WorkflowVariant string

const (
	VariantDraft    WorkflowVariant = "draft"
	VariantStandard WorkflowVariant = "standard"
	VariantHigh     WorkflowVariant = "high"
)

// GenerationParams are the caller-supplied request parameters.
// Seed is a pointer: nil means "not pinned" and the backend picks one,
// which also makes the request ineligible for cache hits.
type GenerationParams struct {
	Width          int    `json:"width"`
	Height         int    `json:"height"`
	FrameCount     int    `json:"frame_count"`
	QualityTier    string `json:"quality_tier"`
	Seed           *int64 `json:"seed,omitempty"`
	Prompt         string `json:"prompt"`
	NegativePrompt string `json:"negative_prompt"`
	ModelName      string `json:"model_name"`
}

// SeedPinned reports whether the caller fixed the seed.
func (p GenerationParams) SeedPinned() bool { return p.Seed != nil }

// Job is a single generation request tracked from submission to a
// terminal state. It is owned exclusively by the job processor until
// terminal; external readers only ever see snapshots.
type Job struct {
	ID            string
	SubjectID     string
	Kind          JobKind
	Params        GenerationParams
	Variant       WorkflowVariant
	EstimatedMB   int
	BackendHandle string
	Status        JobStatus
	QueuedAt      time.Time
	StartedAt     time.Time
	CompletedAt   time.Time
	Outputs       []string
	LastError     string
	CacheHit      bool
}

func NewJob(subjectID string, kind JobKind, params GenerationParams) *Job {
	return &Job{
		ID:        ulid.MustNew(ulid.Timestamp(time.Now()), rand.Reader).String(),
		SubjectID: subjectID,
		Kind:      kind,
		Params:    params,
		Status:    JobStatusQueued,
		QueuedAt:  time.Now(),
	}
}

func (j *Job) IsTerminal() bool {
	switch j.Status {
	case JobStatusCompleted, JobStatusFailed, JobStatusTimeout:
		return true
	}
	return false
}

// MarkRunning transitions queued -> running on successful dispatch.
func (j *Job) MarkRunning(handle string) error {
	if j.IsTerminal() {
		return domain.ErrJobTerminal
	}
	j.BackendHandle = handle
	j.Status = JobStatusRunning
	j.StartedAt = time.Now()
	return nil
}

func (j *Job) MarkCompleted(outputs []string) error {
	if j.IsTerminal() {
		return domain.ErrJobTerminal
	}
	j.Status = JobStatusCompleted
	j.Outputs = outputs
	j.CompletedAt = time.Now()
	return nil
}

func (j *Job) MarkFailed(reason string) error {
	if j.IsTerminal() {
		return domain.ErrJobTerminal
	}
	j.Status = JobStatusFailed
	j.LastError = reason
	j.CompletedAt = time.Now()
	return nil
}

// MarkTimeout records the timeout terminal state. Timeouts count as
// failures for sampling purposes but keep their own status so operators
// can tell them apart from backend execution errors.
func (j *Job) MarkTimeout() error {
	if j.IsTerminal() {
		return domain.ErrJobTerminal
	}
	j.Status = JobStatusTimeout
	j.LastError = domain.ErrJobTimeout.Error()
	j.CompletedAt = time.Now()
	return nil
}

// Snapshot returns a copy safe to hand outside the processor.
func (j *Job) Snapshot() Job {
	cp := *j
	cp.Outputs = append([]string(nil), j.Outputs...)
	if j.Params.Seed != nil {
		s := *j.Params.Seed
		cp.Params.Seed = &s
	}
	return cp
}

// QueueWait is the time the job spent waiting for a worker slot.
func (j *Job) QueueWait() time.Duration {
	if j.StartedAt.IsZero() {
		if j.CompletedAt.IsZero() {
			return 0
		}
		return j.CompletedAt.Sub(j.QueuedAt)
	}
	return j.StartedAt.Sub(j.QueuedAt)
}

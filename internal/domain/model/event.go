package model

import "time"

type EventStage string

const (
	StageQueued    EventStage = "queued"
	StageProgress  EventStage = "progress"
	StageCompleted EventStage = "completed"
	StageFailed    EventStage = "failed"
	StageTimeout   EventStage = "timeout"
	StageHeartbeat EventStage = "heartbeat"
)

// ProgressEvent is one fan-out update for a job. Seq is strictly
// increasing per job; subscribers must never observe it go backwards.
type ProgressEvent struct {
	JobID     string     `json:"job_id"`
	Seq       uint64     `json:"seq"`
	Stage     EventStage `json:"stage"`
	Progress  float64    `json:"progress"`
	Message   string     `json:"message,omitempty"`
	Outputs   []string   `json:"outputs,omitempty"`
	Timestamp time.Time  `json:"timestamp"`
}

// Terminal reports whether the event closes the job's stream.
func (e ProgressEvent) Terminal() bool {
	switch e.Stage {
	case StageCompleted, StageFailed, StageTimeout:
		return true
	}
	return false
}

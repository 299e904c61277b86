package model

import "time"

type SubjectState string

const (
	SubjectStateActive SubjectState = "active"
	SubjectStatePaused SubjectState = "paused"
)

// SubjectReadiness tracks how close a subject's dataset is to its
// target of approved outputs. The replenishment controller reads it
// every tick and the quality pipeline mutates it on each verdict.
type SubjectReadiness struct {
	SubjectID          string
	Approved           int
	Pending            int
	Target             int
	ConsecutiveRejects int
	DailyGenerated     int
	LastGeneratedAt    time.Time
	State              SubjectState
	UpdatedAt          time.Time
}

func NewSubjectReadiness(subjectID string, target int) *SubjectReadiness {
	return &SubjectReadiness{
		SubjectID: subjectID,
		Target:    target,
		State:     SubjectStateActive,
		UpdatedAt: time.Now(),
	}
}

// Deficit is how many more approved outputs the subject still needs,
// counting in-flight generations against the target.
func (s *SubjectReadiness) Deficit() int {
	d := s.Target - (s.Approved + s.Pending)
	if d < 0 {
		return 0
	}
	return d
}

// ApplyApproval records an accepted output and closes any reject streak.
func (s *SubjectReadiness) ApplyApproval() {
	s.Approved++
	if s.Pending > 0 {
		s.Pending--
	}
	s.ConsecutiveRejects = 0
	s.UpdatedAt = time.Now()
}

// ApplyRejection records a rejected output. It returns true when the
// reject streak reached the breaker threshold and the subject was
// flipped to paused.
func (s *SubjectReadiness) ApplyRejection(breakerThreshold int) bool {
	if s.Pending > 0 {
		s.Pending--
	}
	s.ConsecutiveRejects++
	s.UpdatedAt = time.Now()
	if breakerThreshold > 0 && s.ConsecutiveRejects >= breakerThreshold && s.State == SubjectStateActive {
		s.State = SubjectStatePaused
		return true
	}
	return false
}

// ResetBreaker clears the reject streak and reactivates the subject.
// Only a human operator calls this.
func (s *SubjectReadiness) ResetBreaker() {
	s.ConsecutiveRejects = 0
	s.State = SubjectStateActive
	s.UpdatedAt = time.Now()
}

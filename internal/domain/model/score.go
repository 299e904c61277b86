package model

type Verdict string

const (
	VerdictApproved Verdict = "approved"
	VerdictRejected Verdict = "rejected"
)

// QualityScore is the vision oracle's assessment of one output against
// a subject's reference set.
type QualityScore struct {
	Similarity float64  `json:"similarity"`
	Solo       bool     `json:"solo"`
	Clarity    float64  `json:"clarity"`
	Issues     []string `json:"issues"`
}

// QualityDecision is the gate's deterministic verdict plus the first
// failing criterion when rejected, for operator visibility.
type QualityDecision struct {
	Verdict Verdict `json:"verdict"`
	Reason  string  `json:"reason,omitempty"`
}

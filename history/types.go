package history

import (
	"time"

	"rag-console/evidence"
)

// Label is a human-assigned judgement on a run.
type Label string

const (
	LabelGood       Label = "good"
	LabelMixed      Label = "mixed"
	LabelOffTopic   Label = "off_topic"
	LabelNoEvidence Label = "no_evidence"
	LabelNone       Label = ""
)

// ValidLabel reports whether a label may be assigned via SetLabel.
func ValidLabel(label Label) bool {
	switch label {
	case LabelGood, LabelMixed, LabelOffTopic, LabelNoEvidence:
		return true
	}
	return false
}

// Status is the derived classification of a run from its passage relevance
// counts.
type Status string

const (
	StatusGood       Status = "good"
	StatusMixed      Status = "mixed"
	StatusOffTopic   Status = "off_topic"
	StatusNoEvidence Status = "no_evidence"
)

// Run is one past question/answer/evidence triple. Ordinal is the global
// chronological index assigned at load time; sorting uses only the ordinal so
// colliding timestamps cannot reorder runs.
type Run struct {
	Ordinal    int                `json:"-"`
	RunID      string             `json:"run_id"`
	Question   string             `json:"question"`
	Answer     string             `json:"answer,omitempty"`
	TrustScore *int               `json:"trust_score"`
	LatencyMS  *float64           `json:"latency_ms"`
	TopK       int                `json:"top_k"`
	Passages   []evidence.Passage `json:"passages"`
	CreatedAt  time.Time          `json:"created_at"`
	Label      Label              `json:"label,omitempty"`
	Model      string             `json:"model,omitempty"`
	EvalNotes  string             `json:"eval_notes,omitempty"`
}

// Stats summarizes the loaded run set.
type Stats struct {
	Runs     int `json:"runs"`
	Passages int `json:"passages"`
	AvgTrust int `json:"avgTrust"`
	Good     int `json:"good"`
	OffTopic int `json:"offTopic"`
}

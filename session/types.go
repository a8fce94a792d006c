package session

import (
	"time"

	"rag-console/evidence"
)

type Role string

const (
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
)

// Message is one turn in the conversation. Immutable once appended; destroyed
// only by clearing the whole session.
type Message struct {
	ID        string      `json:"id"`
	Role      Role        `json:"role"`
	Content   string      `json:"content"`
	CreatedAt time.Time   `json:"created_at"`
	Meta      *AnswerMeta `json:"meta,omitempty"`
}

// AnswerMeta is attached only to assistant messages that settled cleanly.
// Question and TopK must be present for a comparison to be requested later.
type AnswerMeta struct {
	TrustScore    *int               `json:"trust_score"`
	LatencyMS     *float64           `json:"latency_ms"`
	Question      string             `json:"question"`
	TopK          int                `json:"top_k"`
	Passages      []evidence.Passage `json:"passages"`
	ModelUsed     string             `json:"model_used,omitempty"`
	UsedFinetuned *bool              `json:"used_finetuned"`
}

package backend

import (
	"time"

	"rag-console/evidence"
)

// QueryRequest is the body of POST /api/query.
type QueryRequest struct {
	Query        string `json:"query"`
	TopK         int    `json:"top_k"`
	UseFinetuned bool   `json:"use_finetuned"`
}

// QueryResponse is the normalized result of one query. Optional wire fields
// have already been defaulted by the decode step.
type QueryResponse struct {
	Answer     string
	LatencyMS  *float64
	TrustScore *int
	Passages   []evidence.Passage
	ModelUsed  string
}

// RunRecord is one normalized entry of the backend's run log.
type RunRecord struct {
	RunID      string
	Timestamp  time.Time
	Question   string
	Answer     string
	LatencyMS  *float64
	TrustScore *int
	TopK       int
	Model      string
	Label      string
	EvalNotes  string
	Retrieved  []evidence.Passage
}

// Wire shapes. Every optional field is a pointer here and is defaulted once,
// at this boundary, so the rest of the code never sees a half-decoded record.

type queryResponseWire struct {
	Answer     *string     `json:"answer"`
	LatencyMS  *float64    `json:"latency_ms"`
	TrustScore *int        `json:"trust_score"`
	Chunks     []chunkWire `json:"chunks"`
	ModelUsed  *string     `json:"model_used"`
}

type chunkWire struct {
	Source    *string  `json:"source"`
	Chunk     *int     `json:"chunk"`
	DocID     *string  `json:"doc_id"`
	Distance  *float64 `json:"distance"`
	Text      *string  `json:"text"`
	Relevance *string  `json:"relevance"`
}

type runWire struct {
	RunID      *string     `json:"run_id"`
	Timestamp  *string     `json:"timestamp"`
	Query      *string     `json:"query"`
	Answer     *string     `json:"answer"`
	LatencyMS  *float64    `json:"latency_ms"`
	TrustScore *int        `json:"trust_score"`
	TopK       *int        `json:"top_k"`
	Model      *string     `json:"model"`
	Label      *string     `json:"label"`
	EvalNotes  *string     `json:"eval_notes"`
	Retrieved  []chunkWire `json:"retrieved"`
}

func (w queryResponseWire) normalize() QueryResponse {
	return QueryResponse{
		Answer:     stringOr(w.Answer, ""),
		LatencyMS:  w.LatencyMS,
		TrustScore: w.TrustScore,
		Passages:   normalizeChunks(w.Chunks),
		ModelUsed:  stringOr(w.ModelUsed, ""),
	}
}

func (w runWire) normalize() RunRecord {
	var ts time.Time
	if w.Timestamp != nil {
		if parsed, err := time.Parse(time.RFC3339, *w.Timestamp); err == nil {
			ts = parsed
		}
	}
	return RunRecord{
		RunID:      stringOr(w.RunID, ""),
		Timestamp:  ts,
		Question:   stringOr(w.Query, ""),
		Answer:     stringOr(w.Answer, ""),
		LatencyMS:  w.LatencyMS,
		TrustScore: w.TrustScore,
		TopK:       intOr(w.TopK, 0),
		Model:      stringOr(w.Model, ""),
		Label:      stringOr(w.Label, ""),
		EvalNotes:  stringOr(w.EvalNotes, ""),
		Retrieved:  normalizeChunks(w.Retrieved),
	}
}

func normalizeChunks(chunks []chunkWire) []evidence.Passage {
	passages := make([]evidence.Passage, 0, len(chunks))
	for _, c := range chunks {
		passages = append(passages, evidence.Passage{
			Source:    stringOr(c.Source, "unknown"),
			Chunk:     intOr(c.Chunk, 0),
			Distance:  c.Distance,
			Text:      stringOr(c.Text, ""),
			Relevance: stringOr(c.Relevance, evidence.RelevanceUnknown),
		})
	}
	return passages
}

func stringOr(value *string, fallback string) string {
	if value == nil {
		return fallback
	}
	return *value
}

func intOr(value *int, fallback int) int {
	if value == nil {
		return fallback
	}
	return *value
}

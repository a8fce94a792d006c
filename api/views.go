package api

import (
	"time"

	"rag-console/compare"
	"rag-console/evidence"
	"rag-console/history"
	"rag-console/selection"
	"rag-console/session"
)

type sessionResponse struct {
	Messages     []apiMessage `json:"messages"`
	TopK         int          `json:"topK"`
	UseFinetuned bool         `json:"useFinetuned"`
}

type apiMessage struct {
	ID                string          `json:"id"`
	Role              string          `json:"role"`
	Content           string          `json:"content"`
	CreatedAt         time.Time       `json:"createdAt"`
	Meta              *apiAnswerMeta  `json:"meta,omitempty"`
	Comparison        *compare.Result `json:"comparison,omitempty"`
	ComparisonLoading bool            `json:"comparisonLoading,omitempty"`
}

type apiAnswerMeta struct {
	TrustScore    *int                  `json:"trustScore"`
	LatencyMS     *float64              `json:"latencyMs"`
	Question      string                `json:"question"`
	TopK          int                   `json:"topK"`
	ModelUsed     string                `json:"modelUsed,omitempty"`
	UsedFinetuned *bool                 `json:"usedFinetuned"`
	Buckets       evidence.BucketCounts `json:"buckets"`
	Passages      []apiPassage          `json:"passages"`
}

type apiPassage struct {
	Source         string   `json:"source"`
	Chunk          int      `json:"chunk"`
	Distance       *float64 `json:"distance"`
	Text           string   `json:"text"`
	Highlighted    string   `json:"highlighted"`
	Relevance      string   `json:"relevance"`
	ClosenessWidth string   `json:"closenessWidth"`
	Selected       bool     `json:"selected"`
}

type selectionResponse struct {
	State     string         `json:"state"`
	Effective *selection.Ref `json:"effective,omitempty"`
}

type compareResponse struct {
	Started bool            `json:"started"`
	Loading bool            `json:"loading"`
	Result  *compare.Result `json:"result,omitempty"`
}

type historyResponse struct {
	Runs  []apiRun      `json:"runs"`
	Stats history.Stats `json:"stats"`
	Error string        `json:"error,omitempty"`
}

type apiRun struct {
	RunID      string                `json:"runId"`
	Question   string                `json:"question"`
	Answer     string                `json:"answer,omitempty"`
	TrustScore *int                  `json:"trustScore"`
	LatencyMS  *float64              `json:"latencyMs"`
	TopK       int                   `json:"topK"`
	Passages   int                   `json:"passages"`
	Buckets    evidence.BucketCounts `json:"buckets"`
	Status     string                `json:"status"`
	Label      string                `json:"label,omitempty"`
	CreatedAt  time.Time             `json:"createdAt"`
	Model      string                `json:"model,omitempty"`
}

// viewMessage enriches a stored message with presentation-ready derived
// values: bucket counts, highlight spans, closeness widths, and the effective
// evidence selection.
func (s *Server) viewMessage(msg session.Message, includeOffTopic bool) apiMessage {
	view := apiMessage{
		ID:        msg.ID,
		Role:      string(msg.Role),
		Content:   msg.Content,
		CreatedAt: msg.CreatedAt,
	}

	if result, ok := s.manager.Comparisons().Result(msg.ID); ok {
		view.Comparison = &result
	}
	view.ComparisonLoading = s.manager.Comparisons().Loading(msg.ID)

	if msg.Meta == nil {
		return view
	}

	selected, hasSelection := s.manager.Selection().EffectiveFor(msg.ID)

	passages := evidence.Filtered(msg.Meta.Passages, includeOffTopic)
	viewPassages := make([]apiPassage, 0, len(passages))
	for _, p := range passages {
		viewPassages = append(viewPassages, apiPassage{
			Source:         p.Source,
			Chunk:          p.Chunk,
			Distance:       p.Distance,
			Text:           p.Text,
			Highlighted:    evidence.HighlightTerms(msg.Meta.Question, p.Text),
			Relevance:      p.Relevance,
			ClosenessWidth: evidence.DistanceWidth(p.Distance),
			Selected:       hasSelection && p.Key() == selected,
		})
	}

	view.Meta = &apiAnswerMeta{
		TrustScore:    msg.Meta.TrustScore,
		LatencyMS:     msg.Meta.LatencyMS,
		Question:      msg.Meta.Question,
		TopK:          msg.Meta.TopK,
		ModelUsed:     msg.Meta.ModelUsed,
		UsedFinetuned: msg.Meta.UsedFinetuned,
		Buckets:       evidence.CountBuckets(msg.Meta.Passages),
		Passages:      viewPassages,
	}
	return view
}

func viewRun(run history.Run) apiRun {
	return apiRun{
		RunID:      run.RunID,
		Question:   run.Question,
		Answer:     run.Answer,
		TrustScore: run.TrustScore,
		LatencyMS:  run.LatencyMS,
		TopK:       run.TopK,
		Passages:   len(run.Passages),
		Buckets:    evidence.CountBuckets(run.Passages),
		Status:     string(history.StatusOf(run)),
		Label:      string(run.Label),
		CreatedAt:  run.CreatedAt,
		Model:      run.Model,
	}
}

func stateName(kind selection.Kind) string {
	switch kind {
	case selection.Hovering:
		return "hovering"
	case selection.Pinned:
		return "pinned"
	case selection.PinnedAndHovering:
		return "pinnedAndHovering"
	default:
		return "idle"
	}
}

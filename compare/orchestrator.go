// Package compare runs A/B comparisons: it re-asks a prior question under the
// opposite model variant and holds the juxtaposed result keyed by the
// original answer's message id, without disturbing the session itself.
package compare

import (
	"context"
	"strings"
	"sync"

	"go.uber.org/zap"

	"rag-console/backend"
	"rag-console/evidence"
)

// FailedAnswer is stored when a comparison request does not settle cleanly,
// so the UI always has something to render.
const FailedAnswer = "Comparison failed. Please try again."

// Target carries the stored question and parameters of the message being
// compared against.
type Target struct {
	MessageID     string
	Question      string
	TopK          int
	UsedFinetuned *bool
}

// Result is the ephemeral sibling answer for one message id. Replaced on
// re-request, cleared when the session resets.
type Result struct {
	Answer        string   `json:"answer"`
	ModelUsed     string   `json:"model_used,omitempty"`
	LatencyMS     *float64 `json:"latency_ms"`
	UsedFinetuned *bool    `json:"used_finetuned"`
}

// Querier is the slice of the backend client the orchestrator needs.
type Querier interface {
	Query(ctx context.Context, req backend.QueryRequest) (backend.QueryResponse, error)
}

type Orchestrator struct {
	backend Querier
	logger  *zap.Logger

	mu      sync.Mutex
	results map[string]Result
	loading map[string]int
}

func NewOrchestrator(querier Querier, logger *zap.Logger) *Orchestrator {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Orchestrator{
		backend: querier,
		logger:  logger,
		results: make(map[string]Result),
		loading: make(map[string]int),
	}
}

// Compare issues one query with the same question and breadth but the
// opposite model-variant flag, then stores the result under the message id.
// A target missing its question or variant flag is a silent no-op; no network
// call is made. Overlapping calls for the same message are allowed and the
// later response wins. Reports whether a request was issued.
func (o *Orchestrator) Compare(ctx context.Context, target Target) bool {
	if strings.TrimSpace(target.Question) == "" || target.UsedFinetuned == nil {
		return false
	}

	o.mu.Lock()
	o.loading[target.MessageID]++
	o.mu.Unlock()

	variant := !*target.UsedFinetuned
	resp, err := o.backend.Query(ctx, backend.QueryRequest{
		Query:        target.Question,
		TopK:         target.TopK,
		UseFinetuned: variant,
	})

	o.mu.Lock()
	defer o.mu.Unlock()
	// Overlapping calls for the same message each hold a slot; the flag clears
	// only when the last one settles.
	if o.loading[target.MessageID]--; o.loading[target.MessageID] <= 0 {
		delete(o.loading, target.MessageID)
	}
	if err != nil {
		o.logger.Warn("comparison query failed",
			zap.String("messageId", target.MessageID),
			zap.Error(err))
		o.results[target.MessageID] = Result{Answer: FailedAnswer}
		return true
	}

	o.results[target.MessageID] = Result{
		Answer:        evidence.StripSources(resp.Answer),
		ModelUsed:     resp.ModelUsed,
		LatencyMS:     resp.LatencyMS,
		UsedFinetuned: &variant,
	}
	return true
}

// Result returns the settled comparison for a message, if any.
func (o *Orchestrator) Result(messageID string) (Result, bool) {
	o.mu.Lock()
	defer o.mu.Unlock()
	result, ok := o.results[messageID]
	return result, ok
}

// Loading reports whether any comparison for the message is in flight.
func (o *Orchestrator) Loading(messageID string) bool {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.loading[messageID] > 0
}

// Clear drops all comparison state. Called on session reset.
func (o *Orchestrator) Clear() {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.results = make(map[string]Result)
	o.loading = make(map[string]int)
}

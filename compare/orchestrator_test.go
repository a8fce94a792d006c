package compare

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"rag-console/backend"
)

type stubQuerier struct {
	resp  backend.QueryResponse
	err   error
	calls []backend.QueryRequest
}

func (s *stubQuerier) Query(ctx context.Context, req backend.QueryRequest) (backend.QueryResponse, error) {
	s.calls = append(s.calls, req)
	if s.err != nil {
		return backend.QueryResponse{}, s.err
	}
	return s.resp, nil
}

var _ Querier = (*stubQuerier)(nil)

func boolp(v bool) *bool { return &v }

func TestCompareIsNoOpWithoutQuestion(t *testing.T) {
	querier := &stubQuerier{}
	o := NewOrchestrator(querier, zap.NewNop())

	started := o.Compare(context.Background(), Target{
		MessageID:     "m1",
		Question:      "  ",
		UsedFinetuned: boolp(false),
	})
	assert.False(t, started)
	assert.Empty(t, querier.calls, "precondition failure must not reach the network")
	_, ok := o.Result("m1")
	assert.False(t, ok, "comparison state must stay unchanged")
}

func TestCompareIsNoOpWithoutVariantFlag(t *testing.T) {
	querier := &stubQuerier{}
	o := NewOrchestrator(querier, zap.NewNop())

	started := o.Compare(context.Background(), Target{MessageID: "m1", Question: "q", TopK: 3})
	assert.False(t, started)
	assert.Empty(t, querier.calls)
}

func TestCompareFlipsVariantAndStoresResult(t *testing.T) {
	latency := 12.5
	querier := &stubQuerier{resp: backend.QueryResponse{
		Answer:    "Alt answer\nSources: x.txt",
		ModelUsed: "ft-v2",
		LatencyMS: &latency,
	}}
	o := NewOrchestrator(querier, zap.NewNop())

	started := o.Compare(context.Background(), Target{
		MessageID:     "m1",
		Question:      "original question",
		TopK:          5,
		UsedFinetuned: boolp(false),
	})
	require.True(t, started)

	require.Len(t, querier.calls, 1)
	assert.True(t, querier.calls[0].UseFinetuned, "the opposite variant is requested")
	assert.Equal(t, "original question", querier.calls[0].Query)
	assert.Equal(t, 5, querier.calls[0].TopK)

	result, ok := o.Result("m1")
	require.True(t, ok)
	assert.Equal(t, "Alt answer", result.Answer)
	assert.Equal(t, "ft-v2", result.ModelUsed)
	require.NotNil(t, result.UsedFinetuned)
	assert.True(t, *result.UsedFinetuned)
	assert.False(t, o.Loading("m1"))
}

func TestCompareStoresFixedErrorResult(t *testing.T) {
	querier := &stubQuerier{err: errors.New("boom")}
	o := NewOrchestrator(querier, zap.NewNop())

	started := o.Compare(context.Background(), Target{
		MessageID:     "m1",
		Question:      "q",
		UsedFinetuned: boolp(true),
	})
	require.True(t, started)

	result, ok := o.Result("m1")
	require.True(t, ok, "the UI always has something to render once the call settles")
	assert.Equal(t, FailedAnswer, result.Answer)
	assert.Nil(t, result.UsedFinetuned)
}

func TestCompareReplacesPriorResult(t *testing.T) {
	querier := &stubQuerier{resp: backend.QueryResponse{Answer: "first"}}
	o := NewOrchestrator(querier, zap.NewNop())
	target := Target{MessageID: "m1", Question: "q", UsedFinetuned: boolp(false)}

	o.Compare(context.Background(), target)
	querier.resp.Answer = "second"
	o.Compare(context.Background(), target)

	result, _ := o.Result("m1")
	assert.Equal(t, "second", result.Answer, "the later response wins")
}

type blockingQuerier struct {
	started chan struct{}
	release chan struct{}
	resp    backend.QueryResponse
}

func (b *blockingQuerier) Query(ctx context.Context, req backend.QueryRequest) (backend.QueryResponse, error) {
	b.started <- struct{}{}
	<-b.release
	return b.resp, nil
}

var _ Querier = (*blockingQuerier)(nil)

func TestLoadingCoversOverlappingComparisons(t *testing.T) {
	querier := &blockingQuerier{
		started: make(chan struct{}, 2),
		release: make(chan struct{}),
		resp:    backend.QueryResponse{Answer: "a"},
	}
	o := NewOrchestrator(querier, zap.NewNop())
	target := Target{MessageID: "m1", Question: "q", UsedFinetuned: boolp(false)}

	done := make(chan struct{}, 2)
	for i := 0; i < 2; i++ {
		go func() {
			o.Compare(context.Background(), target)
			done <- struct{}{}
		}()
	}
	<-querier.started
	<-querier.started
	assert.True(t, o.Loading("m1"))

	querier.release <- struct{}{}
	<-done
	assert.True(t, o.Loading("m1"), "the second request is still in flight")

	querier.release <- struct{}{}
	<-done
	assert.False(t, o.Loading("m1"))
}

func TestClearDropsComparisonState(t *testing.T) {
	querier := &stubQuerier{resp: backend.QueryResponse{Answer: "a"}}
	o := NewOrchestrator(querier, zap.NewNop())
	o.Compare(context.Background(), Target{MessageID: "m1", Question: "q", UsedFinetuned: boolp(false)})

	o.Clear()
	_, ok := o.Result("m1")
	assert.False(t, ok)
}

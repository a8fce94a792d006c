package api

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"rag-console/backend"
	"rag-console/evidence"
	"rag-console/history"
	"rag-console/session"
	"rag-console/storage"
)

type stubQuerier struct {
	resp  backend.QueryResponse
	err   error
	calls int
}

func (s *stubQuerier) Query(ctx context.Context, req backend.QueryRequest) (backend.QueryResponse, error) {
	s.calls++
	if s.err != nil {
		return backend.QueryResponse{}, s.err
	}
	return s.resp, nil
}

type stubExporter struct {
	data []byte
	err  error
}

func (s *stubExporter) ExportDataset(ctx context.Context) ([]byte, error) {
	return s.data, s.err
}

type stubRebuilder struct {
	err error
}

func (s *stubRebuilder) Rebuild(ctx context.Context) error {
	return s.err
}

func intp(v int) *int { return &v }

func newTestServer(t *testing.T, querier *stubQuerier, exporter *stubExporter) (*Server, *session.Manager, storage.Store) {
	t.Helper()
	store := storage.NewMemoryStore()
	logger := zap.NewNop()
	manager := session.NewManager(context.Background(), querier, store, logger, session.Options{TopK: 3})
	pipeline := history.NewPipeline(history.NewLocalSource(store, logger), exporter, logger)
	return New(manager, pipeline, &stubRebuilder{}, logger), manager, store
}

func TestHealthz(t *testing.T) {
	server, _, _ := newTestServer(t, &stubQuerier{}, &stubExporter{})

	rec := httptest.NewRecorder()
	server.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/healthz", nil))
	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestAskReturnsEnrichedAnswer(t *testing.T) {
	distance := 0.25
	querier := &stubQuerier{resp: backend.QueryResponse{
		Answer:     "Machine learning is a field.\nSources: ml.txt",
		TrustScore: intp(77),
		Passages: []evidence.Passage{
			{Source: "ml.txt", Chunk: 0, Distance: &distance, Text: "machine learning basics", Relevance: evidence.RelevanceRelated},
		},
	}}
	server, _, _ := newTestServer(t, querier, &stubExporter{})

	rec := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodPost, "/v1/ask", strings.NewReader(`{"question": "what is machine learning"}`))
	server.ServeHTTP(rec, req)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	var msg apiMessage
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &msg))
	assert.Equal(t, "assistant", msg.Role)
	assert.Equal(t, "Machine learning is a field.", msg.Content)
	require.NotNil(t, msg.Meta)
	require.Len(t, msg.Meta.Passages, 1)
	assert.Equal(t, "75%", msg.Meta.Passages[0].ClosenessWidth)
	assert.Contains(t, msg.Meta.Passages[0].Highlighted, "<mark>machine</mark>")
	assert.Equal(t, 1, msg.Meta.Buckets.Related)
}

func TestAskRejectsBlankQuestion(t *testing.T) {
	querier := &stubQuerier{}
	server, _, _ := newTestServer(t, querier, &stubExporter{})

	rec := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodPost, "/v1/ask", strings.NewReader(`{"question": "  "}`))
	server.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Zero(t, querier.calls)
}

func TestSessionClearIsConfirmGated(t *testing.T) {
	server, manager, _ := newTestServer(t, &stubQuerier{resp: backend.QueryResponse{Answer: "hi"}}, &stubExporter{})
	manager.SubmitQuestion(context.Background(), "hello")

	rec := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodPost, "/v1/session/clear", strings.NewReader(`{"confirm": false}`))
	server.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Len(t, manager.Messages(), 2)

	rec = httptest.NewRecorder()
	req = httptest.NewRequest(http.MethodPost, "/v1/session/clear", strings.NewReader(`{"confirm": true}`))
	server.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Empty(t, manager.Messages())
}

func TestCompareWithoutMetadataDoesNotStart(t *testing.T) {
	querier := &stubQuerier{}
	server, _, _ := newTestServer(t, querier, &stubExporter{})

	rec := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodPost, "/v1/compare", strings.NewReader(`{"messageId": "missing"}`))
	server.ServeHTTP(rec, req)
	require.Equal(t, http.StatusOK, rec.Code)

	var resp compareResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.False(t, resp.Started)
	assert.Zero(t, querier.calls)
}

func TestHistoryReflectsSessionRuns(t *testing.T) {
	querier := &stubQuerier{resp: backend.QueryResponse{
		Answer:     "answer",
		TrustScore: intp(90),
		Passages:   []evidence.Passage{{Source: "a.txt", Chunk: 0, Relevance: evidence.RelevanceRelated}},
	}}
	server, manager, _ := newTestServer(t, querier, &stubExporter{})
	manager.SubmitQuestion(context.Background(), "what is ML")

	rec := httptest.NewRecorder()
	server.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/v1/history?search=ml", nil))
	require.Equal(t, http.StatusOK, rec.Code)

	var resp historyResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	require.Len(t, resp.Runs, 1)
	assert.Equal(t, "what is ML", resp.Runs[0].Question)
	assert.Equal(t, string(history.StatusGood), resp.Runs[0].Status)
	assert.Equal(t, 1, resp.Stats.Runs)
	assert.Equal(t, 90, resp.Stats.AvgTrust)
}

func TestHistoryExportServesAttachment(t *testing.T) {
	server, _, _ := newTestServer(t, &stubQuerier{}, &stubExporter{data: []byte("{\"q\":\"a\"}\n")})

	rec := httptest.NewRecorder()
	server.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/v1/history/export", nil))
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Header().Get("Content-Disposition"), "rag_dataset.jsonl")
	assert.Equal(t, "{\"q\":\"a\"}\n", rec.Body.String())
}

func TestSelectionEndpoint(t *testing.T) {
	server, _, _ := newTestServer(t, &stubQuerier{}, &stubExporter{})

	rec := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodPost, "/v1/selection",
		strings.NewReader(`{"action": "click", "messageId": "m1", "source": "a.txt", "chunk": 2}`))
	server.ServeHTTP(rec, req)
	require.Equal(t, http.StatusOK, rec.Code)

	var resp selectionResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Equal(t, "pinned", resp.State)
	require.NotNil(t, resp.Effective)
	assert.Equal(t, "m1", resp.Effective.MessageID)
	assert.Equal(t, 2, resp.Effective.Passage.Chunk)
}

package backend

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"rag-console/evidence"
)

func TestQueryNormalizesResponse(t *testing.T) {
	var gotBody map[string]any
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, http.MethodPost, r.Method)
		require.Equal(t, "/api/query", r.URL.Path)
		require.NoError(t, json.NewDecoder(r.Body).Decode(&gotBody))

		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{
			"answer": "Paris is the capital.",
			"latency_ms": 321.5,
			"trust_score": 85,
			"chunks": [
				{"source": "geo.txt", "chunk": 0, "distance": 0.2, "text": "Paris", "relevance": "Related"},
				{"source": "geo.txt", "chunk": 1, "text": "France"}
			]
		}`))
	}))
	defer server.Close()

	client := NewClient(server.URL)
	resp, err := client.Query(context.Background(), QueryRequest{Query: "capital of France?", TopK: 3})
	require.NoError(t, err)

	assert.Equal(t, "capital of France?", gotBody["query"])
	assert.Equal(t, float64(3), gotBody["top_k"])
	assert.Equal(t, false, gotBody["use_finetuned"])

	assert.Equal(t, "Paris is the capital.", resp.Answer)
	require.NotNil(t, resp.TrustScore)
	assert.Equal(t, 85, *resp.TrustScore)
	require.Len(t, resp.Passages, 2)

	// Optional wire fields are defaulted once, at this boundary.
	assert.Nil(t, resp.Passages[1].Distance)
	assert.Equal(t, evidence.RelevanceUnknown, resp.Passages[1].Relevance)
	assert.Equal(t, "", resp.ModelUsed)
}

func TestQueryReportsBackendError(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, `{"detail": "index not built"}`, http.StatusInternalServerError)
	}))
	defer server.Close()

	client := NewClient(server.URL)
	_, err := client.Query(context.Background(), QueryRequest{Query: "q", TopK: 1})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "500")
	assert.Contains(t, err.Error(), "index not built")
}

func TestRunsNormalizesWireNames(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "/api/runs", r.URL.Path)
		require.Equal(t, "25", r.URL.Query().Get("limit"))

		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`[
			{
				"run_id": "r1",
				"timestamp": "2026-08-01T12:00:00Z",
				"query": "what is ML",
				"answer": "...",
				"latency_ms": 10,
				"trust_score": 70,
				"top_k": 3,
				"label": "good",
				"retrieved": [{"source": "ml.txt", "chunk": 2, "relevance": "Related", "text": "..."}]
			},
			{"run_id": "r2", "query": "define X"}
		]`))
	}))
	defer server.Close()

	client := NewClient(server.URL)
	runs, err := client.Runs(context.Background(), 25)
	require.NoError(t, err)
	require.Len(t, runs, 2)

	assert.Equal(t, "what is ML", runs[0].Question)
	assert.Equal(t, "good", runs[0].Label)
	assert.Equal(t, 2026, runs[0].Timestamp.Year())
	require.Len(t, runs[0].Retrieved, 1)
	assert.Equal(t, evidence.RelevanceRelated, runs[0].Retrieved[0].Relevance)

	// Missing optional fields default instead of failing.
	assert.Nil(t, runs[1].TrustScore)
	assert.Nil(t, runs[1].LatencyMS)
	assert.True(t, runs[1].Timestamp.IsZero())
	assert.Empty(t, runs[1].Retrieved)
}

func TestUpdateRunLabel(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, http.MethodPatch, r.Method)
		require.Equal(t, "/api/runs/r1", r.URL.Path)

		var body map[string]string
		require.NoError(t, json.NewDecoder(r.Body).Decode(&body))
		require.Equal(t, "mixed", body["label"])

		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"run_id": "r1", "query": "q", "label": "mixed"}`))
	}))
	defer server.Close()

	client := NewClient(server.URL)
	rec, err := client.UpdateRunLabel(context.Background(), "r1", "mixed")
	require.NoError(t, err)
	assert.Equal(t, "mixed", rec.Label)
}

func TestClearRunsUsesDelete(t *testing.T) {
	var gotMethod string
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotMethod = r.Method
		w.Write([]byte(`{"message": "cleared"}`))
	}))
	defer server.Close()

	client := NewClient(server.URL)
	require.NoError(t, client.ClearRuns(context.Background()))
	assert.Equal(t, http.MethodDelete, gotMethod)
}

func TestExportDataset(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "/api/export-dataset", r.URL.Path)
		w.Write([]byte("{\"q\": \"a\"}\n{\"q\": \"b\"}\n"))
	}))
	defer server.Close()

	client := NewClient(server.URL)
	data, err := client.ExportDataset(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "{\"q\": \"a\"}\n{\"q\": \"b\"}\n", string(data))
}

// Package backend is the HTTP client for the RAG backend. Retrieval,
// relevance classification, trust scoring, and generation all happen behind
// this contract; the client only speaks it and normalizes the responses.
package backend

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"
)

type Client struct {
	baseURL string
	client  *http.Client
}

func NewClient(baseURL string) *Client {
	return &Client{
		baseURL: strings.TrimRight(baseURL, "/"),
		client: &http.Client{
			Timeout: 120 * time.Second,
		},
	}
}

// Query asks the backend one question and returns the normalized answer.
func (c *Client) Query(ctx context.Context, req QueryRequest) (QueryResponse, error) {
	var wire queryResponseWire
	if err := c.doJSON(ctx, http.MethodPost, "/api/query", req, &wire); err != nil {
		return QueryResponse{}, err
	}
	return wire.normalize(), nil
}

// Rebuild triggers a full reindex on the backend.
func (c *Client) Rebuild(ctx context.Context) error {
	return c.doJSON(ctx, http.MethodPost, "/api/rebuild", nil, nil)
}

// Health checks the backend's liveness endpoint.
func (c *Client) Health(ctx context.Context) error {
	return c.doJSON(ctx, http.MethodGet, "/health", nil, nil)
}

// Runs fetches a bounded page of the backend's run log.
func (c *Client) Runs(ctx context.Context, limit int) ([]RunRecord, error) {
	var wire []runWire
	path := fmt.Sprintf("/api/runs?limit=%d", limit)
	if err := c.doJSON(ctx, http.MethodGet, path, nil, &wire); err != nil {
		return nil, err
	}
	records := make([]RunRecord, 0, len(wire))
	for _, w := range wire {
		records = append(records, w.normalize())
	}
	return records, nil
}

// UpdateRunLabel assigns a human label to one logged run.
func (c *Client) UpdateRunLabel(ctx context.Context, runID, label string) (RunRecord, error) {
	body := map[string]string{"label": label}
	var wire runWire
	path := "/api/runs/" + runID
	if err := c.doJSON(ctx, http.MethodPatch, path, body, &wire); err != nil {
		return RunRecord{}, err
	}
	return wire.normalize(), nil
}

// ClearRuns deletes the backend's run log.
func (c *Client) ClearRuns(ctx context.Context) error {
	return c.doJSON(ctx, http.MethodDelete, "/api/runs", nil, nil)
}

// ExportDataset fetches the newline-delimited dataset dump.
func (c *Client) ExportDataset(ctx context.Context) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"/api/export-dataset", nil)
	if err != nil {
		return nil, fmt.Errorf("create export request: %w", err)
	}

	resp, err := c.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("call export API: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 400 {
		return nil, statusError(resp)
	}

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("read export body: %w", err)
	}
	return data, nil
}

func (c *Client) doJSON(ctx context.Context, method, path string, payload, out any) error {
	var body io.Reader
	if payload != nil {
		data, err := json.Marshal(payload)
		if err != nil {
			return fmt.Errorf("marshal %s request: %w", path, err)
		}
		body = bytes.NewReader(data)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, body)
	if err != nil {
		return fmt.Errorf("create %s request: %w", path, err)
	}
	if payload != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.client.Do(req)
	if err != nil {
		return fmt.Errorf("call backend %s: %w", path, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 400 {
		return statusError(resp)
	}

	if out == nil {
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("decode %s response: %w", path, err)
	}
	return nil
}

func statusError(resp *http.Response) error {
	data, readErr := io.ReadAll(resp.Body)
	if readErr == nil && len(data) > 0 {
		return fmt.Errorf("backend returned status %s: %s", resp.Status, strings.TrimSpace(string(data)))
	}
	return fmt.Errorf("backend returned status %s", resp.Status)
}

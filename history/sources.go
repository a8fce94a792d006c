package history

import (
	"context"
	"encoding/json"
	"fmt"

	"go.uber.org/zap"

	"rag-console/backend"
	"rag-console/storage"
)

// LocalSource reads the run snapshot the session manager writes to durable
// client storage. Mutations never leave the client.
type LocalSource struct {
	store  storage.Store
	logger *zap.Logger
}

func NewLocalSource(store storage.Store, logger *zap.Logger) *LocalSource {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &LocalSource{store: store, logger: logger}
}

func (s *LocalSource) Load(ctx context.Context) ([]Run, error) {
	data, err := s.store.Load(ctx, storage.KeyRunHistory)
	if err != nil {
		s.logger.Warn("run history unavailable, treating as empty", zap.Error(err))
		return nil, nil
	}
	if len(data) == 0 {
		return nil, nil
	}

	var runs []Run
	if err := json.Unmarshal(data, &runs); err != nil {
		s.logger.Warn("run history corrupt, treating as empty", zap.Error(err))
		return nil, nil
	}
	return runs, nil
}

func (s *LocalSource) SetLabel(ctx context.Context, runID string, label Label) (Run, error) {
	runs, err := s.Load(ctx)
	if err != nil {
		return Run{}, err
	}

	for i := range runs {
		if runs[i].RunID != runID {
			continue
		}
		runs[i].Label = label
		data, err := json.Marshal(runs)
		if err != nil {
			return Run{}, fmt.Errorf("encode run history: %w", err)
		}
		if err := s.store.Save(ctx, storage.KeyRunHistory, data); err != nil {
			return Run{}, fmt.Errorf("save run history: %w", err)
		}
		return runs[i], nil
	}
	return Run{}, fmt.Errorf("run %s not found", runID)
}

// Clear removes the local snapshot. Storage failure is logged and swallowed;
// clearing locally always empties the view immediately.
func (s *LocalSource) Clear(ctx context.Context) error {
	if err := s.store.Delete(ctx, storage.KeyRunHistory); err != nil {
		s.logger.Warn("failed to remove run history key", zap.Error(err))
	}
	return nil
}

// LogClient is the part of the backend client the pipeline depends on.
type LogClient interface {
	Runs(ctx context.Context, limit int) ([]backend.RunRecord, error)
	UpdateRunLabel(ctx context.Context, runID, label string) (backend.RunRecord, error)
	ClearRuns(ctx context.Context) error
}

// BackendSource pages the backend's run log.
type BackendSource struct {
	client LogClient
	limit  int
}

func NewBackendSource(client LogClient, limit int) *BackendSource {
	if limit <= 0 {
		limit = 200
	}
	return &BackendSource{client: client, limit: limit}
}

func (s *BackendSource) Load(ctx context.Context) ([]Run, error) {
	records, err := s.client.Runs(ctx, s.limit)
	if err != nil {
		return nil, err
	}
	runs := make([]Run, 0, len(records))
	for _, rec := range records {
		runs = append(runs, fromBackendRecord(rec))
	}
	return runs, nil
}

func (s *BackendSource) SetLabel(ctx context.Context, runID string, label Label) (Run, error) {
	rec, err := s.client.UpdateRunLabel(ctx, runID, string(label))
	if err != nil {
		return Run{}, err
	}
	return fromBackendRecord(rec), nil
}

func (s *BackendSource) Clear(ctx context.Context) error {
	return s.client.ClearRuns(ctx)
}

func fromBackendRecord(rec backend.RunRecord) Run {
	return Run{
		RunID:      rec.RunID,
		Question:   rec.Question,
		Answer:     rec.Answer,
		TrustScore: rec.TrustScore,
		LatencyMS:  rec.LatencyMS,
		TopK:       rec.TopK,
		Passages:   rec.Retrieved,
		CreatedAt:  rec.Timestamp,
		Label:      Label(rec.Label),
		Model:      rec.Model,
		EvalNotes:  rec.EvalNotes,
	}
}

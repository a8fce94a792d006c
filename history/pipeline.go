// Package history loads past runs from durable client storage or from the
// backend's run log and prepares them for display: summary statistics, a
// deterministic filter/classify/sort pipeline, label mutation, and export.
package history

import (
	"context"
	"fmt"
	"sync"

	"go.uber.org/zap"
)

// Source supplies and mutates the underlying run set. The pipeline is a
// read-through cache over it, never the source of truth.
type Source interface {
	Load(ctx context.Context) ([]Run, error)
	SetLabel(ctx context.Context, runID string, label Label) (Run, error)
	Clear(ctx context.Context) error
}

// Exporter produces the newline-delimited dataset dump. Export always goes
// through the backend regardless of where the run set was loaded from.
type Exporter interface {
	ExportDataset(ctx context.Context) ([]byte, error)
}

type Pipeline struct {
	source   Source
	exporter Exporter
	logger   *zap.Logger

	mu      sync.Mutex
	runs    []Run
	lastErr string
}

func NewPipeline(source Source, exporter Exporter, logger *zap.Logger) *Pipeline {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Pipeline{source: source, exporter: exporter, logger: logger}
}

// Refresh reloads the run set and assigns load ordinals.
func (p *Pipeline) Refresh(ctx context.Context) error {
	runs, err := p.source.Load(ctx)
	if err != nil {
		p.mu.Lock()
		p.lastErr = fmt.Sprintf("load runs: %v", err)
		p.mu.Unlock()
		return fmt.Errorf("load runs: %w", err)
	}
	for i := range runs {
		runs[i].Ordinal = i
	}

	p.mu.Lock()
	p.runs = runs
	p.lastErr = ""
	p.mu.Unlock()
	return nil
}

// Runs returns a copy of the loaded set.
func (p *Pipeline) Runs() []Run {
	p.mu.Lock()
	defer p.mu.Unlock()
	return append([]Run(nil), p.runs...)
}

// Stats summarizes the loaded set.
func (p *Pipeline) Stats() Stats {
	p.mu.Lock()
	defer p.mu.Unlock()
	return Summarize(p.runs)
}

// Select runs the filter/classify/sort pipeline over the loaded set.
func (p *Pipeline) Select(q Query) []Run {
	return View(p.Runs(), q)
}

// Err returns the retained error banner, if any.
func (p *Pipeline) Err() string {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.lastErr
}

// SetLabel assigns a label to one run. Local state changes only after the
// source accepts the mutation; failure retains an error banner without
// discarding the run list.
func (p *Pipeline) SetLabel(ctx context.Context, runID string, label Label) error {
	if !ValidLabel(label) {
		return fmt.Errorf("invalid label: %q", label)
	}

	updated, err := p.source.SetLabel(ctx, runID, label)
	if err != nil {
		p.mu.Lock()
		p.lastErr = fmt.Sprintf("update label: %v", err)
		p.mu.Unlock()
		return fmt.Errorf("update label: %w", err)
	}

	p.mu.Lock()
	defer p.mu.Unlock()
	for i := range p.runs {
		if p.runs[i].RunID == runID {
			ordinal := p.runs[i].Ordinal
			p.runs[i] = updated
			p.runs[i].Ordinal = ordinal
			break
		}
	}
	p.lastErr = ""
	return nil
}

// Export fetches the formatted dataset dump.
func (p *Pipeline) Export(ctx context.Context) ([]byte, error) {
	if p.exporter == nil {
		return nil, fmt.Errorf("no exporter configured")
	}
	data, err := p.exporter.ExportDataset(ctx)
	if err != nil {
		p.mu.Lock()
		p.lastErr = fmt.Sprintf("export dataset: %v", err)
		p.mu.Unlock()
		return nil, fmt.Errorf("export dataset: %w", err)
	}

	p.mu.Lock()
	p.lastErr = ""
	p.mu.Unlock()
	return data, nil
}

// Clear destroys the underlying run set. The in-memory list is emptied only
// after the source clear succeeds. Callers must confirm first.
func (p *Pipeline) Clear(ctx context.Context, confirmed bool) error {
	if !confirmed {
		return fmt.Errorf("confirm must be true to clear run history")
	}
	if err := p.source.Clear(ctx); err != nil {
		p.mu.Lock()
		p.lastErr = fmt.Sprintf("clear runs: %v", err)
		p.mu.Unlock()
		return fmt.Errorf("clear runs: %w", err)
	}

	p.mu.Lock()
	p.runs = nil
	p.lastErr = ""
	p.mu.Unlock()
	return nil
}

// Package session owns the ordered conversation, persists and restores it,
// and issues query requests to the backend, attaching correlated evidence to
// each answer.
package session

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"rag-console/backend"
	"rag-console/compare"
	"rag-console/evidence"
	"rag-console/history"
	"rag-console/selection"
	"rag-console/storage"
)

// apologyAnswer is appended in place of an answer when a query does not
// settle cleanly. The underlying error is logged, never surfaced.
const apologyAnswer = "Sorry, I wasn't able to get an answer just now. Please try again."

// Querier is the slice of the backend client the manager needs.
type Querier interface {
	Query(ctx context.Context, req backend.QueryRequest) (backend.QueryResponse, error)
}

type Options struct {
	TopK         int
	UseFinetuned bool
}

type Manager struct {
	backend     Querier
	store       storage.Store
	logger      *zap.Logger
	selection   *selection.Machine
	comparisons *compare.Orchestrator

	mu           sync.Mutex
	messages     []Message
	inflight     bool
	topK         int
	useFinetuned bool
}

// NewManager restores any previously stored session before returning. A
// corrupt snapshot is logged and treated as no prior session.
func NewManager(ctx context.Context, querier Querier, store storage.Store, logger *zap.Logger, opts Options) *Manager {
	if logger == nil {
		logger = zap.NewNop()
	}
	if opts.TopK <= 0 {
		opts.TopK = 3
	}

	m := &Manager{
		backend:      querier,
		store:        store,
		logger:       logger,
		selection:    selection.NewMachine(),
		comparisons:  compare.NewOrchestrator(querier, logger),
		topK:         opts.TopK,
		useFinetuned: opts.UseFinetuned,
	}
	m.restore(ctx)
	return m
}

func (m *Manager) restore(ctx context.Context) {
	data, err := m.store.Load(ctx, storage.KeyMessages)
	if err != nil {
		m.logger.Warn("session restore failed, starting empty", zap.Error(err))
		return
	}
	if len(data) == 0 {
		return
	}

	var messages []Message
	if err := json.Unmarshal(data, &messages); err != nil {
		m.logger.Warn("stored session corrupt, starting empty", zap.Error(err))
		return
	}
	m.messages = messages
}

// SubmitQuestion appends the user's question and asks the backend. It is a
// no-op when the text is blank or another question is already in flight.
// Query failures are swallowed into a fixed apology answer. Reports whether a
// request was issued along with the appended assistant message.
func (m *Manager) SubmitQuestion(ctx context.Context, text string) (Message, bool) {
	text = strings.TrimSpace(text)
	if text == "" {
		return Message{}, false
	}

	m.mu.Lock()
	if m.inflight {
		m.mu.Unlock()
		return Message{}, false
	}
	m.inflight = true
	topK := m.topK
	useFinetuned := m.useFinetuned
	m.messages = append(m.messages, Message{
		ID:        uuid.NewString(),
		Role:      RoleUser,
		Content:   text,
		CreatedAt: time.Now(),
	})
	m.persistLocked(ctx)
	m.mu.Unlock()

	resp, err := m.backend.Query(ctx, backend.QueryRequest{
		Query:        text,
		TopK:         topK,
		UseFinetuned: useFinetuned,
	})

	m.mu.Lock()
	defer m.mu.Unlock()
	m.inflight = false

	answer := Message{
		ID:        uuid.NewString(),
		Role:      RoleAssistant,
		CreatedAt: time.Now(),
	}
	if err != nil {
		m.logger.Error("query failed", zap.String("question", text), zap.Error(err))
		answer.Content = apologyAnswer
	} else {
		answer.Content = evidence.StripSources(resp.Answer)
		answer.Meta = &AnswerMeta{
			TrustScore:    resp.TrustScore,
			LatencyMS:     resp.LatencyMS,
			Question:      text,
			TopK:          topK,
			Passages:      evidence.Correlate(resp.Passages),
			ModelUsed:     resp.ModelUsed,
			UsedFinetuned: &useFinetuned,
		}
		m.comparisons.Clear()
	}

	m.messages = append(m.messages, answer)
	m.selection.Reset()
	m.persistLocked(ctx)
	m.emitRunHistoryLocked(ctx)
	return answer, true
}

// Clear empties the session and removes its durable copies. Callers must
// confirm first.
func (m *Manager) Clear(ctx context.Context, confirmed bool) error {
	if !confirmed {
		return fmt.Errorf("confirm must be true to clear the session")
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	m.messages = nil
	m.selection.Reset()
	m.comparisons.Clear()

	if err := m.store.Delete(ctx, storage.KeyMessages); err != nil {
		m.logger.Warn("failed to remove session key", zap.Error(err))
	}
	if err := m.store.Delete(ctx, storage.KeyRunHistory); err != nil {
		m.logger.Warn("failed to remove run history key", zap.Error(err))
	}
	return nil
}

// Messages returns a copy of the conversation.
func (m *Manager) Messages() []Message {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]Message(nil), m.messages...)
}

// Message looks up one turn by id.
func (m *Manager) Message(id string) (Message, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, msg := range m.messages {
		if msg.ID == id {
			return msg, true
		}
	}
	return Message{}, false
}

// ComparisonTarget resolves the stored question and parameters an A/B
// comparison needs. The second return is false when the message is unknown or
// carries no metadata.
func (m *Manager) ComparisonTarget(id string) (compare.Target, bool) {
	msg, ok := m.Message(id)
	if !ok || msg.Meta == nil {
		return compare.Target{}, false
	}
	return compare.Target{
		MessageID:     msg.ID,
		Question:      msg.Meta.Question,
		TopK:          msg.Meta.TopK,
		UsedFinetuned: msg.Meta.UsedFinetuned,
	}, true
}

func (m *Manager) Selection() *selection.Machine {
	return m.selection
}

func (m *Manager) Comparisons() *compare.Orchestrator {
	return m.comparisons
}

func (m *Manager) SetTopK(k int) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if k > 0 {
		m.topK = k
	}
}

func (m *Manager) TopK() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.topK
}

func (m *Manager) SetUseFinetuned(v bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.useFinetuned = v
}

func (m *Manager) UseFinetuned() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.useFinetuned
}

// persistLocked serializes the full message list after every mutation.
// Storage failure is logged, never propagated.
func (m *Manager) persistLocked(ctx context.Context) {
	data, err := json.Marshal(m.messages)
	if err != nil {
		m.logger.Warn("encode session failed", zap.Error(err))
		return
	}
	if err := m.store.Save(ctx, storage.KeyMessages, data); err != nil {
		m.logger.Warn("persist session failed", zap.Error(err))
	}
}

// emitRunHistoryLocked derives one run summary per answered question and
// writes the snapshot for the history view. Best effort.
func (m *Manager) emitRunHistoryLocked(ctx context.Context) {
	runs := make([]history.Run, 0, len(m.messages))
	for _, msg := range m.messages {
		if msg.Role != RoleAssistant || msg.Meta == nil {
			continue
		}
		runs = append(runs, history.Run{
			RunID:      msg.ID,
			Question:   msg.Meta.Question,
			Answer:     msg.Content,
			TrustScore: msg.Meta.TrustScore,
			LatencyMS:  msg.Meta.LatencyMS,
			TopK:       msg.Meta.TopK,
			Passages:   msg.Meta.Passages,
			CreatedAt:  msg.CreatedAt,
			Model:      msg.Meta.ModelUsed,
		})
	}

	data, err := json.Marshal(runs)
	if err != nil {
		m.logger.Warn("encode run history failed", zap.Error(err))
		return
	}
	if err := m.store.Save(ctx, storage.KeyRunHistory, data); err != nil {
		m.logger.Warn("persist run history failed", zap.Error(err))
	}
}

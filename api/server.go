// Package api exposes the interaction layer over local HTTP so a browser
// view can drive the session, comparisons, and run history.
package api

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"strings"

	"go.uber.org/zap"

	"rag-console/evidence"
	"rag-console/history"
	"rag-console/selection"
	"rag-console/session"
)

// Rebuilder triggers a full reindex on the backend.
type Rebuilder interface {
	Rebuild(ctx context.Context) error
}

type Server struct {
	manager   *session.Manager
	pipeline  *history.Pipeline
	rebuilder Rebuilder
	logger    *zap.Logger
	handler   http.Handler
}

type messageResponse struct {
	Message string `json:"message"`
}

type errorResponse struct {
	Error string `json:"error"`
}

type confirmRequest struct {
	Confirm bool `json:"confirm"`
}

type askRequest struct {
	Question     string `json:"question"`
	TopK         int    `json:"topK"`
	UseFinetuned *bool  `json:"useFinetuned"`
}

type compareRequest struct {
	MessageID string `json:"messageId"`
}

type selectionRequest struct {
	Action    string `json:"action"`
	MessageID string `json:"messageId"`
	Source    string `json:"source"`
	Chunk     int    `json:"chunk"`
}

type labelRequest struct {
	RunID string `json:"runId"`
	Label string `json:"label"`
}

func New(manager *session.Manager, pipeline *history.Pipeline, rebuilder Rebuilder, logger *zap.Logger) *Server {
	if logger == nil {
		logger = zap.NewNop()
	}

	s := &Server{
		manager:   manager,
		pipeline:  pipeline,
		rebuilder: rebuilder,
		logger:    logger,
	}
	s.handler = s.routes()
	return s
}

func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.handler.ServeHTTP(w, r)
}

func (s *Server) Handler() http.Handler {
	return s.handler
}

func (s *Server) routes() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("/healthz", s.handleHealth)
	mux.HandleFunc("/v1/ask", s.handleAsk)
	mux.HandleFunc("/v1/session", s.handleSession)
	mux.HandleFunc("/v1/session/clear", s.handleSessionClear)
	mux.HandleFunc("/v1/selection", s.handleSelection)
	mux.HandleFunc("/v1/compare", s.handleCompare)
	mux.HandleFunc("/v1/history", s.handleHistory)
	mux.HandleFunc("/v1/history/label", s.handleHistoryLabel)
	mux.HandleFunc("/v1/history/export", s.handleHistoryExport)
	mux.HandleFunc("/v1/history/clear", s.handleHistoryClear)
	mux.HandleFunc("/v1/rebuild", s.handleRebuild)
	return mux
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		s.methodNotAllowed(w, http.MethodGet)
		return
	}

	s.writeJSON(w, http.StatusOK, messageResponse{Message: "ok"})
}

func (s *Server) handleAsk(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		s.methodNotAllowed(w, http.MethodPost)
		return
	}

	var req askRequest
	if err := decodeJSON(r, &req); err != nil {
		s.writeError(w, http.StatusBadRequest, fmt.Errorf("decode request: %w", err))
		return
	}

	if strings.TrimSpace(req.Question) == "" {
		s.writeError(w, http.StatusBadRequest, fmt.Errorf("question is required"))
		return
	}

	if req.TopK > 0 {
		s.manager.SetTopK(req.TopK)
	}
	if req.UseFinetuned != nil {
		s.manager.SetUseFinetuned(*req.UseFinetuned)
	}

	answer, ok := s.manager.SubmitQuestion(r.Context(), req.Question)
	if !ok {
		s.writeError(w, http.StatusConflict, fmt.Errorf("a question is already in flight"))
		return
	}

	s.writeJSON(w, http.StatusOK, s.viewMessage(answer, true))
}

func (s *Server) handleSession(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		s.methodNotAllowed(w, http.MethodGet)
		return
	}

	includeOffTopic := true
	if raw := r.URL.Query().Get("offtopic"); raw != "" {
		if parsed, err := strconv.ParseBool(raw); err == nil {
			includeOffTopic = parsed
		}
	}

	messages := s.manager.Messages()
	view := make([]apiMessage, 0, len(messages))
	for _, msg := range messages {
		view = append(view, s.viewMessage(msg, includeOffTopic))
	}

	s.writeJSON(w, http.StatusOK, sessionResponse{
		Messages:     view,
		TopK:         s.manager.TopK(),
		UseFinetuned: s.manager.UseFinetuned(),
	})
}

func (s *Server) handleSessionClear(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		s.methodNotAllowed(w, http.MethodPost)
		return
	}

	var req confirmRequest
	if err := decodeJSON(r, &req); err != nil {
		s.writeError(w, http.StatusBadRequest, fmt.Errorf("decode request: %w", err))
		return
	}

	if err := s.manager.Clear(r.Context(), req.Confirm); err != nil {
		s.writeError(w, http.StatusBadRequest, err)
		return
	}

	s.writeJSON(w, http.StatusOK, messageResponse{Message: "session cleared"})
}

func (s *Server) handleSelection(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		s.methodNotAllowed(w, http.MethodPost)
		return
	}

	var req selectionRequest
	if err := decodeJSON(r, &req); err != nil {
		s.writeError(w, http.StatusBadRequest, fmt.Errorf("decode request: %w", err))
		return
	}

	machine := s.manager.Selection()
	ref := selection.Ref{
		MessageID: req.MessageID,
		Passage:   evidence.Key{Source: req.Source, Chunk: req.Chunk},
	}

	switch req.Action {
	case "enter":
		machine.Enter(ref)
	case "leave":
		machine.Leave()
	case "click":
		machine.Click(ref)
	case "reset":
		machine.Reset()
	default:
		s.writeError(w, http.StatusBadRequest, fmt.Errorf("unknown selection action: %q", req.Action))
		return
	}

	resp := selectionResponse{State: stateName(machine.State())}
	if effective, ok := machine.Effective(); ok {
		resp.Effective = &effective
	}
	s.writeJSON(w, http.StatusOK, resp)
}

func (s *Server) handleCompare(w http.ResponseWriter, r *http.Request) {
	switch r.Method {
	case http.MethodPost:
		var req compareRequest
		if err := decodeJSON(r, &req); err != nil {
			s.writeError(w, http.StatusBadRequest, fmt.Errorf("decode request: %w", err))
			return
		}

		target, ok := s.manager.ComparisonTarget(req.MessageID)
		if !ok {
			s.writeJSON(w, http.StatusOK, compareResponse{Started: false})
			return
		}

		// The comparison keeps running even if the caller moves on, so it
		// gets a fresh context rather than the request's.
		go s.manager.Comparisons().Compare(context.Background(), target)
		s.writeJSON(w, http.StatusOK, compareResponse{Started: true, Loading: true})

	case http.MethodGet:
		messageID := r.URL.Query().Get("messageId")
		resp := compareResponse{Loading: s.manager.Comparisons().Loading(messageID)}
		if result, ok := s.manager.Comparisons().Result(messageID); ok {
			resp.Result = &result
		}
		s.writeJSON(w, http.StatusOK, resp)

	default:
		s.methodNotAllowed(w, "GET, POST")
	}
}

func (s *Server) handleHistory(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		s.methodNotAllowed(w, http.MethodGet)
		return
	}

	if err := s.pipeline.Refresh(r.Context()); err != nil {
		s.logger.Warn("history refresh failed", zap.Error(err))
	}

	params := r.URL.Query()
	order := history.OrderNewest
	if params.Get("order") == string(history.OrderOldest) {
		order = history.OrderOldest
	}
	runs := s.pipeline.Select(history.Query{
		Search: params.Get("search"),
		Status: params.Get("status"),
		Order:  order,
	})

	view := make([]apiRun, 0, len(runs))
	for _, run := range runs {
		view = append(view, viewRun(run))
	}

	s.writeJSON(w, http.StatusOK, historyResponse{
		Runs:  view,
		Stats: s.pipeline.Stats(),
		Error: s.pipeline.Err(),
	})
}

func (s *Server) handleHistoryLabel(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		s.methodNotAllowed(w, http.MethodPost)
		return
	}

	var req labelRequest
	if err := decodeJSON(r, &req); err != nil {
		s.writeError(w, http.StatusBadRequest, fmt.Errorf("decode request: %w", err))
		return
	}

	if err := s.pipeline.SetLabel(r.Context(), req.RunID, history.Label(req.Label)); err != nil {
		s.writeError(w, http.StatusBadGateway, err)
		return
	}

	s.writeJSON(w, http.StatusOK, messageResponse{Message: "label updated"})
}

func (s *Server) handleHistoryExport(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		s.methodNotAllowed(w, http.MethodGet)
		return
	}

	data, err := s.pipeline.Export(r.Context())
	if err != nil {
		s.writeError(w, http.StatusBadGateway, err)
		return
	}

	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	w.Header().Set("Content-Disposition", "attachment; filename=\"rag_dataset.jsonl\"")
	if _, err := w.Write(data); err != nil {
		s.logger.Warn("write export payload", zap.Error(err))
	}
}

func (s *Server) handleHistoryClear(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		s.methodNotAllowed(w, http.MethodPost)
		return
	}

	var req confirmRequest
	if err := decodeJSON(r, &req); err != nil {
		s.writeError(w, http.StatusBadRequest, fmt.Errorf("decode request: %w", err))
		return
	}

	if !req.Confirm {
		s.writeError(w, http.StatusBadRequest, fmt.Errorf("confirm must be true to clear run history"))
		return
	}

	if err := s.pipeline.Clear(r.Context(), true); err != nil {
		s.writeError(w, http.StatusBadGateway, err)
		return
	}

	s.writeJSON(w, http.StatusOK, messageResponse{Message: "run history cleared"})
}

func (s *Server) handleRebuild(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		s.methodNotAllowed(w, http.MethodPost)
		return
	}

	if err := s.rebuilder.Rebuild(r.Context()); err != nil {
		s.writeError(w, http.StatusBadGateway, fmt.Errorf("rebuild failed: %w", err))
		return
	}

	s.writeJSON(w, http.StatusOK, messageResponse{Message: "index rebuilt"})
}

func (s *Server) methodNotAllowed(w http.ResponseWriter, allowed string) {
	w.Header().Set("Allow", allowed)
	s.writeError(w, http.StatusMethodNotAllowed, fmt.Errorf("method not allowed, use %s", allowed))
}

func (s *Server) writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(payload); err != nil {
		s.logger.Warn("encode response", zap.Error(err))
	}
}

func (s *Server) writeError(w http.ResponseWriter, status int, err error) {
	s.logger.Warn("api error", zap.Int("status", status), zap.Error(err))
	s.writeJSON(w, status, errorResponse{Error: err.Error()})
}

func decodeJSON(r *http.Request, dst any) error {
	if r.Body == nil {
		return nil
	}
	defer r.Body.Close()

	dec := json.NewDecoder(r.Body)
	dec.DisallowUnknownFields()
	if err := dec.Decode(dst); err != nil {
		if err == io.EOF {
			return nil
		}
		return err
	}

	if dec.More() {
		return fmt.Errorf("request body must contain a single JSON object")
	}

	return nil
}

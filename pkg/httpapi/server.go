// Package httpapi exposes the research agent over HTTP: synchronous and
// streaming run endpoints, model administration, and health.
package httpapi

import (
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"github.com/zen-systems/nexus/pkg/adapter"
	"github.com/zen-systems/nexus/pkg/config"
	"github.com/zen-systems/nexus/pkg/events"
	"github.com/zen-systems/nexus/pkg/evidence"
	"github.com/zen-systems/nexus/pkg/research"
	"github.com/zen-systems/nexus/pkg/search"
)

// Server wires the research runner behind HTTP handlers. Each run
// snapshots role bindings and agent options at start, so admin changes
// only affect runs started afterwards.
type Server struct {
	registry *adapter.Registry
	provider search.Provider
	bus      *events.Bus
	cfg      *config.Config
	archive  *evidence.Archive
	logger   *zap.Logger
}

// NewServer constructs the API server. The archive is optional.
func NewServer(registry *adapter.Registry, provider search.Provider, bus *events.Bus, cfg *config.Config, archive *evidence.Archive, logger *zap.Logger) *Server {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Server{
		registry: registry,
		provider: provider,
		bus:      bus,
		cfg:      cfg,
		archive:  archive,
		logger:   logger,
	}
}

// Handler returns the routed http.Handler.
func (s *Server) Handler() http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.Recoverer)

	r.Get("/api/health", s.handleHealth)
	r.Post("/api/research", s.handleResearch)
	r.Post("/api/research/stream", s.handleResearchStream)
	r.Post("/api/research/demo", s.handleResearchDemo)
	r.Get("/api/agent/config", s.handleAgentConfig)
	r.Get("/api/models", s.handleModels)
	r.Post("/api/models/switch", s.handleModelSwitch)
	r.Get("/api/runs", s.handleRuns)
	r.Get("/api/runs/{runID}/events", s.handleRunEvents)
	r.Handle("/metrics", promhttp.Handler())
	return r
}

type researchRequest struct {
	Question string `json:"question"`
}

// validateQuestion enforces the request boundary: non-empty after
// trimming, and within the configured length cap.
func (s *Server) validateQuestion(q string) error {
	q = strings.TrimSpace(q)
	if q == "" {
		return fmt.Errorf("question is required")
	}
	if limit := s.cfg.Agent.MaxQuestionLen; len(q) > limit {
		return fmt.Errorf("question exceeds %d characters", limit)
	}
	return nil
}

// runnerOptions derives the per-run knobs from the agent config.
func (s *Server) runnerOptions() research.Options {
	return research.Options{
		MaxIterations:       s.cfg.Agent.MaxIterations,
		ConfidenceThreshold: s.cfg.Agent.ConfidenceThreshold,
		SynthesisWindow:     s.cfg.Agent.SynthesisWindow,
		MinSources:          s.cfg.Agent.MinSourcesRequired,
		SearchTimeout:       s.cfg.Agent.SearchTimeout(),
		GenerateTimeout:     s.cfg.Agent.GenerateTimeout(),
	}
}

// newRunner snapshots bindings and options for one run.
func (s *Server) newRunner(opts research.Options) (*research.Runner, error) {
	roles, err := s.registry.Snapshot()
	if err != nil {
		return nil, err
	}
	var ropts []research.RunnerOption
	if s.archive != nil {
		ropts = append(ropts, research.WithArchiver(s.archive))
	}
	return research.NewRunner(roles, s.provider, s.bus, opts, s.logger, ropts...), nil
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	s.writeJSON(w, http.StatusOK, map[string]any{
		"status":           "ok",
		"search_available": s.provider.Available(),
		"time":             time.Now().UTC(),
	})
}

// handleResearch runs a question to completion and returns the answer.
func (s *Server) handleResearch(w http.ResponseWriter, r *http.Request) {
	var req researchRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if err := s.validateQuestion(req.Question); err != nil {
		s.writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	runner, err := s.newRunner(s.runnerOptions())
	if err != nil {
		s.writeError(w, http.StatusInternalServerError, err.Error())
		return
	}

	runID := uuid.NewString()
	res, err := runner.Run(r.Context(), runID, strings.TrimSpace(req.Question))
	if err != nil {
		s.logger.Error("run failed", zap.String("run_id", runID), zap.Error(err))
		s.writeError(w, http.StatusBadGateway, err.Error())
		return
	}

	s.writeJSON(w, http.StatusOK, map[string]any{
		"run_id":             runID,
		"question":           res.State.Question,
		"answer":             res.Answer,
		"confidence":         res.Answer.Confidence,
		"confidence_history": res.State.ConfidenceHistory,
		"iterations":         res.State.Iteration,
		"queries_used":       res.State.QueriesUsed,
		"gaps":               res.State.CumulativeGaps,
		"tool_usage":         res.State.ToolUsage,
		"duration_ms":        res.DurationMS,
	})
}

func (s *Server) handleAgentConfig(w http.ResponseWriter, r *http.Request) {
	s.writeJSON(w, http.StatusOK, map[string]any{
		"agent": s.cfg.Agent,
		"roles": s.activeRoles(),
	})
}

func (s *Server) handleModels(w http.ResponseWriter, r *http.Request) {
	s.writeJSON(w, http.StatusOK, map[string]any{
		"adapters": s.registry.Adapters(),
		"active":   s.activeRoles(),
	})
}

type switchRequest struct {
	Adapter   string `json:"adapter"`
	FastModel string `json:"fast_model"`
	ProModel  string `json:"pro_model"`
}

// handleModelSwitch rebinds all roles to another adapter. Runs already in
// flight keep their snapshot.
func (s *Server) handleModelSwitch(w http.ResponseWriter, r *http.Request) {
	var req switchRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if req.Adapter == "" {
		s.writeError(w, http.StatusBadRequest, "adapter is required")
		return
	}
	if err := s.registry.Switch(req.Adapter, req.FastModel, req.ProModel); err != nil {
		s.writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	s.logger.Info("models switched",
		zap.String("adapter", req.Adapter),
		zap.String("fast_model", req.FastModel),
		zap.String("pro_model", req.ProModel))
	s.writeJSON(w, http.StatusOK, map[string]any{"active": s.activeRoles()})
}

func (s *Server) handleRuns(w http.ResponseWriter, r *http.Request) {
	if s.archive == nil {
		s.writeJSON(w, http.StatusOK, []evidence.RunRecord{})
		return
	}
	records, err := s.archive.ListRuns()
	if err != nil {
		s.writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	s.writeJSON(w, http.StatusOK, records)
}

func (s *Server) activeRoles() map[string]map[string]string {
	out := make(map[string]map[string]string)
	for role, b := range s.registry.Active() {
		out[string(role)] = map[string]string{"adapter": b.Adapter, "model": b.Model}
	}
	return out
}

func (s *Server) writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		s.logger.Warn("response encode failed", zap.Error(err))
	}
}

func (s *Server) writeError(w http.ResponseWriter, status int, msg string) {
	s.writeJSON(w, status, map[string]string{"error": msg})
}

package httpapi

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/zen-systems/nexus/pkg/events"
	"github.com/zen-systems/nexus/pkg/research"
)

const heartbeatInterval = 15 * time.Second

// demoQuerySuffix widens a question enough that one broad search cannot
// clear the acceptance bar, so the stream reliably shows a retry round.
const demoQuerySuffix = ": provide sector-specific data, primary source " +
	"citations, year-by-year statistics, and expert consensus with " +
	"contradicting viewpoints"

// demoMaxIterations bounds the demo loop so the stream stays short.
const demoMaxIterations = 4

// handleResearchStream starts a run and streams its events over SSE until
// the terminal event. Closing the connection cancels the run.
func (s *Server) handleResearchStream(w http.ResponseWriter, r *http.Request) {
	var req researchRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if err := s.validateQuestion(req.Question); err != nil {
		s.writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	s.startStream(w, r, strings.TrimSpace(req.Question), s.runnerOptions())
}

// handleResearchDemo streams a run whose question is framed to need a
// self-correction round. Behavior is real, not simulated: the wrapped
// question goes through the normal loop with a tightened iteration cap.
func (s *Server) handleResearchDemo(w http.ResponseWriter, r *http.Request) {
	var req researchRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if err := s.validateQuestion(req.Question); err != nil {
		s.writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	opts := s.runnerOptions()
	opts.MaxIterations = demoMaxIterations
	s.startStream(w, r, strings.TrimSpace(req.Question)+demoQuerySuffix, opts)
}

// startStream runs the question in a goroutine and streams its events to
// the client.
func (s *Server) startStream(w http.ResponseWriter, r *http.Request, question string, opts research.Options) {
	flusher, ok := w.(http.Flusher)
	if !ok {
		s.writeError(w, http.StatusInternalServerError, "streaming unsupported")
		return
	}
	runner, err := s.newRunner(opts)
	if err != nil {
		s.writeError(w, http.StatusInternalServerError, err.Error())
		return
	}

	runID := uuid.NewString()
	ch := s.bus.Subscribe(runID, s.cfg.Agent.EventBuffer)
	defer s.bus.Unsubscribe(runID, ch)

	setSSEHeaders(w)
	fmt.Fprintf(w, "event: run_started\ndata: {\"run_id\": %q}\n\n", runID)
	flusher.Flush()

	ctx := r.Context()
	go func() {
		// Failures surface through the bus as terminal error events.
		if _, err := runner.Run(ctx, runID, question); err != nil {
			s.logger.Debug("streamed run ended with error",
				zap.String("run_id", runID), zap.Error(err))
		}
	}()

	s.streamEvents(ctx, w, flusher, ch, runID, 0, true)
}

// handleRunEvents reattaches to an in-flight run's stream, replaying from
// Last-Event-ID where the ring still has it.
func (s *Server) handleRunEvents(w http.ResponseWriter, r *http.Request) {
	runID := chi.URLParam(r, "runID")
	flusher, ok := w.(http.Flusher)
	if !ok {
		s.writeError(w, http.StatusInternalServerError, "streaming unsupported")
		return
	}

	var since uint64
	if raw := r.Header.Get("Last-Event-ID"); raw != "" {
		n, err := strconv.ParseUint(raw, 10, 64)
		if err != nil {
			s.writeError(w, http.StatusBadRequest, "invalid Last-Event-ID")
			return
		}
		since = n
	}

	ch := s.bus.Subscribe(runID, s.cfg.Agent.EventBuffer)
	defer s.bus.Unsubscribe(runID, ch)

	setSSEHeaders(w)

	// A zero cursor replays everything the ring still holds.
	replay := s.bus.ReplaySince(runID, since)
	terminal := false
	lastSeq := since
	for _, evt := range replay {
		writeSSE(w, evt)
		lastSeq = evt.Seq
		if evt.Type.Terminal() {
			terminal = true
		}
	}
	flusher.Flush()
	if terminal {
		return
	}

	s.streamEvents(r.Context(), w, flusher, ch, runID, lastSeq, false)
}

// streamEvents forwards bus events to the client until a terminal event or
// disconnect. Events with Seq at or below afterSeq were already delivered
// by the ring replay and are skipped. When owner is set, the run's replay
// history is dropped after the terminal event is delivered.
func (s *Server) streamEvents(ctx context.Context, w http.ResponseWriter, flusher http.Flusher, ch chan events.Event, runID string, afterSeq uint64, owner bool) {
	heartbeat := time.NewTicker(heartbeatInterval)
	defer heartbeat.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-heartbeat.C:
			fmt.Fprint(w, ": ping\n\n")
			flusher.Flush()
		case evt, ok := <-ch:
			if !ok {
				return
			}
			if evt.Seq <= afterSeq {
				continue
			}
			writeSSE(w, evt)
			flusher.Flush()
			if evt.Type.Terminal() {
				if owner {
					s.bus.Forget(runID)
				}
				return
			}
		}
	}
}

func setSSEHeaders(w http.ResponseWriter) {
	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.Header().Set("X-Accel-Buffering", "no")
	w.WriteHeader(http.StatusOK)
}

func writeSSE(w http.ResponseWriter, evt events.Event) {
	fmt.Fprintf(w, "id: %d\nevent: %s\ndata: %s\n\n", evt.Seq, evt.Type, evt.Marshal())
}

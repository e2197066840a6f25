package research

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/zen-systems/nexus/pkg/adapter"
	"github.com/zen-systems/nexus/pkg/events"
	"github.com/zen-systems/nexus/pkg/metrics"
	"github.com/zen-systems/nexus/pkg/search"
)

// ErrEmptyQuestion is returned when a run is started with a blank question.
var ErrEmptyQuestion = errors.New("research: question is empty")

// ErrDuplicateQuery indicates the retriever produced a query identical to
// an earlier round even after coercion. Repeating a query would burn
// budget without new evidence, so the run halts as defective.
var ErrDuplicateQuery = errors.New("research: duplicate query after coercion")

// Options are the per-run knobs, snapshotted at run start so admin
// changes never affect a run in flight.
type Options struct {
	MaxIterations       int
	ConfidenceThreshold int
	SynthesisWindow     int
	MinSources          int
	SearchTimeout       time.Duration
	GenerateTimeout     time.Duration
}

// Archiver persists a finished run. Optional; archive failures are logged,
// never fatal.
type Archiver interface {
	ArchiveRun(st *State, answer FinalAnswer) error
}

// Result is the outcome of a completed run.
type Result struct {
	State      *State
	Answer     FinalAnswer
	DurationMS int64
}

// Runner drives one research run end to end: plan, then the
// search/evaluate/decide loop, then synthesis. Stage roles and options are
// captured at construction, so a Runner embodies one consistent
// configuration snapshot.
type Runner struct {
	planner     *Planner
	retriever   *Retriever
	evaluator   *Evaluator
	synthesizer *Synthesizer
	opts        Options
	bus         *events.Bus
	archiver    Archiver
	logger      *zap.Logger
}

// RunnerOption customizes a Runner.
type RunnerOption func(*Runner)

// WithArchiver attaches run persistence.
func WithArchiver(a Archiver) RunnerOption {
	return func(r *Runner) { r.archiver = a }
}

// WithScorer swaps the evaluation scorer, used by tests to inject
// deterministic scoring.
func WithScorer(s Scorer) RunnerOption {
	return func(r *Runner) {
		r.evaluator = NewEvaluator(s, r.opts.ConfidenceThreshold, r.opts.MinSources, r.logger)
	}
}

// NewRunner wires the four stages from a role set and a search provider.
func NewRunner(roles adapter.RoleSet, provider search.Provider, bus *events.Bus, opts Options, logger *zap.Logger, ropts ...RunnerOption) *Runner {
	if logger == nil {
		logger = zap.NewNop()
	}
	r := &Runner{
		planner: NewPlanner(roles[adapter.RolePlanner], opts.GenerateTimeout, logger),
		retriever: NewRetriever(roles[adapter.RoleRetriever], provider,
			opts.SearchTimeout, opts.GenerateTimeout, logger),
		evaluator: NewEvaluator(
			NewModelScorer(roles[adapter.RoleEvaluator], opts.GenerateTimeout),
			opts.ConfidenceThreshold, opts.MinSources, logger),
		synthesizer: NewSynthesizer(roles[adapter.RoleSynthesizer],
			opts.SynthesisWindow, opts.GenerateTimeout, logger),
		opts:   opts,
		bus:    bus,
		logger: logger,
	}
	for _, o := range ropts {
		o(r)
	}
	return r
}

// Run executes one research run. The returned error is non-nil only for
// fatal outcomes: empty question, planner failure, cancellation, or a gate
// defect. Search and evaluation failures degrade within the loop instead.
func (r *Runner) Run(ctx context.Context, runID, question string) (*Result, error) {
	if question == "" {
		return nil, ErrEmptyQuestion
	}

	metrics.RunsStarted.Inc()
	start := time.Now()
	st := NewState(runID, question, r.opts.MaxIterations)
	log := r.logger.With(zap.String("run_id", runID))
	log.Info("run started", zap.String("question", question))

	plan, err := r.planner.Plan(ctx, question)
	if err != nil {
		return nil, r.fail(st, log, err)
	}
	st.SetPlan(plan.Tasks, plan.Strategy)
	r.emitStep(st, StepRecord{
		Kind:       StepPlan,
		DurationMS: time.Since(start).Milliseconds(),
		Thinking:   plan.Thinking,
		Action:     fmt.Sprintf("decomposed question into %d tasks", len(plan.Tasks)),
		Data:       map[string]any{"tasks": plan.Tasks, "strategy": plan.Strategy},
		TokensUsed: plan.Tokens,
	})

	forced := false
loop:
	for {
		roundStart := time.Now()
		round, thinking, err := r.retriever.Retrieve(ctx, st)
		if err != nil {
			return nil, r.fail(st, log, err)
		}
		if st.HasQuery(round.Query) {
			return nil, r.fail(st, log, fmt.Errorf("%w: %q", ErrDuplicateQuery, round.Query))
		}
		st.ApplyRound(round)

		searchKind := StepSearchInitial
		if round.Retry {
			searchKind = StepSearchRetry
		}
		result := "ok"
		if round.Failed {
			result = "failed"
		}
		metrics.SearchRounds.WithLabelValues(string(round.Tool), result).Inc()
		r.emitStep(st, StepRecord{
			Kind:       searchKind,
			Iteration:  st.Iteration,
			DurationMS: time.Since(roundStart).Milliseconds(),
			Thinking:   thinking,
			Action:     fmt.Sprintf("searched %q via %s", round.Query, round.Tool),
			Data: map[string]any{
				"query":         round.Query,
				"tool":          round.Tool,
				"sources_found": len(round.Sources),
				"failed":        round.Failed,
			},
			Err: round.FailureReason,
		})

		if err := ctx.Err(); err != nil {
			return nil, r.fail(st, log, err)
		}

		evalStart := time.Now()
		eval := r.evaluator.Evaluate(ctx, ScoreInput{
			Question:       question,
			Round:          round,
			QueriesUsed:    st.QueriesUsed,
			CumulativeGaps: st.CumulativeGaps,
			Iteration:      st.Iteration,
			MaxIterations:  st.MaxIterations,
			TotalSources:   len(st.UsableResults()),
		})
		gapsChanged := st.ApplyEvaluation(eval)

		evalKind := StepEvaluateRetry
		if eval.ThresholdMet {
			evalKind = StepEvaluatePass
		}
		r.emitStep(st, StepRecord{
			Kind:       evalKind,
			Iteration:  st.Iteration,
			DurationMS: time.Since(evalStart).Milliseconds(),
			Thinking:   eval.Card.Thinking,
			Action:     fmt.Sprintf("scored round at %d/100", eval.Confidence),
			Data: map[string]any{
				"confidence":    eval.Confidence,
				"card":          eval.Card,
				"threshold_met": eval.ThresholdMet,
				"degraded":      eval.Degraded != "",
			},
			Err: eval.Degraded,
		})
		r.publish(st, events.KindConfidenceUpdate, map[string]any{
			"current":       eval.Confidence,
			"history":       st.ConfidenceHistory,
			"threshold":     r.opts.ConfidenceThreshold,
			"threshold_met": eval.ThresholdMet,
		})
		if gapsChanged {
			r.publish(st, events.KindGapsUpdated, map[string]any{"gaps": st.CumulativeGaps})
		}

		switch d := Decide(eval.ThresholdMet, st.Iteration, st.MaxIterations); d {
		case DecisionRetry:
			metrics.RetriesTriggered.Inc()
			r.publish(st, events.KindRetryTriggered, map[string]any{
				"iteration":    st.Iteration,
				"confidence":   eval.Confidence,
				"failed_query": round.Query,
				"gaps":         st.CumulativeGaps,
				"strategy":     eval.Hint.Strategy,
			})
		case DecisionSynthesize:
			break loop
		case DecisionForceSynthesize:
			forced = true
			break loop
		default:
			return nil, r.fail(st, log, fmt.Errorf("%w: %d", ErrUnknownDecision, int(d)))
		}

		if err := ctx.Err(); err != nil {
			return nil, r.fail(st, log, err)
		}
	}

	synthStart := time.Now()
	answer := r.synthesizer.Synthesize(ctx, st, forced)
	r.emitStep(st, StepRecord{
		Kind:       StepSynthesize,
		Iteration:  st.Iteration,
		DurationMS: time.Since(synthStart).Milliseconds(),
		Action:     fmt.Sprintf("synthesized answer with %d citations", len(answer.Citations)),
		Data: map[string]any{
			"confidence": answer.Confidence,
			"forced":     answer.Forced,
			"citations":  len(answer.Citations),
			"degraded":   answer.Degraded != "",
		},
		Err: answer.Degraded,
	})

	durationMS := time.Since(start).Milliseconds()
	r.publish(st, events.KindComplete, map[string]any{
		"run_id":            st.RunID,
		"question":          st.Question,
		"final_answer":      answer,
		"confidence":        answer.Confidence,
		"total_iterations":  st.Iteration,
		"total_duration_ms": durationMS,
		"tool_usage":        st.ToolUsage,
	})

	outcome := "completed"
	if forced {
		outcome = "forced"
	}
	metrics.RunsCompleted.WithLabelValues(outcome).Inc()
	metrics.FinalConfidence.Observe(float64(answer.Confidence))
	metrics.RunDuration.Observe(time.Since(start).Seconds())
	metrics.RunIterations.Observe(float64(st.Iteration))
	log.Info("run finished",
		zap.Int("iterations", st.Iteration),
		zap.Int("confidence", answer.Confidence),
		zap.Bool("forced", forced),
		zap.Int64("duration_ms", durationMS))

	if r.archiver != nil {
		if err := r.archiver.ArchiveRun(st, answer); err != nil {
			log.Warn("run archive failed", zap.Error(err))
		}
	}

	return &Result{State: st, Answer: answer, DurationMS: durationMS}, nil
}

// fail publishes the terminal error event and records the outcome metric.
func (r *Runner) fail(st *State, log *zap.Logger, err error) error {
	outcome := "error"
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		outcome = "cancelled"
	}
	metrics.RunsCompleted.WithLabelValues(outcome).Inc()
	log.Error("run failed", zap.Error(err))
	r.publish(st, events.KindError, map[string]any{"message": err.Error()})
	return err
}

// emitStep records the step in the thinking log and publishes it.
func (r *Runner) emitStep(st *State, rec StepRecord) {
	rec = st.AddStep(rec)
	r.publish(st, events.KindStep, rec)
}

func (r *Runner) publish(st *State, kind events.Kind, data any) {
	if r.bus == nil {
		return
	}
	r.bus.Publish(st.RunID, kind, data)
}

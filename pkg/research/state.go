// Package research implements the confidence-gated research loop:
// plan once, then search → evaluate → decide for up to a bounded number of
// rounds, then synthesize exactly once. The package owns the run state and
// its invariants; model and search providers are reached only through the
// adapter and search contracts.
package research

import (
	"time"

	"github.com/zen-systems/nexus/pkg/search"
)

// Priority orders tasks within a plan.
type Priority string

const (
	PriorityHigh Priority = "HIGH"
	PriorityMed  Priority = "MED"
	PriorityLow  Priority = "LOW"
)

func priorityRank(p Priority) int {
	switch p {
	case PriorityHigh:
		return 0
	case PriorityMed:
		return 1
	default:
		return 2
	}
}

// Task is one decomposed research subtask produced by the planner.
type Task struct {
	ID          string      `json:"id"`
	Description string      `json:"task"`
	Priority    Priority    `json:"priority"`
	Tool        search.Tool `json:"tool"`
	Executed    bool        `json:"executed"`
}

// SourceRecord is one retrieved source. Immutable once created.
type SourceRecord struct {
	URL     string      `json:"url"`
	Title   string      `json:"title"`
	Snippet string      `json:"snippet"`
	Tier    search.Tier `json:"tier"`
	Score   float64     `json:"score"`
}

// ReformulationStrategy steers how the next retry round changes its query.
type ReformulationStrategy string

const (
	StrategyBroader        ReformulationStrategy = "broader"
	StrategyNarrower       ReformulationStrategy = "narrower"
	StrategyAdjacent       ReformulationStrategy = "adjacent"
	StrategySourceTargeted ReformulationStrategy = "source_targeted"
)

// ParseStrategy normalizes a strategy name, defaulting to narrower.
func ParseStrategy(s string) ReformulationStrategy {
	switch ReformulationStrategy(s) {
	case StrategyBroader, StrategyNarrower, StrategyAdjacent, StrategySourceTargeted:
		return ReformulationStrategy(s)
	default:
		return StrategyNarrower
	}
}

// ReformulationHint is the evaluator's guidance for the next retry round.
type ReformulationHint struct {
	Text     string                `json:"text"`
	Strategy ReformulationStrategy `json:"strategy"`
}

// EvaluationResult is the outcome of scoring one round. Immutable; one per
// round, appended to the run's history and never mutated afterward.
type EvaluationResult struct {
	Confidence   int                `json:"confidence"`
	Card         ScoreCard          `json:"card"`
	ThresholdMet bool               `json:"threshold_met"`
	Gaps         []string           `json:"gaps,omitempty"`
	Hint         *ReformulationHint `json:"hint,omitempty"`
	SourcesFound int                `json:"sources_found"`
	Degraded     string             `json:"degraded,omitempty"`
}

// SearchRound is the output of one retrieval round.
type SearchRound struct {
	Query         string         `json:"query"`
	Tool          search.Tool    `json:"tool"`
	Sources       []SourceRecord `json:"sources"`
	Retry         bool           `json:"retry"`
	Failed        bool           `json:"failed"`
	FailureReason string         `json:"failure_reason,omitempty"`
}

// StepKind labels entries in the thinking log.
type StepKind string

const (
	StepPlan          StepKind = "plan"
	StepSearchInitial StepKind = "search_initial"
	StepSearchRetry   StepKind = "search_retry"
	StepEvaluatePass  StepKind = "evaluate_pass"
	StepEvaluateRetry StepKind = "evaluate_retry"
	StepSynthesize    StepKind = "synthesize"
)

// StepRecord is one entry in the run's audit trail, including failed steps.
type StepRecord struct {
	ID         int            `json:"step_id"`
	Kind       StepKind       `json:"type"`
	Iteration  int            `json:"iteration"`
	Timestamp  time.Time      `json:"timestamp"`
	DurationMS int64          `json:"duration_ms"`
	Thinking   string         `json:"thinking"`
	Action     string         `json:"action"`
	Data       map[string]any `json:"data,omitempty"`
	TokensUsed int            `json:"tokens_used,omitempty"`
	Err        string         `json:"error,omitempty"`
}

// Citation ties a claim in the final answer to a retrieved source.
type Citation struct {
	ID    int         `json:"id"`
	URL   string      `json:"url"`
	Title string      `json:"title"`
	Tier  search.Tier `json:"tier"`
}

// Contradiction surfaces two conflicting claims with a resolution note.
type Contradiction struct {
	ClaimA     string `json:"claim_a"`
	ClaimB     string `json:"claim_b"`
	Resolution string `json:"resolution"`
}

// FinalAnswer is the terminal output of a run.
type FinalAnswer struct {
	Text           string          `json:"text"`
	Citations      []Citation      `json:"citations"`
	Contradictions []Contradiction `json:"contradictions"`
	Confidence     int             `json:"confidence"`
	Caveats        []string        `json:"caveats"`
	Forced         bool            `json:"forced"`
	Degraded       string          `json:"degraded,omitempty"`
}

// State is the mutable record threaded through every step of one run.
// It is exclusively owned by that run's orchestrator; accumulators are
// append-only and the iteration counter is strictly monotonic.
type State struct {
	RunID    string
	Question string

	Tasks    []Task
	Strategy string

	Iteration     int
	MaxIterations int

	QueriesUsed       []string
	AllResults        []SourceRecord
	ConfidenceHistory []int
	CumulativeGaps    []string
	ThinkingLog       []StepRecord
	ToolUsage         map[search.Tool]int

	hint     *ReformulationHint
	gapsSeen map[string]struct{}

	StartedAt time.Time
}

// NewState creates the state for one research run.
func NewState(runID, question string, maxIterations int) *State {
	return &State{
		RunID:         runID,
		Question:      question,
		MaxIterations: maxIterations,
		ToolUsage:     make(map[search.Tool]int),
		gapsSeen:      make(map[string]struct{}),
		StartedAt:     time.Now().UTC(),
	}
}

// SetPlan installs the planner's output. Called exactly once.
func (s *State) SetPlan(tasks []Task, strategy string) {
	s.Tasks = tasks
	s.Strategy = strategy
}

// NextPendingTask returns the highest-priority unexecuted task, or nil.
// Ties keep plan order.
func (s *State) NextPendingTask() *Task {
	var best *Task
	for i := range s.Tasks {
		t := &s.Tasks[i]
		if t.Executed {
			continue
		}
		if best == nil || priorityRank(t.Priority) < priorityRank(best.Priority) {
			best = t
		}
	}
	return best
}

// HasQuery reports whether q was already issued this run.
func (s *State) HasQuery(q string) bool {
	for _, used := range s.QueriesUsed {
		if used == q {
			return true
		}
	}
	return false
}

// ApplyRound folds one retrieval round into the state: the query is
// recorded, sources are appended, and the iteration counter advances by
// exactly one. The three updates happen together or not at all; a failed
// round contributes a synthetic zero-score marker so the audit trail shows
// the attempt.
func (s *State) ApplyRound(round SearchRound) {
	s.QueriesUsed = append(s.QueriesUsed, round.Query)
	if round.Failed {
		s.AllResults = append(s.AllResults, SourceRecord{
			Title: "retrieval failed: " + round.FailureReason,
			Tier:  search.TierWeb,
			Score: 0,
		})
	} else {
		s.AllResults = append(s.AllResults, round.Sources...)
	}
	s.ToolUsage[round.Tool]++
	s.Iteration++
}

// ApplyEvaluation folds one evaluation into the state and returns whether
// the cumulative gap set changed. The reformulation hint is replaced (set
// when the threshold was missed, cleared when it was met).
func (s *State) ApplyEvaluation(eval EvaluationResult) bool {
	s.ConfidenceHistory = append(s.ConfidenceHistory, eval.Confidence)

	changed := false
	for _, gap := range eval.Gaps {
		if gap == "" {
			continue
		}
		if _, ok := s.gapsSeen[gap]; ok {
			continue
		}
		s.gapsSeen[gap] = struct{}{}
		s.CumulativeGaps = append(s.CumulativeGaps, gap)
		changed = true
	}

	s.hint = eval.Hint
	return changed
}

// TakeHint consumes the pending reformulation hint, clearing it.
func (s *State) TakeHint() *ReformulationHint {
	h := s.hint
	s.hint = nil
	return h
}

// LatestConfidence returns the most recent evaluation score, or 0.
func (s *State) LatestConfidence() int {
	if len(s.ConfidenceHistory) == 0 {
		return 0
	}
	return s.ConfidenceHistory[len(s.ConfidenceHistory)-1]
}

// AddStep appends a step record to the thinking log and returns it with
// its assigned ID.
func (s *State) AddStep(rec StepRecord) StepRecord {
	rec.ID = len(s.ThinkingLog) + 1
	if rec.Timestamp.IsZero() {
		rec.Timestamp = time.Now().UTC()
	}
	s.ThinkingLog = append(s.ThinkingLog, rec)
	return rec
}

// UsableResults returns accumulated sources that carry real content,
// excluding the synthetic failure markers.
func (s *State) UsableResults() []SourceRecord {
	out := make([]SourceRecord, 0, len(s.AllResults))
	for _, r := range s.AllResults {
		if r.URL != "" {
			out = append(out, r)
		}
	}
	return out
}

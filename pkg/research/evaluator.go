package research

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/zen-systems/nexus/pkg/adapter"
)

// Sub-score caps of the composite confidence score. The four components
// sum to at most 100.
const (
	CapCoverage    = 40
	CapReliability = 30
	CapRecency     = 15
	CapConsistency = 15
)

// ScoreCard is a raw four-component assessment of one round before
// clamping and gate policy are applied.
type ScoreCard struct {
	Coverage    int      `json:"coverage"`
	Reliability int      `json:"reliability"`
	Recency     int      `json:"recency"`
	Consistency int      `json:"consistency"`
	Gaps        []string `json:"gaps,omitempty"`
	HintText    string   `json:"reformulation_hint,omitempty"`
	Strategy    string   `json:"strategy,omitempty"`
	Thinking    string   `json:"thinking,omitempty"`
}

// ScoreInput carries everything a scorer may consider for one round.
// TotalSources counts usable sources across the whole run, markers
// excluded.
type ScoreInput struct {
	Question       string
	Round          SearchRound
	QueriesUsed    []string
	CumulativeGaps []string
	Iteration      int
	MaxIterations  int
	TotalSources   int
}

// Scorer assesses one round's evidence. Implementations may call a model
// or compute deterministically.
type Scorer interface {
	Score(ctx context.Context, in ScoreInput) (ScoreCard, error)
}

// ModelScorer scores rounds with the fast-role model.
type ModelScorer struct {
	binding adapter.Binding
	timeout time.Duration
}

// NewModelScorer constructs a model-backed scorer.
func NewModelScorer(binding adapter.Binding, timeout time.Duration) *ModelScorer {
	return &ModelScorer{binding: binding, timeout: timeout}
}

func (m *ModelScorer) Score(ctx context.Context, in ScoreInput) (ScoreCard, error) {
	ctx, cancel := context.WithTimeout(ctx, m.timeout)
	defer cancel()

	prompt := evaluatorPrompt(in.Question, in.Round, in.QueriesUsed, in.CumulativeGaps, in.Iteration, in.MaxIterations)
	resp, err := generate(ctx, m.binding, prompt)
	if err != nil {
		return ScoreCard{}, err
	}
	var card ScoreCard
	if err := decodeObject(resp.Content, &card); err != nil {
		return ScoreCard{}, err
	}
	return card, nil
}

// HeuristicScorer is the deterministic fallback when the model scorer
// fails. It scores coarsely from source counts and tier weights and never
// clears the acceptance bar on its own, so a degraded evaluation leans
// toward another round rather than premature synthesis.
type HeuristicScorer struct{}

func (HeuristicScorer) Score(_ context.Context, in ScoreInput) (ScoreCard, error) {
	round := in.Round
	if round.Failed || len(round.Sources) == 0 {
		return ScoreCard{
			Gaps:     []string{"no sources retrieved for: " + round.Query},
			Strategy: string(StrategyBroader),
		}, nil
	}

	var weight float64
	for _, s := range round.Sources {
		weight += s.Tier.Weight()
	}
	avgWeight := weight / float64(len(round.Sources))

	card := ScoreCard{
		Coverage:    min(30, 6*len(round.Sources)),
		Reliability: int(float64(CapReliability) * avgWeight * 0.8),
		Recency:     7,
		Consistency: min(10, 2*len(round.Sources)),
		Gaps:        []string{"evidence not yet assessed in depth for: " + in.Question},
		Strategy:    string(StrategyNarrower),
	}
	return card, nil
}

// Evaluator turns a score card into a gate-ready evaluation: sub-scores
// clamped to their caps, composite compared against the threshold, and
// gaps plus a reformulation hint guaranteed whenever the bar is missed.
type Evaluator struct {
	scorer     Scorer
	fallback   Scorer
	threshold  int
	minSources int
	logger     *zap.Logger
}

// NewEvaluator constructs an evaluator with a deterministic heuristic
// fallback behind the primary scorer. A minSources of 0 disables the
// source-count requirement.
func NewEvaluator(scorer Scorer, threshold, minSources int, logger *zap.Logger) *Evaluator {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Evaluator{
		scorer:     scorer,
		fallback:   HeuristicScorer{},
		threshold:  threshold,
		minSources: minSources,
		logger:     logger,
	}
}

// Evaluate is total: scorer failure degrades to the heuristic fallback,
// never to a missing evaluation.
func (e *Evaluator) Evaluate(ctx context.Context, in ScoreInput) EvaluationResult {
	var degraded string
	card, err := e.scorer.Score(ctx, in)
	if err != nil {
		e.logger.Warn("scorer degraded to heuristic", zap.Error(err))
		degraded = err.Error()
		card, _ = e.fallback.Score(ctx, in)
	}

	card.Coverage = clamp(card.Coverage, CapCoverage)
	card.Reliability = clamp(card.Reliability, CapReliability)
	card.Recency = clamp(card.Recency, CapRecency)
	card.Consistency = clamp(card.Consistency, CapConsistency)

	confidence := card.Coverage + card.Reliability + card.Recency + card.Consistency
	met := confidence >= e.threshold

	result := EvaluationResult{
		Confidence:   confidence,
		Card:         card,
		ThresholdMet: met,
		SourcesFound: len(in.Round.Sources),
		Degraded:     degraded,
	}

	// A high score over too few sources is not trustworthy yet.
	if met && e.minSources > 0 && in.TotalSources < e.minSources {
		met = false
		result.ThresholdMet = false
		result.Gaps = append(card.Gaps,
			fmt.Sprintf("only %d usable sources gathered, need at least %d", in.TotalSources, e.minSources))
		result.Hint = &ReformulationHint{
			Text:     "gather corroborating sources of a different type",
			Strategy: StrategySourceTargeted,
		}
		return result
	}
	if met {
		return result
	}

	result.Gaps = card.Gaps
	if len(result.Gaps) == 0 {
		result.Gaps = []string{"insufficient coverage of the core question"}
	}

	strategy := ParseStrategy(card.Strategy)
	if card.Strategy == "" && len(in.Round.Sources) == 0 {
		strategy = StrategyBroader
	}
	result.Hint = &ReformulationHint{Text: card.HintText, Strategy: strategy}
	return result
}

func clamp(v, limit int) int {
	if v < 0 {
		return 0
	}
	if v > limit {
		return limit
	}
	return v
}

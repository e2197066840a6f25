package research

import "errors"

// Decision is the three-way outcome of the confidence gate.
type Decision int

const (
	// DecisionRetry sends the loop back for another retrieval round.
	DecisionRetry Decision = iota
	// DecisionSynthesize proceeds to synthesis with the threshold met.
	DecisionSynthesize
	// DecisionForceSynthesize proceeds to synthesis because the iteration
	// budget is exhausted, threshold unmet.
	DecisionForceSynthesize
)

func (d Decision) String() string {
	switch d {
	case DecisionRetry:
		return "retry"
	case DecisionSynthesize:
		return "synthesize"
	case DecisionForceSynthesize:
		return "force_synthesize"
	default:
		return "unknown"
	}
}

// ErrUnknownDecision indicates a gate outcome outside the three defined
// arms. The run must halt rather than guess a control path.
var ErrUnknownDecision = errors.New("research: unknown gate decision")

// Decide is the pure routing function after each evaluation. Threshold
// satisfaction always wins; the budget check only applies when the
// threshold was missed.
func Decide(thresholdMet bool, iteration, maxIterations int) Decision {
	if thresholdMet {
		return DecisionSynthesize
	}
	if iteration >= maxIterations {
		return DecisionForceSynthesize
	}
	return DecisionRetry
}

package research

import (
	"context"
	"fmt"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/zen-systems/nexus/pkg/adapter"
	"github.com/zen-systems/nexus/pkg/search"
)

// Retriever executes one retrieval round: pick or reformulate a query,
// run it through the search provider, and hand back the round for the
// orchestrator to fold into state. It never mutates state itself beyond
// marking the chosen task executed.
type Retriever struct {
	binding         adapter.Binding
	provider        search.Provider
	searchTimeout   time.Duration
	generateTimeout time.Duration
	logger          *zap.Logger
}

// NewRetriever constructs a retriever over a search provider, with the
// fast-role model used for retry query reformulation.
func NewRetriever(binding adapter.Binding, provider search.Provider, searchTimeout, generateTimeout time.Duration, logger *zap.Logger) *Retriever {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Retriever{
		binding:         binding,
		provider:        provider,
		searchTimeout:   searchTimeout,
		generateTimeout: generateTimeout,
		logger:          logger,
	}
}

type retryQueryOutput struct {
	Query    string `json:"query"`
	Tool     string `json:"tool"`
	Thinking string `json:"thinking"`
}

// Retrieve runs one round. The returned error is non-nil only when the
// parent context was cancelled; provider failures come back as a failed
// round so the loop can keep going.
func (r *Retriever) Retrieve(ctx context.Context, st *State) (SearchRound, string, error) {
	hint := st.TakeHint()

	var query, thinking string
	var tool search.Tool
	retry := hint != nil

	if retry {
		query, tool, thinking = r.reformulate(ctx, st, hint)
	} else if task := st.NextPendingTask(); task != nil {
		query, tool = task.Description, task.Tool
		task.Executed = true
		thinking = "executing planned task " + task.ID
	} else {
		query, tool = st.Question, search.ToolWeb
		thinking = "no pending tasks, searching the question directly"
	}

	query = r.ensureUnique(st, query, hint)

	if err := ctx.Err(); err != nil {
		return SearchRound{}, "", err
	}

	sctx, cancel := context.WithTimeout(ctx, r.searchTimeout)
	defer cancel()
	results, err := r.provider.Search(sctx, query, tool)
	if err != nil {
		if ctx.Err() != nil {
			return SearchRound{}, "", ctx.Err()
		}
		r.logger.Warn("search failed",
			zap.String("query", query),
			zap.String("tool", string(tool)),
			zap.Error(err))
		return SearchRound{
			Query:         query,
			Tool:          tool,
			Retry:         retry,
			Failed:        true,
			FailureReason: err.Error(),
		}, thinking, nil
	}

	sources := make([]SourceRecord, 0, len(results))
	for _, res := range results {
		sources = append(sources, SourceRecord{
			URL:     res.URL,
			Title:   res.Title,
			Snippet: res.Snippet,
			Tier:    res.Tier,
			Score:   res.Score * res.Tier.Weight(),
		})
	}

	return SearchRound{
		Query:   query,
		Tool:    tool,
		Sources: sources,
		Retry:   retry,
	}, thinking, nil
}

// reformulate asks the fast model for a fresh query following the hint's
// strategy. Malformed output degrades to the heuristic instead of failing
// the round.
func (r *Retriever) reformulate(ctx context.Context, st *State, hint *ReformulationHint) (string, search.Tool, string) {
	gctx, cancel := context.WithTimeout(ctx, r.generateTimeout)
	defer cancel()

	resp, err := generate(gctx, r.binding, retryQueryPrompt(st, hint))
	if err == nil {
		var out retryQueryOutput
		if derr := decodeObject(resp.Content, &out); derr == nil && strings.TrimSpace(out.Query) != "" {
			tool := search.ParseTool(out.Tool)
			if hint.Strategy == StrategySourceTargeted && len(st.QueriesUsed) > 0 {
				tool = r.retargetTool(st)
			}
			return strings.TrimSpace(out.Query), tool, out.Thinking
		}
		err = fmt.Errorf("unusable reformulation output")
	}

	r.logger.Warn("query reformulation degraded to heuristic", zap.Error(err))
	q, tool := r.heuristicQuery(st, hint.Strategy)
	return q, tool, "heuristic reformulation (" + string(hint.Strategy) + ")"
}

// heuristicQuery builds a retry query without a model call.
func (r *Retriever) heuristicQuery(st *State, strategy ReformulationStrategy) (string, search.Tool) {
	last := st.Question
	if n := len(st.QueriesUsed); n > 0 {
		last = st.QueriesUsed[n-1]
	}

	switch strategy {
	case StrategyBroader:
		words := strings.Fields(strings.ReplaceAll(last, "\"", ""))
		if len(words) > 5 {
			words = words[:5]
		}
		return strings.Join(words, " ") + " overview", search.ToolWeb
	case StrategyAdjacent:
		if task := st.NextPendingTask(); task != nil {
			task.Executed = true
			return task.Description, task.Tool
		}
		return last + " alternative perspectives", search.ToolWeb
	case StrategySourceTargeted:
		return last, r.retargetTool(st)
	default: // narrower
		q := last
		if len(st.CumulativeGaps) > 0 {
			q += " " + st.CumulativeGaps[len(st.CumulativeGaps)-1]
		}
		return q, search.ToolWeb
	}
}

// retargetTool picks the least-used tool so a source_targeted retry
// actually changes the source mix.
func (r *Retriever) retargetTool(st *State) search.Tool {
	best := search.ToolScholar
	bestCount := -1
	for _, t := range []search.Tool{search.ToolScholar, search.ToolNews, search.ToolWeb} {
		if bestCount == -1 || st.ToolUsage[t] < bestCount {
			best, bestCount = t, st.ToolUsage[t]
		}
	}
	return best
}

// ensureUnique coerces a query that duplicates an earlier round into a
// distinct one. The orchestrator re-checks afterwards; a duplicate that
// survives coercion is a defect, not a silent repeat.
func (r *Retriever) ensureUnique(st *State, query string, hint *ReformulationHint) string {
	if !st.HasQuery(query) {
		return query
	}
	strategy := StrategyNarrower
	if hint != nil {
		strategy = hint.Strategy
	}
	q, _ := r.heuristicQuery(st, strategy)
	if !st.HasQuery(q) {
		r.logger.Debug("duplicate query coerced", zap.String("from", query), zap.String("to", q))
		return q
	}
	if len(st.CumulativeGaps) > 0 {
		q = query + " " + st.CumulativeGaps[len(st.CumulativeGaps)-1]
		if !st.HasQuery(q) {
			return q
		}
	}
	return fmt.Sprintf("%s (round %d)", query, st.Iteration+1)
}

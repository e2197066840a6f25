package research

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/zen-systems/nexus/pkg/adapter"
	"github.com/zen-systems/nexus/pkg/search"
)

// ErrPlanFailed marks planner failures. Planning is the only stage whose
// failure is fatal for the run; without a plan there is nothing to retrieve.
var ErrPlanFailed = fmt.Errorf("research: planning failed")

// Plan is the planner's decomposition of a question.
type Plan struct {
	Tasks    []Task
	Strategy string
	Thinking string
	Tokens   int
}

// Planner decomposes a research question into prioritized subtasks using
// the fast-role model.
type Planner struct {
	binding adapter.Binding
	timeout time.Duration
	logger  *zap.Logger
}

// NewPlanner constructs a planner bound to one adapter and model.
func NewPlanner(binding adapter.Binding, timeout time.Duration, logger *zap.Logger) *Planner {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Planner{binding: binding, timeout: timeout, logger: logger}
}

type planOutput struct {
	Strategy string `json:"strategy"`
	Thinking string `json:"thinking"`
	Subtasks []struct {
		ID       string `json:"id"`
		Task     string `json:"task"`
		Priority string `json:"priority"`
		Tool     string `json:"tool"`
	} `json:"subtasks"`
}

// Plan produces 3 to 5 subtasks for the question. Any failure, transport
// or malformed output alike, is returned wrapped in ErrPlanFailed.
func (p *Planner) Plan(ctx context.Context, question string) (Plan, error) {
	ctx, cancel := context.WithTimeout(ctx, p.timeout)
	defer cancel()

	resp, err := generate(ctx, p.binding, plannerPrompt(question))
	if err != nil {
		return Plan{}, fmt.Errorf("%w: %v", ErrPlanFailed, err)
	}

	var out planOutput
	if err := decodeObject(resp.Content, &out); err != nil {
		return Plan{}, fmt.Errorf("%w: %v", ErrPlanFailed, err)
	}
	if len(out.Subtasks) == 0 {
		return Plan{}, fmt.Errorf("%w: plan contains no subtasks", ErrPlanFailed)
	}

	tasks := make([]Task, 0, len(out.Subtasks))
	for i, st := range out.Subtasks {
		if st.Task == "" {
			continue
		}
		id := st.ID
		if id == "" {
			id = fmt.Sprintf("t%d", i+1)
		}
		tasks = append(tasks, Task{
			ID:          id,
			Description: st.Task,
			Priority:    parsePriority(st.Priority),
			Tool:        search.ParseTool(st.Tool),
		})
		if len(tasks) == 5 {
			break
		}
	}
	if len(tasks) == 0 {
		return Plan{}, fmt.Errorf("%w: plan contains no usable subtasks", ErrPlanFailed)
	}

	p.logger.Debug("plan generated",
		zap.Int("tasks", len(tasks)),
		zap.String("model", resp.Model))

	return Plan{
		Tasks:    tasks,
		Strategy: out.Strategy,
		Thinking: out.Thinking,
		Tokens:   resp.Usage.TotalTokens,
	}, nil
}

func parsePriority(s string) Priority {
	switch Priority(s) {
	case PriorityHigh, PriorityMed, PriorityLow:
		return Priority(s)
	default:
		return PriorityMed
	}
}

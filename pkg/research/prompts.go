package research

import (
	"encoding/json"
	"fmt"
	"strings"
)

func plannerPrompt(question string) string {
	return fmt.Sprintf(`You are the planning stage of a research agent. Decompose the question into 3 to 5 concrete search subtasks.

Question: %s

Respond with a single JSON object:
{
  "strategy": "<one-sentence overall approach>",
  "thinking": "<brief reasoning>",
  "subtasks": [
    {"id": "t1", "task": "<what to find out>", "priority": "HIGH|MED|LOW", "tool": "web_search|scholar_search|news_search"}
  ]
}

Pick scholar_search for academic or scientific angles, news_search for current events, web_search otherwise. At least one subtask must be HIGH priority.`, question)
}

func retryQueryPrompt(st *State, hint *ReformulationHint) string {
	var b strings.Builder
	fmt.Fprintf(&b, "You are the retrieval stage of a research agent. Previous queries did not produce sufficient evidence.\n\n")
	fmt.Fprintf(&b, "Question: %s\n", st.Question)
	fmt.Fprintf(&b, "Queries already used (do not repeat any of them):\n")
	for _, q := range st.QueriesUsed {
		fmt.Fprintf(&b, "  - %s\n", q)
	}
	if len(st.CumulativeGaps) > 0 {
		fmt.Fprintf(&b, "Known gaps:\n")
		for _, g := range st.CumulativeGaps {
			fmt.Fprintf(&b, "  - %s\n", g)
		}
	}
	fmt.Fprintf(&b, "\nReformulation strategy: %s\n", hint.Strategy)
	if hint.Text != "" {
		fmt.Fprintf(&b, "Evaluator guidance: %s\n", hint.Text)
	}
	b.WriteString(`
Strategy meanings:
  broader          widen the query, drop restrictive terms
  narrower         add specifics that target the known gaps
  adjacent         attack the question from a different angle
  source_targeted  keep the intent but target a different source type

Respond with a single JSON object:
{"query": "<new search query>", "tool": "web_search|scholar_search|news_search", "thinking": "<brief reasoning>"}`)
	return b.String()
}

func evaluatorPrompt(question string, round SearchRound, queriesUsed, gaps []string, iteration, maxIterations int) string {
	srcs, _ := json.MarshalIndent(round.Sources, "", "  ")
	var b strings.Builder
	fmt.Fprintf(&b, "You are the evaluation stage of a research agent. Score how well the evidence gathered so far answers the question.\n\n")
	fmt.Fprintf(&b, "Question: %s\n", question)
	fmt.Fprintf(&b, "Iteration: %d of %d\n", iteration, maxIterations)
	fmt.Fprintf(&b, "Latest query: %s (tool %s)\n", round.Query, round.Tool)
	if round.Failed {
		fmt.Fprintf(&b, "The latest retrieval FAILED: %s\n", round.FailureReason)
	} else {
		fmt.Fprintf(&b, "Latest sources:\n%s\n", srcs)
	}
	if len(gaps) > 0 {
		fmt.Fprintf(&b, "Previously identified gaps: %s\n", strings.Join(gaps, "; "))
	}
	b.WriteString(`
Score four components, each an integer within its cap:
  coverage     0-40  how much of the question the evidence answers
  reliability  0-30  source quality (academic > official > news > general web)
  recency      0-15  whether the evidence is current enough for the question
  consistency  0-15  agreement between sources

Respond with a single JSON object:
{
  "coverage": <int>, "reliability": <int>, "recency": <int>, "consistency": <int>,
  "gaps": ["<missing aspect>", ...],
  "reformulation_hint": "<how the next query should change, empty if none needed>",
  "strategy": "broader|narrower|adjacent|source_targeted",
  "thinking": "<brief reasoning>"
}

If the combined score would be below the acceptance bar, gaps must name at least one concrete missing aspect.`)
	return b.String()
}

func synthesizerPrompt(question string, sources []SourceRecord, gaps []string, forced bool) string {
	srcs, _ := json.MarshalIndent(sources, "", "  ")
	var b strings.Builder
	fmt.Fprintf(&b, "You are the synthesis stage of a research agent. Write the final answer grounded ONLY in the sources below.\n\n")
	fmt.Fprintf(&b, "Question: %s\n\nSources (strongest first):\n%s\n", question, srcs)
	if forced {
		b.WriteString("\nThe iteration budget ran out before the evidence reached the acceptance bar. Answer with what exists and be explicit about weaknesses.\n")
	}
	if len(gaps) > 0 {
		fmt.Fprintf(&b, "\nUnresolved gaps to acknowledge: %s\n", strings.Join(gaps, "; "))
	}
	b.WriteString(`
Respond with a single JSON object:
{
  "answer": "<the answer, citing sources as [1], [2] by their position in the list above>",
  "final_confidence": <int 0-100, your independent confidence in this answer>,
  "citations": [{"id": <position in source list, 1-based>, "url": "...", "title": "..."}],
  "contradictions": [{"claim_a": "...", "claim_b": "...", "resolution": "..."}],
  "caveats": ["<limitation of this answer>", ...]
}

Only cite sources you actually used. Report contradictions between sources honestly instead of smoothing them over.`)
	return b.String()
}

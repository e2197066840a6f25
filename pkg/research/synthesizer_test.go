package research

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"testing"
	"time"

	"github.com/zen-systems/nexus/pkg/adapter"
	"github.com/zen-systems/nexus/pkg/search"
)

func mockBinding(m *adapter.MockAdapter) adapter.Binding {
	return adapter.Binding{Adapter: m, Model: "mock-1"}
}

func stateWithSources(n int) *State {
	st := NewState("r1", "what is x", 8)
	round := SearchRound{Query: "q", Tool: search.ToolWeb}
	for i := 0; i < n; i++ {
		round.Sources = append(round.Sources, SourceRecord{
			URL:   fmt.Sprintf("https://src%d.example", i),
			Title: fmt.Sprintf("Source %d", i),
			Tier:  search.TierWeb,
			Score: float64(n-i) / float64(n),
		})
	}
	st.ApplyRound(round)
	return st
}

func TestSynthesizeEmptyInputIsTotal(t *testing.T) {
	s := NewSynthesizer(mockBinding(adapter.NewMockAdapter()), 15, time.Second, nil)
	st := NewState("r1", "q", 8)
	st.ApplyRound(SearchRound{Query: "q", Failed: true, FailureReason: "down"})

	ans := s.Synthesize(context.Background(), st, true)
	if ans.Confidence != 0 {
		t.Errorf("Confidence = %d, want 0 with no evidence", ans.Confidence)
	}
	if ans.Text == "" {
		t.Error("empty-evidence answer must still explain itself")
	}
	if len(ans.Caveats) == 0 {
		t.Error("empty-evidence answer needs caveats")
	}
	if !ans.Forced {
		t.Error("Forced flag should carry through")
	}
}

func TestSynthesizeWindowSelection(t *testing.T) {
	mock := adapter.NewMockAdapter().Respond("synthesis stage",
		`{"answer": "grounded [1]", "final_confidence": 88,
		  "citations": [{"id": 1, "url": "ignored", "title": "ignored"}],
		  "contradictions": [], "caveats": []}`)
	s := NewSynthesizer(mockBinding(mock), 3, time.Second, nil)
	st := stateWithSources(10)
	st.ApplyEvaluation(EvaluationResult{Confidence: 90, ThresholdMet: true})

	ans := s.Synthesize(context.Background(), st, false)

	// Only the top 3 sources by score appear in the prompt.
	prompt := mock.Prompts()[0]
	if !strings.Contains(prompt, "src0.example") || strings.Contains(prompt, "src5.example") {
		t.Error("prompt should contain only the top-scored window")
	}

	// Citation id 1 resolves against the window, not the model's echo.
	if len(ans.Citations) != 1 || ans.Citations[0].URL != "https://src0.example" {
		t.Errorf("Citations = %+v, want resolved to src0", ans.Citations)
	}
	// Final confidence floors at the last evaluation when the bar was met.
	if ans.Confidence != 90 {
		t.Errorf("Confidence = %d, want floored to 90", ans.Confidence)
	}
}

func TestSynthesizeDropsInvalidCitations(t *testing.T) {
	mock := adapter.NewMockAdapter().Respond("synthesis stage",
		`{"answer": "a [1][99]", "final_confidence": 70,
		  "citations": [{"id": 1}, {"id": 99}, {"id": 0}]}`)
	s := NewSynthesizer(mockBinding(mock), 15, time.Second, nil)

	ans := s.Synthesize(context.Background(), stateWithSources(2), true)
	if len(ans.Citations) != 1 {
		t.Errorf("Citations = %+v, want out-of-range ids dropped", ans.Citations)
	}
}

func TestSynthesizeForcedCaveat(t *testing.T) {
	mock := adapter.NewMockAdapter().Respond("synthesis stage",
		`{"answer": "partial", "final_confidence": 40, "citations": [], "caveats": ["thin evidence"]}`)
	s := NewSynthesizer(mockBinding(mock), 15, time.Second, nil)

	ans := s.Synthesize(context.Background(), stateWithSources(2), true)
	if !ans.Forced {
		t.Error("Forced should be set")
	}
	found := false
	for _, c := range ans.Caveats {
		if strings.Contains(c, "budget exhausted") {
			found = true
		}
	}
	if !found {
		t.Errorf("Caveats = %v, want a budget-exhausted caveat appended", ans.Caveats)
	}
	if ans.Confidence != 40 {
		t.Errorf("forced Confidence = %d, want model value without flooring", ans.Confidence)
	}
}

func TestSynthesizeAdapterFailureDegrades(t *testing.T) {
	mock := adapter.NewMockAdapter().Fail(errors.New("provider down"))
	s := NewSynthesizer(mockBinding(mock), 15, time.Second, nil)

	ans := s.Synthesize(context.Background(), stateWithSources(3), false)
	if ans.Confidence != 0 {
		t.Errorf("degraded Confidence = %d, want 0", ans.Confidence)
	}
	if len(ans.Citations) != 3 {
		t.Errorf("degraded answer should list the window sources, got %d", len(ans.Citations))
	}
	if len(ans.Caveats) == 0 || !strings.Contains(ans.Caveats[0], "synthesis degraded") {
		t.Errorf("Caveats = %v, want degradation caveat", ans.Caveats)
	}
	if ans.Degraded == "" {
		t.Error("degraded answer must carry the failure reason for the audit trail")
	}
}

func TestSynthesizeMalformedOutputDegrades(t *testing.T) {
	mock := adapter.NewMockAdapter().Respond("synthesis stage", "I refuse to emit JSON")
	s := NewSynthesizer(mockBinding(mock), 15, time.Second, nil)

	ans := s.Synthesize(context.Background(), stateWithSources(2), false)
	if ans.Confidence != 0 || ans.Text == "" {
		t.Errorf("degraded answer = %+v, want listed sources at zero confidence", ans)
	}
	if ans.Degraded == "" {
		t.Error("malformed output must be marked degraded")
	}
}

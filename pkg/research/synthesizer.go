package research

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/zen-systems/nexus/pkg/adapter"
)

// Synthesizer produces the final answer from accumulated evidence using
// the pro-role model. Synthesize is total: every run that reaches it gets
// an answer, degraded if necessary, never an error.
type Synthesizer struct {
	binding adapter.Binding
	window  int
	timeout time.Duration
	logger  *zap.Logger
}

// NewSynthesizer constructs a synthesizer that grounds answers in the top
// window sources by score.
func NewSynthesizer(binding adapter.Binding, window int, timeout time.Duration, logger *zap.Logger) *Synthesizer {
	if logger == nil {
		logger = zap.NewNop()
	}
	if window <= 0 {
		window = 15
	}
	return &Synthesizer{binding: binding, window: window, timeout: timeout, logger: logger}
}

type synthOutput struct {
	Answer          string `json:"answer"`
	FinalConfidence int    `json:"final_confidence"`
	Citations       []struct {
		ID    int    `json:"id"`
		URL   string `json:"url"`
		Title string `json:"title"`
	} `json:"citations"`
	Contradictions []Contradiction `json:"contradictions"`
	Caveats        []string        `json:"caveats"`
}

// Synthesize writes the final answer from the state's usable sources.
func (s *Synthesizer) Synthesize(ctx context.Context, st *State, forced bool) FinalAnswer {
	window := s.selectWindow(st.UsableResults())
	if len(window) == 0 {
		return FinalAnswer{
			Text: "No usable sources were retrieved for this question. " +
				"Every retrieval round failed or returned nothing, so no grounded answer can be given.",
			Citations:      []Citation{},
			Contradictions: []Contradiction{},
			Confidence:     0,
			Caveats:        []string{"no evidence gathered", "all retrieval rounds were empty or failed"},
			Forced:         forced,
		}
	}

	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	prompt := synthesizerPrompt(st.Question, window, st.CumulativeGaps, forced)
	resp, err := generate(ctx, s.binding, prompt)
	if err != nil {
		s.logger.Warn("synthesis degraded", zap.Error(err))
		return s.fallbackAnswer(window, forced, err.Error())
	}

	var out synthOutput
	if err := decodeObject(resp.Content, &out); err != nil || strings.TrimSpace(out.Answer) == "" {
		s.logger.Warn("synthesis output unusable", zap.Error(err))
		return s.fallbackAnswer(window, forced, "unusable synthesis output")
	}

	confidence := clamp(out.FinalConfidence, 100)
	if !forced && confidence < st.LatestConfidence() {
		confidence = st.LatestConfidence()
	}

	citations := make([]Citation, 0, len(out.Citations))
	for _, c := range out.Citations {
		if c.ID < 1 || c.ID > len(window) {
			continue
		}
		src := window[c.ID-1]
		citations = append(citations, Citation{
			ID:    c.ID,
			URL:   src.URL,
			Title: src.Title,
			Tier:  src.Tier,
		})
	}

	contradictions := out.Contradictions
	if contradictions == nil {
		contradictions = []Contradiction{}
	}
	caveats := out.Caveats
	if caveats == nil {
		caveats = []string{}
	}
	if forced {
		caveats = append(caveats, "iteration budget exhausted before the evidence reached the acceptance bar")
	}

	return FinalAnswer{
		Text:           out.Answer,
		Citations:      citations,
		Contradictions: contradictions,
		Confidence:     confidence,
		Caveats:        caveats,
		Forced:         forced,
	}
}

// selectWindow sorts sources by weighted score, strongest first, and keeps
// the top window. Sorting is stable so equal scores keep retrieval order.
func (s *Synthesizer) selectWindow(sources []SourceRecord) []SourceRecord {
	window := make([]SourceRecord, len(sources))
	copy(window, sources)
	sort.SliceStable(window, func(i, j int) bool {
		return window[i].Score > window[j].Score
	})
	if len(window) > s.window {
		window = window[:s.window]
	}
	return window
}

func (s *Synthesizer) fallbackAnswer(window []SourceRecord, forced bool, reason string) FinalAnswer {
	var b strings.Builder
	b.WriteString("Answer generation failed; the strongest retrieved sources are listed instead:\n")
	citations := make([]Citation, 0, len(window))
	for i, src := range window {
		fmt.Fprintf(&b, "[%d] %s (%s)\n", i+1, src.Title, src.URL)
		citations = append(citations, Citation{ID: i + 1, URL: src.URL, Title: src.Title, Tier: src.Tier})
	}
	return FinalAnswer{
		Text:           b.String(),
		Citations:      citations,
		Contradictions: []Contradiction{},
		Confidence:     0,
		Caveats:        []string{"synthesis degraded: " + reason},
		Forced:         forced,
		Degraded:       reason,
	}
}

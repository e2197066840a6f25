// Package search provides the search-provider contract consumed by the
// research orchestrator, plus the Tavily-backed implementation. Providers
// return raw ranked results; all judgment about sufficiency lives in the
// orchestration core.
package search

import (
	"context"
)

// Tool selects which search mode a provider should run.
type Tool string

const (
	ToolWeb     Tool = "web_search"
	ToolScholar Tool = "scholar_search"
	ToolNews    Tool = "news_search"
)

// ParseTool normalizes a tool name, falling back to web search.
func ParseTool(s string) Tool {
	switch Tool(s) {
	case ToolWeb, ToolScholar, ToolNews:
		return Tool(s)
	default:
		return ToolWeb
	}
}

// Tier is the ordinal reliability classification of a source.
// academic > official > news > web.
type Tier string

const (
	TierAcademic Tier = "academic"
	TierOfficial Tier = "official"
	TierNews     Tier = "news"
	TierWeb      Tier = "web"
)

// Weight returns the tier's contribution on a 0..1 scale.
func (t Tier) Weight() float64 {
	switch t {
	case TierAcademic:
		return 1.0
	case TierOfficial:
		return 0.85
	case TierNews:
		return 0.6
	default:
		return 0.4
	}
}

// Result is one ranked search hit.
type Result struct {
	URL         string  `json:"url"`
	Title       string  `json:"title"`
	Snippet     string  `json:"snippet"`
	Score       float64 `json:"score"`
	Tier        Tier    `json:"tier"`
	PublishedAt string  `json:"published_at,omitempty"`
}

// Provider defines the interface for search providers. Every result must
// carry a reliability tier and a relevance score in [0,1].
type Provider interface {
	// Name returns the provider identifier.
	Name() string

	// Available returns true if the provider is currently usable.
	Available() bool

	// Search runs one query with the given tool.
	Search(ctx context.Context, query string, tool Tool) ([]Result, error)
}

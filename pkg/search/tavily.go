package search

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"os"
	"time"
)

const defaultEndpoint = "https://api.tavily.com/search"

// TavilyProvider implements Provider over the Tavily API. Tavily is used as
// a raw data source: the AI summary is disabled and the orchestrator does
// the thinking.
type TavilyProvider struct {
	apiKey     string
	endpoint   string
	httpClient *http.Client
	newsDays   int
}

// TavilyOption configures a TavilyProvider.
type TavilyOption func(*TavilyProvider)

// WithTavilyAPIKey sets the API key (alternative to env var).
func WithTavilyAPIKey(key string) TavilyOption {
	return func(t *TavilyProvider) {
		t.apiKey = key
	}
}

// WithEndpoint overrides the API endpoint (used by tests).
func WithEndpoint(endpoint string) TavilyOption {
	return func(t *TavilyProvider) {
		t.endpoint = endpoint
	}
}

// WithHTTPClient overrides the HTTP client.
func WithHTTPClient(client *http.Client) TavilyOption {
	return func(t *TavilyProvider) {
		t.httpClient = client
	}
}

// WithNewsWindow sets how many days back news searches look.
func WithNewsWindow(days int) TavilyOption {
	return func(t *TavilyProvider) {
		t.newsDays = days
	}
}

// NewTavilyProvider creates a new Tavily-backed provider.
func NewTavilyProvider(opts ...TavilyOption) *TavilyProvider {
	t := &TavilyProvider{
		apiKey:   os.Getenv("TAVILY_API_KEY"),
		endpoint: defaultEndpoint,
		httpClient: &http.Client{
			Timeout: 30 * time.Second,
		},
		newsDays: 90,
	}
	for _, opt := range opts {
		opt(t)
	}
	return t
}

// Name returns the provider identifier.
func (t *TavilyProvider) Name() string {
	return "tavily"
}

// Available returns true if the API key is configured.
func (t *TavilyProvider) Available() bool {
	return t.apiKey != ""
}

// tavilyRequest is the request payload for the Tavily API.
type tavilyRequest struct {
	Query         string `json:"query"`
	SearchDepth   string `json:"search_depth"`
	IncludeAnswer bool   `json:"include_answer"`
	MaxResults    int    `json:"max_results"`
	Topic         string `json:"topic,omitempty"`
	Days          int    `json:"days,omitempty"`
}

// tavilyResponse is the response from the Tavily API.
type tavilyResponse struct {
	Results []tavilyResult `json:"results"`
}

type tavilyResult struct {
	Title         string  `json:"title"`
	URL           string  `json:"url"`
	Content       string  `json:"content"`
	Score         float64 `json:"score"`
	PublishedDate string  `json:"published_date,omitempty"`
}

// Search runs one query with the given tool. Scholar searches scope the
// query to academic sites; news searches use Tavily's news topic with a
// recency window.
func (t *TavilyProvider) Search(ctx context.Context, query string, tool Tool) ([]Result, error) {
	if !t.Available() {
		return nil, fmt.Errorf("tavily API key not configured")
	}

	payload := tavilyRequest{
		Query:         query,
		SearchDepth:   "advanced",
		IncludeAnswer: false,
		MaxResults:    8,
	}
	switch tool {
	case ToolScholar:
		payload.Query = query + " site:arxiv.org OR site:pubmed.ncbi.nlm.nih.gov" +
			" OR site:jstor.org OR site:semanticscholar.org"
		payload.MaxResults = 5
	case ToolNews:
		payload.Topic = "news"
		payload.Days = t.newsDays
		payload.MaxResults = 6
	}

	body, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, t.endpoint, bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+t.apiKey)

	resp, err := t.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("tavily API error: status %d", resp.StatusCode)
	}

	var tavilyResp tavilyResponse
	if err := json.NewDecoder(resp.Body).Decode(&tavilyResp); err != nil {
		return nil, fmt.Errorf("failed to decode response: %w", err)
	}

	results := make([]Result, 0, len(tavilyResp.Results))
	for _, r := range tavilyResp.Results {
		if r.URL == "" {
			continue
		}
		tier := ClassifyTier(r.URL)
		switch tool {
		case ToolScholar:
			tier = TierAcademic
		case ToolNews:
			if tier == TierWeb {
				tier = TierNews
			}
		}
		results = append(results, Result{
			URL:         r.URL,
			Title:       r.Title,
			Snippet:     r.Content,
			Score:       clampScore(r.Score),
			Tier:        tier,
			PublishedAt: r.PublishedDate,
		})
	}

	return results, nil
}

func clampScore(s float64) float64 {
	if s < 0 {
		return 0
	}
	if s > 1 {
		return 1
	}
	return s
}

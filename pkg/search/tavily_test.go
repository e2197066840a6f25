package search

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
)

func newFakeTavily(t *testing.T, check func(req map[string]any)) *httptest.Server {
	t.Helper()
	return httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost {
			t.Errorf("expected POST, got %s", r.Method)
		}
		if r.Header.Get("Content-Type") != "application/json" {
			t.Error("expected Content-Type: application/json")
		}

		var req map[string]any
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			t.Fatalf("failed to decode request: %v", err)
		}
		if check != nil {
			check(req)
		}

		resp := map[string]any{
			"results": []map[string]any{
				{
					"title":   "Result A",
					"url":     "https://arxiv.org/abs/2401.00001",
					"content": "snippet a",
					"score":   0.95,
				},
				{
					"title":   "Result B",
					"url":     "https://example.com/b",
					"content": "snippet b",
					"score":   0.62,
				},
			},
		}
		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(resp)
	}))
}

func TestTavilyAvailable(t *testing.T) {
	p := NewTavilyProvider(WithTavilyAPIKey(""))
	p.apiKey = ""
	if p.Available() {
		t.Error("Available() should be false without API key")
	}

	p = NewTavilyProvider(WithTavilyAPIKey("test-key"))
	if !p.Available() {
		t.Error("Available() should be true with API key")
	}
}

func TestTavilySearchWeb(t *testing.T) {
	server := newFakeTavily(t, func(req map[string]any) {
		if req["include_answer"] != false {
			t.Error("include_answer should be false, raw data only")
		}
		if req["search_depth"] != "advanced" {
			t.Error("search_depth should be advanced")
		}
	})
	defer server.Close()

	p := NewTavilyProvider(
		WithTavilyAPIKey("test-key"),
		WithEndpoint(server.URL),
		WithHTTPClient(server.Client()),
	)

	results, err := p.Search(context.Background(), "test query", ToolWeb)
	if err != nil {
		t.Fatalf("Search() error: %v", err)
	}
	if len(results) != 2 {
		t.Fatalf("got %d results, want 2", len(results))
	}
	if results[0].Tier != TierAcademic {
		t.Errorf("results[0].Tier = %s, want academic (classified by URL)", results[0].Tier)
	}
	if results[1].Tier != TierWeb {
		t.Errorf("results[1].Tier = %s, want web", results[1].Tier)
	}
	if results[0].Score != 0.95 {
		t.Errorf("results[0].Score = %f, want 0.95", results[0].Score)
	}
}

func TestTavilySearchScholar(t *testing.T) {
	var gotQuery string
	server := newFakeTavily(t, func(req map[string]any) {
		gotQuery, _ = req["query"].(string)
	})
	defer server.Close()

	p := NewTavilyProvider(
		WithTavilyAPIKey("test-key"),
		WithEndpoint(server.URL),
		WithHTTPClient(server.Client()),
	)

	results, err := p.Search(context.Background(), "protein folding", ToolScholar)
	if err != nil {
		t.Fatalf("Search() error: %v", err)
	}
	if gotQuery == "protein folding" {
		t.Error("scholar query should be site-scoped")
	}
	for _, r := range results {
		if r.Tier != TierAcademic {
			t.Errorf("scholar result tier = %s, want academic", r.Tier)
		}
	}
}

func TestTavilySearchNews(t *testing.T) {
	server := newFakeTavily(t, func(req map[string]any) {
		if req["topic"] != "news" {
			t.Error("news search should set topic=news")
		}
		if req["days"] == nil {
			t.Error("news search should set a recency window")
		}
	})
	defer server.Close()

	p := NewTavilyProvider(
		WithTavilyAPIKey("test-key"),
		WithEndpoint(server.URL),
		WithHTTPClient(server.Client()),
	)

	if _, err := p.Search(context.Background(), "latest results", ToolNews); err != nil {
		t.Fatalf("Search() error: %v", err)
	}
}

func TestTavilySearchErrors(t *testing.T) {
	p := NewTavilyProvider(WithTavilyAPIKey(""))
	p.apiKey = ""
	if _, err := p.Search(context.Background(), "q", ToolWeb); err == nil {
		t.Error("Search() should fail without API key")
	}

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusTooManyRequests)
	}))
	defer server.Close()

	p = NewTavilyProvider(
		WithTavilyAPIKey("test-key"),
		WithEndpoint(server.URL),
		WithHTTPClient(server.Client()),
	)
	if _, err := p.Search(context.Background(), "q", ToolWeb); err == nil {
		t.Error("Search() should surface non-200 status")
	}
}

package tools

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
)

func TestTavilyTool_Search(t *testing.T) {
	var captured map[string]interface{}
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/search" {
			t.Errorf("unexpected path: %s", r.URL.Path)
		}
		if err := json.NewDecoder(r.Body).Decode(&captured); err != nil {
			t.Errorf("failed to decode request: %v", err)
		}
		json.NewEncoder(w).Encode(map[string]interface{}{
			"results": []map[string]interface{}{
				{"title": "Result A", "url": "https://a.example", "content": "alpha", "score": 0.95},
				{"title": "Result B", "url": "https://b.example", "content": "beta", "score": 0.80},
			},
		})
	}))
	defer server.Close()

	tool := NewTavilyTool(server.URL, "tv-key")
	sources, err := tool.Search(context.Background(), "test query", 5)
	if err != nil {
		t.Fatalf("Search failed: %v", err)
	}

	if len(sources) != 2 {
		t.Fatalf("len(sources) = %d, want 2", len(sources))
	}
	if sources[0].URL != "https://a.example" {
		t.Errorf("sources[0].URL = %q", sources[0].URL)
	}
	if sources[0].RelevanceScore != 0.95 {
		t.Errorf("RelevanceScore = %v, want 0.95", sources[0].RelevanceScore)
	}
	if captured["api_key"] != "tv-key" {
		t.Errorf("api_key = %v, want tv-key", captured["api_key"])
	}
	if captured["query"] != "test query" {
		t.Errorf("query = %v, want test query", captured["query"])
	}
}

func TestTavilyTool_Search_NoKey(t *testing.T) {
	tool := NewTavilyTool("", "")
	_, err := tool.Search(context.Background(), "q", 5)
	if err == nil {
		t.Fatal("expected error without api key")
	}
}

func TestTavilyTool_Search_TruncatesToMaxResults(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode(map[string]interface{}{
			"results": []map[string]interface{}{
				{"title": "A", "url": "https://a.example", "content": "a", "score": 0.9},
				{"title": "B", "url": "https://b.example", "content": "b", "score": 0.8},
				{"title": "C", "url": "https://c.example", "content": "c", "score": 0.7},
			},
		})
	}))
	defer server.Close()

	tool := NewTavilyTool(server.URL, "key")
	sources, err := tool.Search(context.Background(), "q", 2)
	if err != nil {
		t.Fatalf("Search failed: %v", err)
	}
	if len(sources) != 2 {
		t.Errorf("len(sources) = %d, want 2", len(sources))
	}
}

func TestDuckDuckGoTool_Search(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if got := r.URL.Query().Get("q"); got != "go language" {
			t.Errorf("q = %q, want go language", got)
		}
		json.NewEncoder(w).Encode(map[string]interface{}{
			"Heading":      "Go",
			"AbstractText": "Go is a programming language.",
			"AbstractURL":  "https://en.wikipedia.org/wiki/Go",
			"RelatedTopics": []map[string]interface{}{
				{"Text": "Gopher", "FirstURL": "https://ddg.example/gopher"},
				{
					"Topics": []map[string]interface{}{
						{"Text": "Nested", "FirstURL": "https://ddg.example/nested"},
					},
				},
			},
		})
	}))
	defer server.Close()

	tool := NewDuckDuckGoTool(server.URL)
	sources, err := tool.Search(context.Background(), "go language", 5)
	if err != nil {
		t.Fatalf("Search failed: %v", err)
	}

	if len(sources) != 3 {
		t.Fatalf("len(sources) = %d, want 3", len(sources))
	}
	if sources[0].Title != "Go" {
		t.Errorf("sources[0].Title = %q, want Go", sources[0].Title)
	}
	if sources[2].URL != "https://ddg.example/nested" {
		t.Errorf("nested topic not flattened: %q", sources[2].URL)
	}
}

func TestDuckDuckGoTool_Search_EmptyAnswer(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode(map[string]interface{}{
			"AbstractText":  "",
			"RelatedTopics": []map[string]interface{}{},
		})
	}))
	defer server.Close()

	tool := NewDuckDuckGoTool(server.URL)
	sources, err := tool.Search(context.Background(), "obscure", 5)
	if err != nil {
		t.Fatalf("Search failed: %v", err)
	}
	if len(sources) != 0 {
		t.Errorf("len(sources) = %d, want 0", len(sources))
	}
}

func TestRegistry(t *testing.T) {
	reg := NewRegistry()

	ddg := NewDuckDuckGoTool("")
	if err := reg.Register(ddg); err != nil {
		t.Fatalf("Register failed: %v", err)
	}
	if err := reg.Register(ddg); err == nil {
		t.Error("expected error on duplicate registration")
	}

	got, err := reg.Get("duckduckgo_search")
	if err != nil {
		t.Fatalf("Get failed: %v", err)
	}
	if got.Name() != "duckduckgo_search" {
		t.Errorf("Name = %q", got.Name())
	}

	if _, err := reg.Get("missing"); err == nil {
		t.Error("expected error for unknown tool")
	}

	wiki := NewWikipediaTool("", "")
	if err := reg.Register(wiki); err != nil {
		t.Fatalf("Register failed: %v", err)
	}

	list := reg.List()
	if len(list) != 2 {
		t.Fatalf("len(list) = %d, want 2", len(list))
	}
	if list[0].Name() != "duckduckgo_search" || list[1].Name() != "wikipedia_search" {
		t.Error("List should preserve registration order")
	}
}

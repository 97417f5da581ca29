package tools

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"time"

	"github.com/weaverlabs/weaver/pkg/domain"
)

const (
	tavilyDefaultBaseURL     = "https://api.tavily.com"
	duckDuckGoDefaultBaseURL = "https://api.duckduckgo.com"
)

// TavilyTool queries the Tavily search API for ranked web results.
type TavilyTool struct {
	baseURL    string
	apiKey     string
	httpClient *http.Client
}

// NewTavilyTool creates a Tavily search tool. An empty baseURL selects the
// production endpoint.
func NewTavilyTool(baseURL, apiKey string) *TavilyTool {
	if baseURL == "" {
		baseURL = tavilyDefaultBaseURL
	}
	return &TavilyTool{
		baseURL: baseURL,
		apiKey:  apiKey,
		httpClient: &http.Client{
			Timeout: 30 * time.Second,
		},
	}
}

// Name returns the tool name used in audit records
func (t *TavilyTool) Name() string {
	return "tavily_search"
}

type tavilyRequest struct {
	APIKey        string `json:"api_key"`
	Query         string `json:"query"`
	MaxResults    int    `json:"max_results"`
	SearchDepth   string `json:"search_depth"`
	IncludeAnswer bool   `json:"include_answer"`
}

type tavilyResult struct {
	Title   string  `json:"title"`
	URL     string  `json:"url"`
	Content string  `json:"content"`
	Score   float64 `json:"score"`
}

type tavilyResponse struct {
	Results []tavilyResult `json:"results"`
}

// Search returns ranked web sources for the query.
func (t *TavilyTool) Search(ctx context.Context, query string, maxResults int) ([]domain.Source, error) {
	if t.apiKey == "" {
		return nil, fmt.Errorf("tavily api key is not configured")
	}
	if maxResults < 1 {
		maxResults = 5
	}

	body, err := json.Marshal(tavilyRequest{
		APIKey:      t.apiKey,
		Query:       query,
		MaxResults:  maxResults,
		SearchDepth: "basic",
	})
	if err != nil {
		return nil, fmt.Errorf("failed to marshal search request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, t.baseURL+"/search", bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := t.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("tavily request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		payload, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return nil, fmt.Errorf("tavily returned status %d: %s", resp.StatusCode, string(payload))
	}

	var result tavilyResponse
	if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
		return nil, fmt.Errorf("failed to decode tavily response: %w", err)
	}

	sources := make([]domain.Source, 0, len(result.Results))
	for i, r := range result.Results {
		if i >= maxResults {
			break
		}
		sources = append(sources, domain.Source{
			Title:            r.Title,
			URL:              r.URL,
			Content:          r.Content,
			RelevanceScore:   r.Score,
			CredibilityScore: 0.7,
		})
	}

	return sources, nil
}

// DuckDuckGoTool queries the DuckDuckGo instant answer API. It needs no API
// key, which makes it the fallback when Tavily is not configured.
type DuckDuckGoTool struct {
	baseURL    string
	httpClient *http.Client
}

// NewDuckDuckGoTool creates a DuckDuckGo search tool. An empty baseURL
// selects the production endpoint.
func NewDuckDuckGoTool(baseURL string) *DuckDuckGoTool {
	if baseURL == "" {
		baseURL = duckDuckGoDefaultBaseURL
	}
	return &DuckDuckGoTool{
		baseURL: baseURL,
		httpClient: &http.Client{
			Timeout: 30 * time.Second,
		},
	}
}

// Name returns the tool name used in audit records
func (t *DuckDuckGoTool) Name() string {
	return "duckduckgo_search"
}

type duckDuckGoTopic struct {
	Text     string            `json:"Text"`
	FirstURL string            `json:"FirstURL"`
	Topics   []duckDuckGoTopic `json:"Topics"`
}

type duckDuckGoResponse struct {
	AbstractText  string            `json:"AbstractText"`
	AbstractURL   string            `json:"AbstractURL"`
	Heading       string            `json:"Heading"`
	RelatedTopics []duckDuckGoTopic `json:"RelatedTopics"`
}

// Search returns instant-answer sources for the query.
func (t *DuckDuckGoTool) Search(ctx context.Context, query string, maxResults int) ([]domain.Source, error) {
	if maxResults < 1 {
		maxResults = 5
	}

	params := url.Values{}
	params.Set("q", query)
	params.Set("format", "json")
	params.Set("no_html", "1")
	params.Set("skip_disambig", "1")

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, t.baseURL+"/?"+params.Encode(), nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}

	resp, err := t.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("duckduckgo request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("duckduckgo returned status %d", resp.StatusCode)
	}

	var result duckDuckGoResponse
	if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
		return nil, fmt.Errorf("failed to decode duckduckgo response: %w", err)
	}

	sources := make([]domain.Source, 0, maxResults)

	if result.AbstractText != "" && result.AbstractURL != "" {
		sources = append(sources, domain.Source{
			Title:            result.Heading,
			URL:              result.AbstractURL,
			Content:          result.AbstractText,
			RelevanceScore:   0.9,
			CredibilityScore: 0.6,
		})
	}

	for _, topic := range flattenTopics(result.RelatedTopics) {
		if len(sources) >= maxResults {
			break
		}
		if topic.FirstURL == "" || topic.Text == "" {
			continue
		}
		sources = append(sources, domain.Source{
			Title:            topic.Text,
			URL:              topic.FirstURL,
			Content:          topic.Text,
			RelevanceScore:   0.5,
			CredibilityScore: 0.6,
		})
	}

	return sources, nil
}

// flattenTopics expands nested disambiguation groups into a flat list.
func flattenTopics(topics []duckDuckGoTopic) []duckDuckGoTopic {
	flat := make([]duckDuckGoTopic, 0, len(topics))
	for _, t := range topics {
		if len(t.Topics) > 0 {
			flat = append(flat, flattenTopics(t.Topics)...)
			continue
		}
		flat = append(flat, t)
	}
	return flat
}

package tools

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"regexp"
	"strings"
	"time"

	"github.com/weaverlabs/weaver/pkg/domain"
)

const wikipediaDefaultBaseURL = "https://en.wikipedia.org"

// Wikimedia rejects requests without a descriptive User-Agent.
const wikipediaDefaultUserAgent = "weaver-research/0.1 (research agent)"

var htmlTagPattern = regexp.MustCompile(`<[^>]+>`)

// WikipediaTool queries the MediaWiki search API for encyclopedia articles.
type WikipediaTool struct {
	baseURL    string
	userAgent  string
	httpClient *http.Client
}

// NewWikipediaTool creates a Wikipedia search tool. Empty arguments select
// the production endpoint and default user agent.
func NewWikipediaTool(baseURL, userAgent string) *WikipediaTool {
	if baseURL == "" {
		baseURL = wikipediaDefaultBaseURL
	}
	if userAgent == "" {
		userAgent = wikipediaDefaultUserAgent
	}
	return &WikipediaTool{
		baseURL:   baseURL,
		userAgent: userAgent,
		httpClient: &http.Client{
			Timeout: 30 * time.Second,
		},
	}
}

// Name returns the tool name used in audit records
func (t *WikipediaTool) Name() string {
	return "wikipedia_search"
}

type wikipediaSearchResult struct {
	Title   string `json:"title"`
	PageID  int    `json:"pageid"`
	Snippet string `json:"snippet"`
}

type wikipediaResponse struct {
	Query struct {
		Search []wikipediaSearchResult `json:"search"`
	} `json:"query"`
}

// Search returns article snippets for the query.
func (t *WikipediaTool) Search(ctx context.Context, query string, maxResults int) ([]domain.Source, error) {
	if maxResults < 1 {
		maxResults = 3
	}

	params := url.Values{}
	params.Set("action", "query")
	params.Set("list", "search")
	params.Set("srsearch", query)
	params.Set("srlimit", fmt.Sprintf("%d", maxResults))
	params.Set("format", "json")

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, t.baseURL+"/w/api.php?"+params.Encode(), nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("User-Agent", t.userAgent)

	resp, err := t.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("wikipedia request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("wikipedia returned status %d", resp.StatusCode)
	}

	var result wikipediaResponse
	if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
		return nil, fmt.Errorf("failed to decode wikipedia response: %w", err)
	}

	sources := make([]domain.Source, 0, len(result.Query.Search))
	for _, r := range result.Query.Search {
		sources = append(sources, domain.Source{
			Title:            r.Title,
			URL:              fmt.Sprintf("%s/wiki/%s", t.baseURL, url.PathEscape(strings.ReplaceAll(r.Title, " ", "_"))),
			Content:          cleanSnippet(r.Snippet),
			RelevanceScore:   0.8,
			CredibilityScore: 0.9,
		})
	}

	return sources, nil
}

// cleanSnippet strips the search-highlight markup MediaWiki embeds in
// snippets and unescapes the common entities.
func cleanSnippet(s string) string {
	s = htmlTagPattern.ReplaceAllString(s, "")
	replacer := strings.NewReplacer(
		"&quot;", `"`,
		"&amp;", "&",
		"&lt;", "<",
		"&gt;", ">",
		"&#39;", "'",
		"&nbsp;", " ",
	)
	return strings.TrimSpace(replacer.Replace(s))
}

package agents

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/weaverlabs/weaver/pkg/domain"
)

// Schema examples embedded in structured-generation prompts. The model is
// told to produce exactly these shapes so the wire JSON decodes straight
// into the domain types.
const (
	planExample = `{
  "main_topic": "string",
  "subtopics": ["string"],
  "search_queries": ["string"],
  "required_data_points": ["string"]
}`

	reportExample = `{
  "title": "string",
  "abstract": "string",
  "sections": [
    {"title": "string", "content": "string", "source_ids": ["string"]}
  ],
  "conclusion": "string"
}`

	critiqueExample = `{
  "overall_score": 5.0,
  "strengths": ["string"],
  "weaknesses": ["string"],
  "missing_information": ["string"],
  "actionable_suggestions": ["string"],
  "decision": "approve or revise"
}`
)

// truncate limits a snippet to n runes, appending an ellipsis when cut.
func truncate(s string, n int) string {
	runes := []rune(s)
	if len(runes) <= n {
		return s
	}
	return string(runes[:n]) + "..."
}

// renderSources formats gathered sources as a numbered evidence block for a
// drafting or revision prompt.
func renderSources(sources []domain.Source, snippetLimit int) string {
	var b strings.Builder
	for i, s := range sources {
		fmt.Fprintf(&b, "[%d] %s\n", i+1, s.Title)
		if s.URL != "" {
			fmt.Fprintf(&b, "    URL: %s\n", s.URL)
		}
		fmt.Fprintf(&b, "    %s\n", truncate(s.Content, snippetLimit))
	}
	return b.String()
}

// renderReport serializes a report as indented JSON for embedding in a
// critique or revision prompt.
func renderReport(report *domain.Report) string {
	data, err := json.MarshalIndent(report, "", "  ")
	if err != nil {
		return fmt.Sprintf("title: %s\nabstract: %s", report.Title, report.Abstract)
	}
	return string(data)
}

// renderList formats a string slice as prompt bullet lines.
func renderList(items []string) string {
	if len(items) == 0 {
		return "(none)"
	}
	var b strings.Builder
	for _, item := range items {
		fmt.Fprintf(&b, "- %s\n", item)
	}
	return strings.TrimRight(b.String(), "\n")
}

package llm

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/weaverlabs/weaver/pkg/domain"
)

// DefaultBaseURL is the Groq OpenAI-compatible endpoint.
const DefaultBaseURL = "https://api.groq.com/openai/v1"

// GroqClient implements the LLMClient interface against the Groq
// chat-completions API (OpenAI wire format).
type GroqClient struct {
	baseURL    string
	apiKey     string
	model      string
	httpClient *http.Client
	options    GroqOptions
}

// GroqOptions configures the Groq client defaults.
type GroqOptions struct {
	Temperature float64       `json:"temperature"`
	MaxTokens   int           `json:"max_tokens"`
	Timeout     time.Duration `json:"timeout"`
}

// chatRequest represents a request to the chat-completions API
type chatRequest struct {
	Model          string          `json:"model"`
	Messages       []chatMessage   `json:"messages"`
	Temperature    float64         `json:"temperature,omitempty"`
	MaxTokens      int             `json:"max_tokens,omitempty"`
	ResponseFormat *responseFormat `json:"response_format,omitempty"`
}

type chatMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type responseFormat struct {
	Type string `json:"type"`
}

// chatResponse represents a response from the chat-completions API
type chatResponse struct {
	Choices []struct {
		Message      chatMessage `json:"message"`
		FinishReason string      `json:"finish_reason"`
	} `json:"choices"`
	Usage struct {
		PromptTokens     int `json:"prompt_tokens"`
		CompletionTokens int `json:"completion_tokens"`
		TotalTokens      int `json:"total_tokens"`
	} `json:"usage"`
}

// ValidationError reports that the model produced output that could not be
// parsed or coerced into the declared schema.
type ValidationError struct {
	Schema string
	Raw    string
	Err    error
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("llm output failed validation for schema %s: %v", e.Schema, e.Err)
}

func (e *ValidationError) Unwrap() error {
	return e.Err
}

// NewGroqClient creates a new Groq client. An empty baseURL selects the
// public Groq endpoint.
func NewGroqClient(baseURL, apiKey, model string, options *GroqOptions) *GroqClient {
	if baseURL == "" {
		baseURL = DefaultBaseURL
	}
	if options == nil {
		options = &GroqOptions{
			Temperature: 0.7,
			MaxTokens:   4096,
			Timeout:     2 * time.Minute,
		}
	}

	return &GroqClient{
		baseURL: baseURL,
		apiKey:  apiKey,
		model:   model,
		httpClient: &http.Client{
			Timeout: options.Timeout,
		},
		options: *options,
	}
}

// Generate performs a plain text completion
func (c *GroqClient) Generate(ctx context.Context, prompt string, opts domain.GenerateOptions) (string, error) {
	system := opts.SystemPrompt
	if system == "" {
		system = "You are a helpful research assistant."
	}

	resp, err := c.complete(ctx, chatRequest{
		Model: c.model,
		Messages: []chatMessage{
			{Role: "system", Content: system},
			{Role: "user", Content: prompt},
		},
		Temperature: c.temperature(opts),
		MaxTokens:   c.maxTokens(opts),
	})
	if err != nil {
		return "", err
	}

	if len(resp.Choices) == 0 {
		return "", fmt.Errorf("llm returned no choices")
	}
	return resp.Choices[0].Message.Content, nil
}

// GenerateStructured performs a completion constrained to JSON mode and
// decodes the result into out. Decoding failures surface as a
// *ValidationError so callers can tell malformed output from transport
// errors.
func (c *GroqClient) GenerateStructured(ctx context.Context, prompt string, schema domain.SchemaHint, opts domain.GenerateOptions, out interface{}) error {
	system := opts.SystemPrompt
	if system == "" {
		system = "You are a precise data extraction assistant."
	}
	system = system + "\n\n" + schemaInstruction(schema)

	resp, err := c.complete(ctx, chatRequest{
		Model: c.model,
		Messages: []chatMessage{
			{Role: "system", Content: system},
			{Role: "user", Content: prompt},
		},
		Temperature:    c.temperature(opts),
		MaxTokens:      c.maxTokens(opts),
		ResponseFormat: &responseFormat{Type: "json_object"},
	})
	if err != nil {
		return err
	}

	if len(resp.Choices) == 0 {
		return &ValidationError{Schema: schema.Name, Err: fmt.Errorf("llm returned no choices")}
	}

	content := resp.Choices[0].Message.Content
	if content == "" {
		return &ValidationError{Schema: schema.Name, Err: fmt.Errorf("llm returned empty content")}
	}

	content = unwrapProperties(content)

	if err := json.Unmarshal([]byte(content), out); err != nil {
		return &ValidationError{Schema: schema.Name, Raw: content, Err: err}
	}
	return nil
}

// complete sends one chat-completions request.
func (c *GroqClient) complete(ctx context.Context, req chatRequest) (*chatResponse, error) {
	body, err := json.Marshal(req)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal request: %w", err)
	}

	httpReq, err := http.NewRequestWithContext(
		ctx,
		"POST",
		fmt.Sprintf("%s/chat/completions", c.baseURL),
		bytes.NewReader(body),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}

	httpReq.Header.Set("Content-Type", "application/json")
	if c.apiKey != "" {
		httpReq.Header.Set("Authorization", "Bearer "+c.apiKey)
	}

	resp, err := c.httpClient.Do(httpReq)
	if err != nil {
		return nil, fmt.Errorf("request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		respBody, _ := io.ReadAll(resp.Body)
		return nil, fmt.Errorf("llm api returned status %d: %s", resp.StatusCode, string(respBody))
	}

	var chatResp chatResponse
	if err := json.NewDecoder(resp.Body).Decode(&chatResp); err != nil {
		return nil, fmt.Errorf("failed to decode response: %w", err)
	}
	return &chatResp, nil
}

func (c *GroqClient) temperature(opts domain.GenerateOptions) float64 {
	if opts.Temperature > 0 {
		return opts.Temperature
	}
	return c.options.Temperature
}

func (c *GroqClient) maxTokens(opts domain.GenerateOptions) int {
	if opts.MaxTokens > 0 {
		return opts.MaxTokens
	}
	return c.options.MaxTokens
}

// schemaInstruction builds the JSON-mode system prompt suffix for a schema.
func schemaInstruction(schema domain.SchemaHint) string {
	example := schema.Example
	if example == "" {
		example = "Output a valid JSON object matching the requested structure."
	}
	return fmt.Sprintf(`You must respond with a valid JSON object.

%s

RULES:
- Output ONLY the JSON object, no markdown or extra text
- Fill in ALL required fields with actual data based on the user's request
- Follow the exact structure shown in the example above`, example)
}

// unwrapProperties unwraps a {"properties": {...}} envelope. Some models
// echo the JSON-schema wrapper instead of the object itself.
func unwrapProperties(content string) string {
	var envelope map[string]json.RawMessage
	if err := json.Unmarshal([]byte(content), &envelope); err != nil {
		return content
	}
	if len(envelope) != 1 {
		return content
	}
	inner, ok := envelope["properties"]
	if !ok {
		return content
	}
	var nested map[string]json.RawMessage
	if err := json.Unmarshal(inner, &nested); err != nil {
		return content
	}
	return string(inner)
}

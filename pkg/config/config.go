package config

import (
	"fmt"
	"log"
	"os"
	"path/filepath"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// Config represents the complete application configuration
type Config struct {
	LLM           LLMConfig           `yaml:"llm"`
	Research      ResearchConfig      `yaml:"research"`
	Tools         ToolsConfig         `yaml:"tools"`
	Store         StoreConfig         `yaml:"store"`
	API           APIConfig           `yaml:"api"`
	Observability ObservabilityConfig `yaml:"observability"`
}

// LLMConfig contains LLM provider configuration
type LLMConfig struct {
	Groq GroqConfig `yaml:"groq"`
}

// GroqConfig contains Groq-specific configuration
type GroqConfig struct {
	BaseURL     string  `yaml:"base_url"`
	Model       string  `yaml:"model"`
	APIKey      string  `yaml:"api_key,omitempty"`
	Temperature float64 `yaml:"temperature"`
	MaxTokens   int     `yaml:"max_tokens"`
	Timeout     string  `yaml:"timeout"`
}

// ResearchConfig contains research workflow configuration
type ResearchConfig struct {
	QualityThreshold   float64 `yaml:"quality_threshold"`
	MaxRevisionLoops   int     `yaml:"max_revision_loops"`
	MaxSources         int     `yaml:"max_sources"`
	SourceSnippetLimit int     `yaml:"source_snippet_limit"`
	Timeout            string  `yaml:"timeout"`
}

// ToolsConfig contains search tool configuration
type ToolsConfig struct {
	WebSearch WebSearchConfig `yaml:"web_search"`
	Wikipedia WikipediaConfig `yaml:"wikipedia"`
}

// WebSearchConfig contains web search tool configuration
type WebSearchConfig struct {
	Enabled    bool   `yaml:"enabled"`
	APIKey     string `yaml:"api_key,omitempty"`
	MaxResults int    `yaml:"max_results"`
}

// WikipediaConfig contains Wikipedia tool configuration
type WikipediaConfig struct {
	Enabled    bool   `yaml:"enabled"`
	UserAgent  string `yaml:"user_agent"`
	MaxResults int    `yaml:"max_results"`
}

// StoreConfig contains task store configuration
type StoreConfig struct {
	Type     string `yaml:"type"` // "memory", "mongo"
	URI      string `yaml:"uri,omitempty"`
	Database string `yaml:"database,omitempty"`
}

// APIConfig contains API server configuration
type APIConfig struct {
	Enabled bool   `yaml:"enabled"`
	Host    string `yaml:"host"`
	Port    int    `yaml:"port"`
}

// ObservabilityConfig contains observability configuration
type ObservabilityConfig struct {
	Tracing TracingConfig `yaml:"tracing"`
	Metrics MetricsConfig `yaml:"metrics"`
	Logging LoggingConfig `yaml:"logging"`
}

// TracingConfig contains tracing configuration
type TracingConfig struct {
	Enabled      bool    `yaml:"enabled"`
	Endpoint     string  `yaml:"endpoint"`
	SamplingRate float64 `yaml:"sampling_rate"`
	Insecure     bool    `yaml:"insecure"`
}

// MetricsConfig contains metrics configuration
type MetricsConfig struct {
	Enabled bool `yaml:"enabled"`
	Port    int  `yaml:"port"`
}

// LoggingConfig contains logging configuration
type LoggingConfig struct {
	Level  string `yaml:"level"`  // "debug", "info", "warn", "error"
	Format string `yaml:"format"` // "json"
	Output string `yaml:"output"` // "stdout", "file"
}

// Load loads configuration from a file
func Load(path string) (*Config, error) {
	if _, err := os.Stat(path); os.IsNotExist(err) {
		return nil, fmt.Errorf("config file not found: %s", path)
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	config := &Config{}
	if err := yaml.Unmarshal(data, config); err != nil {
		return nil, fmt.Errorf("failed to parse config: %w", err)
	}

	config.applyDefaults()
	config.overrideFromEnv()

	if err := config.validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	return config, nil
}

// LoadOrDefault loads configuration from a file or returns default config
func LoadOrDefault(path string) *Config {
	config, err := Load(path)
	if err != nil {
		config = Default()
		config.overrideFromEnv()
	}
	return config
}

// Default returns default configuration
func Default() *Config {
	return &Config{
		LLM: LLMConfig{
			Groq: GroqConfig{
				BaseURL:     "https://api.groq.com/openai/v1",
				Model:       "llama-3.3-70b-versatile",
				Temperature: 0.7,
				MaxTokens:   4096,
				Timeout:     "2m",
			},
		},
		Research: ResearchConfig{
			QualityThreshold:   6.5,
			MaxRevisionLoops:   1,
			MaxSources:         15,
			SourceSnippetLimit: 400,
			Timeout:            "10m",
		},
		Tools: ToolsConfig{
			WebSearch: WebSearchConfig{
				Enabled:    true,
				MaxResults: 5,
			},
			Wikipedia: WikipediaConfig{
				Enabled:    true,
				UserAgent:  "weaver-research/0.1 (research agent)",
				MaxResults: 3,
			},
		},
		Store: StoreConfig{
			Type:     "memory",
			URI:      "mongodb://localhost:27017",
			Database: "weaver",
		},
		API: APIConfig{
			Enabled: false,
			Host:    "0.0.0.0",
			Port:    8080,
		},
		Observability: ObservabilityConfig{
			Tracing: TracingConfig{
				Enabled:      true,
				Endpoint:     "localhost:4318",
				SamplingRate: 1.0,
				Insecure:     true,
			},
			Metrics: MetricsConfig{
				Enabled: true,
				Port:    2223,
			},
			Logging: LoggingConfig{
				Level:  "info",
				Format: "json",
				Output: "stdout",
			},
		},
	}
}

// applyDefaults applies default values to missing fields
func (c *Config) applyDefaults() {
	defaults := Default()

	if c.LLM.Groq.BaseURL == "" {
		c.LLM.Groq.BaseURL = defaults.LLM.Groq.BaseURL
	}
	if c.LLM.Groq.Model == "" {
		c.LLM.Groq.Model = defaults.LLM.Groq.Model
	}
	if c.LLM.Groq.Temperature == 0 {
		c.LLM.Groq.Temperature = defaults.LLM.Groq.Temperature
	}
	if c.LLM.Groq.MaxTokens == 0 {
		c.LLM.Groq.MaxTokens = defaults.LLM.Groq.MaxTokens
	}
	if c.LLM.Groq.Timeout == "" {
		c.LLM.Groq.Timeout = defaults.LLM.Groq.Timeout
	}

	if c.Research.QualityThreshold == 0 {
		c.Research.QualityThreshold = defaults.Research.QualityThreshold
	}
	if c.Research.MaxRevisionLoops == 0 {
		c.Research.MaxRevisionLoops = defaults.Research.MaxRevisionLoops
	}
	if c.Research.MaxSources == 0 {
		c.Research.MaxSources = defaults.Research.MaxSources
	}
	if c.Research.SourceSnippetLimit == 0 {
		c.Research.SourceSnippetLimit = defaults.Research.SourceSnippetLimit
	}
	if c.Research.Timeout == "" {
		c.Research.Timeout = defaults.Research.Timeout
	}

	if c.Tools.WebSearch.MaxResults == 0 {
		c.Tools.WebSearch.MaxResults = defaults.Tools.WebSearch.MaxResults
	}
	if c.Tools.Wikipedia.MaxResults == 0 {
		c.Tools.Wikipedia.MaxResults = defaults.Tools.Wikipedia.MaxResults
	}
	if c.Tools.Wikipedia.UserAgent == "" {
		c.Tools.Wikipedia.UserAgent = defaults.Tools.Wikipedia.UserAgent
	}

	if c.Store.Type == "" {
		c.Store.Type = defaults.Store.Type
	}
	if c.Store.URI == "" {
		c.Store.URI = defaults.Store.URI
	}
	if c.Store.Database == "" {
		c.Store.Database = defaults.Store.Database
	}

	if c.API.Host == "" {
		c.API.Host = defaults.API.Host
	}
	if c.API.Port == 0 {
		c.API.Port = defaults.API.Port
	}

	if c.Observability.Tracing.Endpoint == "" {
		c.Observability.Tracing.Endpoint = defaults.Observability.Tracing.Endpoint
	}
	if c.Observability.Tracing.SamplingRate == 0 {
		c.Observability.Tracing.SamplingRate = defaults.Observability.Tracing.SamplingRate
	}
	if c.Observability.Metrics.Port == 0 {
		c.Observability.Metrics.Port = defaults.Observability.Metrics.Port
	}
	if c.Observability.Logging.Level == "" {
		c.Observability.Logging.Level = defaults.Observability.Logging.Level
	}
	if c.Observability.Logging.Format == "" {
		c.Observability.Logging.Format = defaults.Observability.Logging.Format
	}
	if c.Observability.Logging.Output == "" {
		c.Observability.Logging.Output = defaults.Observability.Logging.Output
	}
}

// overrideFromEnv overrides configuration from environment variables
func (c *Config) overrideFromEnv() {
	if key := os.Getenv("GROQ_API_KEY"); key != "" {
		c.LLM.Groq.APIKey = key
	}
	if url := os.Getenv("GROQ_BASE_URL"); url != "" {
		c.LLM.Groq.BaseURL = url
	}
	if model := os.Getenv("GROQ_MODEL"); model != "" {
		c.LLM.Groq.Model = model
	}

	if key := os.Getenv("TAVILY_API_KEY"); key != "" {
		c.Tools.WebSearch.APIKey = key
	}

	if uri := os.Getenv("MONGO_URI"); uri != "" {
		c.Store.URI = uri
	}

	if port := os.Getenv("API_PORT"); port != "" {
		_, err := fmt.Sscanf(port, "%d", &c.API.Port)
		if err != nil {
			log.Printf("Invalid API_PORT value: %s, using default: %d", port, c.API.Port)
		}
	}

	if endpoint := os.Getenv("OTEL_EXPORTER_OTLP_ENDPOINT"); endpoint != "" {
		c.Observability.Tracing.Endpoint = endpoint
	}
}

// validate validates the configuration
func (c *Config) validate() error {
	if c.LLM.Groq.BaseURL == "" {
		return fmt.Errorf("llm groq base_url is required")
	}
	if c.LLM.Groq.Model == "" {
		return fmt.Errorf("llm groq model is required")
	}

	if c.Research.QualityThreshold < 0 || c.Research.QualityThreshold > 10 {
		return fmt.Errorf("research quality_threshold must be between 0 and 10")
	}
	if c.Research.MaxRevisionLoops < 0 {
		return fmt.Errorf("research max_revision_loops must not be negative")
	}
	if c.Research.MaxSources < 1 {
		return fmt.Errorf("research max_sources must be at least 1")
	}

	switch c.Store.Type {
	case "memory":
	case "mongo":
		if c.Store.URI == "" {
			return fmt.Errorf("store uri is required for mongo store")
		}
		if c.Store.Database == "" {
			return fmt.Errorf("store database is required for mongo store")
		}
	default:
		return fmt.Errorf("unknown store type: %s", c.Store.Type)
	}

	if c.API.Enabled && (c.API.Port < 1 || c.API.Port > 65535) {
		return fmt.Errorf("api port must be between 1 and 65535")
	}

	if _, err := time.ParseDuration(c.Research.Timeout); err != nil {
		return fmt.Errorf("invalid research timeout: %w", err)
	}
	if _, err := time.ParseDuration(c.LLM.Groq.Timeout); err != nil {
		return fmt.Errorf("invalid llm timeout: %w", err)
	}

	return nil
}

// Save saves the configuration to a file
func (c *Config) Save(path string) error {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return fmt.Errorf("failed to create config directory: %w", err)
	}

	data, err := yaml.Marshal(c)
	if err != nil {
		return fmt.Errorf("failed to marshal config: %w", err)
	}

	if err := os.WriteFile(path, data, 0644); err != nil {
		return fmt.Errorf("failed to write config file: %w", err)
	}

	return nil
}

// GetDuration parses a duration string from config
func (c *Config) GetDuration(value string) (time.Duration, error) {
	return time.ParseDuration(value)
}

// IsProduction returns true if running in production environment
func (c *Config) IsProduction() bool {
	env := os.Getenv("ENVIRONMENT")
	return strings.ToLower(env) == "production" || strings.ToLower(env) == "prod"
}

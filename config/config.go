// Package config provides configuration loading and management for the
// ontology analyzer pipeline.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"gopkg.in/yaml.v3"
)

// Config represents the complete analyzer configuration.
type Config struct {
	SPARQL   SPARQLConfig   `yaml:"sparql"`
	LLM      LLMConfig      `yaml:"llm"`
	Pipeline PipelineConfig `yaml:"pipeline"`
}

// SPARQLConfig configures the triple store connection and schema profiling.
type SPARQLConfig struct {
	// BaseURL is the SPARQL 1.1 query endpoint.
	BaseURL string `yaml:"base_url"`
	// TimeoutSec is the per-query execution timeout in seconds.
	TimeoutSec int `yaml:"timeout_sec"`
	// SchemaGraphURI scopes the schema TTL CONSTRUCT to one named graph.
	// Empty fetches from all graphs.
	SchemaGraphURI string `yaml:"schema_graph_uri"`
	// IncludeFullSchemaTTL appends the serialized schema graph to the
	// planner prompt.
	IncludeFullSchemaTTL bool `yaml:"include_full_schema_ttl"`
	// SchemaTTLMaxChars truncates the schema TTL. <= 0 means no limit.
	SchemaTTLMaxChars int `yaml:"schema_ttl_max_chars"`
	// SchemaCacheTTL controls how long a schema profile stays fresh.
	SchemaCacheTTL time.Duration `yaml:"schema_cache_ttl"`
}

// LLMConfig configures the language model endpoint.
type LLMConfig struct {
	// Provider selects the backend ("openai", "ollama", or "anthropic").
	Provider string `yaml:"provider"`
	// BaseURL is the chat/completion endpoint.
	BaseURL string `yaml:"base_url"`
	// APIKey authenticates against the provider.
	APIKey string `yaml:"api_key"`
	// DefaultModel is used when no model is explicitly selected.
	DefaultModel string `yaml:"default_model"`
	// PlannerTimeoutSec bounds the candidate-generation call.
	PlannerTimeoutSec int `yaml:"planner_timeout_sec"`
	// PlannerMaxTokens limits the planner response. 0 uses endpoint default.
	PlannerMaxTokens int `yaml:"planner_max_tokens"`
}

// PipelineConfig configures candidate generation, execution and ranking.
type PipelineConfig struct {
	// TopK is the number of ranked evidence items forwarded to synthesis.
	TopK int `yaml:"top_k"`
	// QueryCandidates is the number of queries requested per question.
	QueryCandidates int `yaml:"query_candidates"`
	// MaxRows caps SELECT result rows.
	MaxRows int `yaml:"max_rows"`
	// MaxTriples caps CONSTRUCT result triples.
	MaxTriples int `yaml:"max_triples"`
	// MaxQueryChars rejects over-length candidates. Floor is 256.
	MaxQueryChars int `yaml:"max_query_chars"`
	// AllowDescribe permits DESCRIBE as a fourth query form.
	AllowDescribe bool `yaml:"allow_describe"`
	// EnableLexicalSearch builds keyword fallback queries when the
	// planner yields nothing parseable.
	EnableLexicalSearch bool `yaml:"enable_lexical_search"`
	// LexicalMaxTokens caps question tokens used for fallback queries.
	LexicalMaxTokens int `yaml:"lexical_max_tokens"`
	// LexicalMaxCandidates caps the number of fallback queries.
	LexicalMaxCandidates int `yaml:"lexical_max_candidates"`
	// RequestTimeoutSec bounds the whole request.
	RequestTimeoutSec int `yaml:"request_timeout_sec"`
	// MaxConcurrent limits parallel candidate execution.
	MaxConcurrent int `yaml:"max_concurrent"`
}

// DefaultConfig returns a Config with sensible defaults.
func DefaultConfig() *Config {
	return &Config{
		SPARQL: SPARQLConfig{
			TimeoutSec:           20,
			IncludeFullSchemaTTL: false,
			SchemaTTLMaxChars:    20000,
			SchemaCacheTTL:       10 * time.Minute,
		},
		LLM: LLMConfig{
			Provider:          "openai",
			PlannerTimeoutSec: 45,
			PlannerMaxTokens:  0,
		},
		Pipeline: PipelineConfig{
			TopK:                 3,
			QueryCandidates:      3,
			MaxRows:              100,
			MaxTriples:           30,
			MaxQueryChars:        8000,
			AllowDescribe:        false,
			EnableLexicalSearch:  true,
			LexicalMaxTokens:     6,
			LexicalMaxCandidates: 2,
			RequestTimeoutSec:    90,
			MaxConcurrent:        4,
		},
	}
}

// providersRequiringKey lists providers that reject unauthenticated requests.
var providersRequiringKey = map[string]bool{
	"openai":    true,
	"anthropic": true,
}

// knownProviders enumerates the supported LLM backends.
var knownProviders = map[string]bool{
	"openai":    true,
	"ollama":    true,
	"anthropic": true,
}

// Validate checks that the configuration is valid.
// A validation failure is the only fatal, request-aborting condition:
// it is detected before any pipeline stage runs.
func (c *Config) Validate() error {
	if c.SPARQL.BaseURL == "" {
		return fmt.Errorf("sparql.base_url is required")
	}
	if c.SPARQL.TimeoutSec <= 0 {
		return fmt.Errorf("sparql.timeout_sec must be positive")
	}
	if c.LLM.Provider == "" {
		return fmt.Errorf("llm.provider is required")
	}
	if !knownProviders[c.LLM.Provider] {
		return fmt.Errorf("llm.provider %q is not supported", c.LLM.Provider)
	}
	if c.LLM.BaseURL == "" {
		return fmt.Errorf("llm.base_url is required")
	}
	if providersRequiringKey[c.LLM.Provider] && c.LLM.APIKey == "" {
		return fmt.Errorf("llm.api_key is required for provider %q", c.LLM.Provider)
	}
	if c.Pipeline.QueryCandidates <= 0 {
		return fmt.Errorf("pipeline.query_candidates must be positive")
	}
	if c.Pipeline.TopK <= 0 {
		return fmt.Errorf("pipeline.top_k must be positive")
	}
	if c.Pipeline.TopK > c.Pipeline.QueryCandidates {
		return fmt.Errorf("pipeline.top_k (%d) must not exceed pipeline.query_candidates (%d)",
			c.Pipeline.TopK, c.Pipeline.QueryCandidates)
	}
	if c.Pipeline.MaxRows <= 0 {
		return fmt.Errorf("pipeline.max_rows must be positive")
	}
	if c.Pipeline.MaxTriples <= 0 {
		return fmt.Errorf("pipeline.max_triples must be positive")
	}
	if c.Pipeline.RequestTimeoutSec <= 0 {
		return fmt.Errorf("pipeline.request_timeout_sec must be positive")
	}
	if c.Pipeline.MaxConcurrent <= 0 {
		return fmt.Errorf("pipeline.max_concurrent must be positive")
	}
	if c.Pipeline.MaxQueryChars < 256 {
		return fmt.Errorf("pipeline.max_query_chars must be at least 256")
	}
	return nil
}

// LoadFromFile loads configuration from a YAML file.
func LoadFromFile(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	config := DefaultConfig()
	if err := yaml.Unmarshal(data, config); err != nil {
		return nil, fmt.Errorf("failed to parse config file: %w", err)
	}

	return config, nil
}

// applyFile unmarshals a YAML file's settings over the receiver. Only
// keys present in the document are touched, so an explicit false in a
// later layer overrides an earlier layer's true, which Merge cannot
// express for booleans.
func (c *Config) applyFile(path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("failed to read config file: %w", err)
	}
	if err := yaml.Unmarshal(data, c); err != nil {
		return fmt.Errorf("failed to parse config file: %w", err)
	}
	return nil
}

// SaveToFile saves configuration to a YAML file.
func (c *Config) SaveToFile(path string) error {
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

// Merge merges another config into this one (other takes precedence for
// non-zero values). Boolean fields only propagate true: a zero-valued
// overlay field is indistinguishable from an unset one. File layering in
// Loader.Load therefore bypasses Merge and unmarshals each file directly.
func (c *Config) Merge(other *Config) {
	if other == nil {
		return
	}

	// SPARQL
	if other.SPARQL.BaseURL != "" {
		c.SPARQL.BaseURL = other.SPARQL.BaseURL
	}
	if other.SPARQL.TimeoutSec != 0 {
		c.SPARQL.TimeoutSec = other.SPARQL.TimeoutSec
	}
	if other.SPARQL.SchemaGraphURI != "" {
		c.SPARQL.SchemaGraphURI = other.SPARQL.SchemaGraphURI
	}
	if other.SPARQL.IncludeFullSchemaTTL {
		c.SPARQL.IncludeFullSchemaTTL = true
	}
	if other.SPARQL.SchemaTTLMaxChars != 0 {
		c.SPARQL.SchemaTTLMaxChars = other.SPARQL.SchemaTTLMaxChars
	}
	if other.SPARQL.SchemaCacheTTL != 0 {
		c.SPARQL.SchemaCacheTTL = other.SPARQL.SchemaCacheTTL
	}

	// LLM
	if other.LLM.Provider != "" {
		c.LLM.Provider = other.LLM.Provider
	}
	if other.LLM.BaseURL != "" {
		c.LLM.BaseURL = other.LLM.BaseURL
	}
	if other.LLM.APIKey != "" {
		c.LLM.APIKey = other.LLM.APIKey
	}
	if other.LLM.DefaultModel != "" {
		c.LLM.DefaultModel = other.LLM.DefaultModel
	}
	if other.LLM.PlannerTimeoutSec != 0 {
		c.LLM.PlannerTimeoutSec = other.LLM.PlannerTimeoutSec
	}
	if other.LLM.PlannerMaxTokens != 0 {
		c.LLM.PlannerMaxTokens = other.LLM.PlannerMaxTokens
	}

	// Pipeline
	if other.Pipeline.TopK != 0 {
		c.Pipeline.TopK = other.Pipeline.TopK
	}
	if other.Pipeline.QueryCandidates != 0 {
		c.Pipeline.QueryCandidates = other.Pipeline.QueryCandidates
	}
	if other.Pipeline.MaxRows != 0 {
		c.Pipeline.MaxRows = other.Pipeline.MaxRows
	}
	if other.Pipeline.MaxTriples != 0 {
		c.Pipeline.MaxTriples = other.Pipeline.MaxTriples
	}
	if other.Pipeline.MaxQueryChars != 0 {
		c.Pipeline.MaxQueryChars = other.Pipeline.MaxQueryChars
	}
	if other.Pipeline.AllowDescribe {
		c.Pipeline.AllowDescribe = true
	}
	if other.Pipeline.EnableLexicalSearch {
		c.Pipeline.EnableLexicalSearch = true
	}
	if other.Pipeline.LexicalMaxTokens != 0 {
		c.Pipeline.LexicalMaxTokens = other.Pipeline.LexicalMaxTokens
	}
	if other.Pipeline.LexicalMaxCandidates != 0 {
		c.Pipeline.LexicalMaxCandidates = other.Pipeline.LexicalMaxCandidates
	}
	if other.Pipeline.RequestTimeoutSec != 0 {
		c.Pipeline.RequestTimeoutSec = other.Pipeline.RequestTimeoutSec
	}
	if other.Pipeline.MaxConcurrent != 0 {
		c.Pipeline.MaxConcurrent = other.Pipeline.MaxConcurrent
	}
}

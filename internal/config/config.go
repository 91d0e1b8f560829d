package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/pelletier/go-toml/v2"
)

type LLMConfig struct {
	Provider       string `toml:"provider"`
	Model          string `toml:"model"`
	APIKey         string `toml:"api_key"`
	BaseURL        string `toml:"base_url"`
	MaxTokens      int    `toml:"max_tokens"`
	TimeoutSeconds int    `toml:"timeout_seconds"`
}

func (c LLMConfig) Timeout() time.Duration {
	return time.Duration(c.TimeoutSeconds) * time.Second
}

type StoreConfig struct {
	Path string `toml:"path"`
}

type MemgraphConfig struct {
	Enabled  bool   `toml:"enabled"`
	URI      string `toml:"uri"`
	User     string `toml:"user"`
	Password string `toml:"password"`
}

// ExtractionConfig tunes the per-card pipeline.
type ExtractionConfig struct {
	LLMEnabled        bool    `toml:"llm_enabled"`
	MinContentLength  int     `toml:"min_content_length"`
	MinPatternYield   int     `toml:"min_pattern_yield"`
	FuzzyThreshold    float64 `toml:"fuzzy_threshold"`
	MinTokenLength    int     `toml:"min_token_length"`
	MaxPromptEntities int     `toml:"max_prompt_entities"`
	MaxPromptDomains  int     `toml:"max_prompt_domains"`
	ReviewThreshold   float64 `toml:"review_threshold"`
	MergeConfidence   float64 `toml:"merge_confidence"`
}

// Prompts are fmt templates; see DefaultPrompts for the expected verbs.
type Prompts struct {
	Extraction     string `toml:"extraction"`
	Duplicates     string `toml:"duplicates"`
	Contradictions string `toml:"contradictions"`
	EntitySummary  string `toml:"entity_summary"`
	ClusterSummary string `toml:"cluster_summary"`
	ClusterName    string `toml:"cluster_name"`
}

type BreakerConfig struct {
	MaxRequests     uint32  `toml:"max_requests"`
	IntervalSeconds int     `toml:"interval_seconds"`
	TimeoutSeconds  int     `toml:"timeout_seconds"`
	MinRequests     uint32  `toml:"min_requests"`
	FailureRatio    float64 `toml:"failure_ratio"`
}

type ConcurrencyConfig struct {
	BulkIngest int `toml:"bulk_ingest"`
}

type ServerConfig struct {
	Port     string `toml:"port"`
	LogLevel string `toml:"log_level"`
}

type Config struct {
	Server      ServerConfig      `toml:"server"`
	LLM         LLMConfig         `toml:"llm"`
	Store       StoreConfig       `toml:"store"`
	Memgraph    MemgraphConfig    `toml:"memgraph"`
	Extraction  ExtractionConfig  `toml:"extraction"`
	Prompts     Prompts           `toml:"prompts"`
	Breaker     BreakerConfig     `toml:"breaker"`
	Concurrency ConcurrencyConfig `toml:"concurrency"`
}

func Default() *Config {
	return &Config{
		Server: ServerConfig{Port: "8080", LogLevel: "info"},
		LLM: LLMConfig{
			Provider:       "ollama",
			Model:          "gpt-oss:latest",
			BaseURL:        "http://localhost:11434",
			MaxTokens:      2048,
			TimeoutSeconds: 30,
		},
		Store:    StoreConfig{Path: "data/cardgraph.db"},
		Memgraph: MemgraphConfig{URI: "bolt://localhost:7687"},
		Extraction: ExtractionConfig{
			LLMEnabled:        true,
			MinContentLength:  50,
			MinPatternYield:   3,
			FuzzyThreshold:    0.8,
			MinTokenLength:    3,
			MaxPromptEntities: 30,
			MaxPromptDomains:  50,
			ReviewThreshold:   0.75,
			MergeConfidence:   0.9,
		},
		Prompts: DefaultPrompts(),
		Breaker: BreakerConfig{
			MaxRequests:     1,
			IntervalSeconds: 60,
			TimeoutSeconds:  30,
			MinRequests:     5,
			FailureRatio:    0.6,
		},
		Concurrency: ConcurrencyConfig{BulkIngest: 4},
	}
}

// Load reads a TOML file on top of Default. Keys missing from the file keep
// their default values.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file '%s': %w", path, err)
	}

	cfg := Default()
	if err := toml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("failed to parse TOML: %w", err)
	}
	cfg.Prompts = cfg.Prompts.withDefaults()

	return cfg, nil
}

// ApplyEnv overrides file values with environment variables when set.
func (c *Config) ApplyEnv(getenv func(string) string) error {
	if getenv == nil {
		getenv = os.Getenv
	}
	set := func(key string, dst *string) {
		if v := getenv(key); v != "" {
			*dst = v
		}
	}
	set("PORT", &c.Server.Port)
	set("LOG_LEVEL", &c.Server.LogLevel)
	set("LLM_PROVIDER", &c.LLM.Provider)
	set("LLM_MODEL", &c.LLM.Model)
	set("LLM_API_KEY", &c.LLM.APIKey)
	set("LLM_BASE_URL", &c.LLM.BaseURL)
	set("DB_PATH", &c.Store.Path)
	set("MEMGRAPH_URI", &c.Memgraph.URI)
	set("MEMGRAPH_USER", &c.Memgraph.User)
	set("MEMGRAPH_PASSWORD", &c.Memgraph.Password)

	if v := getenv("MEMGRAPH_ENABLED"); v != "" {
		b, err := strconv.ParseBool(v)
		if err != nil {
			return fmt.Errorf("MEMGRAPH_ENABLED: %w", err)
		}
		c.Memgraph.Enabled = b
	}
	if v := getenv("LLM_EXTRACTION_ENABLED"); v != "" {
		b, err := strconv.ParseBool(v)
		if err != nil {
			return fmt.Errorf("LLM_EXTRACTION_ENABLED: %w", err)
		}
		c.Extraction.LLMEnabled = b
	}
	c.LLM.Provider = strings.ToLower(strings.TrimSpace(c.LLM.Provider))
	return nil
}

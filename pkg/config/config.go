package config

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

//go:generate go run ../../cmd/schema/main.go schema.json

// Config holds the application configuration
type Config struct {
	Server struct {
		Listen  string        `yaml:"listen" json:"listen" jsonschema:"default=:8080,description=HTTP server listen address"`
		Timeout time.Duration `yaml:"timeout" json:"timeout" jsonschema:"default=30s,description=HTTP server timeout"`
	} `yaml:"server" json:"server" jsonschema:"description=Server configuration"`

	Database struct {
		DSN             string `yaml:"dsn" json:"dsn" jsonschema:"default=file:kabini.db?cache=shared&mode=rwc,description=Database connection string"`
		MaxOpenConns    int    `yaml:"max_open_conns" json:"max_open_conns" jsonschema:"default=10,description=Maximum number of open connections"`
		MaxIdleConns    int    `yaml:"max_idle_conns" json:"max_idle_conns" jsonschema:"default=5,description=Maximum number of idle connections"`
		ConnMaxLifetime int    `yaml:"conn_max_lifetime" json:"conn_max_lifetime" jsonschema:"default=3600,description=Connection maximum lifetime in seconds"`
	} `yaml:"database" json:"database" jsonschema:"description=Database configuration"`

	LLM LLMConfig `yaml:"llm" json:"llm" jsonschema:"description=LLM configuration for question and answer generation"`

	Extraction ExtractionConfig `yaml:"extraction" json:"extraction" jsonschema:"description=Content extraction configuration"`

	Crawl CrawlConfig `yaml:"crawl" json:"crawl" jsonschema:"description=Website crawl configuration"`

	Retention RetentionConfig `yaml:"retention" json:"retention" jsonschema:"description=Draft cache retention configuration"`

	// Pricing maps "provider/model" to per-1K-token prices for cost estimates
	Pricing map[string]ModelPrice `yaml:"pricing" json:"pricing" jsonschema:"description=Per-model token pricing"`
}

// LLMConfig holds LLM configuration for generation and scoring
type LLMConfig struct {
	Endpoint     string        `yaml:"endpoint" json:"endpoint" jsonschema:"required,description=OpenAI-compatible API endpoint"`
	APIKey       string        `yaml:"api_key" json:"api_key" jsonschema:"description=API key (can use environment variable)"`
	Provider     string        `yaml:"provider" json:"provider" jsonschema:"default=openai,description=Default provider name"`
	Model        string        `yaml:"model" json:"model" jsonschema:"required,description=Default model name (e.g. gpt-4o-mini)"`
	Temperature  float64       `yaml:"temperature" json:"temperature" jsonschema:"default=0.3,description=Temperature for response generation"`
	MaxTokens    int           `yaml:"max_tokens" json:"max_tokens" jsonschema:"default=1000,description=Maximum tokens in response"`
	Timeout      time.Duration `yaml:"timeout" json:"timeout" jsonschema:"default=30s,description=Request timeout"`
	EmbedModel   string        `yaml:"embed_model" json:"embed_model" jsonschema:"default=text-embedding-3-small,description=Embedding model for vector similarity"`
	MaxQuestions int           `yaml:"max_questions" json:"max_questions" jsonschema:"default=10,minimum=1,description=Upper bound on questions per generation"`
}

// ExtractionConfig holds content extraction settings
type ExtractionConfig struct {
	Timeout       time.Duration `yaml:"timeout" json:"timeout" jsonschema:"default=30s,description=Extraction timeout per URL"`
	UserAgent     string        `yaml:"user_agent" json:"user_agent" jsonschema:"default=Kabini/1.0,description=User agent for HTTP requests"`
	MinTextLength int           `yaml:"min_text_length" json:"min_text_length" jsonschema:"default=100,description=Minimum text length to consider valid"`
}

// CrawlConfig holds website crawl bounds
type CrawlConfig struct {
	MaxPages int           `yaml:"max_pages" json:"max_pages" jsonschema:"default=10,description=Maximum pages per crawl"`
	MaxDepth int           `yaml:"max_depth" json:"max_depth" jsonschema:"default=2,description=Maximum link depth per crawl"`
	Timeout  time.Duration `yaml:"timeout" json:"timeout" jsonschema:"default=60s,description=Overall crawl timeout"`
}

// RetentionConfig holds draft cache retention settings
type RetentionConfig struct {
	DraftTTL        time.Duration `yaml:"draft_ttl" json:"draft_ttl" jsonschema:"default=720h,description=Drafts not accessed for this long are pruned"`
	CleanupInterval time.Duration `yaml:"cleanup_interval" json:"cleanup_interval" jsonschema:"default=1h,description=How often the janitor runs"`
}

// ModelPrice holds per-1K-token prices in USD
type ModelPrice struct {
	Input  float64 `yaml:"input" json:"input" jsonschema:"description=Price per 1K input tokens"`
	Output float64 `yaml:"output" json:"output" jsonschema:"description=Price per 1K output tokens"`
}

// Load reads configuration from a YAML file
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path) //nolint:gosec // file path comes from CLI flag
	if err != nil {
		return nil, fmt.Errorf("read config file: %w", err)
	}

	// expand environment variables
	expanded := os.ExpandEnv(string(data))

	var cfg Config
	if err := yaml.Unmarshal([]byte(expanded), &cfg); err != nil {
		return nil, fmt.Errorf("parse config: %w", err)
	}

	cfg.setDefaults()

	// validate configuration
	if err := validate(&cfg); err != nil {
		return nil, fmt.Errorf("validate config: %w", err)
	}

	// verify against embedded schema
	if err := VerifyAgainstEmbeddedSchema(&cfg); err != nil {
		// log warning but don't fail - schema validation is supplementary
		fmt.Printf("warning: schema validation failed: %v\n", err)
	}

	return &cfg, nil
}

func (c *Config) setDefaults() {
	if c.Server.Listen == "" {
		c.Server.Listen = ":8080"
	}
	if c.Server.Timeout == 0 {
		c.Server.Timeout = 30 * time.Second
	}

	if c.Database.DSN == "" {
		c.Database.DSN = "file:kabini.db?cache=shared&mode=rwc&_txlock=immediate"
	}
	if c.Database.MaxOpenConns == 0 {
		c.Database.MaxOpenConns = 10
	}
	if c.Database.MaxIdleConns == 0 {
		c.Database.MaxIdleConns = 5
	}
	if c.Database.ConnMaxLifetime == 0 {
		c.Database.ConnMaxLifetime = 3600
	}

	if c.LLM.Provider == "" {
		c.LLM.Provider = "openai"
	}
	if c.LLM.Temperature == 0 {
		c.LLM.Temperature = 0.3
	}
	if c.LLM.MaxTokens == 0 {
		c.LLM.MaxTokens = 1000
	}
	if c.LLM.Timeout == 0 {
		c.LLM.Timeout = 30 * time.Second
	}
	if c.LLM.EmbedModel == "" {
		c.LLM.EmbedModel = "text-embedding-3-small"
	}
	if c.LLM.MaxQuestions == 0 {
		c.LLM.MaxQuestions = 10
	}

	if c.Extraction.Timeout == 0 {
		c.Extraction.Timeout = 30 * time.Second
	}
	if c.Extraction.UserAgent == "" {
		c.Extraction.UserAgent = "Kabini/1.0"
	}
	if c.Extraction.MinTextLength == 0 {
		c.Extraction.MinTextLength = 100
	}

	if c.Crawl.MaxPages == 0 {
		c.Crawl.MaxPages = 10
	}
	if c.Crawl.MaxDepth == 0 {
		c.Crawl.MaxDepth = 2
	}
	if c.Crawl.Timeout == 0 {
		c.Crawl.Timeout = 60 * time.Second
	}

	if c.Retention.DraftTTL == 0 {
		c.Retention.DraftTTL = 30 * 24 * time.Hour
	}
	if c.Retention.CleanupInterval == 0 {
		c.Retention.CleanupInterval = time.Hour
	}
}

// validate checks configuration for correctness
func validate(cfg *Config) error {
	// validate LLM config
	if cfg.LLM.Endpoint == "" {
		return fmt.Errorf("llm.endpoint is required")
	}
	if cfg.LLM.Model == "" {
		return fmt.Errorf("llm.model is required")
	}
	if cfg.LLM.Temperature < 0 || cfg.LLM.Temperature > 2 {
		return fmt.Errorf("llm.temperature must be between 0 and 2")
	}
	if cfg.LLM.MaxQuestions < 1 {
		return fmt.Errorf("llm.max_questions must be at least 1")
	}

	// validate extraction config
	if cfg.Extraction.Timeout < time.Second {
		return fmt.Errorf("extraction timeout must be at least 1 second")
	}
	if cfg.Extraction.MinTextLength < 0 {
		return fmt.Errorf("extraction min_text_length must be non-negative")
	}

	// validate crawl config
	if cfg.Crawl.MaxPages < 1 {
		return fmt.Errorf("crawl.max_pages must be at least 1")
	}
	if cfg.Crawl.MaxDepth < 1 {
		return fmt.Errorf("crawl.max_depth must be at least 1")
	}

	// validate server config
	if cfg.Server.Timeout < time.Second {
		return fmt.Errorf("server timeout must be at least 1 second")
	}

	return nil
}

// Price returns the per-1K-token pricing for a provider/model pair, zero
// prices when the pair isn't in the table
func (c *Config) Price(provider, model string) ModelPrice {
	if p, ok := c.Pricing[provider+"/"+model]; ok {
		return p
	}
	return ModelPrice{}
}

// Cost estimates the dollar cost of a call from its token usage
func (c *Config) Cost(provider, model string, inputTokens, outputTokens int) float64 {
	p := c.Price(provider, model)
	return float64(inputTokens)/1000*p.Input + float64(outputTokens)/1000*p.Output
}

// GetServerConfig returns server configuration
func (c *Config) GetServerConfig() (listen string, timeout time.Duration) {
	return c.Server.Listen, c.Server.Timeout
}

// GetExtractionConfig returns content extraction configuration
func (c *Config) GetExtractionConfig() ExtractionConfig {
	return c.Extraction
}

// GetLLMConfig returns LLM configuration
func (c *Config) GetLLMConfig() LLMConfig {
	return c.LLM
}

// GetCrawlConfig returns crawl configuration
func (c *Config) GetCrawlConfig() CrawlConfig {
	return c.Crawl
}

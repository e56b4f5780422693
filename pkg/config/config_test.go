package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeConfig(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yml")
	require.NoError(t, os.WriteFile(path, []byte(content), 0o600))
	return path
}

func TestLoad(t *testing.T) {
	t.Run("full config", func(t *testing.T) {
		path := writeConfig(t, `
server:
  listen: ":9090"
  timeout: 45s

database:
  dsn: "file:test.db"
  max_open_conns: 20

llm:
  endpoint: "https://api.openai.com/v1"
  api_key: "sk-test"
  model: "gpt-4o-mini"
  temperature: 0.5
  max_questions: 8

extraction:
  timeout: 10s
  min_text_length: 200

crawl:
  max_pages: 5
  max_depth: 3

retention:
  draft_ttl: 168h
  cleanup_interval: 30m

pricing:
  openai/gpt-4o-mini:
    input: 0.00015
    output: 0.0006
`)

		cfg, err := Load(path)
		require.NoError(t, err)

		assert.Equal(t, ":9090", cfg.Server.Listen)
		assert.Equal(t, 45*time.Second, cfg.Server.Timeout)
		assert.Equal(t, "file:test.db", cfg.Database.DSN)
		assert.Equal(t, 20, cfg.Database.MaxOpenConns)
		assert.Equal(t, "gpt-4o-mini", cfg.LLM.Model)
		assert.InDelta(t, 0.5, cfg.LLM.Temperature, 0.001)
		assert.Equal(t, 8, cfg.LLM.MaxQuestions)
		assert.Equal(t, 200, cfg.Extraction.MinTextLength)
		assert.Equal(t, 5, cfg.Crawl.MaxPages)
		assert.Equal(t, 7*24*time.Hour, cfg.Retention.DraftTTL)
	})

	t.Run("defaults applied", func(t *testing.T) {
		path := writeConfig(t, `
llm:
  endpoint: "https://api.openai.com/v1"
  model: "gpt-4o-mini"
`)

		cfg, err := Load(path)
		require.NoError(t, err)

		assert.Equal(t, ":8080", cfg.Server.Listen)
		assert.Equal(t, 30*time.Second, cfg.Server.Timeout)
		assert.Equal(t, "openai", cfg.LLM.Provider)
		assert.Equal(t, 10, cfg.LLM.MaxQuestions)
		assert.Equal(t, "text-embedding-3-small", cfg.LLM.EmbedModel)
		assert.Equal(t, "Kabini/1.0", cfg.Extraction.UserAgent)
		assert.Equal(t, 10, cfg.Crawl.MaxPages)
		assert.Equal(t, 2, cfg.Crawl.MaxDepth)
		assert.Equal(t, 30*24*time.Hour, cfg.Retention.DraftTTL)
		assert.Equal(t, time.Hour, cfg.Retention.CleanupInterval)
	})

	t.Run("environment variable expansion", func(t *testing.T) {
		t.Setenv("TEST_LLM_KEY", "sk-from-env")
		path := writeConfig(t, `
llm:
  endpoint: "https://api.openai.com/v1"
  api_key: "${TEST_LLM_KEY}"
  model: "gpt-4o-mini"
`)

		cfg, err := Load(path)
		require.NoError(t, err)
		assert.Equal(t, "sk-from-env", cfg.LLM.APIKey)
	})

	t.Run("missing endpoint fails validation", func(t *testing.T) {
		path := writeConfig(t, `
llm:
  model: "gpt-4o-mini"
`)
		_, err := Load(path)
		require.Error(t, err)
		assert.Contains(t, err.Error(), "llm.endpoint")
	})

	t.Run("missing model fails validation", func(t *testing.T) {
		path := writeConfig(t, `
llm:
  endpoint: "https://api.openai.com/v1"
`)
		_, err := Load(path)
		require.Error(t, err)
		assert.Contains(t, err.Error(), "llm.model")
	})

	t.Run("temperature out of range", func(t *testing.T) {
		path := writeConfig(t, `
llm:
  endpoint: "https://api.openai.com/v1"
  model: "gpt-4o-mini"
  temperature: 3.5
`)
		_, err := Load(path)
		require.Error(t, err)
		assert.Contains(t, err.Error(), "temperature")
	})

	t.Run("missing file", func(t *testing.T) {
		_, err := Load("/nonexistent/config.yml")
		assert.Error(t, err)
	})

	t.Run("malformed yaml", func(t *testing.T) {
		path := writeConfig(t, "llm: [not a map")
		_, err := Load(path)
		assert.Error(t, err)
	})
}

func TestConfig_Pricing(t *testing.T) {
	cfg := &Config{
		Pricing: map[string]ModelPrice{
			"openai/gpt-4o-mini": {Input: 0.00015, Output: 0.0006},
		},
	}

	t.Run("known model", func(t *testing.T) {
		p := cfg.Price("openai", "gpt-4o-mini")
		assert.InDelta(t, 0.00015, p.Input, 1e-9)

		// 1000 input + 500 output tokens
		cost := cfg.Cost("openai", "gpt-4o-mini", 1000, 500)
		assert.InDelta(t, 0.00015+0.0003, cost, 1e-9)
	})

	t.Run("unknown model is free", func(t *testing.T) {
		p := cfg.Price("openai", "gpt-nonexistent")
		assert.Zero(t, p.Input)
		assert.Zero(t, p.Output)
		assert.Zero(t, cfg.Cost("openai", "gpt-nonexistent", 1000, 1000))
	})
}

func TestConfig_Getters(t *testing.T) {
	cfg := &Config{}
	cfg.Server.Listen = ":8888"
	cfg.Server.Timeout = 15 * time.Second
	cfg.LLM.Model = "gpt-4o-mini"
	cfg.Extraction.MinTextLength = 42
	cfg.Crawl.MaxPages = 7

	listen, timeout := cfg.GetServerConfig()
	assert.Equal(t, ":8888", listen)
	assert.Equal(t, 15*time.Second, timeout)
	assert.Equal(t, "gpt-4o-mini", cfg.GetLLMConfig().Model)
	assert.Equal(t, 42, cfg.GetExtractionConfig().MinTextLength)
	assert.Equal(t, 7, cfg.GetCrawlConfig().MaxPages)
}

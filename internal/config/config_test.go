package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoad_MergesOverDefaults(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.toml")
	data := `
[llm]
provider = "openai"
model = "gpt-4o-mini"

[extraction]
llm_enabled = false
min_pattern_yield = 5

[prompts]
duplicates = "custom %s"
`
	require.NoError(t, os.WriteFile(path, []byte(data), 0o600))

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, "openai", cfg.LLM.Provider)
	assert.Equal(t, "gpt-4o-mini", cfg.LLM.Model)
	assert.Equal(t, 30, cfg.LLM.TimeoutSeconds)
	assert.False(t, cfg.Extraction.LLMEnabled)
	assert.Equal(t, 5, cfg.Extraction.MinPatternYield)
	assert.Equal(t, 50, cfg.Extraction.MinContentLength)
	assert.Equal(t, "custom %s", cfg.Prompts.Duplicates)
	assert.Equal(t, DefaultPrompts().Extraction, cfg.Prompts.Extraction)
}

func TestLoad_MissingFile(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "nope.toml"))
	assert.Error(t, err)
}

func TestLoad_ShippedConfig(t *testing.T) {
	cfg, err := Load("../../config/config.toml")
	require.NoError(t, err)
	assert.NotEmpty(t, cfg.LLM.Provider)
	assert.Equal(t, 0.75, cfg.Extraction.ReviewThreshold)
}

func TestApplyEnv(t *testing.T) {
	env := map[string]string{
		"LLM_PROVIDER":           " Gemini ",
		"LLM_API_KEY":            "secret",
		"DB_PATH":                "/tmp/x.db",
		"PORT":                   "9090",
		"LLM_EXTRACTION_ENABLED": "false",
		"MEMGRAPH_ENABLED":       "true",
	}
	cfg := Default()
	require.NoError(t, cfg.ApplyEnv(func(k string) string { return env[k] }))

	assert.Equal(t, "gemini", cfg.LLM.Provider)
	assert.Equal(t, "secret", cfg.LLM.APIKey)
	assert.Equal(t, "/tmp/x.db", cfg.Store.Path)
	assert.Equal(t, "9090", cfg.Server.Port)
	assert.False(t, cfg.Extraction.LLMEnabled)
	assert.True(t, cfg.Memgraph.Enabled)
	assert.Equal(t, "gpt-oss:latest", cfg.LLM.Model)
}

func TestApplyEnv_BadBool(t *testing.T) {
	cfg := Default()
	err := cfg.ApplyEnv(func(k string) string {
		if k == "LLM_EXTRACTION_ENABLED" {
			return "maybe"
		}
		return ""
	})
	assert.Error(t, err)
}

func TestNewLogger(t *testing.T) {
	l, err := NewLogger("debug")
	require.NoError(t, err)
	assert.NotNil(t, l)

	_, err = NewLogger("loud")
	assert.Error(t, err)
}

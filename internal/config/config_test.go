package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoad_Defaults(t *testing.T) {
	t.Chdir(t.TempDir())

	cfg, err := Load("")
	require.NoError(t, err)

	assert.Equal(t, 8080, cfg.Server.Port)
	assert.Equal(t, 2, cfg.Server.MaxConcurrent)
	assert.Equal(t, 15*time.Minute, cfg.Server.RequestTimeout)
	assert.True(t, cfg.Server.RequireKnownHost)
	assert.Equal(t, 5*time.Second, cfg.Browser.SettleDelay)
	assert.Equal(t, 45*time.Second, cfg.Browser.NetworkIdleTimeout)
	assert.Equal(t, 60*time.Second, cfg.Browser.DOMContentTimeout)
	assert.Equal(t, 90*time.Second, cfg.Browser.CommitTimeout)
	assert.Equal(t, 120*time.Second, cfg.LLM.GenerationTimeout)
	assert.Equal(t, "gemini", cfg.LLM.Provider)
	assert.Equal(t, "facts", cfg.Letter.Mode)
	assert.Equal(t, BackendNone, cfg.Tracking.Backend)
	assert.Equal(t, "ERC Tracking", cfg.Tracking.SheetName)
	assert.True(t, cfg.Server.RateLimit.Enabled)
	assert.Equal(t, 10, cfg.Server.RateLimit.PackagesPerHour)
	assert.Equal(t, 5, cfg.Research.ResultsPerQuery)
	assert.False(t, cfg.Research.SearchEnabled())
}

func TestLoad_YAMLFile(t *testing.T) {
	content := `
server:
  port: 9090
  request_timeout: 5m
  require_known_host: false
browser:
  settle_delay: 2s
llm:
  provider: openai
  models:
    standard: gpt-4o
letter:
  mode: transcript
`
	path := filepath.Join(t.TempDir(), "protest_agent.yaml")
	require.NoError(t, os.WriteFile(path, []byte(content), 0644))

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, 9090, cfg.Server.Port)
	assert.Equal(t, 5*time.Minute, cfg.Server.RequestTimeout)
	assert.False(t, cfg.Server.RequireKnownHost)
	assert.Equal(t, 2*time.Second, cfg.Browser.SettleDelay)
	assert.Equal(t, "openai", cfg.LLM.Provider)
	assert.Equal(t, "gpt-4o", cfg.LLM.Models["standard"])
	assert.Equal(t, "transcript", cfg.Letter.Mode)
}

func TestLoad_EnvOverride(t *testing.T) {
	t.Chdir(t.TempDir())
	t.Setenv("ERC_SERVER_PORT", "7070")
	t.Setenv("ERC_OUTPUT_DIR", "/tmp/erc-out")
	t.Setenv("GEMINI_API_KEY", "gemini-key")

	cfg, err := Load("")
	require.NoError(t, err)

	assert.Equal(t, 7070, cfg.Server.Port)
	assert.Equal(t, "/tmp/erc-out", cfg.Output.Dir)
	assert.Equal(t, "gemini-key", cfg.LLM.ActiveAPIKey())
}

func TestLoad_MissingExplicitFile(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "missing.yaml"))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "failed to read config file")
}

func TestValidate(t *testing.T) {
	t.Chdir(t.TempDir())
	loaded, err := Load("")
	require.NoError(t, err)

	tests := []struct {
		name    string
		mutate  func(c *Config)
		wantErr string
	}{
		{"bad port", func(c *Config) { c.Server.Port = 0 }, "server.port"},
		{"zero concurrency", func(c *Config) { c.Server.MaxConcurrent = 0 }, "max_concurrent"},
		{"unknown provider", func(c *Config) { c.LLM.Provider = "mystery" }, "unknown llm provider"},
		{"bad letter mode", func(c *Config) { c.Letter.Mode = "poetry" }, "letter.mode"},
		{"postgres without url", func(c *Config) {
			c.Tracking.Backend = BackendPostgres
			c.Tracking.DatabaseURL = ""
		}, "database_url"},
		{"sheets without id", func(c *Config) { c.Tracking.Backend = BackendSheets }, "spreadsheet_id"},
		{"s3 without bucket", func(c *Config) { c.Storage.Backend = BackendS3 }, "s3_bucket"},
		{"unknown storage", func(c *Config) { c.Storage.Backend = "ftp" }, "unknown storage backend"},
		{"empty output", func(c *Config) { c.Output.Dir = "" }, "output.dir"},
		{"zero package rate", func(c *Config) { c.Server.RateLimit.PackagesPerHour = 0 }, "packages_per_hour"},
		{"too many results", func(c *Config) { c.Research.ResultsPerQuery = 11 }, "results_per_query"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := *loaded
			tt.mutate(&cfg)
			err := cfg.Validate()
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.wantErr)
		})
	}
}

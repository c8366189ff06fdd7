package config

import (
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadMergesFileAndEnv(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "radar.yaml")
	err := os.WriteFile(path, []byte(`
llm:
  provider: openai
  model: gpt-4o-mini
  timeout: 15s
store:
  dsn: /data/telecom.db
pipeline:
  tables: [mcc_mnc_table]
  horizon_days: 7
`), 0o600)
	require.NoError(t, err)

	t.Setenv("OPENAI_API_KEY", "sk-test")
	t.Setenv("CLOUDFLARE_API_TOKEN", "cf-test")

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, "openai", cfg.LLM.Provider)
	assert.Equal(t, "sk-test", cfg.LLM.APIKey)
	assert.Equal(t, 15*time.Second, cfg.LLM.Timeout)
	assert.Equal(t, "/data/telecom.db", cfg.Store.DSN)
	assert.Equal(t, []string{"mcc_mnc_table"}, cfg.Pipeline.Tables)
	assert.Equal(t, 7, cfg.Pipeline.HorizonDays)
	assert.Equal(t, DefaultGroupingColumn, cfg.Pipeline.GroupingColumn)
	require.NoError(t, cfg.Validate())
}

func TestValidateReportsMissingCredentials(t *testing.T) {
	cfg := Default()
	err := cfg.Validate()
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrConfiguration))
	assert.Contains(t, err.Error(), "llm.api_key")
	assert.Contains(t, err.Error(), "telemetry.token")
}

func TestValidateRejectsUnknownProvider(t *testing.T) {
	cfg := Default()
	cfg.LLM.APIKey = "k"
	cfg.Telemetry.Token = "t"
	cfg.LLM.Provider = "cohere"
	err := cfg.Validate()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "llm.provider")
}

func TestLoadMissingFile(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "nope.yaml"))
	require.Error(t, err)
}

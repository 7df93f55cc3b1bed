package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeConfig(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "mushroom.yaml")
	require.NoError(t, os.WriteFile(path, []byte(body), 0o644))
	return path
}

func TestDefaults(t *testing.T) {
	cfg := Default()
	assert.Equal(t, 30*time.Second, cfg.Timeout)
	assert.Equal(t, 1, cfg.Retries)
	assert.True(t, cfg.StrictCardinality)
	assert.Equal(t, ":8080", cfg.Addr)
	assert.NotEmpty(t, cfg.DBPath)
}

func TestLoadFromFile(t *testing.T) {
	path := writeConfig(t, `
endpoint: https://example.inference.ml.azure.com/score
api_key: abc
timeout: 5s
retries: 0
strict_cardinality: false
db_path: /tmp/m.db
`)
	cfg, err := LoadFromFile(path)
	require.NoError(t, err)
	assert.Equal(t, "https://example.inference.ml.azure.com/score", cfg.Endpoint)
	assert.Equal(t, 5*time.Second, cfg.Timeout)
	assert.Equal(t, 0, cfg.Retries)
	assert.False(t, cfg.StrictCardinality)
	assert.Equal(t, "/tmp/m.db", cfg.DBPath)
	// untouched keys keep defaults
	assert.Equal(t, ":8080", cfg.Addr)
	require.NoError(t, cfg.Validate())
}

func TestLoadMissingFile(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "nope.yaml"))
	assert.Error(t, err)
}

func TestEnvOverrides(t *testing.T) {
	cfg := Default()
	env := map[string]string{
		"AZURE_ENDPOINT":   "http://legacy/score",
		"MUSHROOM_API_KEY": "  key-with-space \n",
		"AZURE_API_KEY":    "ignored",
	}
	cfg.applyEnv(func(k string) string { return env[k] })
	assert.Equal(t, "http://legacy/score", cfg.Endpoint)
	assert.Equal(t, "key-with-space", cfg.APIKey)
}

func TestLoadReadsEnvironment(t *testing.T) {
	t.Setenv("MUSHROOM_ENDPOINT", "http://localhost:9000/score")
	t.Setenv("MUSHROOM_API_KEY", "k")
	cfg, err := Load("")
	require.NoError(t, err)
	assert.Equal(t, "http://localhost:9000/score", cfg.Endpoint)
	assert.Equal(t, "k", cfg.Inference().APIKey)
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*Config)
		ok     bool
	}{
		{"valid", func(c *Config) {}, true},
		{"no endpoint", func(c *Config) { c.Endpoint = "" }, false},
		{"bad scheme", func(c *Config) { c.Endpoint = "ftp://host/score" }, false},
		{"no key", func(c *Config) { c.APIKey = " " }, false},
		{"zero timeout", func(c *Config) { c.Timeout = 0 }, false},
		{"negative retries", func(c *Config) { c.Retries = -1 }, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := Default()
			cfg.Endpoint = "https://host/score"
			cfg.APIKey = "k"
			tt.mutate(cfg)
			if tt.ok {
				assert.NoError(t, cfg.Validate())
			} else {
				assert.Error(t, cfg.Validate())
			}
		})
	}
}

package config

import (
	"fmt"
	"net/url"
	"os"
	"path/filepath"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/pbaille/mushroom/internal/inference"
)

// Config is the process configuration
type Config struct {
	Endpoint          string        `yaml:"endpoint"`
	APIKey            string        `yaml:"api_key"`
	Timeout           time.Duration `yaml:"timeout"`
	Retries           int           `yaml:"retries"`
	StrictCardinality bool          `yaml:"strict_cardinality"`
	DBPath            string        `yaml:"db_path"`
	Addr              string        `yaml:"addr"`
	// Background is an optional image path or URL for the dashboard
	Background string `yaml:"background"`
}

// env names checked in order, first non-empty wins
var (
	endpointEnv = []string{"MUSHROOM_ENDPOINT", "AZURE_ENDPOINT"}
	apiKeyEnv   = []string{"MUSHROOM_API_KEY", "AZURE_API_KEY"}
)

// Default returns the built-in configuration
func Default() *Config {
	dbPath := "mushroom.db"
	if home, err := os.UserHomeDir(); err == nil {
		dbPath = filepath.Join(home, ".mushroom", "mushroom.db")
	}
	return &Config{
		Timeout:           30 * time.Second,
		Retries:           1,
		StrictCardinality: true,
		DBPath:            dbPath,
		Addr:              ":8080",
	}
}

// LoadFromFile decodes a YAML file over the defaults
func LoadFromFile(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	cfg := Default()
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("parse config %s: %w", path, err)
	}
	return cfg, nil
}

// Load reads path when given, then applies environment overrides
func Load(path string) (*Config, error) {
	cfg := Default()
	if path != "" {
		loaded, err := LoadFromFile(path)
		if err != nil {
			return nil, fmt.Errorf("load config: %w", err)
		}
		cfg = loaded
	}
	cfg.applyEnv(os.Getenv)
	return cfg, nil
}

func (c *Config) applyEnv(getenv func(string) string) {
	if v := firstEnv(getenv, endpointEnv); v != "" {
		c.Endpoint = v
	}
	if v := firstEnv(getenv, apiKeyEnv); v != "" {
		c.APIKey = v
	}
}

func firstEnv(getenv func(string) string, names []string) string {
	for _, n := range names {
		if v := strings.TrimSpace(getenv(n)); v != "" {
			return v
		}
	}
	return ""
}

// Validate checks the settings needed to call the endpoint
func (c *Config) Validate() error {
	if c.Endpoint == "" {
		return fmt.Errorf("endpoint is required (set endpoint or MUSHROOM_ENDPOINT)")
	}
	u, err := url.Parse(c.Endpoint)
	if err != nil || (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
		return fmt.Errorf("endpoint must be an http(s) URL: %q", c.Endpoint)
	}
	if strings.TrimSpace(c.APIKey) == "" {
		return fmt.Errorf("api key is required (set api_key or MUSHROOM_API_KEY)")
	}
	if c.Timeout <= 0 {
		return fmt.Errorf("timeout must be positive")
	}
	if c.Retries < 0 {
		return fmt.Errorf("retries must not be negative")
	}
	return nil
}

// Inference returns the client configuration
func (c *Config) Inference() inference.Config {
	return inference.Config{
		Endpoint:          c.Endpoint,
		APIKey:            strings.TrimSpace(c.APIKey),
		Timeout:           c.Timeout,
		Retries:           c.Retries,
		StrictCardinality: c.StrictCardinality,
	}
}

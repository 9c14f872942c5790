// Package config loads and validates Collaboration Scout's runtime
// configuration: a YAML file with environment-variable overrides layered on
// top, following the same Load/applyEnvOverrides shape the rest of this
// codebase's ancestry uses for its own config package.
package config

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"os"
	"strconv"
	"strings"

	"gopkg.in/yaml.v3"
)

// Config holds all Collaboration Scout configuration.
type Config struct {
	DBPath          string `yaml:"db_path" json:"db_path"`
	LogLevel        string `yaml:"log_level" json:"log_level"`
	GitHubToken     string `yaml:"-" json:"-"`
	OpenRouterToken string `yaml:"-" json:"-"`
	Model           string `yaml:"model" json:"model"`

	OverlapThreshold        float64 `yaml:"overlap_threshold" json:"overlap_threshold"`
	OverlapExceptionPenalty float64 `yaml:"overlap_exception_penalty" json:"overlap_exception_penalty"`
	TopOpportunities        int     `yaml:"top_opportunities" json:"top_opportunities"`
	HistoryCandidates       int     `yaml:"history_candidates" json:"history_candidates"`
}

// Default returns the default configuration, matching spec.md's documented
// defaults for every knob that has one.
func Default() *Config {
	return &Config{
		DBPath:                  "collabscout.db",
		LogLevel:                "info",
		Model:                   "openrouter/auto",
		OverlapThreshold:        0.70,
		OverlapExceptionPenalty: 0.10,
		TopOpportunities:        3,
		HistoryCandidates:       100,
	}
}

// Load reads configuration from a YAML file, falling back to defaults if the
// file does not exist, then applies environment-variable overrides.
func Load(path string) (*Config, error) {
	cfg := Default()

	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			cfg.applyEnvOverrides()
			return cfg, nil
		}
		return nil, fmt.Errorf("read config: %w", err)
	}

	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("parse config: %w", err)
	}

	cfg.applyEnvOverrides()
	return cfg, nil
}

// applyEnvOverrides applies the CS_* and credential environment variables
// documented in spec.md §6, in priority order over whatever the YAML file set.
func (c *Config) applyEnvOverrides() {
	if v := os.Getenv("CS_DB_PATH"); v != "" {
		c.DBPath = v
	}
	if v := os.Getenv("CS_LOG_LEVEL"); v != "" {
		c.LogLevel = v
	}
	if v := os.Getenv("GITHUB_TOKEN"); v != "" {
		c.GitHubToken = v
	}
	if v := os.Getenv("OPENROUTER_API_KEY"); v != "" {
		c.OpenRouterToken = v
	}
	if v := os.Getenv("CS_OVERLAP_THRESHOLD"); v != "" {
		if f, err := strconv.ParseFloat(v, 64); err == nil {
			c.OverlapThreshold = f
		}
	}
	if v := os.Getenv("CS_OVERLAP_EXCEPTION_PENALTY"); v != "" {
		if f, err := strconv.ParseFloat(v, 64); err == nil {
			c.OverlapExceptionPenalty = f
		}
	}
	if v := os.Getenv("CS_TOP_OPPORTUNITIES"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			c.TopOpportunities = n
		}
	}
	if v := os.Getenv("CS_HISTORY_CANDIDATES"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			c.HistoryCandidates = n
		}
	}
}

// InvalidError reports a configuration field that failed validation.
type InvalidError struct {
	Field  string
	Reason string
}

func (e *InvalidError) Error() string {
	return fmt.Sprintf("config: %s: %s", e.Field, e.Reason)
}

// Validate checks structural invariants that hold regardless of whether
// live credentials are required (doctor calls this without RequireLive).
func (c *Config) Validate() error {
	if c.OverlapThreshold < 0 || c.OverlapThreshold > 1 {
		return &InvalidError{Field: "overlap_threshold", Reason: "must be in [0, 1]"}
	}
	if c.OverlapExceptionPenalty < 0 || c.OverlapExceptionPenalty > 1 {
		return &InvalidError{Field: "overlap_exception_penalty", Reason: "must be in [0, 1]"}
	}
	if c.TopOpportunities <= 0 {
		return &InvalidError{Field: "top_opportunities", Reason: "must be positive"}
	}
	if c.HistoryCandidates <= 0 {
		return &InvalidError{Field: "history_candidates", Reason: "must be positive"}
	}
	if strings.TrimSpace(c.DBPath) == "" {
		return &InvalidError{Field: "db_path", Reason: "must not be empty"}
	}
	return nil
}

// RequireLive additionally requires the credentials needed to actually talk
// to GitHub and the LLM provider. scout:run and briefs:generate call this;
// doctor and debug:replay do not, since they need to work offline.
func (c *Config) RequireLive() error {
	if err := c.Validate(); err != nil {
		return err
	}
	if c.GitHubToken == "" {
		return &InvalidError{Field: "github_token", Reason: "GITHUB_TOKEN is not set"}
	}
	if c.OpenRouterToken == "" {
		return &InvalidError{Field: "openrouter_token", Reason: "OPENROUTER_API_KEY is not set"}
	}
	return nil
}

// Hash returns the first 16 hex characters of the SHA-256 digest of the
// config's key-sorted JSON encoding, stored on the Run row per spec.md §4.E
// so a run records exactly which knobs produced it.
func (c *Config) Hash() string {
	raw, _ := json.Marshal(c)
	var m map[string]any
	_ = json.Unmarshal(raw, &m)
	sorted, _ := json.Marshal(m)
	sum := sha256.Sum256(sorted)
	return hex.EncodeToString(sum[:])[:16]
}

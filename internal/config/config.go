// Package config loads the application configuration from defaults, an
// optional YAML file, and environment variables, in that order of
// precedence (env wins). Command-line flags override the result in the
// cmd layer.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// Config holds all configuration for the application.
type Config struct {
	// Logging configuration
	Logging struct {
		Level  string `yaml:"level"`
		Format string `yaml:"format"`
	} `yaml:"logging"`

	// StoryGraph account used for all writes
	StoryGraph struct {
		Email    string `yaml:"email"`
		Password string `yaml:"password"`
	} `yaml:"storygraph"`

	// Goodreads account used by the read flow
	Goodreads struct {
		Email    string `yaml:"email"`
		Password string `yaml:"password"`
	} `yaml:"goodreads"`

	// Audible library export used by the progress flow
	Audible struct {
		ExportPath string `yaml:"export_path"`
	} `yaml:"audible"`

	// Browser automation settings
	Browser struct {
		Headless    bool          `yaml:"headless"`
		UserDataDir string        `yaml:"user_data_dir"`
		StepTimeout time.Duration `yaml:"step_timeout"`
	} `yaml:"browser"`

	// Sync behavior
	Sync struct {
		DryRun          bool   `yaml:"dry_run"`
		MaxResults      int    `yaml:"max_results"`
		AuthorRule      string `yaml:"author_rule"`
		VerifyTolerance int    `yaml:"verify_tolerance"`
	} `yaml:"sync"`

	// File paths
	Paths struct {
		StateDir     string `yaml:"state_dir"`
		DatabaseFile string `yaml:"database_file"`
	} `yaml:"paths"`
}

// Load builds the configuration. Priority: environment variables, then
// the config file (if it exists), then defaults.
func Load(configFile string) (*Config, error) {
	cfg := &Config{}

	// Defaults first; the file and environment only overwrite what they
	// actually set.
	cfg.Logging.Level = "info"
	cfg.Logging.Format = "console"
	cfg.Audible.ExportPath = "./data/library.tsv"
	cfg.Browser.Headless = true
	cfg.Browser.StepTimeout = 30 * time.Second
	cfg.Sync.DryRun = true
	cfg.Sync.MaxResults = 3
	cfg.Sync.AuthorRule = "strict"
	cfg.Sync.VerifyTolerance = 1
	cfg.Paths.StateDir = "./data/state"
	cfg.Paths.DatabaseFile = "./data/runs.db"

	if configFile != "" {
		if err := loadFromFile(cfg, configFile); err != nil {
			return nil, err
		}
	}

	loadFromEnv(cfg)

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// loadFromFile overlays a YAML file onto cfg. A missing file is not an
// error; keys absent from the file leave the defaults untouched.
func loadFromFile(cfg *Config, path string) error {
	if !filepath.IsAbs(path) {
		abspath, err := filepath.Abs(path)
		if err != nil {
			return fmt.Errorf("failed to get absolute path: %w", err)
		}
		path = abspath
	}

	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil
		}
		return fmt.Errorf("failed to read config file: %w", err)
	}

	if err := yaml.Unmarshal(data, cfg); err != nil {
		return fmt.Errorf("failed to parse config file: %w", err)
	}
	return nil
}

// loadFromEnv overlays environment variables onto cfg.
func loadFromEnv(cfg *Config) {
	if level := getEnv("LOG_LEVEL", ""); level != "" {
		cfg.Logging.Level = level
	}
	if format := getEnv("LOG_FORMAT", ""); format != "" {
		cfg.Logging.Format = format
	}

	if email := getEnv("STORYGRAPH_EMAIL", ""); email != "" {
		cfg.StoryGraph.Email = email
	}
	if password := getEnv("STORYGRAPH_PASSWORD", ""); password != "" {
		cfg.StoryGraph.Password = password
	}
	if email := getEnv("GOODREADS_EMAIL", ""); email != "" {
		cfg.Goodreads.Email = email
	}
	if password := getEnv("GOODREADS_PASSWORD", ""); password != "" {
		cfg.Goodreads.Password = password
	}

	if path := getEnv("AUDIBLE_EXPORT_PATH", ""); path != "" {
		cfg.Audible.ExportPath = path
	}

	if headless, set := os.LookupEnv("HEADLESS"); set {
		if b, err := strconv.ParseBool(headless); err == nil {
			cfg.Browser.Headless = b
		}
	}
	if dir := getEnv("BROWSER_USER_DATA_DIR", ""); dir != "" {
		cfg.Browser.UserDataDir = dir
	}
	if timeout := getDurationFromEnv("BROWSER_STEP_TIMEOUT", 0); timeout > 0 {
		cfg.Browser.StepTimeout = timeout
	}

	if dryRun, set := os.LookupEnv("DRY_RUN"); set {
		if b, err := strconv.ParseBool(dryRun); err == nil {
			cfg.Sync.DryRun = b
		}
	}
	if maxResults := getIntFromEnv("MAX_SEARCH_RESULTS", 0); maxResults > 0 {
		cfg.Sync.MaxResults = maxResults
	}
	if rule := getEnv("AUTHOR_MATCH_RULE", ""); rule != "" {
		cfg.Sync.AuthorRule = rule
	}

	if dir := getEnv("STATE_DIR", ""); dir != "" {
		cfg.Paths.StateDir = dir
	}
	if file := getEnv("DATABASE_FILE", ""); file != "" {
		cfg.Paths.DatabaseFile = file
	}
}

// Validate checks structural configuration. Credential checks are per
// flow; see RequireStoryGraph and RequireGoodreads.
func (c *Config) Validate() error {
	switch c.Sync.AuthorRule {
	case "strict", "last_name":
	default:
		return &ConfigError{
			Field: "sync.author_rule",
			Msg:   fmt.Sprintf("must be %q or %q, got %q", "strict", "last_name", c.Sync.AuthorRule),
		}
	}

	if c.Sync.MaxResults < 1 {
		return &ConfigError{Field: "sync.max_results", Msg: "must be at least 1"}
	}
	if c.Sync.VerifyTolerance < 0 {
		return &ConfigError{Field: "sync.verify_tolerance", Msg: "must not be negative"}
	}
	return nil
}

// RequireStoryGraph verifies the StoryGraph credentials are present.
func (c *Config) RequireStoryGraph() error {
	return requireCredentials("STORYGRAPH", c.StoryGraph.Email, c.StoryGraph.Password)
}

// RequireGoodreads verifies the Goodreads credentials are present.
func (c *Config) RequireGoodreads() error {
	return requireCredentials("GOODREADS", c.Goodreads.Email, c.Goodreads.Password)
}

func requireCredentials(prefix, email, password string) error {
	var missing []string
	if email == "" {
		missing = append(missing, prefix+"_EMAIL")
	}
	if password == "" {
		missing = append(missing, prefix+"_PASSWORD")
	}
	if len(missing) > 0 {
		return &ConfigError{
			Field: strings.Join(missing, ", "),
			Msg:   "required credentials are missing",
		}
	}
	return nil
}

// StatePath returns the per-profile sync state file path.
func (c *Config) StatePath(profile string) string {
	return filepath.Join(c.Paths.StateDir, profile+".json")
}

// ConfigError represents a configuration error.
type ConfigError struct {
	Field string
	Msg   string
}

func (e *ConfigError) Error() string {
	return "config error: " + e.Field + " " + e.Msg
}

// Helper functions for environment variable parsing
func getEnv(key, fallback string) string {
	if value, exists := os.LookupEnv(key); exists {
		return value
	}
	return fallback
}

func getIntFromEnv(key string, fallback int) int {
	if value, exists := os.LookupEnv(key); exists {
		i, err := strconv.Atoi(value)
		if err != nil {
			return fallback
		}
		return i
	}
	return fallback
}

func getDurationFromEnv(key string, fallback time.Duration) time.Duration {
	if value, exists := os.LookupEnv(key); exists {
		d, err := time.ParseDuration(value)
		if err != nil {
			return fallback
		}
		return d
	}
	return fallback
}

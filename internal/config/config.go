// Package config loads mathcanvas configuration from YAML with environment
// overrides for the settings that vary between deployments.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"time"

	"gopkg.in/yaml.v3"

	"mathcanvas/internal/logging"
)

// Config holds all mathcanvas configuration.
type Config struct {
	// HTTP API settings
	Server ServerConfig `yaml:"server"`

	// Headless browser settings
	Browser BrowserConfig `yaml:"browser"`

	// Visual block pipeline defaults
	Pipeline PipelineConfig `yaml:"pipeline"`

	// Report history persistence
	Store StoreConfig `yaml:"store"`

	// Logging
	Logging logging.Config `yaml:"logging"`
}

// ServerConfig configures the HTTP API.
type ServerConfig struct {
	Addr            string `yaml:"addr"`
	ReadTimeoutMs   int    `yaml:"read_timeout_ms"`
	WriteTimeoutMs  int    `yaml:"write_timeout_ms"`
	ShutdownGraceMs int    `yaml:"shutdown_grace_ms"`
}

// ReadTimeout returns the HTTP read timeout.
func (c ServerConfig) ReadTimeout() time.Duration {
	if c.ReadTimeoutMs <= 0 {
		return 15 * time.Second
	}
	return time.Duration(c.ReadTimeoutMs) * time.Millisecond
}

// WriteTimeout returns the HTTP write timeout.
func (c ServerConfig) WriteTimeout() time.Duration {
	if c.WriteTimeoutMs <= 0 {
		return 60 * time.Second
	}
	return time.Duration(c.WriteTimeoutMs) * time.Millisecond
}

// ShutdownGrace returns how long in-flight requests get during shutdown.
func (c ServerConfig) ShutdownGrace() time.Duration {
	if c.ShutdownGraceMs <= 0 {
		return 10 * time.Second
	}
	return time.Duration(c.ShutdownGraceMs) * time.Millisecond
}

// BrowserConfig configures the headless Chrome page host.
type BrowserConfig struct {
	// AppURL is the canvas web app the page host navigates to. The app
	// exposes the in-page window.mathCanvas API.
	AppURL string `yaml:"app_url"`

	// DebuggerURL attaches to an already-running Chrome instead of
	// launching one.
	DebuggerURL string `yaml:"debugger_url"`

	// Launch is the Chrome binary plus extra flags when launching.
	Launch []string `yaml:"launch"`

	Headless            bool `yaml:"headless"`
	ViewportWidth       int  `yaml:"viewport_width"`
	ViewportHeight      int  `yaml:"viewport_height"`
	NavigationTimeoutMs int  `yaml:"navigation_timeout_ms"`

	// AttemptTimeoutMs bounds a single render or verify call. The canvas
	// needs settle time, so sub-second values are risky.
	AttemptTimeoutMs int `yaml:"attempt_timeout_ms"`
}

// PipelineConfig carries the pipeline run defaults.
type PipelineConfig struct {
	Verify     bool   `yaml:"verify"`
	MaxRetries int    `yaml:"max_retries"`
	OutputDir  string `yaml:"output_dir"`
}

// StoreConfig configures the SQLite report history.
type StoreConfig struct {
	DatabasePath string `yaml:"database_path"`
}

// Default returns the standard configuration.
func Default() *Config {
	return &Config{
		Server: ServerConfig{
			Addr: ":8750",
		},
		Browser: BrowserConfig{
			AppURL:              "http://localhost:8750/canvas/index.html",
			Headless:            true,
			ViewportWidth:       1280,
			ViewportHeight:      800,
			NavigationTimeoutMs: 30000,
			AttemptTimeoutMs:    2000,
		},
		Pipeline: PipelineConfig{
			Verify:     false,
			MaxRetries: 3,
			OutputDir:  "artifacts",
		},
		Store: StoreConfig{
			DatabasePath: filepath.Join(".canvas", "reports.db"),
		},
		Logging: logging.Config{
			Level: "info",
		},
	}
}

// Load reads configuration from a YAML file, layered over defaults, then
// applies environment overrides. A missing file is not an error; defaults
// plus environment are used.
func Load(path string) (*Config, error) {
	cfg := Default()

	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			if !os.IsNotExist(err) {
				return nil, fmt.Errorf("read config %s: %w", path, err)
			}
		} else if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("parse config %s: %w", path, err)
		}
	}

	cfg.applyEnv()
	return cfg, nil
}

// applyEnv overlays CANVASD_* environment variables.
func (c *Config) applyEnv() {
	if v := os.Getenv("CANVASD_ADDR"); v != "" {
		c.Server.Addr = v
	}
	if v := os.Getenv("CANVASD_APP_URL"); v != "" {
		c.Browser.AppURL = v
	}
	if v := os.Getenv("CANVASD_DEBUGGER_URL"); v != "" {
		c.Browser.DebuggerURL = v
	}
	if v := os.Getenv("CANVASD_DB_PATH"); v != "" {
		c.Store.DatabasePath = v
	}
	if v := os.Getenv("CANVASD_DEBUG"); v != "" {
		if b, err := strconv.ParseBool(v); err == nil {
			c.Logging.DebugMode = b
		}
	}
}

// Write saves the configuration as YAML, creating parent directories.
func (c *Config) Write(path string) error {
	data, err := yaml.Marshal(c)
	if err != nil {
		return fmt.Errorf("marshal config: %w", err)
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("create config directory: %w", err)
	}
	return os.WriteFile(path, data, 0o644)
}

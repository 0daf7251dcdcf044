// Package config provides configuration management for the Sentinel
// preparation tool: process-level settings from environment variables,
// and per-run region settings from a YAML or JSON file.
package config

import (
	"fmt"
	"time"

	"github.com/caarlos0/env/v10"
)

// Config holds the complete process configuration loaded from
// environment variables.
type Config struct {
	Backend    BackendConfig    `envPrefix:"BACKEND_"`
	OData      ODataConfig      `envPrefix:"ODATA_"`
	STAC       STACConfig       `envPrefix:"STAC_"`
	Storage    StorageConfig    `envPrefix:"STORAGE_"`
	Download   DownloadConfig   `envPrefix:"DOWNLOAD_"`
	Processing ProcessingConfig `envPrefix:"PROCESSING_"`
	Logging    LoggingConfig    `envPrefix:"LOG_"`
}

// BackendConfig contains catalog backend selection configuration.
type BackendConfig struct {
	// Type specifies which catalog backend to use: "odata" or "stac"
	Type string `env:"TYPE" envDefault:"odata"`
}

// ODataConfig contains Copernicus Data Space OData client configuration.
type ODataConfig struct {
	BaseURL     string        `env:"BASE_URL" envDefault:"https://catalogue.dataspace.copernicus.eu"`
	DownloadURL string        `env:"DOWNLOAD_URL" envDefault:"https://zipper.dataspace.copernicus.eu"`
	Timeout     time.Duration `env:"TIMEOUT" envDefault:"60s"`
}

// STACConfig contains STAC API client configuration.
type STACConfig struct {
	BaseURL string        `env:"BASE_URL" envDefault:"https://stac.dataspace.copernicus.eu"`
	Timeout time.Duration `env:"TIMEOUT" envDefault:"60s"`
}

// StorageConfig contains local filesystem layout configuration.
type StorageConfig struct {
	// SentinelRoot is where downloaded product archives live.
	SentinelRoot string `env:"SENTINEL_ROOT" envDefault:"./Sentinel"`
	// OutputDir is where collocated rasters and patches are written.
	OutputDir string `env:"OUTPUT_DIR" envDefault:"./output"`
	// CacheDB is the path of the sqlite ledger of used products.
	CacheDB string `env:"CACHE_DB" envDefault:"./senprep.db"`
}

// DownloadConfig contains product download configuration.
type DownloadConfig struct {
	// Token is the bearer token for authenticated product downloads.
	Token   string        `env:"TOKEN"`
	Timeout time.Duration `env:"TIMEOUT" envDefault:"30m"`
	// ExternalBucket is the public GCS bucket serving Sentinel-2
	// products, used as a fallback for offline archives.
	ExternalBucket string `env:"EXTERNAL_BUCKET" envDefault:"gcp-public-data-sentinel-2"`
}

// ProcessingConfig locates the external processing tools.
type ProcessingConfig struct {
	// GPTPath is the SNAP graph processing tool executable.
	GPTPath string `env:"GPT_PATH" envDefault:"gpt"`
	// GraphDir holds the processing graph XML files.
	GraphDir string `env:"GRAPH_DIR" envDefault:"./gpt_files"`
}

// LoggingConfig contains logging configuration.
type LoggingConfig struct {
	Level  string `env:"LEVEL" envDefault:"info"`
	Format string `env:"FORMAT" envDefault:"text"`
}

// Load parses configuration from environment variables.
// It returns an error if required fields are missing or invalid.
func Load() (*Config, error) {
	cfg := &Config{}

	opts := env.Options{
		Prefix: "SENPREP_",
	}

	if err := env.ParseWithOptions(cfg, opts); err != nil {
		return nil, fmt.Errorf("failed to parse configuration: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	return cfg, nil
}

// Validate checks that the configuration is valid.
func (c *Config) Validate() error {
	if c.Backend.Type != "odata" && c.Backend.Type != "stac" {
		return fmt.Errorf("backend type must be 'odata' or 'stac', got %q", c.Backend.Type)
	}

	if c.OData.BaseURL == "" {
		return fmt.Errorf("OData base URL is required")
	}
	if c.OData.DownloadURL == "" {
		return fmt.Errorf("OData download URL is required")
	}
	if c.OData.Timeout <= 0 {
		return fmt.Errorf("OData timeout must be positive, got %s", c.OData.Timeout)
	}

	if c.Backend.Type == "stac" && c.STAC.BaseURL == "" {
		return fmt.Errorf("STAC base URL is required for the stac backend")
	}
	if c.STAC.Timeout <= 0 {
		return fmt.Errorf("STAC timeout must be positive, got %s", c.STAC.Timeout)
	}

	if c.Storage.SentinelRoot == "" {
		return fmt.Errorf("sentinel root directory is required")
	}
	if c.Storage.OutputDir == "" {
		return fmt.Errorf("output directory is required")
	}
	if c.Storage.CacheDB == "" {
		return fmt.Errorf("cache database path is required")
	}

	if c.Download.Timeout <= 0 {
		return fmt.Errorf("download timeout must be positive, got %s", c.Download.Timeout)
	}

	if c.Processing.GPTPath == "" {
		return fmt.Errorf("gpt path is required")
	}

	return validateLogging(&c.Logging)
}

func validateLogging(l *LoggingConfig) error {
	switch l.Level {
	case "debug", "info", "warn", "error":
	default:
		return fmt.Errorf("log level must be one of debug, info, warn, error, got %q", l.Level)
	}
	switch l.Format {
	case "json", "text":
	default:
		return fmt.Errorf("log format must be 'json' or 'text', got %q", l.Format)
	}
	return nil
}

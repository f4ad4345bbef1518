package config

import (
	"fmt"
	"net/url"
	"strings"

	"github.com/ilyakaznacheev/cleanenv"
)

// Config holds all configuration for ekaya-linkage.
// Configuration can come from YAML file (config.yaml) or environment variables.
// Environment variables always override YAML values for fields that support both.
// Secrets (passwords) must only come from environment variables.
type Config struct {
	// Server configuration
	BindAddr string `yaml:"bind_addr" env:"BIND_ADDR" env-default:"127.0.0.1"`
	Port     string `yaml:"port" env:"PORT" env-default:"3450"`
	Env      string `yaml:"env" env:"ENVIRONMENT" env-default:"local"`
	BaseURL  string `yaml:"base_url" env:"BASE_URL" env-default:""` // Auto-derived from Port if empty
	Version  string `yaml:"-"`                                      // Set at load time, not from config

	// Database configuration (PostgreSQL metadata store)
	Database DatabaseConfig `yaml:"database"`

	// Redis configuration (optional; serialises validation runs across instances)
	Redis RedisConfig `yaml:"redis"`

	// Storage holds where uploaded tables live and how they are decoded
	Storage StorageConfig `yaml:"storage"`

	// Validation tunes discovery and the checkers
	Validation ValidationConfig `yaml:"validation"`
}

// DatabaseConfig holds PostgreSQL database configuration.
type DatabaseConfig struct {
	Host           string `yaml:"host" env:"PGHOST" env-default:"localhost"`
	Port           int    `yaml:"port" env:"PGPORT" env-default:"5432"`
	User           string `yaml:"user" env:"PGUSER" env-default:"ekaya"`
	Password       string `yaml:"-" env:"PGPASSWORD"` // Secret - not in YAML
	Database       string `yaml:"database" env:"PGDATABASE" env-default:"ekaya_linkage"`
	MaxConnections int32  `yaml:"max_connections" env:"PGMAX_CONNECTIONS" env-default:"25"`
	SSLMode        string `yaml:"ssl_mode" env:"PGSSLMODE" env-default:"disable"`
}

// RedisConfig holds Redis connection configuration.
// An empty Host disables Redis and run locks are kept in-process.
type RedisConfig struct {
	Host     string `yaml:"host" env:"REDIS_HOST" env-default:""`
	Port     int    `yaml:"port" env:"REDIS_PORT" env-default:"6379"`
	Password string `yaml:"-" env:"REDIS_PASSWORD"` // Secret - not in YAML
	DB       int    `yaml:"db" env:"REDIS_DB" env-default:"0"`
}

// StorageConfig describes the tabular files behind registered tables.
type StorageConfig struct {
	// UploadDir is the root that table locations are resolved against.
	UploadDir string `yaml:"upload_dir" env:"UPLOAD_DIR" env-default:"./uploads"`
	// Encoding of uploaded text files: utf-8, windows-1250 or iso-8859-2.
	Encoding string `yaml:"encoding" env:"UPLOAD_ENCODING" env-default:"utf-8"`
	// Comma overrides the field delimiter; empty means detect from extension.
	Comma string `yaml:"comma" env:"UPLOAD_COMMA" env-default:""`
}

// ValidationConfig holds discovery and validation settings.
type ValidationConfig struct {
	// SampleLimit is how many rows feed a column's value set.
	SampleLimit int `yaml:"sample_limit" env:"VALIDATION_SAMPLE_LIMIT" env-default:"200"`
	// MaxShownValues caps sample values listed in integrity and forbidden findings.
	MaxShownValues int `yaml:"max_shown_values" env:"VALIDATION_MAX_SHOWN_VALUES" env-default:"10"`
	// MaxRuleSamples caps failing rows listed per rule.
	MaxRuleSamples int `yaml:"max_rule_samples" env:"VALIDATION_MAX_RULE_SAMPLES" env-default:"20"`
	// Workers bounds how many table pairs are checked in parallel.
	Workers int `yaml:"workers" env:"VALIDATION_WORKERS" env-default:"4"`
	// KeyVocabulary lists column names treated as primary key candidates, compared
	// case- and accent-insensitively.
	KeyVocabulary []string `yaml:"key_vocabulary" env:"VALIDATION_KEY_VOCABULARY" env-separator:"," env-default:"id,code,key,accountnum,accountnumber,cislo"`
	// ReferenceUniqueness is the minimum unique/row ratio of a referenced target column.
	ReferenceUniqueness float64 `yaml:"reference_uniqueness" env:"VALIDATION_REFERENCE_UNIQUENESS" env-default:"0.9"`
	// ReferenceOverlap is the overlap a reference suggestion must exceed.
	ReferenceOverlap float64 `yaml:"reference_overlap" env:"VALIDATION_REFERENCE_OVERLAP" env-default:"0.7"`
}

// DefaultValidationConfig returns the settings used when no config file is present
// (the CLI and tests).
func DefaultValidationConfig() ValidationConfig {
	return ValidationConfig{
		SampleLimit:         200,
		MaxShownValues:      10,
		MaxRuleSamples:      20,
		Workers:             4,
		KeyVocabulary:       []string{"id", "code", "key", "accountnum", "accountnumber", "cislo"},
		ReferenceUniqueness: 0.9,
		ReferenceOverlap:    0.7,
	}
}

// Load reads configuration from config.yaml with environment variable overrides.
// The version parameter is injected at build time and set on the returned Config.
func Load(version string) (*Config, error) {
	return LoadFile("config.yaml", version)
}

// LoadFile is Load with an explicit config file path.
func LoadFile(path, version string) (*Config, error) {
	cfg := &Config{
		Version: version,
	}

	if err := cleanenv.ReadConfig(path, cfg); err != nil {
		return nil, fmt.Errorf("failed to read %s: %w", path, err)
	}

	if err := cfg.Validation.Validate(); err != nil {
		return nil, fmt.Errorf("invalid validation configuration: %w", err)
	}
	if err := cfg.Storage.Validate(); err != nil {
		return nil, fmt.Errorf("invalid storage configuration: %w", err)
	}

	if cfg.BaseURL == "" {
		cfg.BaseURL = (&url.URL{
			Scheme: "http",
			Host:   "localhost:" + cfg.Port,
		}).String()
	}

	return cfg, nil
}

// Validate checks validation settings for values the checkers cannot work with.
func (c *ValidationConfig) Validate() error {
	if c.SampleLimit <= 0 {
		return fmt.Errorf("sample_limit must be positive, got %d", c.SampleLimit)
	}
	if c.MaxShownValues <= 0 {
		return fmt.Errorf("max_shown_values must be positive, got %d", c.MaxShownValues)
	}
	if c.MaxRuleSamples <= 0 {
		return fmt.Errorf("max_rule_samples must be positive, got %d", c.MaxRuleSamples)
	}
	if c.Workers <= 0 {
		return fmt.Errorf("workers must be positive, got %d", c.Workers)
	}
	if c.ReferenceUniqueness <= 0 || c.ReferenceUniqueness > 1 {
		return fmt.Errorf("reference_uniqueness must be in (0,1], got %g", c.ReferenceUniqueness)
	}
	if c.ReferenceOverlap <= 0 || c.ReferenceOverlap > 1 {
		return fmt.Errorf("reference_overlap must be in (0,1], got %g", c.ReferenceOverlap)
	}
	return nil
}

// Validate checks the storage encoding is one the loader can decode.
func (c *StorageConfig) Validate() error {
	switch strings.ToLower(c.Encoding) {
	case "", "utf-8", "utf8", "windows-1250", "cp1250", "iso-8859-2", "latin2":
	default:
		return fmt.Errorf("unsupported encoding %q", c.Encoding)
	}
	if len([]rune(c.Comma)) > 1 {
		return fmt.Errorf("comma must be a single character, got %q", c.Comma)
	}
	return nil
}

// ConnectionString returns a PostgreSQL connection URL.
func (c *DatabaseConfig) ConnectionString() string {
	u := &url.URL{
		Scheme:   "postgres",
		User:     url.UserPassword(c.User, c.Password),
		Host:     fmt.Sprintf("%s:%d", c.Host, c.Port),
		Path:     "/" + c.Database,
		RawQuery: "sslmode=" + url.QueryEscape(c.SSLMode),
	}
	return u.String()
}

package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"strconv"
	"strings"

	"gopkg.in/yaml.v3"
)

// DefaultPath is the config file looked up when no --config flag is given.
const DefaultPath = "config.yaml"

// DefaultDataDir is used when neither the config file nor the environment set data_dir.
const DefaultDataDir = "./data"

type DatabaseConfig struct {
	Driver string `yaml:"driver"` // "sqlite" or "postgres"
	DSN    string `yaml:"dsn"`
}

type LoggingConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"` // "text" or "json"
	File   string `yaml:"file"`
	Source bool   `yaml:"source"`
}

// Config is the annotator configuration read from config.yaml.
// Environment variables override file values.
type Config struct {
	DataDir     string         `yaml:"data_dir"`
	UploadDir   string         `yaml:"upload_dir"`
	StaticDir   string         `yaml:"static_dir"`
	Port        string         `yaml:"port"`
	MaxUploadMB int64          `yaml:"max_upload_mb"`
	Database    DatabaseConfig `yaml:"database"`
	Logging     LoggingConfig  `yaml:"logging"`
}

// Env var names used as overrides.
const (
	EnvDataDir     = "ANNOTATOR_DATA_DIR"
	EnvUploadDir   = "ANNOTATOR_UPLOAD_DIR"
	EnvStaticDir   = "ANNOTATOR_STATIC_DIR"
	EnvPort        = "ANNOTATOR_PORT"
	EnvMaxUploadMB = "ANNOTATOR_MAX_UPLOAD_MB"
	EnvDBDriver    = "ANNOTATOR_DB_DRIVER"
	EnvDBDSN       = "ANNOTATOR_DB_DSN"
	EnvLogLevel    = "ANNOTATOR_LOG_LEVEL"
	EnvLogFormat   = "ANNOTATOR_LOG_FORMAT"
	EnvLogFile     = "ANNOTATOR_LOG_FILE"
)

// Defaults returns the built-in configuration.
func Defaults() Config {
	return Config{
		DataDir:     DefaultDataDir,
		UploadDir:   "uploads",
		StaticDir:   "static",
		Port:        "7090",
		MaxUploadMB: 16,
		Database:    DatabaseConfig{Driver: "sqlite", DSN: "annotator.sqlite"},
		Logging:     LoggingConfig{Level: "info", Format: "text"},
	}
}

// Load reads the YAML file at path (if present), fills unset fields from
// Defaults and applies environment overrides. A missing file is not an error.
func Load(path string) (Config, error) {
	cfg := Defaults()

	data, err := os.ReadFile(path)
	switch {
	case errors.Is(err, fs.ErrNotExist):
	case err != nil:
		return cfg, fmt.Errorf("read config %s: %w", path, err)
	default:
		var fileCfg Config
		if err := yaml.Unmarshal(data, &fileCfg); err != nil {
			return cfg, fmt.Errorf("parse config %s: %w", path, err)
		}
		mergeInto(&cfg, &fileCfg)
	}

	if err := applyEnvOverrides(&cfg); err != nil {
		return cfg, err
	}
	if cfg.MaxUploadMB <= 0 {
		return cfg, fmt.Errorf("max_upload_mb must be positive, got %d", cfg.MaxUploadMB)
	}
	switch cfg.Database.Driver {
	case "sqlite", "postgres":
	default:
		return cfg, fmt.Errorf("unsupported database driver %q (supported: sqlite, postgres)", cfg.Database.Driver)
	}
	return cfg, nil
}

// MaxUploadBytes is the request body limit derived from MaxUploadMB.
func (c Config) MaxUploadBytes() int64 {
	return c.MaxUploadMB * 1024 * 1024
}

func mergeInto(dst, src *Config) {
	setString(&dst.DataDir, src.DataDir)
	setString(&dst.UploadDir, src.UploadDir)
	setString(&dst.StaticDir, src.StaticDir)
	setString(&dst.Port, src.Port)
	if src.MaxUploadMB != 0 {
		dst.MaxUploadMB = src.MaxUploadMB
	}
	setString(&dst.Database.Driver, src.Database.Driver)
	setString(&dst.Database.DSN, src.Database.DSN)
	setString(&dst.Logging.Level, src.Logging.Level)
	setString(&dst.Logging.Format, src.Logging.Format)
	setString(&dst.Logging.File, src.Logging.File)
	dst.Logging.Source = dst.Logging.Source || src.Logging.Source
}

func applyEnvOverrides(cfg *Config) error {
	setString(&cfg.DataDir, os.Getenv(EnvDataDir))
	setString(&cfg.UploadDir, os.Getenv(EnvUploadDir))
	setString(&cfg.StaticDir, os.Getenv(EnvStaticDir))
	setString(&cfg.Port, os.Getenv(EnvPort))
	setString(&cfg.Database.Driver, os.Getenv(EnvDBDriver))
	setString(&cfg.Database.DSN, os.Getenv(EnvDBDSN))
	setString(&cfg.Logging.Level, os.Getenv(EnvLogLevel))
	setString(&cfg.Logging.Format, os.Getenv(EnvLogFormat))
	setString(&cfg.Logging.File, os.Getenv(EnvLogFile))

	if v := strings.TrimSpace(os.Getenv(EnvMaxUploadMB)); v != "" {
		n, err := strconv.ParseInt(v, 10, 64)
		if err != nil {
			return fmt.Errorf("parse %s: %w", EnvMaxUploadMB, err)
		}
		cfg.MaxUploadMB = n
	}
	return nil
}

func setString(dst *string, v string) {
	if v = strings.TrimSpace(v); v != "" {
		*dst = v
	}
}

// Package config loads lexercise settings from a YAML file with environment
// overrides.
package config

import (
	"fmt"
	"log/slog"
	"os"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// EnvPrefix prefixes every environment override, e.g. LEXERCISE_DATABASE_PATH.
const EnvPrefix = "LEXERCISE_"

// Config holds all lexercise settings.
type Config struct {
	Database   DatabaseConfig   `yaml:"database"`
	Log        LogConfig        `yaml:"log"`
	Ingest     IngestConfig     `yaml:"ingest"`
	Scheduler  SchedulerConfig  `yaml:"scheduler"`
	Dictionary DictionaryConfig `yaml:"dictionary"`
	HTTP       HTTPConfig       `yaml:"http"`
}

// DatabaseConfig holds storage settings
type DatabaseConfig struct {
	Path string `yaml:"path"`
}

// LogConfig holds logging settings
type LogConfig struct {
	Level string `yaml:"level"`
}

// IngestConfig holds corpus ingestion settings
type IngestConfig struct {
	Workers       int           `yaml:"workers"`
	BatchSize     int           `yaml:"batch_size"`
	FlushInterval time.Duration `yaml:"flush_interval"`
}

// SchedulerConfig holds exercise listing settings
type SchedulerConfig struct {
	PageSize int `yaml:"page_size"`
}

// DictionaryConfig holds JMdict settings
type DictionaryConfig struct {
	Path string `yaml:"path"`
}

// HTTPConfig holds article download settings
type HTTPConfig struct {
	UserAgent string        `yaml:"user_agent"`
	Timeout   time.Duration `yaml:"timeout"`
}

// Default returns the settings used when no file or override sets a value.
func Default() *Config {
	return &Config{
		Database: DatabaseConfig{Path: "lexercise.db"},
		Log:      LogConfig{Level: "info"},
		Ingest: IngestConfig{
			Workers:       4,
			BatchSize:     50,
			FlushInterval: 100 * time.Millisecond,
		},
		Scheduler:  SchedulerConfig{PageSize: 50},
		Dictionary: DictionaryConfig{Path: "jmdict-eng-common.json"},
		HTTP: HTTPConfig{
			UserAgent: "Mozilla/5.0 (compatible; lexercise/1.0)",
			Timeout:   30 * time.Second,
		},
	}
}

// Load reads path over the defaults and applies environment overrides. An
// empty path or a missing file yields the defaults.
func Load(path string) (*Config, error) {
	cfg := Default()
	if path != "" {
		data, err := os.ReadFile(path)
		switch {
		case os.IsNotExist(err):
		case err != nil:
			return nil, fmt.Errorf("read config: %w", err)
		default:
			if err := yaml.Unmarshal(data, cfg); err != nil {
				return nil, fmt.Errorf("parse config: %w", err)
			}
		}
	}
	if err := cfg.applyEnv(os.LookupEnv); err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *Config) applyEnv(lookup func(string) (string, bool)) error {
	strs := map[string]*string{
		"DATABASE_PATH":   &c.Database.Path,
		"LOG_LEVEL":       &c.Log.Level,
		"DICTIONARY_PATH": &c.Dictionary.Path,
		"HTTP_USER_AGENT": &c.HTTP.UserAgent,
	}
	for key, dst := range strs {
		if v, ok := lookup(EnvPrefix + key); ok {
			*dst = v
		}
	}

	ints := map[string]*int{
		"INGEST_WORKERS":      &c.Ingest.Workers,
		"INGEST_BATCH_SIZE":   &c.Ingest.BatchSize,
		"SCHEDULER_PAGE_SIZE": &c.Scheduler.PageSize,
	}
	for key, dst := range ints {
		if v, ok := lookup(EnvPrefix + key); ok {
			n, err := strconv.Atoi(v)
			if err != nil {
				return fmt.Errorf("parse %s%s: %w", EnvPrefix, key, err)
			}
			*dst = n
		}
	}

	durations := map[string]*time.Duration{
		"INGEST_FLUSH_INTERVAL": &c.Ingest.FlushInterval,
		"HTTP_TIMEOUT":          &c.HTTP.Timeout,
	}
	for key, dst := range durations {
		if v, ok := lookup(EnvPrefix + key); ok {
			d, err := time.ParseDuration(v)
			if err != nil {
				return fmt.Errorf("parse %s%s: %w", EnvPrefix, key, err)
			}
			*dst = d
		}
	}
	return nil
}

// Validate reports the first invalid setting.
func (c *Config) Validate() error {
	switch {
	case c.Database.Path == "":
		return fmt.Errorf("database.path is required")
	case c.Ingest.Workers <= 0:
		return fmt.Errorf("ingest.workers must be positive")
	case c.Ingest.BatchSize <= 0:
		return fmt.Errorf("ingest.batch_size must be positive")
	case c.Scheduler.PageSize <= 0:
		return fmt.Errorf("scheduler.page_size must be positive")
	}
	if _, err := c.LogLevel(); err != nil {
		return err
	}
	return nil
}

// LogLevel parses Log.Level.
func (c *Config) LogLevel() (slog.Level, error) {
	var level slog.Level
	if err := level.UnmarshalText([]byte(strings.TrimSpace(c.Log.Level))); err != nil {
		return 0, fmt.Errorf("log.level: %w", err)
	}
	return level, nil
}

// Package config loads the settings of a dbsim node from defaults, a TOML
// file, a .env file and DBSIM_* environment variables.
package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/BurntSushi/toml"
	"github.com/joho/godotenv"
	"github.com/sarchlab/dbsim/logging"
	"github.com/sarchlab/dbsim/persistence"
)

// Environment variables read by ApplyEnv.
const (
	EnvListen         = "DBSIM_LISTEN"
	EnvSnapshot       = "DBSIM_SNAPSHOT"
	EnvSnapshotFormat = "DBSIM_SNAPSHOT_FORMAT"
	EnvJournal        = "DBSIM_JOURNAL"
	EnvAutosave       = "DBSIM_AUTOSAVE"
	EnvLogLevel       = logging.EnvLogLevel
	EnvLogFormat      = "DBSIM_LOG_FORMAT"
	EnvMonitoring     = "DBSIM_MONITORING"
)

// Config holds the settings of a node.
type Config struct {
	// Listen is the address of the HTTP API.
	Listen string

	// SnapshotPath is where the datablocks are persisted. Empty disables
	// persistence.
	SnapshotPath string

	// SnapshotFormat is "json" or "sqlite". Empty infers it from the
	// extension of SnapshotPath.
	SnapshotFormat string

	// JournalPath is the SQLite file mutations are journaled into. Empty
	// disables the journal.
	JournalPath string

	// AutosaveInterval saves a snapshot periodically. Zero disables it.
	AutosaveInterval time.Duration

	LogLevel  string
	LogFormat string

	// Monitoring enables the HTTP API.
	Monitoring bool
}

// Default returns the built-in settings.
func Default() Config {
	return Config{
		Listen:       "127.0.0.1:8080",
		SnapshotPath: "dbsim_snapshot.json",
		LogLevel:     "info",
		LogFormat:    logging.FormatConsole,
		Monitoring:   true,
	}
}

type fileConfig struct {
	Listen           string `toml:"listen"`
	SnapshotPath     string `toml:"snapshot_path"`
	SnapshotFormat   string `toml:"snapshot_format"`
	JournalPath      string `toml:"journal_path"`
	AutosaveInterval string `toml:"autosave_interval"`
	LogLevel         string `toml:"log_level"`
	LogFormat        string `toml:"log_format"`
	Monitoring       bool   `toml:"monitoring"`
}

// Load returns the defaults overridden by the TOML file at path. An empty
// path returns the defaults.
func Load(path string) (Config, error) {
	cfg := Default()
	if path == "" {
		return cfg, nil
	}

	var raw fileConfig
	meta, err := toml.DecodeFile(path, &raw)
	if err != nil {
		return Config{}, fmt.Errorf("load config %s: %w", path, err)
	}

	if undecoded := meta.Undecoded(); len(undecoded) > 0 {
		return Config{}, fmt.Errorf("load config %s: unknown key %q",
			path, undecoded[0].String())
	}

	if meta.IsDefined("listen") {
		cfg.Listen = strings.TrimSpace(raw.Listen)
	}

	if meta.IsDefined("snapshot_path") {
		cfg.SnapshotPath = strings.TrimSpace(raw.SnapshotPath)
	}

	if meta.IsDefined("snapshot_format") {
		cfg.SnapshotFormat = strings.TrimSpace(raw.SnapshotFormat)
	}

	if meta.IsDefined("journal_path") {
		cfg.JournalPath = strings.TrimSpace(raw.JournalPath)
	}

	if meta.IsDefined("autosave_interval") {
		d, err := time.ParseDuration(strings.TrimSpace(raw.AutosaveInterval))
		if err != nil {
			return Config{}, fmt.Errorf("parse autosave_interval: %w", err)
		}
		cfg.AutosaveInterval = d
	}

	if meta.IsDefined("log_level") {
		cfg.LogLevel = strings.TrimSpace(raw.LogLevel)
	}

	if meta.IsDefined("log_format") {
		cfg.LogFormat = strings.TrimSpace(raw.LogFormat)
	}

	if meta.IsDefined("monitoring") {
		cfg.Monitoring = raw.Monitoring
	}

	return cfg, nil
}

// LoadEnv loads the variables of a .env file into the process environment
// without overriding variables that are already set. A missing file is not
// an error unless required is set.
func LoadEnv(path string, required bool) error {
	err := godotenv.Load(path)
	if err == nil {
		return nil
	}

	if !required && errors.Is(err, fs.ErrNotExist) {
		return nil
	}

	return fmt.Errorf("load env file %s: %w", path, err)
}

// ApplyEnv overrides the settings with DBSIM_* environment variables.
func (c *Config) ApplyEnv() error {
	if v, ok := lookup(EnvListen); ok {
		c.Listen = v
	}

	if v, ok := lookup(EnvSnapshot); ok {
		c.SnapshotPath = v
	}

	if v, ok := lookup(EnvSnapshotFormat); ok {
		c.SnapshotFormat = v
	}

	if v, ok := lookup(EnvJournal); ok {
		c.JournalPath = v
	}

	if v, ok := lookup(EnvAutosave); ok {
		d, err := time.ParseDuration(v)
		if err != nil {
			return fmt.Errorf("parse %s: %w", EnvAutosave, err)
		}
		c.AutosaveInterval = d
	}

	if v, ok := lookup(EnvLogLevel); ok {
		c.LogLevel = v
	}

	if v, ok := lookup(EnvLogFormat); ok {
		c.LogFormat = v
	}

	if v, ok := lookup(EnvMonitoring); ok {
		b, err := strconv.ParseBool(v)
		if err != nil {
			return fmt.Errorf("parse %s: %w", EnvMonitoring, err)
		}
		c.Monitoring = b
	}

	return nil
}

func lookup(key string) (string, bool) {
	v, ok := os.LookupEnv(key)
	if !ok {
		return "", false
	}

	return strings.TrimSpace(v), true
}

// Validate checks the settings for consistency.
func (c Config) Validate() error {
	if c.Monitoring && strings.TrimSpace(c.Listen) == "" {
		return fmt.Errorf("config: listen address is required when monitoring is on")
	}

	switch c.SnapshotFormat {
	case "", persistence.FormatJSON, persistence.FormatSQLite:
	default:
		return fmt.Errorf("config: unknown snapshot format %q", c.SnapshotFormat)
	}

	if c.SnapshotFormat != "" && c.SnapshotPath == "" {
		return fmt.Errorf("config: snapshot format set without a snapshot path")
	}

	if c.AutosaveInterval < 0 {
		return fmt.Errorf("config: negative autosave interval %s", c.AutosaveInterval)
	}

	if c.AutosaveInterval > 0 && c.SnapshotPath == "" {
		return fmt.Errorf("config: autosave requires a snapshot path")
	}

	if _, err := logging.ParseLevel(c.LogLevel); err != nil {
		return fmt.Errorf("config: %w", err)
	}

	switch c.LogFormat {
	case "", logging.FormatConsole, logging.FormatJSON:
	default:
		return fmt.Errorf("config: unknown log format %q", c.LogFormat)
	}

	return nil
}

// Package config loads optisess configuration from YAML, JSON or CUE
// files and keeps the conflict rule table current while a server runs.
package config

import (
	"fmt"
	"log/slog"
	"strings"

	"github.com/roach88/optisess/internal/codec"
	"github.com/roach88/optisess/internal/conflict"
	"github.com/roach88/optisess/internal/store"
)

// Store selects the record store.
type Store struct {
	// Driver is sqlite, file or memory.
	Driver string `yaml:"driver" json:"driver"`

	// Path is the database file (sqlite) or session directory (file).
	Path string `yaml:"path" json:"path"`
}

// Config is the complete configuration.
type Config struct {
	Store      Store           `yaml:"store" json:"store"`
	Codec      string          `yaml:"codec" json:"codec"`
	CookieName string          `yaml:"cookie_name" json:"cookie_name"`
	Listen     string          `yaml:"listen" json:"listen"`
	LogLevel   string          `yaml:"log_level" json:"log_level"`
	Rules      []conflict.Rule `yaml:"rules" json:"rules"`
}

// Default returns the configuration used when no file is given. It has no
// conflict rules, so every true conflict fails.
func Default() *Config {
	return &Config{
		Store:      Store{Driver: store.DriverSQLite, Path: "optisess.db"},
		Codec:      "json",
		CookieName: "OPTISESSID",
		Listen:     ":8080",
		LogLevel:   "info",
	}
}

// Validate checks the fields the schema cannot: that the rule patterns
// compile and that the codec and driver are known.
func (c *Config) Validate() error {
	if _, err := codec.ByName(c.Codec); err != nil {
		return fmt.Errorf("config: %w", err)
	}
	switch c.Store.Driver {
	case store.DriverSQLite, store.DriverFile, store.DriverMemory:
	default:
		return fmt.Errorf("config: %w %q", store.ErrUnknownDriver, c.Store.Driver)
	}
	if c.Store.Driver != store.DriverMemory && c.Store.Path == "" {
		return fmt.Errorf("config: store.path is required for driver %q", c.Store.Driver)
	}
	if _, err := c.Table(); err != nil {
		return err
	}
	if _, err := ParseLevel(c.LogLevel); err != nil {
		return err
	}
	return nil
}

// Table compiles the rules.
func (c *Config) Table() (*conflict.Table, error) {
	t, err := conflict.NewTable(c.Rules...)
	if err != nil {
		return nil, fmt.Errorf("config: %w", err)
	}
	return t, nil
}

// ParseLevel maps a log_level value to a slog level. Empty means info.
func ParseLevel(s string) (slog.Level, error) {
	switch strings.ToLower(s) {
	case "debug":
		return slog.LevelDebug, nil
	case "", "info":
		return slog.LevelInfo, nil
	case "warn":
		return slog.LevelWarn, nil
	case "error":
		return slog.LevelError, nil
	default:
		return 0, fmt.Errorf("config: unknown log level %q", s)
	}
}

// Package config loads viewer settings: defaults, then a TOML file, then
// environment overrides. Command-line flags are applied last by the caller.
package config

import (
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/BurntSushi/toml"
	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

// Source selects where frames come from.
const (
	SourceAuto   = "auto"
	SourceHTTP   = "http"
	SourceSQLite = "sqlite"
)

// Duration is a time.Duration written as a string like "5s" in config files.
type Duration struct {
	time.Duration
}

// UnmarshalText implements encoding.TextUnmarshaler.
func (d *Duration) UnmarshalText(b []byte) error {
	v, err := time.ParseDuration(strings.TrimSpace(string(b)))
	if err != nil {
		return err
	}
	d.Duration = v
	return nil
}

// MarshalText implements encoding.TextMarshaler.
func (d Duration) MarshalText() ([]byte, error) {
	return []byte(d.String()), nil
}

// Config holds all viewer settings.
type Config struct {
	Source    string `toml:"source"`
	APIURL    string `toml:"api_url"`
	StreamURL string `toml:"stream_url"`
	DB        string `toml:"db"`
	Pair      string `toml:"pair"`
	PairsFile string `toml:"pairs_file"`

	PollInterval    Duration `toml:"poll_interval"`
	RepaintInterval Duration `toml:"repaint_interval"`
	FetchTimeout    Duration `toml:"fetch_timeout"`
	FetchLimit      int      `toml:"fetch_limit"`
	Retention       int      `toml:"retention"`

	VisibleCount int  `toml:"visible_count"`
	FrameWidth   int  `toml:"frame_width"`
	Continuous   bool `toml:"continuous_repaint"`

	LogFile  string `toml:"log_file"`
	LogLevel string `toml:"log_level"`
}

// Default returns the built-in settings.
func Default() *Config {
	return &Config{
		Source:          SourceAuto,
		APIURL:          "http://localhost:8080",
		Pair:            "BTC-USD",
		PairsFile:       filepath.Join(configDir(), "pairs.yaml"),
		PollInterval:    Duration{5 * time.Second},
		RepaintInterval: Duration{50 * time.Millisecond},
		FetchTimeout:    Duration{10 * time.Second},
		FetchLimit:      100,
		Retention:       300,
		VisibleCount:    10,
		FrameWidth:      4,
		Continuous:      true,
		LogFile:         DefaultLogPath(),
		LogLevel:        "info",
	}
}

func configDir() string {
	if xdg := os.Getenv("XDG_CONFIG_HOME"); xdg != "" {
		return filepath.Join(xdg, "bsv")
	}
	home, err := os.UserHomeDir()
	if err != nil || home == "" {
		home = os.TempDir()
	}
	return filepath.Join(home, ".config", "bsv")
}

// DefaultPath returns the config file path.
// Priority: BSV_CONFIG > $XDG_CONFIG_HOME/bsv/config.toml > ~/.config/bsv/config.toml.
func DefaultPath() string {
	if env := os.Getenv("BSV_CONFIG"); env != "" {
		return ExpandHome(env)
	}
	return filepath.Join(configDir(), "config.toml")
}

// DefaultLogPath returns $XDG_STATE_HOME/bsv/bsv.log, falling back to
// ~/.local/state/bsv/bsv.log.
func DefaultLogPath() string {
	if xdg := os.Getenv("XDG_STATE_HOME"); xdg != "" {
		return filepath.Join(xdg, "bsv", "bsv.log")
	}
	home, err := os.UserHomeDir()
	if err != nil || home == "" {
		home = os.TempDir()
	}
	return filepath.Join(home, ".local", "state", "bsv", "bsv.log")
}

// ExpandHome replaces a leading ~/ with the user's home directory.
func ExpandHome(p string) string {
	if !strings.HasPrefix(p, "~/") {
		return p
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return p
	}
	return filepath.Join(home, p[2:])
}

// Load reads path (DefaultPath when empty) over the defaults and applies
// environment overrides. A missing file is not an error.
func Load(path string) (*Config, error) {
	if path == "" {
		path = DefaultPath()
	}
	cfg := Default()

	if data, err := os.ReadFile(path); err == nil {
		if _, err := toml.Decode(string(data), cfg); err != nil {
			return nil, fmt.Errorf("parsing config %s: %w", path, err)
		}
	} else if !errors.Is(err, os.ErrNotExist) {
		return nil, err
	}

	if v := os.Getenv("BSV_API_URL"); v != "" {
		cfg.APIURL = v
	}
	if v := os.Getenv("BSV_PAIR"); v != "" {
		cfg.Pair = v
	}
	if v := os.Getenv("BSV_STREAM_URL"); v != "" {
		cfg.StreamURL = v
	}
	if v := os.Getenv("BSV_DB"); v != "" {
		cfg.DB = v
	}
	if v := os.Getenv("BSV_SOURCE"); v != "" {
		cfg.Source = v
	}

	cfg.LogFile = ExpandHome(cfg.LogFile)
	cfg.PairsFile = ExpandHome(cfg.PairsFile)
	cfg.DB = ExpandHome(cfg.DB)

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate checks ranges and enumerations.
func (c *Config) Validate() error {
	switch c.Source {
	case SourceAuto, SourceHTTP, SourceSQLite:
	default:
		return fmt.Errorf("source %q: must be auto, http or sqlite", c.Source)
	}
	if c.PollInterval.Duration <= 0 {
		return fmt.Errorf("poll_interval must be positive, got %s", c.PollInterval)
	}
	if c.RepaintInterval.Duration <= 0 {
		return fmt.Errorf("repaint_interval must be positive, got %s", c.RepaintInterval)
	}
	if c.FetchTimeout.Duration <= 0 {
		return fmt.Errorf("fetch_timeout must be positive, got %s", c.FetchTimeout)
	}
	if c.Retention <= 0 {
		return fmt.Errorf("retention must be positive, got %d", c.Retention)
	}
	if c.VisibleCount < 1 {
		return fmt.Errorf("visible_count must be at least 1, got %d", c.VisibleCount)
	}
	if c.FrameWidth < 1 {
		return fmt.Errorf("frame_width must be at least 1, got %d", c.FrameWidth)
	}
	if _, err := ParseLevel(c.LogLevel); err != nil {
		return err
	}
	return nil
}

// ParseLevel maps a log_level string to a slog level.
func ParseLevel(s string) (slog.Level, error) {
	var l slog.Level
	if err := l.UnmarshalText([]byte(s)); err != nil {
		return 0, fmt.Errorf("log_level %q: %w", s, err)
	}
	return l, nil
}

// LoadDotenv loads KEY=VALUE files into the environment. Missing files are
// skipped; variables already set are kept.
func LoadDotenv(paths ...string) error {
	for _, p := range paths {
		if _, err := os.Stat(p); err != nil {
			continue
		}
		if err := godotenv.Load(p); err != nil {
			return fmt.Errorf("load %s: %w", p, err)
		}
	}
	return nil
}

// Pair is one entry of the pairs watchlist.
type Pair struct {
	ID   string `yaml:"id"`
	Name string `yaml:"name,omitempty"`
}

// Label is the display name, falling back to the id.
func (p Pair) Label() string {
	if p.Name != "" {
		return p.Name
	}
	return p.ID
}

type pairsFile struct {
	Pairs []Pair `yaml:"pairs"`
}

// LoadPairs reads the pairs watchlist. Entries without an id are skipped and
// duplicate ids keep their first occurrence.
func LoadPairs(path string) ([]Pair, error) {
	b, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	var f pairsFile
	if err := yaml.Unmarshal(b, &f); err != nil {
		return nil, fmt.Errorf("parsing pairs %s: %w", path, err)
	}
	seen := make(map[string]bool)
	out := make([]Pair, 0, len(f.Pairs))
	for _, p := range f.Pairs {
		p.ID = strings.TrimSpace(p.ID)
		if p.ID == "" || seen[p.ID] {
			continue
		}
		seen[p.ID] = true
		out = append(out, p)
	}
	return out, nil
}

// Watchlist returns the configured pair first, followed by the pairs file
// entries. A missing pairs file yields just the configured pair.
func (c *Config) Watchlist() ([]Pair, error) {
	pairs := []Pair{{ID: c.Pair}}
	if c.PairsFile == "" {
		return pairs, nil
	}
	extra, err := LoadPairs(c.PairsFile)
	if errors.Is(err, os.ErrNotExist) {
		return pairs, nil
	}
	if err != nil {
		return pairs, err
	}
	for _, p := range extra {
		if p.ID == c.Pair {
			pairs[0] = p
			continue
		}
		pairs = append(pairs, p)
	}
	return pairs, nil
}

// Package config loads composer settings from defaults, an optional TOML
// file and COMPOSER_* environment variables, in that order.
package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/BurntSushi/toml"
	"github.com/caarlos0/env/v11"

	"composer/internal/domain"
)

// EnvConfigPath names the variable holding the TOML file path.
const EnvConfigPath = "COMPOSER_CONFIG"

const envPrefix = "COMPOSER_"

var ErrInvalid = errors.New("invalid config")

type Config struct {
	DataDir    string `toml:"data_dir" env:"DATA_DIR"`
	DBPath     string `toml:"db_path" env:"DB_PATH"`
	DocumentID string `toml:"document_id" env:"DOCUMENT_ID"`

	HistoryLimit int `toml:"history_limit" env:"HISTORY_LIMIT"`

	// AutosaveSpec is a robfig/cron spec; empty disables autosave.
	AutosaveSpec string `toml:"autosave" env:"AUTOSAVE"`
	// WatchPath is a JSON document file re-imported whenever it changes.
	WatchPath string `toml:"watch_path" env:"WATCH_PATH"`

	HTTPAddr string `toml:"http_addr" env:"HTTP_ADDR"`

	RedisURL   string        `toml:"redis_url" env:"REDIS_URL"`
	SessionTTL time.Duration `toml:"session_ttl" env:"SESSION_TTL"`

	MeiliURL   string `toml:"meili_url" env:"MEILI_URL"`
	MeiliKey   string `toml:"meili_key" env:"MEILI_KEY"`
	MeiliIndex string `toml:"meili_index" env:"MEILI_INDEX"`

	// MCPAutoApprove skips the human approval of destructive agent tools.
	MCPAutoApprove bool `toml:"mcp_auto_approve" env:"MCP_AUTO_APPROVE"`

	Viewports      []domain.Viewport      `toml:"viewports" env:"-"`
	PublishTargets []domain.PublishTarget `toml:"publish" env:"-"`
}

// Default returns the built-in settings.
func Default() Config {
	dir := ".composer"
	if home, err := os.UserHomeDir(); err == nil {
		dir = filepath.Join(home, ".composer")
	}
	return Config{
		DataDir:      dir,
		DocumentID:   "home",
		HistoryLimit: 1000,
		AutosaveSpec: "@every 30s",
		HTTPAddr:     ":8080",
		SessionTTL:   30 * 24 * time.Hour,
		MeiliIndex:   "blocks",
		Viewports:    append([]domain.Viewport(nil), domain.DefaultViewports...),
	}
}

// Load builds the configuration. An empty path falls back to
// $COMPOSER_CONFIG; when both are empty only defaults and the environment
// apply.
func Load(path string) (Config, error) {
	cfg := Default()
	if path == "" {
		path = os.Getenv(EnvConfigPath)
	}
	if path != "" {
		if err := cfg.decodeFile(path); err != nil {
			return Config{}, err
		}
	}
	if err := env.ParseWithOptions(&cfg, env.Options{Prefix: envPrefix}); err != nil {
		return Config{}, fmt.Errorf("parse env: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

func (c *Config) decodeFile(path string) error {
	var raw Config
	meta, err := toml.DecodeFile(path, &raw)
	if err != nil {
		return fmt.Errorf("load config %s: %w", path, err)
	}
	if undecoded := meta.Undecoded(); len(undecoded) > 0 {
		keys := make([]string, len(undecoded))
		for i, k := range undecoded {
			keys[i] = k.String()
		}
		return fmt.Errorf("load config %s: unknown keys %s: %w", path, strings.Join(keys, ", "), ErrInvalid)
	}

	set := func(key string, apply func()) {
		if meta.IsDefined(key) {
			apply()
		}
	}
	set("data_dir", func() { c.DataDir = strings.TrimSpace(raw.DataDir) })
	set("db_path", func() { c.DBPath = strings.TrimSpace(raw.DBPath) })
	set("document_id", func() { c.DocumentID = strings.TrimSpace(raw.DocumentID) })
	set("history_limit", func() { c.HistoryLimit = raw.HistoryLimit })
	set("autosave", func() { c.AutosaveSpec = strings.TrimSpace(raw.AutosaveSpec) })
	set("watch_path", func() { c.WatchPath = strings.TrimSpace(raw.WatchPath) })
	set("http_addr", func() { c.HTTPAddr = strings.TrimSpace(raw.HTTPAddr) })
	set("redis_url", func() { c.RedisURL = strings.TrimSpace(raw.RedisURL) })
	set("session_ttl", func() { c.SessionTTL = raw.SessionTTL })
	set("meili_url", func() { c.MeiliURL = strings.TrimSpace(raw.MeiliURL) })
	set("meili_key", func() { c.MeiliKey = raw.MeiliKey })
	set("meili_index", func() { c.MeiliIndex = strings.TrimSpace(raw.MeiliIndex) })
	set("mcp_auto_approve", func() { c.MCPAutoApprove = raw.MCPAutoApprove })
	set("viewports", func() { c.Viewports = raw.Viewports })
	set("publish", func() { c.PublishTargets = raw.PublishTargets })
	return nil
}

// Validate reports the first setting that cannot be used.
func (c Config) Validate() error {
	if c.DocumentID == "" {
		return fmt.Errorf("document_id is empty: %w", ErrInvalid)
	}
	if c.HistoryLimit <= 0 {
		return fmt.Errorf("history_limit %d: %w", c.HistoryLimit, ErrInvalid)
	}
	if c.HTTPAddr == "" {
		return fmt.Errorf("http_addr is empty: %w", ErrInvalid)
	}
	if len(c.Viewports) == 0 {
		return fmt.Errorf("no viewports: %w", ErrInvalid)
	}
	seen := make(map[string]bool, len(c.Viewports))
	for _, vp := range c.Viewports {
		if vp.Name == "" || vp.Width <= 0 {
			return fmt.Errorf("viewport %q: %w", vp.Name, ErrInvalid)
		}
		if seen[vp.Name] {
			return fmt.Errorf("duplicate viewport %q: %w", vp.Name, ErrInvalid)
		}
		seen[vp.Name] = true
	}
	targets := make(map[string]bool, len(c.PublishTargets))
	for _, t := range c.PublishTargets {
		if t.ID == "" || t.Driver == "" {
			return fmt.Errorf("publish target %q: id and driver are required: %w", t.Name, ErrInvalid)
		}
		if targets[t.ID] {
			return fmt.Errorf("duplicate publish target %q: %w", t.ID, ErrInvalid)
		}
		targets[t.ID] = true
	}
	return nil
}

// DatabasePath is the workspace SQLite file.
func (c Config) DatabasePath() string {
	if c.DBPath != "" {
		return c.DBPath
	}
	return filepath.Join(c.DataDir, "composer.db")
}

// Viewport looks up a profile by name.
func (c Config) Viewport(name string) (domain.Viewport, bool) {
	for _, vp := range c.Viewports {
		if vp.Name == name {
			return vp, true
		}
	}
	return domain.Viewport{}, false
}

// PublishTarget looks up a publish target by id.
func (c Config) PublishTarget(id string) (domain.PublishTarget, bool) {
	for _, t := range c.PublishTargets {
		if t.ID == id {
			return t, true
		}
	}
	return domain.PublishTarget{}, false
}

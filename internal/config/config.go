// Package config resolves Chorus's runtime configuration: environment
// variables, an optional chorus.yaml discovered by walking up from the
// working directory, and hardcoded defaults, in that order of precedence.
// The resolved config file is reloaded when it changes on disk.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"github.com/fsnotify/fsnotify"
	"github.com/spf13/viper"
)

// Config is the resolved, typed view of Chorus's settings. Every accessor
// reads the current viper state, so each one reflects a reloaded config
// file; the keys noted as fixed at startup are read once by serve when it
// starts and are not read again.
type Config struct {
	v *viper.Viper
	mu sync.RWMutex
}

// Defaults mirror spec.md §6's environment surface and spec.md §4.5's
// discovery pagination bounds.
var defaults = map[string]any{
	"http.addr":          ":8080",
	"cors.origin":        "http://localhost:3000",
	"database.url":       "file:chorus.db",
	"log.file":           "",
	"log.level":          "info",
	"reaper.interval":    "60s",
	"page.default_limit": 50,
	"page.max_limit":     200,
}

// New builds and resolves a Config the way the teacher's Initialize does:
// a viper instance, CHORUS_-prefixed automatic env binding, and a
// chorus.yaml discovered by walking up from the current directory.
func New() (*Config, error) {
	v := viper.New()
	v.SetConfigType("yaml")

	for key, val := range defaults {
		v.SetDefault(key, val)
	}

	v.SetEnvPrefix("CHORUS")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_", "-", "_"))
	v.AutomaticEnv()
	_ = v.BindEnv("database.url", "CHORUS_DATABASE_URL", "DATABASE_URL")

	if path, ok := discoverConfigFile(); ok {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("reading config file %s: %w", path, err)
		}
	}

	cfg := &Config{v: v}
	cfg.watch()
	return cfg, nil
}

// discoverConfigFile walks up from the working directory looking for
// chorus.yaml, the way the teacher's Initialize walks up looking for
// .beads/config.yaml.
func discoverConfigFile() (string, bool) {
	cwd, err := os.Getwd()
	if err != nil {
		return "", false
	}
	for dir := cwd; ; {
		candidate := filepath.Join(dir, "chorus.yaml")
		if _, err := os.Stat(candidate); err == nil {
			return candidate, true
		}
		parent := filepath.Dir(dir)
		if parent == dir {
			return "", false
		}
		dir = parent
	}
}

// watch installs an fsnotify-backed reload of the config file; the
// accessors then return the reloaded values. DatabaseURL is read once at startup and never revisited, per spec.md §6.
func (c *Config) watch() {
	if c.v.ConfigFileUsed() == "" {
		return
	}
	c.v.OnConfigChange(func(e fsnotify.Event) {
		c.mu.Lock()
		defer c.mu.Unlock()
		if err := c.v.ReadInConfig(); err != nil {
			return
		}
	})
	c.v.WatchConfig()
}

func (c *Config) get() *viper.Viper {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.v
}

// HTTPAddr is the listen address for the HTTP server. Fixed at startup.
func (c *Config) HTTPAddr() string { return c.get().GetString("http.addr") }

// DatabaseURL is the SQLite DSN. Fixed at startup; never hot-reloaded.
func (c *Config) DatabaseURL() string { return c.get().GetString("database.url") }

// LogFile is the path lumberjack rotates logs into; empty means stdout.
func (c *Config) LogFile() string { return c.get().GetString("log.file") }

// LogLevel is the zerolog level name.
func (c *Config) LogLevel() string { return c.get().GetString("log.level") }

// ReaperInterval is the background reaper's sweep period, as a duration string.
func (c *Config) ReaperInterval() string { return c.get().GetString("reaper.interval") }

// CORSOrigin returns the current value after a config file edit. serve
// reads it once when it builds the router, so a running server keeps the
// origin it started with.
func (c *Config) CORSOrigin() string { return c.get().GetString("cors.origin") }

// DefaultPageLimit returns the current value after a config file edit. No
// handler reads it; list endpoints page with store.DefaultPage.
func (c *Config) DefaultPageLimit() int { return c.get().GetInt("page.default_limit") }

// MaxPageLimit returns the current value after a config file edit. No
// handler reads it.
func (c *Config) MaxPageLimit() int { return c.get().GetInt("page.max_limit") }

// AllSettings returns every resolved setting, for `chorusd config print`.
func (c *Config) AllSettings() map[string]any { return c.get().AllSettings() }

// Package config loads settings from defaults, an optional nartya.yaml and
// NARTYA_* environment variables, in increasing order of precedence.
package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/spf13/viper"

	"github.com/nartya-app/nartya/internal/browser"
	"github.com/nartya-app/nartya/internal/extractor"
)

const (
	appName   = "nartya"
	envPrefix = "NARTYA"
)

// EnvKeyReplacer maps configuration keys to environment variable names.
var EnvKeyReplacer = strings.NewReplacer(".", "_")

// Config is the resolved configuration.
type Config struct {
	Debug   bool
	Browser BrowserConfig
	Extract extractor.Config
	Cache   CacheConfig
	Server  ServerConfig
	Probe   ProbeConfig

	// File is the config file that was read, empty when none was found.
	File string
}

type BrowserConfig struct {
	Backend  string
	Headless bool
	Install  bool
}

func (b BrowserConfig) LaunchOptions() browser.LaunchOptions {
	return browser.LaunchOptions{Headless: b.Headless, Install: b.Install}
}

type CacheConfig struct {
	// Path of the SQLite store. Empty keeps the cache in memory.
	Path        string
	WarmWorkers int
}

type ServerConfig struct {
	Addr string
}

type ProbeConfig struct {
	Impersonate bool
}

// Load reads the configuration. An explicit file must exist; otherwise
// nartya.yaml is looked up in the user config directory and the working
// directory, and a missing file is not an error.
func Load(file string) (*Config, error) {
	v := viper.New()
	v.SetEnvPrefix(envPrefix)
	v.SetEnvKeyReplacer(EnvKeyReplacer)
	v.AutomaticEnv()

	v.SetTypeByDefaultValue(true)
	for _, f := range Fields {
		v.SetDefault(f.Key, f.Value)
	}

	if file != "" {
		v.SetConfigFile(file)
	} else {
		v.SetConfigName(appName)
		v.SetConfigType("yaml")
		if dir, err := Dir(); err == nil {
			v.AddConfigPath(dir)
		}
		v.AddConfigPath(".")
	}

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if file != "" || !errors.As(err, &notFound) {
			return nil, fmt.Errorf("read config: %w", err)
		}
	}

	cfg := &Config{
		Debug: v.GetBool(KeyDebug),
		Browser: BrowserConfig{
			Backend:  v.GetString(KeyBrowserBackend),
			Headless: v.GetBool(KeyBrowserHeadless),
			Install:  v.GetBool(KeyBrowserInstall),
		},
		Extract: extractor.Config{
			NetworkTimeout:    v.GetDuration(KeyNetworkTimeout),
			HookTimeout:       v.GetDuration(KeyHookTimeout),
			DOMTimeout:        v.GetDuration(KeyDOMTimeout),
			SettleDelay:       v.GetDuration(KeySettleDelay),
			NavigationTimeout: v.GetDuration(KeyNavigationTimeout),
			BatchDelay:        v.GetDuration(KeyBatchDelay),
			SessionsPerSecond: v.GetInt(KeySessionsPerSecond),
			UserAgent:         v.GetString(KeyUserAgent),
		},
		Cache: CacheConfig{
			Path:        expandHome(v.GetString(KeyCachePath)),
			WarmWorkers: v.GetInt(KeyCacheWarmWorkers),
		},
		Server: ServerConfig{Addr: v.GetString(KeyServerAddr)},
		Probe:  ProbeConfig{Impersonate: v.GetBool(KeyProbeImpersonate)},
		File:   v.ConfigFileUsed(),
	}

	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *Config) validate() error {
	switch c.Browser.Backend {
	case browser.BackendPlaywright, browser.BackendRod:
	default:
		return fmt.Errorf("%s: unknown backend %q", KeyBrowserBackend, c.Browser.Backend)
	}

	durations := map[string]time.Duration{
		KeyNetworkTimeout:    c.Extract.NetworkTimeout,
		KeyHookTimeout:       c.Extract.HookTimeout,
		KeyDOMTimeout:        c.Extract.DOMTimeout,
		KeyNavigationTimeout: c.Extract.NavigationTimeout,
	}
	for key, d := range durations {
		if d <= 0 {
			return fmt.Errorf("%s: must be positive, got %s", key, d)
		}
	}
	if c.Extract.SettleDelay < 0 || c.Extract.BatchDelay < 0 {
		return fmt.Errorf("%s and %s must not be negative", KeySettleDelay, KeyBatchDelay)
	}
	return nil
}

// Dir returns the nartya directory under the user config directory.
func Dir() (string, error) {
	base, err := os.UserConfigDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(base, appName), nil
}

// DefaultCachePath is where the cache database lives unless configured.
func DefaultCachePath() string {
	dir, err := Dir()
	if err != nil {
		return ""
	}
	return filepath.Join(dir, "cache.db")
}

func expandHome(p string) string {
	if !strings.HasPrefix(p, "~/") {
		return p
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return p
	}
	return filepath.Join(home, p[2:])
}

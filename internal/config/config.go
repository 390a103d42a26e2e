// Package config handles configuration loading from TOML files and environment variables.
package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/BurntSushi/toml"
	"github.com/rs/zerolog"
)

// Provider names accepted in parser.provider.
const (
	ProviderTreeSitter = "treesitter"
	ProviderExec       = "exec"
)

// Config is the root configuration structure.
type Config struct {
	Workspace WorkspaceConfig `toml:"workspace"`
	Parser    ParserConfig    `toml:"parser"`
	Cache     CacheConfig     `toml:"cache"`
	Watch     WatchConfig     `toml:"watch"`
	UI        UIConfig        `toml:"ui"`
	Logging   LoggingConfig   `toml:"logging"`
}

// WorkspaceConfig lists the roots directory labels are made relative to.
// Empty means the current working directory.
type WorkspaceConfig struct {
	Roots []string `toml:"roots"`
}

// ParserConfig selects the declaration source.
type ParserConfig struct {
	// Provider is "treesitter" (in-process) or "exec" (external helper).
	Provider string `toml:"provider"`
	// Command is the shell-quoted helper command line; the file path is
	// appended as the last argument.
	Command   string `toml:"command"`
	TimeoutMS int    `toml:"timeout_ms"`
}

// TimeoutOrDefault returns the helper timeout or 5 seconds if unset.
func (p ParserConfig) TimeoutOrDefault() time.Duration {
	if p.TimeoutMS <= 0 {
		return 5 * time.Second
	}
	return time.Duration(p.TimeoutMS) * time.Millisecond
}

// CacheConfig bounds the declaration cache.
type CacheConfig struct {
	MaxEntries int  `toml:"max_entries"`
	Warm       bool `toml:"warm"`
}

// WatchConfig controls cache invalidation on file changes.
type WatchConfig struct {
	Enabled    *bool    `toml:"enabled"`
	Ignore     []string `toml:"ignore"`
	DebounceMS int      `toml:"debounce_ms"`
}

// IsEnabled reports whether watching is on. Defaults to true.
func (w WatchConfig) IsEnabled() bool {
	return w.Enabled == nil || *w.Enabled
}

// DebounceOrDefault returns the debounce window or 200ms if unset.
func (w WatchConfig) DebounceOrDefault() time.Duration {
	if w.DebounceMS <= 0 {
		return 200 * time.Millisecond
	}
	return time.Duration(w.DebounceMS) * time.Millisecond
}

// UIConfig holds user-interface settings.
type UIConfig struct {
	// SyntaxTheme is the Chroma theme for occurrence lines.
	// Defaults to "vulcan" if unset.
	SyntaxTheme string `toml:"syntax_theme"`
	// Icons draws ▾/▸ tree markers instead of -/+.
	Icons bool `toml:"icons"`
}

// SyntaxThemeOrDefault returns the configured syntax theme or "vulcan" if unset.
func (u UIConfig) SyntaxThemeOrDefault() string {
	if u.SyntaxTheme == "" {
		return "vulcan"
	}
	return u.SyntaxTheme
}

// LoggingConfig holds log settings.
type LoggingConfig struct {
	Level string `toml:"level"`
	// File receives logs while the panel owns the terminal. Defaults to
	// refscope.log in the data directory.
	File string `toml:"file"`
}

// Default returns the configuration used when no file exists.
func Default() *Config {
	return &Config{
		Parser: ParserConfig{
			Provider:  ProviderTreeSitter,
			Command:   "refscope decls",
			TimeoutMS: 5000,
		},
		Cache: CacheConfig{MaxEntries: 4096},
		Watch: WatchConfig{
			Ignore:     []string{"**/vendor/**", "**/node_modules/**"},
			DebounceMS: 200,
		},
		Logging: LoggingConfig{Level: "info"},
	}
}

// Load reads configuration from a TOML file over the defaults and applies
// environment variable overrides. An empty path means the default location,
// which may be absent; an explicit path must exist.
func Load(path string) (*Config, error) {
	cfg := Default()

	explicit := path != ""
	if !explicit {
		dir, err := DataDir()
		if err != nil {
			return nil, err
		}
		path = filepath.Join(dir, "config.toml")
	}

	if _, err := os.Stat(path); err != nil {
		if explicit || !os.IsNotExist(err) {
			return nil, fmt.Errorf("config file not found: %s", path)
		}
	} else if _, err := toml.DecodeFile(path, cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config: %w", err)
	}

	// Apply environment variable overrides
	applyEnvOverrides(cfg)

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return cfg, nil
}

// Validate returns an error if the configuration is invalid.
func (c *Config) Validate() error {
	var errs []error

	switch c.Parser.Provider {
	case ProviderTreeSitter:
	case ProviderExec:
		if c.Parser.Command == "" {
			errs = append(errs, errors.New("parser.command is required when parser.provider is exec"))
		}
	default:
		errs = append(errs, fmt.Errorf("parser.provider=%q must be %q or %q", c.Parser.Provider, ProviderTreeSitter, ProviderExec))
	}

	if c.Parser.TimeoutMS < 0 {
		errs = append(errs, fmt.Errorf("parser.timeout_ms=%d must not be negative", c.Parser.TimeoutMS))
	}
	if c.Cache.MaxEntries < 0 {
		errs = append(errs, fmt.Errorf("cache.max_entries=%d must not be negative", c.Cache.MaxEntries))
	}

	for _, root := range c.Workspace.Roots {
		if !filepath.IsAbs(root) {
			errs = append(errs, fmt.Errorf("workspace.roots: %q is not an absolute path", root))
		}
	}

	if c.Logging.Level != "" {
		if _, err := zerolog.ParseLevel(c.Logging.Level); err != nil {
			errs = append(errs, fmt.Errorf("logging.level=%q is invalid: %v", c.Logging.Level, err))
		}
	}

	if len(errs) > 0 {
		return errors.Join(errs...)
	}

	return nil
}

// applyEnvOverrides applies environment variable overrides to the configuration.
func applyEnvOverrides(cfg *Config) {
	for _, setter := range []struct {
		env   string
		apply func(string)
	}{
		{"REFSCOPE_PARSER_COMMAND", func(v string) {
			if v != "" {
				cfg.Parser.Provider = ProviderExec
				cfg.Parser.Command = v
			}
		}},
		{"REFSCOPE_LOG_LEVEL", func(v string) {
			if v != "" {
				cfg.Logging.Level = v
			}
		}},
	} {
		setter.apply(os.Getenv(setter.env))
	}
}

// DataDir returns the path to the refscope data directory (~/.config/refscope).
func DataDir() (string, error) {
	home, err := os.UserHomeDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(home, ".config", "refscope"), nil
}

// EnsureDataDir creates the data directory if it doesn't exist.
func EnsureDataDir() (string, error) {
	dir, err := DataDir()
	if err != nil {
		return "", err
	}
	if err := os.MkdirAll(dir, 0750); err != nil {
		return "", err
	}
	return dir, nil
}

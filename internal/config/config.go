package config

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/sirupsen/logrus"
)

const (
	// FileName is the config file probed next to the patcher.
	FileName = "optimizer-config.json"

	DefaultLogLevel = "INFO"

	customNodesDir = "custom_nodes"
)

// Config holds patcher configuration loaded from JSON.
type Config struct {
	ModulesToSilence    []string `json:"modules_to_silence"`
	PatcherLogLevel     string   `json:"patcher_log_level"`
	LogSuppressedOutput bool     `json:"log_suppressed_output"`
	PatcherDebugMode    bool     `json:"patcher_debug_mode"`

	// Path is the file the values were read from; empty for defaults.
	Path string `json:"-"`
}

// Default returns Config populated with defaults.
func Default() *Config {
	return &Config{
		ModulesToSilence:    []string{},
		PatcherLogLevel:     DefaultLogLevel,
		LogSuppressedOutput: false,
		PatcherDebugMode:    false,
	}
}

// Parse overlays a JSON object onto the defaults. Unknown keys are ignored
// and missing keys keep their default value.
func Parse(data []byte) (*Config, error) {
	cfg := Default()
	if err := json.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("decode json: %w", err)
	}
	if cfg.ModulesToSilence == nil {
		cfg.ModulesToSilence = []string{}
	}
	if strings.TrimSpace(cfg.PatcherLogLevel) == "" {
		cfg.PatcherLogLevel = DefaultLogLevel
	}
	return cfg, nil
}

// Load reads and parses the config at path.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	cfg, err := Parse(data)
	if err != nil {
		return nil, err
	}
	cfg.Path = path
	return cfg, nil
}

// Candidates lists the locations probed for FileName, in order, for a
// patcher living in dir. A dir whose path ends in "custom_nodes" (including
// names like "my_custom_nodes") only probes itself.
func Candidates(dir string) []string {
	dir = filepath.Clean(dir)
	if strings.HasSuffix(dir, customNodesDir) {
		return []string{filepath.Join(dir, FileName)}
	}
	return []string{
		filepath.Join(dir, FileName),
		filepath.Join(filepath.Dir(dir), FileName),
	}
}

// Find returns the first existing candidate for dir.
func Find(dir string) (string, bool) {
	for _, p := range Candidates(dir) {
		if _, err := os.Stat(p); err == nil {
			return p, true
		}
	}
	return "", false
}

// Resolve loads configuration for a patcher in dir. An explicit path skips
// probing. Read and parse failures are logged and fall back to defaults; the
// caller always gets a usable Config.
func Resolve(dir, explicit string, logger logrus.FieldLogger) *Config {
	path := explicit
	if path == "" {
		found, ok := Find(dir)
		if !ok {
			logger.Infof("Configuration file '%s' not found in expected locations. Using default settings.", FileName)
			return Default()
		}
		path = found
	}

	cfg, err := Load(path)
	if err != nil {
		var syntaxErr *json.SyntaxError
		var typeErr *json.UnmarshalTypeError
		if errors.As(err, &syntaxErr) || errors.As(err, &typeErr) {
			logger.Errorf("Error decoding JSON from '%s': %v. Using default settings.", path, err)
		} else {
			logger.Errorf("Error loading configuration from '%s': %v. Using default settings.", path, err)
		}
		return Default()
	}
	return cfg
}

// Silenced reports whether module output should be captured during load.
func (c *Config) Silenced(module string) bool {
	for _, m := range c.ModulesToSilence {
		if m == module {
			return true
		}
	}
	return false
}

// String renders the config on one line for debug logs.
func (c *Config) String() string {
	mods := append([]string{}, c.ModulesToSilence...)
	sort.Strings(mods)
	return fmt.Sprintf("modules_to_silence=%v patcher_log_level=%s log_suppressed_output=%v patcher_debug_mode=%v",
		mods, c.PatcherLogLevel, c.LogSuppressedOutput, c.PatcherDebugMode)
}

// Save writes cfg to path as indented JSON.
func Save(cfg *Config, path string) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return err
	}
	out, err := json.MarshalIndent(cfg, "", "  ")
	if err != nil {
		return err
	}
	return os.WriteFile(path, append(out, '\n'), 0o644)
}

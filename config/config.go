// Package config loads interpreter settings from a TOML file. Everything
// has a sensible default so running without a config file works.
package config

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/BurntSushi/toml"
)

type Config struct {
	Interpreter struct {
		// 0 seeds the generator from OS entropy
		RandomSeed uint64 `toml:"random_seed"`
		SaveDir    string `toml:"save_dir"`
	} `toml:"interpreter"`

	Screen struct {
		Rows    uint8 `toml:"rows"`
		Columns uint8 `toml:"columns"`
	} `toml:"screen"`

	Files struct {
		// Stream 2 transcript and stream 4 command script destinations.
		// Empty means "next to the story file".
		TranscriptFile string `toml:"transcript_file"`
		CommandFile    string `toml:"command_file"`
	} `toml:"files"`

	Stories struct {
		CacheDir string `toml:"cache_dir"`
	} `toml:"stories"`
}

// DefaultConfig returns a configuration with default values
func DefaultConfig() *Config {
	cfg := &Config{}

	cfg.Screen.Rows = 25
	cfg.Screen.Columns = 80

	if cacheDir, err := os.UserCacheDir(); err == nil {
		cfg.Stories.CacheDir = filepath.Join(cacheDir, "zeta")
	}

	return cfg
}

// DefaultConfigPath is the per-user config location.
func DefaultConfigPath() (string, error) {
	configDir, err := os.UserConfigDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(configDir, "zeta", "config.toml"), nil
}

// Load reads a TOML config file over the defaults.
func Load(path string) (*Config, error) {
	cfg := DefaultConfig()

	if _, err := toml.DecodeFile(path, cfg); err != nil {
		return nil, fmt.Errorf("failed to load config from %s: %w", path, err)
	}

	return cfg, nil
}

// LoadOrDefault loads the named file, or the per-user file, or defaults -
// in that order. A missing file is not an error; a malformed one is.
func LoadOrDefault(path string) (*Config, error) {
	if path != "" {
		return Load(path)
	}

	if userPath, err := DefaultConfigPath(); err == nil {
		if _, err := os.Stat(userPath); err == nil {
			return Load(userPath)
		}
	}

	return DefaultConfig(), nil
}

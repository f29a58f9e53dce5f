package config

import (
	"errors"
	"fmt"
	"os"

	"github.com/BurntSushi/toml"
	"golang.org/x/text/unicode/norm"
)

// Load reads and parses a TOML config file, validates it, and returns the
// resulting Config. Unknown keys are fatal errors with "did you mean?"
// suggestions.
func Load(path string) (*Config, error) {
	cfg := DefaultConfig()

	md, err := toml.DecodeFile(path, cfg)
	if err != nil {
		return nil, fmt.Errorf("parsing config file %s: %w", path, err)
	}

	if err := checkUnknownKeys(&md); err != nil {
		return nil, err
	}

	normalize(cfg)

	if err := Validate(cfg); err != nil {
		return nil, fmt.Errorf("config validation failed: %w", err)
	}

	return cfg, nil
}

// LoadOrDefault reads a TOML config file if it exists, otherwise returns
// a Config populated with default values.
func LoadOrDefault(path string) (*Config, error) {
	if _, err := os.Stat(path); errors.Is(err, os.ErrNotExist) {
		return DefaultConfig(), nil
	}

	return Load(path)
}

// Resolved is a fully layered configuration plus the file it came from.
type Resolved struct {
	*Config
	Path string
}

// Resolve loads configuration and applies the override chain:
// defaults -> config file -> environment variables -> CLI flags.
func Resolve(env EnvOverrides, cli CLIOverrides) (*Resolved, error) {
	cfgPath := DefaultConfigPath()
	if env.ConfigPath != "" {
		cfgPath = env.ConfigPath
	}

	if cli.ConfigPath != "" {
		cfgPath = cli.ConfigPath
	}

	cfg, err := LoadOrDefault(cfgPath)
	if err != nil {
		return nil, err
	}

	if env.ProjectName != "" {
		cfg.Ion.ProjectName = env.ProjectName
	}

	if env.APIURL != "" {
		cfg.Ion.APIURL = env.APIURL
	}

	if cli.ProjectName != "" {
		cfg.Ion.ProjectName = cli.ProjectName
	}

	if cli.APIURL != "" {
		cfg.Ion.APIURL = cli.APIURL
	}

	if cli.ListenAddr != "" {
		cfg.Serve.ListenAddr = cli.ListenAddr
	}

	normalize(cfg)

	if err := Validate(cfg); err != nil {
		return nil, fmt.Errorf("config validation: %w", err)
	}

	return &Resolved{Config: cfg, Path: cfgPath}, nil
}

// normalize puts the project name and token suffix in NFC so the derived
// token name compares equal to what the server echoes back, regardless of
// how the user's editor or shell composed accented characters.
func normalize(cfg *Config) {
	cfg.Ion.ProjectName = norm.NFC.String(cfg.Ion.ProjectName)
	cfg.Ion.TokenSuffix = norm.NFC.String(cfg.Ion.TokenSuffix)
}

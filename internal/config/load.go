package config

import (
	"errors"
	"fmt"
	"os"
	"time"

	"github.com/BurntSushi/toml"
)

// Load reads and parses a TOML config file, validates it, and returns the
// resulting Config. Unknown keys are fatal and carry "did you mean?" hints.
func Load(path string) (*Config, error) {
	cfg := DefaultConfig()

	md, err := toml.DecodeFile(path, cfg)
	if err != nil {
		return nil, fmt.Errorf("parsing config file %s: %w", path, err)
	}

	if err := checkUnknownKeys(&md); err != nil {
		return nil, err
	}

	if err := Validate(cfg); err != nil {
		return nil, fmt.Errorf("config validation failed: %w", err)
	}

	return cfg, nil
}

// LoadOrDefault reads a TOML config file if it exists, otherwise returns
// a Config populated with all default values.
func LoadOrDefault(path string) (*Config, error) {
	if _, err := os.Stat(path); errors.Is(err, os.ErrNotExist) {
		return DefaultConfig(), nil
	}

	return Load(path)
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

	if env.TokenFile != "" {
		cfg.TokenFile = env.TokenFile
	}

	if cli.TokenFile != nil {
		cfg.TokenFile = *cli.TokenFile
	}

	if cli.PathIndex != nil {
		cfg.PathIndex = *cli.PathIndex
	}

	r, err := resolveValues(cfg)
	if err != nil {
		return nil, fmt.Errorf("config validation: %w", err)
	}

	r.ConfigPath = cfgPath
	r.AccessToken = env.AccessToken

	return r, nil
}

// resolveValues parses the string settings of an already validated Config.
func resolveValues(cfg *Config) (*Resolved, error) {
	lifetime, err := time.ParseDuration(cfg.CacheLifetime)
	if err != nil {
		return nil, fmt.Errorf("cache_lifetime: %w", err)
	}

	limit, err := ParseSize(cfg.WriteBufferLimit)
	if err != nil {
		return nil, fmt.Errorf("write_buffer_limit: %w", err)
	}

	connect, err := time.ParseDuration(cfg.ConnectTimeout)
	if err != nil {
		return nil, fmt.Errorf("connect_timeout: %w", err)
	}

	tokenFile := cfg.TokenFile
	if tokenFile == "" {
		tokenFile = DefaultTokenPath()
	}

	return &Resolved{
		APIBaseURL:       cfg.APIBaseURL,
		UploadBaseURL:    cfg.UploadBaseURL,
		CacheLifetime:    lifetime,
		PathIndex:        expandTilde(cfg.PathIndex),
		WriteBufferLimit: limit,
		ClientID:         cfg.ClientID,
		ClientSecret:     cfg.ClientSecret,
		TokenFile:        expandTilde(tokenFile),
		LogLevel:         cfg.LogLevel,
		LogFormat:        cfg.LogFormat,
		ConnectTimeout:   connect,
		UserAgent:        cfg.UserAgent,
	}, nil
}

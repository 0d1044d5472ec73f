package config

import (
	"errors"
	"fmt"
	"net/url"
	"time"
)

// Validation range constants.
const (
	minConnectTimeout = 1 * time.Second
	maxConnectTimeout = 5 * time.Minute
)

var validLogLevels = map[string]bool{
	"debug": true,
	"info":  true,
	"warn":  true,
	"error": true,
}

var validLogFormats = map[string]bool{
	"auto": true,
	"text": true,
	"json": true,
}

// Validate checks all configuration values and returns every error found,
// so one pass is enough to fix a broken file.
func Validate(cfg *Config) error {
	var errs []error

	errs = append(errs, validateDrive(&cfg.DriveConfig)...)
	errs = append(errs, validateCache(&cfg.CacheConfig)...)
	errs = append(errs, validateLogging(&cfg.LoggingConfig)...)
	errs = append(errs, validateNetwork(&cfg.NetworkConfig)...)

	return errors.Join(errs...)
}

func validateDrive(d *DriveConfig) []error {
	var errs []error

	if err := validateURL(d.APIBaseURL); err != nil {
		errs = append(errs, fmt.Errorf("api_base_url: %w", err))
	}

	if err := validateURL(d.UploadBaseURL); err != nil {
		errs = append(errs, fmt.Errorf("upload_base_url: %w", err))
	}

	return errs
}

func validateURL(raw string) error {
	u, err := url.Parse(raw)
	if err != nil {
		return err
	}

	if u.Scheme != "http" && u.Scheme != "https" {
		return fmt.Errorf("must be an http or https URL, got %q", raw)
	}

	if u.Host == "" {
		return fmt.Errorf("missing host in %q", raw)
	}

	return nil
}

func validateCache(c *CacheConfig) []error {
	var errs []error

	lifetime, err := time.ParseDuration(c.CacheLifetime)
	if err != nil {
		errs = append(errs, fmt.Errorf("cache_lifetime: invalid duration %q: %w", c.CacheLifetime, err))
	} else if lifetime < 0 {
		errs = append(errs, fmt.Errorf("cache_lifetime: must be non-negative, got %s", c.CacheLifetime))
	}

	if _, err := ParseSize(c.WriteBufferLimit); err != nil {
		errs = append(errs, fmt.Errorf("write_buffer_limit: %w", err))
	}

	return errs
}

func validateLogging(l *LoggingConfig) []error {
	var errs []error

	if !validLogLevels[l.LogLevel] {
		errs = append(errs, fmt.Errorf("log_level: must be one of debug, info, warn, error; got %q", l.LogLevel))
	}

	if !validLogFormats[l.LogFormat] {
		errs = append(errs, fmt.Errorf("log_format: must be one of auto, text, json; got %q", l.LogFormat))
	}

	return errs
}

func validateNetwork(n *NetworkConfig) []error {
	var errs []error

	timeout, err := time.ParseDuration(n.ConnectTimeout)
	if err != nil {
		errs = append(errs, fmt.Errorf("connect_timeout: invalid duration %q: %w", n.ConnectTimeout, err))
	} else if timeout < minConnectTimeout || timeout > maxConnectTimeout {
		errs = append(errs, fmt.Errorf("connect_timeout: must be between %s and %s, got %s",
			minConnectTimeout, maxConnectTimeout, n.ConnectTimeout))
	}

	if n.UserAgent == "" {
		errs = append(errs, errors.New("user_agent: must not be empty"))
	}

	return errs
}

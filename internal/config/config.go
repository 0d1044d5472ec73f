// Package config implements TOML configuration loading, validation, and
// platform-specific path resolution for drivevfs. Values flow through a
// four-layer override chain: defaults -> config file -> environment -> CLI flags.
package config

import "time"

// Config is the top-level configuration structure parsed from a TOML file.
// All keys are flat; the embedded structs only group related settings.
type Config struct {
	DriveConfig
	CacheConfig
	AuthConfig
	LoggingConfig
	NetworkConfig
}

// DriveConfig points the client at the Drive v2 API. Tests and proxies
// override the endpoints.
type DriveConfig struct {
	APIBaseURL    string `toml:"api_base_url"`
	UploadBaseURL string `toml:"upload_base_url"`
}

// CacheConfig controls the metadata cache, the path index, and how much of
// an upload body may be buffered before the target is resolved.
type CacheConfig struct {
	CacheLifetime    string `toml:"cache_lifetime"`
	PathIndex        string `toml:"path_index"`
	WriteBufferLimit string `toml:"write_buffer_limit"`
}

// AuthConfig holds the OAuth2 client registration and where the token lives.
type AuthConfig struct {
	ClientID     string `toml:"client_id"`
	ClientSecret string `toml:"client_secret"`
	TokenFile    string `toml:"token_file"`
}

// LoggingConfig controls log output.
type LoggingConfig struct {
	LogLevel  string `toml:"log_level"`
	LogFormat string `toml:"log_format"`
}

// NetworkConfig controls HTTP client behavior.
type NetworkConfig struct {
	ConnectTimeout string `toml:"connect_timeout"`
	UserAgent      string `toml:"user_agent"`
}

// Resolved is the fully merged configuration with string settings parsed
// into their typed forms. Paths are absolute after tilde expansion.
type Resolved struct {
	ConfigPath string

	APIBaseURL    string
	UploadBaseURL string

	CacheLifetime    time.Duration
	PathIndex        string
	WriteBufferLimit int64

	ClientID     string
	ClientSecret string
	TokenFile    string
	// AccessToken, when set, bypasses the token file entirely.
	AccessToken string

	LogLevel  string
	LogFormat string

	ConnectTimeout time.Duration
	UserAgent      string
}

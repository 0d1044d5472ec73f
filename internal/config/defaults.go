package config

// Default values for configuration options. These are "layer 0" of the
// override chain and work without any config file.
const (
	defaultAPIBaseURL       = "https://www.googleapis.com/drive/v2"
	defaultUploadBaseURL    = "https://www.googleapis.com/upload/drive/v2"
	defaultCacheLifetime    = "60s"
	defaultWriteBufferLimit = "0"
	defaultLogLevel         = "info"
	defaultLogFormat        = "auto"
	defaultConnectTimeout   = "10s"
	defaultUserAgent        = "drivevfs/0.1"
	defaultTokenFileName    = "token.json"
)

// DefaultConfig returns a Config populated with all default values.
// It is the starting point for TOML decoding, so unset keys keep defaults.
func DefaultConfig() *Config {
	return &Config{
		DriveConfig: DriveConfig{
			APIBaseURL:    defaultAPIBaseURL,
			UploadBaseURL: defaultUploadBaseURL,
		},
		CacheConfig: CacheConfig{
			CacheLifetime:    defaultCacheLifetime,
			WriteBufferLimit: defaultWriteBufferLimit,
		},
		LoggingConfig: LoggingConfig{
			LogLevel:  defaultLogLevel,
			LogFormat: defaultLogFormat,
		},
		NetworkConfig: NetworkConfig{
			ConnectTimeout: defaultConnectTimeout,
			UserAgent:      defaultUserAgent,
		},
	}
}

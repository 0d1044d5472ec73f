package config

import "os"

// Environment variable names for overrides.
const (
	EnvConfig      = "DRIVEVFS_CONFIG"
	EnvTokenFile   = "DRIVEVFS_TOKEN_FILE"
	EnvAccessToken = "DRIVEVFS_ACCESS_TOKEN"
)

// EnvOverrides holds values derived from environment variables.
type EnvOverrides struct {
	ConfigPath  string // DRIVEVFS_CONFIG: override config file path
	TokenFile   string // DRIVEVFS_TOKEN_FILE: override token file path
	AccessToken string // DRIVEVFS_ACCESS_TOKEN: static bearer token
}

// ReadEnvOverrides reads environment variables and returns any overrides found.
func ReadEnvOverrides() EnvOverrides {
	return EnvOverrides{
		ConfigPath:  os.Getenv(EnvConfig),
		TokenFile:   os.Getenv(EnvTokenFile),
		AccessToken: os.Getenv(EnvAccessToken),
	}
}

// CLIOverrides holds values from command-line flags. Pointer fields are nil
// when the flag was not given.
type CLIOverrides struct {
	ConfigPath string
	TokenFile  *string
	PathIndex  *string
}

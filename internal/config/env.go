package config

import "os"

// Environment variable names for overrides.
const (
	EnvConfig  = "ION_GO_CONFIG"
	EnvProject = "ION_GO_PROJECT"
	EnvAPIURL  = "ION_GO_API_URL"
)

// EnvOverrides holds values derived from environment variables.
type EnvOverrides struct {
	ConfigPath  string // ION_GO_CONFIG: config file path
	ProjectName string // ION_GO_PROJECT: project name for the asset token
	APIURL      string // ION_GO_API_URL: REST API base URL
}

// ReadEnvOverrides reads environment variables and returns any overrides
// found. It does not modify a Config; Resolve applies the fields.
func ReadEnvOverrides() EnvOverrides {
	return EnvOverrides{
		ConfigPath:  os.Getenv(EnvConfig),
		ProjectName: os.Getenv(EnvProject),
		APIURL:      os.Getenv(EnvAPIURL),
	}
}

// Package config implements TOML configuration loading, validation, and
// platform-specific path resolution for ion-go. Values come from a
// four-layer override chain: defaults -> config file -> environment -> CLI
// flags.
package config

// Config is the top-level configuration structure parsed from a TOML file.
type Config struct {
	Ion     IonConfig     `toml:"ion"`
	Session SessionConfig `toml:"session"`
	Network NetworkConfig `toml:"network"`
	Logging LoggingConfig `toml:"logging"`
	Serve   ServeConfig   `toml:"serve"`
}

// IonConfig identifies the ion deployment and the OAuth client used to
// reach it. ProjectName and TokenSuffix together name the API token the
// session looks up or creates for asset access.
type IonConfig struct {
	APIURL       string   `toml:"api_url"`
	AuthorizeURL string   `toml:"authorize_url"`
	TokenURL     string   `toml:"token_url"`
	ClientID     string   `toml:"client_id"`
	RedirectPath string   `toml:"redirect_path"`
	ProjectName  string   `toml:"project_name"`
	TokenSuffix  string   `toml:"token_suffix"`
	Scopes       []string `toml:"scopes"`
}

// SessionConfig controls the dispatcher and where the access token is kept.
type SessionConfig struct {
	PumpInterval          string `toml:"pump_interval"`
	MaxConcurrentRequests int    `toml:"max_concurrent_requests"`
	CredentialStore       string `toml:"credential_store"`
}

// NetworkConfig controls HTTP client behavior.
type NetworkConfig struct {
	ConnectTimeout    string  `toml:"connect_timeout"`
	DataTimeout       string  `toml:"data_timeout"`
	UserAgent         string  `toml:"user_agent"`
	RequestsPerSecond float64 `toml:"requests_per_second"`
}

// LoggingConfig controls log output: level and format.
type LoggingConfig struct {
	LogLevel  string `toml:"log_level"`
	LogFormat string `toml:"log_format"`
}

// ServeConfig controls the long-running serve command.
type ServeConfig struct {
	ListenAddr string `toml:"listen_addr"`
}

// Credential store backends.
const (
	CredentialStoreFile   = "file"
	CredentialStoreSQLite = "sqlite"
)

// CLIOverrides holds values from CLI flags. Empty strings mean "not
// specified".
type CLIOverrides struct {
	ConfigPath  string // --config
	ProjectName string // --project
	APIURL      string // --api-url
	ListenAddr  string // --listen (serve only)
}

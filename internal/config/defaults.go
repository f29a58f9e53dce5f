package config

// Default values for configuration options, layer 0 of the override chain.
const (
	defaultAPIURL                = "https://api.cesium.com"
	defaultAuthorizeURL          = "https://ion.cesium.com/oauth"
	defaultTokenURL              = "https://api.cesium.com/oauth/token"
	defaultClientID              = "190"
	defaultRedirectPath          = "/ion-go/oauth2/callback"
	defaultProjectName           = "ion-go"
	defaultTokenSuffix           = " (Created by ion-go)"
	defaultPumpInterval          = "50ms"
	defaultMaxConcurrentRequests = 4
	defaultCredentialStore       = CredentialStoreFile
	defaultConnectTimeout        = "10s"
	defaultDataTimeout           = "60s"
	defaultRequestsPerSecond     = 10
	defaultLogLevel              = "info"
	defaultLogFormat             = "auto"
	defaultListenAddr            = "127.0.0.1:8765"
)

// defaultScopes are the OAuth scopes requested at authorization time.
var defaultScopes = []string{"assets:list", "assets:read", "profile:read", "tokens:read", "tokens:write", "geocode"}

// DefaultConfig returns a Config populated with all default values. It is
// both the decode target for TOML (so unset fields keep their defaults) and
// the fallback when no config file exists.
func DefaultConfig() *Config {
	return &Config{
		Ion:     defaultIonConfig(),
		Session: defaultSessionConfig(),
		Network: defaultNetworkConfig(),
		Logging: defaultLoggingConfig(),
		Serve:   ServeConfig{ListenAddr: defaultListenAddr},
	}
}

func defaultIonConfig() IonConfig {
	scopes := make([]string, len(defaultScopes))
	copy(scopes, defaultScopes)

	return IonConfig{
		APIURL:       defaultAPIURL,
		AuthorizeURL: defaultAuthorizeURL,
		TokenURL:     defaultTokenURL,
		ClientID:     defaultClientID,
		RedirectPath: defaultRedirectPath,
		ProjectName:  defaultProjectName,
		TokenSuffix:  defaultTokenSuffix,
		Scopes:       scopes,
	}
}

func defaultSessionConfig() SessionConfig {
	return SessionConfig{
		PumpInterval:          defaultPumpInterval,
		MaxConcurrentRequests: defaultMaxConcurrentRequests,
		CredentialStore:       defaultCredentialStore,
	}
}

func defaultNetworkConfig() NetworkConfig {
	return NetworkConfig{
		ConnectTimeout:    defaultConnectTimeout,
		DataTimeout:       defaultDataTimeout,
		RequestsPerSecond: defaultRequestsPerSecond,
	}
}

func defaultLoggingConfig() LoggingConfig {
	return LoggingConfig{
		LogLevel:  defaultLogLevel,
		LogFormat: defaultLogFormat,
	}
}

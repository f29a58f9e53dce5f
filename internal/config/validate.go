package config

import (
	"errors"
	"fmt"
	"net"
	"net/url"
	"strings"
	"time"
)

// Validation range constants.
const (
	minConcurrentRequests = 1
	maxConcurrentRequests = 32
	minPumpInterval       = 1 * time.Millisecond
	maxPumpInterval       = 5 * time.Second
	minConnectTimeout     = 1 * time.Second
	minDataTimeout        = 5 * time.Second
	maxRequestsPerSecond  = 1000
)

// Validate checks all configuration values and returns all errors found,
// so users can fix every issue in one pass.
func Validate(cfg *Config) error {
	var errs []error

	errs = append(errs, validateIon(&cfg.Ion)...)
	errs = append(errs, validateSession(&cfg.Session)...)
	errs = append(errs, validateNetwork(&cfg.Network)...)
	errs = append(errs, validateLogging(&cfg.Logging)...)
	errs = append(errs, validateServe(&cfg.Serve)...)

	return errors.Join(errs...)
}

func validateIon(c *IonConfig) []error {
	var errs []error

	errs = append(errs, validateURL("api_url", c.APIURL)...)
	errs = append(errs, validateURL("authorize_url", c.AuthorizeURL)...)
	errs = append(errs, validateURL("token_url", c.TokenURL)...)

	if c.ClientID == "" {
		errs = append(errs, errors.New("client_id: must not be empty"))
	}

	if !strings.HasPrefix(c.RedirectPath, "/") {
		errs = append(errs, fmt.Errorf("redirect_path: must start with /, got %q", c.RedirectPath))
	}

	if strings.TrimSpace(c.ProjectName) == "" {
		errs = append(errs, errors.New("project_name: must not be empty"))
	}

	for _, s := range c.Scopes {
		if s == "" || strings.ContainsAny(s, " \t") {
			errs = append(errs, fmt.Errorf("scopes: invalid scope %q", s))
		}
	}

	return errs
}

func validateURL(field, value string) []error {
	u, err := url.Parse(value)
	if err != nil {
		return []error{fmt.Errorf("%s: %w", field, err)}
	}

	if u.Scheme != "http" && u.Scheme != "https" {
		return []error{fmt.Errorf("%s: must be an http or https URL, got %q", field, value)}
	}

	if u.Host == "" {
		return []error{fmt.Errorf("%s: missing host in %q", field, value)}
	}

	return nil
}

func validateSession(s *SessionConfig) []error {
	var errs []error

	if d, err := time.ParseDuration(s.PumpInterval); err != nil {
		errs = append(errs, fmt.Errorf("pump_interval: invalid duration %q: %w", s.PumpInterval, err))
	} else if d < minPumpInterval || d > maxPumpInterval {
		errs = append(errs, fmt.Errorf("pump_interval: must be between %s and %s, got %s",
			minPumpInterval, maxPumpInterval, d))
	}

	if s.MaxConcurrentRequests < minConcurrentRequests || s.MaxConcurrentRequests > maxConcurrentRequests {
		errs = append(errs, fmt.Errorf("max_concurrent_requests: must be between %d and %d, got %d",
			minConcurrentRequests, maxConcurrentRequests, s.MaxConcurrentRequests))
	}

	switch s.CredentialStore {
	case CredentialStoreFile, CredentialStoreSQLite:
	default:
		errs = append(errs, fmt.Errorf("credential_store: must be one of file, sqlite; got %q", s.CredentialStore))
	}

	return errs
}

// validateDuration checks that a duration string is valid and meets a minimum.
func validateDuration(field, value string, minimum time.Duration) error {
	d, err := time.ParseDuration(value)
	if err != nil {
		return fmt.Errorf("%s: invalid duration %q: %w", field, value, err)
	}

	if d < minimum {
		return fmt.Errorf("%s: must be >= %s, got %s", field, minimum, d)
	}

	return nil
}

func validateNetwork(n *NetworkConfig) []error {
	var errs []error

	if err := validateDuration("connect_timeout", n.ConnectTimeout, minConnectTimeout); err != nil {
		errs = append(errs, err)
	}

	if err := validateDuration("data_timeout", n.DataTimeout, minDataTimeout); err != nil {
		errs = append(errs, err)
	}

	if n.RequestsPerSecond < 0 || n.RequestsPerSecond > maxRequestsPerSecond {
		errs = append(errs, fmt.Errorf("requests_per_second: must be between 0 and %d, got %g",
			maxRequestsPerSecond, n.RequestsPerSecond))
	}

	return errs
}

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

func validateServe(s *ServeConfig) []error {
	if _, _, err := net.SplitHostPort(s.ListenAddr); err != nil {
		return []error{fmt.Errorf("listen_addr: %w", err)}
	}

	return nil
}

// Durations returns the parsed timeouts and pump interval. Validate has
// already checked them, so parse errors cannot occur on a validated Config.
func (c *Config) Durations() (pump, connect, data time.Duration) {
	pump, _ = time.ParseDuration(c.Session.PumpInterval)
	connect, _ = time.ParseDuration(c.Network.ConnectTimeout)
	data, _ = time.ParseDuration(c.Network.DataTimeout)

	return pump, connect, data
}

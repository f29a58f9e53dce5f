package config

import (
	"os"
	"path/filepath"
	"runtime"
)

// Platform identifiers.
const (
	platformLinux  = "linux"
	platformDarwin = "darwin"
)

// Application directory name used across all platforms.
const appName = "ion-go"

// File names inside the config and data directories.
const (
	configFileName     = "config.toml"
	credentialFileName = "credentials.json"
	settingsDBFileName = "settings.db"
	servePIDFileName   = "serve.pid"
)

// DefaultConfigDir returns the platform-specific directory for config files.
// On Linux, respects XDG_CONFIG_HOME (defaults to ~/.config/ion-go).
// On macOS, uses ~/Library/Application Support/ion-go.
// Other platforms fall back to ~/.config/ion-go.
func DefaultConfigDir() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return ""
	}

	switch runtime.GOOS {
	case platformLinux:
		return xdgDir("XDG_CONFIG_HOME", filepath.Join(home, ".config"))
	case platformDarwin:
		return filepath.Join(home, "Library", "Application Support", appName)
	default:
		return filepath.Join(home, ".config", appName)
	}
}

// DefaultDataDir returns the platform-specific directory for application
// data (the credential file and settings database).
// On Linux, respects XDG_DATA_HOME (defaults to ~/.local/share/ion-go).
// On macOS, config and data share ~/Library/Application Support/ion-go.
func DefaultDataDir() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return ""
	}

	switch runtime.GOOS {
	case platformLinux:
		return xdgDir("XDG_DATA_HOME", filepath.Join(home, ".local", "share"))
	case platformDarwin:
		return filepath.Join(home, "Library", "Application Support", appName)
	default:
		return filepath.Join(home, ".local", "share", appName)
	}
}

// xdgDir returns $env/ion-go when env is set, otherwise fallback/ion-go.
func xdgDir(env, fallback string) string {
	if dir := os.Getenv(env); dir != "" {
		return filepath.Join(dir, appName)
	}

	return filepath.Join(fallback, appName)
}

// DefaultConfigPath returns the full path to the default config file.
func DefaultConfigPath() string {
	return joinIfDir(DefaultConfigDir(), configFileName)
}

// CredentialFilePath returns the path of the JSON credential file used by
// the "file" credential store.
func CredentialFilePath() string {
	return joinIfDir(DefaultDataDir(), credentialFileName)
}

// SettingsDBPath returns the path of the SQLite database used by the
// "sqlite" credential store.
func SettingsDBPath() string {
	return joinIfDir(DefaultDataDir(), settingsDBFileName)
}

func joinIfDir(dir, name string) string {
	if dir == "" {
		return ""
	}

	return filepath.Join(dir, name)
}

// ServePIDPath returns the PID file that makes serve single-instance and
// lets "reload" find the running process.
func ServePIDPath() string {
	return joinIfDir(DefaultDataDir(), servePIDFileName)
}

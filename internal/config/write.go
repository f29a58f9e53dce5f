package config

import (
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
)

// configFilePermissions is the permission mode for config files.
const configFilePermissions = 0o644

// configDirPermissions is the permission mode for config directories.
const configDirPermissions = 0o755

// ErrConfigExists is returned by WriteTemplate when the target file exists.
var ErrConfigExists = errors.New("config file already exists")

// configTemplate is the content written by "config init". Every setting is
// present as a commented-out default so users can discover options
// without reading docs.
const configTemplate = `# ion-go configuration

[ion]
# api_url       = "https://api.cesium.com"
# authorize_url = "https://ion.cesium.com/oauth"
# token_url     = "https://api.cesium.com/oauth/token"
# client_id     = "190"
# redirect_path = "/ion-go/oauth2/callback"

# The asset access token is named project_name + token_suffix.
# project_name  = "ion-go"
# token_suffix  = " (Created by ion-go)"

[session]
# pump_interval           = "50ms"
# max_concurrent_requests = 4
# Where the access token is kept: "file" or "sqlite"
# credential_store        = "file"

[network]
# connect_timeout     = "10s"
# data_timeout        = "60s"
# user_agent          = ""
# requests_per_second = 10

[logging]
# debug, info, warn, error
# log_level  = "info"
# auto, text, json
# log_format = "auto"

[serve]
# listen_addr = "127.0.0.1:8765"
`

// WriteTemplate writes the commented default config to path. It refuses
// to overwrite an existing file.
func WriteTemplate(path string) error {
	if _, err := os.Stat(path); err == nil {
		return fmt.Errorf("%w: %s", ErrConfigExists, path)
	}

	slog.Info("writing config template", slog.String("path", path))

	return atomicWriteFile(path, []byte(configTemplate))
}

// atomicWriteFile writes data to a temp file in the target directory and
// renames it into place, creating parent directories as needed.
func atomicWriteFile(path string, data []byte) error {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, configDirPermissions); err != nil {
		return fmt.Errorf("creating config directory: %w", err)
	}

	f, err := os.CreateTemp(dir, ".config-*.tmp")
	if err != nil {
		return fmt.Errorf("creating temp file: %w", err)
	}

	tempPath := f.Name()

	succeeded := false
	defer func() {
		if !succeeded {
			os.Remove(tempPath)
		}
	}()

	if _, err := f.Write(data); err != nil {
		f.Close()

		return fmt.Errorf("writing temp file: %w", err)
	}

	if err := f.Close(); err != nil {
		return fmt.Errorf("closing temp file: %w", err)
	}

	if err := os.Chmod(tempPath, configFilePermissions); err != nil {
		return fmt.Errorf("setting file permissions: %w", err)
	}

	if err := os.Rename(tempPath, path); err != nil {
		return fmt.Errorf("renaming temp file: %w", err)
	}

	succeeded = true

	return nil
}

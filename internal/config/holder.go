package config

import "sync"

// Holder provides thread-safe access to a mutable *Config and an immutable
// config file path. The serve command swaps the config on SIGHUP and
// readers see the new snapshot on their next call.
type Holder struct {
	mu   sync.RWMutex
	cfg  *Config
	path string // immutable after construction
}

// NewHolder creates a Holder with the initial config and config file path.
func NewHolder(cfg *Config, path string) *Holder {
	return &Holder{
		cfg:  cfg,
		path: path,
	}
}

// Config returns the current config snapshot.
func (h *Holder) Config() *Config {
	h.mu.RLock()
	defer h.mu.RUnlock()

	return h.cfg
}

// Path returns the config file path.
func (h *Holder) Path() string {
	return h.path
}

// Reload re-reads the config file and swaps it in when it is valid. On
// error the previous config stays in place.
func (h *Holder) Reload() (*Config, error) {
	cfg, err := LoadOrDefault(h.path)
	if err != nil {
		return nil, err
	}

	h.mu.Lock()
	h.cfg = cfg
	h.mu.Unlock()

	return cfg, nil
}

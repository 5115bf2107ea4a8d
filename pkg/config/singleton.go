package config

import (
	"fmt"
	"sync"
)

var (
	// globalConfig holds the configuration loaded by Initialize.
	globalConfig *Config

	configMutex sync.RWMutex
	initOnce    sync.Once
)

// Initialize loads configuration from path (which may be empty) with
// environment overrides and stores it for GetConfig. Only the first call
// loads anything; later calls return nil.
func Initialize(path string) error {
	var initErr error

	initOnce.Do(func() {
		cfg, err := LoadConfigWithEnvOverrides(path)
		if err != nil {
			initErr = err
			return
		}
		SetConfig(cfg)
	})

	return initErr
}

// GetConfig returns the configuration stored by Initialize, or nil.
//
// Library packages take their settings as arguments; the global is only
// read by the command line entry points.
func GetConfig() *Config {
	configMutex.RLock()
	defer configMutex.RUnlock()
	return globalConfig
}

// SetConfig replaces the global configuration. Intended for tests.
func SetConfig(cfg *Config) {
	configMutex.Lock()
	defer configMutex.Unlock()
	globalConfig = cfg
}

// ReloadConfig loads path again and swaps it in. On error the current
// configuration stays in place.
func ReloadConfig(path string) error {
	cfg, err := LoadConfigWithEnvOverrides(path)
	if err != nil {
		return fmt.Errorf("failed to reload configuration: %w", err)
	}
	SetConfig(cfg)
	return nil
}

// MustGetConfig is GetConfig that panics when Initialize has not run.
func MustGetConfig() *Config {
	cfg := GetConfig()
	if cfg == nil {
		panic("configuration not initialized: call Initialize first")
	}
	return cfg
}

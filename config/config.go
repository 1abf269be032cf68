// Package config loads the ambient settings around the handshake engine:
// where the static key is persisted, session timeouts, and log level. The
// engine and vault packages take no configuration themselves — every field
// here configures a collaborator (session.Manager, vault.StaticKeyStore).
package config

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

// EngineConfig is the top-level configuration for a Noise_XX deployment.
type EngineConfig struct {
	// StaticKeyPath is the directory StaticKeyStore uses for encrypted
	// at-rest persistence of the local static identity key.
	StaticKeyPath string `yaml:"static_key_path"`
	// ReplayStorePath is the directory the session replay guard uses to
	// persist used handshake ephemeral keys across restarts.
	ReplayStorePath string `yaml:"replay_store_path"`

	Session  SessionConfig `yaml:"session"`
	LogLevel string        `yaml:"log_level"`
}

// SessionConfig configures session.Manager's timeout behavior. Durations
// are expressed in whole seconds in YAML — yaml.v3 has no built-in
// time.Duration decoder, so the loader takes plain integers and the
// HandshakeTimeout, IdleTimeout and CleanupInterval methods convert them.
type SessionConfig struct {
	HandshakeTimeoutSeconds int `yaml:"handshake_timeout_seconds"`
	IdleTimeoutSeconds      int `yaml:"idle_timeout_seconds"`
	CleanupIntervalSeconds  int `yaml:"cleanup_interval_seconds"`
}

// HandshakeTimeout returns the configured handshake timeout as a Duration.
func (s SessionConfig) HandshakeTimeout() time.Duration {
	return time.Duration(s.HandshakeTimeoutSeconds) * time.Second
}

// IdleTimeout returns the configured idle timeout as a Duration.
func (s SessionConfig) IdleTimeout() time.Duration {
	return time.Duration(s.IdleTimeoutSeconds) * time.Second
}

// CleanupInterval returns the configured cleanup sweep interval as a Duration.
func (s SessionConfig) CleanupInterval() time.Duration {
	return time.Duration(s.CleanupIntervalSeconds) * time.Second
}

// DefaultEngineConfig returns a config with sensible defaults.
func DefaultEngineConfig() *EngineConfig {
	return &EngineConfig{
		StaticKeyPath:   "/var/lib/noisexx/keys",
		ReplayStorePath: "/var/lib/noisexx/replay",
		Session: SessionConfig{
			HandshakeTimeoutSeconds: 30,
			IdleTimeoutSeconds:      300,
			CleanupIntervalSeconds:  10,
		},
		LogLevel: "info",
	}
}

// LoadEngineConfig loads a config from a YAML file, starting from
// DefaultEngineConfig so that unset fields retain their defaults.
func LoadEngineConfig(path string) (*EngineConfig, error) {
	cfg := DefaultEngineConfig()
	if err := loadYAML(path, cfg); err != nil {
		return nil, fmt.Errorf("config: failed to load engine config: %w", err)
	}
	return cfg, nil
}

func loadYAML(path string, out interface{}) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return err
	}
	return yaml.Unmarshal(data, out)
}

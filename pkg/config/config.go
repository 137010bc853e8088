// Package config resolves runtime configuration from environment
// variables and an optional YAML profile.
package config

import (
	"os"
	"path/filepath"
)

// Environment variable names understood by every entry point.
const (
	// EnvDanger arms destructive operations; must be exactly "1".
	EnvDanger = "SECUREWIPE_DANGER"
	// EnvISOMode declares a live/ISO environment where the root
	// filesystem is not on the target media.
	EnvISOMode = "SECUREWIPE_ISO_MODE"
	// EnvSignKeyPath points at the Ed25519 signing key PEM.
	EnvSignKeyPath = "SECUREWIPE_SIGN_KEY_PATH"
	// EnvPubKeyPath points at the verification public key PEM.
	EnvPubKeyPath = "SECUREWIPE_PUBKEY_PATH"
	// EnvHome overrides where certificates and the index database live.
	EnvHome = "SECUREWIPE_HOME"
	// EnvLogLevel sets the slog level (DEBUG, INFO, WARN, ERROR).
	EnvLogLevel = "SECUREWIPE_LOG_LEVEL"
)

// Config holds resolved runtime settings.
type Config struct {
	Danger      bool
	ISOMode     bool
	SignKeyPath string
	PubKeyPath  string
	Home        string
	LogLevel    string
}

// Load reads configuration from the environment.
func Load() *Config {
	home := os.Getenv(EnvHome)
	if home == "" {
		userHome, err := os.UserHomeDir()
		if err != nil {
			userHome = "."
		}
		home = filepath.Join(userHome, "SecureWipe")
	}

	logLevel := os.Getenv(EnvLogLevel)
	if logLevel == "" {
		logLevel = "INFO"
	}

	return &Config{
		Danger:      os.Getenv(EnvDanger) == "1",
		ISOMode:     os.Getenv(EnvISOMode) == "1",
		SignKeyPath: os.Getenv(EnvSignKeyPath),
		PubKeyPath:  os.Getenv(EnvPubKeyPath),
		Home:        home,
		LogLevel:    logLevel,
	}
}

// Package config resolves the auth settings attached to every API request.
//
// Resolution order, highest priority first: explicit overrides, environment
// variables, TOML config file, built-in defaults. The config file location
// itself resolves from an explicit path, the PLUSLOAD_CONFIG_FILE variable,
// or ./.plusload.toml when present.
package config

import (
	"fmt"
	"os"

	"github.com/pelletier/go-toml/v2"
)

// DefaultConfigFile is probed in the working directory when no explicit
// path or env override selects a config file.
const DefaultConfigFile = ".plusload.toml"

// EnvConfigFile selects the config file location from the environment.
const EnvConfigFile = "PLUSLOAD_CONFIG_FILE"

// AuthSettings are the application/auth query parameters required by the
// API. Immutable once resolved.
type AuthSettings struct {
	AppVer string
	OS     string
	OSVer  string
	Secret string
}

// QueryParams returns the settings as API query parameters.
func (a AuthSettings) QueryParams() map[string]string {
	return map[string]string{
		"app_ver": a.AppVer,
		"os":      a.OS,
		"os_ver":  a.OSVer,
		"secret":  a.Secret,
	}
}

func defaults() AuthSettings {
	return AuthSettings{
		AppVer: "97",
		OS:     "ios",
		OSVer:  "18.1",
		Secret: "f40080bcb01a9a963912f46688d411a3",
	}
}

type authFile struct {
	Auth struct {
		AppVer *string `toml:"app_ver"`
		OS     *string `toml:"os"`
		OSVer  *string `toml:"os_ver"`
		Secret *string `toml:"secret"`
	} `toml:"auth"`
}

func applyFile(settings *AuthSettings, path string) error {
	raw, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil
		}
		return fmt.Errorf("read config file: %w", err)
	}
	var parsed authFile
	if err := toml.Unmarshal(raw, &parsed); err != nil {
		return fmt.Errorf("parse config file %s: %w", path, err)
	}
	if parsed.Auth.AppVer != nil {
		settings.AppVer = *parsed.Auth.AppVer
	}
	if parsed.Auth.OS != nil {
		settings.OS = *parsed.Auth.OS
	}
	if parsed.Auth.OSVer != nil {
		settings.OSVer = *parsed.Auth.OSVer
	}
	if parsed.Auth.Secret != nil {
		settings.Secret = *parsed.Auth.Secret
	}
	return nil
}

func resolveConfigFile(explicit string, getenv func(string) string) string {
	if explicit != "" {
		return explicit
	}
	if fromEnv := getenv(EnvConfigFile); fromEnv != "" {
		return fromEnv
	}
	if info, err := os.Stat(DefaultConfigFile); err == nil && !info.IsDir() {
		return DefaultConfigFile
	}
	return ""
}

func applyEnv(settings *AuthSettings, getenv func(string) string) {
	if v := getenv("APP_VER"); v != "" {
		settings.AppVer = v
	}
	if v := getenv("OS"); v != "" {
		settings.OS = v
	}
	if v := getenv("OS_VER"); v != "" {
		settings.OSVer = v
	}
	if v := getenv("SECRET"); v != "" {
		settings.Secret = v
	}
}

// Option mutates settings after file and env resolution. Options win over
// every other layer.
type Option func(*AuthSettings)

// WithSecret overrides the API secret.
func WithSecret(secret string) Option {
	return func(a *AuthSettings) { a.Secret = secret }
}

// WithAppVer overrides the reported app version.
func WithAppVer(appVer string) Option {
	return func(a *AuthSettings) { a.AppVer = appVer }
}

// LoadAuthSettings resolves auth settings with layered priority. configFile
// may be empty; getenv may be nil to use the process environment.
func LoadAuthSettings(configFile string, getenv func(string) string, opts ...Option) (AuthSettings, error) {
	if getenv == nil {
		getenv = os.Getenv
	}
	settings := defaults()
	if path := resolveConfigFile(configFile, getenv); path != "" {
		if err := applyFile(&settings, path); err != nil {
			return AuthSettings{}, err
		}
	}
	applyEnv(&settings, getenv)
	for _, opt := range opts {
		opt(&settings)
	}
	return settings, nil
}

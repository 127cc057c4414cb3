package config

import (
	"encoding/hex"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/gorilla/securecookie"
)

const (
	defaultCookieName    = "sid"
	defaultSessionMaxAge = 7 * 24 * time.Hour

	lenientFrontendURL = "http://localhost:3000"
	lenientPort        = 3001
)

// Required variables for the backend, checked in this order.
const (
	EnvFrontendURL   = "FRONTEND_URL"
	EnvSessionSecret = "SESSION_SECRET"
	EnvPort          = "PORT"
)

// Config aggregates the backend runtime configuration resolved from multiple sources.
// Precedence: CLI flags > Environment variables > .env file > YAML config > Defaults
type Config struct {
	ServerConfig

	Environment string
	// FrontendURL is the single origin allowed to make credentialed cross-origin calls.
	FrontendURL string
	Session     SessionConfig

	// Lenient fills in missing required settings instead of failing.
	Lenient bool
	// Defaulted names the required settings lenient mode had to fill in.
	Defaulted []string
}

// SessionConfig controls the signed session cookie.
type SessionConfig struct {
	Secret     string
	CookieName string
	MaxAge     time.Duration
	Secure     bool
}

// yamlConfig represents the backend YAML configuration file structure.
type yamlConfig struct {
	yamlServer  `yaml:",inline"`
	FrontendURL string      `yaml:"frontend_url"`
	Session     yamlSession `yaml:"session"`
	Lenient     *bool       `yaml:"lenient"`
}

type yamlSession struct {
	Secret     string `yaml:"secret"`
	CookieName string `yaml:"cookie_name"`
	MaxAge     string `yaml:"max_age"`
	Secure     *bool  `yaml:"secure"`
}

// CLIOverrides holds command-line flag overrides.
type CLIOverrides struct {
	ConfigFile      string
	EnvFile         string
	Port            *string
	FrontendURL     *string
	Lenient         bool
	InsecureCookies bool
	RateLimitRPS    *float64
	RateLimitBurst  *int
}

// Load extracts the backend configuration from multiple sources with precedence:
// CLI flags > Environment variables > .env file > YAML config > Defaults.
// FRONTEND_URL, SESSION_SECRET and PORT must resolve to a value unless lenient
// mode is enabled.
func Load(overrides *CLIOverrides) (Config, error) {
	cfg := defaultConfig()
	var port string

	// Load from YAML file if specified
	envFile := ""
	if overrides != nil {
		envFile = overrides.EnvFile
		if overrides.ConfigFile != "" {
			var doc yamlConfig
			if err := loadFromFile(overrides.ConfigFile, &doc); err != nil {
				return Config{}, fmt.Errorf("load YAML config: %w", err)
			}
			if err := applyYAMLConfig(&cfg, &port, doc); err != nil {
				return Config{}, fmt.Errorf("load YAML config: %w", err)
			}
		}
	}

	// Apply environment variables (override YAML)
	vars, err := readEnv(envFile)
	if err != nil {
		return Config{}, err
	}
	applyEnvConfig(&cfg, &port, vars)

	// Apply CLI overrides (highest precedence)
	if overrides != nil {
		applyCLIOverrides(&cfg, &port, overrides)
	}

	if err := resolveRequired(&cfg, port); err != nil {
		return Config{}, err
	}

	// Validate final configuration
	if err := validateConfig(cfg); err != nil {
		return Config{}, err
	}

	return cfg, nil
}

// defaultConfig returns a Config with default values. Required settings have no default.
func defaultConfig() Config {
	return Config{
		ServerConfig: defaultServerConfig(),
		Environment:  defaultEnvironment,
		Session: SessionConfig{
			CookieName: defaultCookieName,
			MaxAge:     defaultSessionMaxAge,
			Secure:     true,
		},
	}
}

// applyYAMLConfig applies YAML configuration to the Config struct.
func applyYAMLConfig(cfg *Config, port *string, doc yamlConfig) error {
	if err := applyYAMLServer(&cfg.ServerConfig, &cfg.Environment, port, doc.yamlServer); err != nil {
		return err
	}

	if doc.FrontendURL != "" {
		cfg.FrontendURL = doc.FrontendURL
	}
	if doc.Session.Secret != "" {
		cfg.Session.Secret = doc.Session.Secret
	}
	if doc.Session.CookieName != "" {
		cfg.Session.CookieName = doc.Session.CookieName
	}
	if doc.Session.MaxAge != "" {
		d, err := time.ParseDuration(doc.Session.MaxAge)
		if err != nil {
			return fmt.Errorf("parse session.max_age: %w", err)
		}
		cfg.Session.MaxAge = d
	}
	if doc.Session.Secure != nil {
		cfg.Session.Secure = *doc.Session.Secure
	}
	if doc.Lenient != nil {
		cfg.Lenient = *doc.Lenient
	}
	return nil
}

// applyEnvConfig applies environment variable configuration.
func applyEnvConfig(cfg *Config, port *string, vars envVars) {
	applyEnvServer(&cfg.ServerConfig, &cfg.Environment, port, vars)

	if value := strings.TrimSpace(vars.FrontendURL); value != "" {
		cfg.FrontendURL = value
	}
	if value := strings.TrimSpace(vars.SessionSecret); value != "" {
		cfg.Session.Secret = value
	}
	if value := strings.TrimSpace(vars.SessionSecure); value != "" {
		if secure, err := strconv.ParseBool(value); err == nil {
			cfg.Session.Secure = secure
		}
	}
}

// applyCLIOverrides applies command-line flag overrides.
func applyCLIOverrides(cfg *Config, port *string, overrides *CLIOverrides) {
	if overrides.Port != nil && *overrides.Port != "" {
		*port = *overrides.Port
	}

	if overrides.FrontendURL != nil && *overrides.FrontendURL != "" {
		cfg.FrontendURL = *overrides.FrontendURL
	}

	if overrides.Lenient {
		cfg.Lenient = true
	}

	if overrides.InsecureCookies {
		cfg.Session.Secure = false
	}

	if overrides.RateLimitRPS != nil && *overrides.RateLimitRPS >= 0 {
		cfg.RateLimitRPS = *overrides.RateLimitRPS
	}

	if overrides.RateLimitBurst != nil && *overrides.RateLimitBurst >= 0 {
		cfg.RateLimitBurst = *overrides.RateLimitBurst
	}
}

// resolveRequired enforces FRONTEND_URL, SESSION_SECRET and PORT. In lenient
// mode the missing ones are defaulted and recorded in cfg.Defaulted.
func resolveRequired(cfg *Config, port string) error {
	required := []struct {
		name    string
		present bool
		fill    func() error
	}{
		{EnvFrontendURL, cfg.FrontendURL != "", func() error {
			cfg.FrontendURL = lenientFrontendURL
			return nil
		}},
		{EnvSessionSecret, cfg.Session.Secret != "", func() error {
			secret, err := generateSecret()
			if err != nil {
				return err
			}
			cfg.Session.Secret = secret
			return nil
		}},
		{EnvPort, strings.TrimSpace(port) != "", func() error {
			port = strconv.Itoa(lenientPort)
			return nil
		}},
	}

	for _, r := range required {
		if r.present {
			continue
		}
		if !cfg.Lenient {
			return missing(r.name)
		}
		if err := r.fill(); err != nil {
			return fmt.Errorf("default %s: %w", r.name, err)
		}
		cfg.Defaulted = append(cfg.Defaulted, r.name)
	}

	value, err := parsePort(port)
	if err != nil {
		return err
	}
	cfg.Port = value

	origin, err := normalizeOrigin(cfg.FrontendURL)
	if err != nil {
		return err
	}
	cfg.FrontendURL = origin
	return nil
}

// generateSecret returns a random hex secret valid for the lifetime of the process.
func generateSecret() (string, error) {
	key := securecookie.GenerateRandomKey(32)
	if key == nil {
		return "", fmt.Errorf("generate random session secret")
	}
	return hex.EncodeToString(key), nil
}

// validateConfig validates the final configuration.
func validateConfig(cfg Config) error {
	if err := validateServer(cfg.ServerConfig); err != nil {
		return err
	}
	if cfg.Session.CookieName == "" {
		return fmt.Errorf("session cookie name cannot be empty")
	}
	if cfg.Session.MaxAge <= 0 {
		return fmt.Errorf("session max age must be positive")
	}
	return nil
}

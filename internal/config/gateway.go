package config

import (
	"fmt"
	"strings"
)

const (
	defaultGatewayPort = "3000"

	// EnvBackendURL names the origin the gateway forwards /api traffic to.
	EnvBackendURL = "NEXT_PUBLIC_BACKEND_URL"
)

// GatewayConfig aggregates the gateway runtime configuration.
// Precedence: CLI flags > Environment variables > .env file > YAML config > Defaults
type GatewayConfig struct {
	ServerConfig

	Environment string
	// BackendURL is the absolute URL /api/:path* is rewritten onto, without a trailing slash.
	BackendURL string
	// StaticDir holds frontend assets served for non-API paths. Empty disables static serving.
	StaticDir string
}

type yamlGatewayConfig struct {
	yamlServer `yaml:",inline"`
	BackendURL string `yaml:"backend_url"`
	StaticDir  string `yaml:"static_dir"`
}

// GatewayOverrides holds command-line flag overrides for the gateway.
type GatewayOverrides struct {
	ConfigFile     string
	EnvFile        string
	Port           *string
	BackendURL     *string
	StaticDir      *string
	RateLimitRPS   *float64
	RateLimitBurst *int
}

// LoadGateway resolves the gateway configuration. NEXT_PUBLIC_BACKEND_URL is
// required; PORT defaults to 3000.
func LoadGateway(overrides *GatewayOverrides) (GatewayConfig, error) {
	cfg := GatewayConfig{
		ServerConfig: defaultServerConfig(),
		Environment:  defaultEnvironment,
	}
	port := defaultGatewayPort

	envFile := ""
	if overrides != nil {
		envFile = overrides.EnvFile
		if overrides.ConfigFile != "" {
			var doc yamlGatewayConfig
			if err := loadFromFile(overrides.ConfigFile, &doc); err != nil {
				return GatewayConfig{}, fmt.Errorf("load YAML config: %w", err)
			}
			if err := applyYAMLServer(&cfg.ServerConfig, &cfg.Environment, &port, doc.yamlServer); err != nil {
				return GatewayConfig{}, fmt.Errorf("load YAML config: %w", err)
			}
			if doc.BackendURL != "" {
				cfg.BackendURL = doc.BackendURL
			}
			if doc.StaticDir != "" {
				cfg.StaticDir = doc.StaticDir
			}
		}
	}

	vars, err := readEnv(envFile)
	if err != nil {
		return GatewayConfig{}, err
	}
	applyEnvServer(&cfg.ServerConfig, &cfg.Environment, &port, vars)
	if value := strings.TrimSpace(vars.BackendURL); value != "" {
		cfg.BackendURL = value
	}
	if value := strings.TrimSpace(vars.StaticDir); value != "" {
		cfg.StaticDir = value
	}

	if overrides != nil {
		applyGatewayOverrides(&cfg, &port, overrides)
	}

	if strings.TrimSpace(cfg.BackendURL) == "" {
		return GatewayConfig{}, missing(EnvBackendURL)
	}
	backend, err := parseHTTPURL(cfg.BackendURL)
	if err != nil {
		return GatewayConfig{}, fmt.Errorf("%w %q: %v", ErrInvalidBackendURL, cfg.BackendURL, err)
	}
	if backend.RawQuery != "" || backend.Fragment != "" {
		return GatewayConfig{}, fmt.Errorf("%w %q: query and fragment are not allowed", ErrInvalidBackendURL, cfg.BackendURL)
	}
	cfg.BackendURL = strings.TrimRight(backend.String(), "/")

	value, err := parsePort(port)
	if err != nil {
		return GatewayConfig{}, err
	}
	cfg.Port = value

	if err := validateServer(cfg.ServerConfig); err != nil {
		return GatewayConfig{}, err
	}
	return cfg, nil
}

func applyGatewayOverrides(cfg *GatewayConfig, port *string, overrides *GatewayOverrides) {
	if overrides.Port != nil && *overrides.Port != "" {
		*port = *overrides.Port
	}
	if overrides.BackendURL != nil && *overrides.BackendURL != "" {
		cfg.BackendURL = *overrides.BackendURL
	}
	if overrides.StaticDir != nil && *overrides.StaticDir != "" {
		cfg.StaticDir = *overrides.StaticDir
	}
	if overrides.RateLimitRPS != nil && *overrides.RateLimitRPS >= 0 {
		cfg.RateLimitRPS = *overrides.RateLimitRPS
	}
	if overrides.RateLimitBurst != nil && *overrides.RateLimitBurst >= 0 {
		cfg.RateLimitBurst = *overrides.RateLimitBurst
	}
}

package config

import (
	"errors"
	"fmt"
	"io/fs"
	"net"
	"net/url"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"go-simpler.org/env"
	"gopkg.in/yaml.v3"
)

const (
	defaultEnvFile        = ".env"
	defaultEnvironment    = "development"
	productionEnvironment = "production"
	defaultRateLimitRPS   = 25.0
	defaultRateLimitBurst = 50
)

// ServerConfig holds the listener settings shared by every process.
type ServerConfig struct {
	Host                 string
	Port                 int
	ShutdownGracePeriod  time.Duration
	ReadHeaderTimeout    time.Duration
	WriteTimeout         time.Duration
	IdleTimeout          time.Duration
	EnableRequestLogging bool
	RateLimitRPS         float64
	RateLimitBurst       int
}

// Addr returns the host:port pair the listener binds to.
func (s ServerConfig) Addr() string {
	return net.JoinHostPort(s.Host, strconv.Itoa(s.Port))
}

func defaultServerConfig() ServerConfig {
	return ServerConfig{
		ShutdownGracePeriod:  10 * time.Second,
		ReadHeaderTimeout:    5 * time.Second,
		WriteTimeout:         15 * time.Second,
		IdleTimeout:          60 * time.Second,
		EnableRequestLogging: true,
		RateLimitRPS:         defaultRateLimitRPS,
		RateLimitBurst:       defaultRateLimitBurst,
	}
}

// envVars lists every environment variable understood by the backend and the gateway.
type envVars struct {
	NodeEnv        string `env:"NODE_ENV"`
	Host           string `env:"HOST"`
	Port           string `env:"PORT"`
	FrontendURL    string `env:"FRONTEND_URL"`
	SessionSecret  string `env:"SESSION_SECRET"`
	SessionSecure  string `env:"SESSION_COOKIE_SECURE"`
	BackendURL     string `env:"NEXT_PUBLIC_BACKEND_URL"`
	StaticDir      string `env:"STATIC_DIR"`
	RateLimitRPS   string `env:"RATE_LIMIT_RPS"`
	RateLimitBurst string `env:"RATE_LIMIT_BURST"`
}

// Environment reports NODE_ENV, falling back to development.
// Callers use it before the full configuration is resolved, e.g. to pick a log format.
func Environment() string {
	if value := strings.TrimSpace(os.Getenv("NODE_ENV")); value != "" {
		return value
	}
	return defaultEnvironment
}

// IsProduction reports whether the environment name denotes a production deployment.
func IsProduction(environment string) bool {
	return strings.EqualFold(strings.TrimSpace(environment), productionEnvironment)
}

// yamlServer is the YAML section shared by both configuration files.
type yamlServer struct {
	Environment          string        `yaml:"environment"`
	Host                 string        `yaml:"host"`
	Port                 string        `yaml:"port"`
	ShutdownGracePeriod  string        `yaml:"shutdown_grace_period"`
	ReadHeaderTimeout    string        `yaml:"read_header_timeout"`
	WriteTimeout         string        `yaml:"write_timeout"`
	IdleTimeout          string        `yaml:"idle_timeout"`
	EnableRequestLogging *bool         `yaml:"enable_request_logging"`
	RateLimit            yamlRateLimit `yaml:"rate_limit"`
}

// yamlRateLimit represents the rate limit section in YAML.
type yamlRateLimit struct {
	RPS   *float64 `yaml:"rps"`
	Burst *int     `yaml:"burst"`
}

// loadFromFile decodes a YAML file into out.
func loadFromFile(path string, out any) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("read file: %w", err)
	}

	if err := yaml.Unmarshal(data, out); err != nil {
		return fmt.Errorf("parse YAML: %w", err)
	}

	return nil
}

// applyYAMLServer copies the server section onto cfg. The port stays raw so
// that required-ness can be judged after every source has been applied.
func applyYAMLServer(cfg *ServerConfig, environment, port *string, doc yamlServer) error {
	if doc.Environment != "" {
		*environment = doc.Environment
	}
	if doc.Host != "" {
		cfg.Host = doc.Host
	}
	if doc.Port != "" {
		*port = doc.Port
	}

	durations := []struct {
		name  string
		raw   string
		field *time.Duration
	}{
		{"shutdown_grace_period", doc.ShutdownGracePeriod, &cfg.ShutdownGracePeriod},
		{"read_header_timeout", doc.ReadHeaderTimeout, &cfg.ReadHeaderTimeout},
		{"write_timeout", doc.WriteTimeout, &cfg.WriteTimeout},
		{"idle_timeout", doc.IdleTimeout, &cfg.IdleTimeout},
	}
	for _, d := range durations {
		if d.raw == "" {
			continue
		}
		value, err := time.ParseDuration(d.raw)
		if err != nil {
			return fmt.Errorf("parse %s: %w", d.name, err)
		}
		*d.field = value
	}

	if doc.EnableRequestLogging != nil {
		cfg.EnableRequestLogging = *doc.EnableRequestLogging
	}
	if doc.RateLimit.RPS != nil && *doc.RateLimit.RPS >= 0 {
		cfg.RateLimitRPS = *doc.RateLimit.RPS
	}
	if doc.RateLimit.Burst != nil && *doc.RateLimit.Burst >= 0 {
		cfg.RateLimitBurst = *doc.RateLimit.Burst
	}
	return nil
}

// readEnv loads the optional .env file and decodes the process environment.
// Variables already present in the environment win over the .env file.
func readEnv(envFile string) (envVars, error) {
	if err := loadDotEnv(envFile); err != nil {
		return envVars{}, err
	}

	var vars envVars
	if err := env.Load(&vars, nil); err != nil {
		return envVars{}, fmt.Errorf("decode environment: %w", err)
	}
	return vars, nil
}

// loadDotEnv loads path into the process environment. An empty path means the
// default .env file, which is allowed to be absent.
func loadDotEnv(path string) error {
	optional := path == ""
	if optional {
		path = defaultEnvFile
	}

	if err := godotenv.Load(path); err != nil {
		if optional && errors.Is(err, fs.ErrNotExist) {
			return nil
		}
		return fmt.Errorf("load env file %s: %w", path, err)
	}
	return nil
}

// applyEnvServer applies the shared environment variables. Malformed rate
// limit values are ignored, mirroring the YAML behaviour for negative values.
func applyEnvServer(cfg *ServerConfig, environment, port *string, vars envVars) {
	if value := strings.TrimSpace(vars.NodeEnv); value != "" {
		*environment = value
	}
	if value := strings.TrimSpace(vars.Host); value != "" {
		cfg.Host = value
	}
	if value := strings.TrimSpace(vars.Port); value != "" {
		*port = value
	}

	if rps := strings.TrimSpace(vars.RateLimitRPS); rps != "" {
		if value, err := strconv.ParseFloat(rps, 64); err == nil && value >= 0 {
			cfg.RateLimitRPS = value
		}
	}

	if burst := strings.TrimSpace(vars.RateLimitBurst); burst != "" {
		if value, err := strconv.Atoi(burst); err == nil && value >= 0 {
			cfg.RateLimitBurst = value
		}
	}
}

// validateServer validates the listener settings.
func validateServer(cfg ServerConfig) error {
	if cfg.RateLimitRPS < 0 {
		return fmt.Errorf("RATE_LIMIT_RPS must be >= 0")
	}
	if cfg.RateLimitBurst < 0 {
		return fmt.Errorf("RATE_LIMIT_BURST must be >= 0")
	}
	if cfg.ShutdownGracePeriod <= 0 {
		return fmt.Errorf("shutdown grace period must be positive")
	}
	return nil
}

// parsePort parses a decimal TCP port. Port 0 asks the kernel for a free port.
func parsePort(raw string) (int, error) {
	value, err := strconv.Atoi(strings.TrimSpace(raw))
	if err != nil || value < 0 || value > 65535 {
		return 0, fmt.Errorf("%w %q: must be a decimal number between 0 and 65535", ErrInvalidPort, raw)
	}
	return value, nil
}

// parseHTTPURL accepts absolute http and https URLs only.
func parseHTTPURL(raw string) (*url.URL, error) {
	u, err := url.Parse(strings.TrimSpace(raw))
	if err != nil {
		return nil, err
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return nil, fmt.Errorf("scheme must be http or https, got %q", u.Scheme)
	}
	if u.Host == "" {
		return nil, fmt.Errorf("host is empty")
	}
	return u, nil
}

// normalizeOrigin reduces a URL to the scheme://host[:port] form browsers send
// in the Origin header.
func normalizeOrigin(raw string) (string, error) {
	u, err := parseHTTPURL(raw)
	if err != nil {
		return "", fmt.Errorf("%w %q: %v", ErrInvalidOrigin, raw, err)
	}
	if (u.Path != "" && u.Path != "/") || u.RawQuery != "" || u.Fragment != "" {
		return "", fmt.Errorf("%w %q: origin must be scheme and host only", ErrInvalidOrigin, raw)
	}
	return u.Scheme + "://" + u.Host, nil
}

func missing(name string) error {
	return fmt.Errorf("%w: %s", ErrMissingRequired, name)
}

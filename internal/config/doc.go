// Package config loads runtime configuration for the backend and gateway
// processes from multiple sources (YAML files, .env files, environment
// variables, CLI flags) with precedence: CLI flags > Environment variables >
// .env file > YAML config > Defaults. Required variables are checked on the
// resolved values and a missing one aborts startup.
package config

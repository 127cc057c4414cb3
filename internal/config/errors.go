package config

import "errors"

var (
	// ErrMissingRequired is returned when a required setting has no value in any source.
	ErrMissingRequired = errors.New("missing required environment variable")
	// ErrInvalidPort is returned when PORT is not a decimal number in 0..65535.
	ErrInvalidPort = errors.New("invalid port")
	// ErrInvalidOrigin is returned when FRONTEND_URL is not an absolute http(s) origin.
	ErrInvalidOrigin = errors.New("invalid frontend origin")
	// ErrInvalidBackendURL is returned when NEXT_PUBLIC_BACKEND_URL is not an absolute http(s) URL.
	ErrInvalidBackendURL = errors.New("invalid backend url")
)

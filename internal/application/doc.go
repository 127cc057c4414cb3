// Package application provides application initialization and dependency wiring.
// It builds the backend (sessions, CORS, session API) and the gateway (API
// rewrite proxy, static assets) from their configurations, making the main
// packages cleaner and more focused on CLI parsing and orchestration.
package application

// Package gateway serves the frontend and forwards API traffic to the backend.
// Requests under /api are rewritten by the rule /api/:path* -> <backend>/:path*
// and proxied with net/http/httputil; cookies and CORS headers set by the
// backend pass through unchanged.
package gateway

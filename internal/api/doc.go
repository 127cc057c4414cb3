// Package api exposes the backend HTTP surface: health, session inspection and
// mutation. Cross-origin access is restricted to the configured frontend
// origin with credentials enabled, so the browser sends the session cookie.
package api

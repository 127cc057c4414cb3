package api

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/jonboulle/clockwork"
	"go.uber.org/zap/zaptest"

	"github.com/eugenenazirov/portal/internal/middleware"
	"github.com/eugenenazirov/portal/internal/session"
)

const testOrigin = "https://app.example.com"

func setupTestRouter(t *testing.T, opts ...RouterOption) (http.Handler, *clockwork.FakeClock) {
	t.Helper()

	logger := zaptest.NewLogger(t)
	clock := clockwork.NewFakeClockAt(time.Date(2026, 10, 1, 12, 0, 0, 0, time.UTC))
	sessions, err := session.NewManager(session.Options{
		Secret:     "0123456789abcdef0123456789abcdef",
		CookieName: "sid",
		MaxAge:     7 * 24 * time.Hour,
		Secure:     true,
	}, logger, session.WithClock(clock))
	if err != nil {
		t.Fatalf("NewManager returned error: %v", err)
	}

	handler := NewHandler(sessions, WithClock(clock))
	opts = append([]RouterOption{
		WithAllowedOrigins(testOrigin),
		WithMiddleware(middleware.WithLogging(false), middleware.WithRateLimit(0, 0)),
	}, opts...)
	return NewRouter(handler, logger, opts...), clock
}

func performRequest(handler http.Handler, method, target string, body []byte, cookies ...*http.Cookie) *httptest.ResponseRecorder {
	req := httptest.NewRequest(method, target, bytes.NewReader(body))
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	for _, c := range cookies {
		req.AddCookie(c)
	}
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)
	return rec
}

func findCookie(rec *httptest.ResponseRecorder, name string) *http.Cookie {
	for _, c := range rec.Result().Cookies() {
		if c.Name == name {
			return c
		}
	}
	return nil
}

type sessionBody struct {
	Active    bool              `json:"active"`
	ID        string            `json:"id"`
	CreatedAt *time.Time        `json:"createdAt"`
	Values    map[string]string `json:"values"`
	Message   string            `json:"message"`
}

func decodeSession(t *testing.T, rec *httptest.ResponseRecorder) sessionBody {
	t.Helper()
	var body sessionBody
	if err := json.NewDecoder(rec.Body).Decode(&body); err != nil {
		t.Fatalf("failed to decode response: %v", err)
	}
	return body
}

func TestHealthEndpoint(t *testing.T) {
	router, clock := setupTestRouter(t)

	rec := performRequest(router, http.MethodGet, "/health", nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("expected status 200, got %d", rec.Code)
	}

	var body struct {
		Status    string    `json:"status"`
		Timestamp time.Time `json:"timestamp"`
	}
	if err := json.NewDecoder(rec.Body).Decode(&body); err != nil {
		t.Fatalf("failed to decode response: %v", err)
	}

	if body.Status != "ok" {
		t.Fatalf("expected status ok, got %s", body.Status)
	}
	if !body.Timestamp.Equal(clock.Now()) {
		t.Fatalf("expected timestamp %s, got %s", clock.Now(), body.Timestamp)
	}
	if rec.Header().Get(middleware.RequestIDHeader) == "" {
		t.Fatalf("expected request id header")
	}
}

func TestGetSessionWithoutCookie(t *testing.T) {
	router, _ := setupTestRouter(t)

	rec := performRequest(router, http.MethodGet, "/session", nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("expected status 200, got %d", rec.Code)
	}
	if len(rec.Header().Values("Set-Cookie")) != 0 {
		t.Fatalf("expected no cookie for an untouched session")
	}

	body := decodeSession(t, rec)
	if body.Active || body.ID != "" || body.CreatedAt != nil || len(body.Values) != 0 {
		t.Fatalf("expected inactive session, got %+v", body)
	}
}

func TestPutSessionRoundTrip(t *testing.T) {
	router, clock := setupTestRouter(t)

	rec := performRequest(router, http.MethodPut, "/session", []byte(`{"values":{"theme":"dark"}}`))
	if rec.Code != http.StatusOK {
		t.Fatalf("expected status 200, got %d: %s", rec.Code, rec.Body.String())
	}

	cookie := findCookie(rec, "sid")
	if cookie == nil {
		t.Fatalf("expected session cookie")
	}
	if !cookie.HttpOnly || !cookie.Secure || cookie.SameSite != http.SameSiteLaxMode || cookie.MaxAge != 604800 {
		t.Fatalf("unexpected cookie attributes: %+v", cookie)
	}

	created := decodeSession(t, rec)
	if !created.Active || created.ID == "" || created.Message == "" {
		t.Fatalf("unexpected response %+v", created)
	}
	if created.CreatedAt == nil || !created.CreatedAt.Equal(clock.Now()) {
		t.Fatalf("expected createdAt %s, got %v", clock.Now(), created.CreatedAt)
	}

	rec = performRequest(router, http.MethodGet, "/session", nil, cookie)
	body := decodeSession(t, rec)
	if !body.Active || body.ID != created.ID || body.Values["theme"] != "dark" {
		t.Fatalf("expected stored session, got %+v", body)
	}
}

func TestPutSessionValidatesInput(t *testing.T) {
	router, _ := setupTestRouter(t)

	tests := map[string]string{
		"malformed JSON": `{"values":`,
		"missing values": `{}`,
		"empty values":   `{"values":{}}`,
		"empty key":      `{"values":{"":"x"}}`,
		"oversized body": `{"values":{"k":"` + strings.Repeat("v", maxBodyBytes) + `"}}`,
	}

	for name, payload := range tests {
		t.Run(name, func(t *testing.T) {
			rec := performRequest(router, http.MethodPut, "/session", []byte(payload))
			if rec.Code != http.StatusBadRequest {
				t.Fatalf("expected status 400, got %d", rec.Code)
			}
			if findCookie(rec, "sid") != nil {
				t.Fatalf("expected no cookie on rejected update")
			}
		})
	}
}

func TestPutSessionRejectsValuesTooLargeForCookie(t *testing.T) {
	router, _ := setupTestRouter(t)

	values := make(map[string]string, 4)
	for _, k := range []string{"a", "b", "c", "d"} {
		values[k] = strings.Repeat("v", 1000)
	}
	payload, err := json.Marshal(map[string]any{"values": values})
	if err != nil {
		t.Fatalf("marshal payload: %v", err)
	}

	rec := performRequest(router, http.MethodPut, "/session", payload)
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("expected status 400, got %d: %s", rec.Code, rec.Body.String())
	}
	if findCookie(rec, "sid") != nil {
		t.Fatalf("expected no cookie on rejected update")
	}

	var body struct {
		Error string `json:"error"`
	}
	if err := json.NewDecoder(rec.Body).Decode(&body); err != nil {
		t.Fatalf("failed to decode response: %v", err)
	}
	if body.Error != "Invalid session values" {
		t.Fatalf("unexpected error %q", body.Error)
	}
}

func TestDeleteSessionExpiresCookie(t *testing.T) {
	router, _ := setupTestRouter(t)

	rec := performRequest(router, http.MethodPut, "/session", []byte(`{"values":{"theme":"dark"}}`))
	cookie := findCookie(rec, "sid")
	if cookie == nil {
		t.Fatalf("expected session cookie")
	}

	rec = performRequest(router, http.MethodDelete, "/session", nil, cookie)
	if rec.Code != http.StatusNoContent {
		t.Fatalf("expected status 204, got %d", rec.Code)
	}
	expired := findCookie(rec, "sid")
	if expired == nil || expired.MaxAge != -1 {
		t.Fatalf("expected expired cookie, got %+v", expired)
	}
}

func TestUnknownRouteReturnsJSON404(t *testing.T) {
	router, _ := setupTestRouter(t)

	rec := performRequest(router, http.MethodGet, "/nope", nil)
	if rec.Code != http.StatusNotFound {
		t.Fatalf("expected status 404, got %d", rec.Code)
	}
	if ct := rec.Header().Get("Content-Type"); ct != "application/json" {
		t.Fatalf("expected JSON error, got %q", ct)
	}

	rec = performRequest(router, http.MethodPost, "/health", nil)
	if rec.Code != http.StatusMethodNotAllowed {
		t.Fatalf("expected status 405, got %d", rec.Code)
	}
}

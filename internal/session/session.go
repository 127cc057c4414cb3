// Package session configures signed cookie sessions for the backend. The
// cookie encoding and signing are handled by gorilla/sessions and
// gorilla/securecookie; this package only fixes the cookie policy and exposes
// a small typed view over the stored values.
package session

import (
	"context"
	"encoding/gob"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/securecookie"
	"github.com/gorilla/sessions"
	"github.com/jonboulle/clockwork"
	"go.uber.org/zap"
)

const (
	idKey        = "id"
	createdAtKey = "created_at"
	valuesKey    = "values"

	minSecretLength = 32
	maxValues       = 32
	maxKeyLength    = 64
	maxValueLength  = 1024
)

var (
	// ErrEmptySecret is returned when the manager is built without a signing secret.
	ErrEmptySecret = errors.New("session secret is empty")
	// ErrInvalidValues is returned when an update violates the value limits.
	ErrInvalidValues = errors.New("invalid session values")
)

func init() {
	gob.Register(map[string]string{})
}

// Options configures the session cookie.
type Options struct {
	Secret     string
	CookieName string
	MaxAge     time.Duration
	Secure     bool
}

// Snapshot is a read-only copy of the session state.
type Snapshot struct {
	Active    bool
	ID        string
	CreatedAt time.Time
	Values    map[string]string
}

// Manager owns the cookie store and the cookie policy.
type Manager struct {
	store  *sessions.CookieStore
	name   string
	clock  clockwork.Clock
	logger *zap.Logger
}

// ManagerOption configures Manager behaviour.
type ManagerOption func(*Manager)

// WithClock overrides the time source, primarily for tests.
func WithClock(clock clockwork.Clock) ManagerOption {
	return func(m *Manager) {
		m.clock = clock
	}
}

// NewManager builds a cookie store signed with opts.Secret. Cookies are
// HttpOnly, SameSite=Lax and scoped to "/". A session is only written back
// when a handler modifies it.
func NewManager(opts Options, logger *zap.Logger, managerOpts ...ManagerOption) (*Manager, error) {
	if opts.Secret == "" {
		return nil, ErrEmptySecret
	}
	if opts.CookieName == "" {
		return nil, fmt.Errorf("session cookie name is empty")
	}
	if opts.MaxAge <= 0 {
		return nil, fmt.Errorf("session max age must be positive, got %s", opts.MaxAge)
	}
	if len(opts.Secret) < minSecretLength {
		logger.Warn("session secret is short; 32+ chars recommended",
			zap.Int("length", len(opts.Secret)))
	}

	store := sessions.NewCookieStore([]byte(opts.Secret))
	store.Options = &sessions.Options{
		Path:     "/",
		HttpOnly: true,
		Secure:   opts.Secure,
		SameSite: http.SameSiteLaxMode,
	}
	store.MaxAge(int(opts.MaxAge / time.Second))

	m := &Manager{
		store:  store,
		name:   opts.CookieName,
		clock:  clockwork.NewRealClock(),
		logger: logger,
	}
	for _, opt := range managerOpts {
		opt(m)
	}

	logger.Info("session store initialized",
		zap.String("cookie", opts.CookieName),
		zap.Bool("secure", opts.Secure),
		zap.Duration("max_age", opts.MaxAge))

	return m, nil
}

// CookieName returns the name of the session cookie.
func (m *Manager) CookieName() string {
	return m.name
}

type ctxKey struct{}

// Middleware loads the request's session into the context. A cookie that
// cannot be decoded (tampered, expired or signed with an old secret) is
// replaced by a fresh session.
func (m *Manager) Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		sess, err := m.store.Get(r, m.name)
		if err != nil {
			var scErr securecookie.Error
			if errors.As(err, &scErr) && scErr.IsDecode() {
				m.logger.Debug("discarding undecodable session cookie", zap.Error(err))
			} else {
				m.logger.Warn("failed to load session", zap.Error(err))
			}
		}
		next.ServeHTTP(w, r.WithContext(context.WithValue(r.Context(), ctxKey{}, sess)))
	})
}

// FromContext returns the session loaded by Middleware.
func FromContext(ctx context.Context) (*sessions.Session, bool) {
	sess, ok := ctx.Value(ctxKey{}).(*sessions.Session)
	return sess, ok
}

// Snapshot copies the session state. New sessions report Active=false.
func (m *Manager) Snapshot(sess *sessions.Session) Snapshot {
	snap := Snapshot{Values: map[string]string{}}
	if sess == nil {
		return snap
	}

	id, _ := sess.Values[idKey].(string)
	if id == "" {
		return snap
	}
	snap.Active = true
	snap.ID = id
	if created, ok := sess.Values[createdAtKey].(int64); ok {
		snap.CreatedAt = time.Unix(created, 0).UTC()
	}
	if values, ok := sess.Values[valuesKey].(map[string]string); ok {
		for k, v := range values {
			snap.Values[k] = v
		}
	}
	return snap
}

// Update merges values into the session and writes the cookie. An empty value
// removes the key. The first save assigns the session id and creation time.
// Updates whose encoded cookie would exceed the browser limit fail with
// ErrInvalidValues and leave the session untouched.
func (m *Manager) Update(w http.ResponseWriter, r *http.Request, sess *sessions.Session, values map[string]string) (Snapshot, error) {
	current := m.Snapshot(sess).Values
	for k, v := range values {
		if k == "" || len(k) > maxKeyLength {
			return Snapshot{}, fmt.Errorf("%w: key %q must be 1-%d characters", ErrInvalidValues, k, maxKeyLength)
		}
		if len(v) > maxValueLength {
			return Snapshot{}, fmt.Errorf("%w: value for %q exceeds %d bytes", ErrInvalidValues, k, maxValueLength)
		}
		if v == "" {
			delete(current, k)
			continue
		}
		current[k] = v
	}
	if len(current) > maxValues {
		return Snapshot{}, fmt.Errorf("%w: at most %d values allowed", ErrInvalidValues, maxValues)
	}

	next := make(map[interface{}]interface{}, len(sess.Values)+1)
	for k, v := range sess.Values {
		next[k] = v
	}
	if id, _ := next[idKey].(string); id == "" {
		next[idKey] = uuid.NewString()
		next[createdAtKey] = m.clock.Now().Unix()
	}
	next[valuesKey] = current

	// The whole session travels in one cookie, so the encoded form must fit.
	if _, err := securecookie.EncodeMulti(m.name, next, m.store.Codecs...); err != nil {
		return Snapshot{}, fmt.Errorf("%w: session does not fit in a cookie: %v", ErrInvalidValues, err)
	}
	sess.Values = next

	if err := sess.Save(r, w); err != nil {
		return Snapshot{}, fmt.Errorf("save session: %w", err)
	}
	return m.Snapshot(sess), nil
}

// Destroy clears the session and expires its cookie.
func (m *Manager) Destroy(w http.ResponseWriter, r *http.Request, sess *sessions.Session) error {
	opts := m.cookieOptions()
	opts.MaxAge = -1
	sess.Options = opts
	sess.Values = map[interface{}]interface{}{}

	if err := sess.Save(r, w); err != nil {
		return fmt.Errorf("destroy session: %w", err)
	}
	return nil
}

func (m *Manager) cookieOptions() *sessions.Options {
	opts := *m.store.Options
	return &opts
}

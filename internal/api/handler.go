package api

import (
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/jonboulle/clockwork"

	"github.com/eugenenazirov/portal/internal/respond"
	"github.com/eugenenazirov/portal/internal/session"
)

const maxBodyBytes = 16 << 10

// Handler wires the session manager into HTTP handlers.
type Handler struct {
	sessions *session.Manager
	clock    clockwork.Clock
}

// HandlerOption configures Handler behaviour.
type HandlerOption func(*Handler)

// WithClock overrides the time source, primarily for tests.
func WithClock(clock clockwork.Clock) HandlerOption {
	return func(h *Handler) {
		h.clock = clock
	}
}

// NewHandler constructs a Handler with the provided dependencies.
func NewHandler(sessions *session.Manager, opts ...HandlerOption) *Handler {
	h := &Handler{
		sessions: sessions,
		clock:    clockwork.NewRealClock(),
	}
	for _, opt := range opts {
		opt(h)
	}
	return h
}

func (h *Handler) handleHealth(w http.ResponseWriter, _ *http.Request) {
	resp := healthResponse{
		Status:    "ok",
		Timestamp: h.clock.Now().UTC(),
	}
	respond.JSON(w, http.StatusOK, resp)
}

func (h *Handler) handleGetSession(w http.ResponseWriter, r *http.Request) {
	sess, ok := session.FromContext(r.Context())
	if !ok {
		respond.InternalError(w, errNoSession)
		return
	}
	respond.JSON(w, http.StatusOK, newSessionResponse(h.sessions.Snapshot(sess)))
}

func (h *Handler) handlePutSession(w http.ResponseWriter, r *http.Request) {
	sess, ok := session.FromContext(r.Context())
	if !ok {
		respond.InternalError(w, errNoSession)
		return
	}

	var req sessionRequest
	if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes)).Decode(&req); err != nil {
		respond.Error(w, http.StatusBadRequest, "Invalid request", "unable to parse JSON payload")
		return
	}

	if len(req.Values) == 0 {
		respond.Error(w, http.StatusBadRequest, "Invalid session values", "values must contain at least one entry")
		return
	}

	snap, err := h.sessions.Update(w, r, sess, req.Values)
	if err != nil {
		if errors.Is(err, session.ErrInvalidValues) {
			respond.Error(w, http.StatusBadRequest, "Invalid session values", err.Error())
			return
		}
		respond.InternalError(w, err)
		return
	}

	resp := newSessionResponse(snap)
	resp.Message = "Session updated successfully"
	respond.JSON(w, http.StatusOK, resp)
}

func (h *Handler) handleDeleteSession(w http.ResponseWriter, r *http.Request) {
	sess, ok := session.FromContext(r.Context())
	if !ok {
		respond.InternalError(w, errNoSession)
		return
	}

	if err := h.sessions.Destroy(w, r, sess); err != nil {
		respond.InternalError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

var errNoSession = errors.New("session middleware not installed")

type sessionRequest struct {
	Values map[string]string `json:"values"`
}

type sessionResponse struct {
	Active    bool              `json:"active"`
	ID        string            `json:"id,omitempty"`
	CreatedAt *time.Time        `json:"createdAt,omitempty"`
	Values    map[string]string `json:"values"`
	Message   string            `json:"message,omitempty"`
}

func newSessionResponse(snap session.Snapshot) sessionResponse {
	resp := sessionResponse{
		Active: snap.Active,
		ID:     snap.ID,
		Values: snap.Values,
	}
	if !snap.CreatedAt.IsZero() {
		created := snap.CreatedAt
		resp.CreatedAt = &created
	}
	return resp
}

type healthResponse struct {
	Status    string    `json:"status"`
	Timestamp time.Time `json:"timestamp"`
}

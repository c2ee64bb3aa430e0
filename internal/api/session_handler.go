package api

import (
	"context"
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/matheus3301/chatsync/internal/provider"
	"github.com/matheus3301/chatsync/internal/status"
)

// Session is the sign-in surface the handler drives.
type Session interface {
	SignIn(ctx context.Context, authToken string) (provider.Client, error)
	SignOut() error
	Identity() string
}

// SessionHandler serves status and sign-in/out.
type SessionHandler struct {
	profile   string
	startedAt time.Time
	machine   *status.Machine
	session   Session
	nav       NavigationState
}

// NavigationState reports whether navigation is mounted.
type NavigationState interface {
	Ready() bool
}

// NewSessionHandler creates a session handler for profile.
func NewSessionHandler(profile string, machine *status.Machine, s Session, nav NavigationState) *SessionHandler {
	return &SessionHandler{
		profile:   profile,
		startedAt: time.Now(),
		machine:   machine,
		session:   s,
		nav:       nav,
	}
}

// RegisterRoutes registers status and session routes.
func (h *SessionHandler) RegisterRoutes(r chi.Router) {
	r.Get("/status", h.Status())
	r.Route("/session", func(r chi.Router) {
		r.Post("/signin", h.SignIn())
		r.Post("/signout", h.SignOut())
	})
}

// StatusResponse is the body of GET /status.
type StatusResponse struct {
	Profile         string       `json:"profile"`
	Status          status.State `json:"status"`
	Since           time.Time    `json:"since"`
	Identity        string       `json:"identity,omitempty"`
	UptimeMs        int64        `json:"uptimeMs"`
	NavigationReady bool         `json:"navigationReady"`
}

// Status handles GET /status.
func (h *SessionHandler) Status() http.HandlerFunc {
	return func(w http.ResponseWriter, _ *http.Request) {
		resp := StatusResponse{
			Profile:  h.profile,
			Status:   h.machine.Current(),
			Since:    h.machine.Since(),
			Identity: h.session.Identity(),
			UptimeMs: time.Since(h.startedAt).Milliseconds(),
		}
		if h.nav != nil {
			resp.NavigationReady = h.nav.Ready()
		}
		ok(w, resp)
	}
}

// SignInRequest is the body of POST /session/signin.
type SignInRequest struct {
	Token string `json:"token"`
}

// SignInResponse reports the signed-in identity.
type SignInResponse struct {
	Identity string `json:"identity"`
}

// SignIn handles POST /session/signin.
func (h *SessionHandler) SignIn() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req SignInRequest
		if err := decode(r, &req); err != nil {
			badRequest(w, "invalid JSON")
			return
		}
		req.Token = strings.TrimSpace(req.Token)
		if req.Token == "" {
			badRequest(w, "token is required")
			return
		}
		client, err := h.session.SignIn(r.Context(), req.Token)
		if err != nil {
			handleError(w, err)
			return
		}
		ok(w, SignInResponse{Identity: client.Identity()})
	}
}

// SignOut handles POST /session/signout.
func (h *SessionHandler) SignOut() http.HandlerFunc {
	return func(w http.ResponseWriter, _ *http.Request) {
		if err := h.session.SignOut(); err != nil {
			handleError(w, err)
			return
		}
		noContent(w)
	}
}

package api

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/matheus3301/chatsync/internal/notify"
)

// NotificationSink accepts push notifications from outside the process.
type NotificationSink interface {
	PushForeground(n notify.Notification) bool
	PushTap(n notify.Notification) bool
}

// NotificationRouter is the routing surface driven by the control API.
type NotificationRouter interface {
	Initial(data map[string]any) bool
	MarkReady()
	Ready() bool
	Pending() (notify.Target, bool)
}

// NotifyHandler feeds notifications and navigation readiness into the router.
type NotifyHandler struct {
	sink   NotificationSink
	router NotificationRouter
}

// NewNotifyHandler creates a notification handler.
func NewNotifyHandler(sink NotificationSink, router NotificationRouter) *NotifyHandler {
	return &NotifyHandler{sink: sink, router: router}
}

// RegisterRoutes registers notification and navigation routes.
func (h *NotifyHandler) RegisterRoutes(r chi.Router) {
	r.Post("/notifications/{kind}", h.Receive())
	r.Route("/navigation", func(r chi.Router) {
		r.Post("/ready", h.Ready())
		r.Get("/pending", h.Pending())
	})
}

// NotificationResponse reports what happened to a received notification.
type NotificationResponse struct {
	Kind     string `json:"kind"`
	Routable bool   `json:"routable"`
	Accepted bool   `json:"accepted"`
}

// Receive handles POST /notifications/{kind} with kind one of foreground,
// tap or initial.
func (h *NotifyHandler) Receive() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		kind := chi.URLParam(r, "kind")
		var n notify.Notification
		if err := decode(r, &n); err != nil {
			badRequest(w, "invalid JSON")
			return
		}
		_, routable := notify.Normalize(n.Data)
		resp := NotificationResponse{Kind: kind, Routable: routable}

		switch kind {
		case "foreground":
			resp.Accepted = h.sink.PushForeground(n)
		case "tap":
			resp.Accepted = h.sink.PushTap(n)
		case "initial":
			resp.Accepted = h.router.Initial(n.Data)
			ok(w, resp)
			return
		default:
			badRequest(w, "unknown notification kind: "+kind)
			return
		}
		if !resp.Accepted {
			writeJSON(w, http.StatusServiceUnavailable, resp)
			return
		}
		writeJSON(w, http.StatusAccepted, resp)
	}
}

// Ready handles POST /navigation/ready.
func (h *NotifyHandler) Ready() http.HandlerFunc {
	return func(w http.ResponseWriter, _ *http.Request) {
		h.router.MarkReady()
		noContent(w)
	}
}

// PendingResponse is the body of GET /navigation/pending.
type PendingResponse struct {
	Ready  bool               `json:"ready"`
	Target *notify.ChatParams `json:"target,omitempty"`
}

// Pending handles GET /navigation/pending.
func (h *NotifyHandler) Pending() http.HandlerFunc {
	return func(w http.ResponseWriter, _ *http.Request) {
		resp := PendingResponse{Ready: h.router.Ready()}
		if t, found := h.router.Pending(); found {
			params := t.Params()
			resp.Target = &params
		}
		ok(w, resp)
	}
}

package api

import (
	"context"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/matheus3301/chatsync/internal/inbox"
	"github.com/matheus3301/chatsync/internal/notify"
	"github.com/matheus3301/chatsync/internal/thread"
)

// InboxLoader loads the merged conversation list.
type InboxLoader interface {
	Load(ctx context.Context) (inbox.Snapshot, error)
}

// InboxActions creates or finds conversations from the list.
type InboxActions interface {
	OpenOrCreateDirect(ctx context.Context, userName string) (notify.ChatParams, error)
	CreateGroup(ctx context.Context, name string, members []string) (notify.ChatParams, error)
}

// Threads looks up open conversation threads.
type Threads interface {
	Get(sid string) (*thread.Thread, bool)
	Close(sid string) bool
}

// InboxHandler serves the conversation list and its open actions. Every
// open goes through the navigator, which owns the active thread.
type InboxHandler struct {
	loader  InboxLoader
	actions InboxActions
	nav     notify.Navigator
	threads Threads
}

// NewInboxHandler creates an inbox handler.
func NewInboxHandler(loader InboxLoader, actions InboxActions, nav notify.Navigator, threads Threads) *InboxHandler {
	return &InboxHandler{loader: loader, actions: actions, nav: nav, threads: threads}
}

// RegisterRoutes registers inbox routes.
func (h *InboxHandler) RegisterRoutes(r chi.Router) {
	r.Route("/inbox", func(r chi.Router) {
		r.Get("/", h.List())
		r.Post("/direct", h.Direct())
		r.Post("/groups", h.CreateGroup())
		r.Post("/{sid}/open", h.Open())
	})
}

// InboxResponse is the body of GET /inbox. Partial failures are reported
// next to the entries that did load.
type InboxResponse struct {
	inbox.Snapshot
	UsersError         string `json:"usersError,omitempty"`
	ConversationsError string `json:"conversationsError,omitempty"`
}

// List handles GET /inbox.
func (h *InboxHandler) List() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		snap, err := h.loader.Load(r.Context())
		if err != nil {
			handleError(w, err)
			return
		}
		resp := InboxResponse{Snapshot: snap}
		if snap.UsersErr != nil {
			resp.UsersError = snap.UsersErr.Error()
		}
		if snap.ConversationsErr != nil {
			resp.ConversationsError = snap.ConversationsErr.Error()
		}
		ok(w, resp)
	}
}

// OpenResponse is returned by every route that opens a conversation.
type OpenResponse struct {
	Params notify.ChatParams `json:"params"`
	Thread *thread.Snapshot  `json:"thread,omitempty"`
}

// DirectRequest is the body of POST /inbox/direct.
type DirectRequest struct {
	UserName string `json:"userName"`
}

// Direct handles POST /inbox/direct.
func (h *InboxHandler) Direct() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req DirectRequest
		if err := decode(r, &req); err != nil {
			badRequest(w, "invalid JSON")
			return
		}
		params, err := h.actions.OpenOrCreateDirect(r.Context(), req.UserName)
		if err != nil {
			handleError(w, err)
			return
		}
		h.navigate(w, http.StatusOK, params)
	}
}

// GroupRequest is the body of POST /inbox/groups.
type GroupRequest struct {
	Name    string   `json:"name"`
	Members []string `json:"members"`
}

// CreateGroup handles POST /inbox/groups.
func (h *InboxHandler) CreateGroup() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req GroupRequest
		if err := decode(r, &req); err != nil {
			badRequest(w, "invalid JSON")
			return
		}
		params, err := h.actions.CreateGroup(r.Context(), req.Name, req.Members)
		if err != nil {
			handleError(w, err)
			return
		}
		h.navigate(w, http.StatusCreated, params)
	}
}

// Open handles POST /inbox/{sid}/open for a conversation already in the list.
func (h *InboxHandler) Open() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		sid := chi.URLParam(r, "sid")
		snap, err := h.loader.Load(r.Context())
		if err != nil {
			handleError(w, err)
			return
		}
		for _, e := range snap.Entries {
			if e.Kind == inbox.KindConversation && e.Conversation.SID == sid {
				h.navigate(w, http.StatusOK, inbox.ParamsFor(*e.Conversation, snap.Self))
				return
			}
		}
		if snap.ConversationsErr != nil {
			handleError(w, snap.ConversationsErr)
			return
		}
		notFound(w, "conversation not in list: "+sid)
	}
}

func (h *InboxHandler) navigate(w http.ResponseWriter, code int, params notify.ChatParams) {
	if err := h.nav.Navigate(notify.ScreenChat, params); err != nil {
		handleError(w, err)
		return
	}
	resp := OpenResponse{Params: params}
	if th, found := h.threads.Get(params.ConversationSID); found {
		snap := th.Snapshot()
		resp.Thread = &snap
	}
	writeJSON(w, code, resp)
}

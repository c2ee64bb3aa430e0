package api

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/matheus3301/chatsync/internal/provider"
	"github.com/matheus3301/chatsync/internal/thread"
)

// ThreadHandler serves the open conversation thread.
type ThreadHandler struct {
	threads Threads
}

// NewThreadHandler creates a thread handler.
func NewThreadHandler(threads Threads) *ThreadHandler {
	return &ThreadHandler{threads: threads}
}

// RegisterRoutes registers thread routes.
func (h *ThreadHandler) RegisterRoutes(r chi.Router) {
	r.Route("/threads/{sid}", func(r chi.Router) {
		r.Get("/", h.Get())
		r.Delete("/", h.Close())
		r.Post("/messages", h.SendText())
		r.Post("/media", h.SendMedia())
		r.Post("/participants", h.AddParticipants())
		r.Delete("/participants/{identity}", h.RemoveParticipant())
		r.Put("/name", h.Rename())
		r.Post("/leave", h.Leave())
	})
}

func (h *ThreadHandler) lookup(w http.ResponseWriter, r *http.Request) (*thread.Thread, bool) {
	sid := chi.URLParam(r, "sid")
	th, found := h.threads.Get(sid)
	if !found {
		notFound(w, "thread not open: "+sid)
	}
	return th, found
}

// Get handles GET /threads/{sid}.
func (h *ThreadHandler) Get() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		th, found := h.lookup(w, r)
		if !found {
			return
		}
		ok(w, th.Snapshot())
	}
}

// Close handles DELETE /threads/{sid}.
func (h *ThreadHandler) Close() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		sid := chi.URLParam(r, "sid")
		if !h.threads.Close(sid) {
			notFound(w, "thread not open: "+sid)
			return
		}
		noContent(w)
	}
}

// TextRequest is the body of POST /threads/{sid}/messages.
type TextRequest struct {
	Body string `json:"body"`
}

// SendText handles POST /threads/{sid}/messages.
func (h *ThreadHandler) SendText() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		th, found := h.lookup(w, r)
		if !found {
			return
		}
		var req TextRequest
		if err := decode(r, &req); err != nil {
			badRequest(w, "invalid JSON")
			return
		}
		if err := th.SendText(r.Context(), req.Body); err != nil {
			handleError(w, err)
			return
		}
		writeJSON(w, http.StatusAccepted, nil)
	}
}

// MediaRequest is the body of POST /threads/{sid}/media. Data is base64 in
// JSON.
type MediaRequest struct {
	ContentType string `json:"contentType,omitempty"`
	Filename    string `json:"filename,omitempty"`
	Data        []byte `json:"data"`
}

// SendMedia handles POST /threads/{sid}/media.
func (h *ThreadHandler) SendMedia() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		th, found := h.lookup(w, r)
		if !found {
			return
		}
		var req MediaRequest
		if err := decode(r, &req); err != nil {
			badRequest(w, "invalid JSON")
			return
		}
		err := th.SendMedia(r.Context(), provider.MediaUpload{
			ContentType: req.ContentType,
			Filename:    req.Filename,
			Data:        req.Data,
		})
		if err != nil {
			handleError(w, err)
			return
		}
		writeJSON(w, http.StatusAccepted, nil)
	}
}

// ParticipantsRequest is the body of POST /threads/{sid}/participants.
type ParticipantsRequest struct {
	Identities []string `json:"identities"`
}

// AddParticipants handles POST /threads/{sid}/participants.
func (h *ThreadHandler) AddParticipants() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		th, found := h.lookup(w, r)
		if !found {
			return
		}
		var req ParticipantsRequest
		if err := decode(r, &req); err != nil {
			badRequest(w, "invalid JSON")
			return
		}
		if len(req.Identities) == 0 {
			badRequest(w, "identities is required")
			return
		}
		if err := th.AddParticipants(r.Context(), req.Identities...); err != nil {
			handleError(w, err)
			return
		}
		noContent(w)
	}
}

// RemoveParticipant handles DELETE /threads/{sid}/participants/{identity}.
func (h *ThreadHandler) RemoveParticipant() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		th, found := h.lookup(w, r)
		if !found {
			return
		}
		if err := th.RemoveParticipant(r.Context(), chi.URLParam(r, "identity")); err != nil {
			handleError(w, err)
			return
		}
		noContent(w)
	}
}

// RenameRequest is the body of PUT /threads/{sid}/name.
type RenameRequest struct {
	Name string `json:"name"`
}

// Rename handles PUT /threads/{sid}/name.
func (h *ThreadHandler) Rename() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		th, found := h.lookup(w, r)
		if !found {
			return
		}
		var req RenameRequest
		if err := decode(r, &req); err != nil {
			badRequest(w, "invalid JSON")
			return
		}
		if err := th.Rename(r.Context(), req.Name); err != nil {
			handleError(w, err)
			return
		}
		ok(w, th.Snapshot())
	}
}

// Leave handles POST /threads/{sid}/leave.
func (h *ThreadHandler) Leave() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		th, found := h.lookup(w, r)
		if !found {
			return
		}
		if err := th.Leave(r.Context()); err != nil {
			handleError(w, err)
			return
		}
		h.threads.Close(th.SID())
		noContent(w)
	}
}

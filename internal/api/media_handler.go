package api

import (
	"context"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/matheus3301/chatsync/internal/media"
	"github.com/matheus3301/chatsync/internal/provider"
)

// MediaResolver resolves attachment URLs.
type MediaResolver interface {
	Resolve(ctx context.Context, ref provider.MediaRef) (media.Resolved, error)
}

// MediaLookup finds the attachment of a message.
type MediaLookup interface {
	MessageMedia(ctx context.Context, conversationSID, messageSID string) (provider.MediaRef, error)
}

// MediaHandler serves temporary attachment URLs.
type MediaHandler struct {
	resolver MediaResolver
	lookup   MediaLookup
}

// NewMediaHandler creates a media handler.
func NewMediaHandler(resolver MediaResolver, lookup MediaLookup) *MediaHandler {
	return &MediaHandler{resolver: resolver, lookup: lookup}
}

// RegisterRoutes registers media routes.
func (h *MediaHandler) RegisterRoutes(r chi.Router) {
	r.Get("/media/{conversationSid}/{messageSid}", h.Resolve())
}

// MediaResponse is the body of GET /media/{conversationSid}/{messageSid}.
type MediaResponse struct {
	media.Resolved
	ContentType string     `json:"contentType"`
	Filename    string     `json:"filename,omitempty"`
	Extension   string     `json:"extension,omitempty"`
	Kind        media.Kind `json:"kind"`
}

// Resolve handles GET /media/{conversationSid}/{messageSid}. Without a
// contentType query parameter the content type comes from the message.
func (h *MediaHandler) Resolve() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ref := provider.MediaRef{
			ID:              chi.URLParam(r, "messageSid"),
			ConversationSID: chi.URLParam(r, "conversationSid"),
			ContentType:     r.URL.Query().Get("contentType"),
		}
		if ref.ContentType == "" {
			found, err := h.lookup.MessageMedia(r.Context(), ref.ConversationSID, ref.ID)
			if err != nil {
				handleError(w, err)
				return
			}
			ref = found
		}
		resolved, err := h.resolver.Resolve(r.Context(), ref)
		if err != nil {
			handleError(w, err)
			return
		}
		ok(w, MediaResponse{
			Resolved:    resolved,
			ContentType: ref.ContentType,
			Filename:    ref.Filename,
			Extension:   media.Extension(ref.ContentType),
			Kind:        media.Classify(ref.ContentType),
		})
	}
}

package api

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/starford/quill/internal/contentsource"
)

// NewRouter creates a chi router with all API routes mounted.
// authEnabled controls whether Bearer token auth is enforced.
// sseHandler, if non-nil, is mounted at GET /events inside the auth group.
// ah handles asset uploads; asset files themselves are served by the caller
// at the public assets URL.
func NewRouter(svc *contentsource.Service, ah *AssetHandler, authEnabled bool, token string, sseHandler http.Handler) chi.Router {
	h := NewHandler(svc)

	r := chi.NewRouter()
	r.Use(AuthMiddleware(authEnabled, token))

	r.Get("/models", h.ListModels)
	r.Get("/locales", h.Locales)

	// Documents.
	r.Get("/documents", h.ListDocuments)
	r.Post("/documents", h.CreateDocument)
	r.Get("/documents/*", h.GetDocument)
	r.Patch("/documents/*", h.UpdateDocument)
	r.Delete("/documents/*", h.DeleteDocument)
	r.Post("/publish", h.Publish)

	// Assets.
	r.Get("/assets", h.ListAssets)
	if ah != nil {
		r.Post("/assets", ah.Upload)
	}

	r.Get("/search", h.Search)
	r.Get("/references/*", h.References)

	// SSE endpoint (protected by same auth middleware).
	if sseHandler != nil {
		r.Get("/events", sseHandler.ServeHTTP)
	}

	return r
}

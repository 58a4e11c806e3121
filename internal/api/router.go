package api

import (
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"

	"github.com/starford/mediakeep/internal/assetservice"
	"github.com/starford/mediakeep/internal/storage"
)

// NewRouter creates a chi router with all API routes mounted.
// authEnabled controls whether Bearer token auth is enforced.
// sseHandler, if non-nil, is mounted at GET /events inside the auth group.
func NewRouter(svc *assetservice.Service, files storage.Provider, authEnabled bool, token string, sseHandler http.Handler) chi.Router {
	h := NewHandler(svc)
	uh := NewUploadsHandler(files, svc)

	r := chi.NewRouter()
	r.Use(AuthMiddleware(authEnabled, token))

	r.Route("/assets", func(r chi.Router) {
		r.Get("/", h.ListAssets)
		r.Post("/import", h.ImportAsset)
		r.Post("/import/batch", h.ImportBatch)
		r.Post("/upload", uh.Upload)
		r.Get("/{id}", h.GetAsset)
		r.Post("/{id}/derivatives", h.DeriveAsset)
		r.Put("/{id}/focal-point", h.SetFocalPoint)
	})

	r.Route("/maintenance", func(r chi.Router) {
		r.Get("/audit", h.Audit)
		r.Post("/relocate", h.Relocate)
		r.Post("/gc", h.CollectGarbage)
		r.Post("/reconcile", h.Reconcile)
	})

	// SSE endpoint (protected by same auth middleware).
	if sseHandler != nil {
		r.Get("/events", sseHandler.ServeHTTP)
	}

	return r
}

// MountUploads serves the uploads root at prefix on r without auth, the way
// published pages reference it.
func MountUploads(r chi.Router, prefix string, files storage.Provider) {
	uh := NewUploadsHandler(files, nil)
	r.Get(strings.TrimSuffix(prefix, "/")+"/*", uh.ServeFile)
}

package api

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/starford/kbtree/internal/reconcile"
	"github.com/starford/kbtree/internal/treeservice"
)

// RouterConfig holds everything NewRouter mounts.
type RouterConfig struct {
	Service *treeservice.Service
	Syncer  reconcile.Syncer
	Mover   DirectoryMover
	// AuthEnabled controls whether Bearer token auth is enforced on admin routes.
	AuthEnabled bool
	Token       string
	// Events, if non-nil, is mounted at GET /events.
	Events http.Handler
}

// NewRouter creates a chi router with all API routes mounted. Reads are
// public; admin routes sit behind the auth middleware.
func NewRouter(cfg RouterConfig) chi.Router {
	h := NewHandler(cfg.Service, cfg.Syncer, cfg.Mover)

	r := chi.NewRouter()

	// Sidebar tree.
	r.Get("/tree", h.Tree)
	r.Get("/tree/{id}", h.Tree)
	r.Get("/directories/{id}", h.Directory)

	// Documents.
	r.Get("/documents/{ref}", h.Document)
	r.Get("/landing", h.Landing)
	r.Get("/stats", h.Stats)

	r.Route("/admin", func(r chi.Router) {
		r.Use(AuthMiddleware(cfg.AuthEnabled, cfg.Token))
		r.Post("/sync", h.Sync)
		r.Post("/directories/{id}/move", h.MoveDirectory)
	})

	if cfg.Events != nil {
		r.Get("/events", cfg.Events.ServeHTTP)
	}

	return r
}

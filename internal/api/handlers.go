package api

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/starford/kbtree/internal/apperr"
	"github.com/starford/kbtree/internal/reconcile"
	"github.com/starford/kbtree/internal/treeservice"
)

// DirectoryMover reparents or renames a directory outside a pass.
// *reconcile.Engine implements it and only accepts moves that match the
// content root, since the next pass would otherwise undo them.
type DirectoryMover interface {
	MoveDirectory(ctx context.Context, id, newParentID, newName string) error
}

// Handler holds API route handlers.
type Handler struct {
	svc    *treeservice.Service
	syncer reconcile.Syncer
	mover  DirectoryMover
}

// NewHandler creates a new Handler. syncer and mover may be nil, which
// disables the admin routes that need them.
func NewHandler(svc *treeservice.Service, syncer reconcile.Syncer, mover DirectoryMover) *Handler {
	return &Handler{svc: svc, syncer: syncer, mover: mover}
}

// Tree handles GET /api/tree and GET /api/tree/{id}.
//
//	@Summary		List one level of the sidebar tree
//	@Tags			tree
//	@Produce		json
//	@Param			id	path		string	false	"Directory id; the root when omitted"
//	@Success		200	{object}	TreeResponse
//	@Failure		404	{object}	errResponse
//	@Router			/tree/{id} [get]
func (h *Handler) Tree(w http.ResponseWriter, r *http.Request) {
	dir, entries, err := h.svc.Tree(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		writeError(w, "tree", err)
		return
	}
	writeJSON(w, http.StatusOK, TreeResponse{Directory: dir, Entries: entries})
}

// Directory handles GET /api/directories/{id}.
//
//	@Summary		Get a directory header
//	@Tags			tree
//	@Produce		json
//	@Param			id	path		string	true	"Directory id"
//	@Success		200	{object}	DirectoryDetail
//	@Failure		404	{object}	errResponse
//	@Router			/directories/{id} [get]
func (h *Handler) Directory(w http.ResponseWriter, r *http.Request) {
	dir, err := h.svc.Directory(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		writeError(w, "get directory", err)
		return
	}
	writeJSON(w, http.StatusOK, dir)
}

// Document handles GET /api/documents/{ref}.
//
//	@Summary		Get a document by id or custom id
//	@Tags			documents
//	@Produce		json
//	@Param			ref	path		string	true	"Document id or custom id"
//	@Success		200	{object}	DocumentDetail
//	@Failure		404	{object}	errResponse
//	@Router			/documents/{ref} [get]
func (h *Handler) Document(w http.ResponseWriter, r *http.Request) {
	doc, err := h.svc.GetDocument(r.Context(), chi.URLParam(r, "ref"))
	if err != nil {
		writeError(w, "get document", err)
		return
	}
	writeJSON(w, http.StatusOK, doc)
}

// Landing handles GET /api/landing.
//
//	@Summary		Get the root index document
//	@Tags			documents
//	@Produce		json
//	@Success		200	{object}	DocumentDetail
//	@Failure		404	{object}	errResponse
//	@Router			/landing [get]
func (h *Handler) Landing(w http.ResponseWriter, r *http.Request) {
	doc, err := h.svc.Landing(r.Context())
	if err != nil {
		writeError(w, "landing", err)
		return
	}
	writeJSON(w, http.StatusOK, doc)
}

// Stats handles GET /api/stats.
//
//	@Summary		Count directories and documents
//	@Tags			tree
//	@Produce		json
//	@Success		200	{object}	index.Stats
//	@Router			/stats [get]
func (h *Handler) Stats(w http.ResponseWriter, r *http.Request) {
	st, err := h.svc.Stats(r.Context())
	if err != nil {
		writeError(w, "stats", err)
		return
	}
	writeJSON(w, http.StatusOK, st)
}

// Sync handles POST /api/admin/sync.
//
//	@Summary		Run a reconciliation pass now
//	@Tags			admin
//	@Produce		json
//	@Success		200	{object}	SyncReport
//	@Failure		409	{object}	errResponse
//	@Failure		422	{object}	SyncFailedResponse
//	@Security		BearerAuth
//	@Router			/admin/sync [post]
func (h *Handler) Sync(w http.ResponseWriter, r *http.Request) {
	if h.syncer == nil {
		writeJSON(w, http.StatusNotImplemented, errorBody("sync not available"))
		return
	}
	report, err := h.syncer.Sync(r.Context())
	if err != nil {
		status, msg := statusFor(err)
		if errors.Is(err, apperr.ErrSyncInProgress) {
			writeJSON(w, status, errorBody(msg))
			return
		}
		if status >= http.StatusInternalServerError {
			writeError(w, "sync", err)
			return
		}
		writeJSON(w, status, SyncFailedResponse{Error: msg, Report: report})
		return
	}
	writeJSON(w, http.StatusOK, report)
}

// MoveDirectory handles POST /api/admin/directories/{id}/move. It records a
// move already made on disk so the directory keeps its id; a target that is
// not a directory in the content root is rejected with 400.
//
//	@Summary		Move or rename a directory in the store
//	@Tags			admin
//	@Accept			json
//	@Produce		json
//	@Param			id		path		string					true	"Directory id"
//	@Param			body	body		MoveDirectoryRequest	true	"Target parent and name"
//	@Success		200		{object}	DirectoryDetail
//	@Failure		400		{object}	errResponse
//	@Failure		404		{object}	errResponse
//	@Failure		409		{object}	errResponse
//	@Failure		422		{object}	errResponse
//	@Security		BearerAuth
//	@Router			/admin/directories/{id}/move [post]
func (h *Handler) MoveDirectory(w http.ResponseWriter, r *http.Request) {
	if h.mover == nil {
		writeJSON(w, http.StatusNotImplemented, errorBody("move not available"))
		return
	}
	r.Body = http.MaxBytesReader(w, r.Body, 1<<20)
	var req MoveDirectoryRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, errorBody("invalid JSON body"))
		return
	}
	if err := req.Validate(); err != nil {
		writeJSON(w, http.StatusBadRequest, errorBody(err.Error()))
		return
	}
	id := chi.URLParam(r, "id")
	if err := h.mover.MoveDirectory(r.Context(), id, req.Parent, req.Name); err != nil {
		writeError(w, "move directory", err)
		return
	}
	dir, err := h.svc.Directory(r.Context(), id)
	if err != nil {
		writeError(w, "move directory", err)
		return
	}
	writeJSON(w, http.StatusOK, dir)
}

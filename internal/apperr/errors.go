// Package apperr defines the sentinel errors shared across the sync engine,
// the tree store, and the presentation layers.
package apperr

import "errors"

var (
	ErrNotFound     = errors.New("not found")
	ErrConflict     = errors.New("conflict")
	ErrInvalidInput = errors.New("invalid input")

	// ErrFilesystem marks a per-entry filesystem failure. The entry is skipped.
	ErrFilesystem = errors.New("filesystem error")
	// ErrMalformedFrontMatter is reported for a document whose front matter block
	// is unterminated or cannot be decoded. The document is still ingested.
	ErrMalformedFrontMatter = errors.New("malformed front matter")
	// ErrAmbiguousMatch is logged when a rename/move candidate cannot be chosen.
	ErrAmbiguousMatch = errors.New("ambiguous match")

	ErrInvalidSegment  = errors.New("invalid path segment")
	ErrCycleDetected   = errors.New("cycle detected")
	ErrStorageConflict = errors.New("storage conflict")
	ErrSyncInProgress  = errors.New("sync already in progress")
)

// Package storage gives read-only access to the content root: a lazy,
// deterministic walk of its directories and markdown documents, and full
// reads of individual documents.
package storage

import (
	"context"
	"iter"
	"os"
	"time"

	"github.com/starford/kbtree/internal/models"
)

// Entry is one filesystem item yielded by a walk.
type Entry struct {
	Kind    models.EntryKind
	Path    string // slash-separated, relative to the content root
	Name    string
	Depth   int
	Size    int64
	ModTime time.Time
	// Err is set on an entry the walk had to skip. The walk goes on; an
	// error wrapping apperr.ErrFilesystem means the entry exists but could
	// not be read, a cycle error means it was excluded on purpose.
	Err error
}

// Provider is the interface for content root access.
type Provider interface {
	// Walk yields every directory and document below the root in pre-order,
	// siblings sorted by name. A non-nil error ends the sequence and means
	// the walk is incomplete. Skipped entries are yielded with Entry.Err set.
	Walk(ctx context.Context) iter.Seq2[Entry, error]
	// Read returns the raw bytes of the file at path (relative to the root).
	Read(path string) ([]byte, error)
	// Stat describes the item at path (relative to the root), following
	// symlinks.
	Stat(path string) (os.FileInfo, error)
	// Root returns the absolute content root.
	Root() string
}

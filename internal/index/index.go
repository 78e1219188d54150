package index

import (
	"context"

	"github.com/starford/kbtree/internal/models"
)

// TreeReader is the read side of the tree store. Consumers should depend on
// this interface rather than the concrete *DB type to facilitate testing
// with fakes.
type TreeReader interface {
	ListChildren(ctx context.Context, dirID string) ([]models.Entry, error)
	ListDirectory(ctx context.Context, dirID string) (*Listing, error)
	GetDirectory(ctx context.Context, id string) (*models.Directory, error)
	GetDocument(ctx context.Context, id string) (*models.Document, error)
	GetDocumentByCustomID(ctx context.Context, customID string) (*models.Document, error)
	GetDocumentByPath(ctx context.Context, path string) (*models.Document, error)
	Stats(ctx context.Context) (*Stats, error)
}

// Verify *DB satisfies TreeReader at compile time.
var _ TreeReader = (*DB)(nil)

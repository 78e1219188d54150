package reconcile

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"github.com/starford/kbtree/internal/apperr"
	"github.com/starford/kbtree/internal/pathmodel"
)

// MoveDirectory reparents and/or renames a stored directory outside a pass.
// The content root is the source of truth, so the move is refused unless
// the new path already exists there as a visible directory: the store is
// brought in line with a move made on disk, keeping the directory's id
// where the next pass could not decide on its own. It fails with
// apperr.ErrSyncInProgress while a pass runs.
func (e *Engine) MoveDirectory(ctx context.Context, id, newParentID, newName string) error {
	if !e.mu.TryLock() {
		return fmt.Errorf("reconcile: move directory: %w", apperr.ErrSyncInProgress)
	}
	defer e.mu.Unlock()

	if err := e.db.MoveDirectory(ctx, id, newParentID, newName, e.onDisk); err != nil {
		return fmt.Errorf("reconcile: %w", err)
	}
	e.logger.Info("sync: directory moved",
		slog.String("id", id),
		slog.String("parent_id", newParentID),
		slog.String("name", newName))
	return nil
}

// onDisk accepts p only if the walk would yield it as a directory.
func (e *Engine) onDisk(p string) error {
	for _, seg := range strings.Split(p, pathmodel.Separator) {
		if strings.HasPrefix(seg, ".") {
			return fmt.Errorf("%q is hidden from the content root: %w", p, apperr.ErrInvalidInput)
		}
	}
	info, err := e.fs.Stat(p)
	if err != nil {
		return fmt.Errorf("%q does not exist in the content root: %w", p, apperr.ErrInvalidInput)
	}
	if !info.IsDir() {
		return fmt.Errorf("%q is not a directory in the content root: %w", p, apperr.ErrInvalidInput)
	}
	return nil
}

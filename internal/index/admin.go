package index

import (
	"context"
	"fmt"

	"github.com/starford/kbtree/internal/pathmodel"
)

// MoveDirectory reparents and/or renames a directory in its own
// transaction, cascading paths to the whole subtree. Moving a directory
// under itself or one of its descendants fails with apperr.ErrCycleDetected
// and leaves storage unchanged. A non-nil verify is given the directory's
// new path before anything is written; its error aborts the move.
func (db *DB) MoveDirectory(ctx context.Context, id, newParentID, newName string, verify func(newPath string) error) error {
	tx, err := db.Begin(ctx)
	if err != nil {
		return err
	}
	defer tx.Rollback() //nolint:errcheck // no-op after commit

	snap, err := tx.LoadTree(ctx)
	if err != nil {
		return err
	}
	tree, err := pathmodel.NewTree(snap.Nodes())
	if err != nil {
		return fmt.Errorf("index: move directory: %w", err)
	}
	if newParentID == "" {
		newParentID = tree.RootID()
	}
	rewrites, err := tree.Move(id, newParentID, newName)
	if err != nil {
		return fmt.Errorf("index: move directory: %w", err)
	}
	if verify != nil {
		newPath, _ := tree.Path(id)
		if err := verify(newPath); err != nil {
			return fmt.Errorf("index: move directory: %w", err)
		}
	}
	if err := tx.MoveDirectory(ctx, id, newParentID, newName, rewrites); err != nil {
		return err
	}
	return tx.Commit()
}

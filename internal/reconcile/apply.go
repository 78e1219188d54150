package reconcile

import (
	"context"

	"github.com/starford/kbtree/internal/index"
)

// apply issues the plan's writes in an order that never trips the unique
// path and custom id constraints, and never lets a cascading directory
// delete take a document that was moved out of it.
func (p *plan) apply(ctx context.Context, tx *index.Tx) error {
	for _, op := range p.dirOps {
		var err error
		if m := op.move; m != nil {
			err = tx.MoveDirectory(ctx, m.id, m.parentID, m.name, m.rewrites)
		} else {
			err = tx.InsertDirectory(ctx, op.create)
		}
		if err != nil {
			return err
		}
	}
	for _, id := range p.clearCustomIDs {
		if err := tx.ClearCustomID(ctx, id); err != nil {
			return err
		}
	}
	for _, id := range p.docDeletes {
		if err := tx.DeleteDocument(ctx, id); err != nil {
			return err
		}
	}
	for _, m := range p.docMoves {
		if err := tx.MoveDocument(ctx, m.id, m.dirID, m.fileName, m.path); err != nil {
			return err
		}
	}
	for _, d := range p.docUpdates {
		if err := tx.UpdateDocument(ctx, d); err != nil {
			return err
		}
	}
	for _, d := range p.docCreates {
		if err := tx.InsertDocument(ctx, d); err != nil {
			return err
		}
	}
	for _, id := range p.dirDeletes {
		if err := tx.DeleteDirectory(ctx, id); err != nil {
			return err
		}
	}
	return nil
}

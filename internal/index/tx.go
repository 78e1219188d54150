package index

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/starford/kbtree/internal/models"
	"github.com/starford/kbtree/internal/pathmodel"
)

// Tx is one storage transaction. Every write goes through it so a
// reconciliation pass commits or rolls back as a unit.
type Tx struct {
	tx        *sql.Tx
	dialect   dialect
	mutations int
}

// Begin starts a transaction.
func (db *DB) Begin(ctx context.Context) (*Tx, error) {
	tx, err := db.conn.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("index: begin tx: %w", err)
	}
	return &Tx{tx: tx, dialect: db.dialect}, nil
}

// Commit commits the transaction.
func (t *Tx) Commit() error {
	if err := t.tx.Commit(); err != nil {
		return wrap("commit", err)
	}
	return nil
}

// Rollback aborts the transaction. It is safe to call after Commit.
func (t *Tx) Rollback() error {
	err := t.tx.Rollback()
	if err == nil || err == sql.ErrTxDone {
		return nil
	}
	return fmt.Errorf("index: rollback: %w", err)
}

// Mutations is the number of write statements issued so far.
func (t *Tx) Mutations() int { return t.mutations }

func (t *Tx) exec(ctx context.Context, op, query string, args ...any) (sql.Result, error) {
	t.mutations++
	res, err := t.tx.ExecContext(ctx, t.dialect.rebind(query), args...)
	if err != nil {
		return nil, wrap(op, err)
	}
	return res, nil
}

// Snapshot is the persisted tree as seen inside a transaction. Documents
// carry no content.
type Snapshot struct {
	Directories []models.Directory
	Documents   []models.Document
}

// Nodes converts the directories to path-model nodes.
func (s *Snapshot) Nodes() []pathmodel.Node {
	nodes := make([]pathmodel.Node, 0, len(s.Directories))
	for _, d := range s.Directories {
		nodes = append(nodes, pathmodel.Node{ID: d.ID, ParentID: d.ParentID, Name: d.Name, Path: d.Path})
	}
	return nodes
}

// LoadTree reads every directory and document.
func (t *Tx) LoadTree(ctx context.Context) (*Snapshot, error) {
	return loadTree(ctx, t.tx)
}

func loadTree(ctx context.Context, q querier) (*Snapshot, error) {
	snap := &Snapshot{}
	rows, err := q.QueryContext(ctx, `SELECT `+directoryColumns+` FROM directories ORDER BY path`)
	if err != nil {
		return nil, wrap("load directories", err)
	}
	for rows.Next() {
		d, err := scanDirectory(rows)
		if err != nil {
			rows.Close()
			return nil, wrap("scan directory", err)
		}
		snap.Directories = append(snap.Directories, *d)
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return nil, wrap("load directories", err)
	}

	rows, err = q.QueryContext(ctx, `SELECT `+documentColumns+` FROM documents ORDER BY path`)
	if err != nil {
		return nil, wrap("load documents", err)
	}
	defer rows.Close()
	for rows.Next() {
		d, err := scanDocument(rows, false)
		if err != nil {
			return nil, wrap("scan document", err)
		}
		snap.Documents = append(snap.Documents, *d)
	}
	if err := rows.Err(); err != nil {
		return nil, wrap("load documents", err)
	}
	return snap, nil
}

// InsertDirectory persists a new non-root directory. Timestamps are set
// when zero.
func (t *Tx) InsertDirectory(ctx context.Context, d *models.Directory) error {
	if d.CreatedAt.IsZero() {
		d.CreatedAt = now()
	}
	if d.UpdatedAt.IsZero() {
		d.UpdatedAt = d.CreatedAt
	}
	_, err := t.exec(ctx, "insert directory", `
		INSERT INTO directories (id, name, alias, parent, path, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?)`,
		d.ID, d.Name, nullable(d.Alias), nullable(d.ParentID), d.Path, d.CreatedAt, d.UpdatedAt)
	return err
}

// MoveDirectory gives id a new parent and name and applies the path
// rewrites computed by the path model: every rewritten directory gets its
// new path and every document below it is re-pathed from its owner.
func (t *Tx) MoveDirectory(ctx context.Context, id, parentID, name string, rewrites []pathmodel.Rewrite) error {
	ts := now()
	for _, rw := range rewrites {
		if rw.ID == id {
			if _, err := t.exec(ctx, "move directory",
				`UPDATE directories SET parent = ?, name = ?, path = ?, updated_at = ? WHERE id = ?`,
				parentID, name, rw.NewPath, ts, id); err != nil {
				return err
			}
		} else {
			if _, err := t.exec(ctx, "rewrite directory path",
				`UPDATE directories SET path = ?, updated_at = ? WHERE id = ?`,
				rw.NewPath, ts, rw.ID); err != nil {
				return err
			}
		}
		if _, err := t.exec(ctx, "rewrite document paths",
			`UPDATE documents SET path = CAST(? AS TEXT) || file_name, updated_at = ? WHERE directory = ?`,
			rw.NewPath+pathmodel.Separator, ts, rw.ID); err != nil {
			return err
		}
	}
	return nil
}

// DeleteDirectory removes a directory; its subtree and documents go with it
// through ON DELETE CASCADE.
func (t *Tx) DeleteDirectory(ctx context.Context, id string) error {
	_, err := t.exec(ctx, "delete directory",
		`DELETE FROM directories WHERE id = ? AND parent IS NOT NULL`, id)
	return err
}

// InsertDocument persists a new document.
func (t *Tx) InsertDocument(ctx context.Context, d *models.Document) error {
	if d.CreatedAt.IsZero() {
		d.CreatedAt = now()
	}
	if d.UpdatedAt.IsZero() {
		d.UpdatedAt = d.CreatedAt
	}
	_, err := t.exec(ctx, "insert document", `
		INSERT INTO documents (id, file_name, directory, path, title, derived_title, custom_id,
			tags, reading_time, checksum, mod_time, content, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		d.ID, d.FileName, d.DirectoryID, d.Path, d.Title, d.DerivedTitle, nullable(d.CustomID),
		d.Tags, d.ReadingTime, d.Checksum, d.ModTime, d.Content, d.CreatedAt, d.UpdatedAt)
	return err
}

// UpdateDocument rewrites location, metadata and content of an existing
// document, keeping its id and created_at.
func (t *Tx) UpdateDocument(ctx context.Context, d *models.Document) error {
	d.UpdatedAt = now()
	_, err := t.exec(ctx, "update document", `
		UPDATE documents SET
			file_name = ?, directory = ?, path = ?, title = ?, derived_title = ?, custom_id = ?,
			tags = ?, reading_time = ?, checksum = ?, mod_time = ?, content = ?, updated_at = ?
		WHERE id = ?`,
		d.FileName, d.DirectoryID, d.Path, d.Title, d.DerivedTitle, nullable(d.CustomID),
		d.Tags, d.ReadingTime, d.Checksum, d.ModTime, d.Content, d.UpdatedAt, d.ID)
	return err
}

// MoveDocument changes a document's owner and file name without touching
// its metadata.
func (t *Tx) MoveDocument(ctx context.Context, id, directoryID, fileName, path string) error {
	_, err := t.exec(ctx, "move document",
		`UPDATE documents SET directory = ?, file_name = ?, path = ?, updated_at = ? WHERE id = ?`,
		directoryID, fileName, path, now(), id)
	return err
}

// ClearCustomID releases a document's custom id so another document can
// claim it within the same transaction.
func (t *Tx) ClearCustomID(ctx context.Context, id string) error {
	_, err := t.exec(ctx, "clear custom id",
		`UPDATE documents SET custom_id = NULL WHERE id = ?`, id)
	return err
}

// DeleteDocument removes a document.
func (t *Tx) DeleteDocument(ctx context.Context, id string) error {
	_, err := t.exec(ctx, "delete document", `DELETE FROM documents WHERE id = ?`, id)
	return err
}

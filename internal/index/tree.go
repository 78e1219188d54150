package index

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/starford/kbtree/internal/apperr"
	"github.com/starford/kbtree/internal/models"
)

// querier is satisfied by *sql.DB and *sql.Tx.
type querier interface {
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

const directoryColumns = `id, name, alias, parent, path, created_at, updated_at`

const documentColumns = `id, file_name, directory, path, title, derived_title, custom_id,
	tags, reading_time, checksum, mod_time, created_at, updated_at`

type scanner interface {
	Scan(dest ...any) error
}

func scanDirectory(s scanner) (*models.Directory, error) {
	var (
		d      models.Directory
		alias  sql.NullString
		parent sql.NullString
	)
	if err := s.Scan(&d.ID, &d.Name, &alias, &parent, &d.Path, &d.CreatedAt, &d.UpdatedAt); err != nil {
		return nil, err
	}
	d.Alias = alias.String
	d.ParentID = parent.String
	return &d, nil
}

// scanDocument reads documentColumns, optionally followed by content.
func scanDocument(s scanner, withContent bool) (*models.Document, error) {
	var (
		d        models.Document
		customID sql.NullString
	)
	dest := []any{
		&d.ID, &d.FileName, &d.DirectoryID, &d.Path, &d.Title, &d.DerivedTitle, &customID,
		&d.Tags, &d.ReadingTime, &d.Checksum, &d.ModTime, &d.CreatedAt, &d.UpdatedAt,
	}
	if withContent {
		dest = append(dest, &d.Content)
	}
	if err := s.Scan(dest...); err != nil {
		return nil, err
	}
	d.CustomID = customID.String
	return &d, nil
}

func now() time.Time { return time.Now().UTC() }

// EnsureRoot creates the root directory on first run and keeps its alias in
// step with alias. Subsequent calls with the same alias write nothing.
func (db *DB) EnsureRoot(ctx context.Context, alias string) (*models.Directory, error) {
	root, err := db.GetDirectory(ctx, "")
	switch {
	case err == nil:
		if root.Alias == alias {
			return root, nil
		}
		ts := now()
		if _, err := db.conn.ExecContext(ctx,
			db.q(`UPDATE directories SET alias = ?, updated_at = ? WHERE id = ?`),
			nullable(alias), ts, root.ID); err != nil {
			return nil, wrap("update root alias", err)
		}
		root.Alias = alias
		root.UpdatedAt = ts
		return root, nil
	case !isNotFound(err):
		return nil, err
	}

	ts := now()
	root = &models.Directory{ID: uuid.NewString(), Alias: alias, CreatedAt: ts, UpdatedAt: ts}
	if _, err := db.conn.ExecContext(ctx,
		db.q(`INSERT INTO directories (id, name, alias, parent, path, created_at, updated_at)
			VALUES (?, '', ?, NULL, '', ?, ?)`),
		root.ID, nullable(alias), ts, ts); err != nil {
		return nil, wrap("insert root", err)
	}
	return root, nil
}

// GetDirectory returns a directory by id. The empty id selects the root.
func (db *DB) GetDirectory(ctx context.Context, id string) (*models.Directory, error) {
	var row *sql.Row
	if id == "" {
		row = db.conn.QueryRowContext(ctx,
			`SELECT `+directoryColumns+` FROM directories WHERE parent IS NULL`)
	} else {
		row = db.conn.QueryRowContext(ctx,
			db.q(`SELECT `+directoryColumns+` FROM directories WHERE id = ?`), id)
	}
	d, err := scanDirectory(row)
	if err != nil {
		return nil, wrap("get directory", err)
	}
	return d, nil
}

// ListChildren returns the immediate child directories of dirID followed by
// its documents, each group ordered by name. The empty id selects the root.
func (db *DB) ListChildren(ctx context.Context, dirID string) ([]models.Entry, error) {
	l, err := db.ListDirectory(ctx, dirID)
	if err != nil {
		return nil, err
	}
	return l.Entries, nil
}

// Listing is a directory together with its ancestors and children.
type Listing struct {
	Directory models.Directory
	Ancestors []models.Directory // root first, excluding Directory
	Entries   []models.Entry
}

// maxDepth stops the ancestor walk on a corrupt parent chain.
const maxDepth = 4096

// ListDirectory returns dirID (the root when empty), its ancestors and its
// children. A single statement serves all of it so the result reflects one
// committed state even while a pass is running.
func (db *DB) ListDirectory(ctx context.Context, dirID string) (*Listing, error) {
	rows, err := db.conn.QueryContext(ctx, db.q(`
		WITH RECURSIVE target AS (
			SELECT id, parent FROM directories
			WHERE (? = '' AND parent IS NULL) OR id = ?
		), chain (id, parent, lvl) AS (
			SELECT d.id, d.parent, 1
				FROM directories d JOIN target t ON d.id = t.parent
			UNION ALL
			SELECT d.id, d.parent, c.lvl + 1
				FROM directories d JOIN chain c ON d.id = c.parent
				WHERE c.lvl < `+fmt.Sprint(maxDepth)+`
		)
		SELECT 0 AS rank, -c.lvl AS ord, d.id, d.name, COALESCE(d.alias, ''), d.path,
				COALESCE(d.parent, ''), '', ''
			FROM directories d JOIN chain c ON d.id = c.id
		UNION ALL
		SELECT 1, 0, d.id, d.name, COALESCE(d.alias, ''), d.path, COALESCE(d.parent, ''), '', ''
			FROM directories d JOIN target t ON d.id = t.id
		UNION ALL
		SELECT 2, 0, d.id, d.name, COALESCE(d.alias, ''), d.path, COALESCE(d.parent, ''), '', ''
			FROM directories d JOIN target t ON d.parent = t.id
		UNION ALL
		SELECT 3, 0, doc.id, doc.file_name, '', doc.path, doc.directory, doc.title,
				COALESCE(doc.custom_id, '')
			FROM documents doc JOIN target t ON doc.directory = t.id
		ORDER BY 1, 2, 4`), dirID, dirID)
	if err != nil {
		return nil, wrap("list directory", err)
	}
	defer rows.Close()

	var (
		found bool
		l     = &Listing{Ancestors: []models.Directory{}, Entries: make([]models.Entry, 0)}
	)
	for rows.Next() {
		var (
			rank, ord int
			e         models.Entry
			alias     string
			parent    string
		)
		if err := rows.Scan(&rank, &ord, &e.ID, &e.Name, &alias, &e.Path, &parent, &e.Title, &e.CustomID); err != nil {
			return nil, wrap("scan listing", err)
		}
		dir := models.Directory{ID: e.ID, Name: e.Name, Alias: alias, ParentID: parent, Path: e.Path}
		switch rank {
		case 0:
			l.Ancestors = append(l.Ancestors, dir)
		case 1:
			found = true
			l.Directory = dir
		case 2:
			e.Kind = models.KindDirectory
			e.DisplayName = dir.DisplayName()
			l.Entries = append(l.Entries, e)
		default:
			e.Kind = models.KindDocument
			e.DisplayName = e.Title
			if e.DisplayName == "" {
				e.DisplayName = e.Name
			}
			l.Entries = append(l.Entries, e)
		}
	}
	if err := rows.Err(); err != nil {
		return nil, wrap("list directory", err)
	}
	if !found {
		return nil, fmt.Errorf("index: directory %q: %w", dirID, apperr.ErrNotFound)
	}
	return l, nil
}

// GetDocument returns a document, including its content, by id.
func (db *DB) GetDocument(ctx context.Context, id string) (*models.Document, error) {
	return db.getDocument(ctx, "id", id)
}

// GetDocumentByCustomID returns a document by its custom id.
func (db *DB) GetDocumentByCustomID(ctx context.Context, customID string) (*models.Document, error) {
	if customID == "" {
		return nil, fmt.Errorf("index: empty custom id: %w", apperr.ErrNotFound)
	}
	return db.getDocument(ctx, "custom_id", customID)
}

// GetDocumentByPath returns a document by its materialized path.
func (db *DB) GetDocumentByPath(ctx context.Context, path string) (*models.Document, error) {
	return db.getDocument(ctx, "path", path)
}

func (db *DB) getDocument(ctx context.Context, column, value string) (*models.Document, error) {
	row := db.conn.QueryRowContext(ctx,
		db.q(`SELECT `+documentColumns+`, content FROM documents WHERE `+column+` = ?`), value)
	d, err := scanDocument(row, true)
	if err != nil {
		return nil, wrap("get document", err)
	}
	return d, nil
}

// Stats summarizes the persisted tree.
type Stats struct {
	Directories int        `json:"directories"`
	Documents   int        `json:"documents"`
	LastUpdate  *time.Time `json:"last_update,omitempty"`
}

// Stats counts directories (root included) and documents.
func (db *DB) Stats(ctx context.Context) (*Stats, error) {
	var s Stats
	err := db.conn.QueryRowContext(ctx, `
		SELECT
			(SELECT COUNT(*) FROM directories),
			(SELECT COUNT(*) FROM documents)`).Scan(&s.Directories, &s.Documents)
	if err != nil {
		return nil, wrap("stats", err)
	}
	var last time.Time
	err = db.conn.QueryRowContext(ctx,
		`SELECT updated_at FROM documents ORDER BY updated_at DESC LIMIT 1`).Scan(&last)
	switch {
	case err == nil:
		s.LastUpdate = &last
	case !errors.Is(err, sql.ErrNoRows):
		return nil, wrap("stats", err)
	}
	return &s, nil
}

func isNotFound(err error) bool {
	return err != nil && errors.Is(err, apperr.ErrNotFound)
}

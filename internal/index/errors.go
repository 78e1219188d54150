package index

import (
	"database/sql"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5/pgconn"
	"github.com/mattn/go-sqlite3"

	"github.com/starford/kbtree/internal/apperr"
)

// wrap annotates err with op and maps constraint violations and missing rows
// onto the apperr sentinels.
func wrap(op string, err error) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, sql.ErrNoRows) {
		return fmt.Errorf("index: %s: %w", op, apperr.ErrNotFound)
	}
	if isConstraint(err) {
		return fmt.Errorf("index: %s: %w: %w", op, apperr.ErrStorageConflict, err)
	}
	return fmt.Errorf("index: %s: %w", op, err)
}

func isConstraint(err error) bool {
	var sqliteErr sqlite3.Error
	if errors.As(err, &sqliteErr) {
		switch sqliteErr.ExtendedCode {
		case sqlite3.ErrConstraintUnique, sqlite3.ErrConstraintPrimaryKey, sqlite3.ErrConstraintForeignKey:
			return true
		}
		return false
	}
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		// unique_violation, foreign_key_violation
		return pgErr.Code == "23505" || pgErr.Code == "23503"
	}
	return false
}

// nullable stores empty strings as NULL so UNIQUE columns accept many of them.
func nullable(s string) any {
	if s == "" {
		return nil
	}
	return s
}

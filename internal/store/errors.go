package store

import (
	"database/sql"
	"errors"
	"fmt"
	"strings"

	"github.com/mattn/go-sqlite3"

	"github.com/starford/bitkeep/internal/apperr"
)

// classify maps SQLite constraint failures onto the apperr taxonomy.
func classify(err error) error {
	var se sqlite3.Error
	if !errors.As(err, &se) {
		return err
	}
	switch se.ExtendedCode {
	case sqlite3.ErrConstraintPrimaryKey, sqlite3.ErrConstraintUnique:
		return fmt.Errorf("%w: %w", apperr.ErrAlreadyExists, err)
	case sqlite3.ErrConstraintForeignKey:
		return fmt.Errorf("%w: referenced row: %w", apperr.ErrNotFound, err)
	}
	return err
}

// wrap prefixes a failed operation and classifies the cause.
func wrap(op string, err error) error {
	if err == nil {
		return nil
	}
	return fmt.Errorf("store: %s: %w", op, classify(err))
}

// mustAffect turns a zero-row update or delete into apperr.ErrNotFound.
func mustAffect(op string, res sql.Result, err error) error {
	if err != nil {
		return wrap(op, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return wrap(op, err)
	}
	if n == 0 {
		return fmt.Errorf("store: %s: %w", op, apperr.ErrNotFound)
	}
	return nil
}

// notIn renders " AND col NOT IN (?, ...)" for keep, or "" when keep is empty.
func notIn(col string, keep []string) (string, []any) {
	if len(keep) == 0 {
		return "", nil
	}
	args := make([]any, len(keep))
	for i, k := range keep {
		args[i] = k
	}
	return " AND " + col + " NOT IN (" + strings.TrimSuffix(strings.Repeat("?,", len(keep)), ",") + ")", args
}

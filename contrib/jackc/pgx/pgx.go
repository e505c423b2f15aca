// Unless explicitly stated otherwise all files in this repository are
// licensed under the Apache License Version 2.0.
// Copyright 2026 PromptGrimoire contributors.

// Package pgx backs both the Replica Store's cold-load path and the
// Persistence Manager's flush path with a Postgres table, via
// github.com/jackc/pgx/v5/pgxpool, in the same pool-wraps-the-same-way
// shape as the teacher's own contrib/jackc/pgx/v5/pgxpool package.
package pgx

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/MQFacultyOfArts/promptgrimoire-ace/persistence"
)

// DefaultTable is the table name used unless overridden with WithTable.
// Columns match spec.md §6's state blob format: state bytea, highlight_count
// int, last_editor text, updated_at timestamptz.
const DefaultTable = "ace_documents"

// Loader is a persistence.StateLoader and store.StateLoader backed by a
// Postgres table.
type Loader struct {
	pool  *pgxpool.Pool
	table string
}

// Option configures a Loader.
type Option func(*Loader)

// WithTable overrides the table name (default DefaultTable), for hosts that
// already have a conflicting name in their schema.
func WithTable(name string) Option {
	return func(l *Loader) { l.table = name }
}

// New wraps an existing pool. The pool's lifetime is owned by the caller.
func New(pool *pgxpool.Pool, opts ...Option) *Loader {
	l := &Loader{pool: pool, table: DefaultTable}
	for _, opt := range opts {
		opt(l)
	}
	return l
}

// Connect opens a pool against connString and wraps it, in the same
// Connect-does-both-steps convenience shape as the teacher's own
// pgxpool.New wrapper.
func Connect(ctx context.Context, connString string, opts ...Option) (*Loader, error) {
	pool, err := pgxpool.New(ctx, connString)
	if err != nil {
		return nil, fmt.Errorf("contrib/jackc/pgx: connect: %w", err)
	}
	return New(pool, opts...), nil
}

// Close releases the underlying pool.
func (l *Loader) Close() {
	l.pool.Close()
}

// Load implements store.StateLoader.
func (l *Loader) Load(ctx context.Context, documentID string) ([]byte, bool, error) {
	var blob []byte
	query := fmt.Sprintf(`SELECT state FROM %s WHERE document_id = $1`, l.table)
	err := l.pool.QueryRow(ctx, query, documentID).Scan(&blob)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, false, nil
		}
		return nil, false, fmt.Errorf("contrib/jackc/pgx: load %s: %w", documentID, err)
	}
	return blob, true, nil
}

// Save implements persistence.StateLoader, upserting the state blob and
// its metadata columns in one statement.
func (l *Loader) Save(ctx context.Context, documentID string, blob []byte, meta persistence.SaveMeta) error {
	query := fmt.Sprintf(`
INSERT INTO %s (document_id, state, highlight_count, last_editor, updated_at)
VALUES ($1, $2, $3, $4, now())
ON CONFLICT (document_id) DO UPDATE SET
	state = EXCLUDED.state,
	highlight_count = EXCLUDED.highlight_count,
	last_editor = EXCLUDED.last_editor,
	updated_at = EXCLUDED.updated_at
`, l.table)

	var editor any
	if meta.LastEditor != "" {
		editor = meta.LastEditor
	}

	if _, err := l.pool.Exec(ctx, query, documentID, blob, meta.HighlightCount, editor); err != nil {
		return fmt.Errorf("contrib/jackc/pgx: save %s: %w", documentID, err)
	}
	return nil
}

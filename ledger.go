package glidein

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	_ "github.com/glebarez/sqlite" // SQLite driver (pure Go, no CGO)
)

// Ledger records workspaces in SQLite so that retired ones can be swept
// after a retention period.
type Ledger struct {
	db *sql.DB
}

// LedgerEntry is one recorded workspace.
type LedgerEntry struct {
	ID      string
	Path    string
	Created time.Time
	// Retired is zero while the workspace is live
	Retired time.Time
}

// OpenLedger opens (creating if needed) the ledger database at path.
func OpenLedger(path string) (*Ledger, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("failed to open workspace ledger: %w", err)
	}
	// A single connection serializes writers
	db.SetMaxOpenConns(1)

	l := &Ledger{db: db}
	if err := l.createTables(); err != nil {
		_ = db.Close()
		return nil, err
	}
	return l, nil
}

func (l *Ledger) createTables() error {
	_, err := l.db.Exec(`
	CREATE TABLE IF NOT EXISTS workspaces (
		id TEXT PRIMARY KEY,
		path TEXT NOT NULL,
		created_at INTEGER NOT NULL,
		retired_at INTEGER NOT NULL DEFAULT 0
	);
	CREATE INDEX IF NOT EXISTS idx_workspaces_retired ON workspaces(retired_at);
	`)
	if err != nil {
		return fmt.Errorf("failed to create workspace ledger tables: %w", err)
	}
	return nil
}

// Close closes the database.
func (l *Ledger) Close() error {
	return l.db.Close()
}

// Record adds a new workspace.
func (l *Ledger) Record(ctx context.Context, ws *Workspace) error {
	_, err := l.db.ExecContext(ctx,
		`INSERT INTO workspaces (id, path, created_at) VALUES (?, ?, ?)`,
		ws.ID, ws.Path, ws.Created.Unix())
	if err != nil {
		return fmt.Errorf("failed to record workspace %s: %w", ws.ID, err)
	}
	return nil
}

// Lookup returns the entry for id, or ErrWorkspaceNotFound.
func (l *Ledger) Lookup(ctx context.Context, id string) (*LedgerEntry, error) {
	row := l.db.QueryRowContext(ctx,
		`SELECT id, path, created_at, retired_at FROM workspaces WHERE id = ?`, id)
	entry, err := scanLedgerEntry(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrWorkspaceNotFound
	}
	return entry, err
}

// Retire marks a workspace retired at the given time. Retiring twice keeps
// the first time.
func (l *Ledger) Retire(ctx context.Context, id string, at time.Time) error {
	_, err := l.db.ExecContext(ctx,
		`UPDATE workspaces SET retired_at = ? WHERE id = ? AND retired_at = 0`, at.Unix(), id)
	if err != nil {
		return fmt.Errorf("failed to retire workspace %s: %w", id, err)
	}
	return nil
}

// RetiredBefore lists workspaces retired before cutoff.
func (l *Ledger) RetiredBefore(ctx context.Context, cutoff time.Time) ([]LedgerEntry, error) {
	rows, err := l.db.QueryContext(ctx,
		`SELECT id, path, created_at, retired_at FROM workspaces WHERE retired_at > 0 AND retired_at < ?`, cutoff.Unix())
	if err != nil {
		return nil, fmt.Errorf("failed to list retired workspaces: %w", err)
	}
	defer rows.Close()

	var entries []LedgerEntry
	for rows.Next() {
		entry, err := scanLedgerEntry(rows)
		if err != nil {
			return nil, err
		}
		entries = append(entries, *entry)
	}
	return entries, rows.Err()
}

// Delete removes a workspace from the ledger.
func (l *Ledger) Delete(ctx context.Context, id string) error {
	if _, err := l.db.ExecContext(ctx, `DELETE FROM workspaces WHERE id = ?`, id); err != nil {
		return fmt.Errorf("failed to delete workspace %s: %w", id, err)
	}
	return nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanLedgerEntry(row rowScanner) (*LedgerEntry, error) {
	var (
		entry            LedgerEntry
		created, retired int64
	)
	if err := row.Scan(&entry.ID, &entry.Path, &created, &retired); err != nil {
		return nil, err
	}
	entry.Created = time.Unix(created, 0)
	if retired > 0 {
		entry.Retired = time.Unix(retired, 0)
	}
	return &entry, nil
}

package store

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	_ "github.com/tursodatabase/go-libsql"

	"github.com/rendis/graphspace/pkg/schema"
)

// LibSQLStore implements Store using libSQL (embedded SQLite fork).
type LibSQLStore struct {
	db *sql.DB
}

var _ Store = (*LibSQLStore)(nil)

// NewLibSQLStore opens a libSQL database at the given path.
// The path should be a file URI, e.g. "file:/path/to/graphspace.db".
func NewLibSQLStore(dbPath string) (*LibSQLStore, error) {
	db, err := sql.Open("libsql", dbPath)
	if err != nil {
		return nil, fmt.Errorf("open libsql: %w", err)
	}
	db.SetMaxOpenConns(1)

	// Some PRAGMAs return rows so we use QueryRow.
	pragmas := []string{
		"PRAGMA journal_mode=WAL",
		"PRAGMA synchronous=NORMAL",
		"PRAGMA busy_timeout=5000",
		"PRAGMA temp_store=MEMORY",
	}
	for _, p := range pragmas {
		var result string
		_ = db.QueryRow(p).Scan(&result)
	}

	return &LibSQLStore{db: db}, nil
}

// DB returns the underlying *sql.DB (used by the event log).
func (s *LibSQLStore) DB() *sql.DB { return s.db }

// Close closes the database.
func (s *LibSQLStore) Close() error { return s.db.Close() }

// Migrate runs all pending database migrations.
func (s *LibSQLStore) Migrate(ctx context.Context) error {
	return runMigrations(ctx, s.db)
}

// Vacuum runs VACUUM on the database.
func (s *LibSQLStore) Vacuum(ctx context.Context) error {
	_, err := s.db.ExecContext(ctx, "VACUUM")
	return err
}

// --- Settings ---

// LoadSettings returns every persisted setting as its raw JSON value.
func (s *LibSQLStore) LoadSettings(ctx context.Context) (map[string]string, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT key, value FROM settings`)
	if err != nil {
		return nil, storeError("load settings", err)
	}
	defer rows.Close()

	out := make(map[string]string)
	for rows.Next() {
		var k, v string
		if err := rows.Scan(&k, &v); err != nil {
			return nil, storeError("scan setting", err)
		}
		out[k] = v
	}
	if err := rows.Err(); err != nil {
		return nil, storeError("load settings", err)
	}
	return out, nil
}

// SaveSettings upserts the given keys in one transaction.
func (s *LibSQLStore) SaveSettings(ctx context.Context, values map[string]string) error {
	if len(values) == 0 {
		return nil
	}
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return storeError("begin settings tx", err)
	}
	defer tx.Rollback()

	now := time.Now().UTC()
	for k, v := range values {
		if _, err := tx.ExecContext(ctx,
			`INSERT INTO settings (key, value, updated_at) VALUES (?, ?, ?)
			 ON CONFLICT(key) DO UPDATE SET value=excluded.value, updated_at=excluded.updated_at`,
			k, v, now,
		); err != nil {
			return storeError("save setting "+k, err)
		}
	}
	if err := tx.Commit(); err != nil {
		return storeError("commit settings", err)
	}
	return nil
}

// --- Snapshots ---

// SaveSnapshot appends a snapshot and fills in its ID and SavedAt.
func (s *LibSQLStore) SaveSnapshot(ctx context.Context, snap *Snapshot) error {
	if snap.Name == "" {
		return schema.NewError(schema.ErrCodeValidation, "snapshot name is required")
	}
	snap.SavedAt = timeOrNow(snap.SavedAt)
	err := s.db.QueryRowContext(ctx,
		`INSERT INTO graph_snapshots (name, format, content, node_count, edge_count, saved_at)
		 VALUES (?, ?, ?, ?, ?, ?) RETURNING id`,
		snap.Name, snap.Format, snap.Content, snap.NodeCount, snap.EdgeCount, snap.SavedAt,
	).Scan(&snap.ID)
	if err != nil {
		return storeError("save snapshot", err)
	}
	return nil
}

// LatestSnapshot returns the newest snapshot saved under name.
func (s *LibSQLStore) LatestSnapshot(ctx context.Context, name string) (*Snapshot, error) {
	snap := &Snapshot{}
	err := s.db.QueryRowContext(ctx,
		`SELECT id, name, format, content, node_count, edge_count, saved_at
		 FROM graph_snapshots WHERE name = ? ORDER BY id DESC LIMIT 1`, name,
	).Scan(&snap.ID, &snap.Name, &snap.Format, &snap.Content, &snap.NodeCount, &snap.EdgeCount, &snap.SavedAt)
	if err == sql.ErrNoRows {
		return nil, storeNotFound("snapshot", name)
	}
	if err != nil {
		return nil, storeError("get snapshot", err)
	}
	return snap, nil
}

// ListSnapshots returns snapshot headers, newest first.
func (s *LibSQLStore) ListSnapshots(ctx context.Context, filter SnapshotFilter) ([]*Snapshot, error) {
	query := `SELECT id, name, format, node_count, edge_count, saved_at FROM graph_snapshots`
	var args []any
	if filter.Name != "" {
		query += " WHERE name = ?"
		args = append(args, filter.Name)
	}
	query += " ORDER BY id DESC"
	if filter.Limit > 0 {
		query += fmt.Sprintf(" LIMIT %d", filter.Limit)
	}

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, storeError("list snapshots", err)
	}
	defer rows.Close()

	var out []*Snapshot
	for rows.Next() {
		snap := &Snapshot{}
		if err := rows.Scan(&snap.ID, &snap.Name, &snap.Format, &snap.NodeCount, &snap.EdgeCount, &snap.SavedAt); err != nil {
			return nil, storeError("scan snapshot", err)
		}
		out = append(out, snap)
	}
	return out, rows.Err()
}

// PruneSnapshots keeps the newest keep snapshots of name and deletes the rest.
func (s *LibSQLStore) PruneSnapshots(ctx context.Context, name string, keep int) (int64, error) {
	if keep < 0 {
		keep = 0
	}
	res, err := s.db.ExecContext(ctx,
		`DELETE FROM graph_snapshots WHERE name = ? AND id NOT IN (
			SELECT id FROM graph_snapshots WHERE name = ? ORDER BY id DESC LIMIT ?
		)`, name, name, keep,
	)
	if err != nil {
		return 0, storeError("prune snapshots", err)
	}
	return res.RowsAffected()
}

// --- Helpers ---

func storeNotFound(resource, id string) *schema.GraphspaceError {
	return schema.NewErrorf(schema.ErrCodeNotFound, "%s %q not found", resource, id)
}

func storeError(op string, err error) *schema.GraphspaceError {
	return schema.NewErrorf(schema.ErrCodeStore, "%s failed", op).WithCause(err)
}

func timeOrNow(t time.Time) time.Time {
	if t.IsZero() {
		return time.Now().UTC()
	}
	return t
}

func nullStr(s string) any {
	if s == "" {
		return nil
	}
	return s
}

func whereClause(conds []string) string {
	if len(conds) == 0 {
		return ""
	}
	return " WHERE " + strings.Join(conds, " AND ")
}

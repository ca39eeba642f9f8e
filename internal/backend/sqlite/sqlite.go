// Package sqlite stores bulk chunks in a local SQLite database with an FTS5
// index over the document bodies.
package sqlite

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"sync"

	_ "modernc.org/sqlite" // Pure Go SQLite driver (no CGO)

	"github.com/Aman-CERP/rowbulk/internal/bulk"
)

// Backend implements bulk.Backend on SQLite.
type Backend struct {
	mu     sync.RWMutex
	db     *sql.DB
	path   string
	closed bool
}

var _ bulk.Backend = (*Backend)(nil)

// New opens (or creates) the database at path. An empty path keeps the
// database in memory.
func New(path string) (*Backend, error) {
	var dsn string
	if path == "" {
		dsn = ":memory:"
	} else {
		dir := filepath.Dir(path)
		if err := os.MkdirAll(dir, 0755); err != nil {
			return nil, fmt.Errorf("failed to create directory %s: %w", dir, err)
		}

		if validErr := validateIntegrity(path); validErr != nil {
			slog.Warn("sqlite_store_corrupted",
				slog.String("path", path),
				slog.String("error", validErr.Error()))

			if removeErr := os.Remove(path); removeErr != nil && !os.IsNotExist(removeErr) {
				return nil, fmt.Errorf("store corrupted at %s and cannot remove: %w (original error: %v)", path, removeErr, validErr)
			}
			_ = os.Remove(path + "-wal")
			_ = os.Remove(path + "-shm")

			slog.Info("sqlite_store_cleared",
				slog.String("path", path),
				slog.String("reason", "corruption detected, rebuilding"))
		}
		dsn = path
	}

	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	// Single writer. Also keeps an in-memory database alive on one connection.
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)
	db.SetConnMaxLifetime(0)

	// DSN params may be ignored by modernc.org/sqlite, so pragmas are set
	// as statements.
	pragmas := []string{
		"PRAGMA journal_mode = WAL",
		"PRAGMA busy_timeout = 5000",
		"PRAGMA synchronous = NORMAL",
		"PRAGMA temp_store = MEMORY",
	}
	for _, pragma := range pragmas {
		if _, err := db.Exec(pragma); err != nil {
			_ = db.Close()
			return nil, fmt.Errorf("failed to set pragma: %w", err)
		}
	}

	b := &Backend{db: db, path: path}
	if err := b.initSchema(); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to initialize schema: %w", err)
	}
	return b, nil
}

func (b *Backend) initSchema() error {
	schema := `
	CREATE TABLE IF NOT EXISTS schema_version (
		version INTEGER PRIMARY KEY
	);

	CREATE TABLE IF NOT EXISTS documents (
		id     INTEGER PRIMARY KEY AUTOINCREMENT,
		target TEXT NOT NULL,
		row_id TEXT NOT NULL,
		body   TEXT NOT NULL
	);
	CREATE INDEX IF NOT EXISTS documents_target ON documents(target);

	-- rowid matches documents.id
	CREATE VIRTUAL TABLE IF NOT EXISTS documents_fts USING fts5(
		body,
		tokenize='unicode61'
	);

	INSERT OR IGNORE INTO schema_version (version) VALUES (1);
	`
	_, err := b.db.Exec(schema)
	return err
}

// Name implements bulk.Backend.
func (b *Backend) Name() string { return "sqlite" }

// Bulk stores units in one transaction. Bodies that are not JSON objects
// fail individually; a database error fails the chunk.
func (b *Backend) Bulk(ctx context.Context, target string, units []bulk.Unit) (*bulk.Response, error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.closed {
		return nil, fmt.Errorf("store is closed")
	}

	tx, err := b.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	docStmt, err := tx.PrepareContext(ctx,
		`INSERT INTO documents(target, row_id, body) VALUES (?, ?, ?)`)
	if err != nil {
		return nil, fmt.Errorf("failed to prepare document statement: %w", err)
	}
	defer docStmt.Close()

	ftsStmt, err := tx.PrepareContext(ctx,
		`INSERT INTO documents_fts(rowid, body) VALUES (?, ?)`)
	if err != nil {
		return nil, fmt.Errorf("failed to prepare FTS statement: %w", err)
	}
	defer ftsStmt.Close()

	resp := &bulk.Response{Items: make([]bulk.ItemResult, len(units))}
	for i, u := range units {
		var obj map[string]json.RawMessage
		if err := json.Unmarshal(u.Body, &obj); err != nil {
			resp.Items[i] = bulk.ItemResult{Status: http.StatusBadRequest, Error: fmt.Sprintf("invalid document: %v", err)}
			continue
		}

		res, err := docStmt.ExecContext(ctx, target, u.RowID, string(u.Body))
		if err != nil {
			return nil, fmt.Errorf("failed to store row %s: %w", u.RowID, err)
		}
		id, err := res.LastInsertId()
		if err != nil {
			return nil, fmt.Errorf("failed to read id for row %s: %w", u.RowID, err)
		}
		if _, err := ftsStmt.ExecContext(ctx, id, string(u.Body)); err != nil {
			return nil, fmt.Errorf("failed to index row %s: %w", u.RowID, err)
		}
		resp.Items[i] = bulk.ItemResult{ID: strconv.FormatInt(id, 10), Status: http.StatusCreated}
	}

	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("failed to commit chunk: %w", err)
	}
	return resp, nil
}

// Count returns the number of documents stored for target.
func (b *Backend) Count(ctx context.Context, target string) (uint64, error) {
	b.mu.RLock()
	defer b.mu.RUnlock()

	if b.closed {
		return 0, fmt.Errorf("store is closed")
	}
	var n uint64
	err := b.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM documents WHERE target = ?`, target).Scan(&n)
	return n, err
}

// Search runs an FTS5 match against target and returns the row ids of the
// hits, best first. An invalid match expression yields no hits.
func (b *Backend) Search(ctx context.Context, target, query string, limit int) ([]string, error) {
	b.mu.RLock()
	defer b.mu.RUnlock()

	if b.closed {
		return nil, fmt.Errorf("store is closed")
	}
	if strings.TrimSpace(query) == "" {
		return []string{}, nil
	}

	rows, err := b.db.QueryContext(ctx, `
		SELECT d.row_id
		FROM documents_fts f
		JOIN documents d ON d.id = f.rowid
		WHERE documents_fts MATCH ? AND d.target = ?
		ORDER BY bm25(documents_fts)
		LIMIT ?`, query, target, limit)
	if err != nil {
		if isMatchSyntaxError(err) {
			return []string{}, nil
		}
		return nil, fmt.Errorf("search failed: %w", err)
	}
	defer rows.Close()

	out := []string{}
	for rows.Next() {
		var rowID string
		if err := rows.Scan(&rowID); err != nil {
			return nil, fmt.Errorf("failed to scan result: %w", err)
		}
		out = append(out, rowID)
	}
	if err := rows.Err(); err != nil {
		if isMatchSyntaxError(err) {
			return []string{}, nil
		}
		return nil, fmt.Errorf("search failed: %w", err)
	}
	return out, nil
}

func isMatchSyntaxError(err error) bool {
	msg := err.Error()
	return strings.Contains(msg, "fts5:") || strings.Contains(msg, "syntax error") || strings.Contains(msg, "unterminated string")
}

// Close checkpoints the WAL and closes the database. It is idempotent.
func (b *Backend) Close() error {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.closed {
		return nil
	}
	b.closed = true
	_, _ = b.db.Exec("PRAGMA wal_checkpoint(TRUNCATE)")
	return b.db.Close()
}

// validateIntegrity checks an existing database file before it is opened.
func validateIntegrity(path string) error {
	if _, err := os.Stat(path); os.IsNotExist(err) {
		return nil
	}

	db, err := sql.Open("sqlite", path+"?mode=ro")
	if err != nil {
		return fmt.Errorf("cannot open for validation: %w", err)
	}
	defer db.Close()

	var result string
	if err := db.QueryRow("PRAGMA integrity_check").Scan(&result); err != nil {
		return fmt.Errorf("integrity check failed: %w", err)
	}
	if result != "ok" {
		return fmt.Errorf("database corrupted: %s", result)
	}

	var count int
	err = db.QueryRow(`SELECT COUNT(*) FROM sqlite_master
                       WHERE type='table' AND name='documents_fts'`).Scan(&count)
	if err != nil {
		return fmt.Errorf("cannot query schema: %w", err)
	}
	if count == 0 {
		return fmt.Errorf("FTS5 table 'documents_fts' missing")
	}
	return nil
}

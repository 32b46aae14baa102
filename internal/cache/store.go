// Package cache is the local SQLite store: device settings that must survive
// restarts and the scan journal used for support diagnostics. Nothing in here
// is authoritative; the server owns all workflow state.
package cache

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/scanwork/scanwork/internal/protocol"

	_ "modernc.org/sqlite"
)

const settingServerAddress = "server_address"

// Store wraps the SQLite database holding local settings and the scan journal.
type Store struct {
	db *sql.DB
}

// Open opens (and creates/migrates) the database at the given path.
func Open(ctx context.Context, dbPath string) (*Store, error) {
	if strings.TrimSpace(dbPath) == "" {
		return nil, fmt.Errorf("empty store path")
	}
	cleanPath := filepath.Clean(dbPath)
	if strings.Contains(cleanPath, "..") {
		return nil, fmt.Errorf("invalid store path: contains directory traversal")
	}
	if err := os.MkdirAll(filepath.Dir(dbPath), 0o700); err != nil {
		return nil, fmt.Errorf("create store dir: %w", err)
	}
	if _, err := os.Stat(dbPath); os.IsNotExist(err) {
		f, err := os.OpenFile(dbPath, os.O_CREATE|os.O_RDWR, 0o600)
		if err != nil {
			return nil, fmt.Errorf("create store db: %w", err)
		}
		_ = f.Close()
	}
	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("open store db: %w", err)
	}
	if _, err := db.ExecContext(ctx, "PRAGMA journal_mode=WAL;"); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("set WAL: %w", err)
	}
	_, _ = db.ExecContext(ctx, "PRAGMA foreign_keys=ON;")
	_, _ = db.ExecContext(ctx, "PRAGMA busy_timeout=5000;")
	_, _ = db.ExecContext(ctx, "PRAGMA synchronous=NORMAL;")
	s := &Store{db: db}
	if err := s.migrate(ctx); err != nil {
		_ = db.Close()
		return nil, err
	}
	return s, nil
}

func (s *Store) migrate(ctx context.Context) error {
	// user_version based migrations: v1 settings, v2 scan journal.
	var ver int
	_ = s.db.QueryRowContext(ctx, "PRAGMA user_version;").Scan(&ver)
	if ver == 0 {
		tx, err := s.db.BeginTx(ctx, nil)
		if err != nil {
			return err
		}
		_, err = tx.ExecContext(ctx, `
CREATE TABLE IF NOT EXISTS settings (
  key        TEXT PRIMARY KEY,
  value      TEXT NOT NULL,
  updated_at INTEGER NOT NULL
);
`)
		if err == nil {
			_, err = tx.ExecContext(ctx, "PRAGMA user_version=1;")
		}
		if err != nil {
			_ = tx.Rollback()
			return fmt.Errorf("migrate v1: %w", err)
		}
		if err := tx.Commit(); err != nil {
			return err
		}
		ver = 1
	}
	if ver == 1 {
		tx, err := s.db.BeginTx(ctx, nil)
		if err != nil {
			return err
		}
		_, err = tx.ExecContext(ctx, `
CREATE TABLE IF NOT EXISTS scan_journal (
  id         INTEGER PRIMARY KEY AUTOINCREMENT,
  form       TEXT NOT NULL,
  form_id    TEXT NOT NULL,
  code       TEXT NOT NULL,
  outcome    TEXT NOT NULL,
  scanned_at INTEGER NOT NULL
);
`)
		if err == nil {
			_, err = tx.ExecContext(ctx, `CREATE INDEX IF NOT EXISTS idx_scan_journal_time ON scan_journal(scanned_at);`)
		}
		if err == nil {
			_, err = tx.ExecContext(ctx, "PRAGMA user_version=2;")
		}
		if err != nil {
			_ = tx.Rollback()
			return fmt.Errorf("migrate v2: %w", err)
		}
		if err := tx.Commit(); err != nil {
			return err
		}
		ver = 2
	}
	return nil
}

// Close closes the underlying database.
func (s *Store) Close() error {
	if s == nil || s.db == nil {
		return nil
	}
	return s.db.Close()
}

// ServerAddress returns the persisted server base address, empty when unset.
func (s *Store) ServerAddress(ctx context.Context) (string, error) {
	if s == nil || s.db == nil {
		return "", fmt.Errorf("store not initialized")
	}
	var out string
	err := s.db.QueryRowContext(ctx, `SELECT value FROM settings WHERE key=?`, settingServerAddress).Scan(&out)
	if err == sql.ErrNoRows {
		return "", nil
	}
	if err != nil {
		return "", err
	}
	return out, nil
}

// SetServerAddress upserts the server base address.
func (s *Store) SetServerAddress(ctx context.Context, addr string) error {
	if s == nil || s.db == nil {
		return fmt.Errorf("store not initialized")
	}
	if strings.TrimSpace(addr) == "" {
		return fmt.Errorf("empty server address")
	}
	_, err := s.db.ExecContext(ctx, `INSERT INTO settings(key, value, updated_at)
VALUES(?,?,?)
ON CONFLICT(key) DO UPDATE SET value=excluded.value, updated_at=excluded.updated_at;
`, settingServerAddress, addr, time.Now().Unix())
	return err
}

// RecordScan appends one scan journal row.
func (s *Store) RecordScan(ctx context.Context, form protocol.Form, formID, code, outcome string) error {
	if s == nil || s.db == nil {
		return fmt.Errorf("store not initialized")
	}
	if strings.TrimSpace(code) == "" {
		return fmt.Errorf("empty scan code")
	}
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO scan_journal (form, form_id, code, outcome, scanned_at) VALUES (?, ?, ?, ?, ?)`,
		string(form), formID, code, outcome, time.Now().Unix())
	return err
}

// ScanRecord is one journaled scan.
type ScanRecord struct {
	ID        int64
	Form      protocol.Form
	FormID    string
	Code      string
	Outcome   string
	ScannedAt int64
}

// RecentScans returns the newest journal rows, most recent first.
func (s *Store) RecentScans(ctx context.Context, limit int) ([]ScanRecord, error) {
	if s == nil || s.db == nil {
		return nil, fmt.Errorf("store not initialized")
	}
	if limit <= 0 {
		limit = 50
	}
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, form, form_id, code, outcome, scanned_at FROM scan_journal ORDER BY id DESC LIMIT ?`, limit)
	if err != nil {
		return nil, err
	}
	defer func() { _ = rows.Close() }()

	var out []ScanRecord
	for rows.Next() {
		var r ScanRecord
		var form string
		if err := rows.Scan(&r.ID, &form, &r.FormID, &r.Code, &r.Outcome, &r.ScannedAt); err != nil {
			return nil, err
		}
		r.Form = protocol.Form(form)
		out = append(out, r)
	}
	return out, rows.Err()
}

// PruneScans deletes journal rows older than the retention window.
func (s *Store) PruneScans(ctx context.Context, olderThan time.Duration) error {
	if s == nil || s.db == nil {
		return fmt.Errorf("store not initialized")
	}
	cutoff := time.Now().Add(-olderThan).Unix()
	_, err := s.db.ExecContext(ctx, `DELETE FROM scan_journal WHERE scanned_at < ?`, cutoff)
	return err
}

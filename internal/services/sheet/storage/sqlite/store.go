// Package sqlite provides a SQLite-backed sheet value store.
package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"path/filepath"
	"strings"
	"time"

	sqlitemigrate "github.com/louisbranch/charsheet/internal/platform/storage/sqlitemigrate"
	"github.com/louisbranch/charsheet/internal/services/sheet/storage"
	"github.com/louisbranch/charsheet/internal/services/sheet/storage/sqlite/migrations"
	msqlite "modernc.org/sqlite"
	sqlite3lib "modernc.org/sqlite/lib"
)

// Store persists sheet values in SQLite.
type Store struct {
	sqlDB *sql.DB
	now   func() time.Time
}

// Open opens a SQLite sheet store and applies embedded migrations.
func Open(path string) (*Store, error) {
	if strings.TrimSpace(path) == "" {
		return nil, fmt.Errorf("storage path is required")
	}
	cleanPath := filepath.Clean(path)
	dsn := cleanPath + "?_journal_mode=WAL&_busy_timeout=5000&_synchronous=NORMAL"
	sqlDB, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("open sqlite db: %w", err)
	}
	if err := sqlDB.Ping(); err != nil {
		_ = sqlDB.Close()
		return nil, fmt.Errorf("ping sqlite db: %w", err)
	}
	if err := sqlitemigrate.ApplyMigrations(context.Background(), sqlDB, migrations.FS, ""); err != nil {
		_ = sqlDB.Close()
		return nil, fmt.Errorf("run migrations: %w", err)
	}
	return &Store{sqlDB: sqlDB, now: time.Now}, nil
}

// Close closes the SQLite handle.
func (s *Store) Close() error {
	if s == nil || s.sqlDB == nil {
		return nil
	}
	return s.sqlDB.Close()
}

// PutValue inserts or replaces one sheet value.
func (s *Store) PutValue(ctx context.Context, sheetID, key, value string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if s == nil || s.sqlDB == nil {
		return fmt.Errorf("storage is not configured")
	}
	sheetID = strings.TrimSpace(sheetID)
	key = strings.TrimSpace(key)
	if sheetID == "" {
		return fmt.Errorf("sheet id is required")
	}
	if key == "" {
		return fmt.Errorf("field key is required")
	}

	_, err := s.sqlDB.ExecContext(
		ctx,
		`INSERT INTO sheet_values (sheet_id, field_key, value, updated_at)
		 VALUES (?, ?, ?, ?)
		 ON CONFLICT(sheet_id, field_key) DO UPDATE SET
		   value = excluded.value,
		   updated_at = excluded.updated_at`,
		sheetID,
		key,
		value,
		s.now().UTC().UnixMilli(),
	)
	if err != nil {
		if isBusy(err) {
			return fmt.Errorf("put sheet value %s/%s: database busy: %w", sheetID, key, err)
		}
		return fmt.Errorf("put sheet value %s/%s: %w", sheetID, key, err)
	}
	return nil
}

// GetValue reads one sheet value.
func (s *Store) GetValue(ctx context.Context, sheetID, key string) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}
	if s == nil || s.sqlDB == nil {
		return "", fmt.Errorf("storage is not configured")
	}
	var value string
	err := s.sqlDB.QueryRowContext(
		ctx,
		`SELECT value FROM sheet_values WHERE sheet_id = ? AND field_key = ?`,
		strings.TrimSpace(sheetID),
		strings.TrimSpace(key),
	).Scan(&value)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return "", storage.ErrNotFound
		}
		return "", fmt.Errorf("get sheet value %s/%s: %w", sheetID, key, err)
	}
	return value, nil
}

// ListValues reads every value of one sheet.
func (s *Store) ListValues(ctx context.Context, sheetID string) (map[string]string, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if s == nil || s.sqlDB == nil {
		return nil, fmt.Errorf("storage is not configured")
	}
	rows, err := s.sqlDB.QueryContext(
		ctx,
		`SELECT field_key, value FROM sheet_values WHERE sheet_id = ? ORDER BY field_key`,
		strings.TrimSpace(sheetID),
	)
	if err != nil {
		return nil, fmt.Errorf("list sheet values %s: %w", sheetID, err)
	}
	defer rows.Close()

	values := make(map[string]string)
	for rows.Next() {
		var key, value string
		if err := rows.Scan(&key, &value); err != nil {
			return nil, fmt.Errorf("scan sheet value: %w", err)
		}
		values[key] = value
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate sheet values: %w", err)
	}
	return values, nil
}

func isBusy(err error) bool {
	var sqliteErr *msqlite.Error
	if errors.As(err, &sqliteErr) {
		switch sqliteErr.Code() {
		case sqlite3lib.SQLITE_BUSY, sqlite3lib.SQLITE_LOCKED:
			return true
		}
	}
	return false
}

var _ storage.ValueStore = (*Store)(nil)

package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/dgellow/rest-api-import/internal/crypto"
	"github.com/dgellow/rest-api-import/internal/log"
	_ "modernc.org/sqlite"
)

// Ensure SQLiteStorage implements Storage
var _ Storage = (*SQLiteStorage)(nil)

// SQLiteStorage persists entries in a single SQLite table. Values are
// encrypted at rest. expires_at is a unix timestamp in seconds, 0 for none.
type SQLiteStorage struct {
	db        *sql.DB
	encryptor crypto.Encryptor
	now       func() time.Time
}

// NewSQLiteStorage opens (and creates if needed) the database at path.
// Use ":memory:" for an ephemeral database.
func NewSQLiteStorage(path string, encryptor crypto.Encryptor) (*SQLiteStorage, error) {
	if encryptor == nil {
		return nil, fmt.Errorf("encryptor is required")
	}
	if strings.TrimSpace(path) == "" {
		return nil, fmt.Errorf("path is required")
	}

	dsn := path
	if path != ":memory:" {
		dsn = "file:" + path + "?_pragma=busy_timeout(5000)&_pragma=journal_mode(WAL)"
	}

	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("open sqlite db: %w", err)
	}
	// A single connection serializes writers and keeps :memory: databases
	// from being split across connections.
	db.SetMaxOpenConns(1)

	if err := db.Ping(); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("ping sqlite db: %w", err)
	}

	if err := initSchema(db); err != nil {
		_ = db.Close()
		return nil, err
	}

	log.LogInfoWithFields("sqlite", "Opened token database", map[string]any{
		"path": path,
	})

	return &SQLiteStorage{db: db, encryptor: encryptor, now: time.Now}, nil
}

func initSchema(db *sql.DB) error {
	if _, err := db.Exec(`
		CREATE TABLE IF NOT EXISTS kv_entries (
			key         TEXT PRIMARY KEY,
			value       TEXT NOT NULL,
			expires_at  INTEGER NOT NULL DEFAULT 0,
			updated_at  INTEGER NOT NULL
		);`,
	); err != nil {
		return fmt.Errorf("failed to init 'kv_entries' table schema: %w", err)
	}
	return nil
}

func (s *SQLiteStorage) Set(ctx context.Context, key, value string, ttl time.Duration) error {
	encrypted, err := s.encryptor.Encrypt(value)
	if err != nil {
		return fmt.Errorf("failed to encrypt value: %w", err)
	}

	now := s.now()
	var expiry int64
	if exp := expiresAt(now, ttl); !exp.IsZero() {
		expiry = exp.Unix()
	}

	_, err = s.db.ExecContext(ctx, `
		INSERT INTO kv_entries (key, value, expires_at, updated_at)
		VALUES (?, ?, ?, ?)
		ON CONFLICT(key) DO UPDATE SET
			value = excluded.value,
			expires_at = excluded.expires_at,
			updated_at = excluded.updated_at`,
		key, encrypted, expiry, now.Unix(),
	)
	if err != nil {
		return fmt.Errorf("failed to store value in sqlite: %w", err)
	}
	return nil
}

func (s *SQLiteStorage) Get(ctx context.Context, key string) (string, error) {
	var encrypted string
	var expiry int64
	err := s.db.QueryRowContext(ctx,
		`SELECT value, expires_at FROM kv_entries WHERE key = ?`, key,
	).Scan(&encrypted, &expiry)
	if errors.Is(err, sql.ErrNoRows) {
		return "", ErrNotFound
	}
	if err != nil {
		return "", fmt.Errorf("failed to get value from sqlite: %w", err)
	}

	if expiry != 0 && isExpired(time.Unix(expiry, 0), s.now()) {
		return "", ErrNotFound
	}

	value, err := s.encryptor.Decrypt(encrypted)
	if err != nil {
		return "", fmt.Errorf("failed to decrypt value: %w", err)
	}
	return value, nil
}

func (s *SQLiteStorage) Delete(ctx context.Context, key string) error {
	if _, err := s.db.ExecContext(ctx, `DELETE FROM kv_entries WHERE key = ?`, key); err != nil {
		return fmt.Errorf("failed to delete value from sqlite: %w", err)
	}
	return nil
}

func (s *SQLiteStorage) CleanupExpired(ctx context.Context) (int, error) {
	res, err := s.db.ExecContext(ctx,
		`DELETE FROM kv_entries WHERE expires_at != 0 AND expires_at <= ?`, s.now().Unix(),
	)
	if err != nil {
		return 0, fmt.Errorf("failed to delete expired entries: %w", err)
	}
	count, err := res.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("failed to count expired entries: %w", err)
	}
	return int(count), nil
}

// Close releases the underlying SQLite connection
func (s *SQLiteStorage) Close() error {
	return s.db.Close()
}

// internal/database/db.go
package database

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	_ "modernc.org/sqlite"

	"github.com/alsub25/Pocket-RPG-sub006/internal/storage"
)

// Database is a SQLite-backed storage.KV. Values are zstd-compressed at rest
// and carry a blake2b digest of their plain text.
type Database struct {
	db    *sql.DB
	codec *storage.Codec
}

// Open creates or opens a SQLite database at the given path
func Open(path string, codec *storage.Codec) (*Database, error) {
	db, err := sql.Open("sqlite", path+"?_pragma=journal_mode(WAL)&_pragma=busy_timeout(5000)")
	if err != nil {
		return nil, err
	}

	d := &Database{db: db, codec: codec}
	if err := d.init(); err != nil {
		db.Close()
		return nil, err
	}

	return d, nil
}

// init creates the database schema
func (d *Database) init() error {
	schema := `
	CREATE TABLE IF NOT EXISTS save_keys (
		key TEXT PRIMARY KEY,
		value BLOB NOT NULL,
		digest TEXT NOT NULL,
		size INTEGER NOT NULL,
		updated_at DATETIME DEFAULT CURRENT_TIMESTAMP
	);
	`

	_, err := d.db.Exec(schema)
	return err
}

// Close closes the database connection
func (d *Database) Close() error {
	return d.db.Close()
}

// Get returns the plain value stored under key
func (d *Database) Get(ctx context.Context, key string) (string, bool, error) {
	var blob []byte
	var digest string
	err := d.db.QueryRowContext(ctx, "SELECT value, digest FROM save_keys WHERE key = ?", key).Scan(&blob, &digest)
	if errors.Is(err, sql.ErrNoRows) {
		return "", false, nil
	}
	if err != nil {
		return "", false, fmt.Errorf("get %s: %w", key, err)
	}

	value, err := d.codec.Decompress(blob)
	if err != nil {
		return "", false, fmt.Errorf("get %s: %w", key, err)
	}
	if storage.Digest(value) != digest {
		return "", false, fmt.Errorf("get %s: %w", key, storage.ErrDigestMismatch)
	}
	return value, true, nil
}

// Set saves or replaces the value under key. Rewriting an identical value is a no-op.
func (d *Database) Set(ctx context.Context, key, value string) error {
	digest := storage.Digest(value)

	var current string
	err := d.db.QueryRowContext(ctx, "SELECT digest FROM save_keys WHERE key = ?", key).Scan(&current)
	if err == nil && current == digest {
		return nil
	}
	if err != nil && !errors.Is(err, sql.ErrNoRows) {
		return fmt.Errorf("set %s: %w", key, err)
	}

	_, err = d.db.ExecContext(ctx, `
		INSERT OR REPLACE INTO save_keys (key, value, digest, size, updated_at)
		VALUES (?, ?, ?, ?, ?)`,
		key, d.codec.Compress(value), digest, len(value), time.Now())
	if err != nil {
		return fmt.Errorf("set %s: %w", key, err)
	}
	return nil
}

// Remove deletes key. Removing a missing key is not an error.
func (d *Database) Remove(ctx context.Context, key string) error {
	if _, err := d.db.ExecContext(ctx, "DELETE FROM save_keys WHERE key = ?", key); err != nil {
		return fmt.Errorf("remove %s: %w", key, err)
	}
	return nil
}

// Keys lists stored keys with the given prefix, most recently written first
func (d *Database) Keys(ctx context.Context, prefix string) ([]*SaveKey, error) {
	rows, err := d.db.QueryContext(ctx, `
		SELECT key, digest, size, length(value), updated_at
		FROM save_keys WHERE substr(key, 1, ?) = ?
		ORDER BY updated_at DESC, key`, len(prefix), prefix)
	if err != nil {
		return nil, fmt.Errorf("list keys: %w", err)
	}
	defer rows.Close()

	var keys []*SaveKey
	for rows.Next() {
		k := &SaveKey{}
		if err := rows.Scan(&k.Key, &k.Digest, &k.Size, &k.StoredSize, &k.UpdatedAt); err != nil {
			return nil, fmt.Errorf("scan key: %w", err)
		}
		keys = append(keys, k)
	}
	return keys, rows.Err()
}

// Reset drops every stored key
func (d *Database) Reset(ctx context.Context) error {
	_, err := d.db.ExecContext(ctx, "DELETE FROM save_keys")
	return err
}

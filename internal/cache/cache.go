// Package cache implements the durable per-item migration decision store
// (C2). A single SQLite file under the configured data directory records,
// per item id, the last observed streamability/codec flags and the terminal
// migrated flag, so an interrupted run resumes without repeating work.
package cache

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"time"

	// Pure-Go SQLite driver (no CGO).
	_ "modernc.org/sqlite"

	"github.com/legnaleurc/faststart/internal/model"
)

// FileName is the name of the cache database file created under
// --data-path.
const FileName = "_migrated.sqlite"

// ErrNoRecord is returned by NeedTranscode when the item has no cache
// record — the caller must check HasCache first.
var ErrNoRecord = errors.New("cache: no record for item")

const (
	sqlSelectRecord = `SELECT is_faststart, is_native_codec, migrated
		FROM migration_records WHERE item_id = ?`

	sqlUpsertCache = `INSERT INTO migration_records
		(item_id, is_faststart, is_native_codec, migrated, updated_at)
		VALUES (?, ?, ?, 0, ?)
		ON CONFLICT(item_id) DO UPDATE SET
		 is_faststart = excluded.is_faststart,
		 is_native_codec = excluded.is_native_codec,
		 updated_at = excluded.updated_at`

	sqlSetMigrated = `INSERT INTO migration_records
		(item_id, is_faststart, is_native_codec, migrated, updated_at)
		VALUES (?, 1, 1, 1, ?)
		ON CONFLICT(item_id) DO UPDATE SET
		 migrated = 1,
		 updated_at = excluded.updated_at`

	sqlDeleteRecord = `DELETE FROM migration_records WHERE item_id = ?`
)

// Cache is the MigrationCache contract (C2), keyed by item.ID.
type Cache interface {
	IsMigrated(ctx context.Context, item model.FileItem) (bool, error)
	HasCache(ctx context.Context, item model.FileItem) (bool, error)
	NeedTranscode(ctx context.Context, item model.FileItem) (bool, error)
	SetCache(ctx context.Context, item model.FileItem, isFaststart, isNativeCodec bool) error
	SetMigrated(ctx context.Context, item model.FileItem) error
	UnsetCache(ctx context.Context, item model.FileItem) error
	Close() error
}

// record mirrors one row of migration_records.
type record struct {
	IsFaststart   bool
	IsNativeCodec bool
	Migrated      bool
}

// SQLiteCache is the sole SQLite-backed implementation of Cache. It holds a
// single open connection (sole-writer pattern) so every write commits
// durably before returning and every read observes prior writes within the
// process.
type SQLiteCache struct {
	db      *sql.DB
	logger  *slog.Logger
	nowFunc func() time.Time
}

// Open creates (or opens) the cache database at dbPath, applying schema
// migrations as needed. The database is opened in WAL mode with
// synchronous=FULL for crash-safe durability, matching the durability
// guarantees this cache must provide across process restarts.
func Open(ctx context.Context, dbPath string, logger *slog.Logger) (*SQLiteCache, error) {
	dsn := fmt.Sprintf(
		"file:%s?_pragma=journal_mode(WAL)&_pragma=synchronous(FULL)"+
			"&_pragma=foreign_keys(ON)&_pragma=busy_timeout(5000)",
		dbPath,
	)

	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("cache: opening database %s: %w", dbPath, err)
	}

	// Sole-writer pattern: one tiny upsert per job, no read-scaling need.
	db.SetMaxOpenConns(1)

	if err := runMigrations(ctx, db, logger); err != nil {
		db.Close()
		return nil, err
	}

	logger.Info("cache opened", slog.String("db_path", dbPath))

	return &SQLiteCache{db: db, logger: logger, nowFunc: time.Now}, nil
}

func (c *SQLiteCache) load(ctx context.Context, itemID string) (*record, error) {
	var r record

	var faststart, native, migrated int

	err := c.db.QueryRowContext(ctx, sqlSelectRecord, itemID).Scan(&faststart, &native, &migrated)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil //nolint:nilnil // sentinel for "no record"
	}

	if err != nil {
		return nil, fmt.Errorf("cache: loading record for %s: %w", itemID, err)
	}

	r.IsFaststart = faststart != 0
	r.IsNativeCodec = native != 0
	r.Migrated = migrated != 0

	return &r, nil
}

// IsMigrated reports whether item.ID's terminal flag is set.
func (c *SQLiteCache) IsMigrated(ctx context.Context, item model.FileItem) (bool, error) {
	r, err := c.load(ctx, item.ID)
	if err != nil {
		return false, err
	}

	return r != nil && r.Migrated, nil
}

// HasCache reports whether a record exists for item.ID, regardless of the
// migrated flag.
func (c *SQLiteCache) HasCache(ctx context.Context, item model.FileItem) (bool, error) {
	r, err := c.load(ctx, item.ID)
	if err != nil {
		return false, err
	}

	return r != nil, nil
}

// NeedTranscode reports ¬IsNativeCodec of the stored record. Returns
// ErrNoRecord if no record exists — callers must check HasCache first.
func (c *SQLiteCache) NeedTranscode(ctx context.Context, item model.FileItem) (bool, error) {
	r, err := c.load(ctx, item.ID)
	if err != nil {
		return false, err
	}

	if r == nil {
		return false, fmt.Errorf("%w: %s", ErrNoRecord, item.ID)
	}

	return !r.IsNativeCodec, nil
}

// SetCache upserts the probe-derived flags for item.ID without touching the
// migrated flag.
func (c *SQLiteCache) SetCache(ctx context.Context, item model.FileItem, isFaststart, isNativeCodec bool) error {
	_, err := c.db.ExecContext(ctx, sqlUpsertCache, item.ID, boolToInt(isFaststart), boolToInt(isNativeCodec), c.nowFunc().UnixNano())
	if err != nil {
		return fmt.Errorf("cache: setting cache for %s: %w", item.ID, err)
	}

	return nil
}

// SetMigrated sets Migrated=true on item.ID's record, creating it with both
// bool fields true if absent.
func (c *SQLiteCache) SetMigrated(ctx context.Context, item model.FileItem) error {
	_, err := c.db.ExecContext(ctx, sqlSetMigrated, item.ID, c.nowFunc().UnixNano())
	if err != nil {
		return fmt.Errorf("cache: setting migrated for %s: %w", item.ID, err)
	}

	return nil
}

// UnsetCache deletes item.ID's record entirely.
func (c *SQLiteCache) UnsetCache(ctx context.Context, item model.FileItem) error {
	_, err := c.db.ExecContext(ctx, sqlDeleteRecord, item.ID)
	if err != nil {
		return fmt.Errorf("cache: unsetting cache for %s: %w", item.ID, err)
	}

	return nil
}

// Close closes the underlying database connection.
func (c *SQLiteCache) Close() error {
	return c.db.Close()
}

func boolToInt(b bool) int {
	if b {
		return 1
	}

	return 0
}

var _ Cache = (*SQLiteCache)(nil)

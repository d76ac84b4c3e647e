package repository

import (
	"context"
	"database/sql"
	_ "embed"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/nbd-wtf/go-nostr"
	_ "modernc.org/sqlite"

	"github.com/okian/loopfeed/pkg/metrics"
)

//go:embed schema.sql
var schemaSQL string

// SQLiteCache persists cached queries in a SQLite database so a restarted
// process can serve its first pages from disk.
type SQLiteCache struct {
	db   *sql.DB
	size int

	wg       sync.WaitGroup
	stopChan chan struct{}
	once     sync.Once
}

// OpenSQLiteCache opens (or creates) the cache database at path. Use
// ":memory:" for a throwaway database.
func OpenSQLiteCache(ctx context.Context, path string, opts ...Option) (*SQLiteCache, error) {
	cfg := newCacheConfig(opts)

	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("failed to open cache database: %w", err)
	}
	// a single connection keeps ":memory:" databases shared and serializes writers
	db.SetMaxOpenConns(1)

	if _, err := db.ExecContext(ctx, schemaSQL); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to create cache schema: %w", err)
	}

	c := &SQLiteCache{db: db, size: cfg.size, stopChan: make(chan struct{})}
	c.startMetricsUpdater(ctx, cfg.metricsUpdateInterval)
	return c, nil
}

// Get implements Cache.
func (c *SQLiteCache) Get(ctx context.Context, key string) (Entry, error) {
	var (
		raw      []byte
		storedAt int64
	)
	err := c.db.QueryRowContext(ctx,
		`SELECT events, stored_at FROM query_cache WHERE cache_key = ?`, key,
	).Scan(&raw, &storedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return Entry{}, ErrCacheMiss
	}
	if err != nil {
		return Entry{}, fmt.Errorf("read cache entry: %w", err)
	}

	var events []*nostr.Event
	if err := json.Unmarshal(raw, &events); err != nil {
		_ = c.Evict(ctx, key)
		return Entry{}, fmt.Errorf("%w: corrupt entry: %w", ErrCacheMiss, err)
	}
	if _, err := c.db.ExecContext(ctx,
		`UPDATE query_cache SET accessed_at = ? WHERE cache_key = ?`, time.Now().UnixNano(), key,
	); err != nil {
		return Entry{}, fmt.Errorf("touch cache entry: %w", err)
	}
	return Entry{Events: events, StoredAt: time.Unix(0, storedAt)}, nil
}

// Put implements Cache. The least recently read entries are evicted once
// the table exceeds its size.
func (c *SQLiteCache) Put(ctx context.Context, key string, e Entry) error {
	raw, err := json.Marshal(e.Events)
	if err != nil {
		return fmt.Errorf("encode cache entry: %w", err)
	}

	tx, err := c.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin cache write: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	if _, err := tx.ExecContext(ctx, `
		INSERT INTO query_cache (cache_key, events, stored_at, accessed_at)
		VALUES (?, ?, ?, ?)
		ON CONFLICT(cache_key) DO UPDATE SET
			events = excluded.events,
			stored_at = excluded.stored_at,
			accessed_at = excluded.accessed_at`,
		key, raw, e.StoredAt.UnixNano(), time.Now().UnixNano(),
	); err != nil {
		return fmt.Errorf("write cache entry: %w", err)
	}
	if _, err := tx.ExecContext(ctx, `
		DELETE FROM query_cache WHERE cache_key IN (
			SELECT cache_key FROM query_cache
			ORDER BY accessed_at DESC, rowid DESC
			LIMIT -1 OFFSET ?
		)`, c.size,
	); err != nil {
		return fmt.Errorf("trim cache: %w", err)
	}
	return tx.Commit()
}

// Evict implements Cache.
func (c *SQLiteCache) Evict(ctx context.Context, key string) error {
	if _, err := c.db.ExecContext(ctx, `DELETE FROM query_cache WHERE cache_key = ?`, key); err != nil {
		return fmt.Errorf("evict cache entry: %w", err)
	}
	return nil
}

// Len implements Cache.
func (c *SQLiteCache) Len(ctx context.Context) int {
	var n int
	if err := c.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM query_cache`).Scan(&n); err != nil {
		return 0
	}
	return n
}

// Close stops the metrics updater and closes the database.
func (c *SQLiteCache) Close() error {
	var err error
	c.once.Do(func() {
		close(c.stopChan)
		c.wg.Wait()
		err = c.db.Close()
	})
	return err
}

func (c *SQLiteCache) startMetricsUpdater(ctx context.Context, interval time.Duration) {
	c.wg.Add(1)
	go func() {
		defer c.wg.Done()
		ticker := time.NewTicker(interval)
		defer ticker.Stop()

		for {
			select {
			case <-ctx.Done():
				return
			case <-c.stopChan:
				return
			case <-ticker.C:
				metrics.UpdateCacheEntries(c.Len(ctx))
			}
		}
	}()
}

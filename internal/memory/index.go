package memory

import (
	"database/sql"
	"fmt"
	"sync"
	"sync/atomic"

	lru "github.com/hashicorp/golang-lru/v2"
	_ "modernc.org/sqlite"

	"github.com/aigent/aigent/internal/logger"
)

const defaultIndexLRUCapacity = 256

// IndexedMeta is the metadata the secondary index stores per entry — enough
// to answer tier/id lookups without re-scanning the log, but not the full
// entry (which stays the log's responsibility).
type IndexedMeta struct {
	ID          string
	Tier        Tier
	ContentHash string
	Confidence  float64
}

// Index is the optional secondary store (C2), backed by modernc.org/sqlite in
// place of the original's redb. It mirrors the original's two logical tables
// (entries, tier_index) as SQL tables, and fronts reads with a fixed-capacity
// LRU cache that tracks hit/miss statistics.
type Index struct {
	mu   sync.RWMutex
	db   *sql.DB
	path string

	cache     *lru.Cache[string, IndexedMeta]
	hits      atomic.Int64
	misses    atomic.Int64
}

const indexSchema = `
CREATE TABLE IF NOT EXISTS entries (
	id TEXT PRIMARY KEY,
	tier TEXT NOT NULL,
	content_hash TEXT NOT NULL,
	confidence REAL NOT NULL
);
CREATE TABLE IF NOT EXISTS tier_index (
	tier TEXT NOT NULL,
	id TEXT NOT NULL,
	PRIMARY KEY (tier, id)
);
CREATE INDEX IF NOT EXISTS idx_tier_index_tier ON tier_index(tier);
`

// OpenIndex opens (creating if absent) the secondary index at path. On open
// failure or schema mismatch, callers should call Reset followed by
// RebuildFromLog to recover without data loss — Open itself never silently
// discards an existing index.
func OpenIndex(path string, capacity int) (*Index, error) {
	if capacity <= 0 {
		capacity = defaultIndexLRUCapacity
	}
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open index db: %w", err)
	}
	if _, err := db.Exec(indexSchema); err != nil {
		db.Close()
		return nil, fmt.Errorf("migrate index schema: %w", err)
	}
	cache, err := lru.New[string, IndexedMeta](capacity)
	if err != nil {
		db.Close()
		return nil, fmt.Errorf("create lru cache: %w", err)
	}
	return &Index{db: db, path: path, cache: cache}, nil
}

func (ix *Index) Close() error {
	return ix.db.Close()
}

// Insert upserts one entry's metadata into both tables and the cache.
func (ix *Index) Insert(meta IndexedMeta) error {
	ix.mu.Lock()
	defer ix.mu.Unlock()

	tx, err := ix.db.Begin()
	if err != nil {
		return fmt.Errorf("begin insert tx: %w", err)
	}
	if _, err := tx.Exec(`INSERT INTO entries (id, tier, content_hash, confidence) VALUES (?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET tier=excluded.tier, content_hash=excluded.content_hash, confidence=excluded.confidence`,
		meta.ID, string(meta.Tier), meta.ContentHash, meta.Confidence); err != nil {
		tx.Rollback()
		return fmt.Errorf("insert entries row: %w", err)
	}
	if _, err := tx.Exec(`INSERT OR IGNORE INTO tier_index (tier, id) VALUES (?, ?)`, string(meta.Tier), meta.ID); err != nil {
		tx.Rollback()
		return fmt.Errorf("insert tier_index row: %w", err)
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit insert tx: %w", err)
	}
	ix.cache.Add(meta.ID, meta)
	return nil
}

// Remove deletes an entry's metadata from both tables and the cache.
func (ix *Index) Remove(id string) error {
	ix.mu.Lock()
	defer ix.mu.Unlock()

	tx, err := ix.db.Begin()
	if err != nil {
		return fmt.Errorf("begin remove tx: %w", err)
	}
	if _, err := tx.Exec(`DELETE FROM entries WHERE id = ?`, id); err != nil {
		tx.Rollback()
		return fmt.Errorf("delete entries row: %w", err)
	}
	if _, err := tx.Exec(`DELETE FROM tier_index WHERE id = ?`, id); err != nil {
		tx.Rollback()
		return fmt.Errorf("delete tier_index row: %w", err)
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit remove tx: %w", err)
	}
	ix.cache.Remove(id)
	return nil
}

// IDsForTier returns every entry id recorded under tier.
func (ix *Index) IDsForTier(tier Tier) ([]string, error) {
	ix.mu.RLock()
	defer ix.mu.RUnlock()

	rows, err := ix.db.Query(`SELECT id FROM tier_index WHERE tier = ?`, string(tier))
	if err != nil {
		return nil, fmt.Errorf("query tier_index: %w", err)
	}
	defer rows.Close()

	var ids []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("scan tier_index row: %w", err)
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}

// GetMetadata fetches metadata for id, consulting the LRU cache first.
func (ix *Index) GetMetadata(id string) (IndexedMeta, bool, error) {
	if meta, ok := ix.cache.Get(id); ok {
		ix.hits.Add(1)
		return meta, true, nil
	}
	ix.misses.Add(1)

	ix.mu.RLock()
	defer ix.mu.RUnlock()

	var meta IndexedMeta
	var tier string
	row := ix.db.QueryRow(`SELECT id, tier, content_hash, confidence FROM entries WHERE id = ?`, id)
	if err := row.Scan(&meta.ID, &tier, &meta.ContentHash, &meta.Confidence); err != nil {
		if err == sql.ErrNoRows {
			return IndexedMeta{}, false, nil
		}
		return IndexedMeta{}, false, fmt.Errorf("query entries: %w", err)
	}
	meta.Tier = Tier(tier)
	ix.cache.Add(id, meta)
	return meta, true, nil
}

// Len returns the total number of indexed entries.
func (ix *Index) Len() (int, error) {
	ix.mu.RLock()
	defer ix.mu.RUnlock()
	var n int
	if err := ix.db.QueryRow(`SELECT COUNT(*) FROM entries`).Scan(&n); err != nil {
		return 0, fmt.Errorf("count entries: %w", err)
	}
	return n, nil
}

func (ix *Index) IsEmpty() (bool, error) {
	n, err := ix.Len()
	return n == 0, err
}

// CacheStats reports cumulative hit/miss counters and derived hit rate.
type CacheStats struct {
	Hits    int64
	Misses  int64
	HitRate float64
}

func (ix *Index) CacheStats() CacheStats {
	hits, misses := ix.hits.Load(), ix.misses.Load()
	total := hits + misses
	rate := 0.0
	if total > 0 {
		rate = float64(hits) / float64(total)
	}
	return CacheStats{Hits: hits, Misses: misses, HitRate: rate}
}

// Reset drops and recreates the schema at path, discarding the on-disk index
// but leaving the event log (the source of truth) untouched.
func (ix *Index) Reset() error {
	ix.mu.Lock()
	defer ix.mu.Unlock()

	if _, err := ix.db.Exec(`DROP TABLE IF EXISTS entries; DROP TABLE IF EXISTS tier_index;`); err != nil {
		return fmt.Errorf("drop index tables: %w", err)
	}
	if _, err := ix.db.Exec(indexSchema); err != nil {
		return fmt.Errorf("recreate index schema: %w", err)
	}
	ix.cache.Purge()
	ix.hits.Store(0)
	ix.misses.Store(0)
	return nil
}

// RebuildFromLog replays every entry from the event log into the index. It
// is the recovery path after Reset, and the path a fresh opt-in index takes
// on first use.
func (ix *Index) RebuildFromLog(log *EventLog) error {
	res, err := log.Load()
	if err != nil {
		return fmt.Errorf("load log for rebuild: %w", err)
	}
	live := map[string]bool{}
	for _, e := range res.Entries {
		if e.IsTombstone() {
			continue
		}
		live[e.ID] = true
	}
	for _, e := range res.Entries {
		if e.IsTombstone() {
			continue
		}
		if err := ix.Insert(IndexedMeta{
			ID:          e.ID,
			Tier:        e.Tier,
			ContentHash: e.ContentHash,
			Confidence:  e.Confidence,
		}); err != nil {
			return fmt.Errorf("rebuild insert %s: %w", e.ID, err)
		}
	}
	logger.Info("memory index rebuilt from log", "entries", len(live))
	return nil
}

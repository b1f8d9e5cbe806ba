package memory

import (
	"path/filepath"
	"testing"
)

func openTestIndex(t *testing.T) *Index {
	t.Helper()
	path := filepath.Join(t.TempDir(), "index.sqlite")
	ix, err := OpenIndex(path, 0)
	if err != nil {
		t.Fatalf("OpenIndex: %v", err)
	}
	t.Cleanup(func() { ix.Close() })
	return ix
}

func TestIndexInsertAndGetMetadata(t *testing.T) {
	ix := openTestIndex(t)
	meta := IndexedMeta{ID: "entry-1", Tier: TierCore, ContentHash: "hash1", Confidence: 0.9}

	if err := ix.Insert(meta); err != nil {
		t.Fatalf("Insert: %v", err)
	}

	got, ok, err := ix.GetMetadata("entry-1")
	if err != nil {
		t.Fatalf("GetMetadata: %v", err)
	}
	if !ok {
		t.Fatal("expected metadata to be found")
	}
	if got != meta {
		t.Fatalf("got %+v, want %+v", got, meta)
	}
}

func TestIndexInsertUpsertsOnConflict(t *testing.T) {
	ix := openTestIndex(t)
	meta := IndexedMeta{ID: "entry-1", Tier: TierCore, ContentHash: "hash1", Confidence: 0.5}
	if err := ix.Insert(meta); err != nil {
		t.Fatalf("Insert: %v", err)
	}

	updated := IndexedMeta{ID: "entry-1", Tier: TierSemantic, ContentHash: "hash2", Confidence: 0.8}
	if err := ix.Insert(updated); err != nil {
		t.Fatalf("Insert (update): %v", err)
	}

	got, ok, err := ix.GetMetadata("entry-1")
	if err != nil || !ok {
		t.Fatalf("GetMetadata failed: ok=%v err=%v", ok, err)
	}
	if got.Tier != TierSemantic || got.Confidence != 0.8 {
		t.Fatalf("expected updated metadata, got %+v", got)
	}

	n, err := ix.Len()
	if err != nil {
		t.Fatalf("Len: %v", err)
	}
	if n != 1 {
		t.Fatalf("expected 1 row after upsert, got %d", n)
	}
}

func TestIndexRemove(t *testing.T) {
	ix := openTestIndex(t)
	meta := IndexedMeta{ID: "entry-1", Tier: TierCore, ContentHash: "hash1", Confidence: 0.9}
	if err := ix.Insert(meta); err != nil {
		t.Fatalf("Insert: %v", err)
	}
	if err := ix.Remove("entry-1"); err != nil {
		t.Fatalf("Remove: %v", err)
	}
	_, ok, err := ix.GetMetadata("entry-1")
	if err != nil {
		t.Fatalf("GetMetadata: %v", err)
	}
	if ok {
		t.Fatal("expected metadata to be gone after Remove")
	}
}

func TestIndexIDsForTier(t *testing.T) {
	ix := openTestIndex(t)
	if err := ix.Insert(IndexedMeta{ID: "a", Tier: TierCore, ContentHash: "h1"}); err != nil {
		t.Fatal(err)
	}
	if err := ix.Insert(IndexedMeta{ID: "b", Tier: TierEpisodic, ContentHash: "h2"}); err != nil {
		t.Fatal(err)
	}
	if err := ix.Insert(IndexedMeta{ID: "c", Tier: TierCore, ContentHash: "h3"}); err != nil {
		t.Fatal(err)
	}

	ids, err := ix.IDsForTier(TierCore)
	if err != nil {
		t.Fatalf("IDsForTier: %v", err)
	}
	if len(ids) != 2 {
		t.Fatalf("expected 2 core ids, got %d: %v", len(ids), ids)
	}
}

func TestIndexCacheStatsTracksHitsAndMisses(t *testing.T) {
	ix := openTestIndex(t)
	if err := ix.Insert(IndexedMeta{ID: "a", Tier: TierCore, ContentHash: "h1"}); err != nil {
		t.Fatal(err)
	}

	// First GetMetadata after Insert is a cache hit (Insert populates cache).
	if _, _, err := ix.GetMetadata("a"); err != nil {
		t.Fatal(err)
	}
	// Missing id forces a DB lookup (miss), then caches the not-found... actually
	// returns not found without caching, so this remains a miss every time.
	if _, _, err := ix.GetMetadata("missing"); err != nil {
		t.Fatal(err)
	}

	stats := ix.CacheStats()
	if stats.Hits < 1 {
		t.Errorf("expected at least 1 hit, got %d", stats.Hits)
	}
	if stats.Misses < 1 {
		t.Errorf("expected at least 1 miss, got %d", stats.Misses)
	}
}

func TestIndexResetClearsState(t *testing.T) {
	ix := openTestIndex(t)
	if err := ix.Insert(IndexedMeta{ID: "a", Tier: TierCore, ContentHash: "h1"}); err != nil {
		t.Fatal(err)
	}
	if err := ix.Reset(); err != nil {
		t.Fatalf("Reset: %v", err)
	}
	n, err := ix.Len()
	if err != nil {
		t.Fatal(err)
	}
	if n != 0 {
		t.Fatalf("expected 0 rows after Reset, got %d", n)
	}
	stats := ix.CacheStats()
	if stats.Hits != 0 || stats.Misses != 0 {
		t.Fatalf("expected cache stats cleared, got %+v", stats)
	}
}

func TestIndexRebuildFromLog(t *testing.T) {
	logPath := filepath.Join(t.TempDir(), "events.jsonl")
	log, err := NewEventLog(logPath)
	if err != nil {
		t.Fatalf("NewEventLog: %v", err)
	}
	e1 := NewEntry(TierCore, "a durable fact", "belief")
	e2 := NewEntry(TierEpisodic, "a passing remark", "user-chat")
	if err := log.Append(e1); err != nil {
		t.Fatal(err)
	}
	if err := log.Append(e2); err != nil {
		t.Fatal(err)
	}

	ix := openTestIndex(t)
	if err := ix.RebuildFromLog(log); err != nil {
		t.Fatalf("RebuildFromLog: %v", err)
	}

	n, err := ix.Len()
	if err != nil {
		t.Fatal(err)
	}
	if n != 2 {
		t.Fatalf("expected 2 indexed entries, got %d", n)
	}
}

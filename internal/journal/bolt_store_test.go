package journal

import (
	"testing"
	"time"

	bolt "go.etcd.io/bbolt"
)

func openTestStore(t *testing.T, opts Options) *boltStore {
	t.Helper()
	storeRaw, err := openBolt(t.TempDir()+"/journal.db", normalizeOptions(opts))
	if err != nil {
		t.Fatalf("openBolt: %v", err)
	}
	store := storeRaw.(*boltStore)
	t.Cleanup(func() { store.Close() })
	return store
}

func TestBoltStoreRecordsNewestFirst(t *testing.T) {
	store := openTestStore(t, Options{EntryTTL: time.Hour, CleanupInterval: time.Hour})

	for _, typ := range []string{"first", "second", "third"} {
		if err := store.Record(Entry{DirectoryID: "le", ProblemType: typ}); err != nil {
			t.Fatalf("Record: %v", err)
		}
	}

	got, err := store.Recent(2)
	if err != nil {
		t.Fatalf("Recent: %v", err)
	}
	if len(got) != 2 || got[0].ProblemType != "third" || got[1].ProblemType != "second" {
		t.Fatalf("unexpected entries %#v", got)
	}
	if got[0].RecordedAt.IsZero() {
		t.Fatalf("expected RecordedAt to be stamped")
	}
}

func TestBoltStoreExpiresEntries(t *testing.T) {
	store := openTestStore(t, Options{EntryTTL: time.Minute, CleanupInterval: time.Minute})
	base := time.Now()
	store.now = func() time.Time { return base }

	if err := store.Record(Entry{ProblemType: "old"}); err != nil {
		t.Fatalf("Record: %v", err)
	}

	// Jump past the TTL; the entry is hidden even before the sweep runs.
	store.now = func() time.Time { return base.Add(2 * time.Minute) }
	got, err := store.Recent(10)
	if err != nil {
		t.Fatalf("Recent: %v", err)
	}
	if len(got) != 0 {
		t.Fatalf("expected expired entry to be hidden, got %#v", got)
	}

	// The next write triggers the sweep which drops the expired record.
	if err := store.Record(Entry{ProblemType: "new"}); err != nil {
		t.Fatalf("Record: %v", err)
	}
	got, err = store.Recent(10)
	if err != nil {
		t.Fatalf("Recent: %v", err)
	}
	if len(got) != 1 || got[0].ProblemType != "new" {
		t.Fatalf("unexpected entries after sweep %#v", got)
	}
	if n := countRecords(t, store); n != 1 {
		t.Fatalf("expected 1 stored record after sweep, got %d", n)
	}
}

func TestNewStoreSupportsNoop(t *testing.T) {
	store, err := NewStore("none", "", Options{})
	if err != nil {
		t.Fatalf("NewStore none: %v", err)
	}
	if err := store.Record(Entry{ProblemType: "x"}); err != nil {
		t.Fatalf("noop store Record: %v", err)
	}
	if got, _ := store.Recent(5); len(got) != 0 {
		t.Fatalf("noop store returned entries %#v", got)
	}
}

func TestNewStoreRejectsUnknownType(t *testing.T) {
	if _, err := NewStore("redis", "", Options{}); err == nil {
		t.Fatalf("expected error for unsupported type")
	}
	if _, err := NewStore("bbolt", " ", Options{}); err == nil {
		t.Fatalf("expected error for missing path")
	}
}

func countRecords(t *testing.T, store *boltStore) int {
	t.Helper()
	n := 0
	err := store.db.View(func(tx *bolt.Tx) error {
		return tx.Bucket([]byte(entryBucket)).ForEach(func(_, _ []byte) error {
			n++
			return nil
		})
	})
	if err != nil {
		t.Fatalf("count records: %v", err)
	}
	return n
}

package journal

import (
	"context"
	"database/sql"
	"path/filepath"
	"testing"
	"time"
)

// openTestJournal creates an initialized journal in a temp directory.
func openTestJournal(t *testing.T) *Journal {
	t.Helper()

	j, err := Open(filepath.Join(t.TempDir(), "events.db"))
	if err != nil {
		t.Fatalf("Open() failed: %v", err)
	}
	t.Cleanup(func() { j.Close() })

	if err := j.Init(context.Background()); err != nil {
		t.Fatalf("Init() failed: %v", err)
	}
	return j
}

func TestInitIdempotent(t *testing.T) {
	j := openTestJournal(t)

	// A second Init against the same store must succeed and change nothing.
	if err := j.Init(context.Background()); err != nil {
		t.Fatalf("second Init() failed: %v", err)
	}
}

// TestInitMigratesLegacySchema verifies that a store created without the
// snapshot column gets the column added in place.
func TestInitMigratesLegacySchema(t *testing.T) {
	path := filepath.Join(t.TempDir(), "events.db")

	// Build a legacy store by hand: same table, no content_snapshot.
	legacy, err := sql.Open("sqlite3", "file:"+path)
	if err != nil {
		t.Fatalf("failed to open legacy store: %v", err)
	}
	_, err = legacy.Exec(`CREATE TABLE file_events (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		timestamp TEXT NOT NULL,
		event_kind TEXT NOT NULL,
		file_path TEXT NOT NULL
	)`)
	if err != nil {
		t.Fatalf("failed to create legacy schema: %v", err)
	}
	_, err = legacy.Exec(
		"INSERT INTO file_events (timestamp, event_kind, file_path) VALUES (?, ?, ?)",
		"2026-01-02 10:00:00", "CREATED", "/tmp/legacy.txt")
	if err != nil {
		t.Fatalf("failed to insert legacy row: %v", err)
	}
	if err := legacy.Close(); err != nil {
		t.Fatalf("failed to close legacy store: %v", err)
	}

	j, err := Open(path)
	if err != nil {
		t.Fatalf("Open() failed: %v", err)
	}
	defer j.Close()

	if err := j.Init(context.Background()); err != nil {
		t.Fatalf("Init() on legacy store failed: %v", err)
	}

	// The pre-existing row survives the migration with a null snapshot.
	events, err := j.Recent(context.Background(), 10)
	if err != nil {
		t.Fatalf("Recent() failed: %v", err)
	}
	if len(events) != 1 {
		t.Fatalf("expected 1 event after migration, got %d", len(events))
	}
	if events[0].Analyzed {
		t.Error("migrated row should not be marked analyzed")
	}
	if events[0].Path != "/tmp/legacy.txt" {
		t.Errorf("unexpected path: %s", events[0].Path)
	}
}

func TestAppendFillSnapshotRoundTrip(t *testing.T) {
	j := openTestJournal(t)
	ctx := context.Background()

	id1, err := j.Append(ctx, KindCreated, "/tmp/a.txt")
	if err != nil {
		t.Fatalf("Append() failed: %v", err)
	}
	id2, err := j.Append(ctx, KindModified, "/tmp/b.txt")
	if err != nil {
		t.Fatalf("Append() failed: %v", err)
	}
	if id2 <= id1 {
		t.Errorf("ids should be monotonic: got %d then %d", id1, id2)
	}

	if err := j.FillSnapshot(ctx, id1, "[TEXT] hello"); err != nil {
		t.Fatalf("FillSnapshot() failed: %v", err)
	}

	events, err := j.Recent(ctx, 10)
	if err != nil {
		t.Fatalf("Recent() failed: %v", err)
	}
	if len(events) != 2 {
		t.Fatalf("expected 2 events, got %d", len(events))
	}

	// Newest first.
	if events[0].ID != id2 || events[1].ID != id1 {
		t.Errorf("Recent() order wrong: got ids %d, %d", events[0].ID, events[1].ID)
	}

	// Only the updated row changed.
	if !events[1].Analyzed || events[1].Snapshot != "[TEXT] hello" {
		t.Errorf("snapshot not filled: analyzed=%v snapshot=%q", events[1].Analyzed, events[1].Snapshot)
	}
	if events[0].Analyzed {
		t.Error("untouched row should not be analyzed")
	}
}

func TestFillSnapshotUnknownID(t *testing.T) {
	j := openTestJournal(t)

	// Invalid ids are tolerated, not errors.
	if err := j.FillSnapshot(context.Background(), 9999, "orphan"); err != nil {
		t.Errorf("FillSnapshot() on unknown id should be a no-op, got: %v", err)
	}
}

func TestFillSnapshotNeverTouchesDeleted(t *testing.T) {
	j := openTestJournal(t)
	ctx := context.Background()

	id, err := j.Append(ctx, KindDeleted, "/tmp/gone.txt")
	if err != nil {
		t.Fatalf("Append() failed: %v", err)
	}
	if err := j.FillSnapshot(ctx, id, "should not land"); err != nil {
		t.Fatalf("FillSnapshot() failed: %v", err)
	}

	events, err := j.Recent(ctx, 1)
	if err != nil {
		t.Fatalf("Recent() failed: %v", err)
	}
	if events[0].Analyzed {
		t.Error("a DELETED event must never receive a snapshot")
	}
}

func TestFindByPath(t *testing.T) {
	j := openTestJournal(t)
	ctx := context.Background()

	if _, _, _, ok, err := j.FindByPath(ctx, "/tmp/nope.txt"); err != nil || ok {
		t.Fatalf("FindByPath() on unknown path: ok=%v err=%v", ok, err)
	}

	first, err := j.Append(ctx, KindCreated, "/tmp/c.txt")
	if err != nil {
		t.Fatalf("Append() failed: %v", err)
	}
	second, err := j.Append(ctx, KindModified, "/tmp/c.txt")
	if err != nil {
		t.Fatalf("Append() failed: %v", err)
	}
	_ = first

	id, kind, snap, ok, err := j.FindByPath(ctx, "/tmp/c.txt")
	if err != nil {
		t.Fatalf("FindByPath() failed: %v", err)
	}
	if !ok {
		t.Fatal("FindByPath() should find the path")
	}
	if id != second {
		t.Errorf("FindByPath() should return the most recent row: got %d, want %d", id, second)
	}
	if kind != KindModified {
		t.Errorf("FindByPath() kind = %v, want Modified", kind)
	}
	if snap != "" {
		t.Errorf("expected empty snapshot, got %q", snap)
	}
}

func TestFindByPathReportsTrailingDelete(t *testing.T) {
	j := openTestJournal(t)
	ctx := context.Background()

	if _, err := j.Append(ctx, KindCreated, "/tmp/d.txt"); err != nil {
		t.Fatalf("Append() failed: %v", err)
	}
	if _, err := j.Append(ctx, KindDeleted, "/tmp/d.txt"); err != nil {
		t.Fatalf("Append() failed: %v", err)
	}

	_, kind, _, ok, err := j.FindByPath(ctx, "/tmp/d.txt")
	if err != nil || !ok {
		t.Fatalf("FindByPath(): ok=%v err=%v", ok, err)
	}
	if kind != KindDeleted {
		t.Errorf("kind = %v, want Deleted", kind)
	}
}

func TestSince(t *testing.T) {
	j := openTestJournal(t)
	ctx := context.Background()

	if _, err := j.Append(ctx, KindCreated, "/tmp/old.txt"); err != nil {
		t.Fatalf("Append() failed: %v", err)
	}

	events, err := j.Since(ctx, time.Now().Add(-time.Hour), 10)
	if err != nil {
		t.Fatalf("Since() failed: %v", err)
	}
	if len(events) != 1 {
		t.Errorf("expected 1 event in window, got %d", len(events))
	}

	events, err = j.Since(ctx, time.Now().Add(time.Hour), 10)
	if err != nil {
		t.Fatalf("Since() failed: %v", err)
	}
	if len(events) != 0 {
		t.Errorf("expected 0 events in future window, got %d", len(events))
	}
}

func TestKindRoundTrip(t *testing.T) {
	kinds := []Kind{KindCreated, KindModified, KindDeleted, KindMoved, KindPreExisting}
	for _, k := range kinds {
		if got := ParseKind(k.String()); got != k {
			t.Errorf("ParseKind(%q) = %v, want %v", k.String(), got, k)
		}
	}
	if got := ParseKind("garbage"); got != KindModified {
		t.Errorf("ParseKind on unknown value = %v, want KindModified", got)
	}
}

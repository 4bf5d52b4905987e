// Package journal provides the durable event journal for the sentinel engine.
//
// The journal is the single source of truth for what is known to have
// happened in the watched directories, and for which events still lack a
// content snapshot. It is an append log with exactly one mutable field:
// rows are inserted once, optionally updated once when analysis completes,
// and never deleted by the engine.
//
// The database runs in embedded mode with WAL so that the watch callbacks,
// the reconciliation scanner and the analysis worker can all touch it from
// their own goroutines. Each operation checks a connection out of the pool
// for its own duration only; nothing holds a connection across a blocking
// external call.
package journal

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"time"

	_ "github.com/ncruces/go-sqlite3/driver"
	_ "github.com/ncruces/go-sqlite3/embed"
)

// timeFormat is the persisted timestamp layout (second precision).
const timeFormat = "2006-01-02 15:04:05"

// Kind identifies the lifecycle change a FileEvent records.
type Kind int

const (
	// KindCreated indicates a new file appeared under a watched target.
	KindCreated Kind = iota
	// KindModified indicates an existing file's content changed.
	KindModified
	// KindDeleted indicates a file was removed.
	KindDeleted
	// KindMoved indicates a file was renamed or moved; the journaled path
	// is the destination.
	KindMoved
	// KindPreExisting indicates a file found by the reconciliation scan
	// that predates the watcher.
	KindPreExisting
)

// String returns the persisted representation of the kind.
func (k Kind) String() string {
	switch k {
	case KindCreated:
		return "CREATED"
	case KindModified:
		return "MODIFIED"
	case KindDeleted:
		return "DELETED"
	case KindMoved:
		return "MOVED"
	case KindPreExisting:
		return "PREEXISTING"
	default:
		return "UNKNOWN"
	}
}

// ParseKind converts a persisted kind string back to a Kind.
// Unrecognized values map to KindModified, the least surprising reading
// of an unknown row when composing a report.
func ParseKind(s string) Kind {
	switch s {
	case "CREATED":
		return KindCreated
	case "MODIFIED":
		return KindModified
	case "DELETED":
		return KindDeleted
	case "MOVED":
		return KindMoved
	case "PREEXISTING":
		return KindPreExisting
	default:
		return KindModified
	}
}

// FileEvent is one journal row.
type FileEvent struct {
	// ID is the monotonic row id assigned at insert.
	ID int64
	// Timestamp is the insert time, second precision.
	Timestamp time.Time
	// Kind is the lifecycle change this row records.
	Kind Kind
	// Path is the absolute file path (destination path for moves).
	Path string
	// Snapshot is the extracted content description, empty until the
	// analysis worker fills it.
	Snapshot string
	// Analyzed reports whether a snapshot has been filled for this row.
	Analyzed bool
}

// Journal wraps the SQLite event store.
type Journal struct {
	conn *sql.DB
	path string
}

// Open creates a journal connection at the specified path.
//
// The database is opened in embedded mode with WAL for concurrent access.
// If the file doesn't exist it is created; call Init to ensure the schema.
// The caller MUST call Close when done.
func Open(path string) (*Journal, error) {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create journal directory: %w", err)
	}

	conn, err := sql.Open("sqlite3", "file:"+path)
	if err != nil {
		return nil, fmt.Errorf("failed to open journal: %w", err)
	}

	if err := conn.Ping(); err != nil {
		_ = conn.Close()
		return nil, fmt.Errorf("failed to ping journal: %w", err)
	}

	conn.SetMaxOpenConns(25)
	conn.SetMaxIdleConns(5)
	conn.SetConnMaxLifetime(5 * time.Minute)

	j := &Journal{conn: conn, path: path}

	if _, err := j.conn.Exec("PRAGMA journal_mode=WAL"); err != nil {
		_ = j.Close()
		return nil, fmt.Errorf("failed to enable WAL mode: %w", err)
	}
	if _, err := j.conn.Exec("PRAGMA busy_timeout=5000"); err != nil {
		_ = j.Close()
		return nil, fmt.Errorf("failed to set busy timeout: %w", err)
	}

	return j, nil
}

// Close checkpoints the WAL and closes the connection pool.
func (j *Journal) Close() error {
	if j.conn == nil {
		return nil
	}
	if _, err := j.conn.Exec("PRAGMA wal_checkpoint(TRUNCATE)"); err != nil {
		fmt.Fprintf(os.Stderr, "Warning: failed to checkpoint WAL: %v\n", err)
	}
	if err := j.conn.Close(); err != nil {
		return fmt.Errorf("failed to close journal: %w", err)
	}
	j.conn = nil
	return nil
}

// Init ensures the schema exists. Idempotent: safe whether the store is
// fresh or was created by an earlier version that lacked the snapshot
// column, in which case the column is added in place.
func (j *Journal) Init(ctx context.Context) error {
	schema := `
	CREATE TABLE IF NOT EXISTS file_events (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		timestamp TEXT NOT NULL,
		event_kind TEXT NOT NULL,
		file_path TEXT NOT NULL,
		content_snapshot TEXT
	);

	CREATE INDEX IF NOT EXISTS idx_file_events_path ON file_events(file_path);
	`
	if _, err := j.conn.ExecContext(ctx, schema); err != nil {
		return fmt.Errorf("failed to initialize schema: %w", err)
	}

	// Stores written by the pre-analysis schema have the table but not the
	// snapshot column; CREATE TABLE IF NOT EXISTS won't touch those.
	hasSnapshot, err := j.hasColumn(ctx, "file_events", "content_snapshot")
	if err != nil {
		return err
	}
	if !hasSnapshot {
		if _, err := j.conn.ExecContext(ctx,
			"ALTER TABLE file_events ADD COLUMN content_snapshot TEXT"); err != nil {
			return fmt.Errorf("failed to add snapshot column: %w", err)
		}
	}

	return nil
}

// hasColumn reports whether the named table has the named column.
func (j *Journal) hasColumn(ctx context.Context, table, column string) (bool, error) {
	rows, err := j.conn.QueryContext(ctx, fmt.Sprintf("PRAGMA table_info(%s)", table))
	if err != nil {
		return false, fmt.Errorf("failed to inspect %s schema: %w", table, err)
	}
	defer rows.Close()

	for rows.Next() {
		var (
			cid     int
			name    string
			typ     string
			notNull int
			dflt    sql.NullString
			pk      int
		)
		if err := rows.Scan(&cid, &name, &typ, &notNull, &dflt, &pk); err != nil {
			return false, fmt.Errorf("failed to scan column info: %w", err)
		}
		if name == column {
			return true, nil
		}
	}
	return false, rows.Err()
}

// Append inserts a new event row with a null snapshot and returns the
// assigned id. Safe to call concurrently from the watch coordinator and
// the reconciliation scanner.
func (j *Journal) Append(ctx context.Context, kind Kind, path string) (int64, error) {
	res, err := j.conn.ExecContext(ctx,
		"INSERT INTO file_events (timestamp, event_kind, file_path) VALUES (?, ?, ?)",
		time.Now().Format(timeFormat), kind.String(), path)
	if err != nil {
		return 0, fmt.Errorf("failed to append event for %s: %w", path, err)
	}
	id, err := res.LastInsertId()
	if err != nil {
		return 0, fmt.Errorf("failed to read inserted event id: %w", err)
	}
	return id, nil
}

// FillSnapshot updates exactly one row's snapshot field. Unknown ids are
// tolerated as no-ops; a DELETED row never receives a snapshot.
func (j *Journal) FillSnapshot(ctx context.Context, id int64, text string) error {
	_, err := j.conn.ExecContext(ctx,
		"UPDATE file_events SET content_snapshot = ? WHERE id = ? AND event_kind != 'DELETED'",
		text, id)
	if err != nil {
		return fmt.Errorf("failed to fill snapshot for event %d: %w", id, err)
	}
	return nil
}

// FindByPath returns the most recent row for the given path, including
// its kind so callers can tell a live row from a trailing delete.
// ok is false when the path has never been journaled.
func (j *Journal) FindByPath(ctx context.Context, path string) (id int64, kind Kind, snapshot string, ok bool, err error) {
	var (
		snap     sql.NullString
		kindName string
	)
	row := j.conn.QueryRowContext(ctx,
		"SELECT id, event_kind, content_snapshot FROM file_events WHERE file_path = ? ORDER BY id DESC LIMIT 1",
		path)
	if err := row.Scan(&id, &kindName, &snap); err != nil {
		if err == sql.ErrNoRows {
			return 0, 0, "", false, nil
		}
		return 0, 0, "", false, fmt.Errorf("failed to look up %s: %w", path, err)
	}
	return id, ParseKind(kindName), snap.String, true, nil
}

// Recent returns the limit most recent events, newest first.
func (j *Journal) Recent(ctx context.Context, limit int) ([]FileEvent, error) {
	rows, err := j.conn.QueryContext(ctx,
		"SELECT id, timestamp, event_kind, file_path, content_snapshot FROM file_events ORDER BY id DESC LIMIT ?",
		limit)
	if err != nil {
		return nil, fmt.Errorf("failed to query recent events: %w", err)
	}
	defer rows.Close()

	return scanEvents(rows)
}

// Since returns events recorded at or after the given time, newest first,
// capped at limit rows.
func (j *Journal) Since(ctx context.Context, t time.Time, limit int) ([]FileEvent, error) {
	rows, err := j.conn.QueryContext(ctx,
		"SELECT id, timestamp, event_kind, file_path, content_snapshot FROM file_events WHERE timestamp >= ? ORDER BY id DESC LIMIT ?",
		t.Format(timeFormat), limit)
	if err != nil {
		return nil, fmt.Errorf("failed to query events since %s: %w", t.Format(timeFormat), err)
	}
	defer rows.Close()

	return scanEvents(rows)
}

// Count returns the total number of journaled events.
func (j *Journal) Count(ctx context.Context) (int, error) {
	var count int
	err := j.conn.QueryRowContext(ctx, "SELECT COUNT(*) FROM file_events").Scan(&count)
	if err != nil {
		return 0, fmt.Errorf("failed to count events: %w", err)
	}
	return count, nil
}

// scanEvents is a helper to scan multiple events from query results.
func scanEvents(rows *sql.Rows) ([]FileEvent, error) {
	var events []FileEvent

	for rows.Next() {
		var (
			ev        FileEvent
			timestamp string
			kind      string
			snap      sql.NullString
		)
		if err := rows.Scan(&ev.ID, &timestamp, &kind, &ev.Path, &snap); err != nil {
			return nil, fmt.Errorf("failed to scan event: %w", err)
		}
		if t, err := time.ParseInLocation(timeFormat, timestamp, time.Local); err == nil {
			ev.Timestamp = t
		}
		ev.Kind = ParseKind(kind)
		ev.Snapshot = snap.String
		ev.Analyzed = snap.Valid
		events = append(events, ev)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating events: %w", err)
	}
	return events, nil
}

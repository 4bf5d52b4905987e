// Package scan implements the startup reconciliation walk.
//
// The scanner backfills the journal with files that predate the watcher
// and re-queues any journaled file that never received a snapshot. It is
// the engine's sole recovery mechanism for crashes, restarts and periods
// when the watcher was not running; the analysis queue itself is never
// persisted because this walk makes it unnecessary.
package scan

import (
	"context"
	"io"
	"io/fs"
	"log"
	"path/filepath"

	"github.com/openaura/sentinel/internal/journal"
	"github.com/openaura/sentinel/internal/scheduler"
	"github.com/openaura/sentinel/internal/watcher"
)

// Store is the slice of the journal the scanner needs.
type Store interface {
	Append(ctx context.Context, kind journal.Kind, path string) (int64, error)
	FindByPath(ctx context.Context, path string) (id int64, kind journal.Kind, snapshot string, ok bool, err error)
}

// TaskQueue receives analysis tasks for unanalyzed files.
type TaskQueue interface {
	Enqueue(t scheduler.Task)
}

// Reconciler walks the watch targets once per process start.
type Reconciler struct {
	store  Store
	queue  TaskQueue
	logger *log.Logger
}

// New creates a Reconciler.
func New(store Store, queue TaskQueue, logger *log.Logger) *Reconciler {
	if logger == nil {
		logger = log.New(io.Discard, "", 0)
	}
	return &Reconciler{store: store, queue: queue, logger: logger}
}

// Run performs one full recursive walk of every target. It returns the
// number of files now tracked. Running it twice with no filesystem
// changes in between produces zero new rows and zero new tasks the
// second time.
//
// Run is safe to call concurrently with an active watcher: both go
// through short-lived journal operations, and the path lookup keeps a
// file from being journaled twice for the same unanalyzed state.
func (r *Reconciler) Run(ctx context.Context, targets []string) int {
	r.logger.Printf("taking inventory of existing files")

	tracked := 0
	for _, target := range targets {
		err := filepath.WalkDir(target, func(path string, d fs.DirEntry, err error) error {
			if err != nil {
				r.logger.Printf("scan error under %s: %v", target, err)
				return nil
			}
			if ctx.Err() != nil {
				return ctx.Err()
			}
			if d.IsDir() || watcher.Ignored(path) {
				return nil
			}
			r.reconcile(ctx, path)
			tracked++
			return nil
		})
		if err != nil {
			r.logger.Printf("scan of %s stopped: %v", target, err)
		}
	}

	r.logger.Printf("inventory complete: %d files tracked", tracked)
	return tracked
}

// reconcile brings one on-disk file in line with the journal.
func (r *Reconciler) reconcile(ctx context.Context, path string) {
	id, kind, snapshot, ok, err := r.store.FindByPath(ctx, path)
	if err != nil {
		r.logger.Printf("failed to look up %s: %v", path, err)
		return
	}

	switch {
	case !ok || kind == journal.KindDeleted:
		// Never seen, or deleted and recreated while the process was
		// down. A DELETED row can never hold a snapshot, so the current
		// on-disk file needs a fresh row of its own.
		newID, err := r.store.Append(ctx, journal.KindPreExisting, path)
		if err != nil {
			r.logger.Printf("failed to journal pre-existing %s: %v", path, err)
			return
		}
		r.queue.Enqueue(scheduler.Task{EventID: newID, Path: path, Kind: journal.KindPreExisting})

	case snapshot == "":
		// Known but never analyzed: the task was lost to a shutdown or a
		// prior failure. Reuse the existing row, no duplicate insert.
		r.queue.Enqueue(scheduler.Task{EventID: id, Path: path, Kind: journal.KindPreExisting})
	}
	// Known and analyzed: nothing to do.
}

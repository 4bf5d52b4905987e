// Package watcher turns raw filesystem notifications into deduplicated
// domain events.
//
// Each Coordinator subscribes recursively to the configured targets via
// fsnotify, drops noise (lock files, temp/log/db leftovers), absorbs the
// create-then-modify burst pattern with a per-path debounce window, and
// writes one journal row plus one analysis task per accepted event.
package watcher

import (
	"context"
	"fmt"
	"io"
	"io/fs"
	"log"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"

	"github.com/openaura/sentinel/internal/journal"
	"github.com/openaura/sentinel/internal/scheduler"
)

const (
	// debounceWindow is the minimum interval between two accepted events
	// for the same path. Absorbs the usual OS pattern of a create
	// immediately followed by one or more write notifications.
	debounceWindow = time.Second

	// renamePairWindow is how long a rename-away waits for its matching
	// create before degrading to a plain delete.
	renamePairWindow = 500 * time.Millisecond
)

// lockPrefix marks editor lock files (Office, LibreOffice).
const lockPrefix = "~$"

// ignoredExts are file types that never reach the journal.
var ignoredExts = []string{".tmp", ".log", ".ini", ".db", ".dat", ".lnk"}

// Ignored reports whether a path is filtered out before journaling.
// The same rule gates the watch callbacks and the reconciliation scan.
func Ignored(path string) bool {
	name := filepath.Base(path)
	if strings.HasPrefix(name, lockPrefix) {
		return true
	}
	lower := strings.ToLower(name)
	for _, ext := range ignoredExts {
		if strings.HasSuffix(lower, ext) {
			return true
		}
	}
	return false
}

// EventStore is the slice of the journal the coordinator writes to.
type EventStore interface {
	Append(ctx context.Context, kind journal.Kind, path string) (int64, error)
}

// TaskQueue receives one analysis task per accepted non-delete event.
type TaskQueue interface {
	Enqueue(t scheduler.Task)
}

// pendingRename remembers a rename-away waiting for its destination.
type pendingRename struct {
	path string
	at   time.Time
}

// Coordinator owns the fsnotify subscription for a set of watch targets.
//
// The debounce map and the pending-rename slot are touched only from the
// event loop goroutine; the mutex guards the running flag, matching how
// fsnotify delivers events on a single goroutine.
type Coordinator struct {
	watcher *fsnotify.Watcher
	store   EventStore
	queue   TaskQueue
	logger  *log.Logger

	debounce map[string]time.Time
	pending  *pendingRename
	dirs     map[string]bool
	now      func() time.Time

	mu      sync.Mutex
	running bool
	done    chan struct{}
	wg      sync.WaitGroup
}

// New creates a Coordinator. The watcher must be started with Start
// before it will record events.
func New(store EventStore, queue TaskQueue, logger *log.Logger) (*Coordinator, error) {
	w, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, fmt.Errorf("failed to create fsnotify watcher: %w", err)
	}
	if logger == nil {
		logger = log.New(io.Discard, "", 0)
	}
	return &Coordinator{
		watcher:  w,
		store:    store,
		queue:    queue,
		logger:   logger,
		debounce: make(map[string]time.Time),
		dirs:     make(map[string]bool),
		now:      time.Now,
		done:     make(chan struct{}),
	}, nil
}

// Start subscribes recursively to every target and launches the event
// loop. Targets that don't exist are logged and skipped, not fatal; a
// configuration with zero usable targets simply activates nothing.
func (c *Coordinator) Start(targets []string) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.running {
		return fmt.Errorf("watcher already running")
	}

	if len(targets) == 0 {
		c.logger.Printf("no watch targets configured")
	}
	for _, target := range targets {
		if err := c.addRecursive(target); err != nil {
			c.logger.Printf("cannot watch %s: %v", target, err)
			continue
		}
		c.logger.Printf("watching %s", target)
	}

	c.running = true
	c.wg.Add(1)
	go c.loop()
	return nil
}

// Stop shuts down the subscription and blocks until the event loop exits.
func (c *Coordinator) Stop() error {
	c.mu.Lock()
	if !c.running {
		c.mu.Unlock()
		return nil
	}
	c.running = false
	c.mu.Unlock()

	close(c.done)
	if err := c.watcher.Close(); err != nil {
		return fmt.Errorf("failed to close watcher: %w", err)
	}
	c.wg.Wait()
	return nil
}

// IsRunning reports whether the coordinator is active.
func (c *Coordinator) IsRunning() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.running
}

// addRecursive watches dir and every subdirectory below it, remembering
// each directory so their own lifecycle notifications can be told apart
// from file events later.
func (c *Coordinator) addRecursive(dir string) error {
	return filepath.WalkDir(dir, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() {
			if err := c.watcher.Add(path); err != nil {
				return err
			}
			c.dirs[path] = true
		}
		return nil
	})
}

// loop is the notification-delivery goroutine. Nothing in here may block
// on the AI engine; accepted events cost one journal insert and one
// queue append.
func (c *Coordinator) loop() {
	defer c.wg.Done()

	flush := time.NewTicker(renamePairWindow)
	defer flush.Stop()

	for {
		select {
		case <-c.done:
			return

		case event, ok := <-c.watcher.Events:
			if !ok {
				return
			}
			c.handleEvent(event)

		case err, ok := <-c.watcher.Errors:
			if !ok {
				return
			}
			c.logger.Printf("watch error: %v", err)

		case <-flush.C:
			c.flushStaleRename()
		}
	}
}

// handleEvent converts one fsnotify notification into at most one domain
// event.
func (c *Coordinator) handleEvent(event fsnotify.Event) {
	// New directories join the subscription so recursion holds; deleted
	// directories drop out of fsnotify on their own.
	if event.Has(fsnotify.Create) {
		if info, err := os.Stat(event.Name); err == nil && info.IsDir() {
			if err := c.addRecursive(event.Name); err != nil {
				c.logger.Printf("cannot watch new directory %s: %v", event.Name, err)
			}
			return
		}
	}

	// Directory removals and renames are subscription bookkeeping, not
	// file lifecycle events; the files inside report their own removals.
	if c.dirs[event.Name] && (event.Has(fsnotify.Remove) || event.Has(fsnotify.Rename)) {
		delete(c.dirs, event.Name)
		return
	}

	if Ignored(event.Name) {
		return
	}

	now := c.now()
	c.expireStaleRename(now)

	switch {
	case event.Has(fsnotify.Rename):
		// The destination arrives as a separate Create; hold the source
		// until it does.
		c.pending = &pendingRename{path: event.Name, at: now}

	case event.Has(fsnotify.Create):
		if c.pending != nil {
			src := c.pending.path
			c.pending = nil
			c.debounce[event.Name] = now
			c.record(journal.KindMoved, event.Name,
				fmt.Sprintf("%s -> %s", filepath.Base(src), filepath.Base(event.Name)))
			return
		}
		c.debounce[event.Name] = now
		c.record(journal.KindCreated, event.Name, filepath.Base(event.Name))

	case event.Has(fsnotify.Write):
		if last, seen := c.debounce[event.Name]; seen && now.Sub(last) < debounceWindow {
			return
		}
		c.debounce[event.Name] = now
		c.record(journal.KindModified, event.Name, filepath.Base(event.Name))

	case event.Has(fsnotify.Remove):
		delete(c.debounce, event.Name)
		c.record(journal.KindDeleted, event.Name, filepath.Base(event.Name))
	}
}

// expireStaleRename degrades an unmatched rename to a delete.
func (c *Coordinator) expireStaleRename(now time.Time) {
	if c.pending == nil || now.Sub(c.pending.at) < renamePairWindow {
		return
	}
	src := c.pending.path
	c.pending = nil
	delete(c.debounce, src)
	c.record(journal.KindDeleted, src, filepath.Base(src))
}

func (c *Coordinator) flushStaleRename() {
	c.expireStaleRename(c.now())
}

// record performs the per-event side effects: one journal insert and,
// unless the event is a delete, one analysis task. A journal failure is
// logged and the event dropped; it never takes down the subscription.
func (c *Coordinator) record(kind journal.Kind, path, label string) {
	id, err := c.store.Append(context.Background(), kind, path)
	if err != nil {
		c.logger.Printf("failed to journal %s %s: %v", kind, label, err)
		return
	}

	c.logger.Printf("[%s] %s", kind, label)

	if kind == journal.KindDeleted {
		return
	}
	c.queue.Enqueue(scheduler.Task{EventID: id, Path: path, Kind: kind})
}

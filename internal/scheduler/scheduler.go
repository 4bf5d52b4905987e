// Package scheduler decouples cheap event recording from slow content
// extraction.
//
// Producers (the watch coordinator and the reconciliation scanner) enqueue
// tasks; exactly one worker goroutine drains them in strict FIFO order and
// writes the resulting snapshot back to the journal. There is never more
// than one extraction in flight, which keeps the AI engine from being
// hammered and makes per-file analysis deterministic relative to arrival.
//
// The queue is in-memory only. Tasks still queued at shutdown are not
// drained or persisted; the reconciliation scanner re-detects unanalyzed
// rows on the next start, which is why a durable queue is unnecessary.
package scheduler

import (
	"context"
	"io"
	"log"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/openaura/sentinel/internal/journal"
)

// waitTimeout is how long the worker blocks on an empty queue before
// re-checking the stop signal.
const waitTimeout = 250 * time.Millisecond

// Task is one unit of analysis work. Transient: lives only in memory
// between enqueue and processing.
type Task struct {
	EventID int64
	Path    string
	Kind    journal.Kind
}

// SnapshotStore is the slice of the journal the worker writes to.
type SnapshotStore interface {
	FillSnapshot(ctx context.Context, id int64, text string) error
}

// Describer produces the snapshot text for a file.
type Describer interface {
	Describe(ctx context.Context, path string) string
}

// Scheduler owns the task queue and the single analysis worker.
type Scheduler struct {
	store     SnapshotStore
	describer Describer
	logger    *log.Logger

	mu    sync.Mutex
	tasks []Task
	busy  bool

	wake chan struct{}
	wg   sync.WaitGroup
}

// New creates a scheduler. Call Start to launch the worker.
func New(store SnapshotStore, describer Describer, logger *log.Logger) *Scheduler {
	if logger == nil {
		logger = log.New(io.Discard, "", 0)
	}
	return &Scheduler{
		store:     store,
		describer: describer,
		logger:    logger,
		wake:      make(chan struct{}, 1),
	}
}

// Enqueue adds a task to the back of the queue. Never blocks.
func (s *Scheduler) Enqueue(t Task) {
	s.mu.Lock()
	s.tasks = append(s.tasks, t)
	s.mu.Unlock()

	select {
	case s.wake <- struct{}{}:
	default:
	}
}

// Len returns the number of queued tasks.
func (s *Scheduler) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.tasks)
}

// pop removes and returns the front task, marking the worker busy so
// Drain cannot observe an idle instant between dequeue and processing.
func (s *Scheduler) pop() (Task, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if len(s.tasks) == 0 {
		return Task{}, false
	}
	t := s.tasks[0]
	s.tasks = s.tasks[1:]
	s.busy = true
	return t, true
}

// settle clears the busy flag after a task finishes.
func (s *Scheduler) settle() {
	s.mu.Lock()
	s.busy = false
	s.mu.Unlock()
}

// Start launches the worker goroutine. The worker exits when ctx is
// cancelled; use Wait to block until it has.
func (s *Scheduler) Start(ctx context.Context) {
	s.wg.Add(1)
	go s.run(ctx)
}

// Wait blocks until the worker goroutine has exited.
func (s *Scheduler) Wait() {
	s.wg.Wait()
}

// Drain blocks until the queue is empty and no task is being processed,
// or ctx is cancelled. Used by one-shot callers that enqueue a batch and
// want the results before shutting down.
func (s *Scheduler) Drain(ctx context.Context) {
	for {
		s.mu.Lock()
		idle := len(s.tasks) == 0 && !s.busy
		s.mu.Unlock()
		if idle {
			return
		}
		select {
		case <-ctx.Done():
			return
		case <-time.After(waitTimeout / 5):
		}
	}
}

// run is the worker loop: dequeue one task, process it synchronously,
// repeat. An empty queue blocks with a short timeout so the stop signal
// is observed without busy-polling.
func (s *Scheduler) run(ctx context.Context) {
	defer s.wg.Done()

	for {
		if ctx.Err() != nil {
			return
		}

		task, ok := s.pop()
		if !ok {
			select {
			case <-ctx.Done():
				return
			case <-s.wake:
			case <-time.After(waitTimeout):
			}
			continue
		}

		s.process(ctx, task)
		s.settle()
	}
}

// process runs one task. Nothing in here may kill the worker loop:
// extraction failures surface as marker snapshots, journal failures are
// logged and the task discarded.
func (s *Scheduler) process(ctx context.Context, task Task) {
	// Content cannot be analyzed post-deletion; this is the only case
	// where a task is dropped without producing a snapshot.
	if task.Kind == journal.KindDeleted {
		return
	}
	if _, err := os.Stat(task.Path); err != nil {
		s.logger.Printf("skipping analysis of %s: file no longer exists", filepath.Base(task.Path))
		return
	}

	snapshot := s.describer.Describe(ctx, task.Path)
	if err := s.store.FillSnapshot(ctx, task.EventID, snapshot); err != nil {
		s.logger.Printf("failed to store snapshot for event %d: %v", task.EventID, err)
		return
	}
	s.logger.Printf("analysis complete: %s", filepath.Base(task.Path))
}

package scheduler

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/openaura/sentinel/internal/journal"
)

// recordingStore captures FillSnapshot calls in order.
type recordingStore struct {
	mu    sync.Mutex
	calls []int64
	snaps map[int64]string
	err   error
}

func newRecordingStore() *recordingStore {
	return &recordingStore{snaps: make(map[int64]string)}
}

func (r *recordingStore) FillSnapshot(ctx context.Context, id int64, text string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.err != nil {
		return r.err
	}
	r.calls = append(r.calls, id)
	r.snaps[id] = text
	return nil
}

func (r *recordingStore) callIDs() []int64 {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]int64, len(r.calls))
	copy(out, r.calls)
	return out
}

// pathDescriber returns a snapshot derived from the path.
type pathDescriber struct{}

func (pathDescriber) Describe(ctx context.Context, path string) string {
	return "snap:" + filepath.Base(path)
}

func waitFor(t *testing.T, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(5 * time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(10 * time.Millisecond)
	}
	t.Fatal("condition not met in time")
}

func TestProcessesTasksInFIFOOrder(t *testing.T) {
	dir := t.TempDir()
	store := newRecordingStore()
	s := New(store, pathDescriber{}, nil)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	s.Start(ctx)

	const n = 5
	for i := 1; i <= n; i++ {
		path := filepath.Join(dir, fmt.Sprintf("f%d.txt", i))
		if err := os.WriteFile(path, []byte("x"), 0644); err != nil {
			t.Fatalf("failed to write file: %v", err)
		}
		s.Enqueue(Task{EventID: int64(i), Path: path, Kind: journal.KindCreated})
	}

	waitFor(t, func() bool { return len(store.callIDs()) == n })

	ids := store.callIDs()
	for i, id := range ids {
		if id != int64(i+1) {
			t.Fatalf("tasks processed out of order: %v", ids)
		}
	}
}

func TestSkipsDeletedTasks(t *testing.T) {
	dir := t.TempDir()
	store := newRecordingStore()
	s := New(store, pathDescriber{}, nil)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	s.Start(ctx)

	live := filepath.Join(dir, "live.txt")
	if err := os.WriteFile(live, []byte("x"), 0644); err != nil {
		t.Fatalf("failed to write file: %v", err)
	}

	s.Enqueue(Task{EventID: 1, Path: filepath.Join(dir, "dead.txt"), Kind: journal.KindDeleted})
	s.Enqueue(Task{EventID: 2, Path: live, Kind: journal.KindCreated})

	waitFor(t, func() bool { return len(store.callIDs()) == 1 })

	if store.callIDs()[0] != 2 {
		t.Errorf("deleted task should be skipped, got snapshot for id %d", store.callIDs()[0])
	}
}

func TestSkipsVanishedFiles(t *testing.T) {
	store := newRecordingStore()
	s := New(store, pathDescriber{}, nil)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	s.Start(ctx)

	s.Enqueue(Task{EventID: 1, Path: filepath.Join(t.TempDir(), "never-existed.txt"), Kind: journal.KindCreated})

	// Give the worker a moment, then confirm nothing was written.
	time.Sleep(300 * time.Millisecond)
	if got := store.callIDs(); len(got) != 0 {
		t.Errorf("vanished file should be skipped, got calls %v", got)
	}
}

func TestWorkerSurvivesStoreFailure(t *testing.T) {
	dir := t.TempDir()
	store := newRecordingStore()
	store.err = fmt.Errorf("disk full")
	s := New(store, pathDescriber{}, nil)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	s.Start(ctx)

	a := filepath.Join(dir, "a.txt")
	b := filepath.Join(dir, "b.txt")
	for _, p := range []string{a, b} {
		if err := os.WriteFile(p, []byte("x"), 0644); err != nil {
			t.Fatalf("failed to write file: %v", err)
		}
	}

	s.Enqueue(Task{EventID: 1, Path: a, Kind: journal.KindCreated})

	// Let the failing task pass, then heal the store and enqueue again.
	time.Sleep(200 * time.Millisecond)
	store.mu.Lock()
	store.err = nil
	store.mu.Unlock()

	s.Enqueue(Task{EventID: 2, Path: b, Kind: journal.KindModified})
	waitFor(t, func() bool { return len(store.callIDs()) == 1 })

	if store.callIDs()[0] != 2 {
		t.Errorf("worker should continue past a store failure, got %v", store.callIDs())
	}
}

func TestDrainWaitsForAllTasks(t *testing.T) {
	dir := t.TempDir()
	store := newRecordingStore()
	s := New(store, pathDescriber{}, nil)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	s.Start(ctx)

	const n = 10
	for i := 1; i <= n; i++ {
		path := filepath.Join(dir, fmt.Sprintf("d%d.txt", i))
		if err := os.WriteFile(path, []byte("x"), 0644); err != nil {
			t.Fatalf("failed to write file: %v", err)
		}
		s.Enqueue(Task{EventID: int64(i), Path: path, Kind: journal.KindCreated})
	}

	s.Drain(ctx)
	if got := len(store.callIDs()); got != n {
		t.Fatalf("drain returned with %d of %d tasks processed", got, n)
	}
}

func TestDrainObservesCancellation(t *testing.T) {
	s := New(newRecordingStore(), pathDescriber{}, nil)
	// Worker never started, so a queued task would block Drain forever
	// without the context escape.
	s.Enqueue(Task{EventID: 1, Path: "x", Kind: journal.KindCreated})

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	done := make(chan struct{})
	go func() {
		s.Drain(ctx)
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("drain ignored the cancelled context")
	}
}

func TestStopObservedOnEmptyQueue(t *testing.T) {
	s := New(newRecordingStore(), pathDescriber{}, nil)

	ctx, cancel := context.WithCancel(context.Background())
	s.Start(ctx)

	done := make(chan struct{})
	go func() {
		s.Wait()
		close(done)
	}()

	cancel()
	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("worker did not observe the stop signal")
	}
}

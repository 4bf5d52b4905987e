package engine

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/openaura/sentinel/internal/config"
	"github.com/openaura/sentinel/internal/journal"
	"github.com/openaura/sentinel/internal/report"
)

func writeConfig(t *testing.T, baseDir string, targets ...string) *config.Config {
	t.Helper()
	var sb strings.Builder
	sb.WriteString(`{"targets": [`)
	for i, target := range targets {
		if i > 0 {
			sb.WriteString(", ")
		}
		fmt.Fprintf(&sb, `{"path": %q, "kind": "folder"}`, target)
	}
	// Point the engine at a dead port so nothing tries to reach a real
	// ollama during tests.
	sb.WriteString(`], "engine_url": "http://127.0.0.1:1"}`)

	if err := os.WriteFile(filepath.Join(baseDir, config.ConfigFileName), []byte(sb.String()), 0644); err != nil {
		t.Fatalf("write config: %v", err)
	}
	cfg, err := config.Load(baseDir)
	if err != nil {
		t.Fatalf("load config: %v", err)
	}
	return cfg
}

func waitFor(t *testing.T, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(5 * time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(20 * time.Millisecond)
	}
	t.Fatal("condition not met within deadline")
}

func TestEngineWatchesAndAnalyzes(t *testing.T) {
	baseDir := t.TempDir()
	watched := filepath.Join(baseDir, "projects")
	if err := os.MkdirAll(watched, 0755); err != nil {
		t.Fatalf("mkdir: %v", err)
	}

	// One file exists before the engine starts; reconciliation must
	// pick it up as pre-existing.
	preexisting := filepath.Join(watched, "old.txt")
	if err := os.WriteFile(preexisting, []byte("kickoff notes"), 0644); err != nil {
		t.Fatalf("write: %v", err)
	}

	cfg := writeConfig(t, baseDir, watched)
	eng, err := New(cfg, nil)
	if err != nil {
		t.Fatalf("new engine: %v", err)
	}
	defer eng.Stop()

	ctx := context.Background()
	if err := eng.Start(ctx); err != nil {
		t.Fatalf("start: %v", err)
	}
	// Second Start is a no-op.
	if err := eng.Start(ctx); err != nil {
		t.Fatalf("restart: %v", err)
	}

	j := eng.Journal()

	// Wait until the startup reconciliation has journaled old.txt before
	// creating new.txt; once old.txt has a row the scanner has already
	// read the directory listing, so only the live watcher can see the
	// new file and its kind is deterministically CREATED.
	waitFor(t, func() bool {
		events, err := j.Recent(ctx, 50)
		if err != nil {
			t.Fatalf("recent: %v", err)
		}
		for _, ev := range events {
			if ev.Path == preexisting {
				return true
			}
		}
		return false
	})

	created := filepath.Join(watched, "new.txt")
	if err := os.WriteFile(created, []byte("draft agenda"), 0644); err != nil {
		t.Fatalf("write: %v", err)
	}

	var byPath map[string]journal.FileEvent
	waitFor(t, func() bool {
		events, err := j.Recent(ctx, 50)
		if err != nil {
			t.Fatalf("recent: %v", err)
		}
		byPath = make(map[string]journal.FileEvent)
		for _, ev := range events {
			byPath[ev.Path] = ev
		}
		old, newer := byPath[preexisting], byPath[created]
		return old.Analyzed && newer.Analyzed
	})

	if got := byPath[preexisting].Kind; got != journal.KindPreExisting {
		t.Errorf("old.txt kind = %v, want PREEXISTING", got)
	}
	if got := byPath[created].Kind; got != journal.KindCreated {
		t.Errorf("new.txt kind = %v, want CREATED", got)
	}
	for path, ev := range byPath {
		if !strings.Contains(ev.Snapshot, "draft agenda") && !strings.Contains(ev.Snapshot, "kickoff notes") {
			t.Errorf("%s snapshot missing file content: %q", path, ev.Snapshot)
		}
	}

	if err := eng.Stop(); err != nil {
		t.Fatalf("stop: %v", err)
	}
}

func TestScanCountsTrackedFiles(t *testing.T) {
	baseDir := t.TempDir()
	watched := filepath.Join(baseDir, "docs")
	if err := os.MkdirAll(watched, 0755); err != nil {
		t.Fatalf("mkdir: %v", err)
	}
	for _, name := range []string{"a.txt", "b.txt"} {
		if err := os.WriteFile(filepath.Join(watched, name), []byte("x"), 0644); err != nil {
			t.Fatalf("write: %v", err)
		}
	}

	cfg := writeConfig(t, baseDir, watched)
	eng, err := New(cfg, nil)
	if err != nil {
		t.Fatalf("new engine: %v", err)
	}
	defer eng.Stop()

	if tracked := eng.Scan(context.Background()); tracked != 2 {
		t.Fatalf("tracked = %d, want 2", tracked)
	}
}

func TestScanAndAnalyzeFillsSnapshots(t *testing.T) {
	baseDir := t.TempDir()
	watched := filepath.Join(baseDir, "docs")
	if err := os.MkdirAll(watched, 0755); err != nil {
		t.Fatalf("mkdir: %v", err)
	}
	if err := os.WriteFile(filepath.Join(watched, "minutes.txt"), []byte("standup minutes"), 0644); err != nil {
		t.Fatalf("write: %v", err)
	}

	cfg := writeConfig(t, baseDir, watched)
	eng, err := New(cfg, nil)
	if err != nil {
		t.Fatalf("new engine: %v", err)
	}
	defer eng.Stop()

	ctx := context.Background()
	if tracked := eng.ScanAndAnalyze(ctx); tracked != 1 {
		t.Fatalf("tracked = %d, want 1", tracked)
	}

	events, err := eng.Journal().Recent(ctx, 10)
	if err != nil {
		t.Fatalf("recent: %v", err)
	}
	if len(events) != 1 || !events[0].Analyzed {
		t.Fatalf("expected one analyzed row, got %+v", events)
	}
	if !strings.Contains(events[0].Snapshot, "standup minutes") {
		t.Fatalf("snapshot = %q", events[0].Snapshot)
	}
}

func TestReportOnEmptyJournal(t *testing.T) {
	baseDir := t.TempDir()
	cfg := writeConfig(t, baseDir)
	eng, err := New(cfg, nil)
	if err != nil {
		t.Fatalf("new engine: %v", err)
	}
	defer eng.Stop()

	if got := eng.Report(context.Background(), time.Time{}); got != report.NoDataMessage {
		t.Fatalf("report = %q, want %q", got, report.NoDataMessage)
	}
}

func TestLogFunc(t *testing.T) {
	var lines []string
	logger := LogFunc(func(format string, args ...any) {
		lines = append(lines, fmt.Sprintf(format, args...))
	})

	logger.Printf("tracked %d files", 3)
	if len(lines) != 1 || lines[0] != "tracked 3 files" {
		t.Fatalf("lines = %q", lines)
	}
}

func TestStopWithoutStart(t *testing.T) {
	cfg := writeConfig(t, t.TempDir())
	eng, err := New(cfg, nil)
	if err != nil {
		t.Fatalf("new engine: %v", err)
	}
	if err := eng.Stop(); err != nil {
		t.Fatalf("stop: %v", err)
	}
}

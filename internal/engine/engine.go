// Package engine assembles the watch pipeline into one long-running unit.
//
// An Engine owns the journal, the AI client, the extraction scheduler, the
// filesystem coordinator and the startup reconciler, and exposes the few
// operations the CLI needs: run the pipeline, scan once, synthesize a
// report, enrich the company identity.
package engine

import (
	"context"
	"fmt"
	"io"
	"log"
	"strings"
	"sync"
	"time"

	"github.com/openaura/sentinel/internal/config"
	"github.com/openaura/sentinel/internal/enrich"
	"github.com/openaura/sentinel/internal/extract"
	"github.com/openaura/sentinel/internal/journal"
	"github.com/openaura/sentinel/internal/ollama"
	"github.com/openaura/sentinel/internal/report"
	"github.com/openaura/sentinel/internal/scan"
	"github.com/openaura/sentinel/internal/scheduler"
	"github.com/openaura/sentinel/internal/watcher"
)

// Engine wires the subsystems around one journal and one AI client.
type Engine struct {
	cfg    *config.Config
	logger *log.Logger

	journal  *journal.Journal
	client   *ollama.Client
	sched    *scheduler.Scheduler
	watch    *watcher.Coordinator
	recon    *scan.Reconciler
	synth    *report.Synthesizer
	enricher *enrich.Enricher

	mu      sync.Mutex
	running bool
	cancel  context.CancelFunc
}

// New opens the journal and builds the subsystem graph. The pipeline does
// not run until Start; one-shot operations (Scan, Report, Enrich) work on
// a non-started engine too.
func New(cfg *config.Config, logger *log.Logger) (*Engine, error) {
	if logger == nil {
		logger = log.New(io.Discard, "", 0)
	}

	j, err := journal.Open(cfg.JournalPath())
	if err != nil {
		return nil, fmt.Errorf("open journal: %w", err)
	}
	if err := j.Init(context.Background()); err != nil {
		j.Close()
		return nil, fmt.Errorf("init journal: %w", err)
	}

	client := ollama.NewClient(cfg.EngineURL, logger)
	extractor := extract.New(client, cfg.Model(), cfg.VisionModelTag, logger)
	sched := scheduler.New(j, extractor, logger)

	watch, err := watcher.New(j, sched, logger)
	if err != nil {
		j.Close()
		return nil, fmt.Errorf("create watcher: %w", err)
	}

	return &Engine{
		cfg:      cfg,
		logger:   logger,
		journal:  j,
		client:   client,
		sched:    sched,
		watch:    watch,
		recon:    scan.New(j, sched, logger),
		synth:    report.New(j, client, logger),
		enricher: enrich.New(client, logger),
	}, nil
}

// Start launches the scheduler and the watcher, then reconciles the watch
// targets in the background. Idempotent while running.
func (e *Engine) Start(ctx context.Context) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.running {
		return nil
	}

	runCtx, cancel := context.WithCancel(ctx)
	e.cancel = cancel

	e.sched.Start(runCtx)

	targets := e.cfg.TargetPaths()
	if err := e.watch.Start(targets); err != nil {
		cancel()
		e.sched.Wait()
		return fmt.Errorf("start watcher: %w", err)
	}

	// Catch up on whatever happened while the process was down. The scan
	// shares the journal and the queue with the live watcher.
	go e.recon.Run(runCtx, targets)

	e.running = true
	e.logger.Printf("engine started, watching %d targets", len(targets))
	return nil
}

// Stop winds the pipeline down and closes the journal. Safe to call on a
// never-started engine.
func (e *Engine) Stop() error {
	e.mu.Lock()
	defer e.mu.Unlock()

	if e.running {
		if err := e.watch.Stop(); err != nil {
			e.logger.Printf("watcher stop: %v", err)
		}
		e.cancel()
		e.sched.Wait()
		e.running = false
		e.logger.Printf("engine stopped")
	}
	return e.journal.Close()
}

// Scan runs one reconciliation pass and returns the number of tracked
// files. Used by the standalone scan command; the watch pipeline triggers
// the same pass itself on Start.
func (e *Engine) Scan(ctx context.Context) int {
	return e.recon.Run(ctx, e.cfg.TargetPaths())
}

// ScanAndAnalyze runs one reconciliation pass with a live worker and
// waits for every queued analysis to finish before returning. Meant for
// one-shot use on a non-started engine.
func (e *Engine) ScanAndAnalyze(ctx context.Context) int {
	runCtx, cancel := context.WithCancel(ctx)
	defer cancel()

	e.sched.Start(runCtx)
	tracked := e.recon.Run(runCtx, e.cfg.TargetPaths())
	e.sched.Drain(runCtx)

	cancel()
	e.sched.Wait()
	return tracked
}

// Report synthesizes one activity report. A zero since covers the most
// recent events regardless of age.
func (e *Engine) Report(ctx context.Context, since time.Time) string {
	return e.synth.Generate(ctx, report.Options{
		Model:          e.cfg.Model(),
		Style:          e.cfg.SystemPromptStyle,
		CompanyContext: e.cfg.ScrapingSummary,
		Since:          since,
	})
}

// Enrich builds and persists the company identity sheet from the
// configured website. Returns the sheet, freshly built or pre-existing.
func (e *Engine) Enrich(ctx context.Context) (string, error) {
	return e.enricher.Run(ctx, e.cfg.WebsiteURL, e.cfg.ScrapingSummary, e.cfg.Model(), e.cfg)
}

// Journal exposes the underlying event store for read-only inspection.
func (e *Engine) Journal() *journal.Journal {
	return e.journal
}

// logfWriter bridges io.Writer output into a formatting callback.
type logfWriter struct {
	fn func(format string, args ...any)
}

func (w logfWriter) Write(p []byte) (int, error) {
	w.fn("%s", strings.TrimRight(string(p), "\n"))
	return len(p), nil
}

// LogFunc adapts a plain formatting callback into the *log.Logger the
// subsystems expect. Embedders that surface engine output in their own
// UI hand their callback here and pass the result to New.
func LogFunc(fn func(format string, args ...any)) *log.Logger {
	return log.New(logfWriter{fn: fn}, "", 0)
}

// Package report synthesizes a natural-language activity report from the
// accumulated journal.
//
// One invocation reads the most recent journal rows, folds in the company
// context and the configured tone, and performs a single prompt/response
// cycle against the AI engine. The synthesizer boundary never throws: the
// caller always gets a string, whether that's the narrative, a "no data"
// notice or an "engine unavailable" notice.
package report

import (
	"context"
	"fmt"
	"io"
	"log"
	"path/filepath"
	"strings"
	"time"

	"github.com/openaura/sentinel/internal/config"
	"github.com/openaura/sentinel/internal/journal"
)

const (
	// RecentLimit is how many journal rows feed one report.
	RecentLimit = 50

	// RowSnapshotBudget caps each snapshot's contribution to the prompt,
	// so total prompt size stays bounded regardless of RecentLimit.
	RowSnapshotBudget = 560

	// PendingPlaceholder stands in for rows whose analysis hasn't run yet.
	// The report acknowledges pending work instead of hiding it.
	PendingPlaceholder = "(not yet analyzed)"

	// NoDataMessage is returned when the journal is empty.
	NoDataMessage = "Nothing to report: no activity has been recorded yet."

	// UnavailableMessage is returned when the engine cannot be reached.
	UnavailableMessage = "The AI engine is unavailable. The report will be ready once it is back."

	// storeErrorMessage is returned when the journal itself cannot be read.
	storeErrorMessage = "The activity journal could not be read; see the log for details."
)

// Store is the slice of the journal the synthesizer reads.
type Store interface {
	Recent(ctx context.Context, limit int) ([]journal.FileEvent, error)
	Since(ctx context.Context, t time.Time, limit int) ([]journal.FileEvent, error)
}

// Engine is the readiness gate plus one generation call.
type Engine interface {
	EnsureReady(ctx context.Context) bool
	Generate(ctx context.Context, model, prompt string, images []string) (string, error)
}

// Options selects what goes into one report.
type Options struct {
	// Model is the tag used for the generation call.
	Model string
	// Style is one of the config.Style* selectors.
	Style string
	// CompanyContext is the external identity sheet, may be empty.
	CompanyContext string
	// Since, when non-zero, restricts the report to events at or after
	// that instant instead of the plain most-recent window.
	Since time.Time
}

// Synthesizer produces reports on demand.
type Synthesizer struct {
	store  Store
	engine Engine
	logger *log.Logger
}

// New creates a Synthesizer.
func New(store Store, engine Engine, logger *log.Logger) *Synthesizer {
	if logger == nil {
		logger = log.New(io.Discard, "", 0)
	}
	return &Synthesizer{store: store, engine: engine, logger: logger}
}

// Generate produces one report. It always returns a string.
func (s *Synthesizer) Generate(ctx context.Context, opts Options) string {
	var (
		events []journal.FileEvent
		err    error
	)
	if opts.Since.IsZero() {
		events, err = s.store.Recent(ctx, RecentLimit)
	} else {
		events, err = s.store.Since(ctx, opts.Since, RecentLimit)
	}
	if err != nil {
		s.logger.Printf("report aborted, journal read failed: %v", err)
		return storeErrorMessage
	}

	if len(events) == 0 {
		return NoDataMessage
	}

	if !s.engine.EnsureReady(ctx) {
		return UnavailableMessage
	}

	prompt := buildPrompt(opts, events)
	s.logger.Printf("composing report from %d events", len(events))

	text, err := s.engine.Generate(ctx, opts.Model, prompt, nil)
	if err != nil {
		s.logger.Printf("report generation failed: %v", err)
		return UnavailableMessage
	}
	return text
}

// toneInstruction maps the wizard's style selector to a role description.
func toneInstruction(style string) string {
	switch style {
	case config.StyleCasualEngaging:
		return "You are warm and encouraging, a team coach; a light touch of emoji is fine."
	case config.StyleBalancedProfessional:
		return "You are professional but approachable."
	default:
		return "You are factual, precise and analytical."
	}
}

// formatEvents renders journal rows as the raw-activity block of the
// prompt. Paths are reduced to parent-folder/filename; snapshots are
// truncated to the per-row budget.
func formatEvents(events []journal.FileEvent) string {
	var sb strings.Builder
	for _, ev := range events {
		folder := filepath.Base(filepath.Dir(ev.Path))
		name := filepath.Base(ev.Path)

		snapshot := PendingPlaceholder
		if ev.Kind == journal.KindDeleted {
			snapshot = "(file deleted)"
		} else if ev.Analyzed {
			snapshot = clip(ev.Snapshot, RowSnapshotBudget)
		}

		fmt.Fprintf(&sb, "- %s : [%s] %s/%s | %s\n",
			ev.Timestamp.Format("2006-01-02 15:04:05"), ev.Kind, folder, name, snapshot)
	}
	return sb.String()
}

// buildPrompt assembles the single composed request.
func buildPrompt(opts Options, events []journal.FileEvent) string {
	companyContext := opts.CompanyContext
	if companyContext == "" {
		companyContext = "Unknown company"
	}

	return fmt.Sprintf(`COMPANY CONTEXT:
%s

YOUR ROLE:
%s
Write a short activity report for the team.

DETECTED ACTIVITY (RAW LOG, NEWEST FIRST):
%s
INSTRUCTIONS:
1. Summarize what happened (new files, modifications, deletions).
2. Use the content descriptions to guess which project the team is working on.
3. Flag anything suspicious (executables, odd temp files).
4. Do not list the log line by line; produce an intelligent synthesis.
5. Entries marked %q are awaiting analysis; mention pending work briefly if there is a lot of it.`,
		companyContext, toneInstruction(opts.Style), formatEvents(events), PendingPlaceholder)
}

// clip caps s at n runes, appending an ellipsis when cut.
func clip(s string, n int) string {
	runes := []rune(s)
	if len(runes) <= n {
		return s
	}
	return string(runes[:n]) + "…"
}

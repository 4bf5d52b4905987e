// Package enrich builds a company identity sheet from the configured
// website so that reports speak in the company's own vocabulary.
//
// Enrichment happens at most once: the fetched page is converted to
// markdown, distilled by the AI engine into a short identity summary, and
// persisted into the configuration. A config that already carries a
// summary is left untouched.
package enrich

import (
	"context"
	"fmt"
	"io"
	"log"
	"net/http"
	"strings"
	"time"

	htmltomarkdown "github.com/JohannesKaufmann/html-to-markdown/v2"
)

const (
	// pageCharBudget caps how much converted page text reaches the prompt.
	pageCharBudget = 6000

	fetchTimeout = 30 * time.Second

	// maxBodyBytes guards against pathological responses.
	maxBodyBytes = 4 << 20
)

// Engine is the readiness gate plus one generation call.
type Engine interface {
	EnsureReady(ctx context.Context) bool
	Generate(ctx context.Context, model, prompt string, images []string) (string, error)
}

// Saver persists the produced summary, typically *config.Config.
type Saver interface {
	SaveScrapingSummary(summary string) error
}

// Enricher runs the one-shot website distillation.
type Enricher struct {
	engine Engine
	httpc  *http.Client
	logger *log.Logger
}

// New creates an Enricher.
func New(engine Engine, logger *log.Logger) *Enricher {
	if logger == nil {
		logger = log.New(io.Discard, "", 0)
	}
	return &Enricher{
		engine: engine,
		httpc:  &http.Client{Timeout: fetchTimeout},
		logger: logger,
	}
}

// Run fetches url, distills it with model and persists the result through
// saver. An existing non-empty summary short-circuits the whole call.
func (e *Enricher) Run(ctx context.Context, url, existing, model string, saver Saver) (string, error) {
	if strings.TrimSpace(existing) != "" {
		e.logger.Printf("identity sheet already present, skipping enrichment")
		return existing, nil
	}
	if strings.TrimSpace(url) == "" {
		return "", fmt.Errorf("no website configured")
	}

	md, err := e.fetchMarkdown(ctx, url)
	if err != nil {
		return "", fmt.Errorf("fetch %s: %w", url, err)
	}
	e.logger.Printf("fetched %s (%d chars of markdown)", url, len(md))

	if !e.engine.EnsureReady(ctx) {
		return "", fmt.Errorf("AI engine not reachable")
	}

	summary, err := e.engine.Generate(ctx, model, distillPrompt(md), nil)
	if err != nil {
		return "", fmt.Errorf("distill %s: %w", url, err)
	}
	summary = strings.TrimSpace(summary)
	if summary == "" {
		return "", fmt.Errorf("distill %s: empty summary", url)
	}

	if err := saver.SaveScrapingSummary(summary); err != nil {
		return "", fmt.Errorf("persist summary: %w", err)
	}
	e.logger.Printf("identity sheet saved (%d chars)", len(summary))
	return summary, nil
}

// fetchMarkdown downloads the page and converts it to clipped markdown.
func (e *Enricher) fetchMarkdown(ctx context.Context, url string) (string, error) {
	if !strings.Contains(url, "://") {
		url = "https://" + url
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return "", err
	}
	req.Header.Set("User-Agent", "sentinel/1.0")

	resp, err := e.httpc.Do(req)
	if err != nil {
		return "", err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("unexpected status %s", resp.Status)
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxBodyBytes))
	if err != nil {
		return "", err
	}

	md, err := htmltomarkdown.ConvertString(string(body))
	if err != nil {
		return "", fmt.Errorf("convert html: %w", err)
	}

	md = strings.TrimSpace(md)
	runes := []rune(md)
	if len(runes) > pageCharBudget {
		md = string(runes[:pageCharBudget])
	}
	if md == "" {
		return "", fmt.Errorf("page yielded no text")
	}
	return md, nil
}

func distillPrompt(md string) string {
	return fmt.Sprintf(`Below is the content of a company website, converted to markdown.

%s

Write a compact identity sheet for this company: what it does, its sector,
its products or services, its customers and its tone of voice. Five to ten
sentences, plain prose, no headings. Answer with the sheet only.`, md)
}

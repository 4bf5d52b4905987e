// Package extract produces bounded textual descriptions of file content.
//
// Dispatch is by file extension, case-insensitive. Every call returns a
// string carrying a human-readable category prefix so downstream consumers
// can tell a vision analysis from raw text or an error marker; extraction
// never raises past this package.
package extract

import (
	"context"
	"encoding/base64"
	"fmt"
	"io"
	"log"
	"os"
	"path/filepath"
	"strings"

	"github.com/openaura/sentinel/internal/ollama"
)

// Budgets bound the cost of a single extraction and the prompt size of
// everything built on top of the snapshots.
const (
	// MaxPDFPages caps how many pages of a PDF are parsed.
	MaxPDFPages = 5
	// PDFCharBudget caps the extracted PDF text length.
	PDFCharBudget = 2400
	// PDFMinChars is the threshold under which a PDF counts as scanned.
	PDFMinChars = 50
	// TextByteBudget caps how much of a plain-text file is read.
	TextByteBudget = 4096
)

// Category prefixes carried by every snapshot.
const (
	PrefixVision = "[IMAGE ANALYSIS]"
	PrefixPDF    = "[PDF CONTENT]"
	PrefixText   = "[TEXT CONTENT]"

	// MarkerScanned flags a PDF with no machine-readable text layer.
	MarkerScanned = "[PDF SCANNED] no extractable text; OCR would be required"
	// MarkerNotAnalyzable flags an unsupported file type.
	MarkerNotAnalyzable = "[NOT ANALYZABLE] unsupported file type"
	// MarkerEngineDown flags a vision call skipped because the AI engine
	// was not reachable.
	MarkerEngineDown = "[AI UNAVAILABLE] image analysis skipped: engine not reachable"
	// MarkerUnreadable flags a local read failure (vanished file,
	// permissions, corrupt content).
	MarkerUnreadable = "[UNREADABLE]"
)

// visionPrompt is the fixed instruction sent with every image.
const visionPrompt = "Describe this image precisely. Transcribe any visible text."

var imageExts = map[string]bool{
	".jpg": true, ".jpeg": true, ".png": true, ".bmp": true, ".webp": true,
}

var textExts = map[string]bool{
	".txt": true, ".md": true, ".markdown": true, ".rst": true,
	".csv": true, ".tsv": true, ".json": true, ".yaml": true, ".yml": true,
	".xml": true, ".html": true, ".htm": true, ".toml": true, ".cfg": true,
	".conf": true, ".sql": true, ".sh": true, ".bat": true, ".ps1": true,
	".go": true, ".py": true, ".js": true, ".ts": true, ".java": true,
	".c": true, ".h": true, ".cpp": true, ".rs": true, ".rb": true,
}

// Engine is the slice of the AI client the extractor needs: a readiness
// gate and one prompt/response call.
type Engine interface {
	EnsureReady(ctx context.Context) bool
	Generate(ctx context.Context, model, prompt string, images []string) (string, error)
}

// Extractor turns a file path into a bounded snapshot string.
type Extractor struct {
	engine      Engine
	modelTag    string
	visionModel string
	logger      *log.Logger
}

// New creates an extractor. modelTag is the operator's configured model;
// visionOverride, when non-empty, forces the model used for image calls.
func New(engine Engine, modelTag, visionOverride string, logger *log.Logger) *Extractor {
	if logger == nil {
		logger = log.New(io.Discard, "", 0)
	}
	return &Extractor{
		engine:      engine,
		modelTag:    modelTag,
		visionModel: ollama.VisionModel(modelTag, visionOverride),
		logger:      logger,
	}
}

// Describe returns a textual description of the file at path.
// It never returns an error: local failures and engine failures come back
// as explicit marker strings.
func (e *Extractor) Describe(ctx context.Context, path string) string {
	ext := strings.ToLower(filepath.Ext(path))

	switch {
	case imageExts[ext]:
		return e.describeImage(ctx, path)
	case ext == ".pdf":
		return describePDF(path)
	case textExts[ext]:
		return describeText(path)
	default:
		return MarkerNotAnalyzable
	}
}

// describeImage sends the file bytes to the engine's vision model.
func (e *Extractor) describeImage(ctx context.Context, path string) string {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Sprintf("%s %v", MarkerUnreadable, err)
	}

	if !e.engine.EnsureReady(ctx) {
		return MarkerEngineDown
	}

	encoded := base64.StdEncoding.EncodeToString(data)
	text, err := e.engine.Generate(ctx, e.visionModel, visionPrompt, []string{encoded})
	if err != nil {
		e.logger.Printf("vision analysis failed for %s: %v", filepath.Base(path), err)
		return MarkerEngineDown
	}

	return PrefixVision + " " + text
}

// describeText reads the head of a plain-text-like file with lenient
// decoding; undecodable bytes are replaced, never fatal.
func describeText(path string) string {
	f, err := os.Open(path)
	if err != nil {
		return fmt.Sprintf("%s %v", MarkerUnreadable, err)
	}
	defer f.Close()

	buf := make([]byte, TextByteBudget)
	n, err := io.ReadFull(f, buf)
	if err != nil && err != io.EOF && err != io.ErrUnexpectedEOF {
		return fmt.Sprintf("%s %v", MarkerUnreadable, err)
	}

	text := strings.ToValidUTF8(string(buf[:n]), "�")
	text = strings.ReplaceAll(text, "\x00", "")
	return PrefixText + " " + strings.TrimSpace(text)
}

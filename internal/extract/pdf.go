package extract

import (
	"bytes"
	"fmt"
	"io"
	"os"
	"regexp"
	"strings"
	"unicode"

	"github.com/pdfcpu/pdfcpu/pkg/api"
	"github.com/pdfcpu/pdfcpu/pkg/pdfcpu"
	"github.com/pdfcpu/pdfcpu/pkg/pdfcpu/model"
)

// describePDF extracts text from at most the first MaxPDFPages pages and
// truncates the result to PDFCharBudget characters. PDFs with no usable
// text layer come back as the scanned marker, not a near-empty snapshot.
func describePDF(path string) string {
	f, err := os.Open(path)
	if err != nil {
		return fmt.Sprintf("%s %v", MarkerUnreadable, err)
	}
	defer f.Close()

	conf := model.NewDefaultConfiguration()
	pdfCtx, err := api.ReadValidateAndOptimize(f, conf)
	if err != nil {
		return fmt.Sprintf("%s pdf parse failed: %v", MarkerUnreadable, err)
	}

	pages := pdfCtx.PageCount
	if pages > MaxPDFPages {
		pages = MaxPDFPages
	}

	var sb strings.Builder
	for pageNr := 1; pageNr <= pages; pageNr++ {
		text := pageText(pdfCtx, pageNr)
		if text == "" {
			continue
		}
		if sb.Len() > 0 {
			sb.WriteByte('\n')
		}
		sb.WriteString(text)
		if sb.Len() >= PDFCharBudget {
			break
		}
	}

	text := truncate(sb.String(), PDFCharBudget)
	if len([]rune(text)) < PDFMinChars {
		return MarkerScanned
	}
	return PrefixPDF + " " + text
}

// pageText pulls the text show operators out of one page's content stream.
func pageText(pdfCtx *model.Context, pageNr int) string {
	r, err := pdfcpu.ExtractPageContent(pdfCtx, pageNr)
	if err != nil {
		return ""
	}
	data, err := io.ReadAll(r)
	if err != nil || len(data) == 0 {
		return ""
	}
	return streamText(data)
}

// pdfLiteral matches parenthesised PDF string literals.
var pdfLiteral = regexp.MustCompile(`\(((?:[^()\\]|\\.)*)\)`)

// streamText scans a content stream for the Tj/TJ/' show operators and the
// T* line operator. Positioning operators are approximated with spaces;
// anything fancier is out of budget for a snapshot.
func streamText(data []byte) string {
	var sb strings.Builder

	for _, line := range bytes.Split(data, []byte{'\n'}) {
		line = bytes.TrimSpace(line)
		if len(line) == 0 {
			continue
		}

		switch {
		case bytes.HasSuffix(line, []byte("Tj")), bytes.HasSuffix(line, []byte("TJ")):
			for _, m := range pdfLiteral.FindAllSubmatch(line, -1) {
				sb.WriteString(unescapePDF(m[1]))
			}
		case bytes.HasSuffix(line, []byte("'")) && bytes.Contains(line, []byte("(")):
			for _, m := range pdfLiteral.FindAllSubmatch(line, -1) {
				sb.WriteByte('\n')
				sb.WriteString(unescapePDF(m[1]))
			}
		case bytes.Equal(line, []byte("T*")):
			sb.WriteByte('\n')
		case bytes.HasSuffix(line, []byte("Td")), bytes.HasSuffix(line, []byte("TD")):
			if sb.Len() > 0 {
				sb.WriteByte(' ')
			}
		}
	}

	return squeezeWhitespace(sb.String())
}

// unescapePDF resolves the escape sequences allowed in PDF string literals.
func unescapePDF(raw []byte) string {
	var sb strings.Builder
	for i := 0; i < len(raw); i++ {
		if raw[i] != '\\' || i+1 >= len(raw) {
			sb.WriteByte(raw[i])
			continue
		}
		i++
		switch raw[i] {
		case 'n':
			sb.WriteByte('\n')
		case 'r':
			sb.WriteByte('\r')
		case 't':
			sb.WriteByte('\t')
		case '\\', '(', ')':
			sb.WriteByte(raw[i])
		default:
			if raw[i] >= '0' && raw[i] <= '7' {
				val := int(raw[i] - '0')
				for d := 0; d < 2 && i+1 < len(raw) && raw[i+1] >= '0' && raw[i+1] <= '7'; d++ {
					i++
					val = val*8 + int(raw[i]-'0')
				}
				sb.WriteByte(byte(val))
			} else {
				sb.WriteByte(raw[i])
			}
		}
	}
	return sb.String()
}

// squeezeWhitespace collapses runs of whitespace and drops non-printables.
func squeezeWhitespace(text string) string {
	var sb strings.Builder
	prevSpace := false
	for _, r := range text {
		switch {
		case unicode.IsSpace(r):
			if !prevSpace && sb.Len() > 0 {
				sb.WriteByte(' ')
				prevSpace = true
			}
		case unicode.IsPrint(r):
			sb.WriteRune(r)
			prevSpace = false
		}
	}
	return strings.TrimSpace(sb.String())
}

// truncate caps s at n runes.
func truncate(s string, n int) string {
	runes := []rune(s)
	if len(runes) <= n {
		return s
	}
	return string(runes[:n])
}

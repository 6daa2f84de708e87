// Package extract provides best-effort text extraction from PDF files.
// Callers always get a usable string back: extraction problems surface as an
// inline bracketed notice, never as an error.
package extract

import (
	"fmt"
	"strings"
	"unicode"

	"github.com/ledongthuc/pdf"
)

// MaxTextSize caps the extracted text per document.
const MaxTextSize = 64 * 1024

// Text extracts plain text from the first maxPages pages of the PDF at path.
// maxPages <= 0 means all pages. Pages that fail to extract are skipped.
func Text(path string, maxPages int) string {
	f, reader, err := pdf.Open(path)
	if err != nil {
		return fmt.Sprintf("[unreadable document: %s]", path)
	}
	defer f.Close()

	total := reader.NumPage()
	if maxPages > 0 && maxPages < total {
		total = maxPages
	}

	var sb strings.Builder
	for pageNum := 1; pageNum <= total; pageNum++ {
		page := reader.Page(pageNum)
		if page.V.IsNull() {
			continue
		}
		text, err := page.GetPlainText(nil)
		if err != nil {
			continue
		}
		cleaned := clean(text)
		if cleaned == "" {
			continue
		}
		sb.WriteString(cleaned)
		sb.WriteString("\n")
		if sb.Len() > MaxTextSize {
			break
		}
	}

	out := sb.String()
	if len(out) > MaxTextSize {
		out = out[:MaxTextSize]
	}
	return out
}

func clean(text string) string {
	text = strings.ReplaceAll(text, "\x00", "")
	return strings.TrimSpace(collapseSpaces(text))
}

// collapseSpaces squeezes runs of whitespace to one space, keeping newlines.
func collapseSpaces(text string) string {
	var sb strings.Builder
	lastWasSpace := false
	for _, r := range text {
		if unicode.IsSpace(r) {
			if r == '\n' {
				sb.WriteRune('\n')
				lastWasSpace = false
				continue
			}
			if !lastWasSpace {
				sb.WriteRune(' ')
				lastWasSpace = true
			}
			continue
		}
		sb.WriteRune(r)
		lastWasSpace = false
	}
	return sb.String()
}

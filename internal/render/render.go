// Package render turns generated exam text into a paginated PDF plus a
// metadata sidecar for later audit.
package render

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/go-pdf/fpdf"

	"github.com/pavelanni/mockexam/internal/i18n"
	"github.com/pavelanni/mockexam/internal/model"
)

const timestampLayout = "20060102_150405"

// Renderer writes mock exam documents under dataDir/mock_exams.
type Renderer struct {
	dataDir     string
	institution string
	// markers classify a line as an exercise heading. The classification is
	// lexical, not structural: layout fidelity comes from the generation
	// instructions, not from parsing.
	markers []string
	now     func() time.Time
}

// New creates a Renderer. markers is the exercise-heading vocabulary, matched
// case-insensitively against line prefixes.
func New(dataDir, institution string, markers []string) *Renderer {
	lowered := make([]string, len(markers))
	for i, m := range markers {
		lowered[i] = strings.ToLower(m)
	}
	return &Renderer{
		dataDir:     dataDir,
		institution: institution,
		markers:     lowered,
		now:         time.Now,
	}
}

// Render produces the PDF and its metadata sibling. Either both files exist
// afterwards or neither does: the document is laid out in memory first, and
// a failed write of either file removes whatever was already written.
func (r *Renderer) Render(ctx context.Context, course model.Course, text string, p model.ExtractedPattern, refs int) (*model.RenderedDocument, error) {
	ts := r.now()
	stamp := ts.Format(timestampLayout)

	var buf bytes.Buffer
	if err := r.layout(ctx, course, text, p, refs, ts, &buf); err != nil {
		return nil, fmt.Errorf("layout document: %w", err)
	}

	dir := filepath.Join(r.dataDir, "mock_exams", course.Code)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("create output dir: %w", err)
	}

	base := fmt.Sprintf("EXAM_%s_%s", course.Code, stamp)
	pdfPath := filepath.Join(dir, base+".pdf")
	metaPath := filepath.Join(dir, base+"_metadata.json")

	if err := os.WriteFile(pdfPath, buf.Bytes(), 0o644); err != nil {
		os.Remove(pdfPath)
		return nil, fmt.Errorf("write document: %w", err)
	}

	meta := model.DocumentMetadata{
		CourseCode: course.Code,
		CourseName: courseName(course),
		Timestamp:  stamp,
		FormatInfo: p,
	}
	data, err := json.MarshalIndent(meta, "", "  ")
	if err == nil {
		err = os.WriteFile(metaPath, data, 0o644)
	}
	if err != nil {
		os.Remove(pdfPath)
		return nil, fmt.Errorf("write metadata: %w", err)
	}

	return &model.RenderedDocument{
		Path:         pdfPath,
		MetadataPath: metaPath,
		CourseCode:   course.Code,
		CourseName:   courseName(course),
		Pattern:      p,
		Timestamp:    ts,
	}, nil
}

func (r *Renderer) layout(ctx context.Context, course model.Course, text string, p model.ExtractedPattern, refs int, ts time.Time, w *bytes.Buffer) error {
	pdf := fpdf.New("P", "mm", "A4", "")
	pdf.SetTopMargin(20)
	pdf.SetAutoPageBreak(true, 20)
	pdf.AddPage()
	tr := pdf.UnicodeTranslatorFromDescriptor("")

	// Title block.
	pdf.SetFont("Times", "B", 12)
	for _, line := range []string{r.institution, courseName(course), i18n.T(ctx, "MockExam")} {
		pdf.CellFormat(0, 6, tr(line), "", 1, "C", false, 0, "")
	}
	pdf.Ln(10)

	// Metadata line and fill-in line.
	pdf.SetFont("Times", "", 10)
	pdf.CellFormat(0, 5, tr(i18n.Td(ctx, "DateLabel", map[string]any{"Date": ts.Format("January 2, 2006")})), "", 1, "C", false, 0, "")
	pdf.CellFormat(0, 5, tr(i18n.Td(ctx, "TimePointsLabel", map[string]any{"Time": p.TimeLimit, "Points": p.TotalPoints})), "", 1, "C", false, 0, "")
	if refs > 0 {
		pdf.SetFont("Times", "I", 9)
		pdf.CellFormat(0, 5, tr(i18n.Tp(ctx, "ReferencesUsed", refs)), "", 1, "C", false, 0, "")
		pdf.SetFont("Times", "", 10)
	}
	pdf.Ln(5)
	pdf.CellFormat(0, 5, tr(i18n.T(ctx, "NameIDLine")), "", 1, "C", false, 0, "")
	pdf.Ln(15)

	// Body: blank lines become spacing, exercise-marker lines become
	// headings, everything else renders as body text.
	for _, line := range strings.Split(text, "\n") {
		line = strings.TrimSpace(line)
		if line == "" {
			pdf.Ln(3)
			continue
		}
		if r.isHeading(line) {
			pdf.Ln(4)
			pdf.SetFont("Times", "B", 11)
			pdf.MultiCell(0, 5, tr(line), "", "L", false)
			pdf.Ln(2)
			continue
		}
		pdf.SetFont("Times", "", 11)
		pdf.MultiCell(0, 5, tr(line), "", "L", false)
	}

	return pdf.Output(w)
}

func (r *Renderer) isHeading(line string) bool {
	lower := strings.ToLower(line)
	for _, m := range r.markers {
		if strings.HasPrefix(lower, m) {
			return true
		}
	}
	return false
}

func courseName(c model.Course) string {
	if c.Name != "" {
		return c.Name
	}
	return c.Code
}

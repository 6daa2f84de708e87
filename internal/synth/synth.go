// Package synth sequences one exam synthesis: acquire references, extract
// the pattern, build the content summary, assemble the prompt, generate, and
// render. Acquisition and summary failures degrade; generation and rendering
// failures abort.
package synth

import (
	"context"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/pavelanni/mockexam/internal/extract"
	"github.com/pavelanni/mockexam/internal/model"
	"github.com/pavelanni/mockexam/internal/prompt"
)

// Stage names as they appear in outcomes and logs.
const (
	StageAcquire  = "acquire_references"
	StagePattern  = "extract_pattern"
	StageSummary  = "build_content_summary"
	StageAssemble = "assemble_prompt"
	StageGenerate = "generate"
	StageRender   = "render"
)

const (
	// excerptPages bounds text extraction when building prompt excerpts.
	excerptPages = 2
	// summaryPages bounds text extraction when summarizing course PDFs.
	summaryPages = 5
	// summaryPerDoc caps each course PDF's contribution to the summary.
	summaryPerDoc = 2000
	// maxSummaryPDFs bounds how many course PDFs feed a summary.
	maxSummaryPDFs = 3
	// maxAnalysisPDFs bounds how many course PDFs feed a full analysis.
	maxAnalysisPDFs = 5
)

const stampLayout = "20060102_150405"

// Acquirer locates reference exam documents.
type Acquirer interface {
	Fetch(ctx context.Context, course model.Course) []model.ReferenceDocument
	Cached(courseCode string) []model.ReferenceDocument
}

// PatternExtractor infers exam structure from reference documents.
type PatternExtractor interface {
	Extract(docs []model.ReferenceDocument) model.ExtractedPattern
}

// Generator produces text for a generation request.
type Generator interface {
	Generate(ctx context.Context, req model.GenerationRequest) (string, error)
}

// Renderer writes the final document and its metadata sibling. refs is the
// number of reference exams behind the extracted pattern, zero when the
// pattern fell back to defaults.
type Renderer interface {
	Render(ctx context.Context, course model.Course, text string, p model.ExtractedPattern, refs int) (*model.RenderedDocument, error)
}

// Store is the subset of persistence the pipeline needs.
type Store interface {
	GetAnalysis(courseCode string) (*model.CourseAnalysis, error)
	UpsertAnalysis(a model.CourseAnalysis) error
	InsertSynthesis(rec model.SynthesisRecord) error
}

// Result is one completed synthesis: the artifact plus the stage outcomes
// that explain how it was produced.
type Result struct {
	ID       string                  `json:"id"`
	Document *model.RenderedDocument `json:"document"`
	Pattern  model.ExtractedPattern  `json:"pattern"`
	Outcomes []model.StageOutcome    `json:"outcomes"`
}

// StudyAid is a persisted text companion to a course: a study plan or a
// cheat sheet.
type StudyAid struct {
	CourseCode string `json:"course_code"`
	Kind       string `json:"kind"`
	Path       string `json:"path"`
	Text       string `json:"text"`
}

// Pipeline runs syntheses. Each call is independent and synchronous: no
// state is shared between calls and nothing runs concurrently inside one.
type Pipeline struct {
	acquirer  Acquirer
	extractor PatternExtractor
	assembler *prompt.Assembler
	generator Generator
	renderer  Renderer
	store     Store
	cfg       model.SynthConfig
	textFn    func(path string, maxPages int) string
	now       func() time.Time
}

// New creates a Pipeline.
func New(acquirer Acquirer, extractor PatternExtractor, assembler *prompt.Assembler, generator Generator, renderer Renderer, store Store, cfg model.SynthConfig) *Pipeline {
	return &Pipeline{
		acquirer:  acquirer,
		extractor: extractor,
		assembler: assembler,
		generator: generator,
		renderer:  renderer,
		store:     store,
		cfg:       cfg,
		textFn:    extract.Text,
		now:       time.Now,
	}
}

// Synthesize produces one mock exam for the course. On success both the
// document and its metadata sibling exist on disk; on failure neither does.
func (p *Pipeline) Synthesize(ctx context.Context, course model.Course) (*Result, error) {
	res := &Result{ID: uuid.NewString()}
	slog.Info("synthesis started", "id", res.ID, "course", course.Code)

	// References: remote first, local cache as fallback. An empty result
	// degrades the pattern to defaults rather than halting.
	docs := p.acquirer.Fetch(ctx, course)
	if len(docs) == 0 {
		docs = p.acquirer.Cached(course.Code)
	}
	if len(docs) > 0 {
		res.record(StageAcquire, model.StageOK, fmt.Sprintf("%d reference documents", len(docs)))
	} else {
		res.record(StageAcquire, model.StageDegraded, "no references available")
	}

	if p.cfg.MaxReferences > 0 && len(docs) > p.cfg.MaxReferences {
		docs = docs[:p.cfg.MaxReferences]
	}
	if len(docs) > 0 {
		res.Pattern = p.extractor.Extract(docs)
		res.record(StagePattern, model.StageOK, "")
	} else {
		res.Pattern = model.DefaultPattern()
		res.record(StagePattern, model.StageDegraded, "defaults substituted")
	}

	summary := p.contentSummary(course, res)

	var excerpts []prompt.Excerpt
	for _, d := range docs {
		if len(excerpts) == prompt.MaxExcerpts {
			break
		}
		excerpts = append(excerpts, prompt.Excerpt{
			Filename: d.Filename,
			Text:     p.textFn(d.Path, excerptPages),
		})
	}

	req := p.assembler.ExamRequest(course, res.Pattern, excerpts, summary)
	res.record(StageAssemble, model.StageOK, "")

	text, err := p.generator.Generate(ctx, req)
	if err != nil {
		res.record(StageGenerate, model.StageFailed, err.Error())
		return nil, fmt.Errorf("generate exam for %s: %w", course.Code, err)
	}
	res.record(StageGenerate, model.StageOK, "")

	doc, err := p.renderer.Render(ctx, course, text, res.Pattern, len(docs))
	if err != nil {
		res.record(StageRender, model.StageFailed, err.Error())
		// The generated text is not persisted on render failure; it only
		// survives in this log line.
		slog.Error("render failed, generated text discarded",
			"id", res.ID, "course", course.Code, "text_len", len(text), "error", err)
		return nil, fmt.Errorf("render exam for %s: %w", course.Code, err)
	}
	res.record(StageRender, model.StageOK, "")
	res.Document = doc

	if p.store != nil {
		err := p.store.InsertSynthesis(model.SynthesisRecord{
			ID:         res.ID,
			CourseCode: course.Code,
			PDFPath:    doc.Path,
			Pattern:    res.Pattern,
			CreatedAt:  doc.Timestamp,
		})
		if err != nil {
			slog.Warn("record synthesis", "id", res.ID, "error", err)
		}
	}

	slog.Info("synthesis complete", "id", res.ID, "course", course.Code, "path", doc.Path)
	return res, nil
}

// AnalyzeCourse summarizes the course materials with the generative model
// and caches the result for later syntheses.
func (p *Pipeline) AnalyzeCourse(ctx context.Context, course model.Course) (string, error) {
	pdfs := p.coursePDFs(course, maxAnalysisPDFs)
	if len(pdfs) == 0 {
		return "", fmt.Errorf("no course materials found for %s", course.Code)
	}

	var parts []string
	for _, path := range pdfs {
		parts = append(parts, fmt.Sprintf("=== %s ===\n%s", filepath.Base(path), p.textFn(path, 0)))
	}

	analysis, err := p.generator.Generate(ctx, p.assembler.AnalysisRequest(course, strings.Join(parts, "\n")))
	if err != nil {
		return "", fmt.Errorf("analyze course %s: %w", course.Code, err)
	}

	if p.store != nil {
		err := p.store.UpsertAnalysis(model.CourseAnalysis{
			CourseCode: course.Code,
			Analysis:   analysis,
			CreatedAt:  time.Now(),
		})
		if err != nil {
			slog.Warn("cache analysis", "course", course.Code, "error", err)
		}
	}
	return analysis, nil
}

// contentSummary records a summary stage outcome around courseMaterial:
// degraded when no material exists, ok with the material's source otherwise.
func (p *Pipeline) contentSummary(course model.Course, res *Result) string {
	material, source := p.courseMaterial(course)
	if material == "" {
		res.record(StageSummary, model.StageDegraded, "no course materials")
		return ""
	}
	res.record(StageSummary, model.StageOK, source)
	return material
}

// courseMaterial builds the course-content text fed into prompts, preferring
// the cached analysis over fresh extraction from course PDFs. The second
// return names the source; empty text means no material was available.
func (p *Pipeline) courseMaterial(course model.Course) (string, string) {
	if p.store != nil {
		if a, err := p.store.GetAnalysis(course.Code); err != nil {
			slog.Warn("read cached analysis", "course", course.Code, "error", err)
		} else if a != nil {
			return a.Analysis, "cached analysis"
		}
	}

	pdfs := p.coursePDFs(course, maxSummaryPDFs)
	if len(pdfs) == 0 {
		return "", ""
	}
	var parts []string
	for _, path := range pdfs {
		text := p.textFn(path, summaryPages)
		if len(text) > summaryPerDoc {
			text = text[:summaryPerDoc]
		}
		parts = append(parts, text)
	}
	return strings.Join(parts, "\n"), fmt.Sprintf("%d course PDFs", len(pdfs))
}

// StudyPlan generates and persists a study plan for the course.
func (p *Pipeline) StudyPlan(ctx context.Context, course model.Course) (*StudyAid, error) {
	return p.studyAid(ctx, course, "study_plan", p.assembler.StudyPlanRequest)
}

// CheatSheet generates and persists a condensed reference for the course.
func (p *Pipeline) CheatSheet(ctx context.Context, course model.Course) (*StudyAid, error) {
	return p.studyAid(ctx, course, "cheat_sheet", p.assembler.CheatSheetRequest)
}

var studyAidLayout = map[string]struct{ dir, prefix string }{
	"study_plan":  {"study_plans", "PLAN"},
	"cheat_sheet": {"cheat_sheets", "SHEET"},
}

func (p *Pipeline) studyAid(ctx context.Context, course model.Course, kind string, request func(model.Course, string) model.GenerationRequest) (*StudyAid, error) {
	material, source := p.courseMaterial(course)
	if material == "" {
		return nil, fmt.Errorf("no course materials found for %s", course.Code)
	}

	text, err := p.generator.Generate(ctx, request(course, material))
	if err != nil {
		return nil, fmt.Errorf("generate %s for %s: %w", kind, course.Code, err)
	}

	layout := studyAidLayout[kind]
	dir := filepath.Join(p.cfg.DataDir, layout.dir, course.Code)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("create %s dir: %w", kind, err)
	}
	path := filepath.Join(dir, fmt.Sprintf("%s_%s_%s.txt", layout.prefix, course.Code, p.now().Format(stampLayout)))
	if err := os.WriteFile(path, []byte(text), 0o644); err != nil {
		return nil, fmt.Errorf("write %s: %w", kind, err)
	}

	slog.Info("study aid written", "kind", kind, "course", course.Code, "path", path, "material", source)
	return &StudyAid{CourseCode: course.Code, Kind: kind, Path: path, Text: text}, nil
}

// coursePDFs finds up to limit PDFs under the course's materials directory.
// The directory match is a case-insensitive substring on the course code or
// name, so "CM101 - Calculus" style folders resolve.
func (p *Pipeline) coursePDFs(course model.Course, limit int) []string {
	dir := p.courseDir(course)
	if dir == "" {
		return nil
	}
	var pdfs []string
	_ = filepath.WalkDir(dir, func(path string, d fs.DirEntry, err error) error {
		if err != nil || d.IsDir() {
			return nil
		}
		if strings.HasSuffix(strings.ToLower(d.Name()), ".pdf") {
			pdfs = append(pdfs, path)
			if len(pdfs) == limit {
				return filepath.SkipAll
			}
		}
		return nil
	})
	return pdfs
}

func (p *Pipeline) courseDir(course model.Course) string {
	if p.cfg.CoursesDir == "" {
		return ""
	}
	entries, err := os.ReadDir(p.cfg.CoursesDir)
	if err != nil {
		return ""
	}
	needles := []string{strings.ToLower(course.Code)}
	if course.Name != "" {
		needles = append(needles, strings.ToLower(course.Name))
	}
	for _, e := range entries {
		if !e.IsDir() {
			continue
		}
		name := strings.ToLower(e.Name())
		for _, n := range needles {
			if strings.Contains(name, n) {
				return filepath.Join(p.cfg.CoursesDir, e.Name())
			}
		}
	}
	return ""
}

func (r *Result) record(stage string, status model.StageStatus, reason string) {
	r.Outcomes = append(r.Outcomes, model.StageOutcome{Stage: stage, Status: status, Reason: reason})
	switch status {
	case model.StageDegraded:
		slog.Warn("stage degraded", "stage", stage, "reason", reason)
	case model.StageFailed:
		slog.Error("stage failed", "stage", stage, "reason", reason)
	default:
		slog.Debug("stage ok", "stage", stage, "detail", reason)
	}
}

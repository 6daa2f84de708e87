// Package prompt assembles bounded generation requests from extracted
// structure, reference excerpts, and course content.
package prompt

import (
	"fmt"
	"strings"
	"unicode/utf8"

	"github.com/pavelanni/mockexam/internal/model"
)

const (
	// ExcerptBudget caps the combined reference-excerpt block.
	ExcerptBudget = 3000
	// ContentBudget caps the course-content block.
	ContentBudget = 3000
	// PerExcerptBudget caps each excerpt before concatenation.
	PerExcerptBudget = 1500
	// MaxExcerpts bounds how many reference excerpts enter one prompt.
	MaxExcerpts = 2
	// AnalysisBudget caps the material block of an analysis request.
	AnalysisBudget = 10000
)

// Excerpt is one reference document's leading text.
type Excerpt struct {
	Filename string
	Text     string
}

var languageNames = map[string]string{
	"en": "English",
	"it": "Italian",
}

// Assembler builds generation requests. Each request is independent: no
// conversation history carries over between syntheses.
type Assembler struct {
	institution string
	language    string
}

// NewAssembler creates an Assembler for the given institution and target
// language tag.
func NewAssembler(institution, language string) *Assembler {
	return &Assembler{institution: institution, language: language}
}

// ExamRequest builds the single-turn mock-exam request. Excerpts and course
// content are truncated to their own budgets before concatenation; an
// excerpt is trimmed at its own boundary, never mid-header.
func (a *Assembler) ExamRequest(course model.Course, p model.ExtractedPattern, excerpts []Excerpt, courseContent string) model.GenerationRequest {
	lang := a.languageName()

	var sb strings.Builder
	fmt.Fprintf(&sb, "Create a %s mock exam in %s using the EXACT same format as previous exams.\n\n",
		a.institution, strings.ToUpper(lang))
	fmt.Fprintf(&sb, "COURSE: %s\n", courseName(course))
	fmt.Fprintf(&sb, "FORMAT REQUIREMENTS: %d exercises, %d points, %s\n",
		p.ExerciseCount, p.TotalPoints, p.TimeLimit)
	if len(p.QuestionTypes) > 0 {
		fmt.Fprintf(&sb, "QUESTION STYLE: %s\n", strings.Join(p.QuestionTypes, ", "))
	}
	if p.Instructions != "" {
		fmt.Fprintf(&sb, "ORIGINAL INSTRUCTIONS: %s\n", p.Instructions)
	}

	sb.WriteString("\nPREVIOUS EXAM EXAMPLES (COPY THIS FORMAT EXACTLY):\n")
	sb.WriteString(truncate(combineExcerpts(excerpts), ExcerptBudget))
	sb.WriteString("\n\nCOURSE CONTENT:\n")
	sb.WriteString(truncate(courseContent, ContentBudget))

	sb.WriteString("\n\nCRITICAL INSTRUCTIONS:\n")
	sb.WriteString("1. Copy the EXACT structure, layout, and formatting from the examples above\n")
	sb.WriteString("2. Keep the same headers, footers, instructions, and point distributions\n")
	sb.WriteString("3. Keep the same exercise numbering and spacing\n")
	sb.WriteString("4. Only change the actual question content - everything else stays identical\n")
	sb.WriteString("5. Maintain the same difficulty level and question style\n")
	sb.WriteString("6. Use the same mathematical notation and symbols as in examples\n")
	fmt.Fprintf(&sb, "7. Write entirely in %s\n", strings.ToUpper(lang))
	fmt.Fprintf(&sb, "8. Produce exactly %d exercises totalling %d points within %s\n",
		p.ExerciseCount, p.TotalPoints, p.TimeLimit)

	return model.GenerationRequest{
		System:   fmt.Sprintf("You are a %s professor creating an authentic exam.", a.institution),
		Messages: []model.Message{{Role: model.RoleUser, Content: sb.String()}},
	}
}

// AnalysisRequest builds the course-material analysis request used to produce
// the cached content summary.
func (a *Assembler) AnalysisRequest(course model.Course, material string) model.GenerationRequest {
	var sb strings.Builder
	sb.WriteString("Analyze course materials:\n")
	fmt.Fprintf(&sb, "COURSE: %s\n", courseName(course))
	fmt.Fprintf(&sb, "CONTENT: %s\n\n", truncate(material, AnalysisBudget))
	sb.WriteString("Provide comprehensive analysis:\n")
	sb.WriteString("1. Core concepts\n")
	sb.WriteString("2. Key formulas\n")
	sb.WriteString("3. Study recommendations\n")
	sb.WriteString("4. Exam focus areas\n")

	return model.GenerationRequest{
		System:   "You are an expert tutor summarizing course materials for exam preparation.",
		Messages: []model.Message{{Role: model.RoleUser, Content: sb.String()}},
	}
}

// StudyPlanRequest builds the request for a structured study plan derived
// from the course material summary.
func (a *Assembler) StudyPlanRequest(course model.Course, material string) model.GenerationRequest {
	var sb strings.Builder
	fmt.Fprintf(&sb, "Create a study plan in %s:\n", strings.ToUpper(a.languageName()))
	fmt.Fprintf(&sb, "COURSE: %s\n", courseName(course))
	fmt.Fprintf(&sb, "CONTENT: %s\n\n", truncate(material, AnalysisBudget))
	sb.WriteString("Provide a structured plan:\n")
	sb.WriteString("1. Week-by-week schedule leading up to the exam\n")
	sb.WriteString("2. Priority topics ordered by exam weight\n")
	sb.WriteString("3. Practice exercises for each week\n")
	sb.WriteString("4. Final review checklist\n")

	return model.GenerationRequest{
		System:   "You are an expert tutor building exam study plans.",
		Messages: []model.Message{{Role: model.RoleUser, Content: sb.String()}},
	}
}

// CheatSheetRequest builds the request for a condensed one-page reference
// derived from the course material summary.
func (a *Assembler) CheatSheetRequest(course model.Course, material string) model.GenerationRequest {
	var sb strings.Builder
	fmt.Fprintf(&sb, "Create a cheat sheet in %s:\n", strings.ToUpper(a.languageName()))
	fmt.Fprintf(&sb, "COURSE: %s\n", courseName(course))
	fmt.Fprintf(&sb, "CONTENT: %s\n\n", truncate(material, AnalysisBudget))
	sb.WriteString("Condense into a single-page reference:\n")
	sb.WriteString("1. Key formulas\n")
	sb.WriteString("2. Core definitions\n")
	sb.WriteString("3. Problem-solving steps per question type\n")
	sb.WriteString("4. Common pitfalls\n")

	return model.GenerationRequest{
		System:   "You are an expert tutor condensing course materials into a compact reference.",
		Messages: []model.Message{{Role: model.RoleUser, Content: sb.String()}},
	}
}

// combineExcerpts joins up to MaxExcerpts excerpts, each pre-trimmed to its
// own budget so a later excerpt's header never lands mid-truncation.
func combineExcerpts(excerpts []Excerpt) string {
	if len(excerpts) > MaxExcerpts {
		excerpts = excerpts[:MaxExcerpts]
	}
	var parts []string
	for _, ex := range excerpts {
		parts = append(parts, fmt.Sprintf("Example from %s:\n%s\n", ex.Filename, truncate(ex.Text, PerExcerptBudget)))
	}
	return strings.Join(parts, "\n")
}

func (a *Assembler) languageName() string {
	if name, ok := languageNames[a.language]; ok {
		return name
	}
	return "English"
}

func courseName(c model.Course) string {
	if c.Name != "" {
		return c.Name
	}
	return c.Code
}

// truncate cuts s to at most limit bytes without splitting a rune.
func truncate(s string, limit int) string {
	if len(s) <= limit {
		return s
	}
	for limit > 0 && !utf8.RuneStart(s[limit]) {
		limit--
	}
	return s[:limit]
}

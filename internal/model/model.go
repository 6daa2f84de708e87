package model

import (
	"time"
)

// Course represents an entry in the course catalog.
type Course struct {
	Code     string `json:"code"`
	Name     string `json:"name"`
	MoodleID int64  `json:"moodle_id"`
	URL      string `json:"url,omitempty"`
}

// DocumentSource tells where a reference document came from.
type DocumentSource string

const (
	// SourceFetched marks a document downloaded during this acquisition.
	SourceFetched DocumentSource = "fetched"
	// SourceCached marks a document reused from the local reference cache.
	SourceCached DocumentSource = "cached"
)

// ReferenceDocument is a previously administered exam file used as a
// structural template. Read-only after acquisition.
type ReferenceDocument struct {
	Filename string
	Path     string
	Source   DocumentSource
	Year     string // empty when no year token appears in the filename
}

// ExtractedPattern holds the structural constraints inferred from reference
// documents. Every field is always populated: extraction degrades to the
// documented defaults field by field, never to absent values.
type ExtractedPattern struct {
	ExerciseCount int      `json:"exercise_count"`
	TotalPoints   int      `json:"total_points"`
	TimeLimit     string   `json:"time_limit"`
	QuestionTypes []string `json:"question_types"`
	Instructions  string   `json:"instructions,omitempty"`
}

// DefaultPattern returns the pattern used when no reference signal is available.
func DefaultPattern() ExtractedPattern {
	return ExtractedPattern{
		ExerciseCount: 5,
		TotalPoints:   30,
		TimeLimit:     "2 hours",
		QuestionTypes: []string{"solve", "compute", "prove"},
	}
}

// Role is a conversation message role.
type Role string

const (
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
)

// Message is a single conversation turn.
type Message struct {
	Role    Role   `json:"role"`
	Content string `json:"content"`
}

// GenerationRequest is one bounded generation instruction: an ordered,
// non-empty message sequence plus an optional system instruction.
type GenerationRequest struct {
	System   string    `json:"system,omitempty"`
	Messages []Message `json:"messages"`
}

// SynthesizedExam is the raw outcome of one generation call, owned by the
// synthesis that created it.
type SynthesizedExam struct {
	ID         string
	CourseCode string
	Text       string
	Pattern    ExtractedPattern
	CreatedAt  time.Time
}

// RenderedDocument is the on-disk artifact of a successful synthesis.
// Never mutated; later syntheses for the same course produce new timestamped
// files rather than overwriting it.
type RenderedDocument struct {
	Path         string           `json:"path"`
	MetadataPath string           `json:"metadata_path"`
	CourseCode   string           `json:"course_code"`
	CourseName   string           `json:"course_name"`
	Pattern      ExtractedPattern `json:"format_info"`
	Timestamp    time.Time        `json:"-"`
}

// DocumentMetadata is the JSON record persisted alongside a rendered document.
type DocumentMetadata struct {
	CourseCode string           `json:"course_code"`
	CourseName string           `json:"course_name"`
	Timestamp  string           `json:"timestamp"`
	FormatInfo ExtractedPattern `json:"format_info"`
}

// SynthesisRecord is one row of the synthesis audit log.
type SynthesisRecord struct {
	ID         string           `json:"id"`
	CourseCode string           `json:"course_code"`
	PDFPath    string           `json:"pdf_path"`
	Pattern    ExtractedPattern `json:"pattern"`
	CreatedAt  time.Time        `json:"created_at"`
}

// CourseAnalysis is a cached LLM summary of course materials.
type CourseAnalysis struct {
	CourseCode string    `json:"course_code"`
	Analysis   string    `json:"analysis"`
	CreatedAt  time.Time `json:"created_at"`
}

// StageStatus tells how a pipeline stage completed.
type StageStatus string

const (
	// StageOK means the stage produced a real value.
	StageOK StageStatus = "ok"
	// StageDegraded means the stage substituted documented defaults and the
	// pipeline proceeded. Not an error.
	StageDegraded StageStatus = "degraded"
	// StageFailed means the stage failed terminally and the pipeline aborted.
	StageFailed StageStatus = "failed"
)

// StageOutcome records how one pipeline stage went, so callers and tests can
// tell an extracted value from a default and see why the default was used.
type StageOutcome struct {
	Stage  string      `json:"stage"`
	Status StageStatus `json:"status"`
	Reason string      `json:"reason,omitempty"`
}

// SynthConfig holds runtime synthesis parameters set via flags or config file.
type SynthConfig struct {
	DataDir       string // root for previous_exams/ and mock_exams/
	CoursesDir    string // local course materials, one subdirectory per course
	Institution   string // printed in the document title block
	Language      string // target output language tag (en, it)
	MaxAttempts   int
	BackoffSecs   int
	MaxTokens     int
	ModelID       string
	ExcludeYears  int // size of the recency exclusion window
	MaxReferences int // reference documents fed to pattern extraction
}

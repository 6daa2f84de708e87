// Package reference acquires previous exam documents for a course and keeps
// them in a per-course on-disk cache.
package reference

import (
	"context"
	"log/slog"
	"os"
	"path/filepath"
	"regexp"
	"strings"
	"time"

	"github.com/pavelanni/mockexam/internal/lexicon"
	"github.com/pavelanni/mockexam/internal/model"
)

// CourseFile is one file published in a course's remote content listing.
type CourseFile struct {
	Filename    string
	DownloadURL string
	Tags        []string
}

// ContentSource lists and fetches course files from the remote content system.
type ContentSource interface {
	ListCourseFiles(ctx context.Context, courseID int64) ([]CourseFile, error)
	Download(ctx context.Context, url string) ([]byte, error)
}

var yearRe = regexp.MustCompile(`(19|20)\d{2}`)

// Acquirer locates reference exam documents for courses.
type Acquirer struct {
	source  ContentSource
	lex     lexicon.Lexicon
	dataDir string
	now     func() time.Time
}

// New creates an Acquirer storing references under dataDir/previous_exams.
func New(source ContentSource, lex lexicon.Lexicon, dataDir string) *Acquirer {
	return &Acquirer{source: source, lex: lex, dataDir: dataDir, now: time.Now}
}

// Dir returns the reference cache directory for a course.
func (a *Acquirer) Dir(courseCode string) string {
	return filepath.Join(a.dataDir, "previous_exams", courseCode)
}

// Fetch downloads exam-like documents from the course's remote listing.
// Candidates must carry an exam keyword in the filename, have a .pdf
// extension, and fall outside the recency exclusion window. Files already
// present in the cache directory are reused without re-downloading.
//
// Any listing or download failure yields an empty result rather than an
// error; callers treat that as "no references available" and fall back to
// Cached.
func (a *Acquirer) Fetch(ctx context.Context, course model.Course) []model.ReferenceDocument {
	if a.source == nil {
		return nil
	}
	dir := a.Dir(course.Code)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		slog.Warn("create reference dir", "course", course.Code, "error", err)
		return nil
	}

	files, err := a.source.ListCourseFiles(ctx, course.MoodleID)
	if err != nil {
		slog.Warn("list course files", "course", course.Code, "error", err)
		return nil
	}

	excluded := a.lex.ExcludedYears(a.now())
	var docs []model.ReferenceDocument
	for _, f := range files {
		if !a.isExamCandidate(f.Filename, excluded) {
			continue
		}
		path := filepath.Join(dir, filepath.Base(f.Filename))
		if _, err := os.Stat(path); err == nil {
			docs = append(docs, model.ReferenceDocument{
				Filename: filepath.Base(f.Filename),
				Path:     path,
				Source:   model.SourceCached,
				Year:     yearOf(f.Filename),
			})
			continue
		}
		data, err := a.source.Download(ctx, f.DownloadURL)
		if err != nil {
			slog.Warn("download reference", "course", course.Code, "file", f.Filename, "error", err)
			return nil
		}
		if err := os.WriteFile(path, data, 0o644); err != nil {
			slog.Warn("write reference", "course", course.Code, "file", f.Filename, "error", err)
			return nil
		}
		docs = append(docs, model.ReferenceDocument{
			Filename: filepath.Base(f.Filename),
			Path:     path,
			Source:   model.SourceFetched,
			Year:     yearOf(f.Filename),
		})
	}
	return docs
}

// Cached returns the locally cached reference documents for a course,
// filtered by the same recency exclusion rule as Fetch.
func (a *Acquirer) Cached(courseCode string) []model.ReferenceDocument {
	dir := a.Dir(courseCode)
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil
	}
	excluded := a.lex.ExcludedYears(a.now())
	var docs []model.ReferenceDocument
	for _, e := range entries {
		if e.IsDir() || !strings.HasSuffix(strings.ToLower(e.Name()), ".pdf") {
			continue
		}
		if containsAny(strings.ToLower(e.Name()), excluded) {
			continue
		}
		docs = append(docs, model.ReferenceDocument{
			Filename: e.Name(),
			Path:     filepath.Join(dir, e.Name()),
			Source:   model.SourceCached,
			Year:     yearOf(e.Name()),
		})
	}
	return docs
}

func (a *Acquirer) isExamCandidate(filename string, excludedYears []string) bool {
	name := strings.ToLower(filename)
	if !strings.HasSuffix(name, ".pdf") {
		return false
	}
	if containsAny(name, excludedYears) {
		return false
	}
	return containsAny(name, a.lex.ExamFilenames)
}

func containsAny(s string, tokens []string) bool {
	for _, t := range tokens {
		if strings.Contains(s, strings.ToLower(t)) {
			return true
		}
	}
	return false
}

func yearOf(filename string) string {
	return yearRe.FindString(filename)
}

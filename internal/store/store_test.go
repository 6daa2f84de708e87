package store

import (
	"database/sql"
	"errors"
	"testing"
	"time"

	"github.com/pavelanni/mockexam/internal/model"
)

func newTestStore(t *testing.T) *Store {
	t.Helper()
	s, err := New(":memory:")
	if err != nil {
		t.Fatalf("newTestStore: %v", err)
	}
	t.Cleanup(func() { s.Close() })
	return s
}

func TestCourseCatalog(t *testing.T) {
	s := newTestStore(t)

	count, err := s.CourseCount()
	if err != nil {
		t.Fatalf("CourseCount: %v", err)
	}
	if count != 0 {
		t.Fatalf("expected empty catalog, got %d", count)
	}

	c := model.Course{Code: "CM101", Name: "Calculus I", MoodleID: 7, URL: "https://moodle/course/view.php?id=7"}
	if err := s.UpsertCourse(c); err != nil {
		t.Fatalf("UpsertCourse: %v", err)
	}

	got, err := s.GetCourse("CM101")
	if err != nil {
		t.Fatalf("GetCourse: %v", err)
	}
	if got != c {
		t.Errorf("GetCourse = %+v, want %+v", got, c)
	}

	// Upsert with the same code updates in place.
	c.Name = "Calculus I (updated)"
	if err := s.UpsertCourse(c); err != nil {
		t.Fatalf("UpsertCourse update: %v", err)
	}
	list, err := s.ListCourses()
	if err != nil {
		t.Fatalf("ListCourses: %v", err)
	}
	if len(list) != 1 {
		t.Fatalf("expected 1 course after upsert, got %d", len(list))
	}
	if list[0].Name != "Calculus I (updated)" {
		t.Errorf("name not updated: %q", list[0].Name)
	}

	// Not found.
	if _, err := s.GetCourse("NOPE"); err != sql.ErrNoRows {
		t.Errorf("expected ErrNoRows, got %v", err)
	}
}

func TestAnalysisCache(t *testing.T) {
	s := newTestStore(t)

	// Missing analysis is nil, not an error.
	a, err := s.GetAnalysis("CM101")
	if err != nil {
		t.Fatalf("GetAnalysis: %v", err)
	}
	if a != nil {
		t.Fatalf("expected nil for missing analysis, got %+v", a)
	}

	now := time.Now().UTC().Truncate(time.Second)
	if err := s.UpsertAnalysis(model.CourseAnalysis{CourseCode: "CM101", Analysis: "limits, derivatives", CreatedAt: now}); err != nil {
		t.Fatalf("UpsertAnalysis: %v", err)
	}

	a, err = s.GetAnalysis("CM101")
	if err != nil {
		t.Fatalf("GetAnalysis: %v", err)
	}
	if a == nil || a.Analysis != "limits, derivatives" {
		t.Fatalf("unexpected analysis: %+v", a)
	}

	// A fresh analysis replaces the cached one.
	if err := s.UpsertAnalysis(model.CourseAnalysis{CourseCode: "CM101", Analysis: "integrals", CreatedAt: now.Add(time.Hour)}); err != nil {
		t.Fatalf("UpsertAnalysis replace: %v", err)
	}
	a, _ = s.GetAnalysis("CM101")
	if a.Analysis != "integrals" {
		t.Errorf("analysis not replaced: %q", a.Analysis)
	}
}

func TestSynthesisAuditLog(t *testing.T) {
	s := newTestStore(t)

	records, err := s.ListSyntheses("CM101")
	if err != nil {
		t.Fatalf("ListSyntheses: %v", err)
	}
	if len(records) != 0 {
		t.Fatalf("expected empty log, got %d", len(records))
	}

	base := time.Now().UTC().Truncate(time.Second)
	p := model.ExtractedPattern{ExerciseCount: 4, TotalPoints: 28, TimeLimit: "3 hours", QuestionTypes: []string{"solve"}}
	for i, id := range []string{"a", "b"} {
		err := s.InsertSynthesis(model.SynthesisRecord{
			ID:         id,
			CourseCode: "CM101",
			PDFPath:    "mock_exams/CM101/EXAM_CM101_" + id + ".pdf",
			Pattern:    p,
			CreatedAt:  base.Add(time.Duration(i) * time.Minute),
		})
		if err != nil {
			t.Fatalf("InsertSynthesis %s: %v", id, err)
		}
	}

	records, err = s.ListSyntheses("CM101")
	if err != nil {
		t.Fatalf("ListSyntheses: %v", err)
	}
	if len(records) != 2 {
		t.Fatalf("expected 2 records, got %d", len(records))
	}
	// Most recent first.
	if records[0].ID != "b" {
		t.Errorf("expected record b first, got %q", records[0].ID)
	}
	if records[0].Pattern.TotalPoints != 28 || records[0].Pattern.TimeLimit != "3 hours" {
		t.Errorf("pattern round trip failed: %+v", records[0].Pattern)
	}

	// Other courses stay isolated.
	other, err := s.ListSyntheses("OTHER")
	if err != nil {
		t.Fatalf("ListSyntheses other: %v", err)
	}
	if len(other) != 0 {
		t.Errorf("expected no records for other course, got %d", len(other))
	}

	// Single-record lookup by id.
	rec, err := s.GetSynthesis("a")
	if err != nil {
		t.Fatalf("GetSynthesis: %v", err)
	}
	if rec.CourseCode != "CM101" || rec.Pattern.ExerciseCount != 4 {
		t.Errorf("GetSynthesis round trip failed: %+v", rec)
	}
	if _, err := s.GetSynthesis("missing"); !errors.Is(err, sql.ErrNoRows) {
		t.Errorf("expected sql.ErrNoRows for unknown id, got %v", err)
	}
}

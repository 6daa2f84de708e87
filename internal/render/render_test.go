package render

import (
	"bytes"
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/pavelanni/mockexam/internal/i18n"
	"github.com/pavelanni/mockexam/internal/model"
)

var fixedTime = time.Date(2026, 3, 14, 9, 30, 0, 0, time.UTC)

func newTestRenderer(t *testing.T) (*Renderer, context.Context) {
	t.Helper()
	if err := i18n.Init("en"); err != nil {
		t.Fatalf("i18n init: %v", err)
	}
	ctx := i18n.WithLocalizer(context.Background(), i18n.NewLocalizer("en"))

	r := New(t.TempDir(), "Test University", []string{"Exercise", "Problem", "Question"})
	r.now = func() time.Time { return fixedTime }
	return r, ctx
}

func TestRenderProducesDocumentAndMetadata(t *testing.T) {
	r, ctx := newTestRenderer(t)
	course := model.Course{Code: "CM101", Name: "Calculus I"}
	p := model.ExtractedPattern{
		ExerciseCount: 3,
		TotalPoints:   24,
		TimeLimit:     "2 hours",
		QuestionTypes: []string{"solve"},
	}
	text := "Exercise 1 (8 points)\nCompute the limit.\n\nExercise 2 (8 points)\nSolve the integral.\n\nExercise 3 (8 points)\nProve the identity."

	doc, err := r.Render(ctx, course, text, p, 2)
	if err != nil {
		t.Fatalf("Render: %v", err)
	}

	wantBase := "EXAM_CM101_20260314_093000"
	if filepath.Base(doc.Path) != wantBase+".pdf" {
		t.Errorf("pdf name = %q, want %q", filepath.Base(doc.Path), wantBase+".pdf")
	}
	if filepath.Base(doc.MetadataPath) != wantBase+"_metadata.json" {
		t.Errorf("metadata name = %q", filepath.Base(doc.MetadataPath))
	}

	pdfData, err := os.ReadFile(doc.Path)
	if err != nil {
		t.Fatalf("read pdf: %v", err)
	}
	if !bytes.HasPrefix(pdfData, []byte("%PDF")) {
		t.Error("output is not a PDF")
	}

	metaData, err := os.ReadFile(doc.MetadataPath)
	if err != nil {
		t.Fatalf("read metadata: %v", err)
	}
	var meta model.DocumentMetadata
	if err := json.Unmarshal(metaData, &meta); err != nil {
		t.Fatalf("parse metadata: %v", err)
	}
	if meta.CourseCode != "CM101" || meta.CourseName != "Calculus I" {
		t.Errorf("unexpected metadata identity: %+v", meta)
	}
	if meta.Timestamp != "20260314_093000" {
		t.Errorf("metadata timestamp = %q", meta.Timestamp)
	}
	if meta.FormatInfo.TotalPoints != 24 {
		t.Errorf("metadata pattern not preserved: %+v", meta.FormatInfo)
	}
}

func TestRenderSupersedesNotOverwrites(t *testing.T) {
	r, ctx := newTestRenderer(t)
	course := model.Course{Code: "CM101"}
	p := model.DefaultPattern()

	first, err := r.Render(ctx, course, "Exercise 1\nbody", p, 0)
	if err != nil {
		t.Fatalf("first Render: %v", err)
	}

	r.now = func() time.Time { return fixedTime.Add(time.Second) }
	second, err := r.Render(ctx, course, "Exercise 1\nbody", p, 0)
	if err != nil {
		t.Fatalf("second Render: %v", err)
	}

	if first.Path == second.Path {
		t.Errorf("second render overwrote %q", first.Path)
	}
	if _, err := os.Stat(first.Path); err != nil {
		t.Errorf("first artifact gone: %v", err)
	}
}

func TestRenderFailureLeavesNoPartialFile(t *testing.T) {
	r, ctx := newTestRenderer(t)
	// Point the output root at a regular file so directory creation fails.
	blocked := filepath.Join(t.TempDir(), "blocked")
	if err := os.WriteFile(blocked, []byte("x"), 0o644); err != nil {
		t.Fatal(err)
	}
	r.dataDir = blocked

	_, err := r.Render(ctx, model.Course{Code: "CM101"}, "Exercise 1", model.DefaultPattern(), 0)
	if err == nil {
		t.Fatal("expected render failure")
	}
	if _, statErr := os.Stat(filepath.Join(blocked, "mock_exams")); statErr == nil {
		t.Error("partial output left behind")
	}
}

func TestDocumentWriteFailureCleansUp(t *testing.T) {
	r, ctx := newTestRenderer(t)
	course := model.Course{Code: "CM101"}

	// Occupy the exact document path with a directory so the PDF write
	// fails after layout succeeded.
	dir := filepath.Join(r.dataDir, "mock_exams", "CM101")
	pdfPath := filepath.Join(dir, "EXAM_CM101_20260314_093000.pdf")
	if err := os.MkdirAll(pdfPath, 0o755); err != nil {
		t.Fatal(err)
	}

	_, err := r.Render(ctx, course, "Exercise 1", model.DefaultPattern(), 1)
	if err == nil {
		t.Fatal("expected render failure")
	}

	entries, err := os.ReadDir(dir)
	if err != nil {
		t.Fatal(err)
	}
	for _, e := range entries {
		if !e.IsDir() {
			t.Errorf("partial artifact left behind: %s", e.Name())
		}
	}
}

func TestHeadingClassification(t *testing.T) {
	r, _ := newTestRenderer(t)
	tests := []struct {
		line string
		want bool
	}{
		{"Exercise 1 (10 points)", true},
		{"PROBLEM 2", true},
		{"question 3: short answer", true},
		{"Compute the derivative of f.", false},
		{"The problem with this approach", false}, // prefix match only
		{"", false},
	}
	for _, tt := range tests {
		if got := r.isHeading(tt.line); got != tt.want {
			t.Errorf("isHeading(%q) = %v, want %v", tt.line, got, tt.want)
		}
	}
}

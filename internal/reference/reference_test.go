package reference

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/pavelanni/mockexam/internal/lexicon"
	"github.com/pavelanni/mockexam/internal/model"
)

type fakeSource struct {
	files     []CourseFile
	listErr   error
	dlErr     error
	downloads int
}

func (f *fakeSource) ListCourseFiles(context.Context, int64) ([]CourseFile, error) {
	return f.files, f.listErr
}

func (f *fakeSource) Download(context.Context, string) ([]byte, error) {
	if f.dlErr != nil {
		return nil, f.dlErr
	}
	f.downloads++
	return []byte("%PDF-1.4 fake"), nil
}

// fixedNow keeps the exclusion window deterministic: excluded years are
// 2023, 2024, 2025, 2026.
var fixedNow = time.Date(2026, 6, 1, 0, 0, 0, 0, time.UTC)

func newTestAcquirer(t *testing.T, src ContentSource) *Acquirer {
	t.Helper()
	a := New(src, lexicon.Default(), t.TempDir())
	a.now = func() time.Time { return fixedNow }
	return a
}

func TestFetchFiltersCandidates(t *testing.T) {
	src := &fakeSource{files: []CourseFile{
		{Filename: "exam_2019.pdf", DownloadURL: "u1"},
		{Filename: "esame_finale_2018.pdf", DownloadURL: "u2"},
		{Filename: "exam_2025.pdf", DownloadURL: "u3"},     // inside exclusion window
		{Filename: "lecture_notes.pdf", DownloadURL: "u4"}, // no exam keyword
		{Filename: "midterm_2019.docx", DownloadURL: "u5"}, // not a PDF
	}}
	a := newTestAcquirer(t, src)

	docs := a.Fetch(context.Background(), model.Course{Code: "CM101", MoodleID: 7})
	if len(docs) != 2 {
		t.Fatalf("expected 2 documents, got %d: %+v", len(docs), docs)
	}
	if docs[0].Filename != "exam_2019.pdf" || docs[0].Year != "2019" {
		t.Errorf("unexpected first document: %+v", docs[0])
	}
	if docs[0].Source != model.SourceFetched {
		t.Errorf("expected fetched source, got %q", docs[0].Source)
	}
	for _, d := range docs {
		if _, err := os.Stat(d.Path); err != nil {
			t.Errorf("document not on disk: %v", err)
		}
	}
}

func TestFetchIdempotentCache(t *testing.T) {
	src := &fakeSource{files: []CourseFile{
		{Filename: "final_exam_2017.pdf", DownloadURL: "u1"},
		{Filename: "quiz_2016.pdf", DownloadURL: "u2"},
	}}
	a := newTestAcquirer(t, src)
	course := model.Course{Code: "CM101", MoodleID: 7}

	first := a.Fetch(context.Background(), course)
	if src.downloads != 2 {
		t.Fatalf("expected 2 downloads on cold cache, got %d", src.downloads)
	}

	second := a.Fetch(context.Background(), course)
	if src.downloads != 2 {
		t.Errorf("expected 0 downloads on warm cache, got %d extra", src.downloads-2)
	}
	if len(second) != len(first) {
		t.Fatalf("expected same file set, got %d then %d", len(first), len(second))
	}
	for i := range first {
		if second[i].Path != first[i].Path {
			t.Errorf("file set changed: %q vs %q", first[i].Path, second[i].Path)
		}
		if second[i].Source != model.SourceCached {
			t.Errorf("expected cached source on second call, got %q", second[i].Source)
		}
	}
}

func TestFetchFailuresYieldEmpty(t *testing.T) {
	t.Run("listing failure", func(t *testing.T) {
		a := newTestAcquirer(t, &fakeSource{listErr: errors.New("boom")})
		docs := a.Fetch(context.Background(), model.Course{Code: "CM101"})
		if docs != nil {
			t.Errorf("expected empty result, got %+v", docs)
		}
	})

	t.Run("download failure", func(t *testing.T) {
		src := &fakeSource{
			files: []CourseFile{{Filename: "exam_2018.pdf", DownloadURL: "u"}},
			dlErr: errors.New("connection reset"),
		}
		a := newTestAcquirer(t, src)
		docs := a.Fetch(context.Background(), model.Course{Code: "CM101"})
		if docs != nil {
			t.Errorf("expected empty result, got %+v", docs)
		}
	})

	t.Run("nil source", func(t *testing.T) {
		a := newTestAcquirer(t, nil)
		if docs := a.Fetch(context.Background(), model.Course{Code: "CM101"}); docs != nil {
			t.Errorf("expected empty result, got %+v", docs)
		}
	})
}

func TestCachedAppliesYearExclusion(t *testing.T) {
	a := newTestAcquirer(t, &fakeSource{})
	dir := a.Dir("CM101")
	if err := os.MkdirAll(dir, 0o755); err != nil {
		t.Fatal(err)
	}
	for _, name := range []string{"exam_2019.pdf", "exam_2025.pdf", "notes.txt"} {
		if err := os.WriteFile(filepath.Join(dir, name), []byte("x"), 0o644); err != nil {
			t.Fatal(err)
		}
	}

	docs := a.Cached("CM101")
	if len(docs) != 1 {
		t.Fatalf("expected 1 cached document, got %d: %+v", len(docs), docs)
	}
	if docs[0].Filename != "exam_2019.pdf" {
		t.Errorf("unexpected cached document %q", docs[0].Filename)
	}
	if docs[0].Source != model.SourceCached {
		t.Errorf("expected cached source, got %q", docs[0].Source)
	}

	if docs := a.Cached("NOPE"); docs != nil {
		t.Errorf("expected empty result for missing course dir, got %+v", docs)
	}
}

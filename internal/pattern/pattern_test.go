package pattern

import (
	"reflect"
	"testing"

	"github.com/pavelanni/mockexam/internal/lexicon"
	"github.com/pavelanni/mockexam/internal/model"
)

func newTestExtractor() *Extractor {
	return New(lexicon.Default())
}

func TestNoDocumentsYieldsDefaults(t *testing.T) {
	e := newTestExtractor()
	got := e.Extract(nil)
	want := model.DefaultPattern()
	if !reflect.DeepEqual(got, want) {
		t.Errorf("Extract(nil) = %+v, want defaults %+v", got, want)
	}
}

func TestFieldsAlwaysPopulated(t *testing.T) {
	e := newTestExtractor()
	texts := [][]string{
		nil,
		{""},
		{"no structure here at all"},
		{"Exercise 1 (10 points)"},
		{"random", "Problem 2", "3 hours"},
	}
	for _, tt := range texts {
		p := e.FromTexts(tt)
		if p.ExerciseCount <= 0 {
			t.Errorf("FromTexts(%q): ExerciseCount %d, want > 0", tt, p.ExerciseCount)
		}
		if p.TotalPoints <= 0 {
			t.Errorf("FromTexts(%q): TotalPoints %d, want > 0", tt, p.TotalPoints)
		}
		if p.TimeLimit == "" {
			t.Errorf("FromTexts(%q): empty TimeLimit", tt)
		}
		if len(p.QuestionTypes) == 0 {
			t.Errorf("FromTexts(%q): empty QuestionTypes", tt)
		}
	}
}

func TestExerciseCountDistinctMarkers(t *testing.T) {
	e := newTestExtractor()

	// Three distinct numbered markers on one page count as three.
	p := e.FromTexts([]string{"Exercise 1 ... Exercise 2 ... Problem 3"})
	if p.ExerciseCount != 3 {
		t.Errorf("ExerciseCount = %d, want 3", p.ExerciseCount)
	}

	// Repeated numbering within a document is not double counted.
	p = e.FromTexts([]string{"Exercise 1 intro\nExercise 1 continued\nExercise 2"})
	if p.ExerciseCount != 2 {
		t.Errorf("ExerciseCount = %d, want 2 for repeated numbering", p.ExerciseCount)
	}

	// Across documents the maximum wins, not the sum.
	p = e.FromTexts([]string{
		"Exercise 1\nExercise 2\nExercise 3",
		"Esercizio 1\nEsercizio 2",
	})
	if p.ExerciseCount != 3 {
		t.Errorf("ExerciseCount = %d, want max 3 across documents", p.ExerciseCount)
	}
}

func TestTotalPointsSumsFirstFiveMatches(t *testing.T) {
	e := newTestExtractor()

	tests := []struct {
		name  string
		texts []string
		want  int
	}{
		{"three matches all summed", []string{"(10 points) (10 points) (5 points)"}, 25},
		{"cap applies to match count", []string{"(1 points) (2 points) (3 points) (4 points) (5 points) (100 points)"}, 15},
		{"italian and abbreviated units", []string{"(12 punti) 8 pts"}, 20},
		{"across documents in order", []string{"(10 points)", "(20 points)"}, 30},
		{"no matches falls back", []string{"nothing here"}, 30},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			p := e.FromTexts(tt.texts)
			if p.TotalPoints != tt.want {
				t.Errorf("TotalPoints = %d, want %d", p.TotalPoints, tt.want)
			}
		})
	}
}

func TestTimeLimitFirstMatchWins(t *testing.T) {
	e := newTestExtractor()

	p := e.FromTexts([]string{"Duration: 3 hours total", "90 minutes"})
	if p.TimeLimit != "3 hours" {
		t.Errorf("TimeLimit = %q, want %q", p.TimeLimit, "3 hours")
	}

	p = e.FromTexts([]string{"no time here", "Durata: 2 ore"})
	if p.TimeLimit != "2 ore" {
		t.Errorf("TimeLimit = %q, want %q", p.TimeLimit, "2 ore")
	}
}

func TestQuestionTypesLexiconOrderCapped(t *testing.T) {
	e := newTestExtractor()

	p := e.FromTexts([]string{"Determine the value, then solve and compute. Find x. Calculate y. Prove it."})
	want := []string{"prove", "compute", "calculate", "solve", "find"}
	if !reflect.DeepEqual(p.QuestionTypes, want) {
		t.Errorf("QuestionTypes = %v, want first five in lexicon order %v", p.QuestionTypes, want)
	}

	p = e.FromTexts([]string{"please solve this"})
	if !reflect.DeepEqual(p.QuestionTypes, []string{"solve"}) {
		t.Errorf("QuestionTypes = %v, want [solve]", p.QuestionTypes)
	}
}

func TestInstructionsExcerpt(t *testing.T) {
	e := newTestExtractor()

	p := e.FromTexts([]string{"Instructions: answer all questions in pen. Good luck."})
	if p.Instructions != "answer all questions in pen. Good luck." {
		t.Errorf("Instructions = %q", p.Instructions)
	}

	// First document with a match wins.
	p = e.FromTexts([]string{"nothing", "Istruzioni: rispondere a tutte le domande"})
	if p.Instructions != "rispondere a tutte le domande" {
		t.Errorf("Instructions = %q", p.Instructions)
	}

	p = e.FromTexts([]string{"no instruction block"})
	if p.Instructions != "" {
		t.Errorf("Instructions = %q, want empty", p.Instructions)
	}
}

func TestExtractSkipsUnreadableDocuments(t *testing.T) {
	e := newTestExtractor().WithTextFunc(func(path string, _ int) string {
		if path == "bad.pdf" {
			return "[unreadable document: bad.pdf]"
		}
		return "Exercise 1 (10 points)\n2 hours\nsolve"
	})

	docs := []model.ReferenceDocument{
		{Filename: "bad.pdf", Path: "bad.pdf"},
		{Filename: "good.pdf", Path: "good.pdf"},
	}
	p := e.Extract(docs)
	if p.ExerciseCount != 1 || p.TotalPoints != 10 || p.TimeLimit != "2 hours" {
		t.Errorf("unexpected pattern from mixed documents: %+v", p)
	}
}

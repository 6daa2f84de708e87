// Package lexicon holds the keyword sets driving reference filtering and
// pattern extraction. They are plain configuration values so an institution
// or locale swap never touches extraction logic.
package lexicon

import (
	"strconv"
	"time"
)

// Lexicon is the full keyword configuration consumed by the reference
// acquirer and the pattern extractor.
type Lexicon struct {
	// ExamFilenames marks a filename as exam-like (case-insensitive substring).
	ExamFilenames []string
	// ExerciseMarkers are section keywords matched against "<Marker> <N>".
	ExerciseMarkers []string
	// QuestionTypes is the question-type vocabulary, in priority order.
	QuestionTypes []string
	// PointTokens are the unit words accepted after a point count.
	PointTokens []string
	// TimeTokens are the unit words accepted after a time-limit number.
	TimeTokens []string
	// InstructionHeads introduce an instructions block.
	InstructionHeads []string
	// RecencyWindow is how many years back from the current year (inclusive)
	// are excluded from reference acquisition.
	RecencyWindow int
}

// Default returns the built-in English/Italian lexicon.
func Default() Lexicon {
	return Lexicon{
		ExamFilenames:    []string{"exam", "esame", "prova", "test", "midterm", "final", "quiz", "solution"},
		ExerciseMarkers:  []string{"Exercise", "Problem", "Question", "Esercizio"},
		QuestionTypes:    []string{"prove", "compute", "calculate", "solve", "find", "determine"},
		PointTokens:      []string{"points", "point", "punti", "pts"},
		TimeTokens:       []string{"hours", "hour", "ore", "minutes", "minute", "minuti"},
		InstructionHeads: []string{"Instructions", "Istruzioni"},
		RecencyWindow:    4,
	}
}

// ExcludedYears returns the year tokens inside the sliding recency window,
// most recent first. Very recent exams stay out of the reference set.
func (l Lexicon) ExcludedYears(now time.Time) []string {
	n := l.RecencyWindow
	if n <= 0 {
		return nil
	}
	years := make([]string, 0, n)
	for i := 0; i < n; i++ {
		years = append(years, strconv.Itoa(now.Year()-i))
	}
	return years
}

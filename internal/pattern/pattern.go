// Package pattern infers exam structure from reference document text.
package pattern

import (
	"log/slog"
	"regexp"
	"strconv"
	"strings"

	"github.com/pavelanni/mockexam/internal/extract"
	"github.com/pavelanni/mockexam/internal/lexicon"
	"github.com/pavelanni/mockexam/internal/model"
)

const (
	// maxDocuments bounds how many reference documents feed one extraction.
	maxDocuments = 3
	// maxPages bounds text extraction per document.
	maxPages = 3
	// maxPointMatches caps how many point annotations are summed, guarding
	// against runaway totals from false positives.
	maxPointMatches = 5
	// maxQuestionTypes caps the question-type vocabulary.
	maxQuestionTypes = 5
	// instructionsLen bounds the instructions excerpt.
	instructionsLen = 300
)

// TextFunc extracts text from a document with a page budget.
type TextFunc func(path string, maxPages int) string

// Extractor infers an ExtractedPattern from reference documents.
type Extractor struct {
	lex          lexicon.Lexicon
	extractText  TextFunc
	exerciseRe   *regexp.Regexp
	pointsRe     *regexp.Regexp
	timeRe       *regexp.Regexp
	instructions *regexp.Regexp
}

// New creates an Extractor over the given lexicon.
func New(lex lexicon.Lexicon) *Extractor {
	return &Extractor{
		lex:          lex,
		extractText:  extract.Text,
		exerciseRe:   regexp.MustCompile(`(?i)(` + alternation(lex.ExerciseMarkers) + `)\s+(\d+)`),
		pointsRe:     regexp.MustCompile(`(?i)\(?\s*(\d+)\s*(` + alternation(lex.PointTokens) + `)\s*\)?`),
		timeRe:       regexp.MustCompile(`(?i)(\d+)\s*(` + alternation(lex.TimeTokens) + `)`),
		instructions: regexp.MustCompile(`(?i)(` + alternation(lex.InstructionHeads) + `):?(.{0,` + strconv.Itoa(instructionsLen) + `})`),
	}
}

// WithTextFunc overrides the text-extraction function.
func (e *Extractor) WithTextFunc(fn TextFunc) *Extractor {
	e.extractText = fn
	return e
}

// Extract infers a pattern from up to three reference documents. It never
// fails: a document that yields nothing is skipped, and any field without a
// signal falls back to its documented default.
func (e *Extractor) Extract(docs []model.ReferenceDocument) model.ExtractedPattern {
	if len(docs) > maxDocuments {
		docs = docs[:maxDocuments]
	}
	var texts []string
	for _, d := range docs {
		texts = append(texts, e.extractText(d.Path, maxPages))
	}
	p := e.FromTexts(texts)
	slog.Debug("pattern extracted",
		"documents", len(docs),
		"exercises", p.ExerciseCount,
		"points", p.TotalPoints,
		"time_limit", p.TimeLimit,
	)
	return p
}

// FromTexts runs the extraction heuristics over already-extracted text, one
// entry per document, in document order.
func (e *Extractor) FromTexts(texts []string) model.ExtractedPattern {
	p := model.DefaultPattern()

	// Exercise count: distinct (marker, number) pairs per document; the
	// maximum across documents approximates the true section count, since
	// separate documents repeat their own numbering.
	best := 0
	for _, text := range texts {
		distinct := map[string]struct{}{}
		for _, m := range e.exerciseRe.FindAllStringSubmatch(text, -1) {
			key := strings.ToLower(m[1]) + " " + m[2]
			distinct[key] = struct{}{}
		}
		if len(distinct) > best {
			best = len(distinct)
		}
	}
	if best > 0 {
		p.ExerciseCount = best
	}

	// Points: sum the first few annotations across documents in encounter
	// order. The cap applies to the match count, not the values.
	var points []int
	for _, text := range texts {
		for _, m := range e.pointsRe.FindAllStringSubmatch(text, -1) {
			n, err := strconv.Atoi(m[1])
			if err != nil {
				continue
			}
			points = append(points, n)
		}
	}
	if len(points) > 0 {
		if len(points) > maxPointMatches {
			points = points[:maxPointMatches]
		}
		sum := 0
		for _, n := range points {
			sum += n
		}
		p.TotalPoints = sum
	}

	// Time limit: first match in document order.
	for _, text := range texts {
		if m := e.timeRe.FindStringSubmatch(text); m != nil {
			p.TimeLimit = m[1] + " " + m[2]
			break
		}
	}

	// Question types: lexicon terms present anywhere in any document, kept
	// in lexicon order, capped.
	var types []string
	for _, term := range e.lex.QuestionTypes {
		for _, text := range texts {
			if strings.Contains(strings.ToLower(text), term) {
				types = append(types, term)
				break
			}
		}
		if len(types) == maxQuestionTypes {
			break
		}
	}
	if len(types) > 0 {
		p.QuestionTypes = types
	}

	// Instructions excerpt: first document where an instruction head appears.
	for _, text := range texts {
		if m := e.instructions.FindStringSubmatch(text); m != nil {
			p.Instructions = strings.TrimSpace(m[2])
			break
		}
	}

	return p
}

func alternation(tokens []string) string {
	quoted := make([]string, len(tokens))
	for i, t := range tokens {
		quoted[i] = regexp.QuoteMeta(t)
	}
	return strings.Join(quoted, "|")
}

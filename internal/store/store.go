// Package store persists the course catalog, cached course analyses, and the
// synthesis audit log in SQLite.
package store

import (
	"database/sql"
	"encoding/json"
	"fmt"

	"github.com/pavelanni/mockexam/internal/model"

	_ "modernc.org/sqlite"
)

type Store struct {
	db *sql.DB
}

func New(dbPath string) (*Store, error) {
	db, err := sql.Open("sqlite", dbPath+"?_journal_mode=WAL&_busy_timeout=5000")
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}
	if err := db.Ping(); err != nil {
		return nil, fmt.Errorf("ping database: %w", err)
	}
	s := &Store{db: db}
	if err := s.migrate(); err != nil {
		return nil, fmt.Errorf("migrate: %w", err)
	}
	return s, nil
}

func (s *Store) Close() error {
	return s.db.Close()
}

func (s *Store) migrate() error {
	schema := `
	CREATE TABLE IF NOT EXISTS courses (
		code TEXT PRIMARY KEY,
		name TEXT NOT NULL,
		moodle_id INTEGER NOT NULL DEFAULT 0,
		url TEXT NOT NULL DEFAULT ''
	);

	CREATE TABLE IF NOT EXISTS course_analyses (
		course_code TEXT PRIMARY KEY,
		analysis TEXT NOT NULL,
		created_at DATETIME NOT NULL,
		FOREIGN KEY (course_code) REFERENCES courses(code)
	);

	CREATE TABLE IF NOT EXISTS syntheses (
		id TEXT PRIMARY KEY,
		course_code TEXT NOT NULL,
		pdf_path TEXT NOT NULL,
		pattern TEXT NOT NULL,
		created_at DATETIME NOT NULL
	);
	`
	_, err := s.db.Exec(schema)
	return err
}

// UpsertCourse inserts or updates a catalog entry.
func (s *Store) UpsertCourse(c model.Course) error {
	_, err := s.db.Exec(
		`INSERT INTO courses (code, name, moodle_id, url) VALUES (?, ?, ?, ?)
		 ON CONFLICT(code) DO UPDATE SET name = ?, moodle_id = ?, url = ?`,
		c.Code, c.Name, c.MoodleID, c.URL, c.Name, c.MoodleID, c.URL,
	)
	return err
}

// GetCourse returns a course by code.
func (s *Store) GetCourse(code string) (model.Course, error) {
	var c model.Course
	err := s.db.QueryRow(
		`SELECT code, name, moodle_id, url FROM courses WHERE code = ?`, code,
	).Scan(&c.Code, &c.Name, &c.MoodleID, &c.URL)
	return c, err
}

// ListCourses returns the full catalog.
func (s *Store) ListCourses() ([]model.Course, error) {
	rows, err := s.db.Query(`SELECT code, name, moodle_id, url FROM courses ORDER BY code`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var courses []model.Course
	for rows.Next() {
		var c model.Course
		if err := rows.Scan(&c.Code, &c.Name, &c.MoodleID, &c.URL); err != nil {
			return nil, err
		}
		courses = append(courses, c)
	}
	return courses, rows.Err()
}

// CourseCount returns the number of catalog entries.
func (s *Store) CourseCount() (int, error) {
	var count int
	err := s.db.QueryRow(`SELECT COUNT(*) FROM courses`).Scan(&count)
	return count, err
}

// UpsertAnalysis caches a course-content analysis, replacing any previous one.
func (s *Store) UpsertAnalysis(a model.CourseAnalysis) error {
	_, err := s.db.Exec(
		`INSERT INTO course_analyses (course_code, analysis, created_at) VALUES (?, ?, ?)
		 ON CONFLICT(course_code) DO UPDATE SET analysis = ?, created_at = ?`,
		a.CourseCode, a.Analysis, a.CreatedAt, a.Analysis, a.CreatedAt,
	)
	return err
}

// GetAnalysis returns the cached analysis for a course, or nil when absent.
func (s *Store) GetAnalysis(courseCode string) (*model.CourseAnalysis, error) {
	var a model.CourseAnalysis
	err := s.db.QueryRow(
		`SELECT course_code, analysis, created_at FROM course_analyses WHERE course_code = ?`, courseCode,
	).Scan(&a.CourseCode, &a.Analysis, &a.CreatedAt)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &a, nil
}

// InsertSynthesis appends a row to the synthesis audit log.
func (s *Store) InsertSynthesis(rec model.SynthesisRecord) error {
	pattern, err := json.Marshal(rec.Pattern)
	if err != nil {
		return fmt.Errorf("marshal pattern: %w", err)
	}
	_, err = s.db.Exec(
		`INSERT INTO syntheses (id, course_code, pdf_path, pattern, created_at) VALUES (?, ?, ?, ?, ?)`,
		rec.ID, rec.CourseCode, rec.PDFPath, string(pattern), rec.CreatedAt,
	)
	return err
}

// GetSynthesis looks up a single audit record by id.
func (s *Store) GetSynthesis(id string) (model.SynthesisRecord, error) {
	var rec model.SynthesisRecord
	var pattern string
	err := s.db.QueryRow(
		`SELECT id, course_code, pdf_path, pattern, created_at FROM syntheses WHERE id = ?`, id,
	).Scan(&rec.ID, &rec.CourseCode, &rec.PDFPath, &pattern, &rec.CreatedAt)
	if err != nil {
		return rec, err
	}
	if err := json.Unmarshal([]byte(pattern), &rec.Pattern); err != nil {
		return rec, fmt.Errorf("parse pattern for %s: %w", rec.ID, err)
	}
	return rec, nil
}

// ListSyntheses returns the audit log for a course, most recent first.
func (s *Store) ListSyntheses(courseCode string) ([]model.SynthesisRecord, error) {
	rows, err := s.db.Query(
		`SELECT id, course_code, pdf_path, pattern, created_at
		 FROM syntheses WHERE course_code = ? ORDER BY created_at DESC`, courseCode,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var records []model.SynthesisRecord
	for rows.Next() {
		var rec model.SynthesisRecord
		var pattern string
		if err := rows.Scan(&rec.ID, &rec.CourseCode, &rec.PDFPath, &pattern, &rec.CreatedAt); err != nil {
			return nil, err
		}
		if err := json.Unmarshal([]byte(pattern), &rec.Pattern); err != nil {
			return nil, fmt.Errorf("parse pattern for %s: %w", rec.ID, err)
		}
		records = append(records, rec)
	}
	return records, rows.Err()
}

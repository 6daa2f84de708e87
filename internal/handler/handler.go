package handler

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"os"

	"github.com/go-chi/chi/v5"
	"github.com/pavelanni/mockexam/internal/model"
	"github.com/pavelanni/mockexam/internal/store"
	"github.com/pavelanni/mockexam/internal/synth"
)

// CourseSource lists courses from a remote LMS.
type CourseSource interface {
	Configured() bool
	ListCourses(ctx context.Context) ([]model.Course, error)
}

// Handler holds shared dependencies for HTTP handlers.
type Handler struct {
	store    *store.Store
	pipeline *synth.Pipeline
	courses  CourseSource
}

// New creates a new Handler.
func New(s *store.Store, p *synth.Pipeline, courses CourseSource) *Handler {
	return &Handler{store: s, pipeline: p, courses: courses}
}

// Routes registers all HTTP routes.
func (h *Handler) Routes(r chi.Router) {
	r.Get("/api/courses", h.handleListCourses)
	r.Post("/api/courses/sync", h.handleSyncCourses)
	r.Post("/api/courses/{code}/exam", h.handleGenerateExam)
	r.Get("/api/courses/{code}/exams", h.handleListExams)
	r.Post("/api/courses/{code}/analyze", h.handleAnalyzeCourse)
	r.Post("/api/courses/{code}/study-plan", h.handleStudyPlan)
	r.Post("/api/courses/{code}/cheat-sheet", h.handleCheatSheet)
	r.Get("/api/exams/{id}/pdf", h.handleDownloadExam)
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		slog.Error("encode response", "error", err)
	}
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}

func (h *Handler) handleListCourses(w http.ResponseWriter, r *http.Request) {
	courses, err := h.store.ListCourses()
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	if courses == nil {
		courses = []model.Course{}
	}
	writeJSON(w, http.StatusOK, courses)
}

// handleSyncCourses refreshes the local catalog from the LMS.
func (h *Handler) handleSyncCourses(w http.ResponseWriter, r *http.Request) {
	if h.courses == nil || !h.courses.Configured() {
		writeError(w, http.StatusServiceUnavailable, "course source not configured")
		return
	}

	courses, err := h.courses.ListCourses(r.Context())
	if err != nil {
		writeError(w, http.StatusBadGateway, "list courses: "+err.Error())
		return
	}
	for _, c := range courses {
		if err := h.store.UpsertCourse(c); err != nil {
			writeError(w, http.StatusInternalServerError, err.Error())
			return
		}
	}

	slog.Info("course catalog synced", "count", len(courses))
	writeJSON(w, http.StatusOK, map[string]int{"synced": len(courses)})
}

func (h *Handler) lookupCourse(w http.ResponseWriter, r *http.Request) (model.Course, bool) {
	code := chi.URLParam(r, "code")
	course, err := h.store.GetCourse(code)
	if errors.Is(err, sql.ErrNoRows) {
		writeError(w, http.StatusNotFound, "unknown course "+code)
		return model.Course{}, false
	}
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return model.Course{}, false
	}
	return course, true
}

func (h *Handler) handleGenerateExam(w http.ResponseWriter, r *http.Request) {
	course, ok := h.lookupCourse(w, r)
	if !ok {
		return
	}

	res, err := h.pipeline.Synthesize(r.Context(), course)
	if err != nil {
		slog.Error("synthesis failed", "course", course.Code, "error", err)
		writeError(w, http.StatusInternalServerError, "synthesis failed: "+err.Error())
		return
	}

	writeJSON(w, http.StatusCreated, res)
}

func (h *Handler) handleListExams(w http.ResponseWriter, r *http.Request) {
	course, ok := h.lookupCourse(w, r)
	if !ok {
		return
	}

	records, err := h.store.ListSyntheses(course.Code)
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	if records == nil {
		records = []model.SynthesisRecord{}
	}
	writeJSON(w, http.StatusOK, records)
}

func (h *Handler) handleAnalyzeCourse(w http.ResponseWriter, r *http.Request) {
	course, ok := h.lookupCourse(w, r)
	if !ok {
		return
	}

	analysis, err := h.pipeline.AnalyzeCourse(r.Context(), course)
	if err != nil {
		slog.Error("course analysis failed", "course", course.Code, "error", err)
		writeError(w, http.StatusInternalServerError, "analysis failed: "+err.Error())
		return
	}

	writeJSON(w, http.StatusOK, map[string]string{
		"course":   course.Code,
		"analysis": analysis,
	})
}

func (h *Handler) handleStudyPlan(w http.ResponseWriter, r *http.Request) {
	h.handleStudyAid(w, r, h.pipeline.StudyPlan)
}

func (h *Handler) handleCheatSheet(w http.ResponseWriter, r *http.Request) {
	h.handleStudyAid(w, r, h.pipeline.CheatSheet)
}

func (h *Handler) handleStudyAid(w http.ResponseWriter, r *http.Request, produce func(context.Context, model.Course) (*synth.StudyAid, error)) {
	course, ok := h.lookupCourse(w, r)
	if !ok {
		return
	}

	aid, err := produce(r.Context(), course)
	if err != nil {
		slog.Error("study aid failed", "course", course.Code, "error", err)
		writeError(w, http.StatusInternalServerError, "generation failed: "+err.Error())
		return
	}

	writeJSON(w, http.StatusCreated, aid)
}

func (h *Handler) handleDownloadExam(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	rec, err := h.store.GetSynthesis(id)
	if errors.Is(err, sql.ErrNoRows) {
		writeError(w, http.StatusNotFound, "unknown exam "+id)
		return
	}
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	if _, err := os.Stat(rec.PDFPath); err != nil {
		writeError(w, http.StatusNotFound, "exam file no longer on disk")
		return
	}

	w.Header().Set("Content-Type", "application/pdf")
	http.ServeFile(w, r, rec.PDFPath)
}

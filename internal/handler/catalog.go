package handler

import (
	"errors"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/mmeshcher/courseshop-system/internal/model"
	"github.com/mmeshcher/courseshop-system/internal/repository"
)

type courseResponse struct {
	ID          string `json:"id"`
	Title       string `json:"title"`
	Slug        string `json:"slug"`
	Description string `json:"description"`
	PriceCents  int64  `json:"priceCents"`
	CreatedAt   string `json:"createdAt"`
}

func toCourseResponse(c *model.Course) courseResponse {
	return courseResponse{
		ID:          c.ID.String(),
		Title:       c.Title,
		Slug:        c.Slug,
		Description: c.Description,
		PriceCents:  c.PriceCents,
		CreatedAt:   c.CreatedAt.Format(time.RFC3339),
	}
}

// GetCourses возвращает список опубликованных курсов.
func (h *Handler) GetCourses(w http.ResponseWriter, r *http.Request) {
	courses, err := h.service.GetCourses(r.Context())
	if err != nil {
		h.logger.Error("get courses error", zap.Error(err))
		http.Error(w, http.StatusText(http.StatusInternalServerError), http.StatusInternalServerError)
		return
	}

	resp := make([]courseResponse, 0, len(courses))
	for i := range courses {
		resp = append(resp, toCourseResponse(&courses[i]))
	}

	h.writeJSON(w, http.StatusOK, resp)
}

// GetCourse возвращает один опубликованный курс по идентификатору.
func (h *Handler) GetCourse(w http.ResponseWriter, r *http.Request) {
	id, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		http.Error(w, http.StatusText(http.StatusNotFound), http.StatusNotFound)
		return
	}

	course, err := h.service.GetCourse(r.Context(), id)
	if err != nil {
		if errors.Is(err, repository.ErrCourseNotFound) {
			http.Error(w, http.StatusText(http.StatusNotFound), http.StatusNotFound)
			return
		}
		h.logger.Error("get course error", zap.Error(err), zap.String("courseID", id.String()))
		http.Error(w, http.StatusText(http.StatusInternalServerError), http.StatusInternalServerError)
		return
	}

	if !course.IsPublished {
		http.Error(w, http.StatusText(http.StatusNotFound), http.StatusNotFound)
		return
	}

	h.writeJSON(w, http.StatusOK, toCourseResponse(course))
}

package handler

import (
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/creatify/internal/middleware"
	"github.com/creatify/internal/model"
	"github.com/creatify/internal/repository"
	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
)

type ProjectHandler struct {
	projects *repository.ProjectRepository
}

func NewProjectHandler(projects *repository.ProjectRepository) *ProjectHandler {
	return &ProjectHandler{projects: projects}
}

// Feed handles GET /project.
func (h *ProjectHandler) Feed(w http.ResponseWriter, r *http.Request) {
	limit := queryInt(r, "limit", 20)
	if limit <= 0 || limit > 100 {
		limit = 20
	}
	offset := queryInt(r, "offset", 0)
	if offset < 0 {
		offset = 0
	}
	items, err := h.projects.ListFeed(r.Context(), limit, offset)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "failed to load feed")
		return
	}
	if items == nil {
		items = []model.ProjectFeedItem{}
	}
	writeJSON(w, http.StatusOK, items)
}

type createProjectRequest struct {
	Title       string `json:"title"`
	Description string `json:"description"`
}

// Create handles POST /project.
func (h *ProjectHandler) Create(w http.ResponseWriter, r *http.Request) {
	var req createProjectRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid body")
		return
	}
	req.Title = strings.TrimSpace(req.Title)
	if req.Title == "" {
		writeError(w, http.StatusBadRequest, "title required")
		return
	}
	p := &model.Project{
		ID:          uuid.New().String(),
		UserID:      middleware.GetUserID(r.Context()),
		Title:       req.Title,
		Description: req.Description,
		CreatedAt:   time.Now().UTC(),
	}
	if err := h.projects.Create(r.Context(), p); err != nil {
		writeError(w, http.StatusInternalServerError, "failed to create project")
		return
	}
	writeJSON(w, http.StatusCreated, map[string]string{"id": p.ID})
}

// Detail handles GET /project/{id}.
func (h *ProjectHandler) Detail(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	d, err := h.projects.GetDetail(r.Context(), id, middleware.GetUserID(r.Context()))
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			writeError(w, http.StatusNotFound, "project not found")
			return
		}
		writeError(w, http.StatusInternalServerError, "failed to load project")
		return
	}
	writeJSON(w, http.StatusOK, d)
}

// ByUser handles GET /project/user/{userId}.
func (h *ProjectHandler) ByUser(w http.ResponseWriter, r *http.Request) {
	userID, ok := pathInt64(chi.URLParam(r, "userId"))
	if !ok {
		writeError(w, http.StatusBadRequest, "invalid user id")
		return
	}
	items, err := h.projects.ListByUser(r.Context(), userID)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "failed to load projects")
		return
	}
	if items == nil {
		items = []model.ProjectFeedItem{}
	}
	writeJSON(w, http.StatusOK, items)
}

// Like handles PATCH /project/{id}/like.
func (h *ProjectHandler) Like(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	if err := h.projects.Like(r.Context(), id, middleware.GetUserID(r.Context())); err != nil {
		writeError(w, http.StatusInternalServerError, "failed to like")
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"message": "liked"})
}

// Dislike handles PATCH /project/{id}/dislike (removes the like).
func (h *ProjectHandler) Dislike(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	if err := h.projects.Unlike(r.Context(), id, middleware.GetUserID(r.Context())); err != nil {
		writeError(w, http.StatusInternalServerError, "failed to remove like")
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"message": "like removed"})
}

// View handles POST /project/{id}/view.
func (h *ProjectHandler) View(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	if err := h.projects.RecordView(r.Context(), id, middleware.GetUserID(r.Context())); err != nil {
		writeError(w, http.StatusInternalServerError, "failed to record view")
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"message": "view recorded"})
}

type commentRequest struct {
	Text string `json:"text"`
}

// Comment handles POST /project/{id}/comment.
func (h *ProjectHandler) Comment(w http.ResponseWriter, r *http.Request) {
	var req commentRequest
	if err := decodeJSON(r, &req); err != nil || strings.TrimSpace(req.Text) == "" {
		writeError(w, http.StatusBadRequest, "text required")
		return
	}
	id := chi.URLParam(r, "id")
	commentID, err := h.projects.AddComment(r.Context(), id, middleware.GetUserID(r.Context()), strings.TrimSpace(req.Text))
	if err != nil {
		writeError(w, http.StatusInternalServerError, "failed to comment")
		return
	}
	writeJSON(w, http.StatusCreated, map[string]int64{"commentId": commentID})
}

type addImageRequest struct {
	PublicID string `json:"publicId"`
	URL      string `json:"url"`
}

// AddImage handles POST /project/{id}/image, recording an already-uploaded
// image.
func (h *ProjectHandler) AddImage(w http.ResponseWriter, r *http.Request) {
	var req addImageRequest
	if err := decodeJSON(r, &req); err != nil || req.URL == "" {
		writeError(w, http.StatusBadRequest, "url required")
		return
	}
	id := chi.URLParam(r, "id")
	imageID, err := h.projects.AddImage(r.Context(), id, req.PublicID, req.URL)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "failed to add image")
		return
	}
	writeJSON(w, http.StatusCreated, map[string]int64{"imageId": imageID})
}
